// Package repository holds the MySQL and MongoDB data access layer. The
// sentinel errors below let handlers and services tell failure classes
// apart without inspecting driver errors.
package repository

import (
	"database/sql"
	"errors"

	"github.com/go-sql-driver/mysql"
	"go.mongodb.org/mongo-driver/mongo"
)

// ErrNotFound is returned when the addressed row or document does not exist.
var ErrNotFound = errors.New("not found")

// ErrForbidden is returned when the caller attempts an operation on a
// resource they neither own nor are assigned to.
var ErrForbidden = errors.New("forbidden")

// ErrConflict signals that the row changed underneath the caller, e.g. a
// submission whose status no longer matches the expected one.
var ErrConflict = errors.New("conflict")

// ErrDuplicate wraps MySQL error 1062 and Mongo duplicate-key errors.
var ErrDuplicate = errors.New("duplicate entry")

const mysqlDuplicateEntry = 1062

// translate maps driver errors onto the sentinels above.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) || errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) && me.Number == mysqlDuplicateEntry {
		return ErrDuplicate
	}
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicate
	}
	return err
}
