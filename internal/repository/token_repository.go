package repository

import (
	"context"
	"database/sql"
	"time"
)

const (
	insertRefresh = `INSERT INTO refresh_tokens (user_id, token_hash, expires_at) VALUES (?, ?, ?)`
	revokeRefresh = `UPDATE refresh_tokens SET revoked_at = NOW() WHERE revoked_at IS NULL AND `
)

// TokenRepo stores refresh tokens as SHA-256 hashes; the raw value only
// ever lives in the client cookie.
type TokenRepo struct{ DB *sql.DB }

func NewTokenRepo(db *sql.DB) *TokenRepo { return &TokenRepo{DB: db} }

func (r *TokenRepo) StoreRefresh(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error {
	_, err := r.DB.ExecContext(ctx, insertRefresh, userID, tokenHash, exp)
	return err
}

// ValidateRefresh returns the owner of a live token, or ErrNotFound when
// the token is unknown, revoked or expired.
func (r *TokenRepo) ValidateRefresh(ctx context.Context, tokenHash string) (uint64, error) {
	var owner uint64
	err := r.DB.QueryRowContext(ctx, `
		SELECT user_id FROM refresh_tokens
		WHERE token_hash = ? AND revoked_at IS NULL AND expires_at > ?`,
		tokenHash, time.Now().UTC()).Scan(&owner)
	return owner, translate(err)
}

// Rotate revokes oldHash and stores newHash in one transaction. It fails
// with ErrNotFound if oldHash was already revoked, so a refresh token can
// be exchanged only once.
func (r *TokenRepo) Rotate(ctx context.Context, userID uint64, oldHash, newHash string, exp time.Time) error {
	return withTx(ctx, r.DB, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, revokeRefresh+"token_hash = ? AND user_id = ?", oldHash, userID)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil || n == 0 {
			return ErrNotFound
		}
		_, err = tx.ExecContext(ctx, insertRefresh, userID, newHash, exp)
		return err
	})
}

func (r *TokenRepo) RevokeByHash(ctx context.Context, tokenHash string) error {
	_, err := r.DB.ExecContext(ctx, revokeRefresh+"token_hash = ?", tokenHash)
	return err
}

// RevokeAllForUser is called on password change and reset.
func (r *TokenRepo) RevokeAllForUser(ctx context.Context, userID uint64) error {
	_, err := r.DB.ExecContext(ctx, revokeRefresh+"user_id = ?", userID)
	return err
}
