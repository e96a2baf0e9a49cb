package repository

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/iliyamo/journal-portal/internal/database"
	"github.com/iliyamo/journal-portal/internal/model"
)

// mysqlDB connects to the database named by JOURNAL_TEST_DSN and applies
// the migrations. Tests using it are skipped when the variable is unset.
func mysqlDB(t *testing.T) *sql.DB {
	t.Helper()
	raw := os.Getenv("JOURNAL_TEST_DSN")
	if raw == "" {
		t.Skip("JOURNAL_TEST_DSN not set")
	}
	cfg, err := mysql.ParseDSN(raw)
	if err != nil {
		t.Fatal(err)
	}
	cfg.ParseTime, cfg.Loc, cfg.MultiStatements = true, time.UTC, true
	db, err := sql.Open("mysql", cfg.FormatDSN())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	if err := database.Migrate(db, "../../migrations", zerolog.Nop()); err != nil {
		t.Fatal(err)
	}
	return db
}

func seedUser(t *testing.T, db *sql.DB, role model.Role) uint64 {
	t.Helper()
	res, err := db.Exec("INSERT INTO users (email, password_hash, role) VALUES (?,?,?)",
		uuid.NewString()+"@example.org", "x", string(role))
	if err != nil {
		t.Fatal(err)
	}
	id, _ := res.LastInsertId()
	return uint64(id)
}

func seedSubmission(t *testing.T, db *sql.DB, authorID uint64, status model.SubmissionStatus) uint64 {
	t.Helper()
	res, err := db.Exec(
		`INSERT INTO submissions (author_id, title, abstract, keywords, authors, files, status)
		 VALUES (?, 'On Tides', 'a', '[]', '[]', '{}', ?)`, authorID, string(status))
	if err != nil {
		t.Fatal(err)
	}
	id, _ := res.LastInsertId()
	return uint64(id)
}

func TestMySQLFailedLoginLockout(t *testing.T) {
	db := mysqlDB(t)
	ctx := context.Background()
	users := NewUserRepo(db)
	id := seedUser(t, db, model.RoleAuthor)

	for want := 1; want <= 3; want++ {
		n, locked, err := users.RecordFailedLogin(ctx, id, 3, 15*time.Minute)
		if err != nil {
			t.Fatal(err)
		}
		if n != want || (locked != nil) != (want == 3) {
			t.Fatalf("attempt %d: count=%d locked=%v", want, n, locked)
		}
	}

	if _, err := db.Exec("UPDATE users SET locked_until=? WHERE id=?", time.Now().UTC().Add(-time.Minute), id); err != nil {
		t.Fatal(err)
	}
	n, locked, err := users.RecordFailedLogin(ctx, id, 3, 15*time.Minute)
	if err != nil || n != 1 || locked != nil {
		t.Fatalf("after expiry: count=%d locked=%v err=%v", n, locked, err)
	}
}

func TestMySQLConcurrentApproveCreatesOneArticle(t *testing.T) {
	db := mysqlDB(t)
	repo := NewSubmissionRepo(db)
	author := seedUser(t, db, model.RoleAuthor)
	id := seedSubmission(t, db, author, model.StatusReviewed)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		ok, stale int
	)
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.Apply(context.Background(), &model.Transition{
				SubmissionID: id, From: model.StatusReviewed, To: model.StatusAccepted, ActorID: author,
				Article: &model.Article{SubmissionID: id, Title: "On Tides", Abstract: "a"},
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, ErrConflict):
				stale++
			default:
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	var articles int
	if err := db.QueryRow("SELECT COUNT(*) FROM articles WHERE submission_id=?", id).Scan(&articles); err != nil {
		t.Fatal(err)
	}
	if ok != 1 || stale != 3 || articles != 1 {
		t.Fatalf("ok=%d stale=%d articles=%d", ok, stale, articles)
	}
}

func TestMySQLReassignWithdrawnReviewer(t *testing.T) {
	db := mysqlDB(t)
	ctx := context.Background()
	repo := NewSubmissionRepo(db)
	author := seedUser(t, db, model.RoleAuthor)
	editor := seedUser(t, db, model.RoleEditor)
	reviewer := seedUser(t, db, model.RoleReviewer)
	id := seedSubmission(t, db, author, model.StatusUnderReview)

	assign := func() (*model.Transition, error) {
		tr := &model.Transition{
			SubmissionID: id, From: model.StatusUnderReview, To: model.StatusUnderReview, ActorID: editor,
			Assign: []model.Review{{SubmissionID: id, ReviewerID: reviewer, DueDate: time.Now().UTC().Add(72 * time.Hour)}},
		}
		_, err := repo.Apply(ctx, tr)
		return tr, err
	}

	first, err := assign()
	if err != nil {
		t.Fatal(err)
	}
	rid := first.Assign[0].ID
	if _, err := repo.Apply(ctx, &model.Transition{
		SubmissionID: id, From: model.StatusUnderReview, To: model.StatusUnderReview, ActorID: editor, WithdrawReview: rid,
	}); err != nil {
		t.Fatal(err)
	}

	again, err := assign()
	if err != nil {
		t.Fatalf("re-assign: %v", err)
	}
	if again.Assign[0].ID != rid {
		t.Fatalf("got review %d, want the withdrawn %d back", again.Assign[0].ID, rid)
	}
	var (
		rows   int
		status string
	)
	if err := db.QueryRow("SELECT COUNT(*), MAX(status) FROM reviews WHERE submission_id=? AND reviewer_id=?", id, reviewer).
		Scan(&rows, &status); err != nil {
		t.Fatal(err)
	}
	if rows != 1 || status != string(model.ReviewPending) {
		t.Fatalf("rows=%d status=%s", rows, status)
	}

	if _, err := assign(); !errors.Is(err, ErrConflict) {
		t.Fatalf("assigning an active reviewer: %v", err)
	}
}
