package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/journal-portal/internal/model"
)

type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

const userColumns = `id, email, password_hash, role, phone, is_active, is_profile_complete,
	failed_login_count, last_failed_login, locked_until, last_login, reset_token_hash, reset_expires_at,
	author_profile, editor_profile, reviewer_profile, admin_profile, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(s rowScanner) (model.User, error) {
	var (
		u                                       model.User
		role, phone, resetHash                  sql.NullString
		lastFailed, locked, lastLogin, resetExp sql.NullTime
		author, editor, reviewer, admin         []byte
	)
	err := s.Scan(&u.ID, &u.Email, &u.PasswordHash, &role, &phone, &u.IsActive, &u.IsProfileComplete,
		&u.FailedLoginCount, &lastFailed, &locked, &lastLogin, &resetHash, &resetExp,
		&author, &editor, &reviewer, &admin, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return model.User{}, translate(err)
	}
	u.Role = model.Role(role.String)
	u.Phone = phone.String
	u.ResetTokenHash = resetHash.String
	u.LastFailedLogin = timePtr(lastFailed)
	u.LockedUntil = timePtr(locked)
	u.LastLogin = timePtr(lastLogin)
	u.ResetExpiresAt = timePtr(resetExp)
	if u.AuthorProfile, err = decodeJSONPtr[model.AuthorProfile](author); err != nil {
		return model.User{}, err
	}
	if u.EditorProfile, err = decodeJSONPtr[model.EditorProfile](editor); err != nil {
		return model.User{}, err
	}
	if u.ReviewerProfile, err = decodeJSONPtr[model.ReviewerProfile](reviewer); err != nil {
		return model.User{}, err
	}
	if u.AdminProfile, err = decodeJSONPtr[model.AdminProfile](admin); err != nil {
		return model.User{}, err
	}
	return u, nil
}

// Create inserts a user without a role and returns its ID. A taken email
// yields ErrDuplicate.
func (r *UserRepo) Create(ctx context.Context, email, passwordHash, phone string) (uint64, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	var ph any
	if phone != "" {
		ph = phone
	}
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (email, password_hash, phone) VALUES (?,?,?)",
		email, passwordHash, ph)
	if err != nil {
		return 0, translate(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", email))
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id))
}

// GetByResetToken returns the user holding an unexpired reset token.
func (r *UserRepo) GetByResetToken(ctx context.Context, tokenHash string) (model.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE reset_token_hash=? AND reset_expires_at > ? LIMIT 1",
		tokenHash, time.Now().UTC()))
}

// RecordFailedLogin bumps the failure counter and locks the account once
// it reaches maxAttempts. A lock that already expired starts a fresh
// count. MySQL evaluates single-table SET clauses left to right, so the
// locked_until expression sees the new counter value.
func (r *UserRepo) RecordFailedLogin(ctx context.Context, id uint64, maxAttempts int, lockout time.Duration) (int, *time.Time, error) {
	now := time.Now().UTC()
	_, err := r.DB.ExecContext(ctx,
		`UPDATE users SET
			failed_login_count = IF(locked_until IS NOT NULL AND locked_until <= ?, 1, failed_login_count + 1),
			locked_until = IF(failed_login_count >= ?, ?, IF(locked_until <= ?, NULL, locked_until)),
			last_failed_login = ?
		 WHERE id=?`,
		now, maxAttempts, now.Add(lockout), now, now, id)
	if err != nil {
		return 0, nil, err
	}
	var (
		count  int
		locked sql.NullTime
	)
	if err := r.DB.QueryRowContext(ctx,
		"SELECT failed_login_count, locked_until FROM users WHERE id=?", id).Scan(&count, &locked); err != nil {
		return 0, nil, translate(err)
	}
	return count, timePtr(locked), nil
}

// RecordSuccessfulLogin clears the lockout state and stamps last_login.
func (r *UserRepo) RecordSuccessfulLogin(ctx context.Context, id uint64) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE users SET failed_login_count=0, locked_until=NULL, last_login=? WHERE id=?",
		time.Now().UTC(), id)
	return err
}

func (r *UserRepo) SetResetToken(ctx context.Context, id uint64, tokenHash string, exp time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE users SET reset_token_hash=?, reset_expires_at=? WHERE id=?", tokenHash, exp, id)
	return err
}

// PasswordHistory returns the user's most recent previous hashes.
func (r *UserRepo) PasswordHistory(ctx context.Context, id uint64, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := r.DB.QueryContext(ctx,
		"SELECT password_hash FROM password_history WHERE user_id=? ORDER BY created_at DESC, id DESC LIMIT ?",
		id, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// UpdatePassword swaps the hash, archives the old one, clears any reset
// token and lockout, and trims the history to keep entries.
func (r *UserRepo) UpdatePassword(ctx context.Context, id uint64, newHash string, keep int) error {
	return withTx(ctx, r.DB, func(tx *sql.Tx) error {
		var old string
		if err := tx.QueryRowContext(ctx,
			"SELECT password_hash FROM users WHERE id=? FOR UPDATE", id).Scan(&old); err != nil {
			return translate(err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO password_history (user_id, password_hash) VALUES (?,?)", id, old); err != nil {
			return fmt.Errorf("archive password: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE users SET password_hash=?, reset_token_hash=NULL, reset_expires_at=NULL,
			        failed_login_count=0, locked_until=NULL WHERE id=?`, newHash, id); err != nil {
			return err
		}
		if keep < 1 {
			keep = 1
		}
		_, err := tx.ExecContext(ctx,
			`DELETE FROM password_history WHERE user_id=? AND id NOT IN (
			    SELECT id FROM (SELECT id FROM password_history WHERE user_id=?
			                    ORDER BY created_at DESC, id DESC LIMIT ?) AS keep_rows)`,
			id, id, keep)
		return err
	})
}

// CompleteProfile stores the author profile once. A second call returns
// ErrConflict. A profile-completed notification commits with it.
func (r *UserRepo) CompleteProfile(ctx context.Context, id uint64, p *model.AuthorProfile, note *model.Notification) error {
	raw, err := jsonArg(p)
	if err != nil {
		return err
	}
	return withTx(ctx, r.DB, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			"UPDATE users SET author_profile=?, is_profile_complete=1 WHERE id=? AND is_profile_complete=0",
			raw, id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrConflict
		}
		if note == nil {
			return nil
		}
		return insertNotificationsTx(ctx, tx, []model.Notification{*note})
	})
}

// UpdateAuthorProfile replaces the author profile and marks it complete.
func (r *UserRepo) UpdateAuthorProfile(ctx context.Context, id uint64, p *model.AuthorProfile) error {
	raw, err := jsonArg(p)
	if err != nil {
		return err
	}
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET author_profile=?, is_profile_complete=1 WHERE id=?", raw, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// ChangeRole sets the role and writes the accompanying notification and
// outbox events in the same transaction. It returns the previous role.
func (r *UserRepo) ChangeRole(ctx context.Context, id uint64, role model.Role, ns []model.Notification, evs []model.OutboxEvent) (model.Role, error) {
	var old sql.NullString
	err := withTx(ctx, r.DB, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx, "SELECT role FROM users WHERE id=? FOR UPDATE", id).Scan(&old); err != nil {
			return translate(err)
		}
		if _, err := tx.ExecContext(ctx, "UPDATE users SET role=? WHERE id=?", string(role), id); err != nil {
			return err
		}
		for i := range ns {
			ns[i].Data.OldRole = model.Role(old.String)
		}
		if err := insertNotificationsTx(ctx, tx, ns); err != nil {
			return err
		}
		return insertEventsTx(ctx, tx, evs)
	})
	return model.Role(old.String), err
}

// List pages through users, optionally filtered by role.
func (r *UserRepo) List(ctx context.Context, role model.Role, page, limit int) ([]model.User, int, error) {
	_, limit, offset := pageBounds(page, limit, 20, 100)
	where, args := "", []any{}
	if role != "" {
		where, args = " WHERE role=?", append(args, string(role))
	}
	var total int
	if err := r.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM users"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+userColumns+" FROM users"+where+" ORDER BY id DESC LIMIT ? OFFSET ?",
		append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := []model.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, u)
	}
	return out, total, rows.Err()
}

// ListByRole returns every active user holding exactly role.
func (r *UserRepo) ListByRole(ctx context.Context, role model.Role) ([]model.User, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE role=? AND is_active=1 ORDER BY id", string(role))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// CountActiveSince counts users who logged in after since.
func (r *UserRepo) CountActiveSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM users WHERE last_login >= ?", since).Scan(&n)
	return n, err
}
