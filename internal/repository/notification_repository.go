package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/iliyamo/journal-portal/internal/model"
)

// NotificationRepo stores in-app notifications. Writes that accompany a
// state change go through insertNotificationsTx so they commit together.
type NotificationRepo struct{ DB *sql.DB }

func NewNotificationRepo(db *sql.DB) *NotificationRepo { return &NotificationRepo{DB: db} }

func insertNotificationsTx(ctx context.Context, tx *sql.Tx, ns []model.Notification) error {
	for _, n := range ns {
		data, err := jsonArg(n.Data)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO notifications (recipient_id, type, message, data) VALUES (?,?,?,?)",
			n.RecipientID, string(n.Type), n.Message, data); err != nil {
			return fmt.Errorf("insert notification: %w", err)
		}
	}
	return nil
}

// CreateWithEvents writes notifications and their outbox events atomically.
func (r *NotificationRepo) CreateWithEvents(ctx context.Context, ns []model.Notification, evs []model.OutboxEvent) error {
	return withTx(ctx, r.DB, func(tx *sql.Tx) error {
		if err := insertNotificationsTx(ctx, tx, ns); err != nil {
			return err
		}
		return insertEventsTx(ctx, tx, evs)
	})
}

// ListForUser returns the newest notifications first.
func (r *NotificationRepo) ListForUser(ctx context.Context, userID uint64, limit int) ([]model.Notification, error) {
	if limit < 1 || limit > 100 {
		limit = 20
	}
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id, recipient_id, type, message, data, is_read, created_at
		   FROM notifications WHERE recipient_id=? ORDER BY created_at DESC, id DESC LIMIT ?`,
		userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Notification{}
	for rows.Next() {
		var (
			n    model.Notification
			typ  string
			data []byte
		)
		if err := rows.Scan(&n.ID, &n.RecipientID, &typ, &n.Message, &data, &n.Read, &n.CreatedAt); err != nil {
			return nil, err
		}
		n.Type = model.NotificationType(typ)
		if err := decodeJSON(data, &n.Data); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (r *NotificationRepo) UnreadCount(ctx context.Context, userID uint64) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM notifications WHERE recipient_id=? AND is_read=0", userID).Scan(&n)
	return n, err
}

// MarkRead flags one notification. Someone else's notification reads as
// not found.
func (r *NotificationRepo) MarkRead(ctx context.Context, userID, id uint64) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE notifications SET is_read=1 WHERE id=? AND recipient_id=?", id, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var exists int
		err := r.DB.QueryRowContext(ctx,
			"SELECT 1 FROM notifications WHERE id=? AND recipient_id=?", id, userID).Scan(&exists)
		if err != nil {
			return translate(err)
		}
	}
	return nil
}

func (r *NotificationRepo) MarkAllRead(ctx context.Context, userID uint64) (int64, error) {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE notifications SET is_read=1 WHERE recipient_id=? AND is_read=0", userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
