package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/iliyamo/journal-portal/internal/model"
)

// OutboxRepo is the relay's view of outbox_events.
type OutboxRepo struct{ DB *sql.DB }

func NewOutboxRepo(db *sql.DB) *OutboxRepo { return &OutboxRepo{DB: db} }

func insertEventsTx(ctx context.Context, tx *sql.Tx, evs []model.OutboxEvent) error {
	for _, ev := range evs {
		id := ev.EventID
		if id == "" {
			id = uuid.NewString()
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO outbox_events (event_id, event_type, payload) VALUES (?,?,?)",
			id, ev.Type, []byte(ev.Payload)); err != nil {
			return fmt.Errorf("insert outbox event: %w", err)
		}
	}
	return nil
}

// Dispatch claims up to limit pending rows, hands each to publish and
// records the outcome, all inside one transaction. SKIP LOCKED lets
// several relays run side by side without publishing a row twice.
func (r *OutboxRepo) Dispatch(ctx context.Context, limit, maxAttempts int, publish func(context.Context, model.OutboxEvent) error) (sent, failed int, err error) {
	err = withTx(ctx, r.DB, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			`SELECT id, event_id, event_type, payload, attempts, created_at
			   FROM outbox_events WHERE state='pending' ORDER BY id LIMIT ? FOR UPDATE SKIP LOCKED`, limit)
		if err != nil {
			return err
		}
		var batch []model.OutboxEvent
		for rows.Next() {
			var ev model.OutboxEvent
			var payload []byte
			if err := rows.Scan(&ev.ID, &ev.EventID, &ev.Type, &payload, &ev.Attempts, &ev.CreatedAt); err != nil {
				rows.Close()
				return err
			}
			ev.Payload = payload
			ev.State = model.OutboxPending
			batch = append(batch, ev)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for _, ev := range batch {
			if perr := publish(ctx, ev); perr != nil {
				failed++
				state := model.OutboxPending
				if ev.Attempts+1 >= maxAttempts {
					state = model.OutboxDead
				}
				msg := perr.Error()
				if len(msg) > 1000 {
					msg = msg[:1000]
				}
				if _, err := tx.ExecContext(ctx,
					"UPDATE outbox_events SET attempts=attempts+1, last_error=?, state=? WHERE id=?",
					msg, string(state), ev.ID); err != nil {
					return err
				}
				continue
			}
			sent++
			if _, err := tx.ExecContext(ctx,
				"UPDATE outbox_events SET state='published', attempts=attempts+1, published_at=NOW() WHERE id=?",
				ev.ID); err != nil {
				return err
			}
		}
		return nil
	})
	return sent, failed, err
}

// PendingCount is used by the health endpoint.
func (r *OutboxRepo) PendingCount(ctx context.Context) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM outbox_events WHERE state='pending'").Scan(&n)
	return n, err
}
