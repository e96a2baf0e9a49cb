// Package queue moves journal events between the outbox, RabbitMQ and the
// mail consumer.
package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/journal-portal/internal/model"
)

// EventNotification is the only event type the mail consumer acts on.
const EventNotification = "notification.created"

// JournalEvent is the outbox payload published to the events queue. It
// carries everything the mail consumer needs so it never reads the
// primary database.
type JournalEvent struct {
	EventID        string                 `json:"event_id"`
	Type           model.NotificationType `json:"type"`
	RecipientID    uint64                 `json:"recipient_id"`
	RecipientEmail string                 `json:"recipient_email"`
	RecipientName  string                 `json:"recipient_name,omitempty"`
	Subject        string                 `json:"subject"`
	Message        string                 `json:"message"`
	Path           string                 `json:"path,omitempty"`
	SubmissionID   uint64                 `json:"submission_id,omitempty"`
	OccurredAt     time.Time              `json:"occurred_at"`
}

// NotificationEvent turns an in-app notification for u into the outbox row
// that will mail it. Recipients without an email yield ok=false.
func NotificationEvent(n model.Notification, u model.User, subject, path string) (model.OutboxEvent, bool, error) {
	if u.Email == "" {
		return model.OutboxEvent{}, false, nil
	}
	ev := JournalEvent{
		EventID:        uuid.NewString(),
		Type:           n.Type,
		RecipientID:    u.ID,
		RecipientEmail: u.Email,
		RecipientName:  u.DisplayName(),
		Subject:        subject,
		Message:        n.Message,
		Path:           path,
		SubmissionID:   n.Data.SubmissionID,
		OccurredAt:     time.Now().UTC(),
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return model.OutboxEvent{}, false, fmt.Errorf("encode event: %w", err)
	}
	return model.OutboxEvent{EventID: ev.EventID, Type: EventNotification, Payload: body}, true, nil
}
