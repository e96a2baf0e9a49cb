package model

import (
	"encoding/json"
	"time"
)

type NotificationType string

const (
	NotifyArticleSubmitted NotificationType = "article-submitted"
	NotifyArticleReviewed  NotificationType = "article-reviewed"
	NotifyArticleApproved  NotificationType = "article-approved"
	NotifyArticleRejected  NotificationType = "article-rejected"
	NotifyArticlePublished NotificationType = "article-published"
	NotifyRevision         NotificationType = "revision-requested"
	NotifyReviewAssigned   NotificationType = "review-assigned"
	NotifyReviewReminder   NotificationType = "review-reminder"
	NotifyProfileCompleted NotificationType = "profile-completed"
	NotifyRoleChanged      NotificationType = "role-changed"
)

type NotificationData struct {
	SubmissionID uint64 `json:"submissionId,omitempty"`
	ArticleID    uint64 `json:"articleId,omitempty"`
	ReviewID     uint64 `json:"reviewId,omitempty"`
	OldRole      Role   `json:"oldRole,omitempty"`
	NewRole      Role   `json:"newRole,omitempty"`
}

type Notification struct {
	ID          uint64           `json:"id"`
	RecipientID uint64           `json:"recipientId"`
	Type        NotificationType `json:"type"`
	Message     string           `json:"message"`
	Data        NotificationData `json:"data"`
	Read        bool             `json:"read"`
	CreatedAt   time.Time        `json:"createdAt"`
}

// OutboxState tracks relay progress of an outbox row.
type OutboxState string

const (
	OutboxPending   OutboxState = "pending"
	OutboxPublished OutboxState = "published"
	OutboxDead      OutboxState = "dead"
)

// OutboxEvent is written in the same transaction as the state change it
// describes and later published to the broker by the relay.
type OutboxEvent struct {
	ID        uint64
	EventID   string
	Type      string
	Payload   json.RawMessage
	State     OutboxState
	Attempts  int
	LastError string
	CreatedAt time.Time
}
