package model

import "time"

type EditorialBoardMember struct {
	ID        uint64    `json:"id"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	Bio       string    `json:"bio,omitempty"`
	Image     string    `json:"image,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type ContentType string

const (
	ContentAims       ContentType = "Aims"
	ContentMission    ContentType = "Mission"
	ContentPolicies   ContentType = "Policies"
	ContentGuidelines ContentType = "Guidelines"
)

func (t ContentType) Valid() bool {
	switch t {
	case ContentAims, ContentMission, ContentPolicies, ContentGuidelines:
		return true
	}
	return false
}

type StaticContent struct {
	ID          uint64      `json:"id"`
	Title       string      `json:"title"`
	Content     string      `json:"content"`
	ContentType ContentType `json:"contentType"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

type NewsletterSubscriber struct {
	ID        uint64    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

// Case is a picture-prognosis case submitted by a user.
type Case struct {
	ID          uint64    `json:"id"`
	SubmittedBy uint64    `json:"userId"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Specialty   string    `json:"specialty,omitempty"`
	Files       []string  `json:"files"`
	CreatedAt   time.Time `json:"createdAt"`
}

type WaitlistEntry struct {
	ID          uint64    `json:"id"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	Institution string    `json:"institution,omitempty"`
	Motivation  string    `json:"motivation,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// DashboardStats feeds the editor analytics dashboard.
type DashboardStats struct {
	TotalArticles  int     `json:"totalArticles"`
	PendingReviews int     `json:"pendingReviews"`
	ActiveUsers    int     `json:"activeUsers"`
	AvgReviewDays  float64 `json:"avgReviewTime"`
}

type StatusCount struct {
	Status SubmissionStatus `json:"status"`
	Count  int              `json:"count"`
}
