package model

import "time"

// SubmissionStatus is the editorial state of a manuscript.
type SubmissionStatus string

const (
	StatusSubmitted     SubmissionStatus = "submitted"
	StatusUnderReview   SubmissionStatus = "under_review"
	StatusReviewed      SubmissionStatus = "reviewed"
	StatusNeedsRevision SubmissionStatus = "needs_revision"
	StatusAccepted      SubmissionStatus = "accepted"
	StatusRejected      SubmissionStatus = "rejected"
	StatusPublished     SubmissionStatus = "published"
)

// ParseSubmissionStatus reports whether s names a known status.
func ParseSubmissionStatus(s string) (SubmissionStatus, bool) {
	st := SubmissionStatus(s)
	switch st {
	case StatusSubmitted, StatusUnderReview, StatusReviewed, StatusNeedsRevision,
		StatusAccepted, StatusRejected, StatusPublished:
		return st, true
	}
	return "", false
}

type Coauthor struct {
	Name         string   `json:"name"`
	ORCID        string   `json:"orcid,omitempty"`
	Contribution []string `json:"contribution,omitempty"`
}

type AuthorInfo struct {
	FullName     string `json:"fullName,omitempty"`
	Title        string `json:"title,omitempty"`
	Gender       string `json:"gender,omitempty"`
	DOB          string `json:"dob,omitempty"`
	PrimaryEmail string `json:"primaryEmail,omitempty"`
	ORCID        string `json:"orcid,omitempty"`
	Affiliation  string `json:"affiliation,omitempty"`
}

type EthicsConsent struct {
	EthicsApproval          bool   `json:"ethicsApproval"`
	EthicsDocumentURL       string `json:"ethicsDocumentUrl,omitempty"`
	InformedConsent         bool   `json:"informedConsent"`
	PatientConsentStatement string `json:"patientConsentStatement,omitempty"`
}

// SubmissionFiles holds upload paths relative to the upload root.
type SubmissionFiles struct {
	Manuscript    string   `json:"manuscriptUrl"`
	Figures       []string `json:"figuresUrls,omitempty"`
	Supplementary []string `json:"supplementaryUrls,omitempty"`
	CoverLetter   string   `json:"coverLetterUrl,omitempty"`
}

// All returns every stored path, used to clean up after a failed insert.
func (f SubmissionFiles) All() []string {
	out := make([]string, 0, 2+len(f.Figures)+len(f.Supplementary))
	if f.Manuscript != "" {
		out = append(out, f.Manuscript)
	}
	out = append(out, f.Figures...)
	out = append(out, f.Supplementary...)
	if f.CoverLetter != "" {
		out = append(out, f.CoverLetter)
	}
	return out
}

type Submission struct {
	ID              uint64           `json:"id"`
	AuthorID        uint64           `json:"authorId"`
	EditorID        *uint64          `json:"editorId,omitempty"`
	Title           string           `json:"title"`
	Abstract        string           `json:"abstract"`
	ManuscriptType  string           `json:"manuscriptType"`
	Keywords        []string         `json:"keywords"`
	Authors         []Coauthor       `json:"authors"`
	AuthorInfo      *AuthorInfo      `json:"authorInfo,omitempty"`
	Ethics          *EthicsConsent   `json:"ethics,omitempty"`
	Files           SubmissionFiles  `json:"files"`
	Status          SubmissionStatus `json:"status"`
	RevisionRound   int              `json:"revisionRound"`
	RejectionReason string           `json:"rejectionReason,omitempty"`
	DecisionNotes   string           `json:"decisionNotes,omitempty"`
	SubmittedAt     time.Time        `json:"submittedAt"`
	DecidedAt       *time.Time       `json:"decidedAt,omitempty"`
	UpdatedAt       time.Time        `json:"updatedAt"`
}

// SubmissionFilter narrows submission listings. Zero fields match all.
type SubmissionFilter struct {
	Status     SubmissionStatus
	AuthorID   uint64
	ReviewerID uint64
	// EditorOrUnassigned lists submissions handled by this editor plus
	// those nobody has picked up yet.
	EditorOrUnassigned uint64
	Page               int
	Limit              int
}

// HistoryEntry is one row of submission_history.
type HistoryEntry struct {
	ID           uint64           `json:"id"`
	SubmissionID uint64           `json:"submissionId"`
	From         SubmissionStatus `json:"from"`
	To           SubmissionStatus `json:"to"`
	ActorID      uint64           `json:"actorId"`
	Note         string           `json:"note,omitempty"`
	CreatedAt    time.Time        `json:"createdAt"`
}

// Transition is one atomic change to a submission. The store applies it
// as a compare-and-set on From inside a single transaction together with
// every side effect listed here.
type Transition struct {
	SubmissionID uint64
	From         SubmissionStatus
	To           SubmissionStatus
	ActorID      uint64
	Note         string

	EditorID        *uint64
	RejectionReason *string
	DecisionNotes   *string
	Decided         bool
	BumpRevision    bool
	Files           *SubmissionFiles

	Assign         []Review
	CompleteReview *Review
	WithdrawReview uint64
	// WithdrawActive withdraws every review still awaited, used when a
	// decision makes them moot.
	WithdrawActive bool

	Article        *Article
	PublishArticle bool

	Notifications []Notification
	Events        []OutboxEvent

	// SettleReviews promotes under_review to reviewed when, after the
	// review changes above, no pending or overdue review remains and at
	// least one is completed. OnSettled is applied only if that happens.
	SettleReviews bool
	OnSettled     *SideEffects
}

// SideEffects is a conditional batch of notifications and events.
type SideEffects struct {
	Notifications []Notification
	Events        []OutboxEvent
}
