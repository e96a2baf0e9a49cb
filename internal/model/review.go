package model

import "time"

type ReviewStatus string

const (
	ReviewPending   ReviewStatus = "pending"
	ReviewCompleted ReviewStatus = "completed"
	ReviewOverdue   ReviewStatus = "overdue"
	ReviewWithdrawn ReviewStatus = "withdrawn"
)

// Active reports whether the review still awaits the reviewer.
func (s ReviewStatus) Active() bool { return s == ReviewPending || s == ReviewOverdue }

type Recommendation string

const (
	RecommendAccept        Recommendation = "accept"
	RecommendMinorRevision Recommendation = "minor-revision"
	RecommendMajorRevision Recommendation = "major-revision"
	RecommendReject        Recommendation = "reject"
)

// ParseRecommendation accepts the canonical values plus the loose
// spellings older clients send ("minor revisions", "major_revision").
func ParseRecommendation(s string) (Recommendation, bool) {
	switch s {
	case "accept", "accepted":
		return RecommendAccept, true
	case "minor-revision", "minor revisions", "minor_revision", "minor-revisions":
		return RecommendMinorRevision, true
	case "major-revision", "major revisions", "major_revision", "major-revisions":
		return RecommendMajorRevision, true
	case "reject", "rejected":
		return RecommendReject, true
	}
	return "", false
}

type Rating struct {
	Methodology    int `json:"methodology,omitempty"`
	Results        int `json:"results,omitempty"`
	Discussion     int `json:"discussion,omitempty"`
	WritingQuality int `json:"writingQuality,omitempty"`
	Overall        int `json:"overall,omitempty"`
}

type DetailedComments struct {
	Methodology     string `json:"methodology,omitempty"`
	Results         string `json:"results,omitempty"`
	Discussion      string `json:"discussion,omitempty"`
	WritingQuality  string `json:"writingQuality,omitempty"`
	EthicalConcerns string `json:"ethicalConcerns,omitempty"`
}

type Review struct {
	ID               uint64            `json:"id"`
	SubmissionID     uint64            `json:"submissionId"`
	ReviewerID       uint64            `json:"reviewerId"`
	Round            int               `json:"revisionRound"`
	Status           ReviewStatus      `json:"status"`
	Recommendation   Recommendation    `json:"recommendation,omitempty"`
	Comments         string            `json:"comments,omitempty"`
	DetailedComments *DetailedComments `json:"detailedComments,omitempty"`
	Rating           *Rating           `json:"rating,omitempty"`
	ReviewerNotes    string            `json:"reviewerNotes,omitempty"`
	DueDate          time.Time         `json:"dueDate"`
	CompletedAt      *time.Time        `json:"completedAt,omitempty"`
	CreatedAt        time.Time         `json:"createdAt"`
	UpdatedAt        time.Time         `json:"updatedAt"`
}

// ForAuthor strips the confidential notes meant for the editor.
func (r Review) ForAuthor() Review {
	r.ReviewerNotes = ""
	return r
}
