// Package workflow defines the editorial state machine for submissions.
// It is pure: callers load the current state, ask for the next one and
// hand the resulting transition to the store.
package workflow

import (
	"errors"
	"fmt"

	"github.com/iliyamo/journal-portal/internal/model"
)

// ErrInvalidTransition is returned when an action is not allowed from the
// submission's current status.
var ErrInvalidTransition = errors.New("invalid status transition")

// Action is an editorial operation on a submission.
type Action string

const (
	ActionAssignReviewers Action = "assign_reviewers"
	ActionSettleReviews   Action = "settle_reviews"
	ActionAccept          Action = "accept"
	ActionReject          Action = "reject"
	ActionRequestRevision Action = "request_revision"
	ActionResubmit        Action = "resubmit"
	ActionPublish         Action = "publish"
)

type edge struct {
	from   model.SubmissionStatus
	action Action
}

var transitions = map[edge]model.SubmissionStatus{
	{model.StatusSubmitted, ActionAssignReviewers}:   model.StatusUnderReview,
	{model.StatusUnderReview, ActionAssignReviewers}: model.StatusUnderReview,
	{model.StatusUnderReview, ActionSettleReviews}:   model.StatusReviewed,

	{model.StatusReviewed, ActionAccept}:          model.StatusAccepted,
	{model.StatusReviewed, ActionRequestRevision}: model.StatusNeedsRevision,

	{model.StatusSubmitted, ActionReject}:     model.StatusRejected,
	{model.StatusUnderReview, ActionReject}:   model.StatusRejected,
	{model.StatusReviewed, ActionReject}:      model.StatusRejected,
	{model.StatusNeedsRevision, ActionReject}: model.StatusRejected,

	{model.StatusNeedsRevision, ActionResubmit}: model.StatusSubmitted,
	{model.StatusAccepted, ActionPublish}:       model.StatusPublished,
}

// Next returns the status reached by applying a to from.
func Next(from model.SubmissionStatus, a Action) (model.SubmissionStatus, error) {
	to, ok := transitions[edge{from, a}]
	if !ok {
		return "", fmt.Errorf("%w: cannot %s a submission that is %s", ErrInvalidTransition, a, from)
	}
	return to, nil
}

// Settled reports whether a review round is finished: no review is still
// awaited and at least one was completed.
func Settled(reviews []model.Review) bool {
	completed := 0
	for _, r := range reviews {
		if r.Status.Active() {
			return false
		}
		if r.Status == model.ReviewCompleted {
			completed++
		}
	}
	return completed > 0
}

// ValidRating checks that every supplied score lies in 1..5. Zero means
// the score was omitted.
func ValidRating(r *model.Rating) bool {
	if r == nil {
		return true
	}
	for _, v := range []int{r.Methodology, r.Results, r.Discussion, r.WritingQuality, r.Overall} {
		if v != 0 && (v < 1 || v > 5) {
			return false
		}
	}
	return true
}
