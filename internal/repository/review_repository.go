package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/journal-portal/internal/model"
)

// ReviewRepo reads reviews. Reviews are created, completed and withdrawn
// through SubmissionRepo.Apply so the submission status moves with them.
type ReviewRepo struct{ DB *sql.DB }

func NewReviewRepo(db *sql.DB) *ReviewRepo { return &ReviewRepo{DB: db} }

const reviewColumns = `id, submission_id, reviewer_id, revision_round, status, recommendation, comments,
	detailed_comments, rating, reviewer_notes, due_date, completed_at, created_at, updated_at`

func scanReview(rs rowScanner) (model.Review, error) {
	var (
		rv                   model.Review
		status               string
		rec, comments, notes sql.NullString
		detailed, rating     []byte
		completed            sql.NullTime
	)
	err := rs.Scan(&rv.ID, &rv.SubmissionID, &rv.ReviewerID, &rv.Round, &status, &rec, &comments,
		&detailed, &rating, &notes, &rv.DueDate, &completed, &rv.CreatedAt, &rv.UpdatedAt)
	if err != nil {
		return model.Review{}, translate(err)
	}
	rv.Status = model.ReviewStatus(status)
	rv.Recommendation = model.Recommendation(rec.String)
	rv.Comments = comments.String
	rv.ReviewerNotes = notes.String
	rv.CompletedAt = timePtr(completed)
	if rv.DetailedComments, err = decodeJSONPtr[model.DetailedComments](detailed); err != nil {
		return model.Review{}, err
	}
	if rv.Rating, err = decodeJSONPtr[model.Rating](rating); err != nil {
		return model.Review{}, err
	}
	return rv, nil
}

func collectReviews(rows *sql.Rows) ([]model.Review, error) {
	defer rows.Close()
	out := []model.Review{}
	for rows.Next() {
		rv, err := scanReview(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rv)
	}
	return out, rows.Err()
}

func (r *ReviewRepo) GetByID(ctx context.Context, id uint64) (model.Review, error) {
	return scanReview(r.DB.QueryRowContext(ctx, "SELECT "+reviewColumns+" FROM reviews WHERE id=?", id))
}

// ListBySubmission returns every review of a submission across rounds.
func (r *ReviewRepo) ListBySubmission(ctx context.Context, submissionID uint64) ([]model.Review, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+reviewColumns+" FROM reviews WHERE submission_id=? ORDER BY revision_round, id", submissionID)
	if err != nil {
		return nil, err
	}
	return collectReviews(rows)
}

// ListByReviewer returns a reviewer's assignments, optionally by status.
func (r *ReviewRepo) ListByReviewer(ctx context.Context, reviewerID uint64, status model.ReviewStatus) ([]model.Review, error) {
	q := "SELECT " + reviewColumns + " FROM reviews WHERE reviewer_id=?"
	args := []any{reviewerID}
	if status != "" {
		q += " AND status=?"
		args = append(args, string(status))
	}
	rows, err := r.DB.QueryContext(ctx, q+" ORDER BY due_date, id", args...)
	if err != nil {
		return nil, err
	}
	return collectReviews(rows)
}

// ActiveFor returns the reviewer's pending or overdue review of the
// submission, or ErrNotFound.
func (r *ReviewRepo) ActiveFor(ctx context.Context, submissionID, reviewerID uint64) (model.Review, error) {
	return scanReview(r.DB.QueryRowContext(ctx,
		"SELECT "+reviewColumns+` FROM reviews WHERE submission_id=? AND reviewer_id=?
		   AND status IN ('pending','overdue') ORDER BY revision_round DESC LIMIT 1`,
		submissionID, reviewerID))
}

// IsAssigned reports whether the reviewer holds any non-withdrawn review
// of the submission.
func (r *ReviewRepo) IsAssigned(ctx context.Context, submissionID, reviewerID uint64) (bool, error) {
	var n int
	err := r.DB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM reviews WHERE submission_id=? AND reviewer_id=? AND status<>'withdrawn'",
		submissionID, reviewerID).Scan(&n)
	return n > 0, err
}

// MarkOverdue flips pending reviews whose due date passed to overdue, at
// most limit per call. effects builds the reminder batch for each review
// and is committed in the same transaction.
func (r *ReviewRepo) MarkOverdue(ctx context.Context, now time.Time, limit int, effects func(model.Review) model.SideEffects) (int, error) {
	marked := 0
	err := withTx(ctx, r.DB, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			"SELECT "+reviewColumns+` FROM reviews WHERE status='pending' AND due_date < ?
			   ORDER BY due_date LIMIT ? FOR UPDATE SKIP LOCKED`, now, limit)
		if err != nil {
			return err
		}
		due, err := collectReviews(rows)
		if err != nil {
			return err
		}
		for _, rv := range due {
			if _, err := tx.ExecContext(ctx,
				"UPDATE reviews SET status='overdue' WHERE id=? AND status='pending'", rv.ID); err != nil {
				return err
			}
			rv.Status = model.ReviewOverdue
			if effects != nil {
				fx := effects(rv)
				if err := insertNotificationsTx(ctx, tx, fx.Notifications); err != nil {
					return err
				}
				if err := insertEventsTx(ctx, tx, fx.Events); err != nil {
					return err
				}
			}
			marked++
		}
		return nil
	})
	return marked, err
}

func (r *ReviewRepo) CountActive(ctx context.Context) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM reviews WHERE status IN ('pending','overdue')").Scan(&n)
	return n, err
}

// AvgCompletionDays is the mean time from assignment to completion.
func (r *ReviewRepo) AvgCompletionDays(ctx context.Context) (float64, error) {
	var avg sql.NullFloat64
	err := r.DB.QueryRowContext(ctx,
		`SELECT AVG(TIMESTAMPDIFF(SECOND, created_at, completed_at)) / 86400
		   FROM reviews WHERE status='completed' AND completed_at IS NOT NULL`).Scan(&avg)
	if err != nil {
		return 0, err
	}
	return avg.Float64, nil
}
