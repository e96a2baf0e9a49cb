package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/iliyamo/journal-portal/internal/model"
	"github.com/iliyamo/journal-portal/internal/workflow"
)

// SubmissionRepo owns submissions and their status history. Every status
// change goes through Apply.
type SubmissionRepo struct{ DB *sql.DB }

func NewSubmissionRepo(db *sql.DB) *SubmissionRepo { return &SubmissionRepo{DB: db} }

const submissionColumns = `s.id, s.author_id, s.editor_id, s.title, s.abstract, s.manuscript_type, s.keywords,
	s.authors, s.author_info, s.ethics, s.files, s.status, s.revision_round, s.rejection_reason,
	s.decision_notes, s.submitted_at, s.decided_at, s.updated_at`

func scanSubmission(rs rowScanner) (model.Submission, error) {
	var (
		s                              model.Submission
		editorID                       sql.NullInt64
		keywords, authors, info, files []byte
		ethics                         []byte
		status                         string
		reason, notes                  sql.NullString
		decided                        sql.NullTime
	)
	err := rs.Scan(&s.ID, &s.AuthorID, &editorID, &s.Title, &s.Abstract, &s.ManuscriptType, &keywords,
		&authors, &info, &ethics, &files, &status, &s.RevisionRound, &reason,
		&notes, &s.SubmittedAt, &decided, &s.UpdatedAt)
	if err != nil {
		return model.Submission{}, translate(err)
	}
	if editorID.Valid {
		id := uint64(editorID.Int64)
		s.EditorID = &id
	}
	s.Status = model.SubmissionStatus(status)
	s.RejectionReason = reason.String
	s.DecisionNotes = notes.String
	s.DecidedAt = timePtr(decided)
	if err := decodeJSON(keywords, &s.Keywords); err != nil {
		return model.Submission{}, err
	}
	if err := decodeJSON(authors, &s.Authors); err != nil {
		return model.Submission{}, err
	}
	if err := decodeJSON(files, &s.Files); err != nil {
		return model.Submission{}, err
	}
	if s.AuthorInfo, err = decodeJSONPtr[model.AuthorInfo](info); err != nil {
		return model.Submission{}, err
	}
	if s.Ethics, err = decodeJSONPtr[model.EthicsConsent](ethics); err != nil {
		return model.Submission{}, err
	}
	return s, nil
}

// Create inserts a new submission in status submitted together with its
// first history row, notifications and outbox events.
func (r *SubmissionRepo) Create(ctx context.Context, s *model.Submission, ns []model.Notification, evs []model.OutboxEvent) error {
	if s.Keywords == nil {
		s.Keywords = []string{}
	}
	if s.Authors == nil {
		s.Authors = []model.Coauthor{}
	}
	keywords, err := jsonArg(s.Keywords)
	if err != nil {
		return err
	}
	authors, err := jsonArg(s.Authors)
	if err != nil {
		return err
	}
	files, err := jsonArg(s.Files)
	if err != nil {
		return err
	}
	info, err := jsonOrNull(s.AuthorInfo)
	if err != nil {
		return err
	}
	ethics, err := jsonOrNull(s.Ethics)
	if err != nil {
		return err
	}

	return withTx(ctx, r.DB, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO submissions (author_id, title, abstract, manuscript_type, keywords, authors, author_info, ethics, files, status)
			 VALUES (?,?,?,?,?,?,?,?,?,?)`,
			s.AuthorID, s.Title, s.Abstract, s.ManuscriptType, keywords, authors, info, ethics, files,
			string(model.StatusSubmitted))
		if err != nil {
			return fmt.Errorf("insert submission: %w", translate(err))
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		s.ID = uint64(id)
		s.Status = model.StatusSubmitted
		if err := insertHistoryTx(ctx, tx, s.ID, "", model.StatusSubmitted, s.AuthorID, ""); err != nil {
			return err
		}
		for i := range ns {
			ns[i].Data.SubmissionID = s.ID
		}
		if err := insertNotificationsTx(ctx, tx, ns); err != nil {
			return err
		}
		return insertEventsTx(ctx, tx, evs)
	})
}

func (r *SubmissionRepo) GetByID(ctx context.Context, id uint64) (model.Submission, error) {
	return scanSubmission(r.DB.QueryRowContext(ctx,
		"SELECT "+submissionColumns+" FROM submissions s WHERE s.id=?", id))
}

// List applies f and returns one page plus the total match count.
func (r *SubmissionRepo) List(ctx context.Context, f model.SubmissionFilter) ([]model.Submission, int, error) {
	_, limit, offset := pageBounds(f.Page, f.Limit, 20, 100)
	var (
		conds []string
		args  []any
	)
	if f.Status != "" {
		conds = append(conds, "s.status=?")
		args = append(args, string(f.Status))
	}
	if f.AuthorID != 0 {
		conds = append(conds, "s.author_id=?")
		args = append(args, f.AuthorID)
	}
	if f.ReviewerID != 0 {
		conds = append(conds, `EXISTS (SELECT 1 FROM reviews rv WHERE rv.submission_id=s.id
			AND rv.reviewer_id=? AND rv.status<>'withdrawn')`)
		args = append(args, f.ReviewerID)
	}
	if f.EditorOrUnassigned != 0 {
		conds = append(conds, "(s.editor_id=? OR s.editor_id IS NULL)")
		args = append(args, f.EditorOrUnassigned)
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM submissions s"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+submissionColumns+" FROM submissions s"+where+" ORDER BY s.submitted_at DESC, s.id DESC LIMIT ? OFFSET ?",
		append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := []model.Submission{}
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, s)
	}
	return out, total, rows.Err()
}

// Apply executes t atomically. The submission row is locked and its
// status compared with t.From; a mismatch returns ErrConflict and nothing
// is written. It returns the status the submission ends up in, which can
// differ from t.To when SettleReviews promotes it to reviewed.
func (r *SubmissionRepo) Apply(ctx context.Context, t *model.Transition) (model.SubmissionStatus, error) {
	final := t.To
	err := withTx(ctx, r.DB, func(tx *sql.Tx) error {
		var (
			cur   string
			round int
		)
		if err := tx.QueryRowContext(ctx,
			"SELECT status, revision_round FROM submissions WHERE id=? FOR UPDATE",
			t.SubmissionID).Scan(&cur, &round); err != nil {
			return translate(err)
		}
		if model.SubmissionStatus(cur) != t.From {
			return ErrConflict
		}

		if err := updateSubmissionTx(ctx, tx, t); err != nil {
			return err
		}
		if t.BumpRevision {
			round++
		}
		if err := applyReviewChangesTx(ctx, tx, t, round); err != nil {
			return err
		}
		if t.Article != nil {
			if _, err := insertArticleTx(ctx, tx, t.Article); err != nil {
				if errors.Is(err, ErrDuplicate) {
					return ErrConflict
				}
				return err
			}
		}
		if t.PublishArticle {
			res, err := tx.ExecContext(ctx,
				"UPDATE articles SET status='published', published_at=NOW() WHERE submission_id=? AND status='approved'",
				t.SubmissionID)
			if err != nil {
				return err
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return ErrConflict
			}
		}
		if t.From != t.To || t.Note != "" {
			if err := insertHistoryTx(ctx, tx, t.SubmissionID, t.From, t.To, t.ActorID, t.Note); err != nil {
				return err
			}
		}
		if err := insertNotificationsTx(ctx, tx, t.Notifications); err != nil {
			return err
		}
		if err := insertEventsTx(ctx, tx, t.Events); err != nil {
			return err
		}

		if t.SettleReviews && t.To == model.StatusUnderReview {
			settled, err := roundSettledTx(ctx, tx, t.SubmissionID, round)
			if err != nil {
				return err
			}
			if settled {
				to, err := workflow.Next(model.StatusUnderReview, workflow.ActionSettleReviews)
				if err != nil {
					return err
				}
				if _, err := tx.ExecContext(ctx,
					"UPDATE submissions SET status=? WHERE id=?", string(to), t.SubmissionID); err != nil {
					return err
				}
				if err := insertHistoryTx(ctx, tx, t.SubmissionID, model.StatusUnderReview, to, t.ActorID, "all reviews in"); err != nil {
					return err
				}
				if t.OnSettled != nil {
					if err := insertNotificationsTx(ctx, tx, t.OnSettled.Notifications); err != nil {
						return err
					}
					if err := insertEventsTx(ctx, tx, t.OnSettled.Events); err != nil {
						return err
					}
				}
				final = to
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return final, nil
}

func updateSubmissionTx(ctx context.Context, tx *sql.Tx, t *model.Transition) error {
	sets := []string{"status=?"}
	args := []any{string(t.To)}
	if t.EditorID != nil {
		sets = append(sets, "editor_id=?")
		args = append(args, *t.EditorID)
	}
	if t.RejectionReason != nil {
		sets = append(sets, "rejection_reason=?")
		args = append(args, *t.RejectionReason)
	}
	if t.DecisionNotes != nil {
		sets = append(sets, "decision_notes=?")
		args = append(args, *t.DecisionNotes)
	}
	if t.Decided {
		sets = append(sets, "decided_at=NOW()")
	}
	if t.BumpRevision {
		sets = append(sets, "revision_round=revision_round+1")
	}
	if t.Files != nil {
		raw, err := jsonArg(t.Files)
		if err != nil {
			return err
		}
		sets = append(sets, "files=?")
		args = append(args, raw)
	}
	args = append(args, t.SubmissionID)
	_, err := tx.ExecContext(ctx, "UPDATE submissions SET "+strings.Join(sets, ", ")+" WHERE id=?", args...)
	return err
}

// assignReview inserts a pending review, or brings a withdrawn one for the
// same reviewer and round back to pending. MySQL applies the assignments
// left to right, so status is reset last. A row that is still active or
// already completed is left untouched and reports zero affected rows.
const assignReview = `
	INSERT INTO reviews (submission_id, reviewer_id, revision_round, status, due_date)
	VALUES (?,?,?,?,?)
	ON DUPLICATE KEY UPDATE
		id                = LAST_INSERT_ID(id),
		due_date          = IF(status='withdrawn', VALUES(due_date), due_date),
		recommendation    = IF(status='withdrawn', NULL, recommendation),
		comments          = IF(status='withdrawn', NULL, comments),
		detailed_comments = IF(status='withdrawn', NULL, detailed_comments),
		rating            = IF(status='withdrawn', NULL, rating),
		reviewer_notes    = IF(status='withdrawn', NULL, reviewer_notes),
		completed_at      = IF(status='withdrawn', NULL, completed_at),
		status            = IF(status='withdrawn', VALUES(status), status)`

func applyReviewChangesTx(ctx context.Context, tx *sql.Tx, t *model.Transition, round int) error {
	for i := range t.Assign {
		rv := &t.Assign[i]
		res, err := tx.ExecContext(ctx, assignReview,
			t.SubmissionID, rv.ReviewerID, round, string(model.ReviewPending), rv.DueDate)
		if err != nil {
			return fmt.Errorf("assign review: %w", translate(err))
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrConflict
		}
		id, _ := res.LastInsertId()
		rv.ID = uint64(id)
		rv.Round = round
		rv.Status = model.ReviewPending
	}
	for i := range t.Notifications {
		n := &t.Notifications[i]
		if n.Type != model.NotifyReviewAssigned || n.Data.ReviewID != 0 {
			continue
		}
		for _, rv := range t.Assign {
			if rv.ReviewerID == n.RecipientID {
				n.Data.ReviewID = rv.ID
			}
		}
	}

	if c := t.CompleteReview; c != nil {
		detailed, err := jsonOrNull(c.DetailedComments)
		if err != nil {
			return err
		}
		rating, err := jsonOrNull(c.Rating)
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE reviews SET status='completed', recommendation=?, comments=?, detailed_comments=?,
			        rating=?, reviewer_notes=?, completed_at=NOW()
			  WHERE id=? AND submission_id=? AND status IN ('pending','overdue')`,
			string(c.Recommendation), c.Comments, detailed, rating, c.ReviewerNotes, c.ID, t.SubmissionID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrConflict
		}
	}
	if t.WithdrawActive {
		if _, err := tx.ExecContext(ctx,
			"UPDATE reviews SET status='withdrawn' WHERE submission_id=? AND status IN ('pending','overdue')",
			t.SubmissionID); err != nil {
			return err
		}
	}
	if t.WithdrawReview != 0 {
		res, err := tx.ExecContext(ctx,
			"UPDATE reviews SET status='withdrawn' WHERE id=? AND submission_id=? AND status IN ('pending','overdue')",
			t.WithdrawReview, t.SubmissionID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrConflict
		}
	}
	return nil
}

// roundSettledTx locks the round's reviews and asks workflow whether the
// round is finished.
func roundSettledTx(ctx context.Context, tx *sql.Tx, submissionID uint64, round int) (bool, error) {
	rows, err := tx.QueryContext(ctx,
		"SELECT status FROM reviews WHERE submission_id=? AND revision_round=? FOR UPDATE",
		submissionID, round)
	if err != nil {
		return false, err
	}
	defer rows.Close()
	var reviews []model.Review
	for rows.Next() {
		var st string
		if err := rows.Scan(&st); err != nil {
			return false, err
		}
		reviews = append(reviews, model.Review{Status: model.ReviewStatus(st)})
	}
	if err := rows.Err(); err != nil {
		return false, err
	}
	return workflow.Settled(reviews), nil
}

func insertHistoryTx(ctx context.Context, tx *sql.Tx, id uint64, from, to model.SubmissionStatus, actor uint64, note string) error {
	var n any
	if note != "" {
		n = note
	}
	_, err := tx.ExecContext(ctx,
		"INSERT INTO submission_history (submission_id, from_status, to_status, actor_id, note) VALUES (?,?,?,?,?)",
		id, string(from), string(to), actor, n)
	if err != nil {
		return fmt.Errorf("insert history: %w", err)
	}
	return nil
}

// History returns the status changes of a submission, oldest first.
func (r *SubmissionRepo) History(ctx context.Context, id uint64) ([]model.HistoryEntry, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id, submission_id, from_status, to_status, actor_id, note, created_at
		   FROM submission_history WHERE submission_id=? ORDER BY created_at, id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.HistoryEntry{}
	for rows.Next() {
		var (
			h        model.HistoryEntry
			from, to string
			note     sql.NullString
		)
		if err := rows.Scan(&h.ID, &h.SubmissionID, &from, &to, &h.ActorID, &note, &h.CreatedAt); err != nil {
			return nil, err
		}
		h.From, h.To, h.Note = model.SubmissionStatus(from), model.SubmissionStatus(to), note.String
		out = append(out, h)
	}
	return out, rows.Err()
}

// CountByStatus groups all submissions by status.
func (r *SubmissionRepo) CountByStatus(ctx context.Context) ([]model.StatusCount, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT status, COUNT(*) FROM submissions GROUP BY status ORDER BY status")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.StatusCount{}
	for rows.Next() {
		var (
			sc     model.StatusCount
			status string
		)
		if err := rows.Scan(&status, &sc.Count); err != nil {
			return nil, err
		}
		sc.Status = model.SubmissionStatus(status)
		out = append(out, sc)
	}
	return out, rows.Err()
}
