package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/iliyamo/journal-portal/internal/apperr"
	"github.com/iliyamo/journal-portal/internal/model"
	"github.com/iliyamo/journal-portal/internal/repository"
	"github.com/iliyamo/journal-portal/internal/telemetry"
	"github.com/iliyamo/journal-portal/internal/workflow"
)

// SubmissionStore is the persistence the workflow needs.
type SubmissionStore interface {
	Create(ctx context.Context, s *model.Submission, ns []model.Notification, evs []model.OutboxEvent) error
	GetByID(ctx context.Context, id uint64) (model.Submission, error)
	List(ctx context.Context, f model.SubmissionFilter) ([]model.Submission, int, error)
	Apply(ctx context.Context, t *model.Transition) (model.SubmissionStatus, error)
	History(ctx context.Context, id uint64) ([]model.HistoryEntry, error)
}

type ReviewStore interface {
	GetByID(ctx context.Context, id uint64) (model.Review, error)
	ListBySubmission(ctx context.Context, submissionID uint64) ([]model.Review, error)
	ActiveFor(ctx context.Context, submissionID, reviewerID uint64) (model.Review, error)
	IsAssigned(ctx context.Context, submissionID, reviewerID uint64) (bool, error)
}

type UserDirectory interface {
	GetByID(ctx context.Context, id uint64) (model.User, error)
	ListByRole(ctx context.Context, role model.Role) ([]model.User, error)
}

type ArticleLookup interface {
	GetBySubmission(ctx context.Context, submissionID uint64) (model.Article, error)
}

// Viewer is the authenticated caller as far as visibility goes.
type Viewer struct {
	ID   uint64
	Role model.Role
}

func (v Viewer) isEditor() bool { return v.Role.Has(model.RoleEditor) }

// SubmissionService runs every editorial operation as one atomic
// transition: it reads the current status, asks workflow for the next one
// and hands the store a compare-and-set together with all side effects.
type SubmissionService struct {
	Subs     SubmissionStore
	Reviews  ReviewStore
	Users    UserDirectory
	Articles ArticleLookup
	DueDays  int
	Log      zerolog.Logger
	Now      func() time.Time

	tracer trace.Tracer
}

func NewSubmissionService(subs SubmissionStore, reviews ReviewStore, users UserDirectory, articles ArticleLookup, dueDays int, log zerolog.Logger) *SubmissionService {
	if dueDays <= 0 {
		dueDays = 21
	}
	return &SubmissionService{
		Subs: subs, Reviews: reviews, Users: users, Articles: articles,
		DueDays: dueDays, Log: log, Now: time.Now,
		tracer: telemetry.Tracer("journal-portal/submissions"),
	}
}

func (s *SubmissionService) span(ctx context.Context, name string, id uint64) (context.Context, trace.Span) {
	if s.tracer == nil {
		s.tracer = telemetry.Tracer("journal-portal/submissions")
	}
	return s.tracer.Start(ctx, name, trace.WithAttributes(attribute.Int64("submission.id", int64(id))))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// editorsFor returns the handling editor, or every editor while the
// submission is unassigned.
func (s *SubmissionService) editorsFor(ctx context.Context, sub model.Submission) ([]model.User, error) {
	if sub.EditorID != nil {
		u, err := s.Users.GetByID(ctx, *sub.EditorID)
		if err == nil {
			return []model.User{u}, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
	}
	return s.Users.ListByRole(ctx, model.RoleEditor)
}

// Submit stores a new submission and notifies the editors.
func (s *SubmissionService) Submit(ctx context.Context, authorID uint64, sub *model.Submission) (err error) {
	ctx, span := s.span(ctx, "submission.submit", 0)
	defer func() { endSpan(span, err) }()

	sub.AuthorID = authorID
	editors, err := s.Users.ListByRole(ctx, model.RoleEditor)
	if err != nil {
		return fmt.Errorf("list editors: %w", err)
	}
	ns, evs, err := BuildNotices(Notice{
		Type:    model.NotifyArticleSubmitted,
		Subject: "New submission received",
		Message: fmt.Sprintf("A new manuscript %q was submitted.", sub.Title),
	}, editors...)
	if err != nil {
		return err
	}
	if err := s.Subs.Create(ctx, sub, ns, evs); err != nil {
		return err
	}
	s.Log.Info().Uint64("submission_id", sub.ID).Uint64("author_id", authorID).Msg("submission created")
	return nil
}

// Get enforces visibility: editors see everything, authors their own
// submissions and reviewers the ones assigned to them.
func (s *SubmissionService) Get(ctx context.Context, v Viewer, id uint64) (model.Submission, error) {
	sub, err := s.Subs.GetByID(ctx, id)
	if err != nil {
		return model.Submission{}, err
	}
	if err := s.canView(ctx, v, sub); err != nil {
		return model.Submission{}, err
	}
	return sub, nil
}

func (s *SubmissionService) canView(ctx context.Context, v Viewer, sub model.Submission) error {
	if v.isEditor() || sub.AuthorID == v.ID {
		return nil
	}
	if v.Role.Has(model.RoleReviewer) {
		ok, err := s.Reviews.IsAssigned(ctx, sub.ID, v.ID)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
	return repository.ErrForbidden
}

// List scopes f to what the viewer may see.
func (s *SubmissionService) List(ctx context.Context, v Viewer, f model.SubmissionFilter) ([]model.Submission, int, error) {
	switch {
	case v.isEditor():
	case v.Role == model.RoleReviewer:
		f.ReviewerID = v.ID
	default:
		f.AuthorID = v.ID
	}
	return s.Subs.List(ctx, f)
}

// ListForDashboard is the manuscripts view: editors get their own plus
// unassigned submissions.
func (s *SubmissionService) ListForDashboard(ctx context.Context, v Viewer, page, limit int) ([]model.Submission, int, error) {
	f := model.SubmissionFilter{Page: page, Limit: limit}
	switch {
	case v.isEditor():
		f.EditorOrUnassigned = v.ID
	case v.Role == model.RoleReviewer:
		f.ReviewerID = v.ID
	default:
		f.AuthorID = v.ID
	}
	return s.Subs.List(ctx, f)
}

// AssignReviewers creates a pending review for every listed reviewer who
// has no active review yet and moves the submission to under_review. A
// reviewer whose review was withdrawn in the current round gets that
// review back.
func (s *SubmissionService) AssignReviewers(ctx context.Context, editorID, id uint64, reviewerIDs []uint64, dueInDays int) ([]model.Review, error) {
	return s.AssignWithEditor(ctx, editorID, 0, id, reviewerIDs, dueInDays)
}

// AssignWithEditor is AssignReviewers that also names the editor of record.
// With editorID zero the current editor stays, and an unassigned
// submission goes to the caller.
func (s *SubmissionService) AssignWithEditor(ctx context.Context, actorID, editorID, id uint64, reviewerIDs []uint64, dueInDays int) (_ []model.Review, err error) {
	ctx, span := s.span(ctx, "submission.assign_reviewers", id)
	defer func() { endSpan(span, err) }()

	if len(reviewerIDs) == 0 {
		return nil, apperr.Validation([]apperr.ValidationError{{Field: "reviewerIds", Message: "at least one reviewer is required"}})
	}
	if editorID != 0 {
		u, err := s.Users.GetByID(ctx, editorID)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return nil, apperr.Validation([]apperr.ValidationError{{Field: "editorId", Message: fmt.Sprintf("user %d does not exist", editorID)}})
		case err != nil:
			return nil, err
		}
		if !u.Role.Has(model.RoleEditor) {
			return nil, apperr.Validation([]apperr.ValidationError{{Field: "editorId", Message: fmt.Sprintf("user %d is not an editor", editorID)}})
		}
	}
	sub, err := s.Subs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	to, err := workflow.Next(sub.Status, workflow.ActionAssignReviewers)
	if err != nil {
		return nil, err
	}
	existing, err := s.Reviews.ListBySubmission(ctx, id)
	if err != nil {
		return nil, err
	}
	active := map[uint64]bool{}
	for _, r := range existing {
		if r.Round == sub.RevisionRound && r.Status != model.ReviewWithdrawn {
			active[r.ReviewerID] = true
		}
	}

	if dueInDays <= 0 {
		dueInDays = s.DueDays
	}
	due := s.Now().UTC().Add(time.Duration(dueInDays) * 24 * time.Hour)

	var (
		verrs     []apperr.ValidationError
		assign    []model.Review
		reviewers []model.User
	)
	for _, rid := range reviewerIDs {
		if active[rid] {
			continue
		}
		u, err := s.Users.GetByID(ctx, rid)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			verrs = append(verrs, apperr.ValidationError{Field: "reviewerIds", Message: fmt.Sprintf("user %d does not exist", rid)})
			continue
		case err != nil:
			return nil, err
		}
		if !u.Role.Has(model.RoleReviewer) {
			verrs = append(verrs, apperr.ValidationError{Field: "reviewerIds", Message: fmt.Sprintf("user %d is not a reviewer", rid)})
			continue
		}
		if rid == sub.AuthorID {
			verrs = append(verrs, apperr.ValidationError{Field: "reviewerIds", Message: "the author cannot review their own submission"})
			continue
		}
		active[rid] = true
		assign = append(assign, model.Review{SubmissionID: id, ReviewerID: rid, DueDate: due})
		reviewers = append(reviewers, u)
	}
	if len(verrs) > 0 {
		return nil, apperr.Validation(verrs)
	}
	if len(assign) == 0 {
		return nil, apperr.BadRequest("every listed reviewer is already assigned")
	}

	ns, evs, err := BuildNotices(Notice{
		Type:    model.NotifyReviewAssigned,
		Subject: "New review assignment",
		Message: fmt.Sprintf("You have been asked to review %q. Due %s.", sub.Title, due.Format("2006-01-02")),
		Path:    "/reviews",
		Data:    model.NotificationData{SubmissionID: id},
	}, reviewers...)
	if err != nil {
		return nil, err
	}
	t := &model.Transition{
		SubmissionID:  id,
		From:          sub.Status,
		To:            to,
		ActorID:       actorID,
		Note:          fmt.Sprintf("assigned %d reviewer(s)", len(assign)),
		Assign:        assign,
		Notifications: ns,
		Events:        evs,
	}
	switch {
	case editorID != 0:
		t.EditorID = &editorID
	case sub.EditorID == nil:
		t.EditorID = &actorID
	}
	if _, err := s.Subs.Apply(ctx, t); err != nil {
		return nil, err
	}
	return t.Assign, nil
}

// ReviewInput is what a reviewer submits.
type ReviewInput struct {
	Recommendation   model.Recommendation
	Comments         string
	DetailedComments *model.DetailedComments
	Rating           *model.Rating
	ReviewerNotes    string
}

func (in ReviewInput) validate() error {
	var verrs []apperr.ValidationError
	if strings.TrimSpace(in.Comments) == "" {
		verrs = append(verrs, apperr.ValidationError{Field: "comments", Message: "comments are required"})
	}
	if in.Recommendation == "" {
		verrs = append(verrs, apperr.ValidationError{Field: "recommendation", Message: "recommendation is required"})
	}
	if !workflow.ValidRating(in.Rating) {
		verrs = append(verrs, apperr.ValidationError{Field: "rating", Message: "ratings must be between 1 and 5"})
	}
	if len(verrs) > 0 {
		return apperr.Validation(verrs)
	}
	return nil
}

// SubmitReview completes the reviewer's active review. When it was the
// last one outstanding the submission moves to reviewed in the same
// transaction. It returns the submission's resulting status.
func (s *SubmissionService) SubmitReview(ctx context.Context, reviewerID, id uint64, in ReviewInput) (_ model.SubmissionStatus, err error) {
	ctx, span := s.span(ctx, "submission.submit_review", id)
	defer func() { endSpan(span, err) }()

	if err := in.validate(); err != nil {
		return "", err
	}
	sub, err := s.Subs.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	rv, err := s.Reviews.ActiveFor(ctx, id, reviewerID)
	if errors.Is(err, repository.ErrNotFound) {
		return "", apperr.Forbidden("you have no open review for this submission")
	}
	if err != nil {
		return "", err
	}
	if sub.Status != model.StatusUnderReview {
		return "", fmt.Errorf("%w: submission is %s", workflow.ErrInvalidTransition, sub.Status)
	}

	rv.Recommendation = in.Recommendation
	rv.Comments = in.Comments
	rv.DetailedComments = in.DetailedComments
	rv.Rating = in.Rating
	rv.ReviewerNotes = in.ReviewerNotes

	t := &model.Transition{
		SubmissionID:   id,
		From:           sub.Status,
		To:             sub.Status,
		ActorID:        reviewerID,
		CompleteReview: &rv,
		SettleReviews:  true,
	}
	if err := s.attachSettled(ctx, t, sub); err != nil {
		return "", err
	}
	return s.Subs.Apply(ctx, t)
}

// WithdrawReview cancels an outstanding review, which can settle the
// round just like a completed review.
func (s *SubmissionService) WithdrawReview(ctx context.Context, editorID, reviewID uint64) (_ model.SubmissionStatus, err error) {
	rv, err := s.Reviews.GetByID(ctx, reviewID)
	if err != nil {
		return "", err
	}
	ctx, span := s.span(ctx, "submission.withdraw_review", rv.SubmissionID)
	defer func() { endSpan(span, err) }()

	if !rv.Status.Active() {
		return "", apperr.Conflict("review is no longer outstanding")
	}
	sub, err := s.Subs.GetByID(ctx, rv.SubmissionID)
	if err != nil {
		return "", err
	}
	t := &model.Transition{
		SubmissionID:   sub.ID,
		From:           sub.Status,
		To:             sub.Status,
		ActorID:        editorID,
		WithdrawReview: rv.ID,
		SettleReviews:  sub.Status == model.StatusUnderReview,
	}
	if t.SettleReviews {
		if err := s.attachSettled(ctx, t, sub); err != nil {
			return "", err
		}
	}
	return s.Subs.Apply(ctx, t)
}

func (s *SubmissionService) attachSettled(ctx context.Context, t *model.Transition, sub model.Submission) error {
	editors, err := s.editorsFor(ctx, sub)
	if err != nil {
		return err
	}
	ns, evs, err := BuildNotices(Notice{
		Type:    model.NotifyArticleReviewed,
		Subject: "Reviews complete",
		Message: fmt.Sprintf("All reviews for %q are in and it is ready for a decision.", sub.Title),
		Path:    submissionPath(sub.ID),
		Data:    model.NotificationData{SubmissionID: sub.ID},
	}, editors...)
	if err != nil {
		return err
	}
	t.OnSettled = &model.SideEffects{Notifications: ns, Events: evs}
	return nil
}

// decide applies an editor decision that notifies the author.
func (s *SubmissionService) decide(ctx context.Context, sub model.Submission, action workflow.Action, t *model.Transition, n Notice) error {
	to, err := workflow.Next(sub.Status, action)
	if err != nil {
		return err
	}
	author, err := s.Users.GetByID(ctx, sub.AuthorID)
	if err != nil {
		return fmt.Errorf("load author: %w", err)
	}
	if n.Data.SubmissionID == 0 {
		n.Data.SubmissionID = sub.ID
	}
	if n.Path == "" {
		n.Path = submissionPath(sub.ID)
	}
	ns, evs, err := BuildNotices(n, author)
	if err != nil {
		return err
	}
	t.SubmissionID, t.From, t.To = sub.ID, sub.Status, to
	t.Notifications = append(t.Notifications, ns...)
	t.Events = append(t.Events, evs...)
	_, err = s.Subs.Apply(ctx, t)
	return err
}

// Approve accepts a reviewed submission and creates its article in the
// same transaction. A concurrent second approve fails with ErrConflict.
func (s *SubmissionService) Approve(ctx context.Context, editorID, id uint64, notes string) (_ model.Article, err error) {
	ctx, span := s.span(ctx, "submission.approve", id)
	defer func() { endSpan(span, err) }()

	sub, err := s.Subs.GetByID(ctx, id)
	if err != nil {
		return model.Article{}, err
	}
	author, err := s.Users.GetByID(ctx, sub.AuthorID)
	if err != nil {
		return model.Article{}, fmt.Errorf("load author: %w", err)
	}
	art := model.ArticleFromSubmission(sub, author)
	t := &model.Transition{
		ActorID:        editorID,
		Note:           notes,
		Decided:        true,
		Article:        &art,
		WithdrawActive: true,
	}
	if notes != "" {
		t.DecisionNotes = &notes
	}
	err = s.decide(ctx, sub, workflow.ActionAccept, t, Notice{
		Type:    model.NotifyArticleApproved,
		Subject: "Your submission was accepted",
		Message: fmt.Sprintf("Congratulations, %q has been accepted for publication.", sub.Title),
	})
	if err != nil {
		return model.Article{}, err
	}
	s.Log.Info().Uint64("submission_id", id).Uint64("article_id", art.ID).Uint64("editor_id", editorID).Msg("submission approved")
	return art, nil
}

func (s *SubmissionService) Reject(ctx context.Context, editorID, id uint64, reason string) (err error) {
	ctx, span := s.span(ctx, "submission.reject", id)
	defer func() { endSpan(span, err) }()

	reason = strings.TrimSpace(reason)
	if reason == "" {
		return apperr.Validation([]apperr.ValidationError{{Field: "rejectionReason", Message: "a reason is required"}})
	}
	sub, err := s.Subs.GetByID(ctx, id)
	if err != nil {
		return err
	}
	return s.decide(ctx, sub, workflow.ActionReject, &model.Transition{
		ActorID:         editorID,
		Note:            reason,
		Decided:         true,
		RejectionReason: &reason,
		WithdrawActive:  true,
	}, Notice{
		Type:    model.NotifyArticleRejected,
		Subject: "Decision on your submission",
		Message: fmt.Sprintf("%q was not accepted. Reason: %s", sub.Title, reason),
	})
}

func (s *SubmissionService) RequestRevision(ctx context.Context, editorID, id uint64, comments string) (err error) {
	ctx, span := s.span(ctx, "submission.request_revision", id)
	defer func() { endSpan(span, err) }()

	comments = strings.TrimSpace(comments)
	if comments == "" {
		return apperr.Validation([]apperr.ValidationError{{Field: "comments", Message: "revision comments are required"}})
	}
	sub, err := s.Subs.GetByID(ctx, id)
	if err != nil {
		return err
	}
	return s.decide(ctx, sub, workflow.ActionRequestRevision, &model.Transition{
		ActorID:       editorID,
		Note:          comments,
		DecisionNotes: &comments,
	}, Notice{
		Type:    model.NotifyRevision,
		Subject: "Revision requested",
		Message: fmt.Sprintf("The editor asked for a revision of %q: %s", sub.Title, comments),
	})
}

// Resubmit replaces the manuscript of a submission that needs revision
// and starts a new review round.
func (s *SubmissionService) Resubmit(ctx context.Context, authorID, id uint64, files model.SubmissionFiles) (err error) {
	ctx, span := s.span(ctx, "submission.resubmit", id)
	defer func() { endSpan(span, err) }()

	sub, err := s.Subs.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if sub.AuthorID != authorID {
		return repository.ErrForbidden
	}
	to, err := workflow.Next(sub.Status, workflow.ActionResubmit)
	if err != nil {
		return err
	}
	merged := sub.Files
	merged.Manuscript = files.Manuscript
	if len(files.Figures) > 0 {
		merged.Figures = files.Figures
	}
	if len(files.Supplementary) > 0 {
		merged.Supplementary = files.Supplementary
	}
	if files.CoverLetter != "" {
		merged.CoverLetter = files.CoverLetter
	}

	editors, err := s.editorsFor(ctx, sub)
	if err != nil {
		return err
	}
	ns, evs, err := BuildNotices(Notice{
		Type:    model.NotifyArticleSubmitted,
		Subject: "Revised manuscript received",
		Message: fmt.Sprintf("The author resubmitted %q (round %d).", sub.Title, sub.RevisionRound+1),
		Path:    submissionPath(id),
		Data:    model.NotificationData{SubmissionID: id},
	}, editors...)
	if err != nil {
		return err
	}
	_, err = s.Subs.Apply(ctx, &model.Transition{
		SubmissionID:  id,
		From:          sub.Status,
		To:            to,
		ActorID:       authorID,
		Note:          "revision submitted",
		BumpRevision:  true,
		Files:         &merged,
		Notifications: ns,
		Events:        evs,
	})
	return err
}

// Publish marks an accepted submission and its article as published.
func (s *SubmissionService) Publish(ctx context.Context, actorID, id uint64) (err error) {
	ctx, span := s.span(ctx, "submission.publish", id)
	defer func() { endSpan(span, err) }()

	sub, err := s.Subs.GetByID(ctx, id)
	if err != nil {
		return err
	}
	art, err := s.Articles.GetBySubmission(ctx, id)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return err
	}
	return s.decide(ctx, sub, workflow.ActionPublish, &model.Transition{
		ActorID:        actorID,
		PublishArticle: true,
	}, Notice{
		Type:    model.NotifyArticlePublished,
		Subject: "Your article is published",
		Message: fmt.Sprintf("%q is now published.", sub.Title),
		Path:    fmt.Sprintf("/articles/%d", art.ID),
		Data:    model.NotificationData{SubmissionID: id, ArticleID: art.ID},
	})
}

// ReviewsFor returns a submission's reviews. Editors see everything; the
// author sees completed reviews without the confidential notes.
func (s *SubmissionService) ReviewsFor(ctx context.Context, v Viewer, id uint64) ([]model.Review, error) {
	sub, err := s.Subs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	all, err := s.Reviews.ListBySubmission(ctx, id)
	if err != nil {
		return nil, err
	}
	if v.isEditor() {
		return all, nil
	}
	if sub.AuthorID != v.ID {
		return nil, repository.ErrForbidden
	}
	out := make([]model.Review, 0, len(all))
	for _, r := range all {
		if r.Status == model.ReviewCompleted {
			out = append(out, r.ForAuthor())
		}
	}
	return out, nil
}

func (s *SubmissionService) History(ctx context.Context, v Viewer, id uint64) ([]model.HistoryEntry, error) {
	if _, err := s.Get(ctx, v, id); err != nil {
		return nil, err
	}
	return s.Subs.History(ctx, id)
}
