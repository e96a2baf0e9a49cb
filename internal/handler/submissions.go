package handler

import (
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/iliyamo/journal-portal/internal/apperr"
	"github.com/iliyamo/journal-portal/internal/middleware"
	"github.com/iliyamo/journal-portal/internal/model"
	"github.com/iliyamo/journal-portal/internal/service"
	"github.com/iliyamo/journal-portal/internal/storage"
	"github.com/iliyamo/journal-portal/internal/utils"
)

// Workflow is the editorial service behind the submission endpoints.
type Workflow interface {
	Submit(ctx context.Context, authorID uint64, sub *model.Submission) error
	Get(ctx context.Context, v service.Viewer, id uint64) (model.Submission, error)
	List(ctx context.Context, v service.Viewer, f model.SubmissionFilter) ([]model.Submission, int, error)
	ListForDashboard(ctx context.Context, v service.Viewer, page, limit int) ([]model.Submission, int, error)
	AssignReviewers(ctx context.Context, editorID, id uint64, reviewerIDs []uint64, dueInDays int) ([]model.Review, error)
	AssignWithEditor(ctx context.Context, actorID, editorID, id uint64, reviewerIDs []uint64, dueInDays int) ([]model.Review, error)
	SubmitReview(ctx context.Context, reviewerID, id uint64, in service.ReviewInput) (model.SubmissionStatus, error)
	WithdrawReview(ctx context.Context, editorID, reviewID uint64) (model.SubmissionStatus, error)
	Approve(ctx context.Context, editorID, id uint64, notes string) (model.Article, error)
	Reject(ctx context.Context, editorID, id uint64, reason string) error
	RequestRevision(ctx context.Context, editorID, id uint64, comments string) error
	Resubmit(ctx context.Context, authorID, id uint64, files model.SubmissionFiles) error
	Publish(ctx context.Context, actorID, id uint64) error
	ReviewsFor(ctx context.Context, v service.Viewer, id uint64) ([]model.Review, error)
	History(ctx context.Context, v service.Viewer, id uint64) ([]model.HistoryEntry, error)
}

// SubmissionHandler serves /api/submissions and the /api/manuscripts
// dashboard facade. Purge, when set, drops cached public article
// listings after a publication.
type SubmissionHandler struct {
	Flow       Workflow
	ReviewList ReviewLister
	Files      *storage.Store
	Purge      func(ctx context.Context) error
	Log        zerolog.Logger
}

func NewSubmissionHandler(flow Workflow, reviews ReviewLister, files *storage.Store, purge func(context.Context) error, log zerolog.Logger) *SubmissionHandler {
	return &SubmissionHandler{Flow: flow, ReviewList: reviews, Files: files, Purge: purge, Log: log}
}

func viewer(c echo.Context) service.Viewer {
	return service.Viewer{ID: middleware.UserID(c), Role: middleware.Role(c)}
}

func (h *SubmissionHandler) purge(ctx context.Context) {
	if h.Purge == nil {
		return
	}
	if err := h.Purge(ctx); err != nil {
		h.Log.Warn().Err(err).Msg("article cache purge failed")
	}
}

// formFiles returns the files posted under name, or nil.
func formFiles(form *multipart.Form, name string) []*multipart.FileHeader {
	if form == nil {
		return nil
	}
	return form.File[name]
}

// jsonField decodes an optional JSON form value into dst.
func jsonField(c echo.Context, name string, dst any) *apperr.ValidationError {
	raw := strings.TrimSpace(c.FormValue(name))
	if raw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return &apperr.ValidationError{Field: name, Message: "must be valid JSON"}
	}
	return nil
}

// keywordsField accepts either a JSON array or a comma separated list.
func keywordsField(raw string) []string {
	raw = strings.TrimSpace(raw)
	var list []string
	if strings.HasPrefix(raw, "[") && json.Unmarshal([]byte(raw), &list) == nil {
		return list
	}
	return utils.SplitList(raw)
}

// saveFiles stores the manuscript plus optional attachments. On error
// nothing is left on disk.
func (h *SubmissionHandler) saveFiles(c echo.Context, manuscriptField string, requireManuscript bool) (model.SubmissionFiles, error) {
	var files model.SubmissionFiles
	form, _ := c.MultipartForm()
	main := formFiles(form, manuscriptField)
	if len(main) == 0 {
		if requireManuscript {
			return files, apperr.Validation([]apperr.ValidationError{{Field: manuscriptField, Message: "manuscript file is required"}})
		}
		return files, nil
	}

	var saved []string
	fail := func(err error) (model.SubmissionFiles, error) {
		h.Files.Remove(saved...)
		return model.SubmissionFiles{}, err
	}
	name, err := h.Files.Save(main[0])
	if err != nil {
		return fail(err)
	}
	saved = append(saved, name)
	files.Manuscript = storage.URL(name)

	for field, dst := range map[string]*[]string{"figures": &files.Figures, "supplementary": &files.Supplementary} {
		names, err := h.Files.SaveAll(formFiles(form, field))
		if err != nil {
			return fail(err)
		}
		saved = append(saved, names...)
		for _, n := range names {
			*dst = append(*dst, storage.URL(n))
		}
	}
	if cl := formFiles(form, "coverLetter"); len(cl) > 0 {
		name, err := h.Files.Save(cl[0])
		if err != nil {
			return fail(err)
		}
		saved = append(saved, name)
		files.CoverLetter = storage.URL(name)
	}
	return files, nil
}

// Create accepts a multipart submission from an author.
func (h *SubmissionHandler) Create(c echo.Context) error {
	sub := model.Submission{
		Title:          strings.TrimSpace(c.FormValue("title")),
		Abstract:       strings.TrimSpace(c.FormValue("abstract")),
		ManuscriptType: strings.TrimSpace(c.FormValue("manuscriptType")),
		Keywords:       keywordsField(c.FormValue("keywords")),
	}
	errs := required(map[string]string{"title": sub.Title, "abstract": sub.Abstract})
	var info model.AuthorInfo
	var ethics model.EthicsConsent
	for name, dst := range map[string]any{"authors": &sub.Authors, "authorInfo": &info, "ethics": &ethics} {
		if ve := jsonField(c, name, dst); ve != nil {
			errs = append(errs, *ve)
		}
	}
	if len(errs) > 0 {
		return apperr.Validation(errs)
	}
	if c.FormValue("authorInfo") != "" {
		sub.AuthorInfo = &info
	}
	if c.FormValue("ethics") != "" {
		sub.Ethics = &ethics
	}
	return h.create(c, &sub, "manuscript")
}

func (h *SubmissionHandler) create(c echo.Context, sub *model.Submission, fileField string) error {
	files, err := h.saveFiles(c, fileField, true)
	if err != nil {
		return err
	}
	sub.Files = files

	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.Flow.Submit(ctx, middleware.UserID(c), sub); err != nil {
		h.Files.Remove(files.All()...)
		return err
	}
	return ok(c, http.StatusCreated, sub)
}

func (h *SubmissionHandler) List(c echo.Context) error {
	f := model.SubmissionFilter{Page: queryInt(c, "page", 1), Limit: queryInt(c, "limit", 20)}
	if raw := c.QueryParam("status"); raw != "" {
		st, valid := model.ParseSubmissionStatus(raw)
		if !valid {
			return apperr.Validation([]apperr.ValidationError{{Field: "status", Message: "unknown status"}})
		}
		f.Status = st
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	subs, total, err := h.Flow.List(ctx, viewer(c), f)
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, echo.Map{"submissions": subs, "total": total, "page": f.Page, "limit": f.Limit})
}

func (h *SubmissionHandler) Get(c echo.Context) error {
	id, err := pathID(c, "id", "submission")
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	sub, err := h.Flow.Get(ctx, viewer(c), id)
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, sub)
}

type assignReq struct {
	ReviewerIDs []uint64 `json:"reviewerIds"`
	DueInDays   int      `json:"dueInDays"`
}

func (h *SubmissionHandler) AssignReviewers(c echo.Context) error {
	id, err := pathID(c, "id", "submission")
	if err != nil {
		return err
	}
	var req assignReq
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	return h.assign(c, id, req)
}

func (h *SubmissionHandler) assign(c echo.Context, id uint64, req assignReq) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	reviews, err := h.Flow.AssignReviewers(ctx, middleware.UserID(c), id, req.ReviewerIDs, req.DueInDays)
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, echo.Map{"submissionId": id, "reviews": reviews})
}

func (h *SubmissionHandler) Reviews(c echo.Context) error {
	id, err := pathID(c, "id", "submission")
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	reviews, err := h.Flow.ReviewsFor(ctx, viewer(c), id)
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, reviews)
}

type decisionReq struct {
	Notes           string `json:"decisionNotes"`
	RejectionReason string `json:"rejectionReason"`
	Comments        string `json:"comments"`
}

func (h *SubmissionHandler) Approve(c echo.Context) error {
	id, err := pathID(c, "id", "submission")
	if err != nil {
		return err
	}
	var req decisionReq
	_ = c.Bind(&req)
	ctx, cancel := reqCtx(c)
	defer cancel()
	art, err := h.Flow.Approve(ctx, middleware.UserID(c), id, strings.TrimSpace(req.Notes))
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, echo.Map{"submissionId": id, "status": model.StatusAccepted, "article": art})
}

func (h *SubmissionHandler) Reject(c echo.Context) error {
	id, err := pathID(c, "id", "submission")
	if err != nil {
		return err
	}
	var req decisionReq
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.Flow.Reject(ctx, middleware.UserID(c), id, req.RejectionReason); err != nil {
		return err
	}
	return ok(c, http.StatusOK, echo.Map{"submissionId": id, "status": model.StatusRejected})
}

func (h *SubmissionHandler) RequestRevision(c echo.Context) error {
	id, err := pathID(c, "id", "submission")
	if err != nil {
		return err
	}
	var req decisionReq
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.Flow.RequestRevision(ctx, middleware.UserID(c), id, req.Comments); err != nil {
		return err
	}
	return ok(c, http.StatusOK, echo.Map{"submissionId": id, "status": model.StatusNeedsRevision})
}

// Revision uploads a revised manuscript from the owning author.
func (h *SubmissionHandler) Revision(c echo.Context) error {
	id, err := pathID(c, "id", "submission")
	if err != nil {
		return err
	}
	files, err := h.saveFiles(c, "manuscript", true)
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.Flow.Resubmit(ctx, middleware.UserID(c), id, files); err != nil {
		h.Files.Remove(files.All()...)
		return err
	}
	return ok(c, http.StatusOK, echo.Map{"submissionId": id, "status": model.StatusSubmitted, "files": files})
}

func (h *SubmissionHandler) Publish(c echo.Context) error {
	id, err := pathID(c, "id", "submission")
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.Flow.Publish(ctx, middleware.UserID(c), id); err != nil {
		return err
	}
	h.purge(ctx)
	return ok(c, http.StatusOK, echo.Map{"submissionId": id, "status": model.StatusPublished})
}

func (h *SubmissionHandler) History(c echo.Context) error {
	id, err := pathID(c, "id", "submission")
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	rows, err := h.Flow.History(ctx, viewer(c), id)
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, rows)
}

// ----- reviews -----

type ReviewLister interface {
	ListByReviewer(ctx context.Context, reviewerID uint64, status model.ReviewStatus) ([]model.Review, error)
}

type submitReviewReq struct {
	SubmissionID     uint64                  `json:"submissionId"`
	Comments         string                  `json:"comments"`
	Recommendation   string                  `json:"recommendation"`
	Rating           *model.Rating           `json:"rating"`
	DetailedComments *model.DetailedComments `json:"detailedComments"`
	ReviewerNotes    string                  `json:"reviewerNotes"`
}

func (r submitReviewReq) input() (service.ReviewInput, error) {
	rec, valid := model.ParseRecommendation(strings.ToLower(strings.TrimSpace(r.Recommendation)))
	if !valid && r.Recommendation != "" {
		return service.ReviewInput{}, apperr.Validation([]apperr.ValidationError{{
			Field: "recommendation", Message: "must be accept, minor-revision, major-revision or reject",
		}})
	}
	return service.ReviewInput{
		Recommendation:   rec,
		Comments:         strings.TrimSpace(r.Comments),
		DetailedComments: r.DetailedComments,
		Rating:           r.Rating,
		ReviewerNotes:    r.ReviewerNotes,
	}, nil
}

// MyReviews lists the caller's own reviews.
func (h *SubmissionHandler) MyReviews(c echo.Context) error {
	var status model.ReviewStatus
	switch s := model.ReviewStatus(c.QueryParam("status")); s {
	case "":
	case model.ReviewPending, model.ReviewCompleted, model.ReviewOverdue, model.ReviewWithdrawn:
		status = s
	default:
		return apperr.Validation([]apperr.ValidationError{{Field: "status", Message: "unknown review status"}})
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	list, err := h.ReviewList.ListByReviewer(ctx, middleware.UserID(c), status)
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, list)
}

func (h *SubmissionHandler) SubmitReview(c echo.Context) error {
	var req submitReviewReq
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	if req.SubmissionID == 0 {
		return apperr.Validation([]apperr.ValidationError{{Field: "submissionId", Message: "submissionId is required"}})
	}
	in, err := req.input()
	if err != nil {
		return err
	}
	return h.submitReview(c, req.SubmissionID, in)
}

func (h *SubmissionHandler) submitReview(c echo.Context, id uint64, in service.ReviewInput) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	status, err := h.Flow.SubmitReview(ctx, middleware.UserID(c), id, in)
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, echo.Map{"submissionId": id, "submissionStatus": status})
}

func (h *SubmissionHandler) WithdrawReview(c echo.Context) error {
	id, err := pathID(c, "id", "review")
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	status, err := h.Flow.WithdrawReview(ctx, middleware.UserID(c), id)
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, echo.Map{"reviewId": id, "status": model.ReviewWithdrawn, "submissionStatus": status})
}

// ----- manuscripts facade -----

// SubmitManuscript is the simplified upload used by the dashboard: a
// single "file" part with comma separated keywords.
func (h *SubmissionHandler) SubmitManuscript(c echo.Context) error {
	sub := model.Submission{
		Title:          strings.TrimSpace(c.FormValue("title")),
		Abstract:       strings.TrimSpace(c.FormValue("abstract")),
		ManuscriptType: "research-article",
		Keywords:       utils.SplitList(c.FormValue("keywords")),
	}
	if errs := required(map[string]string{"title": sub.Title, "abstract": sub.Abstract}); len(errs) > 0 {
		return apperr.Validation(errs)
	}
	return h.create(c, &sub, "file")
}

func (h *SubmissionHandler) AllManuscripts(c echo.Context) error {
	page, limit := queryInt(c, "page", 1), queryInt(c, "limit", 50)
	ctx, cancel := reqCtx(c)
	defer cancel()
	subs, total, err := h.Flow.ListForDashboard(ctx, viewer(c), page, limit)
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, echo.Map{"manuscripts": subs, "total": total})
}

type manuscriptAssignReq struct {
	ManuscriptID uint64   `json:"manuscriptId"`
	EditorID     uint64   `json:"editorId"`
	ReviewerIDs  []uint64 `json:"reviewerIds"`
	DueInDays    int      `json:"dueInDays"`
}

// AssignManuscript assigns reviewers and, when editorId is given, makes
// that editor responsible for the manuscript.
func (h *SubmissionHandler) AssignManuscript(c echo.Context) error {
	var req manuscriptAssignReq
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	if req.ManuscriptID == 0 {
		return apperr.Validation([]apperr.ValidationError{{Field: "manuscriptId", Message: "manuscriptId is required"}})
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	reviews, err := h.Flow.AssignWithEditor(ctx, middleware.UserID(c), req.EditorID, req.ManuscriptID, req.ReviewerIDs, req.DueInDays)
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, echo.Map{"submissionId": req.ManuscriptID, "reviews": reviews})
}

type manuscriptReviewReq struct {
	ManuscriptID uint64 `json:"manuscriptId"`
	Comments     string `json:"comments"`
	Decision     string `json:"decision"`
}

func (h *SubmissionHandler) ReviewManuscript(c echo.Context) error {
	var req manuscriptReviewReq
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	if req.ManuscriptID == 0 {
		return apperr.Validation([]apperr.ValidationError{{Field: "manuscriptId", Message: "manuscriptId is required"}})
	}
	in, err := submitReviewReq{Comments: req.Comments, Recommendation: req.Decision}.input()
	if err != nil {
		return err
	}
	return h.submitReview(c, req.ManuscriptID, in)
}
