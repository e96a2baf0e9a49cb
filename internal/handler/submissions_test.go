package handler

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/iliyamo/journal-portal/internal/apperr"
	"github.com/iliyamo/journal-portal/internal/middleware"
	"github.com/iliyamo/journal-portal/internal/model"
	"github.com/iliyamo/journal-portal/internal/service"
	"github.com/iliyamo/journal-portal/internal/storage"
	"github.com/iliyamo/journal-portal/internal/workflow"
)

// stubFlow implements the Workflow calls these tests reach. Anything else
// panics through the nil embedded interface.
type stubFlow struct {
	Workflow
	submitErr  error
	approveErr error
	submitted  *model.Submission
	reviewed   service.ReviewInput
	published  uint64
	assigned   [3]uint64
}

func (s *stubFlow) Submit(_ context.Context, authorID uint64, sub *model.Submission) error {
	if s.submitErr != nil {
		return s.submitErr
	}
	sub.ID, sub.AuthorID, sub.Status = 7, authorID, model.StatusSubmitted
	s.submitted = sub
	return nil
}

func (s *stubFlow) AssignWithEditor(_ context.Context, actorID, editorID, id uint64, reviewerIDs []uint64, _ int) ([]model.Review, error) {
	s.assigned = [3]uint64{actorID, editorID, id}
	out := make([]model.Review, len(reviewerIDs))
	for i, rid := range reviewerIDs {
		out[i] = model.Review{SubmissionID: id, ReviewerID: rid, Status: model.ReviewPending}
	}
	return out, nil
}

func (s *stubFlow) Approve(_ context.Context, _, id uint64, _ string) (model.Article, error) {
	if s.approveErr != nil {
		return model.Article{}, s.approveErr
	}
	return model.Article{ID: 1, SubmissionID: id}, nil
}

func (s *stubFlow) Publish(_ context.Context, _, id uint64) error {
	s.published = id
	return nil
}

func (s *stubFlow) SubmitReview(_ context.Context, _, _ uint64, in service.ReviewInput) (model.SubmissionStatus, error) {
	s.reviewed = in
	return model.StatusReviewed, nil
}

type submissionFixture struct {
	e      *echo.Echo
	flow   *stubFlow
	files  *storage.Store
	purged int
}

func newSubmissionFixture(t *testing.T) *submissionFixture {
	t.Helper()
	files, err := storage.New(t.TempDir(), 1<<20)
	if err != nil {
		t.Fatal(err)
	}
	f := &submissionFixture{e: echo.New(), flow: &stubFlow{}, files: files}
	f.e.HTTPErrorHandler = apperr.Handler(zerolog.Nop())
	h := NewSubmissionHandler(f.flow, nil, files, func(context.Context) error { f.purged++; return nil }, zerolog.Nop())

	as := func(role model.Role) echo.MiddlewareFunc {
		return func(next echo.HandlerFunc) echo.HandlerFunc {
			return func(c echo.Context) error {
				middleware.SetIdentity(c, 1, role)
				return next(c)
			}
		}
	}
	f.e.POST("/submissions", h.Create, as(model.RoleAuthor))
	f.e.PATCH("/submissions/:id/approve", h.Approve, as(model.RoleEditor))
	f.e.PATCH("/submissions/:id/publish", h.Publish, as(model.RoleEditor))
	f.e.POST("/manuscripts/review", h.ReviewManuscript, as(model.RoleReviewer))
	f.e.POST("/manuscripts/assign", h.AssignManuscript, as(model.RoleEditor))
	return f
}

func multipartBody(t *testing.T, fields map[string]string, fileField, fileName string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if fileField != "" {
		fw, err := w.CreateFormFile(fileField, fileName)
		if err != nil {
			t.Fatal(err)
		}
		fw.Write([]byte("%PDF-1.4 test"))
	}
	w.Close()
	return &buf, w.FormDataContentType()
}

func (f *submissionFixture) serve(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	return rec
}

func storedFiles(t *testing.T, s *storage.Store) int {
	t.Helper()
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		t.Fatal(err)
	}
	return len(entries)
}

func TestCreateSubmission(t *testing.T) {
	fields := map[string]string{
		"title":    "Sepsis outcomes",
		"abstract": "A cohort study.",
		"keywords": `["sepsis","icu"]`,
		"authors":  `[{"name":"Ada","email":"ada@example.org","isCorresponding":true}]`,
	}

	t.Run("stores manuscript", func(t *testing.T) {
		f := newSubmissionFixture(t)
		body, ct := multipartBody(t, fields, "manuscript", "paper.pdf")
		req := httptest.NewRequest(http.MethodPost, "/submissions", body)
		req.Header.Set(echo.HeaderContentType, ct)
		rec := f.serve(req)
		if rec.Code != http.StatusCreated {
			t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
		}
		if f.flow.submitted == nil || !strings.HasPrefix(f.flow.submitted.Files.Manuscript, "/uploads/") {
			t.Fatalf("submitted %+v", f.flow.submitted)
		}
		if n := storedFiles(t, f.files); n != 1 {
			t.Fatalf("%d files on disk, want 1", n)
		}
	})

	t.Run("ethics form field", func(t *testing.T) {
		f := newSubmissionFixture(t)
		withEthics := map[string]string{"ethics": `{"ethicsApproval":true,"informedConsent":true}`}
		for k, v := range fields {
			withEthics[k] = v
		}
		body, ct := multipartBody(t, withEthics, "manuscript", "paper.pdf")
		req := httptest.NewRequest(http.MethodPost, "/submissions", body)
		req.Header.Set(echo.HeaderContentType, ct)
		if rec := f.serve(req); rec.Code != http.StatusCreated {
			t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
		}
		if e := f.flow.submitted.Ethics; e == nil || !e.EthicsApproval || !e.InformedConsent {
			t.Fatalf("ethics not stored: %+v", e)
		}

		f = newSubmissionFixture(t)
		withEthics["ethics"] = "{not json"
		body, ct = multipartBody(t, withEthics, "manuscript", "paper.pdf")
		req = httptest.NewRequest(http.MethodPost, "/submissions", body)
		req.Header.Set(echo.HeaderContentType, ct)
		if rec := f.serve(req); rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), `"ethics"`) {
			t.Fatalf("bad ethics: %d %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("manuscript required", func(t *testing.T) {
		f := newSubmissionFixture(t)
		body, ct := multipartBody(t, fields, "", "")
		req := httptest.NewRequest(http.MethodPost, "/submissions", body)
		req.Header.Set(echo.HeaderContentType, ct)
		if rec := f.serve(req); rec.Code != http.StatusBadRequest {
			t.Fatalf("status %d", rec.Code)
		}
	})

	t.Run("failed submit removes files", func(t *testing.T) {
		f := newSubmissionFixture(t)
		f.flow.submitErr = apperr.New(http.StatusForbidden, apperr.CodeProfileMissing, "complete your profile first")
		body, ct := multipartBody(t, fields, "manuscript", "paper.pdf")
		req := httptest.NewRequest(http.MethodPost, "/submissions", body)
		req.Header.Set(echo.HeaderContentType, ct)
		if rec := f.serve(req); rec.Code != http.StatusForbidden {
			t.Fatalf("status %d", rec.Code)
		}
		if n := storedFiles(t, f.files); n != 0 {
			t.Fatalf("%d files left on disk", n)
		}
	})
}

func TestApproveMapsInvalidTransition(t *testing.T) {
	f := newSubmissionFixture(t)
	f.flow.approveErr = workflow.ErrInvalidTransition
	rec := f.serve(httptest.NewRequest(http.MethodPatch, "/submissions/3/approve", nil))
	if rec.Code != http.StatusConflict || !strings.Contains(rec.Body.String(), apperr.CodeInvalidState) {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}

	if rec := f.serve(httptest.NewRequest(http.MethodPatch, "/submissions/abc/approve", nil)); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad id: status %d", rec.Code)
	}
}

func TestPublishPurgesCache(t *testing.T) {
	f := newSubmissionFixture(t)
	rec := f.serve(httptest.NewRequest(http.MethodPatch, "/submissions/9/publish", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	if f.flow.published != 9 || f.purged != 1 {
		t.Fatalf("published=%d purged=%d", f.flow.published, f.purged)
	}
}

func TestReviewManuscriptMapsDecision(t *testing.T) {
	f := newSubmissionFixture(t)
	tests := []struct {
		body string
		want int
		rec  model.Recommendation
	}{
		{`{"manuscriptId":4,"comments":"solid","decision":"Accept"}`, http.StatusOK, model.RecommendAccept},
		{`{"manuscriptId":4,"comments":"needs work","decision":"minor revisions"}`, http.StatusOK, model.RecommendMinorRevision},
		{`{"manuscriptId":4,"comments":"x","decision":"maybe"}`, http.StatusBadRequest, ""},
		{`{"comments":"x","decision":"accept"}`, http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		f.flow.reviewed = service.ReviewInput{}
		req := httptest.NewRequest(http.MethodPost, "/manuscripts/review", strings.NewReader(tt.body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := f.serve(req)
		if rec.Code != tt.want {
			t.Fatalf("%s: status %d", tt.body, rec.Code)
		}
		if f.flow.reviewed.Recommendation != tt.rec {
			t.Fatalf("%s: recommendation %q, want %q", tt.body, f.flow.reviewed.Recommendation, tt.rec)
		}
	}
}

func TestAssignManuscriptHonoursEditor(t *testing.T) {
	f := newSubmissionFixture(t)
	tests := []struct {
		body string
		want int
		got  [3]uint64
	}{
		{`{"manuscriptId":4,"editorId":6,"reviewerIds":[3]}`, http.StatusOK, [3]uint64{1, 6, 4}},
		{`{"manuscriptId":5,"reviewerIds":[3]}`, http.StatusOK, [3]uint64{1, 0, 5}},
		{`{"editorId":6,"reviewerIds":[3]}`, http.StatusBadRequest, [3]uint64{}},
	}
	for _, tt := range tests {
		f.flow.assigned = [3]uint64{}
		req := httptest.NewRequest(http.MethodPost, "/manuscripts/assign", strings.NewReader(tt.body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		if rec := f.serve(req); rec.Code != tt.want {
			t.Fatalf("%s: status %d", tt.body, rec.Code)
		}
		if f.flow.assigned != tt.got {
			t.Fatalf("%s: actor/editor/id = %v, want %v", tt.body, f.flow.assigned, tt.got)
		}
	}
}
