package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/iliyamo/journal-portal/internal/apperr"
	"github.com/iliyamo/journal-portal/internal/middleware"
	"github.com/iliyamo/journal-portal/internal/model"
	"github.com/iliyamo/journal-portal/internal/repository"
)

type memBoard struct {
	rows map[uint64]model.EditorialBoardMember
	next uint64
}

func (m *memBoard) List(context.Context) ([]model.EditorialBoardMember, error) {
	out := []model.EditorialBoardMember{}
	for _, r := range m.rows {
		out = append(out, r)
	}
	return out, nil
}

func (m *memBoard) GetByID(_ context.Context, id uint64) (model.EditorialBoardMember, error) {
	r, found := m.rows[id]
	if !found {
		return r, repository.ErrNotFound
	}
	return r, nil
}

func (m *memBoard) Create(_ context.Context, r *model.EditorialBoardMember) error {
	m.next++
	r.ID = m.next
	m.rows[r.ID] = *r
	return nil
}

func (m *memBoard) Update(_ context.Context, r *model.EditorialBoardMember) error {
	if _, found := m.rows[r.ID]; !found {
		return repository.ErrNotFound
	}
	m.rows[r.ID] = *r
	return nil
}

func (m *memBoard) Delete(_ context.Context, id uint64) error {
	if _, found := m.rows[id]; !found {
		return repository.ErrNotFound
	}
	delete(m.rows, id)
	return nil
}

type memStatic struct{ lastType model.ContentType }

func (m *memStatic) List(_ context.Context, typ model.ContentType) ([]model.StaticContent, error) {
	m.lastType = typ
	return []model.StaticContent{}, nil
}

func (m *memStatic) GetByID(context.Context, uint64) (model.StaticContent, error) {
	return model.StaticContent{}, repository.ErrNotFound
}

func (m *memStatic) Create(context.Context, *model.StaticContent) error { return nil }

func (m *memStatic) Update(context.Context, *model.StaticContent) error { return nil }

func (m *memStatic) Delete(context.Context, uint64) error { return nil }

type memNewsletter struct{ emails map[string]bool }

func (m *memNewsletter) Subscribe(_ context.Context, email string) (model.NewsletterSubscriber, error) {
	if m.emails[email] {
		return model.NewsletterSubscriber{}, repository.ErrDuplicate
	}
	m.emails[email] = true
	return model.NewsletterSubscriber{ID: uint64(len(m.emails)), Email: email}, nil
}

func (m *memNewsletter) List(context.Context) ([]model.NewsletterSubscriber, error) {
	return nil, nil
}

func newContentServer() (*echo.Echo, *memBoard, *memStatic) {
	e, board, static, _ := newPurgingContentServer()
	return e, board, static
}

func newPurgingContentServer() (*echo.Echo, *memBoard, *memStatic, *int) {
	board := &memBoard{rows: map[uint64]model.EditorialBoardMember{}}
	static := &memStatic{}
	purges := new(int)
	purge := func(context.Context) error { *purges++; return nil }
	h := NewContentHandler(board, static, &memNewsletter{emails: map[string]bool{}}, nil, nil, nil, purge, zerolog.Nop())

	e := echo.New()
	e.HTTPErrorHandler = apperr.Handler(zerolog.Nop())
	e.GET("/board/:id", h.GetBoardMember)
	e.POST("/board", h.CreateBoardMember)
	e.PUT("/board/:id", h.UpdateBoardMember)
	e.DELETE("/board/:id", h.DeleteBoardMember)
	e.GET("/static", h.ListStatic)
	e.POST("/static", h.CreateStatic)
	e.PUT("/static/:id", h.UpdateStatic)
	e.DELETE("/static/:id", h.DeleteStatic)
	e.POST("/newsletter", h.Subscribe)
	return e, board, static, purges
}

func send(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestEditorialBoardLifecycle(t *testing.T) {
	e, board, _ := newContentServer()

	if rec := send(e, http.MethodPost, "/board", `{"name":"  "}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("blank name: %d", rec.Code)
	}
	rec := send(e, http.MethodPost, "/board", `{"name":"Dr. Ada Byron","role":"Editor in Chief"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", rec.Code, rec.Body.String())
	}
	if len(board.rows) != 1 {
		t.Fatalf("rows=%d", len(board.rows))
	}
	if rec := send(e, http.MethodGet, "/board/1", ""); rec.Code != http.StatusOK {
		t.Fatalf("get: %d", rec.Code)
	}
	if rec := send(e, http.MethodDelete, "/board/1", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("delete: %d", rec.Code)
	}
	if rec := send(e, http.MethodGet, "/board/1", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete: %d", rec.Code)
	}
	if rec := send(e, http.MethodGet, "/board/abc", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad id: %d", rec.Code)
	}
}

func TestContentWritesPurgeCache(t *testing.T) {
	e, _, _, purges := newPurgingContentServer()

	steps := []struct {
		method, path, body string
		want               int
		purged             int
	}{
		{http.MethodPost, "/board", `{"name":"Dr. Ada Byron","role":"Editor"}`, http.StatusCreated, 1},
		{http.MethodPut, "/board/1", `{"name":"Dr. Ada Byron","role":"Editor in Chief"}`, http.StatusOK, 2},
		{http.MethodPut, "/board/9", `{"name":"Nobody","role":"Editor"}`, http.StatusNotFound, 2},
		{http.MethodPost, "/board", `{"name":""}`, http.StatusBadRequest, 2},
		{http.MethodDelete, "/board/1", "", http.StatusNoContent, 3},
		{http.MethodGet, "/static", "", http.StatusOK, 3},
		{http.MethodPost, "/static", `{"title":"Aims","content":"x","contentType":"Aims"}`, http.StatusCreated, 4},
		{http.MethodPut, "/static/1", `{"title":"Aims","content":"y","contentType":"Aims"}`, http.StatusOK, 5},
		{http.MethodDelete, "/static/1", "", http.StatusNoContent, 6},
	}
	for _, st := range steps {
		if rec := send(e, st.method, st.path, st.body); rec.Code != st.want {
			t.Fatalf("%s %s: status=%d want %d", st.method, st.path, rec.Code, st.want)
		}
		if *purges != st.purged {
			t.Fatalf("%s %s: purges=%d want %d", st.method, st.path, *purges, st.purged)
		}
	}
}

func TestStaticContentType(t *testing.T) {
	e, _, static := newContentServer()

	cases := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"filter", http.MethodGet, "/static?contentType=Mission", "", http.StatusOK},
		{"unknown filter", http.MethodGet, "/static?contentType=Blog", "", http.StatusBadRequest},
		{"create", http.MethodPost, "/static", `{"title":"Aims","content":"x","contentType":"Aims"}`, http.StatusCreated},
		{"create bad type", http.MethodPost, "/static", `{"title":"Aims","content":"x","contentType":"aims"}`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if rec := send(e, tc.method, tc.path, tc.body); rec.Code != tc.want {
				t.Fatalf("status=%d want %d: %s", rec.Code, tc.want, rec.Body.String())
			}
		})
	}
	if static.lastType != model.ContentMission {
		t.Fatalf("filter passed %q", static.lastType)
	}
}

func TestNewsletterDuplicate(t *testing.T) {
	e, _, _ := newContentServer()

	if rec := send(e, http.MethodPost, "/newsletter", `{"email":"Reader@Example.org"}`); rec.Code != http.StatusCreated {
		t.Fatalf("first: %d", rec.Code)
	}
	rec := send(e, http.MethodPost, "/newsletter", `{"email":"reader@example.org"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate: %d", rec.Code)
	}
	if env := decode(t, rec); env.Code != apperr.CodeDuplicate {
		t.Fatalf("code=%s", env.Code)
	}
	if rec := send(e, http.MethodPost, "/newsletter", `{"email":"nope"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid email: %d", rec.Code)
	}
}

type memPages struct {
	PageStore
	created   []model.PageItem
	bookmarks map[string]bool
}

func (m *memPages) Create(_ context.Context, it *model.PageItem) error {
	m.created = append(m.created, *it)
	return nil
}

func (m *memPages) ToggleBookmark(_ context.Context, _ uint64, kind model.PageKind, id string) (bool, error) {
	key := string(kind) + "/" + id
	m.bookmarks[key] = !m.bookmarks[key]
	return m.bookmarks[key], nil
}

func newPageServer(store PageStore) *echo.Echo {
	h := NewPageHandler(store)
	e := echo.New()
	e.HTTPErrorHandler = apperr.Handler(zerolog.Nop())
	user := func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			middleware.SetIdentity(c, 7, model.RoleAdmin)
			return next(c)
		}
	}
	e.GET("/pages/about", h.About)
	e.POST("/pages/:kind", h.Create, user)
	e.POST("/pages/:kind/:id/bookmark", h.ToggleBookmark, user)
	return e
}

func TestPagesWithoutStore(t *testing.T) {
	var store PageStore
	e := newPageServer(store)
	if rec := send(e, http.MethodGet, "/pages/about", ""); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d", rec.Code)
	}
}

func TestPageCreateAndBookmark(t *testing.T) {
	store := &memPages{bookmarks: map[string]bool{}}
	e := newPageServer(store)

	if rec := send(e, http.MethodPost, "/pages/blog", `{"title":"x"}`); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown kind: %d", rec.Code)
	}
	if rec := send(e, http.MethodPost, "/pages/channels", `{"title":"Cardiology","type":"secret"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad channel type: %d", rec.Code)
	}
	if rec := send(e, http.MethodPost, "/pages/channels", `{"title":"Cardiology"}`); rec.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", rec.Code, rec.Body.String())
	}
	if len(store.created) != 1 || store.created[0].Type != "public" || store.created[0].Kind != model.PageChannels {
		t.Fatalf("created=%+v", store.created)
	}

	if rec := send(e, http.MethodPost, "/pages/newsroom/abc/bookmark", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("newsroom bookmark: %d", rec.Code)
	}
	for _, want := range []bool{true, false} {
		rec := send(e, http.MethodPost, "/pages/resources/abc/bookmark", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("bookmark: %d", rec.Code)
		}
		if got := strings.Contains(rec.Body.String(), `"bookmarked":true`); got != want {
			t.Fatalf("bookmarked=%v want %v", got, want)
		}
	}
}
