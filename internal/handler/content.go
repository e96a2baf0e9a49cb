package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/iliyamo/journal-portal/internal/apperr"
	"github.com/iliyamo/journal-portal/internal/middleware"
	"github.com/iliyamo/journal-portal/internal/model"
	"github.com/iliyamo/journal-portal/internal/repository"
	"github.com/iliyamo/journal-portal/internal/storage"
	"github.com/iliyamo/journal-portal/internal/utils"
)

type BoardStore interface {
	List(ctx context.Context) ([]model.EditorialBoardMember, error)
	GetByID(ctx context.Context, id uint64) (model.EditorialBoardMember, error)
	Create(ctx context.Context, m *model.EditorialBoardMember) error
	Update(ctx context.Context, m *model.EditorialBoardMember) error
	Delete(ctx context.Context, id uint64) error
}

type StaticStore interface {
	List(ctx context.Context, typ model.ContentType) ([]model.StaticContent, error)
	GetByID(ctx context.Context, id uint64) (model.StaticContent, error)
	Create(ctx context.Context, c *model.StaticContent) error
	Update(ctx context.Context, c *model.StaticContent) error
	Delete(ctx context.Context, id uint64) error
}

type NewsletterStore interface {
	Subscribe(ctx context.Context, email string) (model.NewsletterSubscriber, error)
	List(ctx context.Context) ([]model.NewsletterSubscriber, error)
}

type CaseStore interface {
	Create(ctx context.Context, c *model.Case) error
	List(ctx context.Context) ([]model.Case, error)
}

type WaitlistStore interface {
	Join(ctx context.Context, e *model.WaitlistEntry) error
	List(ctx context.Context) ([]model.WaitlistEntry, error)
}

// ContentHandler serves the editorial board, static content and the
// public engagement forms. Board and static content writes call Purge so
// cached public reads pick them up.
type ContentHandler struct {
	Board      BoardStore
	Static     StaticStore
	Newsletter NewsletterStore
	Cases      CaseStore
	Waitlist   WaitlistStore
	Files      *storage.Store
	Purge      func(ctx context.Context) error
	Log        zerolog.Logger
}

func NewContentHandler(board BoardStore, static StaticStore, news NewsletterStore, cases CaseStore, wait WaitlistStore,
	files *storage.Store, purge func(context.Context) error, log zerolog.Logger) *ContentHandler {
	return &ContentHandler{Board: board, Static: static, Newsletter: news, Cases: cases, Waitlist: wait,
		Files: files, Purge: purge, Log: log}
}

func (h *ContentHandler) purge(ctx context.Context) {
	if h.Purge == nil {
		return
	}
	if err := h.Purge(ctx); err != nil {
		h.Log.Warn().Err(err).Msg("content cache purge failed")
	}
}

// ----- editorial board -----

func (h *ContentHandler) ListBoard(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	list, err := h.Board.List(ctx)
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, list)
}

func (h *ContentHandler) GetBoardMember(c echo.Context) error {
	id, err := pathID(c, "id", "board member")
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	m, err := h.Board.GetByID(ctx, id)
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, m)
}

func bindBoardMember(c echo.Context) (model.EditorialBoardMember, error) {
	var m model.EditorialBoardMember
	if err := bindJSON(c, &m); err != nil {
		return m, err
	}
	m.Name, m.Role = strings.TrimSpace(m.Name), strings.TrimSpace(m.Role)
	if errs := required(map[string]string{"name": m.Name, "role": m.Role}); len(errs) > 0 {
		return m, apperr.Validation(errs)
	}
	return m, nil
}

func (h *ContentHandler) CreateBoardMember(c echo.Context) error {
	m, err := bindBoardMember(c)
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.Board.Create(ctx, &m); err != nil {
		return err
	}
	h.purge(ctx)
	return ok(c, http.StatusCreated, m)
}

func (h *ContentHandler) UpdateBoardMember(c echo.Context) error {
	id, err := pathID(c, "id", "board member")
	if err != nil {
		return err
	}
	m, err := bindBoardMember(c)
	if err != nil {
		return err
	}
	m.ID = id
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.Board.Update(ctx, &m); err != nil {
		return err
	}
	h.purge(ctx)
	return ok(c, http.StatusOK, m)
}

func (h *ContentHandler) DeleteBoardMember(c echo.Context) error {
	id, err := pathID(c, "id", "board member")
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.Board.Delete(ctx, id); err != nil {
		return err
	}
	h.purge(ctx)
	return c.NoContent(http.StatusNoContent)
}

// ----- static content -----

func (h *ContentHandler) ListStatic(c echo.Context) error {
	typ := model.ContentType(c.QueryParam("contentType"))
	if typ != "" && !typ.Valid() {
		return apperr.Validation([]apperr.ValidationError{{Field: "contentType", Message: "must be Aims, Mission, Policies or Guidelines"}})
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	list, err := h.Static.List(ctx, typ)
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, list)
}

func (h *ContentHandler) GetStatic(c echo.Context) error {
	id, err := pathID(c, "id", "content")
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	sc, err := h.Static.GetByID(ctx, id)
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, sc)
}

func bindStatic(c echo.Context) (model.StaticContent, error) {
	var sc model.StaticContent
	if err := bindJSON(c, &sc); err != nil {
		return sc, err
	}
	sc.Title = strings.TrimSpace(sc.Title)
	errs := required(map[string]string{"title": sc.Title, "content": sc.Content})
	if !sc.ContentType.Valid() {
		errs = append(errs, apperr.ValidationError{Field: "contentType", Message: "must be Aims, Mission, Policies or Guidelines"})
	}
	if len(errs) > 0 {
		return sc, apperr.Validation(errs)
	}
	return sc, nil
}

func (h *ContentHandler) CreateStatic(c echo.Context) error {
	sc, err := bindStatic(c)
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.Static.Create(ctx, &sc); err != nil {
		return err
	}
	h.purge(ctx)
	return ok(c, http.StatusCreated, sc)
}

func (h *ContentHandler) UpdateStatic(c echo.Context) error {
	id, err := pathID(c, "id", "content")
	if err != nil {
		return err
	}
	sc, err := bindStatic(c)
	if err != nil {
		return err
	}
	sc.ID = id
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.Static.Update(ctx, &sc); err != nil {
		return err
	}
	h.purge(ctx)
	return ok(c, http.StatusOK, sc)
}

func (h *ContentHandler) DeleteStatic(c echo.Context) error {
	id, err := pathID(c, "id", "content")
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.Static.Delete(ctx, id); err != nil {
		return err
	}
	h.purge(ctx)
	return c.NoContent(http.StatusNoContent)
}

// ----- newsletter -----

type subscribeReq struct {
	Email string `json:"email"`
}

func (h *ContentHandler) Subscribe(c echo.Context) error {
	var req subscribeReq
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	email := utils.NormalizeEmail(req.Email)
	if !utils.ValidEmail(email) {
		return apperr.Validation([]apperr.ValidationError{{Field: "email", Message: "a valid email is required"}})
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	sub, err := h.Newsletter.Subscribe(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return apperr.New(http.StatusConflict, apperr.CodeDuplicate, "email is already subscribed")
		}
		return err
	}
	return ok(c, http.StatusCreated, sub)
}

func (h *ContentHandler) Subscribers(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	list, err := h.Newsletter.List(ctx)
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, list)
}

// ----- picture prognosis cases -----

func (h *ContentHandler) CreateCase(c echo.Context) error {
	cs := model.Case{
		SubmittedBy: middleware.UserID(c),
		Title:       strings.TrimSpace(c.FormValue("title")),
		Description: strings.TrimSpace(c.FormValue("description")),
		Specialty:   strings.TrimSpace(c.FormValue("specialty")),
		Files:       []string{},
	}
	if errs := required(map[string]string{"title": cs.Title, "description": cs.Description}); len(errs) > 0 {
		return apperr.Validation(errs)
	}
	form, _ := c.MultipartForm()
	names, err := h.Files.SaveAll(formFiles(form, "files"))
	if err != nil {
		return err
	}
	for _, n := range names {
		cs.Files = append(cs.Files, storage.URL(n))
	}

	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.Cases.Create(ctx, &cs); err != nil {
		h.Files.Remove(names...)
		return err
	}
	return ok(c, http.StatusCreated, cs)
}

func (h *ContentHandler) ListCases(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	list, err := h.Cases.List(ctx)
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, list)
}

// ----- peer review waitlist -----

func (h *ContentHandler) JoinWaitlist(c echo.Context) error {
	var e model.WaitlistEntry
	if err := bindJSON(c, &e); err != nil {
		return err
	}
	e.Name = strings.TrimSpace(e.Name)
	e.Email = utils.NormalizeEmail(e.Email)
	errs := required(map[string]string{"name": e.Name})
	if !utils.ValidEmail(e.Email) {
		errs = append(errs, apperr.ValidationError{Field: "email", Message: "a valid email is required"})
	}
	if len(errs) > 0 {
		return apperr.Validation(errs)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.Waitlist.Join(ctx, &e); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return apperr.New(http.StatusConflict, apperr.CodeDuplicate, "email is already on the waitlist")
		}
		return err
	}
	return ok(c, http.StatusCreated, e)
}

func (h *ContentHandler) ListWaitlist(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	list, err := h.Waitlist.List(ctx)
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, list)
}
