package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/journal-portal/internal/apperr"
	"github.com/iliyamo/journal-portal/internal/middleware"
	"github.com/iliyamo/journal-portal/internal/model"
)

type PageStore interface {
	List(ctx context.Context, q model.PageQuery) (model.PageList, error)
	Get(ctx context.Context, kind model.PageKind, id string) (model.PageItem, error)
	Create(ctx context.Context, it *model.PageItem) error
	Update(ctx context.Context, kind model.PageKind, id string, it *model.PageItem) error
	Delete(ctx context.Context, kind model.PageKind, id string) error
	ToggleBookmark(ctx context.Context, userID uint64, kind model.PageKind, id string) (bool, error)
	JoinChannel(ctx context.Context, id string, userID uint64) (model.PageItem, error)
	LeaveChannel(ctx context.Context, id string, userID uint64) (model.PageItem, error)
	GetAbout(ctx context.Context) (model.AboutContent, error)
	PutAbout(ctx context.Context, a *model.AboutContent) error
}

// PageHandler serves the document-backed site sections. Pages is nil
// when no document store is configured and every route answers 503.
type PageHandler struct {
	Pages PageStore
}

func NewPageHandler(pages PageStore) *PageHandler {
	return &PageHandler{Pages: pages}
}

func (h *PageHandler) store() (PageStore, error) {
	if h.Pages == nil {
		return nil, apperr.Unavailable("page content is not available")
	}
	return h.Pages, nil
}

func pageKind(c echo.Context) (model.PageKind, error) {
	k, valid := model.ParsePageKind(c.Param("kind"))
	if !valid {
		return "", apperr.NotFound("section")
	}
	return k, nil
}

func (h *PageHandler) List(c echo.Context) error {
	pages, err := h.store()
	if err != nil {
		return err
	}
	kind, err := pageKind(c)
	if err != nil {
		return err
	}
	q := model.PageQuery{
		Kind:     kind,
		Category: strings.TrimSpace(c.QueryParam("category")),
		Search:   strings.TrimSpace(c.QueryParam("search")),
		Page:     queryInt(c, "page", 1),
		Limit:    queryInt(c, "limit", 10),
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	list, err := pages.List(ctx, q)
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, list)
}

func (h *PageHandler) Get(c echo.Context) error {
	pages, err := h.store()
	if err != nil {
		return err
	}
	kind, err := pageKind(c)
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	it, err := pages.Get(ctx, kind, c.Param("id"))
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, it)
}

func bindPageItem(c echo.Context, kind model.PageKind) (model.PageItem, error) {
	var it model.PageItem
	if err := bindJSON(c, &it); err != nil {
		return it, err
	}
	it.Kind = kind
	it.Title = strings.TrimSpace(it.Title)
	errs := required(map[string]string{"title": it.Title})
	if kind == model.PageChannels && it.Type != "" && it.Type != "public" && it.Type != "private" {
		errs = append(errs, apperr.ValidationError{Field: "type", Message: "must be public or private"})
	}
	if len(errs) > 0 {
		return it, apperr.Validation(errs)
	}
	if kind == model.PageChannels && it.Type == "" {
		it.Type = "public"
	}
	return it, nil
}

func (h *PageHandler) Create(c echo.Context) error {
	pages, err := h.store()
	if err != nil {
		return err
	}
	kind, err := pageKind(c)
	if err != nil {
		return err
	}
	it, err := bindPageItem(c, kind)
	if err != nil {
		return err
	}
	it.Members = nil
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := pages.Create(ctx, &it); err != nil {
		return err
	}
	return ok(c, http.StatusCreated, it)
}

func (h *PageHandler) Update(c echo.Context) error {
	pages, err := h.store()
	if err != nil {
		return err
	}
	kind, err := pageKind(c)
	if err != nil {
		return err
	}
	it, err := bindPageItem(c, kind)
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := pages.Update(ctx, kind, c.Param("id"), &it); err != nil {
		return err
	}
	return ok(c, http.StatusOK, it)
}

func (h *PageHandler) Delete(c echo.Context) error {
	pages, err := h.store()
	if err != nil {
		return err
	}
	kind, err := pageKind(c)
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := pages.Delete(ctx, kind, c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *PageHandler) ToggleBookmark(c echo.Context) error {
	pages, err := h.store()
	if err != nil {
		return err
	}
	kind, err := pageKind(c)
	if err != nil {
		return err
	}
	if !kind.Bookmarkable() {
		return apperr.BadRequest(string(kind) + " items cannot be bookmarked")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	on, err := pages.ToggleBookmark(ctx, middleware.UserID(c), kind, c.Param("id"))
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, echo.Map{"id": c.Param("id"), "bookmarked": on})
}

func (h *PageHandler) JoinChannel(c echo.Context) error {
	return h.membership(c, true)
}

func (h *PageHandler) LeaveChannel(c echo.Context) error {
	return h.membership(c, false)
}

func (h *PageHandler) membership(c echo.Context, join bool) error {
	pages, err := h.store()
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	uid := middleware.UserID(c)
	var ch model.PageItem
	if join {
		ch, err = pages.JoinChannel(ctx, c.Param("id"), uid)
	} else {
		ch, err = pages.LeaveChannel(ctx, c.Param("id"), uid)
	}
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, echo.Map{"id": ch.ID, "members": len(ch.Members), "joined": join})
}

func (h *PageHandler) About(c echo.Context) error {
	pages, err := h.store()
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	a, err := pages.GetAbout(ctx)
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, a)
}

func (h *PageHandler) PutAbout(c echo.Context) error {
	pages, err := h.store()
	if err != nil {
		return err
	}
	var a model.AboutContent
	if err := bindJSON(c, &a); err != nil {
		return err
	}
	if errs := required(map[string]string{"mission": strings.TrimSpace(a.Mission)}); len(errs) > 0 {
		return apperr.Validation(errs)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := pages.PutAbout(ctx, &a); err != nil {
		return err
	}
	return ok(c, http.StatusOK, a)
}
