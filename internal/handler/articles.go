package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/iliyamo/journal-portal/internal/model"
)

type ArticleStore interface {
	ListPublished(ctx context.Context, f model.ArticleFilter) ([]model.Article, int, error)
	Featured(ctx context.Context, limit int) ([]model.Article, error)
	Years(ctx context.Context) ([]int, error)
	GetPublished(ctx context.Context, id uint64) (model.Article, error)
	SetFeatured(ctx context.Context, id uint64, featured bool) error
}

// ArticleHandler serves the public article catalogue.
type ArticleHandler struct {
	Articles ArticleStore
	Purge    func(ctx context.Context) error
	Log      zerolog.Logger
}

func NewArticleHandler(articles ArticleStore, purge func(context.Context) error, log zerolog.Logger) *ArticleHandler {
	return &ArticleHandler{Articles: articles, Purge: purge, Log: log}
}

func (h *ArticleHandler) List(c echo.Context) error {
	f := model.ArticleFilter{
		Year:     queryInt(c, "year", 0),
		Topic:    strings.TrimSpace(c.QueryParam("topic")),
		Author:   strings.TrimSpace(c.QueryParam("author")),
		Keyword:  strings.TrimSpace(c.QueryParam("keyword")),
		Page:     queryInt(c, "page", 1),
		PageSize: queryInt(c, "pageSize", 10),
	}
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 || f.PageSize > 50 {
		f.PageSize = 10
	}

	ctx, cancel := reqCtx(c)
	defer cancel()
	list, total, err := h.Articles.ListPublished(ctx, f)
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, echo.Map{"articles": list, "total": total, "page": f.Page, "pageSize": f.PageSize})
}

func (h *ArticleHandler) Featured(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	list, err := h.Articles.Featured(ctx, 5)
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, list)
}

// Issues returns the publication years used as issue selectors.
func (h *ArticleHandler) Issues(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	years, err := h.Articles.Years(ctx)
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, years)
}

func (h *ArticleHandler) Get(c echo.Context) error {
	id, err := pathID(c, "id", "article")
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	a, err := h.Articles.GetPublished(ctx, id)
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, a)
}

type featuredReq struct {
	Featured bool `json:"featured"`
}

func (h *ArticleHandler) SetFeatured(c echo.Context) error {
	id, err := pathID(c, "id", "article")
	if err != nil {
		return err
	}
	var req featuredReq
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.Articles.SetFeatured(ctx, id, req.Featured); err != nil {
		return err
	}
	if h.Purge != nil {
		if err := h.Purge(ctx); err != nil {
			h.Log.Warn().Err(err).Msg("article cache purge failed")
		}
	}
	return ok(c, http.StatusOK, echo.Map{"id": id, "featured": req.Featured})
}
