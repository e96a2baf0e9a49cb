package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/journal-portal/internal/apperr"
	"github.com/iliyamo/journal-portal/internal/middleware"
	"github.com/iliyamo/journal-portal/internal/model"
)

type (
	ArticleCounter interface {
		CountPublished(ctx context.Context) (int, error)
	}
	ReviewStats interface {
		CountActive(ctx context.Context) (int, error)
		AvgCompletionDays(ctx context.Context) (float64, error)
	}
	ActiveUsers interface {
		CountActiveSince(ctx context.Context, since time.Time) (int, error)
	}
	StatusCounter interface {
		CountByStatus(ctx context.Context) ([]model.StatusCount, error)
	}
	ActivityLog interface {
		ListForUser(ctx context.Context, userID uint64, limit int) ([]model.Activity, error)
	}
)

const activeUserWindow = 30 * 24 * time.Hour

// AnalyticsHandler serves the editor dashboard. Activity is nil without
// a document store.
type AnalyticsHandler struct {
	Articles    ArticleCounter
	Reviews     ReviewStats
	Users       ActiveUsers
	Submissions StatusCounter
	Activity    ActivityLog
	Now         func() time.Time
}

func NewAnalyticsHandler(a ArticleCounter, r ReviewStats, u ActiveUsers, s StatusCounter, act ActivityLog) *AnalyticsHandler {
	return &AnalyticsHandler{Articles: a, Reviews: r, Users: u, Submissions: s, Activity: act, Now: time.Now}
}

func (h *AnalyticsHandler) Dashboard(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()

	var (
		st  model.DashboardStats
		err error
	)
	if st.TotalArticles, err = h.Articles.CountPublished(ctx); err != nil {
		return err
	}
	if st.PendingReviews, err = h.Reviews.CountActive(ctx); err != nil {
		return err
	}
	if st.ActiveUsers, err = h.Users.CountActiveSince(ctx, h.Now().Add(-activeUserWindow)); err != nil {
		return err
	}
	if st.AvgReviewDays, err = h.Reviews.AvgCompletionDays(ctx); err != nil {
		return err
	}
	return ok(c, http.StatusOK, st)
}

func (h *AnalyticsHandler) ArticleStats(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	counts, err := h.Submissions.CountByStatus(ctx)
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, counts)
}

func (h *AnalyticsHandler) MyActivity(c echo.Context) error {
	if h.Activity == nil {
		return apperr.Unavailable("activity log is not available")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	list, err := h.Activity.ListForUser(ctx, middleware.UserID(c), queryInt(c, "limit", 50))
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, list)
}
