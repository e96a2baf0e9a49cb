package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/journal-portal/internal/middleware"
	"github.com/iliyamo/journal-portal/internal/model"
)

type NotificationStore interface {
	ListForUser(ctx context.Context, userID uint64, limit int) ([]model.Notification, error)
	UnreadCount(ctx context.Context, userID uint64) (int, error)
	MarkRead(ctx context.Context, userID, id uint64) error
	MarkAllRead(ctx context.Context, userID uint64) (int64, error)
}

type NotificationHandler struct {
	Notes NotificationStore
}

func NewNotificationHandler(n NotificationStore) *NotificationHandler {
	return &NotificationHandler{Notes: n}
}

func (h *NotificationHandler) List(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	list, err := h.Notes.ListForUser(ctx, middleware.UserID(c), queryInt(c, "limit", 20))
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, list)
}

func (h *NotificationHandler) UnreadCount(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	n, err := h.Notes.UnreadCount(ctx, middleware.UserID(c))
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, echo.Map{"count": n})
}

// MarkRead only touches the caller's own notification; any other id is
// reported as not found.
func (h *NotificationHandler) MarkRead(c echo.Context) error {
	id, err := pathID(c, "id", "notification")
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.Notes.MarkRead(ctx, middleware.UserID(c), id); err != nil {
		return err
	}
	return ok(c, http.StatusOK, echo.Map{"id": id, "read": true})
}

func (h *NotificationHandler) MarkAllRead(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	n, err := h.Notes.MarkAllRead(ctx, middleware.UserID(c))
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, echo.Map{"updated": n})
}
