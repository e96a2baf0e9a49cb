package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Pinger is satisfied by a closure over *sql.DB, *redis.Client or
// *mongo.Client.
type Pinger func(ctx context.Context) error

type PendingCounter interface {
	PendingCount(ctx context.Context) (int, error)
}

// HealthHandler reports dependency status. The database is required;
// every other dependency is optional and is reported as "disabled" when
// absent.
type HealthHandler struct {
	DB     Pinger
	Redis  Pinger
	Mongo  Pinger
	Outbox PendingCounter
}

func NewHealthHandler(db, rdb, mongo Pinger, outbox PendingCounter) *HealthHandler {
	return &HealthHandler{DB: db, Redis: rdb, Mongo: mongo, Outbox: outbox}
}

func dependencyStatus(ctx context.Context, p Pinger) string {
	if p == nil {
		return "disabled"
	}
	if err := p(ctx); err != nil {
		return "down"
	}
	return "up"
}

func (h *HealthHandler) Health(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()

	deps := map[string]string{
		"database": dependencyStatus(ctx, h.DB),
		"redis":    dependencyStatus(ctx, h.Redis),
		"mongo":    dependencyStatus(ctx, h.Mongo),
	}
	body := echo.Map{"status": "ok", "dependencies": deps}
	if h.Outbox != nil {
		if n, err := h.Outbox.PendingCount(ctx); err == nil {
			body["outboxPending"] = n
		}
	}

	status := http.StatusOK
	if deps["database"] != "up" {
		status = http.StatusServiceUnavailable
		body["status"] = "degraded"
	}
	return c.JSON(status, body)
}
