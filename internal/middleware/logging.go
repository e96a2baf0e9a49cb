package middleware

import (
	"context"
	"errors"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/iliyamo/journal-portal/internal/apperr"
	"github.com/iliyamo/journal-portal/internal/model"
)

// RequestLogger writes one line per request after the handler finished.
func RequestLogger(log zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			status := c.Response().Status
			ev := log.Info()
			switch {
			case status >= 500:
				ev = log.Error()
			case status >= 400:
				ev = log.Warn()
			}
			ev.Str("method", c.Request().Method).
				Str("path", c.Request().URL.Path).
				Str("route", c.Path()).
				Int("status", status).
				Dur("latency", time.Since(start)).
				Str("request_id", c.Response().Header().Get(echo.HeaderXRequestID)).
				Uint64("user_id", UserID(c)).
				Msg("request")
			return nil
		}
	}
}

// ActivitySink persists activity entries.
type ActivitySink interface {
	Record(ctx context.Context, a model.Activity) error
}

// RecordActivity stores an entry for each authenticated request. Writes
// happen off the request path and failures are only logged.
func RecordActivity(sink ActivitySink, log zerolog.Logger) echo.MiddlewareFunc {
	if sink == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			uid := UserID(c)
			if uid == 0 {
				return err
			}
			status := c.Response().Status
			var ae *apperr.Error
			var he *echo.HTTPError
			switch {
			case errors.As(err, &ae):
				status = ae.Status
			case errors.As(err, &he):
				status = he.Code
			case err != nil:
				status = 500
			}
			a := model.Activity{
				UserID:    uid,
				Method:    c.Request().Method,
				Route:     c.Path(),
				Status:    status,
				IP:        c.RealIP(),
				UserAgent: c.Request().UserAgent(),
				At:        time.Now().UTC(),
			}
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				defer cancel()
				if werr := sink.Record(ctx, a); werr != nil {
					log.Debug().Err(werr).Msg("activity not recorded")
				}
			}()
			return err
		}
	}
}
