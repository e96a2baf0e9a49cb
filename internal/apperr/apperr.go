// Package apperr carries HTTP-facing errors and the echo error handler
// that renders every failure in one JSON shape.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/iliyamo/journal-portal/internal/repository"
	"github.com/iliyamo/journal-portal/internal/storage"
	"github.com/iliyamo/journal-portal/internal/utils"
	"github.com/iliyamo/journal-portal/internal/workflow"
)

const (
	CodeValidation     = "VALIDATION_ERROR"
	CodeBadRequest     = "BAD_REQUEST"
	CodeInvalidID      = "INVALID_ID"
	CodeUnauthorized   = "UNAUTHORIZED"
	CodeInvalidToken   = "INVALID_TOKEN"
	CodeForbidden      = "FORBIDDEN"
	CodeNotFound       = "NOT_FOUND"
	CodeConflict       = "CONFLICT"
	CodeDuplicate      = "DUPLICATE_ENTRY"
	CodeInvalidState   = "INVALID_TRANSITION"
	CodeLocked         = "ACCOUNT_LOCKED"
	CodeTooLarge       = "FILE_TOO_LARGE"
	CodeRateLimited    = "RATE_LIMITED"
	CodeUnavailable    = "SERVICE_UNAVAILABLE"
	CodeInternal       = "INTERNAL_ERROR"
	CodeProfileMissing = "PROFILE_INCOMPLETE"
)

// ValidationError names one offending field.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is returned by handlers that need a specific status or code.
type Error struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *Error) Error() string { return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message) }

func New(status int, code, msg string) *Error {
	return &Error{Status: status, Code: code, Message: msg}
}

func (e *Error) WithDetails(d any) *Error {
	e.Details = d
	return e
}

func BadRequest(msg string) *Error { return New(http.StatusBadRequest, CodeBadRequest, msg) }
func InvalidID(what string) *Error {
	return New(http.StatusBadRequest, CodeInvalidID, "invalid "+what+" id")
}
func Unauthorized(msg string) *Error { return New(http.StatusUnauthorized, CodeUnauthorized, msg) }
func Forbidden(msg string) *Error    { return New(http.StatusForbidden, CodeForbidden, msg) }
func NotFound(what string) *Error    { return New(http.StatusNotFound, CodeNotFound, what+" not found") }
func Conflict(msg string) *Error     { return New(http.StatusConflict, CodeConflict, msg) }
func Unavailable(msg string) *Error  { return New(http.StatusServiceUnavailable, CodeUnavailable, msg) }

// Validation builds a 400 listing each field problem.
func Validation(errs []ValidationError) *Error {
	return New(http.StatusBadRequest, CodeValidation, "validation failed").WithDetails(errs)
}

// Locked reports a locked account and how long until it opens again.
func Locked(remaining time.Duration) *Error {
	mins := int(remaining.Minutes() + 0.999)
	if mins < 1 {
		mins = 1
	}
	return New(http.StatusLocked, CodeLocked,
		fmt.Sprintf("account locked, try again in %d minutes", mins)).
		WithDetails(map[string]int{"remainingMinutes": mins})
}

type body struct {
	Success   bool   `json:"success"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	Details   any    `json:"details,omitempty"`
	RequestID string `json:"requestId,omitempty"`
	Timestamp string `json:"timestamp"`
}

// resolve maps err onto a status, code and client-safe message.
func resolve(err error) *Error {
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg := http.StatusText(he.Code)
		if s, ok := he.Message.(string); ok && s != "" {
			msg = s
		}
		return New(he.Code, codeForStatus(he.Code), msg)
	}
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return New(http.StatusNotFound, CodeNotFound, "resource not found")
	case errors.Is(err, repository.ErrForbidden):
		return New(http.StatusForbidden, CodeForbidden, "forbidden")
	case errors.Is(err, repository.ErrDuplicate):
		return New(http.StatusConflict, CodeDuplicate, "duplicate entry")
	case errors.Is(err, repository.ErrConflict):
		return New(http.StatusConflict, CodeConflict, "resource was modified concurrently")
	case errors.Is(err, workflow.ErrInvalidTransition):
		return New(http.StatusConflict, CodeInvalidState, err.Error())
	case errors.Is(err, utils.ErrInvalidToken):
		return New(http.StatusUnauthorized, CodeInvalidToken, "invalid or expired token")
	case errors.Is(err, storage.ErrTooLarge):
		return New(http.StatusRequestEntityTooLarge, CodeTooLarge, err.Error())
	case errors.Is(err, storage.ErrFileType), errors.Is(err, storage.ErrEmptyFile):
		return New(http.StatusBadRequest, CodeValidation, err.Error())
	}
	return New(http.StatusInternalServerError, CodeInternal, "internal server error")
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return CodeBadRequest
	case http.StatusUnauthorized:
		return CodeUnauthorized
	case http.StatusForbidden:
		return CodeForbidden
	case http.StatusNotFound:
		return CodeNotFound
	case http.StatusConflict:
		return CodeConflict
	case http.StatusRequestEntityTooLarge:
		return CodeTooLarge
	case http.StatusTooManyRequests:
		return CodeRateLimited
	case http.StatusServiceUnavailable:
		return CodeUnavailable
	}
	if status >= 500 {
		return CodeInternal
	}
	return CodeBadRequest
}

// Handler returns the echo.HTTPErrorHandler used by the server.
func Handler(log zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		ae := resolve(err)
		reqID := c.Response().Header().Get(echo.HeaderXRequestID)
		ev := log.Warn()
		if ae.Status >= 500 {
			ev = log.Error()
		}
		ev.Err(err).Int("status", ae.Status).Str("code", ae.Code).
			Str("method", c.Request().Method).Str("path", c.Path()).Str("request_id", reqID).
			Msg("request failed")

		out := body{
			Code:      ae.Code,
			Message:   ae.Message,
			Details:   ae.Details,
			RequestID: reqID,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}
		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(ae.Status)
		} else {
			werr = c.JSON(ae.Status, out)
		}
		if werr != nil {
			log.Error().Err(werr).Msg("write error response")
		}
	}
}
