// Package handler holds the echo handlers for every API area.
package handler

import (
	"context"
	"maps"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/journal-portal/internal/apperr"
)

// dbTimeout bounds every store call made while serving a request.
const dbTimeout = 5 * time.Second

func reqCtx(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), dbTimeout)
}

// pathID parses a positive numeric path parameter.
func pathID(c echo.Context, name, what string) (uint64, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, apperr.InvalidID(what)
	}
	return id, nil
}

// queryInt reads an integer query parameter, falling back to def when it
// is missing or malformed.
func queryInt(c echo.Context, name string, def int) int {
	v := strings.TrimSpace(c.QueryParam(name))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func bindJSON(c echo.Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		return apperr.BadRequest("invalid request body")
	}
	return nil
}

// ok writes the success envelope used by every handler.
func ok(c echo.Context, status int, data any) error {
	return c.JSON(status, echo.Map{"success": true, "data": data})
}

func message(c echo.Context, msg string) error {
	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": msg})
}

// required collects a ValidationError for every blank field.
func required(fields map[string]string) []apperr.ValidationError {
	var out []apperr.ValidationError
	for _, name := range slices.Sorted(maps.Keys(fields)) {
		if strings.TrimSpace(fields[name]) == "" {
			out = append(out, apperr.ValidationError{Field: name, Message: name + " is required"})
		}
	}
	return out
}
