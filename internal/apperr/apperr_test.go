package apperr

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/iliyamo/journal-portal/internal/repository"
	"github.com/iliyamo/journal-portal/internal/workflow"
)

func TestHandlerMapsErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", Validation([]ValidationError{{Field: "email", Message: "required"}}), 400, CodeValidation},
		{"not found", fmt.Errorf("load: %w", repository.ErrNotFound), 404, CodeNotFound},
		{"duplicate", repository.ErrDuplicate, 409, CodeDuplicate},
		{"conflict", repository.ErrConflict, 409, CodeConflict},
		{"transition", workflow.ErrInvalidTransition, 409, CodeInvalidState},
		{"forbidden", repository.ErrForbidden, 403, CodeForbidden},
		{"locked", Locked(14 * time.Minute), 423, CodeLocked},
		{"echo", echo.NewHTTPError(http.StatusTooManyRequests, "slow down"), 429, CodeRateLimited},
		{"unknown", fmt.Errorf("boom"), 500, CodeInternal},
	}
	e := echo.New()
	h := Handler(zerolog.Nop())
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
			h(tc.err, c)
			if rec.Code != tc.status {
				t.Fatalf("status = %d, want %d", rec.Code, tc.status)
			}
			var got map[string]any
			if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
				t.Fatal(err)
			}
			if got["success"] != false || got["code"] != tc.code {
				t.Fatalf("body = %v", got)
			}
			if _, ok := got["timestamp"]; !ok {
				t.Fatal("timestamp missing")
			}
		})
	}
}

func TestInternalErrorHidesCause(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	Handler(zerolog.Nop())(fmt.Errorf("dial tcp 10.0.0.5:3306: refused"), c)
	var got map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &got)
	if got["message"] != "internal server error" {
		t.Fatalf("message leaked: %v", got["message"])
	}
}
