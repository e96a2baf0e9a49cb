package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/iliyamo/journal-portal/internal/apperr"
	"github.com/iliyamo/journal-portal/internal/model"
	"github.com/iliyamo/journal-portal/internal/repository"
	"github.com/iliyamo/journal-portal/internal/utils"
)

const testSecret = "test-secret-test-secret"

func ok(c echo.Context) error { return c.NoContent(http.StatusNoContent) }

func statusOf(err error) int {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return ae.Status
	}
	if err != nil {
		return 500
	}
	return 0
}

func TestJWTAuth(t *testing.T) {
	e := echo.New()
	bl := NewMemoryBlacklist()
	mw := JWTAuth(testSecret, bl, zerolog.Nop())

	tok, err := utils.NewAccessToken(testSecret, 42, "editor", 5)
	if err != nil {
		t.Fatal(err)
	}

	t.Run("bearer", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+tok.Token)
		c := e.NewContext(req, httptest.NewRecorder())
		var gotID uint64
		var gotRole model.Role
		err := mw(func(c echo.Context) error {
			gotID, gotRole = UserID(c), Role(c)
			return nil
		})(c)
		if err != nil || gotID != 42 || gotRole != model.RoleEditor {
			t.Fatalf("err=%v id=%d role=%q", err, gotID, gotRole)
		}
	})

	t.Run("cookie fallback", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: AccessCookie, Value: tok.Token})
		c := e.NewContext(req, httptest.NewRecorder())
		if err := mw(ok)(c); err != nil {
			t.Fatalf("err=%v", err)
		}
	})

	t.Run("missing", func(t *testing.T) {
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
		if got := statusOf(mw(ok)(c)); got != 401 {
			t.Fatalf("status=%d", got)
		}
	})

	t.Run("revoked", func(t *testing.T) {
		_ = bl.Revoke(context.Background(), tok.JTI, tok.Exp)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+tok.Token)
		c := e.NewContext(req, httptest.NewRecorder())
		if got := statusOf(mw(ok)(c)); got != 401 {
			t.Fatalf("status=%d", got)
		}
	})

	t.Run("blacklist down", func(t *testing.T) {
		fresh, err := utils.NewAccessToken(testSecret, 43, "author", 5)
		if err != nil {
			t.Fatal(err)
		}
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+fresh.Token)
		c := e.NewContext(req, httptest.NewRecorder())
		called := false
		next := func(echo.Context) error { called = true; return nil }
		if got := statusOf(JWTAuth(testSecret, downBlacklist{}, zerolog.Nop())(next)(c)); got != http.StatusServiceUnavailable {
			t.Fatalf("status=%d", got)
		}
		if called {
			t.Fatal("request passed with an unreadable blacklist")
		}
	})
}

type downBlacklist struct{}

func (downBlacklist) Revoke(context.Context, string, time.Time) error { return errors.New("redis: connection refused") }

func (downBlacklist) IsRevoked(context.Context, string) (bool, error) {
	return false, errors.New("redis: connection refused")
}

func TestMemoryBlacklistExpires(t *testing.T) {
	bl := NewMemoryBlacklist()
	ctx := context.Background()
	_ = bl.Revoke(ctx, "old", time.Now().Add(-time.Second))
	_ = bl.Revoke(ctx, "live", time.Now().Add(time.Minute))
	if r, _ := bl.IsRevoked(ctx, "old"); r {
		t.Fatal("expired entry still revoked")
	}
	if r, _ := bl.IsRevoked(ctx, "live"); !r {
		t.Fatal("live entry not revoked")
	}
}

func TestRequireRoleHierarchy(t *testing.T) {
	e := echo.New()
	cases := []struct {
		have   model.Role
		want   []model.Role
		status int
	}{
		{model.RoleEditor, []model.Role{model.RoleReviewer}, 0},
		{model.RoleAdmin, []model.Role{model.RolePublisher}, 0},
		{model.RolePublisher, []model.Role{model.RoleEditor}, 403},
		{model.RoleAuthor, []model.Role{model.RoleEditor, model.RoleAuthor}, 0},
		{"", []model.Role{model.RoleAuthor}, 403},
	}
	for _, tc := range cases {
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
		SetIdentity(c, 1, tc.have)
		got := statusOf(RequireRole(tc.want...)(func(echo.Context) error { return nil })(c))
		if got != tc.status {
			t.Errorf("%q -> %v: status %d, want %d", tc.have, tc.want, got, tc.status)
		}
	}
}

type profileStub map[uint64]model.User

func (p profileStub) GetByID(_ context.Context, id uint64) (model.User, error) {
	u, ok := p[id]
	if !ok {
		return model.User{}, repository.ErrNotFound
	}
	return u, nil
}

func TestRequireProfile(t *testing.T) {
	e := echo.New()
	users := profileStub{
		1: {ID: 1, IsProfileComplete: true},
		2: {ID: 2},
	}
	mw := RequireProfile(users)

	c := e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), httptest.NewRecorder())
	SetIdentity(c, 1, model.RoleAuthor)
	if err := mw(func(echo.Context) error { return nil })(c); err != nil {
		t.Fatalf("complete profile rejected: %v", err)
	}

	c = e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), httptest.NewRecorder())
	SetIdentity(c, 2, model.RoleAuthor)
	var ae *apperr.Error
	if err := mw(ok)(c); !errors.As(err, &ae) || ae.Code != apperr.CodeProfileMissing {
		t.Fatalf("got %v", err)
	}
}
