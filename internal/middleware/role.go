package middleware

import (
	"context"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/journal-portal/internal/apperr"
	"github.com/iliyamo/journal-portal/internal/model"
)

// RequireRole lets the request through when the caller's role covers any
// of roles under the role hierarchy (an editor passes a reviewer check).
// It must run after JWTAuth.
func RequireRole(roles ...model.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			have := Role(c)
			for _, want := range roles {
				if have.Has(want) {
					return next(c)
				}
			}
			return apperr.Forbidden("insufficient role")
		}
	}
}

// ProfileLookup loads a user for RequireProfile.
type ProfileLookup interface {
	GetByID(ctx context.Context, id uint64) (model.User, error)
}

// RequireProfile rejects callers whose profile is not complete yet.
func RequireProfile(users ProfileLookup) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
			defer cancel()
			u, err := users.GetByID(ctx, UserID(c))
			if err != nil {
				return err
			}
			if !u.IsProfileComplete {
				return apperr.New(403, apperr.CodeProfileMissing, "complete your profile first")
			}
			return next(c)
		}
	}
}
