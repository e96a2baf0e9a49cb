package middleware

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/journal-portal/internal/model"
)

const (
	ctxUserID   = "user_id"
	ctxRole     = "role"
	ctxJTI      = "jti"
	ctxTokenExp = "token_exp"
)

// UserID returns the authenticated caller's id, or 0 for guests.
func UserID(c echo.Context) uint64 {
	id, _ := c.Get(ctxUserID).(uint64)
	return id
}

// Role returns the caller's role claim. A user who has not chosen a role
// yet gets the empty Role.
func Role(c echo.Context) model.Role {
	r, _ := c.Get(ctxRole).(model.Role)
	return r
}

// TokenID returns the access token's jti and expiry for logout.
func TokenID(c echo.Context) (string, time.Time) {
	jti, _ := c.Get(ctxJTI).(string)
	exp, _ := c.Get(ctxTokenExp).(time.Time)
	return jti, exp
}

// SetIdentity stores identity values the way JWTAuth does. Tests use it to
// skip token handling.
func SetIdentity(c echo.Context, id uint64, role model.Role) {
	c.Set(ctxUserID, id)
	c.Set(ctxRole, role)
}

// userKey identifies the caller for rate-limit and log keys.
func userKey(c echo.Context) string {
	if id := UserID(c); id != 0 {
		return strconv.FormatUint(id, 10)
	}
	return "anon"
}
