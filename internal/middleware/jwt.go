package middleware

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/iliyamo/journal-portal/internal/apperr"
	"github.com/iliyamo/journal-portal/internal/model"
	"github.com/iliyamo/journal-portal/internal/utils"
)

// AccessCookie is read when no Authorization header is sent.
const AccessCookie = "accessToken"

// Blacklist remembers access tokens revoked before their expiry.
type Blacklist interface {
	Revoke(ctx context.Context, jti string, until time.Time) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// RedisBlacklist stores revoked jtis with a TTL equal to the token's
// remaining lifetime, so entries vanish once the token would be expired
// anyway.
type RedisBlacklist struct {
	Client *redis.Client
	Prefix string
}

func (b RedisBlacklist) key(jti string) string { return b.Prefix + ":bl:" + jti }

func (b RedisBlacklist) Revoke(ctx context.Context, jti string, until time.Time) error {
	ttl := time.Until(until)
	if ttl <= 0 {
		return nil
	}
	return b.Client.Set(ctx, b.key(jti), 1, ttl).Err()
}

func (b RedisBlacklist) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := b.Client.Exists(ctx, b.key(jti)).Result()
	return n > 0, err
}

// MemoryBlacklist is the single-instance fallback when Redis is absent.
type MemoryBlacklist struct {
	mu      sync.Mutex
	revoked map[string]time.Time
}

func NewMemoryBlacklist() *MemoryBlacklist {
	return &MemoryBlacklist{revoked: map[string]time.Time{}}
}

func (b *MemoryBlacklist) Revoke(_ context.Context, jti string, until time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := time.Now()
	for k, exp := range b.revoked {
		if now.After(exp) {
			delete(b.revoked, k)
		}
	}
	b.revoked[jti] = until
	return nil
}

func (b *MemoryBlacklist) IsRevoked(_ context.Context, jti string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	exp, ok := b.revoked[jti]
	return ok && time.Now().Before(exp), nil
}

// JWTAuth validates the access token from the Authorization header or the
// access cookie, rejects blacklisted tokens and stores the caller's id,
// role, jti and expiry in the context. A failed blacklist lookup rejects
// the request with 503 so a logged-out token is never accepted.
func JWTAuth(secret string, bl Blacklist, log zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := bearerToken(c)
			if raw == "" {
				return apperr.Unauthorized("missing access token")
			}
			claims, err := utils.ParseAccessToken(secret, raw)
			if err != nil {
				return apperr.New(401, apperr.CodeInvalidToken, "invalid or expired token")
			}
			if bl != nil {
				revoked, err := bl.IsRevoked(c.Request().Context(), claims.JTI)
				if err != nil {
					log.Warn().Err(err).Str("jti", claims.JTI).Msg("blacklist lookup failed")
					return apperr.Unavailable("cannot verify token, try again later")
				}
				if revoked {
					return apperr.New(401, apperr.CodeInvalidToken, "token has been revoked")
				}
			}
			c.Set(ctxUserID, claims.UserID)
			c.Set(ctxRole, model.Role(claims.Role))
			c.Set(ctxJTI, claims.JTI)
			c.Set(ctxTokenExp, claims.ExpiresAt)
			return next(c)
		}
	}
}

func bearerToken(c echo.Context) string {
	auth := c.Request().Header.Get(echo.HeaderAuthorization)
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	if ck, err := c.Cookie(AccessCookie); err == nil {
		return ck.Value
	}
	return ""
}
