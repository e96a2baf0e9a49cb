package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/iliyamo/journal-portal/internal/apperr"
	"github.com/iliyamo/journal-portal/internal/config"
)

// takeToken refills the bucket continuously at rate tokens per ms, then
// tries to spend one. Reply: {granted, tokens left (floored), wait ms}.
var takeToken = redis.NewScript(`
local cap  = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local now  = tonumber(ARGV[3])
local ttl  = tonumber(ARGV[4])

local h = redis.call('HMGET', KEYS[1], 'n', 'ts')
local n  = tonumber(h[1]) or cap
local ts = tonumber(h[2]) or now
if now > ts then
  n = math.min(cap, n + (now - ts) * rate)
end

local granted, wait = 0, 0
if n >= 1 then
  granted = 1
  n = n - 1
else
  wait = math.ceil((1 - n) / rate)
end
redis.call('HSET', KEYS[1], 'n', n, 'ts', now)
redis.call('EXPIRE', KEYS[1], ttl)
return {granted, math.floor(n), wait}
`)

// NewTokenBucket limits requests per key with a Redis token bucket. It is
// a pass-through when disabled or without Redis, and fails open when a
// Redis call errors.
func NewTokenBucket(cfg config.RateLimitConfig, rdb *redis.Client, log zerolog.Logger) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	interval := cfg.RefillInterval
	if interval < time.Millisecond {
		interval = time.Second
	}
	rate := float64(max(cfg.RefillTokens, 1)) / float64(interval.Milliseconds())
	ttl := int64(cfg.TTL / time.Second)
	limit := strconv.Itoa(cfg.Capacity)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := rateKey(cfg.Prefix, cfg.KeyStrategy, c)
			res, err := takeToken.Run(c.Request().Context(), rdb, []string{key},
				cfg.Capacity, rate, time.Now().UnixMilli(), ttl).Int64Slice()
			if err != nil || len(res) != 3 {
				log.Warn().Err(err).Str("key", key).Msg("rate limiter unavailable, allowing request")
				return next(c)
			}

			hdr := c.Response().Header()
			hdr.Set("X-RateLimit-Limit", limit)
			hdr.Set("X-RateLimit-Remaining", strconv.FormatInt(res[1], 10))
			if cfg.Debug {
				hdr.Set("X-RateLimit-Key", key)
			}
			if res[0] == 1 {
				return next(c)
			}

			secs := max(1, (res[2]+999)/1000)
			hdr.Set("Retry-After", strconv.FormatInt(secs, 10))
			log.Info().Str("key", key).Int64("retry_after", secs).Msg("rate limit exceeded")
			return apperr.New(http.StatusTooManyRequests, apperr.CodeRateLimited,
				fmt.Sprintf("too many requests, retry in %d seconds", secs)).
				WithDetails(map[string]int64{"retryAfter": secs})
		}
	}
}

// rateKey joins the prefix with the parts named by strategy, an
// underscore separated list of ip, user and route ("ip_route"). An empty
// or unknown strategy keys on all three.
func rateKey(prefix, strategy string, c echo.Context) string {
	part := func(name string) (string, bool) {
		switch name {
		case "ip":
			if ip := c.RealIP(); ip != "" {
				return ip, true
			}
			return "unknown", true
		case "user":
			return userKey(c), true
		case "route":
			return c.Request().Method + " " + c.Path(), true
		}
		return "", false
	}

	segs := []string{prefix}
	for _, name := range strings.Split(strings.ToLower(strategy), "_") {
		v, known := part(name)
		if !known {
			segs = segs[:1]
			break
		}
		segs = append(segs, name, v)
	}
	if len(segs) == 1 {
		for _, name := range []string{"ip", "user", "route"} {
			v, _ := part(name)
			segs = append(segs, name, v)
		}
	}
	return strings.Join(segs, ":")
}
