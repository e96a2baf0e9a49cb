package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/iliyamo/journal-portal/internal/config"
)

// cachedResponse is what a cache entry holds. Body is base64 in the
// stored JSON.
type cachedResponse struct {
	Status int         `json:"s"`
	Header http.Header `json:"h,omitempty"`
	Body   []byte      `json:"b"`
}

// recorder copies what the handler writes, up to max bytes. Once the body
// outgrows max the copy is dropped and overflow is set.
type recorder struct {
	http.ResponseWriter
	code     int
	body     bytes.Buffer
	max      int
	overflow bool
}

func (r *recorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *recorder) Write(p []byte) (int, error) {
	if !r.overflow {
		if r.max > 0 && r.body.Len()+len(p) > r.max {
			r.overflow = true
			r.body.Reset()
		} else {
			r.body.Write(p)
		}
	}
	return r.ResponseWriter.Write(p)
}

func (r *recorder) cacheable() bool {
	return r.code == http.StatusOK && !r.overflow
}

// responseKey hashes the request parts named by strategy: method, route and
// query joined by underscores. "route_query" is used for an empty or
// unknown strategy. The route part is the concrete request path, so
// /api/articles/1 and /api/articles/2 never share an entry.
func responseKey(cfg config.CacheConfig, c echo.Context) string {
	req := c.Request()
	pick := map[string]string{
		"method": req.Method,
		"route":  req.URL.Path,
		"query":  req.URL.RawQuery,
	}
	names := strings.Split(strings.ToLower(cfg.KeyStrategy), "_")
	for _, n := range names {
		if _, ok := pick[n]; !ok {
			names = []string{"route", "query"}
			break
		}
	}

	h := sha256.New()
	for _, n := range names {
		h.Write([]byte(n + "=" + pick[n] + "\n"))
	}
	return cfg.Prefix + ":" + hex.EncodeToString(h.Sum(nil)[:20])
}

func replay(c echo.Context, entry cachedResponse) error {
	out := c.Response().Header()
	for k, vals := range entry.Header {
		if k == echo.HeaderContentLength || len(out[k]) > 0 {
			continue
		}
		out[k] = vals
	}
	out.Set("X-Cache", "HIT")
	return c.Blob(entry.Status, out.Get(echo.HeaderContentType), entry.Body)
}

// NewRedisCache serves cached 200 responses for the configured methods and
// marks every response with X-Cache HIT or MISS. Requests carrying
// credentials bypass the cache.
func NewRedisCache(cfg config.CacheConfig, rdb *redis.Client, log zerolog.Logger) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if !cfg.Methods[req.Method] || req.Header.Get(echo.HeaderAuthorization) != "" {
				return next(c)
			}
			key := responseKey(cfg, c)

			raw, err := rdb.Get(req.Context(), key).Bytes()
			switch {
			case err == nil:
				var entry cachedResponse
				if json.Unmarshal(raw, &entry) == nil {
					return replay(c, entry)
				}
				log.Debug().Str("key", key).Msg("discarding unreadable cache entry")
			case err != redis.Nil:
				log.Warn().Err(err).Msg("cache lookup failed")
			}

			rec := &recorder{ResponseWriter: c.Response().Writer, code: http.StatusOK, max: cfg.MaxBodyBytes}
			c.Response().Writer = rec
			c.Response().Header().Set("X-Cache", "MISS")
			if err := next(c); err != nil || !rec.cacheable() {
				return err
			}

			entry := cachedResponse{Status: rec.code, Header: c.Response().Header().Clone(), Body: rec.body.Bytes()}
			entry.Header.Del("X-Cache")
			raw, err = json.Marshal(entry)
			if err == nil {
				err = rdb.Set(context.WithoutCancel(req.Context()), key, raw, ttl).Err()
			}
			if err != nil {
				log.Warn().Err(err).Str("key", key).Msg("cache store failed")
			}
			return nil
		}
	}
}

// PurgeCache drops every cached response under prefix. Handlers call it
// after writes that change public listings.
func PurgeCache(ctx context.Context, rdb *redis.Client, prefix string) error {
	if rdb == nil {
		return nil
	}
	var cursor uint64
	for {
		keys, next, err := rdb.Scan(ctx, cursor, prefix+":*", 250).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := rdb.Unlink(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}
