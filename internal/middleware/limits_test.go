package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/iliyamo/journal-portal/internal/config"
	"github.com/iliyamo/journal-portal/internal/model"
)

func routeContext(target string, userID uint64) echo.Context {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.RemoteAddr = "192.0.2.1:4312"
	c := echo.New().NewContext(req, httptest.NewRecorder())
	c.SetPath("/api/articles")
	if userID != 0 {
		SetIdentity(c, userID, model.RoleAuthor)
	}
	return c
}

func TestRateKey(t *testing.T) {
	cases := []struct {
		strategy string
		user     uint64
		want     string
	}{
		{"ip", 0, "rl:ip:192.0.2.1"},
		{"USER_route", 5, "rl:user:5:route:GET /api/articles"},
		{"ip_user", 0, "rl:ip:192.0.2.1:user:anon"},
		{"", 9, "rl:ip:192.0.2.1:user:9:route:GET /api/articles"},
		{"ip_bogus", 0, "rl:ip:192.0.2.1:user:anon:route:GET /api/articles"},
	}
	for _, tc := range cases {
		if got := rateKey("rl", tc.strategy, routeContext("/api/articles", tc.user)); got != tc.want {
			t.Errorf("%q: got %q, want %q", tc.strategy, got, tc.want)
		}
	}
}

func TestResponseKey(t *testing.T) {
	key := func(strategy, target string) string {
		return responseKey(config.CacheConfig{Prefix: "cache", KeyStrategy: strategy}, routeContext(target, 0))
	}

	if key("route", "/api/articles?page=1") != key("route", "/api/articles?page=2") {
		t.Error("route strategy should ignore the query")
	}
	if key("route_query", "/api/articles?page=1") == key("route_query", "/api/articles?page=2") {
		t.Error("route_query strategy should include the query")
	}
	if key("nonsense", "/api/articles?page=1") != key("route_query", "/api/articles?page=1") {
		t.Error("unknown strategy should fall back to route_query")
	}
	if k := key("", "/api/articles"); len(k) != len("cache:")+40 {
		t.Errorf("unexpected key %q", k)
	}
}

func TestResponseKeyPerEntity(t *testing.T) {
	cfg := config.CacheConfig{Prefix: "cache", KeyStrategy: "route_query"}
	keys := map[string]string{}

	e := echo.New()
	e.GET("/api/articles/:id", func(c echo.Context) error {
		keys[c.Param("id")] = responseKey(cfg, c)
		return c.NoContent(http.StatusOK)
	})
	for _, id := range []string{"1", "2"} {
		e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/articles/"+id, nil))
	}

	if keys["1"] == "" || keys["2"] == "" {
		t.Fatalf("handler not reached: %v", keys)
	}
	if keys["1"] == keys["2"] {
		t.Fatalf("articles 1 and 2 share cache key %s", keys["1"])
	}
}

func TestRecorderOverflow(t *testing.T) {
	under := httptest.NewRecorder()
	rec := &recorder{ResponseWriter: under, code: http.StatusOK, max: 4}
	_, _ = rec.Write([]byte("ab"))
	if !rec.cacheable() || rec.body.String() != "ab" {
		t.Fatalf("body=%q", rec.body.String())
	}
	_, _ = rec.Write([]byte("cde"))
	if rec.cacheable() || rec.body.Len() != 0 {
		t.Fatalf("overflowed body kept: %q", rec.body.String())
	}
	if under.Body.String() != "abcde" {
		t.Fatalf("client got %q", under.Body.String())
	}

	rec = &recorder{ResponseWriter: httptest.NewRecorder(), code: http.StatusOK}
	rec.WriteHeader(http.StatusNotFound)
	if rec.cacheable() {
		t.Fatal("404 must not be cached")
	}
}

func TestPassThroughWithoutRedis(t *testing.T) {
	limit := NewTokenBucket(config.RateLimitConfig{Enabled: true, Capacity: 1}, nil, zerolog.Nop())
	cache := NewRedisCache(config.CacheConfig{Enabled: true, Methods: map[string]bool{http.MethodGet: true}}, nil, zerolog.Nop())

	calls := 0
	h := limit(cache(func(c echo.Context) error {
		calls++
		return c.NoContent(http.StatusNoContent)
	}))
	for range 3 {
		c := routeContext("/api/articles", 0)
		if err := h(c); err != nil {
			t.Fatal(err)
		}
		if c.Response().Header().Get("X-Cache") != "" {
			t.Fatal("cache header set without redis")
		}
	}
	if calls != 3 {
		t.Fatalf("calls=%d", calls)
	}
}
