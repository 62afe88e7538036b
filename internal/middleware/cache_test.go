package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/task-manager/internal/apperr"
	"github.com/iliyamo/task-manager/internal/config"
	"github.com/iliyamo/task-manager/internal/model"
)

func TestPayloadRoundTrip(t *testing.T) {
	hdr := http.Header{"Content-Type": {"application/json"}}
	bs, err := encodePayload(http.StatusOK, hdr, []byte(`{"status":"success"}`))
	require.NoError(t, err)

	status, got, body, ok := decodePayload(bs)
	require.True(t, ok)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "application/json", got.Get("Content-Type"))
	assert.Equal(t, `{"status":"success"}`, string(body))
}

func TestDecodePayloadRejectsGarbage(t *testing.T) {
	_, _, _, ok := decodePayload([]byte{0, 0})
	assert.False(t, ok)
	_, _, _, ok = decodePayload([]byte{0, 0, 0, 200, 0, 0, 0, 50, '{'})
	assert.False(t, ok)
}

func TestCacheKeyIsPerUserAndGeneration(t *testing.T) {
	cfg := config.CacheConfig{Prefix: "cache"}
	r := httptest.NewRequest(http.MethodGet, "/api/v1/tasks?page=2", nil)

	a0 := cacheKey(cfg, "alice", 0, r)
	assert.NotEqual(t, a0, cacheKey(cfg, "bob", 0, r))
	assert.NotEqual(t, a0, cacheKey(cfg, "alice", 1, r))
	assert.Equal(t, a0, cacheKey(cfg, "alice", 0, httptest.NewRequest(http.MethodGet, "/api/v1/tasks?page=2", nil)))
	assert.NotEqual(t, a0, cacheKey(cfg, "alice", 0, httptest.NewRequest(http.MethodGet, "/api/v1/tasks?page=3", nil)))
}

func TestDisabledMiddlewaresPassThrough(t *testing.T) {
	e := newTestServer(
		ResponseCache(config.CacheConfig{Enabled: false}, nil),
		RateLimit(config.RateLimitConfig{Enabled: true}, nil),
	)
	rec := doGet(e, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "nobody", rec.Body.String())
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

// asUser sets the identity named by the X-User header, standing in for
// JWTAuth.
func asUser(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if uid := c.Request().Header.Get("X-User"); uid != "" {
			setIdentity(c, model.Identity{UserID: uid, Role: model.RoleUser})
		}
		return next(c)
	}
}

type countingHandler struct {
	calls  atomic.Int32
	status int
}

func (h *countingHandler) serve(c echo.Context) error {
	n := h.calls.Add(1)
	id, _ := CurrentIdentity(c)
	return c.JSON(h.status, map[string]any{"user": id.UserID, "call": n})
}

func cacheServer(cfg config.CacheConfig, rdb redis.Cmdable, h *countingHandler) *echo.Echo {
	e := echo.New()
	e.HTTPErrorHandler = ErrorHandler
	e.GET("/tasks", h.serve, asUser, ResponseCache(cfg, rdb))
	e.GET("/fail", func(c echo.Context) error {
		h.calls.Add(1)
		return apperr.NotFound("Task not found")
	}, asUser, ResponseCache(cfg, rdb))
	return e
}

func getAs(e *echo.Echo, path, user string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if user != "" {
		req.Header.Set("X-User", user)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func enabledCache() config.CacheConfig {
	return config.CacheConfig{
		Enabled:      true,
		Methods:      map[string]bool{http.MethodGet: true},
		TTL:          time.Minute,
		Prefix:       "cache",
		MaxBodyBytes: 1 << 20,
	}
}

func TestResponseCacheHitAndMiss(t *testing.T) {
	_, rdb := newRedis(t)
	h := &countingHandler{status: http.StatusOK}
	e := cacheServer(enabledCache(), rdb, h)

	first := getAs(e, "/tasks?page=1", "alice")
	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "MISS", first.Header().Get("X-Cache"))

	second := getAs(e, "/tasks?page=1", "alice")
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "HIT", second.Header().Get("X-Cache"))
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, echo.MIMEApplicationJSON, second.Header().Get(echo.HeaderContentType))
	assert.Equal(t, int32(1), h.calls.Load())

	other := getAs(e, "/tasks?page=1", "bob")
	assert.Equal(t, "MISS", other.Header().Get("X-Cache"))
	assert.Contains(t, other.Body.String(), `"user":"bob"`)

	assert.Equal(t, "MISS", getAs(e, "/tasks?page=2", "alice").Header().Get("X-Cache"))
	assert.Equal(t, int32(3), h.calls.Load())

	anon := getAs(e, "/tasks", "")
	assert.Empty(t, anon.Header().Get("X-Cache"))
}

func TestResponseCacheSkipsNonOK(t *testing.T) {
	_, rdb := newRedis(t)
	h := &countingHandler{status: http.StatusAccepted}
	e := cacheServer(enabledCache(), rdb, h)

	for i := 0; i < 2; i++ {
		assert.Equal(t, "MISS", getAs(e, "/tasks", "alice").Header().Get("X-Cache"))
		rec := getAs(e, "/fail", "alice")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	}
	assert.Equal(t, int32(4), h.calls.Load())
}

func TestCacheInvalidatorBumpsGeneration(t *testing.T) {
	mr, rdb := newRedis(t)
	cfg := enabledCache()
	h := &countingHandler{status: http.StatusOK}
	e := cacheServer(cfg, rdb, h)
	inv := NewCacheInvalidator(cfg, rdb)
	require.NotNil(t, inv)

	getAs(e, "/tasks", "alice")
	getAs(e, "/tasks", "bob")
	require.Equal(t, "HIT", getAs(e, "/tasks", "alice").Header().Get("X-Cache"))

	inv.Invalidate(context.Background(), "alice", "")
	gen, err := mr.Get("cache:gen:alice")
	require.NoError(t, err)
	assert.Equal(t, "1", gen)

	rec := getAs(e, "/tasks", "alice")
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	assert.Contains(t, rec.Body.String(), `"call":3`)
	assert.Equal(t, "HIT", getAs(e, "/tasks", "alice").Header().Get("X-Cache"))
	assert.Equal(t, "HIT", getAs(e, "/tasks", "bob").Header().Get("X-Cache"))
}

func TestCacheInvalidatorDisabled(t *testing.T) {
	_, rdb := newRedis(t)
	assert.Nil(t, NewCacheInvalidator(config.CacheConfig{Enabled: false}, rdb))
	assert.Nil(t, NewCacheInvalidator(enabledCache(), nil))

	var inv *CacheInvalidator
	assert.NotPanics(t, func() { inv.Invalidate(context.Background(), "alice") })
}

func TestResponseCacheFailsOpen(t *testing.T) {
	mr, rdb := newRedis(t)
	h := &countingHandler{status: http.StatusOK}
	e := cacheServer(enabledCache(), rdb, h)
	mr.Close()

	for i := 0; i < 2; i++ {
		rec := getAs(e, "/tasks", "alice")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, rec.Header().Get("X-Cache"))
	}
	assert.Equal(t, int32(2), h.calls.Load())
	assert.NotPanics(t, func() {
		NewCacheInvalidator(enabledCache(), rdb).Invalidate(context.Background(), "alice")
	})
}
