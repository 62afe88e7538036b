package middleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/task-manager/internal/config"
	"github.com/iliyamo/task-manager/internal/model"
)

func TestRateKeyStrategies(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
	req.RemoteAddr = "10.1.2.3:5555"
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/api/v1/auth/login")

	key := func(strategy string) string {
		return rateKey(config.RateLimitConfig{Prefix: "rl", KeyStrategy: strategy}, c)
	}
	assert.Equal(t, "rl:ip:10.1.2.3", key("ip"))
	assert.Equal(t, "rl:user:anon", key("user"))
	assert.Equal(t, "rl:ip:10.1.2.3:route:POST /api/v1/auth/login", key("ip_route"))

	setIdentity(c, model.Identity{UserID: "u1", Role: model.RoleUser})
	assert.Equal(t, "rl:ip:10.1.2.3:user:u1:route:POST /api/v1/auth/login", key(""))
}

func limitedServer(t *testing.T, capacity int) (*echo.Echo, func()) {
	t.Helper()
	mr, rdb := newRedis(t)
	e := newTestServer(RateLimit(config.RateLimitConfig{
		Enabled:        true,
		Capacity:       capacity,
		RefillTokens:   1,
		RefillInterval: time.Minute,
		TTL:            10 * time.Minute,
		KeyStrategy:    "ip",
		Prefix:         "rl",
	}, rdb))
	return e, mr.Close
}

func TestRateLimitRejectsOverCapacity(t *testing.T) {
	e, _ := limitedServer(t, 2)

	for i, want := range []string{"1", "0"} {
		rec := doGet(e, "")
		require.Equal(t, http.StatusOK, rec.Code, "request %d", i+1)
		assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, want, rec.Header().Get("X-RateLimit-Remaining"))
		assert.Empty(t, rec.Header().Get("Retry-After"))
	}

	rec := doGet(e, "")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	retry, err := strconv.Atoi(rec.Header().Get("Retry-After"))
	require.NoError(t, err)
	assert.InDelta(t, 60, retry, 1)
	assert.Contains(t, rec.Body.String(), "Too many requests, please try again in")
}

func TestRateLimitKeysAreIndependent(t *testing.T) {
	e, _ := limitedServer(t, 1)

	req := func(ip string) int {
		r := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		r.RemoteAddr = ip + ":1234"
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, r)
		return rec.Code
	}
	assert.Equal(t, http.StatusOK, req("10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, req("10.0.0.1"))
	assert.Equal(t, http.StatusOK, req("10.0.0.2"))
}

func TestRateLimitFailsOpen(t *testing.T) {
	e, stop := limitedServer(t, 1)
	stop()

	for i := 0; i < 3; i++ {
		rec := doGet(e, "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, rec.Header().Get("X-RateLimit-Limit"))
		assert.Empty(t, rec.Header().Get("X-RateLimit-Remaining"))
	}
}
