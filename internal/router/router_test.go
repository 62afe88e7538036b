package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/task-manager/internal/config"
	"github.com/iliyamo/task-manager/internal/model"
	"github.com/iliyamo/task-manager/internal/repository/memstore"
	"github.com/iliyamo/task-manager/internal/service"
	"github.com/iliyamo/task-manager/internal/utils"
)

type testAPI struct {
	t      *testing.T
	e      *echo.Echo
	store  *memstore.Store
	tokens *utils.TokenService
	cfg    config.Config
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	return buildTestAPI(t, nil, nil)
}

// newCachedTestAPI serves with the response cache backed by miniredis.
func newCachedTestAPI(t *testing.T) *testAPI {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return buildTestAPI(t, map[string]string{"CACHE_ENABLED": "true"}, rdb)
}

func buildTestAPI(t *testing.T, overrides map[string]string, rdb *redis.Client) *testAPI {
	t.Helper()
	env := map[string]string{
		"STORE_DRIVER":       "memory",
		"JWT_SECRET":         "router-test-secret",
		"BCRYPT_COST":        "4",
		"RATE_LIMIT_ENABLED": "false",
		"CACHE_ENABLED":      "false",
	}
	for k, v := range overrides {
		env[k] = v
	}
	cfg, err := config.Parse(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
	require.NoError(t, err)

	store := memstore.New()
	tokens := utils.NewTokenService(cfg.JWTSecret, cfg.AccessTTLMin, cfg.RefreshTTLDays)
	e := New(Deps{Config: cfg, Users: store, Tasks: store, Tokens: tokens, Redis: rdb})
	return &testAPI{t: t, e: e, store: store, tokens: tokens, cfg: cfg}
}

type response struct {
	Code   int
	Header http.Header
	Body   map[string]any
}

func (r response) data() map[string]any {
	d, _ := r.Body["data"].(map[string]any)
	return d
}

func (a *testAPI) do(method, path, token string, body any) response {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)

	out := response{Code: rec.Code, Header: rec.Header()}
	if rec.Body.Len() > 0 {
		require.NoError(a.t, json.Unmarshal(rec.Body.Bytes(), &out.Body), rec.Body.String())
	}
	return out
}

// register returns the new user's id and access token.
func (a *testAPI) register(name, email string) (string, string) {
	a.t.Helper()
	res := a.do(http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"name": name, "email": email, "password": "Passw0rd",
	})
	require.Equal(a.t, http.StatusCreated, res.Code, res.Body)
	user := res.data()["user"].(map[string]any)
	return user["id"].(string), res.data()["accessToken"].(string)
}

func (a *testAPI) adminToken() (string, string) {
	a.t.Helper()
	auth := service.NewAuthService(a.store, a.tokens, nil, a.cfg.BcryptCost)
	_, err := auth.CreateAdmin(context.Background(), service.RegisterInput{
		Name: "Root", Email: "root@example.com", Password: "Passw0rd",
	})
	require.NoError(a.t, err)
	res := a.do(http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email": "root@example.com", "password": "Passw0rd",
	})
	require.Equal(a.t, http.StatusOK, res.Code, res.Body)
	user := res.data()["user"].(map[string]any)
	return user["id"].(string), res.data()["accessToken"].(string)
}

func TestAliceScenario(t *testing.T) {
	api := newTestAPI(t)

	res := api.do(http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"name": "Alice", "email": "alice@example.com", "password": "Passw0rd",
	})
	require.Equal(t, http.StatusCreated, res.Code, res.Body)
	assert.Equal(t, "success", res.Body["status"])
	user := res.data()["user"].(map[string]any)
	assert.Equal(t, "user", user["role"])
	assert.NotContains(t, user, "password")
	assert.NotContains(t, user, "passwordHash")
	aliceID := user["id"].(string)
	aliceToken := res.data()["accessToken"].(string)
	refresh := res.data()["refreshToken"].(string)
	require.NotEmpty(t, refresh)

	res = api.do(http.MethodPost, "/api/v1/tasks", aliceToken, map[string]any{
		"title": "Write report", "priority": "high", "tags": []string{"Work"},
	})
	require.Equal(t, http.StatusCreated, res.Code, res.Body)
	task := res.data()["task"].(map[string]any)
	assert.Equal(t, aliceID, task["user"])
	assert.Equal(t, "pending", task["status"])
	taskID := task["id"].(string)

	res = api.do(http.MethodGet, "/api/v1/tasks/"+taskID, aliceToken, nil)
	assert.Equal(t, http.StatusOK, res.Code)

	_, bobToken := api.register("Bob", "bob@example.com")
	res = api.do(http.MethodGet, "/api/v1/tasks/"+taskID, bobToken, nil)
	assert.Equal(t, http.StatusForbidden, res.Code)
	assert.Equal(t, "Not authorized to access this task", res.Body["message"])
	res = api.do(http.MethodDelete, "/api/v1/tasks/"+taskID, bobToken, nil)
	assert.Equal(t, http.StatusForbidden, res.Code)

	res = api.do(http.MethodGet, "/api/v1/users", aliceToken, nil)
	assert.Equal(t, http.StatusForbidden, res.Code)

	res = api.do(http.MethodPost, "/api/v1/auth/logout", aliceToken, nil)
	assert.Equal(t, http.StatusOK, res.Code)
	res = api.do(http.MethodPost, "/api/v1/auth/refresh", "", map[string]string{"refreshToken": refresh})
	assert.Equal(t, http.StatusUnauthorized, res.Code)
	assert.Equal(t, "error", res.Body["status"])
}

func TestRefreshRotationOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	api.register("Alice", "alice@example.com")
	res := api.do(http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email": "ALICE@example.com", "password": "Passw0rd",
	})
	require.Equal(t, http.StatusOK, res.Code, res.Body)
	first := res.data()["refreshToken"].(string)

	res = api.do(http.MethodPost, "/api/v1/auth/refresh", "", map[string]string{"refreshToken": first})
	require.Equal(t, http.StatusOK, res.Code, res.Body)
	second := res.data()["refreshToken"].(string)
	assert.NotEqual(t, first, second)
	assert.NotEmpty(t, res.data()["accessToken"])

	res = api.do(http.MethodPost, "/api/v1/auth/refresh", "", map[string]string{"refreshToken": first})
	assert.Equal(t, http.StatusUnauthorized, res.Code)
	assert.Equal(t, "Invalid or expired refresh token", res.Body["message"])
}

func TestLoginErrorsAreGeneric(t *testing.T) {
	api := newTestAPI(t)
	api.register("Alice", "alice@example.com")

	wrong := api.do(http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email": "alice@example.com", "password": "Nope1234",
	})
	unknown := api.do(http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email": "ghost@example.com", "password": "Passw0rd",
	})
	assert.Equal(t, http.StatusUnauthorized, wrong.Code)
	assert.Equal(t, wrong.Code, unknown.Code)
	assert.Equal(t, wrong.Body, unknown.Body)
}

func TestRegisterValidation(t *testing.T) {
	api := newTestAPI(t)
	res := api.do(http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"name": "A", "email": "not-an-email", "password": "password",
	})
	require.Equal(t, http.StatusBadRequest, res.Code)
	assert.Equal(t, "Validation failed", res.Body["message"])

	fields := map[string]string{}
	for _, raw := range res.Body["errors"].([]any) {
		fe := raw.(map[string]any)
		fields[fe["field"].(string)] = fe["message"].(string)
	}
	assert.Equal(t, "Name must be between 2 and 50 characters", fields["name"])
	assert.Equal(t, "Please provide a valid email", fields["email"])
	assert.Equal(t, "Password must contain at least one uppercase letter, one lowercase letter, and one number", fields["password"])

	api.register("Alice", "alice@example.com")
	res = api.do(http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"name": "Alice", "email": "alice@example.com", "password": "Passw0rd",
	})
	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Equal(t, "User with this email already exists", res.Body["message"])
}

func TestExpiredAndMissingTokens(t *testing.T) {
	api := newTestAPI(t)
	aliceID, _ := api.register("Alice", "alice@example.com")

	res := api.do(http.MethodGet, "/api/v1/tasks", "", nil)
	assert.Equal(t, http.StatusUnauthorized, res.Code)

	past := api.tokens.WithClock(func() time.Time { return time.Now().Add(-2 * time.Hour) })
	expired, err := past.IssueAccessToken(aliceID, model.RoleUser)
	require.NoError(t, err)
	res = api.do(http.MethodGet, "/api/v1/tasks", expired.Token, nil)
	assert.Equal(t, http.StatusUnauthorized, res.Code)

	refresh, err := api.tokens.IssueRefreshToken(aliceID)
	require.NoError(t, err)
	res = api.do(http.MethodGet, "/api/v1/tasks", refresh.Raw, nil)
	assert.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestAdminUserManagement(t *testing.T) {
	api := newTestAPI(t)
	aliceID, aliceToken := api.register("Alice", "alice@example.com")
	adminID, adminToken := api.adminToken()

	res := api.do(http.MethodGet, "/api/v1/users/"+aliceID, adminToken, nil)
	require.Equal(t, http.StatusOK, res.Code, res.Body)
	assert.Equal(t, "alice@example.com", res.data()["user"].(map[string]any)["email"])

	res = api.do(http.MethodGet, "/api/v1/users?role=user", adminToken, nil)
	require.Equal(t, http.StatusOK, res.Code)
	assert.EqualValues(t, 1, res.Body["results"])
	assert.EqualValues(t, 1, res.Body["pagination"].(map[string]any)["total"])

	res = api.do(http.MethodGet, "/api/v1/users/"+aliceID, aliceToken, nil)
	assert.Equal(t, http.StatusForbidden, res.Code)

	res = api.do(http.MethodGet, "/api/v1/users/not-a-uuid", adminToken, nil)
	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Equal(t, "Validation failed", res.Body["message"])

	res = api.do(http.MethodDelete, "/api/v1/users/"+adminID, adminToken, nil)
	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Equal(t, "You cannot delete your own account", res.Body["message"])

	res = api.do(http.MethodPut, "/api/v1/users/"+aliceID, adminToken, map[string]any{"isActive": false})
	require.Equal(t, http.StatusOK, res.Code, res.Body)
	res = api.do(http.MethodGet, "/api/v1/users/profile", aliceToken, nil)
	assert.Equal(t, http.StatusUnauthorized, res.Code, "deactivation applies to live access tokens")

	res = api.do(http.MethodDelete, "/api/v1/users/"+aliceID, adminToken, nil)
	assert.Equal(t, http.StatusOK, res.Code)
	res = api.do(http.MethodGet, "/api/v1/users/"+aliceID, adminToken, nil)
	assert.Equal(t, http.StatusNotFound, res.Code)
	assert.Equal(t, "User not found", res.Body["message"])
}

func TestTaskListingAndStats(t *testing.T) {
	api := newTestAPI(t)
	_, token := api.register("Alice", "alice@example.com")

	for _, body := range []map[string]any{
		{"title": "First task"},
		{"title": "Second task", "status": "completed"},
		{"title": "Third task", "status": "in-progress", "priority": "low"},
	} {
		res := api.do(http.MethodPost, "/api/v1/tasks", token, body)
		require.Equal(t, http.StatusCreated, res.Code, res.Body)
	}

	res := api.do(http.MethodGet, "/api/v1/tasks?limit=2&sort=title", token, nil)
	require.Equal(t, http.StatusOK, res.Code)
	assert.EqualValues(t, 2, res.Body["results"])
	pg := res.Body["pagination"].(map[string]any)
	assert.EqualValues(t, 3, pg["total"])
	assert.EqualValues(t, 2, pg["pages"])
	tasks := res.data()["tasks"].([]any)
	assert.Equal(t, "First task", tasks[0].(map[string]any)["title"])

	res = api.do(http.MethodGet, "/api/v1/tasks?status=done", token, nil)
	assert.Equal(t, http.StatusBadRequest, res.Code)

	res = api.do(http.MethodGet, "/api/v1/tasks/stats", token, nil)
	require.Equal(t, http.StatusOK, res.Code)
	stats := res.data()["stats"].(map[string]any)
	assert.EqualValues(t, 3, stats["total"])
	assert.EqualValues(t, 1, stats["completed"])
	assert.EqualValues(t, 1, stats["inProgress"])
	assert.EqualValues(t, 1, stats["pending"])
}

func TestTaskValidationAndNotFound(t *testing.T) {
	api := newTestAPI(t)
	_, token := api.register("Alice", "alice@example.com")

	res := api.do(http.MethodPost, "/api/v1/tasks", token, map[string]any{
		"title": "ab", "dueDate": "2001-01-01", "tags": "work",
	})
	assert.Equal(t, http.StatusBadRequest, res.Code)

	res = api.do(http.MethodPost, "/api/v1/tasks", token, map[string]any{
		"title": "ab", "dueDate": "2001-01-01",
	})
	require.Equal(t, http.StatusBadRequest, res.Code)
	assert.Len(t, res.Body["errors"], 2)

	res = api.do(http.MethodGet, "/api/v1/tasks/6c1e5d4e-8f4a-4b59-9a55-0d6f7a1c2b3d", token, nil)
	assert.Equal(t, http.StatusNotFound, res.Code)
	assert.Equal(t, "Task not found", res.Body["message"])
}

func TestUnknownRouteAndHealth(t *testing.T) {
	api := newTestAPI(t)

	res := api.do(http.MethodGet, "/api/v1/nothing-here", "", nil)
	assert.Equal(t, http.StatusNotFound, res.Code)
	assert.Equal(t, "Route /api/v1/nothing-here not found", res.Body["message"])

	res = api.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "success", res.Body["status"])

	res = api.do(http.MethodGet, "/api/v1/docs", "", nil)
	require.Equal(t, http.StatusOK, res.Code)
	assert.NotEmpty(t, res.data()["routes"])
}

func TestCachedReadsFollowRoleAndDeletion(t *testing.T) {
	api := newCachedTestAPI(t)
	_, bobToken := api.register("Bob", "bob@example.com")
	eveID, eveToken := api.register("Eve", "eve@example.com")
	_, rootToken := api.adminToken()

	res := api.do(http.MethodPost, "/api/v1/tasks", bobToken, map[string]any{"title": "bob secret"})
	require.Equal(t, http.StatusCreated, res.Code, res.Body)
	taskID := res.data()["task"].(map[string]any)["id"].(string)
	taskPath := "/api/v1/tasks/" + taskID

	res = api.do(http.MethodPut, "/api/v1/users/"+eveID, rootToken, map[string]any{"role": "admin"})
	require.Equal(t, http.StatusOK, res.Code, res.Body)
	res = api.do(http.MethodGet, taskPath, eveToken, nil)
	require.Equal(t, http.StatusOK, res.Code, res.Body)
	assert.Empty(t, res.Header.Get("X-Cache"))

	res = api.do(http.MethodPut, "/api/v1/users/"+eveID, rootToken, map[string]any{"role": "user"})
	require.Equal(t, http.StatusOK, res.Code, res.Body)
	res = api.do(http.MethodGet, taskPath, eveToken, nil)
	assert.Equal(t, http.StatusForbidden, res.Code, "a demoted admin loses access at once")

	res = api.do(http.MethodGet, taskPath, rootToken, nil)
	require.Equal(t, http.StatusOK, res.Code)
	res = api.do(http.MethodDelete, taskPath, bobToken, nil)
	require.Equal(t, http.StatusOK, res.Code)
	res = api.do(http.MethodGet, taskPath, rootToken, nil)
	assert.Equal(t, http.StatusNotFound, res.Code)
	assert.Equal(t, "Task not found", res.Body["message"])
}

func TestCachedListSeesOwnerChangesByAdmin(t *testing.T) {
	api := newCachedTestAPI(t)
	_, bobToken := api.register("Bob", "bob@example.com")
	_, rootToken := api.adminToken()

	res := api.do(http.MethodPost, "/api/v1/tasks", bobToken, map[string]any{"title": "Original title"})
	require.Equal(t, http.StatusCreated, res.Code, res.Body)
	taskID := res.data()["task"].(map[string]any)["id"].(string)

	res = api.do(http.MethodGet, "/api/v1/tasks", bobToken, nil)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "MISS", res.Header.Get("X-Cache"))
	res = api.do(http.MethodGet, "/api/v1/tasks", bobToken, nil)
	assert.Equal(t, "HIT", res.Header.Get("X-Cache"))

	res = api.do(http.MethodPut, "/api/v1/tasks/"+taskID, rootToken, map[string]any{"title": "Renamed by admin"})
	require.Equal(t, http.StatusOK, res.Code, res.Body)

	res = api.do(http.MethodGet, "/api/v1/tasks", bobToken, nil)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "MISS", res.Header.Get("X-Cache"))
	tasks := res.data()["tasks"].([]any)
	require.Len(t, tasks, 1)
	assert.Equal(t, "Renamed by admin", tasks[0].(map[string]any)["title"])

	res = api.do(http.MethodGet, "/api/v1/tasks/stats", bobToken, nil)
	require.Equal(t, http.StatusOK, res.Code)
	res = api.do(http.MethodDelete, "/api/v1/tasks/"+taskID, rootToken, nil)
	require.Equal(t, http.StatusOK, res.Code)
	res = api.do(http.MethodGet, "/api/v1/tasks/stats", bobToken, nil)
	assert.EqualValues(t, 0, res.data()["stats"].(map[string]any)["total"])
}

func TestProfileAndAdminGetIncludeTasks(t *testing.T) {
	api := newTestAPI(t)
	aliceID, aliceToken := api.register("Alice", "alice@example.com")
	adminID, adminToken := api.adminToken()

	res := api.do(http.MethodPost, "/api/v1/tasks", aliceToken, map[string]any{"title": "Alice task"})
	require.Equal(t, http.StatusCreated, res.Code, res.Body)

	for _, path := range []string{"/api/v1/users/profile", "/api/v1/users/" + aliceID} {
		token := aliceToken
		if path != "/api/v1/users/profile" {
			token = adminToken
		}
		res = api.do(http.MethodGet, path, token, nil)
		require.Equal(t, http.StatusOK, res.Code, res.Body)
		user := res.data()["user"].(map[string]any)
		assert.Equal(t, aliceID, user["id"])
		tasks := user["tasks"].([]any)
		require.Len(t, tasks, 1, path)
		assert.Equal(t, "Alice task", tasks[0].(map[string]any)["title"])
	}

	res = api.do(http.MethodGet, "/api/v1/users/"+adminID, adminToken, nil)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Empty(t, res.data()["user"].(map[string]any)["tasks"])
}

func TestAdminCannotDemoteSelfOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	adminID, adminToken := api.adminToken()

	for _, body := range []map[string]any{{"role": "user"}, {"isActive": false}} {
		res := api.do(http.MethodPut, "/api/v1/users/"+adminID, adminToken, body)
		assert.Equal(t, http.StatusBadRequest, res.Code)
		assert.Equal(t, "You cannot change your own role or deactivate your own account", res.Body["message"])
	}

	res := api.do(http.MethodGet, "/api/v1/users", adminToken, nil)
	assert.Equal(t, http.StatusOK, res.Code, "still an admin")
}

func TestHugePageIsClamped(t *testing.T) {
	api := newTestAPI(t)
	_, token := api.register("Alice", "alice@example.com")

	res := api.do(http.MethodGet, "/api/v1/tasks?page=4611686018427387904", token, nil)
	require.Equal(t, http.StatusOK, res.Code, res.Body)
	assert.EqualValues(t, model.MaxPage, res.Body["pagination"].(map[string]any)["page"])
	assert.Empty(t, res.data()["tasks"])
}
