package handler

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthHandler serves GET /health.
type HealthHandler struct {
	Env     string
	Store   Pinger // nil for the memory store
	started time.Time
}

func NewHealthHandler(env string, store Pinger) *HealthHandler {
	return &HealthHandler{Env: env, Store: store, started: time.Now()}
}

// Health answers 200 while the store is reachable and 503 otherwise.
func (h *HealthHandler) Health(c echo.Context) error {
	data := echo.Map{
		"environment": h.Env,
		"timestamp":   time.Now().UTC(),
		"uptime":      time.Since(h.started).Round(time.Second).String(),
	}
	if h.Store != nil {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		if err := h.Store.PingContext(ctx); err != nil {
			data["store"] = "down"
			return c.JSON(http.StatusServiceUnavailable, Envelope{Status: "error", Message: "Store unavailable", Data: data})
		}
		data["store"] = "up"
	}
	return success(c, http.StatusOK, "Server is running", data)
}

type routeDoc struct {
	Method string `json:"method"`
	Path   string `json:"path"`
}

// Docs lists the API routes registered on e under prefix.
func Docs(e *echo.Echo, prefix string) echo.HandlerFunc {
	return func(c echo.Context) error {
		var routes []routeDoc
		for _, r := range e.Routes() {
			if !strings.HasPrefix(r.Path, prefix) || r.Method == echo.RouteNotFound {
				continue
			}
			routes = append(routes, routeDoc{Method: r.Method, Path: r.Path})
		}
		sort.Slice(routes, func(i, j int) bool {
			if routes[i].Path == routes[j].Path {
				return routes[i].Method < routes[j].Method
			}
			return routes[i].Path < routes[j].Path
		})
		return success(c, http.StatusOK, "Task Manager API v1", echo.Map{
			"version": "v1",
			"routes":  routes,
		})
	}
}
