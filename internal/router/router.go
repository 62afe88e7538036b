// Package router assembles the echo server: global middleware, the error
// handler, the validator and every route.
package router

import (
	"log/slog"
	"slices"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/task-manager/internal/config"
	"github.com/iliyamo/task-manager/internal/handler"
	"github.com/iliyamo/task-manager/internal/middleware"
	"github.com/iliyamo/task-manager/internal/model"
	"github.com/iliyamo/task-manager/internal/queue"
	"github.com/iliyamo/task-manager/internal/service"
	"github.com/iliyamo/task-manager/internal/utils"
)

// APIPrefix is the mount point of every versioned route.
const APIPrefix = "/api/v1"

// Deps are the collaborators the server is built from.  Redis, Events and
// Health may be nil.
type Deps struct {
	Config config.Config
	Users  service.UserStore
	Tasks  service.TaskStore
	Tokens *utils.TokenService
	Events queue.Publisher
	Redis  *redis.Client
	Health handler.Pinger
	Logger *slog.Logger
}

// New builds the echo instance with all routes registered.
func New(d Deps) *echo.Echo {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Events == nil {
		d.Events = queue.NopPublisher{}
	}
	var rdb redis.Cmdable
	if d.Redis != nil {
		rdb = d.Redis
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.ErrorHandler
	e.Validator = handler.NewValidator()

	e.Pre(echomw.RemoveTrailingSlash())
	e.Use(echomw.RequestID())
	e.Use(middleware.RequestLogger(d.Logger))
	e.Use(echomw.Recover())
	e.Use(echomw.Secure())
	e.Use(echomw.CORSWithConfig(corsConfig(d.Config.CORSOrigins)))
	e.Use(echomw.BodyLimit(d.Config.BodyLimit))

	authSvc := service.NewAuthService(d.Users, d.Tokens, d.Events, d.Config.BcryptCost)
	invalidator := middleware.NewCacheInvalidator(d.Config.Cache, rdb)
	taskSvc := service.NewTaskService(d.Tasks, d.Events).WithCache(invalidator)
	userSvc := service.NewUserService(d.Users, d.Tasks, d.Events).WithCache(invalidator)

	authH := handler.NewAuthHandler(authSvc)
	taskH := handler.NewTaskHandler(taskSvc)
	userH := handler.NewUserHandler(userSvc)
	healthH := handler.NewHealthHandler(d.Config.Env, d.Health)

	protect := middleware.JWTAuth(d.Tokens, d.Users, d.Config.AuthStrict)
	adminOnly := middleware.RequireRole(model.RoleAdmin)
	// Only the caller-scoped reads are cached; /tasks/:id must always run
	// the existence and ownership checks.
	cached := middleware.ResponseCache(d.Config.Cache, rdb)

	e.GET("/health", healthH.Health)

	api := e.Group(APIPrefix)
	api.GET("/docs", handler.Docs(e, APIPrefix))

	auth := api.Group("/auth", middleware.RateLimit(d.Config.RateLimit, rdb))
	auth.POST("/register", authH.Register)
	auth.POST("/login", authH.Login)
	auth.POST("/refresh", authH.Refresh)
	auth.POST("/logout", authH.Logout, protect)

	tasks := api.Group("/tasks", protect)
	tasks.GET("/stats", taskH.Stats, cached)
	tasks.GET("", taskH.List, cached)
	tasks.POST("", taskH.Create)
	tasks.GET("/:id", taskH.Get)
	tasks.PUT("/:id", taskH.Update)
	tasks.DELETE("/:id", taskH.Delete)

	users := api.Group("/users", protect)
	users.GET("/profile", userH.Profile)
	users.PUT("/profile", userH.UpdateProfile)
	users.GET("", userH.List, adminOnly)
	users.GET("/:id", userH.Get, adminOnly)
	users.PUT("/:id", userH.Update, adminOnly)
	users.DELETE("/:id", userH.Delete, adminOnly)

	return e
}

func corsConfig(origins []string) echomw.CORSConfig {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return echomw.CORSConfig{
		AllowOrigins: origins,
		AllowHeaders: []string{
			echo.HeaderOrigin,
			echo.HeaderContentType,
			echo.HeaderAccept,
			echo.HeaderAuthorization,
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowCredentials: !slices.Contains(origins, "*"),
	}
}
