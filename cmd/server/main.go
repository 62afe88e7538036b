package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/task-manager/internal/config"
	"github.com/iliyamo/task-manager/internal/logger"
	"github.com/iliyamo/task-manager/internal/queue"
	"github.com/iliyamo/task-manager/internal/router"
	"github.com/iliyamo/task-manager/internal/storage"
	"github.com/iliyamo/task-manager/internal/utils"
)

func main() {
	cfg := config.Load()
	logger.Init(cfg.LogLevel, cfg.LogFormat)

	if err := run(cfg); err != nil {
		slog.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, err := storage.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := backend.Close(); err != nil {
			slog.Warn("close store", "err", err)
		}
	}()

	var rdb *redis.Client
	if cfg.RateLimit.Enabled || cfg.Cache.Enabled {
		if rdb = config.NewRedisClient(cfg.Redis); rdb == nil {
			slog.Warn("redis unavailable; rate limiting and caching disabled", "addr", cfg.Redis.Addr)
		} else {
			defer rdb.Close()
		}
	}

	var events queue.Publisher = queue.NopPublisher{}
	if cfg.EventsEnabled {
		pub := queue.NewAMQPPublisher(cfg.AMQPURL, cfg.EventsQueue)
		defer pub.Close()
		events = pub
	}

	e := router.New(router.Deps{
		Config: cfg,
		Users:  backend.Users,
		Tasks:  backend.Tasks,
		Tokens: utils.NewTokenService(cfg.JWTSecret, cfg.AccessTTLMin, cfg.RefreshTTLDays),
		Events: events,
		Redis:  rdb,
		Health: backend.Health,
		Logger: slog.Default(),
	})

	errc := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		slog.Info("listening", "addr", addr, "env", cfg.Env, "store", cfg.StoreDriver)
		errc <- e.Start(addr)
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
