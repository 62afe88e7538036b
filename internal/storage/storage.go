// Package storage opens the store selected by STORE_DRIVER.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/iliyamo/task-manager/internal/config"
	"github.com/iliyamo/task-manager/internal/database"
	"github.com/iliyamo/task-manager/internal/handler"
	"github.com/iliyamo/task-manager/internal/repository"
	"github.com/iliyamo/task-manager/internal/repository/memstore"
	"github.com/iliyamo/task-manager/internal/repository/mongostore"
	"github.com/iliyamo/task-manager/internal/service"
)

// Backend is an open store.  Close releases its connections.
type Backend struct {
	Users  service.UserStore
	Tasks  service.TaskStore
	Health handler.Pinger
	SQL    *sql.DB // set for the mysql driver only
	Close  func() error
}

// Open connects to the configured store.  For MySQL it applies pending
// migrations when cfg.AutoMigrate is set; for MongoDB it ensures indexes.
func Open(ctx context.Context, cfg config.Config) (*Backend, error) {
	switch cfg.StoreDriver {
	case config.DriverMySQL:
		db, err := OpenSQL(cfg)
		if err != nil {
			return nil, err
		}
		if cfg.AutoMigrate {
			if err := database.MigrateUp(ctx, db); err != nil {
				_ = db.Close()
				return nil, err
			}
		}
		return &Backend{
			Users:  repository.NewUserRepo(db),
			Tasks:  repository.NewTaskRepo(db),
			Health: db,
			SQL:    db,
			Close:  db.Close,
		}, nil

	case config.DriverMongo:
		client, err := mongostore.Connect(ctx, cfg.MongoURI)
		if err != nil {
			return nil, err
		}
		store := mongostore.New(client.Database(cfg.MongoDB))
		if err := store.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, err
		}
		return &Backend{
			Users:  store,
			Tasks:  store,
			Health: store,
			Close:  func() error { return client.Disconnect(context.Background()) },
		}, nil

	case config.DriverMemory:
		slog.Warn("using the in-memory store; data is lost on restart")
		store := memstore.New()
		return &Backend{Users: store, Tasks: store, Close: func() error { return nil }}, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}

// OpenSQL connects to the MySQL database described by cfg.
func OpenSQL(cfg config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		return nil, fmt.Errorf("mysql: %w", err)
	}
	return db, nil
}
