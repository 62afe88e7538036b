// Package service holds the auth flow and the task and user operations.
// Services speak in model types and apperr errors; they know nothing about
// HTTP.  Stores are consumed through the interfaces below so MySQL, MongoDB
// and the in-memory store are interchangeable.
package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/iliyamo/task-manager/internal/apperr"
	"github.com/iliyamo/task-manager/internal/model"
	"github.com/iliyamo/task-manager/internal/queue"
	"github.com/iliyamo/task-manager/internal/repository"
)

// UserStore is the credential store.
type UserStore interface {
	CreateUser(ctx context.Context, u *model.User) error
	UserByEmail(ctx context.Context, email string) (model.User, error)
	UserByID(ctx context.Context, id string) (model.User, error)
	ListUsers(ctx context.Context, f model.UserFilter) ([]model.User, int, error)
	UpdateUser(ctx context.Context, u model.User) error
	DeleteUser(ctx context.Context, id string) error

	SetRefreshToken(ctx context.Context, userID, hash string) error
	// SwapRefreshToken must replace oldHash with newHash atomically and
	// return repository.ErrTokenMismatch if the stored hash is not oldHash.
	SwapRefreshToken(ctx context.Context, userID, oldHash, newHash string) error
	ClearRefreshToken(ctx context.Context, userID string) error
}

// TaskStore persists tasks.
type TaskStore interface {
	CreateTask(ctx context.Context, t *model.Task) error
	TaskByID(ctx context.Context, id string) (model.Task, error)
	ListTasks(ctx context.Context, f model.TaskFilter) ([]model.Task, int, error)
	UpdateTask(ctx context.Context, t model.Task) error
	DeleteTask(ctx context.Context, id string) error
	TaskStats(ctx context.Context, ownerID string) (model.TaskStats, error)
}

// CacheInvalidator drops cached reads that belong to the given users.
// Implementations must tolerate being called on a nil receiver.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, userIDs ...string)
}

func invalidate(ctx context.Context, c CacheInvalidator, userIDs ...string) {
	if c != nil {
		c.Invalidate(ctx, userIDs...)
	}
}

// publish sends ev and only logs a failure; events never fail a request.
func publish(ctx context.Context, p queue.Publisher, ev queue.Event) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, ev); err != nil {
		slog.WarnContext(ctx, "event publish failed", "type", ev.Type, "err", err)
	}
}

// notFoundOr maps repository.ErrNotFound to a NotFound error with msg and
// anything else to an internal error.
func notFoundOr(err error, msg string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.NotFound(msg)
	}
	return apperr.Internal(err)
}
