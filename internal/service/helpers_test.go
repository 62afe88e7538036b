package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/task-manager/internal/model"
	"github.com/iliyamo/task-manager/internal/queue"
	"github.com/iliyamo/task-manager/internal/repository/memstore"
	"github.com/iliyamo/task-manager/internal/utils"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []queue.Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev queue.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

type recordingInvalidator struct {
	mu    sync.Mutex
	users []string
}

func (r *recordingInvalidator) Invalidate(_ context.Context, userIDs ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users = append(r.users, userIDs...)
}

func (r *recordingInvalidator) take() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.users
	r.users = nil
	return out
}

type fixture struct {
	store  *memstore.Store
	tokens *utils.TokenService
	events *recordingPublisher
	cache  *recordingInvalidator
	auth   *AuthService
	tasks  *TaskService
	users  *UserService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memstore.New()
	tokens := utils.NewTokenService("svc-test-secret", 15, 7)
	events := &recordingPublisher{}
	cache := &recordingInvalidator{}
	return &fixture{
		store:  store,
		tokens: tokens,
		events: events,
		cache:  cache,
		auth:   NewAuthService(store, tokens, events, bcrypt.MinCost),
		tasks:  NewTaskService(store, events).WithCache(cache),
		users:  NewUserService(store, store, events).WithCache(cache),
	}
}

func (f *fixture) register(t *testing.T, name, email string) model.Identity {
	t.Helper()
	u, err := f.auth.Register(context.Background(), RegisterInput{Name: name, Email: email, Password: "Passw0rd"})
	require.NoError(t, err)
	return model.Identity{UserID: u.ID, Role: u.Role}
}

func (f *fixture) admin(t *testing.T, email string) model.Identity {
	t.Helper()
	u, err := f.auth.CreateAdmin(context.Background(), RegisterInput{Name: "Admin", Email: email, Password: "Passw0rd"})
	require.NoError(t, err)
	return model.Identity{UserID: u.ID, Role: u.Role}
}

func ptr[T any](v T) *T { return &v }
