// Package memstore is an in-process implementation of the user and task
// stores.  It backs STORE_DRIVER=memory for local runs and the HTTP tests.
// Data is lost on restart.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/iliyamo/task-manager/internal/model"
	"github.com/iliyamo/task-manager/internal/repository"
)

// Store keeps users and tasks in maps guarded by one mutex.
type Store struct {
	mu    sync.RWMutex
	users map[string]model.User
	tasks map[string]model.Task
}

func New() *Store {
	return &Store{
		users: make(map[string]model.User),
		tasks: make(map[string]model.Task),
	}
}

func normEmail(e string) string { return strings.ToLower(strings.TrimSpace(e)) }

// emailTaken reports whether another user already uses email.  Caller holds mu.
func (s *Store) emailTaken(email, exceptID string) bool {
	for id, u := range s.users {
		if id != exceptID && u.Email == email {
			return true
		}
	}
	return false
}

func (s *Store) CreateUser(_ context.Context, u *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u.Email = normEmail(u.Email)
	if s.emailTaken(u.Email, "") {
		return repository.ErrEmailExists
	}
	s.users[u.ID] = *u
	return nil
}

func (s *Store) UserByEmail(_ context.Context, email string) (model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	email = normEmail(email)
	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return model.User{}, repository.ErrNotFound
}

func (s *Store) UserByID(_ context.Context, id string) (model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return model.User{}, repository.ErrNotFound
	}
	return u, nil
}

func (s *Store) ListUsers(_ context.Context, f model.UserFilter) ([]model.User, int, error) {
	s.mu.RLock()
	all := make([]model.User, 0, len(s.users))
	for _, u := range s.users {
		if f.Role == "" || u.Role == f.Role {
			all = append(all, u)
		}
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID > all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	return page(all, f.Offset(), f.Limit), len(all), nil
}

func (s *Store) UpdateUser(_ context.Context, u model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.users[u.ID]
	if !ok {
		return repository.ErrNotFound
	}
	email := normEmail(u.Email)
	if s.emailTaken(email, u.ID) {
		return repository.ErrEmailExists
	}
	cur.Name, cur.Email, cur.Role, cur.IsActive, cur.UpdatedAt = u.Name, email, u.Role, u.IsActive, u.UpdatedAt
	s.users[u.ID] = cur
	return nil
}

// DeleteUser removes the user and every task they own.
func (s *Store) DeleteUser(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.users, id)
	for tid, t := range s.tasks {
		if t.OwnerID == id {
			delete(s.tasks, tid)
		}
	}
	return nil
}

func (s *Store) SetRefreshToken(_ context.Context, userID, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return repository.ErrNotFound
	}
	u.RefreshTokenHash = hash
	s.users[userID] = u
	return nil
}

func (s *Store) SwapRefreshToken(_ context.Context, userID, oldHash, newHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok || u.RefreshTokenHash == "" || u.RefreshTokenHash != oldHash {
		return repository.ErrTokenMismatch
	}
	u.RefreshTokenHash = newHash
	s.users[userID] = u
	return nil
}

func (s *Store) ClearRefreshToken(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[userID]; ok {
		u.RefreshTokenHash = ""
		s.users[userID] = u
	}
	return nil
}

func (s *Store) CreateTask(_ context.Context, t *model.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[t.ID] = cloneTask(*t)
	return nil
}

func (s *Store) TaskByID(_ context.Context, id string) (model.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return model.Task{}, repository.ErrNotFound
	}
	return cloneTask(t), nil
}

func (s *Store) ListTasks(_ context.Context, f model.TaskFilter) ([]model.Task, int, error) {
	s.mu.RLock()
	all := make([]model.Task, 0)
	for _, t := range s.tasks {
		if t.OwnerID != f.OwnerID {
			continue
		}
		if f.Status != "" && t.Status != f.Status {
			continue
		}
		if f.Priority != "" && t.Priority != f.Priority {
			continue
		}
		all = append(all, cloneTask(t))
	}
	s.mu.RUnlock()

	sort.SliceStable(all, func(i, j int) bool {
		c := compareTasks(all[i], all[j], f.Sort.Field)
		if c == 0 {
			c = strings.Compare(all[i].ID, all[j].ID)
		}
		if f.Sort.Desc {
			return c > 0
		}
		return c < 0
	})
	return page(all, f.Offset(), f.Limit), len(all), nil
}

func (s *Store) UpdateTask(_ context.Context, t model.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.tasks[t.ID]
	if !ok {
		return repository.ErrNotFound
	}
	t.OwnerID = cur.OwnerID
	t.CreatedAt = cur.CreatedAt
	s.tasks[t.ID] = cloneTask(t)
	return nil
}

func (s *Store) DeleteTask(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.tasks, id)
	return nil
}

func (s *Store) TaskStats(_ context.Context, ownerID string) (model.TaskStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var stats model.TaskStats
	for _, t := range s.tasks {
		if t.OwnerID == ownerID {
			stats.Add(t.Status, 1)
		}
	}
	return stats, nil
}

func cloneTask(t model.Task) model.Task {
	t.Tags = append([]string{}, t.Tags...)
	return t
}

func compareTasks(a, b model.Task, field string) int {
	switch field {
	case "updatedAt":
		return a.UpdatedAt.Compare(b.UpdatedAt)
	case "dueDate":
		switch {
		case a.DueDate == nil && b.DueDate == nil:
			return 0
		case a.DueDate == nil:
			return -1
		case b.DueDate == nil:
			return 1
		}
		return a.DueDate.Compare(*b.DueDate)
	case "priority":
		return a.Priority.Rank() - b.Priority.Rank()
	case "title":
		return strings.Compare(a.Title, b.Title)
	case "status":
		return strings.Compare(string(a.Status), string(b.Status))
	}
	return a.CreatedAt.Compare(b.CreatedAt)
}

func page[T any](items []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return items[offset:end]
}
