package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/task-manager/internal/apperr"
	"github.com/iliyamo/task-manager/internal/model"
	"github.com/iliyamo/task-manager/internal/queue"
	"github.com/iliyamo/task-manager/internal/repository"
)

// UserFields carries validated user input; nil means "not supplied".
// Role and IsActive are honoured only on the admin update path.
type UserFields struct {
	Name     *string
	Email    *string
	Role     *model.Role
	IsActive *bool
}

// UserService implements profile and admin user management.
type UserService struct {
	users  UserStore
	tasks  TaskStore
	events queue.Publisher
	cache  CacheInvalidator
	now    func() time.Time
}

func NewUserService(users UserStore, tasks TaskStore, events queue.Publisher) *UserService {
	return &UserService{users: users, tasks: tasks, events: events, now: time.Now}
}

// WithCache makes user deletion drop the user's cached listings.
func (s *UserService) WithCache(c CacheInvalidator) *UserService {
	s.cache = c
	return s
}

func requireAdmin(who model.Identity) error {
	if !who.IsAdmin() {
		return apperr.Forbidden("You do not have permission to perform this action")
	}
	return nil
}

func (s *UserService) save(ctx context.Context, u model.User) (model.User, error) {
	u.UpdatedAt = s.now().UTC()
	if err := s.users.UpdateUser(ctx, u); err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return model.User{}, apperr.DuplicateEmail()
		}
		return model.User{}, notFoundOr(err, "User not found")
	}
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	return u, nil
}

func (s *UserService) find(ctx context.Context, id string) (model.User, error) {
	u, err := s.users.UserByID(ctx, id)
	if err != nil {
		return model.User{}, notFoundOr(err, "User not found")
	}
	return u, nil
}

// withTasks attaches the user's newest tasks, at most one page of
// model.MaxPageLimit.
func (s *UserService) withTasks(ctx context.Context, u model.User) (model.UserDetail, error) {
	tasks, _, err := s.tasks.ListTasks(ctx, model.TaskFilter{
		OwnerID: u.ID,
		Page:    1,
		Limit:   model.MaxPageLimit,
		Sort:    model.DefaultTaskSort,
	})
	if err != nil {
		return model.UserDetail{}, apperr.Internal(err)
	}
	if tasks == nil {
		tasks = []model.Task{}
	}
	return model.UserDetail{User: u, Tasks: tasks}, nil
}

// Profile returns the caller's own account and tasks.
func (s *UserService) Profile(ctx context.Context, who model.Identity) (model.UserDetail, error) {
	u, err := s.find(ctx, who.UserID)
	if err != nil {
		return model.UserDetail{}, err
	}
	return s.withTasks(ctx, u)
}

// UpdateProfile changes the caller's name and/or email.
func (s *UserService) UpdateProfile(ctx context.Context, who model.Identity, f UserFields) (model.User, error) {
	u, err := s.find(ctx, who.UserID)
	if err != nil {
		return model.User{}, err
	}
	if f.Name != nil {
		u.Name = strings.TrimSpace(*f.Name)
	}
	if f.Email != nil {
		u.Email = *f.Email
	}
	return s.save(ctx, u)
}

// List returns one page of users, optionally filtered by role.  Admin only.
func (s *UserService) List(ctx context.Context, who model.Identity, role model.Role, page, limit int) ([]model.User, model.Pagination, error) {
	if err := requireAdmin(who); err != nil {
		return nil, model.Pagination{}, err
	}
	page, limit = model.NormalizePage(page, limit)
	users, total, err := s.users.ListUsers(ctx, model.UserFilter{Role: role, Page: page, Limit: limit})
	if err != nil {
		return nil, model.Pagination{}, apperr.Internal(err)
	}
	return users, model.NewPagination(page, limit, total), nil
}

// Get returns any user by id with their tasks.  Admin only.
func (s *UserService) Get(ctx context.Context, who model.Identity, id string) (model.UserDetail, error) {
	if err := requireAdmin(who); err != nil {
		return model.UserDetail{}, err
	}
	u, err := s.find(ctx, id)
	if err != nil {
		return model.UserDetail{}, err
	}
	return s.withTasks(ctx, u)
}

// Update changes any user's profile, role or active flag.  Admin only.
// Deactivating a user or changing their role also ends their session.  An
// admin may not demote or deactivate their own account.
func (s *UserService) Update(ctx context.Context, who model.Identity, id string, f UserFields) (model.User, error) {
	if err := requireAdmin(who); err != nil {
		return model.User{}, err
	}
	u, err := s.find(ctx, id)
	if err != nil {
		return model.User{}, err
	}
	if id == who.UserID && ((f.Role != nil && *f.Role != model.RoleAdmin) || (f.IsActive != nil && !*f.IsActive)) {
		return model.User{}, apperr.InvalidOperation("You cannot change your own role or deactivate your own account")
	}
	endSession := false
	if f.Name != nil {
		u.Name = strings.TrimSpace(*f.Name)
	}
	if f.Email != nil {
		u.Email = *f.Email
	}
	if f.Role != nil && *f.Role != u.Role {
		u.Role = *f.Role
		endSession = true
	}
	if f.IsActive != nil && *f.IsActive != u.IsActive {
		u.IsActive = *f.IsActive
		endSession = endSession || !u.IsActive
	}
	u, err = s.save(ctx, u)
	if err != nil {
		return model.User{}, err
	}
	if endSession {
		if err := s.users.ClearRefreshToken(ctx, u.ID); err != nil {
			return model.User{}, apperr.Internal(err)
		}
	}
	return u, nil
}

// Delete removes a user and their tasks.  Admin only; an admin may not
// delete their own account through this path.
func (s *UserService) Delete(ctx context.Context, who model.Identity, id string) error {
	if err := requireAdmin(who); err != nil {
		return err
	}
	if _, err := s.find(ctx, id); err != nil {
		return err
	}
	if id == who.UserID {
		return apperr.InvalidOperation("You cannot delete your own account")
	}
	if err := s.users.DeleteUser(ctx, id); err != nil {
		return notFoundOr(err, "User not found")
	}
	invalidate(ctx, s.cache, id)
	publish(ctx, s.events, queue.NewEvent(queue.EventUserDeleted, who.UserID, id))
	return nil
}
