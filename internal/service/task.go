package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/task-manager/internal/apperr"
	"github.com/iliyamo/task-manager/internal/model"
	"github.com/iliyamo/task-manager/internal/queue"
)

// TaskFields carries validated task input.  Nil pointers mean "not
// supplied"; on update only supplied fields change.  DueDateSet
// distinguishes clearing the due date (DueDate nil) from leaving it alone.
type TaskFields struct {
	Title       *string
	Description *string
	Status      *model.TaskStatus
	Priority    *model.Priority
	DueDate     *time.Time
	DueDateSet  bool
	Tags        []string
	TagsSet     bool
}

func (f TaskFields) apply(t *model.Task) {
	if f.Title != nil {
		t.Title = strings.TrimSpace(*f.Title)
	}
	if f.Description != nil {
		t.Description = strings.TrimSpace(*f.Description)
	}
	if f.Status != nil {
		t.Status = *f.Status
	}
	if f.Priority != nil {
		t.Priority = *f.Priority
	}
	if f.DueDateSet {
		t.DueDate = f.DueDate
	}
	if f.TagsSet {
		t.Tags = model.NormalizeTags(f.Tags)
	}
}

// TaskListQuery is the caller's listing request before normalization.
type TaskListQuery struct {
	Status   model.TaskStatus
	Priority model.Priority
	Page     int
	Limit    int
	Sort     string
}

// TaskService implements task CRUD with the ownership rule: a task is
// visible and mutable only to its owner and to admins.
type TaskService struct {
	tasks  TaskStore
	events queue.Publisher
	cache  CacheInvalidator
	now    func() time.Time
}

func NewTaskService(tasks TaskStore, events queue.Publisher) *TaskService {
	return &TaskService{tasks: tasks, events: events, now: time.Now}
}

// WithCache makes every task write drop the owner's cached listings.
func (s *TaskService) WithCache(c CacheInvalidator) *TaskService {
	s.cache = c
	return s
}

// load fetches a task and then applies the ownership rule, in that order:
// a missing task is NotFound even for a caller who could never own it.
func (s *TaskService) load(ctx context.Context, who model.Identity, id, action string) (model.Task, error) {
	t, err := s.tasks.TaskByID(ctx, id)
	if err != nil {
		return model.Task{}, notFoundOr(err, "Task not found")
	}
	if !who.CanAccess(t.OwnerID) {
		return model.Task{}, apperr.Forbidden("Not authorized to " + action + " this task")
	}
	return t, nil
}

func (s *TaskService) Get(ctx context.Context, who model.Identity, id string) (model.Task, error) {
	return s.load(ctx, who, id, "access")
}

// Create stores a new task owned by the caller.
func (s *TaskService) Create(ctx context.Context, who model.Identity, f TaskFields) (model.Task, error) {
	now := s.now().UTC()
	t := model.Task{
		ID:        uuid.NewString(),
		OwnerID:   who.UserID,
		Status:    model.StatusPending,
		Priority:  model.PriorityMedium,
		Tags:      []string{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	f.apply(&t)
	t.SyncCompletion(now)
	if err := s.tasks.CreateTask(ctx, &t); err != nil {
		return model.Task{}, apperr.Internal(err)
	}
	invalidate(ctx, s.cache, t.OwnerID)
	publish(ctx, s.events, queue.NewEvent(queue.EventTaskCreated, who.UserID, t.ID))
	return t, nil
}

// Update applies the supplied fields.  The owner never changes.
func (s *TaskService) Update(ctx context.Context, who model.Identity, id string, f TaskFields) (model.Task, error) {
	t, err := s.load(ctx, who, id, "update")
	if err != nil {
		return model.Task{}, err
	}
	now := s.now().UTC()
	f.apply(&t)
	t.SyncCompletion(now)
	t.UpdatedAt = now
	if err := s.tasks.UpdateTask(ctx, t); err != nil {
		return model.Task{}, notFoundOr(err, "Task not found")
	}
	invalidate(ctx, s.cache, t.OwnerID)
	publish(ctx, s.events, queue.NewEvent(queue.EventTaskUpdated, who.UserID, t.ID))
	return t, nil
}

func (s *TaskService) Delete(ctx context.Context, who model.Identity, id string) error {
	t, err := s.load(ctx, who, id, "delete")
	if err != nil {
		return err
	}
	if err := s.tasks.DeleteTask(ctx, id); err != nil {
		return notFoundOr(err, "Task not found")
	}
	invalidate(ctx, s.cache, t.OwnerID)
	publish(ctx, s.events, queue.NewEvent(queue.EventTaskDeleted, who.UserID, id))
	return nil
}

// List returns the caller's own tasks.  Admins also see only their own here.
func (s *TaskService) List(ctx context.Context, who model.Identity, q TaskListQuery) ([]model.Task, model.Pagination, error) {
	page, limit := model.NormalizePage(q.Page, q.Limit)
	tasks, total, err := s.tasks.ListTasks(ctx, model.TaskFilter{
		OwnerID:  who.UserID,
		Status:   q.Status,
		Priority: q.Priority,
		Page:     page,
		Limit:    limit,
		Sort:     model.ParseTaskSort(q.Sort),
	})
	if err != nil {
		return nil, model.Pagination{}, apperr.Internal(err)
	}
	return tasks, model.NewPagination(page, limit, total), nil
}

func (s *TaskService) Stats(ctx context.Context, who model.Identity) (model.TaskStats, error) {
	stats, err := s.tasks.TaskStats(ctx, who.UserID)
	if err != nil {
		return model.TaskStats{}, apperr.Internal(err)
	}
	return stats, nil
}
