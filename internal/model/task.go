package model

import (
	"strings"
	"time"
)

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusInProgress TaskStatus = "in-progress"
	StatusCompleted  TaskStatus = "completed"
)

// Valid reports whether s is a known status.
func (s TaskStatus) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

// Priority ranks a task.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Rank orders priorities from low (1) to high (3) for sorting.
func (p Priority) Rank() int {
	switch p {
	case PriorityLow:
		return 1
	case PriorityMedium:
		return 2
	case PriorityHigh:
		return 3
	}
	return 0
}

// Task is a unit of work owned by exactly one user.  OwnerID is set at
// creation and never changes afterwards.
type Task struct {
	ID          string     `json:"id" bson:"_id"`
	Title       string     `json:"title" bson:"title"`
	Description string     `json:"description" bson:"description"`
	Status      TaskStatus `json:"status" bson:"status"`
	Priority    Priority   `json:"priority" bson:"priority"`
	DueDate     *time.Time `json:"dueDate,omitempty" bson:"dueDate,omitempty"`
	OwnerID     string     `json:"user" bson:"user"`
	Tags        []string   `json:"tags" bson:"tags"`
	IsCompleted bool       `json:"isCompleted" bson:"isCompleted"`
	CompletedAt *time.Time `json:"completedAt,omitempty" bson:"completedAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt" bson:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt" bson:"updatedAt"`
}

// SyncCompletion keeps IsCompleted and CompletedAt consistent with Status.
// CompletedAt is stamped the first time a task reaches completed and is
// cleared whenever it leaves that state.
func (t *Task) SyncCompletion(now time.Time) {
	if t.Status == StatusCompleted {
		if t.CompletedAt == nil {
			at := now
			t.CompletedAt = &at
		}
		t.IsCompleted = true
		return
	}
	t.CompletedAt = nil
	t.IsCompleted = false
}

// NormalizeTags trims and lower-cases tags, dropping empty ones.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// TaskFilter selects an owner's tasks for listing.
type TaskFilter struct {
	OwnerID  string
	Status   TaskStatus
	Priority Priority
	Page     int
	Limit    int
	Sort     TaskSort
}

// Offset returns the number of rows to skip for the filter's page.
func (f TaskFilter) Offset() int {
	return (f.Page - 1) * f.Limit
}

// TaskSort is a whitelisted sort field with a direction.
type TaskSort struct {
	Field string // one of the keys of TaskSortFields
	Desc  bool
}

// TaskSortFields lists the sortable task fields.  Keys are the public names
// accepted in the `sort` query parameter.
var TaskSortFields = map[string]bool{
	"createdAt": true,
	"updatedAt": true,
	"dueDate":   true,
	"priority":  true,
	"title":     true,
	"status":    true,
}

// DefaultTaskSort is newest first.
var DefaultTaskSort = TaskSort{Field: "createdAt", Desc: true}

// ParseTaskSort parses "field" or "-field".  Unknown fields fall back to
// DefaultTaskSort.
func ParseTaskSort(s string) TaskSort {
	s = strings.TrimSpace(s)
	desc := strings.HasPrefix(s, "-")
	field := strings.TrimPrefix(s, "-")
	if !TaskSortFields[field] {
		return DefaultTaskSort
	}
	return TaskSort{Field: field, Desc: desc}
}

// TaskStats counts an owner's tasks by status.
type TaskStats struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	InProgress int `json:"inProgress"`
	Completed  int `json:"completed"`
}

// Add increments the counter for status by n.
func (s *TaskStats) Add(status TaskStatus, n int) {
	s.Total += n
	switch status {
	case StatusPending:
		s.Pending += n
	case StatusInProgress:
		s.InProgress += n
	case StatusCompleted:
		s.Completed += n
	}
}
