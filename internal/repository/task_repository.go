package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/iliyamo/task-manager/internal/model"
)

const taskColumns = "id,user_id,title,description,status,priority,due_date,tags,is_completed,completed_at,created_at,updated_at"

// taskSortColumns maps public sort names to ORDER BY expressions.  Priority
// sorts by rank, not alphabetically.
var taskSortColumns = map[string]string{
	"createdAt": "created_at",
	"updatedAt": "updated_at",
	"dueDate":   "due_date",
	"priority":  "FIELD(priority,'low','medium','high')",
	"title":     "title",
	"status":    "status",
}

// TaskRepo persists tasks in the `tasks` table.
type TaskRepo struct{ DB *sql.DB }

func NewTaskRepo(db *sql.DB) *TaskRepo { return &TaskRepo{DB: db} }

func encodeTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	b, err := json.Marshal(tags)
	return string(b), err
}

// CreateTask inserts t.  The caller supplies ID and timestamps.
func (r *TaskRepo) CreateTask(ctx context.Context, t *model.Task) error {
	tags, err := encodeTags(t.Tags)
	if err != nil {
		return fmt.Errorf("encode tags: %w", err)
	}
	_, err = r.DB.ExecContext(ctx,
		"INSERT INTO tasks ("+taskColumns+") VALUES (?,?,?,?,?,?,?,?,?,?,?,?)",
		t.ID, t.OwnerID, t.Title, t.Description, string(t.Status), string(t.Priority),
		t.DueDate, tags, t.IsCompleted, t.CompletedAt, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

func scanTask(row interface{ Scan(...any) error }) (model.Task, error) {
	var (
		t                model.Task
		status, priority string
		due, completedAt sql.NullTime
		tags             []byte
	)
	if err := row.Scan(&t.ID, &t.OwnerID, &t.Title, &t.Description, &status, &priority,
		&due, &tags, &t.IsCompleted, &completedAt, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return model.Task{}, err
	}
	t.Status = model.TaskStatus(status)
	t.Priority = model.Priority(priority)
	if due.Valid {
		d := due.Time
		t.DueDate = &d
	}
	if completedAt.Valid {
		c := completedAt.Time
		t.CompletedAt = &c
	}
	t.Tags = []string{}
	if len(tags) > 0 {
		if err := json.Unmarshal(tags, &t.Tags); err != nil {
			return model.Task{}, fmt.Errorf("decode tags: %w", err)
		}
	}
	return t, nil
}

// TaskByID fetches a task regardless of owner.  Ownership is the caller's
// decision, made after this existence check.
func (r *TaskRepo) TaskByID(ctx context.Context, id string) (model.Task, error) {
	t, err := scanTask(r.DB.QueryRowContext(ctx,
		"SELECT "+taskColumns+" FROM tasks WHERE id=? LIMIT 1", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Task{}, ErrNotFound
		}
		return model.Task{}, fmt.Errorf("select task: %w", err)
	}
	return t, nil
}

// ListTasks returns one page of the owner's tasks and the total matching count.
func (r *TaskRepo) ListTasks(ctx context.Context, f model.TaskFilter) ([]model.Task, int, error) {
	where := " WHERE user_id=?"
	args := []any{f.OwnerID}
	if f.Status != "" {
		where += " AND status=?"
		args = append(args, string(f.Status))
	}
	if f.Priority != "" {
		where += " AND priority=?"
		args = append(args, string(f.Priority))
	}

	var total int
	if err := r.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM tasks"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count tasks: %w", err)
	}

	col, ok := taskSortColumns[f.Sort.Field]
	if !ok {
		col = taskSortColumns[model.DefaultTaskSort.Field]
	}
	dir := "ASC"
	if f.Sort.Desc {
		dir = "DESC"
	}
	q := "SELECT " + taskColumns + " FROM tasks" + where +
		" ORDER BY " + col + " " + dir + ", id " + dir + " LIMIT ? OFFSET ?"

	rows, err := r.DB.QueryContext(ctx, q, append(args, f.Limit, f.Offset())...)
	if err != nil {
		return nil, 0, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	tasks := make([]model.Task, 0, f.Limit)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, total, rows.Err()
}

// UpdateTask overwrites every mutable column of t.  user_id is never updated.
func (r *TaskRepo) UpdateTask(ctx context.Context, t model.Task) error {
	tags, err := encodeTags(t.Tags)
	if err != nil {
		return fmt.Errorf("encode tags: %w", err)
	}
	res, err := r.DB.ExecContext(ctx,
		"UPDATE tasks SET title=?, description=?, status=?, priority=?, due_date=?, tags=?, is_completed=?, completed_at=?, updated_at=? WHERE id=?",
		t.Title, t.Description, string(t.Status), string(t.Priority), t.DueDate, tags,
		t.IsCompleted, t.CompletedAt, t.UpdatedAt, t.ID)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	return expectOne(res)
}

// DeleteTask removes a task by id.
func (r *TaskRepo) DeleteTask(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM tasks WHERE id=?", id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return expectOne(res)
}

// TaskStats counts the owner's tasks grouped by status.
func (r *TaskRepo) TaskStats(ctx context.Context, ownerID string) (model.TaskStats, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT status, COUNT(*) FROM tasks WHERE user_id=? GROUP BY status", ownerID)
	if err != nil {
		return model.TaskStats{}, fmt.Errorf("task stats: %w", err)
	}
	defer rows.Close()

	var stats model.TaskStats
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return model.TaskStats{}, fmt.Errorf("scan stats: %w", err)
		}
		stats.Add(model.TaskStatus(status), n)
	}
	return stats, rows.Err()
}
