package mongostore

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/iliyamo/task-manager/internal/model"
	"github.com/iliyamo/task-manager/internal/repository"
)

// taskDoc adds the numeric priority used for sorting; the string value
// would sort high < low < medium.
type taskDoc struct {
	model.Task   `bson:",inline"`
	PriorityRank int `bson:"priorityRank"`
}

func toDoc(t model.Task) taskDoc {
	if t.Tags == nil {
		t.Tags = []string{}
	}
	return taskDoc{Task: t, PriorityRank: t.Priority.Rank()}
}

func fromDoc(d taskDoc) model.Task {
	t := d.Task
	if t.Tags == nil {
		t.Tags = []string{}
	}
	return t
}

var taskSortKeys = map[string]string{
	"createdAt": "createdAt",
	"updatedAt": "updatedAt",
	"dueDate":   "dueDate",
	"priority":  "priorityRank",
	"title":     "title",
	"status":    "status",
}

func (s *Store) CreateTask(ctx context.Context, t *model.Task) error {
	if _, err := s.tasks.InsertOne(ctx, toDoc(*t)); err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

func (s *Store) TaskByID(ctx context.Context, id string) (model.Task, error) {
	var d taskDoc
	if err := s.tasks.FindOne(ctx, bson.M{"_id": id}).Decode(&d); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return model.Task{}, repository.ErrNotFound
		}
		return model.Task{}, fmt.Errorf("find task: %w", err)
	}
	return fromDoc(d), nil
}

func (s *Store) ListTasks(ctx context.Context, f model.TaskFilter) ([]model.Task, int, error) {
	filter := bson.M{"user": f.OwnerID}
	if f.Status != "" {
		filter["status"] = string(f.Status)
	}
	if f.Priority != "" {
		filter["priority"] = string(f.Priority)
	}
	total, err := s.tasks.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("count tasks: %w", err)
	}

	key, ok := taskSortKeys[f.Sort.Field]
	if !ok {
		key = taskSortKeys[model.DefaultTaskSort.Field]
	}
	dir := 1
	if f.Sort.Desc {
		dir = -1
	}
	opts := options.Find().
		SetSort(bson.D{{Key: key, Value: dir}, {Key: "_id", Value: dir}}).
		SetSkip(int64(f.Offset())).
		SetLimit(int64(f.Limit))
	cur, err := s.tasks.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("list tasks: %w", err)
	}
	var docs []taskDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, 0, fmt.Errorf("decode tasks: %w", err)
	}
	tasks := make([]model.Task, 0, len(docs))
	for _, d := range docs {
		tasks = append(tasks, fromDoc(d))
	}
	return tasks, int(total), nil
}

// UpdateTask replaces the document.  The filter pins the owner so a task
// can never change hands through an update.
func (s *Store) UpdateTask(ctx context.Context, t model.Task) error {
	res, err := s.tasks.ReplaceOne(ctx, bson.M{"_id": t.ID, "user": t.OwnerID}, toDoc(t))
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	if res.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteTask(ctx context.Context, id string) error {
	res, err := s.tasks.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if res.DeletedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (s *Store) TaskStats(ctx context.Context, ownerID string) (model.TaskStats, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "user", Value: ownerID}}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$status"},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	}
	cur, err := s.tasks.Aggregate(ctx, pipeline)
	if err != nil {
		return model.TaskStats{}, fmt.Errorf("task stats: %w", err)
	}
	var rows []struct {
		Status string `bson:"_id"`
		Count  int    `bson:"count"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return model.TaskStats{}, fmt.Errorf("decode stats: %w", err)
	}
	var stats model.TaskStats
	for _, r := range rows {
		stats.Add(model.TaskStatus(r.Status), r.Count)
	}
	return stats, nil
}
