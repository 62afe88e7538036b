// Package mongostore implements the user and task stores on MongoDB.  Users
// live in the `users` collection keyed by their UUID, tasks in `tasks`.
// Refresh-token rotation relies on UpdateOne being atomic for one document.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/iliyamo/task-manager/internal/model"
	"github.com/iliyamo/task-manager/internal/repository"
)

const (
	usersCollection = "users"
	tasksCollection = "tasks"
)

// Connect opens a client for uri and verifies it with a ping.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return client, nil
}

// Store serves both UserStore and TaskStore from one database.
type Store struct {
	db    *mongo.Database
	users *mongo.Collection
	tasks *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{
		db:    db,
		users: db.Collection(usersCollection),
		tasks: db.Collection(tasksCollection),
	}
}

// PingContext checks that the server is reachable.
func (s *Store) PingContext(ctx context.Context) error {
	return s.db.Client().Ping(ctx, nil)
}

// EnsureIndexes creates the unique email index the duplicate-email check
// depends on, and the owner index used by every task query.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("users index: %w", err)
	}
	_, err = s.tasks.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user", Value: 1}, {Key: "createdAt", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("tasks index: %w", err)
	}
	return nil
}

func normEmail(e string) string { return strings.ToLower(strings.TrimSpace(e)) }

func (s *Store) CreateUser(ctx context.Context, u *model.User) error {
	u.Email = normEmail(u.Email)
	if _, err := s.users.InsertOne(ctx, u); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return repository.ErrEmailExists
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *Store) findUser(ctx context.Context, filter bson.M) (model.User, error) {
	var u model.User
	if err := s.users.FindOne(ctx, filter).Decode(&u); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return model.User{}, repository.ErrNotFound
		}
		return model.User{}, fmt.Errorf("find user: %w", err)
	}
	return u, nil
}

func (s *Store) UserByEmail(ctx context.Context, email string) (model.User, error) {
	return s.findUser(ctx, bson.M{"email": normEmail(email)})
}

func (s *Store) UserByID(ctx context.Context, id string) (model.User, error) {
	return s.findUser(ctx, bson.M{"_id": id})
}

func (s *Store) ListUsers(ctx context.Context, f model.UserFilter) ([]model.User, int, error) {
	filter := bson.M{}
	if f.Role != "" {
		filter["role"] = string(f.Role)
	}
	total, err := s.users.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64(f.Offset())).
		SetLimit(int64(f.Limit))
	cur, err := s.users.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	users := []model.User{}
	if err := cur.All(ctx, &users); err != nil {
		return nil, 0, fmt.Errorf("decode users: %w", err)
	}
	return users, int(total), nil
}

func (s *Store) UpdateUser(ctx context.Context, u model.User) error {
	res, err := s.users.UpdateOne(ctx, bson.M{"_id": u.ID}, bson.M{"$set": bson.M{
		"name":      u.Name,
		"email":     normEmail(u.Email),
		"role":      string(u.Role),
		"isActive":  u.IsActive,
		"updatedAt": u.UpdatedAt,
	}})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return repository.ErrEmailExists
		}
		return fmt.Errorf("update user: %w", err)
	}
	if res.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// DeleteUser removes the user, then their tasks.
func (s *Store) DeleteUser(ctx context.Context, id string) error {
	res, err := s.users.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if res.DeletedCount == 0 {
		return repository.ErrNotFound
	}
	if _, err := s.tasks.DeleteMany(ctx, bson.M{"user": id}); err != nil {
		return fmt.Errorf("delete user tasks: %w", err)
	}
	return nil
}

func (s *Store) SetRefreshToken(ctx context.Context, userID, hash string) error {
	res, err := s.users.UpdateOne(ctx, bson.M{"_id": userID},
		bson.M{"$set": bson.M{"refreshTokenHash": hash, "updatedAt": time.Now().UTC()}})
	if err != nil {
		return fmt.Errorf("store refresh token: %w", err)
	}
	if res.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// SwapRefreshToken matches on both the id and the presented hash, so only
// one of several concurrent rotations can succeed.
func (s *Store) SwapRefreshToken(ctx context.Context, userID, oldHash, newHash string) error {
	res, err := s.users.UpdateOne(ctx,
		bson.M{"_id": userID, "refreshTokenHash": oldHash},
		bson.M{"$set": bson.M{"refreshTokenHash": newHash, "updatedAt": time.Now().UTC()}})
	if err != nil {
		return fmt.Errorf("rotate refresh token: %w", err)
	}
	if res.MatchedCount == 0 {
		return repository.ErrTokenMismatch
	}
	return nil
}

func (s *Store) ClearRefreshToken(ctx context.Context, userID string) error {
	_, err := s.users.UpdateOne(ctx, bson.M{"_id": userID},
		bson.M{"$set": bson.M{"refreshTokenHash": ""}})
	if err != nil {
		return fmt.Errorf("clear refresh token: %w", err)
	}
	return nil
}
