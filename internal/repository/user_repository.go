package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/task-manager/internal/model"
)

// mysqlDuplicateEntry is the server error number for a unique key violation.
const mysqlDuplicateEntry = 1062

const userColumns = "id,name,email,password_hash,role,is_active,refresh_token_hash,created_at,updated_at"

// UserRepo persists users in the `users` table.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
}

// CreateUser inserts u.  The caller supplies ID, hash and timestamps.
func (r *UserRepo) CreateUser(ctx context.Context, u *model.User) error {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (id,name,email,password_hash,role,is_active,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?)",
		u.ID, u.Name, u.Email, u.PasswordHash, string(u.Role), u.IsActive, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		if isDuplicate(err) {
			return ErrEmailExists
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func scanUser(row interface{ Scan(...any) error }) (model.User, error) {
	var (
		u       model.User
		role    string
		refresh sql.NullString
	)
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &role, &u.IsActive, &refresh, &u.CreatedAt, &u.UpdatedAt)
	u.Role = model.Role(role)
	u.RefreshTokenHash = refresh.String
	return u, err
}

func (r *UserRepo) getOne(ctx context.Context, where string, arg any) (model.User, error) {
	u, err := scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE "+where+" LIMIT 1", arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, ErrNotFound
		}
		return model.User{}, fmt.Errorf("select user: %w", err)
	}
	return u, nil
}

// UserByEmail fetches a user by normalized email.
func (r *UserRepo) UserByEmail(ctx context.Context, email string) (model.User, error) {
	return r.getOne(ctx, "email=?", strings.ToLower(strings.TrimSpace(email)))
}

// UserByID fetches a user by id.
func (r *UserRepo) UserByID(ctx context.Context, id string) (model.User, error) {
	return r.getOne(ctx, "id=?", id)
}

// ListUsers returns one page of users, newest first, and the total count
// matching the filter.
func (r *UserRepo) ListUsers(ctx context.Context, f model.UserFilter) ([]model.User, int, error) {
	where, args := "", []any{}
	if f.Role != "" {
		where = " WHERE role=?"
		args = append(args, string(f.Role))
	}

	var total int
	if err := r.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM users"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+userColumns+" FROM users"+where+" ORDER BY created_at DESC LIMIT ? OFFSET ?",
		append(args, f.Limit, f.Offset())...)
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := make([]model.User, 0, f.Limit)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, total, rows.Err()
}

// UpdateUser overwrites the mutable profile fields of u (name, email, role,
// is_active).  The password hash and refresh token are left untouched.
func (r *UserRepo) UpdateUser(ctx context.Context, u model.User) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET name=?, email=?, role=?, is_active=?, updated_at=? WHERE id=?",
		u.Name, strings.ToLower(strings.TrimSpace(u.Email)), string(u.Role), u.IsActive, u.UpdatedAt, u.ID)
	if err != nil {
		if isDuplicate(err) {
			return ErrEmailExists
		}
		return fmt.Errorf("update user: %w", err)
	}
	return expectOne(res)
}

// DeleteUser removes a user; their tasks go with them (ON DELETE CASCADE).
func (r *UserRepo) DeleteUser(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM users WHERE id=?", id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return expectOne(res)
}

// SetRefreshToken records hash as the user's only valid refresh token,
// replacing whatever was stored.
func (r *UserRepo) SetRefreshToken(ctx context.Context, userID, hash string) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET refresh_token_hash=?, updated_at=? WHERE id=?",
		hash, time.Now().UTC(), userID)
	if err != nil {
		return fmt.Errorf("store refresh token: %w", err)
	}
	return expectOne(res)
}

// SwapRefreshToken replaces oldHash with newHash in one conditional UPDATE.
// When the stored value is no longer oldHash nothing changes and
// ErrTokenMismatch is returned, so two concurrent refreshes of the same
// token cannot both win.
func (r *UserRepo) SwapRefreshToken(ctx context.Context, userID, oldHash, newHash string) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET refresh_token_hash=?, updated_at=? WHERE id=? AND refresh_token_hash=?",
		newHash, time.Now().UTC(), userID, oldHash)
	if err != nil {
		return fmt.Errorf("rotate refresh token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rotate refresh token: %w", err)
	}
	if n == 0 {
		return ErrTokenMismatch
	}
	return nil
}

// ClearRefreshToken forgets the stored refresh token.  Clearing an already
// cleared token is not an error.
func (r *UserRepo) ClearRefreshToken(ctx context.Context, userID string) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE users SET refresh_token_hash=NULL WHERE id=?", userID)
	if err != nil {
		return fmt.Errorf("clear refresh token: %w", err)
	}
	return nil
}

// expectOne maps "no rows affected" to ErrNotFound.  The connection uses
// clientFoundRows, so a matched row that needed no change still counts.
func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
