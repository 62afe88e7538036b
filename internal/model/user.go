package model

import "time"

// Role is the authorization level carried in access tokens and stored on
// each user.  Only the two values below are valid.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// User represents an account as stored in the `users` table or the `users`
// collection.  PasswordHash and RefreshTokenHash never leave the process:
// both are excluded from JSON.
//
// Fields:
//
//	ID               – UUID primary key.
//	Name             – display name.
//	Email            – unique, lower-cased email address.
//	PasswordHash     – bcrypt hash of the password.
//	Role             – user or admin.
//	IsActive         – inactive users cannot log in or refresh.
//	RefreshTokenHash – SHA-256 hex of the current refresh token, "" when logged out.
//	CreatedAt        – creation timestamp.
//	UpdatedAt        – last update timestamp.
type User struct {
	ID               string    `json:"id" bson:"_id"`
	Name             string    `json:"name" bson:"name"`
	Email            string    `json:"email" bson:"email"`
	PasswordHash     string    `json:"-" bson:"passwordHash"`
	Role             Role      `json:"role" bson:"role"`
	IsActive         bool      `json:"isActive" bson:"isActive"`
	RefreshTokenHash string    `json:"-" bson:"refreshTokenHash"`
	CreatedAt        time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt" bson:"updatedAt"`
}

// UserFilter narrows the admin user listing.  An empty Role matches every user.
type UserFilter struct {
	Role  Role
	Page  int
	Limit int
}

// Offset returns the number of rows to skip for the filter's page.
func (f UserFilter) Offset() int {
	return (f.Page - 1) * f.Limit
}

// UserDetail is a user together with their most recent tasks, as returned
// by the profile and the admin user lookup.
type UserDetail struct {
	User
	Tasks []Task `json:"tasks"`
}
