// Package repository holds the MySQL implementation of the credential and
// task stores, plus the sentinel errors every store implementation returns.
// Higher layers translate these sentinels into client-facing errors; they
// never inspect driver errors directly.
package repository

import "errors"

// ErrNotFound is returned when the requested user or task does not exist.
var ErrNotFound = errors.New("not found")

// ErrEmailExists is returned when an insert or update would duplicate a
// user's email address.
var ErrEmailExists = errors.New("email already exists")

// ErrTokenMismatch is returned by a refresh-token swap when the stored token
// no longer equals the one presented (rotated, revoked or the user is gone).
var ErrTokenMismatch = errors.New("refresh token mismatch")
