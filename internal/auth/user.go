// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Passgate Contributors

package auth

import (
	"context"
	"time"
)

// User is a registered account.
type User struct {
	ID           int64
	Login        string
	PasswordHash string
	CreatedAt    time.Time
}

// UserRepository manages user persistence.
type UserRepository interface {
	// Create inserts a new user and returns it with ID and CreatedAt set.
	// Returns an error wrapping ErrDuplicateLogin if the login is taken; the
	// check is the store's unique constraint, not a prior read.
	Create(ctx context.Context, login, passwordHash string) (*User, error)

	// GetByLogin retrieves a user by exact, case-sensitive login.
	// Returns an error wrapping ErrNotFound if no such user exists.
	GetByLogin(ctx context.Context, login string) (*User, error)
}
