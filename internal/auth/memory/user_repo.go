// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Passgate Contributors

// Package memory provides an in-process UserRepository for tests and local runs.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/samber/oops"

	"github.com/passgate/passgate/internal/auth"
)

// UserRepository implements auth.UserRepository with a mutex-guarded map.
// Login uniqueness is checked and the row inserted under one lock.
type UserRepository struct {
	mu      sync.Mutex
	nextID  int64
	byLogin map[string]auth.User
	now     func() time.Time
}

// NewUserRepository creates an empty repository.
func NewUserRepository() *UserRepository {
	return &UserRepository{
		byLogin: make(map[string]auth.User),
		now:     time.Now,
	}
}

// Create stores a new user.
func (r *UserRepository) Create(ctx context.Context, login, passwordHash string) (*auth.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, oops.Code("USER_CREATE_FAILED").With("operation", "insert user").Wrap(err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byLogin[login]; exists {
		return nil, oops.Code("USER_LOGIN_TAKEN").
			With("login", login).
			Wrap(auth.ErrDuplicateLogin)
	}

	r.nextID++
	u := auth.User{
		ID:           r.nextID,
		Login:        login,
		PasswordHash: passwordHash,
		CreatedAt:    r.now().UTC(),
	}
	r.byLogin[login] = u
	return &u, nil
}

// GetByLogin retrieves a user by exact login.
func (r *UserRepository) GetByLogin(ctx context.Context, login string) (*auth.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, oops.Code("USER_GET_BY_LOGIN_FAILED").With("operation", "get user by login").Wrap(err)
	}

	r.mu.Lock()
	u, ok := r.byLogin[login]
	r.mu.Unlock()

	if !ok {
		return nil, oops.Code("USER_NOT_FOUND").
			With("login", login).
			Wrap(auth.ErrNotFound)
	}
	return &u, nil
}

// Len returns the number of stored users.
func (r *UserRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byLogin)
}

// Compile-time interface check.
var _ auth.UserRepository = (*UserRepository)(nil)
