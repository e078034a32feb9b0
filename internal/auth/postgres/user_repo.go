// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Passgate Contributors

// Package postgres implements auth repositories on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"

	"github.com/passgate/passgate/internal/auth"
)

// Querier is the subset of *pgxpool.Pool the repository uses.
// Each call checks a connection out for one statement.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// UserRepository implements auth.UserRepository using PostgreSQL.
type UserRepository struct {
	db Querier
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db Querier) *UserRepository {
	return &UserRepository{db: db}
}

// Create stores a new user. The unique index on login decides duplicates,
// so concurrent inserts of one login yield exactly one row.
func (r *UserRepository) Create(ctx context.Context, login, passwordHash string) (*auth.User, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO users (login, password_hash)
		VALUES ($1, $2)
		RETURNING id, login, password_hash, created_at
	`, login, passwordHash)

	user, err := scanUser(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return nil, oops.Code("USER_LOGIN_TAKEN").
				With("login", login).
				With("constraint", pgErr.ConstraintName).
				Wrap(auth.ErrDuplicateLogin)
		}
		return nil, oops.Code("USER_CREATE_FAILED").
			With("operation", "insert user").
			With("login", login).
			Wrap(err)
	}
	return user, nil
}

// GetByLogin retrieves a user by exact, case-sensitive login.
func (r *UserRepository) GetByLogin(ctx context.Context, login string) (*auth.User, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, login, password_hash, created_at
		FROM users
		WHERE login = $1
	`, login)

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").
			With("login", login).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_BY_LOGIN_FAILED").
			With("operation", "get user by login").
			With("login", login).
			Wrap(err)
	}
	return user, nil
}

// scanUser scans a single row into a User.
// Errors are returned unwrapped; callers add context.
func scanUser(row pgx.Row) (*auth.User, error) {
	var (
		id           int64
		login        string
		passwordHash string
		createdAt    time.Time
	)
	if err := row.Scan(&id, &login, &passwordHash, &createdAt); err != nil {
		return nil, err //nolint:wrapcheck // Callers wrap with context-specific info
	}
	return &auth.User{
		ID:           id,
		Login:        login,
		PasswordHash: passwordHash,
		CreatedAt:    createdAt,
	}, nil
}

// Compile-time interface check.
var _ auth.UserRepository = (*UserRepository)(nil)
