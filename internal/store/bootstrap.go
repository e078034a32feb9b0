// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Passgate Contributors

package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/passgate/passgate/pkg/errutil"
)

// RetryPolicy bounds how long startup waits for the database.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
}

// DefaultRetryPolicy waits up to roughly 20 seconds over 5 attempts.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts: 5,
	Delay:       5 * time.Second,
}

// Validate rejects policies that would never attempt or would spin.
func (p RetryPolicy) Validate() error {
	if p.MaxAttempts < 1 {
		return oops.Code("CONFIG_INVALID").With("max_attempts", p.MaxAttempts).Errorf("retry attempts must be at least 1")
	}
	if p.Delay <= 0 {
		return oops.Code("CONFIG_INVALID").With("delay", p.Delay.String()).Errorf("retry delay must be positive")
	}
	return nil
}

// schemaMigrator is what EnsureSchema needs from a Migrator.
type schemaMigrator interface {
	Up() error
	Close() error
}

type migratorFactory func(databaseURL string) (schemaMigrator, error)

func defaultMigratorFactory(databaseURL string) (schemaMigrator, error) {
	return NewMigrator(databaseURL)
}

// EnsureSchema applies pending migrations, retrying with a fixed delay while
// the database is unreachable. It runs once during startup; exhausting the
// policy is returned as an error the caller treats as fatal.
func EnsureSchema(ctx context.Context, databaseURL string, policy RetryPolicy, logger *slog.Logger) error {
	return ensureSchema(ctx, databaseURL, policy, logger, defaultMigratorFactory)
}

func ensureSchema(ctx context.Context, databaseURL string, policy RetryPolicy, logger *slog.Logger, newMigrator migratorFactory) error {
	if err := policy.Validate(); err != nil {
		return err
	}

	backoff := retry.WithMaxRetries(uint64(policy.MaxAttempts-1), retry.NewConstant(policy.Delay))

	attempt := 0
	err := retry.Do(ctx, backoff, func(_ context.Context) error {
		attempt++
		if err := migrateOnce(databaseURL, newMigrator); err != nil {
			attrs := []any{
				"event_type", "database_retry",
				"attempt", attempt,
				"max_attempts", policy.MaxAttempts,
			}
			logger.WarnContext(ctx, "failed to create tables", append(attrs, errutil.Attrs(err)...)...)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		logger.ErrorContext(ctx, "failed to create tables after all retries",
			"event_type", "database_error",
			"attempts", attempt,
		)
		return oops.Code("SCHEMA_SETUP_FAILED").With("attempts", attempt).Wrap(err)
	}

	logger.InfoContext(ctx, "database tables created successfully", "event_type", "database_setup")
	return nil
}

func migrateOnce(databaseURL string, newMigrator migratorFactory) (err error) {
	m, err := newMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	return m.Up()
}
