// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Passgate Contributors

//go:build integration

package store_test

import (
	"context"
	"io"
	"log/slog"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/passgate/passgate/internal/store"
)

var _ = Describe("Migrator", Ordered, func() {
	var migrator *store.Migrator

	BeforeAll(func() {
		var err error
		migrator, err = store.NewMigrator(connStr)
		Expect(err).NotTo(HaveOccurred())
		Expect(migrator.Down()).To(Succeed())
	})

	AfterAll(func() {
		Expect(migrator.Down()).To(Succeed())
		Expect(migrator.Close()).To(Succeed())
	})

	It("starts at version zero with every migration pending", func() {
		version, dirty, err := migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(BeZero())
		Expect(dirty).To(BeFalse())

		pending, err := migrator.Pending()
		Expect(err).NotTo(HaveOccurred())
		all, err := store.MigrationVersions()
		Expect(err).NotTo(HaveOccurred())
		Expect(pending).To(Equal(all))
	})

	It("applies all migrations and is idempotent", func() {
		Expect(migrator.Up()).To(Succeed())
		Expect(migrator.Up()).To(Succeed())

		pending, err := migrator.Pending()
		Expect(err).NotTo(HaveOccurred())
		Expect(pending).To(BeEmpty())
	})

	It("creates the users table with a unique login index", func() {
		ctx := context.Background()
		pool, err := store.NewPool(ctx, store.PoolConfig{URL: connStr})
		Expect(err).NotTo(HaveOccurred())
		defer pool.Close()

		_, err = pool.Exec(ctx, `INSERT INTO users (login, password_hash) VALUES ('alice', 'h1')`)
		Expect(err).NotTo(HaveOccurred())
		_, err = pool.Exec(ctx, `INSERT INTO users (login, password_hash) VALUES ('alice', 'h2')`)
		Expect(err).To(HaveOccurred())

		var createdAt time.Time
		Expect(pool.QueryRow(ctx, `SELECT created_at FROM users WHERE login = 'alice'`).Scan(&createdAt)).To(Succeed())
		Expect(createdAt).To(BeTemporally("~", time.Now(), time.Minute))

		_, err = pool.Exec(ctx, `DELETE FROM users`)
		Expect(err).NotTo(HaveOccurred())
	})

	It("rolls back and re-applies", func() {
		Expect(migrator.Down()).To(Succeed())
		version, _, err := migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(BeZero())

		Expect(migrator.Up()).To(Succeed())
		applied, err := migrator.Applied()
		Expect(err).NotTo(HaveOccurred())
		Expect(applied).NotTo(BeEmpty())
	})
})

var _ = Describe("EnsureSchema", func() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	It("succeeds against a reachable database", func() {
		err := store.EnsureSchema(context.Background(), connStr,
			store.RetryPolicy{MaxAttempts: 2, Delay: 10 * time.Millisecond}, logger)
		Expect(err).NotTo(HaveOccurred())
	})

	It("fails after exhausting attempts against an unreachable database", func() {
		err := store.EnsureSchema(context.Background(), "postgres://nobody:x@127.0.0.1:1/none?sslmode=disable",
			store.RetryPolicy{MaxAttempts: 2, Delay: 10 * time.Millisecond}, logger)
		Expect(err).To(HaveOccurred())
	})
})
