// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Passgate Contributors

//go:build integration

package postgres_test

import (
	"context"
	"errors"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/passgate/passgate/internal/auth"
	"github.com/passgate/passgate/internal/auth/postgres"
)

var _ = Describe("UserRepository", func() {
	var (
		ctx  context.Context
		repo *postgres.UserRepository
	)

	BeforeEach(func() {
		ctx = context.Background()
		repo = postgres.NewUserRepository(pool)
		_, err := pool.Exec(ctx, "TRUNCATE users RESTART IDENTITY")
		Expect(err).NotTo(HaveOccurred())
	})

	It("creates and reads back a user", func() {
		created, err := repo.Create(ctx, "alice", "$argon2id$hash")
		Expect(err).NotTo(HaveOccurred())
		Expect(created.ID).To(Equal(int64(1)))
		Expect(created.CreatedAt).To(BeTemporally("~", time.Now(), time.Minute))

		found, err := repo.GetByLogin(ctx, "alice")
		Expect(err).NotTo(HaveOccurred())
		Expect(found.ID).To(Equal(created.ID))
		Expect(found.PasswordHash).To(Equal("$argon2id$hash"))
	})

	It("treats logins as case-sensitive", func() {
		_, err := repo.Create(ctx, "alice", "h")
		Expect(err).NotTo(HaveOccurred())

		_, err = repo.GetByLogin(ctx, "Alice")
		Expect(errors.Is(err, auth.ErrNotFound)).To(BeTrue())

		_, err = repo.Create(ctx, "Alice", "h")
		Expect(err).NotTo(HaveOccurred())
	})

	It("rejects a duplicate login", func() {
		_, err := repo.Create(ctx, "alice", "h1")
		Expect(err).NotTo(HaveOccurred())

		_, err = repo.Create(ctx, "alice", "h2")
		Expect(errors.Is(err, auth.ErrDuplicateLogin)).To(BeTrue())
	})

	It("admits exactly one of many concurrent creates", func() {
		const workers = 20
		var (
			wg         sync.WaitGroup
			mu         sync.Mutex
			successes  int
			duplicates int
		)
		for range workers {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				_, err := repo.Create(ctx, "racer", "h")
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					successes++
				case errors.Is(err, auth.ErrDuplicateLogin):
					duplicates++
				}
			}()
		}
		wg.Wait()

		Expect(successes).To(Equal(1))
		Expect(duplicates).To(Equal(workers - 1))

		var count int
		Expect(pool.QueryRow(ctx, "SELECT count(*) FROM users WHERE login = 'racer'").Scan(&count)).To(Succeed())
		Expect(count).To(Equal(1))
	})
})
