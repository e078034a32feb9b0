// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Passgate Contributors

//go:build integration

package cli_test

import (
	"context"
	"os/exec"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
)

// passgate runs the CLI against the suite database.
func passgate(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "go", append([]string{"run", "."}, args...)...)
	cmd.Dir = "../../../cmd/passgate"
	cmd.Env = append(cmd.Environ(), "DATABASE_URL="+env.connStr, "XDG_CONFIG_HOME="+GinkgoT().TempDir())
	output, err := cmd.CombinedOutput()
	return string(output), err
}

func usersTableExists(ctx context.Context) bool {
	var exists bool
	err := env.pool.QueryRow(ctx, "SELECT to_regclass('public.users') IS NOT NULL").Scan(&exists)
	Expect(err).NotTo(HaveOccurred())
	return exists
}

var _ = Describe("Migrate Command", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
		dropSchema(ctx, env.pool)
	})

	It("creates the users table", func() {
		output, err := passgate(ctx, "migrate", "up")
		Expect(err).NotTo(HaveOccurred(), "migrate up failed: %s", output)
		Expect(output).To(ContainSubstring("000001_create_users"))
		Expect(output).To(ContainSubstring("Migrations completed successfully"))
		Expect(usersTableExists(ctx)).To(BeTrue())
	})

	It("is idempotent", func() {
		output, err := passgate(ctx, "migrate", "up")
		Expect(err).NotTo(HaveOccurred(), "first run failed: %s", output)

		output, err = passgate(ctx, "migrate", "up")
		Expect(err).NotTo(HaveOccurred(), "second run failed: %s", output)
		Expect(output).To(ContainSubstring("Schema is up to date"))
	})

	It("reports status before and after applying", func() {
		output, err := passgate(ctx, "migrate", "status")
		Expect(err).NotTo(HaveOccurred(), "status failed: %s", output)
		Expect(output).To(ContainSubstring("Current version: none"))

		_, err = passgate(ctx, "migrate", "up")
		Expect(err).NotTo(HaveOccurred())

		output, err = passgate(ctx, "migrate", "version")
		Expect(err).NotTo(HaveOccurred(), "version failed: %s", output)
		Expect(output).To(ContainSubstring("000001_create_users"))
	})

	It("refuses to roll back without confirmation", func() {
		_, err := passgate(ctx, "migrate", "up")
		Expect(err).NotTo(HaveOccurred())

		output, err := passgate(ctx, "migrate", "down")
		Expect(err).To(HaveOccurred())
		Expect(output).To(ContainSubstring("--yes"))
		Expect(usersTableExists(ctx)).To(BeTrue())

		output, err = passgate(ctx, "migrate", "down", "--yes")
		Expect(err).NotTo(HaveOccurred(), "down failed: %s", output)
		Expect(usersTableExists(ctx)).To(BeFalse())
	})
})
