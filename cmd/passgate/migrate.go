// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Passgate Contributors

package main

import (
	"fmt"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/passgate/passgate/internal/config"
	"github.com/passgate/passgate/internal/store"
)

// NewMigrateCmd creates the migrate command group.
func NewMigrateCmd() *cobra.Command {
	return newMigrateCmd(nil)
}

func newMigrateCmd(deps *MigrateDeps) *cobra.Command {
	if deps == nil {
		deps = &MigrateDeps{}
	}
	if deps.MigratorFactory == nil {
		deps.MigratorFactory = func(databaseURL string) (Migrator, error) {
			return store.NewMigrator(databaseURL)
		}
	}

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
		Long: `Apply, roll back and inspect the embedded schema migrations.
Without a subcommand, pending migrations are applied.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigrateUp(cmd, deps)
		},
	}
	cmd.PersistentFlags().String("database-url", "", "PostgreSQL connection URL (env: DATABASE_URL)")

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigrateUp(cmd, deps)
		},
	})

	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back all migrations (drops every user)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigrateDown(cmd, deps)
		},
	}
	down.Flags().Bool("yes", false, "confirm dropping the users table")
	cmd.AddCommand(down)

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "List applied and pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigrateStatus(cmd, deps)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigrateVersion(cmd, deps)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "force VERSION",
		Short: "Mark VERSION as applied without running it",
		Long: `Set the recorded schema version and clear the dirty flag. Use this
only after repairing a migration that failed halfway.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrateForce(cmd, deps, args[0])
		},
	})

	return cmd
}

// openMigrator resolves the database URL through the usual config layers.
func openMigrator(cmd *cobra.Command, deps *MigrateDeps) (Migrator, error) {
	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return nil, err
	}
	if cfg.Database.URL == "" {
		return nil, oops.Code("CONFIG_INVALID").With("key", "database.url").
			Errorf("DATABASE_URL environment variable or --database-url is required")
	}

	m, err := deps.MigratorFactory(cfg.Database.URL)
	if err != nil {
		return nil, oops.With("operation", "open migrator").Wrap(err)
	}
	return m, nil
}

func closeMigrator(cmd *cobra.Command, m Migrator) {
	if err := m.Close(); err != nil {
		cmd.PrintErrln("warning: closing migrator:", err)
	}
}

func runMigrateUp(cmd *cobra.Command, deps *MigrateDeps) error {
	m, err := openMigrator(cmd, deps)
	if err != nil {
		return err
	}
	defer closeMigrator(cmd, m)

	pending, err := m.Pending()
	if err != nil {
		return oops.Wrapf(err, "list pending migrations")
	}
	if len(pending) == 0 {
		cmd.Println("Schema is up to date")
		return nil
	}

	cmd.Printf("Applying %d migration(s)...\n", len(pending))
	if err := m.Up(); err != nil {
		return oops.Wrapf(err, "apply migrations")
	}
	for _, v := range pending {
		cmd.Println("  applied", describeVersion(v))
	}
	cmd.Println("Migrations completed successfully")
	return nil
}

func runMigrateDown(cmd *cobra.Command, deps *MigrateDeps) error {
	confirmed, err := cmd.Flags().GetBool("yes")
	if err != nil {
		return oops.Wrap(err)
	}
	if !confirmed {
		return oops.Code("CONFIRMATION_REQUIRED").
			Errorf("migrate down drops the users table; re-run with --yes to confirm")
	}

	m, err := openMigrator(cmd, deps)
	if err != nil {
		return err
	}
	defer closeMigrator(cmd, m)

	if err := m.Down(); err != nil {
		return oops.Wrapf(err, "roll back migrations")
	}
	cmd.Println("All migrations rolled back")
	return nil
}

func runMigrateStatus(cmd *cobra.Command, deps *MigrateDeps) error {
	m, err := openMigrator(cmd, deps)
	if err != nil {
		return err
	}
	defer closeMigrator(cmd, m)

	version, dirty, err := m.Version()
	if err != nil {
		return oops.Wrapf(err, "read schema version")
	}
	applied, err := m.Applied()
	if err != nil {
		return oops.Wrapf(err, "list applied migrations")
	}
	pending, err := m.Pending()
	if err != nil {
		return oops.Wrapf(err, "list pending migrations")
	}

	cmd.Println("Current version:", formatVersion(version, dirty))
	cmd.Println("Applied:")
	printVersions(cmd, applied)
	cmd.Println("Pending:")
	printVersions(cmd, pending)
	return nil
}

func runMigrateVersion(cmd *cobra.Command, deps *MigrateDeps) error {
	m, err := openMigrator(cmd, deps)
	if err != nil {
		return err
	}
	defer closeMigrator(cmd, m)

	version, dirty, err := m.Version()
	if err != nil {
		return oops.Wrapf(err, "read schema version")
	}
	cmd.Println(formatVersion(version, dirty))
	return nil
}

func runMigrateForce(cmd *cobra.Command, deps *MigrateDeps, arg string) error {
	version, err := parseForceVersion(arg)
	if err != nil {
		return err
	}

	m, err := openMigrator(cmd, deps)
	if err != nil {
		return err
	}
	defer closeMigrator(cmd, m)

	if err := m.Force(version); err != nil {
		return oops.Wrapf(err, "force version")
	}
	cmd.Printf("Schema version forced to %d\n", version)
	return nil
}

// parseForceVersion reads the leading integer of s. Trailing garbage is
// ignored; a missing number is an INVALID_VERSION error.
func parseForceVersion(s string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(s, "%d", &version); err != nil {
		return 0, oops.Code("INVALID_VERSION").With("input", s).Errorf("invalid version %q: must be an integer", s)
	}
	return version, nil
}

func formatVersion(version uint, dirty bool) string {
	if version == 0 {
		return "none"
	}
	out := describeVersion(version)
	if dirty {
		out += " (dirty)"
	}
	return out
}

func describeVersion(version uint) string {
	name, err := store.MigrationName(version)
	if err != nil || name == "" {
		return fmt.Sprintf("%06d", version)
	}
	return name
}

func printVersions(cmd *cobra.Command, versions []uint) {
	if len(versions) == 0 {
		cmd.Println("  (none)")
		return
	}
	names := make([]string, 0, len(versions))
	for _, v := range versions {
		names = append(names, "  "+describeVersion(v))
	}
	cmd.Println(strings.Join(names, "\n"))
}
