package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"github.com/liamcoop/studentrisk/internal/logger"
	"github.com/liamcoop/studentrisk/students"
)

var errNoDatabase = errors.New("database URL is required: use --database or DATABASE_URL")

func (c *cli) connect() (*sqlx.DB, error) {
	if c.cfg.DatabaseURL == "" {
		return nil, errNoDatabase
	}
	ctx, cancel := c.context()
	defer cancel()
	logger.Info("Connecting to database...")
	return students.Connect(ctx, c.cfg.DatabaseURL)
}

func newMigrateCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate [up|down|version|force VERSION]",
		Short: "Apply or inspect the student table migrations",
		Long: `Runs the embedded SQL migrations against the configured database.

  up       apply every pending migration (default)
  down     roll back every migration
  version  print the current version and dirty flag
  force    set the version without running migrations, clearing a dirty state`,
		Args: validateMigrateArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			command := "up"
			if len(args) > 0 {
				command = args[0]
			}

			db, err := c.connect()
			if err != nil {
				return err
			}
			m, err := students.NewMigrate(db)
			if err != nil {
				db.Close()
				return err
			}
			defer m.Close()

			return runMigration(cmd, m, command, args[min(1, len(args)):])
		},
	}
	return cmd
}

func validateMigrateArgs(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return nil
	}
	switch args[0] {
	case "up", "down", "version":
		return cobra.ExactArgs(1)(cmd, args)
	case "force":
		return cobra.ExactArgs(2)(cmd, args)
	}
	return fmt.Errorf("unknown migrate command %q (use up, down, version or force)", args[0])
}

func runMigration(cmd *cobra.Command, m *migrate.Migrate, command string, rest []string) error {
	out := cmd.OutOrStdout()

	switch command {
	case "up":
		logger.Info("Running migrations up...")
		err := m.Up()
		if errors.Is(err, migrate.ErrNoChange) {
			fmt.Fprintln(out, "No migrations to run (database is up to date)")
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		fmt.Fprintln(out, "Migrations completed successfully")

	case "down":
		logger.Info("Rolling back migrations...")
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("failed to rollback migrations: %w", err)
		}
		fmt.Fprintln(out, "Rollback completed successfully")

	case "version":
		version, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			fmt.Fprintln(out, "No migrations applied")
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to get version: %w", err)
		}
		fmt.Fprintf(out, "Current version: %d (dirty: %v)\n", version, dirty)

	case "force":
		if len(rest) != 1 {
			return errors.New("force requires a version number")
		}
		version, err := strconv.Atoi(rest[0])
		if err != nil {
			return fmt.Errorf("invalid version %q: %w", rest[0], err)
		}
		if err := m.Force(version); err != nil {
			return fmt.Errorf("failed to force version: %w", err)
		}
		fmt.Fprintf(out, "Forced version to %d\n", version)

	default:
		return fmt.Errorf("unknown migrate command %q (use up, down, version or force)", command)
	}
	return nil
}
