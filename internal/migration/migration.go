// Package migration applies the embedded schema with golang-migrate.
package migration

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/eggnunes/crmidea-sub003/migrations"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/spf13/cobra"
)

// DatabaseURL turns a postgres:// DSN into the URL the pgx/v5 migrate driver expects.
func DatabaseURL(dsn string) string {
	if rest, ok := strings.CutPrefix(dsn, "postgres://"); ok {
		return "pgx5://" + rest
	}
	if rest, ok := strings.CutPrefix(dsn, "postgresql://"); ok {
		return "pgx5://" + rest
	}
	return dsn
}

func New(dsn string) (*migrate.Migrate, error) {
	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return nil, fmt.Errorf("open embedded migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, DatabaseURL(dsn))
	if err != nil {
		return nil, fmt.Errorf("init migrate: %w", err)
	}
	return m, nil
}

// Up applies all pending migrations. An up-to-date schema is not an error.
func Up(dsn string) error {
	m, err := New(dsn)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

// Command builds the "migrate" CLI with up, down, version and force subcommands.
func Command(dsn func() string) *cobra.Command {
	root := &cobra.Command{
		Use:          "migrate",
		Short:        "Manage the database schema",
		SilenceUsage: true,
	}

	withMigrate := func(run func(m *migrate.Migrate, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			m, err := New(dsn())
			if err != nil {
				return err
			}
			defer m.Close()
			return run(m, args)
		}
	}

	var upSteps, downSteps int

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: withMigrate(func(m *migrate.Migrate, _ []string) error {
			var err error
			if upSteps > 0 {
				err = m.Steps(upSteps)
			} else {
				err = m.Up()
			}
			if errors.Is(err, migrate.ErrNoChange) {
				fmt.Println("no change")
				return nil
			}
			return err
		}),
	}
	up.Flags().IntVarP(&upSteps, "steps", "n", 0, "apply at most n migrations")

	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations (one step by default)",
		RunE: withMigrate(func(m *migrate.Migrate, _ []string) error {
			n := downSteps
			if n <= 0 {
				n = 1
			}
			err := m.Steps(-n)
			if errors.Is(err, migrate.ErrNoChange) {
				fmt.Println("no change")
				return nil
			}
			return err
		}),
	}
	down.Flags().IntVarP(&downSteps, "steps", "n", 1, "roll back n migrations")

	version := &cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		RunE: withMigrate(func(m *migrate.Migrate, _ []string) error {
			v, dirty, err := m.Version()
			if errors.Is(err, migrate.ErrNilVersion) {
				fmt.Println("no migrations applied")
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Printf("version %d (dirty: %t)\n", v, dirty)
			return nil
		}),
	}

	force := &cobra.Command{
		Use:   "force VERSION",
		Short: "Set the schema version without running migrations",
		Args:  cobra.ExactArgs(1),
		RunE: withMigrate(func(m *migrate.Migrate, args []string) error {
			v, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid version %q: %w", args[0], err)
			}
			return m.Force(v)
		}),
	}

	root.AddCommand(up, down, version, force)
	return root
}
