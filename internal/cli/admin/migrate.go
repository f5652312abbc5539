package admin

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/cloo-solutions/obsidian/internal/config"
	"github.com/cloo-solutions/obsidian/internal/domain"
	"github.com/cloo-solutions/obsidian/internal/logging"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const defaultMigrationsSource = "file://migrations"

// MigrateCmd returns the migrate command group.
func MigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}
	cmd.PersistentFlags().String("source", defaultMigrationsSource, "Migration source URL")

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, func(m *migrate.Migrate, logger *zap.Logger) error {
				return migrateUp(m, logger)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, func(m *migrate.Migrate, logger *zap.Logger) error {
				if err := m.Steps(-1); err != nil && !errors.Is(err, migrate.ErrNoChange) {
					return fmt.Errorf("failed to roll back migration: %w", err)
				}
				logger.Info("migrations: rolled back one step")
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, func(m *migrate.Migrate, _ *zap.Logger) error {
				version, dirty, err := m.Version()
				if errors.Is(err, migrate.ErrNilVersion) {
					fmt.Fprintln(cmd.OutOrStdout(), "no migrations applied")
					return nil
				}
				if err != nil {
					return fmt.Errorf("failed to get migration version: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty: %t)\n", version, dirty)
				return nil
			})
		},
	})

	return cmd
}

func withMigrator(cmd *cobra.Command, fn func(*migrate.Migrate, *zap.Logger) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if !cfg.HasDatabase() {
		return domain.ConfigError("OBSIDIAN_DATABASE_URL is required for migrations")
	}
	logger, err := logging.New(cfg.LoggingConfig())
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	source, _ := cmd.Flags().GetString("source")
	m, closeFn, err := newMigrator(cfg.DatabaseURL, source)
	if err != nil {
		return err
	}
	defer closeFn()
	return fn(m, logger)
}

func newMigrator(databaseURL, source string) (*migrate.Migrate, func(), error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database for migrations: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(source, "postgres", driver)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return m, func() { _, _ = m.Close() }, nil
}

// runMigrations applies pending migrations from source.
func runMigrations(databaseURL, source string, logger *zap.Logger) error {
	m, closeFn, err := newMigrator(databaseURL, source)
	if err != nil {
		return err
	}
	defer closeFn()
	return migrateUp(m, logger)
}

func migrateUp(m *migrate.Migrate, logger *zap.Logger) error {
	err := m.Up()
	noChange := errors.Is(err, migrate.ErrNoChange)
	if err != nil && !noChange {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		logger.Info("migrations: no migrations found")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to get migration version: %w", err)
	}
	if dirty {
		return fmt.Errorf("migration version %d is dirty - manual intervention required", version)
	}

	if noChange {
		logger.Info("migrations: database is up to date", zap.Uint("version", version))
	} else {
		logger.Info("migrations: applied successfully", zap.Uint("version", version))
	}
	return nil
}
