// Command migrator applies the schema migrations embedded in the binary and,
// in DEV environments, the sample seed data.
package main

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/spf13/cobra"

	"github.com/fastprodman/paperledger/internal/config"
	"github.com/fastprodman/paperledger/internal/infra/logging"
	"github.com/fastprodman/paperledger/internal/infra/pgutils"
	"github.com/fastprodman/paperledger/pkg/envconf"
)

//go:embed migrations/*.sql
var schemaFS embed.FS

//go:embed test_data/*.sql
var seedFS embed.FS

const connectTimeout = 30 * time.Second

type migratorConfig struct {
	Postgres config.PostgresConfig
	LogLevel slog.Level `env:"APP_LOG_LEVEL" default:"INFO"`
	AppEnv   string     `env:"APP_ENV" default:""`
}

// migrationSet is one independently versioned group of migrations. Seeds
// keep their own version table so their numbering never collides with the
// schema's.
type migrationSet struct {
	name  string
	fsys  fs.FS
	dir   string
	table string
}

var (
	schemaSet = migrationSet{name: "schema", fsys: schemaFS, dir: "migrations", table: postgres.DefaultMigrationsTable}
	seedSet   = migrationSet{name: "seed", fsys: seedFS, dir: "test_data", table: "seed_schema_migrations"}
)

func main() {
	err := newRootCmd().Execute()
	if err != nil {
		slog.Error("migrator failed", "error", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		cfg migratorConfig
		db  *sql.DB
	)

	root := &cobra.Command{
		Use:           "migrator",
		Short:         "Manage the paperledger database schema",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			err := envconf.Load(&cfg)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			logging.SetupJSON(cfg.LogLevel)

			ctx, cancel := context.WithTimeout(cmd.Context(), connectTimeout)
			defer cancel()

			db, err = pgutils.OpenDB(ctx, cfg.Postgres)
			if err != nil {
				return fmt.Errorf("open db: %w", err)
			}

			return nil
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return db.Close()
		},
	}

	sets := func() []migrationSet {
		if cfg.AppEnv == "DEV" {
			return []migrationSet{schemaSet, seedSet}
		}
		return []migrationSet{schemaSet}
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply every pending migration (the default)",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			for _, set := range sets() {
				err := set.up(db)
				if err != nil {
					return err
				}
			}

			return nil
		},
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back the newest migrations",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			if steps <= 0 {
				return fmt.Errorf("--steps must be positive, got %d", steps)
			}

			// seeds depend on the schema, so they are rolled back first
			all := sets()
			for i := len(all) - 1; i >= 0; i-- {
				err := all[i].down(db, steps)
				if err != nil {
					return err
				}
			}

			return nil
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back per set")

	version := &cobra.Command{
		Use:   "version",
		Short: "Print the applied version of every migration set",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, set := range sets() {
				v, dirty, err := set.version(db)
				if err != nil {
					return err
				}

				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\tdirty=%t\n", set.name, v, dirty)
			}

			return nil
		},
	}

	root.AddCommand(up, down, version)
	root.RunE = up.RunE

	return root
}

func (s migrationSet) migrator(db *sql.DB) (*migrate.Migrate, error) {
	driver, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: s.table})
	if err != nil {
		return nil, fmt.Errorf("%s: postgres driver: %w", s.name, err)
	}

	src, err := iofs.New(s.fsys, s.dir)
	if err != nil {
		return nil, fmt.Errorf("%s: iofs source: %w", s.name, err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("%s: migrate instance: %w", s.name, err)
	}

	return m, nil
}

func (s migrationSet) up(db *sql.DB) error {
	m, err := s.migrator(db)
	if err != nil {
		return err
	}

	err = m.Up()
	switch {
	case errors.Is(err, migrate.ErrNoChange):
		slog.Info("migrations already current", "set", s.name)
	case err != nil:
		return fmt.Errorf("%s: up: %w", s.name, err)
	default:
		slog.Info("migrations applied", "set", s.name)
	}

	return nil
}

func (s migrationSet) down(db *sql.DB, steps int) error {
	m, err := s.migrator(db)
	if err != nil {
		return err
	}

	var short migrate.ErrShortLimit

	err = m.Steps(-steps)
	switch {
	case errors.Is(err, migrate.ErrNoChange), errors.Is(err, os.ErrNotExist):
		slog.Info("nothing to roll back", "set", s.name)
	case errors.As(err, &short):
		slog.Info("rolled back to the first migration", "set", s.name, "missing_steps", short.Short)
	case err != nil:
		return fmt.Errorf("%s: down %d: %w", s.name, steps, err)
	default:
		slog.Info("migrations rolled back", "set", s.name, "steps", steps)
	}

	return nil
}

func (s migrationSet) version(db *sql.DB) (uint, bool, error) {
	m, err := s.migrator(db)
	if err != nil {
		return 0, false, err
	}

	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("%s: version: %w", s.name, err)
	}

	return v, dirty, nil
}
