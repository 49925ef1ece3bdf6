package main

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/fastprodman/retailpay/internal/config"
	"github.com/fastprodman/retailpay/internal/infra/logging"
	"github.com/fastprodman/retailpay/internal/infra/pgutils"
	"github.com/fastprodman/retailpay/pkg/envconf"
)

//go:embed migrations/*.sql
var baseFS embed.FS

//go:embed test_data/*.sql
var devFS embed.FS

const seedMigrationsTable = "seed_migrations"

type migratorConfig struct {
	LogLevel slog.Level `env:"APP_LOG_LEVEL" default:"INFO"`
	AppEnv   string     `env:"APP_ENV" default:"PROD"`
	Postgres config.PostgresConfig
}

// set describes one embedded migration source and its bookkeeping table.
type set struct {
	name  string
	fsys  embed.FS
	dir   string
	table string
}

// Usage:
//
//	migrator            apply all pending migrations (and dev seeds when APP_ENV=DEV)
//	migrator -down 1    roll back the newest schema migration
//	migrator -version   print the current schema version
func main() {
	down := flag.Uint("down", 0, "roll back this many schema migrations")
	version := flag.Bool("version", false, "print the schema version and exit")
	flag.Parse()

	err := run(*down, *version)
	if err != nil {
		slog.Error("migration run failed", "error", err)
		os.Exit(1)
	}

	slog.Info("migration run finished successfully")
}

func run(down uint, version bool) error {
	err := envconf.LoadFile(".env")
	if err != nil {
		return fmt.Errorf("load .env: %w", err)
	}

	cfg := new(migratorConfig)

	err = envconf.Load(cfg)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logging.SetupJSON(cfg.LogLevel)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := pgutils.OpenDB(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	//nolint:errcheck
	defer db.Close()

	schema := set{name: "schema", fsys: baseFS, dir: "migrations"}
	seeds := set{name: "dev seed", fsys: devFS, dir: "test_data", table: seedMigrationsTable}

	switch {
	case version:
		return printVersion(db, schema)
	case down > 0:
		if cfg.AppEnv != "DEV" {
			return errors.New("rolling back is only allowed with APP_ENV=DEV")
		}

		return withMigrate(db, schema, func(m *migrate.Migrate) error {
			return m.Steps(-int(down))
		})
	}

	err = withMigrate(db, schema, func(m *migrate.Migrate) error { return m.Up() })
	if err != nil {
		return err
	}

	if cfg.AppEnv == "DEV" {
		// Seeds are versioned independently of the schema.
		err = withMigrate(db, seeds, func(m *migrate.Migrate) error { return m.Up() })
		if err != nil {
			return err
		}
	}

	return nil
}

func printVersion(db *sql.DB, s set) error {
	return withMigrate(db, s, func(m *migrate.Migrate) error {
		v, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			slog.Info("no migrations applied", "set", s.name)

			return nil
		}

		if err != nil {
			return err
		}

		slog.Info("schema version", "set", s.name, "version", v, "dirty", dirty)

		return nil
	})
}

// withMigrate builds a migrate instance over s and runs fn. ErrNoChange is
// not an error.
func withMigrate(db *sql.DB, s set, fn func(*migrate.Migrate) error) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: s.table})
	if err != nil {
		return fmt.Errorf("%s: init postgres driver: %w", s.name, err)
	}

	src, err := iofs.New(s.fsys, s.dir)
	if err != nil {
		return fmt.Errorf("%s: iofs source: %w", s.name, err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("%s: migrate instance: %w", s.name, err)
	}

	err = fn(m)
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("%s: %w", s.name, err)
	}

	slog.Info("migrations applied", "set", s.name)

	return nil
}
