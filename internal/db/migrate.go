// Package db applies the embedded goose migrations and watches the job
// queue for new work.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as database/sql driver
	"github.com/pressly/goose/v3"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/cadence/internal/db/migrations"
	"github.com/persistorai/cadence/internal/dbpool"
)

// Migrate applies the embedded migrations.
func Migrate(ctx context.Context, pool *dbpool.Pool, log *logrus.Logger) error {
	return RunMigrations(ctx, pool.ConnString(), log, migrations.FS)
}

// RunMigrations applies all pending migrations from fsys. goose needs a
// *sql.DB, so a short-lived one is opened through the pgx stdlib driver.
func RunMigrations(ctx context.Context, connStr string, log *logrus.Logger, fsys fs.FS) error {
	sqlDB, err := sql.Open("pgx", connStr)
	if err != nil {
		return fmt.Errorf("opening sql.DB for migrations: %w", err)
	}
	defer sqlDB.Close()

	provider, err := goose.NewProvider(goose.DialectPostgres, sqlDB, fsys)
	if err != nil {
		return fmt.Errorf("creating goose provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("applying migrations: %w", err)
	}

	for _, r := range results {
		if r.Error != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", r.Source.Version, r.Source.Path, r.Error)
		}

		log.WithFields(logrus.Fields{
			"version":  r.Source.Version,
			"file":     r.Source.Path,
			"duration": r.Duration,
		}).Info("migration applied")
	}

	if len(results) == 0 {
		log.Debug("all migrations already applied")
	}

	return nil
}
