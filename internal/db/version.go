package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/persistorai/cadence/internal/db/migrations"
	"github.com/persistorai/cadence/internal/dbpool"
)

// SchemaVersion returns the number of embedded SQL migrations, which equals
// the schema version the binary expects.
func SchemaVersion() int {
	entries, err := migrations.FS.ReadDir(".")
	if err != nil {
		return 0
	}

	count := 0
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			count++
		}
	}

	return count
}

// CheckSchema reports an error when the database is behind the embedded migrations.
func CheckSchema(ctx context.Context, pool *dbpool.Pool) error {
	var applied int
	err := pool.QueryRow(ctx,
		"SELECT COALESCE(MAX(version_id), 0) FROM goose_db_version WHERE is_applied").Scan(&applied)
	if err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}

	if want := SchemaVersion(); applied < want {
		return fmt.Errorf("schema version %d behind expected %d", applied, want)
	}

	return nil
}
