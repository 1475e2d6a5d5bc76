// Package testhelpers provides shared integration-test infrastructure.
package testhelpers

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/persistorai/cadence/internal/db"
	"github.com/persistorai/cadence/internal/dbpool"
)

// PostgresImage is the image started when TEST_DATABASE_URL is unset.
const PostgresImage = "postgres:16-alpine"

// appRole is a non-superuser login so row-level security applies to the
// pool handed to tests. Superusers bypass RLS.
const (
	appRole     = "cadence_app"
	appPassword = "cadence_app_pw"
)

// TestDB holds the shared migrated database.
type TestDB struct {
	// Pool connects as the unprivileged application role.
	Pool *dbpool.Pool

	// Admin connects as the owner and bypasses RLS; use it for fixtures
	// and cleanup only.
	Admin *dbpool.Pool

	Container testcontainers.Container
}

var (
	sharedTestDB     *TestDB
	sharedTestDBOnce sync.Once
	sharedTestDBErr  error
)

// GetTestDB returns a migrated PostgreSQL database shared by every test in
// the run. TEST_DATABASE_URL selects an existing server; otherwise a
// container is started.
func GetTestDB(t *testing.T) *TestDB {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	sharedTestDBOnce.Do(func() {
		sharedTestDB, sharedTestDBErr = setupTestDB()
	})

	if sharedTestDBErr != nil {
		t.Fatalf("Failed to setup test database: %v", sharedTestDBErr)
	}

	return sharedTestDB
}

func setupTestDB() (*TestDB, error) {
	ctx := context.Background()

	var container testcontainers.Container
	adminURL := os.Getenv("TEST_DATABASE_URL")

	if adminURL == "" {
		req := testcontainers.ContainerRequest{
			Image:        PostgresImage,
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_DB":       "cadence_test",
				"POSTGRES_USER":     "cadence",
				"POSTGRES_PASSWORD": "test_password",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		}

		c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
			ContainerRequest: req,
			Started:          true,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to start test container: %w", err)
		}
		container = c

		host, err := c.Host(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get container host: %w", err)
		}
		port, err := c.MappedPort(ctx, "5432")
		if err != nil {
			return nil, fmt.Errorf("failed to get container port: %w", err)
		}

		adminURL = fmt.Sprintf("postgres://cadence:test_password@%s:%s/cadence_test?sslmode=disable", host, port.Port())
	}

	admin, err := dbpool.NewPool(ctx, adminURL, 5)
	if err != nil {
		return nil, fmt.Errorf("failed to connect admin pool: %w", err)
	}

	log := logrus.New()
	log.SetLevel(logrus.WarnLevel)
	if err := db.Migrate(ctx, admin, log); err != nil {
		return nil, err
	}

	if err := grantAppRole(ctx, admin); err != nil {
		return nil, err
	}

	appURL, err := roleURL(adminURL, appRole, appPassword)
	if err != nil {
		return nil, err
	}

	pool, err := dbpool.NewPool(ctx, appURL, 10)
	if err != nil {
		return nil, fmt.Errorf("failed to connect app pool: %w", err)
	}

	return &TestDB{Pool: pool, Admin: admin, Container: container}, nil
}

func grantAppRole(ctx context.Context, admin *dbpool.Pool) error {
	stmts := []string{
		`DO $$ BEGIN
			IF NOT EXISTS (SELECT 1 FROM pg_roles WHERE rolname = '` + appRole + `') THEN
				CREATE ROLE ` + appRole + ` LOGIN PASSWORD '` + appPassword + `' NOSUPERUSER NOBYPASSRLS;
			END IF;
		END $$`,
		`GRANT USAGE ON SCHEMA public TO ` + appRole,
		`GRANT SELECT, INSERT, UPDATE, DELETE ON ALL TABLES IN SCHEMA public TO ` + appRole,
		`GRANT USAGE, SELECT ON ALL SEQUENCES IN SCHEMA public TO ` + appRole,
	}

	for _, s := range stmts {
		if _, err := admin.Exec(ctx, s); err != nil {
			return fmt.Errorf("granting app role: %w", err)
		}
	}

	return nil
}

// roleURL rewrites the credentials of connStr.
func roleURL(connStr, user, password string) (string, error) {
	u, err := url.Parse(connStr)
	if err != nil {
		return "", fmt.Errorf("parsing database URL: %w", err)
	}
	u.User = url.UserPassword(user, password)

	return u.String(), nil
}
