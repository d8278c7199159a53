package testdb

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/phrazzld/studypal-api/internal/config"
	"github.com/phrazzld/studypal-api/internal/platform/postgres"
	"github.com/stretchr/testify/require"
)

// TestTimeout defines a default timeout for test database operations.
const TestTimeout = 5 * time.Second

// IsIntegrationTestEnvironment returns true if the DATABASE_URL environment
// variable is set, indicating that integration tests can be run.
func IsIntegrationTestEnvironment() bool {
	return GetTestDatabaseURL() != ""
}

// GetTestDatabaseURL returns DATABASE_URL, falling back to
// STUDYPAL_TEST_DB_URL.
func GetTestDatabaseURL() string {
	if u := os.Getenv("DATABASE_URL"); u != "" {
		return u
	}
	return os.Getenv("STUDYPAL_TEST_DB_URL")
}

// Config returns the settings of the test database. It skips the test
// outside integration runs.
func Config(t *testing.T) config.DatabaseConfig {
	t.Helper()
	dbURL := GetTestDatabaseURL()
	if dbURL == "" {
		t.Skip("DATABASE_URL not set; skipping postgres integration test")
	}
	return config.DatabaseConfig{URL: dbURL, MaxOpenConns: 20, MaxIdleConns: 5}
}

// Open connects to the test database, applies every migration and closes the
// pool when the test ends. It skips the test outside integration runs.
func Open(t *testing.T) *sql.DB {
	t.Helper()
	cfg := Config(t)

	ctx, cancel := context.WithTimeout(context.Background(), 4*TestTimeout)
	defer cancel()

	db, err := postgres.Open(ctx, cfg)
	require.NoError(t, err, "failed to open test database")
	t.Cleanup(func() { _ = db.Close() })

	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	require.NoError(t, postgres.Migrate(ctx, db, postgres.MigrateUp, quiet), "failed to run migrations")
	return db
}

// DeleteAccounts removes the given accounts when the test ends, so
// integration runs can share one database.
func DeleteAccounts(t *testing.T, db *sql.DB, ids ...string) {
	t.Helper()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), TestTimeout)
		defer cancel()
		for _, id := range ids {
			if _, err := db.ExecContext(ctx, "DELETE FROM accounts WHERE id = $1", id); err != nil {
				t.Logf("failed to delete test account %s: %v", id, err)
			}
		}
	})
}
