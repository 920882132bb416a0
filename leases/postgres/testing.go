package postgres

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

// TestDatabaseURLEnv names the environment variable holding the test database URL.
const TestDatabaseURLEnv = "LEASES_POSTGRES_URL"

// TestingT is an interface for testing compatibility.
type TestingT interface {
	Logf(format string, args ...any)
	Skipf(format string, args ...any)
	FailNow()
	Cleanup(func())
}

// SetupTestDatabase creates a test database with isolated schema. The test is skipped when no database is configured.
func SetupTestDatabase(t TestingT) *sql.DB {
	connURL := os.Getenv(TestDatabaseURLEnv)
	if connURL == "" {
		t.Skipf("%s is not set", TestDatabaseURLEnv)
		return nil
	}
	schema := fmt.Sprintf("test_%s", uuid.New().String()[0:8])

	// First, connect to create the schema
	conn, err := sql.Open("postgres", connURL)
	if err != nil {
		t.Logf("failed to connect to database. Is your local database running?: %v", err)
		t.FailNow()
	}
	if _, err = conn.Exec("CREATE SCHEMA IF NOT EXISTS " + schema); err != nil {
		t.Logf("Failed to create schema %s: %s", schema, err)
		t.FailNow()
	}
	_ = conn.Close()

	parsed, err := url.Parse(connURL)
	if err != nil {
		t.Logf("%s is not a URL: %v", TestDatabaseURLEnv, err)
		t.FailNow()
	}
	query := parsed.Query()
	query.Set("search_path", schema)
	parsed.RawQuery = query.Encode()

	// Reconnect with the schema on the search path
	conn, err = sql.Open("postgres", parsed.String())
	if err != nil {
		t.Logf("failed to connect to database with schema: %v", err)
		t.FailNow()
	}

	t.Cleanup(func() {
		_, _ = conn.Exec("DROP SCHEMA IF EXISTS " + schema + " CASCADE")
		_ = conn.Close()
	})

	return conn
}
