//go:build integration_test

// Package sqltest provides isolated SQL databases for integration tests.
// Databases are handed out as DSNs so the code under test opens them the way
// the daemon does.
package sqltest

import (
	"database/sql"
	"fmt"
	"hash/fnv"
	"testing"

	// Register the pgx driver under name "pgx".
	_ "github.com/jackc/pgx/v5/stdlib"

	// Register SQLite driver under name "sqlite".
	_ "modernc.org/sqlite"

	"github.com/stretchr/testify/require"
)

// Backend is a database flavour tests run against.
type Backend struct {
	// Name labels the subtest.
	Name string

	// Driver is the database/sql driver name of the backend.
	Driver string

	// NewDSN returns the DSN of a fresh database private to t.  The
	// database is removed once t completes.
	NewDSN func(t testing.TB) string
}

// Backends lists the database flavours a registry must work with.
var Backends = []Backend{
	{Name: "Postgres", Driver: "pgx", NewDSN: NewPostgresDSN},
	{Name: "SQLite", Driver: "sqlite", NewDSN: NewSQLiteDSN},
}

// RunDatabaseTest runs testFunc once per backend in parallel subtests.
func RunDatabaseTest(t *testing.T, testFunc func(t *testing.T, b Backend)) {
	t.Helper()

	for _, b := range Backends {
		t.Run(b.Name, func(t *testing.T) {
			t.Parallel()
			testFunc(t, b)
		})
	}
}

// Open connects to dsn with driver and closes the handle when t completes.
func Open(t testing.TB, driver, dsn string) *sql.DB {
	t.Helper()

	db, err := sql.Open(driver, dsn)
	require.NoError(t, err, "failed to open %s database", driver)
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}

// testID derives a short database name suffix from the test name.  Using the
// name rather than randomness keeps go test caching working, and hashing it
// keeps identifiers under database length limits.
func testID(t testing.TB) string {
	t.Helper()

	h := fnv.New32a()
	_, _ = h.Write([]byte(t.Name()))
	return fmt.Sprintf("%08x", h.Sum32())
}
