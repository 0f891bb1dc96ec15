//go:build integration_test

package sqltest

import (
	"path/filepath"
	"testing"
)

// NewSQLiteDSN returns the DSN of a SQLite file in a directory private to t.
// The directory, and with it the database, is removed when t completes.
func NewSQLiteDSN(t testing.TB) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "btcjoin_"+testID(t)+".sqlite")
	return "file:" + path + "?mode=rwc&_pragma=busy_timeout(5000)"
}
