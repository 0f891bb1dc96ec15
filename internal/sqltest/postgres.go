//go:build integration_test

package sqltest

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

var (
	pgOnce     sync.Once
	pgAdminDSN string
	pgErr      error
)

// adminDSN starts the Postgres container shared by all tests of the binary
// on first use and returns its administrative DSN.
func adminDSN(t testing.TB) string {
	t.Helper()

	pgOnce.Do(func() {
		ctx, cancel := context.WithTimeout(
			context.Background(), 2*time.Minute,
		)
		defer cancel()

		var container *postgres.PostgresContainer
		container, pgErr = postgres.Run(ctx, "postgres:16-alpine",
			postgres.WithDatabase("btcjoin"),
			postgres.WithUsername("postgres"),
			postgres.WithPassword("postgres"),
			postgres.BasicWaitStrategies(),
		)
		if pgErr != nil {
			return
		}
		pgAdminDSN, pgErr = container.ConnectionString(
			ctx, "sslmode=disable",
		)
	})
	require.NoError(t, pgErr, "postgres container unavailable")

	return pgAdminDSN
}

// NewPostgresDSN creates a database private to t inside the shared container
// and returns its DSN.  The database is dropped when t completes.
func NewPostgresDSN(t testing.TB) string {
	t.Helper()

	admin := adminDSN(t)
	name := "btcjoin_" + testID(t)

	exec := func(ctx context.Context, stmt string) error {
		db, err := sql.Open("pgx", admin)
		if err != nil {
			return err
		}
		defer db.Close()

		_, err = db.ExecContext(ctx, stmt)
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	require.NoError(t, exec(ctx, "CREATE DATABASE "+name),
		"failed to create test database")

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(
			context.Background(), 30*time.Second,
		)
		defer cancel()

		stmt := fmt.Sprintf("DROP DATABASE IF EXISTS %s WITH (FORCE)",
			name)
		_ = exec(ctx, stmt)
	})

	dsn, err := withDatabase(admin, name)
	require.NoError(t, err)
	return dsn
}

// withDatabase returns dsn, a URL style postgres DSN, pointed at database
// name.
func withDatabase(dsn, name string) (string, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("parse DSN: %w", err)
	}
	u.Path = "/" + name
	return u.String(), nil
}
