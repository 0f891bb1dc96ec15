//go:build integration_test

package commitstore

import (
	"context"
	"testing"

	"github.com/btcsuite/btcjoin/internal/sqltest"
	"github.com/stretchr/testify/require"
)

// TestSQLStoreBackends runs the shared store behaviour against every SQL
// backend and checks used commitments survive a reopen.
func TestSQLStoreBackends(t *testing.T) {
	sqltest.RunDatabaseTest(t, func(t *testing.T, b sqltest.Backend) {
		dialect := DialectSQLite
		if b.Driver == DialectPostgres.String() {
			dialect = DialectPostgres
		}

		ctx := context.Background()
		dsn := b.NewDSN(t)

		store, err := OpenSQLStore(ctx, dialect, dsn)
		require.NoError(t, err)
		testStore(t, store)

		c := newCommitment(t)
		require.NoError(t, store.Insert(ctx, c, Record{OfferID: 1}))
		require.NoError(t, store.Close())

		store, err = OpenSQLStore(ctx, dialect, dsn)
		require.NoError(t, err)
		defer store.Close()

		require.ErrorIs(t, store.Insert(ctx, c, Record{OfferID: 2}),
			ErrAlreadyUsed)
	})
}
