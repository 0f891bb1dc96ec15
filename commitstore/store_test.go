// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package commitstore

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcjoin/podle"
	"github.com/stretchr/testify/require"
)

func newCommitment(t *testing.T) podle.Commitment {
	t.Helper()

	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	proof, err := podle.Generate(priv, 0)
	require.NoError(t, err)
	return proof.Commitment()
}

// testStore runs the behaviour every Store implementation must share.
func testStore(t *testing.T, store Store) {
	t.Helper()

	ctx := context.Background()
	c := newCommitment(t)

	found, err := store.Contains(ctx, c)
	require.NoError(t, err)
	require.False(t, found)

	rec := Record{
		OfferID:      7,
		FirstSeen:    time.Unix(1700000000, 0),
		Counterparty: []byte{0x02, 0x01},
	}
	require.NoError(t, store.Insert(ctx, c, rec))

	found, err = store.Contains(ctx, c)
	require.NoError(t, err)
	require.True(t, found)

	// The same commitment is refused afterwards, whatever the record.
	require.ErrorIs(t, store.Insert(ctx, c, Record{OfferID: 8}),
		ErrAlreadyUsed)

	// Concurrent inserts of one fresh commitment admit exactly one.
	fresh := newCommitment(t)
	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = store.Insert(ctx, fresh, rec)
		}(i)
	}
	wg.Wait()

	var success int
	for _, err := range errs {
		if err == nil {
			success++
			continue
		}
		require.ErrorIs(t, err, ErrAlreadyUsed)
	}
	require.Equal(t, 1, success)

	// Listing yields both commitments with the record of the first
	// successful insert.
	listed := collect(t, store)
	require.Len(t, listed, 2)
	require.Contains(t, listed, fresh)
	require.Equal(t, rec.OfferID, listed[c].OfferID)
	require.True(t, rec.FirstSeen.Equal(listed[c].FirstSeen))
	require.Equal(t, rec.Counterparty, listed[c].Counterparty)

	// An error from the callback stops the iteration.
	errStop := errors.New("stop")
	var calls int
	err = store.ForEach(ctx, func(podle.Commitment, *Record) error {
		calls++
		return errStop
	})
	require.ErrorIs(t, err, errStop)
	require.Equal(t, 1, calls)
}

// collect returns every commitment listed by the store with its record.
func collect(t *testing.T, store Store) map[podle.Commitment]Record {
	t.Helper()

	got := make(map[podle.Commitment]Record)
	err := store.ForEach(context.Background(),
		func(c podle.Commitment, rec *Record) error {
			got[c] = *rec
			return nil
		},
	)
	require.NoError(t, err)
	return got
}

func TestMemStore(t *testing.T) {
	t.Parallel()

	store := NewMemStore()
	testStore(t, store)
	require.Equal(t, 2, store.Len())
}

func TestDBStore(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := OpenDBStore(dir, time.Second)
	require.NoError(t, err)
	testStore(t, store)

	c := newCommitment(t)
	rec := Record{
		OfferID:      42,
		FirstSeen:    time.Unix(1700000123, 0),
		Counterparty: []byte{0x03, 0xaa, 0xbb},
	}
	require.NoError(t, store.Insert(context.Background(), c, rec))
	require.NoError(t, store.Close())

	// Used commitments survive a restart.
	store, err = OpenDBStore(dir, time.Second)
	require.NoError(t, err)
	defer store.Close()

	found, err := store.Contains(context.Background(), c)
	require.NoError(t, err)
	require.True(t, found)

	got := collect(t, store)
	require.Len(t, got, 3)
	require.Contains(t, got, c)
	require.Equal(t, rec.OfferID, got[c].OfferID)
	require.True(t, rec.FirstSeen.Equal(got[c].FirstSeen))
	require.Equal(t, rec.Counterparty, got[c].Counterparty)
}

func TestSQLiteStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dsn := "file:" + filepath.Join(t.TempDir(), "registry.sqlite") +
		"?_pragma=busy_timeout(5000)"

	store, err := OpenSQLStore(ctx, DialectSQLite, dsn)
	require.NoError(t, err)
	testStore(t, store)

	c := newCommitment(t)
	require.NoError(t, store.Insert(ctx, c, Record{OfferID: 1}))
	require.NoError(t, store.Close())

	db, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)
	store, err = NewSQLStore(ctx, db, DialectSQLite)
	require.NoError(t, err)
	defer store.Close()

	found, err := store.Contains(ctx, c)
	require.NoError(t, err)
	require.True(t, found)
}

func TestRecordSerialization(t *testing.T) {
	t.Parallel()

	rec := &Record{
		OfferID:      0xfffffffe,
		FirstSeen:    time.Unix(1, 0),
		Counterparty: nil,
	}
	b, err := serializeRecord(rec)
	require.NoError(t, err)

	got, err := deserializeRecord(b)
	require.NoError(t, err)
	require.Equal(t, rec.OfferID, got.OfferID)
	require.True(t, rec.FirstSeen.Equal(got.FirstSeen))
	require.Empty(t, got.Counterparty)
}
