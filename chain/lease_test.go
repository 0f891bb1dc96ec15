// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import (
	"context"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/wtxmgr"
	"github.com/stretchr/testify/require"
)

// TestOutputLeaser checks lease exclusivity, extension, release and expiry.
func TestOutputLeaser(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Unix(1700000000, 0)
	l := NewOutputLeaser()
	l.now = func() time.Time { return now }

	op := wire.OutPoint{Hash: chainhash.HashH([]byte("a")), Index: 1}
	alice := wtxmgr.LockID{1}
	bob := wtxmgr.LockID{2}

	exp, err := l.LeaseOutput(ctx, alice, op, time.Minute)
	require.NoError(t, err)
	require.Equal(t, now.Add(time.Minute), exp)
	require.True(t, l.IsLeased(op))

	// Another id can neither lease nor release it.
	_, err = l.LeaseOutput(ctx, bob, op, time.Minute)
	require.ErrorIs(t, err, wtxmgr.ErrOutputAlreadyLocked)
	require.ErrorIs(
		t, l.ReleaseOutput(ctx, bob, op),
		wtxmgr.ErrOutputUnlockNotAllowed,
	)

	// The holder can extend it.
	exp, err = l.LeaseOutput(ctx, alice, op, time.Hour)
	require.NoError(t, err)
	require.Equal(t, now.Add(time.Hour), exp)

	leases, err := l.LeasedOutputs(ctx)
	require.NoError(t, err)
	require.Len(t, leases, 1)
	require.Equal(t, op, leases[0].Outpoint)
	require.Equal(t, alice, leases[0].LockID)

	require.NoError(t, l.ReleaseOutput(ctx, alice, op))
	require.False(t, l.IsLeased(op))
	require.NoError(t, l.ReleaseOutput(ctx, alice, op))

	// Expired leases are free for anyone.
	_, err = l.LeaseOutput(ctx, alice, op, time.Minute)
	require.NoError(t, err)
	now = now.Add(2 * time.Minute)
	require.False(t, l.IsLeased(op))
	_, err = l.LeaseOutput(ctx, bob, op, time.Minute)
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	leases, err = l.LeasedOutputs(ctx)
	require.NoError(t, err)
	require.Empty(t, leases)
}

// TestNewLockID ensures lock ids are random.
func TestNewLockID(t *testing.T) {
	t.Parallel()

	a, err := NewLockID()
	require.NoError(t, err)
	b, err := NewLockID()
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}
