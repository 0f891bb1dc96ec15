// Copyright (c) 2015 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package zero_test

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcjoin/internal/zero"
	"github.com/stretchr/testify/require"
)

func makeOneBytes(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = 1
	}
	return b
}

func requireZero(t *testing.T, b []byte) {
	t.Helper()

	for i, v := range b {
		require.Zerof(t, v, "b[%d] = %d", i, v)
	}
}

func TestBytes(t *testing.T) {
	t.Parallel()

	for _, sz := range []int{0, 31, 32, 33, 127, 128} {
		b := makeOneBytes(sz)
		zero.Bytes(b)
		requireZero(t, b)
		require.Len(t, b, sz)
	}
}

func TestScalar(t *testing.T) {
	t.Parallel()

	key, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	s := key.Key
	require.False(t, s.IsZero())

	zero.Scalar(&s)
	require.True(t, s.IsZero())
}
