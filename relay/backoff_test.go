// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package relay

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestBackoffSequence checks doubling, the cap and reset.
func TestBackoffSequence(t *testing.T) {
	b := newBackoff(200*time.Millisecond, 5*time.Second, 0)

	want := []time.Duration{
		200 * time.Millisecond, 400 * time.Millisecond,
		800 * time.Millisecond, 1600 * time.Millisecond,
		3200 * time.Millisecond, 5 * time.Second, 5 * time.Second,
	}
	for _, d := range want {
		require.Equal(t, d, b.Next())
	}

	b.Reset()
	require.Equal(t, 200*time.Millisecond, b.Next())

	jittered := newBackoff(time.Second, time.Second, 0.5)
	for i := 0; i < 20; i++ {
		d := jittered.Next()
		require.GreaterOrEqual(t, d, 500*time.Millisecond)
		require.LessOrEqual(t, d, 1500*time.Millisecond)
	}
}
