// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package jitter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestBounds tests the calculation of the min and max jitter values.
func TestBounds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		duration int64
		scaler   float64
		min      int64
		max      int64
	}{
		{name: "Scaler is 0", duration: 1000, scaler: 0,
			min: 1000, max: 1000},
		{name: "Scaler is 0.5", duration: 1000, scaler: 0.5,
			min: 500, max: 1500},
		{name: "Scaler is 1", duration: 1000, scaler: 1,
			min: 0, max: 2000},
		{name: "Scaler is greater than 1", duration: 1000,
			scaler: 1.5, min: 0, max: 2500},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			min, max := Bounds(time.Duration(tc.duration), tc.scaler)
			require.Equal(t, tc.min, min)
			require.Equal(t, tc.max, max)
		})
	}

	require.Panics(t, func() {
		Bounds(time.Second, -0.5)
	})
}

func TestBetween(t *testing.T) {
	t.Parallel()

	require.Equal(t, time.Duration(7), Between(7, 7))
	require.Equal(t, time.Duration(7), Between(7, 3))

	for i := 0; i < 50; i++ {
		d := Between(100, 200)
		require.GreaterOrEqual(t, d, time.Duration(100))
		require.Less(t, d, time.Duration(200))
	}

	for i := 0; i < 50; i++ {
		d := Scale(time.Second, 0.25)
		require.GreaterOrEqual(t, d, 750*time.Millisecond)
		require.LessOrEqual(t, d, 1250*time.Millisecond)
	}
	require.Equal(t, time.Second, Scale(time.Second, 0))
}
