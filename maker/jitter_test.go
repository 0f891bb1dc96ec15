// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package maker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestJitterTicker(t *testing.T) {
	require.Panics(t, func() { NewJitterTicker(time.Second, -0.1) })

	jt := NewJitterTicker(50*time.Millisecond, 0.2)

	// A paused ticker does not tick.
	select {
	case <-jt.Ticks():
		t.Fatal("tick while paused")
	case <-time.After(100 * time.Millisecond):
	}

	jt.Resume()
	jt.Resume()

	var tickTimes []time.Time
	for i := 0; i < 4; i++ {
		select {
		case tick := <-jt.Ticks():
			tickTimes = append(tickTimes, tick)
		case <-time.After(time.Second):
			t.Fatal("no tick")
		}
	}
	jt.Stop()

	for i := 1; i < len(tickTimes); i++ {
		diff := tickTimes[i].Sub(tickTimes[i-1])
		require.GreaterOrEqual(t, diff, 40*time.Millisecond)
		require.Less(t, diff, 75*time.Millisecond)
	}

	// Drain a tick that raced with Stop, then expect silence.
	select {
	case <-jt.Ticks():
	default:
	}
	select {
	case <-jt.Ticks():
		t.Fatal("tick after stop")
	case <-time.After(100 * time.Millisecond):
	}

	// Stopping twice is harmless and the ticker can be resumed.
	jt.Stop()
	jt.Resume()
	select {
	case <-jt.Ticks():
	case <-time.After(time.Second):
		t.Fatal("no tick after resume")
	}
	jt.Stop()
}
