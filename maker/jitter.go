// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package maker

import (
	"sync"
	"time"

	"github.com/btcsuite/btcjoin/internal/jitter"
	"github.com/lightningnetwork/lnd/ticker"
)

// DefaultRepublishJitter is the fraction by which republication intervals
// are randomized so offers are not refreshed on a fixed schedule.
const DefaultRepublishJitter = 0.2

// JitterTicker is a ticker.Ticker whose intervals are drawn uniformly from
// [d*(1-spread), d*(1+spread)].
type JitterTicker struct {
	c chan time.Time

	duration time.Duration

	// min and max bound the interval in nanoseconds.
	min int64
	max int64

	mu   sync.Mutex
	quit chan struct{}
	wg   sync.WaitGroup
}

// A compile-time assertion to ensure JitterTicker implements ticker.Ticker.
var _ ticker.Ticker = (*JitterTicker)(nil)

// NewJitterTicker returns a paused ticker.  It panics if spread is negative.
func NewJitterTicker(d time.Duration, spread float64) *JitterTicker {
	min, max := jitter.Bounds(d, spread)

	return &JitterTicker{
		c:        make(chan time.Time, 1),
		duration: d,
		min:      min,
		max:      max,
	}
}

// Ticks returns the channel on which ticks are delivered.  Ticks are dropped
// while the previous one has not been received.
func (jt *JitterTicker) Ticks() <-chan time.Time {
	return jt.c
}

// Resume starts or restarts the ticker.
func (jt *JitterTicker) Resume() {
	jt.mu.Lock()
	defer jt.mu.Unlock()

	if jt.quit != nil {
		return
	}
	jt.quit = make(chan struct{})

	jt.wg.Add(1)
	go jt.run(jt.quit)
}

// Pause suspends the ticker until Resume is called.
func (jt *JitterTicker) Pause() {
	jt.mu.Lock()
	quit := jt.quit
	jt.quit = nil
	jt.mu.Unlock()

	if quit != nil {
		close(quit)
		jt.wg.Wait()
	}
}

// Stop suspends the ticker.  It may be resumed again.
func (jt *JitterTicker) Stop() {
	jt.Pause()
}

// run delivers ticks until quit is closed.
func (jt *JitterTicker) run(quit chan struct{}) {
	defer jt.wg.Done()

	timer := time.NewTimer(jt.next())
	defer timer.Stop()

	for {
		select {
		case t := <-timer.C:
			timer.Reset(jt.next())

			select {
			case jt.c <- t:
			default:
			}

		case <-quit:
			return
		}
	}
}

// next returns a random interval between the min and max values.
func (jt *JitterTicker) next() time.Duration {
	if jt.max == jt.min {
		return jt.duration
	}

	return jitter.Between(jt.min, jt.max)
}
