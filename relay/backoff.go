// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package relay

import (
	"time"

	"github.com/btcsuite/btcjoin/internal/jitter"
)

// backoff produces exponentially growing, jittered retry delays.
type backoff struct {
	// min and max bound the base delay.
	min time.Duration
	max time.Duration

	// scaler defines the jitter scaler.  A delay d is drawn uniformly
	// from [d * (1 - scaler), d * (1 + scaler)], floored at zero.
	//
	// NOTE: when scaler is 0, delays are exact.
	scaler float64

	cur time.Duration
}

// newBackoff returns a backoff starting at min and doubling up to max.
func newBackoff(min, max time.Duration, scaler float64) *backoff {
	return &backoff{min: min, max: max, scaler: scaler}
}

// Next returns the delay before the next attempt.
func (b *backoff) Next() time.Duration {
	switch {
	case b.cur == 0:
		b.cur = b.min
	case b.cur < b.max:
		b.cur *= 2
		if b.cur > b.max {
			b.cur = b.max
		}
	}

	return jitter.Scale(b.cur, b.scaler)
}

// Reset starts the sequence over after a success.
func (b *backoff) Reset() {
	b.cur = 0
}
