// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package jitter randomizes durations within a fractional band around a base
// value.
package jitter

import (
	"errors"
	"math"
	"math/rand"
	"time"
)

// Bounds calculates the min and max duration values, in nanoseconds, of
// d*(1-scaler) and d*(1+scaler).  If the calculated min is negative, it will
// be set to 0.  Bounds panics on a negative scaler.
func Bounds(d time.Duration, scaler float64) (int64, int64) {
	if scaler < 0 {
		panic(errors.New("scaler must be positive"))
	}

	min := math.Floor(float64(d) * (1 - scaler))
	max := math.Ceil(float64(d) * (1 + scaler))

	// A scaler above 1 would make the lower bound negative.
	if 1-scaler < 0 {
		min = 0
	}

	return int64(min), int64(max)
}

// Between returns a random duration in [min, max).  It returns min when the
// bounds are equal.
func Between(min, max int64) time.Duration {
	if max <= min {
		return time.Duration(min)
	}

	return time.Duration(rand.Int63n(max-min) + min) //nolint:gosec
}

// Scale returns a random duration drawn from the bounds of d and scaler.
func Scale(d time.Duration, scaler float64) time.Duration {
	return Between(Bounds(d, scaler))
}
