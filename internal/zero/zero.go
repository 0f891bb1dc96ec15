// Copyright (c) 2015 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package zero contains functions to clear secret material held in byte
// slices and secp256k1 scalars.
package zero

import (
	"github.com/btcsuite/btcd/btcec/v2"
)

// Bytes sets all bytes in the passed slice to zero.  This is used to
// explicitly clear shared secrets and private key material from memory.
func Bytes(b []byte) {
	z := [32]byte{}
	n := uint(copy(b, z[:]))
	for n < uint(len(b)) {
		copy(b[n:], b[:n])
		n <<= 1
	}
}

// Scalar clears a secret scalar such as a signing nonce.
func Scalar(s *btcec.ModNScalar) {
	s.Zero()
}
