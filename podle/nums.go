// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package podle

import (
	"crypto/sha256"
	"errors"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
)

// ErrNoNUMSPoint is returned when no candidate hash for an index decodes to a
// curve point.  It is not expected to happen for any 8-bit index.
var ErrNoNUMSPoint = errors.New("no NUMS point found for index")

var (
	numsMtx   sync.Mutex
	numsCache = make(map[uint8]*btcec.PublicKey)
)

// generatorBytes returns the serialization of the secp256k1 base point G.
func generatorBytes(compressed bool) []byte {
	var one btcec.ModNScalar
	one.SetInt(1)

	var g btcec.JacobianPoint
	btcec.ScalarBaseMultNonConst(&one, &g)
	g.ToAffine()

	pub := btcec.NewPublicKey(&g.X, &g.Y)
	if compressed {
		return pub.SerializeCompressed()
	}
	return pub.SerializeUncompressed()
}

// NUMS returns the nothing-up-my-sleeve generator J for index.  Nobody knows
// the discrete log of J relative to G.
//
// The point is derived by hashing the serialized base point, the index and a
// counter, and taking the first digest that is a valid x coordinate of a point
// with even y.  The compressed serialization of G is tried first.
func NUMS(index uint8) (*btcec.PublicKey, error) {
	numsMtx.Lock()
	defer numsMtx.Unlock()

	if j, ok := numsCache[index]; ok {
		return j, nil
	}

	for _, compressed := range []bool{true, false} {
		seed := append(generatorBytes(compressed), index)
		for counter := 0; counter < 255; counter++ {
			digest := sha256.Sum256(append(seed, byte(counter)))

			claimed := make([]byte, 0, btcec.PubKeyBytesLenCompressed)
			claimed = append(claimed, 0x02)
			claimed = append(claimed, digest[:]...)

			j, err := btcec.ParsePubKey(claimed)
			if err != nil {
				continue
			}
			numsCache[index] = j
			return j, nil
		}
	}

	return nil, ErrNoNUMSPoint
}
