// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package protocol

import (
	"encoding/hex"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
)

// PeerID identifies a participant on the relay.  It is the hex encoding of
// the participant's 32-byte x-only public key.
type PeerID string

// PeerIDFromKey returns the identity of a public key.
func PeerIDFromKey(pub *btcec.PublicKey) PeerID {
	return PeerID(hex.EncodeToString(schnorr.SerializePubKey(pub)))
}

// PubKey parses the identity back into a public key with even y.
func (p PeerID) PubKey() (*btcec.PublicKey, error) {
	b, err := hex.DecodeString(string(p))
	if err != nil {
		return nil, err
	}
	return schnorr.ParsePubKey(b)
}

// Short returns an abbreviated form for log messages.
func (p PeerID) Short() string {
	if len(p) <= 12 {
		return string(p)
	}
	return string(p[:12])
}
