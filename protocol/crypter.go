// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package protocol

import (
	"errors"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
)

// Crypter is the signing and encryption capability of a relay identity.
// The protocol never handles the private key directly.
type Crypter interface {
	// PeerID returns the identity events are published under.
	PeerID() PeerID

	// SignDigest returns a BIP-340 signature over digest.
	SignDigest(digest [32]byte) ([]byte, error)

	// Encrypt seals plaintext so only recipient can read it.
	Encrypt(recipient PeerID, plaintext []byte) (string, error)

	// Decrypt opens a ciphertext sealed by sender for this identity.
	Decrypt(sender PeerID, ciphertext string) ([]byte, error)
}

// VerifySignature checks a BIP-340 signature by id over digest.
func VerifySignature(id PeerID, digest [32]byte, sig []byte) error {
	pub, err := id.PubKey()
	if err != nil {
		return err
	}
	s, err := schnorr.ParseSignature(sig)
	if err != nil {
		return err
	}
	if !s.Verify(digest[:], pub) {
		return errors.New("signature verification failed")
	}
	return nil
}
