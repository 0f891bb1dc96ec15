// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package keyring holds a relay identity key and implements the protocol's
// signing and encryption capability with it.
//
// Signatures are BIP-340 schnorr signatures.  Messages are encrypted with
// XChaCha20-Poly1305 under a key derived by HKDF-SHA256 from the ECDH shared
// x coordinate of the two identities.
package keyring

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcjoin/internal/zero"
	"github.com/btcsuite/btcjoin/protocol"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// payloadVersion prefixes every ciphertext.
const payloadVersion = 1

// hkdfSalt domain-separates the conversation key.
var hkdfSalt = []byte("btcjoin-conversation-v1")

// ErrUnsupportedPayload is returned when a ciphertext has an unknown version
// or is too short.
var ErrUnsupportedPayload = errors.New("unsupported encrypted payload")

// Keyring is a relay identity.
type Keyring struct {
	priv *btcec.PrivateKey
	id   protocol.PeerID
}

// A compile-time assertion to ensure Keyring implements protocol.Crypter.
var _ protocol.Crypter = (*Keyring)(nil)

// New returns a keyring for priv.
func New(priv *btcec.PrivateKey) *Keyring {
	return &Keyring{
		priv: priv,
		id:   protocol.PeerIDFromKey(priv.PubKey()),
	}
}

// Generate returns a keyring with a fresh random key.
func Generate() (*Keyring, error) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, err
	}
	return New(priv), nil
}

// FromHex returns a keyring for a hex-encoded 32-byte private key.
func FromHex(s string) (*Keyring, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	defer zero.Bytes(b)

	if len(b) != btcec.PrivKeyBytesLen {
		return nil, fmt.Errorf("private key must be %d bytes, got %d",
			btcec.PrivKeyBytesLen, len(b))
	}
	priv, _ := btcec.PrivKeyFromBytes(b)
	if priv.Key.IsZero() {
		return nil, errors.New("private key is zero")
	}
	return New(priv), nil
}

// PeerID returns the identity of the keyring.
func (k *Keyring) PeerID() protocol.PeerID {
	return k.id
}

// PubKey returns the public key of the keyring.
func (k *Keyring) PubKey() *btcec.PublicKey {
	return k.priv.PubKey()
}

// SignDigest returns a BIP-340 signature over digest.
func (k *Keyring) SignDigest(digest [32]byte) ([]byte, error) {
	sig, err := schnorr.Sign(k.priv, digest[:])
	if err != nil {
		return nil, err
	}
	return sig.Serialize(), nil
}

// conversationKey derives the symmetric key shared with peer.
func (k *Keyring) conversationKey(peer protocol.PeerID) ([]byte, error) {
	pub, err := peer.PubKey()
	if err != nil {
		return nil, fmt.Errorf("invalid peer key: %w", err)
	}

	shared := secp256k1.GenerateSharedSecret(k.priv, pub)
	defer zero.Bytes(shared)

	key := make([]byte, chacha20poly1305.KeySize)
	r := hkdf.New(sha256.New, shared, hkdfSalt, nil)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, err
	}
	return key, nil
}

// Encrypt seals plaintext for recipient.
func (k *Keyring) Encrypt(recipient protocol.PeerID,
	plaintext []byte) (string, error) {

	key, err := k.conversationKey(recipient)
	if err != nil {
		return "", err
	}
	defer zero.Bytes(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return "", err
	}

	payload := make([]byte, 1+aead.NonceSize(),
		1+aead.NonceSize()+len(plaintext)+aead.Overhead())
	payload[0] = payloadVersion
	nonce := payload[1:]
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	payload = aead.Seal(payload, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(payload), nil
}

// Decrypt opens a ciphertext sealed by sender.
func (k *Keyring) Decrypt(sender protocol.PeerID,
	ciphertext string) ([]byte, error) {

	payload, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return nil, err
	}
	if len(payload) < 1+chacha20poly1305.NonceSizeX ||
		payload[0] != payloadVersion {

		return nil, ErrUnsupportedPayload
	}

	key, err := k.conversationKey(sender)
	if err != nil {
		return nil, err
	}
	defer zero.Bytes(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}

	nonce := payload[1 : 1+aead.NonceSize()]
	return aead.Open(nil, nonce, payload[1+aead.NonceSize():], nil)
}
