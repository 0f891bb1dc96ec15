// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package keyring

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/btcsuite/btcjoin/protocol"
	"github.com/stretchr/testify/require"
)

func TestSignVerify(t *testing.T) {
	t.Parallel()

	k, err := Generate()
	require.NoError(t, err)

	digest := sha256.Sum256([]byte("offer"))
	sig, err := k.SignDigest(digest)
	require.NoError(t, err)
	require.Len(t, sig, 64)

	require.NoError(t, protocol.VerifySignature(k.PeerID(), digest, sig))

	other := sha256.Sum256([]byte("fill"))
	require.Error(t, protocol.VerifySignature(k.PeerID(), other, sig))
}

func TestEncryptDecrypt(t *testing.T) {
	t.Parallel()

	alice, err := Generate()
	require.NoError(t, err)
	bob, err := Generate()
	require.NoError(t, err)
	eve, err := Generate()
	require.NoError(t, err)

	msg := []byte(`{"oid":1,"psbt":"cHNidP8="}`)

	ct, err := alice.Encrypt(bob.PeerID(), msg)
	require.NoError(t, err)

	pt, err := bob.Decrypt(alice.PeerID(), ct)
	require.NoError(t, err)
	require.Equal(t, msg, pt)

	// Bob can answer on the same conversation key.
	reply, err := bob.Encrypt(alice.PeerID(), []byte("ack"))
	require.NoError(t, err)
	pt, err = alice.Decrypt(bob.PeerID(), reply)
	require.NoError(t, err)
	require.Equal(t, []byte("ack"), pt)

	// Nobody else can open it.
	_, err = eve.Decrypt(alice.PeerID(), ct)
	require.Error(t, err)

	// Two encryptions of the same message differ.
	ct2, err := alice.Encrypt(bob.PeerID(), msg)
	require.NoError(t, err)
	require.NotEqual(t, ct, ct2)

	_, err = bob.Decrypt(alice.PeerID(), "AQ==")
	require.ErrorIs(t, err, ErrUnsupportedPayload)
}

func TestFromHex(t *testing.T) {
	t.Parallel()

	k, err := FromHex(
		"f0301a443352baa926ce24e3f62cf36ade6e8785eee8d463d443801f81026ae9",
	)
	require.NoError(t, err)
	require.Equal(t, protocol.PeerID(
		"1ee5dc0ac2c869c36ee1b2f43134e6bed766489b65179d5d8d78330342976cac",
	), k.PeerID())

	_, err = FromHex("00")
	require.Error(t, err)

	_, err = FromHex(hex.EncodeToString(make([]byte, 32)))
	require.Error(t, err)
}
