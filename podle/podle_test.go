// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package podle

import (
	"encoding/hex"
	"encoding/json"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/require"
)

// testKey is the private key used by the reference vectors below.
var testKey = "f0301a443352baa926ce24e3f62cf36ade6e8785eee8d463d443801f81026ae9"

func mustPrivKey(t *testing.T, s string) *btcec.PrivateKey {
	t.Helper()

	b, err := hex.DecodeString(s)
	require.NoError(t, err)

	priv, _ := btcec.PrivKeyFromBytes(b)
	return priv
}

// TestNUMS checks the derived generators against known values.
func TestNUMS(t *testing.T) {
	t.Parallel()

	tests := []struct {
		index uint8
		want  string
	}{
		{0, "0296f47ec8e6d6a9c3379c2ce983a6752bcfa88d46f2a6ffe0dd12c9ae76d01a1f"},
		{1, "023f9976b86d3f1426638da600348d96dc1f1eb0bd5614cc50db9e9a067c0464a2"},
		{2, "023745b000f6db094a794d9ee08637d714393cd009f86087438ac3804e929bfe89"},
	}

	for _, test := range tests {
		j, err := NUMS(test.index)
		require.NoError(t, err)
		require.Equal(t, test.want,
			hex.EncodeToString(j.SerializeCompressed()))

		// A second lookup is served from the cache.
		again, err := NUMS(test.index)
		require.NoError(t, err)
		require.True(t, j.IsEqual(again))
	}
}

// TestGenerateVector checks P and P2 for a known key.
func TestGenerateVector(t *testing.T) {
	t.Parallel()

	proof, err := Generate(mustPrivKey(t, testKey), 0)
	require.NoError(t, err)

	require.Equal(t,
		"021ee5dc0ac2c869c36ee1b2f43134e6bed766489b65179d5d8d78330342976cac",
		hex.EncodeToString(proof.P.SerializeCompressed()))
	require.Equal(t,
		"03f4e7c5b4b9f9f46a2629e595dd09f9de935921adceede4866b8ad5fc3333f393",
		hex.EncodeToString(proof.P2.SerializeCompressed()))

	require.NoError(t, Verify(proof.Commitment(), proof, DefaultMaxIndex))
}

// TestCommitmentStable makes sure commitments depend only on the key and
// index and not on the random nonce.
func TestCommitmentStable(t *testing.T) {
	t.Parallel()

	priv := mustPrivKey(t, testKey)

	a, err := Generate(priv, 0)
	require.NoError(t, err)
	b, err := Generate(priv, 0)
	require.NoError(t, err)
	require.Equal(t, a.Commitment(), b.Commitment())
	require.NotEqual(t, a.S, b.S)

	c, err := Generate(priv, 1)
	require.NoError(t, err)
	require.NotEqual(t, a.Commitment(), c.Commitment())

	other, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	d, err := Generate(other, 0)
	require.NoError(t, err)
	require.NotEqual(t, a.Commitment(), d.Commitment())
}

// TestVerifyFailures exercises every rejection path.
func TestVerifyFailures(t *testing.T) {
	t.Parallel()

	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	proof, err := Generate(priv, 1)
	require.NoError(t, err)
	commit := proof.Commitment()

	require.NoError(t, Verify(commit, proof, 1))
	require.ErrorIs(t, Verify(commit, proof, 0), ErrIndexOutOfRange)
	require.ErrorIs(t, Verify(commit, nil, 1), ErrInvalidProof)

	var wrong Commitment
	wrong[0] = 1
	require.ErrorIs(t, Verify(wrong, proof, 1), ErrCommitmentMismatch)

	badS := *proof
	badS.S[31] ^= 0x01
	require.ErrorIs(t, Verify(commit, &badS, 1), ErrInvalidProof)

	badE := *proof
	badE.E[0] ^= 0x80
	require.ErrorIs(t, Verify(commit, &badE, 1), ErrInvalidProof)

	// A proof claiming a different index fails the equivalence check.
	badIndex := *proof
	badIndex.Index = 0
	require.ErrorIs(t, Verify(commit, &badIndex, 1), ErrInvalidProof)

	// Substituting another key for P breaks the proof.
	other, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	badP := *proof
	badP.P = other.PubKey()
	require.ErrorIs(t, Verify(commit, &badP, 1), ErrInvalidProof)
}

// TestProofJSON checks the wire encoding of a proof.
func TestProofJSON(t *testing.T) {
	t.Parallel()

	proof, err := Generate(mustPrivKey(t, testKey), 2)
	require.NoError(t, err)

	b, err := json.Marshal(proof)
	require.NoError(t, err)

	var decoded Proof
	require.NoError(t, json.Unmarshal(b, &decoded))
	require.True(t, proof.P.IsEqual(decoded.P))
	require.True(t, proof.P2.IsEqual(decoded.P2))
	require.Equal(t, proof.S, decoded.S)
	require.Equal(t, proof.E, decoded.E)
	require.Equal(t, proof.Index, decoded.Index)
	require.NoError(t, Verify(proof.Commitment(), &decoded, 2))

	c, err := CommitmentFromHex(proof.Commitment().String())
	require.NoError(t, err)
	require.Equal(t, proof.Commitment(), c)

	_, err = CommitmentFromHex("abcd")
	require.Error(t, err)
}
