// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package podle implements proofs of discrete log equivalence used as
// anti-griefing commitments.
//
// A taker commits to one of its UTXOs by publishing sha256(x*J), where x is
// the private key of the UTXO and J is a NUMS generator.  The commitment
// reveals nothing about which UTXO was used, but the same key and index always
// produce the same commitment, so makers can refuse commitments they have
// already honoured.  The revealed Proof shows that x*G and x*J share the same
// discrete log without disclosing x.
package podle

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcjoin/internal/zero"
)

// DefaultMaxIndex is the highest NUMS index a verifier accepts unless told
// otherwise.  It allows three commitments per UTXO.
const DefaultMaxIndex = 2

var (
	// ErrCommitmentMismatch is returned when the revealed proof does not
	// hash to the commitment it is supposed to open.
	ErrCommitmentMismatch = errors.New("proof does not open commitment")

	// ErrInvalidProof is returned when the discrete log equivalence check
	// fails.
	ErrInvalidProof = errors.New("invalid discrete log equivalence proof")

	// ErrIndexOutOfRange is returned when a proof uses a NUMS index above
	// the verifier's limit.
	ErrIndexOutOfRange = errors.New("NUMS index out of range")
)

// CommitmentSize is the size in bytes of a Commitment.
const CommitmentSize = sha256.Size

// Commitment is the sha256 digest of the compressed point P2 = x*J.
type Commitment [CommitmentSize]byte

// String returns the commitment as a hex string.
func (c Commitment) String() string {
	return hex.EncodeToString(c[:])
}

// MarshalText encodes the commitment as hex.
func (c Commitment) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText decodes a hex-encoded commitment.
func (c *Commitment) UnmarshalText(text []byte) error {
	decoded, err := CommitmentFromHex(string(text))
	if err != nil {
		return err
	}
	*c = decoded
	return nil
}

// CommitmentFromHex decodes a hex-encoded commitment.
func CommitmentFromHex(s string) (Commitment, error) {
	var c Commitment
	b, err := hex.DecodeString(s)
	if err != nil {
		return c, err
	}
	if len(b) != CommitmentSize {
		return c, fmt.Errorf("commitment must be %d bytes, got %d",
			CommitmentSize, len(b))
	}
	copy(c[:], b)
	return c, nil
}

// Proof is a revealed commitment.
type Proof struct {
	// P is the public key of the committed UTXO, x*G.
	P *btcec.PublicKey

	// P2 is x*J for the NUMS point at Index.
	P2 *btcec.PublicKey

	// S is the response scalar k + x*e.
	S [32]byte

	// E is the challenge sha256(kG || kJ || P || P2).
	E [32]byte

	// Index selects the NUMS generator.
	Index uint8
}

// Commitment returns the commitment opened by the proof.
func (p *Proof) Commitment() Commitment {
	return sha256.Sum256(p.P2.SerializeCompressed())
}

// challenge computes sha256(kG || kJ || P || P2) over compressed points.
func challenge(kG, kJ, p, p2 *btcec.PublicKey) [32]byte {
	h := sha256.New()
	h.Write(kG.SerializeCompressed())
	h.Write(kJ.SerializeCompressed())
	h.Write(p.SerializeCompressed())
	h.Write(p2.SerializeCompressed())

	var e [32]byte
	copy(e[:], h.Sum(nil))
	return e
}

// toPublicKey converts a jacobian point to an affine public key.  It returns
// nil for the point at infinity.
func toPublicKey(p *btcec.JacobianPoint) *btcec.PublicKey {
	if (p.X.IsZero() && p.Y.IsZero()) || p.Z.IsZero() {
		return nil
	}
	p.ToAffine()
	return btcec.NewPublicKey(&p.X, &p.Y)
}

// Generate creates a proof for priv using the NUMS generator at index.
func Generate(priv *btcec.PrivateKey, index uint8) (*Proof, error) {
	j, err := NUMS(index)
	if err != nil {
		return nil, err
	}

	nonce, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, err
	}
	k := nonce.Key
	defer zero.Scalar(&k)
	defer nonce.Zero()

	var jacJ, kJ, xJ, kG btcec.JacobianPoint
	j.AsJacobian(&jacJ)
	btcec.ScalarBaseMultNonConst(&k, &kG)
	btcec.ScalarMultNonConst(&k, &jacJ, &kJ)
	btcec.ScalarMultNonConst(&priv.Key, &jacJ, &xJ)

	proof := &Proof{
		P:     priv.PubKey(),
		P2:    toPublicKey(&xJ),
		Index: index,
	}
	proof.E = challenge(toPublicKey(&kG), toPublicKey(&kJ), proof.P,
		proof.P2)

	var e, s btcec.ModNScalar
	e.SetByteSlice(proof.E[:])
	s.Mul2(&priv.Key, &e).Add(&k)
	proof.S = s.Bytes()

	return proof, nil
}

// Verify checks that proof opens commitment c and that P and P2 share the
// same discrete log with respect to G and the NUMS generator of the proof's
// index.  Indexes above maxIndex are rejected.
func Verify(c Commitment, proof *Proof, maxIndex uint8) error {
	if proof == nil || proof.P == nil || proof.P2 == nil {
		return ErrInvalidProof
	}
	if proof.Index > maxIndex {
		return ErrIndexOutOfRange
	}
	if proof.Commitment() != c {
		return ErrCommitmentMismatch
	}

	j, err := NUMS(proof.Index)
	if err != nil {
		return err
	}

	var s, e btcec.ModNScalar
	if overflow := s.SetBytes(&proof.S); overflow != 0 || s.IsZero() {
		return ErrInvalidProof
	}
	e.SetByteSlice(proof.E[:])
	e.Negate()

	var jacP, jacP2, jacJ btcec.JacobianPoint
	proof.P.AsJacobian(&jacP)
	proof.P2.AsJacobian(&jacP2)
	j.AsJacobian(&jacJ)

	// kG = sG - eP
	var sG, negEP, kG btcec.JacobianPoint
	btcec.ScalarBaseMultNonConst(&s, &sG)
	btcec.ScalarMultNonConst(&e, &jacP, &negEP)
	btcec.AddNonConst(&sG, &negEP, &kG)

	// kJ = sJ - eP2
	var sJ, negEP2, kJ btcec.JacobianPoint
	btcec.ScalarMultNonConst(&s, &jacJ, &sJ)
	btcec.ScalarMultNonConst(&e, &jacP2, &negEP2)
	btcec.AddNonConst(&sJ, &negEP2, &kJ)

	kGKey, kJKey := toPublicKey(&kG), toPublicKey(&kJ)
	if kGKey == nil || kJKey == nil {
		return ErrInvalidProof
	}

	if challenge(kGKey, kJKey, proof.P, proof.P2) != proof.E {
		return ErrInvalidProof
	}
	return nil
}

// proofJSON is the wire form of a Proof.
type proofJSON struct {
	P     string `json:"P"`
	P2    string `json:"P2"`
	S     string `json:"sig"`
	E     string `json:"e"`
	Index uint8  `json:"index"`
}

// MarshalJSON encodes the proof with hex-encoded points and scalars.
func (p *Proof) MarshalJSON() ([]byte, error) {
	if p.P == nil || p.P2 == nil {
		return nil, ErrInvalidProof
	}
	return json.Marshal(proofJSON{
		P:     hex.EncodeToString(p.P.SerializeCompressed()),
		P2:    hex.EncodeToString(p.P2.SerializeCompressed()),
		S:     hex.EncodeToString(p.S[:]),
		E:     hex.EncodeToString(p.E[:]),
		Index: p.Index,
	})
}

// UnmarshalJSON decodes a proof produced by MarshalJSON.
func (p *Proof) UnmarshalJSON(b []byte) error {
	var pj proofJSON
	if err := json.Unmarshal(b, &pj); err != nil {
		return err
	}

	parsePoint := func(s string) (*btcec.PublicKey, error) {
		raw, err := hex.DecodeString(s)
		if err != nil {
			return nil, err
		}
		return btcec.ParsePubKey(raw)
	}
	parseScalar := func(s string, dst *[32]byte) error {
		raw, err := hex.DecodeString(s)
		if err != nil {
			return err
		}
		if len(raw) != 32 {
			return fmt.Errorf("scalar must be 32 bytes, got %d",
				len(raw))
		}
		copy(dst[:], raw)
		return nil
	}

	var err error
	if p.P, err = parsePoint(pj.P); err != nil {
		return fmt.Errorf("invalid P: %w", err)
	}
	if p.P2, err = parsePoint(pj.P2); err != nil {
		return fmt.Errorf("invalid P2: %w", err)
	}
	if err := parseScalar(pj.S, &p.S); err != nil {
		return fmt.Errorf("invalid sig: %w", err)
	}
	if err := parseScalar(pj.E, &p.E); err != nil {
		return fmt.Errorf("invalid e: %w", err)
	}
	p.Index = pj.Index

	return nil
}
