// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package protocol

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcjoin/podle"
)

// Message is one of the protocol messages.  The set of implementations is
// closed: AbsOffer, RelOffer, Fill, MakerInput, UnsignedTx and SignedTx.
type Message interface {
	// Kind returns the event kind the message travels as.
	Kind() Kind

	isMessage()
}

// Offer is a maker's advertised willingness to join a coinjoin.
type Offer interface {
	Message

	// Terms returns the fields shared by both offer kinds.
	Terms() *OfferTerms

	// Fee returns the absolute coinjoin fee the maker charges for amount.
	Fee(amount btcutil.Amount) btcutil.Amount

	// Validate reports whether the offer is internally consistent.
	Validate() error
}

// OfferTerms are the fields common to absolute and relative offers.
type OfferTerms struct {
	// OfferID is stable for the lifetime of the maker so a republished
	// offer keeps its identity.
	OfferID uint32 `json:"oid"`

	// MinSize and MaxSize bound the coinjoin amount.
	MinSize btcutil.Amount `json:"minsize"`
	MaxSize btcutil.Amount `json:"maxsize"`

	// TxFee is the maker's contribution to the mining fee.
	TxFee btcutil.Amount `json:"txfee"`
}

// Terms returns the receiver.
func (t *OfferTerms) Terms() *OfferTerms { return t }

// InRange reports whether amount lies within the offer bounds.
func (t *OfferTerms) InRange(amount btcutil.Amount) bool {
	return amount >= t.MinSize && amount <= t.MaxSize
}

func (t *OfferTerms) validate() error {
	switch {
	case t.MinSize < DustThreshold:
		return fmt.Errorf("minsize %v below dust", t.MinSize)
	case t.MaxSize < t.MinSize:
		return fmt.Errorf("maxsize %v below minsize %v", t.MaxSize,
			t.MinSize)
	case t.TxFee < 0:
		return errors.New("negative txfee")
	}
	return nil
}

// AbsOffer is an offer charging a fixed fee.
type AbsOffer struct {
	OfferTerms
	CJFee btcutil.Amount `json:"cjfee"`
}

// Kind returns KindAbsOffer.
func (*AbsOffer) Kind() Kind { return KindAbsOffer }

func (*AbsOffer) isMessage() {}

// Fee returns the fixed fee.
func (o *AbsOffer) Fee(btcutil.Amount) btcutil.Amount { return o.CJFee }

// Validate reports whether the offer is internally consistent.
func (o *AbsOffer) Validate() error {
	if err := o.validate(); err != nil {
		return err
	}
	if o.CJFee < 0 {
		return errors.New("negative cjfee")
	}
	if o.CJFee > RelativeFee(MaxRelFee, o.MinSize) {
		return fmt.Errorf("cjfee %v exceeds %v of minsize", o.CJFee,
			MaxRelFee)
	}
	return nil
}

// RelOffer is an offer charging a fraction of the coinjoin amount.
type RelOffer struct {
	OfferTerms
	CJFee float64 `json:"cjfee"`
}

// Kind returns KindRelOffer.
func (*RelOffer) Kind() Kind { return KindRelOffer }

func (*RelOffer) isMessage() {}

// Fee returns floor(rate * amount).
func (o *RelOffer) Fee(amount btcutil.Amount) btcutil.Amount {
	return RelativeFee(o.CJFee, amount)
}

// RelativeFee returns floor(rate * amount) with rate taken as the decimal it
// is written as, so 0.0003 of 100000 is 30 rather than the 29 a float64
// product floors to.  Negative or non-finite inputs yield zero.
func RelativeFee(rate float64, amount btcutil.Amount) btcutil.Amount {
	if rate <= 0 || amount <= 0 || math.IsInf(rate, 0) {
		return 0
	}

	r, ok := new(big.Rat).SetString(strconv.FormatFloat(rate, 'g', -1, 64))
	if !ok {
		return 0
	}
	r.Mul(r, new(big.Rat).SetInt64(int64(amount)))

	fee := new(big.Int).Quo(r.Num(), r.Denom())
	if !fee.IsInt64() {
		return btcutil.MaxSatoshi
	}
	return btcutil.Amount(fee.Int64())
}

// Validate reports whether the offer is internally consistent.
func (o *RelOffer) Validate() error {
	if err := o.validate(); err != nil {
		return err
	}
	if o.CJFee < 0 || o.CJFee > MaxRelFee || math.IsNaN(o.CJFee) {
		return fmt.Errorf("cjfee %v outside [0, %v]", o.CJFee, MaxRelFee)
	}
	return nil
}

// Fill accepts an offer.  It reveals the taker's commitment proof and binds
// the proof key to the taker's session identity.
type Fill struct {
	OfferID     uint32           `json:"oid"`
	Amount      btcutil.Amount   `json:"amount"`
	TakerPubKey PeerID           `json:"tencpubkey"`
	Commitment  podle.Commitment `json:"commitment"`
	Proof       *podle.Proof     `json:"revelation"`

	// Signature is a DER ECDSA signature by Proof.P over FillDigest.
	Signature string `json:"sig"`
}

// Kind returns KindFill.
func (*Fill) Kind() Kind { return KindFill }

func (*Fill) isMessage() {}

// FillDigest is the digest signed by the commitment key of a fill.
func FillDigest(taker PeerID, offerID uint32, amount btcutil.Amount) [32]byte {
	var b bytes.Buffer
	b.WriteString(string(taker))
	_ = binary.Write(&b, binary.BigEndian, offerID)
	_ = binary.Write(&b, binary.BigEndian, uint64(amount))
	return sha256.Sum256(b.Bytes())
}

// Sign signs the fill with the private key of the committed UTXO.
func (f *Fill) Sign(priv *btcec.PrivateKey) {
	digest := FillDigest(f.TakerPubKey, f.OfferID, f.Amount)
	f.Signature = hex.EncodeToString(ecdsa.Sign(priv, digest[:]).Serialize())
}

// VerifySignature checks the fill signature against the proof key.
func (f *Fill) VerifySignature() error {
	if f.Proof == nil || f.Proof.P == nil {
		return errors.New("fill has no revealed proof")
	}
	raw, err := hex.DecodeString(f.Signature)
	if err != nil {
		return err
	}
	sig, err := ecdsa.ParseDERSignature(raw)
	if err != nil {
		return err
	}
	digest := FillDigest(f.TakerPubKey, f.OfferID, f.Amount)
	if !sig.Verify(digest[:], f.Proof.P) {
		return errors.New("fill signature does not match proof key")
	}
	return nil
}

// OutPoint is a wire.OutPoint encoded as "txid:index".
type OutPoint struct {
	wire.OutPoint
}

// MarshalText encodes the outpoint as "txid:index".
func (o OutPoint) MarshalText() ([]byte, error) {
	return []byte(o.OutPoint.String()), nil
}

// UnmarshalText decodes "txid:index".
func (o *OutPoint) UnmarshalText(text []byte) error {
	s := string(text)
	i := strings.LastIndexByte(s, ':')
	if i < 0 {
		return fmt.Errorf("invalid outpoint %q", s)
	}
	hash, err := chainhash.NewHashFromStr(s[:i])
	if err != nil {
		return err
	}
	index, err := strconv.ParseUint(s[i+1:], 10, 32)
	if err != nil {
		return err
	}
	o.OutPoint = *wire.NewOutPoint(hash, uint32(index))
	return nil
}

// MakerInput is a maker's response to a fill.
type MakerInput struct {
	OfferID         uint32     `json:"oid"`
	UTXOs           []OutPoint `json:"ulist"`
	CoinJoinAddress string     `json:"coinjoinA"`
	ChangeAddress   string     `json:"changeA"`
}

// Kind returns KindMakerInput.
func (*MakerInput) Kind() Kind { return KindMakerInput }

func (*MakerInput) isMessage() {}

// OutPoints returns the declared UTXOs.
func (m *MakerInput) OutPoints() []wire.OutPoint {
	ops := make([]wire.OutPoint, len(m.UTXOs))
	for i, u := range m.UTXOs {
		ops[i] = u.OutPoint
	}
	return ops
}

// Addresses decodes the coinjoin and change addresses for net.
func (m *MakerInput) Addresses(net *chaincfg.Params) (btcutil.Address,
	btcutil.Address, error) {

	cj, err := btcutil.DecodeAddress(m.CoinJoinAddress, net)
	if err != nil {
		return nil, nil, fmt.Errorf("coinjoin address: %w", err)
	}
	change, err := btcutil.DecodeAddress(m.ChangeAddress, net)
	if err != nil {
		return nil, nil, fmt.Errorf("change address: %w", err)
	}
	if !cj.IsForNet(net) || !change.IsForNet(net) {
		return nil, nil, errors.New("address for wrong network")
	}
	return cj, change, nil
}

// UnsignedTx carries the transaction the taker assembled.
type UnsignedTx struct {
	OfferID uint32 `json:"oid"`
	PSBT    string `json:"psbt"`
}

// Kind returns KindUnsignedTx.
func (*UnsignedTx) Kind() Kind { return KindUnsignedTx }

func (*UnsignedTx) isMessage() {}

// Packet decodes the carried PSBT.
func (u *UnsignedTx) Packet() (*psbt.Packet, error) {
	return decodePacket(u.PSBT)
}

// SignedTx carries the transaction after a maker signed its inputs.
type SignedTx struct {
	OfferID uint32 `json:"oid"`
	PSBT    string `json:"psbt"`
}

// Kind returns KindSignedTx.
func (*SignedTx) Kind() Kind { return KindSignedTx }

func (*SignedTx) isMessage() {}

// Packet decodes the carried PSBT.
func (s *SignedTx) Packet() (*psbt.Packet, error) {
	return decodePacket(s.PSBT)
}

// EncodePacket base64 encodes a PSBT for transport.
func EncodePacket(p *psbt.Packet) (string, error) {
	return p.B64Encode()
}

func decodePacket(b64 string) (*psbt.Packet, error) {
	return psbt.NewFromRawBytes(strings.NewReader(b64), true)
}

// newMessage returns an empty message for kind.
func newMessage(kind Kind) (Message, error) {
	switch kind {
	case KindAbsOffer:
		return &AbsOffer{}, nil
	case KindRelOffer:
		return &RelOffer{}, nil
	case KindFill:
		return &Fill{}, nil
	case KindMakerInput:
		return &MakerInput{}, nil
	case KindUnsignedTx:
		return &UnsignedTx{}, nil
	case KindSignedTx:
		return &SignedTx{}, nil
	default:
		return nil, fmt.Errorf("unknown kind %v", kind)
	}
}
