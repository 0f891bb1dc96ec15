// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package protocol

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
)

// Kind is the numeric event kind tag carried by every envelope.
type Kind int

// Event kinds used by the protocol.  The numbers are part of the wire
// contract and must not change.
const (
	// KindDeletion requests that a relay drop earlier events by the same
	// author.
	KindDeletion Kind = 5

	// KindAbsOffer is a replaceable maker offer with an absolute fee.
	KindAbsOffer Kind = 10123

	// KindRelOffer is a replaceable maker offer with a relative fee.
	KindRelOffer Kind = 10124

	// KindFill is sent by a taker to accept an offer.
	KindFill Kind = 20125

	// KindMakerInput carries a maker's inputs and addresses.
	KindMakerInput Kind = 20126

	// KindUnsignedTx carries the assembled unsigned transaction.
	KindUnsignedTx Kind = 20127

	// KindSignedTx carries a maker's signed transaction.
	KindSignedTx Kind = 20128
)

var kindStrings = map[Kind]string{
	KindDeletion:   "Deletion",
	KindAbsOffer:   "AbsOffer",
	KindRelOffer:   "RelOffer",
	KindFill:       "Fill",
	KindMakerInput: "MakerInput",
	KindUnsignedTx: "UnsignedTransaction",
	KindSignedTx:   "SignedTransaction",
}

// String returns the Kind as a human-readable name.
func (k Kind) String() string {
	if s := kindStrings[k]; s != "" {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Replaceable reports whether a relay keeps only the latest event of this
// kind per author.
func (k Kind) Replaceable() bool {
	return k >= 10000 && k < 20000
}

// Ephemeral reports whether a relay forwards events of this kind to live
// subscribers without storing them.
func (k Kind) Ephemeral() bool {
	return k >= 20000 && k < 30000
}

// OfferKinds are the kinds a taker listens to when collecting offers.
var OfferKinds = []Kind{KindAbsOffer, KindRelOffer}

const (
	// DustThreshold is the smallest output value the protocol creates.
	DustThreshold btcutil.Amount = 546

	// MaxRelFee is the largest relative fee an offer may advertise.
	MaxRelFee = 0.15
)
