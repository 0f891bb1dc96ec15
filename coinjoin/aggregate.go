// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package coinjoin

import (
	"errors"
	"fmt"
	"sort"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcjoin/protocol"
)

// ErrIncomplete is returned when finalizing before every maker has signed.
var ErrIncomplete = errors.New("coinjoin is missing signatures")

// Aggregator merges the signed packets returned by makers into the
// transaction the taker built.  Packets may arrive in any order and
// duplicates are ignored.  It is not safe for concurrent use.
type Aggregator struct {
	packet *psbt.Packet
	txHash chainhash.Hash
	owners map[protocol.PeerID][]int
	signed map[protocol.PeerID]struct{}
}

// NewAggregator starts aggregating signatures for packet, whose maker inputs
// are indexed by makerInputs.
func NewAggregator(packet *psbt.Packet,
	makerInputs map[protocol.PeerID][]int) *Aggregator {

	return &Aggregator{
		packet: packet,
		txHash: packet.UnsignedTx.TxHash(),
		owners: makerInputs,
		signed: make(map[protocol.PeerID]struct{}),
	}
}

// Add merges the signatures of maker from signed.  It returns false without
// error if the maker already signed.  A packet for a different transaction
// is a value mismatch and invalid signatures are a bad signature, both
// naming the maker.
func (a *Aggregator) Add(maker protocol.PeerID, signed *psbt.Packet) (bool,
	error) {

	indices, ok := a.owners[maker]
	if !ok {
		return false, protocol.NewError(protocol.ErrProtocolViolation,
			"signature from non-participant", nil, maker)
	}
	if _, ok := a.signed[maker]; ok {
		log.Tracef("Ignoring duplicate signatures from %v",
			maker.Short())
		return false, nil
	}

	if signed.UnsignedTx.TxHash() != a.txHash ||
		len(signed.Inputs) != len(a.packet.Inputs) {

		return false, protocol.NewError(protocol.ErrValueMismatch,
			"signed transaction differs from the proposal", nil,
			maker)
	}

	// Check the maker's signatures against our own copy of the prevouts.
	trial := *a.packet
	trial.Inputs = append([]psbt.PInput(nil), a.packet.Inputs...)
	for _, i := range indices {
		trial.Inputs[i].FinalScriptSig = signed.Inputs[i].FinalScriptSig
		trial.Inputs[i].FinalScriptWitness =
			signed.Inputs[i].FinalScriptWitness
	}
	if err := VerifyInputSignatures(&trial, indices); err != nil {
		return false, protocol.NewError(protocol.ErrBadSignature,
			"invalid input signature", err, maker)
	}

	a.packet.Inputs = trial.Inputs
	a.signed[maker] = struct{}{}

	log.Debugf("Accepted signatures from %v (%d/%d)", maker.Short(),
		len(a.signed), len(a.owners))

	return true, nil
}

// Complete reports whether every maker has signed.
func (a *Aggregator) Complete() bool {
	return len(a.signed) == len(a.owners)
}

// Missing returns the makers that have not signed, sorted.
func (a *Aggregator) Missing() []protocol.PeerID {
	var missing []protocol.PeerID
	for maker := range a.owners {
		if _, ok := a.signed[maker]; !ok {
			missing = append(missing, maker)
		}
	}
	sort.Slice(missing, func(i, j int) bool {
		return missing[i] < missing[j]
	})
	return missing
}

// Packet returns the packet carrying the signatures merged so far.  The
// taker signs its own inputs on it before finalizing.
func (a *Aggregator) Packet() *psbt.Packet {
	return a.packet
}

// Finalize verifies every input and extracts the network transaction.
func (a *Aggregator) Finalize() (*wire.MsgTx, error) {
	if !a.Complete() {
		return nil, fmt.Errorf("%w: %d makers outstanding",
			ErrIncomplete, len(a.Missing()))
	}

	all := make([]int, len(a.packet.Inputs))
	for i := range all {
		all[i] = i
	}
	if err := VerifyInputSignatures(a.packet, all); err != nil {
		return nil, err
	}

	if err := psbt.MaybeFinalizeAll(a.packet); err != nil {
		return nil, err
	}
	return psbt.Extract(a.packet)
}
