// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package coinjoin assembles the joint transaction of a coinjoin and verifies
// it from the point of view of each participant.
package coinjoin

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcjoin/protocol"
	"github.com/btcsuite/btcwallet/wallet/txauthor"
	"github.com/btcsuite/btcwallet/wallet/txrules"
	"github.com/btcsuite/btcwallet/wallet/txsizes"
)

var (
	// ErrNoMakers is returned when a build request has no makers.
	ErrNoMakers = errors.New("no makers in coinjoin")

	// ErrAmountTooSmall is returned when the coinjoin amount is dust.
	ErrAmountTooSmall = errors.New("coinjoin amount below dust threshold")

	// ErrDuplicateInput is returned when an outpoint is contributed
	// twice.
	ErrDuplicateInput = errors.New("duplicate input")

	// ErrInsufficientFunds is returned when a participant's inputs do
	// not cover its contribution.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrDustChange is returned when a maker's change is positive but
	// below the dust threshold.
	ErrDustChange = errors.New("maker change below dust threshold")

	// ErrUnsupportedScript is returned for inputs whose spend size
	// cannot be estimated.
	ErrUnsupportedScript = errors.New("unsupported input script")
)

// Input is an outpoint together with the output it spends.
type Input struct {
	OutPoint wire.OutPoint
	PrevOut  *wire.TxOut
}

// sumInputs returns the total value spent by inputs.
func sumInputs(inputs []*Input) btcutil.Amount {
	outs := make([]*wire.TxOut, len(inputs))
	for i, in := range inputs {
		outs[i] = in.PrevOut
	}
	return txauthor.SumOutputValues(outs)
}

// TakerContribution is the taker's side of a build request.
type TakerContribution struct {
	Inputs         []*Input
	CoinJoinScript []byte
	ChangeScript   []byte
}

// MakerContribution is one maker's side of a build request.
type MakerContribution struct {
	Maker          protocol.PeerID
	Inputs         []*Input
	CoinJoinScript []byte
	ChangeScript   []byte

	// CJFee is the fee the maker collects and TxFee its share of the
	// mining fee.
	CJFee btcutil.Amount
	TxFee btcutil.Amount
}

// Change returns the maker's change for amount:
// inputs - amount - txfee + cjfee.
func (m *MakerContribution) Change(amount btcutil.Amount) btcutil.Amount {
	return sumInputs(m.Inputs) - amount - m.TxFee + m.CJFee
}

// BuildRequest describes a coinjoin to assemble.
type BuildRequest struct {
	Amount btcutil.Amount

	// FeeRate is the mining fee rate per kvB.  Zero selects the default
	// relay fee.
	FeeRate btcutil.Amount

	Taker  *TakerContribution
	Makers []*MakerContribution
}

// Summary describes an assembled coinjoin.
type Summary struct {
	Amount btcutil.Amount

	// CJFees is the total paid to makers and MakerTxFees the total of
	// their declared mining fee contributions.
	CJFees      btcutil.Amount
	MakerTxFees btcutil.Amount

	// MiningFee is the transaction fee, TakerMiningFee the part of it
	// paid by the taker.
	MiningFee      btcutil.Amount
	TakerMiningFee btcutil.Amount

	// TakerChange is zero when the taker's change was dropped.
	TakerChange btcutil.Amount

	// VSize is the estimated virtual size.
	VSize int

	// TakerInputs and MakerInputs index the inputs of the sorted
	// transaction by owner.
	TakerInputs []int
	MakerInputs map[protocol.PeerID][]int
}

// inputCounts tallies inputs by spend type for size estimation.
type inputCounts struct {
	p2pkh, p2tr, p2wpkh, nested int
}

func (c *inputCounts) add(pkScript []byte) error {
	switch txscript.GetScriptClass(pkScript) {
	case txscript.PubKeyHashTy:
		c.p2pkh++
	case txscript.WitnessV1TaprootTy:
		c.p2tr++
	case txscript.WitnessV0PubKeyHashTy:
		c.p2wpkh++
	case txscript.ScriptHashTy:
		c.nested++
	default:
		return ErrUnsupportedScript
	}
	return nil
}

// Build assembles the unsigned coinjoin.
//
// Every maker receives amount on its coinjoin script and
// inputs - amount - txfee + cjfee as change.  The taker receives amount and
// pays all coinjoin fees plus the part of the mining fee not covered by the
// makers' tx fees.  A taker change below the dust threshold is left to the
// miners.  Inputs and outputs are sorted per BIP 69 so positions reveal
// nothing about ownership.
func Build(req *BuildRequest) (*psbt.Packet, *Summary, error) {
	if len(req.Makers) == 0 {
		return nil, nil, ErrNoMakers
	}
	if req.Amount < protocol.DustThreshold {
		return nil, nil, ErrAmountTooSmall
	}

	feeRate := req.FeeRate
	if feeRate <= 0 {
		feeRate = txrules.DefaultRelayFeePerKb
	}

	var (
		inputs []*Input
		counts inputCounts
		owners = make(map[wire.OutPoint]protocol.PeerID)
		seen   = make(map[wire.OutPoint]struct{})
	)
	addInputs := func(owner protocol.PeerID, ins []*Input) error {
		for _, in := range ins {
			if _, ok := seen[in.OutPoint]; ok {
				return fmt.Errorf("%w: %v", ErrDuplicateInput,
					in.OutPoint)
			}
			if err := counts.add(in.PrevOut.PkScript); err != nil {
				return fmt.Errorf("%w: %v", err, in.OutPoint)
			}
			seen[in.OutPoint] = struct{}{}
			owners[in.OutPoint] = owner
			inputs = append(inputs, in)
		}
		return nil
	}

	if err := addInputs("", req.Taker.Inputs); err != nil {
		return nil, nil, err
	}

	summary := &Summary{
		Amount:      req.Amount,
		MakerInputs: make(map[protocol.PeerID][]int),
	}
	outputs := []*wire.TxOut{
		wire.NewTxOut(int64(req.Amount), req.Taker.CoinJoinScript),
	}
	for _, m := range req.Makers {
		if len(m.Inputs) == 0 {
			return nil, nil, fmt.Errorf("%w: maker %v has no inputs",
				ErrInsufficientFunds, m.Maker.Short())
		}
		if err := addInputs(m.Maker, m.Inputs); err != nil {
			return nil, nil, err
		}

		change := m.Change(req.Amount)
		switch {
		case change < 0:
			return nil, nil, fmt.Errorf("%w: maker %v short by %v",
				ErrInsufficientFunds, m.Maker.Short(), -change)

		case change > 0 && change < protocol.DustThreshold:
			return nil, nil, fmt.Errorf("%w: maker %v change %v",
				ErrDustChange, m.Maker.Short(), change)
		}

		outputs = append(outputs, wire.NewTxOut(
			int64(req.Amount), m.CoinJoinScript,
		))
		if change > 0 {
			outputs = append(outputs, wire.NewTxOut(
				int64(change), m.ChangeScript,
			))
		}

		summary.CJFees += m.CJFee
		summary.MakerTxFees += m.TxFee
	}

	summary.VSize = txsizes.EstimateVirtualSize(
		counts.p2pkh, counts.p2tr, counts.p2wpkh, counts.nested,
		outputs, len(req.Taker.ChangeScript),
	)
	fee := txrules.FeeForSerializeSize(feeRate, summary.VSize)

	summary.TakerMiningFee = fee - summary.MakerTxFees
	if summary.TakerMiningFee < 0 {
		summary.TakerMiningFee = 0
	}

	takerChange := sumInputs(req.Taker.Inputs) - req.Amount -
		summary.CJFees - summary.TakerMiningFee
	switch {
	case takerChange < 0:
		return nil, nil, fmt.Errorf("%w: taker short by %v",
			ErrInsufficientFunds, -takerChange)

	case takerChange < protocol.DustThreshold:
		log.Debugf("Dropping dust taker change of %v", takerChange)

	default:
		summary.TakerChange = takerChange
		outputs = append(outputs, wire.NewTxOut(
			int64(takerChange), req.Taker.ChangeScript,
		))
	}

	for _, out := range outputs {
		err := txrules.CheckOutput(out, txrules.DefaultRelayFeePerKb)
		if err != nil {
			return nil, nil, err
		}
	}

	outPoints := make([]*wire.OutPoint, len(inputs))
	sequences := make([]uint32, len(inputs))
	for i, in := range inputs {
		outPoints[i] = &in.OutPoint
		sequences[i] = wire.MaxTxInSequenceNum
	}

	packet, err := psbt.New(outPoints, outputs, 2, 0, sequences)
	if err != nil {
		return nil, nil, err
	}
	for i, in := range inputs {
		packet.Inputs[i].WitnessUtxo = in.PrevOut
	}
	if err := psbt.InPlaceSort(packet); err != nil {
		return nil, nil, err
	}

	summary.MiningFee = sumInputs(inputs) -
		txauthor.SumOutputValues(packet.UnsignedTx.TxOut)

	for i, txIn := range packet.UnsignedTx.TxIn {
		owner := owners[txIn.PreviousOutPoint]
		if owner == "" {
			summary.TakerInputs = append(summary.TakerInputs, i)
			continue
		}
		summary.MakerInputs[owner] = append(
			summary.MakerInputs[owner], i,
		)
	}

	log.Debugf("Built coinjoin of %v with %d inputs, %d outputs, "+
		"fee %v (%d vbytes)", req.Amount, len(inputs), len(outputs),
		summary.MiningFee, summary.VSize)

	return packet, summary, nil
}

// InputIndices returns the positions of ops in tx.
func InputIndices(tx *wire.MsgTx, ops []wire.OutPoint) ([]int, error) {
	positions := make(map[wire.OutPoint]int, len(tx.TxIn))
	for i, in := range tx.TxIn {
		positions[in.PreviousOutPoint] = i
	}

	indices := make([]int, 0, len(ops))
	for _, op := range ops {
		i, ok := positions[op]
		if !ok {
			return nil, fmt.Errorf("input %v not in transaction", op)
		}
		indices = append(indices, i)
	}
	return indices, nil
}
