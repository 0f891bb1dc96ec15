// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package coinjoin

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcjoin/protocol"
	"github.com/btcsuite/btcwallet/wallet/txauthor"
)

// Limits bound what a taker is willing to pay.  Zero fields are unset.
type Limits struct {
	// MaxCJFeeAbs and MaxCJFeeRel bound each maker's fee.  A fee is
	// acceptable when it is within either bound.
	MaxCJFeeAbs btcutil.Amount
	MaxCJFeeRel float64

	// MaxMiningFee bounds the taker's share of the mining fee.
	MaxMiningFee btcutil.Amount
}

// AcceptFee reports whether a maker fee for amount is within the limits.
func (l *Limits) AcceptFee(fee, amount btcutil.Amount) bool {
	if l.MaxCJFeeAbs == 0 && l.MaxCJFeeRel == 0 {
		return true
	}
	if l.MaxCJFeeAbs > 0 && fee <= l.MaxCJFeeAbs {
		return true
	}
	return l.MaxCJFeeRel > 0 &&
		fee <= protocol.RelativeFee(l.MaxCJFeeRel, amount)
}

// MakerTerms is what a maker agreed to in a fill.
type MakerTerms struct {
	Amount         btcutil.Amount
	CJFee          btcutil.Amount
	TxFee          btcutil.Amount
	Inputs         []*Input
	CoinJoinScript []byte
	ChangeScript   []byte
}

// errValueMismatch is the error returned for any transaction that does not
// honour a participant's terms.  The reason is only logged.
func errValueMismatch(reason error) error {
	log.Debugf("Transaction rejected: %v", reason)

	return protocol.NewError(protocol.ErrValueMismatch,
		"transaction does not match agreed terms", nil)
}

// checkInputs ensures each declared input appears once in packet with an
// unmodified prevout and returns their positions.
func checkInputs(packet *psbt.Packet, inputs []*Input) ([]int, error) {
	tx := packet.UnsignedTx
	if len(packet.Inputs) != len(tx.TxIn) {
		return nil, errors.New("malformed packet")
	}

	indices := make([]int, 0, len(inputs))
	for _, in := range inputs {
		found := -1
		for i, txIn := range tx.TxIn {
			if txIn.PreviousOutPoint != in.OutPoint {
				continue
			}
			if found != -1 {
				return nil, fmt.Errorf("input %v spent twice",
					in.OutPoint)
			}
			found = i
		}
		if found == -1 {
			return nil, fmt.Errorf("input %v missing", in.OutPoint)
		}

		utxo := packet.Inputs[found].WitnessUtxo
		if utxo == nil || utxo.Value != in.PrevOut.Value ||
			!bytes.Equal(utxo.PkScript, in.PrevOut.PkScript) {

			return nil, fmt.Errorf("prevout of %v modified",
				in.OutPoint)
		}
		indices = append(indices, found)
	}
	return indices, nil
}

// outputsTo returns the values of the outputs paying pkScript.
func outputsTo(tx *wire.MsgTx, pkScript []byte) []int64 {
	var values []int64
	for _, out := range tx.TxOut {
		if bytes.Equal(out.PkScript, pkScript) {
			values = append(values, out.Value)
		}
	}
	return values
}

// checkPayment ensures pkScript receives exactly want, or nothing when want
// is zero.
func checkPayment(tx *wire.MsgTx, pkScript []byte, want btcutil.Amount,
	what string) error {

	values := outputsTo(tx, pkScript)
	switch {
	case want == 0 && len(values) == 0:
		return nil

	case len(values) != 1:
		return fmt.Errorf("%s paid by %d outputs", what, len(values))

	case btcutil.Amount(values[0]) != want:
		return fmt.Errorf("%s is %v, want %v", what,
			btcutil.Amount(values[0]), want)
	}
	return nil
}

// VerifyMaker checks an unsigned coinjoin against a maker's terms and
// returns the positions of the maker's inputs.  The maker's inputs must be
// present exactly once with their original prevouts, its coinjoin script
// must receive exactly the amount and its change script exactly
// inputs - amount - txfee + cjfee.  Any discrepancy yields ErrValueMismatch.
func VerifyMaker(packet *psbt.Packet, terms *MakerTerms) ([]int, error) {
	if bytes.Equal(terms.CoinJoinScript, terms.ChangeScript) {
		return nil, errValueMismatch(errors.New("coinjoin and change " +
			"scripts are equal"))
	}

	indices, err := checkInputs(packet, terms.Inputs)
	if err != nil {
		return nil, errValueMismatch(err)
	}

	tx := packet.UnsignedTx
	err = checkPayment(tx, terms.CoinJoinScript, terms.Amount,
		"coinjoin output")
	if err != nil {
		return nil, errValueMismatch(err)
	}

	change := sumInputs(terms.Inputs) - terms.Amount - terms.TxFee +
		terms.CJFee
	if change < 0 {
		return nil, errValueMismatch(fmt.Errorf("negative change %v",
			change))
	}
	if err := checkPayment(tx, terms.ChangeScript, change,
		"change output"); err != nil {

		return nil, errValueMismatch(err)
	}

	return indices, nil
}

// TakerTerms is what the taker expects of the coinjoin it built.
type TakerTerms struct {
	Amount         btcutil.Amount
	Inputs         []*Input
	CoinJoinScript []byte
	ChangeScript   []byte

	// Change is the expected taker change, zero when dropped.
	Change btcutil.Amount

	// MakerFees are the coinjoin fees owed to each maker.
	MakerFees []btcutil.Amount

	Limits Limits
}

// VerifyTaker checks a coinjoin against the taker's terms and limits before
// the taker signs it.
func VerifyTaker(packet *psbt.Packet, terms *TakerTerms) (*Summary, error) {
	indices, err := checkInputs(packet, terms.Inputs)
	if err != nil {
		return nil, errValueMismatch(err)
	}

	tx := packet.UnsignedTx
	err = checkPayment(tx, terms.CoinJoinScript, terms.Amount,
		"coinjoin output")
	if err != nil {
		return nil, errValueMismatch(err)
	}
	err = checkPayment(tx, terms.ChangeScript, terms.Change,
		"change output")
	if err != nil {
		return nil, errValueMismatch(err)
	}

	summary := &Summary{
		Amount:      terms.Amount,
		TakerChange: terms.Change,
		TakerInputs: indices,
	}
	for _, fee := range terms.MakerFees {
		if !terms.Limits.AcceptFee(fee, terms.Amount) {
			return nil, errValueMismatch(fmt.Errorf("maker fee %v "+
				"exceeds limits", fee))
		}
		summary.CJFees += fee
	}

	var inputSum btcutil.Amount
	for i := range packet.Inputs {
		utxo := packet.Inputs[i].WitnessUtxo
		if utxo == nil {
			return nil, errValueMismatch(fmt.Errorf("input %d "+
				"has no prevout", i))
		}
		inputSum += btcutil.Amount(utxo.Value)
	}
	summary.MiningFee = inputSum - txauthor.SumOutputValues(tx.TxOut)

	summary.TakerMiningFee = sumInputs(terms.Inputs) - terms.Amount -
		terms.Change - summary.CJFees
	if summary.TakerMiningFee < 0 {
		return nil, errValueMismatch(fmt.Errorf("taker receives %v "+
			"more than it spends", -summary.TakerMiningFee))
	}
	if terms.Limits.MaxMiningFee > 0 &&
		summary.TakerMiningFee > terms.Limits.MaxMiningFee {

		return nil, errValueMismatch(fmt.Errorf("mining fee %v "+
			"exceeds limit %v", summary.TakerMiningFee,
			terms.Limits.MaxMiningFee))
	}

	return summary, nil
}

// parseWitness decodes a serialized witness stack.
func parseWitness(raw []byte) (wire.TxWitness, error) {
	r := bytes.NewReader(raw)
	count, err := wire.ReadVarInt(r, 0)
	if err != nil {
		return nil, err
	}
	if count > txscript.MaxStackSize {
		return nil, errors.New("witness too large")
	}

	witness := make(wire.TxWitness, count)
	for i := range witness {
		witness[i], err = wire.ReadVarBytes(
			r, 0, txscript.MaxScriptSize, "witness",
		)
		if err != nil {
			return nil, err
		}
	}
	return witness, nil
}

// VerifyInputSignatures executes the final scripts of the given inputs.  All
// inputs must carry witness UTXOs.
func VerifyInputSignatures(packet *psbt.Packet, indices []int) error {
	tx := packet.UnsignedTx.Copy()
	prevOuts := make(map[wire.OutPoint]*wire.TxOut, len(tx.TxIn))
	for i, in := range tx.TxIn {
		utxo := packet.Inputs[i].WitnessUtxo
		if utxo == nil {
			return fmt.Errorf("input %d has no witness utxo", i)
		}
		prevOuts[in.PreviousOutPoint] = utxo
	}

	for _, i := range indices {
		if i < 0 || i >= len(tx.TxIn) {
			return fmt.Errorf("input %d out of range", i)
		}
		pIn := &packet.Inputs[i]
		if pIn.FinalScriptSig == nil && pIn.FinalScriptWitness == nil {
			return fmt.Errorf("input %d is not signed", i)
		}

		tx.TxIn[i].SignatureScript = pIn.FinalScriptSig
		if pIn.FinalScriptWitness != nil {
			witness, err := parseWitness(pIn.FinalScriptWitness)
			if err != nil {
				return fmt.Errorf("input %d: %w", i, err)
			}
			tx.TxIn[i].Witness = witness
		}
	}

	fetcher := txscript.NewMultiPrevOutFetcher(prevOuts)
	sigHashes := txscript.NewTxSigHashes(tx, fetcher)
	for _, i := range indices {
		prev := prevOuts[tx.TxIn[i].PreviousOutPoint]
		vm, err := txscript.NewEngine(
			prev.PkScript, tx, i, txscript.StandardVerifyFlags,
			nil, sigHashes, prev.Value, fetcher,
		)
		if err != nil {
			return fmt.Errorf("input %d: %w", i, err)
		}
		if err := vm.Execute(); err != nil {
			return fmt.Errorf("input %d: %w", i, err)
		}
	}
	return nil
}
