// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/wallet/txrules"
)

var (
	// ErrMissingInput is returned when a broadcast transaction spends an
	// unknown or spent output.
	ErrMissingInput = errors.New("transaction spends missing output")

	// ErrMissingWitnessUtxo is returned when a packet input to be signed
	// lacks its witness UTXO.
	ErrMissingWitnessUtxo = errors.New("input has no witness utxo")
)

// MemChain is an in-memory UTXO set that validates and applies broadcast
// transactions.  Several MemWallets may share one chain.
type MemChain struct {
	params *chaincfg.Params

	mu      sync.Mutex
	utxos   map[wire.OutPoint]*wire.TxOut
	txs     []*wire.MsgTx
	feeRate btcutil.Amount
	funding uint32
}

// NewMemChain returns an empty chain for params.
func NewMemChain(params *chaincfg.Params) *MemChain {
	return &MemChain{
		params:  params,
		utxos:   make(map[wire.OutPoint]*wire.TxOut),
		feeRate: txrules.DefaultRelayFeePerKb,
	}
}

// SetFeeRate sets the fee rate per kvB reported to wallets.
func (c *MemChain) SetFeeRate(rate btcutil.Amount) {
	c.mu.Lock()
	c.feeRate = rate
	c.mu.Unlock()
}

// Fund creates an output paying value to pkScript.
func (c *MemChain) Fund(pkScript []byte, value btcutil.Amount) wire.OutPoint {
	c.mu.Lock()
	defer c.mu.Unlock()

	var seed [4]byte
	binary.BigEndian.PutUint32(seed[:], c.funding)
	c.funding++

	tx := wire.NewMsgTx(wire.TxVersion)
	prev := wire.NewOutPoint(&chainhash.Hash{}, wire.MaxPrevOutIndex)
	tx.AddTxIn(wire.NewTxIn(prev, seed[:], nil))
	tx.AddTxOut(wire.NewTxOut(int64(value), pkScript))

	op := wire.OutPoint{Hash: tx.TxHash(), Index: 0}
	c.utxos[op] = tx.TxOut[0]
	return op
}

// FetchTxOut returns an unspent output.
func (c *MemChain) FetchTxOut(op wire.OutPoint) (*wire.TxOut, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	out, ok := c.utxos[op]
	if !ok {
		return nil, ErrOutputNotFound
	}
	return wire.NewTxOut(out.Value, out.PkScript), nil
}

// Broadcast validates every input script of tx against the UTXO set and
// applies it.
func (c *MemChain) Broadcast(tx *wire.MsgTx) (*chainhash.Hash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	prevOuts := make(map[wire.OutPoint]*wire.TxOut, len(tx.TxIn))
	var inputSum int64
	for _, in := range tx.TxIn {
		out, ok := c.utxos[in.PreviousOutPoint]
		if !ok {
			return nil, fmt.Errorf("%w: %v", ErrMissingInput,
				in.PreviousOutPoint)
		}
		prevOuts[in.PreviousOutPoint] = out
		inputSum += out.Value
	}

	var outputSum int64
	for _, out := range tx.TxOut {
		outputSum += out.Value
	}
	if outputSum > inputSum {
		return nil, fmt.Errorf("outputs %d exceed inputs %d",
			outputSum, inputSum)
	}

	fetcher := txscript.NewMultiPrevOutFetcher(prevOuts)
	sigHashes := txscript.NewTxSigHashes(tx, fetcher)
	for i, in := range tx.TxIn {
		prev := prevOuts[in.PreviousOutPoint]
		vm, err := txscript.NewEngine(
			prev.PkScript, tx, i, txscript.StandardVerifyFlags,
			nil, sigHashes, prev.Value, fetcher,
		)
		if err != nil {
			return nil, err
		}
		if err := vm.Execute(); err != nil {
			return nil, fmt.Errorf("input %d: %w", i, err)
		}
	}

	hash := tx.TxHash()
	for _, in := range tx.TxIn {
		delete(c.utxos, in.PreviousOutPoint)
	}
	for i, out := range tx.TxOut {
		c.utxos[wire.OutPoint{Hash: hash, Index: uint32(i)}] = out
	}
	c.txs = append(c.txs, tx)

	log.Debugf("Accepted transaction %v", hash)

	return &hash, nil
}

// Transactions returns the broadcast transactions in order.
func (c *MemChain) Transactions() []*wire.MsgTx {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]*wire.MsgTx(nil), c.txs...)
}

// MemWallet is a P2WPKH wallet over a MemChain.
type MemWallet struct {
	*OutputLeaser

	chain *MemChain

	mu   sync.Mutex
	keys map[string]*btcec.PrivateKey
}

// A compile-time assertion to ensure MemWallet implements Wallet.
var _ Wallet = (*MemWallet)(nil)

// NewMemWallet returns an empty wallet on chain.
func NewMemWallet(chain *MemChain) *MemWallet {
	return &MemWallet{
		OutputLeaser: NewOutputLeaser(),
		chain:        chain,
		keys:         make(map[string]*btcec.PrivateKey),
	}
}

// Params returns the chain parameters.
func (w *MemWallet) Params() *chaincfg.Params {
	return w.chain.params
}

// newKey creates a key and returns its P2WPKH address and script.
func (w *MemWallet) newKey() (btcutil.Address, []byte, error) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, nil, err
	}

	addr, err := btcutil.NewAddressWitnessPubKeyHash(
		btcutil.Hash160(priv.PubKey().SerializeCompressed()),
		w.chain.params,
	)
	if err != nil {
		return nil, nil, err
	}
	pkScript, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return nil, nil, err
	}

	w.mu.Lock()
	w.keys[hex.EncodeToString(pkScript)] = priv
	w.mu.Unlock()

	return addr, pkScript, nil
}

func (w *MemWallet) keyFor(pkScript []byte) (*btcec.PrivateKey, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	priv, ok := w.keys[hex.EncodeToString(pkScript)]
	return priv, ok
}

// Fund creates one wallet output per value.
func (w *MemWallet) Fund(values ...btcutil.Amount) ([]wire.OutPoint, error) {
	ops := make([]wire.OutPoint, 0, len(values))
	for _, value := range values {
		_, pkScript, err := w.newKey()
		if err != nil {
			return nil, err
		}
		ops = append(ops, w.chain.Fund(pkScript, value))
	}
	return ops, nil
}

// ListUnspent returns the unleased wallet outputs in ascending value order.
func (w *MemWallet) ListUnspent(_ context.Context) ([]*Utxo, error) {
	w.chain.mu.Lock()
	var utxos []*Utxo
	for op, out := range w.chain.utxos {
		if _, ok := w.keyFor(out.PkScript); !ok {
			continue
		}
		utxos = append(utxos, &Utxo{
			OutPoint:      op,
			Value:         btcutil.Amount(out.Value),
			PkScript:      out.PkScript,
			Confirmations: 1,
		})
	}
	w.chain.mu.Unlock()

	utxos = w.filterLeased(utxos)
	sortUtxos(utxos)
	return utxos, nil
}

// NewAddress returns a fresh P2WPKH address.
func (w *MemWallet) NewAddress(_ context.Context,
	_ Purpose) (btcutil.Address, error) {

	addr, _, err := w.newKey()
	return addr, err
}

// SignInputs signs the listed P2WPKH inputs and sets their final witness.
func (w *MemWallet) SignInputs(_ context.Context, packet *psbt.Packet,
	inputs []int) (*psbt.Packet, error) {

	tx := packet.UnsignedTx
	prevOuts := make(map[wire.OutPoint]*wire.TxOut, len(tx.TxIn))
	for i, in := range tx.TxIn {
		if utxo := packet.Inputs[i].WitnessUtxo; utxo != nil {
			prevOuts[in.PreviousOutPoint] = utxo
		}
	}
	fetcher := txscript.NewMultiPrevOutFetcher(prevOuts)
	sigHashes := txscript.NewTxSigHashes(tx, fetcher)

	for _, i := range inputs {
		if i < 0 || i >= len(tx.TxIn) {
			return nil, fmt.Errorf("input %d out of range", i)
		}
		utxo := packet.Inputs[i].WitnessUtxo
		if utxo == nil {
			return nil, fmt.Errorf("%w: input %d",
				ErrMissingWitnessUtxo, i)
		}
		priv, ok := w.keyFor(utxo.PkScript)
		if !ok {
			return nil, fmt.Errorf("%w: input %d", ErrNotOwned, i)
		}

		witness, err := txscript.WitnessSignature(
			tx, sigHashes, i, utxo.Value, utxo.PkScript,
			txscript.SigHashAll, priv, true,
		)
		if err != nil {
			return nil, err
		}

		var buf bytes.Buffer
		if err := psbt.WriteTxWitness(&buf, witness); err != nil {
			return nil, err
		}
		packet.Inputs[i].FinalScriptWitness = buf.Bytes()
	}

	return packet, nil
}

// EstimateFeeRate returns the chain's configured fee rate.
func (w *MemWallet) EstimateFeeRate(_ context.Context) (btcutil.Amount,
	error) {

	w.chain.mu.Lock()
	defer w.chain.mu.Unlock()

	return w.chain.feeRate, nil
}

// Broadcast applies tx to the chain.
func (w *MemWallet) Broadcast(_ context.Context,
	tx *wire.MsgTx) (*chainhash.Hash, error) {

	return w.chain.Broadcast(tx)
}

// FetchTxOut returns an unspent output from the chain.
func (w *MemWallet) FetchTxOut(_ context.Context,
	op wire.OutPoint) (*wire.TxOut, error) {

	return w.chain.FetchTxOut(op)
}

// CommitmentKey returns the key controlling op.
func (w *MemWallet) CommitmentKey(_ context.Context,
	op wire.OutPoint) (*btcec.PrivateKey, error) {

	out, err := w.chain.FetchTxOut(op)
	if err != nil {
		return nil, err
	}
	priv, ok := w.keyFor(out.PkScript)
	if !ok {
		return nil, ErrNotOwned
	}
	return priv, nil
}
