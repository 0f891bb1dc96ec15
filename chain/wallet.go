// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package chain defines the wallet and chain backend the coinjoin roles run
// against, with a bitcoind JSON-RPC implementation and an in-memory one.
package chain

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/wtxmgr"
)

var (
	// ErrOutputNotFound is returned when an output is unknown or already
	// spent.
	ErrOutputNotFound = errors.New("output not found")

	// ErrNotOwned is returned when the wallet holds no key for an
	// output.
	ErrNotOwned = errors.New("output not owned by wallet")
)

// Purpose selects the kind of address requested from a wallet.
type Purpose uint8

const (
	// PurposeCoinJoin is a fresh receive address for a coinjoin output.
	PurposeCoinJoin Purpose = iota

	// PurposeChange is an internal change address.
	PurposeChange
)

// String returns the purpose as a human-readable name.
func (p Purpose) String() string {
	switch p {
	case PurposeCoinJoin:
		return "coinjoin"
	case PurposeChange:
		return "change"
	default:
		return "unknown"
	}
}

// Utxo is an unspent output controlled by the wallet.
type Utxo struct {
	OutPoint      wire.OutPoint
	Value         btcutil.Amount
	PkScript      []byte
	Confirmations int64
}

// TxOut returns the output as a wire.TxOut.
func (u *Utxo) TxOut() *wire.TxOut {
	return wire.NewTxOut(int64(u.Value), u.PkScript)
}

// Wallet is the wallet and chain backend used by makers and takers.
type Wallet interface {
	// Params returns the network the wallet operates on.
	Params() *chaincfg.Params

	// ListUnspent returns spendable outputs that are not leased, in
	// ascending value order.
	ListUnspent(ctx context.Context) ([]*Utxo, error)

	// NewAddress returns a fresh address for purpose.
	NewAddress(ctx context.Context, purpose Purpose) (btcutil.Address,
		error)

	// SignInputs signs and finalizes the listed inputs of packet, which
	// must carry their witness UTXOs.  Other inputs are left untouched.
	SignInputs(ctx context.Context, packet *psbt.Packet,
		inputs []int) (*psbt.Packet, error)

	// EstimateFeeRate returns the fee rate per kvB for a transaction to
	// confirm soon.
	EstimateFeeRate(ctx context.Context) (btcutil.Amount, error)

	// Broadcast publishes a fully signed transaction.
	Broadcast(ctx context.Context, tx *wire.MsgTx) (*chainhash.Hash,
		error)

	// FetchTxOut returns an unspent output of any owner, or
	// ErrOutputNotFound.
	FetchTxOut(ctx context.Context, op wire.OutPoint) (*wire.TxOut, error)

	// CommitmentKey returns the private key controlling a wallet output.
	CommitmentKey(ctx context.Context, op wire.OutPoint) (
		*btcec.PrivateKey, error)

	// LeaseOutput locks an output to id for duration.
	LeaseOutput(ctx context.Context, id wtxmgr.LockID, op wire.OutPoint,
		duration time.Duration) (time.Time, error)

	// ReleaseOutput unlocks an output previously leased to id.
	ReleaseOutput(ctx context.Context, id wtxmgr.LockID,
		op wire.OutPoint) error

	// LeasedOutputs returns the active leases.
	LeasedOutputs(ctx context.Context) ([]*wtxmgr.LockedOutput, error)
}

// Balance returns the total value of the wallet's spendable outputs.
func Balance(ctx context.Context, w Wallet) (btcutil.Amount, error) {
	utxos, err := w.ListUnspent(ctx)
	if err != nil {
		return 0, err
	}

	var total btcutil.Amount
	for _, u := range utxos {
		total += u.Value
	}
	return total, nil
}

// sortUtxos orders utxos by ascending value, then outpoint.
func sortUtxos(utxos []*Utxo) {
	sort.Slice(utxos, func(i, j int) bool {
		if utxos[i].Value != utxos[j].Value {
			return utxos[i].Value < utxos[j].Value
		}
		return outPointLess(&utxos[i].OutPoint, &utxos[j].OutPoint)
	})
}

func outPointLess(a, b *wire.OutPoint) bool {
	if a.Hash != b.Hash {
		return a.Hash.String() < b.Hash.String()
	}
	return a.Index < b.Index
}
