// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/wallet/txrules"
	"github.com/btcsuite/btcwallet/wtxmgr"
)

// RPCConfig describes how to reach a bitcoind-compatible wallet.
type RPCConfig struct {
	// Host is the host:port of the RPC server.
	Host string

	// User and Pass are the RPC credentials.
	User string
	Pass string

	// Wallet optionally names the wallet to use on a multiwallet node.
	Wallet string

	// DisableTLS is set for plain HTTP connections.
	DisableTLS bool

	// ConfTarget is the confirmation target for fee estimation.
	ConfTarget int64

	// MinConf is the confirmation count below which outputs are not
	// spent.
	MinConf int
}

// RPCWallet is a Wallet backed by the JSON-RPC interface of bitcoind or
// btcwallet.  Leases are tracked locally and mirrored with lockunspent so the
// node does not spend leased outputs either.
type RPCWallet struct {
	*OutputLeaser

	client *rpcclient.Client
	params *chaincfg.Params
	cfg    *RPCConfig
}

// A compile-time assertion to ensure RPCWallet implements Wallet.
var _ Wallet = (*RPCWallet)(nil)

// NewRPCWallet connects to the node described by cfg.
func NewRPCWallet(cfg *RPCConfig, params *chaincfg.Params) (*RPCWallet,
	error) {

	host := cfg.Host
	if cfg.Wallet != "" {
		host += "/wallet/" + cfg.Wallet
	}

	client, err := rpcclient.New(&rpcclient.ConnConfig{
		Host:         host,
		User:         cfg.User,
		Pass:         cfg.Pass,
		DisableTLS:   cfg.DisableTLS,
		HTTPPostMode: true,
	}, nil)
	if err != nil {
		return nil, err
	}

	if cfg.ConfTarget == 0 {
		cfg.ConfTarget = 6
	}
	if cfg.MinConf == 0 {
		cfg.MinConf = 1
	}

	return &RPCWallet{
		OutputLeaser: NewOutputLeaser(),
		client:       client,
		params:       params,
		cfg:          cfg,
	}, nil
}

// Stop shuts down the RPC client.
func (w *RPCWallet) Stop() {
	w.client.Shutdown()
}

// Params returns the network the wallet operates on.
func (w *RPCWallet) Params() *chaincfg.Params {
	return w.params
}

// ListUnspent returns spendable unleased outputs.
func (w *RPCWallet) ListUnspent(_ context.Context) ([]*Utxo, error) {
	results, err := w.client.ListUnspentMinMax(w.cfg.MinConf, 9999999)
	if err != nil {
		return nil, err
	}

	utxos := make([]*Utxo, 0, len(results))
	for _, r := range results {
		if !r.Spendable {
			continue
		}

		hash, err := chainhash.NewHashFromStr(r.TxID)
		if err != nil {
			return nil, err
		}
		pkScript, err := hex.DecodeString(r.ScriptPubKey)
		if err != nil {
			return nil, err
		}
		value, err := btcutil.NewAmount(r.Amount)
		if err != nil {
			return nil, err
		}

		utxos = append(utxos, &Utxo{
			OutPoint:      wire.OutPoint{Hash: *hash, Index: r.Vout},
			Value:         value,
			PkScript:      pkScript,
			Confirmations: r.Confirmations,
		})
	}

	utxos = w.filterLeased(utxos)
	sortUtxos(utxos)
	return utxos, nil
}

// NewAddress returns a fresh receive or change address.
func (w *RPCWallet) NewAddress(_ context.Context,
	purpose Purpose) (btcutil.Address, error) {

	if purpose == PurposeChange {
		return w.client.GetRawChangeAddress("")
	}
	return w.client.GetNewAddress("")
}

// SignInputs asks the node to sign the packet and copies the finalized
// scripts of the listed inputs into packet.
func (w *RPCWallet) SignInputs(_ context.Context, packet *psbt.Packet,
	inputs []int) (*psbt.Packet, error) {

	b64, err := packet.B64Encode()
	if err != nil {
		return nil, err
	}

	sign := true
	res, err := w.client.WalletProcessPsbt(
		b64, &sign, rpcclient.SigHashAll, nil,
	)
	if err != nil {
		return nil, err
	}

	signed, err := psbt.NewFromRawBytes(
		bytes.NewReader([]byte(res.Psbt)), true,
	)
	if err != nil {
		return nil, err
	}
	if len(signed.Inputs) != len(packet.Inputs) {
		return nil, fmt.Errorf("node returned %d inputs, want %d",
			len(signed.Inputs), len(packet.Inputs))
	}

	for _, i := range inputs {
		if i < 0 || i >= len(packet.Inputs) {
			return nil, fmt.Errorf("input %d out of range", i)
		}

		in := &signed.Inputs[i]
		if in.FinalScriptWitness == nil && in.FinalScriptSig == nil {
			if err := psbt.Finalize(signed, i); err != nil {
				return nil, fmt.Errorf("%w: input %d: %v",
					ErrNotOwned, i, err)
			}
		}
		packet.Inputs[i].FinalScriptSig = in.FinalScriptSig
		packet.Inputs[i].FinalScriptWitness = in.FinalScriptWitness
	}

	return packet, nil
}

// EstimateFeeRate returns the node's smart fee estimate, falling back to the
// default relay fee when the node has none.
func (w *RPCWallet) EstimateFeeRate(_ context.Context) (btcutil.Amount,
	error) {

	mode := btcjson.EstimateModeConservative
	res, err := w.client.EstimateSmartFee(w.cfg.ConfTarget, &mode)
	if err != nil {
		return 0, err
	}
	if res.FeeRate == nil {
		log.Debugf("No fee estimate available, using %v",
			txrules.DefaultRelayFeePerKb)
		return txrules.DefaultRelayFeePerKb, nil
	}

	rate, err := btcutil.NewAmount(*res.FeeRate)
	if err != nil {
		return 0, err
	}
	if rate < txrules.DefaultRelayFeePerKb {
		rate = txrules.DefaultRelayFeePerKb
	}
	return rate, nil
}

// Broadcast sends tx to the node.
func (w *RPCWallet) Broadcast(_ context.Context,
	tx *wire.MsgTx) (*chainhash.Hash, error) {

	return w.client.SendRawTransaction(tx, false)
}

// FetchTxOut looks up an unspent output, including the mempool.
func (w *RPCWallet) FetchTxOut(_ context.Context,
	op wire.OutPoint) (*wire.TxOut, error) {

	res, err := w.client.GetTxOut(&op.Hash, op.Index, true)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, ErrOutputNotFound
	}

	pkScript, err := hex.DecodeString(res.ScriptPubKey.Hex)
	if err != nil {
		return nil, err
	}
	value, err := btcutil.NewAmount(res.Value)
	if err != nil {
		return nil, err
	}
	return wire.NewTxOut(int64(value), pkScript), nil
}

// CommitmentKey dumps the private key of the address paid by op.  Wallets
// that cannot export keys return an error.
func (w *RPCWallet) CommitmentKey(ctx context.Context,
	op wire.OutPoint) (*btcec.PrivateKey, error) {

	out, err := w.FetchTxOut(ctx, op)
	if err != nil {
		return nil, err
	}

	_, addrs, _, err := txscript.ExtractPkScriptAddrs(
		out.PkScript, w.params,
	)
	if err != nil {
		return nil, err
	}
	if len(addrs) != 1 {
		return nil, ErrNotOwned
	}

	wif, err := w.client.DumpPrivKey(addrs[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotOwned, err)
	}
	return wif.PrivKey, nil
}

// LeaseOutput leases op locally and locks it on the node.
func (w *RPCWallet) LeaseOutput(ctx context.Context, id wtxmgr.LockID,
	op wire.OutPoint, duration time.Duration) (time.Time, error) {

	expiration, err := w.OutputLeaser.LeaseOutput(ctx, id, op, duration)
	if err != nil {
		return expiration, err
	}

	if err := w.client.LockUnspent(false, []*wire.OutPoint{&op}); err != nil {
		log.Warnf("Unable to lock %v on node: %v", op, err)
	}
	return expiration, nil
}

// ReleaseOutput releases op locally and unlocks it on the node.
func (w *RPCWallet) ReleaseOutput(ctx context.Context, id wtxmgr.LockID,
	op wire.OutPoint) error {

	if err := w.OutputLeaser.ReleaseOutput(ctx, id, op); err != nil {
		return err
	}

	if err := w.client.LockUnspent(true, []*wire.OutPoint{&op}); err != nil {
		log.Warnf("Unable to unlock %v on node: %v", op, err)
	}
	return nil
}
