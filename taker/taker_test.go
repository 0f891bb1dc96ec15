// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package taker

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcjoin/chain"
	"github.com/btcsuite/btcjoin/coinjoin"
	"github.com/btcsuite/btcjoin/commitstore"
	"github.com/btcsuite/btcjoin/keyring"
	"github.com/btcsuite/btcjoin/maker"
	"github.com/btcsuite/btcjoin/podle"
	"github.com/btcsuite/btcjoin/protocol"
	"github.com/btcsuite/btcjoin/relay"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/lightningnetwork/lnd/ticker"
	"github.com/stretchr/testify/require"
)

const (
	testAmount  = btcutil.Amount(100000)
	testTxFee   = btcutil.Amount(1000)
	waitTimeout = 5 * time.Second
)

// testNet is an in-memory relay and chain shared by makers and a taker.
type testNet struct {
	t     *testing.T
	ctx   context.Context
	chain *chain.MemChain
	relay *relay.MemRelay
}

func newTestNet(t *testing.T) *testNet {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	return &testNet{
		t:     t,
		ctx:   ctx,
		chain: chain.NewMemChain(&chaincfg.RegressionNetParams),
		relay: relay.NewMemRelay(),
	}
}

type testMaker struct {
	*maker.Maker
	wallet *chain.MemWallet
	store  *commitstore.MemStore
}

// startMaker runs a maker charging an absolute fee and waits until its
// offer is published.
func (n *testNet) startMaker(fee btcutil.Amount,
	values ...btcutil.Amount) *testMaker {

	n.t.Helper()

	w := chain.NewMemWallet(n.chain)
	_, err := w.Fund(values...)
	require.NoError(n.t, err)

	k, err := keyring.Generate()
	require.NoError(n.t, err)

	store := commitstore.NewMemStore()
	m, err := maker.New(&maker.Config{
		Identity:        k,
		Relay:           n.relay,
		Wallet:          w,
		Commitments:     store,
		AbsFee:          fn.Some(fee),
		MinSize:         10000,
		TxFee:           testTxFee,
		RepublishTicker: ticker.NewForce(time.Hour),
	})
	require.NoError(n.t, err)

	ctx, cancel := context.WithCancel(n.ctx)
	done := make(chan error, 1)
	go func() {
		done <- m.Run(ctx)
	}()
	n.t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			require.NoError(n.t, err)
		case <-time.After(waitTimeout):
			n.t.Error("maker did not stop")
		}
	})

	require.Eventually(n.t, func() bool {
		return m.State() == maker.StateAwaitingFill
	}, waitTimeout, 10*time.Millisecond)

	return &testMaker{Maker: m, wallet: w, store: store}
}

// newTaker returns a taker funded with values.
func (n *testNet) newTaker(modify func(*Config),
	values ...btcutil.Amount) (*Taker, *chain.MemWallet) {

	n.t.Helper()

	w := chain.NewMemWallet(n.chain)
	_, err := w.Fund(values...)
	require.NoError(n.t, err)

	cfg := &Config{
		Relay:            n.relay,
		Wallet:           w,
		OfferTimeout:     200 * time.Millisecond,
		InputTimeout:     waitTimeout,
		SignatureTimeout: waitTimeout,
	}
	if modify != nil {
		modify(cfg)
	}
	tk, err := New(cfg)
	require.NoError(n.t, err)
	return tk, w
}

func requireNoLeases(t *testing.T, w chain.Wallet) {
	t.Helper()

	require.Eventually(t, func() bool {
		leases, err := w.LeasedOutputs(context.Background())
		return err == nil && len(leases) == 0
	}, waitTimeout, 10*time.Millisecond)
}

func requirePeerError(t *testing.T, err error, code protocol.ErrorCode,
	peers ...protocol.PeerID) {

	t.Helper()

	var perr protocol.Error
	require.True(t, errors.As(err, &perr), "got %v", err)
	require.Equal(t, code, perr.ErrorCode, "got %v", err)
	require.ElementsMatch(t, peers, perr.Peers)
}

// TestSendSuccess runs a coinjoin with two makers end to end.
func TestSendSuccess(t *testing.T) {
	t.Parallel()

	n := newTestNet(t)
	m1 := n.startMaker(500, 150000)
	m2 := n.startMaker(700, 150000)
	tk, w := n.newTaker(nil, 200000)

	res, err := tk.Send(n.ctx, testAmount, 2)
	require.NoError(t, err)
	require.Len(t, res.Makers, 2)
	require.Equal(t, btcutil.Amount(1200), res.Summary.CJFees)
	require.Equal(t, btcutil.Amount(2000), res.Summary.MiningFee)
	require.Equal(t, btcutil.Amount(200000-100000-1200),
		res.Summary.TakerChange)

	// The transaction is on chain: every participant holds the amount.
	txs := n.chain.Transactions()
	require.Equal(t, res.TxID, txs[len(txs)-1].TxHash())
	for _, wallet := range []*chain.MemWallet{w, m1.wallet, m2.wallet} {
		utxos, err := wallet.ListUnspent(n.ctx)
		require.NoError(t, err)

		var found bool
		for _, u := range utxos {
			found = found || u.Value == testAmount
		}
		require.True(t, found)
	}

	balance, err := chain.Balance(n.ctx, m1.wallet)
	require.NoError(t, err)
	require.Equal(t, btcutil.Amount(150000-1000+500), balance)

	requireNoLeases(t, w)
	requireNoLeases(t, m1.wallet)
	requireNoLeases(t, m2.wallet)
}

// TestSendMakerNeverSigns checks that a maker whose signature never
// arrives aborts the session without broadcasting.
func TestSendMakerNeverSigns(t *testing.T) {
	t.Parallel()

	n := newTestNet(t)
	n.startMaker(500, 150000)
	silent := n.startMaker(600, 150000)
	n.relay.SetDropFilter(func(env *protocol.Envelope) bool {
		return env.Kind == protocol.KindSignedTx &&
			env.PubKey == silent.PeerID()
	})

	tk, w := n.newTaker(func(cfg *Config) {
		cfg.SignatureTimeout = 500 * time.Millisecond
	}, 200000)

	before := len(n.chain.Transactions())
	_, err := tk.Send(n.ctx, testAmount, 2)
	requirePeerError(t, err, protocol.ErrPeerTimeout, silent.PeerID())
	require.Len(t, n.chain.Transactions(), before)

	requireNoLeases(t, w)
	balance, err := chain.Balance(n.ctx, w)
	require.NoError(t, err)
	require.Equal(t, btcutil.Amount(200000), balance)
}

// TestSendMakerNeverAnswers checks that the default policy aborts when a
// maker does not send its inputs.
func TestSendMakerNeverAnswers(t *testing.T) {
	t.Parallel()

	n := newTestNet(t)
	n.startMaker(500, 150000)
	silent := n.startMaker(600, 150000)
	n.relay.SetDropFilter(func(env *protocol.Envelope) bool {
		return env.Kind == protocol.KindMakerInput &&
			env.PubKey == silent.PeerID()
	})

	tk, w := n.newTaker(func(cfg *Config) {
		cfg.InputTimeout = 300 * time.Millisecond
	}, 200000)

	_, err := tk.Send(n.ctx, testAmount, 2)
	requirePeerError(t, err, protocol.ErrPeerTimeout, silent.PeerID())
	requireNoLeases(t, w)
}

// TestSendReplacesUnresponsiveMaker checks that the replace policy engages
// the next cheapest offer.
func TestSendReplacesUnresponsiveMaker(t *testing.T) {
	t.Parallel()

	n := newTestNet(t)
	silent := n.startMaker(100, 150000)
	m2 := n.startMaker(200, 150000)
	m3 := n.startMaker(300, 150000)
	n.relay.SetDropFilter(func(env *protocol.Envelope) bool {
		return env.Kind == protocol.KindMakerInput &&
			env.PubKey == silent.PeerID()
	})

	tk, _ := n.newTaker(func(cfg *Config) {
		cfg.InputTimeout = 300 * time.Millisecond
		cfg.Policy = ReplacePolicy{}
	}, 200000)

	res, err := tk.Send(n.ctx, testAmount, 2)
	require.NoError(t, err)

	var makers []protocol.PeerID
	for _, rec := range res.Makers {
		makers = append(makers, rec.Maker)
	}
	require.ElementsMatch(t,
		[]protocol.PeerID{m2.PeerID(), m3.PeerID()}, makers)
	require.Equal(t, btcutil.Amount(500), res.Summary.CJFees)
}

// TestSendCommitmentReuseRejected checks that a maker that saw the
// taker's commitment before ignores the fill.
func TestSendCommitmentReuseRejected(t *testing.T) {
	t.Parallel()

	n := newTestNet(t)
	m := n.startMaker(500, 150000)
	tk, w := n.newTaker(func(cfg *Config) {
		cfg.InputTimeout = 300 * time.Millisecond
	}, 200000)

	utxos, err := w.ListUnspent(n.ctx)
	require.NoError(t, err)
	priv, err := w.CommitmentKey(n.ctx, utxos[0].OutPoint)
	require.NoError(t, err)
	proof, err := podle.Generate(priv, 0)
	require.NoError(t, err)
	require.NoError(t, m.store.Insert(n.ctx, proof.Commitment(),
		commitstore.Record{OfferID: 1, FirstSeen: time.Now()}))

	_, err = tk.Send(n.ctx, testAmount, 1)
	requirePeerError(t, err, protocol.ErrPeerTimeout, m.PeerID())
	require.Equal(t, 1, m.store.Len())
	requireNoLeases(t, w)
}

// TestSendSkipsUsedCommitments checks that the taker never reveals a
// commitment it recorded as used.
func TestSendSkipsUsedCommitments(t *testing.T) {
	t.Parallel()

	n := newTestNet(t)
	m := n.startMaker(500, 150000)

	used := commitstore.NewMemStore()
	tk, w := n.newTaker(func(cfg *Config) {
		cfg.Commitments = used
	}, 200000)

	utxos, err := w.ListUnspent(n.ctx)
	require.NoError(t, err)
	priv, err := w.CommitmentKey(n.ctx, utxos[0].OutPoint)
	require.NoError(t, err)

	commitment := func(index uint8) podle.Commitment {
		proof, err := podle.Generate(priv, index)
		require.NoError(t, err)
		return proof.Commitment()
	}
	require.NoError(t, used.Insert(n.ctx, commitment(0),
		commitstore.Record{OfferID: 1, FirstSeen: time.Now()}))

	_, err = tk.Send(n.ctx, testAmount, 1)
	require.NoError(t, err)

	seen, err := m.store.Contains(n.ctx, commitment(1))
	require.NoError(t, err)
	require.True(t, seen)
	seen, err = m.store.Contains(n.ctx, commitment(0))
	require.NoError(t, err)
	require.False(t, seen)
	require.Equal(t, 2, used.Len())
}

// TestSendOutOfBounds checks that makers unable to serve the amount are
// never filled.
func TestSendOutOfBounds(t *testing.T) {
	t.Parallel()

	n := newTestNet(t)
	m := n.startMaker(500, 50000)
	tk, _ := n.newTaker(nil, 200000)

	_, err := tk.Send(n.ctx, testAmount, 1)
	require.ErrorIs(t, err, ErrNotEnoughMakers)
	require.Zero(t, m.store.Len())
}

// TestSendMiningFeeLimit checks that a transaction exceeding the taker's
// mining fee limit is never distributed.
func TestSendMiningFeeLimit(t *testing.T) {
	t.Parallel()

	n := newTestNet(t)
	n.startMaker(500, 150000)
	n.chain.SetFeeRate(20000)

	tk, w := n.newTaker(func(cfg *Config) {
		cfg.Limits.MaxMiningFee = 1000
	}, 200000)

	_, err := tk.Send(n.ctx, testAmount, 1)
	require.True(t, protocol.IsError(err, protocol.ErrValueMismatch),
		"got %v", err)
	requireNoLeases(t, w)
}

func TestSendInsufficientFunds(t *testing.T) {
	t.Parallel()

	n := newTestNet(t)
	tk, _ := n.newTaker(nil, 50000)

	_, err := tk.Send(n.ctx, testAmount, 1)
	require.ErrorIs(t, err, ErrInsufficientFunds)

	_, err = tk.Send(n.ctx, 100, 1)
	require.ErrorIs(t, err, coinjoin.ErrAmountTooSmall)

	_, err = tk.Send(n.ctx, testAmount, 0)
	require.Error(t, err)
}

// cheater answers fills honestly but returns invalid signatures.
type cheater struct {
	codec  *protocol.Codec
	wallet *chain.MemWallet
	utxo   wire.OutPoint
}

func (n *testNet) startCheater(fee btcutil.Amount) *cheater {
	n.t.Helper()

	k, err := keyring.Generate()
	require.NoError(n.t, err)

	c := &cheater{
		codec:  protocol.NewCodec(k),
		wallet: chain.NewMemWallet(n.chain),
	}
	ops, err := c.wallet.Fund(150000)
	require.NoError(n.t, err)
	c.utxo = ops[0]

	sub, err := n.relay.Subscribe(n.ctx, relay.Filter{
		Kinds: []protocol.Kind{
			protocol.KindFill, protocol.KindUnsignedTx,
		},
		Recipients: []protocol.PeerID{c.codec.PeerID()},
	})
	require.NoError(n.t, err)

	offer := &protocol.AbsOffer{
		OfferTerms: protocol.OfferTerms{
			OfferID: 1,
			MinSize: 10000,
			MaxSize: 149000,
			TxFee:   testTxFee,
		},
		CJFee: fee,
	}
	env, err := c.codec.Encode(offer, "")
	require.NoError(n.t, err)
	require.NoError(n.t, n.relay.Publish(n.ctx, env))

	go func() {
		for env := range sub.Events() {
			_ = c.answer(n, env)
		}
	}()

	return c
}

func (c *cheater) answer(n *testNet, env *protocol.Envelope) error {
	msg, err := c.codec.Decode(env)
	if err != nil {
		return err
	}

	var reply protocol.Message
	switch msg := msg.(type) {
	case *protocol.Fill:
		cj, err := c.wallet.NewAddress(n.ctx, chain.PurposeCoinJoin)
		if err != nil {
			return err
		}
		change, err := c.wallet.NewAddress(n.ctx, chain.PurposeChange)
		if err != nil {
			return err
		}
		reply = &protocol.MakerInput{
			OfferID:         msg.OfferID,
			UTXOs:           []protocol.OutPoint{{OutPoint: c.utxo}},
			CoinJoinAddress: cj.EncodeAddress(),
			ChangeAddress:   change.EncodeAddress(),
		}

	case *protocol.UnsignedTx:
		packet, err := msg.Packet()
		if err != nil {
			return err
		}
		indices, err := coinjoin.InputIndices(
			packet.UnsignedTx, []wire.OutPoint{c.utxo},
		)
		if err != nil {
			return err
		}
		if err := forgeWitness(packet, indices[0]); err != nil {
			return err
		}
		b64, err := protocol.EncodePacket(packet)
		if err != nil {
			return err
		}
		reply = &protocol.SignedTx{OfferID: msg.OfferID, PSBT: b64}

	default:
		return nil
	}

	out, err := c.codec.Encode(reply, env.PubKey)
	if err != nil {
		return err
	}
	return n.relay.Publish(n.ctx, out)
}

// forgeWitness sets a well formed witness carrying a signature by an
// unrelated key.
func forgeWitness(packet *psbt.Packet, i int) error {
	k, err := keyring.Generate()
	if err != nil {
		return err
	}
	sig, err := k.SignDigest([32]byte{1})
	if err != nil {
		return err
	}
	witness := wire.TxWitness{
		append(sig, byte(txscript.SigHashAll)),
		k.PubKey().SerializeCompressed(),
	}

	var buf bytes.Buffer
	if err := psbt.WriteTxWitness(&buf, witness); err != nil {
		return err
	}
	packet.Inputs[i].FinalScriptWitness = buf.Bytes()
	return nil
}

// TestSendBadSignature checks that a maker returning invalid signatures is
// named in the error and nothing is broadcast.
func TestSendBadSignature(t *testing.T) {
	t.Parallel()

	n := newTestNet(t)
	n.startMaker(500, 150000)
	c := n.startCheater(1)
	tk, w := n.newTaker(nil, 200000)

	before := len(n.chain.Transactions())
	_, err := tk.Send(n.ctx, testAmount, 2)
	requirePeerError(t, err, protocol.ErrBadSignature, c.codec.PeerID())
	require.Len(t, n.chain.Transactions(), before)
	requireNoLeases(t, w)
}
