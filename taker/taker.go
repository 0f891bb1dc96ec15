// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package taker drives a coinjoin from the initiating side: it picks makers
// from the offers on the relay, fills them, assembles the transaction from
// their inputs and broadcasts it once every maker has signed.
package taker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcjoin/chain"
	"github.com/btcsuite/btcjoin/coinjoin"
	"github.com/btcsuite/btcjoin/commitstore"
	"github.com/btcsuite/btcjoin/keyring"
	"github.com/btcsuite/btcjoin/podle"
	"github.com/btcsuite/btcjoin/protocol"
	"github.com/btcsuite/btcjoin/relay"
	"github.com/btcsuite/btcwallet/wallet/txrules"
	"github.com/btcsuite/btcwallet/wallet/txsizes"
	"github.com/btcsuite/btcwallet/wtxmgr"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultOfferTimeout is how long offers are collected.
	DefaultOfferTimeout = 5 * time.Second

	// DefaultInputTimeout bounds the wait for the makers' inputs.
	DefaultInputTimeout = 60 * time.Second

	// DefaultSignatureTimeout bounds the wait for the makers'
	// signatures.
	DefaultSignatureTimeout = 300 * time.Second

	// DefaultLeaseDuration is how long the taker's inputs stay reserved.
	DefaultLeaseDuration = 10 * time.Minute

	// releaseTimeout bounds the release of leases when a send ends.
	releaseTimeout = 5 * time.Second

	// p2wpkhScriptSize is the size of the output scripts assumed when
	// estimating the fee before the makers' outputs are known.
	p2wpkhScriptSize = 22
)

var (
	// ErrInsufficientFunds is returned when the wallet cannot fund the
	// amount and its fees.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrSubscriptionClosed is returned when the relay ends the taker's
	// subscription.
	ErrSubscriptionClosed = errors.New("relay subscription closed")
)

// Config holds the collaborators and limits of a taker.
type Config struct {
	// Relay carries the protocol messages.
	Relay relay.Relay

	// Wallet funds, signs and broadcasts the coinjoin.
	Wallet chain.Wallet

	// Commitments records the commitments this taker revealed so they
	// are never used twice.  Optional.
	Commitments commitstore.Store

	// Limits bound the fees the taker accepts.
	Limits coinjoin.Limits

	// OfferTimeout, InputTimeout and SignatureTimeout bound each wait.
	OfferTimeout     time.Duration
	InputTimeout     time.Duration
	SignatureTimeout time.Duration

	// LeaseDuration is how long the taker's inputs stay reserved.
	LeaseDuration time.Duration

	// Policy decides what happens to makers that do not send their
	// inputs in time.  Defaults to AbortPolicy.
	Policy TimeoutPolicy

	// MaxCommitmentIndex is the highest generator index used for
	// commitments.
	MaxCommitmentIndex uint8

	// NewIdentity returns the identity of a session.  Defaults to a
	// fresh keyring per session.
	NewIdentity func() (protocol.Crypter, error)
}

// Result describes a broadcast coinjoin.
type Result struct {
	TxID    chainhash.Hash
	Tx      *wire.MsgTx
	Summary *coinjoin.Summary
	Makers  []*OfferRecord
}

// Taker runs coinjoins as the initiating party.
type Taker struct {
	cfg *Config
}

// New validates cfg and returns a taker.
func New(cfg *Config) (*Taker, error) {
	if cfg.Relay == nil || cfg.Wallet == nil {
		return nil, errors.New("taker config missing collaborator")
	}

	if cfg.OfferTimeout == 0 {
		cfg.OfferTimeout = DefaultOfferTimeout
	}
	if cfg.InputTimeout == 0 {
		cfg.InputTimeout = DefaultInputTimeout
	}
	if cfg.SignatureTimeout == 0 {
		cfg.SignatureTimeout = DefaultSignatureTimeout
	}
	if cfg.LeaseDuration == 0 {
		cfg.LeaseDuration = DefaultLeaseDuration
	}
	if cfg.Policy == nil {
		cfg.Policy = AbortPolicy{}
	}
	if cfg.MaxCommitmentIndex == 0 {
		cfg.MaxCommitmentIndex = podle.DefaultMaxIndex
	}
	if cfg.NewIdentity == nil {
		cfg.NewIdentity = func() (protocol.Crypter, error) {
			return keyring.Generate()
		}
	}

	return &Taker{cfg: cfg}, nil
}

// CollectOffers returns the offers currently on the relay.
func (t *Taker) CollectOffers(ctx context.Context) ([]*OfferRecord, error) {
	id, err := t.cfg.NewIdentity()
	if err != nil {
		return nil, err
	}
	return CollectOffers(
		ctx, t.cfg.Relay, protocol.NewCodec(id), t.cfg.OfferTimeout,
	)
}

// sendSession is the state of one Send call.
type sendSession struct {
	*Taker

	codec   *protocol.Codec
	amount  btcutil.Amount
	feeRate btcutil.Amount
	inbox   *relay.Subscription
	session Session

	lockID       wtxmgr.LockID
	inputs       []*coinjoin.Input
	cjScript     []byte
	changeScript []byte
	commitments  *commitmentSource

	// engaged are the makers a fill was sent to, contributions those
	// that answered with acceptable inputs.
	engaged       map[protocol.PeerID]*OfferRecord
	contributions map[protocol.PeerID]*coinjoin.MakerContribution
}

// Send runs one coinjoin of amount with makerCount makers and broadcasts
// it.  A maker that disappears yields ErrPeerTimeout listing the makers
// that did not answer, a maker that misbehaves ErrValueMismatch or
// ErrBadSignature naming it.  The taker's inputs are released on return.
func (t *Taker) Send(ctx context.Context, amount btcutil.Amount,
	makerCount int) (*Result, error) {

	if makerCount < 1 {
		return nil, fmt.Errorf("invalid maker count %d", makerCount)
	}
	if amount < protocol.DustThreshold {
		return nil, coinjoin.ErrAmountTooSmall
	}

	id, err := t.cfg.NewIdentity()
	if err != nil {
		return nil, err
	}
	s := &sendSession{
		Taker:         t,
		codec:         protocol.NewCodec(id),
		amount:        amount,
		session:       Session{Amount: amount},
		engaged:       make(map[protocol.PeerID]*OfferRecord),
		contributions: make(map[protocol.PeerID]*coinjoin.MakerContribution),
	}

	res, err := s.run(ctx, makerCount)
	if err != nil {
		s.session.Phase = PhaseAborted
		log.Errorf("Coinjoin of %v aborted: %v", amount, err)
		return nil, err
	}
	s.session.Phase = PhaseDone
	return res, nil
}

func (s *sendSession) run(ctx context.Context, makerCount int) (*Result,
	error) {

	utxos, err := s.cfg.Wallet.ListUnspent(ctx)
	if err != nil {
		return nil, err
	}
	var balance btcutil.Amount
	for _, u := range utxos {
		balance += u.Value
	}
	if balance < s.amount {
		return nil, fmt.Errorf("%w: balance %v, amount %v",
			ErrInsufficientFunds, balance, s.amount)
	}

	s.feeRate, err = s.cfg.Wallet.EstimateFeeRate(ctx)
	if err != nil {
		return nil, err
	}

	// Subscribe before any fill goes out so no answer is missed.
	s.inbox, err = s.cfg.Relay.Subscribe(ctx, relay.Filter{
		Kinds: []protocol.Kind{
			protocol.KindMakerInput, protocol.KindSignedTx,
		},
		Recipients: []protocol.PeerID{s.codec.PeerID()},
	})
	if err != nil {
		return nil, err
	}
	defer s.inbox.Close()

	s.session.Phase = PhaseCollectingOffers
	offers, err := CollectOffers(
		ctx, s.cfg.Relay, s.codec, s.cfg.OfferTimeout,
	)
	if err != nil {
		return nil, err
	}
	ranked := RankOffers(offers, s.amount, s.cfg.Limits)
	if len(ranked) < makerCount {
		return nil, fmt.Errorf("%w: want %d, found %d of %d offers",
			ErrNotEnoughMakers, makerCount, len(ranked), len(offers))
	}
	s.session.Selected = ranked[:makerCount]
	s.session.Reserve = ranked[makerCount:]

	if err := s.selectInputs(ctx, utxos); err != nil {
		return nil, err
	}
	defer s.releaseInputs()

	preferred := make([]wire.OutPoint, len(s.inputs))
	for i, in := range s.inputs {
		preferred[i] = in.OutPoint
	}
	s.commitments = newCommitmentSource(
		s.cfg.Wallet, s.cfg.Commitments, s.cfg.MaxCommitmentIndex,
		preferred, utxos,
	)

	if err := s.fill(ctx, s.session.Selected); err != nil {
		return nil, err
	}
	if err := s.collectInputs(ctx); err != nil {
		return nil, err
	}

	packet, summary, err := s.build()
	if err != nil {
		return nil, err
	}
	if err := s.distribute(ctx, packet); err != nil {
		return nil, err
	}

	agg, err := s.collectSignatures(ctx, packet, summary)
	if err != nil {
		return nil, err
	}

	s.session.Phase = PhaseBroadcast
	if err := s.signOwnInputs(ctx, agg.Packet(), summary); err != nil {
		return nil, err
	}
	tx, err := agg.Finalize()
	if err != nil {
		return nil, err
	}
	txid, err := s.cfg.Wallet.Broadcast(ctx, tx)
	if err != nil {
		return nil, err
	}

	log.Infof("Broadcast coinjoin %v of %v with %d makers, paying %v "+
		"in coinjoin fees and %v in mining fees", txid, s.amount,
		len(s.session.Selected), summary.CJFees,
		summary.TakerMiningFee)

	return &Result{
		TxID:    *txid,
		Tx:      tx,
		Summary: summary,
		Makers:  s.session.Selected,
	}, nil
}

// estimateNeed returns what the taker must spend with n inputs: the
// amount, the selected makers' fees and the taker's share of the mining
// fee, assuming one P2WPKH input per maker.
func (s *sendSession) estimateNeed(n int) btcutil.Amount {
	makers := len(s.session.Selected)

	var cjFees, txFees btcutil.Amount
	for _, rec := range s.session.Selected {
		cjFees += rec.Fee(s.amount)
		txFees += rec.Offer.Terms().TxFee
	}

	outputs := make([]*wire.TxOut, 0, 2*makers+1)
	for i := 0; i < 2*makers+1; i++ {
		outputs = append(outputs, wire.NewTxOut(
			0, make([]byte, p2wpkhScriptSize),
		))
	}
	vsize := txsizes.EstimateVirtualSize(
		0, 0, n+makers, 0, outputs, p2wpkhScriptSize,
	)
	miningFee := txrules.FeeForSerializeSize(s.feeRate, vsize) - txFees
	if miningFee < 0 {
		miningFee = 0
	}

	return s.amount + cjFees + miningFee
}

// selectInputs picks and leases the taker's inputs and derives its
// scripts.
func (s *sendSession) selectInputs(ctx context.Context,
	utxos []*chain.Utxo) error {

	var (
		selected []*chain.Utxo
		total    btcutil.Amount
	)
	for _, u := range utxos {
		selected = append(selected, u)
		total += u.Value
		if total >= s.estimateNeed(len(selected)) {
			break
		}
	}
	if need := s.estimateNeed(len(selected)); total < need {
		return fmt.Errorf("%w: have %v, need %v", ErrInsufficientFunds,
			total, need)
	}

	var err error
	s.lockID, err = chain.NewLockID()
	if err != nil {
		return err
	}
	for _, u := range selected {
		_, err := s.cfg.Wallet.LeaseOutput(
			ctx, s.lockID, u.OutPoint, s.cfg.LeaseDuration,
		)
		if err != nil {
			s.releaseInputs()
			return err
		}
		s.inputs = append(s.inputs, &coinjoin.Input{
			OutPoint: u.OutPoint,
			PrevOut:  u.TxOut(),
		})
	}

	script := func(purpose chain.Purpose) ([]byte, error) {
		addr, err := s.cfg.Wallet.NewAddress(ctx, purpose)
		if err != nil {
			return nil, err
		}
		return txscript.PayToAddrScript(addr)
	}
	if s.cjScript, err = script(chain.PurposeCoinJoin); err != nil {
		s.releaseInputs()
		return err
	}
	if s.changeScript, err = script(chain.PurposeChange); err != nil {
		s.releaseInputs()
		return err
	}

	log.Debugf("Selected %d inputs worth %v", len(s.inputs), total)

	return nil
}

// releaseInputs drops the leases on the taker's inputs.
func (s *sendSession) releaseInputs() {
	ctx, cancel := context.WithTimeout(
		context.Background(), releaseTimeout,
	)
	defer cancel()

	for _, in := range s.inputs {
		err := s.cfg.Wallet.ReleaseOutput(ctx, s.lockID, in.OutPoint)
		if err != nil {
			log.Warnf("Unable to release %v: %v", in.OutPoint, err)
		}
	}
}

// send encodes msg for recipient and publishes it.
func (s *sendSession) send(ctx context.Context, msg protocol.Message,
	recipient protocol.PeerID) error {

	env, err := s.codec.Encode(msg, recipient)
	if err != nil {
		return err
	}
	return s.cfg.Relay.Publish(ctx, env)
}

// fill sends a fill with a distinct commitment to each of makers.
func (s *sendSession) fill(ctx context.Context, makers []*OfferRecord) error {
	fills := make([]*protocol.Fill, len(makers))
	for i, rec := range makers {
		oid := rec.Offer.Terms().OfferID
		proof, priv, err := s.commitments.next(ctx, rec.Maker, oid)
		if err != nil {
			return err
		}

		fills[i] = &protocol.Fill{
			OfferID:     oid,
			Amount:      s.amount,
			TakerPubKey: s.codec.PeerID(),
			Commitment:  proof.Commitment(),
			Proof:       proof,
		}
		fills[i].Sign(priv)
		s.engaged[rec.Maker] = rec
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, rec := range makers {
		fill, maker := fills[i], rec.Maker
		g.Go(func() error {
			return s.send(gctx, fill, maker)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	log.Infof("Sent fills of %v to %d makers", s.amount, len(makers))

	return nil
}

// nextEvent waits for the next inbox event, timer expiry or cancellation.
// A nil envelope with a nil error means the timer fired.
func (s *sendSession) nextEvent(ctx context.Context,
	timer *time.Timer) (*protocol.Envelope, error) {

	select {
	case env, ok := <-s.inbox.Events():
		if !ok {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return nil, ErrSubscriptionClosed
		}
		return env, nil

	case <-timer.C:
		return nil, nil

	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// collectInputs waits until every engaged maker sent acceptable inputs,
// consulting the timeout policy when the deadline passes.
func (s *sendSession) collectInputs(ctx context.Context) error {
	s.session.Phase = PhaseCollectingInputs

	timer := time.NewTimer(s.cfg.InputTimeout)
	defer timer.Stop()

	for len(s.contributions) < len(s.engaged) {
		env, err := s.nextEvent(ctx, timer)
		if err != nil {
			return err
		}
		if env != nil {
			s.handleInput(ctx, env)
			continue
		}

		var missing []protocol.PeerID
		s.session.Responded = nil
		for _, rec := range s.session.Selected {
			if _, ok := s.contributions[rec.Maker]; ok {
				s.session.Responded = append(
					s.session.Responded, rec.Maker,
				)
				continue
			}
			missing = append(missing, rec.Maker)
		}

		decision := s.cfg.Policy.OnPeerTimeout(&s.session, missing)
		if decision.Abort {
			return protocol.NewError(protocol.ErrPeerTimeout,
				"makers did not send inputs", nil, missing...)
		}
		if err := s.replace(ctx, missing, decision); err != nil {
			return err
		}
		timer.Reset(s.cfg.InputTimeout)
	}

	return nil
}

// replace drops the missing makers and engages the replacements of
// decision.
func (s *sendSession) replace(ctx context.Context, missing []protocol.PeerID,
	decision Decision) error {

	for _, maker := range missing {
		log.Infof("Dropping unresponsive maker %v", maker.Short())
		delete(s.engaged, maker)
	}

	replacements := append([]*OfferRecord(nil), decision.Replacements...)
	replacing := make(map[protocol.PeerID]struct{}, len(replacements))
	for _, rec := range replacements {
		replacing[rec.Maker] = struct{}{}
	}

	var selected, reserve []*OfferRecord
	for _, rec := range s.session.Selected {
		if _, ok := s.engaged[rec.Maker]; ok {
			selected = append(selected, rec)
		}
	}
	for _, rec := range s.session.Reserve {
		if _, ok := replacing[rec.Maker]; !ok {
			reserve = append(reserve, rec)
		}
	}
	s.session.Selected = append(selected, replacements...)
	s.session.Reserve = reserve

	if len(s.session.Selected) == 0 {
		return protocol.NewError(protocol.ErrPeerTimeout,
			"no maker sent inputs", nil, missing...)
	}
	if len(replacements) == 0 {
		return nil
	}
	s.session.Rounds++
	return s.fill(ctx, replacements)
}

// handleInput accepts a maker's inputs if they come from an engaged maker
// and are usable.  Anything else is dropped.
func (s *sendSession) handleInput(ctx context.Context,
	env *protocol.Envelope) {

	msg, err := s.codec.Decode(env)
	if err != nil {
		log.Debugf("Ignoring event %v from %v: %v", env.ID,
			env.PubKey.Short(), err)
		return
	}
	in, ok := msg.(*protocol.MakerInput)
	if !ok {
		log.Debugf("Ignoring %v from %v while collecting inputs",
			env.Kind, env.PubKey.Short())
		return
	}

	rec, ok := s.engaged[env.PubKey]
	switch {
	case !ok || in.OfferID != rec.Offer.Terms().OfferID:
		log.Debugf("Ignoring inputs from %v: not engaged",
			env.PubKey.Short())
		return

	case s.contributions[env.PubKey] != nil:
		return
	}

	contrib, err := s.contribution(ctx, rec, in)
	if err != nil {
		log.Warnf("Unusable inputs from %v: %v", rec.Maker.Short(), err)
		return
	}
	s.contributions[rec.Maker] = contrib

	log.Debugf("Received %d inputs from %v (%d/%d)", len(contrib.Inputs),
		rec.Maker.Short(), len(s.contributions), len(s.engaged))
}

// contribution resolves a maker's inputs and addresses.
func (s *sendSession) contribution(ctx context.Context, rec *OfferRecord,
	in *protocol.MakerInput) (*coinjoin.MakerContribution, error) {

	if len(in.UTXOs) == 0 {
		return nil, errors.New("no inputs")
	}

	cjAddr, changeAddr, err := in.Addresses(s.cfg.Wallet.Params())
	if err != nil {
		return nil, err
	}
	c := &coinjoin.MakerContribution{
		Maker: rec.Maker,
		CJFee: rec.Fee(s.amount),
		TxFee: rec.Offer.Terms().TxFee,
	}
	if c.CoinJoinScript, err = txscript.PayToAddrScript(cjAddr); err != nil {
		return nil, err
	}
	if c.ChangeScript, err = txscript.PayToAddrScript(changeAddr); err != nil {
		return nil, err
	}

	scripts := [][]byte{s.cjScript, s.changeScript}
	spent := make(map[wire.OutPoint]struct{})
	for _, input := range s.inputs {
		spent[input.OutPoint] = struct{}{}
	}
	for _, other := range s.contributions {
		scripts = append(scripts, other.CoinJoinScript, other.ChangeScript)
		for _, input := range other.Inputs {
			spent[input.OutPoint] = struct{}{}
		}
	}
	for _, script := range scripts {
		if bytes.Equal(script, c.CoinJoinScript) ||
			bytes.Equal(script, c.ChangeScript) {

			return nil, errors.New("address already in use")
		}
	}
	if bytes.Equal(c.CoinJoinScript, c.ChangeScript) {
		return nil, errors.New("coinjoin and change address are equal")
	}

	for _, op := range in.OutPoints() {
		if _, ok := spent[op]; ok {
			return nil, fmt.Errorf("input %v already spent", op)
		}
		spent[op] = struct{}{}

		out, err := s.cfg.Wallet.FetchTxOut(ctx, op)
		if err != nil {
			return nil, fmt.Errorf("input %v: %w", op, err)
		}
		c.Inputs = append(c.Inputs, &coinjoin.Input{
			OutPoint: op,
			PrevOut:  out,
		})
	}

	change := c.Change(s.amount)
	if change < 0 || (change > 0 && change < protocol.DustThreshold) {
		return nil, fmt.Errorf("inputs leave change of %v", change)
	}

	return c, nil
}

// build assembles the coinjoin and checks it against the taker's own terms.
func (s *sendSession) build() (*psbt.Packet, *coinjoin.Summary, error) {
	req := &coinjoin.BuildRequest{
		Amount:  s.amount,
		FeeRate: s.feeRate,
		Taker: &coinjoin.TakerContribution{
			Inputs:         s.inputs,
			CoinJoinScript: s.cjScript,
			ChangeScript:   s.changeScript,
		},
	}
	var fees []btcutil.Amount
	for _, rec := range s.session.Selected {
		c := s.contributions[rec.Maker]
		req.Makers = append(req.Makers, c)
		fees = append(fees, c.CJFee)
	}

	packet, summary, err := coinjoin.Build(req)
	if err != nil {
		return nil, nil, err
	}

	_, err = coinjoin.VerifyTaker(packet, &coinjoin.TakerTerms{
		Amount:         s.amount,
		Inputs:         s.inputs,
		CoinJoinScript: s.cjScript,
		ChangeScript:   s.changeScript,
		Change:         summary.TakerChange,
		MakerFees:      fees,
		Limits:         s.cfg.Limits,
	})
	if err != nil {
		return nil, nil, err
	}

	return packet, summary, nil
}

// distribute sends the unsigned transaction to every maker.
func (s *sendSession) distribute(ctx context.Context,
	packet *psbt.Packet) error {

	b64, err := protocol.EncodePacket(packet)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, rec := range s.session.Selected {
		msg := &protocol.UnsignedTx{
			OfferID: rec.Offer.Terms().OfferID,
			PSBT:    b64,
		}
		maker := rec.Maker
		g.Go(func() error {
			return s.send(gctx, msg, maker)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	log.Infof("Sent coinjoin %v to %d makers for signing",
		packet.UnsignedTx.TxHash(), len(s.session.Selected))

	return nil
}

// collectSignatures waits until every maker signed.  A timeout aborts the
// session, an invalid signature aborts it naming the maker.
func (s *sendSession) collectSignatures(ctx context.Context,
	packet *psbt.Packet, summary *coinjoin.Summary) (*coinjoin.Aggregator,
	error) {

	s.session.Phase = PhaseCollectingSignatures
	agg := coinjoin.NewAggregator(packet, summary.MakerInputs)

	timer := time.NewTimer(s.cfg.SignatureTimeout)
	defer timer.Stop()

	for !agg.Complete() {
		env, err := s.nextEvent(ctx, timer)
		if err != nil {
			return nil, err
		}
		if env == nil {
			missing := agg.Missing()
			return nil, protocol.NewError(protocol.ErrPeerTimeout,
				"makers did not sign", nil, missing...)
		}

		msg, err := s.codec.Decode(env)
		if err != nil {
			log.Debugf("Ignoring event %v from %v: %v", env.ID,
				env.PubKey.Short(), err)
			continue
		}
		signed, ok := msg.(*protocol.SignedTx)
		if !ok {
			continue
		}
		rec, ok := s.engaged[env.PubKey]
		if !ok || signed.OfferID != rec.Offer.Terms().OfferID {
			continue
		}

		p, err := signed.Packet()
		if err != nil {
			return nil, protocol.NewError(
				protocol.ErrProtocolViolation,
				"undecodable signed transaction", err, rec.Maker,
			)
		}
		if _, err := agg.Add(rec.Maker, p); err != nil {
			return nil, err
		}
	}

	return agg, nil
}

// signOwnInputs signs the taker's inputs on packet.
func (s *sendSession) signOwnInputs(ctx context.Context, packet *psbt.Packet,
	summary *coinjoin.Summary) error {

	signed, err := s.cfg.Wallet.SignInputs(ctx, packet, summary.TakerInputs)
	if err != nil {
		return err
	}
	if signed == packet {
		return nil
	}
	for _, i := range summary.TakerInputs {
		packet.Inputs[i].FinalScriptSig = signed.Inputs[i].FinalScriptSig
		packet.Inputs[i].FinalScriptWitness =
			signed.Inputs[i].FinalScriptWitness
	}
	return nil
}
