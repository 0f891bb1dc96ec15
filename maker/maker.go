// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package maker implements the maker side of the coinjoin protocol: a single
// goroutine that publishes an offer, answers one fill at a time and signs
// the resulting transaction if it honours the agreed terms.
package maker

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcjoin/chain"
	"github.com/btcsuite/btcjoin/coinjoin"
	"github.com/btcsuite/btcjoin/commitstore"
	"github.com/btcsuite/btcjoin/podle"
	"github.com/btcsuite/btcjoin/protocol"
	"github.com/btcsuite/btcjoin/relay"
	"github.com/btcsuite/btcwallet/wtxmgr"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/lightningnetwork/lnd/ticker"
)

const (
	// DefaultTransactionTimeout bounds the wait for the unsigned
	// transaction after the maker sent its inputs.
	DefaultTransactionTimeout = 300 * time.Second

	// DefaultRepublishInterval is how often a waiting maker refreshes
	// its offer.
	DefaultRepublishInterval = 10 * time.Minute

	// DefaultLeaseDuration is how long inputs promised to a taker stay
	// reserved.
	DefaultLeaseDuration = 10 * time.Minute

	// shutdownTimeout bounds the cleanup performed when Run returns.
	shutdownTimeout = 5 * time.Second
)

var (
	// ErrFeeConfig is returned when not exactly one of the absolute and
	// relative fee is configured.
	ErrFeeConfig = errors.New("exactly one of absolute and relative " +
		"fee must be set")

	// ErrInsufficientBalance is returned when the wallet cannot fund the
	// minimum offer size.
	ErrInsufficientBalance = errors.New("balance below minimum offer size")

	// ErrSubscriptionClosed is returned when the relay ends the maker's
	// subscription.
	ErrSubscriptionClosed = errors.New("relay subscription closed")
)

// Config holds the collaborators and terms of a maker.
type Config struct {
	// Identity signs and decrypts the maker's events.
	Identity protocol.Crypter

	// Relay carries the protocol messages.
	Relay relay.Relay

	// Wallet funds and signs the maker's contributions.
	Wallet chain.Wallet

	// Commitments is the registry of commitments already honoured.
	Commitments commitstore.Store

	// OfferID identifies the offer for the lifetime of the maker.  A
	// random one is chosen when unset.
	OfferID fn.Option[uint32]

	// AbsFee and RelFee select the offer kind.  Exactly one must be set.
	AbsFee fn.Option[btcutil.Amount]
	RelFee fn.Option[float64]

	// MinSize and MaxSize bound the accepted coinjoin amount.  MaxSize
	// defaults to what the wallet balance can fund and is re-evaluated
	// on every publication.
	MinSize btcutil.Amount
	MaxSize fn.Option[btcutil.Amount]

	// TxFee is the maker's contribution to the mining fee.
	TxFee btcutil.Amount

	// TransactionTimeout bounds the wait for the unsigned transaction.
	TransactionTimeout time.Duration

	// LeaseDuration is how long contributed inputs stay reserved.
	LeaseDuration time.Duration

	// RepublishTicker paces offer refreshes while waiting for a fill.
	// Defaults to a ticker with DefaultRepublishInterval.
	RepublishTicker ticker.Ticker

	// MaxCommitmentIndex is the highest generator index accepted in a
	// commitment proof.
	MaxCommitmentIndex uint8

	// RequireCommitmentInput makes the maker refuse transactions that
	// do not spend an output controlled by the fill's commitment key.
	RequireCommitmentInput bool
}

// fillSession is the state of the fill the maker is serving.
type fillSession struct {
	taker  protocol.PeerID
	fill   *protocol.Fill
	cjFee  btcutil.Amount
	lockID wtxmgr.LockID
	terms  *coinjoin.MakerTerms
	timer  *time.Timer
}

// Maker runs the maker side of the protocol.
type Maker struct {
	cfg   *Config
	codec *protocol.Codec

	state atomic.Uint32

	mu       sync.Mutex
	offer    protocol.Offer
	offerEnv *protocol.Envelope

	// fill is only accessed by the Run goroutine.
	fill *fillSession
}

// New validates cfg and returns a maker in the Idle state.
func New(cfg *Config) (*Maker, error) {
	switch {
	case cfg.Identity == nil, cfg.Relay == nil, cfg.Wallet == nil,
		cfg.Commitments == nil:

		return nil, errors.New("maker config missing collaborator")

	case cfg.AbsFee.IsSome() == cfg.RelFee.IsSome():
		return nil, ErrFeeConfig

	case cfg.MinSize < protocol.DustThreshold:
		return nil, fmt.Errorf("minimum size %v below dust", cfg.MinSize)
	}

	if cfg.OfferID.IsNone() {
		var b [4]byte
		if _, err := rand.Read(b[:]); err != nil {
			return nil, err
		}
		cfg.OfferID = fn.Some(binary.BigEndian.Uint32(b[:]))
	}
	if cfg.TransactionTimeout == 0 {
		cfg.TransactionTimeout = DefaultTransactionTimeout
	}
	if cfg.LeaseDuration == 0 {
		cfg.LeaseDuration = DefaultLeaseDuration
	}
	if cfg.RepublishTicker == nil {
		cfg.RepublishTicker = NewJitterTicker(
			DefaultRepublishInterval, DefaultRepublishJitter,
		)
	}
	if cfg.MaxCommitmentIndex == 0 {
		cfg.MaxCommitmentIndex = podle.DefaultMaxIndex
	}

	return &Maker{
		cfg:   cfg,
		codec: protocol.NewCodec(cfg.Identity),
	}, nil
}

// PeerID returns the maker's identity.
func (m *Maker) PeerID() protocol.PeerID {
	return m.codec.PeerID()
}

// OfferID returns the stable identifier of the maker's offer.
func (m *Maker) OfferID() uint32 {
	return m.cfg.OfferID.UnwrapOr(0)
}

// State returns the current state.
func (m *Maker) State() State {
	return State(m.state.Load())
}

func (m *Maker) setState(s State) {
	old := State(m.state.Swap(uint32(s)))
	if old != s {
		log.Tracef("Maker state %v -> %v", old, s)
	}
}

// Offer returns the offer currently published, or nil.
func (m *Maker) Offer() protocol.Offer {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.offer
}

// Run publishes the offer and serves fills until ctx is cancelled.  On
// return the offer is withdrawn and reserved inputs are released.
func (m *Maker) Run(ctx context.Context) error {
	inbox, err := m.cfg.Relay.Subscribe(ctx, relay.Filter{
		Kinds: []protocol.Kind{
			protocol.KindFill, protocol.KindUnsignedTx,
		},
		Recipients: []protocol.PeerID{m.PeerID()},
	})
	if err != nil {
		return err
	}
	defer inbox.Close()

	if err := m.publishOffer(ctx); err != nil {
		return err
	}
	m.setState(StateAwaitingFill)

	m.cfg.RepublishTicker.Resume()
	defer m.cfg.RepublishTicker.Stop()

	defer m.shutdown()

	for {
		var deadline <-chan time.Time
		if m.fill != nil {
			deadline = m.fill.timer.C
		}

		select {
		case env, ok := <-inbox.Events():
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return ErrSubscriptionClosed
			}
			m.handleEvent(ctx, env)

		case <-deadline:
			log.Infof("Taker %v sent no transaction within %v, "+
				"abandoning fill", m.fill.taker.Short(),
				m.cfg.TransactionTimeout)
			m.endCycle(ctx)

		case <-m.cfg.RepublishTicker.Ticks():
			switch m.State() {
			case StateAwaitingFill, StateRepublishing:
				m.republish(ctx)
			}

		case <-ctx.Done():
			return nil
		}
	}
}

// shutdown releases the in-flight fill and withdraws the offer.
func (m *Maker) shutdown() {
	ctx, cancel := context.WithTimeout(
		context.Background(), shutdownTimeout,
	)
	defer cancel()

	if m.fill != nil {
		m.releaseFill(ctx)
	}

	m.mu.Lock()
	env := m.offerEnv
	m.mu.Unlock()
	if env != nil {
		if err := m.cfg.Relay.Delete(ctx, env.ID); err != nil {
			log.Debugf("Unable to withdraw offer: %v", err)
		}
	}

	m.setState(StateIdle)
}

// handleEvent dispatches one event from the maker's inbox.  Anything that
// does not decode is dropped.
func (m *Maker) handleEvent(ctx context.Context, env *protocol.Envelope) {
	msg, err := m.codec.Decode(env)
	if err != nil {
		log.Debugf("Ignoring event %v from %v: %v", env.ID,
			env.PubKey.Short(), err)
		return
	}

	switch msg := msg.(type) {
	case *protocol.Fill:
		m.handleFill(ctx, env.PubKey, msg)

	case *protocol.UnsignedTx:
		m.handleUnsignedTx(ctx, env.PubKey, msg)

	default:
		log.Debugf("Ignoring unexpected %v from %v", env.Kind,
			env.PubKey.Short())
	}
}

// ValidateFill checks a fill against the current offer and consumes its
// commitment.  The commitment is only recorded when every other check
// passes, and a commitment already recorded is rejected.
func (m *Maker) ValidateFill(ctx context.Context, sender protocol.PeerID,
	fill *protocol.Fill) error {

	offer := m.Offer()
	if offer == nil {
		return protocol.NewError(protocol.ErrProtocolViolation,
			"no offer published", nil, sender)
	}

	terms := offer.Terms()
	switch {
	case fill.OfferID != terms.OfferID:
		return protocol.NewError(protocol.ErrProtocolViolation,
			"unknown offer", nil, sender)

	case !terms.InRange(fill.Amount):
		return protocol.NewError(protocol.ErrProtocolViolation,
			fmt.Sprintf("amount %v outside [%v, %v]", fill.Amount,
				terms.MinSize, terms.MaxSize), nil, sender)

	case fill.TakerPubKey != sender:
		return protocol.NewError(protocol.ErrProtocolViolation,
			"fill signed for another identity", nil, sender)
	}

	if err := fill.VerifySignature(); err != nil {
		return protocol.NewError(protocol.ErrCommitmentInvalid,
			"invalid fill signature", err, sender)
	}
	err := podle.Verify(fill.Commitment, fill.Proof,
		m.cfg.MaxCommitmentIndex)
	if err != nil {
		return protocol.NewError(protocol.ErrCommitmentInvalid,
			"invalid commitment proof", err, sender)
	}

	err = m.cfg.Commitments.Insert(ctx, fill.Commitment, commitstore.Record{
		OfferID:      fill.OfferID,
		FirstSeen:    time.Now(),
		Counterparty: []byte(sender),
	})
	switch {
	case errors.Is(err, commitstore.ErrAlreadyUsed):
		return protocol.NewError(protocol.ErrCommitmentInvalid,
			"commitment already used", err, sender)

	case err != nil:
		return err
	}

	return nil
}

// handleFill validates a fill and answers it with the maker's inputs.
// Rejections are silent towards the taker.
func (m *Maker) handleFill(ctx context.Context, sender protocol.PeerID,
	fill *protocol.Fill) {

	if m.fill != nil {
		log.Debugf("Ignoring fill from %v while serving %v",
			sender.Short(), m.fill.taker.Short())
		return
	}

	m.setState(StateValidatingCommitment)
	if err := m.ValidateFill(ctx, sender, fill); err != nil {
		log.Debugf("Rejected fill from %v: %v", sender.Short(), err)
		m.setState(StateAwaitingFill)
		return
	}

	session, err := m.reserveInputs(ctx, sender, fill)
	if err != nil {
		log.Warnf("Unable to serve fill of %v from %v: %v",
			fill.Amount, sender.Short(), err)
		m.setState(StateAwaitingFill)
		return
	}
	m.fill = session

	msg := &protocol.MakerInput{
		OfferID: fill.OfferID,
		UTXOs:   make([]protocol.OutPoint, len(session.terms.Inputs)),
	}
	for i, in := range session.terms.Inputs {
		msg.UTXOs[i] = protocol.OutPoint{OutPoint: in.OutPoint}
	}
	msg.CoinJoinAddress, msg.ChangeAddress, err = m.scriptAddresses(
		session.terms,
	)
	if err == nil {
		err = m.send(ctx, msg, sender)
	}
	if err != nil {
		log.Errorf("Unable to send inputs to %v: %v", sender.Short(),
			err)
		m.endCycle(ctx)
		return
	}
	m.setState(StateInputsSent)

	log.Infof("Sent %d inputs for a coinjoin of %v to %v",
		len(msg.UTXOs), fill.Amount, sender.Short())

	session.timer = time.NewTimer(m.cfg.TransactionTimeout)
	m.setState(StateAwaitingTransaction)
}

// handleUnsignedTx verifies and signs the in-flight taker's transaction.
// Whatever the outcome the cycle ends and the offer is republished.
func (m *Maker) handleUnsignedTx(ctx context.Context, sender protocol.PeerID,
	msg *protocol.UnsignedTx) {

	s := m.fill
	if s == nil || s.taker != sender || msg.OfferID != s.fill.OfferID {
		log.Debugf("Ignoring transaction from %v: no fill in flight",
			sender.Short())
		return
	}
	defer m.endCycle(ctx)

	packet, err := msg.Packet()
	if err != nil {
		log.Warnf("Undecodable transaction from %v: %v",
			sender.Short(), err)
		return
	}

	indices, err := coinjoin.VerifyMaker(packet, s.terms)
	if err == nil && m.cfg.RequireCommitmentInput &&
		!spendsCommitmentKey(packet, s.fill.Proof) {

		err = protocol.NewError(protocol.ErrValueMismatch,
			"transaction does not spend the committed key", nil)
	}
	if err != nil {
		log.Warnf("Refusing to sign transaction from %v: %v",
			sender.Short(), err)
		return
	}

	packet, err = m.cfg.Wallet.SignInputs(ctx, packet, indices)
	if err != nil {
		log.Errorf("Unable to sign inputs: %v", err)
		return
	}
	b64, err := protocol.EncodePacket(packet)
	if err != nil {
		log.Errorf("Unable to encode signed transaction: %v", err)
		return
	}

	signed := &protocol.SignedTx{OfferID: msg.OfferID, PSBT: b64}
	if err := m.send(ctx, signed, sender); err != nil {
		log.Errorf("Unable to return signed transaction to %v: %v",
			sender.Short(), err)
		return
	}
	m.setState(StateSigned)

	log.Infof("Signed coinjoin %v for %v, earning %v",
		packet.UnsignedTx.TxHash(), sender.Short(), s.cjFee)
}

// spendsCommitmentKey reports whether packet spends a P2WPKH output of the
// proof key.
func spendsCommitmentKey(packet *psbt.Packet, proof *podle.Proof) bool {
	if proof == nil || proof.P == nil {
		return false
	}

	hash := btcutil.Hash160(proof.P.SerializeCompressed())
	for i := range packet.Inputs {
		utxo := packet.Inputs[i].WitnessUtxo
		if utxo == nil {
			continue
		}
		if txscript.GetScriptClass(utxo.PkScript) !=
			txscript.WitnessV0PubKeyHashTy {

			continue
		}
		if bytes.Equal(utxo.PkScript[2:], hash) {
			return true
		}
	}
	return false
}

// endCycle abandons or completes the in-flight fill and republishes.
func (m *Maker) endCycle(ctx context.Context) {
	m.setState(StateRepublishing)
	if m.fill != nil {
		m.releaseFill(ctx)
	}
	m.republish(ctx)
}

// releaseFill drops the in-flight fill and its leases.
func (m *Maker) releaseFill(ctx context.Context) {
	s := m.fill
	m.fill = nil

	if s.timer != nil {
		s.timer.Stop()
	}
	for _, in := range s.terms.Inputs {
		err := m.cfg.Wallet.ReleaseOutput(ctx, s.lockID, in.OutPoint)
		if err != nil {
			log.Warnf("Unable to release %v: %v", in.OutPoint, err)
		}
	}
}

// send encodes msg for recipient and publishes it.
func (m *Maker) send(ctx context.Context, msg protocol.Message,
	recipient protocol.PeerID) error {

	env, err := m.codec.Encode(msg, recipient)
	if err != nil {
		return err
	}
	return m.cfg.Relay.Publish(ctx, env)
}

// scriptAddresses renders the coinjoin and change scripts as addresses.
func (m *Maker) scriptAddresses(terms *coinjoin.MakerTerms) (string, string,
	error) {

	params := m.cfg.Wallet.Params()
	encode := func(pkScript []byte) (string, error) {
		_, addrs, _, err := txscript.ExtractPkScriptAddrs(
			pkScript, params,
		)
		if err != nil {
			return "", err
		}
		if len(addrs) != 1 {
			return "", errors.New("non-standard output script")
		}
		return addrs[0].EncodeAddress(), nil
	}

	cj, err := encode(terms.CoinJoinScript)
	if err != nil {
		return "", "", err
	}
	change, err := encode(terms.ChangeScript)
	if err != nil {
		return "", "", err
	}
	return cj, change, nil
}
