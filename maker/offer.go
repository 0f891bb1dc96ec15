// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package maker

import (
	"context"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcjoin/chain"
	"github.com/btcsuite/btcjoin/coinjoin"
	"github.com/btcsuite/btcjoin/protocol"
)

// ErrNoCoins is returned when the wallet cannot fund a fill.
var ErrNoCoins = errors.New("not enough spendable outputs")

// buildOffer derives the offer from the configuration and the current
// balance.
func (m *Maker) buildOffer(ctx context.Context) (protocol.Offer, error) {
	maxSize := m.cfg.MaxSize.UnwrapOr(0)
	if m.cfg.MaxSize.IsNone() {
		balance, err := chain.Balance(ctx, m.cfg.Wallet)
		if err != nil {
			return nil, err
		}
		maxSize = balance - m.cfg.TxFee
	}
	if maxSize < m.cfg.MinSize {
		return nil, fmt.Errorf("%w: max size %v, min size %v",
			ErrInsufficientBalance, maxSize, m.cfg.MinSize)
	}

	terms := protocol.OfferTerms{
		OfferID: m.OfferID(),
		MinSize: m.cfg.MinSize,
		MaxSize: maxSize,
		TxFee:   m.cfg.TxFee,
	}

	var offer protocol.Offer
	m.cfg.AbsFee.WhenSome(func(fee btcutil.Amount) {
		offer = &protocol.AbsOffer{OfferTerms: terms, CJFee: fee}
	})
	m.cfg.RelFee.WhenSome(func(fee float64) {
		offer = &protocol.RelOffer{OfferTerms: terms, CJFee: fee}
	})
	if err := offer.Validate(); err != nil {
		return nil, err
	}
	return offer, nil
}

// publishOffer publishes a fresh offer, records it as current and deletes
// the one it supersedes.
func (m *Maker) publishOffer(ctx context.Context) error {
	offer, err := m.buildOffer(ctx)
	if err != nil {
		return err
	}
	env, err := m.codec.Encode(offer, "")
	if err != nil {
		return err
	}
	if err := m.cfg.Relay.Publish(ctx, env); err != nil {
		return err
	}

	m.mu.Lock()
	old := m.offerEnv
	m.offer, m.offerEnv = offer, env
	m.mu.Unlock()

	m.setState(StateOfferPublished)

	terms := offer.Terms()
	log.Infof("Published offer %d for [%v, %v] as event %v",
		terms.OfferID, terms.MinSize, terms.MaxSize, env.ID)

	if old != nil && old.ID != env.ID {
		if err := m.cfg.Relay.Delete(ctx, old.ID); err != nil {
			log.Debugf("Unable to delete superseded offer %v: %v",
				old.ID, err)
		}
	}
	return nil
}

// republish replaces the published offer.  Failures leave the maker in
// StateRepublishing so the next tick retries.
func (m *Maker) republish(ctx context.Context) {
	m.setState(StateRepublishing)
	if err := m.publishOffer(ctx); err != nil {
		log.Warnf("Unable to republish offer: %v", err)
		return
	}
	m.setState(StateAwaitingFill)
}

// selectCoins picks unleased outputs in ascending value until they fund
// amount with a change of zero or above the dust threshold.
func selectCoins(utxos []*chain.Utxo, amount, txFee,
	cjFee btcutil.Amount) ([]*chain.Utxo, btcutil.Amount, error) {

	need := amount + txFee - cjFee

	var (
		selected []*chain.Utxo
		total    btcutil.Amount
	)
	for _, u := range utxos {
		selected = append(selected, u)
		total += u.Value

		change := total - need
		if change == 0 || change >= protocol.DustThreshold {
			return selected, change, nil
		}
	}
	return nil, 0, fmt.Errorf("%w: have %v, need %v", ErrNoCoins, total,
		need)
}

// reserveInputs selects and leases the inputs answering fill and derives
// the terms the transaction must honour.
func (m *Maker) reserveInputs(ctx context.Context, taker protocol.PeerID,
	fill *protocol.Fill) (*fillSession, error) {

	offer := m.Offer()
	cjFee := offer.Fee(fill.Amount)

	utxos, err := m.cfg.Wallet.ListUnspent(ctx)
	if err != nil {
		return nil, err
	}
	selected, change, err := selectCoins(
		utxos, fill.Amount, m.cfg.TxFee, cjFee,
	)
	if err != nil {
		return nil, err
	}

	lockID, err := chain.NewLockID()
	if err != nil {
		return nil, err
	}
	s := &fillSession{
		taker:  taker,
		fill:   fill,
		cjFee:  cjFee,
		lockID: lockID,
		terms: &coinjoin.MakerTerms{
			Amount: fill.Amount,
			CJFee:  cjFee,
			TxFee:  m.cfg.TxFee,
		},
	}

	for _, u := range selected {
		_, err := m.cfg.Wallet.LeaseOutput(
			ctx, lockID, u.OutPoint, m.cfg.LeaseDuration,
		)
		if err != nil {
			m.fill = s
			m.releaseFill(ctx)
			return nil, err
		}
		s.terms.Inputs = append(s.terms.Inputs, &coinjoin.Input{
			OutPoint: u.OutPoint,
			PrevOut:  u.TxOut(),
		})
	}

	cjAddr, err := m.cfg.Wallet.NewAddress(ctx, chain.PurposeCoinJoin)
	if err == nil {
		s.terms.CoinJoinScript, err = txscript.PayToAddrScript(cjAddr)
	}
	if err == nil {
		var changeAddr btcutil.Address
		changeAddr, err = m.cfg.Wallet.NewAddress(
			ctx, chain.PurposeChange,
		)
		if err == nil {
			s.terms.ChangeScript, err = txscript.PayToAddrScript(changeAddr)
		}
	}
	if err != nil {
		m.fill = s
		m.releaseFill(ctx)
		return nil, err
	}

	log.Debugf("Reserved %d inputs for %v, change %v", len(selected),
		fill.Amount, change)

	return s, nil
}
