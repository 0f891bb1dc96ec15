// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/btcsuite/btcjoin/chain"
	"github.com/btcsuite/btcjoin/coinjoin"
	"github.com/btcsuite/btcjoin/commitstore"
	"github.com/btcsuite/btcjoin/internal/prompt"
	"github.com/btcsuite/btcjoin/keyring"
	"github.com/btcsuite/btcjoin/maker"
	"github.com/btcsuite/btcjoin/podle"
	"github.com/btcsuite/btcjoin/protocol"
	"github.com/btcsuite/btcjoin/relay"
	"github.com/btcsuite/btcjoin/taker"
	"github.com/davecgh/go-spew/spew"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// errAborted is returned when the user declines to send.
var errAborted = errors.New("aborted by user")

// listUnspent prints the outputs eligible for a coinjoin.
func listUnspent(ctx context.Context, w chain.Wallet) error {
	utxos, err := w.ListUnspent(ctx)
	if err != nil {
		return err
	}
	for _, u := range utxos {
		fmt.Printf("%v\t%v\t%d confirmations\n", u.OutPoint, u.Value,
			u.Confirmations)
	}
	fmt.Printf("%d %s\n", len(utxos), pickNoun(len(utxos), "output",
		"outputs"))
	return nil
}

// showBalance prints the eligible balance.
func showBalance(ctx context.Context, w chain.Wallet) error {
	balance, err := chain.Balance(ctx, w)
	if err != nil {
		return err
	}
	fmt.Println(balance)
	return nil
}

// listOffers prints the latest offer of every maker heard from.
func listOffers(ctx context.Context, cfg *config, r relay.Relay) error {
	identity, err := keyring.Generate()
	if err != nil {
		return err
	}

	offers, err := taker.CollectOffers(
		ctx, r, protocol.NewCodec(identity), cfg.ListOffers.Timeout,
	)
	if err != nil {
		return err
	}

	for i, o := range offers {
		fmt.Printf("Offer %d: %v\n", i, o)
	}
	if len(offers) == 0 {
		fmt.Println("No offers found")
	}
	return nil
}

// listCommitments writes every used commitment in the registry to w, one per
// line.
func listCommitments(ctx context.Context, w io.Writer,
	registry commitstore.Store) error {

	var n int
	err := registry.ForEach(ctx,
		func(c podle.Commitment, rec *commitstore.Record) error {
			n++
			_, err := fmt.Fprintf(w, "%x\toffer %d\t%s\t%s\n",
				c[:], rec.OfferID,
				rec.FirstSeen.UTC().Format(time.RFC3339),
				counterpartyString(rec.Counterparty))
			return err
		},
	)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(w, "%d used %s\n", n,
		pickNoun(n, "commitment", "commitments"))
	return err
}

// counterpartyString renders the peer recorded with a commitment.
func counterpartyString(peer []byte) string {
	if len(peer) == 0 {
		return "-"
	}
	return string(peer)
}

// timeoutPolicy returns the policy named by the sendtx options.
func timeoutPolicy(c *sendTxConfig) taker.TimeoutPolicy {
	switch c.Policy {
	case "replace":
		return taker.ReplacePolicy{}
	case "minimum":
		return taker.MinimumPolicy{Min: c.MinMakers}
	default:
		return taker.AbortPolicy{}
	}
}

// sendTx runs one coinjoin as the taker.
func sendTx(ctx context.Context, cfg *config, r relay.Relay, w chain.Wallet,
	registry commitstore.Store) error {

	c := &cfg.SendTx
	fmt.Printf("Looking for offers to send %v with %d %s.\n",
		c.Amount.Amount, c.Makers, pickNoun(c.Makers, "peer", "peers"))

	if !c.NoConfirm {
		ok, err := prompt.Confirm(
			bufio.NewReader(os.Stdin), "Continue?", false,
		)
		if err != nil {
			return err
		}
		if !ok {
			return errAborted
		}
	}

	t, err := taker.New(&taker.Config{
		Relay:       r,
		Wallet:      w,
		Commitments: registry,
		Limits: coinjoin.Limits{
			MaxCJFeeAbs:  c.MaxCJFee.Amount,
			MaxCJFeeRel:  c.MaxCJFeeRel,
			MaxMiningFee: c.MaxMiningFee.Amount,
		},
		OfferTimeout:     c.OfferTimeout,
		InputTimeout:     c.InputTimeout,
		SignatureTimeout: c.SignatureTimeout,
		Policy:           timeoutPolicy(c),
	})
	if err != nil {
		return err
	}

	res, err := t.Send(ctx, c.Amount.Amount, c.Makers)
	if err != nil {
		fmt.Fprintln(os.Stderr, describeSendError(err))
		return err
	}

	fmt.Printf("Total fee to makers: %v\n", res.Summary.CJFees)
	fmt.Printf("Mining fee: %v (paid by you: %v)\n",
		res.Summary.MiningFee, res.Summary.TakerMiningFee)
	for _, m := range res.Makers {
		fmt.Printf("Maker %v\n", m)
	}
	fmt.Printf("TXID: %v\n", res.TxID)

	log.Debugf("Coinjoin transaction: %v", newLogClosure(func() string {
		return spew.Sdump(res.Tx)
	}))
	return nil
}

// describeSendError tells a maker that disappeared apart from one that
// attempted to cheat.
func describeSendError(err error) string {
	var perr protocol.Error
	if !errors.As(err, &perr) || len(perr.Peers) == 0 {
		return fmt.Sprintf("Coinjoin failed: %v", err)
	}

	peers := make([]string, len(perr.Peers))
	for i, p := range perr.Peers {
		peers[i] = string(p)
	}
	list := strings.Join(peers, "\n  ")

	switch perr.ErrorCode {
	case protocol.ErrPeerTimeout:
		return fmt.Sprintf("Coinjoin failed, %s did not respond:\n  %s",
			pickNoun(len(peers), "maker", "makers"), list)

	case protocol.ErrValueMismatch, protocol.ErrBadSignature:
		return fmt.Sprintf("Coinjoin failed, %s misbehaved (%v):\n  %s",
			pickNoun(len(peers), "maker", "makers"),
			perr.Description, list)

	default:
		return fmt.Sprintf("Coinjoin failed: %v", err)
	}
}

// makerConfig builds the maker configuration from the runmaker options.
func makerConfig(cfg *config, identity protocol.Crypter, r relay.Relay,
	w chain.Wallet, registry commitstore.Store) *maker.Config {

	c := &cfg.RunMaker
	mcfg := &maker.Config{
		Identity:               identity,
		Relay:                  r,
		Wallet:                 w,
		Commitments:            registry,
		MinSize:                c.MinSize.Amount,
		TxFee:                  c.TxFee.Amount,
		TransactionTimeout:     c.TxTimeout,
		RequireCommitmentInput: c.RequireKey,
	}
	mcfg.RepublishTicker = maker.NewJitterTicker(
		c.Republish, maker.DefaultRepublishJitter,
	)
	if c.OfferID != 0 {
		mcfg.OfferID = fn.Some(c.OfferID)
	}
	if c.AbsFee.ExplicitlySet() {
		mcfg.AbsFee = fn.Some(c.AbsFee.Amount)
	} else {
		mcfg.RelFee = fn.Some(c.relFee)
	}
	if c.MaxSize.ExplicitlySet() {
		mcfg.MaxSize = fn.Some(c.MaxSize.Amount)
	}
	return mcfg
}

// runMaker serves coinjoins until interrupted.
func runMaker(ctx context.Context, cfg *config, identity protocol.Crypter,
	r relay.Relay, w chain.Wallet, registry commitstore.Store) error {

	m, err := maker.New(makerConfig(cfg, identity, r, w, registry))
	if err != nil {
		return err
	}

	log.Infof("Running maker %v with offer %d", m.PeerID(), m.OfferID())
	fmt.Println("Waiting for takers...")

	if err := m.Run(ctx); err != nil {
		log.Errorf("Maker stopped: %v", err)
		return err
	}

	log.Info("Shutdown complete")
	return nil
}
