// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package taker

import (
	"context"
	"errors"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcjoin/chain"
	"github.com/btcsuite/btcjoin/commitstore"
	"github.com/btcsuite/btcjoin/podle"
	"github.com/btcsuite/btcjoin/protocol"
)

// ErrCommitmentsExhausted is returned when every wallet output has used up
// its commitments.
var ErrCommitmentsExhausted = errors.New("no unused commitment left")

// commitmentSource hands out commitments that were never revealed before.
// Outputs the transaction will spend come first so makers checking the
// commitment key against the transaction accept them.
type commitmentSource struct {
	wallet   chain.Wallet
	store    commitstore.Store
	maxIndex uint8

	candidates []wire.OutPoint
	pos        int
	index      uint8

	keys map[wire.OutPoint]*btcec.PrivateKey
	used map[podle.Commitment]struct{}
}

func newCommitmentSource(w chain.Wallet, store commitstore.Store,
	maxIndex uint8, preferred []wire.OutPoint,
	utxos []*chain.Utxo) *commitmentSource {

	seen := make(map[wire.OutPoint]struct{}, len(utxos))
	candidates := make([]wire.OutPoint, 0, len(utxos))
	for _, op := range preferred {
		seen[op] = struct{}{}
		candidates = append(candidates, op)
	}
	for _, u := range utxos {
		if _, ok := seen[u.OutPoint]; ok {
			continue
		}
		candidates = append(candidates, u.OutPoint)
	}

	return &commitmentSource{
		wallet:     w,
		store:      store,
		maxIndex:   maxIndex,
		candidates: candidates,
		keys:       make(map[wire.OutPoint]*btcec.PrivateKey),
		used:       make(map[podle.Commitment]struct{}),
	}
}

// advance moves to the next (output, index) pair.
func (c *commitmentSource) advance() {
	if c.index < c.maxIndex {
		c.index++
		return
	}
	c.index = 0
	c.pos++
}

// next returns a fresh proof for a fill towards maker together with the
// key that signs the fill.  The commitment is recorded as used before it is
// returned.
func (c *commitmentSource) next(ctx context.Context, maker protocol.PeerID,
	offerID uint32) (*podle.Proof, *btcec.PrivateKey, error) {

	for ; c.pos < len(c.candidates); c.advance() {
		op := c.candidates[c.pos]

		priv, ok := c.keys[op]
		if !ok {
			var err error
			priv, err = c.wallet.CommitmentKey(ctx, op)
			if err != nil {
				log.Debugf("No commitment key for %v: %v", op,
					err)
				c.index = c.maxIndex
				continue
			}
			c.keys[op] = priv
		}

		proof, err := podle.Generate(priv, c.index)
		if err != nil {
			return nil, nil, err
		}
		commitment := proof.Commitment()
		if _, ok := c.used[commitment]; ok {
			continue
		}
		if c.store != nil {
			err := c.store.Insert(ctx, commitment, commitstore.Record{
				OfferID:      offerID,
				FirstSeen:    time.Now(),
				Counterparty: []byte(maker),
			})
			switch {
			case errors.Is(err, commitstore.ErrAlreadyUsed):
				continue

			case err != nil:
				return nil, nil, err
			}
		}
		c.used[commitment] = struct{}{}
		c.advance()

		log.Tracef("Using commitment %v of %v at index %d",
			commitment, op, proof.Index)

		return proof, priv, nil
	}

	return nil, nil, ErrCommitmentsExhausted
}
