// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package taker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcjoin/coinjoin"
	"github.com/btcsuite/btcjoin/protocol"
	"github.com/btcsuite/btcjoin/relay"
)

// ErrNotEnoughMakers is returned when fewer makers than requested offer
// acceptable terms.
var ErrNotEnoughMakers = errors.New("not enough matching makers")

// OfferRecord is an offer seen on the relay.
type OfferRecord struct {
	Maker     protocol.PeerID
	Offer     protocol.Offer
	EventID   string
	CreatedAt time.Time
}

// Fee returns the coinjoin fee the maker charges for amount.
func (r *OfferRecord) Fee(amount btcutil.Amount) btcutil.Amount {
	return r.Offer.Fee(amount)
}

// String returns a one line description of the offer.
func (r *OfferRecord) String() string {
	terms := r.Offer.Terms()

	var fee string
	switch o := r.Offer.(type) {
	case *protocol.AbsOffer:
		fee = o.CJFee.String()
	case *protocol.RelOffer:
		fee = fmt.Sprintf("%.4f%%", o.CJFee*100)
	}
	return fmt.Sprintf("%v oid=%d [%v, %v] txfee=%v cjfee=%s",
		r.Maker.Short(), terms.OfferID, terms.MinSize, terms.MaxSize,
		terms.TxFee, fee)
}

// offerFilter selects both offer kinds.
var offerFilter = relay.Filter{
	Kinds: []protocol.Kind{protocol.KindAbsOffer, protocol.KindRelOffer},
}

// CollectOffers listens for offers for timeout and returns the latest one
// per maker, ordered by maker.  Events that fail to decode are skipped.
func CollectOffers(ctx context.Context, r relay.Relay, codec *protocol.Codec,
	timeout time.Duration) ([]*OfferRecord, error) {

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	sub, err := r.Subscribe(ctx, offerFilter)
	if err != nil {
		return nil, err
	}
	defer sub.Close()

	latest := make(map[protocol.PeerID]*OfferRecord)
	for env := range sub.Events() {
		msg, err := codec.Decode(env)
		if err != nil {
			log.Debugf("Skipping offer %v from %v: %v", env.ID,
				env.PubKey.Short(), err)
			continue
		}
		offer, ok := msg.(protocol.Offer)
		if !ok {
			continue
		}

		rec := &OfferRecord{
			Maker:     env.PubKey,
			Offer:     offer,
			EventID:   env.ID,
			CreatedAt: time.Unix(env.CreatedAt, 0),
		}
		if old, ok := latest[rec.Maker]; ok &&
			old.CreatedAt.After(rec.CreatedAt) {

			continue
		}
		latest[rec.Maker] = rec
	}

	offers := make([]*OfferRecord, 0, len(latest))
	for _, rec := range latest {
		offers = append(offers, rec)
	}
	sort.Slice(offers, func(i, j int) bool {
		return offers[i].Maker < offers[j].Maker
	})

	log.Debugf("Collected %d offers", len(offers))

	return offers, nil
}

// RankOffers returns the offers able to serve amount within limits, one
// per maker, cheapest first.  Ties go to the larger maker tx fee, then to
// the lower maker id.
func RankOffers(offers []*OfferRecord, amount btcutil.Amount,
	limits coinjoin.Limits) []*OfferRecord {

	best := make(map[protocol.PeerID]*OfferRecord)
	for _, rec := range offers {
		terms := rec.Offer.Terms()
		if !terms.InRange(amount) {
			continue
		}
		if !limits.AcceptFee(rec.Fee(amount), amount) {
			continue
		}
		if cur, ok := best[rec.Maker]; ok && !offerLess(rec, cur, amount) {
			continue
		}
		best[rec.Maker] = rec
	}

	ranked := make([]*OfferRecord, 0, len(best))
	for _, rec := range best {
		ranked = append(ranked, rec)
	}
	sort.Slice(ranked, func(i, j int) bool {
		return offerLess(ranked[i], ranked[j], amount)
	})
	return ranked
}

func offerLess(a, b *OfferRecord, amount btcutil.Amount) bool {
	feeA, feeB := a.Fee(amount), b.Fee(amount)
	switch {
	case feeA != feeB:
		return feeA < feeB
	case a.Offer.Terms().TxFee != b.Offer.Terms().TxFee:
		return a.Offer.Terms().TxFee > b.Offer.Terms().TxFee
	}
	return a.Maker < b.Maker
}

// SelectMakers picks the count cheapest makers able to serve amount.
func SelectMakers(offers []*OfferRecord, count int, amount btcutil.Amount,
	limits coinjoin.Limits) ([]*OfferRecord, error) {

	ranked := RankOffers(offers, amount, limits)
	if len(ranked) < count {
		return nil, fmt.Errorf("%w: want %d, found %d",
			ErrNotEnoughMakers, count, len(ranked))
	}
	return ranked[:count], nil
}
