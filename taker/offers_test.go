// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package taker

import (
	"context"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcjoin/chain"
	"github.com/btcsuite/btcjoin/coinjoin"
	"github.com/btcsuite/btcjoin/commitstore"
	"github.com/btcsuite/btcjoin/keyring"
	"github.com/btcsuite/btcjoin/podle"
	"github.com/btcsuite/btcjoin/protocol"
	"github.com/btcsuite/btcjoin/relay"
	"github.com/stretchr/testify/require"
)

func absRecord(maker protocol.PeerID, oid uint32, minSize, maxSize, txFee,
	fee btcutil.Amount) *OfferRecord {

	return &OfferRecord{
		Maker: maker,
		Offer: &protocol.AbsOffer{
			OfferTerms: protocol.OfferTerms{
				OfferID: oid,
				MinSize: minSize,
				MaxSize: maxSize,
				TxFee:   txFee,
			},
			CJFee: fee,
		},
	}
}

func relRecord(maker protocol.PeerID, fee float64) *OfferRecord {
	return &OfferRecord{
		Maker: maker,
		Offer: &protocol.RelOffer{
			OfferTerms: protocol.OfferTerms{
				MinSize: 10000,
				MaxSize: 1000000,
			},
			CJFee: fee,
		},
	}
}

func makers(recs []*OfferRecord) []protocol.PeerID {
	ids := make([]protocol.PeerID, len(recs))
	for i, rec := range recs {
		ids[i] = rec.Maker
	}
	return ids
}

func TestRankOffers(t *testing.T) {
	t.Parallel()

	offers := []*OfferRecord{
		absRecord("a", 1, 10000, 1000000, 0, 900),
		relRecord("b", 0.002),
		absRecord("c", 1, 10000, 50000, 0, 10),
		absRecord("d", 1, 10000, 1000000, 0, 500),
		absRecord("d", 2, 10000, 1000000, 0, 300),
		absRecord("e", 1, 10000, 1000000, 500, 500),
		absRecord("f", 1, 10000, 1000000, 0, 5000),
	}

	ranked := RankOffers(offers, testAmount, coinjoin.Limits{})
	require.Equal(t, []protocol.PeerID{"b", "d", "e", "a", "f"},
		makers(ranked))
	require.EqualValues(t, 2, ranked[1].Offer.Terms().OfferID)

	limited := RankOffers(offers, testAmount, coinjoin.Limits{
		MaxCJFeeAbs: 400,
		MaxCJFeeRel: 0.008,
	})
	require.Equal(t, []protocol.PeerID{"b", "d", "e"}, makers(limited))

	selected, err := SelectMakers(offers, 2, testAmount, coinjoin.Limits{})
	require.NoError(t, err)
	require.Equal(t, []protocol.PeerID{"b", "d"}, makers(selected))

	_, err = SelectMakers(offers, 6, testAmount, coinjoin.Limits{})
	require.ErrorIs(t, err, ErrNotEnoughMakers)
}

func TestCollectOffers(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r := relay.NewMemRelay()

	publish := func(k *keyring.Keyring, msg protocol.Message) {
		env, err := protocol.NewCodec(k).Encode(msg, "")
		require.NoError(t, err)
		require.NoError(t, r.Publish(ctx, env))
	}

	m1, err := keyring.Generate()
	require.NoError(t, err)
	m2, err := keyring.Generate()
	require.NoError(t, err)

	publish(m1, absRecord("", 1, 10000, 100000, 0, 100).Offer)
	publish(m1, absRecord("", 1, 10000, 200000, 0, 100).Offer)
	publish(m2, relRecord("", 0.001).Offer)

	taker, err := keyring.Generate()
	require.NoError(t, err)
	offers, err := CollectOffers(
		ctx, r, protocol.NewCodec(taker), 100*time.Millisecond,
	)
	require.NoError(t, err)
	require.Len(t, offers, 2)

	byMaker := make(map[protocol.PeerID]*OfferRecord)
	for _, rec := range offers {
		byMaker[rec.Maker] = rec
	}
	require.Equal(t, btcutil.Amount(200000),
		byMaker[m1.PeerID()].Offer.Terms().MaxSize)
	require.IsType(t, &protocol.RelOffer{}, byMaker[m2.PeerID()].Offer)
}

func TestTimeoutPolicies(t *testing.T) {
	t.Parallel()

	reserve := []*OfferRecord{
		absRecord("r1", 1, 0, 0, 0, 1),
		absRecord("r2", 1, 0, 0, 0, 2),
	}
	inputs := func() *Session {
		return &Session{
			Phase:     PhaseCollectingInputs,
			Responded: []protocol.PeerID{"a"},
			Reserve:   reserve,
		}
	}
	missing := []protocol.PeerID{"b"}

	require.True(t, AbortPolicy{}.OnPeerTimeout(inputs(), missing).Abort)

	var replace TimeoutPolicy = ReplacePolicy{}
	session := inputs()
	d := replace.OnPeerTimeout(session, missing)
	require.False(t, d.Abort)
	require.Equal(t, reserve[:1], d.Replacements)

	// One round per session by default.
	session.Rounds++
	require.True(t, replace.OnPeerTimeout(session, missing).Abort)

	// The same policy value replaces again in the next session.
	d = replace.OnPeerTimeout(inputs(), missing)
	require.False(t, d.Abort)
	require.Equal(t, reserve[:1], d.Replacements)

	replace = ReplacePolicy{MaxRounds: 3}
	session = inputs()
	session.Rounds = 2
	require.False(t, replace.OnPeerTimeout(session, missing).Abort)
	session.Rounds = 3
	require.True(t, replace.OnPeerTimeout(session, missing).Abort)

	d = replace.OnPeerTimeout(inputs(), []protocol.PeerID{"b", "c", "d"})
	require.True(t, d.Abort)

	signing := inputs()
	signing.Phase = PhaseCollectingSignatures
	require.True(t, replace.OnPeerTimeout(signing, missing).Abort)

	d = MinimumPolicy{Min: 1}.OnPeerTimeout(inputs(), missing)
	require.False(t, d.Abort)
	require.Empty(t, d.Replacements)
	require.True(t, MinimumPolicy{Min: 2}.OnPeerTimeout(
		inputs(), missing).Abort)
}

func TestCommitmentSource(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	w := chain.NewMemWallet(chain.NewMemChain(&chaincfg.RegressionNetParams))
	ops, err := w.Fund(1000, 2000)
	require.NoError(t, err)
	utxos, err := w.ListUnspent(ctx)
	require.NoError(t, err)

	store := commitstore.NewMemStore()
	src := newCommitmentSource(w, store, 1, ops[1:], utxos)

	seen := make(map[podle.Commitment]struct{})
	var keys []string
	for i := 0; i < 4; i++ {
		proof, priv, err := src.next(ctx, "maker", 1)
		require.NoError(t, err)
		require.NoError(t, podle.Verify(proof.Commitment(), proof, 1))
		require.True(t, priv.PubKey().IsEqual(proof.P))

		seen[proof.Commitment()] = struct{}{}
		keys = append(keys, string(proof.P.SerializeCompressed()))
	}
	require.Len(t, seen, 4)
	require.Equal(t, 4, store.Len())

	// The preferred output is used first.
	preferred, err := w.CommitmentKey(ctx, ops[1])
	require.NoError(t, err)
	pub := string(preferred.PubKey().SerializeCompressed())
	require.Equal(t, []string{pub, pub}, keys[:2])

	_, _, err = src.next(ctx, "maker", 1)
	require.ErrorIs(t, err, ErrCommitmentsExhausted)

	// A new source skips everything already recorded.
	src = newCommitmentSource(w, store, 1, nil, utxos)
	_, _, err = src.next(ctx, "maker", 1)
	require.ErrorIs(t, err, ErrCommitmentsExhausted)
}
