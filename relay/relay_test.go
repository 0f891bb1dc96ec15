// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package relay

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcjoin/keyring"
	"github.com/btcsuite/btcjoin/protocol"
	"github.com/stretchr/testify/require"
)

func newCodec(t *testing.T) *protocol.Codec {
	t.Helper()

	k, err := keyring.Generate()
	require.NoError(t, err)
	return protocol.NewCodec(k)
}

func offerEnvelope(t *testing.T, c *protocol.Codec,
	fee int64) *protocol.Envelope {

	t.Helper()

	offer := &protocol.AbsOffer{
		OfferTerms: protocol.OfferTerms{
			MinSize: 10000,
			MaxSize: 1000000,
			TxFee:   1000,
		},
		CJFee: btcutil.Amount(fee),
	}
	env, err := c.Encode(offer, "")
	require.NoError(t, err)
	return env
}

func fillEnvelope(t *testing.T, from *protocol.Codec,
	to protocol.PeerID) *protocol.Envelope {

	t.Helper()

	msg := &protocol.UnsignedTx{OfferID: 1, PSBT: "cHNidP8="}
	env, err := from.Encode(msg, to)
	require.NoError(t, err)
	return env
}

func receive(t *testing.T, sub *Subscription) *protocol.Envelope {
	t.Helper()

	select {
	case env, ok := <-sub.Events():
		require.True(t, ok, "subscription closed")
		return env
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func expectNone(t *testing.T, sub *Subscription, wait time.Duration) {
	t.Helper()

	select {
	case env, ok := <-sub.Events():
		if ok {
			t.Fatalf("unexpected event %v", env.ID)
		}
	case <-time.After(wait):
	}
}

// TestFilterMatches checks each filter field in isolation.
func TestFilterMatches(t *testing.T) {
	t.Parallel()

	maker := newCodec(t)
	taker := newCodec(t)
	offer := offerEnvelope(t, maker, 100)
	direct := fillEnvelope(t, taker, maker.PeerID())

	tests := []struct {
		name   string
		filter Filter
		env    *protocol.Envelope
		match  bool
	}{
		{"empty", Filter{}, offer, true},
		{"kind", Filter{Kinds: protocol.OfferKinds}, offer, true},
		{"other kind", Filter{Kinds: protocol.OfferKinds}, direct, false},
		{
			"author",
			Filter{Authors: []protocol.PeerID{maker.PeerID()}},
			offer, true,
		},
		{
			"other author",
			Filter{Authors: []protocol.PeerID{taker.PeerID()}},
			offer, false,
		},
		{
			"recipient",
			Filter{Recipients: []protocol.PeerID{maker.PeerID()}},
			direct, true,
		},
		{
			"untagged",
			Filter{Recipients: []protocol.PeerID{maker.PeerID()}},
			offer, false,
		},
		{
			"since",
			Filter{Since: time.Now().Add(time.Hour)},
			offer, false,
		},
	}
	for _, test := range tests {
		require.Equal(t, test.match, test.filter.Matches(test.env),
			test.name)
	}
}

// TestFilterJSON checks the relay wire form of a filter.
func TestFilterJSON(t *testing.T) {
	t.Parallel()

	f := Filter{
		Kinds:      []protocol.Kind{protocol.KindFill},
		Recipients: []protocol.PeerID{"ab"},
		Since:      time.Unix(1700000000, 0),
	}
	data, err := json.Marshal(f)
	require.NoError(t, err)
	require.JSONEq(t,
		`{"kinds":[20125],"#p":["ab"],"since":1700000000}`,
		string(data))

	var decoded Filter
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, f.Kinds, decoded.Kinds)
	require.Equal(t, f.Recipients, decoded.Recipients)
	require.True(t, f.Since.Equal(decoded.Since))
}

// TestSubscriptionDedupe ensures an event id is delivered once and that
// closing the subscription closes its channel.
func TestSubscriptionDedupe(t *testing.T) {
	t.Parallel()

	closed := make(chan struct{})
	sub := newSubscription(context.Background(), Filter{}, func() {
		close(closed)
	})

	env := offerEnvelope(t, newCodec(t), 100)
	sub.deliver(env)
	sub.deliver(env)

	require.Equal(t, env.ID, receive(t, sub).ID)
	expectNone(t, sub, 50*time.Millisecond)

	sub.Close()
	sub.Close()
	<-closed

	_, ok := <-sub.Events()
	require.False(t, ok)
}

// TestSubscriptionContext ensures cancelling the context ends the
// subscription.
func TestSubscriptionContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	sub := newSubscription(ctx, Filter{}, nil)
	cancel()

	select {
	case _, ok := <-sub.Events():
		require.False(t, ok)
	case <-time.After(5 * time.Second):
		t.Fatal("subscription not closed")
	}
}
