// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package relay

import (
	"context"
	"testing"
	"time"

	"github.com/btcsuite/btcjoin/protocol"
	"github.com/stretchr/testify/require"
)

// TestMemRelayReplaceable ensures only the latest offer per author is kept
// and replayed to new subscribers.
func TestMemRelayReplaceable(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r := NewMemRelay()
	maker := newCodec(t)
	other := newCodec(t)

	first := offerEnvelope(t, maker, 100)
	second := offerEnvelope(t, maker, 200)
	third := offerEnvelope(t, other, 300)
	require.NoError(t, r.Publish(ctx, first))
	require.NoError(t, r.Publish(ctx, second))
	require.NoError(t, r.Publish(ctx, third))

	stored := r.Stored(protocol.KindAbsOffer)
	require.Len(t, stored, 2)

	sub, err := r.Subscribe(ctx, Filter{
		Authors: []protocol.PeerID{maker.PeerID()},
	})
	require.NoError(t, err)
	defer sub.Close()

	require.Equal(t, second.ID, receive(t, sub).ID)
	expectNone(t, sub, 50*time.Millisecond)
}

// TestMemRelayEphemeral ensures ephemeral events reach live subscribers only.
func TestMemRelayEphemeral(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r := NewMemRelay()
	maker := newCodec(t)
	taker := newCodec(t)

	live, err := r.Subscribe(ctx, Filter{
		Recipients: []protocol.PeerID{maker.PeerID()},
	})
	require.NoError(t, err)
	defer live.Close()

	env := fillEnvelope(t, taker, maker.PeerID())
	require.NoError(t, r.Publish(ctx, env))
	require.Equal(t, env.ID, receive(t, live).ID)
	require.Empty(t, r.Stored(protocol.KindUnsignedTx))

	late, err := r.Subscribe(ctx, Filter{})
	require.NoError(t, err)
	defer late.Close()
	expectNone(t, late, 50*time.Millisecond)
}

// TestMemRelayDeletion ensures only the author can delete an event.
func TestMemRelayDeletion(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r := NewMemRelay()
	maker := newCodec(t)
	mallory := newCodec(t)

	offer := offerEnvelope(t, maker, 100)
	require.NoError(t, r.Publish(ctx, offer))

	forged, err := mallory.NewDeletion(offer.ID)
	require.NoError(t, err)
	require.NoError(t, r.Publish(ctx, forged))
	require.Len(t, r.Stored(protocol.KindAbsOffer), 1)

	del, err := maker.NewDeletion(offer.ID)
	require.NoError(t, err)
	require.NoError(t, r.Publish(ctx, del))
	require.Empty(t, r.Stored(protocol.KindAbsOffer))
}

// TestMemRelayRejectsInvalid ensures tampered events are refused.
func TestMemRelayRejectsInvalid(t *testing.T) {
	t.Parallel()

	r := NewMemRelay()
	env := offerEnvelope(t, newCodec(t), 100)
	env.Content = `{"tampered":true}`

	err := r.Publish(context.Background(), env)
	require.ErrorIs(t, err, ErrInvalidEvent)
	require.Empty(t, r.Stored(protocol.KindAbsOffer))
}

// TestMemRelayDropFilter ensures dropped events are neither stored nor
// forwarded.
func TestMemRelayDropFilter(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r := NewMemRelay()
	maker := newCodec(t)

	r.SetDropFilter(func(env *protocol.Envelope) bool {
		return env.PubKey == maker.PeerID()
	})

	sub, err := r.Subscribe(ctx, Filter{})
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, r.Publish(ctx, offerEnvelope(t, maker, 100)))
	expectNone(t, sub, 50*time.Millisecond)
	require.Empty(t, r.Stored(protocol.KindAbsOffer))

	r.SetDropFilter(nil)
	env := offerEnvelope(t, maker, 200)
	require.NoError(t, r.Publish(ctx, env))
	require.Equal(t, env.ID, receive(t, sub).ID)
}
