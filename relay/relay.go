// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package relay defines the event relay the protocol runs over and provides
// an in-memory relay, a pool fanning out to several relays, and a websocket
// client for nostr relays.
package relay

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/btcsuite/btcjoin/protocol"
)

// Relay is a publish/subscribe event relay.
//
// Replaceable kinds are stored with only the latest event per author and
// kind.  Ephemeral kinds are forwarded to live subscriptions and not stored.
type Relay interface {
	// Publish sends a signed envelope to the relay.
	Publish(ctx context.Context, env *protocol.Envelope) error

	// Subscribe returns stored events matching f followed by live ones.
	// The subscription ends when ctx is cancelled or it is closed.
	Subscribe(ctx context.Context, f Filter) (*Subscription, error)

	// Delete asks the relay to drop an event previously published by
	// this client.  Relays may ignore the request.
	Delete(ctx context.Context, eventID string) error
}

// Filter selects events.  Empty fields match everything.
type Filter struct {
	Kinds      []protocol.Kind
	Authors    []protocol.PeerID
	Recipients []protocol.PeerID
	Since      time.Time
}

// Matches reports whether env passes the filter.
func (f *Filter) Matches(env *protocol.Envelope) bool {
	if len(f.Kinds) > 0 && !contains(f.Kinds, env.Kind) {
		return false
	}
	if len(f.Authors) > 0 && !contains(f.Authors, env.PubKey) {
		return false
	}
	if len(f.Recipients) > 0 {
		to, ok := env.Recipient()
		if !ok || !contains(f.Recipients, to) {
			return false
		}
	}
	if !f.Since.IsZero() && env.CreatedAt < f.Since.Unix() {
		return false
	}
	return true
}

// filterWire is the relay wire format of a Filter.
type filterWire struct {
	Kinds   []protocol.Kind   `json:"kinds,omitempty"`
	Authors []protocol.PeerID `json:"authors,omitempty"`
	P       []protocol.PeerID `json:"#p,omitempty"`
	Since   int64             `json:"since,omitempty"`
}

// MarshalJSON encodes the filter in the relay wire format.
func (f Filter) MarshalJSON() ([]byte, error) {
	wire := filterWire{
		Kinds:   f.Kinds,
		Authors: f.Authors,
		P:       f.Recipients,
	}
	if !f.Since.IsZero() {
		wire.Since = f.Since.Unix()
	}
	return json.Marshal(wire)
}

// UnmarshalJSON decodes the relay wire format.
func (f *Filter) UnmarshalJSON(data []byte) error {
	var wire filterWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	*f = Filter{
		Kinds:      wire.Kinds,
		Authors:    wire.Authors,
		Recipients: wire.P,
	}
	if wire.Since != 0 {
		f.Since = time.Unix(wire.Since, 0)
	}
	return nil
}

func contains[T comparable](list []T, v T) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// Subscription delivers matching events in arrival order.  Each event id is
// delivered at most once.
type Subscription struct {
	filter Filter
	out    chan *protocol.Envelope

	mu     sync.Mutex
	queue  []*protocol.Envelope
	seen   map[string]struct{}
	signal chan struct{}

	quit      chan struct{}
	closeOnce sync.Once
	onClose   func()
}

// newSubscription starts a subscription.  onClose runs once when it ends.
func newSubscription(ctx context.Context, f Filter,
	onClose func()) *Subscription {

	s := &Subscription{
		filter:  f,
		out:     make(chan *protocol.Envelope),
		seen:    make(map[string]struct{}),
		signal:  make(chan struct{}, 1),
		quit:    make(chan struct{}),
		onClose: onClose,
	}

	go s.pump()
	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-s.quit:
		}
	}()

	return s
}

// Events returns the delivery channel.  It is closed when the subscription
// ends.
func (s *Subscription) Events() <-chan *protocol.Envelope {
	return s.out
}

// Close ends the subscription.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		close(s.quit)
		if s.onClose != nil {
			s.onClose()
		}
	})
}

// deliver queues env if it matches and has not been seen.  It never blocks.
func (s *Subscription) deliver(env *protocol.Envelope) {
	if !s.filter.Matches(env) {
		return
	}

	s.mu.Lock()
	if _, ok := s.seen[env.ID]; ok {
		s.mu.Unlock()
		return
	}
	s.seen[env.ID] = struct{}{}
	s.queue = append(s.queue, env)
	s.mu.Unlock()

	select {
	case s.signal <- struct{}{}:
	default:
	}
}

// pump moves queued events to the delivery channel.
func (s *Subscription) pump() {
	defer close(s.out)

	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()

			select {
			case <-s.signal:
				continue
			case <-s.quit:
				return
			}
		}
		env := s.queue[0]
		s.queue[0] = nil
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- env:
		case <-s.quit:
			return
		}
	}
}
