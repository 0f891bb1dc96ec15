// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package relay

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/btcsuite/btcjoin/protocol"
)

// ErrInvalidEvent is returned when a published envelope fails verification.
var ErrInvalidEvent = errors.New("invalid event")

// MemRelay is an in-process relay with the storage semantics of a nostr
// relay.  It is used for tests and local simulations.
type MemRelay struct {
	mu     sync.Mutex
	stored map[string]*protocol.Envelope
	subs   map[uint64]*Subscription
	nextID uint64

	// dropFn, when set, decides which published events are silently
	// lost.
	dropFn func(*protocol.Envelope) bool
}

// A compile-time assertion to ensure MemRelay implements Relay.
var _ Relay = (*MemRelay)(nil)

// NewMemRelay returns an empty relay.
func NewMemRelay() *MemRelay {
	return &MemRelay{
		stored: make(map[string]*protocol.Envelope),
		subs:   make(map[uint64]*Subscription),
	}
}

// SetDropFilter installs f to decide which published events are lost.
func (r *MemRelay) SetDropFilter(f func(*protocol.Envelope) bool) {
	r.mu.Lock()
	r.dropFn = f
	r.mu.Unlock()
}

// Publish stores and forwards env.
func (r *MemRelay) Publish(_ context.Context, env *protocol.Envelope) error {
	if err := env.Verify(); err != nil {
		return errors.Join(ErrInvalidEvent, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.dropFn != nil && r.dropFn(env) {
		log.Tracef("Dropping %v event %v", env.Kind, env.ID)
		return nil
	}

	switch {
	case env.Kind == protocol.KindDeletion:
		for _, id := range env.TagValues("e") {
			target, ok := r.stored[id]
			if ok && target.PubKey == env.PubKey {
				delete(r.stored, id)
			}
		}

	case env.Kind.Replaceable():
		for id, old := range r.stored {
			if old.PubKey != env.PubKey || old.Kind != env.Kind {
				continue
			}
			if old.CreatedAt > env.CreatedAt {
				// A newer version is already stored.
				return nil
			}
			delete(r.stored, id)
		}
		r.stored[env.ID] = env

	case env.Kind.Ephemeral():

	default:
		r.stored[env.ID] = env
	}

	for _, sub := range r.subs {
		sub.deliver(env)
	}
	return nil
}

// Subscribe replays stored matching events, oldest first, then forwards live
// ones.
func (r *MemRelay) Subscribe(ctx context.Context, f Filter) (*Subscription,
	error) {

	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.nextID
	r.nextID++

	sub := newSubscription(ctx, f, func() {
		r.mu.Lock()
		delete(r.subs, id)
		r.mu.Unlock()
	})

	stored := make([]*protocol.Envelope, 0, len(r.stored))
	for _, env := range r.stored {
		stored = append(stored, env)
	}
	sort.Slice(stored, func(i, j int) bool {
		if stored[i].CreatedAt != stored[j].CreatedAt {
			return stored[i].CreatedAt < stored[j].CreatedAt
		}
		return stored[i].ID < stored[j].ID
	})
	for _, env := range stored {
		sub.deliver(env)
	}

	r.subs[id] = sub
	return sub, nil
}

// Delete drops a stored event.
func (r *MemRelay) Delete(_ context.Context, eventID string) error {
	r.mu.Lock()
	delete(r.stored, eventID)
	r.mu.Unlock()
	return nil
}

// Stored returns the stored events of kind.
func (r *MemRelay) Stored(kind protocol.Kind) []*protocol.Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()

	var envs []*protocol.Envelope
	for _, env := range r.stored {
		if env.Kind == kind {
			envs = append(envs, env)
		}
	}
	return envs
}
