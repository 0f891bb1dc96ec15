// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package relay

import (
	"context"
	"errors"
	"sync"

	"github.com/btcsuite/btcjoin/protocol"
	"golang.org/x/sync/errgroup"
)

// ErrNoRelays is returned by a Pool with no members.
var ErrNoRelays = errors.New("no relays configured")

// Pool fans operations out to several relays.  A publish succeeds when any
// member accepts it, and subscriptions merge the members' events with
// duplicates removed.
type Pool struct {
	relays []Relay
}

// A compile-time assertion to ensure Pool implements Relay.
var _ Relay = (*Pool)(nil)

// NewPool returns a pool over relays.
func NewPool(relays ...Relay) *Pool {
	return &Pool{relays: relays}
}

// Publish sends env to every relay concurrently.
func (p *Pool) Publish(ctx context.Context, env *protocol.Envelope) error {
	if len(p.relays) == 0 {
		return ErrNoRelays
	}

	errs := make([]error, len(p.relays))
	var g errgroup.Group
	for i, r := range p.relays {
		g.Go(func() error {
			errs[i] = r.Publish(ctx, env)
			return nil
		})
	}
	_ = g.Wait()

	for _, err := range errs {
		if err == nil {
			return nil
		}
	}
	return protocol.NewError(protocol.ErrTransportFailure,
		"no relay accepted event "+env.ID, errors.Join(errs...))
}

// Subscribe opens f on every relay and merges the results.
func (p *Pool) Subscribe(ctx context.Context, f Filter) (*Subscription,
	error) {

	if len(p.relays) == 0 {
		return nil, ErrNoRelays
	}

	ctx, cancel := context.WithCancel(ctx)
	merged := newSubscription(ctx, f, cancel)

	opened := 0
	for _, r := range p.relays {
		sub, err := r.Subscribe(ctx, f)
		if err != nil {
			log.Warnf("Unable to subscribe on relay: %v", err)
			continue
		}
		opened++

		go func() {
			for env := range sub.Events() {
				merged.deliver(env)
			}
		}()
	}
	if opened == 0 {
		merged.Close()
		return nil, protocol.NewError(protocol.ErrTransportFailure,
			"unable to subscribe on any relay", nil)
	}

	return merged, nil
}

// Delete asks every relay to drop eventID.  It fails only when all of them
// fail.
func (p *Pool) Delete(ctx context.Context, eventID string) error {
	if len(p.relays) == 0 {
		return ErrNoRelays
	}

	var (
		mu   sync.Mutex
		errs []error
	)
	var g errgroup.Group
	for _, r := range p.relays {
		g.Go(func() error {
			if err := r.Delete(ctx, eventID); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(errs) == len(p.relays) {
		return errors.Join(errs...)
	}
	return nil
}
