// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import (
	"context"
	"crypto/rand"
	"sort"
	"sync"
	"time"

	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/wtxmgr"
)

// NewLockID returns a random lease identifier.
func NewLockID() (wtxmgr.LockID, error) {
	var id wtxmgr.LockID
	if _, err := rand.Read(id[:]); err != nil {
		return id, err
	}
	return id, nil
}

// OutputLeaser is an in-memory lease table.  A leased output is excluded
// from coin selection until it is released or its lease expires.
type OutputLeaser struct {
	mu     sync.Mutex
	leases map[wire.OutPoint]*wtxmgr.LockedOutput

	// now is the clock used for expirations.
	now func() time.Time
}

// NewOutputLeaser returns an empty lease table.
func NewOutputLeaser() *OutputLeaser {
	return &OutputLeaser{
		leases: make(map[wire.OutPoint]*wtxmgr.LockedOutput),
		now:    time.Now,
	}
}

// LeaseOutput locks op to id for duration.  Leasing an output already held
// by id extends the lease.  If the output is held by another id,
// wtxmgr.ErrOutputAlreadyLocked is returned.
func (l *OutputLeaser) LeaseOutput(_ context.Context, id wtxmgr.LockID,
	op wire.OutPoint, duration time.Duration) (time.Time, error) {

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if lease, ok := l.leases[op]; ok && lease.LockID != id &&
		now.Before(lease.Expiration) {

		return time.Time{}, wtxmgr.ErrOutputAlreadyLocked
	}

	expiration := now.Add(duration)
	l.leases[op] = &wtxmgr.LockedOutput{
		Outpoint:   op,
		LockID:     id,
		Expiration: expiration,
	}

	log.Tracef("Leased output %v until %v", op, expiration)

	return expiration, nil
}

// ReleaseOutput unlocks op.  Only the holder of an active lease may release
// it; wtxmgr.ErrOutputUnlockNotAllowed is returned otherwise.  Releasing an
// output that is not leased is a no-op.
func (l *OutputLeaser) ReleaseOutput(_ context.Context, id wtxmgr.LockID,
	op wire.OutPoint) error {

	l.mu.Lock()
	defer l.mu.Unlock()

	lease, ok := l.leases[op]
	if !ok {
		return nil
	}
	if lease.LockID != id && l.now().Before(lease.Expiration) {
		return wtxmgr.ErrOutputUnlockNotAllowed
	}

	delete(l.leases, op)
	log.Tracef("Released output %v", op)

	return nil
}

// LeasedOutputs returns the unexpired leases ordered by outpoint.
func (l *OutputLeaser) LeasedOutputs(
	_ context.Context) ([]*wtxmgr.LockedOutput, error) {

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	leases := make([]*wtxmgr.LockedOutput, 0, len(l.leases))
	for op, lease := range l.leases {
		if !now.Before(lease.Expiration) {
			delete(l.leases, op)
			continue
		}
		leaseCopy := *lease
		leases = append(leases, &leaseCopy)
	}
	sort.Slice(leases, func(i, j int) bool {
		return outPointLess(&leases[i].Outpoint, &leases[j].Outpoint)
	})

	return leases, nil
}

// IsLeased reports whether op is under an active lease.
func (l *OutputLeaser) IsLeased(op wire.OutPoint) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	lease, ok := l.leases[op]
	return ok && l.now().Before(lease.Expiration)
}

// filterLeased drops leased outputs from utxos.
func (l *OutputLeaser) filterLeased(utxos []*Utxo) []*Utxo {
	free := utxos[:0]
	for _, u := range utxos {
		if !l.IsLeased(u.OutPoint) {
			free = append(free, u)
		}
	}
	return free
}
