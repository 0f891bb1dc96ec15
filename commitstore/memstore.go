// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package commitstore

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"github.com/btcsuite/btcjoin/podle"
)

// MemStore is a Store kept in memory.  Its contents are lost on restart, so it
// is only suitable for tests and short-lived simulations.
type MemStore struct {
	mu   sync.Mutex
	used map[podle.Commitment]Record
}

// NewMemStore returns an empty in-memory registry.
func NewMemStore() *MemStore {
	return &MemStore{used: make(map[podle.Commitment]Record)}
}

// Contains reports whether the commitment has been used.
func (s *MemStore) Contains(_ context.Context, c podle.Commitment) (bool,
	error) {

	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.used[c]
	return ok, nil
}

// Insert adds the commitment to the registry.
func (s *MemStore) Insert(_ context.Context, c podle.Commitment,
	rec Record) error {

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.used[c]; ok {
		return ErrAlreadyUsed
	}
	s.used[c] = rec
	return nil
}

// ForEach calls f for every used commitment in byte order.  f runs without
// the store lock held.
func (s *MemStore) ForEach(_ context.Context,
	f func(podle.Commitment, *Record) error) error {

	s.mu.Lock()
	keys := make([]podle.Commitment, 0, len(s.used))
	recs := make(map[podle.Commitment]Record, len(s.used))
	for c, rec := range s.used {
		keys = append(keys, c)
		recs[c] = rec
	}
	s.mu.Unlock()

	sort.Slice(keys, func(i, j int) bool {
		return bytes.Compare(keys[i][:], keys[j][:]) < 0
	})
	for _, c := range keys {
		rec := recs[c]
		if err := f(c, &rec); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the number of used commitments.
func (s *MemStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.used)
}

// Close is a no-op.
func (s *MemStore) Close() error {
	return nil
}
