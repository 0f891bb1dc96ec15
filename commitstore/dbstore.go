// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package commitstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/btcsuite/btcjoin/podle"
	"github.com/btcsuite/btcwallet/walletdb"

	// Register the bolt-backed walletdb driver.
	_ "github.com/btcsuite/btcwallet/walletdb/bdb"
)

const (
	// DBFilename is the name of the registry database file.
	DBFilename = "commitments.db"

	// DefaultDBTimeout is how long to wait for the database file lock.
	DefaultDBTimeout = 60 * time.Second
)

// usedCommitmentsBucket maps commitment -> TLV encoded Record.
var usedCommitmentsBucket = []byte("usedcommitments")

// DBStore is a Store persisted in a walletdb database.
type DBStore struct {
	db walletdb.DB
}

// OpenDBStore opens, creating if needed, the registry database in dir.
func OpenDBStore(dir string, timeout time.Duration) (*DBStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}
	dbPath := filepath.Join(dir, DBFilename)

	var (
		db  walletdb.DB
		err error
	)
	// The bdb driver takes the path, no-freelist-sync, the lock timeout
	// and the read-only flag.
	const noFreelistSync, readOnly = true, false
	if _, statErr := os.Stat(dbPath); os.IsNotExist(statErr) {
		db, err = walletdb.Create(
			"bdb", dbPath, noFreelistSync, timeout, readOnly,
		)
	} else {
		db, err = walletdb.Open(
			"bdb", dbPath, noFreelistSync, timeout, readOnly,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("unable to open registry: %w", err)
	}
	log.Infof("Opened commitment registry %v", dbPath)

	return NewDBStore(db)
}

// NewDBStore creates a registry in an already opened database.
func NewDBStore(db walletdb.DB) (*DBStore, error) {
	err := walletdb.Update(db, func(tx walletdb.ReadWriteTx) error {
		_, err := tx.CreateTopLevelBucket(usedCommitmentsBucket)
		return err
	})
	if err != nil {
		return nil, err
	}

	return &DBStore{db: db}, nil
}

// Contains reports whether the commitment has been used.
func (s *DBStore) Contains(_ context.Context, c podle.Commitment) (bool,
	error) {

	var found bool
	err := walletdb.View(s.db, func(tx walletdb.ReadTx) error {
		bucket := tx.ReadBucket(usedCommitmentsBucket)
		found = bucket.Get(c[:]) != nil
		return nil
	})
	return found, err
}

// Insert adds the commitment to the registry.  The lookup and the write
// happen in the same database transaction.
func (s *DBStore) Insert(_ context.Context, c podle.Commitment,
	rec Record) error {

	v, err := serializeRecord(&rec)
	if err != nil {
		return err
	}

	return walletdb.Update(s.db, func(tx walletdb.ReadWriteTx) error {
		bucket := tx.ReadWriteBucket(usedCommitmentsBucket)
		if bucket.Get(c[:]) != nil {
			log.Debugf("Commitment %x already used", c[:])
			return ErrAlreadyUsed
		}
		return bucket.Put(c[:], v)
	})
}

// ForEach calls f for every used commitment in key order.
func (s *DBStore) ForEach(_ context.Context,
	f func(podle.Commitment, *Record) error) error {

	return walletdb.View(s.db, func(tx walletdb.ReadTx) error {
		bucket := tx.ReadBucket(usedCommitmentsBucket)
		return bucket.ForEach(func(k, v []byte) error {
			if len(k) != podle.CommitmentSize {
				return fmt.Errorf("corrupt commitment key %x", k)
			}
			var c podle.Commitment
			copy(c[:], k)

			rec, err := deserializeRecord(v)
			if err != nil {
				return err
			}
			return f(c, rec)
		})
	})
}

// Close closes the underlying database.
func (s *DBStore) Close() error {
	return s.db.Close()
}
