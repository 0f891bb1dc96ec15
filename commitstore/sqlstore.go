// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package commitstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/btcsuite/btcjoin/podle"

	// Register the pgx driver under name "pgx".
	_ "github.com/jackc/pgx/v5/stdlib"

	// Register SQLite driver under name "sqlite".
	_ "modernc.org/sqlite"
)

// Dialect selects the SQL flavour used by SQLStore.
type Dialect uint8

const (
	// DialectSQLite targets modernc.org/sqlite.
	DialectSQLite Dialect = iota

	// DialectPostgres targets PostgreSQL through pgx.
	DialectPostgres
)

// String returns the database/sql driver name of the dialect.
func (d Dialect) String() string {
	switch d {
	case DialectSQLite:
		return "sqlite"
	case DialectPostgres:
		return "pgx"
	default:
		return "unknown"
	}
}

// schema returns the statement creating the commitments table.
func (d Dialect) schema() string {
	blob := "BLOB"
	if d == DialectPostgres {
		blob = "BYTEA"
	}
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS used_commitments (
	commitment %[1]s PRIMARY KEY,
	offer_id BIGINT NOT NULL,
	first_seen BIGINT NOT NULL,
	counterparty %[1]s
)`, blob)
}

// placeholder returns the n-th (1-based) bind parameter.
func (d Dialect) placeholder(n int) string {
	if d == DialectPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// SQLStore is a Store backed by a SQL database.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

// OpenSQLStore opens a database with the dialect's driver and prepares the
// registry schema.
func OpenSQLStore(ctx context.Context, dialect Dialect,
	dsn string) (*SQLStore, error) {

	db, err := sql.Open(dialect.String(), dsn)
	if err != nil {
		return nil, err
	}

	s, err := NewSQLStore(ctx, db, dialect)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLStore creates the registry table in db if it does not exist.
func NewSQLStore(ctx context.Context, db *sql.DB,
	dialect Dialect) (*SQLStore, error) {

	if _, err := db.ExecContext(ctx, dialect.schema()); err != nil {
		return nil, fmt.Errorf("unable to create registry schema: %w",
			err)
	}

	// SQLite allows a single writer at a time.
	if dialect == DialectSQLite {
		db.SetMaxOpenConns(1)
	}

	log.Debugf("Commitment registry ready (%v)", dialect)

	return &SQLStore{db: db, dialect: dialect}, nil
}

// Contains reports whether the commitment has been used.
func (s *SQLStore) Contains(ctx context.Context, c podle.Commitment) (bool,
	error) {

	query := "SELECT COUNT(*) FROM used_commitments WHERE commitment = " +
		s.dialect.placeholder(1)

	var n int
	if err := s.db.QueryRowContext(ctx, query, c[:]).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// Insert adds the commitment to the registry.  The primary key makes the
// insert atomic; a conflicting row leaves the table unchanged.
func (s *SQLStore) Insert(ctx context.Context, c podle.Commitment,
	rec Record) error {

	query := fmt.Sprintf(`INSERT INTO used_commitments
	(commitment, offer_id, first_seen, counterparty)
	VALUES (%s, %s, %s, %s)
	ON CONFLICT (commitment) DO NOTHING`,
		s.dialect.placeholder(1), s.dialect.placeholder(2),
		s.dialect.placeholder(3), s.dialect.placeholder(4))

	res, err := s.db.ExecContext(ctx, query, c[:], int64(rec.OfferID),
		rec.FirstSeen.Unix(), rec.Counterparty)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		log.Debugf("Commitment %x already used", c[:])
		return ErrAlreadyUsed
	}
	return nil
}

// ForEach calls f for every used commitment, oldest first.
func (s *SQLStore) ForEach(ctx context.Context,
	f func(podle.Commitment, *Record) error) error {

	rows, err := s.db.QueryContext(ctx, `SELECT commitment, offer_id,
	first_seen, counterparty FROM used_commitments
	ORDER BY first_seen, commitment`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			key          []byte
			offerID      int64
			firstSeen    int64
			counterparty []byte
		)
		err := rows.Scan(&key, &offerID, &firstSeen, &counterparty)
		if err != nil {
			return err
		}
		if len(key) != podle.CommitmentSize {
			return fmt.Errorf("corrupt commitment key %x", key)
		}

		var c podle.Commitment
		copy(c[:], key)
		rec := &Record{
			OfferID:      uint32(offerID),
			FirstSeen:    time.Unix(firstSeen, 0),
			Counterparty: counterparty,
		}
		if err := f(c, rec); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Close closes the database handle.
func (s *SQLStore) Close() error {
	return s.db.Close()
}
