// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package commitstore provides the durable registry of used anti-griefing
// commitments.  A commitment that has been honoured once is never honoured
// again, so the registry only ever grows.
package commitstore

import (
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/btcsuite/btcjoin/podle"
	"github.com/lightningnetwork/lnd/tlv"
)

// ErrAlreadyUsed is returned by Insert when the commitment is already in the
// registry.
var ErrAlreadyUsed = errors.New("commitment already used")

// Record describes the fill that first used a commitment.
type Record struct {
	// OfferID is the offer the commitment was used against.
	OfferID uint32

	// FirstSeen is when the commitment was accepted.
	FirstSeen time.Time

	// Counterparty is the serialized public key of the peer that
	// presented the commitment.
	Counterparty []byte
}

// Store is a set of used commitments.
//
// Implementations must make Insert an atomic check-and-append so that two
// concurrent fills carrying the same commitment cannot both succeed.
type Store interface {
	// Contains reports whether the commitment has been used.
	Contains(ctx context.Context, c podle.Commitment) (bool, error)

	// Insert adds the commitment to the registry.  ErrAlreadyUsed is
	// returned if it was already present, in which case the registry is
	// left unchanged.
	Insert(ctx context.Context, c podle.Commitment, rec Record) error

	// ForEach calls f for every used commitment.  Iteration stops at the
	// first error returned by f, which ForEach then returns.
	ForEach(ctx context.Context,
		f func(podle.Commitment, *Record) error) error

	// Close releases any resources held by the store.
	Close() error
}

const (
	recordTypeOfferID      tlv.Type = 1
	recordTypeFirstSeen    tlv.Type = 3
	recordTypeCounterparty tlv.Type = 5
)

// serializeRecord encodes a record as a TLV stream.
func serializeRecord(rec *Record) ([]byte, error) {
	offerID := rec.OfferID
	firstSeen := uint64(rec.FirstSeen.Unix())
	counterparty := rec.Counterparty

	stream, err := tlv.NewStream(
		tlv.MakePrimitiveRecord(recordTypeOfferID, &offerID),
		tlv.MakePrimitiveRecord(recordTypeFirstSeen, &firstSeen),
		tlv.MakePrimitiveRecord(recordTypeCounterparty, &counterparty),
	)
	if err != nil {
		return nil, err
	}

	var b bytes.Buffer
	if err := stream.Encode(&b); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

// deserializeRecord decodes a record written by serializeRecord.
func deserializeRecord(b []byte) (*Record, error) {
	var (
		offerID      uint32
		firstSeen    uint64
		counterparty []byte
	)

	stream, err := tlv.NewStream(
		tlv.MakePrimitiveRecord(recordTypeOfferID, &offerID),
		tlv.MakePrimitiveRecord(recordTypeFirstSeen, &firstSeen),
		tlv.MakePrimitiveRecord(recordTypeCounterparty, &counterparty),
	)
	if err != nil {
		return nil, err
	}
	if err := stream.Decode(bytes.NewReader(b)); err != nil {
		return nil, err
	}

	return &Record{
		OfferID:      offerID,
		FirstSeen:    time.Unix(int64(firstSeen), 0),
		Counterparty: counterparty,
	}, nil
}
