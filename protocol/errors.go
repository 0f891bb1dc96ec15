// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package protocol

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode identifies a kind of protocol error.
type ErrorCode int

// These constants are used to identify a specific Error.
const (
	// ErrProtocolViolation indicates a message that is malformed, carries
	// unexpected fields, or arrives from the wrong peer.  The sender is
	// ignored for the rest of the cycle.
	ErrProtocolViolation ErrorCode = iota

	// ErrCommitmentInvalid indicates a fill whose commitment failed
	// verification or was already used.  The fill is rejected silently.
	ErrCommitmentInvalid

	// ErrValueMismatch indicates a transaction that does not match the
	// negotiated terms.  Signing is refused.
	ErrValueMismatch

	// ErrPeerTimeout indicates that a counterparty did not respond before
	// the deadline.
	ErrPeerTimeout

	// ErrTransportFailure indicates the relay could not be reached.
	ErrTransportFailure

	// ErrBadSignature indicates an envelope whose id or signature does not
	// verify.  It is never reported as a parse error.
	ErrBadSignature
)

// Map of ErrorCode values back to their constant names for pretty printing.
var errorCodeStrings = map[ErrorCode]string{
	ErrProtocolViolation: "ErrProtocolViolation",
	ErrCommitmentInvalid: "ErrCommitmentInvalid",
	ErrValueMismatch:     "ErrValueMismatch",
	ErrPeerTimeout:       "ErrPeerTimeout",
	ErrTransportFailure:  "ErrTransportFailure",
	ErrBadSignature:      "ErrBadSignature",
}

// String returns the ErrorCode as a human-readable name.
func (e ErrorCode) String() string {
	if s := errorCodeStrings[e]; s != "" {
		return s
	}
	return fmt.Sprintf("Unknown ErrorCode (%d)", int(e))
}

// Error provides a single type for errors that can happen while negotiating
// a coinjoin.
type Error struct {
	ErrorCode   ErrorCode // Describes the kind of error
	Description string    // Human readable description of the issue
	Err         error     // Underlying error
	Peers       []PeerID  // Counterparties responsible, if known
}

// Error satisfies the error interface and prints human-readable errors.
func (e Error) Error() string {
	msg := e.Description
	if len(e.Peers) > 0 {
		peers := make([]string, len(e.Peers))
		for i, p := range e.Peers {
			peers[i] = p.Short()
		}
		msg += " (peers: " + strings.Join(peers, ", ") + ")"
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e Error) Unwrap() error {
	return e.Err
}

// NewError creates an Error given a set of arguments.
func NewError(c ErrorCode, desc string, err error, peers ...PeerID) Error {
	return Error{ErrorCode: c, Description: desc, Err: err, Peers: peers}
}

// IsError returns whether err is an Error with a matching error code.
func IsError(err error, code ErrorCode) bool {
	var e Error
	return errors.As(err, &e) && e.ErrorCode == code
}
