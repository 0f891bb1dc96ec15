// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package maker

import "fmt"

// State is the position of a maker in its offer cycle.
type State uint32

const (
	// StateIdle is the state before the first offer is published.
	StateIdle State = iota

	// StateOfferPublished is entered right after an offer is published.
	StateOfferPublished

	// StateAwaitingFill is the resting state while listening for fills.
	StateAwaitingFill

	// StateValidatingCommitment is entered while a fill is checked.
	StateValidatingCommitment

	// StateInputsSent is entered after the maker's inputs are published.
	StateInputsSent

	// StateAwaitingTransaction waits for the taker's unsigned
	// transaction, bounded by the transaction timeout.
	StateAwaitingTransaction

	// StateSigned is entered after the maker signed and returned the
	// transaction.
	StateSigned

	// StateRepublishing is entered when a cycle ends, successfully or
	// not, until the offer is published again.
	StateRepublishing
)

var stateStrings = [...]string{
	StateIdle:                 "Idle",
	StateOfferPublished:       "OfferPublished",
	StateAwaitingFill:         "AwaitingFill",
	StateValidatingCommitment: "ValidatingCommitment",
	StateInputsSent:           "InputsSent",
	StateAwaitingTransaction:  "AwaitingTransaction",
	StateSigned:               "Signed",
	StateRepublishing:         "Republishing",
}

// String returns the State as a human-readable name.
func (s State) String() string {
	if int(s) < len(stateStrings) {
		return stateStrings[s]
	}
	return fmt.Sprintf("State(%d)", uint32(s))
}
