// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package taker

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcjoin/protocol"
)

// Phase is the stage of a taker session.
type Phase uint8

const (
	// PhaseCollectingOffers listens for offers.
	PhaseCollectingOffers Phase = iota

	// PhaseCollectingInputs waits for the makers' inputs.
	PhaseCollectingInputs

	// PhaseCollectingSignatures waits for the makers' signatures.
	PhaseCollectingSignatures

	// PhaseBroadcast signs, finalizes and broadcasts.
	PhaseBroadcast

	// PhaseDone is the final state of a successful session.
	PhaseDone

	// PhaseAborted is the final state of a failed session.
	PhaseAborted
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseCollectingOffers:
		return "CollectingOffers"
	case PhaseCollectingInputs:
		return "CollectingInputs"
	case PhaseCollectingSignatures:
		return "CollectingSignatures"
	case PhaseBroadcast:
		return "Broadcast"
	case PhaseDone:
		return "Done"
	case PhaseAborted:
		return "Aborted"
	default:
		return fmt.Sprintf("Phase(%d)", uint8(p))
	}
}

// Session is the view of a running send handed to the timeout policy.
type Session struct {
	// Amount is the coinjoin amount.
	Amount btcutil.Amount

	// Phase is the stage that timed out.
	Phase Phase

	// Selected are the makers currently engaged.
	Selected []*OfferRecord

	// Responded are the makers that answered the current phase.
	Responded []protocol.PeerID

	// Reserve are acceptable offers not engaged yet, cheapest first.
	Reserve []*OfferRecord

	// Rounds counts the replacement rounds already made in this session.
	Rounds int
}

// Decision is a timeout policy's verdict.
type Decision struct {
	// Abort ends the session with ErrPeerTimeout.
	Abort bool

	// Replacements are engaged in place of the makers that timed out.
	// When empty and Abort is false the session continues with the
	// makers that responded.
	Replacements []*OfferRecord
}

// TimeoutPolicy decides how a session reacts to makers that do not answer
// in time.
type TimeoutPolicy interface {
	OnPeerTimeout(s *Session, missing []protocol.PeerID) Decision
}

// AbortPolicy abandons the session on any timeout.
type AbortPolicy struct{}

// OnPeerTimeout always aborts.
func (AbortPolicy) OnPeerTimeout(*Session, []protocol.PeerID) Decision {
	return Decision{Abort: true}
}

// ReplacePolicy replaces makers that did not send their inputs with the
// next cheapest reserve offers.  Once the transaction is built every
// timeout aborts.  The policy holds no state, so one value may serve any
// number of sessions.
type ReplacePolicy struct {
	// MaxRounds bounds how often makers are replaced within a session.
	// Zero allows one round.
	MaxRounds int
}

// OnPeerTimeout engages replacements while reserve offers remain and the
// session has rounds left.
func (p ReplacePolicy) OnPeerTimeout(s *Session,
	missing []protocol.PeerID) Decision {

	maxRounds := p.MaxRounds
	if maxRounds == 0 {
		maxRounds = 1
	}
	if s.Phase != PhaseCollectingInputs || s.Rounds >= maxRounds ||
		len(s.Reserve) < len(missing) {

		return Decision{Abort: true}
	}

	return Decision{Replacements: s.Reserve[:len(missing)]}
}

// MinimumPolicy proceeds with the makers that sent their inputs as long as
// at least Min of them did.  Once the transaction is built every timeout
// aborts.
type MinimumPolicy struct {
	Min int
}

// OnPeerTimeout continues without the missing makers when enough
// responded.
func (p MinimumPolicy) OnPeerTimeout(s *Session,
	_ []protocol.PeerID) Decision {

	if s.Phase != PhaseCollectingInputs || len(s.Responded) < p.Min ||
		len(s.Responded) == 0 {

		return Decision{Abort: true}
	}
	return Decision{}
}
