// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"time"
)

// Codec converts between protocol messages and signed relay envelopes for
// one identity.
type Codec struct {
	crypter Crypter

	// now is the clock used for created_at.
	now func() time.Time
}

// NewCodec returns a codec that signs and decrypts as c.
func NewCodec(c Crypter) *Codec {
	return &Codec{crypter: c, now: time.Now}
}

// PeerID returns the identity of the codec.
func (c *Codec) PeerID() PeerID {
	return c.crypter.PeerID()
}

// Encode wraps msg in a signed envelope.  Offers are published in the clear.
// Every other message is encrypted to recipient and tagged with it.
func (c *Codec) Encode(msg Message, recipient PeerID) (*Envelope, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}

	env := &Envelope{
		CreatedAt: c.now().Unix(),
		Kind:      msg.Kind(),
		Tags:      []Tag{},
	}

	switch {
	case msg.Kind().Replaceable():
		env.Content = string(body)

	case recipient == "":
		return nil, errors.New("encrypted message needs a recipient")

	default:
		env.Content, err = c.crypter.Encrypt(recipient, body)
		if err != nil {
			return nil, err
		}
		env.Tags = append(env.Tags, Tag{"p", string(recipient)})
	}

	if err := env.Sign(c.crypter); err != nil {
		return nil, err
	}
	return env, nil
}

// Decode verifies and unwraps an envelope.
//
// The signature is checked before anything else and a failure is reported
// with ErrBadSignature.  Unknown kinds, messages not addressed to this
// identity, undecryptable content and content that does not match the
// kind's schema are reported with ErrProtocolViolation.
func (c *Codec) Decode(env *Envelope) (Message, error) {
	if err := env.Verify(); err != nil {
		return nil, NewError(ErrBadSignature, "invalid envelope "+
			"signature", err, env.PubKey)
	}

	msg, err := newMessage(env.Kind)
	if err != nil {
		return nil, NewError(ErrProtocolViolation, "unexpected kind",
			err, env.PubKey)
	}

	body := []byte(env.Content)
	if env.Kind.Ephemeral() {
		to, ok := env.Recipient()
		if !ok || to != c.crypter.PeerID() {
			return nil, NewError(ErrProtocolViolation,
				"message not addressed to us", nil, env.PubKey)
		}

		body, err = c.crypter.Decrypt(env.PubKey, env.Content)
		if err != nil {
			return nil, NewError(ErrProtocolViolation,
				"unable to decrypt content", err, env.PubKey)
		}
	}

	if err := validateContent(env.Kind, body); err != nil {
		return nil, NewError(ErrProtocolViolation, "malformed "+
			env.Kind.String(), err, env.PubKey)
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(msg); err != nil {
		return nil, NewError(ErrProtocolViolation, "malformed "+
			env.Kind.String(), err, env.PubKey)
	}

	if offer, ok := msg.(Offer); ok {
		if err := offer.Validate(); err != nil {
			return nil, NewError(ErrProtocolViolation,
				"invalid offer", err, env.PubKey)
		}
	}

	log.Tracef("Decoded %v from %v", env.Kind, env.PubKey.Short())

	return msg, nil
}

// NewDeletion returns a signed request to delete the given events.
func (c *Codec) NewDeletion(ids ...string) (*Envelope, error) {
	env := &Envelope{
		CreatedAt: c.now().Unix(),
		Kind:      KindDeletion,
		Tags:      make([]Tag, 0, len(ids)),
	}
	for _, id := range ids {
		env.Tags = append(env.Tags, Tag{"e", id})
	}

	if err := env.Sign(c.crypter); err != nil {
		return nil, err
	}
	return env, nil
}
