// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package protocol

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
)

// Tag is a single event tag such as ["p", "<peer>"].
type Tag []string

// Envelope is a signed relay event.  Its JSON form is the one relays
// exchange.
type Envelope struct {
	ID        string `json:"id"`
	PubKey    PeerID `json:"pubkey"`
	CreatedAt int64  `json:"created_at"`
	Kind      Kind   `json:"kind"`
	Tags      []Tag  `json:"tags"`
	Content   string `json:"content"`
	Sig       string `json:"sig"`
}

// Recipient returns the first "p" tag value, if any.
func (e *Envelope) Recipient() (PeerID, bool) {
	for _, tag := range e.Tags {
		if len(tag) >= 2 && tag[0] == "p" {
			return PeerID(tag[1]), true
		}
	}
	return "", false
}

// TagValues returns the values of every tag named name.
func (e *Envelope) TagValues(name string) []string {
	var values []string
	for _, tag := range e.Tags {
		if len(tag) >= 2 && tag[0] == name {
			values = append(values, tag[1])
		}
	}
	return values
}

// serialize returns the canonical array whose hash is the event id.
func (e *Envelope) serialize() ([]byte, error) {
	tags := e.Tags
	if tags == nil {
		tags = []Tag{}
	}

	var b bytes.Buffer
	enc := json.NewEncoder(&b)
	enc.SetEscapeHTML(false)
	err := enc.Encode([]interface{}{
		0, e.PubKey, e.CreatedAt, e.Kind, tags, e.Content,
	})
	if err != nil {
		return nil, err
	}

	// Encode terminates the value with a newline.
	return bytes.TrimSuffix(b.Bytes(), []byte("\n")), nil
}

// ComputeID returns the event id of the envelope.
func (e *Envelope) ComputeID() ([32]byte, error) {
	ser, err := e.serialize()
	if err != nil {
		return [32]byte{}, err
	}
	return sha256.Sum256(ser), nil
}

// Sign fills in the author, id and signature using c.
func (e *Envelope) Sign(c Crypter) error {
	e.PubKey = c.PeerID()
	if e.Tags == nil {
		e.Tags = []Tag{}
	}

	id, err := e.ComputeID()
	if err != nil {
		return err
	}
	sig, err := c.SignDigest(id)
	if err != nil {
		return err
	}

	e.ID = hex.EncodeToString(id[:])
	e.Sig = hex.EncodeToString(sig)
	return nil
}

// Verify checks that the id matches the content and that the signature was
// made by the author.
func (e *Envelope) Verify() error {
	id, err := e.ComputeID()
	if err != nil {
		return err
	}
	if hex.EncodeToString(id[:]) != e.ID {
		return errors.New("event id does not match content")
	}

	sig, err := hex.DecodeString(e.Sig)
	if err != nil {
		return fmt.Errorf("malformed signature: %w", err)
	}
	return VerifySignature(e.PubKey, id, sig)
}
