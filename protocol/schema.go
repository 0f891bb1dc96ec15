// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Shared schema fragments.
const (
	schemaOfferID = `{"type": "integer", "minimum": 0, "maximum": 4294967295}`
	schemaAmount  = `{"type": "integer", "minimum": 0}`
	schemaHex32   = `{"type": "string", "pattern": "^[0-9a-f]{64}$"}`
	schemaPoint   = `{"type": "string", "pattern": "^0[23][0-9a-f]{64}$"}`
	schemaPSBT    = `{"type": "string", "minLength": 1}`
)

// offerSchema builds the schema of an offer whose cjfee has feeSchema.
func offerSchema(feeSchema string) string {
	return fmt.Sprintf(`{
	"type": "object",
	"additionalProperties": false,
	"required": ["oid", "minsize", "maxsize", "txfee", "cjfee"],
	"properties": {
		"oid": %s,
		"minsize": %s,
		"maxsize": %s,
		"txfee": %s,
		"cjfee": %s
	}
}`, schemaOfferID, schemaAmount, schemaAmount, schemaAmount, feeSchema)
}

// txSchema is the schema shared by UnsignedTx and SignedTx.
var txSchema = fmt.Sprintf(`{
	"type": "object",
	"additionalProperties": false,
	"required": ["oid", "psbt"],
	"properties": {
		"oid": %s,
		"psbt": %s
	}
}`, schemaOfferID, schemaPSBT)

// contentSchemas holds the source of the JSON schema for each kind.
var contentSchemas = map[Kind]string{
	KindAbsOffer: offerSchema(schemaAmount),
	KindRelOffer: offerSchema(
		`{"type": "number", "minimum": 0, "maximum": 1}`,
	),
	KindFill: fmt.Sprintf(`{
	"type": "object",
	"additionalProperties": false,
	"required": ["oid", "amount", "tencpubkey", "commitment",
		"revelation", "sig"],
	"properties": {
		"oid": %[1]s,
		"amount": %[2]s,
		"tencpubkey": %[3]s,
		"commitment": %[3]s,
		"revelation": {
			"type": "object",
			"additionalProperties": false,
			"required": ["P", "P2", "sig", "e", "index"],
			"properties": {
				"P": %[4]s,
				"P2": %[4]s,
				"sig": %[3]s,
				"e": %[3]s,
				"index": {"type": "integer", "minimum": 0, "maximum": 255}
			}
		},
		"sig": {"type": "string", "pattern": "^[0-9a-f]{16,146}$"}
	}
}`, schemaOfferID, schemaAmount, schemaHex32, schemaPoint),
	KindMakerInput: fmt.Sprintf(`{
	"type": "object",
	"additionalProperties": false,
	"required": ["oid", "ulist", "coinjoinA", "changeA"],
	"properties": {
		"oid": %s,
		"ulist": {
			"type": "array",
			"minItems": 1,
			"items": {
				"type": "string",
				"pattern": "^[0-9a-f]{64}:[0-9]{1,10}$"
			}
		},
		"coinjoinA": {"type": "string", "minLength": 1},
		"changeA": {"type": "string", "minLength": 1}
	}
}`, schemaOfferID),
	KindUnsignedTx: txSchema,
	KindSignedTx:   txSchema,
}

// compiledSchemas is populated from contentSchemas at init.
var compiledSchemas = make(map[Kind]*jsonschema.Schema)

func init() {
	for kind, src := range contentSchemas {
		url := fmt.Sprintf("btcjoin://schemas/%d.json", int(kind))
		compiledSchemas[kind] = jsonschema.MustCompileString(url, src)
	}
}

// validateContent checks a decrypted message body against the schema of its
// kind.
func validateContent(kind Kind, body []byte) error {
	schema, ok := compiledSchemas[kind]
	if !ok {
		return fmt.Errorf("no schema for kind %v", kind)
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var doc interface{}
	if err := dec.Decode(&doc); err != nil {
		return err
	}
	if dec.More() {
		return fmt.Errorf("trailing data after %v content", kind)
	}

	return schema.Validate(doc)
}
