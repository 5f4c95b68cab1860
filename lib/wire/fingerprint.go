// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"encoding/hex"

	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/blake3"
)

// canonicalMode encodes schema descriptions with Core Deterministic
// Encoding (RFC 8949 §4.2) so the same layout always hashes the same.
var canonicalMode cbor.EncMode

func init() {
	var err error
	canonicalMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("wire: CBOR encoder initialization failed: " + err.Error())
	}
}

// Canonical returns the CBOR description of the layout: an array with
// one [name, tag] or [name, nested-array] pair per field, in declared
// order.
func (s *Schema) Canonical() ([]byte, error) {
	return canonicalMode.Marshal(describe(s))
}

// Fingerprint returns the hex BLAKE3-256 digest of Canonical. Field
// names, order, tags and nesting all contribute; a nil schema has the
// fingerprint of the empty layout.
func (s *Schema) Fingerprint() string {
	encoded, err := s.Canonical()
	if err != nil {
		// Only strings, small integers and arrays are encoded, which
		// the deterministic mode always accepts.
		panic("wire: encoding schema description: " + err.Error())
	}
	digest := blake3.Sum256(encoded)
	return hex.EncodeToString(digest[:])
}

func describe(s *Schema) []any {
	description := make([]any, 0, s.Len())
	if s == nil {
		return description
	}
	for _, field := range s.fields {
		if field.IsNode() {
			description = append(description, []any{field.Name, describe(field.Nested)})
		} else {
			description = append(description, []any{field.Name, uint8(field.Type)})
		}
	}
	return description
}
