// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package wire implements coset's schema-driven binary record format.
//
// A [Schema] is an ordered tree: each [Field] is either a leaf carrying
// one of the eight fixed-width [Type] tags or a nested Schema. The
// layout of an encoded record is the depth-first concatenation of its
// leaves in declared order, with no tags, lengths or padding, so the
// encoded size of every record of a schema is the schema's static
// length:
//
//	schema := wire.MustSchema(
//	    wire.Leaf("x", wire.Float),
//	    wire.Leaf("y", wire.Float),
//	    wire.Node("meta", wire.MustSchema(
//	        wire.Leaf("id", wire.UInt),
//	    )),
//	)
//	buffer, err := wire.Encode(schema, wire.Record{"x": 1.5, "y": -2, "meta": wire.Record{"id": 7}})
//	// len(buffer) == schema.StaticLength() == 12
//
// # Byte Order and Signedness
//
// Multi-byte fields are big-endian. Byte is a signed 8-bit integer and
// UByte an unsigned one. Integers use two's complement; Float and
// Double are IEEE-754 binary32 and binary64. These conventions are part
// of the format and never depend on the host.
//
// # Absence
//
// A nil schema describes an empty message: [Encode] returns a
// zero-length buffer and [Decode] an empty [Record] regardless of the
// other argument. A non-nil schema with nil data or a nil buffer fails
// with [ErrMissingData].
//
// Encode and Decode hold no state and are safe for concurrent use.
//
// [Catalog] loads numbered schemas from YAML or JSONC files, preserving
// field order, and [Schema.Fingerprint] gives a stable digest of a
// layout so that two peers can check they agree on it.
package wire
