// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import "errors"

var (
	// ErrMissingData is returned when a schema is present but the data
	// or buffer to convert is not, or when a record lacks a field the
	// schema declares.
	ErrMissingData = errors.New("wire: missing data")

	// ErrInvalidBufferLength is returned by Decode when the buffer
	// length differs from the schema's static length.
	ErrInvalidBufferLength = errors.New("wire: invalid buffer length")

	// ErrInvalidSize is returned for a type tag outside the eight
	// defined tags.
	ErrInvalidSize = errors.New("wire: invalid type size")

	// ErrInvalidValue is returned by Encode when a record value has the
	// wrong kind for its field or does not fit the field's type.
	ErrInvalidValue = errors.New("wire: invalid value")
)
