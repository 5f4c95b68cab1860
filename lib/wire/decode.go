// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Decode reads a record laid out by schema. A nil schema yields an
// empty record whatever the buffer holds. Leaf values come back as the
// Go type matching their tag: int8, uint8, int16, uint16, int32,
// uint32, float32 or float64.
func Decode(schema *Schema, buffer []byte) (Record, error) {
	if schema == nil {
		return Record{}, nil
	}
	if buffer == nil {
		return nil, ErrMissingData
	}
	if len(buffer) != schema.length {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidBufferLength, len(buffer), schema.length)
	}

	record, _, err := decodeFrom(buffer, 0, schema)
	if err != nil {
		return nil, err
	}
	return record, nil
}

func decodeFrom(buffer []byte, offset int, schema *Schema) (Record, int, error) {
	record := make(Record, len(schema.fields))
	for _, field := range schema.fields {
		if field.IsNode() {
			nested, next, err := decodeFrom(buffer, offset, field.Nested)
			if err != nil {
				return nil, 0, err
			}
			record[field.Name] = nested
			offset = next
			continue
		}

		value, size, err := decodeLeaf(buffer[offset:], field.Type)
		if err != nil {
			return nil, 0, fmt.Errorf("field %s: %w", field.Name, err)
		}
		record[field.Name] = value
		offset += size
	}
	return record, offset, nil
}

func decodeLeaf(buffer []byte, t Type) (any, int, error) {
	switch t {
	case Byte:
		return int8(buffer[0]), 1, nil
	case UByte:
		return buffer[0], 1, nil
	case ShortInt:
		return int16(binary.BigEndian.Uint16(buffer)), 2, nil
	case UShortInt:
		return binary.BigEndian.Uint16(buffer), 2, nil
	case Int:
		return int32(binary.BigEndian.Uint32(buffer)), 4, nil
	case UInt:
		return binary.BigEndian.Uint32(buffer), 4, nil
	case Float:
		return math.Float32frombits(binary.BigEndian.Uint32(buffer)), 4, nil
	case Double:
		return math.Float64frombits(binary.BigEndian.Uint64(buffer)), 8, nil
	default:
		return nil, 0, fmt.Errorf("%w: tag %d", ErrInvalidSize, uint8(t))
	}
}
