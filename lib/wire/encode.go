// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Record holds the values of one message. Leaf values are Go numbers
// and node values are nested Records.
type Record = map[string]any

// Encode writes data in the layout described by schema. A nil schema
// produces an empty buffer and ignores data.
func Encode(schema *Schema, data Record) ([]byte, error) {
	if schema == nil {
		return []byte{}, nil
	}
	if data == nil {
		return nil, ErrMissingData
	}

	buffer := make([]byte, schema.length)
	if _, err := encodeInto(buffer, 0, schema, data, ""); err != nil {
		return nil, err
	}
	return buffer, nil
}

// encodeInto writes record at offset and returns the offset after it.
func encodeInto(buffer []byte, offset int, schema *Schema, record Record, path string) (int, error) {
	for _, field := range schema.fields {
		fieldPath := joinPath(path, field.Name)
		value, present := record[field.Name]
		if !present || value == nil {
			return 0, fmt.Errorf("%w: field %s", ErrMissingData, fieldPath)
		}

		if field.IsNode() {
			nested, ok := value.(Record)
			if !ok {
				return 0, fmt.Errorf("%w: field %s holds %T, want a nested record", ErrInvalidValue, fieldPath, value)
			}
			next, err := encodeInto(buffer, offset, field.Nested, nested, fieldPath)
			if err != nil {
				return 0, err
			}
			offset = next
			continue
		}

		size, err := encodeLeaf(buffer[offset:], field.Type, value)
		if err != nil {
			return 0, fmt.Errorf("field %s: %w", fieldPath, err)
		}
		offset += size
	}
	return offset, nil
}

func encodeLeaf(buffer []byte, t Type, value any) (int, error) {
	switch t {
	case Byte:
		integer, err := signedValue(value, math.MinInt8, math.MaxInt8)
		if err != nil {
			return 0, err
		}
		buffer[0] = byte(int8(integer))
		return 1, nil
	case UByte:
		integer, err := unsignedValue(value, math.MaxUint8)
		if err != nil {
			return 0, err
		}
		buffer[0] = byte(integer)
		return 1, nil
	case ShortInt:
		integer, err := signedValue(value, math.MinInt16, math.MaxInt16)
		if err != nil {
			return 0, err
		}
		binary.BigEndian.PutUint16(buffer, uint16(int16(integer)))
		return 2, nil
	case UShortInt:
		integer, err := unsignedValue(value, math.MaxUint16)
		if err != nil {
			return 0, err
		}
		binary.BigEndian.PutUint16(buffer, uint16(integer))
		return 2, nil
	case Int:
		integer, err := signedValue(value, math.MinInt32, math.MaxInt32)
		if err != nil {
			return 0, err
		}
		binary.BigEndian.PutUint32(buffer, uint32(int32(integer)))
		return 4, nil
	case UInt:
		integer, err := unsignedValue(value, math.MaxUint32)
		if err != nil {
			return 0, err
		}
		binary.BigEndian.PutUint32(buffer, uint32(integer))
		return 4, nil
	case Float:
		number, err := floatValue(value)
		if err != nil {
			return 0, err
		}
		// Infinities and NaN pass through; finite values must fit.
		if math.Abs(number) > math.MaxFloat32 && !math.IsInf(number, 0) {
			return 0, fmt.Errorf("%w: %v overflows float32", ErrInvalidValue, number)
		}
		binary.BigEndian.PutUint32(buffer, math.Float32bits(float32(number)))
		return 4, nil
	case Double:
		number, err := floatValue(value)
		if err != nil {
			return 0, err
		}
		binary.BigEndian.PutUint64(buffer, math.Float64bits(number))
		return 8, nil
	default:
		return 0, fmt.Errorf("%w: tag %d", ErrInvalidSize, uint8(t))
	}
}

// signedValue converts any Go integer, or a float with no fractional
// part, to int64 and checks it against [minimum, maximum].
func signedValue(value any, minimum, maximum int64) (int64, error) {
	var integer int64
	switch typed := value.(type) {
	case int:
		integer = int64(typed)
	case int8:
		integer = int64(typed)
	case int16:
		integer = int64(typed)
	case int32:
		integer = int64(typed)
	case int64:
		integer = typed
	case uint, uint8, uint16, uint32, uint64:
		unsigned, err := unsignedValue(value, math.MaxInt64)
		if err != nil {
			return 0, err
		}
		integer = int64(unsigned)
	case float32, float64:
		number, _ := floatValue(value)
		if number != math.Trunc(number) || number < math.MinInt64 || number > math.MaxInt64 {
			return 0, fmt.Errorf("%w: %v is not an integer", ErrInvalidValue, value)
		}
		integer = int64(number)
	default:
		return 0, fmt.Errorf("%w: %T is not a number", ErrInvalidValue, value)
	}

	if integer < minimum || integer > maximum {
		return 0, fmt.Errorf("%w: %d outside [%d, %d]", ErrInvalidValue, integer, minimum, maximum)
	}
	return integer, nil
}

// unsignedValue converts any non-negative Go integer, or a float with no
// fractional part, to uint64 and checks it against maximum.
func unsignedValue(value any, maximum uint64) (uint64, error) {
	var integer uint64
	switch typed := value.(type) {
	case uint:
		integer = uint64(typed)
	case uint8:
		integer = uint64(typed)
	case uint16:
		integer = uint64(typed)
	case uint32:
		integer = uint64(typed)
	case uint64:
		integer = typed
	case int, int8, int16, int32, int64:
		signed, err := signedValue(value, 0, math.MaxInt64)
		if err != nil {
			return 0, err
		}
		integer = uint64(signed)
	case float32, float64:
		number, _ := floatValue(value)
		if number != math.Trunc(number) || number < 0 || number > math.MaxUint64 {
			return 0, fmt.Errorf("%w: %v is not a non-negative integer", ErrInvalidValue, value)
		}
		integer = uint64(number)
	default:
		return 0, fmt.Errorf("%w: %T is not a number", ErrInvalidValue, value)
	}

	if integer > maximum {
		return 0, fmt.Errorf("%w: %d above %d", ErrInvalidValue, integer, maximum)
	}
	return integer, nil
}

func floatValue(value any) (float64, error) {
	switch typed := value.(type) {
	case float32:
		return float64(typed), nil
	case float64:
		return typed, nil
	case int:
		return float64(typed), nil
	case int8:
		return float64(typed), nil
	case int16:
		return float64(typed), nil
	case int32:
		return float64(typed), nil
	case int64:
		return float64(typed), nil
	case uint:
		return float64(typed), nil
	case uint8:
		return float64(typed), nil
	case uint16:
		return float64(typed), nil
	case uint32:
		return float64(typed), nil
	case uint64:
		return float64(typed), nil
	default:
		return 0, fmt.Errorf("%w: %T is not a number", ErrInvalidValue, value)
	}
}

func joinPath(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "." + name
}
