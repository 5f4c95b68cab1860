// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"fmt"
	"strings"
)

// Type is a fixed-width numeric type tag.
type Type uint8

const (
	// Byte is a signed 8-bit integer.
	Byte Type = iota + 1
	// UByte is an unsigned 8-bit integer.
	UByte
	// ShortInt is a signed 16-bit integer.
	ShortInt
	// UShortInt is an unsigned 16-bit integer.
	UShortInt
	// Int is a signed 32-bit integer.
	Int
	// UInt is an unsigned 32-bit integer.
	UInt
	// Float is an IEEE-754 binary32 number.
	Float
	// Double is an IEEE-754 binary64 number.
	Double
)

var typeNames = map[Type]string{
	Byte:      "Byte",
	UByte:     "UByte",
	ShortInt:  "ShortInt",
	UShortInt: "UShortInt",
	Int:       "Int",
	UInt:      "UInt",
	Float:     "Float",
	Double:    "Double",
}

// Size returns the encoded width of the type in bytes. Unknown tags
// return ErrInvalidSize.
func (t Type) Size() (int, error) {
	switch t {
	case Byte, UByte:
		return 1, nil
	case ShortInt, UShortInt:
		return 2, nil
	case Int, UInt, Float:
		return 4, nil
	case Double:
		return 8, nil
	default:
		return 0, fmt.Errorf("%w: tag %d", ErrInvalidSize, uint8(t))
	}
}

// Valid reports whether t is one of the eight defined tags.
func (t Type) Valid() bool {
	_, ok := typeNames[t]
	return ok
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Type(%d)", uint8(t))
}

// ParseType returns the tag named by name. Matching ignores case and
// also accepts the short spellings used in catalog files ("short",
// "ushort", "int8", "uint32", ...).
func ParseType(name string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "byte", "int8":
		return Byte, nil
	case "ubyte", "uint8":
		return UByte, nil
	case "shortint", "short", "int16":
		return ShortInt, nil
	case "ushortint", "ushort", "uint16":
		return UShortInt, nil
	case "int", "int32":
		return Int, nil
	case "uint", "uint32":
		return UInt, nil
	case "float", "float32":
		return Float, nil
	case "double", "float64":
		return Double, nil
	default:
		return 0, fmt.Errorf("%w: unknown type name %q", ErrInvalidSize, name)
	}
}
