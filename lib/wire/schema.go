// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"errors"
	"fmt"
)

// Field is one named entry of a Schema. Exactly one of Type and Nested
// is meaningful: a field with a non-nil Nested schema is a node and its
// Type is ignored; otherwise it is a leaf of the given Type.
type Field struct {
	Name   string
	Type   Type
	Nested *Schema
}

// Leaf returns a leaf field.
func Leaf(name string, t Type) Field {
	return Field{Name: name, Type: t}
}

// Node returns a field holding a nested schema.
func Node(name string, nested *Schema) Field {
	return Field{Name: name, Nested: nested}
}

// IsNode reports whether the field holds a nested schema.
func (f Field) IsNode() bool {
	return f.Nested != nil
}

// Schema is an ordered, immutable record layout. Build one with
// NewSchema or MustSchema; the zero value is an empty layout.
type Schema struct {
	fields []Field
	length int
}

// NewSchema validates fields and returns the schema they describe.
// Field names must be non-empty and unique within one level, and every
// leaf must carry a defined tag (ErrInvalidSize otherwise). The static
// length is computed here once.
func NewSchema(fields ...Field) (*Schema, error) {
	schema := &Schema{fields: make([]Field, 0, len(fields))}
	seen := make(map[string]struct{}, len(fields))

	for _, field := range fields {
		if field.Name == "" {
			return nil, errors.New("wire: field with empty name")
		}
		if _, duplicate := seen[field.Name]; duplicate {
			return nil, fmt.Errorf("wire: duplicate field %q", field.Name)
		}
		seen[field.Name] = struct{}{}

		if field.IsNode() {
			schema.length += field.Nested.length
		} else {
			size, err := field.Type.Size()
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", field.Name, err)
			}
			schema.length += size
		}
		schema.fields = append(schema.fields, field)
	}

	return schema, nil
}

// MustSchema is NewSchema for statically known layouts. It panics on
// an invalid layout.
func MustSchema(fields ...Field) *Schema {
	schema, err := NewSchema(fields...)
	if err != nil {
		panic(err)
	}
	return schema
}

// StaticLength returns the encoded size of every record of the schema.
func (s *Schema) StaticLength() int {
	if s == nil {
		return 0
	}
	return s.length
}

// Fields returns a copy of the schema's fields in declared order.
func (s *Schema) Fields() []Field {
	if s == nil {
		return nil
	}
	fields := make([]Field, len(s.fields))
	copy(fields, s.fields)
	return fields
}

// Len returns the number of top-level fields.
func (s *Schema) Len() int {
	if s == nil {
		return 0
	}
	return len(s.fields)
}

// StaticLength returns schema.StaticLength(), treating a nil schema as
// the empty layout.
func StaticLength(schema *Schema) int {
	return schema.StaticLength()
}
