// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// firstApplicationType is the lowest message type id a catalog may
// declare. Ids 0 and 1 carry heartbeat pings and pongs.
const firstApplicationType = 2

// CatalogEntry is one numbered schema of a catalog.
type CatalogEntry struct {
	Type   uint32
	Name   string
	Schema *Schema
}

// Catalog is a set of schemas keyed by message type id, loaded from a
// file. Entries keep the order of the file.
//
// YAML form:
//
//	schemas:
//	  - type: 2
//	    name: position
//	    fields:
//	      x: Float
//	      y: Float
//	      meta:
//	        id: UInt
//
// The JSONC form has the same shape and may contain comments and
// trailing commas. In both forms the order of the fields mapping is the
// wire order.
type Catalog struct {
	entries []CatalogEntry
	byType  map[uint32]int
}

// LoadCatalog reads a catalog file, choosing the parser by extension:
// .yaml and .yml are YAML, .json and .jsonc are JSONC.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading schema catalog: %w", err)
	}

	var catalog *Catalog
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		catalog, err = ParseCatalogYAML(data)
	case ".json", ".jsonc":
		catalog, err = ParseCatalogJSONC(data)
	default:
		return nil, fmt.Errorf("schema catalog %s: unsupported extension %q", path, filepath.Ext(path))
	}
	if err != nil {
		return nil, fmt.Errorf("schema catalog %s: %w", path, err)
	}
	return catalog, nil
}

type yamlCatalog struct {
	Schemas []yamlCatalogEntry `yaml:"schemas"`
}

type yamlCatalogEntry struct {
	Type   uint32    `yaml:"type"`
	Name   string    `yaml:"name"`
	Fields yaml.Node `yaml:"fields"`
}

// ParseCatalogYAML parses the YAML catalog form.
func ParseCatalogYAML(data []byte) (*Catalog, error) {
	var document yamlCatalog
	if err := yaml.Unmarshal(data, &document); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}

	catalog := newCatalog()
	for _, entry := range document.Schemas {
		schema, err := schemaFromYAML(&entry.Fields, "")
		if err != nil {
			return nil, fmt.Errorf("type %d: %w", entry.Type, err)
		}
		if err := catalog.add(entry.Type, entry.Name, schema); err != nil {
			return nil, err
		}
	}
	return catalog, nil
}

func schemaFromYAML(node *yaml.Node, path string) (*Schema, error) {
	if node.Kind == 0 {
		return NewSchema()
	}
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("fields%s: expected a mapping (line %d)", pathSuffix(path), node.Line)
	}

	fields := make([]Field, 0, len(node.Content)/2)
	for index := 0; index+1 < len(node.Content); index += 2 {
		key := node.Content[index]
		value := node.Content[index+1]
		fieldPath := joinPath(path, key.Value)

		switch value.Kind {
		case yaml.ScalarNode:
			t, err := ParseType(value.Value)
			if err != nil {
				return nil, fmt.Errorf("field %s (line %d): %w", fieldPath, value.Line, err)
			}
			fields = append(fields, Leaf(key.Value, t))
		case yaml.MappingNode:
			nested, err := schemaFromYAML(value, fieldPath)
			if err != nil {
				return nil, err
			}
			fields = append(fields, Node(key.Value, nested))
		default:
			return nil, fmt.Errorf("field %s (line %d): expected a type name or a mapping", fieldPath, value.Line)
		}
	}
	return NewSchema(fields...)
}

type jsonCatalog struct {
	Schemas []jsonCatalogEntry `json:"schemas"`
}

type jsonCatalogEntry struct {
	Type   uint32          `json:"type"`
	Name   string          `json:"name"`
	Fields json.RawMessage `json:"fields"`
}

// ParseCatalogJSONC parses the JSONC catalog form.
func ParseCatalogJSONC(data []byte) (*Catalog, error) {
	var document jsonCatalog
	if err := json.Unmarshal(jsonc.ToJSON(data), &document); err != nil {
		return nil, fmt.Errorf("parsing JSONC: %w", err)
	}

	catalog := newCatalog()
	for _, entry := range document.Schemas {
		var schema *Schema
		var err error
		if len(entry.Fields) == 0 {
			schema, err = NewSchema()
		} else {
			schema, err = schemaFromJSON(json.NewDecoder(bytes.NewReader(entry.Fields)), "")
		}
		if err != nil {
			return nil, fmt.Errorf("type %d: %w", entry.Type, err)
		}
		if err := catalog.add(entry.Type, entry.Name, schema); err != nil {
			return nil, err
		}
	}
	return catalog, nil
}

// schemaFromJSON walks one JSON object token by token so that key order
// survives; encoding/json maps would lose it.
func schemaFromJSON(decoder *json.Decoder, path string) (*Schema, error) {
	token, err := decoder.Token()
	if err != nil {
		return nil, fmt.Errorf("fields%s: %w", pathSuffix(path), err)
	}
	if delimiter, ok := token.(json.Delim); !ok || delimiter != '{' {
		return nil, fmt.Errorf("fields%s: expected an object", pathSuffix(path))
	}

	var fields []Field
	for decoder.More() {
		keyToken, err := decoder.Token()
		if err != nil {
			return nil, fmt.Errorf("fields%s: %w", pathSuffix(path), err)
		}
		name, _ := keyToken.(string)
		fieldPath := joinPath(path, name)

		var raw json.RawMessage
		if err := decoder.Decode(&raw); err != nil {
			return nil, fmt.Errorf("field %s: %w", fieldPath, err)
		}

		switch trimmed := bytes.TrimSpace(raw); {
		case len(trimmed) > 0 && trimmed[0] == '"':
			var typeName string
			if err := json.Unmarshal(trimmed, &typeName); err != nil {
				return nil, fmt.Errorf("field %s: %w", fieldPath, err)
			}
			t, err := ParseType(typeName)
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", fieldPath, err)
			}
			fields = append(fields, Leaf(name, t))
		case len(trimmed) > 0 && trimmed[0] == '{':
			nested, err := schemaFromJSON(json.NewDecoder(bytes.NewReader(trimmed)), fieldPath)
			if err != nil {
				return nil, err
			}
			fields = append(fields, Node(name, nested))
		default:
			return nil, fmt.Errorf("field %s: expected a type name or an object", fieldPath)
		}
	}

	if _, err := decoder.Token(); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("fields%s: %w", pathSuffix(path), err)
	}
	return NewSchema(fields...)
}

func newCatalog() *Catalog {
	return &Catalog{byType: make(map[uint32]int)}
}

func (c *Catalog) add(typeID uint32, name string, schema *Schema) error {
	if typeID < firstApplicationType {
		return fmt.Errorf("type %d (%s): ids below %d are reserved", typeID, name, firstApplicationType)
	}
	if _, exists := c.byType[typeID]; exists {
		return fmt.Errorf("type %d (%s): declared twice", typeID, name)
	}
	c.byType[typeID] = len(c.entries)
	c.entries = append(c.entries, CatalogEntry{Type: typeID, Name: name, Schema: schema})
	return nil
}

// Entries returns the catalog entries in file order.
func (c *Catalog) Entries() []CatalogEntry {
	entries := make([]CatalogEntry, len(c.entries))
	copy(entries, c.entries)
	return entries
}

// Lookup returns the entry for a message type id.
func (c *Catalog) Lookup(typeID uint32) (CatalogEntry, bool) {
	index, ok := c.byType[typeID]
	if !ok {
		return CatalogEntry{}, false
	}
	return c.entries[index], true
}

// Types returns the declared type ids in ascending order.
func (c *Catalog) Types() []uint32 {
	types := make([]uint32, 0, len(c.entries))
	for _, entry := range c.entries {
		types = append(types, entry.Type)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// Len returns the number of entries.
func (c *Catalog) Len() int {
	return len(c.entries)
}

func pathSuffix(path string) string {
	if path == "" {
		return ""
	}
	return " of " + path
}
