// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/bureau-foundation/coset/lib/wire"
)

// Handler receives decoded messages of the types it is registered for.
// Context a handler needs (the connection to reply on, application
// state) travels in its receiver.
type Handler interface {
	HandleMessage(message Message)
}

// HandlerFunc adapts a function to Handler. Function values cannot be
// compared, so every HandlerFunc registration is distinct; register a
// pointer-backed Handler when duplicate detection matters.
type HandlerFunc func(message Message)

// HandleMessage calls f.
func (f HandlerFunc) HandleMessage(message Message) { f(message) }

// HandlerID identifies one registration, for removal.
type HandlerID uint64

type handlerEntry struct {
	id      HandlerID
	handler Handler
}

// handlerRegistry maps types to handlers in registration order.
type handlerRegistry struct {
	mu       sync.Mutex
	lastID   HandlerID
	handlers map[TypeID][]handlerEntry
}

func newHandlerRegistry() *handlerRegistry {
	return &handlerRegistry{handlers: make(map[TypeID][]handlerEntry)}
}

// register appends handler for t. Reserved types are refused unless
// internal is set.
func (r *handlerRegistry) register(t TypeID, handler Handler, internal bool) (HandlerID, error) {
	if t.Reserved() && !internal {
		return 0, fmt.Errorf("%w: %s", ErrReservedType, t)
	}
	if handler == nil {
		return 0, errors.New("transport: nil handler")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, entry := range r.handlers[t] {
		if sameHandler(entry.handler, handler) {
			return 0, fmt.Errorf("%w: type %s", ErrDuplicateHandler, t)
		}
	}
	r.lastID++
	r.handlers[t] = append(r.handlers[t], handlerEntry{id: r.lastID, handler: handler})
	return r.lastID, nil
}

// unregister removes one registration. Unknown ids are ignored.
func (r *handlerRegistry) unregister(t TypeID, id HandlerID) {
	r.removeWhere(t, func(entry handlerEntry) bool { return entry.id == id })
}

// unregisterHandler removes handler by value. Unknown handlers are
// ignored.
func (r *handlerRegistry) unregisterHandler(t TypeID, handler Handler) {
	r.removeWhere(t, func(entry handlerEntry) bool { return sameHandler(entry.handler, handler) })
}

func (r *handlerRegistry) removeWhere(t TypeID, match func(handlerEntry) bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := r.handlers[t]
	for index, entry := range entries {
		if match(entry) {
			remaining := make([]handlerEntry, 0, len(entries)-1)
			remaining = append(remaining, entries[:index]...)
			remaining = append(remaining, entries[index+1:]...)
			if len(remaining) == 0 {
				delete(r.handlers, t)
			} else {
				r.handlers[t] = remaining
			}
			return
		}
	}
}

// lookup returns a snapshot of t's handlers in registration order.
func (r *handlerRegistry) lookup(t TypeID) []Handler {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := r.handlers[t]
	handlers := make([]Handler, len(entries))
	for index, entry := range entries {
		handlers[index] = entry.handler
	}
	return handlers
}

// sameHandler compares handlers whose dynamic types are comparable.
func sameHandler(a, b Handler) bool {
	typeA := reflect.TypeOf(a)
	if typeA != reflect.TypeOf(b) || !typeA.Comparable() {
		return false
	}
	return a == b
}

// schemaRegistry holds at most one schema per type.
type schemaRegistry struct {
	mu      sync.RWMutex
	schemas map[TypeID]*wire.Schema
}

func newSchemaRegistry() *schemaRegistry {
	return &schemaRegistry{schemas: make(map[TypeID]*wire.Schema)}
}

func (r *schemaRegistry) register(t TypeID, schema *wire.Schema) error {
	if t.Reserved() {
		return fmt.Errorf("%w: %s", ErrReservedType, t)
	}
	if schema == nil {
		return fmt.Errorf("transport: nil schema for type %s", t)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.schemas[t]; exists {
		return fmt.Errorf("%w: type %s", ErrDuplicateSchema, t)
	}
	r.schemas[t] = schema
	return nil
}

// unregister deletes t's schema, if any.
func (r *schemaRegistry) unregister(t TypeID) error {
	if t.Reserved() {
		return fmt.Errorf("%w: %s", ErrReservedType, t)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.schemas, t)
	return nil
}

func (r *schemaRegistry) lookup(t TypeID) *wire.Schema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.schemas[t]
}
