// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

// queue is a FIFO. The zero value is empty and ready to use. Not safe
// for concurrent use.
type queue[T any] struct {
	items []T
	head  int
}

func (q *queue[T]) push(item T) {
	q.items = append(q.items, item)
}

// shift removes and returns the oldest item.
func (q *queue[T]) shift() (T, bool) {
	var zero T
	if q.head == len(q.items) {
		return zero, false
	}
	item := q.items[q.head]
	q.items[q.head] = zero
	q.head++

	// Reclaim the consumed prefix once it dominates the slice.
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
	} else if q.head > 32 && q.head*2 > len(q.items) {
		remaining := copy(q.items, q.items[q.head:])
		clear(q.items[remaining:])
		q.items = q.items[:remaining]
		q.head = 0
	}
	return item, true
}

func (q *queue[T]) len() int {
	return len(q.items) - q.head
}

// clear drops every item.
func (q *queue[T]) clear() {
	clear(q.items)
	q.items = q.items[:0]
	q.head = 0
}
