// Copyright (C) 2025 Harbor Works (dev@harborworks.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package watch

import (
	"sync"
	"time"
)

// Run is one completed check run in a watch session.
type Run struct {
	// ID is a unique identifier for the run.
	ID string `json:"id"`

	// Path is the root-relative file that triggered the run.
	Path string `json:"path"`

	// Language is the detected language, if any.
	Language string `json:"language,omitempty"`

	// StartedAt is when the run began.
	StartedAt time.Time `json:"started_at"`

	// Duration is total wall time.
	Duration time.Duration `json:"duration"`

	// Passed is whether every check succeeded.
	Passed bool `json:"passed"`

	// Failures lists failing-check descriptions, empty when Passed.
	Failures []string `json:"failures,omitempty"`

	// Summary is a one-line human-readable result.
	Summary string `json:"summary"`
}

// ringBuffer is a fixed-size circular buffer.
//
// Provides O(1) push and bounded memory. When full, the oldest item is
// overwritten. NOT safe for concurrent use; History synchronizes.
type ringBuffer[T any] struct {
	data  []T
	head  int // next write position
	tail  int // first element position
	count int
	cap   int
	full  bool
}

func newRingBuffer[T any](capacity int) *ringBuffer[T] {
	if capacity <= 0 {
		capacity = 100
	}
	return &ringBuffer[T]{
		data: make([]T, capacity),
		cap:  capacity,
	}
}

// push adds an item, overwriting the oldest when full.
func (r *ringBuffer[T]) push(item T) {
	r.data[r.head] = item
	r.head = (r.head + 1) % r.cap

	if r.full {
		r.tail = (r.tail + 1) % r.cap
	} else {
		r.count++
		if r.count == r.cap {
			r.full = true
		}
	}
}

// slice returns all items from oldest to newest as a copy.
func (r *ringBuffer[T]) slice() []T {
	if r.count == 0 {
		return nil
	}

	result := make([]T, r.count)
	if r.full {
		n := copy(result, r.data[r.tail:])
		copy(result[n:], r.data[:r.head])
	} else {
		copy(result, r.data[r.tail:r.tail+r.count])
	}
	return result
}

// last returns up to n items, newest first.
func (r *ringBuffer[T]) last(n int) []T {
	if n <= 0 || r.count == 0 {
		return nil
	}
	if n > r.count {
		n = r.count
	}

	result := make([]T, n)
	for i := 0; i < n; i++ {
		idx := r.head - 1 - i
		if idx < 0 {
			idx += r.cap
		}
		result[i] = r.data[idx]
	}
	return result
}

func (r *ringBuffer[T]) len() int { return r.count }

// History keeps the most recent runs of a watch session.
//
// Thread Safety: Safe for concurrent use.
type History struct {
	mu   sync.RWMutex
	runs *ringBuffer[Run]
}

// NewHistory creates a history bounded to capacity runs.
func NewHistory(capacity int) *History {
	return &History{runs: newRingBuffer[Run](capacity)}
}

// Add records a completed run.
func (h *History) Add(run Run) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.runs.push(run)
}

// Runs returns all recorded runs, oldest first.
func (h *History) Runs() []Run {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.runs.slice()
}

// Last returns up to n runs, newest first.
func (h *History) Last(n int) []Run {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.runs.last(n)
}

// Len returns the number of recorded runs.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.runs.len()
}
