// Copyright (C) 2025 Harbor Works (dev@harborworks.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package watch

import (
	"fmt"
	"sync"
	"testing"
)

func TestRingBufferWrap(t *testing.T) {
	r := newRingBuffer[int](3)

	for i := 1; i <= 5; i++ {
		r.push(i)
	}

	got := r.slice()
	want := []int{3, 4, 5}
	if len(got) != len(want) {
		t.Fatalf("slice = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("slice[%d] = %d, want %d", i, got[i], want[i])
		}
	}
	if r.len() != 3 {
		t.Errorf("len = %d", r.len())
	}
}

func TestRingBufferLast(t *testing.T) {
	r := newRingBuffer[int](4)
	for i := 1; i <= 6; i++ {
		r.push(i)
	}

	got := r.last(2)
	if len(got) != 2 || got[0] != 6 || got[1] != 5 {
		t.Errorf("last(2) = %v, want [6 5]", got)
	}
	if got := r.last(100); len(got) != 4 {
		t.Errorf("last(100) = %v", got)
	}
	if got := r.last(0); got != nil {
		t.Errorf("last(0) = %v", got)
	}
}

func TestRingBufferEmpty(t *testing.T) {
	r := newRingBuffer[string](2)
	if got := r.slice(); got != nil {
		t.Errorf("slice = %v", got)
	}
	if got := r.last(1); got != nil {
		t.Errorf("last = %v", got)
	}
}

func TestHistoryBounded(t *testing.T) {
	h := NewHistory(2)
	h.Add(Run{ID: "a"})
	h.Add(Run{ID: "b"})
	h.Add(Run{ID: "c"})

	runs := h.Runs()
	if len(runs) != 2 || runs[0].ID != "b" || runs[1].ID != "c" {
		t.Errorf("runs = %+v", runs)
	}
	if h.Len() != 2 {
		t.Errorf("Len = %d", h.Len())
	}
}

func TestHistoryConcurrent(t *testing.T) {
	h := NewHistory(50)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				h.Add(Run{ID: fmt.Sprintf("%d-%d", n, j)})
				_ = h.Last(5)
			}
		}(i)
	}
	wg.Wait()

	if h.Len() != 50 {
		t.Errorf("Len = %d, want capacity", h.Len())
	}
}
