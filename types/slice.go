package types

import (
	"errors"
	"sync"
)

var ErrSliceEmpty = errors.New("slice is empty")

// Slice is a small mutex-guarded slice used for write buffers and
// cleanup-callback lists.
type Slice[T any] struct {
	items []T

	mu sync.RWMutex
}

func NewSlice[T any](items ...T) *Slice[T] {
	return &Slice[T]{items: items}
}

func (s *Slice[T]) Push(items ...T) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = append(s.items, items...)
}

// Shift removes and returns the first item.
func (s *Slice[T]) Shift() (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero T
	if len(s.items) == 0 {
		return zero, ErrSliceEmpty
	}
	item := s.items[0]
	s.items = s.items[1:]
	return item, nil
}

func (s *Slice[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.items)
}

func (s *Slice[T]) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = nil
}

// AllAndClear returns the current items and empties the slice in one step.
func (s *Slice[T]) AllAndClear() []T {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := s.items
	s.items = nil
	return items
}

func (s *Slice[T]) Range(fn func(T, int) bool) {
	s.mu.RLock()
	items := make([]T, len(s.items))
	copy(items, s.items)
	s.mu.RUnlock()

	for i, item := range items {
		if !fn(item, i) {
			break
		}
	}
}
