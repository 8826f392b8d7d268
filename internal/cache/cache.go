package cache

import (
	"sync"
	"sync/atomic"
)

// Snapshot is a lock-free, read-optimized container
// holding any immutable structure.
type Snapshot[T any] struct {
	v  atomic.Value
	mu sync.Mutex // serializes Update
}

type box[T any] struct{ v T }

// Load returns the stored value, or the zero value if nothing was stored yet.
func (s *Snapshot[T]) Load() T {
	b, _ := s.v.Load().(box[T])
	return b.v
}

// Store atomically swaps in the new value.
func (s *Snapshot[T]) Store(v T) {
	s.v.Store(box[T]{v: v})
}

// Update derives the next value from the current one. fn must not mutate its
// argument; readers may still hold it.
func (s *Snapshot[T]) Update(fn func(T) T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Store(fn(s.Load()))
}
