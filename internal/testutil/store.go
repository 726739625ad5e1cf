package testutil

import (
	"sync"
)

// InMemoryStore is a generic thread-safe map used by the in-memory
// repository implementations
type InMemoryStore[T any] struct {
	mu    sync.RWMutex
	items map[string]T
}

// NewInMemoryStore creates a new in-memory store
func NewInMemoryStore[T any]() *InMemoryStore[T] {
	return &InMemoryStore[T]{
		items: make(map[string]T),
	}
}

func (s *InMemoryStore[T]) Get(id string) (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[id]
	return item, ok
}

func (s *InMemoryStore[T]) Set(id string, item T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[id] = item
}

func (s *InMemoryStore[T]) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, id)
}

// All returns a snapshot of every stored item
func (s *InMemoryStore[T]) All() []T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]T, 0, len(s.items))
	for _, item := range s.items {
		result = append(result, item)
	}
	return result
}

func (s *InMemoryStore[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Find returns the first item matching the predicate
func (s *InMemoryStore[T]) Find(match func(T) bool) (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, item := range s.items {
		if match(item) {
			return item, true
		}
	}
	var zero T
	return zero, false
}

// Filter returns every item matching the predicate
func (s *InMemoryStore[T]) Filter(match func(T) bool) []T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []T
	for _, item := range s.items {
		if match(item) {
			result = append(result, item)
		}
	}
	return result
}
