// Package ds provides the small generic data structures used by the
// aggregate engine.
package ds

import (
	"encoding/json"
	"fmt"
)

type StringSet = Set[string]

// Set is an insertion-ordered set with O(1) membership tests. Aggregates
// use it to remember which event ids were applied, in application order.
//
// Add, Remove and Clear mutate the receiver; Copy and Values return
// independent copies.
type Set[T comparable] struct {
	items map[T]struct{}
	order []T
}

func (s *Set[T]) String() string { return fmt.Sprintf("%v", s.order) }

// Add inserts v and reports whether it was newly added.
func (s *Set[T]) Add(v T) bool {
	if s.Contains(v) {
		return false
	}
	if s.items == nil {
		s.items = map[T]struct{}{}
	}
	s.items[v] = struct{}{}
	s.order = append(s.order, v)
	return true
}

// Contains reports whether v is in the set.
func (s *Set[T]) Contains(v T) bool {
	_, ok := s.items[v]
	return ok
}

// Len returns the number of elements.
func (s *Set[T]) Len() int { return len(s.items) }

// IsEmpty reports whether the set has no elements.
func (s *Set[T]) IsEmpty() bool { return len(s.items) == 0 }

// Remove deletes the given values. O(n) in the size of the set.
func (s *Set[T]) Remove(vs ...T) {
	removed := 0
	for _, v := range vs {
		if _, ok := s.items[v]; ok {
			delete(s.items, v)
			removed++
		}
	}
	if removed == 0 {
		return
	}
	order := make([]T, 0, len(s.order)-removed)
	for _, v := range s.order {
		if _, ok := s.items[v]; ok {
			order = append(order, v)
		}
	}
	s.order = order
}

// Clear removes all elements.
func (s *Set[T]) Clear() {
	s.items = map[T]struct{}{}
	s.order = nil
}

// Values returns the elements in insertion order.
func (s *Set[T]) Values() []T {
	out := make([]T, len(s.order))
	copy(out, s.order)
	return out
}

// Copy returns an independent set with the same elements and order.
func (s *Set[T]) Copy() *Set[T] { return NewSet(s.order...) }

// MarshalJSON encodes the set as an ordered JSON array.
func (s Set[T]) MarshalJSON() ([]byte, error) { return json.Marshal(s.Values()) }

// UnmarshalJSON replaces the set with the elements of a JSON array.
func (s *Set[T]) UnmarshalJSON(data []byte) error {
	var vs []T
	if err := json.Unmarshal(data, &vs); err != nil {
		return err
	}
	s.Clear()
	for _, v := range vs {
		s.Add(v)
	}
	return nil
}

// NewSet creates a set holding items, duplicates dropped.
func NewSet[T comparable](items ...T) *Set[T] {
	s := &Set[T]{items: make(map[T]struct{}, len(items)), order: make([]T, 0, len(items))}
	for _, v := range items {
		s.Add(v)
	}
	return s
}

// NewStringSet creates a string set holding items.
func NewStringSet(items ...string) *StringSet { return NewSet(items...) }
