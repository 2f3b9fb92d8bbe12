package utils

import (
	"encoding/json"
)

// OrderedSet is a set of strings that remembers insertion order.
// The zero value is ready to use.
type OrderedSet struct {
	index map[string]struct{}
	items []string
}

// NewOrderedSet returns a set holding values in first-seen order.
func NewOrderedSet(values ...string) *OrderedSet {
	s := &OrderedSet{}
	for _, v := range values {
		s.Add(v)
	}
	return s
}

// Add inserts v and reports whether it was not already present.
func (s *OrderedSet) Add(v string) bool {
	if s.index == nil {
		s.index = make(map[string]struct{})
	}
	if _, ok := s.index[v]; ok {
		return false
	}
	s.index[v] = struct{}{}
	s.items = append(s.items, v)
	return true
}

func (s *OrderedSet) Contains(v string) bool {
	_, ok := s.index[v]
	return ok
}

func (s *OrderedSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.items)
}

// List returns a copy of the values in insertion order. Never nil.
func (s *OrderedSet) List() []string {
	if s == nil {
		return []string{}
	}
	out := make([]string, len(s.items))
	copy(out, s.items)
	return out
}

// Clone returns an independent copy.
func (s *OrderedSet) Clone() *OrderedSet {
	if s == nil {
		return NewOrderedSet()
	}
	return NewOrderedSet(s.items...)
}

// MarshalJSON encodes the set as a plain array for debugging surfaces.
func (s *OrderedSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.List())
}
