// Package itemset provides the insertion-ordered string set used for item
// universes, partitions and found items.
package itemset

import (
	"errors"
	"fmt"
)

// ErrDuplicateItem is returned when an item sequence repeats an item.
var ErrDuplicateItem = errors.New("duplicate item")

// Ordered is a set of strings that remembers insertion order.
// The zero value is ready to use.
type Ordered struct {
	index map[string]int
	order []string
}

// New creates an ordered set holding items in the given order.
// Repeated items keep their first position.
func New(items ...string) *Ordered {
	set := &Ordered{}

	for _, item := range items {
		set.Add(item)
	}

	return set
}

// Add appends item if it is not already present and reports whether it was added.
func (s *Ordered) Add(item string) bool {
	if s.index == nil {
		s.index = make(map[string]int)
	}

	if _, ok := s.index[item]; ok {
		return false
	}

	s.index[item] = len(s.order)
	s.order = append(s.order, item)

	return true
}

// Has reports whether item is a member.
func (s *Ordered) Has(item string) bool {
	if s == nil {
		return false
	}

	_, ok := s.index[item]

	return ok
}

// Remove deletes item and reports whether it was present.
func (s *Ordered) Remove(item string) bool {
	pos, ok := s.index[item]
	if !ok {
		return false
	}

	delete(s.index, item)
	s.order = append(s.order[:pos], s.order[pos+1:]...)

	for i := pos; i < len(s.order); i++ {
		s.index[s.order[i]] = i
	}

	return true
}

// Len returns the number of members.
func (s *Ordered) Len() int {
	if s == nil {
		return 0
	}

	return len(s.order)
}

// Items returns a copy of the members in insertion order.
func (s *Ordered) Items() []string {
	if s == nil {
		return []string{}
	}

	out := make([]string, len(s.order))
	copy(out, s.order)

	return out
}

// Clear removes all members.
func (s *Ordered) Clear() {
	s.index = nil
	s.order = nil
}

// Difference returns the members of items that are not in s, preserving the
// order of items.
func (s *Ordered) Difference(items []string) []string {
	out := make([]string, 0, len(items))

	for _, item := range items {
		if !s.Has(item) {
			out = append(out, item)
		}
	}

	return out
}

// Intersects reports whether s and other share at least one member.
func (s *Ordered) Intersects(other *Ordered) bool {
	if s.Len() > other.Len() {
		s, other = other, s
	}

	for _, item := range s.Items() {
		if other.Has(item) {
			return true
		}
	}

	return false
}

// Unique checks that items contains no repeated entries.
func Unique(items []string) error {
	seen := make(map[string]int, len(items))

	for i, item := range items {
		if first, ok := seen[item]; ok {
			return fmt.Errorf("%w: %q at positions %d and %d", ErrDuplicateItem, item, first, i)
		}

		seen[item] = i
	}

	return nil
}
