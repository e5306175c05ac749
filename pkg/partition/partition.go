// Package partition tracks the item universe of one bisection pass and the
// good/bad split last applied to the external environment.
package partition

import (
	"errors"
	"fmt"

	"github.com/Sumatoshi-tech/bisector/pkg/itemset"
)

// ErrBoundaryOutOfRange is returned for a boundary outside the item sequence.
var ErrBoundaryOutOfRange = errors.New("boundary index out of range")

// Split is a proposed partition of the universe.
type Split struct {
	Bad  []string
	Good []string
}

// Set holds the ordered items under search plus the sets that describe the
// environment's current state. CurrentlyGood and CurrentlyBad are disjoint;
// an item absent from both has never been switched.
type Set struct {
	allItems      []string
	knownGood     *itemset.Ordered
	currentlyGood *itemset.Ordered
	currentlyBad  *itemset.Ordered
}

// New creates a set over items. knownGood items are appended to the good side
// of every split.
func New(items, knownGood []string) (*Set, error) {
	err := itemset.Unique(items)
	if err != nil {
		return nil, fmt.Errorf("item universe: %w", err)
	}

	owned := make([]string, len(items))
	copy(owned, items)

	return &Set{
		allItems:      owned,
		knownGood:     itemset.New(knownGood...),
		currentlyGood: itemset.New(),
		currentlyBad:  itemset.New(),
	}, nil
}

// AllItems returns a copy of the ordered universe.
func (s *Set) AllItems() []string {
	out := make([]string, len(s.allItems))
	copy(out, s.allItems)

	return out
}

// Len returns the size of the ordered universe.
func (s *Set) Len() int {
	return len(s.allItems)
}

// Item returns the item at index i.
func (s *Set) Item(i int) string {
	return s.allItems[i]
}

// KnownGood returns items proven good by earlier pruning.
func (s *Set) KnownGood() []string {
	return s.knownGood.Items()
}

// CurrentlyGood returns the good side of the last applied split.
func (s *Set) CurrentlyGood() []string {
	return s.currentlyGood.Items()
}

// CurrentlyBad returns the bad side of the last applied split.
func (s *Set) CurrentlyBad() []string {
	return s.currentlyBad.Items()
}

// ComputePartition marks items [0..boundary] bad and everything after the
// boundary, plus the known-good items, good.
func (s *Set) ComputePartition(boundary int) (Split, error) {
	if boundary < 0 || boundary >= len(s.allItems) {
		return Split{}, fmt.Errorf("%w: %d of %d", ErrBoundaryOutOfRange, boundary, len(s.allItems))
	}

	bad := make([]string, boundary+1)
	copy(bad, s.allItems[:boundary+1])

	rest := s.allItems[boundary+1:]
	good := make([]string, 0, len(rest)+s.knownGood.Len())
	good = append(good, rest...)
	good = append(good, s.knownGood.Items()...)

	return Split{Bad: bad, Good: good}, nil
}

// AllGood returns the split with every item on the good side.
func (s *Set) AllGood() Split {
	good := make([]string, 0, len(s.allItems)+s.knownGood.Len())
	good = append(good, s.allItems...)
	good = append(good, s.knownGood.Items()...)

	return Split{Bad: []string{}, Good: good}
}

// AllBad returns the split with every item on the bad side. Known-good items
// stay good.
func (s *Set) AllBad() Split {
	bad := make([]string, len(s.allItems))
	copy(bad, s.allItems)

	return Split{Bad: bad, Good: s.knownGood.Items()}
}

// Delta returns the items whose membership must change to reach split: good
// items not currently good and bad items not currently bad.
func (s *Set) Delta(split Split) Split {
	return Split{
		Bad:  s.currentlyBad.Difference(split.Bad),
		Good: s.currentlyGood.Difference(split.Good),
	}
}

// Commit records split as the environment's current state.
func (s *Set) Commit(split Split) {
	s.currentlyGood = itemset.New(split.Good...)
	s.currentlyBad = itemset.New(split.Bad...)
}

// CommitGood records that items were switched to good. Used when only one
// side of a split has been applied so far.
func (s *Set) CommitGood(items []string) {
	for _, item := range items {
		s.currentlyBad.Remove(item)
		s.currentlyGood.Add(item)
	}
}

// ResetTracking forgets the environment state so the next split is applied
// in full.
func (s *Set) ResetTracking() {
	s.currentlyGood = itemset.New()
	s.currentlyBad = itemset.New()
}

// RestoreTracking reinstates a previously recorded environment state.
func (s *Set) RestoreTracking(good, bad []string) {
	s.currentlyGood = itemset.New(good...)
	s.currentlyBad = itemset.New(bad...)
}

// Disjoint reports whether no item is tracked as both good and bad.
func (s *Set) Disjoint() bool {
	return !s.currentlyGood.Intersects(s.currentlyBad)
}
