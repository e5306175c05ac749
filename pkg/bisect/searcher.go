// Package bisect implements the integer binary search that locates the
// boundary between good and bad items in one bisection pass.
//
// The searcher assumes that marking the prefix [0..i] bad flips the test
// verdict from good to bad at exactly one index. It cannot detect a
// violation of that assumption and will converge on some index regardless.
package bisect

import (
	"errors"
	"fmt"
)

// Sentinel errors for window restoration.
var (
	ErrEmptyItems    = errors.New("no items to search")
	ErrInvalidWindow = errors.New("invalid search window")
)

// Window is the still-undetermined range of boundary indices.
type Window struct {
	Low  int `json:"low"  validate:"min=0"`
	High int `json:"high" validate:"gtefield=Low"`
}

// Done reports whether the window has collapsed to a single index.
func (w Window) Done() bool {
	return w.Low == w.High
}

// Mid returns the index tested next, rounding down.
func (w Window) Mid() int {
	return w.Low + (w.High-w.Low)/2
}

// Searcher proposes boundary candidates and narrows its window from verdicts.
type Searcher struct {
	items  []string
	window Window
}

// New creates a searcher over items. The window spans the whole sequence.
func New(items []string) (*Searcher, error) {
	if len(items) == 0 {
		return nil, ErrEmptyItems
	}

	owned := make([]string, len(items))
	copy(owned, items)

	return &Searcher{
		items:  owned,
		window: Window{Low: 0, High: len(owned) - 1},
	}, nil
}

// Restore replaces the window with one saved earlier for the same sequence.
func (s *Searcher) Restore(w Window) error {
	if w.Low < 0 || w.Low > w.High || w.High >= len(s.items) {
		return fmt.Errorf("%w: [%d, %d] over %d items", ErrInvalidWindow, w.Low, w.High, len(s.items))
	}

	s.window = w

	return nil
}

// GetNext returns the item at the current test index.
func (s *Searcher) GetNext() string {
	return s.items[s.Current()]
}

// Current returns the test index, or the boundary once the search is done.
func (s *Searcher) Current() int {
	if s.window.Done() {
		return s.window.Low
	}

	return s.window.Mid()
}

// SetStatus records the verdict for the current test index. A bad verdict means the
// boundary is at or before that index. It returns true once the window has
// collapsed.
func (s *Searcher) SetStatus(bad bool) bool {
	if s.window.Done() {
		return true
	}

	mid := s.window.Mid()
	if bad {
		s.window.High = mid
	} else {
		s.window.Low = mid + 1
	}

	return s.window.Done()
}

// Done reports whether the boundary has been found.
func (s *Searcher) Done() bool {
	return s.window.Done()
}

// Window returns a copy of the current window.
func (s *Searcher) Window() Window {
	return s.window
}

// Len returns the number of items being searched.
func (s *Searcher) Len() int {
	return len(s.items)
}
