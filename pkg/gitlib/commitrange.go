package gitlib

import (
	"errors"
	"fmt"
	"strings"

	git2go "github.com/libgit2/git2go/v34"
)

// rangeSeparator separates the good and bad revisions of a range.
const rangeSeparator = ".."

// Sentinel range errors.
var (
	ErrInvalidRange = errors.New("invalid commit range, want GOOD..BAD")
	ErrEmptyRange   = errors.New("commit range contains no commits")
)

// ParseRange splits a GOOD..BAD expression.
func ParseRange(rng string) (good, bad string, err error) {
	good, bad, found := strings.Cut(rng, rangeSeparator)
	if !found || good == "" || bad == "" || strings.HasPrefix(bad, ".") {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidRange, rng)
	}

	return good, bad, nil
}

// CommitRange lists the commits reachable from bad but not from good, oldest
// first in topological order. good itself is excluded and bad is the last
// element, so a bisection over the result ends on bad when nothing earlier
// breaks.
func (r *Repository) CommitRange(rng string) ([]Hash, error) {
	goodRev, badRev, err := ParseRange(rng)
	if err != nil {
		return nil, err
	}

	good, err := r.ResolveCommit(goodRev)
	if err != nil {
		return nil, err
	}

	bad, err := r.ResolveCommit(badRev)
	if err != nil {
		return nil, err
	}

	commits, err := r.walk(bad, good)
	if err != nil {
		return nil, err
	}

	if len(commits) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyRange, rng)
	}

	return commits, nil
}

// walk lists the ancestors of from, from included, that are not ancestors of
// hidden, parents before children.
func (r *Repository) walk(from, hidden Hash) ([]Hash, error) {
	revwalk, err := r.repo.Walk()
	if err != nil {
		return nil, fmt.Errorf("create revwalk: %w", err)
	}
	defer revwalk.Free()

	err = revwalk.Push(from.oid())
	if err != nil {
		return nil, fmt.Errorf("push %s: %w", from, err)
	}

	err = revwalk.Hide(hidden.oid())
	if err != nil {
		return nil, fmt.Errorf("hide %s: %w", hidden, err)
	}

	revwalk.Sorting(git2go.SortTopological | git2go.SortReverse)

	var commits []Hash

	oid := new(git2go.Oid)

	for {
		err = revwalk.Next(oid)
		if git2go.IsErrorCode(err, git2go.ErrorCodeIterOver) {
			return commits, nil
		}

		if err != nil {
			return nil, fmt.Errorf("revwalk: %w", err)
		}

		commits = append(commits, HashFromOid(oid))
	}
}

// ListRange opens the repository at path and returns the hex hashes of the
// commits in rng, ready to use as bisection items.
func ListRange(path, rng string) ([]string, error) {
	repo, err := OpenRepository(path)
	if err != nil {
		return nil, err
	}
	defer repo.Free()

	commits, err := repo.CommitRange(rng)
	if err != nil {
		return nil, err
	}

	items := make([]string, len(commits))
	for i, c := range commits {
		items[i] = c.String()
	}

	return items, nil
}
