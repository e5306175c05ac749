package gitlib

import (
	"errors"
	"fmt"

	git2go "github.com/libgit2/git2go/v34"
)

// ErrNotCommit is returned when a revision does not resolve to a commit.
var ErrNotCommit = errors.New("revision is not a commit")

// Repository is an open repository. Call Free when done.
type Repository struct {
	repo *git2go.Repository
}

// OpenRepository opens the git repository at path.
func OpenRepository(path string) (*Repository, error) {
	repo, err := git2go.OpenRepository(path)
	if err != nil {
		return nil, fmt.Errorf("open repository %s: %w", path, err)
	}

	return &Repository{repo: repo}, nil
}

// Free releases the libgit2 handle. It is safe to call twice.
func (r *Repository) Free() {
	if r.repo != nil {
		r.repo.Free()
		r.repo = nil
	}
}

// ResolveCommit resolves a revision expression (branch, tag, hash, HEAD~2)
// to the commit it names. Annotated tags are peeled.
func (r *Repository) ResolveCommit(rev string) (Hash, error) {
	obj, err := r.repo.RevparseSingle(rev)
	if err != nil {
		return Hash{}, fmt.Errorf("resolve %q: %w", rev, err)
	}
	defer obj.Free()

	commit, err := obj.Peel(git2go.ObjectCommit)
	if err != nil {
		return Hash{}, fmt.Errorf("%w: %q: %w", ErrNotCommit, rev, err)
	}
	defer commit.Free()

	return HashFromOid(commit.Id()), nil
}
