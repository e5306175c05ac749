// Package gitlib enumerates git commits with libgit2 so a commit range can
// serve as a bisection item universe.
package gitlib

import (
	"encoding/hex"

	git2go "github.com/libgit2/git2go/v34"
)

// Hash is a commit id.
type Hash [20]byte

// HashFromOid converts a libgit2 Oid to Hash.
func HashFromOid(oid *git2go.Oid) Hash {
	var h Hash
	copy(h[:], oid[:])

	return h
}

// String returns the full hex id, the form bisection items take.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

func (h Hash) oid() *git2go.Oid {
	oid := new(git2go.Oid)
	copy(oid[:], h[:])

	return oid
}
