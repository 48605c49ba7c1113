// Package roles holds the process-global user/role configuration used by the
// permission policy.
package roles

import (
	"watchtower/alert"
)

// Role is an opaque rank label.
type Role string

// Entry associates one role with its members. The position of the entry in
// the index encodes rank, lowest first.
type Entry struct {
	Role  Role
	Users []alert.User
}

// Index is the ordered role table. It is immutable configuration.
type Index struct {
	entries []Entry
}

// NewIndex builds an index from ordered entries.
func NewIndex(entries []Entry) *Index {
	copied := make([]Entry, len(entries))
	copy(copied, entries)
	return &Index{entries: copied}
}

// RankOf returns the rank of a user. A user listed in several entries ranks
// at the highest-indexed entry containing them.
func (i *Index) RankOf(u alert.User) (int, bool) {
	rank := -1
	for idx, e := range i.entries {
		for _, member := range e.Users {
			if member == u {
				rank = idx
				break
			}
		}
	}
	return rank, rank >= 0
}

// RankOfRole returns the rank a role sits at.
func (i *Index) RankOfRole(r Role) (int, bool) {
	for idx, e := range i.entries {
		if e.Role == r {
			return idx, true
		}
	}
	return 0, false
}

// HasAnyRole reports whether the user is a member of any of the given roles.
func (i *Index) HasAnyRole(u alert.User, wanted []Role) bool {
	for _, e := range i.entries {
		if !containsRole(wanted, e.Role) {
			continue
		}
		for _, member := range e.Users {
			if member == u {
				return true
			}
		}
	}
	return false
}

// AtOrAbove reports whether the user's rank is at or above the given role's
// rank.
func (i *Index) AtOrAbove(u alert.User, r Role) bool {
	roleRank, ok := i.RankOfRole(r)
	if !ok {
		return false
	}
	userRank, ok := i.RankOf(u)
	if !ok {
		return false
	}
	return userRank >= roleRank
}

func containsRole(rs []Role, r Role) bool {
	for _, candidate := range rs {
		if candidate == r {
			return true
		}
	}
	return false
}
