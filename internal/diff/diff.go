// Package diff compares two snapshots by identity.
package diff

import (
	"cmp"
	"slices"

	"github.com/jmylchreest/jobsift/internal/posting"
)

// Diff returns the postings of next missing from previous (added) and the
// postings of previous missing from next (removed). Only identities are
// compared. Both lists are ordered by score, highest first, ties by identity.
func Diff(next, previous posting.Set) (added, removed []posting.Posting) {
	added = missingFrom(next, previous)
	removed = missingFrom(previous, next)
	return added, removed
}

// Added returns the added side of Diff as a set.
func Added(next, previous posting.Set) posting.Set {
	added, _ := Diff(next, previous)
	return ToSet(added)
}

func missingFrom(from, other posting.Set) []posting.Posting {
	out := make([]posting.Posting, 0)
	for id, p := range from {
		if _, ok := other[id]; !ok {
			out = append(out, p)
		}
	}
	SortByScore(out)
	return out
}

// SortByScore orders postings by score descending. Unscored postings count
// as zero; ties are broken by identity.
func SortByScore(ps []posting.Posting) {
	slices.SortFunc(ps, func(a, b posting.Posting) int {
		if c := cmp.Compare(b.Score(), a.Score()); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

// ToSet indexes postings by identity.
func ToSet(ps []posting.Posting) posting.Set {
	out := make(posting.Set, len(ps))
	for _, p := range ps {
		out[p.ID] = p
	}
	return out
}
