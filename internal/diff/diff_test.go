package diff

import (
	"slices"
	"testing"

	"github.com/jmylchreest/jobsift/internal/posting"
)

func scored(id string, points float64) posting.Posting {
	return posting.Posting{ID: id}.WithScore(points)
}

func idsOf(ps []posting.Posting) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.ID
	}
	return out
}

// --- Diff Tests ---

func TestDiff_AgainstEmpty(t *testing.T) {
	next := posting.Set{"a": scored("a", 1), "b": scored("b", 3)}
	added, removed := Diff(next, posting.Set{})
	if want := []string{"b", "a"}; !slices.Equal(idsOf(added), want) {
		t.Errorf("added = %v, want %v", idsOf(added), want)
	}
	if len(removed) != 0 {
		t.Errorf("removed = %v, want empty", idsOf(removed))
	}
}

func TestDiff_Self(t *testing.T) {
	next := posting.Set{"a": scored("a", 1), "b": scored("b", 3)}
	added, removed := Diff(next, next)
	if len(added) != 0 || len(removed) != 0 {
		t.Errorf("Diff(x, x) = (%v, %v), want empty", idsOf(added), idsOf(removed))
	}
}

func TestDiff_AddedAndRemoved(t *testing.T) {
	previous := posting.Set{"a": scored("a", 1), "old": scored("old", 2)}
	// scores differ but the identity is the same, so "a" is neither
	next := posting.Set{"a": scored("a", 9), "new1": scored("new1", 0.5), "new2": {ID: "new2"}, "new3": scored("new3", 0.5)}

	added, removed := Diff(next, previous)
	if want := []string{"new1", "new3", "new2"}; !slices.Equal(idsOf(added), want) {
		t.Errorf("added = %v, want %v", idsOf(added), want)
	}
	if want := []string{"old"}; !slices.Equal(idsOf(removed), want) {
		t.Errorf("removed = %v, want %v", idsOf(removed), want)
	}
}

func TestDiff_NilSets(t *testing.T) {
	added, removed := Diff(nil, nil)
	if added == nil || removed == nil {
		t.Error("Diff(nil, nil) should return empty, non-nil slices")
	}
}

func TestAdded(t *testing.T) {
	got := Added(posting.Set{"a": scored("a", 1), "b": scored("b", 2)}, posting.Set{"a": {ID: "a"}})
	if len(got) != 1 || got["b"].ID != "b" {
		t.Errorf("Added() = %v, want only b", got.IDs())
	}
}

// --- SortByScore Tests ---

func TestSortByScore_NegativeAndMissing(t *testing.T) {
	ps := []posting.Posting{scored("c", -1), {ID: "b"}, scored("a", 0), scored("d", 2)}
	SortByScore(ps)
	if want := []string{"d", "a", "b", "c"}; !slices.Equal(idsOf(ps), want) {
		t.Errorf("SortByScore() = %v, want %v", idsOf(ps), want)
	}
}
