package merge

import (
	"github.com/jmylchreest/jobsift/internal/posting"
)

// Group is every recorded sighting of one identity, in arrival order.
// First and Last bound the dates of all versions.
type Group struct {
	Versions []posting.Posting `json:"versions" yaml:"versions"`
	First    string            `json:"first_collected_on" yaml:"first_collected_on"`
	Last     string            `json:"last_collected_on" yaml:"last_collected_on"`
}

// Latest returns the most recently appended version.
func (g Group) Latest() posting.Posting {
	if len(g.Versions) == 0 {
		return posting.Posting{}
	}
	return g.Versions[len(g.Versions)-1]
}

type groupBuilder struct {
	versions []posting.Posting
	firsts   []string
	lasts    []string
	first    string
	last     string
}

func (b *groupBuilder) add(p posting.Posting) {
	first, last := ownBounds(p)
	b.versions = append(b.versions, p.Clone())
	b.firsts = append(b.firsts, first)
	b.lasts = append(b.lasts, last)
	b.first = posting.EarlierDate(b.first, first)
	b.last = posting.LaterDate(b.last, last)
}

// build fills each version's missing bounds from the group's bounds.
func (b *groupBuilder) build() Group {
	g := Group{Versions: b.versions, First: b.first, Last: b.last}
	for i := range g.Versions {
		g.Versions[i].FirstCollectedOn = b.firsts[i]
		if g.Versions[i].FirstCollectedOn == "" {
			g.Versions[i].FirstCollectedOn = b.first
		}
		g.Versions[i].LastCollectedOn = b.lasts[i]
		if g.Versions[i].LastCollectedOn == "" {
			g.Versions[i].LastCollectedOn = b.last
		}
	}
	return g
}

// Extend merges batches keeping every sighting. Each version keeps its own
// first/last-seen dates; a version without dates takes the group's bounds.
func Extend(batches ...posting.Set) map[string]Group {
	builders := make(map[string]*groupBuilder)
	for _, batch := range batches {
		for _, id := range batch.IDs() {
			b, ok := builders[id]
			if !ok {
				b = &groupBuilder{}
				builders[id] = b
			}
			b.add(batch[id])
		}
	}
	out := make(map[string]Group, len(builders))
	for id, b := range builders {
		out[id] = b.build()
	}
	return out
}

// Flatten returns each group's latest version carrying the group bounds.
func Flatten(groups map[string]Group) posting.Set {
	out := make(posting.Set, len(groups))
	for id, g := range groups {
		p := g.Latest().Clone()
		p.FirstCollectedOn, p.LastCollectedOn = g.First, g.Last
		out[id] = p
	}
	return out
}
