// Package keywords tags postings with the terms of a master list that
// appear in their descriptions.
package keywords

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"

	"github.com/jmylchreest/jobsift/internal/posting"
)

// Extractor matches a fixed master list. Keywords containing an uppercase
// letter ("SQL", "Go") match case-sensitively; all others ignore case.
type Extractor struct {
	sensitive   []string
	insensitive []string
	folded      []string
}

// New builds an extractor, keeping the master order within each partition.
// Blank and repeated keywords are ignored.
func New(master []string) *Extractor {
	e := &Extractor{}
	fold := cases.Fold()
	seen := make(map[string]bool, len(master))
	for _, k := range master {
		k = strings.TrimSpace(k)
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		if hasUpper(k) {
			e.sensitive = append(e.sensitive, k)
			continue
		}
		e.insensitive = append(e.insensitive, k)
		e.folded = append(e.folded, fold.String(k))
	}
	return e
}

func hasUpper(s string) bool {
	for _, r := range s {
		if unicode.IsUpper(r) {
			return true
		}
	}
	return false
}

// Len returns the number of distinct keywords.
func (e *Extractor) Len() int {
	return len(e.sensitive) + len(e.insensitive)
}

// Extract returns the keywords found in text: case-sensitive matches
// first, then case-insensitive ones, each in master order.
func (e *Extractor) Extract(text string) []string {
	if text == "" {
		return []string{}
	}
	found := make([]string, 0)
	for _, k := range e.sensitive {
		if strings.Contains(text, k) {
			found = append(found, k)
		}
	}
	// Casers keep state, so each call folds with its own.
	folded := cases.Fold().String(text)
	for i, k := range e.insensitive {
		if strings.Contains(folded, e.folded[i]) {
			found = append(found, k)
		}
	}
	return found
}

// Tag returns a copy of set with each posting's keywords extracted from its
// description. Without overwrite, postings that already have keywords keep
// them.
func (e *Extractor) Tag(set posting.Set, overwrite bool) posting.Set {
	out := make(posting.Set, len(set))
	for id, p := range set {
		if !overwrite && len(p.Keywords) > 0 {
			out[id] = p
			continue
		}
		p.Keywords = e.Extract(p.Description)
		out[id] = p
	}
	return out
}
