package pipeline

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/cases"

	"github.com/jmylchreest/jobsift/internal/posting"
)

// matcher tests text against a list of terms. Terms are literal substrings
// unless useRegex is set; a regex term that does not compile is matched
// literally.
type matcher struct {
	res      []*regexp.Regexp
	literals []string
	fold     bool
}

func newMatcher(terms []string, ignoreCase, useRegex bool) *matcher {
	m := &matcher{fold: ignoreCase}
	for _, term := range terms {
		if term == "" {
			continue
		}
		if useRegex {
			expr := term
			if ignoreCase {
				expr = "(?i)" + term
			}
			if re, err := regexp.Compile(expr); err == nil {
				m.res = append(m.res, re)
				continue
			}
		}
		if ignoreCase {
			term = cases.Fold().String(term)
		}
		m.literals = append(m.literals, term)
	}
	return m
}

func (m *matcher) match(text string) bool {
	if text == "" {
		return false
	}
	for _, re := range m.res {
		if re.MatchString(text) {
			return true
		}
	}
	if len(m.literals) == 0 {
		return false
	}
	if m.fold {
		text = cases.Fold().String(text)
	}
	for _, lit := range m.literals {
		if strings.Contains(text, lit) {
			return true
		}
	}
	return false
}

// keywordRule matches title and description terms, each list either
// case-insensitive or case-sensitive.
type keywordRule struct {
	title, description                   *matcher
	titleSensitive, descriptionSensitive *matcher
}

func newKeywordRule(params Params) (*keywordRule, error) {
	useRegex, err := params.Bool("use_regex", false)
	if err != nil {
		return nil, err
	}
	lists := make(map[string][]string, 4)
	for _, key := range []string{"title", "description", "title_case_sensitive", "description_case_sensitive"} {
		terms, err := params.Strings(key)
		if err != nil {
			return nil, err
		}
		lists[key] = terms
	}
	return &keywordRule{
		title:                newMatcher(lists["title"], true, useRegex),
		description:          newMatcher(lists["description"], true, useRegex),
		titleSensitive:       newMatcher(lists["title_case_sensitive"], false, useRegex),
		descriptionSensitive: newMatcher(lists["description_case_sensitive"], false, useRegex),
	}, nil
}

func (r *keywordRule) match(p posting.Posting) bool {
	return r.title.match(p.Title) ||
		r.description.match(p.Description) ||
		r.titleSensitive.match(p.Title) ||
		r.descriptionSensitive.match(p.Description)
}

// SelectKeywords keeps postings matching any configured term.
func SelectKeywords(set posting.Set, params Params) (posting.Set, error) {
	rule, err := newKeywordRule(params)
	if err != nil {
		return nil, err
	}
	out := make(posting.Set)
	for id, p := range set {
		if rule.match(p) {
			out[id] = p
		}
	}
	return out, nil
}

// FilterOutKeywords drops postings matching any configured term.
func FilterOutKeywords(set posting.Set, params Params) (posting.Set, error) {
	rule, err := newKeywordRule(params)
	if err != nil {
		return nil, err
	}
	out := make(posting.Set, len(set))
	for id, p := range set {
		if !rule.match(p) {
			out[id] = p
		}
	}
	return out, nil
}

// FilterOnPoints keeps postings scoring at least "min" (default 0.01).
// Unscored postings count as zero.
func FilterOnPoints(set posting.Set, params Params) (posting.Set, error) {
	minPoints, err := params.Float("min", 0.01)
	if err != nil {
		return nil, err
	}
	out := make(posting.Set, len(set))
	for id, p := range set {
		if p.Score() >= minPoints {
			out[id] = p
		}
	}
	return out, nil
}

// FilterOnDate keeps postings whose "date_key" (default first_collected_on)
// is on or after "min_date". Postings without that date are dropped. With
// no min_date every posting is kept.
func FilterOnDate(set posting.Set, params Params) (posting.Set, error) {
	minDate, err := params.Text("min_date", "")
	if err != nil {
		return nil, err
	}
	key, err := params.Text("date_key", "first_collected_on")
	if err != nil {
		return nil, err
	}
	get, ok := dateFields[key]
	if !ok {
		return nil, fmt.Errorf("param date_key: unknown date field %q", key)
	}
	if minDate == "" {
		return set.Clone(), nil
	}
	if !posting.ValidDate(minDate) {
		return nil, fmt.Errorf("param min_date: %q is not a %s date", minDate, posting.DateLayout)
	}

	out := make(posting.Set, len(set))
	for id, p := range set {
		if d := get(p); d != "" && d >= minDate {
			out[id] = p
		}
	}
	return out, nil
}

var dateFields = map[string]func(posting.Posting) string{
	"collected_on":       func(p posting.Posting) string { return p.CollectedOn },
	"first_collected_on": func(p posting.Posting) string { return p.FirstCollectedOn },
	"last_collected_on":  func(p posting.Posting) string { return p.LastCollectedOn },
}

// ExtraPointsIfMissingKeywords adds "points" (which may be negative) to
// every posting whose title and description contain none of "terms". The
// test is a case-insensitive substring match.
func ExtraPointsIfMissingKeywords(set posting.Set, params Params) (posting.Set, error) {
	terms, err := params.Strings("terms")
	if err != nil {
		return nil, err
	}
	points, err := params.Float("points", 0)
	if err != nil {
		return nil, err
	}
	m := newMatcher(terms, true, false)

	out := make(posting.Set, len(set))
	for id, p := range set {
		if !m.match(p.Title) && !m.match(p.Description) {
			p = p.WithScore(posting.Round(p.Score()+points, 3))
		}
		out[id] = p
	}
	return out, nil
}

// SelectSources keeps postings whose source is one of "sources".
func SelectSources(set posting.Set, params Params) (posting.Set, error) {
	sources, err := params.Strings("sources")
	if err != nil {
		return nil, err
	}
	keep := make(map[string]bool, len(sources))
	for _, s := range sources {
		keep[strings.ToLower(s)] = true
	}
	out := make(posting.Set)
	for id, p := range set {
		if keep[strings.ToLower(p.Source)] {
			out[id] = p
		}
	}
	return out, nil
}
