// Package posting defines the normalized job posting record shared by every
// stage of a run.
package posting

import (
	"math"
	"slices"
	"time"
)

// DateLayout is the layout of every collected_on style date.
const DateLayout = "2006-01-02"

// Salary is a derived salary estimate. Either side may be unknown.
type Salary struct {
	Annual  *int `json:"annual,omitempty" yaml:"annual,omitempty"`
	Monthly *int `json:"monthly,omitempty" yaml:"monthly,omitempty"`
}

// Posting is one normalized job listing.
//
// Field order matches the column order of persisted snapshots.
type Posting struct {
	Title                string   `json:"title" yaml:"title"`
	Company              string   `json:"company" yaml:"company"`
	SalaryMonthlyGuessed *int     `json:"salary_monthly_guessed" yaml:"salary_monthly_guessed"`
	Locations            []string `json:"locations" yaml:"locations"`
	Keywords             []string `json:"keywords" yaml:"keywords"`
	Points               *float64 `json:"points" yaml:"points"`
	URL                  string   `json:"url" yaml:"url"`
	Language             string   `json:"language,omitempty" yaml:"language,omitempty"`
	Description          string   `json:"description" yaml:"description"`
	Salary               string   `json:"salary" yaml:"salary"`
	EmploymentTypes      []string `json:"employmentTypes" yaml:"employmentTypes"`
	SalaryGuessed        *Salary  `json:"salary_guessed" yaml:"salary_guessed"`
	CollectedOn          string   `json:"collected_on" yaml:"collected_on"`
	FirstCollectedOn     string   `json:"first_collected_on" yaml:"first_collected_on"`
	LastCollectedOn      string   `json:"last_collected_on" yaml:"last_collected_on"`
	ID                   string   `json:"id" yaml:"id"`
	IsHomeOffice         bool     `json:"isHomeOffice" yaml:"isHomeOffice"`
	IsActive             bool     `json:"isActive" yaml:"isActive"`
	Source               string   `json:"source" yaml:"source"`
}

// Set maps identity to posting. Snapshots are persisted Sets.
type Set map[string]Posting

// Score returns the posting's points, treating a missing score as zero.
func (p Posting) Score() float64 {
	if p.Points == nil {
		return 0
	}
	return *p.Points
}

// HasScore reports whether the posting has been scored.
func (p Posting) HasScore() bool {
	return p.Points != nil
}

// WithScore returns a copy of p carrying the given score.
func (p Posting) WithScore(points float64) Posting {
	p.Points = &points
	return p
}

// Clone returns a deep copy so callers can mutate the result freely.
func (p Posting) Clone() Posting {
	out := p
	out.Locations = slices.Clone(p.Locations)
	out.Keywords = slices.Clone(p.Keywords)
	out.EmploymentTypes = slices.Clone(p.EmploymentTypes)
	if p.Points != nil {
		v := *p.Points
		out.Points = &v
	}
	if p.SalaryMonthlyGuessed != nil {
		v := *p.SalaryMonthlyGuessed
		out.SalaryMonthlyGuessed = &v
	}
	if p.SalaryGuessed != nil {
		s := p.SalaryGuessed.clone()
		out.SalaryGuessed = &s
	}
	return out
}

func (s Salary) clone() Salary {
	out := Salary{}
	if s.Annual != nil {
		v := *s.Annual
		out.Annual = &v
	}
	if s.Monthly != nil {
		v := *s.Monthly
		out.Monthly = &v
	}
	return out
}

// Clone returns a deep copy of the set.
func (s Set) Clone() Set {
	out := make(Set, len(s))
	for id, p := range s {
		out[id] = p.Clone()
	}
	return out
}

// IDs returns the identities of the set in sorted order.
func (s Set) IDs() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Round rounds v to the given number of decimals.
func Round(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}

// Today returns the current date in DateLayout.
func Today() string {
	return time.Now().Format(DateLayout)
}

// ValidDate reports whether s is a DateLayout date.
func ValidDate(s string) bool {
	_, err := time.Parse(DateLayout, s)
	return err == nil
}

// EarlierDate returns the earlier of two dates, ignoring empty values.
func EarlierDate(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	case b < a:
		return b
	default:
		return a
	}
}

// LaterDate returns the later of two dates, ignoring empty values.
func LaterDate(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	case b > a:
		return b
	default:
		return a
	}
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int {
	return &v
}
