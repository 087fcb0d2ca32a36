// Package merge reconciles posting batches from several runs into one
// identity-keyed view and keeps first/last-seen dates.
package merge

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jmylchreest/jobsift/internal/posting"
)

// ErrUnknownMode is returned by ParseMode.
var ErrUnknownMode = errors.New("unknown merge mode")

// Mode selects how repeated sightings of an identity are combined.
type Mode string

const (
	// ModeFill keeps one record per identity, back-filling empty fields and
	// refreshing them from newer sightings.
	ModeFill Mode = "fill"
	// ModeExtend keeps every sighting as an ordered list.
	ModeExtend Mode = "extend"
)

// ParseMode validates a merge mode. Empty means fill.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeFill, "":
		return ModeFill, nil
	case ModeExtend:
		return ModeExtend, nil
	default:
		return "", fmt.Errorf("%w: %q (use fill or extend)", ErrUnknownMode, s)
	}
}

// Result is the outcome of Unify. Postings is set in fill mode, Groups in
// extend mode.
type Result struct {
	Mode     Mode
	Postings posting.Set
	Groups   map[string]Group
}

// Len returns the number of identities.
func (r Result) Len() int {
	if r.Mode == ModeExtend {
		return len(r.Groups)
	}
	return len(r.Postings)
}

// Unify merges batches in the given mode. Batches are applied in order.
func Unify(mode Mode, batches ...posting.Set) (Result, error) {
	switch mode {
	case ModeFill, "":
		return Result{Mode: ModeFill, Postings: Fill(batches...)}, nil
	case ModeExtend:
		return Result{Mode: ModeExtend, Groups: Extend(batches...)}, nil
	default:
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
}

// ownBounds returns the dates a single sighting vouches for.
func ownBounds(p posting.Posting) (first, last string) {
	first = posting.EarlierDate(p.FirstCollectedOn, p.CollectedOn)
	last = posting.LaterDate(p.LastCollectedOn, p.CollectedOn)
	return first, last
}

// Fill merges batches into one record per identity.
//
// The first sighting is copied. A later sighting widens the first/last-seen
// bounds; when it moves last-seen forward its non-empty fields replace the
// stored ones, description included, otherwise it only fills fields that
// are still empty. Bounds are a min/max over all sightings, so the batch
// order does not change them.
func Fill(batches ...posting.Set) posting.Set {
	out := make(posting.Set)
	for _, batch := range batches {
		for _, id := range batch.IDs() {
			incoming := batch[id]
			first, last := ownBounds(incoming)

			stored, ok := out[id]
			if !ok {
				p := incoming.Clone()
				p.FirstCollectedOn, p.LastCollectedOn = first, last
				out[id] = p
				continue
			}

			newer := last != "" && (stored.LastCollectedOn == "" || last > stored.LastCollectedOn)
			if newer {
				overlay(&stored, incoming)
			} else {
				backfill(&stored, incoming)
			}
			stored.FirstCollectedOn = posting.EarlierDate(stored.FirstCollectedOn, first)
			stored.LastCollectedOn = posting.LaterDate(stored.LastCollectedOn, last)
			out[id] = stored
		}
	}
	return out
}

// backfill copies src fields into dst where dst is empty.
func backfill(dst *posting.Posting, src posting.Posting) {
	src = src.Clone()
	fillString(&dst.Title, src.Title)
	fillString(&dst.Company, src.Company)
	fillString(&dst.Description, src.Description)
	fillString(&dst.URL, src.URL)
	fillString(&dst.Language, src.Language)
	fillString(&dst.Salary, src.Salary)
	fillString(&dst.CollectedOn, src.CollectedOn)
	fillString(&dst.Source, src.Source)
	if len(dst.Locations) == 0 {
		dst.Locations = src.Locations
	}
	if len(dst.Keywords) == 0 {
		dst.Keywords = src.Keywords
	}
	if len(dst.EmploymentTypes) == 0 {
		dst.EmploymentTypes = src.EmploymentTypes
	}
	if dst.Points == nil {
		dst.Points = src.Points
	}
	if dst.SalaryMonthlyGuessed == nil {
		dst.SalaryMonthlyGuessed = src.SalaryMonthlyGuessed
	}
	if dst.SalaryGuessed == nil {
		dst.SalaryGuessed = src.SalaryGuessed
	}
	dst.IsHomeOffice = dst.IsHomeOffice || src.IsHomeOffice
	dst.IsActive = dst.IsActive || src.IsActive
}

// overlay copies every non-empty src field into dst. Identity and source
// never change.
func overlay(dst *posting.Posting, src posting.Posting) {
	src = src.Clone()
	setString(&dst.Title, src.Title)
	setString(&dst.Company, src.Company)
	setString(&dst.Description, src.Description)
	setString(&dst.URL, src.URL)
	setString(&dst.Language, src.Language)
	setString(&dst.Salary, src.Salary)
	setString(&dst.CollectedOn, src.CollectedOn)
	fillString(&dst.Source, src.Source)
	if len(src.Locations) > 0 {
		dst.Locations = src.Locations
	}
	if len(src.Keywords) > 0 {
		dst.Keywords = src.Keywords
	}
	if len(src.EmploymentTypes) > 0 {
		dst.EmploymentTypes = src.EmploymentTypes
	}
	if src.Points != nil {
		dst.Points = src.Points
	}
	if src.SalaryMonthlyGuessed != nil {
		dst.SalaryMonthlyGuessed = src.SalaryMonthlyGuessed
	}
	if src.SalaryGuessed != nil {
		dst.SalaryGuessed = src.SalaryGuessed
	}
	dst.IsHomeOffice = src.IsHomeOffice
	dst.IsActive = src.IsActive
}

func fillString(dst *string, v string) {
	if *dst == "" {
		*dst = v
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
