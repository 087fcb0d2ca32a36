// Package extract turns fetched listing documents into postings using
// per-site strategies built from configuration.
package extract

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/jmylchreest/jobsift/internal/fetch"
	"github.com/jmylchreest/jobsift/internal/logger"
	"github.com/jmylchreest/jobsift/internal/posting"
)

// Field names a mapping may populate.
const (
	FieldID              = "id"
	FieldTitle           = "title"
	FieldCompany         = "company"
	FieldURL             = "url"
	FieldDescription     = "description"
	FieldSalary          = "salary"
	FieldLocations       = "locations"
	FieldEmploymentTypes = "employment_types"
	FieldHomeOffice      = "home_office"
	FieldActive          = "active"
)

var knownFields = map[string]bool{
	FieldID:              true,
	FieldTitle:           true,
	FieldCompany:         true,
	FieldURL:             true,
	FieldDescription:     true,
	FieldSalary:          true,
	FieldLocations:       true,
	FieldEmploymentTypes: true,
	FieldHomeOffice:      true,
	FieldActive:          true,
}

func checkFields[V any](fields map[string]V) error {
	for name := range fields {
		if !knownFields[name] {
			return fmt.Errorf("unknown field %q", name)
		}
	}
	if _, ok := fields[FieldTitle]; !ok {
		return fmt.Errorf("field %q is required", FieldTitle)
	}
	return nil
}

// Record is one listing item as read by a Mapping.
type Record struct {
	RawID           string
	Title           string
	Company         string
	URL             string
	Description     string
	Salary          string
	Locations       []string
	EmploymentTypes []string
	HomeOffice      bool
	Inactive        bool
}

// set assigns values to a named field. Scalar fields take the first value.
func (r *Record) set(field string, values []string) {
	first := ""
	if len(values) > 0 {
		first = values[0]
	}
	switch field {
	case FieldID:
		r.RawID = first
	case FieldTitle:
		r.Title = first
	case FieldCompany:
		r.Company = first
	case FieldURL:
		r.URL = first
	case FieldDescription:
		r.Description = strings.Join(values, "\n")
	case FieldSalary:
		r.Salary = first
	case FieldLocations:
		r.Locations = values
	case FieldEmploymentTypes:
		r.EmploymentTypes = values
	case FieldHomeOffice:
		r.HomeOffice = len(values) > 0 && truthy(first)
	case FieldActive:
		r.Inactive = len(values) > 0 && !truthy(first)
	}
}

func truthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "0", "false", "no", "off", "null":
		return false
	default:
		return true
	}
}

// clean collapses runs of whitespace.
func clean(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Mapping reads the records of one document.
type Mapping interface {
	// Records returns the records found and how many items were skipped.
	Records(doc fetch.Document) ([]Record, int, error)
}

// Site is the run context an adapter extracts for.
type Site struct {
	Name        string // Identity prefix and posting source
	CollectedOn string // Defaults to today
}

// Stats counts the expected losses of an Extract call.
type Stats struct {
	Documents    int
	BadDocuments int
	Items        int
	Skipped      int
	Duplicates   int
	Postings     int
	Described    int
}

// Adapter extracts postings from a site's documents.
type Adapter interface {
	Extract(ctx context.Context, docs []fetch.Document, site Site) (posting.Set, Stats)
}

// Strategy is a site adapter composed from an identity rule, a field
// mapping and an optional describer.
type Strategy struct {
	Identity    Identity
	Fields      Mapping
	URLTemplate string // Detail URL with {id}, used when an item has no URL
	Describer   *Describer
}

// Extract reads every document. Items without identity or title are
// skipped; a repeated identity replaces the earlier item.
func (s *Strategy) Extract(ctx context.Context, docs []fetch.Document, site Site) (posting.Set, Stats) {
	stats := Stats{Documents: len(docs)}
	date := site.CollectedOn
	if date == "" {
		date = posting.Today()
	}

	out := make(posting.Set)
	for _, doc := range docs {
		records, skipped, err := s.Fields.Records(doc)
		if err != nil {
			stats.BadDocuments++
			logger.WarnContext(ctx, "unreadable listing document", "site", site.Name, "url", doc.URL, "error", err)
			continue
		}
		stats.Items += len(records) + skipped
		stats.Skipped += skipped

		for _, r := range records {
			r.URL = resolveURL(doc.URL, strings.TrimSpace(r.URL))
			key := s.Identity.Key(r)
			title := clean(r.Title)
			if key == "" || title == "" {
				stats.Skipped++
				logger.Debug("skipping malformed item", "site", site.Name, "url", r.URL, "title", title)
				continue
			}
			p := s.build(r, key, title, site.Name, date)
			if _, dup := out[p.ID]; dup {
				stats.Duplicates++
			}
			out[p.ID] = p
		}
	}

	if s.Describer != nil && len(out) > 0 {
		var n int
		out, n = s.Describer.Describe(ctx, out, site.Name)
		stats.Described = n
	}
	stats.Postings = len(out)
	logger.Debug("extraction complete", "site", site.Name,
		"documents", stats.Documents, "items", stats.Items, "postings", stats.Postings,
		"skipped", stats.Skipped, "duplicates", stats.Duplicates)
	return out, stats
}

func (s *Strategy) build(r Record, key, title, site, date string) posting.Posting {
	link := r.URL
	if link == "" && s.URLTemplate != "" {
		link = strings.ReplaceAll(s.URLTemplate, "{id}", key)
	}
	return posting.Posting{
		ID:              ID(site, key),
		Title:           title,
		Company:         clean(r.Company),
		Description:     strings.TrimSpace(r.Description),
		URL:             link,
		Salary:          clean(r.Salary),
		Locations:       cleanAll(r.Locations),
		EmploymentTypes: cleanAll(r.EmploymentTypes),
		IsHomeOffice:    r.HomeOffice,
		IsActive:        !r.Inactive,
		Source:          site,
		CollectedOn:     date,
	}
}

// ID prefixes key with the site name.
func ID(site, key string) string {
	return site + "_" + key
}

// Key strips the site prefix from an identity.
func Key(site, id string) string {
	return strings.TrimPrefix(id, site+"_")
}

func cleanAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = clean(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// resolveURL makes href absolute against base and drops the fragment.
func resolveURL(base, href string) string {
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") {
		return ""
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if !u.IsAbs() && base != "" {
		b, err := url.Parse(base)
		if err == nil {
			u = b.ResolveReference(u)
		}
	}
	u.Fragment = ""
	return u.String()
}
