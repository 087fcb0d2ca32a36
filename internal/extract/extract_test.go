package extract

import (
	"context"
	"regexp"
	"slices"
	"strings"
	"testing"

	"github.com/jmylchreest/jobsift/internal/fetch"
	"github.com/jmylchreest/jobsift/internal/posting"
)

const listingHTML = `<html><body>
<div class="job" data-id="job-101">
  <h2><a href="/jobs/graph-engineer-101#apply">  Graph
     Engineer </a></h2>
  <span class="company">ACME</span>
  <span class="loc">Wien</span><span class="loc">Linz</span>
  <span class="salary">EUR 4.200 brutto</span>
  <span class="remote">Homeoffice</span>
</div>
<div class="job" data-id="job-102">
  <h2><a href="https://example.org/jobs/analyst-102">Analyst</a></h2>
</div>
<div class="job" data-id="job-103">
  <h2><a href="/jobs/no-title-103"></a></h2>
</div>
<div class="job">
  <h2><a href="/jobs/no-number">Ghost</a></h2>
</div>
<div class="job" data-id="job-101">
  <h2><a href="/jobs/graph-engineer-101">Graph Engineer (updated)</a></h2>
</div>
</body></html>`

func domStrategy(t *testing.T) *Strategy {
	t.Helper()
	st, err := Spec{
		Identity: IdentitySpec{Pattern: `-(\d+)$`},
		Mapping: MappingSpec{
			Kind:  KindDOM,
			Items: "div.job",
			Fields: map[string]FieldSpec{
				FieldTitle:      {Selector: "h2 a"},
				FieldURL:        {Selector: "h2 a", Attr: "href"},
				FieldCompany:    {Selector: ".company"},
				FieldLocations:  {Selector: ".loc"},
				FieldSalary:     {Selector: ".salary"},
				FieldHomeOffice: {Selector: ".remote"},
			},
		},
	}.Build(nil)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	return st
}

func listingDoc() fetch.Document {
	return fetch.Document{URL: "https://example.org/search?page=1", Body: []byte(listingHTML)}
}

var site = Site{Name: "example", CollectedOn: "2024-01-10"}

// --- Identity Tests ---

func TestRegexIdentity(t *testing.T) {
	tests := []struct {
		pattern string
		field   string
		rec     Record
		want    string
	}{
		{`-(\d+)$`, "", Record{URL: "https://x/jobs/dev-42"}, "42"},
		{`job/\d+`, "", Record{URL: "https://x/job/77/apply"}, "77"},
		{`id=([\w-]+)`, "", Record{URL: "https://x/?id=ab-12-3"}, "123"},
		{`\d+`, FieldID, Record{RawID: "job-9", URL: "https://x/1"}, "9"},
		{`-(\d+)$`, "", Record{URL: "https://x/jobs/dev"}, ""},
	}
	for _, tt := range tests {
		id, err := NewRegexIdentity(tt.pattern, tt.field)
		if err != nil {
			t.Fatalf("NewRegexIdentity(%q) error = %v", tt.pattern, err)
		}
		if got := id.Key(tt.rec); got != tt.want {
			t.Errorf("Key(%+v) with %q = %q, want %q", tt.rec, tt.pattern, got, tt.want)
		}
	}
}

func TestNewRegexIdentity_Errors(t *testing.T) {
	if _, err := NewRegexIdentity(`(`, ""); err == nil {
		t.Error("expected error for invalid pattern")
	}
	if _, err := NewRegexIdentity(`\d+`, "title"); err == nil {
		t.Error("expected error for unsupported field")
	}
}

func TestFieldIdentity(t *testing.T) {
	if got := (FieldIdentity{}).Key(Record{RawID: "12345"}); got != "12345" {
		t.Errorf("Key() = %q, want 12345", got)
	}
	if got := (FieldIdentity{}).Key(Record{RawID: "n/a"}); got != "" {
		t.Errorf("Key() = %q, want empty", got)
	}
}

// --- DOM Extraction Tests ---

func TestStrategy_ExtractDOM(t *testing.T) {
	set, stats := domStrategy(t).Extract(context.Background(), []fetch.Document{listingDoc()}, site)

	if want := []string{"example_101", "example_102"}; !slices.Equal(set.IDs(), want) {
		t.Fatalf("IDs() = %v, want %v", set.IDs(), want)
	}
	if stats.Items != 5 || stats.Skipped != 2 || stats.Duplicates != 1 || stats.Postings != 2 {
		t.Errorf("stats = %+v, want 5 items, 2 skipped, 1 duplicate, 2 postings", stats)
	}

	p := set["example_101"]
	if p.Title != "Graph Engineer (updated)" {
		t.Errorf("title = %q, want the later duplicate", p.Title)
	}
	if p.URL != "https://example.org/jobs/graph-engineer-101" {
		t.Errorf("url = %q, want resolved without fragment", p.URL)
	}
	if p.Source != "example" || p.CollectedOn != "2024-01-10" || !p.IsActive {
		t.Errorf("source/date/active = %q/%q/%v", p.Source, p.CollectedOn, p.IsActive)
	}
}

func TestStrategy_ExtractDOM_Fields(t *testing.T) {
	st := domStrategy(t)
	doc := listingDoc()
	// keep only the first item so the duplicate does not replace it
	doc.Body = []byte(listingHTML[:strings.Index(listingHTML, `<div class="job" data-id="job-102">`)] + "</body></html>")

	set, _ := st.Extract(context.Background(), []fetch.Document{doc}, site)
	p, ok := set["example_101"]
	if !ok {
		t.Fatalf("example_101 missing from %v", set.IDs())
	}
	if p.Title != "Graph Engineer" {
		t.Errorf("title = %q, want whitespace collapsed", p.Title)
	}
	if p.Company != "ACME" || p.Salary != "EUR 4.200 brutto" {
		t.Errorf("company/salary = %q/%q", p.Company, p.Salary)
	}
	if !slices.Equal(p.Locations, []string{"Wien", "Linz"}) {
		t.Errorf("locations = %v", p.Locations)
	}
	if !p.IsHomeOffice {
		t.Error("home office should be set")
	}
}

func TestStrategy_URLTemplate(t *testing.T) {
	st, err := Spec{
		Mapping: MappingSpec{Items: "li", Fields: map[string]FieldSpec{
			FieldID:    {Attr: "data-job"},
			FieldTitle: {},
		}},
		URLTemplate: "https://example.org/job/{id}",
	}.Build(nil)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	doc := fetch.Document{Body: []byte(`<ul><li data-job="55">Tester</li></ul>`)}
	set, _ := st.Extract(context.Background(), []fetch.Document{doc}, site)
	if got := set["example_55"].URL; got != "https://example.org/job/55" {
		t.Errorf("url = %q", got)
	}
}

// --- Payload Extraction Tests ---

const listingJSON = `{"data": {"results": [
  {"jobPosting": {"id": 9001, "title": "Data Engineer", "company": {"name": "Beta"},
    "locations": [{"city": "Graz"}, {"city": "Wien"}], "salary": "ab 3.800 brutto",
    "employmentTypes": ["full_time"], "isHomeOffice": true, "isActive": false,
    "url": "/job/9001"}},
  {"advert": {"id": 1}},
  {"jobPosting": {"id": 9002, "title": "Go Developer", "company": {"name": "Gamma"}}},
  {"jobPosting": {"title": "No id"}}
]}}`

func payloadSpec() Spec {
	return Spec{
		Mapping: MappingSpec{
			Kind:    KindPayload,
			Items:   "data.results",
			Wrapper: "jobPosting",
			Fields: map[string]FieldSpec{
				FieldID:              {Path: "id"},
				FieldTitle:           {Path: "title"},
				FieldCompany:         {Path: "company.name"},
				FieldLocations:       {Path: "locations.#.city"},
				FieldSalary:          {Path: "salary"},
				FieldEmploymentTypes: {Path: "employmentTypes"},
				FieldHomeOffice:      {Path: "isHomeOffice"},
				FieldActive:          {Path: "isActive"},
				FieldURL:             {Path: "url"},
			},
		},
	}
}

func TestStrategy_ExtractPayload(t *testing.T) {
	st, err := payloadSpec().Build(nil)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	doc := fetch.Document{URL: "https://api.example.org/search", Body: []byte(listingJSON)}
	set, stats := st.Extract(context.Background(), []fetch.Document{doc}, site)

	if want := []string{"example_9001", "example_9002"}; !slices.Equal(set.IDs(), want) {
		t.Fatalf("IDs() = %v, want %v", set.IDs(), want)
	}
	// the advert lacks the wrapper and the last item has no id
	if stats.Skipped != 2 || stats.Items != 4 {
		t.Errorf("stats = %+v, want 4 items, 2 skipped", stats)
	}

	p := set["example_9001"]
	if p.Company != "Beta" || !slices.Equal(p.Locations, []string{"Graz", "Wien"}) {
		t.Errorf("company/locations = %q/%v", p.Company, p.Locations)
	}
	if !p.IsHomeOffice || p.IsActive {
		t.Errorf("home office/active = %v/%v, want true/false", p.IsHomeOffice, p.IsActive)
	}
	if p.URL != "https://api.example.org/job/9001" {
		t.Errorf("url = %q", p.URL)
	}
	if !slices.Equal(p.EmploymentTypes, []string{"full_time"}) {
		t.Errorf("employment types = %v", p.EmploymentTypes)
	}
	if !set["example_9002"].IsActive {
		t.Error("postings without an active field should be active")
	}
}

func TestPayloadMapping_Script(t *testing.T) {
	spec := payloadSpec()
	spec.Mapping.Script = "script#__NEXT_DATA__"
	st, err := spec.Build(nil)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	page := `<html><head><script id="__NEXT_DATA__" type="application/json">` + listingJSON + `</script></head></html>`
	set, _ := st.Extract(context.Background(), []fetch.Document{{Body: []byte(page)}}, site)
	if len(set) != 2 {
		t.Errorf("len = %d, want 2", len(set))
	}
}

func TestStrategy_BadDocument(t *testing.T) {
	st, err := payloadSpec().Build(nil)
	if err != nil {
		t.Fatal(err)
	}
	docs := []fetch.Document{{Body: []byte(`not json`)}, {Body: []byte(listingJSON)}}
	set, stats := st.Extract(context.Background(), docs, site)
	if stats.BadDocuments != 1 || len(set) != 2 {
		t.Errorf("bad documents = %d, postings = %d; want 1 and 2", stats.BadDocuments, len(set))
	}
}

// --- Spec Tests ---

func TestSpec_BuildErrors(t *testing.T) {
	tests := []struct {
		name string
		spec Spec
	}{
		{"no identity", Spec{Mapping: MappingSpec{Items: "li", Fields: map[string]FieldSpec{FieldTitle: {}}}}},
		{"unknown field", Spec{Identity: IdentitySpec{Pattern: `\d+`}, Mapping: MappingSpec{Items: "li", Fields: map[string]FieldSpec{FieldTitle: {}, "salary_max": {}}}}},
		{"no title", Spec{Identity: IdentitySpec{Pattern: `\d+`}, Mapping: MappingSpec{Items: "li", Fields: map[string]FieldSpec{FieldURL: {Attr: "href"}}}}},
		{"no items", Spec{Identity: IdentitySpec{Pattern: `\d+`}, Mapping: MappingSpec{Fields: map[string]FieldSpec{FieldTitle: {}}}}},
		{"payload without path", Spec{Identity: IdentitySpec{Pattern: `\d+`}, Mapping: MappingSpec{Kind: KindPayload, Fields: map[string]FieldSpec{FieldTitle: {Selector: "h2"}}}}},
		{"unknown kind", Spec{Identity: IdentitySpec{Pattern: `\d+`}, Mapping: MappingSpec{Kind: "xml", Fields: map[string]FieldSpec{FieldTitle: {}}}}},
		{"describe without fetcher", Spec{Identity: IdentitySpec{Pattern: `\d+`}, Mapping: MappingSpec{Items: "li", Fields: map[string]FieldSpec{FieldTitle: {}}}, Describe: &DescribeSpec{Selector: "main"}}},
	}
	for _, tt := range tests {
		if _, err := tt.spec.Build(nil); err == nil {
			t.Errorf("%s: expected Build() error", tt.name)
		}
	}
}

func TestNewRegistry(t *testing.T) {
	reg, err := NewRegistry(map[string]Spec{"b": payloadSpec(), "a": payloadSpec()}, nil)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	if !slices.Equal(reg.Names(), []string{"a", "b"}) {
		t.Errorf("Names() = %v", reg.Names())
	}

	bad := payloadSpec()
	bad.Identity.Pattern = "("
	if _, err := NewRegistry(map[string]Spec{"bad": bad}, nil); err == nil || !strings.Contains(err.Error(), "site bad") {
		t.Errorf("NewRegistry() error = %v, want one naming the site", err)
	}
}

// --- Describer Tests ---

type fakeFetcher struct {
	pages     map[string]string
	requested []string
}

func (f *fakeFetcher) FetchAll(_ context.Context, targets []fetch.Target) ([]fetch.Document, fetch.Stats) {
	stats := fetch.Stats{Requested: len(targets)}
	var docs []fetch.Document
	for _, tg := range targets {
		f.requested = append(f.requested, tg.URL)
		body, ok := f.pages[tg.URL]
		if !ok {
			stats.Dropped++
			continue
		}
		docs = append(docs, fetch.Document{Target: tg, URL: tg.URL, Body: []byte(body)})
	}
	stats.Fetched = len(docs)
	return docs, stats
}

func describeSet() posting.Set {
	return posting.Set{
		"example_1": {ID: "example_1", Title: "A", URL: "https://example.org/jobs/1"},
		"example_2": {ID: "example_2", Title: "B", URL: "https://example.org/jobs/2", Description: "listing text"},
		"example_3": {ID: "example_3", Title: "C", URL: "https://example.org/jobs/3"},
	}
}

func TestDescriber_Selector(t *testing.T) {
	f := &fakeFetcher{pages: map[string]string{
		"https://example.org/jobs/1": `<main><div class="desc"><p>We build <b>graphs</b>.</p><ul><li>Go</li><li>SQL</li></ul></div></main>`,
		"https://example.org/jobs/2": `<main><div class="desc">Second role</div></main>`,
	}}
	d := &Describer{Fetcher: f, Selector: ".desc"}
	in := describeSet()
	out, n := d.Describe(context.Background(), in, "example")

	if n != 2 {
		t.Errorf("described = %d, want 2", n)
	}
	if got, want := out["example_1"].Description, "We build graphs.\nGo\nSQL"; got != want {
		t.Errorf("description = %q, want %q", got, want)
	}
	if out["example_2"].Description != "Second role" {
		t.Errorf("description = %q, want Second role", out["example_2"].Description)
	}
	if out["example_3"].Description != "" {
		t.Errorf("failed fetch should keep the listing description, got %q", out["example_3"].Description)
	}
	if in["example_1"].Description != "" {
		t.Error("input set was modified")
	}
}

func TestDescriber_PayloadPathAndTemplate(t *testing.T) {
	f := &fakeFetcher{pages: map[string]string{
		"https://api.example.org/job/1": `{"job": {"description": "<p>Line one</p><p>Line two</p>"}}`,
		"https://api.example.org/job/3": `{"job": {"description": "Plain"}}`,
	}}
	d := &Describer{Fetcher: f, URLTemplate: "https://api.example.org/job/{id}", Path: "job.description", OnlyMissing: true}
	out, n := d.Describe(context.Background(), describeSet(), "example")

	if n != 2 {
		t.Errorf("described = %d, want 2", n)
	}
	if got := out["example_1"].Description; got != "Line one\nLine two" {
		t.Errorf("description = %q", got)
	}
	if slices.Contains(f.requested, "https://api.example.org/job/2") {
		t.Error("only_missing should skip postings that have a description")
	}
	if out["example_2"].Description != "listing text" {
		t.Errorf("description = %q, want listing text kept", out["example_2"].Description)
	}
}

func TestStrategy_WithDescriber(t *testing.T) {
	f := &fakeFetcher{pages: map[string]string{
		"https://example.org/jobs/analyst-102": `<article id="d">Numbers all day</article>`,
	}}
	spec := Spec{
		Identity: IdentitySpec{Pattern: `-(\d+)$`},
		Mapping: MappingSpec{Items: "div.job", Fields: map[string]FieldSpec{
			FieldTitle: {Selector: "h2 a"},
			FieldURL:   {Selector: "h2 a", Attr: "href"},
		}},
		Describe: &DescribeSpec{Selector: "#d"},
	}
	st, err := spec.Build(f)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	set, stats := st.Extract(context.Background(), []fetch.Document{listingDoc()}, site)
	if stats.Described != 1 {
		t.Errorf("described = %d, want 1", stats.Described)
	}
	if set["example_102"].Description != "Numbers all day" {
		t.Errorf("description = %q", set["example_102"].Description)
	}
}

// --- Helper Tests ---

func TestResolveURL(t *testing.T) {
	tests := []struct {
		base, href, want string
	}{
		{"https://a.org/x/y", "/jobs/1", "https://a.org/jobs/1"},
		{"https://a.org/x/y", "z#top", "https://a.org/x/z"},
		{"https://a.org/", "https://b.org/j", "https://b.org/j"},
		{"https://a.org/", "#frag", ""},
		{"https://a.org/", "javascript:void(0)", ""},
		{"", "/rel", "/rel"},
	}
	for _, tt := range tests {
		if got := resolveURL(tt.base, tt.href); got != tt.want {
			t.Errorf("resolveURL(%q, %q) = %q, want %q", tt.base, tt.href, got, tt.want)
		}
	}
}

func TestIDAndKey(t *testing.T) {
	if got := ID("site1", "42"); got != "site1_42" {
		t.Errorf("ID() = %q", got)
	}
	if got := Key("site1", "site1_42"); got != "42" {
		t.Errorf("Key() = %q", got)
	}
}

func TestRegexIdentity_WholeMatch(t *testing.T) {
	id := &RegexIdentity{Pattern: regexp.MustCompile(`\d{3}-\d{2}`)}
	if got := id.Key(Record{URL: "/x/123-45"}); got != "12345" {
		t.Errorf("Key() = %q, want 12345", got)
	}
}
