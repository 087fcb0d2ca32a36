package pagination

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"testing"

	"github.com/jmylchreest/jobsift/internal/fetch"
)

func listingPage(n int) fetch.Document {
	var b strings.Builder
	b.WriteString("<html><body><ul>")
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, `<li class="job"><a href="/job/%d/">Job %d</a></li>`, i, i)
	}
	b.WriteString("</ul></body></html>")
	return fetch.Document{URL: "https://jobs.example.com/search", Body: []byte(b.String())}
}

// fakeFetcher serves documents by URL and records the order of requests.
type fakeFetcher struct {
	pages map[string]fetch.Document
	seen  []fetch.Target
}

func (f *fakeFetcher) Fetch(_ context.Context, t fetch.Target) (fetch.Document, error) {
	f.seen = append(f.seen, t)
	doc, ok := f.pages[t.URL]
	if !ok {
		return fetch.Document{Target: t, URL: t.URL, StatusCode: 404}, fmt.Errorf("%w: 404", fetch.ErrStatus)
	}
	doc.Target = t
	doc.URL = t.URL
	return doc, nil
}

// --- ByLength Tests ---

func TestByLength_Next(t *testing.T) {
	p := ByLength{Selector: "li.job", FullCounts: []int{25, 50}}
	tests := []struct {
		items int
		want  bool
	}{
		{25, true},
		{50, true},
		{24, false},
		{0, false},
		{51, false},
	}
	for _, tt := range tests {
		if got := p.Next(listingPage(tt.items)); got != tt.want {
			t.Errorf("Next() with %d items = %v, want %v", tt.items, got, tt.want)
		}
	}
}

func TestByLength_Count_NotHTML(t *testing.T) {
	p := ByLength{Selector: "li.job", FullCounts: []int{0}}
	if got := p.Count(fetch.Document{Body: []byte(`{"items":[]}`)}); got != 0 {
		t.Errorf("Count() = %d, want 0", got)
	}
}

// --- ByPayloadLength Tests ---

func TestByPayloadLength_Next(t *testing.T) {
	p := ByPayloadLength{ItemsPath: "data.items", FullCounts: []int{3}}
	tests := []struct {
		name string
		body string
		want bool
	}{
		{"full page", `{"data":{"items":[1,2,3]}}`, true},
		{"short page", `{"data":{"items":[1,2]}}`, false},
		{"missing path", `{"data":{}}`, false},
		{"not an array", `{"data":{"items":3}}`, false},
		{"invalid json", `<html>`, false},
	}
	for _, tt := range tests {
		if got := p.Next(fetch.Document{Body: []byte(tt.body)}); got != tt.want {
			t.Errorf("%s: Next() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

// --- ByNextLink Tests ---

func TestByNextLink_NextURL(t *testing.T) {
	doc := fetch.Document{
		URL:  "https://jobs.example.com/search?page=1",
		Body: []byte(`<a class="next" href="/search?page=2#top">Next</a>`),
	}
	got, ok := ByNextLink{Selector: "a.next"}.NextURL(doc)
	if !ok {
		t.Fatal("expected a next link")
	}
	if want := "https://jobs.example.com/search?page=2"; got != want {
		t.Errorf("NextURL() = %q, want %q", got, want)
	}
}

func TestByNextLink_IgnoresScriptLinks(t *testing.T) {
	doc := fetch.Document{
		URL:  "https://jobs.example.com/search",
		Body: []byte(`<a class="next" href="javascript:void(0)">Next</a>`),
	}
	if (ByNextLink{Selector: "a.next"}).Next(doc) {
		t.Error("javascript links should not count as a next page")
	}
}

// --- Walker Tests ---

func TestWalker_Target_Offset(t *testing.T) {
	w := Walker{
		BaseURL:     "https://jobs.example.com/search?q=go",
		OffsetParam: "startrow",
		Step:        25,
		SendPath:    true,
	}
	tg, err := w.Target(2)
	if err != nil {
		t.Fatalf("Target() error = %v", err)
	}
	if want := "https://jobs.example.com/search?q=go&startrow=50"; tg.URL != want {
		t.Errorf("URL = %q, want %q", tg.URL, want)
	}
	if tg.Path != "/search?q=go&startrow=50" {
		t.Errorf("Path = %q", tg.Path)
	}
	if tg.Page != 50 {
		t.Errorf("Page = %d, want 50", tg.Page)
	}
}

func TestWalker_Targets_PageNumbers(t *testing.T) {
	w := Walker{BaseURL: "https://jobs.example.com/jobs", PageParam: "page", First: 1}
	ts, err := w.Targets(3)
	if err != nil {
		t.Fatalf("Targets() error = %v", err)
	}
	want := []string{
		"https://jobs.example.com/jobs?page=1",
		"https://jobs.example.com/jobs?page=2",
		"https://jobs.example.com/jobs?page=3",
	}
	for i, tg := range ts {
		if tg.URL != want[i] {
			t.Errorf("targets[%d] = %q, want %q", i, tg.URL, want[i])
		}
	}
}

func TestWalker_Walk_StopsOnShortPage(t *testing.T) {
	base := "https://jobs.example.com/search"
	f := &fakeFetcher{pages: map[string]fetch.Document{
		base + "?startrow=0":  listingPage(25),
		base + "?startrow=25": listingPage(25),
		base + "?startrow=50": listingPage(7),
		base + "?startrow=75": listingPage(25),
	}}
	w := Walker{
		BaseURL:     base,
		OffsetParam: "startrow",
		Step:        25,
		Next:        ByLength{Selector: "li.job", FullCounts: []int{25, 50}},
	}

	docs, stats, err := w.Walk(context.Background(), f)
	if err != nil {
		t.Fatalf("Walk() error = %v", err)
	}
	if len(docs) != 3 {
		t.Fatalf("expected 3 pages, got %d", len(docs))
	}
	if len(f.seen) != 3 {
		t.Errorf("fetched %d pages, want 3", len(f.seen))
	}
	if stats.Stopped != "last page" {
		t.Errorf("Stopped = %q, want last page", stats.Stopped)
	}
}

func TestWalker_Walk_StatusEndsWalk(t *testing.T) {
	base := "https://jobs.example.com/search"
	f := &fakeFetcher{pages: map[string]fetch.Document{
		base + "?page=1": listingPage(25),
	}}
	w := Walker{
		BaseURL:   base,
		PageParam: "page",
		First:     1,
		Next:      ByLength{Selector: "li.job", FullCounts: []int{25}},
	}

	docs, stats, err := w.Walk(context.Background(), f)
	if err != nil {
		t.Fatalf("Walk() error = %v", err)
	}
	if len(docs) != 1 || stats.Stopped != "status" {
		t.Errorf("docs = %d, stopped = %q", len(docs), stats.Stopped)
	}
}

func TestWalker_Walk_MaxPages(t *testing.T) {
	base := "https://jobs.example.com/search"
	pages := make(map[string]fetch.Document)
	for i := 1; i <= 10; i++ {
		pages[fmt.Sprintf("%s?page=%d", base, i)] = listingPage(25)
	}
	w := Walker{
		BaseURL:   base,
		PageParam: "page",
		First:     1,
		MaxPages:  4,
		Next:      ByLength{Selector: "li.job", FullCounts: []int{25}},
	}

	docs, stats, _ := w.Walk(context.Background(), &fakeFetcher{pages: pages})
	if len(docs) != 4 {
		t.Errorf("expected 4 pages, got %d", len(docs))
	}
	if stats.Stopped != "max pages" {
		t.Errorf("Stopped = %q, want max pages", stats.Stopped)
	}
}

func TestWalker_Walk_FollowsLinksWithoutLooping(t *testing.T) {
	base := "https://jobs.example.com/search"
	page := func(next string) fetch.Document {
		return fetch.Document{Body: []byte(`<a class="next" href="` + next + `">Next</a>`)}
	}
	f := &fakeFetcher{pages: map[string]fetch.Document{
		base:          page("/search?p=2"),
		base + "?p=2": page("/search?p=3"),
		base + "?p=3": page("/search"),
	}}
	w := Walker{BaseURL: base, Next: ByNextLink{Selector: "a.next"}}

	docs, stats, err := w.Walk(context.Background(), f)
	if err != nil {
		t.Fatalf("Walk() error = %v", err)
	}
	if len(docs) != 3 {
		t.Errorf("expected 3 pages, got %d", len(docs))
	}
	if stats.Stopped != "repeated page" {
		t.Errorf("Stopped = %q, want repeated page", stats.Stopped)
	}
}

func TestWalker_Walk_FollowedLinksSendPath(t *testing.T) {
	base := "https://jobs.example.com/search"
	f := &fakeFetcher{pages: map[string]fetch.Document{
		base:          {Body: []byte(`<a class="next" href="/search?p=2">Next</a>`)},
		base + "?p=2": {Body: []byte(`<p>last</p>`)},
	}}
	w := Walker{BaseURL: base, SendPath: true, Next: ByNextLink{Selector: "a.next"}}

	if _, _, err := w.Walk(context.Background(), f); err != nil {
		t.Fatalf("Walk() error = %v", err)
	}
	var paths []string
	for _, target := range f.seen {
		paths = append(paths, target.Path)
	}
	if want := []string{"/search", "/search?p=2"}; !slices.Equal(paths, want) {
		t.Errorf("paths = %v, want %v", paths, want)
	}
}

func TestWalker_Walk_NoPredicateFetchesOnce(t *testing.T) {
	base := "https://jobs.example.com/all"
	f := &fakeFetcher{pages: map[string]fetch.Document{base: listingPage(3)}}

	docs, _, err := Walker{BaseURL: base}.Walk(context.Background(), f)
	if err != nil {
		t.Fatalf("Walk() error = %v", err)
	}
	if len(docs) != 1 {
		t.Errorf("expected 1 page, got %d", len(docs))
	}
}
