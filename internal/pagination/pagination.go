// Package pagination decides whether a listing has more pages without relying
// on explicit "next" controls, and walks page targets until it does not.
package pagination

import (
	"bytes"
	"net/url"
	"slices"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/tidwall/gjson"

	"github.com/jmylchreest/jobsift/internal/fetch"
)

// Predicate reports whether the page after doc should be fetched.
type Predicate interface {
	Next(doc fetch.Document) bool
}

// ByLength continues while a page holds a full page of items. A full page
// implies more results exist; a short page is the last one.
type ByLength struct {
	Selector   string // CSS selector for one listing item
	FullCounts []int  // Item counts that mean "page is full", e.g. 25 and 50
}

// Count returns the number of items on the page.
func (b ByLength) Count(doc fetch.Document) int {
	d, err := goquery.NewDocumentFromReader(bytes.NewReader(doc.Body))
	if err != nil {
		return 0
	}
	return d.Find(b.Selector).Length()
}

// Next implements Predicate.
func (b ByLength) Next(doc fetch.Document) bool {
	return slices.Contains(b.FullCounts, b.Count(doc))
}

// ByPayloadLength is ByLength for structured payloads. ItemsPath is a gjson
// path resolving to the item array.
type ByPayloadLength struct {
	ItemsPath  string
	FullCounts []int
}

// Count returns the number of items at ItemsPath.
func (b ByPayloadLength) Count(doc fetch.Document) int {
	res := gjson.GetBytes(doc.Body, b.ItemsPath)
	if !res.Exists() || !res.IsArray() {
		return 0
	}
	return len(res.Array())
}

// Next implements Predicate.
func (b ByPayloadLength) Next(doc fetch.Document) bool {
	return slices.Contains(b.FullCounts, b.Count(doc))
}

// ByNextLink follows a "next" link when a site does provide one.
type ByNextLink struct {
	Selector string // CSS selector for the "next" link
}

// Next implements Predicate.
func (b ByNextLink) Next(doc fetch.Document) bool {
	_, ok := b.NextURL(doc)
	return ok
}

// NextURL returns the absolute URL of the next page.
func (b ByNextLink) NextURL(doc fetch.Document) (string, bool) {
	if b.Selector == "" {
		return "", false
	}
	d, err := goquery.NewDocumentFromReader(bytes.NewReader(doc.Body))
	if err != nil {
		return "", false
	}
	base, err := url.Parse(doc.URL)
	if err != nil {
		return "", false
	}

	href, ok := d.Find(b.Selector).First().Attr("href")
	if !ok || href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") {
		return "", false
	}
	link, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	if !link.IsAbs() {
		link = base.ResolveReference(link)
	}
	link.Fragment = ""
	return link.String(), true
}

// normalizeURL makes URLs comparable for loop detection.
func normalizeURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	parsed.Fragment = ""
	if len(parsed.Path) > 1 && strings.HasSuffix(parsed.Path, "/") {
		parsed.Path = strings.TrimSuffix(parsed.Path, "/")
	}
	return parsed.String()
}
