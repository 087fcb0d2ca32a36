package extract

import (
	"bytes"
	"context"
	"net/url"
	"strings"

	readability "codeberg.org/readeck/go-readability/v2"
	"github.com/PuerkitoBio/goquery"
	"github.com/tidwall/gjson"

	"github.com/jmylchreest/jobsift/internal/fetch"
	"github.com/jmylchreest/jobsift/internal/logger"
	"github.com/jmylchreest/jobsift/internal/posting"
)

// BatchFetcher fetches ordered targets, dropping the ones that fail.
// *fetch.Controller implements it.
type BatchFetcher interface {
	FetchAll(ctx context.Context, targets []fetch.Target) ([]fetch.Document, fetch.Stats)
}

// Describer fetches detail documents for extracted postings and fills in
// their descriptions. The description is read from Path (a gjson path,
// optionally inside the Script element) or Selector; when both come up
// empty and Readability is set the page's main text is used.
type Describer struct {
	Fetcher     BatchFetcher
	URLTemplate string // Detail URL with {id}; the posting URL when empty
	Path        string
	Script      string
	Selector    string
	Readability bool
	OnlyMissing bool // Skip postings that already have a description
}

// Describe returns a copy of set with descriptions merged in, and how many
// postings were described. Postings whose detail fetch fails keep their
// listing description.
func (d *Describer) Describe(ctx context.Context, set posting.Set, site string) (posting.Set, int) {
	out := set.Clone()
	byURL := make(map[string][]string)
	var targets []fetch.Target
	for _, id := range out.IDs() {
		p := out[id]
		if d.OnlyMissing && p.Description != "" {
			continue
		}
		link := p.URL
		if d.URLTemplate != "" {
			link = strings.ReplaceAll(d.URLTemplate, "{id}", Key(site, id))
		}
		if link == "" {
			continue
		}
		if _, seen := byURL[link]; !seen {
			targets = append(targets, fetch.Target{URL: link})
		}
		byURL[link] = append(byURL[link], id)
	}
	if len(targets) == 0 {
		return out, 0
	}

	docs, stats := d.Fetcher.FetchAll(ctx, targets)
	described := 0
	for _, doc := range docs {
		text := d.text(doc)
		if text == "" {
			logger.Debug("no description in detail page", "site", site, "url", doc.Target.URL)
			continue
		}
		for _, id := range byURL[doc.Target.URL] {
			p := out[id]
			p.Description = text
			out[id] = p
			described++
		}
	}
	logger.Debug("descriptions fetched", "site", site, "requested", stats.Requested,
		"fetched", stats.Fetched, "dropped", stats.Dropped, "described", described)
	return out, described
}

// text extracts the description of one detail document.
func (d *Describer) text(doc fetch.Document) string {
	if d.Path != "" {
		if body, err := payload(doc.Body, d.Script); err == nil {
			if res := gjson.GetBytes(body, d.Path); res.Exists() {
				if s := strings.TrimSpace(res.String()); s != "" {
					return htmlText(s)
				}
			}
		}
	}
	if d.Selector != "" {
		if page, err := goquery.NewDocumentFromReader(bytes.NewReader(doc.Body)); err == nil {
			var parts []string
			page.Find(d.Selector).Each(func(_ int, s *goquery.Selection) {
				if t := blockText(s); t != "" {
					parts = append(parts, t)
				}
			})
			if len(parts) > 0 {
				return strings.Join(parts, "\n")
			}
		}
	}
	if d.Readability {
		return mainText(doc)
	}
	return ""
}

// mainText runs readability over an HTML page.
func mainText(doc fetch.Document) string {
	base, _ := url.Parse(doc.URL)
	parser := readability.NewParser()
	article, err := parser.Parse(bytes.NewReader(doc.Body), base)
	if err != nil || article.Node == nil {
		return ""
	}
	var buf bytes.Buffer
	if err := article.RenderText(&buf); err != nil {
		return ""
	}
	return strings.TrimSpace(buf.String())
}

// htmlText returns the text of a payload value that may hold markup.
func htmlText(s string) string {
	if !strings.Contains(s, "<") {
		return s
	}
	page, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return s
	}
	return blockText(page.Selection)
}

// blockText returns the text of s with one line per block element.
func blockText(s *goquery.Selection) string {
	s = s.Clone()
	s.Find("br").ReplaceWithHtml("\n")
	s.Find("p, li, div, h1, h2, h3, h4, tr").Each(func(_ int, b *goquery.Selection) {
		b.AppendHtml("\n")
	})
	var lines []string
	for _, line := range strings.Split(s.Text(), "\n") {
		if line = clean(line); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}
