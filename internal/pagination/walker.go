package pagination

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/jmylchreest/jobsift/internal/fetch"
	"github.com/jmylchreest/jobsift/internal/logger"
)

// DefaultMaxPages caps a walk when MaxPages is not set.
const DefaultMaxPages = 50

// Fetcher fetches one page. fetch.Controller satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, target fetch.Target) (fetch.Document, error)
}

// Walker builds page targets from a base URL and fetches them one at a time.
//
// Pages are addressed by an offset parameter advanced by Step (startrow=0,
// 25, 50...) or, when OffsetParam is empty, by a page-number parameter
// counting up from First. With neither set only the base URL is fetched,
// unless Next is a ByNextLink.
type Walker struct {
	BaseURL     string
	OffsetParam string
	Start       int
	Step        int
	PageParam   string
	First       int
	MaxPages    int
	Headers     map[string]string
	// SendPath sets Target.Path to the page's request URI.
	SendPath bool
	// Next decides whether to continue; nil fetches only the first page.
	Next Predicate
}

// Stats summarises a walk.
type Stats struct {
	Pages   int
	Stopped string // why the walk ended
}

func (w Walker) maxPages() int {
	if w.MaxPages > 0 {
		return w.MaxPages
	}
	return DefaultMaxPages
}

// Target returns the target for the i-th page, counting from zero.
func (w Walker) Target(i int) (fetch.Target, error) {
	u, err := url.Parse(w.BaseURL)
	if err != nil {
		return fetch.Target{}, fmt.Errorf("parse base URL: %w", err)
	}
	page := i + 1
	q := u.Query()
	switch {
	case w.OffsetParam != "":
		page = w.Start + i*w.Step
		q.Set(w.OffsetParam, strconv.Itoa(page))
		u.RawQuery = q.Encode()
	case w.PageParam != "":
		page = w.First + i
		q.Set(w.PageParam, strconv.Itoa(page))
		u.RawQuery = q.Encode()
	}
	t := fetch.Target{URL: u.String(), Headers: w.Headers, Page: page}
	if w.SendPath {
		t.Path = u.RequestURI()
	}
	return t, nil
}

// Targets returns the first n page targets, for walks where the end is
// signalled by the server rather than a predicate.
func (w Walker) Targets(n int) ([]fetch.Target, error) {
	if n <= 0 {
		n = w.maxPages()
	}
	out := make([]fetch.Target, 0, n)
	for i := 0; i < n; i++ {
		t, err := w.Target(i)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// Walk fetches pages until Next says stop, a page fails, a URL repeats or
// MaxPages is reached. A failed page ends the walk; it is not an error.
func (w Walker) Walk(ctx context.Context, f Fetcher) ([]fetch.Document, Stats, error) {
	var (
		docs  []fetch.Document
		stats Stats
		seen  = make(map[string]bool)
	)
	linker, follows := w.Next.(ByNextLink)

	target, err := w.Target(0)
	if err != nil {
		return nil, stats, err
	}
	for i := 0; i < w.maxPages(); i++ {
		if ctx.Err() != nil {
			stats.Stopped = "cancelled"
			break
		}
		key := normalizeURL(target.URL)
		if seen[key] {
			stats.Stopped = "repeated page"
			break
		}
		seen[key] = true

		doc, err := f.Fetch(ctx, target)
		if err != nil {
			if errors.Is(err, fetch.ErrStatus) {
				stats.Stopped = "status"
				logger.Debug("end of pagination", "url", target.URL, "reason", err)
			} else {
				stats.Stopped = "fetch failed"
				logger.WarnContext(ctx, "page walk stopped", "url", target.URL, "error", err)
			}
			break
		}
		docs = append(docs, doc)
		stats.Pages++

		if w.Next == nil || !w.Next.Next(doc) {
			stats.Stopped = "last page"
			logger.Debug("end of pagination", "url", target.URL, "pages", stats.Pages)
			break
		}

		if follows {
			next, _ := linker.NextURL(doc)
			target = fetch.Target{URL: next, Headers: w.Headers, Page: i + 2}
			if u, err := url.Parse(next); err == nil && w.SendPath {
				target.Path = u.RequestURI()
			}
			continue
		}
		if target, err = w.Target(i + 1); err != nil {
			return docs, stats, err
		}
	}
	if stats.Stopped == "" {
		stats.Stopped = "max pages"
		logger.Debug("page walk capped", "pages", stats.Pages)
	}
	return docs, stats, nil
}
