package collector

import (
	"context"
	"fmt"

	"github.com/jmylchreest/jobsift/internal/browser"
	"github.com/jmylchreest/jobsift/internal/config"
	"github.com/jmylchreest/jobsift/internal/fetch"
	"github.com/jmylchreest/jobsift/internal/logger"
	"github.com/jmylchreest/jobsift/internal/pagination"
)

// Source produces the listing documents of one site.
type Source interface {
	Documents(ctx context.Context) ([]fetch.Document, error)
}

// walkSource pages through a listing with a stop predicate.
type walkSource struct {
	site    string
	walker  pagination.Walker
	fetcher pagination.Fetcher
}

func (s walkSource) Documents(ctx context.Context) ([]fetch.Document, error) {
	docs, stats, err := s.walker.Walk(ctx, s.fetcher)
	logger.Info("listing walked", "site", s.site, "pages", stats.Pages, "stopped", stats.Stopped)
	return docs, err
}

// sessionSource walks precomputed pages on one cookie session until the
// site answers with a non-success status.
type sessionSource struct {
	site    string
	walker  pagination.Walker
	session *fetch.CookieSession
}

func (s sessionSource) Documents(ctx context.Context) ([]fetch.Document, error) {
	n := s.walker.MaxPages
	if n <= 0 {
		n = pagination.DefaultMaxPages
	}
	targets, err := s.walker.Targets(n)
	if err != nil {
		return nil, err
	}
	docs, stats := s.session.Walk(ctx, targets)
	logger.Info("session walked", "site", s.site, "pages", stats.Fetched, "dropped", stats.Dropped)
	return docs, nil
}

// browserSource renders pages in a headless browser.
type browserSource struct {
	site string
	open func(context.Context) (browser.Browser, error)
	urls []string
	plan browser.Plan
}

func (s browserSource) Documents(ctx context.Context) ([]fetch.Document, error) {
	var docs []fetch.Document
	err := browser.Run(ctx, s.open, func(c *browser.Controller) error {
		for _, res := range c.LoadAll(ctx, s.urls, s.plan) {
			docs = append(docs, fetch.Document{
				Target:      fetch.Target{URL: res.URL},
				URL:         res.URL,
				Body:        []byte(res.HTML),
				StatusCode:  200,
				ContentType: "text/html",
				FetchedAt:   res.FetchedAt,
			})
		}
		return nil
	})
	logger.Info("pages rendered", "site", s.site, "pages", len(docs))
	return docs, err
}

// siteFetchers are the fetch components built for one site.
type siteFetchers struct {
	source Source
	detail *fetch.Controller
}

// buildSite wires the fetch layer of a site according to its mode.
func buildSite(cfg *config.Config, name string) (siteFetchers, error) {
	site := cfg.Sites[name]
	mode, err := fetch.ParseMode(site.Mode)
	if err != nil {
		return siteFetchers{}, fmt.Errorf("site %s: %w", name, err)
	}
	tc, err := cfg.Transport(name)
	if err != nil {
		return siteFetchers{}, err
	}
	limiter := fetch.NewRateLimiter(cfg.Fetch.Delay)
	static := fetch.NewController(fetch.NewCollyTransport(tc), limiter, cfg.FetchSettings())
	walker := cfg.Walker(name)

	switch mode {
	case fetch.ModeSession:
		session, err := fetch.NewCookieSession(tc, limiter, cfg.Fetch.Timeout)
		if err != nil {
			return siteFetchers{}, fmt.Errorf("site %s: %w", name, err)
		}
		detail := fetch.NewController(session, limiter, cfg.FetchSettings())
		if walker.Next == nil {
			return siteFetchers{source: sessionSource{site: name, walker: walker, session: session}, detail: detail}, nil
		}
		return siteFetchers{source: walkSource{site: name, walker: walker, fetcher: detail}, detail: detail}, nil
	case fetch.ModeBrowser:
		urls := site.Page.URLs
		if len(urls) == 0 {
			urls = []string{site.URL}
		}
		plan := cfg.Plan(name)
		plan.FirstPage = true
		src := browserSource{site: name, open: browser.Opener(cfg.Chrome()), urls: urls, plan: plan}
		return siteFetchers{source: src, detail: static}, nil
	default:
		return siteFetchers{source: walkSource{site: name, walker: walker, fetcher: static}, detail: static}, nil
	}
}
