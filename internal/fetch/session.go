package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"time"

	"github.com/gocolly/colly/v2"
	"golang.org/x/net/publicsuffix"

	"github.com/jmylchreest/jobsift/internal/logger"
)

// CookieSession is a Transport that keeps server-set cookies across calls.
type CookieSession struct {
	base    *colly.Collector
	headers map[string]string
	limiter Limiter
	timeout time.Duration
}

// NewCookieSession creates a session with an empty cookie jar.
// A nil limiter never blocks.
func NewCookieSession(cfg TransportConfig, l Limiter, timeout time.Duration) (*CookieSession, error) {
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}
	base := newCollector(cfg)
	base.SetCookieJar(jar)

	if l == nil {
		l = NoLimit{}
	}
	if timeout <= 0 {
		timeout = DefaultConfig().Timeout
	}
	return &CookieSession{
		base:    base,
		headers: cfg.Headers,
		limiter: l,
		timeout: timeout,
	}, nil
}

// Do fetches target on the session. Clones share the cookie jar.
func (s *CookieSession) Do(ctx context.Context, target Target, timeout time.Duration) (Document, error) {
	c := s.base.Clone()
	c.Context = ctx
	c.SetRequestTimeout(timeout)
	return visit(c, target, s.headers)
}

// Cookies returns the cookies the session would send to rawURL.
func (s *CookieSession) Cookies(rawURL string) []*http.Cookie {
	return s.base.Cookies(rawURL)
}

// Walk fetches pages in order until one fails. A non-success status is the
// end of the listing, not an error; a transport failure also ends the walk
// and is counted as dropped.
func (s *CookieSession) Walk(ctx context.Context, pages []Target) ([]Document, Stats) {
	stats := Stats{Requested: len(pages)}
	docs := make([]Document, 0, len(pages))

	for _, page := range pages {
		if err := s.limiter.Wait(ctx); err != nil {
			logger.Debug("session walk interrupted", "error", err)
			break
		}
		reqCtx, cancel := context.WithTimeout(ctx, s.timeout)
		doc, err := s.Do(reqCtx, page, s.timeout)
		cancel()
		if errors.Is(err, ErrStatus) {
			logger.Debug("session walk reached end", "url", page.URL, "status", doc.StatusCode)
			break
		}
		if err != nil {
			stats.Dropped++
			logger.WarnContext(ctx, "session walk failed", "url", page.URL, "error", err)
			break
		}
		docs = append(docs, doc)
	}

	stats.Fetched = len(docs)
	return docs, stats
}
