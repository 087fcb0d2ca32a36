package fetch

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
)

// Browser-like user agent; several listing sites reject library defaults.
const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// TransportConfig holds HTTP transport settings.
type TransportConfig struct {
	UserAgent     string
	Headers       map[string]string // Sent with every request
	MaxBodySize   int               // Bytes, 0 = colly default
	RespectRobots bool              // Honour robots.txt
}

// DefaultTransportConfig returns sensible defaults.
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		UserAgent: defaultUserAgent,
		Headers: map[string]string{
			"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,application/json;q=0.9,*/*;q=0.8",
			"Accept-Language": "en-US,en;q=0.5",
		},
	}
}

// CollyTransport fetches each target with a fresh Colly collector.
type CollyTransport struct {
	config TransportConfig
}

// NewCollyTransport creates a static transport.
func NewCollyTransport(cfg TransportConfig) *CollyTransport {
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	return &CollyTransport{config: cfg}
}

// Do fetches target once.
func (t *CollyTransport) Do(ctx context.Context, target Target, timeout time.Duration) (Document, error) {
	c := newCollector(t.config)
	c.Context = ctx
	c.SetRequestTimeout(timeout)
	return visit(c, target, t.config.Headers)
}

func newCollector(cfg TransportConfig) *colly.Collector {
	opts := []colly.CollectorOption{
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
	}
	if cfg.MaxBodySize > 0 {
		opts = append(opts, colly.MaxBodySize(cfg.MaxBodySize))
	}
	c := colly.NewCollector(opts...)
	// Non-2xx responses are classified by visit, not by colly.
	c.ParseHTTPErrorResponse = true
	c.IgnoreRobotsTxt = !cfg.RespectRobots
	return c
}

// visit performs one GET with c and maps the outcome to a Document.
func visit(c *colly.Collector, target Target, headers map[string]string) (Document, error) {
	doc := Document{
		Target:    target,
		URL:       target.URL,
		FetchedAt: time.Now(),
	}

	c.OnResponse(func(r *colly.Response) {
		doc.StatusCode = r.StatusCode
		doc.Body = r.Body
		if r.Headers != nil {
			doc.ContentType = r.Headers.Get("Content-Type")
		}
	})

	hdr := http.Header{}
	for k, v := range headers {
		hdr.Set(k, v)
	}
	for k, v := range target.Headers {
		hdr.Set(k, v)
	}
	if target.Path != "" {
		hdr.Set("Path", target.Path)
	}

	if err := c.Request(http.MethodGet, target.URL, nil, nil, hdr); err != nil {
		return doc, fmt.Errorf("request %s: %w", target.URL, err)
	}
	if doc.StatusCode < 200 || doc.StatusCode >= 300 {
		return doc, fmt.Errorf("%w: %d for %s", ErrStatus, doc.StatusCode, target.URL)
	}
	return doc, nil
}
