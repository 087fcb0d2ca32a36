package fetch

import (
	"context"
	"fmt"
	"time"

	"github.com/jmylchreest/jobsift/internal/logger"
)

// Config holds retry and backoff settings.
type Config struct {
	Timeout          time.Duration // First attempt timeout
	RetryTimeout     time.Duration // Timeout for the single retry pass
	BackoffThreshold int           // Consecutive failures before a pause (0 = never)
	BackoffPause     time.Duration // Length of the coarse pause
}

// DefaultConfig returns conservative settings for rate-sensitive sites.
func DefaultConfig() Config {
	return Config{
		Timeout:          10 * time.Second,
		RetryTimeout:     20 * time.Second,
		BackoffThreshold: 3,
		BackoffPause:     60 * time.Second,
	}
}

// Stats counts the expected failures of a FetchAll call.
type Stats struct {
	Requested int
	Fetched   int
	Retried   int
	Dropped   int
	Backoffs  int
}

// Add accumulates other into s.
func (s *Stats) Add(other Stats) {
	s.Requested += other.Requested
	s.Fetched += other.Fetched
	s.Retried += other.Retried
	s.Dropped += other.Dropped
	s.Backoffs += other.Backoffs
}

// Controller fetches ordered targets sequentially, tolerating per-target
// failure.
type Controller struct {
	transport Transport
	limiter   Limiter
	config    Config
	sleep     func(ctx context.Context, d time.Duration) error
}

// Option configures a Controller.
type Option func(*Controller)

// WithSleep replaces the function used for backoff pauses.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Controller) {
		c.sleep = fn
	}
}

// NewController creates a controller. A nil limiter never blocks.
func NewController(t Transport, l Limiter, cfg Config, opts ...Option) *Controller {
	defaults := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.RetryTimeout <= 0 {
		cfg.RetryTimeout = 2 * cfg.Timeout
	}
	if l == nil {
		l = NoLimit{}
	}
	c := &Controller{
		transport: t,
		limiter:   l,
		config:    cfg,
		sleep:     sleepCtx,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchAll fetches every target in order. Transient failures are retried
// once with the extended timeout after the first pass; targets that still
// fail are dropped, so the result may be shorter than targets. Succeeding
// documents keep their relative order.
func (c *Controller) FetchAll(ctx context.Context, targets []Target) ([]Document, Stats) {
	stats := Stats{Requested: len(targets)}
	slots := make([]*Document, len(targets))
	var retry []int
	failures := 0

	for i, target := range targets {
		if ctx.Err() != nil {
			stats.Dropped += len(targets) - i
			break
		}
		doc, err := c.attempt(ctx, target, c.config.Timeout)
		if err == nil {
			slots[i] = &doc
			failures = 0
			continue
		}
		if !IsTransient(err) {
			stats.Dropped++
			logger.WarnContext(ctx, "fetch failed", "url", target.URL, "error", err)
			continue
		}

		logger.Debug("fetch retry queued", "url", target.URL, "error", err)
		retry = append(retry, i)
		failures++
		if c.maybeBackoff(ctx, &failures) {
			stats.Backoffs++
		}
	}

	for _, i := range retry {
		if ctx.Err() != nil {
			stats.Dropped++
			continue
		}
		target := targets[i]
		stats.Retried++
		doc, err := c.attempt(ctx, target, c.config.RetryTimeout)
		if err != nil {
			stats.Dropped++
			logger.WarnContext(ctx, "fetch dropped after retry", "url", target.URL, "error", err)
			failures++
			if c.maybeBackoff(ctx, &failures) {
				stats.Backoffs++
			}
			continue
		}
		slots[i] = &doc
		failures = 0
	}

	docs := make([]Document, 0, len(targets))
	for _, doc := range slots {
		if doc != nil {
			docs = append(docs, *doc)
		}
	}
	stats.Fetched = len(docs)

	logger.Debug("fetch batch complete",
		"requested", stats.Requested,
		"fetched", stats.Fetched,
		"retried", stats.Retried,
		"dropped", stats.Dropped,
		"backoffs", stats.Backoffs)
	return docs, stats
}

// Fetch fetches a single target with the same retry policy as FetchAll.
func (c *Controller) Fetch(ctx context.Context, target Target) (Document, error) {
	doc, err := c.attempt(ctx, target, c.config.Timeout)
	if err == nil || !IsTransient(err) {
		return doc, err
	}
	logger.Debug("fetch retrying", "url", target.URL, "error", err)
	return c.attempt(ctx, target, c.config.RetryTimeout)
}

func (c *Controller) attempt(ctx context.Context, target Target, timeout time.Duration) (Document, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return Document{}, fmt.Errorf("rate limiter: %w", err)
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.transport.Do(reqCtx, target, timeout)
}

// maybeBackoff pauses the whole run once the failure counter reaches the
// threshold, then resets the counter.
func (c *Controller) maybeBackoff(ctx context.Context, failures *int) bool {
	if c.config.BackoffThreshold <= 0 || *failures < c.config.BackoffThreshold {
		return false
	}
	logger.WarnContext(ctx, "consecutive fetch failures, backing off",
		"failures", *failures,
		"pause", c.config.BackoffPause)
	*failures = 0
	if err := c.sleep(ctx, c.config.BackoffPause); err != nil {
		logger.Debug("backoff interrupted", "error", err)
	}
	return true
}
