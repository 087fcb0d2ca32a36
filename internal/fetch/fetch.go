// Package fetch retrieves listing pages and payloads with retry, backoff and
// rate limiting tuned for rate-sensitive job sites.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"
	"time"
)

// Mode selects how a site's documents are acquired.
type Mode string

const (
	// ModeStatic fetches every target independently over plain HTTP.
	ModeStatic Mode = "static"
	// ModeSession walks pages on one cookie-carrying session.
	ModeSession Mode = "session"
	// ModeBrowser renders pages in a headless browser.
	ModeBrowser Mode = "browser"
)

// Error types for distinguishing failure reasons.
var (
	// ErrUnsupportedMode is a configuration error for an unknown fetch mode.
	ErrUnsupportedMode = errors.New("unsupported fetch mode")
	// ErrStatus indicates a non-success HTTP status.
	ErrStatus = errors.New("unexpected status")
	// ErrTransient marks a failure worth one retry.
	ErrTransient = errors.New("transient fetch failure")
)

// ParseMode validates a configured fetch mode. Empty means static.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeStatic, "":
		return ModeStatic, nil
	case ModeSession:
		return ModeSession, nil
	case ModeBrowser:
		return ModeBrowser, nil
	default:
		return "", fmt.Errorf("%w: %q (use static, session or browser)", ErrUnsupportedMode, s)
	}
}

// Target is one request to make.
type Target struct {
	URL     string
	Headers map[string]string
	// Path is sent as a "Path" header by session walks when set.
	Path string
	// Page is the caller's page number or offset, kept for logging.
	Page int
}

// Document is a fetched response body.
type Document struct {
	Target      Target
	URL         string
	Body        []byte
	StatusCode  int
	ContentType string
	FetchedAt   time.Time
}

// Text returns the body as a string.
func (d Document) Text() string {
	return string(d.Body)
}

// Transport performs a single request.
type Transport interface {
	// Do fetches target, giving up after timeout.
	Do(ctx context.Context, target Target, timeout time.Duration) (Document, error)
}

// IsTransient reports whether err is a timeout or network failure.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTransient) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
