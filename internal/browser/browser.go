// Package browser drives script-rendered listing pages through a fixed
// interaction sequence: dismiss a consent overlay, load every result by
// clicking or scrolling, then hand back the settled document.
package browser

import (
	"context"
	"errors"
	"time"
)

// ErrElementGone means a click target is missing, obscured or not
// interactable. Inside the load-more loop it is the normal end signal.
var ErrElementGone = errors.New("element not clickable")

// State is a step of the per-page interaction.
type State int

const (
	StateOpened State = iota
	StatePopupPresent
	StateDismissing
	StateLoadingMore
	StateSettled
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateOpened:
		return "opened"
	case StatePopupPresent:
		return "popup_present"
	case StateDismissing:
		return "dismissing"
	case StateLoadingMore:
		return "loading_more"
	case StateSettled:
		return "settled"
	default:
		return "unknown"
	}
}

// DefaultMaxIterations caps the load-more loop.
const DefaultMaxIterations = 100

// Page is the set of page operations the controller needs.
type Page interface {
	Navigate(ctx context.Context, url string) error
	// Click clicks the first element matching selector or returns
	// ErrElementGone.
	Click(ctx context.Context, selector string) error
	// WaitClickable waits up to timeout for selector to become clickable,
	// returning ErrElementGone when it does not.
	WaitClickable(ctx context.Context, selector string, timeout time.Duration) error
	ScrollTo(ctx context.Context, y int) error
	ScrollToBottom(ctx context.Context) error
	Height(ctx context.Context) (int64, error)
	HTML(ctx context.Context) (string, error)
}

// Browser is an exclusive page plus the process behind it.
type Browser interface {
	Page
	Close() error
}

// Plan describes how to load one page.
type Plan struct {
	// Popup handling, only on the first page of a session.
	PopupSelector   string
	PopupWait       time.Duration // How long the popup may take to appear
	PrePopupScroll  bool          // Scroll to the bottom before clicking
	PostPopupScroll bool          // Scroll to the bottom after clicking
	PostPopupWait   time.Duration
	FirstPage       bool

	// Loading more results. LoadMoreSelector wins over Scroll.
	LoadMoreSelector  string
	Scroll            bool
	ScrollBeforeClick bool // Scroll to the bottom before each load-more click

	FirstActionWait time.Duration // Before the first load-more step
	PreActionWait   time.Duration // Before each step
	PostActionWait  time.Duration // After each step
	MaxIterations   int           // 0 = DefaultMaxIterations
}

// DefaultPlan returns the waits that work for most listing sites.
func DefaultPlan() Plan {
	return Plan{
		PopupWait:       12 * time.Second,
		PrePopupScroll:  true,
		PostPopupScroll: true,
		PostPopupWait:   300 * time.Millisecond,
		FirstActionWait: 2 * time.Second,
		PreActionWait:   550 * time.Millisecond,
		PostActionWait:  550 * time.Millisecond,
		MaxIterations:   DefaultMaxIterations,
	}
}

// Result is the settled page.
type Result struct {
	URL            string
	HTML           string
	Iterations     int
	PopupDismissed bool
	Trace          []State
	FetchedAt      time.Time
}
