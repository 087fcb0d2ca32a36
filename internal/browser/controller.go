package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmylchreest/jobsift/internal/logger"
)

// popupScrollY is where the page is scrolled while waiting for an overlay;
// several sites only render their consent banner after the first scroll.
const popupScrollY = 1000

// Controller runs the interaction state machine on one browser.
type Controller struct {
	browser Browser
	owned   bool
	sleep   func(ctx context.Context, d time.Duration) error
}

// Option configures a Controller.
type Option func(*Controller)

// WithSleep replaces the function used for the configured waits.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Controller) {
		c.sleep = fn
	}
}

// Owned makes Close release the browser.
func Owned() Option {
	return func(c *Controller) {
		c.owned = true
	}
}

// New creates a controller around a pre-opened browser. The caller keeps
// ownership unless Owned is passed.
func New(b Browser, opts ...Option) *Controller {
	c := &Controller{
		browser: b,
		sleep:   sleepCtx,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run opens a browser with open, hands a controller to fn and releases the
// browser on every exit path.
func Run(ctx context.Context, open func(context.Context) (Browser, error), fn func(*Controller) error, opts ...Option) (err error) {
	b, err := open(ctx)
	if err != nil {
		return fmt.Errorf("open browser: %w", err)
	}
	c := New(b, append(opts, Owned())...)
	defer func() {
		if cerr := c.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close browser: %w", cerr)
		}
	}()
	return fn(c)
}

// Close releases the browser if the controller owns it.
func (c *Controller) Close() error {
	if !c.owned || c.browser == nil {
		return nil
	}
	b := c.browser
	c.browser = nil
	return b.Close()
}

// LoadAll loads urls in order. Popup handling is attempted on the first one
// only. A page that fails to load is logged and skipped.
func (c *Controller) LoadAll(ctx context.Context, urls []string, plan Plan) []Result {
	results := make([]Result, 0, len(urls))
	for i, u := range urls {
		if ctx.Err() != nil {
			break
		}
		p := plan
		p.FirstPage = plan.FirstPage && i == 0
		res, err := c.Load(ctx, u, p)
		if err != nil {
			logger.WarnContext(ctx, "browser load failed", "url", u, "error", err)
			continue
		}
		results = append(results, res)
	}
	return results
}

// Load drives one page from Opened to Settled.
func (c *Controller) Load(ctx context.Context, url string, plan Plan) (Result, error) {
	if c.browser == nil {
		return Result{}, errors.New("browser is closed")
	}
	if plan.MaxIterations <= 0 {
		plan.MaxIterations = DefaultMaxIterations
	}

	res := Result{URL: url}
	res.Trace = append(res.Trace, StateOpened)
	logger.Debug("browser opening page", "url", url)
	if err := c.browser.Navigate(ctx, url); err != nil {
		return res, fmt.Errorf("navigate %s: %w", url, err)
	}

	if plan.PopupSelector != "" && plan.FirstPage {
		dismissed, err := c.dismissPopup(ctx, plan, &res)
		if err != nil {
			return res, err
		}
		res.PopupDismissed = dismissed
	}

	res.Trace = append(res.Trace, StateLoadingMore)
	var err error
	switch {
	case plan.LoadMoreSelector != "":
		res.Iterations, err = c.clickUntilGone(ctx, plan)
	case plan.Scroll:
		res.Iterations, err = c.scrollUntilSettled(ctx, plan)
	}
	if err != nil {
		return res, err
	}

	res.Trace = append(res.Trace, StateSettled)
	html, err := c.browser.HTML(ctx)
	if err != nil {
		return res, fmt.Errorf("read document: %w", err)
	}
	res.HTML = html
	res.FetchedAt = time.Now()

	logger.Debug("browser page settled",
		"url", url,
		"iterations", res.Iterations,
		"popup_dismissed", res.PopupDismissed,
		"html_size", len(html))
	return res, nil
}

// dismissPopup waits for the overlay and clicks it away. An overlay that
// never shows up, or that cannot be clicked, is not an error.
func (c *Controller) dismissPopup(ctx context.Context, plan Plan, res *Result) (bool, error) {
	if err := c.browser.ScrollTo(ctx, popupScrollY); err != nil {
		return false, fmt.Errorf("scroll: %w", err)
	}
	err := c.browser.WaitClickable(ctx, plan.PopupSelector, plan.PopupWait)
	if errors.Is(err, ErrElementGone) {
		logger.Debug("no popup", "selector", plan.PopupSelector)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("wait for popup: %w", err)
	}

	res.Trace = append(res.Trace, StatePopupPresent, StateDismissing)
	if plan.PrePopupScroll {
		if err := c.browser.ScrollToBottom(ctx); err != nil {
			return false, fmt.Errorf("scroll: %w", err)
		}
	}

	dismissed := true
	if err := c.browser.Click(ctx, plan.PopupSelector); err != nil {
		if !errors.Is(err, ErrElementGone) {
			return false, fmt.Errorf("dismiss popup: %w", err)
		}
		dismissed = false
	}
	if plan.PostPopupScroll {
		if err := c.browser.ScrollToBottom(ctx); err != nil {
			return dismissed, fmt.Errorf("scroll: %w", err)
		}
	}
	if err := c.sleep(ctx, plan.PostPopupWait); err != nil {
		return dismissed, err
	}
	return dismissed, nil
}

// clickUntilGone presses the load-more button until it disappears.
func (c *Controller) clickUntilGone(ctx context.Context, plan Plan) (int, error) {
	if err := c.sleep(ctx, plan.FirstActionWait); err != nil {
		return 0, err
	}
	clicks := 0
	for clicks < plan.MaxIterations {
		if plan.ScrollBeforeClick {
			if err := c.browser.ScrollToBottom(ctx); err != nil {
				return clicks, fmt.Errorf("scroll: %w", err)
			}
		}
		if err := c.sleep(ctx, plan.PreActionWait); err != nil {
			return clicks, err
		}
		err := c.browser.Click(ctx, plan.LoadMoreSelector)
		if errors.Is(err, ErrElementGone) {
			logger.Debug("load more exhausted", "clicks", clicks)
			return clicks, nil
		}
		if err != nil {
			return clicks, fmt.Errorf("load more: %w", err)
		}
		clicks++
		if err := c.sleep(ctx, plan.PostActionWait); err != nil {
			return clicks, err
		}
	}
	logger.Debug("load more capped", "clicks", clicks)
	return clicks, nil
}

// scrollUntilSettled scrolls until the page height stops growing. The first
// unchanged comparison is retried once since the page may still be loading.
func (c *Controller) scrollUntilSettled(ctx context.Context, plan Plan) (int, error) {
	last, err := c.browser.Height(ctx)
	if err != nil {
		return 0, fmt.Errorf("page height: %w", err)
	}
	if err := c.sleep(ctx, plan.FirstActionWait); err != nil {
		return 0, err
	}

	steps := 0
	for steps < plan.MaxIterations {
		steps++
		if err := c.sleep(ctx, plan.PreActionWait); err != nil {
			return steps, err
		}
		if err := c.browser.ScrollToBottom(ctx); err != nil {
			return steps, fmt.Errorf("scroll: %w", err)
		}
		if err := c.sleep(ctx, plan.PostActionWait); err != nil {
			return steps, err
		}
		height, err := c.browser.Height(ctx)
		if err != nil {
			return steps, fmt.Errorf("page height: %w", err)
		}
		if height == last {
			if steps == 1 {
				continue
			}
			break
		}
		last = height
	}
	return steps, nil
}

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
