package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os/exec"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/jmylchreest/jobsift/internal/logger"
)

// ChromeConfig configures the headless browser.
type ChromeConfig struct {
	UserAgent string
	Headless  bool
	ExecPath  string        // Chrome binary, discovered when empty
	Timeout   time.Duration // Upper bound for a single page operation
	Cookies   []Cookie      // Set before the first navigation
}

// Cookie is a cookie preset in the browser, e.g. a consent flag.
type Cookie struct {
	Name   string
	Value  string
	Domain string
}

// DefaultChromeConfig returns sensible defaults.
func DefaultChromeConfig() ChromeConfig {
	return ChromeConfig{
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
		Headless:  true,
		Timeout:   60 * time.Second,
	}
}

// ChromeBrowser is a Browser backed by one chromedp tab.
type ChromeBrowser struct {
	config      ChromeConfig
	tabCtx      context.Context
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc
	cookiesSet  bool
}

// OpenChrome starts a browser process and one tab.
func OpenChrome(ctx context.Context, cfg ChromeConfig) (*ChromeBrowser, error) {
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultChromeConfig().UserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultChromeConfig().Timeout
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.WindowSize(1920, 1080),
		chromedp.UserAgent(cfg.UserAgent),
	)
	execPath := cfg.ExecPath
	if execPath == "" {
		execPath = FindChromePath()
	}
	if execPath != "" {
		opts = append(opts, chromedp.ExecPath(execPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(format string, args ...any) {
			logger.Debug("chromedp", "msg", fmt.Sprintf(format, args...))
		}),
	)

	// An empty Run starts the process so startup errors surface here.
	if err := chromedp.Run(tabCtx); err != nil {
		cancelTab()
		cancelAlloc()
		return nil, fmt.Errorf("start chrome: %w", err)
	}
	logger.Debug("chrome started", "headless", cfg.Headless, "exec_path", execPath)

	return &ChromeBrowser{
		config:      cfg,
		tabCtx:      tabCtx,
		cancelTab:   cancelTab,
		cancelAlloc: cancelAlloc,
	}, nil
}

// Opener adapts OpenChrome for Run.
func Opener(cfg ChromeConfig) func(context.Context) (Browser, error) {
	return func(ctx context.Context) (Browser, error) {
		return OpenChrome(ctx, cfg)
	}
}

// run executes actions on the tab, bounded by ctx and the configured timeout.
func (b *ChromeBrowser) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(b.tabCtx, b.config.Timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}

// Navigate loads url and waits for the body.
func (b *ChromeBrowser) Navigate(ctx context.Context, target string) error {
	var actions []chromedp.Action
	if !b.cookiesSet && len(b.config.Cookies) > 0 {
		actions = append(actions, setCookies(target, b.config.Cookies))
		b.cookiesSet = true
	}
	actions = append(actions,
		chromedp.Navigate(target),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	return b.run(ctx, actions...)
}

// probeScript inspects the first element matching a selector. It reports
// "missing", "hidden", "obscured" or "ready"; with click set, a ready element
// is clicked and "clicked" is returned.
const probeScript = `(function(sel, click) {
	const el = document.querySelector(sel);
	if (!el) return "missing";
	const rect = el.getBoundingClientRect();
	if (rect.width === 0 || rect.height === 0 || el.disabled) return "hidden";
	el.scrollIntoView({block: "center"});
	const r = el.getBoundingClientRect();
	const top = document.elementFromPoint(r.left + r.width / 2, r.top + r.height / 2);
	if (top && top !== el && !el.contains(top)) return "obscured";
	if (!click) return "ready";
	el.click();
	return "clicked";
})(%s, %t)`

func (b *ChromeBrowser) probe(ctx context.Context, selector string, click bool) (string, error) {
	quoted, err := json.Marshal(selector)
	if err != nil {
		return "", err
	}
	var state string
	script := fmt.Sprintf(probeScript, quoted, click)
	if err := b.run(ctx, chromedp.Evaluate(script, &state)); err != nil {
		return "", err
	}
	return state, nil
}

// Click clicks selector, returning ErrElementGone when it is missing,
// hidden or covered by another element.
func (b *ChromeBrowser) Click(ctx context.Context, selector string) error {
	state, err := b.probe(ctx, selector, true)
	if err != nil {
		return err
	}
	if state != "clicked" {
		return fmt.Errorf("%w: %s is %s", ErrElementGone, selector, state)
	}
	return nil
}

// WaitClickable polls until selector is clickable or timeout passes.
func (b *ChromeBrowser) WaitClickable(ctx context.Context, selector string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		state, err := b.probe(ctx, selector, false)
		if err != nil {
			return err
		}
		if state == "ready" {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: %s is %s after %s", ErrElementGone, selector, state, timeout)
		}
		if err := sleepCtx(ctx, 250*time.Millisecond); err != nil {
			return err
		}
	}
}

// ScrollTo scrolls the window to vertical offset y.
func (b *ChromeBrowser) ScrollTo(ctx context.Context, y int) error {
	var pos float64
	return b.run(ctx, chromedp.Evaluate(fmt.Sprintf("window.scrollTo(0, %d); window.scrollY", y), &pos))
}

// ScrollToBottom scrolls to the current end of the document.
func (b *ChromeBrowser) ScrollToBottom(ctx context.Context) error {
	var height int64
	return b.run(ctx, chromedp.Evaluate("window.scrollTo(0, document.body.scrollHeight); document.body.scrollHeight", &height))
}

// Height returns the document's scroll height.
func (b *ChromeBrowser) Height(ctx context.Context) (int64, error) {
	var height int64
	if err := b.run(ctx, chromedp.Evaluate("document.body.scrollHeight", &height)); err != nil {
		return 0, err
	}
	return height, nil
}

// HTML returns the outer HTML of the document.
func (b *ChromeBrowser) HTML(ctx context.Context) (string, error) {
	var html string
	if err := b.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return html, nil
}

// Close stops the tab and the browser process.
func (b *ChromeBrowser) Close() error {
	if b.cancelTab != nil {
		b.cancelTab()
	}
	if b.cancelAlloc != nil {
		b.cancelAlloc()
	}
	logger.Debug("chrome closed")
	return nil
}

// setCookies returns an action that presets cookies before navigation.
func setCookies(targetURL string, cookies []Cookie) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		u, err := url.Parse(targetURL)
		if err != nil {
			return fmt.Errorf("parse URL for cookies: %w", err)
		}
		params := make([]*network.CookieParam, 0, len(cookies))
		for _, c := range cookies {
			domain := c.Domain
			if domain == "" {
				domain = u.Hostname()
			}
			params = append(params, &network.CookieParam{
				Name:   c.Name,
				Value:  c.Value,
				Domain: domain,
				Path:   "/",
				Secure: u.Scheme == "https",
			})
		}
		return network.SetCookies(params).Do(ctx)
	})
}

// Chrome/Chromium binaries in lookup order.
var chromeBinaryNames = []string{
	"google-chrome-stable",
	"google-chrome",
	"chromium",
	"chromium-browser",
	"chrome",
	"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
	"/Applications/Chromium.app/Contents/MacOS/Chromium",
	"/snap/bin/chromium",
}

// FindChromePath returns the first Chrome binary found, or "" to let
// chromedp use its own lookup.
func FindChromePath() string {
	for _, name := range chromeBinaryNames {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}
	logger.Warn("no Chrome binary found, browser mode may not work")
	return ""
}
