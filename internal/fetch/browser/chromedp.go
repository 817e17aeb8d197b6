// Package browser implements the fetch transport with a single long-lived
// Chrome tab driven by chromedp, so login state carries across requests.
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/substack-archiver/internal/fetch"
)

const (
	defaultPageTimeout = 30 * time.Second
	defaultSettle      = 2 * time.Second
	defaultScrollPause = 2 * time.Second
	defaultScrollMax   = 200

	hideWebdriverScript = `Object.defineProperty(navigator, 'webdriver', {get: () => undefined})`
	scrollHeightScript  = `document.body.scrollHeight`
	scrollDownScript    = `window.scrollTo(0, document.body.scrollHeight); document.body.scrollHeight`
)

// Config controls the Chrome instance.
type Config struct {
	Headless    bool
	UserAgent   string
	UserDataDir string
	Profile     string
	PageTimeout time.Duration
	// Settle is how long to wait after the body is ready before reading the DOM.
	Settle          time.Duration
	ScrollPause     time.Duration
	MaxScrollRounds int
}

// Transport implements fetch.Transport and fetch.Scroller.
type Transport struct {
	cfg    Config
	logger *zap.Logger

	mu          sync.Mutex
	allocCancel context.CancelFunc
	tabCtx      context.Context
	tabCancel   context.CancelFunc
}

// New starts Chrome and opens the tab used for every request.
func New(cfg Config, logger *zap.Logger) (*Transport, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = withDefaults(cfg)

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocatorOptions(cfg)...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	err := chromedp.Run(tabCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, err := page.AddScriptToEvaluateOnNewDocument(hideWebdriverScript).Do(ctx)
		return err
	}))
	if err != nil {
		tabCancel()
		allocCancel()
		return nil, fmt.Errorf("start chrome: %w", err)
	}
	logger.Info("Browser initialized", zap.Bool("headless", cfg.Headless))

	return &Transport{
		cfg:         cfg,
		logger:      logger,
		allocCancel: allocCancel,
		tabCtx:      tabCtx,
		tabCancel:   tabCancel,
	}, nil
}

func withDefaults(cfg Config) Config {
	if cfg.PageTimeout <= 0 {
		cfg.PageTimeout = defaultPageTimeout
	}
	if cfg.Settle <= 0 {
		cfg.Settle = defaultSettle
	}
	if cfg.ScrollPause <= 0 {
		cfg.ScrollPause = defaultScrollPause
	}
	if cfg.MaxScrollRounds <= 0 {
		cfg.MaxScrollRounds = defaultScrollMax
	}
	return cfg
}

func allocatorOptions(cfg Config) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.WindowSize(1920, 1080),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("enable-automation", false),
	)
	if cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", "new"))
	} else {
		opts = append(opts, chromedp.Flag("headless", false), chromedp.Flag("hide-scrollbars", false))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	if cfg.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(cfg.UserDataDir))
	}
	if cfg.Profile != "" {
		opts = append(opts, chromedp.Flag("profile-directory", cfg.Profile))
	}
	return opts
}

// Close shuts the tab and the browser.
func (t *Transport) Close() {
	t.tabCancel()
	t.allocCancel()
}

// Get navigates the tab to url and returns the rendered document.
func (t *Transport) Get(ctx context.Context, url string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var html string
	err := t.run(ctx, t.cfg.PageTimeout,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(t.cfg.Settle),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return "", fmt.Errorf("load %s: %w", url, err)
	}
	return html, nil
}

// ScrollToBottom scrolls the current page until its height stops growing and
// returns the resulting document.
func (t *Transport) ScrollToBottom(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var last float64
	if err := t.run(ctx, t.cfg.PageTimeout, chromedp.Evaluate(scrollHeightScript, &last)); err != nil {
		return "", fmt.Errorf("read scroll height: %w", err)
	}
	for round := 0; round < t.cfg.MaxScrollRounds; round++ {
		var height float64
		err := t.run(ctx, t.cfg.PageTimeout,
			chromedp.Evaluate(scrollDownScript, nil),
			chromedp.Sleep(t.cfg.ScrollPause),
			chromedp.Evaluate(scrollHeightScript, &height),
		)
		if err != nil {
			return "", fmt.Errorf("scroll: %w", err)
		}
		if height == last {
			break
		}
		last = height
	}

	var html string
	if err := t.run(ctx, t.cfg.PageTimeout, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("read scrolled page: %w", err)
	}
	return html, nil
}

// run executes actions on the shared tab bounded by timeout and by the
// caller's context. Deadline expiry is reported as fetch.ErrTimeout.
func (t *Transport) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(t.tabCtx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", fetch.ErrTimeout, err)
	}
	return err
}

// pageSource returns the current document without navigating.
func (t *Transport) pageSource(ctx context.Context) (string, string, error) {
	var html, location string
	err := t.run(ctx, t.cfg.PageTimeout,
		chromedp.Location(&location),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	return html, location, err
}

func containsAny(haystack string, needles []string) bool {
	lower := strings.ToLower(haystack)
	for _, n := range needles {
		if strings.Contains(lower, n) {
			return true
		}
	}
	return false
}
