// Package headless renders JavaScript-driven listing pages with headless Chrome.
package headless

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/menu-crawler/internal/metrics"
)

// Config controls the behavior of the headless renderer.
type Config struct {
	MaxParallel       int
	UserAgent         string
	NavigationTimeout time.Duration
	SettleDelay       time.Duration
	ScrollPause       time.Duration
	MaxScrolls        int
}

// Renderer implements menu.Renderer using chromedp. One browser process is
// shared by every Render call; each call gets its own tab.
type Renderer struct {
	cfg           Config
	limiter       chan struct{}
	allocator     context.Context
	allocCancel   context.CancelFunc
	browser       context.Context
	browserCancel context.CancelFunc
	logger        *zap.Logger
}

// NewChromedp launches the browser and returns a ready Renderer.
func NewChromedp(ctx context.Context, cfg Config, logger *zap.Logger) (*Renderer, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	cfg = withDefaults(cfg)
	if logger == nil {
		logger = zap.NewNop()
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// An empty Run starts the browser so launch errors surface here.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("start browser: %w", err)
	}

	return &Renderer{
		cfg:           cfg,
		limiter:       limiter,
		allocator:     allocCtx,
		allocCancel:   allocCancel,
		browser:       browserCtx,
		browserCancel: browserCancel,
		logger:        logger,
	}, nil
}

func withDefaults(cfg Config) Config {
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 60 * time.Second
	}
	if cfg.MaxScrolls <= 0 {
		cfg.MaxScrolls = DefaultMaxScrolls
	}
	if cfg.SettleDelay < 0 {
		cfg.SettleDelay = 0
	}
	if cfg.ScrollPause < 0 {
		cfg.ScrollPause = 0
	}
	return cfg
}

// Close shuts down the browser and its allocator.
func (r *Renderer) Close() {
	r.browserCancel()
	r.allocCancel()
}

// Render navigates to url in a fresh tab, scrolls until the page stops growing
// and returns the resulting document HTML.
func (r *Renderer) Render(ctx context.Context, url string) (string, error) {
	if err := r.acquire(ctx); err != nil {
		return "", err
	}
	defer r.release()

	tabCtx, tabCancel := chromedp.NewContext(r.browser)
	defer tabCancel()
	tabCtx, cancel := context.WithTimeout(tabCtx, r.cfg.NavigationTimeout)
	defer cancel()
	// Abort the tab when the caller gives up.
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	start := time.Now()
	if err := chromedp.Run(tabCtx,
		r.networkSetupAction(),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(r.cfg.SettleDelay),
	); err != nil {
		return "", fmt.Errorf("navigate %s: %w", url, err)
	}

	scrolls, err := ScrollUntilStable(tabCtx, chromedpPage{}, r.cfg.MaxScrolls, r.cfg.ScrollPause)
	if err != nil {
		return "", fmt.Errorf("scroll %s: %w", url, err)
	}

	var html string
	if err := chromedp.Run(tabCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("read html %s: %w", url, err)
	}

	elapsed := time.Since(start)
	metrics.ObserveRender(scrolls, elapsed)
	r.logger.Debug("rendered page",
		zap.String("url", url),
		zap.Int("scrolls", scrolls),
		zap.Duration("duration", elapsed),
		zap.Int("bytes", len(html)),
	)
	return html, nil
}

func (r *Renderer) networkSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if r.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(r.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

func (r *Renderer) acquire(ctx context.Context) error {
	if r.limiter == nil {
		return nil
	}
	select {
	case r.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("render slot wait canceled: %w", ctx.Err())
	}
}

func (r *Renderer) release() {
	if r.limiter == nil {
		return
	}
	select {
	case <-r.limiter:
	default:
	}
}

// chromedpPage drives the tab bound to the context it is given.
type chromedpPage struct{}

func (chromedpPage) Height(ctx context.Context) (int64, error) {
	var h int64
	if err := chromedp.Run(ctx, chromedp.Evaluate(`document.body.scrollHeight`, &h)); err != nil {
		return 0, fmt.Errorf("read scroll height: %w", err)
	}
	return h, nil
}

func (chromedpPage) ScrollToBottom(ctx context.Context) error {
	if err := chromedp.Run(ctx, chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil)); err != nil {
		return fmt.Errorf("scroll to bottom: %w", err)
	}
	return nil
}
