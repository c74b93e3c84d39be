package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"

	"mapsharvest-engine/internal/config"
	"mapsharvest-engine/internal/logging"
)

type Options struct {
	Headless      bool
	UserAgent     string
	Width         int
	Height        int
	DisableImages bool
	ExecPath      string
	StartTimeout  time.Duration
	NavTimeout    time.Duration
}

func OptionsFrom(b config.Browser, headless bool) Options {
	return Options{
		Headless:      headless,
		UserAgent:     b.UserAgent,
		Width:         b.WindowWidth,
		Height:        b.WindowHeight,
		DisableImages: b.DisableImages,
		ExecPath:      b.ExecPath,
		StartTimeout:  b.StartTimeout,
		NavTimeout:    b.NavTimeout,
	}
}

// ChromeFactory starts chromedp sessions configured from b.
func ChromeFactory(b config.Browser) Factory {
	return func(ctx context.Context, headless bool) (Session, error) {
		return NewChrome(ctx, OptionsFrom(b, headless))
	}
}

// Chrome drives one Chrome instance through chromedp.
type Chrome struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	opts        Options
	log         *slog.Logger
	once        sync.Once
}

func NewChrome(parent context.Context, o Options) (*Chrome, error) {
	if o.NavTimeout <= 0 {
		o.NavTimeout = 30 * time.Second
	}
	if o.StartTimeout <= 0 {
		o.StartTimeout = 30 * time.Second
	}

	flags := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", o.Headless),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)
	if o.DisableImages {
		flags = append(flags, chromedp.Flag("blink-settings", "imagesEnabled=false"))
	}
	if o.UserAgent != "" {
		flags = append(flags, chromedp.UserAgent(o.UserAgent))
	}
	if o.Width > 0 && o.Height > 0 {
		flags = append(flags, chromedp.WindowSize(o.Width, o.Height))
	}
	if o.ExecPath != "" {
		flags = append(flags, chromedp.ExecPath(o.ExecPath))
	}

	log := logging.New("browser")
	// The browser outlives cancellation of parent and is released by
	// Teardown, so a cancelled run can still extract what it has loaded.
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.WithoutCancel(parent), flags...)
	ctx, cancel := chromedp.NewContext(allocCtx, chromedp.WithErrorf(func(format string, args ...any) {
		log.Debug("cdp", "err", fmt.Sprintf(format, args...))
	}))

	c := &Chrome{ctx: ctx, cancel: cancel, allocCancel: allocCancel, opts: o, log: log}

	// The first Run launches the browser and binds it to ctx, so it cannot
	// use a derived timeout context.
	started := make(chan error, 1)
	go func() { started <- chromedp.Run(ctx) }()

	select {
	case err := <-started:
		if err != nil {
			c.Teardown()
			return nil, fmt.Errorf("%w: %v", ErrSessionInit, err)
		}
	case <-time.After(o.StartTimeout):
		c.Teardown()
		return nil, fmt.Errorf("%w: start timed out after %s", ErrSessionInit, o.StartTimeout)
	}

	log.Info("session started", "headless", o.Headless)
	return c, nil
}

func (c *Chrome) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	tctx, cancel := context.WithTimeout(c.ctx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(tctx, actions...)
	if err != nil && c.ctx.Err() != nil {
		return fmt.Errorf("%w: %v", ErrSessionLost, err)
	}
	return err
}

func (c *Chrome) Open(ctx context.Context, address string) error {
	if err := c.run(ctx, c.opts.NavTimeout, chromedp.Navigate(address)); err != nil {
		return fmt.Errorf("open %s: %w", address, err)
	}
	return nil
}

func (c *Chrome) Location(ctx context.Context) (string, error) {
	var loc string
	err := c.run(ctx, 10*time.Second, chromedp.Location(&loc))
	return loc, err
}

func (c *Chrome) Title(ctx context.Context) (string, error) {
	var title string
	err := c.run(ctx, 10*time.Second, chromedp.Title(&title))
	return title, err
}

func (c *Chrome) HTML(ctx context.Context) (string, error) {
	var html string
	err := c.run(ctx, 20*time.Second, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	return html, err
}

func (c *Chrome) Scroll(ctx context.Context, selector string, px int) error {
	var ok bool
	if err := c.run(ctx, 10*time.Second, chromedp.Evaluate(scrollJS(selector, px), &ok)); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("scroll %q: %w", selector, ErrNotFound)
	}
	return nil
}

func (c *Chrome) Visible(ctx context.Context, loc Locator) (bool, error) {
	var visible bool
	err := c.run(ctx, 5*time.Second, chromedp.Evaluate(visibleJS(loc), &visible))
	return visible, err
}

func (c *Chrome) Activate(ctx context.Context, loc Locator, how Activation) error {
	switch how {
	case ActivateDirect:
		by := chromedp.ByQuery
		if loc.By == "xpath" {
			by = chromedp.BySearch
		}
		return c.run(ctx, 5*time.Second, chromedp.Click(loc.Expr, chromedp.NodeVisible, by))

	case ActivateScripted:
		var ok bool
		if err := c.run(ctx, 5*time.Second, chromedp.Evaluate(clickJS(loc), &ok)); err != nil {
			return err
		}
		if !ok {
			return ErrNotFound
		}
		return nil

	case ActivateSynthetic:
		var pt struct {
			Found bool    `json:"found"`
			X     float64 `json:"x"`
			Y     float64 `json:"y"`
		}
		if err := c.run(ctx, 5*time.Second, chromedp.Evaluate(centerJS(loc), &pt)); err != nil {
			return err
		}
		if !pt.Found {
			return ErrNotFound
		}
		return c.run(ctx, 5*time.Second, chromedp.ActionFunc(func(ctx context.Context) error {
			if err := input.DispatchMouseEvent(input.MouseMoved, pt.X, pt.Y).Do(ctx); err != nil {
				return err
			}
			if err := input.DispatchMouseEvent(input.MousePressed, pt.X, pt.Y).
				WithButton(input.Left).WithClickCount(1).Do(ctx); err != nil {
				return err
			}
			return input.DispatchMouseEvent(input.MouseReleased, pt.X, pt.Y).
				WithButton(input.Left).WithClickCount(1).Do(ctx)
		}))
	}
	return errors.New("unknown activation method")
}

func (c *Chrome) Teardown() {
	c.once.Do(func() {
		defer func() {
			if r := recover(); r != nil {
				c.log.Warn("teardown panic", "err", r)
			}
		}()
		c.cancel()
		c.allocCancel()
		c.log.Info("session closed")
	})
}
