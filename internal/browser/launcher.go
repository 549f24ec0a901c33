// Package browser manages isolated headless-Chrome instances. Every
// operation gets a freshly launched process and a guaranteed teardown, so no
// page state ever leaks between unrelated extractions.
package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
)

// Instance is one live automation-engine process. It is owned exclusively by
// the operation that launched it and must be closed exactly once.
type Instance struct {
	// Ctx is a chromedp browser context rooted at a dedicated process.
	Ctx context.Context

	closeOnce sync.Once
	closeFn   func() error
}

// Close tears the instance down. Subsequent calls are no-ops returning nil.
func (i *Instance) Close() error {
	var err error
	i.closeOnce.Do(func() {
		if i.closeFn != nil {
			err = i.closeFn()
		}
	})
	return err
}

// Launcher starts one isolated automation-engine instance.
type Launcher interface {
	Launch(ctx context.Context) (*Instance, error)
}

// LaunchOptions configures the Chrome process.
type LaunchOptions struct {
	UserAgent     string
	Headless      bool
	NoSandbox     bool
	WarmupTimeout time.Duration
}

// ChromedpLauncher launches Chrome via a fresh exec allocator per call, which
// maps each Instance onto its own OS process.
type ChromedpLauncher struct {
	opts LaunchOptions
}

// NewChromedpLauncher creates a launcher with the given options.
func NewChromedpLauncher(opts LaunchOptions) *ChromedpLauncher {
	if opts.WarmupTimeout <= 0 {
		opts.WarmupTimeout = 20 * time.Second
	}
	return &ChromedpLauncher{opts: opts}
}

// Launch starts a Chrome process and returns once it answers over DevTools.
func (l *ChromedpLauncher) Launch(ctx context.Context) (*Instance, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", l.opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)
	if l.opts.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	if l.opts.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(l.opts.UserAgent))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// The process does not exist until the first Run.
	warmupCtx, warmupCancel := context.WithTimeout(browserCtx, l.opts.WarmupTimeout)
	defer warmupCancel()
	if err := chromedp.Run(warmupCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("chromedp warmup: %w", err)
	}

	return &Instance{
		Ctx: browserCtx,
		closeFn: func() error {
			err := chromedp.Cancel(browserCtx)
			allocCancel()
			if err != nil {
				return fmt.Errorf("cancel browser: %w", err)
			}
			return nil
		},
	}, nil
}

// NewInstance wraps an existing context and close function; used by tests and
// fakes that stand in for a real browser.
func NewInstance(ctx context.Context, closeFn func() error) *Instance {
	return &Instance{Ctx: ctx, closeFn: closeFn}
}
