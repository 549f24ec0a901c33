package extract

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"transcriptd/internal/transcript"
)

// PageDriver runs one extraction attempt inside a live browser context and
// returns the ordered segments.
type PageDriver interface {
	Run(browserCtx context.Context, target transcript.Target) ([]transcript.Segment, error)
}

// PageConfig controls navigation and panel discovery.
type PageConfig struct {
	// PanelSelectors are tried in order when waiting for transcript
	// segments to render; the first is the primary strategy.
	PanelSelectors []string
	// OpenScripts are JS snippets tried in order to open the transcript
	// panel; each must evaluate to true once it clicked something.
	OpenScripts []string
	// SettleDelay is how long to wait between lazy-load scroll rounds.
	SettleDelay time.Duration
	// MaxScrollRounds bounds the lazy-load loop.
	MaxScrollRounds int
	// BlockedURLPatterns are handed to the network domain before
	// navigation; heavy assets are useless to text extraction.
	BlockedURLPatterns []string
}

func defaultPageConfig() PageConfig {
	return PageConfig{
		PanelSelectors: []string{
			"ytd-transcript-segment-renderer",
			"ytd-transcript-segment-list-renderer .segment",
			"#segments-container .segment",
		},
		OpenScripts: []string{
			// Primary: the dedicated transcript button in the description.
			`(() => {
				const btn = document.querySelector('ytd-video-description-transcript-section-renderer button');
				if (!btn) return false;
				btn.click();
				return true;
			})()`,
			// Fallback: expand the description first, then retry the button.
			`(() => {
				const expand = document.querySelector('tp-yt-paper-button#expand, #expand');
				if (expand) expand.click();
				const btn = document.querySelector('ytd-video-description-transcript-section-renderer button');
				if (!btn) return false;
				btn.click();
				return true;
			})()`,
			// Last resort: the overflow menu item labeled as a transcript.
			`(() => {
				const items = document.querySelectorAll('tp-yt-paper-item, ytd-menu-service-item-renderer');
				for (const it of items) {
					if (/transcript/i.test(it.textContent || '')) { it.click(); return true; }
				}
				return false;
			})()`,
		},
		SettleDelay:     400 * time.Millisecond,
		MaxScrollRounds: 20,
		BlockedURLPatterns: []string{
			"*.jpg", "*.jpeg", "*.png", "*.webp", "*.gif", "*.svg",
			"*.woff", "*.woff2", "*.ttf", "*.mp4", "*.webm", "*.m4a",
			"*googlevideo.com/videoplayback*",
			"*doubleclick.net*",
		},
	}
}

// ChromedpDriver implements PageDriver with chromedp actions.
type ChromedpDriver struct {
	cfg PageConfig
}

// NewChromedpDriver builds a driver; zero-value fields take defaults.
func NewChromedpDriver(cfg PageConfig) *ChromedpDriver {
	def := defaultPageConfig()
	if len(cfg.PanelSelectors) == 0 {
		cfg.PanelSelectors = def.PanelSelectors
	}
	if len(cfg.OpenScripts) == 0 {
		cfg.OpenScripts = def.OpenScripts
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = def.SettleDelay
	}
	if cfg.MaxScrollRounds <= 0 {
		cfg.MaxScrollRounds = def.MaxScrollRounds
	}
	if cfg.BlockedURLPatterns == nil {
		cfg.BlockedURLPatterns = def.BlockedURLPatterns
	}
	return &ChromedpDriver{cfg: cfg}
}

type rawSegment struct {
	Start string `json:"start"`
	Text  string `json:"text"`
}

// Run navigates to the target, materializes the transcript panel, and parses
// it into ordered segments. Classification: panel confirmed absent after a
// full render is permanent; everything else that goes wrong is transient.
func (d *ChromedpDriver) Run(browserCtx context.Context, target transcript.Target) ([]transcript.Segment, error) {
	if err := chromedp.Run(browserCtx,
		d.networkSetup(),
		chromedp.Navigate(target.WatchURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(d.cfg.SettleDelay),
	); err != nil {
		return nil, &transcript.TransientError{Reason: "navigate", Err: err}
	}

	opened, err := d.openPanel(browserCtx)
	if err != nil {
		return nil, err
	}
	if !opened {
		// The page finished rendering and no transcript affordance exists
		// anywhere; this target has no transcript.
		return nil, &transcript.PermanentError{Reason: "transcript unavailable for " + target.VideoID}
	}

	if err := d.waitForSegments(browserCtx); err != nil {
		return nil, err
	}
	if err := d.scrollOut(browserCtx); err != nil {
		return nil, err
	}

	raw, err := d.collect(browserCtx)
	if err != nil {
		return nil, err
	}
	segments, err := parseSegments(raw)
	if err != nil {
		return nil, err
	}
	if len(segments) == 0 {
		return nil, &transcript.TransientError{Reason: "transcript panel rendered empty"}
	}
	return segments, nil
}

func (d *ChromedpDriver) networkSetup() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if len(d.cfg.BlockedURLPatterns) > 0 {
			if err := network.SetBlockedURLs(d.cfg.BlockedURLPatterns).Do(ctx); err != nil {
				return fmt.Errorf("set blocked urls: %w", err)
			}
		}
		return nil
	})
}

// openPanel tries each open strategy in order, giving the page a moment to
// react between tries. It reports false only when every strategy confirmed
// there is nothing to click.
func (d *ChromedpDriver) openPanel(ctx context.Context) (bool, error) {
	for _, script := range d.cfg.OpenScripts {
		var clicked bool
		if err := chromedp.Run(ctx,
			chromedp.Evaluate(script, &clicked),
		); err != nil {
			return false, &transcript.TransientError{Reason: "open transcript panel", Err: err}
		}
		if clicked {
			return true, nil
		}
		if err := chromedp.Run(ctx, chromedp.Sleep(d.cfg.SettleDelay)); err != nil {
			return false, &transcript.TransientError{Reason: "settle after open try", Err: err}
		}
	}
	return false, nil
}

func (d *ChromedpDriver) waitForSegments(ctx context.Context) error {
	var lastErr error
	for _, sel := range d.cfg.PanelSelectors {
		waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := chromedp.Run(waitCtx, chromedp.WaitVisible(sel, chromedp.ByQuery))
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return &transcript.TransientError{Reason: "transcript panel not rendered", Err: lastErr}
}

// scrollOut keeps scrolling the segment container until the segment count
// stops growing, forcing lazily loaded entries to materialize.
func (d *ChromedpDriver) scrollOut(ctx context.Context) error {
	const countScript = `document.querySelectorAll('ytd-transcript-segment-renderer, ytd-transcript-segment-list-renderer .segment').length`
	const scrollScript = `(() => {
		const el = document.querySelector('ytd-transcript-segment-list-renderer, #segments-container');
		if (!el) return false;
		el.scrollTop = el.scrollHeight;
		return true;
	})()`

	previous := -1
	for round := 0; round < d.cfg.MaxScrollRounds; round++ {
		var count int
		if err := chromedp.Run(ctx, chromedp.Evaluate(countScript, &count)); err != nil {
			return &transcript.TransientError{Reason: "count segments", Err: err}
		}
		if count == previous {
			return nil
		}
		previous = count
		var scrolled bool
		if err := chromedp.Run(ctx,
			chromedp.Evaluate(scrollScript, &scrolled),
			chromedp.Sleep(d.cfg.SettleDelay),
		); err != nil {
			return &transcript.TransientError{Reason: "scroll segments", Err: err}
		}
		if !scrolled {
			return nil
		}
	}
	return nil
}

func (d *ChromedpDriver) collect(ctx context.Context) ([]rawSegment, error) {
	const collectScript = `(() => {
		const out = [];
		for (const seg of document.querySelectorAll('ytd-transcript-segment-renderer')) {
			const ts = seg.querySelector('.segment-timestamp');
			const tx = seg.querySelector('.segment-text, yt-formatted-string.segment-text');
			if (!ts || !tx) continue;
			out.push({start: ts.textContent.trim(), text: tx.textContent.trim()});
		}
		return out;
	})()`

	var raw []rawSegment
	if err := chromedp.Run(ctx, chromedp.Evaluate(collectScript, &raw)); err != nil {
		return nil, &transcript.TransientError{Reason: "collect segments", Err: err}
	}
	return raw, nil
}

// parseSegments converts timestamp strings into durations and derives each
// segment's duration from its successor's start.
func parseSegments(raw []rawSegment) ([]transcript.Segment, error) {
	segments := make([]transcript.Segment, 0, len(raw))
	for _, r := range raw {
		if r.Text == "" {
			continue
		}
		start, err := parseTimestamp(r.Start)
		if err != nil {
			return nil, &transcript.TransientError{Reason: "parse timestamp " + r.Start, Err: err}
		}
		segments = append(segments, transcript.Segment{Start: start, Text: r.Text})
	}
	for i := range segments {
		if i+1 < len(segments) && segments[i+1].Start > segments[i].Start {
			segments[i].Duration = segments[i+1].Start - segments[i].Start
		}
	}
	return segments, nil
}

// parseTimestamp accepts "SS", "M:SS", "MM:SS", and "H:MM:SS" forms.
func parseTimestamp(ts string) (time.Duration, error) {
	parts := strings.Split(strings.TrimSpace(ts), ":")
	if len(parts) == 0 || len(parts) > 3 {
		return 0, fmt.Errorf("malformed timestamp %q", ts)
	}
	total := 0
	for _, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n < 0 {
			return 0, fmt.Errorf("malformed timestamp %q", ts)
		}
		total = total*60 + n
	}
	return time.Duration(total) * time.Second, nil
}
