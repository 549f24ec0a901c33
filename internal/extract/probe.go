package extract

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"transcriptd/internal/transcript"
)

// Prober performs a cheap pre-flight check on a target before any browser is
// spent on it. A PermanentError means the target is confirmed gone; any other
// error is advisory and does not block extraction.
type Prober interface {
	Probe(ctx context.Context, target transcript.Target) error
}

// CollyProber issues a plain HTTP GET against the watch page. The watch page
// serves its shell without JavaScript, which is enough to see a 404/410 for a
// deleted or never-existing video.
type CollyProber struct {
	userAgent string
	timeout   time.Duration
	logger    *zap.Logger
}

// ProbeConfig controls the plain-HTTP prober.
type ProbeConfig struct {
	UserAgent string
	Timeout   time.Duration
}

// NewCollyProber builds a prober.
func NewCollyProber(cfg ProbeConfig, logger *zap.Logger) *CollyProber {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CollyProber{
		userAgent: cfg.UserAgent,
		timeout:   cfg.Timeout,
		logger:    logger,
	}
}

// Probe fetches the watch page once. HTTP 404 and 410 classify as permanent;
// network trouble or throttling is reported as a plain error the caller may
// ignore.
func (p *CollyProber) Probe(ctx context.Context, target transcript.Target) error {
	collector := colly.NewCollector(colly.Async(false))
	collector.IgnoreRobotsTxt = true
	collector.SetRequestTimeout(p.timeout)
	if p.userAgent != "" {
		collector.UserAgent = p.userAgent
	}

	var status int
	var probeErr error
	collector.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
		}
		probeErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(target.WatchURL)
	}()
	select {
	case <-ctx.Done():
		return fmt.Errorf("probe canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil && probeErr == nil {
			probeErr = err
		}
	}

	switch status {
	case http.StatusNotFound, http.StatusGone:
		return &transcript.PermanentError{
			Reason: fmt.Sprintf("target returned HTTP %d", status),
		}
	}
	if probeErr != nil {
		p.logger.Debug("probe inconclusive",
			zap.String("video_id", target.VideoID),
			zap.Int("status", status),
			zap.Error(probeErr),
		)
		return fmt.Errorf("probe %s: %w", target.VideoID, probeErr)
	}
	return nil
}
