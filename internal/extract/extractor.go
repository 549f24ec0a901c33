// Package extract implements the retryable extraction operation: one logical
// transcript pull over a target, with classified failure handling, progressive
// backoff, and a fresh isolated browser per attempt.
package extract

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"transcriptd/internal/progress"
	"transcriptd/internal/telemetry"
	"transcriptd/internal/transcript"
)

// IsolatedRunner runs an operation against a freshly launched, exclusively
// owned browser instance. Satisfied by *browser.Manager.
type IsolatedRunner interface {
	RunIsolated(ctx context.Context, op func(ctx context.Context) error) error
}

// HostLimiter paces navigations against one host. Satisfied by
// *ratelimit.Limiter.
type HostLimiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Config controls the retry loop.
type Config struct {
	// MaxAttempts bounds extraction attempts per target. This budget is
	// independent of the browser manager's launch retry budget.
	MaxAttempts int
	// BackoffBase scales the progressive inter-attempt delay: after
	// attempt n the extractor sleeps n*BackoffBase.
	BackoffBase time.Duration
	// AttemptTimeout bounds one whole attempt, launch included.
	AttemptTimeout time.Duration
}

// Extractor performs retryable transcript extraction. Safe for concurrent use.
type Extractor struct {
	cfg     Config
	runner  IsolatedRunner
	driver  PageDriver
	prober  Prober
	limiter HostLimiter
	hub     *progress.Hub
	clock   transcript.Clock
	logger  *zap.Logger
}

// New constructs an Extractor. prober, limiter, and hub may be nil.
func New(
	cfg Config,
	runner IsolatedRunner,
	driver PageDriver,
	prober Prober,
	limiter HostLimiter,
	hub *progress.Hub,
	clock transcript.Clock,
	logger *zap.Logger,
) *Extractor {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 2 * time.Second
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{
		cfg:     cfg,
		runner:  runner,
		driver:  driver,
		prober:  prober,
		limiter: limiter,
		hub:     hub,
		clock:   clock,
		logger:  logger,
	}
}

// Extract performs one logical extraction over rawTarget. Transient failures
// are retried with progressive delay; permanent failures and cancellation
// stop the loop immediately. On success the returned Transcript records the
// number of attempts spent.
func (e *Extractor) Extract(ctx context.Context, rawTarget string) (*transcript.Transcript, error) {
	target, err := transcript.ParseTarget(rawTarget)
	if err != nil {
		return nil, err
	}
	log := e.logger.With(zap.String("video_id", target.VideoID))

	if e.prober != nil {
		if err := e.prober.Probe(ctx, target); err != nil {
			if transcript.Classify(err) == transcript.KindPermanent {
				telemetry.ObserveExtractAttempt("permanent")
				return nil, err
			}
			if cerr := ctx.Err(); cerr != nil {
				return nil, fmt.Errorf("extract canceled: %w", cerr)
			}
			log.Debug("probe inconclusive, proceeding", zap.Error(err))
		}
	}

	var lastErr error
	for attempt := 1; attempt <= e.cfg.MaxAttempts; attempt++ {
		if cerr := ctx.Err(); cerr != nil {
			telemetry.ObserveExtractAttempt("aborted")
			return nil, fmt.Errorf("extract canceled before attempt %d: %w", attempt, cerr)
		}

		start := time.Now()
		segments, err := e.attempt(ctx, target)
		dur := time.Since(start)

		if err == nil {
			telemetry.ObserveExtractAttempt("success")
			e.emit(progress.StageAttemptDone, target, attempt, dur, "")
			log.Info("transcript extracted",
				zap.Int("attempt", attempt),
				zap.Int("segments", len(segments)),
				zap.Duration("dur", dur),
			)
			return &transcript.Transcript{
				VideoID:     target.VideoID,
				URL:         target.WatchURL,
				Segments:    segments,
				Attempts:    attempt,
				ExtractedAt: e.now(),
			}, nil
		}

		lastErr = err
		kind := transcript.Classify(err)
		e.emit(progress.StageAttemptDone, target, attempt, dur, err.Error())
		switch kind {
		case transcript.KindPermanent:
			telemetry.ObserveExtractAttempt("permanent")
			log.Warn("permanent extraction failure", zap.Int("attempt", attempt), zap.Error(err))
			return nil, err
		case transcript.KindAborted:
			telemetry.ObserveExtractAttempt("aborted")
			return nil, err
		default:
			telemetry.ObserveExtractAttempt("transient")
			log.Warn("transient extraction failure",
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", e.cfg.MaxAttempts),
				zap.Error(err),
			)
		}

		if attempt < e.cfg.MaxAttempts {
			if err := e.backoff(ctx, attempt); err != nil {
				return nil, err
			}
		}
	}
	return nil, lastErr
}

// attempt runs one extraction attempt inside one isolated browser instance.
func (e *Extractor) attempt(ctx context.Context, target transcript.Target) ([]transcript.Segment, error) {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx, target.WatchURL); err != nil {
			return nil, err
		}
	}

	attemptCtx, cancel := context.WithTimeout(ctx, e.cfg.AttemptTimeout)
	defer cancel()

	var segments []transcript.Segment
	err := e.runner.RunIsolated(attemptCtx, func(browserCtx context.Context) error {
		segs, runErr := e.driver.Run(browserCtx, target)
		if runErr != nil {
			return runErr
		}
		segments = segs
		return nil
	})
	if err != nil {
		// An expired attempt deadline while the caller is still live is a
		// navigation timeout, not a caller abort.
		if attemptCtx.Err() != nil && ctx.Err() == nil {
			return nil, &transcript.TransientError{Reason: "attempt deadline exceeded", Err: err}
		}
		return nil, err
	}
	return segments, nil
}

func (e *Extractor) backoff(ctx context.Context, attempt int) error {
	delay := time.Duration(attempt) * e.cfg.BackoffBase
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("retry backoff canceled: %w", ctx.Err())
	}
}

func (e *Extractor) emit(stage progress.Stage, target transcript.Target, attempt int, dur time.Duration, note string) {
	if e.hub == nil {
		return
	}
	e.hub.Emit(progress.Event{
		TS:      e.now(),
		Stage:   stage,
		VideoID: target.VideoID,
		Attempt: attempt,
		Dur:     dur,
		Note:    note,
	})
}

func (e *Extractor) now() time.Time {
	if e.clock != nil {
		return e.clock.Now()
	}
	return time.Now().UTC()
}
