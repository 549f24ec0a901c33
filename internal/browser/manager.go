package browser

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"transcriptd/internal/telemetry"
	"transcriptd/internal/transcript"
)

// Config controls launch retries and their pacing. The launch budget is
// independent of any retry budget the operation itself runs under.
type Config struct {
	// LaunchRetries is how many extra attempts follow a failed launch.
	LaunchRetries int
	// LaunchBackoffBase scales the progressive delay between launch
	// attempts: base, 2*base, 3*base, ...
	LaunchBackoffBase time.Duration
}

// MetricsSnapshot is a point-in-time copy of the manager counters.
type MetricsSnapshot struct {
	Launches        uint64        `json:"launches"`
	LaunchRetries   uint64        `json:"launch_retries"`
	CleanupFailures uint64        `json:"cleanup_failures"`
	MeanLaunch      time.Duration `json:"mean_launch"`
}

// Manager runs operations against isolated browser instances with guaranteed
// teardown. It is safe for concurrent use; each call owns its own instance.
type Manager struct {
	cfg      Config
	launcher Launcher
	logger   *zap.Logger

	launches        atomic.Uint64
	launchRetries   atomic.Uint64
	cleanupFailures atomic.Uint64
	launchNanos     atomic.Int64
}

// NewManager constructs a Manager around the given launcher.
func NewManager(cfg Config, launcher Launcher, logger *zap.Logger) *Manager {
	if cfg.LaunchRetries < 0 {
		cfg.LaunchRetries = 0
	}
	if cfg.LaunchBackoffBase <= 0 {
		cfg.LaunchBackoffBase = time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{cfg: cfg, launcher: launcher, logger: logger}
}

// RunIsolated launches a fresh instance, invokes op with it, and tears the
// instance down on every exit path: normal return, error, or cancellation.
// A teardown failure is counted but never masks op's own result.
func (m *Manager) RunIsolated(ctx context.Context, op func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("isolated run canceled before launch: %w", err)
	}

	inst, err := m.launch(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := inst.Close(); cerr != nil {
			m.cleanupFailures.Add(1)
			telemetry.ObserveBrowserCleanupFailure()
			m.logger.Warn("browser teardown failed", zap.Error(cerr))
		}
	}()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("isolated run canceled after launch: %w", err)
	}
	return op(inst.Ctx)
}

// CanLaunch reports whether a minimal launch-then-teardown cycle succeeds.
// Used by the readiness probe.
func (m *Manager) CanLaunch(ctx context.Context) bool {
	inst, err := m.launcher.Launch(ctx)
	if err != nil {
		m.logger.Warn("health launch failed", zap.Error(err))
		return false
	}
	if cerr := inst.Close(); cerr != nil {
		m.cleanupFailures.Add(1)
		telemetry.ObserveBrowserCleanupFailure()
		m.logger.Warn("health teardown failed", zap.Error(cerr))
	}
	return true
}

// Snapshot returns the current counters.
func (m *Manager) Snapshot() MetricsSnapshot {
	s := MetricsSnapshot{
		Launches:        m.launches.Load(),
		LaunchRetries:   m.launchRetries.Load(),
		CleanupFailures: m.cleanupFailures.Load(),
	}
	if s.Launches > 0 {
		s.MeanLaunch = time.Duration(m.launchNanos.Load() / int64(s.Launches))
	}
	return s
}

func (m *Manager) launch(ctx context.Context) (*Instance, error) {
	attempts := m.cfg.LaunchRetries + 1
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("launch canceled: %w", err)
		}
		start := time.Now()
		inst, err := m.launcher.Launch(ctx)
		if err == nil {
			dur := time.Since(start)
			m.launches.Add(1)
			m.launchNanos.Add(int64(dur))
			telemetry.ObserveBrowserLaunch(dur)
			return inst, nil
		}
		lastErr = err
		m.logger.Warn("browser launch failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", attempts),
			zap.Error(err),
		)
		if attempt < attempts {
			m.launchRetries.Add(1)
			telemetry.ObserveBrowserLaunchRetry()
			if err := sleepCtx(ctx, time.Duration(attempt)*m.cfg.LaunchBackoffBase); err != nil {
				return nil, err
			}
		}
	}
	return nil, &transcript.LaunchError{Attempts: attempts, Err: lastErr}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("launch backoff canceled: %w", ctx.Err())
	}
}
