// Package batch implements bounded fan-out of extraction work over an
// ordered item list. Workers share an atomic claim cursor; output order
// always equals input order regardless of per-item latency.
package batch

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"transcriptd/internal/progress"
	"transcriptd/internal/telemetry"
	"transcriptd/internal/transcript"
)

// ExtractFunc performs one extraction. Satisfied by (*extract.Extractor).Extract.
type ExtractFunc func(ctx context.Context, rawTarget string) (*transcript.Transcript, error)

// Config bounds batch concurrency.
type Config struct {
	// DefaultConcurrency applies when the caller requests zero workers.
	DefaultConcurrency int
	// MaxConcurrency caps the caller's requested worker count.
	MaxConcurrency int
}

// Runner fans one batch out over K workers. Safe for concurrent use; each
// Run call owns its own cursor and results.
type Runner struct {
	cfg     Config
	extract ExtractFunc
	hub     *progress.Hub
	clock   transcript.Clock
	logger  *zap.Logger
}

// NewRunner constructs a Runner. hub may be nil.
func NewRunner(cfg Config, extract ExtractFunc, hub *progress.Hub, clock transcript.Clock, logger *zap.Logger) *Runner {
	if cfg.DefaultConcurrency <= 0 {
		cfg.DefaultConcurrency = 2
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		cfg:     cfg,
		extract: extract,
		hub:     hub,
		clock:   clock,
		logger:  logger,
	}
}

// Run extracts every URL with up to k concurrent workers and returns results
// in input order. A failure in one lane never aborts siblings. When ctx is
// canceled mid-run, items already claimed still settle; slots never claimed
// are filtered out of the returned list. onProgress, when non-nil, is invoked
// once per settled item and may be called from multiple goroutines.
func (r *Runner) Run(ctx context.Context, jobID string, urls []string, k int, onProgress func(transcript.ItemResult)) transcript.BatchResult {
	if k <= 0 {
		k = r.cfg.DefaultConcurrency
	}
	if k > r.cfg.MaxConcurrency {
		k = r.cfg.MaxConcurrency
	}
	if k > len(urls) {
		k = len(urls)
	}

	results := make([]*transcript.ItemResult, len(urls))
	var cursor atomic.Int64
	var wg sync.WaitGroup

	for i := 0; i < k; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.worker(ctx, jobID, urls, &cursor, results, onProgress)
		}()
	}
	wg.Wait()

	out := transcript.BatchResult{Canceled: ctx.Err() != nil}
	for _, res := range results {
		if res == nil {
			continue
		}
		out.Items = append(out.Items, *res)
		switch res.Status {
		case transcript.ItemStatusSucceeded:
			out.Succeeded++
		case transcript.ItemStatusFailed:
			out.Failed++
		}
	}
	return out
}

// worker claims indexes until the list is exhausted or cancellation is
// observed at a claim boundary. Each claimed slot is written exactly once,
// by the worker that claimed it.
func (r *Runner) worker(
	ctx context.Context,
	jobID string,
	urls []string,
	cursor *atomic.Int64,
	results []*transcript.ItemResult,
	onProgress func(transcript.ItemResult),
) {
	for {
		idx := int(cursor.Add(1)) - 1
		if idx >= len(urls) {
			return
		}
		if ctx.Err() != nil {
			return
		}

		start := time.Now()
		tr, err := r.extract(ctx, urls[idx])
		res := transcript.ItemResult{
			Index:    idx,
			URL:      urls[idx],
			Duration: time.Since(start),
		}
		switch {
		case err == nil:
			res.Status = transcript.ItemStatusSucceeded
			res.Transcript = tr
		case transcript.Classify(err) == transcript.KindAborted:
			res.Status = transcript.ItemStatusSkipped
			res.ErrorText = err.Error()
		default:
			res.Status = transcript.ItemStatusFailed
			res.ErrorText = err.Error()
			r.logger.Warn("batch item failed",
				zap.String("job_id", jobID),
				zap.Int("index", idx),
				zap.String("url", urls[idx]),
				zap.Error(err),
			)
		}
		results[idx] = &res

		telemetry.ObserveBatchItem(string(res.Status))
		r.emitItem(jobID, res)
		if onProgress != nil {
			onProgress(res)
		}
	}
}

func (r *Runner) emitItem(jobID string, res transcript.ItemResult) {
	if r.hub == nil {
		return
	}
	videoID := ""
	if res.Transcript != nil {
		videoID = res.Transcript.VideoID
	}
	r.hub.Emit(progress.Event{
		JobID:   jobID,
		TS:      r.now(),
		Stage:   progress.StageItemDone,
		VideoID: videoID,
		Index:   res.Index,
		Status:  string(res.Status),
		Dur:     res.Duration,
		Note:    res.ErrorText,
	})
}

func (r *Runner) now() time.Time {
	if r.clock != nil {
		return r.clock.Now()
	}
	return time.Now().UTC()
}
