// Package queue implements admission control for extraction work. It bounds
// how many tasks run concurrently process-wide, parks excess demand on a FIFO
// wait list with a per-waiter deadline, and rejects demand beyond the wait
// list's capacity so callers get backpressure instead of unbounded queueing.
package queue

import (
	"container/list"
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"transcriptd/internal/telemetry"
	"transcriptd/internal/transcript"
)

// Task is a unit of admitted work. The context carries the caller's
// cancellation; the queue never runs a task whose wait already expired.
type Task func(ctx context.Context) error

// Config controls queue capacity and wait deadlines.
type Config struct {
	// MaxConcurrency bounds tasks running at once.
	MaxConcurrency int
	// MaxQueueSize bounds pending+active; beyond it Submit rejects immediately.
	MaxQueueSize int
	// WaitTimeout is the per-task deadline while parked on the wait list.
	WaitTimeout time.Duration
}

// Stats is a point-in-time snapshot of queue counters. Size is defined as
// pending+active.
type Stats struct {
	Size           int           `json:"size"`
	Active         int           `json:"active"`
	Pending        int           `json:"pending"`
	Completed      uint64        `json:"completed"`
	Failed         uint64        `json:"failed"`
	Canceled       uint64        `json:"canceled"`
	TimedOut       uint64        `json:"timed_out"`
	Rejected       uint64        `json:"rejected"`
	TotalProcessed uint64        `json:"total_processed"`
	MeanDuration   time.Duration `json:"mean_duration"`
	P95Duration    time.Duration `json:"p95_duration"`
}

// durationWindow is how many recent task durations feed the p95 estimate.
const durationWindow = 256

type waiter struct {
	ready    chan struct{}
	admitted bool
	cleared  bool
	elem     *list.Element
}

// Queue is safe for concurrent use. All counters and the wait list are
// guarded by one mutex; submitters run on real OS threads, so nothing here
// may rely on single-turn scheduling for consistency.
type Queue struct {
	cfg    Config
	logger *zap.Logger

	mu      sync.Mutex
	active  int
	waiters *list.List

	completed      uint64
	failed         uint64
	canceled       uint64
	timedOut       uint64
	rejected       uint64
	totalProcessed uint64
	totalDuration  time.Duration
	durations      [durationWindow]time.Duration
	durationCount  int

	drainers []chan struct{}
}

// New constructs a Queue. Zero or negative config values fall back to
// conservative defaults.
func New(cfg Config, logger *zap.Logger) *Queue {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 1
	}
	if cfg.MaxQueueSize < cfg.MaxConcurrency {
		cfg.MaxQueueSize = cfg.MaxConcurrency
	}
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{
		cfg:     cfg,
		logger:  logger,
		waiters: list.New(),
	}
}

// Submit runs task now if a slot is free, parks it FIFO if the wait list has
// room, and rejects it otherwise. It blocks until the task settles or the
// wait is rejected. A task rejected with QueueFullError, QueueTimeoutError,
// or QueueClearedError is guaranteed never to have started.
func (q *Queue) Submit(ctx context.Context, task Task) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("submit canceled: %w", err)
	}

	q.mu.Lock()
	if q.active < q.cfg.MaxConcurrency {
		q.active++
		q.publishGauges()
		q.mu.Unlock()
		return q.runTask(ctx, task)
	}
	size := q.waiters.Len() + q.active
	if size >= q.cfg.MaxQueueSize {
		q.rejected++
		q.mu.Unlock()
		telemetry.ObserveQueueRejection("full")
		return &transcript.QueueFullError{Size: size, MaxSize: q.cfg.MaxQueueSize}
	}
	w := &waiter{ready: make(chan struct{})}
	w.elem = q.waiters.PushBack(w)
	q.publishGauges()
	q.mu.Unlock()

	enqueued := time.Now()
	timer := time.NewTimer(q.cfg.WaitTimeout)
	defer timer.Stop()

	select {
	case <-w.ready:
		q.mu.Lock()
		cleared := w.cleared
		q.mu.Unlock()
		if cleared {
			telemetry.ObserveQueueRejection("cleared")
			return &transcript.QueueClearedError{}
		}
		return q.runTask(ctx, task)
	case <-timer.C:
		switch q.abandonWait(w, true) {
		case waitRemoved:
			telemetry.ObserveQueueRejection("timeout")
			return &transcript.QueueTimeoutError{Waited: time.Since(enqueued)}
		case waitCleared:
			telemetry.ObserveQueueRejection("cleared")
			return &transcript.QueueClearedError{}
		default:
			// Admission won the race against the deadline; the slot is ours.
			return q.runTask(ctx, task)
		}
	case <-ctx.Done():
		switch q.abandonWait(w, false) {
		case waitRemoved:
			return fmt.Errorf("queue wait canceled: %w", ctx.Err())
		case waitCleared:
			return &transcript.QueueClearedError{}
		default:
			return q.runTask(ctx, task)
		}
	}
}

type waitOutcome int

const (
	waitRemoved waitOutcome = iota
	waitAdmitted
	waitCleared
)

// abandonWait removes w from the wait list unless it was already admitted or
// cleared, and reports what happened to the waiter.
func (q *Queue) abandonWait(w *waiter, timedOut bool) waitOutcome {
	q.mu.Lock()
	defer q.mu.Unlock()
	if w.cleared {
		return waitCleared
	}
	if w.admitted {
		return waitAdmitted
	}
	if w.elem != nil {
		q.waiters.Remove(w.elem)
		w.elem = nil
	}
	if timedOut {
		q.timedOut++
	}
	q.publishGauges()
	q.notifyDrainersLocked()
	return waitRemoved
}

func (q *Queue) runTask(ctx context.Context, task Task) error {
	start := time.Now()
	err := task(ctx)
	q.settle(time.Since(start), err)
	return err
}

func (q *Queue) settle(dur time.Duration, err error) {
	q.mu.Lock()
	q.active--
	q.totalProcessed++
	q.totalDuration += dur
	q.durations[q.durationCount%durationWindow] = dur
	q.durationCount++
	switch {
	case err == nil:
		q.completed++
	case transcript.Classify(err) == transcript.KindAborted:
		q.canceled++
	default:
		q.failed++
	}
	q.promoteLocked()
	q.publishGauges()
	q.notifyDrainersLocked()
	q.mu.Unlock()
	telemetry.ObserveQueueTask(err == nil, dur)
}

// promoteLocked admits waiters in FIFO order while slots are free.
func (q *Queue) promoteLocked() {
	for q.active < q.cfg.MaxConcurrency {
		front := q.waiters.Front()
		if front == nil {
			return
		}
		w := front.Value.(*waiter)
		q.waiters.Remove(front)
		w.elem = nil
		w.admitted = true
		q.active++
		close(w.ready)
	}
}

// Stats returns a snapshot of the queue counters.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	s := Stats{
		Active:         q.active,
		Pending:        q.waiters.Len(),
		Completed:      q.completed,
		Failed:         q.failed,
		Canceled:       q.canceled,
		TimedOut:       q.timedOut,
		Rejected:       q.rejected,
		TotalProcessed: q.totalProcessed,
	}
	s.Size = s.Active + s.Pending
	if q.totalProcessed > 0 {
		s.MeanDuration = q.totalDuration / time.Duration(q.totalProcessed)
	}
	s.P95Duration = q.p95Locked()
	return s
}

func (q *Queue) p95Locked() time.Duration {
	n := q.durationCount
	if n > durationWindow {
		n = durationWindow
	}
	if n == 0 {
		return 0
	}
	window := make([]time.Duration, n)
	copy(window, q.durations[:n])
	sort.Slice(window, func(i, j int) bool { return window[i] < window[j] })
	idx := n * 95 / 100
	if idx >= n {
		idx = n - 1
	}
	return window[idx]
}

// Drain blocks until pending and active both reach zero, or ctx ends. It does
// not block new submissions; callers stop submitting before draining.
func (q *Queue) Drain(ctx context.Context) error {
	q.mu.Lock()
	if q.active == 0 && q.waiters.Len() == 0 {
		q.mu.Unlock()
		return nil
	}
	done := make(chan struct{})
	q.drainers = append(q.drainers, done)
	q.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("queue drain: %w", ctx.Err())
	}
}

// Clear rejects every currently waiting task with QueueClearedError. Active
// tasks are untouched; waiting for those is Drain's job. This is deliberately
// not "let the waiters hit their timeouts": shutdown should fail queued work
// promptly rather than after WaitTimeout elapses.
func (q *Queue) Clear() int {
	q.mu.Lock()
	cleared := 0
	for front := q.waiters.Front(); front != nil; front = q.waiters.Front() {
		w := front.Value.(*waiter)
		q.waiters.Remove(front)
		w.elem = nil
		w.cleared = true
		close(w.ready)
		cleared++
	}
	q.publishGauges()
	q.notifyDrainersLocked()
	q.mu.Unlock()
	if cleared > 0 {
		q.logger.Info("queue cleared", zap.Int("rejected_waiters", cleared))
	}
	return cleared
}

func (q *Queue) notifyDrainersLocked() {
	if q.active != 0 || q.waiters.Len() != 0 {
		return
	}
	for _, done := range q.drainers {
		close(done)
	}
	q.drainers = nil
}

func (q *Queue) publishGauges() {
	telemetry.SetQueueDepth(q.active, q.waiters.Len())
}
