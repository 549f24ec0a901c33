package transcript

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Kind classifies a settled error so callers can map it to behavior
// (HTTP status, retry decision) without string matching.
type Kind string

// Supported error kinds.
const (
	KindQueueFull    Kind = "queue_full"
	KindQueueTimeout Kind = "queue_timeout"
	KindQueueCleared Kind = "queue_cleared"
	KindLaunch       Kind = "launch"
	KindTransient    Kind = "transient"
	KindPermanent    Kind = "permanent"
	KindAborted      Kind = "aborted"
	KindUnknown      Kind = "unknown"
)

// QueueFullError is returned when the wait list has no room; the task never ran.
type QueueFullError struct {
	Size    int
	MaxSize int
}

func (e *QueueFullError) Error() string {
	return fmt.Sprintf("queue full: size %d at limit %d", e.Size, e.MaxSize)
}

// QueueTimeoutError is returned when a task's queue wait exceeded its deadline;
// the task is guaranteed never to run.
type QueueTimeoutError struct {
	Waited time.Duration
}

func (e *QueueTimeoutError) Error() string {
	return fmt.Sprintf("queue wait timed out after %s", e.Waited)
}

// QueueClearedError is returned to waiters rejected by an explicit Clear call,
// distinct from deadline expiry so callers can tell deliberate flushes apart.
type QueueClearedError struct{}

func (e *QueueClearedError) Error() string {
	return "queue cleared before task started"
}

// LaunchError wraps a browser-launch failure after the launch retry budget
// was exhausted. It is transient from the caller's point of view.
type LaunchError struct {
	Attempts int
	Err      error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("browser launch failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// TransientError marks a failure worth retrying (navigation timeout, panel
// not yet rendered, launch failure).
type TransientError struct {
	Reason string
	Err    error
}

func (e *TransientError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transient: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("transient: %s", e.Reason)
}

func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError marks a failure that must not be retried (malformed target,
// transcript confirmed absent).
type PermanentError struct {
	Reason string
	Err    error
}

func (e *PermanentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("permanent: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("permanent: %s", e.Reason)
}

func (e *PermanentError) Unwrap() error { return e.Err }

// Classify maps an error to its Kind. Context cancellation is reported as
// KindAborted and is never counted as a failure by callers that honor it.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var (
		full    *QueueFullError
		timeout *QueueTimeoutError
		cleared *QueueClearedError
		launch  *LaunchError
		trans   *TransientError
		perm    *PermanentError
	)
	switch {
	case errors.As(err, &full):
		return KindQueueFull
	case errors.As(err, &timeout):
		return KindQueueTimeout
	case errors.As(err, &cleared):
		return KindQueueCleared
	case errors.As(err, &perm):
		return KindPermanent
	case errors.As(err, &launch):
		return KindLaunch
	case errors.As(err, &trans):
		return KindTransient
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindAborted
	default:
		return KindUnknown
	}
}
