// Package progress defines the event stream emitted by the extraction
// pipeline and the hub that fans it out to sinks without ever blocking the
// emitters.
package progress

import (
	"errors"
	"fmt"
	"time"
)

// Stage denotes the milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageJobStart    Stage = "JOB_START"
	StageJobDone     Stage = "JOB_DONE"
	StageJobError    Stage = "JOB_ERROR"
	StageAttemptDone Stage = "ATTEMPT_DONE"
	StageItemDone    Stage = "ITEM_DONE"
)

// Event captures a single milestone of extraction progress.
type Event struct {
	// JobID identifies the enclosing request; empty for bare extractions.
	JobID string
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which milestone occurred.
	Stage Stage
	// VideoID scopes attempt and item events to one target.
	VideoID string
	// Index is the batch slot for item events.
	Index int
	// Attempt is the 1-based attempt number for attempt events.
	Attempt int
	// Status carries the settled item status for item events.
	Status string
	// Dur captures execution latency where it applies.
	Dur time.Duration
	// Note lets emitters attach low-volume context (e.g. error text).
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageJobStart, StageJobDone, StageJobError:
	case StageAttemptDone:
		if e.VideoID == "" {
			return errors.New("attempt event requires video id")
		}
		if e.Attempt < 1 {
			return errors.New("attempt event requires attempt >= 1")
		}
	case StageItemDone:
		if e.Status == "" {
			return errors.New("item event requires status")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}
