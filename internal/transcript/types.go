// Package transcript defines core types shared across subsystems.
package transcript

import (
	"time"
)

// Segment is one timed text unit of a transcript.
type Segment struct {
	Start    time.Duration `json:"start"`
	Duration time.Duration `json:"duration"`
	Text     string        `json:"text"`
}

// Transcript is the extraction result for one target.
type Transcript struct {
	VideoID     string    `json:"video_id"`
	URL         string    `json:"url"`
	Segments    []Segment `json:"segments"`
	Attempts    int       `json:"attempts"`
	ExtractedAt time.Time `json:"extracted_at"`
	FromCache   bool      `json:"from_cache,omitempty"`
}

// ItemStatus is the per-item outcome inside a batch run.
type ItemStatus string

// Item status values reported for batch entries.
const (
	ItemStatusSucceeded ItemStatus = "succeeded"
	ItemStatusFailed    ItemStatus = "failed"
	ItemStatusSkipped   ItemStatus = "skipped"
)

// ItemResult holds the settled outcome for one batch slot.
type ItemResult struct {
	Index      int           `json:"index"`
	URL        string        `json:"url"`
	Status     ItemStatus    `json:"status"`
	Transcript *Transcript   `json:"transcript,omitempty"`
	ErrorText  string        `json:"error,omitempty"`
	Duration   time.Duration `json:"duration"`
}

// BatchResult aggregates the outcome of one fan-out run.
type BatchResult struct {
	Items     []ItemResult `json:"items"`
	Succeeded int          `json:"succeeded"`
	Failed    int          `json:"failed"`
	Canceled  bool         `json:"canceled"`
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces request IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
