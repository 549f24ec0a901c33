// Package cache defines the transcript cache consumed by the service before
// admission and written through after successful extraction.
package cache

import (
	"context"

	"transcriptd/internal/transcript"
)

// Store is a write-through transcript cache keyed by video id.
type Store interface {
	// Lookup returns the cached transcript and true on a hit.
	Lookup(ctx context.Context, videoID string) (*transcript.Transcript, bool, error)
	// Save stores a freshly extracted transcript.
	Save(ctx context.Context, tr *transcript.Transcript) error
}

// Noop is a Store that never hits and discards writes.
type Noop struct{}

// Lookup always misses.
func (Noop) Lookup(context.Context, string) (*transcript.Transcript, bool, error) {
	return nil, false, nil
}

// Save discards the transcript.
func (Noop) Save(context.Context, *transcript.Transcript) error {
	return nil
}
