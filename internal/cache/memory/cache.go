// Package memory provides an in-process transcript cache for local
// development and tests.
package memory

import (
	"context"
	"sync"
	"time"

	"transcriptd/internal/transcript"
)

// Cache is a TTL-bounded map cache. Safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	entries map[string]entry
	ttl     time.Duration
	maxSize int
	now     func() time.Time
}

type entry struct {
	tr      transcript.Transcript
	savedAt time.Time
}

// New constructs a Cache. ttl <= 0 means entries never expire; maxSize <= 0
// means unbounded.
func New(ttl time.Duration, maxSize int) *Cache {
	return &Cache{
		entries: make(map[string]entry),
		ttl:     ttl,
		maxSize: maxSize,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Lookup returns a copy of the cached transcript on a hit.
func (c *Cache) Lookup(_ context.Context, videoID string) (*transcript.Transcript, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[videoID]
	if !ok {
		return nil, false, nil
	}
	if c.ttl > 0 && c.now().Sub(e.savedAt) > c.ttl {
		delete(c.entries, videoID)
		return nil, false, nil
	}
	tr := e.tr
	tr.FromCache = true
	return &tr, true, nil
}

// Save stores the transcript, evicting the oldest entry when full.
func (c *Cache) Save(_ context.Context, tr *transcript.Transcript) error {
	if tr == nil || tr.VideoID == "" {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.maxSize > 0 && len(c.entries) >= c.maxSize {
		if _, exists := c.entries[tr.VideoID]; !exists {
			c.evictOldestLocked()
		}
	}
	c.entries[tr.VideoID] = entry{tr: *tr, savedAt: c.now()}
	return nil
}

func (c *Cache) evictOldestLocked() {
	var oldestKey string
	var oldestAt time.Time
	for key, e := range c.entries {
		if oldestKey == "" || e.savedAt.Before(oldestAt) {
			oldestKey = key
			oldestAt = e.savedAt
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

// Len reports the current entry count.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
