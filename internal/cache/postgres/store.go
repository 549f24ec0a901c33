// Package postgres provides a Postgres-backed transcript cache.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"transcriptd/internal/transcript"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for transcript rows.
type Config struct {
	DSN             string
	Table           string
	TTL             time.Duration
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type dbPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Store persists transcripts in Postgres. Rows older than the TTL are
// treated as misses; expiry sweeping is left to the database operator.
type Store struct {
	pool  dbPool
	table string
	ttl   time.Duration
}

// NewStore creates a Postgres-backed Store using the provided config.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("cache.dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "transcripts"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool, table: table, ttl: cfg.TTL}, nil
}

// NewStoreWithPool constructs a Store from an existing pool (primarily for
// testing with pgxmock).
func NewStoreWithPool(pool dbPool, table string, ttl time.Duration) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "transcripts"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &Store{pool: pool, table: table, ttl: ttl}, nil
}

// EnsureSchema creates the transcripts table when absent.
func (s *Store) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		video_id TEXT PRIMARY KEY,
		url TEXT NOT NULL,
		segments JSONB NOT NULL,
		attempts INT NOT NULL,
		extracted_at TIMESTAMPTZ NOT NULL,
		saved_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Lookup returns the cached transcript when present and fresh.
func (s *Store) Lookup(ctx context.Context, videoID string) (*transcript.Transcript, bool, error) {
	query := fmt.Sprintf(
		`SELECT url, segments, attempts, extracted_at, saved_at FROM %s WHERE video_id = $1`,
		s.table,
	)
	var (
		url         string
		segmentJSON []byte
		attempts    int
		extractedAt time.Time
		savedAt     time.Time
	)
	err := s.pool.QueryRow(ctx, query, videoID).Scan(&url, &segmentJSON, &attempts, &extractedAt, &savedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("lookup transcript %s: %w", videoID, err)
	}
	if s.ttl > 0 && time.Since(savedAt) > s.ttl {
		return nil, false, nil
	}
	var segments []transcript.Segment
	if err := json.Unmarshal(segmentJSON, &segments); err != nil {
		return nil, false, fmt.Errorf("decode cached segments %s: %w", videoID, err)
	}
	return &transcript.Transcript{
		VideoID:     videoID,
		URL:         url,
		Segments:    segments,
		Attempts:    attempts,
		ExtractedAt: extractedAt,
		FromCache:   true,
	}, true, nil
}

// Save upserts the transcript row.
func (s *Store) Save(ctx context.Context, tr *transcript.Transcript) error {
	if tr == nil || tr.VideoID == "" {
		return nil
	}
	segmentJSON, err := json.Marshal(tr.Segments)
	if err != nil {
		return fmt.Errorf("encode segments %s: %w", tr.VideoID, err)
	}
	query := fmt.Sprintf(`INSERT INTO %s (video_id, url, segments, attempts, extracted_at, saved_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (video_id) DO UPDATE SET
			url = EXCLUDED.url,
			segments = EXCLUDED.segments,
			attempts = EXCLUDED.attempts,
			extracted_at = EXCLUDED.extracted_at,
			saved_at = now()`, s.table)
	if _, err := s.pool.Exec(ctx, query, tr.VideoID, tr.URL, segmentJSON, tr.Attempts, tr.ExtractedAt); err != nil {
		return fmt.Errorf("save transcript %s: %w", tr.VideoID, err)
	}
	return nil
}

// Close releases the underlying pool.
func (s *Store) Close() {
	s.pool.Close()
}
