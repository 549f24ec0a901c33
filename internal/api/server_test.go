package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transcriptd/internal/browser"
	"transcriptd/internal/cache/memory"
	"transcriptd/internal/config"
	"transcriptd/internal/queue"
	"transcriptd/internal/transcript"
)

const testWatchURL = "https://www.youtube.com/watch?v=dQw4w9WgXcQ"

type fakeExtractor struct {
	err   error
	calls int
}

func (f *fakeExtractor) Extract(ctx context.Context, rawTarget string) (*transcript.Transcript, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	target, err := transcript.ParseTarget(rawTarget)
	if err != nil {
		return nil, err
	}
	return &transcript.Transcript{
		VideoID:     target.VideoID,
		URL:         target.WatchURL,
		Segments:    []transcript.Segment{{Text: "hello"}},
		Attempts:    1,
		ExtractedAt: time.Now().UTC(),
	}, nil
}

type fakeBatch struct {
	result transcript.BatchResult
}

func (f *fakeBatch) Run(ctx context.Context, jobID string, urls []string, k int, onProgress func(transcript.ItemResult)) transcript.BatchResult {
	return f.result
}

type fakeHealth struct {
	healthy bool
	probes  int
}

func (f *fakeHealth) CanLaunch(ctx context.Context) bool {
	f.probes++
	return f.healthy
}

func (f *fakeHealth) Snapshot() browser.MetricsSnapshot {
	return browser.MetricsSnapshot{Launches: 7}
}

type fakeIDGen struct{ id string }

func (f fakeIDGen) NewID() (string, error) {
	if f.id == "" {
		return "", errors.New("no id")
	}
	return f.id, nil
}

type serverOpts struct {
	extractor Extractor
	batch     BatchRunner
	health    HealthProber
	queueCfg  queue.Config
	cfg       config.Config
}

func newTestServer(t *testing.T, opts serverOpts) *Server {
	t.Helper()
	if opts.extractor == nil {
		opts.extractor = &fakeExtractor{}
	}
	if opts.batch == nil {
		opts.batch = &fakeBatch{}
	}
	if opts.health == nil {
		opts.health = &fakeHealth{healthy: true}
	}
	if opts.queueCfg.MaxConcurrency == 0 {
		opts.queueCfg = queue.Config{MaxConcurrency: 2, MaxQueueSize: 4, WaitTimeout: time.Second}
	}
	if opts.cfg.Batch.MaxItems == 0 {
		opts.cfg.Batch.MaxItems = 10
	}
	q := queue.New(opts.queueCfg, nil)
	store := memory.New(time.Hour, 0)
	return NewServer(q, opts.extractor, opts.batch, store, opts.health, nil, fakeIDGen{id: "job-123"}, nil, opts.cfg, nil)
}

func doJSON(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body == "" {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, serverOpts{})
	rec := doJSON(t, s, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyzProbesAndCaches(t *testing.T) {
	health := &fakeHealth{healthy: true}
	s := newTestServer(t, serverOpts{health: health})

	rec := doJSON(t, s, http.MethodGet, "/readyz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	rec = doJSON(t, s, http.MethodGet, "/readyz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, health.probes, "second check within the cache window must not launch")
}

func TestReadyzUnhealthy(t *testing.T) {
	s := newTestServer(t, serverOpts{health: &fakeHealth{healthy: false}})
	rec := doJSON(t, s, http.MethodGet, "/readyz", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestExtractTranscript(t *testing.T) {
	s := newTestServer(t, serverOpts{})
	rec := doJSON(t, s, http.MethodPost, "/v1/transcripts", `{"url":"`+testWatchURL+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var tr transcript.Transcript
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tr))
	assert.Equal(t, "dQw4w9WgXcQ", tr.VideoID)
	assert.Len(t, tr.Segments, 1)
	assert.False(t, tr.FromCache)
}

func TestExtractTranscriptServesCacheOnRepeat(t *testing.T) {
	extractor := &fakeExtractor{}
	s := newTestServer(t, serverOpts{extractor: extractor})

	rec := doJSON(t, s, http.MethodPost, "/v1/transcripts", `{"url":"`+testWatchURL+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = doJSON(t, s, http.MethodPost, "/v1/transcripts", `{"url":"`+testWatchURL+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var tr transcript.Transcript
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tr))
	assert.True(t, tr.FromCache)
	assert.Equal(t, 1, extractor.calls, "cache hit must not re-extract")
}

func TestExtractTranscriptBadRequests(t *testing.T) {
	s := newTestServer(t, serverOpts{})

	rec := doJSON(t, s, http.MethodPost, "/v1/transcripts", `not json`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, s, http.MethodPost, "/v1/transcripts", `{"url":"https://example.org/nope"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExtractTranscriptErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{&transcript.PermanentError{Reason: "no transcript"}, http.StatusNotFound},
		{&transcript.TransientError{Reason: "flaky page"}, http.StatusBadGateway},
		{&transcript.LaunchError{Attempts: 3, Err: errors.New("no chrome")}, http.StatusBadGateway},
		{errors.New("mystery"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		s := newTestServer(t, serverOpts{extractor: &fakeExtractor{err: tc.err}})
		rec := doJSON(t, s, http.MethodPost, "/v1/transcripts", `{"url":"`+testWatchURL+`"}`)
		require.Equal(t, tc.code, rec.Code, "error %v", tc.err)
	}
}

func TestExtractTranscriptQueueFull(t *testing.T) {
	// One slot total; occupy it so the next request is rejected outright.
	s := newTestServer(t, serverOpts{
		queueCfg: queue.Config{MaxConcurrency: 1, MaxQueueSize: 1, WaitTimeout: time.Second},
	})

	block := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = s.queue.Submit(context.Background(), func(ctx context.Context) error {
			close(started)
			<-block
			return nil
		})
	}()
	<-started

	rec := doJSON(t, s, http.MethodPost, "/v1/transcripts", `{"url":"`+testWatchURL+`"}`)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	close(block)
}

func TestExtractPlaylist(t *testing.T) {
	batch := &fakeBatch{result: transcript.BatchResult{
		Items: []transcript.ItemResult{
			{Index: 0, URL: testWatchURL, Status: transcript.ItemStatusSucceeded,
				Transcript: &transcript.Transcript{VideoID: "dQw4w9WgXcQ"}},
			{Index: 1, URL: testWatchURL, Status: transcript.ItemStatusFailed, ErrorText: "no transcript"},
		},
		Succeeded: 1,
		Failed:    1,
	}}
	s := newTestServer(t, serverOpts{batch: batch})

	rec := doJSON(t, s, http.MethodPost, "/v1/playlists",
		`{"urls":["`+testWatchURL+`","`+testWatchURL+`"],"concurrency":2}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp playlistResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "job-123", resp.JobID)
	assert.Equal(t, 1, resp.Batch.Succeeded)
	assert.Equal(t, 1, resp.Batch.Failed)
	assert.Len(t, resp.Batch.Items, 2)
}

func TestExtractPlaylistValidation(t *testing.T) {
	s := newTestServer(t, serverOpts{})

	rec := doJSON(t, s, http.MethodPost, "/v1/playlists", `{"urls":[]}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	urls := make([]string, 11)
	for i := range urls {
		urls[i] = testWatchURL
	}
	body, err := json.Marshal(playlistRequest{URLs: urls})
	require.NoError(t, err)
	rec = doJSON(t, s, http.MethodPost, "/v1/playlists", string(body))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "too many items")
}

func TestQueueStats(t *testing.T) {
	s := newTestServer(t, serverOpts{})
	rec := doJSON(t, s, http.MethodGet, "/v1/queue/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var payload struct {
		Queue   queue.Stats             `json:"queue"`
		Browser browser.MetricsSnapshot `json:"browser"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, uint64(7), payload.Browser.Launches)
}

func TestRequestIDHeaderIsSet(t *testing.T) {
	s := newTestServer(t, serverOpts{})
	rec := doJSON(t, s, http.MethodGet, "/healthz", "")
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestStatusForError(t *testing.T) {
	code, _ := statusForError(&transcript.QueueFullError{Size: 4, MaxSize: 4})
	assert.Equal(t, http.StatusTooManyRequests, code)
	code, _ = statusForError(&transcript.QueueTimeoutError{Waited: time.Second})
	assert.Equal(t, http.StatusServiceUnavailable, code)
	code, _ = statusForError(&transcript.QueueClearedError{})
	assert.Equal(t, http.StatusServiceUnavailable, code)
	code, msg := statusForError(&transcript.PermanentError{Reason: "gone"})
	assert.Equal(t, http.StatusNotFound, code)
	assert.True(t, strings.Contains(msg, "gone"))
	code, _ = statusForError(context.Canceled)
	assert.Equal(t, http.StatusRequestTimeout, code)
}
