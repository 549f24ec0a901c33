// Package api exposes the HTTP interface for the transcript service.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"transcriptd/internal/browser"
	"transcriptd/internal/cache"
	"transcriptd/internal/config"
	"transcriptd/internal/progress"
	"transcriptd/internal/queue"
	"transcriptd/internal/telemetry"
	"transcriptd/internal/transcript"

	"go.uber.org/zap"
)

// Extractor performs one retryable extraction.
type Extractor interface {
	Extract(ctx context.Context, rawTarget string) (*transcript.Transcript, error)
}

// BatchRunner fans a playlist out over bounded workers.
type BatchRunner interface {
	Run(ctx context.Context, jobID string, urls []string, k int, onProgress func(transcript.ItemResult)) transcript.BatchResult
}

// HealthProber reports whether a browser can currently be launched.
type HealthProber interface {
	CanLaunch(ctx context.Context) bool
	Snapshot() browser.MetricsSnapshot
}

// Server wires HTTP handlers to the admission queue and the extraction
// pipeline.
type Server struct {
	router    chi.Router
	queue     *queue.Queue
	extractor Extractor
	batch     BatchRunner
	store     cache.Store
	health    HealthProber
	hub       *progress.Hub
	idGen     transcript.IDGenerator
	clock     transcript.Clock
	cfg       config.Config
	logger    *zap.Logger

	readyMu      sync.Mutex
	readyAt      time.Time
	readyHealthy bool
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	q *queue.Queue,
	extractor Extractor,
	batch BatchRunner,
	store cache.Store,
	health HealthProber,
	hub *progress.Hub,
	idGen transcript.IDGenerator,
	clock transcript.Clock,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if store == nil {
		store = cache.Noop{}
	}
	s := &Server{
		queue:     q,
		extractor: extractor,
		batch:     batch,
		store:     store,
		health:    health,
		hub:       hub,
		idGen:     idGen,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
	}

	requestTimeout := time.Duration(cfg.Server.RequestTimeout) * time.Second
	if requestTimeout <= 0 {
		requestTimeout = 300 * time.Second
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metricsMiddleware)
	r.Use(timeoutMiddleware(requestTimeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", telemetry.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/transcripts", s.extractTranscript)
		r.Post("/playlists", s.extractPlaylist)
		r.Get("/queue/stats", s.queueStats)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readyz runs a launch-then-teardown probe, cached briefly so load balancer
// checks do not turn into a stream of Chrome launches.
func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	cacheWindow := time.Duration(s.cfg.Browser.ReadyProbeCacheSecs) * time.Second
	if cacheWindow <= 0 {
		cacheWindow = 10 * time.Second
	}

	s.readyMu.Lock()
	fresh := time.Since(s.readyAt) < cacheWindow
	healthy := s.readyHealthy
	s.readyMu.Unlock()

	if !fresh {
		probeCtx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
		healthy = s.health.CanLaunch(probeCtx)
		cancel()
		s.readyMu.Lock()
		s.readyAt = time.Now()
		s.readyHealthy = healthy
		s.readyMu.Unlock()
	}

	if !healthy {
		writeError(w, http.StatusServiceUnavailable, "browser launch probe failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) queueStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"queue":   s.queue.Stats(),
		"browser": s.health.Snapshot(),
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusForError maps classified pipeline errors to HTTP statuses, so the
// transport never re-derives intent from error strings.
func statusForError(err error) (int, string) {
	switch transcript.Classify(err) {
	case transcript.KindQueueFull:
		return http.StatusTooManyRequests, "queue full, retry later"
	case transcript.KindQueueTimeout:
		return http.StatusServiceUnavailable, "timed out waiting for an extraction slot"
	case transcript.KindQueueCleared:
		return http.StatusServiceUnavailable, "service is shutting down"
	case transcript.KindPermanent:
		return http.StatusNotFound, err.Error()
	case transcript.KindLaunch, transcript.KindTransient:
		return http.StatusBadGateway, err.Error()
	case transcript.KindAborted:
		return http.StatusRequestTimeout, "request canceled"
	default:
		return http.StatusInternalServerError, err.Error()
	}
}
