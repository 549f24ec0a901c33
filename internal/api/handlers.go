package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"transcriptd/internal/progress"
	"transcriptd/internal/transcript"
)

type transcriptRequest struct {
	URL string `json:"url"`
}

type playlistRequest struct {
	URLs        []string `json:"urls"`
	Concurrency int      `json:"concurrency"`
}

type playlistResponse struct {
	JobID string                 `json:"job_id"`
	Batch transcript.BatchResult `json:"batch"`
}

// extractTranscript serves one synchronous extraction. The cache is consulted
// before admission; only misses compete for a queue slot.
func (s *Server) extractTranscript(w http.ResponseWriter, r *http.Request) {
	var req transcriptRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	target, err := transcript.ParseTarget(req.URL)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if cached, hit, cerr := s.store.Lookup(r.Context(), target.VideoID); cerr != nil {
		s.logger.Warn("cache lookup failed", zap.String("video_id", target.VideoID), zap.Error(cerr))
	} else if hit {
		writeJSON(w, http.StatusOK, cached)
		return
	}

	var result *transcript.Transcript
	err = s.queue.Submit(r.Context(), func(ctx context.Context) error {
		tr, exErr := s.extractor.Extract(ctx, req.URL)
		if exErr != nil {
			return exErr
		}
		result = tr
		return nil
	})
	if err != nil {
		status, msg := statusForError(err)
		writeError(w, status, msg)
		return
	}

	s.saveToCache(r.Context(), result)
	writeJSON(w, http.StatusOK, result)
}

// extractPlaylist serves a bounded fan-out over a playlist. The entire batch
// occupies a single admission slot; per-item concurrency is the fan-out's K.
func (s *Server) extractPlaylist(w http.ResponseWriter, r *http.Request) {
	var req playlistRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.URLs) == 0 {
		writeError(w, http.StatusBadRequest, "at least one URL required")
		return
	}
	if s.cfg.Batch.MaxItems > 0 && len(req.URLs) > s.cfg.Batch.MaxItems {
		writeError(w, http.StatusBadRequest, "too many items in one playlist request")
		return
	}

	jobID, err := s.idGen.NewID()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to generate job id")
		return
	}

	started := s.now()
	s.emitJob(progress.StageJobStart, jobID, 0, "")

	var batchResult transcript.BatchResult
	err = s.queue.Submit(r.Context(), func(ctx context.Context) error {
		batchResult = s.batch.Run(ctx, jobID, req.URLs, req.Concurrency, nil)
		return nil
	})
	if err != nil {
		s.emitJob(progress.StageJobError, jobID, time.Since(started), err.Error())
		status, msg := statusForError(err)
		writeError(w, status, msg)
		return
	}

	for i := range batchResult.Items {
		item := &batchResult.Items[i]
		if item.Status == transcript.ItemStatusSucceeded {
			s.saveToCache(r.Context(), item.Transcript)
		}
	}

	s.emitJob(progress.StageJobDone, jobID, time.Since(started), "")
	writeJSON(w, http.StatusOK, playlistResponse{JobID: jobID, Batch: batchResult})
}

// saveToCache writes through best-effort; a cache failure never fails the
// request that produced the transcript.
func (s *Server) saveToCache(ctx context.Context, tr *transcript.Transcript) {
	if tr == nil {
		return
	}
	// Detached from the request context so a client hang-up right after a
	// successful extraction does not lose the write.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.store.Save(saveCtx, tr); err != nil {
		s.logger.Warn("cache save failed", zap.String("video_id", tr.VideoID), zap.Error(err))
	}
}

func (s *Server) emitJob(stage progress.Stage, jobID string, dur time.Duration, note string) {
	if s.hub == nil {
		return
	}
	s.hub.Emit(progress.Event{
		JobID: jobID,
		TS:    s.now(),
		Stage: stage,
		Dur:   dur,
		Note:  note,
	})
}

func (s *Server) now() time.Time {
	if s.clock != nil {
		return s.clock.Now()
	}
	return time.Now().UTC()
}

func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return errors.New("empty body")
	}
	return json.NewDecoder(r.Body).Decode(dst)
}
