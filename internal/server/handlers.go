package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aristath/sentinel-signals/internal/domain"
)

const (
	defaultSignalLimit = 30
	maxSignalLimit     = 1000
)

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	response := map[string]interface{}{
		"status":  "healthy",
		"version": s.version,
		"service": "sentinel-signals",
	}

	if s.healthCheck != nil {
		if err := s.healthCheck(r.Context()); err != nil {
			s.log.Error().Err(err).Msg("Health check failed")
			status = http.StatusServiceUnavailable
			response["status"] = "unhealthy"
			response["error"] = err.Error()
		}
	}

	s.writeJSON(w, status, response)
}

// handleProcessSymbol handles POST /api/signals/{symbol}?mode=
func (s *Server) handleProcessSymbol(w http.ResponseWriter, r *http.Request) {
	symbol := domain.NormalizeSymbol(chi.URLParam(r, "symbol"))
	if symbol == "" {
		http.Error(w, "Symbol is required", http.StatusBadRequest)
		return
	}
	mode, err := domain.ParseMode(r.URL.Query().Get("mode"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result := s.service.Process(r.Context(), symbol, mode)

	status := http.StatusOK
	metadata := map[string]interface{}{
		"timestamp": time.Now().Format(time.RFC3339),
	}
	if !result.OK() {
		status = http.StatusInternalServerError
		metadata["error"] = result.ErrorMessage()
	}

	s.writeJSON(w, status, map[string]interface{}{
		"data":     result,
		"metadata": metadata,
	})
}

// handleLatestSignals handles GET /api/signals/{symbol}?limit=
func (s *Server) handleLatestSignals(w http.ResponseWriter, r *http.Request) {
	symbol := domain.NormalizeSymbol(chi.URLParam(r, "symbol"))
	if symbol == "" {
		http.Error(w, "Symbol is required", http.StatusBadRequest)
		return
	}

	limit := defaultSignalLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, maxSignalLimit)
	}

	rows, err := s.service.Latest(r.Context(), symbol, limit)
	if err != nil {
		s.log.Error().Err(err).Str("symbol", symbol).Msg("Failed to read signals")
		http.Error(w, "Failed to read signals", http.StatusInternalServerError)
		return
	}
	if rows == nil {
		rows = []domain.SignalRow{}
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": rows,
		"metadata": map[string]interface{}{
			"symbol":    symbol,
			"count":     len(rows),
			"limit":     limit,
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// handleStartRun handles POST /api/runs?mode=. The run continues in the
// background after the response; wait=true blocks and returns the summary.
func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	if s.runner == nil {
		http.Error(w, "Batch runs are not enabled", http.StatusNotImplemented)
		return
	}
	mode, err := domain.ParseMode(r.URL.Query().Get("mode"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	wait, _ := strconv.ParseBool(r.URL.Query().Get("wait"))

	if !s.runActive.CompareAndSwap(false, true) {
		http.Error(w, "A run is already in progress", http.StatusConflict)
		return
	}

	if wait {
		defer s.runActive.Store(false)
		summary, err := s.runner.Run(r.Context(), mode)
		if err != nil {
			s.log.Error().Err(err).Msg("Run failed")
			http.Error(w, "Run failed: "+err.Error(), http.StatusInternalServerError)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]interface{}{
			"data": summary,
			"metadata": map[string]interface{}{
				"timestamp": time.Now().Format(time.RFC3339),
			},
		})
		return
	}

	go s.runInBackground(mode)

	s.writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"data": map[string]interface{}{
			"mode":   mode,
			"status": "started",
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

func (s *Server) runInBackground(mode domain.Mode) {
	defer func() {
		s.runActive.Store(false)
		select {
		case s.runDone <- struct{}{}:
		default:
		}
	}()

	summary, err := s.runner.Run(s.runCtx, mode)
	if err != nil {
		if s.runCtx.Err() == nil {
			s.log.Error().Err(err).Str("mode", string(mode)).Msg("Background run failed")
		}
		return
	}
	s.log.Info().
		Str("run_id", summary.RunID).
		Str("mode", string(summary.Mode)).
		Int("ok", summary.OK).
		Int("failed", summary.Failed).
		Msg("Background run finished")
}

// handleJobs handles GET /api/jobs
func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	if s.jobs == nil {
		http.Error(w, "Scheduler is not running", http.StatusNotImplemented)
		return
	}

	jobs := s.jobs.Jobs()
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": jobs,
		"metadata": map[string]interface{}{
			"count":     len(jobs),
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
