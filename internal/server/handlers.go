package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/katachi/internal/extract"
	"github.com/hyperjump/katachi/internal/indexer"
	"github.com/hyperjump/katachi/internal/models"
)

func (s *Server) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	k := 0
	if raw := r.URL.Query().Get("k"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.respondError(w, http.StatusBadRequest, "k must be a non-negative integer")
			return
		}
		k = n
	}
	body := http.MaxBytesReader(w, r.Body, maxUploadBytes)
	s.logger.Debug("retrieve request", zap.Int("k", k), zap.Int64("content_length", r.ContentLength))
	result, err := s.engine.RetrieveReader(r.Context(), body, k)
	if err != nil {
		var decodeErr *extract.DecodeError
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			s.respondError(w, http.StatusRequestEntityTooLarge, "image too large")
		case errors.As(err, &decodeErr), errors.Is(err, models.ErrKOutOfRange):
			s.respondError(w, http.StatusBadRequest, err.Error())
		default:
			s.logger.Error("retrieve failed", zap.Error(err))
			s.respondError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleListSplits(w http.ResponseWriter, r *http.Request) {
	statuses, diskBytes, err := s.indexer.Status(r.Context())
	if err != nil {
		s.logger.Error("split status failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"splits":           statuses,
		"disk_usage_bytes": diskBytes,
	})
}

func (s *Server) handleExtractSplit(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	s.logger.Debug("extract split request", zap.String("split", name))
	report, err := s.indexer.IndexSplitByName(r.Context(), name)
	if err != nil {
		if errors.Is(err, indexer.ErrUnknownSplit) {
			s.respondError(w, http.StatusNotFound, "split not found")
			return
		}
		s.logger.Error("extraction failed", zap.String("split", name), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, report)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		s.respondError(w, http.StatusNotImplemented, "ledger not enabled")
		return
	}
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	runs, err := s.ledger.ListRuns(r.Context(), limit)
	if err != nil {
		s.logger.Error("list runs failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if runs == nil {
		runs = []*models.ExtractionRun{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"runs": runs})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
