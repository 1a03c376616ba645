package api

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ptrus/mobile-pipeline/cache"
	"github.com/ptrus/mobile-pipeline/db"
)

const (
	defaultRunsLimit = 50
	maxRunsLimit     = 500
)

// requireToken rejects requests without the configured bearer token. An empty token disables auth.
func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Token == "" {
			next.ServeHTTP(w, r)
			return
		}
		got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(s.cfg.Token)) != 1 {
			w.Header().Set("WWW-Authenticate", "Bearer")
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// handleLatest handles GET /cache?prefix= and returns the newest key with the prefix.
func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("prefix")
	if prefix == "" {
		http.Error(w, "Missing prefix", http.StatusBadRequest)
		return
	}

	key, err := s.backend.Latest(r.Context(), prefix)
	if errors.Is(err, cache.ErrNotFound) {
		http.Error(w, "No matching cache entry", http.StatusNotFound)
		return
	}
	if err != nil {
		s.logger.Error("failed to look up cache prefix", "prefix", prefix, "error", err)
		http.Error(w, "Failed to look up cache", http.StatusInternalServerError)
		return
	}

	writeJSON(w, cache.LatestResponse{Key: key})
}

// handleGetArchive streams the archive stored under key.
func (s *Server) handleGetArchive(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	rc, err := s.backend.Get(r.Context(), key)
	if errors.Is(err, cache.ErrNotFound) {
		http.Error(w, "Cache entry not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.logger.Error("failed to read cache entry", "key", key, "error", err)
		http.Error(w, "Failed to read cache entry", http.StatusInternalServerError)
		return
	}
	defer func() {
		_ = rc.Close()
	}()

	w.Header().Set("Content-Type", "application/gzip")
	if _, err := io.Copy(w, rc); err != nil {
		s.logger.Warn("failed to stream cache entry", "key", key, "error", err)
	}
}

// handleHeadArchive reports whether key exists without sending the archive.
func (s *Server) handleHeadArchive(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	rc, err := s.backend.Get(r.Context(), key)
	switch {
	case errors.Is(err, cache.ErrNotFound):
		w.WriteHeader(http.StatusNotFound)
	case err != nil:
		s.logger.Error("failed to read cache entry", "key", key, "error", err)
		w.WriteHeader(http.StatusInternalServerError)
	default:
		_ = rc.Close()
		w.Header().Set("Content-Type", "application/gzip")
		w.WriteHeader(http.StatusOK)
	}
}

// handlePutArchive stores the request body under key. Entries are immutable.
func (s *Server) handlePutArchive(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	err := s.backend.Put(r.Context(), key, r.Body, r.ContentLength)
	if errors.Is(err, cache.ErrKeyExists) {
		http.Error(w, "Cache entry already exists", http.StatusConflict)
		return
	}
	if err != nil {
		s.logger.Error("failed to store cache entry", "key", key, "error", err)
		http.Error(w, "Failed to store cache entry", http.StatusInternalServerError)
		return
	}

	s.logger.Info("cache entry stored", "key", key, "size", r.ContentLength)
	w.WriteHeader(http.StatusCreated)
}

// handleListRuns returns the most recent pipeline runs.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		http.Error(w, "Run history not configured", http.StatusServiceUnavailable)
		return
	}

	limit := defaultRunsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = min(n, maxRunsLimit)
	}

	runs, err := s.db.ListRuns(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to list runs", "error", err)
		http.Error(w, "Failed to load runs", http.StatusInternalServerError)
		return
	}

	writeJSON(w, runs)
}

// handleGetRun returns a single run.
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		http.Error(w, "Run history not configured", http.StatusServiceUnavailable)
		return
	}

	id := chi.URLParam(r, "id")
	run, err := s.db.GetRun(r.Context(), id)
	if errors.Is(err, db.ErrNotFound) {
		http.Error(w, "Run not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.logger.Error("failed to get run", "run_id", id, "error", err)
		http.Error(w, "Failed to load run", http.StatusInternalServerError)
		return
	}

	writeJSON(w, run)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	_ = json.NewEncoder(w).Encode(v)
}
