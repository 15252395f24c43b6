// Package api serves stored match reports, accepts new logs and exposes the
// live feed and metrics over HTTP.
package api

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"

	"replay-analyzer/internal/analyzer"
	"replay-analyzer/internal/db"
	"replay-analyzer/internal/matchlog"

	json "github.com/goccy/go-json"
)

// maxIngestBytes bounds an uploaded log
const maxIngestBytes = 256 << 20

// Store is the read side used by the API
type Store interface {
	ListMatches(ctx context.Context, limit int) ([]db.Match, error)
	GetTimeline(ctx context.Context, matchID string) (*db.MatchDetail, error)
	MatchCount(ctx context.Context) (int, error)
}

// Ingester analyzes an uploaded log and delivers the report
type Ingester interface {
	Ingest(ctx context.Context, matchID string, data []byte) (*analyzer.Report, error)
}

// Server holds the HTTP dependencies
type Server struct {
	store    Store
	ingester Ingester
	feed     http.Handler
	metrics  http.Handler
}

// NewServer wires the handlers. feed and metrics may be nil.
func NewServer(store Store, ingester Ingester, feed, metrics http.Handler) *Server {
	return &Server{store: store, ingester: ingester, feed: feed, metrics: metrics}
}

// Routes returns the API mux
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("GET /api/matches", s.handleMatches)
	mux.HandleFunc("GET /api/match/{id}", s.handleMatchDetail)
	mux.HandleFunc("POST /api/ingest", s.handleIngest)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	if s.feed != nil {
		mux.Handle("GET /ws", s.feed)
	}
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[API] encode response: %v", err)
	}
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	count, err := s.store.MatchCount(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"matches": count})
}

func (s *Server) handleMatches(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			http.Error(w, "limit must be between 1 and 500", http.StatusBadRequest)
			return
		}
		limit = n
	}

	matches, err := s.store.ListMatches(r.Context(), limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if matches == nil {
		matches = []db.Match{}
	}
	writeJSON(w, http.StatusOK, matches)
}

func (s *Server) handleMatchDetail(w http.ResponseWriter, r *http.Request) {
	matchID := r.PathValue("id")
	if matchID == "" {
		http.Error(w, "Match ID required", http.StatusBadRequest)
		return
	}

	match, err := s.store.GetTimeline(r.Context(), matchID)
	if errors.Is(err, db.ErrNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, match)
}

// handleIngest accepts a raw match log; ?match= names the match
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	matchID := r.URL.Query().Get("match")
	if matchID == "" {
		http.Error(w, "match query param required", http.StatusBadRequest)
		return
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxIngestBytes))
	if err != nil {
		http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
		return
	}

	report, err := s.ingester.Ingest(r.Context(), matchID, data)
	if err != nil {
		status := http.StatusInternalServerError
		if badLog(err) {
			status = http.StatusUnprocessableEntity
		}
		http.Error(w, err.Error(), status)
		return
	}
	writeJSON(w, http.StatusCreated, report)
}

// badLog reports whether err is caused by the uploaded log rather than the server
func badLog(err error) bool {
	var stageErr *matchlog.StageError
	return errors.Is(err, matchlog.ErrInvalidJSON) ||
		errors.Is(err, matchlog.ErrEmptyLog) ||
		errors.As(err, &stageErr)
}
