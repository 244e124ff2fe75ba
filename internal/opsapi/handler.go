// Package opsapi is the operator-facing read surface. It binds separately
// from the gateway (loopback by default) so captured data is never served
// on the attacker-facing port, and it only ever reads the store.
package opsapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"trapgate/internal/schema"
	"trapgate/internal/store"
)

const (
	defaultLimit = 50
	maxLimit     = 500

	// streamPollInterval paces the SSE feed. The store has no notification
	// hook; polling the window keeps this surface decoupled from the
	// recording path.
	streamPollInterval = 500 * time.Millisecond
)

// Server serves the operator read API.
type Server struct {
	store  *store.Store
	logger *slog.Logger

	httpServer *http.Server
}

// NewServer creates the operator API server.
func NewServer(st *store.Store, host string, port int, logger *slog.Logger) *Server {
	s := &Server{
		store:  st,
		logger: logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/records", s.handleRecords)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("GET /api/stream", s.handleStream)

	s.httpServer = &http.Server{
		Addr:        fmt.Sprintf("%s:%d", host, port),
		Handler:     mux,
		ReadTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the route mux. Exposed for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins serving. Unlike the gateway, a bind failure here is not
// fatal to the process; the caller decides.
func (s *Server) Start() error {
	s.logger.Info("operator api listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("operator api listen failed: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", defaultLimit)
	if limit > maxLimit {
		limit = maxLimit
	}
	offset := queryInt(r, "offset", 0)

	var records []*schema.Record
	if filter := r.URL.Query().Get("filter"); filter != "" {
		records = s.store.ByValue(filter, limit)
	} else {
		records = s.store.Recent(limit, offset)
	}
	if records == nil {
		records = []*schema.Record{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"records": records,
		"count":   len(records),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Stats())
}

// handleStream pushes newly recorded attacks as server-sent events. Record
// IDs are ordered by arrival, so tracking the newest seen ID is enough to
// detect what is new between polls.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// Start from the current newest record; only new captures stream.
	var lastID string
	if recent := s.store.Recent(1, 0); len(recent) > 0 {
		lastID = recent[0].ID
	}

	ticker := time.NewTicker(streamPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}

		batch := s.newSince(lastID)
		for _, rec := range batch {
			data, err := json.Marshal(rec)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			lastID = rec.ID
		}
		if len(batch) > 0 {
			flusher.Flush()
		}
	}
}

// newSince returns records newer than lastID in arrival order. It pages
// backwards through the window so a burst larger than one page between
// polls is still delivered in full; only records already evicted from the
// window are lost to the stream.
func (s *Server) newSince(lastID string) []*schema.Record {
	var newer []*schema.Record
	for offset := 0; ; offset += maxLimit {
		page := s.store.Recent(maxLimit, offset)
		if len(page) == 0 {
			break
		}
		caughtUp := false
		for _, rec := range page {
			if rec.ID <= lastID {
				caughtUp = true
				break
			}
			newer = append(newer, rec)
		}
		if caughtUp || len(page) < maxLimit {
			break
		}
	}
	// Pages walk newest-first; flip into arrival order.
	for i, j := 0, len(newer)-1; i < j; i, j = i+1, j-1 {
		newer[i], newer[j] = newer[j], newer[i]
	}
	return newer
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return def
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
