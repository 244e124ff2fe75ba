// Package gateway serves the attacker-facing surface: the emulated HTTP API
// and the WebSocket control protocol, multiplexed on one listening port.
// Every inbound request is recorded before it is answered; the responses are
// fixed or template-filled decoy shapes and never trigger real work.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"trapgate/internal/profile"
	"trapgate/internal/store"
)

// Server is the attacker-facing HTTP/WebSocket server.
type Server struct {
	profile   *profile.Profile
	store     *store.Store
	logger    *slog.Logger
	startTime time.Time

	maxBodyBytes int64
	upgrader     websocket.Upgrader

	httpServer *http.Server
}

// Options holds gateway server settings.
type Options struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	MaxBodyBytes int64
}

// NewServer creates a gateway server bound to the given identity and store.
func NewServer(p *profile.Profile, st *store.Store, opts Options, logger *slog.Logger) *Server {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1 << 20
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 30 * time.Second
	}

	s := &Server{
		profile:      p,
		store:        st,
		logger:       logger,
		startTime:    time.Now(),
		maxBodyBytes: opts.MaxBodyBytes,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The decoy accepts any origin; rejecting browsers would
			// reveal it is not the real gateway.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	s.httpServer = &http.Server{
		Addr:        fmt.Sprintf("%s:%d", opts.Host, opts.Port),
		Handler:     s.Handler(),
		ReadTimeout: opts.ReadTimeout,
		// No WriteTimeout: SSE streams and WebSocket sessions are
		// long-lived on purpose.
	}

	return s
}

// Handler returns the full middleware-wrapped handler. Exposed for tests.
func (s *Server) Handler() http.Handler {
	var h http.Handler = http.HandlerFunc(s.route)
	h = s.decoyHeadersMiddleware(h)
	h = s.recoveryMiddleware(h)
	return h
}

// Start begins serving. A bind failure here is fatal to the process: a
// decoy with no attacker-visible surface is worse than no decoy.
func (s *Server) Start() error {
	s.logger.Info("gateway listening",
		"addr", s.httpServer.Addr,
		"identity", s.profile.Name,
		"banner", s.profile.ServerBanner,
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("gateway listen failed: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server. Open WebSocket sessions are
// closed by their own lifecycle when the connections drop.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
