// Package server wires the HTTP endpoints of the multireact app.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Routes holds the handlers mounted by the server. Nil handlers are not
// mounted.
type Routes struct {
	Events        http.Handler     // /slack/events
	Install       http.HandlerFunc // /slack/install
	OAuthRedirect http.HandlerFunc // /slack/oauth_redirect
	ImageDir      string           // served under /img/
	Ready         Pinger           // checked by /readyz
}

// Server is the HTTP front of the app.
type Server struct {
	http    *http.Server
	routes  Routes
	started time.Time
	logger  *slog.Logger
}

// New creates a server listening on addr.
func New(addr string, routes Routes, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{routes: routes, started: time.Now(), logger: logger}
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the request router.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	if s.routes.Events != nil {
		mux.Handle("/slack/events", s.routes.Events)
	}
	if s.routes.Install != nil {
		mux.HandleFunc("/slack/install", s.routes.Install)
	}
	if s.routes.OAuthRedirect != nil {
		mux.HandleFunc("/slack/oauth_redirect", s.routes.OAuthRedirect)
	}
	if s.routes.ImageDir != "" {
		mux.Handle("GET /img/", http.StripPrefix("/img/", http.FileServer(http.Dir(s.routes.ImageDir))))
	}
	mux.HandleFunc("GET /_ah/warmup", s.handleWarmup)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	return mux
}

// ListenAndServe serves until Shutdown is called. A clean shutdown returns
// nil.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.http.Addr, err)
	}
	return s.Serve(ln)
}

// Serve serves on ln until Shutdown is called.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("http server listening", "addr", ln.Addr().String())
	if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for active ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// handleWarmup answers App Engine warm-up requests.
func (s *Server) handleWarmup(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"status": "ok",
		"uptime": time.Since(s.started).Round(time.Second).String(),
	}
	code := http.StatusOK

	if s.routes.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.routes.Ready.Ping(ctx); err != nil {
			s.logger.Warn("readiness check failed", "error", err)
			status["status"] = "unavailable"
			code = http.StatusServiceUnavailable
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(status)
}
