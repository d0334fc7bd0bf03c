// Package httpserver is the relay's HTTP front: probes, the browser ICE
// configuration, room occupancy and the static page. The signaling socket and
// /metrics are mounted onto Mux by the caller.
package httpserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/wilsonzlin/aero/proxy/callroom-relay/internal/config"
	"github.com/wilsonzlin/aero/proxy/callroom-relay/internal/origin"
	"github.com/wilsonzlin/aero/proxy/callroom-relay/internal/room"
)

type BuildInfo struct {
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
}

type Server struct {
	log   *slog.Logger
	cfg   config.Config
	build BuildInfo

	origins origin.Policy
	ready   atomic.Bool
	room    atomic.Pointer[room.Store]

	mux *http.ServeMux
	srv *http.Server
}

func New(cfg config.Config, logger *slog.Logger, build BuildInfo) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		log:     logger,
		cfg:     cfg,
		build:   build,
		origins: origin.NewPolicy(cfg.AllowedOrigins),
		mux:     http.NewServeMux(),
	}

	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.HandleFunc("GET /readyz", s.handleReadyz)
	s.mux.HandleFunc("GET /version", s.handleVersion)
	for path, h := range map[string]http.HandlerFunc{
		"/webrtc/ice": s.handleICE,
		"/room":       s.handleRoom,
	} {
		route := s.browserRoute(h)
		s.mux.Handle("GET "+path, route)
		s.mux.Handle("OPTIONS "+path, route)
	}

	s.srv = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           withRecovery(logger, withRequestID(withAccessLog(logger, s.mux))),
		ReadHeaderTimeout: 5 * time.Second,
		// No read/write timeouts: hijacked signaling connections outlive them.
	}
	return s
}

// Mux is for registering routes during startup, before Serve.
func (s *Server) Mux() *http.ServeMux {
	return s.mux
}

// SetRoom exposes the room's occupancy on GET /room.
func (s *Server) SetRoom(store *room.Store) {
	s.room.Store(store)
}

// Serve marks the server ready and blocks until it stops.
func (s *Server) Serve(l net.Listener) error {
	s.ready.Store(true)
	s.log.Info("http server serving", "addr", l.Addr().String())
	return s.srv.Serve(l)
}

// Shutdown flips /readyz to 503 and drains in-flight HTTP requests. Hijacked
// WebSocket connections are not covered.
func (s *Server) Shutdown(ctx context.Context) error {
	s.ready.Store(false)
	return s.srv.Shutdown(ctx)
}

func (s *Server) Close() error {
	s.ready.Store(false)
	return s.srv.Close()
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"ready": false}
	switch err := s.cfg.ICEConfigError(); {
	case !s.ready.Load():
	case err != nil:
		body["error"] = err.Error()
	default:
		WriteJSON(w, http.StatusOK, map[string]any{"ready": true})
		return
	}
	WriteJSON(w, http.StatusServiceUnavailable, body)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, s.build)
}

// handleICE serves the RTCConfiguration.iceServers list for browsers.
func (s *Server) handleICE(w http.ResponseWriter, r *http.Request) {
	if err := s.cfg.ICEConfigError(); err != nil {
		WriteJSON(w, http.StatusServiceUnavailable, map[string]any{"error": err.Error()})
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"iceServers": s.cfg.ICEServers})
}

func (s *Server) handleRoom(w http.ResponseWriter, r *http.Request) {
	store := s.room.Load()
	if store == nil {
		WriteJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "room not configured"})
		return
	}
	WriteJSON(w, http.StatusOK, store.Status())
}

// StaticHandler serves the browser client from dir. A missing or empty dir
// yields 404 for every request.
func StaticHandler(dir string) http.Handler {
	if dir == "" {
		return http.NotFoundHandler()
	}
	if st, err := os.Stat(dir); err != nil || !st.IsDir() {
		return http.NotFoundHandler()
	}
	return http.FileServer(http.Dir(dir))
}

// WriteJSON writes v as the response body with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
