package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/La100/vibeplanner-sub001/common/version"
)

// HealthServer exposes /health, /status, and any mounted API routes.
type HealthServer struct {
	addr      string
	sessions  statusProvider
	startedAt time.Time
	server    *http.Server
	router    chi.Router
}

// statusProvider is the minimal interface the health server needs from the
// engine.
type statusProvider interface {
	Len() int
}

// healthResponse is returned by GET /health.
type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Commit  string `json:"commit"`
}

// statusResponse is returned by GET /status.
type statusResponse struct {
	Status       string    `json:"status"`
	Version      string    `json:"version"`
	Commit       string    `json:"commit"`
	BuildTime    string    `json:"build_time"`
	StartedAt    time.Time `json:"started_at"`
	UptimeSecs   float64   `json:"uptime_seconds"`
	OpenSessions int       `json:"open_sessions"`
}

// NewHealthServer creates and configures the HTTP server (does not start it).
func NewHealthServer(addr string, sp statusProvider) *HealthServer {
	r := chi.NewRouter()
	hs := &HealthServer{
		addr:      addr,
		sessions:  sp,
		startedAt: time.Now(),
		router:    r,
	}
	r.Get("/health", hs.handleHealth)
	r.Get("/status", hs.handleStatus)
	return hs
}

// ServeHTTP implements http.Handler so the server can be tested without a
// live network listener.
func (h *HealthServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// Mount attaches handler under pattern. Call this before Start.
func (h *HealthServer) Mount(pattern string, handler http.Handler) {
	h.router.Mount(pattern, handler)
}

// Start begins listening in the background. Blocks until the listener is
// established so the caller knows the port is open before returning.
func (h *HealthServer) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", h.addr)
	if err != nil {
		return fmt.Errorf("http server: listen %s: %w", h.addr, err)
	}

	h.server = &http.Server{
		Handler:      h,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("http server listening", "addr", ln.Addr().String())
		if err := h.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("http server stopped", "err", err)
		}
	}()

	go func() {
		<-ctx.Done()
		h.Stop()
	}()

	return nil
}

// Stop shuts down the HTTP server.
func (h *HealthServer) Stop() {
	if h.server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.server.Shutdown(ctx); err != nil {
		slog.Warn("http server shutdown error", "err", err)
	}
}

func (h *HealthServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:  "ok",
		Version: version.Version,
		Commit:  version.Commit(),
	})
}

func (h *HealthServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	open := 0
	if h.sessions != nil {
		open = h.sessions.Len()
	}
	writeJSON(w, http.StatusOK, statusResponse{
		Status:       "ok",
		Version:      version.Version,
		Commit:       version.Commit(),
		BuildTime:    version.BuildTime,
		StartedAt:    h.startedAt,
		UptimeSecs:   time.Since(h.startedAt).Seconds(),
		OpenSessions: open,
	})
}

// writeJSON serialises v as JSON and writes it to w with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("health: failed to encode JSON response", "err", err)
	}
}
