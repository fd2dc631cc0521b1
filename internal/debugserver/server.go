// Package debugserver exposes the reconciled view over a small HTTP ops
// surface: health, a full engine-state snapshot, recent protocol
// violations, and live token counts. It is read-only; nothing here can
// mutate reconciliation state.
package debugserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/longrun-ai/dominds-sub008/internal/engine"
)

// ViolationRing keeps the most recent protocol violations. Safe for
// concurrent use: the event loop writes, HTTP handlers read.
type ViolationRing struct {
	mu   sync.Mutex
	buf  []engine.Violation
	next int
	full bool
}

// NewViolationRing creates a ring holding up to capacity violations.
func NewViolationRing(capacity int) *ViolationRing {
	if capacity <= 0 {
		capacity = 64
	}
	return &ViolationRing{buf: make([]engine.Violation, capacity)}
}

// Add records a violation, evicting the oldest when full.
func (r *ViolationRing) Add(v engine.Violation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf[r.next] = v
	r.next = (r.next + 1) % len(r.buf)
	if r.next == 0 {
		r.full = true
	}
}

// Recent returns the recorded violations, oldest first.
func (r *ViolationRing) Recent() []engine.Violation {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.full {
		return append([]engine.Violation(nil), r.buf[:r.next]...)
	}
	out := make([]engine.Violation, 0, len(r.buf))
	out = append(out, r.buf[r.next:]...)
	out = append(out, r.buf[:r.next]...)
	return out
}

// Options wires the server to the rest of the process. Snapshot must
// serialize through the event loop; the server calls it on demand.
type Options struct {
	Snapshot   func() engine.Snapshot
	Violations *ViolationRing
	Tokens     func() map[int]int
	ConnState  func() string
}

// Server is the debug HTTP server.
type Server struct {
	addr   string
	logger *slog.Logger
	opts   Options
	srv    *http.Server
}

// New creates a debug server listening on addr.
func New(addr string, logger *slog.Logger, opts Options) *Server {
	s := &Server{addr: addr, logger: logger, opts: opts}

	r := chi.NewRouter()
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "dialogview-debug")
	})

	r.Get("/healthz", s.handleHealth)
	r.Get("/state", s.handleState)
	r.Get("/violations", s.handleViolations)
	r.Get("/tokens", s.handleTokens)

	s.srv = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the underlying HTTP handler, for tests.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Start begins serving in the background.
func (s *Server) Start() {
	go func() {
		s.logger.Info("debug server listening", slog.String("addr", s.addr))
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("debug server error", slog.String("error", err.Error()))
		}
	}()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]string{"status": "ok"}
	if s.opts.ConnState != nil {
		resp["gateway"] = s.opts.ConnState()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if s.opts.Snapshot == nil {
		http.Error(w, "snapshot unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, s.opts.Snapshot())
}

func (s *Server) handleViolations(w http.ResponseWriter, r *http.Request) {
	if s.opts.Violations == nil {
		writeJSON(w, http.StatusOK, []engine.Violation{})
		return
	}
	writeJSON(w, http.StatusOK, s.opts.Violations.Recent())
}

func (s *Server) handleTokens(w http.ResponseWriter, r *http.Request) {
	if s.opts.Tokens == nil {
		writeJSON(w, http.StatusOK, map[int]int{})
		return
	}
	writeJSON(w, http.StatusOK, s.opts.Tokens())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Error("encode response", slog.String("error", err.Error()))
	}
}
