// Package server exposes the explorer core over HTTP. It is a thin transport:
// request decoding, status mapping, and pagination live here; all table and
// conversation semantics live in pkg/session and below.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/time/rate"

	"github.com/marbledata/explorer/pkg/metrics"
	"github.com/marbledata/explorer/pkg/session"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

// Server is the HTTP server for the explorer API.
type Server struct {
	router   *chi.Mux
	sessions *session.Manager
	limiter  *RateLimiter
	logger   *slog.Logger
	srv      *http.Server
}

// NewServer creates the API server and wires its routes.
func NewServer(addr string, sessions *session.Manager, logger *slog.Logger) *Server {
	s := &Server{
		router:   chi.NewRouter(),
		sessions: sessions,
		limiter:  NewRateLimiter(rate.Every(time.Minute/60), 10),
		logger:   logger,
	}

	s.setupRoutes()

	s.srv = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)
	s.router.Use(metrics.Middleware)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	s.router.Get("/healthz", s.handleHealthz)
	s.router.Get("/version", s.handleVersion)

	s.router.Route("/sessions", func(r chi.Router) {
		r.Post("/", s.handleCreateSession)
		r.Route("/{id}", func(r chi.Router) {
			r.Post("/table", s.handleLoadTable)
			r.With(RateLimitMiddleware(s.limiter)).Post("/command", s.handleCommand)
			r.Get("/data", s.handleData)
			r.Get("/profile", s.handleProfile)
			r.Get("/conversation", s.handleConversation)
			r.Post("/reset", s.handleReset)
			r.Delete("/", s.handleDeleteSession)
		})
	})
}

// Router returns the configured handler, used by tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"version": Version})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode JSON response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
