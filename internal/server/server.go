// Package server provides the HTTP server for spotter.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ayusman/spotter/internal/app"
	"github.com/ayusman/spotter/internal/monitoring"
	"github.com/ayusman/spotter/internal/plugin"
	"github.com/ayusman/spotter/internal/server/api"
	"github.com/ayusman/spotter/internal/store"
)

// Config holds the server configuration.
type Config struct {
	App       *app.App
	Store     *store.Store
	Plugins   *plugin.Manager
	StaticDir string
	// AccessLog enables chi's request logger.
	AccessLog bool
}

// Server represents the HTTP server for the spotter application.
type Server struct {
	config Config
	router chi.Router
	start  time.Time
	http   *http.Server
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	s := &Server{
		config: config,
		router: chi.NewRouter(),
		start:  time.Now(),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	r := s.router
	if s.config.AccessLog {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)

	r.Get("/api/health", s.handleHealth)

	if s.config.App != nil {
		sessions := api.NewSessionHandler(s.config.App, s.config.Store)
		stream := NewStreamHandler(s.config.App)

		r.Get("/api/exercises", sessions.Exercises)
		r.Route("/api/sessions", func(r chi.Router) {
			r.Get("/", sessions.List)
			r.Post("/", sessions.Start)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", sessions.Get)
				r.Delete("/", sessions.Delete)
				r.Get("/live", sessions.Live)
				r.Post("/frames", sessions.Frame)
				r.Post("/reset", sessions.Reset)
				r.Post("/stop", sessions.Stop)
				r.Get("/stream", stream.ServeHTTP)
			})
		})
	}

	if s.config.Store != nil {
		hooks := api.NewHookHandler(s.config.Store, s.config.Plugins)

		r.Get("/api/plugins", hooks.Plugins)
		r.Route("/api/hooks", func(r chi.Router) {
			r.Get("/", hooks.List)
			r.Post("/", hooks.Create)
			r.Get("/{id}", hooks.Get)
			r.Patch("/{id}", hooks.Update)
			r.Delete("/{id}", hooks.Delete)
		})
	}

	// Serve static files if StaticDir is configured
	if s.config.StaticDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(s.config.StaticDir)))
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.start).String(),
	}
	if s.config.App != nil {
		response["live_sessions"] = len(s.config.App.Active())
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}

// ListenAndServe starts the HTTP server on the given address and blocks
// until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		monitoring.Logf("Listening on %s", addr)
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
