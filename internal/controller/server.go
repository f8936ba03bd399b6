// Package controller contains the controller-specific logic for the HTTP API.
package controller

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"labelplane/internal/controller/handlers"
	"labelplane/internal/controller/middleware"
	"labelplane/internal/imposer"
)

// Options configures the HTTP server.
type Options struct {
	Addr string

	// SHA-256 hash of the operator API key. Empty disables auth.
	APIKeyHash string

	// Shared secret the renderer presents on completion callbacks.
	CallbackSecret string

	// Global request rate limit. Zero disables it.
	RateLimitRPS   float64
	RateLimitBurst int

	// MetricsHandler serves GET /metrics when set.
	MetricsHandler http.Handler
}

// Server is the HTTP server for the controller API.
type Server struct {
	httpServer *http.Server
}

// New creates a new controller server.
func New(opts Options, store handlers.StoreFactory, policy imposer.Policy, newRunner func(*imposer.Tracker) handlers.BatchRunner, logg *slog.Logger) *Server {
	h := handlers.New(store, policy, newRunner, logg)
	authMW := middleware.Auth(opts.APIKeyHash)
	limitMW := middleware.RateLimit(opts.RateLimitRPS, opts.RateLimitBurst)

	protect := func(fn http.HandlerFunc) http.Handler {
		return limitMW(authMW(fn))
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
	if opts.MetricsHandler != nil {
		mux.Handle("GET /metrics", opts.MetricsHandler)
	}

	// Operator apis
	mux.Handle("POST /layouts/validate", protect(h.ValidateLayout))
	mux.Handle("GET /orders/{id}/runs", protect(h.ListRuns))
	mux.Handle("GET /runs/{id}", protect(h.GetRun))
	mux.Handle("PUT /runs/{id}/override", protect(h.SetOverride))
	mux.Handle("GET /runs/{id}/split", protect(h.GetSplitOptions))
	mux.Handle("PUT /runs/{id}/split", protect(h.ChooseSplit))
	mux.Handle("POST /orders/{id}/impose", protect(h.StartImpose))
	mux.Handle("GET /orders/{id}/impose/progress", protect(h.GetProgress))

	// Internal endpoints
	// Called by the renderer when an accepted imposition finishes.
	// These should run on a separate port or strict network rules.
	internalMW := middleware.RequireInternalAuth(opts.CallbackSecret)
	mux.Handle("POST /internal/impositions/{run_id}/complete",
		internalMW(http.HandlerFunc(h.ImpositionComplete)))

	return &Server{
		httpServer: &http.Server{
			Addr:         opts.Addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
	}
}

// Run starts the HTTP server. It blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		shutDownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		return s.Shutdown(shutDownCtx)
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
