// Package controller contains the HTTP control API for fiscalsync.
package controller

import (
	"context"
	"net/http"
	"time"

	"fiscalsync/internal/controller/handlers"
	"fiscalsync/internal/controller/middleware"
)

// Server is the HTTP server for the control API.
type Server struct {
	httpServer *http.Server
}

// New creates a new control API server.
func New(addr string, store handlers.StoreFactory, eng handlers.Syncer, metricsHandler http.Handler) *Server {
	h := handlers.New(store, eng)
	authMW := middleware.AuthMiddleware(store)
	rateMW := middleware.RateLimitMiddleware()

	authed := func(hf http.HandlerFunc) http.Handler {
		return authMW(rateMW(hf))
	}

	mux := http.NewServeMux()

	// Bootstrap and probes
	mux.HandleFunc("POST /tenants", h.CreateTenant)
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
	if metricsHandler != nil {
		mux.Handle("GET /metrics", metricsHandler)
	}

	// Authenticated tenant APIs
	mux.Handle("POST /clients", authed(h.CreateClient))
	mux.Handle("PUT /clients/{id}/certificate", authed(h.PutCertificate))
	mux.Handle("POST /clients/{id}/sync", authed(h.StartSync))
	mux.Handle("GET /jobs", authed(h.ListJobs))
	mux.Handle("GET /jobs/{id}", authed(h.GetJob))
	mux.Handle("POST /jobs/{id}/cancel", authed(h.CancelJob))
	mux.Handle("POST /jobs/{id}/resume", authed(h.ResumeJob))
	mux.Handle("DELETE /jobs/terminal", authed(h.ClearTerminalJobs))
	mux.Handle("POST /tenants/cancel-all", authed(h.CancelAll))
	mux.Handle("DELETE /tenants/documents", authed(h.PurgeDocuments))

	return &Server{
		httpServer: &http.Server{
			Addr:         addr,
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
