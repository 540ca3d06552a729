// Package server is the HTTP surface: upload gateway, job status and result
// endpoints, operator retry/cancel, export and the websocket event stream.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"resume-insights/internal/common"
	"resume-insights/internal/export"
	"resume-insights/internal/queue"
	"resume-insights/internal/repository"
	"resume-insights/internal/ws"
)

// Server holds the handler dependencies.
type Server struct {
	store    repository.JobStore
	broker   queue.Broker
	hub      *ws.Hub
	exporter *export.Service
	uploads  common.UploadsConfig
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// New creates a Server.
func New(store repository.JobStore, broker queue.Broker, hub *ws.Hub, exporter *export.Service, uploads common.UploadsConfig, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		store:    store,
		broker:   broker,
		hub:      hub,
		exporter: exporter,
		uploads:  uploads,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

// Router builds the chi router with the full API surface.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(120 * time.Second))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/events", s.handleEvents)

		r.Route("/resumes", func(r chi.Router) {
			r.Post("/upload", s.handleUpload)
			r.Get("/export", s.handleExport)
			r.Get("/{id}/status", s.handleStatus)
			r.Get("/{id}/analytics", s.handleAnalytics)
			r.Post("/{id}/retry/{stage}", s.handleRetry)
			r.Get("/{id}", s.handleResult)
			r.Delete("/{id}", s.handleDelete)
		})
	})
	return r
}

// ListenAndServe runs the HTTP server until ctx is cancelled, then drains
// in-flight requests.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
