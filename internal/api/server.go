package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/rendis/flowcanvas/internal/diagram"
	"github.com/rendis/flowcanvas/internal/expressions"
	"github.com/rendis/flowcanvas/internal/logging"
	"github.com/rendis/flowcanvas/internal/store"
	"github.com/rendis/flowcanvas/internal/streaming"
	"github.com/rendis/flowcanvas/internal/validation"
)

// Deps holds the collaborators of the HTTP API.
type Deps struct {
	Store       store.ElementStore
	Hub         streaming.EventHub
	Converter   *diagram.Converter
	Validator   validation.Validator
	Expressions *expressions.Registry
	Logger      *slog.Logger
}

// Server serves the canvas REST API and its event stream.
type Server struct {
	deps Deps
}

// NewServer creates a Server. Nil optional dependencies get defaults; Store,
// Hub and Validator are required.
func NewServer(deps Deps) (*Server, error) {
	if deps.Store == nil || deps.Hub == nil || deps.Validator == nil {
		return nil, errors.New("api: store, hub and validator are required")
	}
	if deps.Logger == nil {
		deps.Logger = logging.Discard()
	}
	if deps.Converter == nil {
		deps.Converter = diagram.NewConverter(diagram.WithLogger(deps.Logger))
	}
	if deps.Expressions == nil {
		reg, err := expressions.NewRegistry()
		if err != nil {
			return nil, err
		}
		deps.Expressions = reg
	}
	return &Server{deps: deps}, nil
}

// Handler returns the HTTP handler for the API routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/sync/status", s.handleSyncStatus)

		r.Route("/elements", func(r chi.Router) {
			r.Get("/", s.handleListElements)
			r.Post("/", s.handleCreateElement)
			r.Get("/search", s.handleSearchElements)
			r.Post("/batch", s.handleBatchCreate)
			r.Post("/sync", s.handleSync)
			r.Get("/{id}", s.handleGetElement)
			r.Put("/{id}", s.handleUpdateElement)
			r.Delete("/{id}", s.handleDeleteElement)
		})

		r.Post("/convert", s.handleConvert)
		r.Get("/events", s.handleEvents)
	})

	return r
}

// requestLogger tags the request context with the chi request id and logs
// each request when it completes.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := logging.WithRequestID(r.Context(), middleware.GetReqID(r.Context()))
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r.WithContext(ctx))

		s.deps.Logger.InfoContext(ctx, "http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Int("bytes", ww.BytesWritten()),
			slog.Duration("elapsed", time.Since(start)),
		)
	})
}

// ListenAndServe serves the API on addr until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.deps.Logger.Info("api listening", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}
