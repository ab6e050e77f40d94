package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/manzoorua/formsedge-sub001/internal/auth"
	"github.com/manzoorua/formsedge-sub001/internal/config"
	"github.com/manzoorua/formsedge-sub001/internal/dispatch"
	"github.com/manzoorua/formsedge-sub001/internal/payload"
)

// PayloadBuilder materializes canonical payloads for the read endpoints.
type PayloadBuilder interface {
	Build(ctx context.Context, responseID string) (*payload.Payload, error)
}

// ResponseDispatcher triggers webhook fan-out for a submitted response.
type ResponseDispatcher interface {
	Dispatch(ctx context.Context, formID, responseID string) (dispatch.Summary, error)
}

// DeliveryLister reads the delivery audit log.
type DeliveryLister interface {
	List(ctx context.Context, filter dispatch.ListFilter) ([]dispatch.Delivery, error)
}

// Server is the query gateway HTTP server.
type Server struct {
	cfg        config.APIConfig
	responses  *ResponseStore
	builder    PayloadBuilder
	dispatcher ResponseDispatcher
	deliveries DeliveryLister
	events     *EventHub
	logger     *slog.Logger
	server     *http.Server
	startedAt  time.Time
}

// New creates a query gateway server. events may be shared with the
// dispatcher so delivery outcomes stream out over /events.
func New(cfg config.APIConfig, responses *ResponseStore, builder PayloadBuilder, dispatcher ResponseDispatcher, deliveries DeliveryLister, events *EventHub, logger *slog.Logger) *Server {
	if cfg.DefaultPageSize <= 0 {
		cfg.DefaultPageSize = 50
	}
	if cfg.MaxPageSize <= 0 {
		cfg.MaxPageSize = 200
	}
	if events == nil {
		events = NewEventHub(256)
	}
	return &Server{
		cfg:        cfg,
		responses:  responses,
		builder:    builder,
		dispatcher: dispatcher,
		deliveries: deliveries,
		events:     events,
		logger:     logger,
		startedAt:  time.Now(),
	}
}

// Events returns the hub so the dispatcher can publish into it.
func (s *Server) Events() *EventHub {
	return s.events
}

// Start runs the HTTP server until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.cfg.Listen,
		Handler:      s.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // /events streams indefinitely
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("api server starting", "listen", s.cfg.Listen)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("api server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// Routes builds the router. Exposed for httptest.
func (s *Server) Routes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	if len(s.cfg.CORS.AllowedOrigins) > 0 {
		c := cors.New(cors.Options{
			AllowedOrigins: s.cfg.CORS.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: append([]string{"Authorization", "Content-Type"}, s.cfg.CORS.AllowedHeaders...),
		})
		r.Use(c.Handler)
	}

	// Unauthenticated ops endpoint.
	r.Get("/healthz", s.handleHealthz)

	// Protected API.
	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.With(s.requireScopes("responses:ro")).Get("/responses/{responseID}", s.handleGetResponse)
		r.With(s.requireScopes("responses:ro")).Get("/responses", s.handleListResponses)
		r.With(s.requireScopes("deliveries:ro")).Get("/deliveries", s.handleListDeliveries)
		r.With(s.requireScopes("dispatch:rw")).Post("/dispatch", s.handleDispatch)
		r.With(s.requireScopes("events:ro")).Get("/events", s.handleEvents)
	})

	return r
}

// authMiddleware resolves the bearer token to a principal, or 401.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := auth.ExtractBearerToken(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, CodeUnauthorized, err.Error())
			return
		}

		tokens := make([]auth.TokenConfig, 0, len(s.cfg.Auth.Tokens))
		for _, t := range s.cfg.Auth.Tokens {
			tokens = append(tokens, auth.TokenConfig{Token: t.Token, Scopes: t.Scopes, Forms: t.Forms})
		}
		principal, ok := auth.Authenticate(token, s.cfg.Auth.APIKey, tokens)
		if !ok {
			writeError(w, http.StatusUnauthorized, CodeUnauthorized, "invalid API key")
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), principal)))
	})
}

// requireScopes rejects authenticated principals lacking all of the scopes.
// The "*" scope always passes.
func (s *Server) requireScopes(scopes ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, _ := auth.PrincipalFromContext(r.Context())
			if !auth.HasAnyScope(principal, scopes...) {
				writeError(w, http.StatusForbidden, CodeForbidden, "insufficient scope")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
