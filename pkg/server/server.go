// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kadirpekel/convograph/pkg/auth"
	"github.com/kadirpekel/convograph/pkg/config"
	"github.com/kadirpekel/convograph/pkg/engine"
	"github.com/kadirpekel/convograph/pkg/observability"
)

// Server is the convograph HTTP API.
type Server struct {
	cfg       *config.ServerConfig
	service   *engine.Service
	obs       *observability.Manager
	validator auth.TokenValidator
	server    *http.Server
}

// Option configures the server.
type Option func(*Server)

// WithObservability adds request tracing and metrics plus the /metrics and
// /debug/spans endpoints.
func WithObservability(obs *observability.Manager) Option {
	return func(s *Server) { s.obs = obs }
}

// WithAuthValidator requires a bearer token on every path not excluded by
// the auth config.
func WithAuthValidator(v auth.TokenValidator) Option {
	return func(s *Server) { s.validator = v }
}

func New(cfg *config.ServerConfig, service *engine.Service, opts ...Option) *Server {
	cfg.SetDefaults()
	s := &Server{cfg: cfg, service: service}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler builds the routed handler with its middleware chain.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(loggingMiddleware)
	if s.obs != nil {
		r.Use(observability.HTTPMiddleware(s.obs.Tracer(), s.obs.Metrics()))
	}
	r.Use(s.corsMiddleware)
	if s.validator != nil {
		excluded := s.excludedPaths()
		r.Use(auth.Middleware(s.validator, excluded))
		slog.Info("Authentication enabled", "excluded_paths", excluded)
	}

	r.Get("/health", s.handleHealth)
	if s.obs != nil {
		if h := s.obs.MetricsHandler(); h != nil {
			r.Method(http.MethodGet, s.obs.MetricsPath(), h)
		}
		if d := s.obs.Tracer().DebugExporter(); d != nil {
			r.Method(http.MethodGet, observability.DebugSpansPath, d.Handler())
		}
	}

	r.Route("/v1", func(r chi.Router) {
		r.Get("/agents", s.handleListAgents)
		r.Get("/agents/{agentID}", s.handleGetAgent)
		r.Post("/agents/{agentID}/sessions", s.handleCreateSession)

		r.Get("/sessions/{sessionID}", s.handleGetSession)
		r.Delete("/sessions/{sessionID}", s.handleCloseSession)
		r.Post("/sessions/{sessionID}/messages", s.handlePostMessage)
		r.Get("/sessions/{sessionID}/history", s.handleHistory)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

func (s *Server) excludedPaths() []string {
	var excluded []string
	if s.cfg.Auth != nil {
		excluded = append(excluded, s.cfg.Auth.ExcludedPaths...)
	}
	if s.obs != nil && s.obs.MetricsHandler() != nil {
		excluded = append(excluded, s.obs.MetricsPath())
	}
	return excluded
}

// Start serves until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.cfg.Address(),
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	slog.Info("HTTP server starting", "address", s.cfg.Address(), "tls", s.cfg.TLSEnabled())

	errCh := make(chan error, 1)
	go func() {
		var err error
		if s.cfg.TLSEnabled() {
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()

	slog.Info("HTTP server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down HTTP server: %w", err)
	}
	return nil
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	cors := s.cfg.CORS
	if cors == nil {
		return next
	}
	methods := strings.Join(cors.AllowedMethods, ", ")
	headers := strings.Join(cors.AllowedHeaders, ", ")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" {
			for _, allowed := range cors.AllowedOrigins {
				if allowed == "*" || allowed == origin {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Add("Vary", "Origin")
					break
				}
			}
		}
		w.Header().Set("Access-Control-Allow-Methods", methods)
		w.Header().Set("Access-Control-Allow-Headers", headers)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"duration", time.Since(start),
		)
	})
}
