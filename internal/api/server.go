// Package api serves the read-only status surface of a deployment:
// per-service state, the applied routing table, and prometheus metrics.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"convoy/internal/core"
)

// StatusProvider is the deployment handle's read side.
type StatusProvider interface {
	Status() []core.ServiceStatus
	Routes() *core.RoutingTable
}

// Server is the status HTTP server.
type Server struct {
	router *mux.Router
	source StatusProvider
	port   int
	log    zerolog.Logger
}

// NewServer creates a status server reading from source.
func NewServer(port int, source StatusProvider, logger zerolog.Logger) *Server {
	s := &Server{
		router: mux.NewRouter(),
		source: source,
		port:   port,
		log:    logger.With().Str("component", "api").Logger(),
	}
	s.routes()
	return s
}

// routes sets up the API routes.
func (s *Server) routes() {
	s.router.HandleFunc("/status", s.statusHandler).Methods("GET")
	s.router.HandleFunc("/routes", s.routesHandler).Methods("GET")
	s.router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	s.router.Use(s.loggingMiddleware)
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: s.router,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	s.log.Info().Int("port", s.port).Msg("status server listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("status server failed: %w", err)
	}
	return nil
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{"services": s.source.Status()})
}

func (s *Server) routesHandler(w http.ResponseWriter, r *http.Request) {
	table := s.source.Routes()
	if table == nil {
		http.Error(w, "no routing table applied", http.StatusNotFound)
		return
	}

	type routeRow struct {
		Entrypoint  string   `json:"entrypoint"`
		PathPrefix  string   `json:"path_prefix"`
		Service     string   `json:"service"`
		Target      string   `json:"target"`
		Middlewares []string `json:"middlewares,omitempty"`
	}
	rows := make([]routeRow, 0, len(table.Rows))
	for _, row := range table.Rows {
		rows = append(rows, routeRow{
			Entrypoint:  row.Entrypoint,
			PathPrefix:  row.PathPrefix,
			Service:     row.Service,
			Target:      row.Target.Address(),
			Middlewares: row.Middlewares,
		})
	}
	writeJSON(w, map[string]any{"rows": rows})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug().Str("method", r.Method).Str("path", r.URL.Path).Dur("took", time.Since(start)).Msg("request")
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
