// Package apiserver exposes the resource store over a JSON REST API.
package apiserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/klubi/rstore/internal/metrics"
	"github.com/klubi/rstore/internal/store"
)

// Server is the rstore REST API server. It exposes CRUD, index lookup and
// set listing endpoints for every configured resource type and delegates
// persistence to the Store.
type Server struct {
	router  *mux.Router
	store   *store.Store
	types   map[string]*store.ResourceType
	metrics *metrics.Metrics
	logger  *zap.Logger
	server  *http.Server
}

// NewServer creates a fully-wired Server ready to Start(). m may be nil.
func NewServer(addr string, s *store.Store, types map[string]*store.ResourceType, m *metrics.Metrics, logger *zap.Logger) *Server {
	srv := &Server{
		// Match on the encoded path so an escaped "/" stays inside its
		// path variable; decodeVars unescapes the variables afterwards.
		router:  mux.NewRouter().UseEncodedPath(),
		store:   s,
		types:   types,
		metrics: m,
		logger:  logger,
	}
	srv.server = &http.Server{
		Addr:        addr,
		Handler:     srv.router,
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: watch streams stay open.
	}
	srv.registerRoutes()
	return srv
}

// Handler returns the root handler, for embedding and tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins listening and serving HTTP requests. It blocks until the
// server is shut down or encounters a fatal error.
func (s *Server) Start() error {
	s.logger.Info("API server starting", zap.String("addr", s.server.Addr))
	return s.server.ListenAndServe()
}

// Shutdown gracefully drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
