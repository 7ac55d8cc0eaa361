// Package server wires the admin, metrics, and proxy handlers onto a
// single HTTP listener using gorilla/mux, grounded on src/pkg/api/server.go's
// router setup.
package server

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"podctl/internal/metrics"
	"podctl/internal/podtypes"
	"podctl/internal/proxyhandler"
)

// PodSource is satisfied by *registry.Registry; used to refresh the
// pod-count gauge just before each /metrics scrape.
type PodSource interface {
	AllPods() []podtypes.Pod
}

var logger = log.New(log.Writer(), "[SERVER] ", log.LstdFlags)

// Server is the orchestrator's single HTTP listener: the admin status
// endpoint, a Prometheus scrape endpoint, and the reverse proxy for the
// configured deployment.
type Server struct {
	httpServer *http.Server
}

// New builds a Server listening on addr. admin serves GET /health;
// every other path, at any depth and any method, is forwarded to
// deployment via proxy.
func New(addr string, admin http.Handler, proxy *proxyhandler.Handler, deployment string, pods PodSource) *Server {
	router := mux.NewRouter()

	router.Handle("/health", admin).Methods(http.MethodGet)

	metricsHandler := promhttp.Handler()
	router.Handle("/metrics", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		metrics.RefreshPodGauge(pods.AllPods())
		metricsHandler.ServeHTTP(w, r)
	})).Methods(http.MethodGet)

	router.PathPrefix("/").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		proxy.ServeDeployment(w, r, deployment)
	})

	return &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
}

// ListenAndServe starts the HTTP listener; it blocks until the server
// stops, returning http.ErrServerClosed on graceful shutdown.
func (s *Server) ListenAndServe() error {
	logger.Printf("listening on %s", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the listener, bounded by ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
