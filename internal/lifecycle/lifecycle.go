// Package lifecycle sequences process startup and shutdown: orphan
// cleanup, the initial deploy, and a bounded, ordered teardown of the
// supervisor and HTTP listener. Grounded on main.go's top-level wiring.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"podctl/internal/config"
	"podctl/internal/podtypes"
	"podctl/internal/runtime"
	"podctl/internal/server"
	"podctl/internal/supervisor"
)

var logger = log.New(log.Writer(), "[LIFECYCLE] ", log.LstdFlags)

const startupTimeout = 60 * time.Second

// Orchestrator owns the running process's supervisor and HTTP server.
type Orchestrator struct {
	supervisor *supervisor.Supervisor
	server     *server.Server
}

// New assembles an Orchestrator around an already-wired supervisor and
// server.
func New(sup *supervisor.Supervisor, srv *server.Server) *Orchestrator {
	return &Orchestrator{supervisor: sup, server: srv}
}

// Start sweeps orphaned containers from a previous crash and deploys
// cfg's single configured deployment.
func Start(ctx context.Context, rt *runtime.Adapter, sup *supervisor.Supervisor, cfg *config.File) error {
	ctx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()

	logger.Printf("cleaning up orphaned containers")
	if err := rt.CleanupOrphans(ctx, podtypes.ContainerNamePrefix); err != nil {
		logger.Printf("warning: orphan cleanup failed: %v", err)
	}

	logger.Printf("deploying %q", cfg.Deployment.Name)
	if err := sup.Deploy(ctx, cfg.Deployment); err != nil {
		return fmt.Errorf("lifecycle: initial deploy of %q failed: %w", cfg.Deployment.Name, err)
	}
	return nil
}

// Run blocks serving HTTP until ctx is cancelled, then shuts down the
// server and the supervisor in order, bounded by their own internal
// timeouts.
func (o *Orchestrator) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := o.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Printf("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Printf("http server exited unexpectedly: %v", err)
		}
	}

	return o.shutdown()
}

func (o *Orchestrator) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := o.server.Shutdown(shutdownCtx); err != nil {
		logger.Printf("warning: http server shutdown: %v", err)
	}

	o.supervisor.Shutdown()
	logger.Printf("shutdown complete")
	return nil
}
