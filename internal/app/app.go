// Package app provides lifecycle management for the sync and enrichment
// services: component wiring, the background coordinator and the ops server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yagnadeepxo/avici-internal-dashboard/internal/config"
)

// ServiceApp runs one scheduled service next to its ops HTTP server
type ServiceApp struct {
	name       string
	config     *config.Config
	components *Components
	httpServer *http.Server

	shutdownTimeout time.Duration

	closeOnce sync.Once
	cleanups  []func(context.Context) error
}

// Run starts the coordinator loop and the ops server and blocks until ctx is
// cancelled or either of them fails. Cancellation is not an error.
func (a *ServiceApp) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", a.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", a.httpServer.Addr, err)
	}
	return a.serve(ctx, listener)
}

func (a *ServiceApp) serve(ctx context.Context, listener net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := a.components.Coordinator.Start(gctx); err != nil {
			return fmt.Errorf("%s coordinator failed: %w", a.name, err)
		}
		return nil
	})

	g.Go(func() error {
		slog.Info("Ops server listening", "service", a.name, "address", listener.Addr().String())
		if err := a.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("ops server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down", "service", a.name)

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.shutdownTimeout)
		defer cancel()
		if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("ops server forced to shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// RunOnce performs a single run of the service's job without the ops server
func (a *ServiceApp) RunOnce(ctx context.Context) error {
	return a.components.Coordinator.RunOnce(ctx)
}

// Close releases the store pool and flushes telemetry. Safe to call more than once.
func (a *ServiceApp) Close(ctx context.Context) error {
	var errs []error
	a.closeOnce.Do(func() {
		for i := len(a.cleanups) - 1; i >= 0; i-- {
			if err := a.cleanups[i](ctx); err != nil {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}

// GetConfig returns the application configuration
func (a *ServiceApp) GetConfig() *config.Config {
	return a.config
}

// GetHTTPServer returns the ops HTTP server
func (a *ServiceApp) GetHTTPServer() *http.Server {
	return a.httpServer
}
