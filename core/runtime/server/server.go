// Package server ties the container, the HTTP transport and telemetry into
// one process lifecycle.
package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/hyperterse/widgetquery/core/domain/interfaces"
	"github.com/hyperterse/widgetquery/core/infrastructure/di"
	httptransport "github.com/hyperterse/widgetquery/core/infrastructure/transport/http"
	"github.com/hyperterse/widgetquery/core/logger"
	"github.com/hyperterse/widgetquery/core/observability"
	"github.com/hyperterse/widgetquery/core/parser"
)

// Runtime represents the widgetquery server
type Runtime struct {
	mu        sync.Mutex
	cfg       *parser.Config
	container *di.Container
	http      *httptransport.Server
	providers *observability.Providers
	port      string
	version   string
	telemetry bool
	log       logger.Logger
}

// NewRuntime builds every component for cfg. port overrides server.port when set.
func NewRuntime(ctx context.Context, cfg *parser.Config, port string, opts ...RuntimeOption) (*Runtime, error) {
	if port == "" {
		port = cfg.Server.Port
	}
	r := &Runtime{
		cfg:       cfg,
		port:      port,
		telemetry: true,
		log:       logger.New("runtime"),
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.telemetry {
		providers, err := observability.Setup(ctx, r.version)
		if err != nil {
			return nil, fmt.Errorf("failed to set up telemetry: %w", err)
		}
		r.providers = providers
	}

	container, err := di.NewContainer(ctx, cfg)
	if err != nil {
		r.shutdownTelemetry()
		return nil, err
	}
	r.container = container
	return r, nil
}

// Service returns the caller-facing widget API
func (r *Runtime) Service() interfaces.WidgetService {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.container.Service
}

// Start starts the runtime server and blocks until SIGTERM/SIGINT
func (r *Runtime) Start() error {
	if err := r.StartAsync(); err != nil {
		return err
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)
	<-quit

	return r.Stop()
}

// StartAsync starts the HTTP server without blocking
func (r *Runtime) StartAsync() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.startLocked()
}

func (r *Runtime) startLocked() error {
	srv := httptransport.NewServer(r.port, r.cfg.Server.CORSOrigins)
	httptransport.RegisterRoutes(srv.Router(), r.container.Service)
	if err := srv.StartAsync(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	r.http = srv
	r.log.Infof("Serving %s on port %s", r.cfg.Name, r.port)
	return nil
}

// Reload builds a container for cfg and swaps it in. The running server keeps
// its current components when the new ones fail to build.
func (r *Runtime) Reload(ctx context.Context, cfg *parser.Config) error {
	container, err := di.NewContainer(ctx, cfg)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	old := r.container
	running := r.http != nil
	if running {
		if err := r.http.Stop(); err != nil {
			container.Close()
			return fmt.Errorf("failed to stop server for reload: %w", err)
		}
		r.http = nil
	}

	r.cfg = cfg
	r.container = container
	if running {
		if err := r.startLocked(); err != nil {
			return err
		}
	}
	if err := old.Close(); err != nil {
		r.log.Warnf("Closing previous components: %v", err)
	}
	r.log.Infof("Configuration reloaded")
	return nil
}

// Stop shuts down the HTTP server, then closes every component
func (r *Runtime) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var stopErr error
	if r.http != nil {
		stopErr = r.http.Stop()
		r.http = nil
	}
	if r.container != nil {
		if err := r.container.Close(); err != nil {
			r.log.Warnf("Closing components: %v", err)
		}
		r.container = nil
	}
	r.shutdownTelemetry()
	return stopErr
}

func (r *Runtime) shutdownTelemetry() {
	if r.providers == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.providers.Shutdown(ctx); err != nil {
		r.log.Warnf("Telemetry shutdown: %v", err)
	}
	r.providers = nil
}
