package di

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/hyperterse/widgetquery/core/application/orchestrator"
	"github.com/hyperterse/widgetquery/core/application/services"
	"github.com/hyperterse/widgetquery/core/domain/interfaces"
	"github.com/hyperterse/widgetquery/core/infrastructure/logging"
	"github.com/hyperterse/widgetquery/core/infrastructure/lookup"
	"github.com/hyperterse/widgetquery/core/infrastructure/store"
	"github.com/hyperterse/widgetquery/core/parser"
	"github.com/hyperterse/widgetquery/core/runtime/params"
	"github.com/hyperterse/widgetquery/core/runtime/plugins"
	"github.com/hyperterse/widgetquery/core/runtime/ratelimit"
)

// Container holds all dependencies
type Container struct {
	Config       *parser.Config
	Registry     *plugins.Registry
	Limiter      interfaces.RateLimiter
	Lookup       interfaces.LookupStore
	Store        interfaces.WidgetStore
	Orchestrator *orchestrator.Orchestrator
	Service      interfaces.WidgetService

	closers []io.Closer
}

// NewContainer builds every component named by cfg. On failure whatever was
// already opened is closed again.
func NewContainer(ctx context.Context, cfg *parser.Config) (c *Container, err error) {
	log := logging.New("di")
	c = &Container{Config: cfg}
	defer func() {
		if err != nil {
			if closeErr := c.Close(); closeErr != nil {
				log.Warnf("Cleanup after failed start: %v", closeErr)
			}
			c = nil
		}
	}()

	if c.Limiter, err = c.buildLimiter(ctx); err != nil {
		return c, err
	}

	c.Registry = plugins.NewRegistry()
	if err = c.Registry.InitializeAll(ctx, cfg.Plugins); err != nil {
		return c, err
	}
	c.closers = append(c.closers, closerFunc(c.Registry.CloseAll))

	if cfg.Lookup != nil {
		lk, lerr := lookup.Open(ctx, cfg.Lookup.Driver, cfg.Lookup.DSN, cfg.Lookup.Options)
		if lerr != nil {
			return c, fmt.Errorf("failed to open lookup database: %w", lerr)
		}
		c.Lookup = lk
		c.closers = append(c.closers, lk)
	}

	if c.Store, err = c.buildStore(ctx); err != nil {
		return c, err
	}
	c.closers = append(c.closers, c.Store)

	var opts []orchestrator.Option
	if cfg.Server.DefaultTimeout > 0 {
		opts = append(opts, orchestrator.WithDefaultTimeout(cfg.Server.DefaultTimeout))
	}
	c.Orchestrator = orchestrator.New(params.NewResolver(c.Lookup), c.Registry, c.Limiter, opts...)
	c.Service = services.NewWidgetService(c.Store, c.Orchestrator)

	log.Debugf("Container ready: %d plugin instance(s), store=%s, ratelimit=%s", len(cfg.Plugins), cfg.Store.Type, cfg.RateLimit.Backend)
	return c, nil
}

func (c *Container) buildLimiter(ctx context.Context) (interfaces.RateLimiter, error) {
	rl := c.Config.RateLimit
	switch rl.Backend {
	case parser.RateLimitRedis:
		intervals := ratelimit.NewIntervals(rl.DefaultInterval)
		for prefix, d := range rl.IntervalOverrides() {
			intervals.Set(prefix, d)
		}
		limiter, err := ratelimit.DialRedisLimiter(ctx, rl.RedisURL, rl.Prefix, intervals)
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, limiter)
		return limiter, nil
	default:
		limiter := ratelimit.NewMinIntervalLimiter(rl.DefaultInterval)
		for prefix, d := range rl.IntervalOverrides() {
			limiter.SetInterval(prefix, d)
		}
		return limiter, nil
	}
}

func (c *Container) buildStore(ctx context.Context) (interfaces.WidgetStore, error) {
	sc := c.Config.Store
	switch sc.Type {
	case parser.StoreFile:
		fs, err := store.NewFileStore(c.Config.StorePath())
		if err != nil {
			return nil, fmt.Errorf("failed to load widgets: %w", err)
		}
		if err := c.validateStored(ctx, fs); err != nil {
			return nil, err
		}
		if sc.Watch {
			if err := fs.Watch(); err != nil {
				return nil, err
			}
		}
		return fs, nil
	case parser.StoreSQL:
		s, err := store.OpenSQLStore(ctx, sc.Driver, sc.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open widget store: %w", err)
		}
		return s, nil
	case parser.StoreMongoDB:
		s, err := store.OpenMongoStore(ctx, sc.URI, sc.Database, sc.Collection)
		if err != nil {
			return nil, fmt.Errorf("failed to open widget store: %w", err)
		}
		return s, nil
	default:
		return store.NewMemoryStore(c.Config.Widgets)
	}
}

// validateStored checks file-backed widgets against the configured plugins
func (c *Container) validateStored(ctx context.Context, s interfaces.WidgetStore) error {
	widgets, err := s.ListWidgetDefinitions(ctx)
	if err != nil {
		return err
	}
	return parser.ValidateWidgets(c.Config, widgets)
}

// Close closes all resources in reverse order of creation
func (c *Container) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
