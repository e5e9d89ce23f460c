// Package plugins holds the backend executors and the registry that maps
// (plugin, instance) pairs to live executors.
package plugins

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/hyperterse/widgetquery/core/domain"
	"github.com/hyperterse/widgetquery/core/domain/interfaces"
	"github.com/hyperterse/widgetquery/core/infrastructure/logging"
	apperrors "github.com/hyperterse/widgetquery/core/shared/errors"
)

// Plugin names with built-in factories
const (
	PluginSQL  = "sql"
	PluginJira = "jira"
	PluginREST = "rest"
)

// BuiltinProtocol returns the protocol served by a built-in plugin
func BuiltinProtocol(plugin string) (domain.Protocol, bool) {
	switch plugin {
	case PluginSQL:
		return domain.ProtocolSQL, true
	case PluginJira:
		return domain.ProtocolJQL, true
	case PluginREST:
		return domain.ProtocolREST, true
	}
	return "", false
}

// Factory builds an executor for one configured instance
type Factory func(ctx context.Context, cfg InstanceConfig) (interfaces.QueryExecutor, error)

// Registry owns executors for the process lifetime. Mutation happens only in
// InitializeAll and CloseAll; lookups take a read lock.
type Registry struct {
	factories map[string]Factory
	executors map[string]map[string]interfaces.QueryExecutor
	mu        sync.RWMutex
	log       logging.Logger
}

var _ interfaces.PluginRegistry = (*Registry)(nil)

// NewRegistry creates a registry with the sql, jira and rest factories
func NewRegistry() *Registry {
	r := &Registry{
		factories: make(map[string]Factory),
		executors: make(map[string]map[string]interfaces.QueryExecutor),
		log:       logging.New("plugins"),
	}
	r.RegisterFactory(PluginSQL, NewSQLExecutor)
	r.RegisterFactory(PluginJira, NewTicketExecutor)
	r.RegisterFactory(PluginREST, NewRESTExecutor)
	return r
}

// RegisterFactory adds or replaces the factory for a plugin name
func (r *Registry) RegisterFactory(plugin string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[plugin] = f
}

// HasFactory reports whether plugin names a known executor type
func (r *Registry) HasFactory(plugin string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[plugin]
	return ok
}

// InitializeAll builds every instance in parallel. If any instance fails,
// the ones already built are closed and the first error is returned.
func (r *Registry) InitializeAll(ctx context.Context, configs []InstanceConfig) error {
	if len(configs) == 0 {
		return nil
	}

	seen := make(map[string]bool, len(configs))
	for _, cfg := range configs {
		if seen[cfg.Key()] {
			return apperrors.NewAppError(apperrors.ErrCodeValidationError, fmt.Sprintf("plugin instance '%s' configured more than once", cfg.Key()), nil)
		}
		seen[cfg.Key()] = true
		if !r.HasFactory(cfg.Plugin) {
			return apperrors.NewAppError(apperrors.ErrCodeUnknownPlugin, fmt.Sprintf("unknown plugin '%s' for instance '%s'", cfg.Plugin, cfg.ID), nil)
		}
	}

	r.log.Infof("Initializing %d plugin instance(s)", len(configs))

	g, gctx := errgroup.WithContext(ctx)
	for _, cfg := range configs {
		g.Go(func() error {
			r.log.Debugf("Connecting %s", cfg)

			r.mu.RLock()
			factory := r.factories[cfg.Plugin]
			r.mu.RUnlock()

			exec, err := factory(gctx, cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize plugin instance '%s': %w", cfg.Key(), err)
			}

			r.mu.Lock()
			if r.executors[cfg.Plugin] == nil {
				r.executors[cfg.Plugin] = make(map[string]interfaces.QueryExecutor)
			}
			r.executors[cfg.Plugin][cfg.ID] = exec
			r.mu.Unlock()

			r.log.Successf("Plugin instance '%s' ready", cfg.Key())
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		_ = r.CloseAll()
		return err
	}
	return nil
}

// Add registers an already-built executor, mainly for tests and embedding
func (r *Registry) Add(plugin, instanceID string, exec interfaces.QueryExecutor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.executors[plugin] == nil {
		r.executors[plugin] = make(map[string]interfaces.QueryExecutor)
	}
	r.executors[plugin][instanceID] = exec
}

// Get returns the executor for (plugin, instance) or UNKNOWN_PLUGIN
func (r *Registry) Get(plugin, instanceID string) (interfaces.QueryExecutor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	instances, ok := r.executors[plugin]
	if !ok {
		return nil, apperrors.NewAppError(apperrors.ErrCodeUnknownPlugin, fmt.Sprintf("plugin '%s' is not configured", plugin), nil)
	}
	exec, ok := instances[instanceID]
	if !ok {
		return nil, apperrors.NewAppError(apperrors.ErrCodeUnknownPlugin, fmt.Sprintf("plugin '%s' has no instance '%s'", plugin, instanceID), nil)
	}
	return exec, nil
}

// Keys lists configured instances as plugin/instance, sorted
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var keys []string
	for plugin, instances := range r.executors {
		for id := range instances {
			keys = append(keys, plugin+"/"+id)
		}
	}
	sort.Strings(keys)
	return keys
}

// CloseAll closes every executor in parallel and joins their errors
func (r *Registry) CloseAll() error {
	r.mu.Lock()
	executors := r.executors
	r.executors = make(map[string]map[string]interfaces.QueryExecutor)
	r.mu.Unlock()

	var (
		wg   sync.WaitGroup
		errM sync.Mutex
		errs []error
	)
	for plugin, instances := range executors {
		for id, exec := range instances {
			wg.Add(1)
			go func() {
				defer wg.Done()
				r.log.Debugf("Closing plugin instance '%s/%s'", plugin, id)
				if err := exec.Close(); err != nil {
					errM.Lock()
					errs = append(errs, fmt.Errorf("plugin instance '%s/%s': %w", plugin, id, err))
					errM.Unlock()
				}
			}()
		}
	}
	wg.Wait()
	return errors.Join(errs...)
}
