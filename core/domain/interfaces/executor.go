package interfaces

import (
	"context"

	"github.com/hyperterse/widgetquery/core/domain"
)

// QueryExecutor is the single capability every backend plugin implements.
// Connection and auth configuration are bound at construction time.
type QueryExecutor interface {
	// Protocol reports the call shape this executor speaks
	Protocol() domain.Protocol

	// Prepare substitutes resolved values into the widget template and request
	// using the escaping or binding rules of the executor's protocol
	Prepare(tpl string, req domain.RequestSpec, values map[string]string) (*domain.QueryPayload, error)

	// ExecuteQuery performs the downstream call. The context carries the
	// dispatch deadline and caller cancellation.
	ExecuteQuery(ctx context.Context, payload *domain.QueryPayload, instanceID string) (*domain.RawResult, error)

	// Close releases connections held by the executor
	Close() error
}

// PluginRegistry resolves plugin descriptors to live executors
type PluginRegistry interface {
	// Get returns the executor for (pluginName, instanceID)
	Get(pluginName, instanceID string) (QueryExecutor, error)

	// CloseAll closes every executor
	CloseAll() error
}
