package interfaces

import (
	"context"

	"github.com/hyperterse/widgetquery/core/domain"
)

// WidgetStore provides widget definitions. The engine only reads from it.
type WidgetStore interface {
	// GetWidgetDefinition returns the widget or a NOT_FOUND error
	GetWidgetDefinition(ctx context.Context, id string) (*domain.WidgetDefinition, error)

	// ListWidgetDefinitions returns all widgets ordered by id
	ListWidgetDefinitions(ctx context.Context) ([]*domain.WidgetDefinition, error)

	// Close releases store resources
	Close() error
}

// WidgetWriter is implemented by stores that accept definitions
type WidgetWriter interface {
	PutWidgetDefinition(ctx context.Context, w *domain.WidgetDefinition) error
}

// LookupStore fetches single scalar values for database-sourced parameters
type LookupStore interface {
	// LookupScalar returns column from table for the row where keyColumn = entityID.
	// It fails with LOOKUP_NOT_FOUND when no row matches and AMBIGUOUS_LOOKUP
	// when more than one does.
	LookupScalar(ctx context.Context, table, column, keyColumn, entityID string) (string, error)
}
