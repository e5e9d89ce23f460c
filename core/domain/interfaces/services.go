package interfaces

import (
	"context"

	"github.com/hyperterse/widgetquery/core/domain"
)

// WidgetService is the caller-facing API consumed by the rendering layer
type WidgetService interface {
	// ExecuteWidgetQuery runs the widget's query for the given context. It
	// always returns an envelope; failures are reported inside it.
	ExecuteWidgetQuery(ctx context.Context, widgetID string, execCtx domain.ExecutionContext) *domain.ResultEnvelope

	// GetWidget returns a widget definition for display
	GetWidget(ctx context.Context, widgetID string) (*domain.WidgetDefinition, error)

	// ListWidgets returns all widget definitions
	ListWidgets(ctx context.Context) ([]*domain.WidgetDefinition, error)
}
