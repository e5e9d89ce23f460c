package services

import (
	"context"

	"github.com/hyperterse/widgetquery/core/application/orchestrator"
	"github.com/hyperterse/widgetquery/core/domain"
	"github.com/hyperterse/widgetquery/core/domain/interfaces"
	"github.com/hyperterse/widgetquery/core/infrastructure/logging"
)

// Runner executes one widget definition
type Runner interface {
	Run(ctx context.Context, widget *domain.WidgetDefinition, execCtx domain.ExecutionContext) *domain.ResultEnvelope
}

// WidgetService implements the caller-facing API used by all transports
type WidgetService struct {
	store  interfaces.WidgetStore
	runner Runner
	log    logging.Logger
}

var _ interfaces.WidgetService = (*WidgetService)(nil)

// NewWidgetService creates a new WidgetService
func NewWidgetService(store interfaces.WidgetStore, runner Runner) *WidgetService {
	return &WidgetService{
		store:  store,
		runner: runner,
		log:    logging.New("service"),
	}
}

// ExecuteWidgetQuery loads the widget and runs it. An unknown widget yields
// a NOT_FOUND envelope rather than an error.
func (s *WidgetService) ExecuteWidgetQuery(ctx context.Context, widgetID string, execCtx domain.ExecutionContext) *domain.ResultEnvelope {
	widget, err := s.store.GetWidgetDefinition(ctx, widgetID)
	if err != nil {
		s.log.Debugf("Widget '%s' not loaded: %v", widgetID, err)
		return orchestrator.FailureEnvelope(ctx, widgetID, err)
	}
	return s.runner.Run(ctx, widget, execCtx)
}

// GetWidget returns a widget definition with display config and filters untouched
func (s *WidgetService) GetWidget(ctx context.Context, widgetID string) (*domain.WidgetDefinition, error) {
	return s.store.GetWidgetDefinition(ctx, widgetID)
}

// ListWidgets returns every widget definition
func (s *WidgetService) ListWidgets(ctx context.Context) ([]*domain.WidgetDefinition, error) {
	return s.store.ListWidgetDefinitions(ctx)
}
