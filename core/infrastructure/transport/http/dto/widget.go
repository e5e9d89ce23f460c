package dto

import "github.com/hyperterse/widgetquery/core/domain"

// ExecuteWidgetRequest carries the execution context for one widget run.
// The body may be empty for widgets without context parameters.
type ExecuteWidgetRequest struct {
	Context map[string]string `json:"context" validate:"omitempty,dive,keys,required,endkeys"`
}

// WidgetSummary is the list view of a widget
type WidgetSummary struct {
	ID                     string                  `json:"id"`
	Name                   string                  `json:"name,omitempty"`
	Description            string                  `json:"description,omitempty"`
	Plugin                 domain.PluginDescriptor `json:"plugin"`
	Scope                  domain.Scope            `json:"scope,omitempty"`
	RefreshIntervalSeconds int                     `json:"refresh_interval_seconds,omitempty"`
}

// ListWidgetsResponse is returned by GET /widgets
type ListWidgetsResponse struct {
	Success bool            `json:"success"`
	Widgets []WidgetSummary `json:"widgets"`
}

// NewWidgetSummary builds the list view of w
func NewWidgetSummary(w *domain.WidgetDefinition) WidgetSummary {
	return WidgetSummary{
		ID:                     w.ID,
		Name:                   w.Name,
		Description:            w.Description,
		Plugin:                 w.Plugin,
		Scope:                  w.Scope,
		RefreshIntervalSeconds: w.RefreshIntervalSeconds,
	}
}
