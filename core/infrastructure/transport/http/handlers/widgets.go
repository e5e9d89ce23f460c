package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hyperterse/widgetquery/core/domain"
	"github.com/hyperterse/widgetquery/core/domain/interfaces"
	"github.com/hyperterse/widgetquery/core/infrastructure/transport/http/dto"
	"github.com/hyperterse/widgetquery/core/infrastructure/transport/http/middleware"
	"github.com/hyperterse/widgetquery/core/shared/errors"
)

// WidgetHandler serves the widget endpoints
type WidgetHandler struct {
	*BaseHandler
	service interfaces.WidgetService
}

// NewWidgetHandler creates a handler backed by service
func NewWidgetHandler(service interfaces.WidgetService) *WidgetHandler {
	return &WidgetHandler{
		BaseHandler: NewBaseHandler("http:widgets"),
		service:     service,
	}
}

// Execute handles POST /widgets/{id}/execute
func (h *WidgetHandler) Execute(w http.ResponseWriter, r *http.Request) {
	widgetID := chi.URLParam(r, "id")

	var req dto.ExecuteWidgetRequest
	fieldErrors, err := middleware.DecodeAndValidate(r, &req)
	if err != nil {
		h.WriteError(w, errors.NewAppError(errors.ErrCodeValidationError, "request body must be a JSON object with a 'context' map of strings", err))
		return
	}
	if len(fieldErrors) > 0 {
		h.WriteValidationError(w, fieldErrors)
		return
	}

	env := h.service.ExecuteWidgetQuery(r.Context(), widgetID, domain.ExecutionContext(req.Context))

	code := "OK"
	if env.Error != nil {
		code = env.Error.Code
	}
	middleware.RecordWidgetResult(widgetID, code)
	h.WriteEnvelope(w, env)
}

// Get handles GET /widgets/{id}
func (h *WidgetHandler) Get(w http.ResponseWriter, r *http.Request) {
	widget, err := h.service.GetWidget(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.WriteError(w, err)
		return
	}
	h.WriteSuccess(w, widget)
}

// List handles GET /widgets. The optional scope query parameter filters by scope.
func (h *WidgetHandler) List(w http.ResponseWriter, r *http.Request) {
	widgets, err := h.service.ListWidgets(r.Context())
	if err != nil {
		h.WriteError(w, err)
		return
	}

	scope := domain.Scope(r.URL.Query().Get("scope"))
	resp := dto.ListWidgetsResponse{Success: true, Widgets: make([]dto.WidgetSummary, 0, len(widgets))}
	for _, widget := range widgets {
		if scope != "" && effectiveScope(widget) != scope {
			continue
		}
		resp.Widgets = append(resp.Widgets, dto.NewWidgetSummary(widget))
	}
	h.WriteSuccess(w, resp)
}

// ValidateScope rejects unknown values of the scope query parameter
func ValidateScope(r *http.Request) error {
	switch domain.Scope(r.URL.Query().Get("scope")) {
	case "", domain.ScopeGlobal, domain.ScopeEntity:
		return nil
	}
	return errors.NewAppError(errors.ErrCodeValidationError, "scope must be 'global' or 'entity'", nil)
}

func effectiveScope(w *domain.WidgetDefinition) domain.Scope {
	if w.Scope == "" {
		return domain.ScopeGlobal
	}
	return w.Scope
}

// Heartbeat handles GET /heartbeat
func Heartbeat(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"success":true}`))
}
