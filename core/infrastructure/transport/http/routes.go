package http

import (
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hyperterse/widgetquery/core/domain/interfaces"
	"github.com/hyperterse/widgetquery/core/infrastructure/logging"
	"github.com/hyperterse/widgetquery/core/infrastructure/transport/http/handlers"
	"github.com/hyperterse/widgetquery/core/infrastructure/transport/http/middleware"
)

// RegisterRoutes registers all HTTP routes
func RegisterRoutes(r chi.Router, service interfaces.WidgetService) {
	log := logging.New("routes")

	widgets := handlers.NewWidgetHandler(service)
	routes := []string{
		"GET /heartbeat",
		"GET /metrics",
		"GET /widgets",
		"GET /widgets/{id}",
		"POST /widgets/{id}/execute",
	}

	r.Get("/heartbeat", handlers.Heartbeat)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/widgets", func(r chi.Router) {
		r.With(middleware.ValidateQueryParams(handlers.ValidateScope)).Get("/", widgets.List)
		r.Get("/{id}", widgets.Get)
		r.Post("/{id}/execute", widgets.Execute)
	})

	log.Infof("Routes registered: %d", len(routes))
	for _, route := range routes {
		log.Debugf("  %s", route)
	}
}
