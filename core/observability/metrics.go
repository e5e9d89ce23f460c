package observability

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.34.0"
)

type metrics struct {
	httpRequestsTotal     metric.Int64Counter
	httpRequestDuration   metric.Float64Histogram
	widgetExecutionsTotal metric.Int64Counter
	widgetDuration        metric.Float64Histogram
	pluginCallsTotal      metric.Int64Counter
	pluginCallDuration    metric.Float64Histogram
	rateLimitRejections   metric.Int64Counter
}

var (
	metricsOnce sync.Once
	m           metrics
)

func buildMeterProvider(ctx context.Context, cfg Config) (*sdkmetric.MeterProvider, error) {
	if !cfg.Enabled || !cfg.MetricsEnabled {
		return sdkmetric.NewMeterProvider(), nil
	}

	exporter, err := otlpmetricgrpc.New(
		ctx,
		otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create otlp metric exporter: %w", err)
	}

	res, err := resource.New(
		ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			semconv.DeploymentEnvironmentName(cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create metric resource: %w", err)
	}

	return sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exporter),
		),
	), nil
}

// Instruments bind to whichever meter provider is global the first time a
// metric is recorded; the otel global delegates, so Setup may run later.
func initInstruments() {
	metricsOnce.Do(func() {
		meter := otel.Meter(instrumentationName)
		m.httpRequestsTotal, _ = meter.Int64Counter("widgetquery.http.server.requests_total")
		m.httpRequestDuration, _ = meter.Float64Histogram("widgetquery.http.server.request_duration_ms")
		m.widgetExecutionsTotal, _ = meter.Int64Counter("widgetquery.widget.executions_total")
		m.widgetDuration, _ = meter.Float64Histogram("widgetquery.widget.execution_duration_ms")
		m.pluginCallsTotal, _ = meter.Int64Counter("widgetquery.plugin.calls_total")
		m.pluginCallDuration, _ = meter.Float64Histogram("widgetquery.plugin.call_duration_ms")
		m.rateLimitRejections, _ = meter.Int64Counter("widgetquery.ratelimit.rejections_total")
	})
}

func RecordHTTPRequest(ctx context.Context, method, route string, status int, durationMS float64) {
	initInstruments()
	attrs := metric.WithAttributes(
		attribute.String(AttrHTTPMethod, method),
		attribute.String(AttrHTTPRoute, route),
		attribute.Int(AttrHTTPStatusCode, status),
	)
	m.httpRequestsTotal.Add(ctx, 1, attrs)
	m.httpRequestDuration.Record(ctx, durationMS, attrs)
}

// RecordWidgetExecution counts one orchestrator run. errorCode is empty on success.
func RecordWidgetExecution(ctx context.Context, widgetID, plugin, errorCode string, durationMS float64) {
	initInstruments()
	attrs := metric.WithAttributes(
		attribute.String(AttrWidgetID, widgetID),
		attribute.String(AttrPluginName, plugin),
		attribute.Bool("success", errorCode == ""),
		attribute.String(AttrErrorType, errorCode),
	)
	m.widgetExecutionsTotal.Add(ctx, 1, attrs)
	m.widgetDuration.Record(ctx, durationMS, attrs)
}

func RecordPluginCall(ctx context.Context, plugin, instanceID string, success bool, durationMS float64) {
	initInstruments()
	attrs := metric.WithAttributes(
		attribute.String(AttrPluginName, plugin),
		attribute.String(AttrInstanceID, instanceID),
		attribute.Bool("success", success),
	)
	m.pluginCallsTotal.Add(ctx, 1, attrs)
	m.pluginCallDuration.Record(ctx, durationMS, attrs)
}

func RecordRateLimitRejection(ctx context.Context, gateKey string) {
	initInstruments()
	m.rateLimitRejections.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrGateKey, gateKey)))
}
