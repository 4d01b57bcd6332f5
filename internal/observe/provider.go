package observe

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
)

// ProviderConfig configures the OpenTelemetry SDK providers.
type ProviderConfig struct {
	// ServiceName is the service name reported in telemetry. Default: "docent".
	ServiceName string

	// ServiceVersion is the service version reported in telemetry.
	ServiceVersion string

	// MetricsEnabled installs the Prometheus exporter. Set it when a /metrics
	// listener is configured; otherwise instruments are no-ops.
	MetricsEnabled bool

	// Registerer receives the exporter's collector. Default:
	// prometheus.DefaultRegisterer, which promhttp.Handler serves.
	Registerer prometheus.Registerer

	// TraceExporter is an optional span exporter. When nil, spans are
	// recorded but not exported.
	TraceExporter sdktrace.SpanExporter
}

// Telemetry is the process-wide metrics and tracing setup returned by
// [InitProvider].
type Telemetry struct {
	// Metrics is built on the installed meter provider. Pass it to the app.
	Metrics *Metrics

	meterProvider metric.MeterProvider
	shutdownFuncs []func(context.Context) error
}

// MeterProvider returns the installed meter provider.
func (t *Telemetry) MeterProvider() metric.MeterProvider { return t.meterProvider }

// Exporting reports whether metrics are exported to Prometheus.
func (t *Telemetry) Exporting() bool {
	_, ok := t.meterProvider.(*sdkmetric.MeterProvider)
	return ok
}

// Shutdown flushes and closes the providers. Call it once on exit.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	for _, fn := range t.shutdownFuncs {
		if err := fn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// InitProvider sets up the OTel SDK and registers the providers globally.
//
// With MetricsEnabled a [sdkmetric.MeterProvider] exports through a
// Prometheus collector on cfg.Registerer. Without it the global meter
// provider is a no-op and nothing is registered. A [sdktrace.TracerProvider]
// is always installed so rounds carry trace IDs in logs.
func InitProvider(ctx context.Context, cfg ProviderConfig) (*Telemetry, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "docent"
	}
	if cfg.Registerer == nil {
		cfg.Registerer = prometheus.DefaultRegisterer
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("observe: build resource: %w", err)
	}

	tel := &Telemetry{meterProvider: noop.NewMeterProvider()}
	if cfg.MetricsEnabled {
		exp, err := promexporter.New(promexporter.WithRegisterer(cfg.Registerer))
		if err != nil {
			return nil, fmt.Errorf("observe: prometheus exporter: %w", err)
		}
		mp := sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(exp),
		)
		tel.meterProvider = mp
		tel.shutdownFuncs = append(tel.shutdownFuncs, mp.Shutdown)
	}
	otel.SetMeterProvider(tel.meterProvider)

	tpOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if cfg.TraceExporter != nil {
		tpOpts = append(tpOpts, sdktrace.WithBatcher(cfg.TraceExporter))
	}
	tp := sdktrace.NewTracerProvider(tpOpts...)
	otel.SetTracerProvider(tp)
	tel.shutdownFuncs = append(tel.shutdownFuncs, tp.Shutdown)

	if tel.Metrics, err = NewMetrics(tel.meterProvider); err != nil {
		_ = tel.Shutdown(ctx)
		return nil, fmt.Errorf("observe: create metrics: %w", err)
	}
	return tel, nil
}
