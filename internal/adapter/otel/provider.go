package otel

import (
	"context"
	"errors"
	"fmt"

	"github.com/caarlos0/env/v11"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Config holds OpenTelemetry provider configuration.
type Config struct {
	ServiceName    string `env:"OTEL_SERVICE_NAME" envDefault:"foodflow"`
	ServiceVersion string `env:"OTEL_SERVICE_VERSION" envDefault:"0.1.0"`
	Environment    string `env:"OTEL_ENVIRONMENT" envDefault:"development"` // "development" or "production"
	Exporter       string `env:"OTEL_EXPORTER" envDefault:"stdout"`         // "stdout", "otlp" or "none"
	Insecure       bool   `env:"-"`                                        // use HTTP instead of HTTPS for OTLP
}

// ConfigFromEnv builds Config from environment variables with sensible defaults.
func ConfigFromEnv() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("parsing otel config: %w", err)
	}
	cfg.Insecure = cfg.Environment == "development"
	return cfg, nil
}

// Providers holds initialized OTel providers and their shutdown function.
type Providers struct {
	Shutdown func(ctx context.Context) error
}

// exporters is the span and metric export pair for one OTEL_EXPORTER value.
// Both are nil for "none": providers are still installed so instruments
// and spans work, they just go nowhere.
type exporters struct {
	spans   trace.SpanExporter
	metrics metric.Exporter
}

func newExporters(ctx context.Context, cfg Config) (exporters, error) {
	var ex exporters
	var err error

	switch cfg.Exporter {
	case "none":
		return ex, nil
	case "stdout":
		if ex.spans, err = stdouttrace.New(stdouttrace.WithPrettyPrint()); err != nil {
			return ex, fmt.Errorf("stdout span exporter: %w", err)
		}
		if ex.metrics, err = stdoutmetric.New(); err != nil {
			return ex, fmt.Errorf("stdout metric exporter: %w", err)
		}
	case "otlp":
		var traceOpts []otlptracehttp.Option
		var metricOpts []otlpmetrichttp.Option
		if cfg.Insecure {
			traceOpts = append(traceOpts, otlptracehttp.WithInsecure())
			metricOpts = append(metricOpts, otlpmetrichttp.WithInsecure())
		}
		if ex.spans, err = otlptracehttp.New(ctx, traceOpts...); err != nil {
			return ex, fmt.Errorf("otlp span exporter: %w", err)
		}
		if ex.metrics, err = otlpmetrichttp.New(ctx, metricOpts...); err != nil {
			_ = ex.spans.Shutdown(ctx)
			return ex, fmt.Errorf("otlp metric exporter: %w", err)
		}
	default:
		return ex, fmt.Errorf("unsupported exporter: %q (use \"stdout\", \"otlp\" or \"none\")", cfg.Exporter)
	}
	return ex, nil
}

// Setup installs global tracer and meter providers for cfg. The returned
// Shutdown flushes both and must run before the process exits.
func Setup(ctx context.Context, cfg Config) (*Providers, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("creating otel resource: %w", err)
	}

	ex, err := newExporters(ctx, cfg)
	if err != nil {
		return nil, err
	}

	traceOpts := []trace.TracerProviderOption{trace.WithResource(res)}
	if ex.spans != nil {
		traceOpts = append(traceOpts, trace.WithBatcher(ex.spans))
	}
	metricOpts := []metric.Option{metric.WithResource(res)}
	if ex.metrics != nil {
		metricOpts = append(metricOpts, metric.WithReader(metric.NewPeriodicReader(ex.metrics)))
	}

	tp := trace.NewTracerProvider(traceOpts...)
	mp := metric.NewMeterProvider(metricOpts...)

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &Providers{
		Shutdown: func(ctx context.Context) error {
			return errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx))
		},
	}, nil
}
