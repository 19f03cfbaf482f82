package engine

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// TelemetryConfig controls whether Open installs global tracer/meter
// providers backed by stdout exporters. internal/hooks and
// internal/preparedcache already call otel.Tracer/otel.GetMeterProvider
// unconditionally; without a configured provider those calls are no-ops.
// This is meant for local inspection, not production export — a real
// deployment would swap the exporters for an OTLP one without touching
// either instrumented package.
type TelemetryConfig struct {
	Enabled      bool `mapstructure:"enabled"`
	TraceStdout  bool `mapstructure:"traceStdout"`
	MetricStdout bool `mapstructure:"metricStdout"`
}

// telemetryShutdown stops every provider Open installed. Called from
// Engine.Close.
type telemetryShutdown func(context.Context) error

func setupTelemetry(cfg TelemetryConfig) (telemetryShutdown, error) {
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	var shutdowns []func(context.Context) error

	if cfg.TraceStdout {
		exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("engine: stdout trace exporter: %w", err)
		}
		tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exp))
		otel.SetTracerProvider(tp)
		shutdowns = append(shutdowns, tp.Shutdown)
	}

	if cfg.MetricStdout {
		exp, err := stdoutmetric.New()
		if err != nil {
			return nil, fmt.Errorf("engine: stdout metric exporter: %w", err)
		}
		mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp)))
		otel.SetMeterProvider(mp)
		shutdowns = append(shutdowns, mp.Shutdown)
	}

	return func(ctx context.Context) error {
		for _, fn := range shutdowns {
			if err := fn(ctx); err != nil {
				return err
			}
		}
		return nil
	}, nil
}
