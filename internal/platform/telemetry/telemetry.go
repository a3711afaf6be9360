// Package telemetry bootstraps OpenTelemetry tracing and metrics and exposes the
// ledger counters shared by the gateway and the settlement worker.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ppob-wallet-ledger/internal/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

const instrumentationName = "github.com/ppob-wallet-ledger"

// ShutdownFunc flushes and stops the installed providers.
type ShutdownFunc func(ctx context.Context) error

// Init installs OTLP/HTTP trace and metric providers as the otel globals.
// With an empty endpoint the global no-op providers stay in place.
func Init(ctx context.Context, logger *slog.Logger, cfg config.TelemetryConfig) (ShutdownFunc, error) {
	if cfg.OTLPEndpoint == "" {
		logger.Info("Telemetry exporter disabled")
		return func(context.Context) error { return nil }, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion("1.0.0"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build telemetry resource: %w", err)
	}

	traceExporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(cfg.OTLPEndpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	metricExporter, err := otlpmetrichttp.New(ctx,
		otlpmetrichttp.WithEndpoint(cfg.OTLPEndpoint),
		otlpmetrichttp.WithInsecure(),
	)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, fmt.Errorf("failed to create metric exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)),
		sdkmetric.WithResource(res),
	)

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)

	logger.Info("Telemetry exporter enabled", "endpoint", cfg.OTLPEndpoint, "service", cfg.ServiceName)

	return func(ctx context.Context) error {
		return errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx))
	}, nil
}

// Metrics groups the counters recorded by the ledger components.
type Metrics struct {
	LedgerTransactions     metric.Int64Counter
	ProviderAttempts       metric.Int64Counter
	ProviderFailovers      metric.Int64Counter
	WebhookNotifications   metric.Int64Counter
	SettlementManualReview metric.Int64Counter
}

// NewMetrics registers the counters on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	var (
		m   Metrics
		err error
	)

	if m.LedgerTransactions, err = meter.Int64Counter("ledger.transactions",
		metric.WithDescription("Wallet transactions written, by type and status")); err != nil {
		return nil, err
	}
	if m.ProviderAttempts, err = meter.Int64Counter("provider.attempts",
		metric.WithDescription("Bill provider calls, by provider, operation and outcome")); err != nil {
		return nil, err
	}
	if m.ProviderFailovers, err = meter.Int64Counter("provider.failovers",
		metric.WithDescription("Fallback hops taken after a provider failure")); err != nil {
		return nil, err
	}
	if m.WebhookNotifications, err = meter.Int64Counter("webhook.notifications",
		metric.WithDescription("Inbound webhook notifications, by source and outcome")); err != nil {
		return nil, err
	}
	if m.SettlementManualReview, err = meter.Int64Counter("settlement.manual_reviews",
		metric.WithDescription("Bill settlements flagged for manual reconciliation")); err != nil {
		return nil, err
	}

	return &m, nil
}

// DefaultMetrics registers the counters on the global meter provider.
func DefaultMetrics() (*Metrics, error) {
	return NewMetrics(otel.Meter(instrumentationName))
}

// NoopMetrics returns counters that record nothing.
func NoopMetrics() *Metrics {
	m, _ := NewMetrics(noop.NewMeterProvider().Meter(instrumentationName))
	return m
}
