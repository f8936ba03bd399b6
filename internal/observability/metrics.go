// Package observability provides OpenTelemetry instrumentation for tracing and metrics.
package observability

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"

	"labelplane/internal/store"
)

// InitMetrics initializes the OpenTelemetry metrics provider with a Prometheus exporter.
// It returns the HTTP handler for the /metrics endpoint and a shutdown function.
// The shutdown function should be called on application exit for graceful cleanup.
func InitMetrics() (http.Handler, func(context.Context) error, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := metric.NewMeterProvider(
		metric.WithReader(exporter),
	)

	otel.SetMeterProvider(provider)

	return promhttp.Handler(), provider.Shutdown, nil
}

// RunCounter is the slice of the store the gauges observe.
type RunCounter interface {
	CountRunsByStatus(ctx context.Context, status store.RunStatus) (int64, error)
}

// RegisterRunGauges registers an observable gauge reporting how many
// production runs sit in each lifecycle state. The store is queried on
// every scrape; a query error leaves that state unreported for the
// scrape rather than failing it.
func RegisterRunGauges(counter RunCounter) error {
	meter := otel.Meter("labelplane/controller")

	gauge, err := meter.Int64ObservableGauge("production_runs",
		otelmetric.WithDescription("Production runs by lifecycle status"))
	if err != nil {
		return fmt.Errorf("failed to create run gauge: %w", err)
	}

	statuses := []store.RunStatus{
		store.RunStatusPlanned,
		store.RunStatusImposing,
		store.RunStatusApproved,
		store.RunStatusError,
	}

	_, err = meter.RegisterCallback(func(ctx context.Context, o otelmetric.Observer) error {
		for _, status := range statuses {
			n, err := counter.CountRunsByStatus(ctx, status)
			if err != nil {
				continue
			}
			o.ObserveInt64(gauge, n, otelmetric.WithAttributes(
				attribute.String("status", string(status))))
		}
		return nil
	}, gauge)
	if err != nil {
		return fmt.Errorf("failed to register run gauge callback: %w", err)
	}
	return nil
}
