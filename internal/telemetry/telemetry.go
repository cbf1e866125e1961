// Package telemetry provides OpenTelemetry metrics for scoring runs.
//
// Metrics are exported to an OTLP HTTP endpoint when one is configured.
// Without an endpoint every instrument is a no-op.
package telemetry

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const serviceName = "uptake"

// Version is set by the command from its linker-injected version.
var Version = "dev"

// Telemetry holds the meter provider and the scoring instruments.
type Telemetry struct {
	mp *sdkmetric.MeterProvider

	Metrics *Metrics
}

// Init sets up an OTLP HTTP metric exporter for endpoint. An empty endpoint
// returns no-op instruments.
func Init(ctx context.Context, endpoint string) (*Telemetry, error) {
	t := &Telemetry{}
	if endpoint != "" {
		res, err := resource.New(ctx,
			resource.WithAttributes(
				semconv.ServiceName(serviceName),
				semconv.ServiceVersion(Version),
			),
			resource.WithHost(),
		)
		if err != nil {
			return nil, fmt.Errorf("otel resource: %w", err)
		}

		u, err := url.Parse(endpoint)
		if err != nil {
			return nil, fmt.Errorf("otel: invalid endpoint URL %q: %w", endpoint, err)
		}
		opts := []otlpmetrichttp.Option{
			otlpmetrichttp.WithEndpoint(u.Host),
			otlpmetrichttp.WithURLPath(strings.TrimRight(u.Path, "/") + "/v1/metrics"),
		}
		if u.Scheme == "http" {
			opts = append(opts, otlpmetrichttp.WithInsecure())
		}
		exp, err := otlpmetrichttp.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("otel metric exporter: %w", err)
		}
		t.mp = sdkmetric.NewMeterProvider(
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp,
				sdkmetric.WithInterval(15*time.Second))),
			sdkmetric.WithResource(res),
		)
		otel.SetMeterProvider(t.mp)
	}

	metrics, err := NewMetrics(otel.GetMeterProvider())
	if err != nil {
		return nil, fmt.Errorf("otel metrics: %w", err)
	}
	t.Metrics = metrics
	return t, nil
}

// Shutdown flushes pending metrics.
func (t *Telemetry) Shutdown(ctx context.Context) {
	if t != nil && t.mp != nil {
		_ = t.mp.Shutdown(ctx)
	}
}
