package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "yashubustudio/uptake"

// Metrics holds the scoring counters. A nil *Metrics records nothing.
type Metrics struct {
	// Rows partitioned by outcome: scored, gated, failed
	Rows metric.Int64Counter

	CacheHits   metric.Int64Counter
	CacheMisses metric.Int64Counter
}

// NewMetrics creates the instruments on provider.
func NewMetrics(provider metric.MeterProvider) (*Metrics, error) {
	meter := provider.Meter(meterName)
	m := &Metrics{}
	var err error

	m.Rows, err = meter.Int64Counter("uptake.rows",
		metric.WithDescription("Utterance pairs processed, partitioned by outcome"),
		metric.WithUnit("{row}"))
	if err != nil {
		return nil, err
	}

	m.CacheHits, err = meter.Int64Counter("uptake.cache.hits",
		metric.WithDescription("Logit lookups served from the cache"))
	if err != nil {
		return nil, err
	}

	m.CacheMisses, err = meter.Int64Counter("uptake.cache.misses",
		metric.WithDescription("Logit lookups that ran the model"))
	if err != nil {
		return nil, err
	}
	return m, nil
}

// RecordRow counts one processed row.
func (m *Metrics) RecordRow(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.Rows.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordCacheHit counts a cache hit.
func (m *Metrics) RecordCacheHit(ctx context.Context) {
	if m == nil {
		return
	}
	m.CacheHits.Add(ctx, 1)
}

// RecordCacheMiss counts a cache miss.
func (m *Metrics) RecordCacheMiss(ctx context.Context) {
	if m == nil {
		return
	}
	m.CacheMisses.Add(ctx, 1)
}
