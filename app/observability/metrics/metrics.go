package metrics

import (
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "comment-suggestions"

// AppMetrics holds the application's metric instruments.
type AppMetrics struct {
	GenerationsTotal          metric.Int64Counter
	GenerationDurationSeconds metric.Float64Histogram
	QuotaRejectionsTotal      metric.Int64Counter
	ArchivalFailuresTotal     metric.Int64Counter
	WebhookEventsTotal        metric.Int64Counter
	DbQueryErrorsTotal        metric.Int64Counter
}

var (
	appMetrics *AppMetrics
	initErr    error
	once       sync.Once
)

// InitAppMetrics creates the instruments from the global MeterProvider.
// Call it after the provider is installed; later calls are no-ops.
func InitAppMetrics() error {
	once.Do(func() {
		appMetrics, initErr = newAppMetrics(otel.GetMeterProvider().Meter(meterName))
	})
	return initErr
}

func newAppMetrics(meter metric.Meter) (*AppMetrics, error) {
	var err error
	m := &AppMetrics{}

	if m.GenerationsTotal, err = meter.Int64Counter(
		"comment_generations_total",
		metric.WithDescription("Comment generation requests by outcome"),
		metric.WithUnit("{request}"),
	); err != nil {
		return nil, fmt.Errorf("comment_generations_total: %w", err)
	}

	if m.GenerationDurationSeconds, err = meter.Float64Histogram(
		"comment_generation_duration_seconds",
		metric.WithDescription("Latency of completion endpoint calls"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("comment_generation_duration_seconds: %w", err)
	}

	if m.QuotaRejectionsTotal, err = meter.Int64Counter(
		"quota_rejections_total",
		metric.WithDescription("Generation attempts rejected by the daily quota"),
		metric.WithUnit("{request}"),
	); err != nil {
		return nil, fmt.Errorf("quota_rejections_total: %w", err)
	}

	if m.ArchivalFailuresTotal, err = meter.Int64Counter(
		"comment_archival_failures_total",
		metric.WithDescription("Generated comments that could not be persisted"),
		metric.WithUnit("{error}"),
	); err != nil {
		return nil, fmt.Errorf("comment_archival_failures_total: %w", err)
	}

	if m.WebhookEventsTotal, err = meter.Int64Counter(
		"webhook_events_total",
		metric.WithDescription("Payment webhook events by type and outcome"),
		metric.WithUnit("{event}"),
	); err != nil {
		return nil, fmt.Errorf("webhook_events_total: %w", err)
	}

	if m.DbQueryErrorsTotal, err = meter.Int64Counter(
		"db_query_errors_total",
		metric.WithDescription("Total number of database query errors"),
		metric.WithUnit("{error}"),
	); err != nil {
		return nil, fmt.Errorf("db_query_errors_total: %w", err)
	}

	return m, nil
}

// Get returns the instruments, initializing them against whatever provider is
// installed. Without a provider the otel no-op meter is used.
func Get() *AppMetrics {
	if err := InitAppMetrics(); err != nil {
		panic("metrics instruments not initialized: " + err.Error())
	}
	return appMetrics
}
