package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	// RunMetricsMeterName is the meter used for coordinator run metrics
	RunMetricsMeterName = "github.com/yagnadeepxo/avici-internal-dashboard/coordinator"

	// SyncMetricsMeterName is the meter used for sync metrics
	SyncMetricsMeterName = "github.com/yagnadeepxo/avici-internal-dashboard/sync"

	// EnrichmentMetricsMeterName is the meter used for enrichment metrics
	EnrichmentMetricsMeterName = "github.com/yagnadeepxo/avici-internal-dashboard/enrich"

	// LimiterMetricsMeterName is the meter used for rate limiter metrics
	LimiterMetricsMeterName = "github.com/yagnadeepxo/avici-internal-dashboard/ratelimit"
)

// RunMetrics holds the instruments recorded by the coordinator for every run.
// A nil *RunMetrics is a valid no-op recorder.
type RunMetrics struct {
	runDuration metric.Float64Histogram
	runsSkipped metric.Int64Counter
}

// NewRunMetrics creates run metrics. If provider is nil, it returns nil (no-op metrics).
func NewRunMetrics(provider metric.MeterProvider) (*RunMetrics, error) {
	if provider == nil {
		return nil, nil
	}
	meter := provider.Meter(RunMetricsMeterName)

	runDuration, err := meter.Float64Histogram(
		"avici_run_duration_seconds",
		metric.WithDescription("Duration of sync and enrichment runs in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.5, 1, 5, 10, 30, 60, 120, 300, 600, 1800),
	)
	if err != nil {
		return nil, err
	}

	runsSkipped, err := meter.Int64Counter(
		"avici_runs_skipped_total",
		metric.WithDescription("Runs skipped because a previous run was still in progress"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, err
	}

	return &RunMetrics{runDuration: runDuration, runsSkipped: runsSkipped}, nil
}

// RecordRun records the duration and outcome of one run
func (m *RunMetrics) RecordRun(ctx context.Context, service string, duration time.Duration, success bool) {
	if m == nil || m.runDuration == nil {
		return
	}
	m.runDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("service", service),
		attribute.Bool("success", success),
	))
}

// RecordSkipped records a trigger that was dropped due to an overlapping run
func (m *RunMetrics) RecordSkipped(ctx context.Context, service string) {
	if m == nil || m.runsSkipped == nil {
		return
	}
	m.runsSkipped.Add(ctx, 1, metric.WithAttributes(attribute.String("service", service)))
}

// SyncMetrics holds the instruments for the user sync
type SyncMetrics struct {
	pagesFetched  metric.Int64Counter
	usersUpserted metric.Int64Counter
	usersInserted metric.Int64Counter
}

// NewSyncMetrics creates sync metrics. If provider is nil, it returns nil (no-op metrics).
func NewSyncMetrics(provider metric.MeterProvider) (*SyncMetrics, error) {
	if provider == nil {
		return nil, nil
	}
	meter := provider.Meter(SyncMetricsMeterName)

	pagesFetched, err := meter.Int64Counter(
		"avici_sync_pages_fetched_total",
		metric.WithDescription("Feed pages fetched"),
		metric.WithUnit("{page}"),
	)
	if err != nil {
		return nil, err
	}
	usersUpserted, err := meter.Int64Counter(
		"avici_sync_users_upserted_total",
		metric.WithDescription("Users submitted to the store"),
		metric.WithUnit("{user}"),
	)
	if err != nil {
		return nil, err
	}
	usersInserted, err := meter.Int64Counter(
		"avici_sync_users_inserted_total",
		metric.WithDescription("Users newly created in the store"),
		metric.WithUnit("{user}"),
	)
	if err != nil {
		return nil, err
	}

	return &SyncMetrics{
		pagesFetched:  pagesFetched,
		usersUpserted: usersUpserted,
		usersInserted: usersInserted,
	}, nil
}

// RecordPageFetched counts one fetched feed page
func (m *SyncMetrics) RecordPageFetched(ctx context.Context, mode string) {
	if m == nil || m.pagesFetched == nil {
		return
	}
	m.pagesFetched.Add(ctx, 1, metric.WithAttributes(attribute.String("mode", mode)))
}

// RecordUpsert counts users submitted and actually inserted by one upsert
func (m *SyncMetrics) RecordUpsert(ctx context.Context, mode string, submitted, inserted int64) {
	if m == nil || m.usersUpserted == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("mode", mode))
	m.usersUpserted.Add(ctx, submitted, attrs)
	m.usersInserted.Add(ctx, inserted, attrs)
}

// EnrichmentMetrics holds the instruments for geolocation enrichment
type EnrichmentMetrics struct {
	records metric.Int64Counter
}

// NewEnrichmentMetrics creates enrichment metrics. If provider is nil, it returns nil (no-op metrics).
func NewEnrichmentMetrics(provider metric.MeterProvider) (*EnrichmentMetrics, error) {
	if provider == nil {
		return nil, nil
	}
	records, err := provider.Meter(EnrichmentMetricsMeterName).Int64Counter(
		"avici_enrichment_records_total",
		metric.WithDescription("Records processed by the enrichment service, by outcome"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		return nil, err
	}
	return &EnrichmentMetrics{records: records}, nil
}

// RecordOutcome counts one processed record
func (m *EnrichmentMetrics) RecordOutcome(ctx context.Context, outcome string) {
	if m == nil || m.records == nil {
		return
	}
	m.records.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// LimiterMetrics records time callers spent blocked on a rate limiter
type LimiterMetrics struct {
	wait metric.Float64Histogram
}

// NewLimiterMetrics creates limiter metrics. If provider is nil, it returns nil (no-op metrics).
func NewLimiterMetrics(provider metric.MeterProvider) (*LimiterMetrics, error) {
	if provider == nil {
		return nil, nil
	}
	wait, err := provider.Meter(LimiterMetricsMeterName).Float64Histogram(
		"avici_ratelimit_wait_seconds",
		metric.WithDescription("Time spent waiting for an upstream call slot"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 2.5, 5, 10, 15),
	)
	if err != nil {
		return nil, err
	}
	return &LimiterMetrics{wait: wait}, nil
}

// WaitObserver returns a callback suitable for ratelimit.WithWaitObserver
func (m *LimiterMetrics) WaitObserver(api string) func(time.Duration) {
	return func(d time.Duration) {
		if m == nil || m.wait == nil {
			return
		}
		m.wait.Record(context.Background(), d.Seconds(), metric.WithAttributes(attribute.String("api", api)))
	}
}
