package enrich

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"
	"k8s.io/utils/clock"

	"github.com/yagnadeepxo/avici-internal-dashboard/internal/otel"
	"github.com/yagnadeepxo/avici-internal-dashboard/internal/store"
)

// Default pacing for a pass
const (
	DefaultBatchSize   = 100
	DefaultRecordDelay = time.Second
	DefaultBatchDelay  = 2 * time.Second
)

// Summary totals one enrichment pass
type Summary struct {
	Batches   int
	Processed int
	Enriched  int
	Skipped   int
	Failed    int
	Unchanged int
}

func (s *Summary) add(o Outcome) {
	s.Processed++
	switch o {
	case OutcomeEnriched:
		s.Enriched++
	case OutcomeSkipped:
		s.Skipped++
	case OutcomeFailed:
		s.Failed++
	case OutcomeUnchanged:
		s.Unchanged++
	}
}

// Config paces an Orchestrator
type Config struct {
	BatchSize   int
	RecordDelay time.Duration
	BatchDelay  time.Duration
}

// Orchestrator sweeps the store in batches and enriches every candidate
// sequentially.
type Orchestrator struct {
	selector store.EnrichmentStore
	enricher *Enricher
	cfg      Config
	clock    clock.Clock
	tracer   trace.Tracer
}

// OrchestratorOption configures an Orchestrator
type OrchestratorOption func(*Orchestrator)

// WithClock sets the clock used for delays
func WithClock(c clock.Clock) OrchestratorOption {
	return func(o *Orchestrator) {
		o.clock = c
	}
}

// WithOrchestratorTracer enables a span per pass
func WithOrchestratorTracer(tracer trace.Tracer) OrchestratorOption {
	return func(o *Orchestrator) {
		o.tracer = tracer
	}
}

// NewOrchestrator creates an Orchestrator. A zero batch size uses DefaultBatchSize.
func NewOrchestrator(
	selector store.EnrichmentStore, enricher *Enricher, cfg Config, opts ...OrchestratorOption,
) (*Orchestrator, error) {
	if cfg.BatchSize < 0 || cfg.RecordDelay < 0 || cfg.BatchDelay < 0 {
		return nil, fmt.Errorf("batch size and delays must not be negative")
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	o := &Orchestrator{
		selector: selector,
		enricher: enricher,
		cfg:      cfg,
		clock:    clock.RealClock{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Run performs one pass. It advances the offset by the batch size after
// every batch and stops at the first batch shorter than the batch size.
// The returned summary is valid even when an error is returned.
func (o *Orchestrator) Run(ctx context.Context) (*Summary, error) {
	ctx, span := otel.StartSpan(ctx, o.tracer, "enrich.Run",
		trace.WithAttributes(otel.AttrBatchSize.Int(o.cfg.BatchSize)),
	)
	defer span.End()

	summary := &Summary{}
	for offset := 0; ; offset += o.cfg.BatchSize {
		users, err := o.selector.SelectNeedingEnrichment(ctx, o.cfg.BatchSize, offset)
		if err != nil {
			otel.RecordError(span, err)
			return summary, fmt.Errorf("failed to select users at offset %d: %w", offset, err)
		}
		summary.Batches++

		slog.DebugContext(ctx, "Processing enrichment batch", "offset", offset, "count", len(users))

		for _, u := range users {
			outcome, err := o.enricher.Enrich(ctx, u)
			if err != nil {
				otel.RecordError(span, err)
				return summary, err
			}
			summary.add(outcome)

			if outcome.LookedUp() {
				if err := o.sleep(ctx, o.cfg.RecordDelay); err != nil {
					return summary, err
				}
			}
		}

		if len(users) < o.cfg.BatchSize {
			break
		}
		if err := o.sleep(ctx, o.cfg.BatchDelay); err != nil {
			return summary, err
		}
	}

	span.SetAttributes(otel.AttrResultCount.Int(summary.Processed))
	slog.InfoContext(ctx, "Enrichment pass completed",
		"batches", summary.Batches,
		"processed", summary.Processed,
		"enriched", summary.Enriched,
		"skipped", summary.Skipped,
		"failed", summary.Failed,
		"unchanged", summary.Unchanged)

	return summary, nil
}

func (o *Orchestrator) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := o.clock.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C():
		return nil
	}
}
