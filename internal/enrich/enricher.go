// Package enrich fills missing geolocation columns on stored users.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"github.com/yagnadeepxo/avici-internal-dashboard/internal/geo"
	"github.com/yagnadeepxo/avici-internal-dashboard/internal/otel"
	"github.com/yagnadeepxo/avici-internal-dashboard/internal/store"
	"github.com/yagnadeepxo/avici-internal-dashboard/internal/telemetry"
)

// TracerName is the name used for the enrichment tracer
const TracerName = "github.com/yagnadeepxo/avici-internal-dashboard/enrich"

// Outcome is what happened to one candidate user
type Outcome string

const (
	// OutcomeEnriched means at least one column was written
	OutcomeEnriched Outcome = "enriched"
	// OutcomeSkipped means the IP address was absent, invalid or private and no lookup was made
	OutcomeSkipped Outcome = "skipped"
	// OutcomeFailed means the lookup failed; the user is retried on a later pass
	OutcomeFailed Outcome = "failed"
	// OutcomeUnchanged means the lookup succeeded but offered nothing for a null column
	OutcomeUnchanged Outcome = "unchanged"
)

// LookedUp reports whether the outcome involved a geolocation API call
func (o Outcome) LookedUp() bool {
	return o != OutcomeSkipped
}

// Enricher enriches a single user
type Enricher struct {
	locator geo.Locator
	store   store.EnrichmentStore
	metrics *telemetry.EnrichmentMetrics
	tracer  trace.Tracer
}

// EnricherOption configures an Enricher
type EnricherOption func(*Enricher)

// WithMetrics counts outcomes
func WithMetrics(metrics *telemetry.EnrichmentMetrics) EnricherOption {
	return func(e *Enricher) {
		e.metrics = metrics
	}
}

// WithTracer enables a span per user
func WithTracer(tracer trace.Tracer) EnricherOption {
	return func(e *Enricher) {
		e.tracer = tracer
	}
}

// NewEnricher creates an Enricher
func NewEnricher(locator geo.Locator, s store.EnrichmentStore, opts ...EnricherOption) *Enricher {
	e := &Enricher{locator: locator, store: s}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Enrich looks up the user's IP address and writes every returned field whose
// column is still null. Lookup failures are reported as OutcomeFailed; only
// store failures and cancellation return an error.
func (e *Enricher) Enrich(ctx context.Context, user store.User) (Outcome, error) {
	ctx, span := otel.StartSpan(ctx, e.tracer, "enrich.Enrich",
		trace.WithAttributes(otel.AttrUserID.String(user.UserID)),
	)
	defer span.End()

	outcome, err := e.enrich(ctx, user)
	if err != nil {
		otel.RecordError(span, err)
		return outcome, err
	}
	e.metrics.RecordOutcome(ctx, string(outcome))
	return outcome, nil
}

func (e *Enricher) enrich(ctx context.Context, user store.User) (Outcome, error) {
	if user.IPAddress == nil || geo.IsPrivateOrInvalid(*user.IPAddress) {
		slog.DebugContext(ctx, "Skipping user with private or invalid IP", "user_id", user.UserID)
		return OutcomeSkipped, nil
	}

	candidate, err := e.locator.Lookup(ctx, *user.IPAddress)
	if err != nil {
		if ctx.Err() != nil {
			return OutcomeFailed, ctx.Err()
		}
		slog.WarnContext(ctx, "Geolocation lookup failed", "user_id", user.UserID, "error", err)
		return OutcomeFailed, nil
	}
	if candidate.Empty() {
		return OutcomeUnchanged, nil
	}

	current, err := e.store.GetEnrichment(ctx, user.UserID)
	if errors.Is(err, store.ErrNotFound) {
		slog.WarnContext(ctx, "User disappeared before enrichment", "user_id", user.UserID)
		return OutcomeUnchanged, nil
	}
	if err != nil {
		return OutcomeFailed, fmt.Errorf("failed to read enrichment for user %s: %w", user.UserID, err)
	}

	updates := current.FillMissing(candidate)
	if updates.Empty() {
		return OutcomeUnchanged, nil
	}

	changed, err := e.store.UpdateEnrichment(ctx, user.UserID, updates)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("failed to update enrichment for user %s: %w", user.UserID, err)
	}
	if !changed {
		return OutcomeUnchanged, nil
	}

	slog.DebugContext(ctx, "User enriched", "user_id", user.UserID)
	return OutcomeEnriched, nil
}
