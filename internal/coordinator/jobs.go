package coordinator

import (
	"context"
	"fmt"

	"github.com/yagnadeepxo/avici-internal-dashboard/internal/enrich"
	pkgsync "github.com/yagnadeepxo/avici-internal-dashboard/internal/sync"
)

//go:generate mockgen -destination=mocks/mock_job.go -package=mocks -source=jobs.go Job,EnrichmentRunner

// Service names, also used as status directory names
const (
	ServiceSync       = "sync"
	ServiceEnrichment = "enrichment"
)

// Report summarises a successful run
type Report struct {
	Message  string
	Counters map[string]int64
}

// Job is the unit of work a Coordinator schedules
type Job interface {
	// Name identifies the job in logs, metrics and status files
	Name() string

	// Run performs one pass
	Run(ctx context.Context) (Report, error)
}

// EnrichmentRunner performs one enrichment pass
type EnrichmentRunner interface {
	Run(ctx context.Context) (*enrich.Summary, error)
}

type syncJob struct {
	manager pkgsync.Manager
}

// NewSyncJob adapts a sync manager to a Job
func NewSyncJob(manager pkgsync.Manager) Job {
	return &syncJob{manager: manager}
}

func (*syncJob) Name() string {
	return ServiceSync
}

func (j *syncJob) Run(ctx context.Context) (Report, error) {
	result, syncErr := j.manager.PerformSync(ctx)
	if syncErr != nil {
		return Report{}, syncErr
	}
	return Report{
		Message: fmt.Sprintf("%s sync completed: %d of %d users inserted, checkpoint %s",
			result.Mode, result.Inserted, result.Upserted, result.Checkpoint),
		Counters: map[string]int64{
			"pages":    int64(result.PagesFetched),
			"upserted": int64(result.Upserted),
			"inserted": result.Inserted,
		},
	}, nil
}

type enrichmentJob struct {
	runner EnrichmentRunner
}

// NewEnrichmentJob adapts an enrichment runner to a Job
func NewEnrichmentJob(runner EnrichmentRunner) Job {
	return &enrichmentJob{runner: runner}
}

func (*enrichmentJob) Name() string {
	return ServiceEnrichment
}

func (j *enrichmentJob) Run(ctx context.Context) (Report, error) {
	summary, err := j.runner.Run(ctx)
	if err != nil {
		return Report{}, err
	}
	return Report{
		Message: fmt.Sprintf("Enrichment completed: %d processed, %d enriched",
			summary.Processed, summary.Enriched),
		Counters: map[string]int64{
			"batches":   int64(summary.Batches),
			"processed": int64(summary.Processed),
			"enriched":  int64(summary.Enriched),
			"skipped":   int64(summary.Skipped),
			"failed":    int64(summary.Failed),
			"unchanged": int64(summary.Unchanged),
		},
	}, nil
}
