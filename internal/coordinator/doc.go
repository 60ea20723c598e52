// Package coordinator schedules the sync and enrichment services.
//
// A Coordinator owns one Job. Start runs the job once immediately and then on
// every tick of the configured interval until the context is cancelled.
// RunOnce performs a single run for one-shot invocations.
//
// # Overlap
//
// Runs of the same job never overlap. An in-process mutex rejects a run that
// starts while another is still going, and an optional advisory lock file
// (WithLockFile) extends the guarantee to other processes sharing the file.
// A rejected run is logged, counted as skipped and reported to RunOnce
// callers as ErrRunInProgress.
//
// # Status
//
// Every run gets a run ID. The run status is persisted through
// status.StatusPersistence when the run starts and again when it finishes,
// recording the phase, attempt count, duration and the counters from the
// job's Report.
//
// # Jobs
//
// NewSyncJob and NewEnrichmentJob adapt the sync manager and the enrichment
// orchestrator to Job.
package coordinator
