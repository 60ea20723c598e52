package status

import "time"

// RunPhase represents the current phase of a service run
type RunPhase string

const (
	// RunPhaseRunning means a run is currently in progress
	RunPhaseRunning RunPhase = "Running"

	// RunPhaseComplete means the last run completed successfully
	RunPhaseComplete RunPhase = "Complete"

	// RunPhaseFailed means the last run failed
	RunPhaseFailed RunPhase = "Failed"
)

// RunStatus represents the state of a scheduled service (sync or enrichment)
type RunStatus struct {
	// Phase represents the current run phase
	Phase RunPhase `json:"phase"`

	// Message provides additional information about the last run
	Message string `json:"message,omitempty"`

	// RunID identifies the last started run in logs
	RunID string `json:"runId,omitempty"`

	// LastAttempt is the timestamp of the last run attempt
	LastAttempt *time.Time `json:"lastAttempt,omitempty"`

	// AttemptCount is the number of attempts since the last success
	AttemptCount int `json:"attemptCount,omitempty"`

	// LastSuccess is the timestamp of the last successful run
	LastSuccess *time.Time `json:"lastSuccess,omitempty"`

	// LastDuration is how long the last finished run took
	LastDuration string `json:"lastDuration,omitempty"`

	// Counters holds the totals reported by the last successful run,
	// e.g. inserted users or enriched records.
	Counters map[string]int64 `json:"counters,omitempty"`

	// Schedule is the configured run interval (e.g. "5m")
	Schedule string `json:"schedule,omitempty"`
}
