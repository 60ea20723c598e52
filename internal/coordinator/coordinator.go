package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"k8s.io/utils/clock"

	"github.com/yagnadeepxo/avici-internal-dashboard/internal/otel"
	"github.com/yagnadeepxo/avici-internal-dashboard/internal/status"
	"github.com/yagnadeepxo/avici-internal-dashboard/internal/telemetry"
)

// TracerName is the name used for the coordinator tracer
const TracerName = "github.com/yagnadeepxo/avici-internal-dashboard/coordinator"

// ErrRunInProgress is returned by RunOnce when another run of the same job
// holds the in-process or cross-process lock.
var ErrRunInProgress = errors.New("a run is already in progress")

// Coordinator manages background scheduling and execution of one job
type Coordinator interface {
	// Start runs the job immediately and then on every interval tick.
	// Blocks until context is cancelled.
	Start(ctx context.Context) error

	// Stop gracefully stops the coordinator loop
	Stop() error

	// RunOnce performs a single guarded run and returns its error
	RunOnce(ctx context.Context) error
}

// defaultCoordinator is the default implementation of Coordinator
type defaultCoordinator struct {
	job         Job
	interval    time.Duration
	persistence status.StatusPersistence

	// runMu prevents overlapping runs in this process
	runMu    sync.Mutex
	lockPath string

	// statusMu guards cachedStatus
	statusMu     sync.Mutex
	cachedStatus *status.RunStatus

	// Lifecycle management
	cancelFunc context.CancelFunc
	done       chan struct{}

	clock   clock.WithTicker
	metrics *telemetry.RunMetrics
	tracer  trace.Tracer
}

// Option is a function that configures the coordinator
type Option func(*defaultCoordinator)

// WithRunMetrics sets the run metrics for the coordinator
func WithRunMetrics(metrics *telemetry.RunMetrics) Option {
	return func(c *defaultCoordinator) {
		c.metrics = metrics
	}
}

// WithLockFile guards runs across processes with an advisory lock on path
func WithLockFile(path string) Option {
	return func(c *defaultCoordinator) {
		c.lockPath = path
	}
}

// WithClock sets the clock driving the ticker and status timestamps
func WithClock(clk clock.WithTicker) Option {
	return func(c *defaultCoordinator) {
		c.clock = clk
	}
}

// WithTracer enables a root span per run
func WithTracer(tracer trace.Tracer) Option {
	return func(c *defaultCoordinator) {
		c.tracer = tracer
	}
}

// New creates a new coordinator for job with injected dependencies
func New(job Job, persistence status.StatusPersistence, interval time.Duration, opts ...Option) Coordinator {
	c := &defaultCoordinator{
		job:         job,
		interval:    interval,
		persistence: persistence,
		done:        make(chan struct{}),
		clock:       clock.RealClock{},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Start begins background coordination of the job
func (c *defaultCoordinator) Start(ctx context.Context) error {
	if c.interval <= 0 {
		return fmt.Errorf("interval must be positive, got %s", c.interval)
	}

	slog.Info("Starting background coordinator", "service", c.job.Name(), "interval", c.interval)

	coordCtx, cancel := context.WithCancel(ctx)
	c.cancelFunc = cancel
	defer func() {
		close(c.done)
		slog.Info("Background coordinator shutting down", "service", c.job.Name())
	}()

	ticker := c.clock.NewTicker(c.interval)
	defer ticker.Stop()

	c.runScheduled(coordCtx)

	for {
		select {
		case <-ticker.C():
			c.runScheduled(coordCtx)
		case <-coordCtx.Done():
			slog.Info("Coordinator stopping", "service", c.job.Name())
			return nil
		}
	}
}

// Stop gracefully stops the coordinator
func (c *defaultCoordinator) Stop() error {
	if c.cancelFunc != nil {
		slog.Info("Stopping coordinator", "service", c.job.Name())
		c.cancelFunc()
		<-c.done
	}
	return nil
}

// RunOnce performs one guarded run
func (c *defaultCoordinator) RunOnce(ctx context.Context) error {
	return c.runGuarded(ctx)
}

// runScheduled runs the job on a tick. Failures are already logged and
// persisted; the loop keeps going.
func (c *defaultCoordinator) runScheduled(ctx context.Context) {
	if err := c.runGuarded(ctx); err != nil && ctx.Err() == nil {
		slog.Debug("Scheduled run did not succeed", "service", c.job.Name(), "error", err)
	}
}

func (c *defaultCoordinator) runGuarded(ctx context.Context) error {
	name := c.job.Name()

	if !c.runMu.TryLock() {
		slog.Warn("Skipping run, previous run still in progress", "service", name)
		c.metrics.RecordSkipped(ctx, name)
		return ErrRunInProgress
	}
	defer c.runMu.Unlock()

	if c.lockPath != "" {
		fileLock := flock.New(c.lockPath)
		locked, err := fileLock.TryLock()
		if err != nil {
			return fmt.Errorf("failed to acquire lock file %s: %w", c.lockPath, err)
		}
		if !locked {
			slog.Warn("Skipping run, lock held by another process", "service", name, "lock_file", c.lockPath)
			c.metrics.RecordSkipped(ctx, name)
			return ErrRunInProgress
		}
		defer func() {
			if err := fileLock.Unlock(); err != nil {
				slog.Error("Failed to release lock file", "service", name, "lock_file", c.lockPath, "error", err)
			}
		}()
	}

	return c.perform(ctx)
}

// perform executes the job and persists status before and after
func (c *defaultCoordinator) perform(ctx context.Context) error {
	name := c.job.Name()
	runID := uuid.NewString()

	ctx, span := otel.StartSpan(ctx, c.tracer, "coordinator.Run",
		trace.WithAttributes(
			otel.AttrService.String(name),
			attribute.String("run.id", runID),
		),
	)
	defer span.End()

	startTime := c.clock.Now()
	runStatus := c.loadStatus(ctx)
	runStatus.Phase = status.RunPhaseRunning
	runStatus.Message = "Run in progress"
	runStatus.RunID = runID
	runStatus.LastAttempt = &startTime
	runStatus.AttemptCount++
	runStatus.Schedule = c.schedule()
	c.saveStatus(ctx, runStatus)

	slog.InfoContext(ctx, "Starting run",
		"service", name,
		"run_id", runID,
		"attempt", runStatus.AttemptCount)

	report, err := c.job.Run(ctx)

	now := c.clock.Now()
	duration := now.Sub(startTime)
	runStatus.LastDuration = duration.String()

	if err != nil {
		runStatus.Phase = status.RunPhaseFailed
		runStatus.Message = err.Error()
		c.saveStatus(ctx, runStatus)
		c.metrics.RecordRun(ctx, name, duration, false)
		otel.RecordError(span, err)

		slog.ErrorContext(ctx, "Run failed",
			"service", name,
			"run_id", runID,
			"duration", duration,
			"error", err)
		return fmt.Errorf("%s run failed: %w", name, err)
	}

	runStatus.Phase = status.RunPhaseComplete
	runStatus.Message = report.Message
	runStatus.LastSuccess = &now
	runStatus.AttemptCount = 0
	runStatus.Counters = report.Counters
	c.saveStatus(ctx, runStatus)
	c.metrics.RecordRun(ctx, name, duration, true)

	slog.InfoContext(ctx, "Run completed successfully",
		"service", name,
		"run_id", runID,
		"duration", duration,
		"message", report.Message)
	return nil
}

func (c *defaultCoordinator) schedule() string {
	if c.interval <= 0 {
		return ""
	}
	return c.interval.String()
}

// loadStatus returns a copy of the last known status, reading it from
// persistence on first use.
func (c *defaultCoordinator) loadStatus(ctx context.Context) *status.RunStatus {
	c.statusMu.Lock()
	defer c.statusMu.Unlock()

	if c.cachedStatus == nil {
		loaded, err := c.persistence.LoadStatus(ctx, c.job.Name())
		if err != nil {
			slog.Warn("Failed to load run status, starting fresh", "service", c.job.Name(), "error", err)
			loaded = &status.RunStatus{}
		}
		c.cachedStatus = loaded
	}

	cp := *c.cachedStatus
	return &cp
}

func (c *defaultCoordinator) saveStatus(ctx context.Context, runStatus *status.RunStatus) {
	c.statusMu.Lock()
	cp := *runStatus
	c.cachedStatus = &cp
	c.statusMu.Unlock()

	// Persist on a context that survives cancellation so the final phase is recorded.
	if err := c.persistence.SaveStatus(context.WithoutCancel(ctx), c.job.Name(), &cp); err != nil {
		slog.Error("Error updating run status", "service", c.job.Name(), "error", err)
	}
}
