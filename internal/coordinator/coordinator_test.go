package coordinator_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/yagnadeepxo/avici-internal-dashboard/internal/coordinator"
	"github.com/yagnadeepxo/avici-internal-dashboard/internal/coordinator/mocks"
	"github.com/yagnadeepxo/avici-internal-dashboard/internal/status"
)

func newJob(ctrl *gomock.Controller) *mocks.MockJob {
	job := mocks.NewMockJob(ctrl)
	job.EXPECT().Name().Return(coordinator.ServiceSync).AnyTimes()
	return job
}

func loadStatus(t *testing.T, p status.StatusPersistence) *status.RunStatus {
	t.Helper()
	s, err := p.LoadStatus(context.Background(), coordinator.ServiceSync)
	require.NoError(t, err)
	return s
}

func TestCoordinator_Stop_BeforeStart(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	c := coordinator.New(newJob(ctrl), status.NewFileStatusPersistence(t.TempDir()), time.Minute)

	assert.NoError(t, c.Stop())
}

func TestCoordinator_Start_RequiresInterval(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	c := coordinator.New(newJob(ctrl), status.NewFileStatusPersistence(t.TempDir()), 0)

	require.Error(t, c.Start(context.Background()))
}

func TestCoordinator_RunOnce_Success(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	job := newJob(ctrl)
	persistence := status.NewFileStatusPersistence(t.TempDir())

	job.EXPECT().Run(gomock.Any()).DoAndReturn(func(context.Context) (coordinator.Report, error) {
		running := loadStatus(t, persistence)
		assert.Equal(t, status.RunPhaseRunning, running.Phase, "running phase is persisted before the job starts")
		return coordinator.Report{
			Message:  "full sync completed",
			Counters: map[string]int64{"inserted": 13},
		}, nil
	})

	c := coordinator.New(job, persistence, 5*time.Minute)
	require.NoError(t, c.RunOnce(context.Background()))

	s := loadStatus(t, persistence)
	assert.Equal(t, status.RunPhaseComplete, s.Phase)
	assert.Equal(t, "full sync completed", s.Message)
	assert.Equal(t, int64(13), s.Counters["inserted"])
	assert.Equal(t, 0, s.AttemptCount)
	assert.Equal(t, "5m0s", s.Schedule)
	assert.NotEmpty(t, s.RunID)
	require.NotNil(t, s.LastSuccess)
	require.NotNil(t, s.LastAttempt)
}

func TestCoordinator_RunOnce_FailuresCountAttempts(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	job := newJob(ctrl)
	persistence := status.NewFileStatusPersistence(t.TempDir())
	jobErr := errors.New("Fetch failed: HTTP 503")

	job.EXPECT().Run(gomock.Any()).Return(coordinator.Report{}, jobErr).Times(2)

	c := coordinator.New(job, persistence, time.Minute)
	require.ErrorIs(t, c.RunOnce(context.Background()), jobErr)

	firstRunID := loadStatus(t, persistence).RunID
	require.ErrorIs(t, c.RunOnce(context.Background()), jobErr)

	s := loadStatus(t, persistence)
	assert.Equal(t, status.RunPhaseFailed, s.Phase)
	assert.Equal(t, jobErr.Error(), s.Message)
	assert.Equal(t, 2, s.AttemptCount)
	assert.Nil(t, s.LastSuccess)
	assert.NotEqual(t, firstRunID, s.RunID)
}

func TestCoordinator_RunOnce_ResumesPersistedAttemptCount(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	job := newJob(ctrl)
	persistence := status.NewFileStatusPersistence(t.TempDir())
	require.NoError(t, persistence.SaveStatus(context.Background(), coordinator.ServiceSync, &status.RunStatus{
		Phase:        status.RunPhaseFailed,
		AttemptCount: 4,
	}))

	job.EXPECT().Run(gomock.Any()).Return(coordinator.Report{}, errors.New("boom"))

	c := coordinator.New(job, persistence, time.Minute)
	require.Error(t, c.RunOnce(context.Background()))
	assert.Equal(t, 5, loadStatus(t, persistence).AttemptCount)
}

func TestCoordinator_RunOnce_SkipsOverlappingRun(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	job := newJob(ctrl)
	persistence := status.NewFileStatusPersistence(t.TempDir())

	started := make(chan struct{})
	release := make(chan struct{})
	job.EXPECT().Run(gomock.Any()).DoAndReturn(func(context.Context) (coordinator.Report, error) {
		close(started)
		<-release
		return coordinator.Report{Message: "done"}, nil
	}).Times(1)

	c := coordinator.New(job, persistence, time.Minute)

	firstErr := make(chan error, 1)
	go func() {
		firstErr <- c.RunOnce(context.Background())
	}()
	<-started

	require.ErrorIs(t, c.RunOnce(context.Background()), coordinator.ErrRunInProgress)

	close(release)
	require.NoError(t, <-firstErr)
}

func TestCoordinator_RunOnce_HonoursLockFile(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	job := newJob(ctrl)
	dir := t.TempDir()
	lockPath := filepath.Join(dir, "sync.lock")

	other := flock.New(lockPath)
	locked, err := other.TryLock()
	require.NoError(t, err)
	require.True(t, locked)

	c := coordinator.New(job, status.NewFileStatusPersistence(dir), time.Minute, coordinator.WithLockFile(lockPath))
	require.ErrorIs(t, c.RunOnce(context.Background()), coordinator.ErrRunInProgress)

	require.NoError(t, other.Unlock())

	job.EXPECT().Run(gomock.Any()).Return(coordinator.Report{}, nil)
	require.NoError(t, c.RunOnce(context.Background()))
}

func TestCoordinator_Start_RunsImmediatelyAndOnTick(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	job := newJob(ctrl)
	fakeClock := testingclock.NewFakeClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	persistence := status.NewFileStatusPersistence(t.TempDir())

	runs := make(chan struct{}, 10)
	job.EXPECT().Run(gomock.Any()).DoAndReturn(func(context.Context) (coordinator.Report, error) {
		runs <- struct{}{}
		return coordinator.Report{Message: "ok"}, nil
	}).MinTimes(2)

	c := coordinator.New(job, persistence, 5*time.Minute, coordinator.WithClock(fakeClock))

	startErr := make(chan error, 1)
	go func() {
		startErr <- c.Start(context.Background())
	}()

	waitForRun := func() {
		select {
		case <-runs:
		case <-time.After(5 * time.Second):
			t.Fatal("expected a run")
		}
	}

	waitForRun()
	fakeClock.Step(5 * time.Minute)
	waitForRun()

	require.NoError(t, c.Stop())
	require.NoError(t, <-startErr)
}
