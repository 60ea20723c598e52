package status

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testService = "sync"

func TestFileStatusPersistence_SaveAndLoad(t *testing.T) {
	t.Parallel()

	tmpDir := t.TempDir()

	persistence := NewFileStatusPersistence(tmpDir)
	require.NotNil(t, persistence)

	now := time.Now().UTC().Truncate(time.Second)
	testStatus := &RunStatus{
		Phase:        RunPhaseComplete,
		Message:      "Sync completed",
		RunID:        "4f1c2e0a-run",
		LastAttempt:  &now,
		AttemptCount: 0,
		LastSuccess:  &now,
		LastDuration: "1.5s",
		Counters:     map[string]int64{"inserted": 13, "pages": 2},
		Schedule:     "5m",
	}

	ctx := context.Background()
	require.NoError(t, persistence.SaveStatus(ctx, testService, testStatus))

	expectedPath := filepath.Join(tmpDir, testService, StatusFileName)
	_, err := os.Stat(expectedPath)
	require.NoError(t, err)

	loaded, err := persistence.LoadStatus(ctx, testService)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	require.Equal(t, testStatus.Phase, loaded.Phase)
	require.Equal(t, testStatus.Message, loaded.Message)
	require.Equal(t, testStatus.RunID, loaded.RunID)
	require.True(t, now.Equal(*loaded.LastSuccess))
	require.Equal(t, testStatus.Counters, loaded.Counters)
	require.Equal(t, "5m", loaded.Schedule)
}

func TestFileStatusPersistence_LoadNonExistent(t *testing.T) {
	t.Parallel()

	persistence := NewFileStatusPersistence(t.TempDir())

	loaded, err := persistence.LoadStatus(context.Background(), testService)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	require.Equal(t, RunPhase(""), loaded.Phase)
	require.Empty(t, loaded.Counters)
}

func TestFileStatusPersistence_UpdateStatus(t *testing.T) {
	t.Parallel()

	persistence := NewFileStatusPersistence(t.TempDir())
	ctx := context.Background()

	now1 := time.Now()
	require.NoError(t, persistence.SaveStatus(ctx, testService, &RunStatus{
		Phase:        RunPhaseRunning,
		Message:      "Running...",
		LastAttempt:  &now1,
		AttemptCount: 1,
	}))

	now2 := time.Now()
	require.NoError(t, persistence.SaveStatus(ctx, testService, &RunStatus{
		Phase:        RunPhaseFailed,
		Message:      "Fetch failed: HTTP 503",
		LastAttempt:  &now2,
		AttemptCount: 2,
	}))

	loaded, err := persistence.LoadStatus(ctx, testService)
	require.NoError(t, err)
	require.Equal(t, RunPhaseFailed, loaded.Phase)
	require.Equal(t, "Fetch failed: HTTP 503", loaded.Message)
	require.Equal(t, 2, loaded.AttemptCount)
	require.Nil(t, loaded.LastSuccess)
}

func TestFileStatusPersistence_AtomicWrite(t *testing.T) {
	t.Parallel()

	tmpDir := t.TempDir()
	persistence := NewFileStatusPersistence(tmpDir)

	now := time.Now()
	require.NoError(t, persistence.SaveStatus(context.Background(), testService, &RunStatus{
		Phase:       RunPhaseComplete,
		LastAttempt: &now,
	}))

	tempPath := filepath.Join(tmpDir, testService, StatusFileName) + ".tmp"
	_, err := os.Stat(tempPath)
	require.True(t, os.IsNotExist(err), "Temporary file should not exist after save")
}

func TestFileStatusPersistence_LoadAllStatus(t *testing.T) {
	t.Parallel()

	tmpDir := t.TempDir()
	persistence := NewFileStatusPersistence(tmpDir)
	ctx := context.Background()

	now := time.Now()
	require.NoError(t, persistence.SaveStatus(ctx, "sync", &RunStatus{
		Phase:       RunPhaseComplete,
		LastAttempt: &now,
		Counters:    map[string]int64{"inserted": 5},
	}))
	require.NoError(t, persistence.SaveStatus(ctx, "enrichment", &RunStatus{
		Phase:        RunPhaseFailed,
		Message:      "failed to select users",
		LastAttempt:  &now,
		AttemptCount: 3,
	}))

	// A service directory without a readable status is skipped.
	invalidDir := filepath.Join(tmpDir, "broken")
	require.NoError(t, os.MkdirAll(invalidDir, 0750))
	require.NoError(t, os.WriteFile(filepath.Join(invalidDir, StatusFileName), []byte("{invalid json}"), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "stray-file"), []byte("x"), 0600))

	result, err := persistence.LoadAllStatus(ctx)
	require.NoError(t, err)
	require.Len(t, result, 2)
	require.Equal(t, RunPhaseComplete, result["sync"].Phase)
	require.Equal(t, int64(5), result["sync"].Counters["inserted"])
	require.Equal(t, RunPhaseFailed, result["enrichment"].Phase)
	require.Equal(t, 3, result["enrichment"].AttemptCount)
	require.NotContains(t, result, "broken")
}

func TestFileStatusPersistence_LoadAllStatus_MissingDirectory(t *testing.T) {
	t.Parallel()

	for _, dir := range []string{t.TempDir(), filepath.Join(t.TempDir(), "nonexistent")} {
		result, err := NewFileStatusPersistence(dir).LoadAllStatus(context.Background())
		require.NoError(t, err)
		require.NotNil(t, result)
		require.Empty(t, result)
	}
}
