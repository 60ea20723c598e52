package coordinator_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/yagnadeepxo/avici-internal-dashboard/internal/coordinator"
	"github.com/yagnadeepxo/avici-internal-dashboard/internal/coordinator/mocks"
	"github.com/yagnadeepxo/avici-internal-dashboard/internal/enrich"
	pkgsync "github.com/yagnadeepxo/avici-internal-dashboard/internal/sync"
	syncmocks "github.com/yagnadeepxo/avici-internal-dashboard/internal/sync/mocks"
)

func TestSyncJob(t *testing.T) {
	t.Parallel()

	t.Run("success reports counters", func(t *testing.T) {
		t.Parallel()

		ctrl := gomock.NewController(t)
		manager := syncmocks.NewMockManager(ctrl)
		manager.EXPECT().PerformSync(gomock.Any()).Return(&pkgsync.Result{
			Mode:         pkgsync.ModeIncremental,
			PagesFetched: 2,
			Upserted:     9,
			Inserted:     9,
			Checkpoint:   "u-100",
		}, nil)

		job := coordinator.NewSyncJob(manager)
		assert.Equal(t, coordinator.ServiceSync, job.Name())

		report, err := job.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, map[string]int64{"pages": 2, "upserted": 9, "inserted": 9}, report.Counters)
		assert.Contains(t, report.Message, "incremental")
		assert.Contains(t, report.Message, "u-100")
	})

	t.Run("failure keeps the sync error", func(t *testing.T) {
		t.Parallel()

		ctrl := gomock.NewController(t)
		manager := syncmocks.NewMockManager(ctrl)
		manager.EXPECT().PerformSync(gomock.Any()).Return(nil, &pkgsync.Error{
			Err:     errors.New("timeout"),
			Message: "Fetch failed: timeout",
			Reason:  pkgsync.ReasonFetchFailed,
		})

		_, err := coordinator.NewSyncJob(manager).Run(context.Background())
		require.Error(t, err)

		var syncErr *pkgsync.Error
		require.ErrorAs(t, err, &syncErr)
		assert.Equal(t, pkgsync.ReasonFetchFailed, syncErr.Reason)
	})
}

func TestEnrichmentJob(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	runner := mocks.NewMockEnrichmentRunner(ctrl)
	runErr := errors.New("select failed")

	gomock.InOrder(
		runner.EXPECT().Run(gomock.Any()).Return(&enrich.Summary{
			Batches: 2, Processed: 150, Enriched: 90, Skipped: 40, Failed: 5, Unchanged: 15,
		}, nil),
		runner.EXPECT().Run(gomock.Any()).Return(&enrich.Summary{Processed: 3}, runErr),
	)

	job := coordinator.NewEnrichmentJob(runner)
	assert.Equal(t, coordinator.ServiceEnrichment, job.Name())

	report, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(90), report.Counters["enriched"])
	assert.Equal(t, int64(40), report.Counters["skipped"])
	assert.Equal(t, "Enrichment completed: 150 processed, 90 enriched", report.Message)

	_, err = job.Run(context.Background())
	require.ErrorIs(t, err, runErr)
}
