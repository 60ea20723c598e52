package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/yagnadeepxo/avici-internal-dashboard/internal/coordinator"
	"github.com/yagnadeepxo/avici-internal-dashboard/internal/feed"
	feedmocks "github.com/yagnadeepxo/avici-internal-dashboard/internal/feed/mocks"
	geomocks "github.com/yagnadeepxo/avici-internal-dashboard/internal/geo/mocks"
	"github.com/yagnadeepxo/avici-internal-dashboard/internal/status"
	"github.com/yagnadeepxo/avici-internal-dashboard/internal/store"
	"github.com/yagnadeepxo/avici-internal-dashboard/internal/store/inmemory"
)

func ptr(s string) *string { return &s }

func feedPage(n int, ids ...string) *feed.Page {
	users := make([]store.User, 0, len(ids))
	for _, id := range ids {
		users = append(users, store.User{UserID: id, Email: id + "@example.com"})
	}
	return &feed.Page{Number: n, Users: users}
}

func TestSyncApp_RunOnce(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	fetcher := feedmocks.NewMockPageFetcher(ctrl)
	fetcher.EXPECT().FetchPage(gomock.Any(), 1).Return(feedPage(1, "u-3", "u-2", "u-1"), nil).Times(2)

	st := inmemory.New()
	statuses := status.NewFileStatusPersistence(t.TempDir())

	app, err := NewSyncApp(context.Background(),
		WithConfig(createTestConfig()),
		WithStore(st),
		WithFetcher(fetcher),
		WithStatusPersistence(statuses),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close(context.Background()) })

	require.NoError(t, app.RunOnce(context.Background()))
	assert.Equal(t, 3, st.Len())

	cp, err := st.GetCheckpoint(context.Background(), "last_synced_user_id")
	require.NoError(t, err)
	assert.Equal(t, "u-3", cp.Value)

	s, err := statuses.LoadStatus(context.Background(), coordinator.ServiceSync)
	require.NoError(t, err)
	assert.Equal(t, status.RunPhaseComplete, s.Phase)
	assert.Equal(t, int64(3), s.Counters["inserted"])
}

func TestEnrichmentApp_RunOnce(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	locator := geomocks.NewMockLocator(ctrl)
	locator.EXPECT().Lookup(gomock.Any(), "8.8.8.8").Return(store.Enrichment{
		CountryNameOfficial: ptr("United States of America"),
		State:               ptr("California"),
		City:                ptr("Mountain View"),
		CountryCode:         ptr("US"),
	}, nil)

	st := inmemory.New()
	_, err := st.UpsertUsers(context.Background(), []store.User{
		{UserID: "u-1", IPAddress: ptr("8.8.8.8")},
		{UserID: "u-2", IPAddress: ptr("192.168.1.10")},
	})
	require.NoError(t, err)

	statuses := status.NewFileStatusPersistence(t.TempDir())
	app, err := NewEnrichmentApp(context.Background(),
		WithConfig(createTestConfig()),
		WithStore(st),
		WithLocator(locator),
		WithStatusPersistence(statuses),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close(context.Background()) })

	require.NoError(t, app.RunOnce(context.Background()))

	enriched, ok := st.User("u-1")
	require.True(t, ok)
	require.NotNil(t, enriched.City)
	assert.Equal(t, "Mountain View", *enriched.City)
	assert.Nil(t, enriched.District)

	s, err := statuses.LoadStatus(context.Background(), coordinator.ServiceEnrichment)
	require.NoError(t, err)
	assert.Equal(t, status.RunPhaseComplete, s.Phase)
	assert.Equal(t, int64(1), s.Counters["enriched"])
	assert.Equal(t, int64(1), s.Counters["skipped"])
}

func TestServiceApp_Serve(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	fetcher := feedmocks.NewMockPageFetcher(ctrl)
	fetcher.EXPECT().FetchPage(gomock.Any(), gomock.Any()).Return(nil, errors.New("feed unavailable")).AnyTimes()

	app, err := NewSyncApp(context.Background(),
		WithConfig(createTestConfig()),
		WithStore(inmemory.New()),
		WithFetcher(fetcher),
		WithStatusPersistence(status.NewFileStatusPersistence(t.TempDir())),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close(context.Background()) })

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- app.serve(ctx, listener)
	}()

	client := &http.Client{
		Timeout:   5 * time.Second,
		Transport: &http.Transport{DisableKeepAlives: true},
	}
	baseURL := fmt.Sprintf("http://%s", listener.Addr().String())

	for _, path := range []string{"/health", "/readiness", "/status", "/version"} {
		resp, err := client.Get(baseURL + path)
		require.NoError(t, err, path)
		_ = resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}

	// Prometheus is disabled in the test configuration
	resp, err := client.Get(baseURL + "/metrics")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("app did not shut down")
	}
}

func TestServiceApp_RunFailsOnBusyAddress(t *testing.T) {
	t.Parallel()

	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = busy.Close() })

	ctrl := gomock.NewController(t)
	app, err := NewSyncApp(context.Background(),
		WithConfig(createTestConfig()),
		WithAddress(busy.Addr().String()),
		WithStore(inmemory.New()),
		WithFetcher(feedmocks.NewMockPageFetcher(ctrl)),
		WithStatusPersistence(status.NewFileStatusPersistence(t.TempDir())),
	)
	require.NoError(t, err)

	require.ErrorContains(t, app.Run(context.Background()), "failed to listen")
}

func TestServiceApp_CloseRunsCleanupsOnce(t *testing.T) {
	t.Parallel()

	var order []int
	app := &ServiceApp{
		cleanups: []func(context.Context) error{
			func(context.Context) error { order = append(order, 1); return nil },
			func(context.Context) error { order = append(order, 2); return errors.New("flush failed") },
		},
	}

	require.ErrorContains(t, app.Close(context.Background()), "flush failed")
	require.NoError(t, app.Close(context.Background()))
	assert.Equal(t, []int{2, 1}, order)
}
