package feed_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yagnadeepxo/avici-internal-dashboard/internal/feed"
	"github.com/yagnadeepxo/avici-internal-dashboard/internal/httpclient"
)

func newTestServer(handler http.Handler) *httptest.Server {
	server := httptest.NewServer(handler)
	server.Config.SetKeepAlivesEnabled(false)
	return server
}

type pageRecorder struct {
	mu      sync.Mutex
	queries []string
}

func (r *pageRecorder) record(req *http.Request) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queries = append(r.queries, req.URL.RawQuery)
}

func (r *pageRecorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.queries...)
}

func newFetcher(t *testing.T, url string) *feed.HTTPFetcher {
	t.Helper()
	f, err := feed.NewHTTPFetcher(httpclient.NewDefaultClient(5*time.Second), url)
	require.NoError(t, err)
	return f
}

func TestHTTPFetcher_FetchPage(t *testing.T) {
	t.Parallel()

	rec := &pageRecorder{}
	server := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.record(r)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"status": 1,
			"message": "ok",
			"data": {
				"users": [
					{"user_id": "u-2", "email": "b@example.com", "ipAddress": "8.8.8.8", "identifierType": "email",
					 "createdAt": "2025-03-02T10:00:00Z", "updatedAt": "2025-03-02 10:00:00"},
					{"user_id": 17, "email": "a@example.com", "ipAddress": "", "identifierType": "wallet",
					 "createdAt": 1740823200000, "updatedAt": "not a date"},
					{"email": "missing-id@example.com"}
				],
				"pagination": {"hasNextPage": true}
			}
		}`))
	}))
	defer server.Close()

	f := newFetcher(t, server.URL+"/users?source=dashboard")

	page, err := f.FetchPage(context.Background(), 1)
	require.NoError(t, err)

	require.Len(t, page.Users, 2, "record without user_id is skipped")
	assert.True(t, page.HasNextPage)
	assert.Equal(t, 1, page.Number)

	first := page.Users[0]
	assert.Equal(t, "u-2", first.UserID)
	require.NotNil(t, first.IPAddress)
	assert.Equal(t, "8.8.8.8", *first.IPAddress)
	require.NotNil(t, first.CreatedAt)
	assert.Equal(t, time.Date(2025, 3, 2, 10, 0, 0, 0, time.UTC), *first.CreatedAt)
	require.NotNil(t, first.UpdatedAt)

	second := page.Users[1]
	assert.Equal(t, "17", second.UserID)
	assert.Nil(t, second.IPAddress, "blank ip is treated as absent")
	require.NotNil(t, second.CreatedAt)
	assert.Equal(t, int64(1740823200000), second.CreatedAt.UnixMilli())
	assert.Nil(t, second.UpdatedAt)

	_, err = f.FetchPage(context.Background(), 3)
	require.NoError(t, err)

	queries := rec.all()
	require.Len(t, queries, 2)
	assert.Equal(t, "source=dashboard", queries[0], "page 1 carries no page parameter")
	assert.Equal(t, "page=3&source=dashboard", queries[1])
}

func TestHTTPFetcher_ApplicationError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{
			name:       "status zero",
			body:       `{"status": 0, "message": "maintenance", "data": {"users": []}}`,
			wantStatus: 0,
		},
		{
			name:       "status as string",
			body:       `{"status": "2", "message": "denied"}`,
			wantStatus: 2,
		},
		{
			name:       "status missing",
			body:       `{"data": {"users": []}}`,
			wantStatus: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := newFetcher(t, server.URL).FetchPage(context.Background(), 2)
			require.Error(t, err)

			var appErr *feed.ApplicationError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, tt.wantStatus, appErr.Status)
			assert.Equal(t, 2, appErr.Page)
		})
	}
}

func TestHTTPFetcher_TransportAndDecodeErrors(t *testing.T) {
	t.Parallel()

	t.Run("http error status", func(t *testing.T) {
		t.Parallel()

		server := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer server.Close()

		_, err := newFetcher(t, server.URL).FetchPage(context.Background(), 1)
		var respErr *httpclient.ResponseError
		require.ErrorAs(t, err, &respErr)
		assert.Equal(t, http.StatusBadGateway, respErr.StatusCode)
	})

	t.Run("malformed body", func(t *testing.T) {
		t.Parallel()

		server := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"status": 1, "data": `))
		}))
		defer server.Close()

		_, err := newFetcher(t, server.URL).FetchPage(context.Background(), 1)
		require.ErrorIs(t, err, feed.ErrMalformedResponse)
	})

	t.Run("invalid page number", func(t *testing.T) {
		t.Parallel()

		f := newFetcher(t, "http://127.0.0.1:1")
		_, err := f.FetchPage(context.Background(), 0)
		require.Error(t, err)
	})
}

func TestNewHTTPFetcher_RequiresClient(t *testing.T) {
	t.Parallel()

	_, err := feed.NewHTTPFetcher(nil, "http://example.com")
	require.Error(t, err)
}

func TestPageURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		base string
		page int
		want string
	}{
		{base: "https://api.example.com/users", page: 1, want: "https://api.example.com/users"},
		{base: "https://api.example.com/users", page: 2, want: "https://api.example.com/users?page=2"},
		{base: "https://api.example.com/users?page=9", page: 4, want: "https://api.example.com/users?page=4"},
		{base: "https://api.example.com/users?limit=50", page: 2, want: "https://api.example.com/users?limit=50&page=2"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, feed.PageURL(tt.base, tt.page))
	}
}
