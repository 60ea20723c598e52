package httpclient

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResponseError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		statusCode    int
		url           string
		message       string
		expectedError string
	}{
		{
			name:          "create ResponseError with all fields",
			statusCode:    404,
			url:           "http://example.com",
			message:       "Not Found",
			expectedError: "HTTP 404 for URL http://example.com: Not Found",
		},
		{
			name:          "handle empty message",
			statusCode:    500,
			url:           "http://api.example.com/v1/users",
			message:       "",
			expectedError: "HTTP 500 for URL http://api.example.com/v1/users: ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := NewResponseError(tt.statusCode, tt.url, tt.message)

			require.Error(t, err)
			assert.Equal(t, tt.expectedError, err.Error())

			var respErr *ResponseError
			require.True(t, errors.As(err, &respErr))
			assert.Equal(t, tt.statusCode, respErr.StatusCode)
		})
	}
}

func TestErrorClassification(t *testing.T) {
	t.Parallel()

	cause := errors.New("boom")

	tests := []struct {
		name         string
		err          error
		wantLocal    bool
		wantConsumed bool
	}{
		{name: "local", err: &LocalError{URL: "u", Err: cause}, wantLocal: true},
		{name: "network", err: &NetworkError{URL: "u", Err: cause}, wantConsumed: true},
		{name: "response", err: NewResponseError(503, "u", "down"), wantConsumed: true},
		{name: "plain", err: cause},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.wantLocal, IsLocal(tt.err))
			assert.Equal(t, tt.wantConsumed, ConsumedCall(tt.err))
		})
	}

	assert.ErrorIs(t, &NetworkError{Err: cause}, cause)
	assert.ErrorIs(t, &LocalError{Err: cause}, cause)
}

func TestRedactURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "no query",
			raw:  "https://feed.example.com/users",
			want: "https://feed.example.com/users",
		},
		{
			name: "non sensitive query kept verbatim",
			raw:  "https://feed.example.com/users?page=2",
			want: "https://feed.example.com/users?page=2",
		},
		{
			name: "api key masked",
			raw:  "https://geo.example.com/ipgeo?apiKey=abc&ip=1.1.1.1",
			want: "https://geo.example.com/ipgeo?apiKey=REDACTED&ip=1.1.1.1",
		},
		{
			name: "unparsable input returned as is",
			raw:  "://nope",
			want: "://nope",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, redactURL(tt.raw))
		})
	}
}
