// Package httpclient provides the rate-limited HTTP GET client used to reach
// the upstream user feed and the geolocation API.
package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/yagnadeepxo/avici-internal-dashboard/internal/ratelimit"
)

const (
	// DefaultTimeout is the default timeout for HTTP requests
	DefaultTimeout = 30 * time.Second

	// MaxResponseSize is the maximum allowed response size (10MB)
	MaxResponseSize = 10 * 1024 * 1024

	// UserAgent is the user agent string for HTTP requests
	UserAgent = "avici-sync/1.0"
)

// Client is an interface for HTTP operations
type Client interface {
	// Get performs an HTTP GET request and returns the response body.
	// Failures are one of *LocalError, *NetworkError or *ResponseError.
	Get(ctx context.Context, url string) ([]byte, error)
}

// DefaultClient is the default HTTP client implementation
type DefaultClient struct {
	client  *http.Client
	timeout time.Duration
	limiter ratelimit.Limiter
}

// Option configures a DefaultClient
type Option func(*DefaultClient)

// WithLimiter gates every request through the given limiter
func WithLimiter(l ratelimit.Limiter) Option {
	return func(c *DefaultClient) {
		c.limiter = l
	}
}

// WithTransport replaces the underlying round tripper
func WithTransport(rt http.RoundTripper) Option {
	return func(c *DefaultClient) {
		c.client.Transport = rt
	}
}

// NewDefaultClient creates a new default HTTP client with the specified timeout
// If timeout is 0, uses DefaultTimeout
func NewDefaultClient(timeout time.Duration, opts ...Option) *DefaultClient {
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	c := &DefaultClient{
		client: &http.Client{
			Timeout: timeout,
		},
		timeout: timeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get performs an HTTP GET request.
//
// When a limiter is configured a slot is acquired before anything else. The
// slot is given back if the request could not be built, since such a call
// never reaches the upstream; network and response failures keep it.
func (c *DefaultClient) Get(ctx context.Context, rawURL string) ([]byte, error) {
	safeURL := redactURL(rawURL)

	var reservation *ratelimit.Reservation
	if c.limiter != nil {
		var err error
		reservation, err = c.limiter.Acquire(ctx)
		if err != nil {
			return nil, &LocalError{URL: safeURL, Err: fmt.Errorf("rate limiter: %w", err)}
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err == nil && (req.URL.Host == "" || (req.URL.Scheme != "http" && req.URL.Scheme != "https")) {
		err = fmt.Errorf("unsupported URL %q", safeURL)
	}
	if err != nil {
		reservation.Cancel()
		return nil, &LocalError{URL: safeURL, Err: fmt.Errorf("failed to create request: %w", stripURL(err))}
	}

	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &NetworkError{URL: safeURL, Err: fmt.Errorf("failed to execute request: %w", stripURL(err))}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, NewResponseError(resp.StatusCode, safeURL, resp.Status)
	}

	if resp.ContentLength > MaxResponseSize {
		return nil, NewResponseError(resp.StatusCode, safeURL,
			fmt.Sprintf("response size %d bytes exceeds maximum allowed size of %d bytes (%.2f MB)",
				resp.ContentLength, MaxResponseSize, float64(MaxResponseSize)/(1024*1024)))
	}

	// +1 to detect if limit exceeded
	limitedReader := io.LimitReader(resp.Body, MaxResponseSize+1)
	body, err := io.ReadAll(limitedReader)
	if err != nil {
		return nil, &NetworkError{URL: safeURL, Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	if int64(len(body)) > MaxResponseSize {
		return nil, NewResponseError(resp.StatusCode, safeURL,
			fmt.Sprintf("response size exceeds maximum allowed size of %d bytes (%.2f MB)",
				MaxResponseSize, float64(MaxResponseSize)/(1024*1024)))
	}

	return body, nil
}

// stripURL unwraps *url.Error so the raw request URL, which may carry an API
// key, does not leak into logs through the error chain.
func stripURL(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		return urlErr.Err
	}
	return err
}
