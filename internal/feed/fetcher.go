// Package feed reads the upstream paginated user feed.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"github.com/yagnadeepxo/avici-internal-dashboard/internal/httpclient"
	"github.com/yagnadeepxo/avici-internal-dashboard/internal/otel"
	"github.com/yagnadeepxo/avici-internal-dashboard/internal/store"
)

//go:generate mockgen -destination=mocks/mock_fetcher.go -package=mocks -source=fetcher.go PageFetcher

// TracerName is the name used for the feed tracer
const TracerName = "github.com/yagnadeepxo/avici-internal-dashboard/feed"

// statusOK is the application status the feed reports on success
const statusOK = 1

// ErrMalformedResponse is returned when a page body cannot be decoded
var ErrMalformedResponse = errors.New("malformed feed response")

// ApplicationError is returned when the feed answered successfully at the
// HTTP level but reported a non-success application status.
type ApplicationError struct {
	Page    int
	Status  int
	Message string
}

func (e *ApplicationError) Error() string {
	return fmt.Sprintf("feed page %d: application status %d: %s", e.Page, e.Status, e.Message)
}

// Page is one page of the feed, most recent users first
type Page struct {
	Number      int
	Users       []store.User
	HasNextPage bool
}

// PageFetcher fetches a single page of the feed
type PageFetcher interface {
	// FetchPage fetches page n (1-based). Transport failures are reported as
	// httpclient errors, application failures as *ApplicationError.
	FetchPage(ctx context.Context, n int) (*Page, error)
}

// HTTPFetcher is a PageFetcher backed by an httpclient.Client. The client is
// expected to carry the feed's rate limiter.
type HTTPFetcher struct {
	client  httpclient.Client
	baseURL string
	tracer  trace.Tracer
}

// Option configures an HTTPFetcher
type Option func(*HTTPFetcher)

// WithTracer enables a span per fetched page
func WithTracer(tracer trace.Tracer) Option {
	return func(f *HTTPFetcher) {
		f.tracer = tracer
	}
}

// NewHTTPFetcher creates a fetcher for the feed at baseURL
func NewHTTPFetcher(client httpclient.Client, baseURL string, opts ...Option) (*HTTPFetcher, error) {
	if client == nil {
		return nil, fmt.Errorf("http client is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid feed URL: %w", err)
	}
	f := &HTTPFetcher{client: client, baseURL: baseURL}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// FetchPage implements PageFetcher
func (f *HTTPFetcher) FetchPage(ctx context.Context, n int) (*Page, error) {
	if n < 1 {
		return nil, fmt.Errorf("page number must be at least 1, got %d", n)
	}

	ctx, span := otel.StartSpan(ctx, f.tracer, "feed.FetchPage",
		trace.WithAttributes(otel.AttrPage.Int(n)),
	)
	defer span.End()

	body, err := f.client.Get(ctx, PageURL(f.baseURL, n))
	if err != nil {
		otel.RecordError(span, err)
		return nil, fmt.Errorf("failed to fetch feed page %d: %w", n, err)
	}

	page, err := decodePage(ctx, n, body)
	if err != nil {
		otel.RecordError(span, err)
		return nil, err
	}

	span.SetAttributes(
		otel.AttrResultCount.Int(len(page.Users)),
		otel.AttrHasNextPage.Bool(page.HasNextPage),
	)
	return page, nil
}

// PageURL returns the URL of page n. Page 1 is the bare base URL.
func PageURL(baseURL string, n int) string {
	if n <= 1 {
		return baseURL
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		sep := "?"
		if strings.Contains(baseURL, "?") {
			sep = "&"
		}
		return baseURL + sep + "page=" + strconv.Itoa(n)
	}
	q := u.Query()
	q.Set("page", strconv.Itoa(n))
	u.RawQuery = q.Encode()
	return u.String()
}

type pageResponse struct {
	Status  *flexInt `json:"status"`
	Message string   `json:"message"`
	Data    struct {
		Users      []userRecord `json:"users"`
		Pagination struct {
			HasNextPage bool `json:"hasNextPage"`
		} `json:"pagination"`
	} `json:"data"`
}

type userRecord struct {
	UserID         flexString      `json:"user_id"`
	Email          string          `json:"email"`
	IPAddress      *string         `json:"ipAddress"`
	IdentifierType string          `json:"identifierType"`
	CreatedAt      json.RawMessage `json:"createdAt"`
	UpdatedAt      json.RawMessage `json:"updatedAt"`
}

func decodePage(ctx context.Context, n int, body []byte) (*Page, error) {
	var resp pageResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("page %d: %w: %v", n, ErrMalformedResponse, err)
	}

	if resp.Status == nil || int(*resp.Status) != statusOK {
		status := 0
		if resp.Status != nil {
			status = int(*resp.Status)
		}
		return nil, &ApplicationError{Page: n, Status: status, Message: resp.Message}
	}

	page := &Page{
		Number:      n,
		Users:       make([]store.User, 0, len(resp.Data.Users)),
		HasNextPage: resp.Data.Pagination.HasNextPage,
	}
	for i, rec := range resp.Data.Users {
		if rec.UserID == "" {
			slog.WarnContext(ctx, "Skipping feed record without user_id", "page", n, "index", i)
			continue
		}
		ip := rec.IPAddress
		if ip != nil && strings.TrimSpace(*ip) == "" {
			ip = nil
		}
		page.Users = append(page.Users, store.User{
			UserID:         string(rec.UserID),
			Email:          rec.Email,
			IPAddress:      ip,
			IdentifierType: rec.IdentifierType,
			CreatedAt:      parseTimestamp(rec.CreatedAt),
			UpdatedAt:      parseTimestamp(rec.UpdatedAt),
		})
	}
	return page, nil
}
