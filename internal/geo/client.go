// Package geo resolves IP addresses to location data through the upstream
// geolocation API.
package geo

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel/trace"

	"github.com/yagnadeepxo/avici-internal-dashboard/internal/httpclient"
	"github.com/yagnadeepxo/avici-internal-dashboard/internal/otel"
	"github.com/yagnadeepxo/avici-internal-dashboard/internal/store"
)

//go:generate mockgen -destination=mocks/mock_locator.go -package=mocks -source=client.go Locator

// TracerName is the name used for the geolocation tracer
const TracerName = "github.com/yagnadeepxo/avici-internal-dashboard/geo"

// ErrMalformedResponse is returned when the lookup body is not a JSON object
var ErrMalformedResponse = errors.New("malformed geolocation response")

// Response paths mapped onto the enrichment columns.
const (
	pathCountryNameOfficial = "location.country_name_official"
	pathState               = "location.state_prov"
	pathCity                = "location.city"
	pathDistrict            = "location.district"
	pathCountryCode         = "location.country_code2"
)

// Locator looks up location data for an IP address
type Locator interface {
	// Lookup returns the candidate enrichment for ip. Fields the API did not
	// provide are nil.
	Lookup(ctx context.Context, ip string) (store.Enrichment, error)
}

// Client is a Locator backed by the geolocation HTTP API
type Client struct {
	client  httpclient.Client
	baseURL string
	apiKey  string
	tracer  trace.Tracer
}

// Option configures a Client
type Option func(*Client)

// WithTracer enables a span per lookup
func WithTracer(tracer trace.Tracer) Option {
	return func(c *Client) {
		c.tracer = tracer
	}
}

// NewClient creates a geolocation client. The API key is sent as the apiKey
// query parameter on every lookup.
func NewClient(client httpclient.Client, baseURL, apiKey string, opts ...Option) (*Client, error) {
	if client == nil {
		return nil, fmt.Errorf("http client is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid geolocation URL: %w", err)
	}
	c := &Client{client: client, baseURL: baseURL, apiKey: apiKey}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Lookup implements Locator
func (c *Client) Lookup(ctx context.Context, ip string) (store.Enrichment, error) {
	ctx, span := otel.StartSpan(ctx, c.tracer, "geo.Lookup")
	defer span.End()

	lookupURL, err := c.lookupURL(ip)
	if err != nil {
		otel.RecordError(span, err)
		return store.Enrichment{}, err
	}

	body, err := c.client.Get(ctx, lookupURL)
	if err != nil {
		otel.RecordError(span, err)
		return store.Enrichment{}, fmt.Errorf("geolocation lookup failed: %w", err)
	}

	e, err := parseLocation(body)
	if err != nil {
		otel.RecordError(span, err)
		return store.Enrichment{}, err
	}
	return e, nil
}

func (c *Client) lookupURL(ip string) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid geolocation URL: %w", err)
	}
	q := u.Query()
	q.Set("apiKey", c.apiKey)
	q.Set("ip", ip)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func parseLocation(body []byte) (store.Enrichment, error) {
	if !gjson.ValidBytes(body) {
		return store.Enrichment{}, ErrMalformedResponse
	}
	res := gjson.ParseBytes(body)
	if !res.IsObject() {
		return store.Enrichment{}, ErrMalformedResponse
	}

	return store.Enrichment{
		CountryNameOfficial: field(res, pathCountryNameOfficial),
		State:               field(res, pathState),
		City:                field(res, pathCity),
		District:            field(res, pathDistrict),
		CountryCode:         field(res, pathCountryCode),
	}, nil
}

// field returns the value at path, or nil when it is missing, null or blank
func field(res gjson.Result, path string) *string {
	v := res.Get(path)
	if !v.Exists() || v.Type == gjson.Null {
		return nil
	}
	s := strings.TrimSpace(v.String())
	if s == "" {
		return nil
	}
	return &s
}
