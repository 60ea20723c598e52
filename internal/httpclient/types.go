package httpclient

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// sensitiveParams are query parameters whose values are masked in error messages
var sensitiveParams = []string{"apikey", "api_key", "key", "token"}

// ResponseError is returned when the upstream answered with a non-success status
type ResponseError struct {
	StatusCode int
	Message    string
	URL        string
}

// Error returns the error message
func (e *ResponseError) Error() string {
	return fmt.Sprintf("HTTP %d for URL %s: %s", e.StatusCode, e.URL, e.Message)
}

// NewResponseError creates a new response error
func NewResponseError(statusCode int, url, message string) error {
	return &ResponseError{
		StatusCode: statusCode,
		URL:        url,
		Message:    message,
	}
}

// NetworkError is returned when the request was sent but no usable response came back
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error for URL %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// LocalError is returned when the request could not be issued at all
type LocalError struct {
	URL string
	Err error
}

func (e *LocalError) Error() string {
	return fmt.Sprintf("request error for URL %s: %v", e.URL, e.Err)
}

func (e *LocalError) Unwrap() error {
	return e.Err
}

// IsLocal reports whether err is a *LocalError
func IsLocal(err error) bool {
	var localErr *LocalError
	return errors.As(err, &localErr)
}

// ConsumedCall reports whether the failed call reached the network and so
// counts against the upstream's call budget.
func ConsumedCall(err error) bool {
	var netErr *NetworkError
	var respErr *ResponseError
	return errors.As(err, &netErr) || errors.As(err, &respErr)
}

// redactURL masks credential-like query parameters
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.RawQuery == "" {
		return raw
	}
	q := u.Query()
	changed := false
	for name := range q {
		for _, s := range sensitiveParams {
			if strings.EqualFold(name, s) {
				q.Set(name, "REDACTED")
				changed = true
			}
		}
	}
	if !changed {
		return raw
	}
	u.RawQuery = q.Encode()
	return u.String()
}
