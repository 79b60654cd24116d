package netsuite

import (
	"errors"
	"fmt"
)

// ErrRateLimited signals the upstream concurrency/request ceiling was hit.
// Callers may retry after a backoff.
var ErrRateLimited = errors.New("netsuite: rate limited")

// ErrQueryFailed signals a non-retryable query failure.
var ErrQueryFailed = errors.New("netsuite: query failed")

// APIError carries the upstream error payload for a failed SuiteQL call.
type APIError struct {
	Status int
	Code   string
	Detail string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("netsuite: status %d (%s): %s", e.Status, e.Code, e.Detail)
	}
	return fmt.Sprintf("netsuite: status %d (%s)", e.Status, e.Code)
}

// Unwrap maps the upstream status onto the retryability sentinels.
func (e *APIError) Unwrap() error {
	if e.Status == 429 || e.Code == "SSS_REQUEST_LIMIT_EXCEEDED" || e.Code == "SSS_CONNECTION_LIMIT_EXCEEDED" {
		return ErrRateLimited
	}
	return ErrQueryFailed
}
