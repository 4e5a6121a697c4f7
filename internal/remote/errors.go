package remote

import "fmt"

// TransportError reports a network-level failure that persisted through the
// retry budget (connection reset, timeout, DNS).
type TransportError struct {
	Attempts int
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("request failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// RateLimitError reports that the server kept answering 429 until the retry
// budget ran out.
type RateLimitError struct {
	Attempts int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded after %d attempts", e.Attempts)
}

// APIError is a non-retryable 4xx/5xx response. It carries the status code
// and response body for the caller's logs; it is never retried because it
// represents a caller or permanent server error, not a transient condition.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error: status %d: %s", e.StatusCode, e.Body)
}
