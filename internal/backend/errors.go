package backend

import (
	"fmt"
	"net/http"
	"strings"
)

// ExternalCallError is a failed call to a claims backend endpoint: a network
// failure, a non-2xx status, a malformed body, or a success body without its
// payload.
type ExternalCallError struct {
	Endpoint   string
	StatusCode int    // 0 when no response was received
	Message    string // server-supplied error text, if any
	Err        error
}

func (e *ExternalCallError) Error() string {
	switch {
	case e.Message != "" && e.StatusCode != 0:
		return fmt.Sprintf("%s: %d: %s", e.Endpoint, e.StatusCode, e.Message)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Endpoint, e.Message)
	default:
		return fmt.Sprintf("%s: %v", e.Endpoint, e.Err)
	}
}

func (e *ExternalCallError) Unwrap() error {
	return e.Err
}

// UserMessage returns the server's error text.
func (e *ExternalCallError) UserMessage() string {
	return e.Message
}

// Retryable reports whether the failure is transient: 5xx, 429, or a
// timeout or reset at the network level.
func (e *ExternalCallError) Retryable() bool {
	if e.StatusCode >= 500 && e.StatusCode < 600 {
		return true
	}
	if e.StatusCode == http.StatusTooManyRequests {
		return true
	}
	if e.StatusCode == 0 && e.Err != nil {
		return isRetryableNetworkError(e.Err.Error())
	}
	return false
}

// isRetryableNetworkError checks error strings for transient network failures
func isRetryableNetworkError(errMsg string) bool {
	s := strings.ToLower(errMsg)
	return strings.Contains(s, "timeout") ||
		strings.Contains(s, "connection refused") ||
		strings.Contains(s, "connection reset")
}
