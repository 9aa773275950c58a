package fetch

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

var (
	// ErrInvalidURL is fatal for the single ingest call that received it
	ErrInvalidURL = errors.New("invalid url")

	// ErrUnusable means every stage of the chain failed or produced thin content
	ErrUnusable = errors.New("no stage produced usable content")

	// ErrDisallowed means robots.txt forbids fetching the URL directly
	ErrDisallowed = errors.New("disallowed by robots.txt")

	// ErrThinContent means a stage succeeded but produced too little text
	ErrThinContent = errors.New("content below threshold")
)

// StatusError is a non-2xx HTTP response
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status: %d %s", e.Code, e.Status)
}

// isRetryableFetchError reports whether a direct fetch is worth repeating:
// server errors, throttling and transient network failures
func isRetryableFetchError(err error) bool {
	if err == nil {
		return false
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code == 429 || statusErr.Code >= 500
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := err.Error()
	for _, transient := range []string{"connection refused", "connection reset", "broken pipe", "EOF", "no such host"} {
		if strings.Contains(msg, transient) && !strings.HasPrefix(msg, "read body") {
			return true
		}
	}
	return false
}
