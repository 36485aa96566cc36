package platform

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// APIError is a failed platform API call. Status carries the HTTP-like
// status code; RetryAfter is the server's rate-limit hint when present.
type APIError struct {
	Status     int
	Code       string
	Message    string
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("platform: api error %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("platform: api error %d: %s", e.Status, e.Message)
}

// IsNotFound reports whether err is an API error for a missing target,
// typically a message that was deleted out from under us.
func IsNotFound(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.Status == http.StatusNotFound
}

// IsRateLimited reports whether err is a rate-limit rejection.
func IsRateLimited(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.Status == http.StatusTooManyRequests
}
