// Package backoff classifies chat-platform API failures and computes
// retry waits.
//
// The classifier is a pure function: rate limits (429) and server
// errors (5xx) are retryable, as are a fixed set of transport failures
// (connection reset, connection refused, timeout, DNS failure).
// Everything else is fatal and must not be retried locally.
package backoff

import (
	"errors"
	"io"
	"math"
	"math/rand/v2"
	"net"
	"net/http"
	"syscall"
	"time"

	"github.com/astralis-bot/astralis/pkg/platform"
)

// Jitter spread added to computed exponential waits, so workers that
// fail together do not retry together.
const maxJitter = 180 * time.Millisecond

// Decision is the classification of a single failed attempt.
type Decision struct {
	// Wait is how long to sleep before the next attempt.
	// Meaningless when Retryable is false.
	Wait time.Duration

	// Retryable reports whether another attempt can succeed.
	Retryable bool
}

// Classify maps a failed API call to a retry decision. attempt is
// 1-indexed; base and limit bound the exponential wait. A server-provided
// retry hint wins over the computed backoff.
func Classify(err error, attempt int, base, limit time.Duration) Decision {
	var ae *platform.APIError
	if errors.As(err, &ae) {
		if ae.Status == http.StatusTooManyRequests || ae.Status >= 500 {
			if ae.RetryAfter > 0 {
				return Decision{Retryable: true, Wait: ae.RetryAfter}
			}
			return Decision{Retryable: true, Wait: exponential(attempt, base, limit)}
		}
		return Decision{}
	}

	if transient(err) {
		return Decision{Retryable: true, Wait: exponential(attempt, base, limit)}
	}

	return Decision{}
}

// transient reports whether err is one of the recognized transport
// failures worth retrying.
func transient(err error) bool {
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	// Half-closed connections surface as unexpected EOF mid-response.
	return errors.Is(err, io.ErrUnexpectedEOF)
}

// exponential computes min(limit, base*2^(attempt-1)) plus jitter.
func exponential(attempt int, base, limit time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	wait := float64(base) * math.Pow(2, float64(attempt-1))
	if limit > 0 && wait > float64(limit) {
		wait = float64(limit)
	}

	return time.Duration(wait) + rand.N(maxJitter)
}
