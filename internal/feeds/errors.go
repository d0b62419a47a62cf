// Package feeds implements the typed clients for the external data
// upstreams: the market feed, the security feed, and the social scraper.
// Each client shares one HTTP core with per-host rate limiting,
// retry-with-backoff, and a circuit breaker.
package feeds

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a feed failure. Transient kinds are retried;
// the rest fail fast.
type ErrorKind int

const (
	KindNetwork ErrorKind = iota
	KindTimeout
	KindRateLimited
	KindNotFound
	KindUpstream
	KindMalformed
)

// String returns the kind name for logs and metrics labels.
func (k ErrorKind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindRateLimited:
		return "rate_limited"
	case KindNotFound:
		return "not_found"
	case KindUpstream:
		return "upstream_5xx"
	case KindMalformed:
		return "malformed"
	default:
		return "network"
	}
}

// Error is a classified feed failure.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether the failure is worth another attempt.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindTimeout, KindRateLimited, KindUpstream, KindNetwork:
		return true
	default:
		return false
	}
}

// KindOf extracts the ErrorKind from err, defaulting to KindNetwork.
func KindOf(err error) ErrorKind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindNetwork
}

// IsNotFound reports whether err is a KindNotFound feed error.
func IsNotFound(err error) bool {
	var fe *Error
	return errors.As(err, &fe) && fe.Kind == KindNotFound
}
