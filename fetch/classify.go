package fetch

import (
	"context"
	"errors"
	"net"
	"strings"
)

// Kind classifies a fetch failure. Only KindTimeout and KindTransport
// are retried; everything else is considered non-recoverable for the
// current attempt cycle.
type Kind int

const (
	KindOther Kind = iota
	KindTimeout
	KindTransport
)

func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindTransport:
		return "transport"
	default:
		return "other"
	}
}

// Transient reports whether the kind is on the retry allow-list.
func (k Kind) Transient() bool {
	return k == KindTimeout || k == KindTransport
}

// errTimeout tags internally-detected timeouts (readiness never
// reached) so Classify treats them as retryable.
type errTimeout struct{ err error }

func (e errTimeout) Error() string { return e.err.Error() }
func (e errTimeout) Unwrap() error { return e.err }

// Classify maps an error to its retry kind. Chrome surfaces network
// failures as "net::ERR_*" strings through CDP, so those are matched
// textually in addition to the usual net error types.
func Classify(err error) Kind {
	if err == nil {
		return KindOther
	}

	var et errTimeout
	if errors.As(err, &et) {
		return KindTimeout
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return KindTimeout
		}
		return KindTransport
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "net::ERR_TIMED_OUT"),
		strings.Contains(msg, "net::ERR_CONNECTION_TIMED_OUT"),
		strings.Contains(msg, "deadline exceeded"):
		return KindTimeout
	case strings.Contains(msg, "net::ERR_"),
		strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "EOF"):
		return KindTransport
	}

	return KindOther
}
