// Package trackerr defines the error taxonomy shared by the trackers, the poller and the quote selector.
package trackerr

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Kind is the machine-readable class of a tracking error
type Kind string

const (
	// TransportTransient is a network, HTTP or request-timeout failure; retryable within the active budget
	TransportTransient Kind = "transport_transient"
	// RPCRejected means the remote endpoint answered with a structured error
	RPCRejected Kind = "rpc_rejected"
	// PollTimeout means the adaptive poller exceeded its p99 deadline
	PollTimeout Kind = "poll_timeout"
	// Cancelled is caller-initiated; the caller's cause is returned verbatim, this kind is only reported by KindOf
	Cancelled Kind = "cancelled"
	// InvariantViolation means a remote response broke its structural contract; never retried
	InvariantViolation Kind = "invariant_violation"
	// PendingExhausted means the operation never left PENDING within the attempt budget
	PendingExhausted Kind = "pending_exhausted"
	// NotFound means the remote record never became visible within the attempt budget
	NotFound Kind = "not_found"
	// QuoteUnavailable means no valid quote could be selected
	QuoteUnavailable Kind = "quote_unavailable"
	// Unknown is reported by KindOf for errors outside the taxonomy
	Unknown Kind = "unknown"
)

// Error is an immutable classified error carrying enough context to debug without retrying blindly
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Details map[string]string

	// Elapsed and Timeout are set for PollTimeout
	Elapsed time.Duration
	Timeout time.Duration

	Cause error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	if e.Kind == PollTimeout {
		fmt.Fprintf(&b, " (elapsed %s, timeout %s)", e.Elapsed, e.Timeout)
	}
	if len(e.Details) > 0 {
		keys := make([]string, 0, len(e.Details))
		for k := range e.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString(" [")
		for i, k := range keys {
			if i > 0 {
				b.WriteString(" ")
			}
			fmt.Fprintf(&b, "%s=%s", k, e.Details[k])
		}
		b.WriteString("]")
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches another *Error by kind, so errors.Is(err, &Error{Kind: NotFound}) works
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Message == ""
}

// New creates a classified error
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap creates a classified error around cause
func Wrap(kind Kind, op string, cause error, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Cause: cause}
}

// With returns a copy of e with the detail key set; e itself is left untouched
func (e *Error) With(key, value string) *Error {
	cp := *e
	cp.Details = make(map[string]string, len(e.Details)+1)
	for k, v := range e.Details {
		cp.Details[k] = v
	}
	cp.Details[key] = value
	return &cp
}

// Timeout creates a PollTimeout error
func Timeout(op string, elapsed, timeout time.Duration) *Error {
	return &Error{
		Kind:    PollTimeout,
		Op:      op,
		Message: "poll deadline exceeded",
		Elapsed: elapsed,
		Timeout: timeout,
	}
}

// KindOf returns the kind of the first classified error in err's chain
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Cancelled
	}
	var re *RPCError
	if errors.As(err, &re) {
		return RPCRejected
	}
	return Unknown
}

// Is reports whether err is classified as kind
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsTransient reports whether err is a transport failure worth another attempt
func IsTransient(err error) bool {
	return Is(err, TransportTransient)
}
