package errors

import (
	"errors"
	"fmt"
)

// Kind classifies an error into the taxonomy the handler and scheduler use to
// decide between user-visible confirmations and log-only recovery.
type Kind int

const (
	KindUnknown Kind = iota
	// KindConfigInvalid is fatal at startup.
	KindConfigInvalid
	// KindStorage is surfaced to users as an internal error and logged.
	KindStorage
	// KindAdapterUnavailable is a single-adapter transient failure.
	KindAdapterUnavailable
	// KindAuthDenied is a rejected acknowledgement.
	KindAuthDenied
	// KindNotFound is an unknown alert id.
	KindNotFound
	// KindInvalidCommand is malformed user input.
	KindInvalidCommand
	// KindBadUpstreamFormat is a malformed webhook, paging-log, or mail payload.
	KindBadUpstreamFormat
)

// String returns the name of the kind.
func (k Kind) String() string {
	switch k {
	case KindConfigInvalid:
		return "CONFIG_INVALID"
	case KindStorage:
		return "STORAGE"
	case KindAdapterUnavailable:
		return "ADAPTER_UNAVAILABLE"
	case KindAuthDenied:
		return "AUTH_DENIED"
	case KindNotFound:
		return "NOT_FOUND"
	case KindInvalidCommand:
		return "INVALID_COMMAND"
	case KindBadUpstreamFormat:
		return "BAD_UPSTREAM_FORMAT"
	default:
		return "UNKNOWN"
	}
}

// Error is a classified error with the operation that produced it.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("[%s] %s", e.Kind, e.Op)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// E builds a classified error.
func E(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds a classified error from a format string.
func Errorf(kind Kind, op, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf extracts the kind from an error chain, KindUnknown when unclassified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether the error chain carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
