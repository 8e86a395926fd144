// Package failure defines the typed errors every gateway operation returns.
package failure

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Kind classifies a failure. Callers decide on retries based on it.
type Kind int

const (
	// Unknown is reported by KindOf for errors that carry no Kind.
	Unknown Kind = iota
	// Connection: the upstream server could not be reached or refused the credentials.
	Connection
	// Protocol: the upstream server answered with an unexpected status.
	Protocol
	// NotFound: the addressed message, mailbox or contact does not exist.
	NotFound
	// Validation: the input was rejected before any network call.
	Validation
	// Timeout: an explicit deadline expired.
	Timeout
)

func (k Kind) String() string {
	switch k {
	case Connection:
		return "connection"
	case Protocol:
		return "protocol"
	case NotFound:
		return "not_found"
	case Validation:
		return "validation"
	case Timeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Error is the single error type surfaced to callers.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	s := e.Msg
	if e.Op != "" {
		s = e.Op + ": " + s
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Err }

// New returns a failure without an underlying cause.
func New(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Wrap returns a failure caused by err. A context deadline in err's chain
// turns the failure into a Timeout. An err that is already a *Error keeps
// its kind.
func Wrap(kind Kind, op string, err error, format string, args ...any) *Error {
	var fe *Error
	if errors.As(err, &fe) {
		kind = fe.Kind
	} else if isTimeout(err) {
		kind = Timeout
	}
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf reports the Kind of err, or Unknown.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	if isTimeout(err) {
		return Timeout
	}
	return Unknown
}

// Is reports whether err is a failure of the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

func isTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
