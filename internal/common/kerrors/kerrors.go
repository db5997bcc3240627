// Package kerrors defines the tagged error kinds shared across wavecoord.
// Packages wrap their own sentinel errors (errors.New) in an Error of the
// appropriate Kind so callers can branch on category without string matching.
package kerrors

import "fmt"

// Kind tags the category of a wavecoord error.
type Kind int

const (
	// KindUnknown is the zero value; avoid constructing errors with it.
	KindUnknown Kind = iota
	// KindNotFound means an id did not resolve in a store.
	KindNotFound
	// KindIllegalTransition means a status change violated the state lattice.
	KindIllegalTransition
	// KindBufferOverflow means a non-blocking bus emit could not be accepted.
	KindBufferOverflow
	// KindProviderFailure means a provider run failed; never surfaced as a panic.
	KindProviderFailure
	// KindTimeout means a provider run exceeded its deadline.
	KindTimeout
	// KindMaxWavesReached means the coordinator exhausted its retry budget.
	KindMaxWavesReached
	// KindConfigError means construction-time configuration was invalid.
	KindConfigError
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindIllegalTransition:
		return "illegal_transition"
	case KindBufferOverflow:
		return "buffer_overflow"
	case KindProviderFailure:
		return "provider_failure"
	case KindTimeout:
		return "timeout"
	case KindMaxWavesReached:
		return "max_waves_reached"
	case KindConfigError:
		return "config_error"
	default:
		return "unknown"
	}
}

// Error wraps an underlying error with a Kind tag.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a tagged Error.
func New(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var te *Error
	if err == nil {
		return false
	}
	if e, ok := err.(*Error); ok {
		te = e
	} else {
		return false
	}
	return te.Kind == kind
}
