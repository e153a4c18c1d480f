package scraper

import (
	"errors"
	"fmt"
)

// Kind classifies a failed switch call.
type Kind int

const (
	// Unreachable covers transport failures, timeouts and body read errors.
	Unreachable Kind = iota + 1
	// BadStatus is a non-2xx response.
	BadStatus
	// MalformedBody is a 2xx response whose body does not decode.
	MalformedBody
)

func (k Kind) String() string {
	switch k {
	case Unreachable:
		return "unreachable"
	case BadStatus:
		return "bad_status"
	case MalformedBody:
		return "malformed_body"
	default:
		return "unknown"
	}
}

// Error is returned by every Client method on failure.
type Error struct {
	Kind Kind

	// StatusCode is set for BadStatus.
	StatusCode int
	// Message is the switch's own error text, when its body carried one.
	Message string
	// Path names the offending field for MalformedBody.
	Path string

	Err error
}

func (e *Error) Error() string {
	switch e.Kind {
	case BadStatus:
		if e.Message != "" {
			return fmt.Sprintf("switch returned status %d: %s", e.StatusCode, e.Message)
		}
		return fmt.Sprintf("switch returned status %d", e.StatusCode)
	case MalformedBody:
		return fmt.Sprintf("malformed switch response: %v", e.Err)
	default:
		return fmt.Sprintf("switch unreachable: %v", e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of err, or 0 if err is not a *Error.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return 0
}
