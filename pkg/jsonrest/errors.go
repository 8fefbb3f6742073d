package jsonrest

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupported is matched by errors from the HTML and form operations.
	ErrUnsupported = errors.New("jsonrest: unsupported operation")

	// ErrPropagated is matched by *PropagatedError.
	ErrPropagated = errors.New("jsonrest: failure propagated")

	// ErrExhausted is matched by *ExhaustedError.
	ErrExhausted = errors.New("jsonrest: retries exhausted")
)

// UnsupportedError is returned by GetHTML, PostForm and PutForm.
type UnsupportedError struct {
	Op string
}

func (e *UnsupportedError) Error() string {
	return "jsonrest: unsupported operation " + e.Op + ": only JSON requests are supported"
}

// Is reports whether target is ErrUnsupported.
func (e *UnsupportedError) Is(target error) bool { return target == ErrUnsupported }

// PropagatedError wraps a transport error that stopped the retry loop, either
// because its kind is listed as propagate or because it is not listed at all.
type PropagatedError struct {
	Method string
	URL    string
	Kind   Kind
	// Classified is false when the kind was in neither list.
	Classified bool
	Attempt    int
	Err        error
}

func (e *PropagatedError) Error() string {
	reason := "propagated"
	if !e.Classified {
		reason = "unclassified"
	}
	return fmt.Sprintf("jsonrest: %s %s: %s %s failure on attempt %d: %v", e.Method, e.URL, reason, e.Kind, e.Attempt, e.Err)
}

func (e *PropagatedError) Unwrap() error { return e.Err }

// Is reports whether target is ErrPropagated.
func (e *PropagatedError) Is(target error) bool { return target == ErrPropagated }

// ExhaustedError wraps the last retryable transport error once every attempt
// has been used.
type ExhaustedError struct {
	Method   string
	URL      string
	Kind     Kind
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("jsonrest: %s %s: retries exhausted (%d attempts): %v", e.Method, e.URL, e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// Is reports whether target is ErrExhausted.
func (e *ExhaustedError) Is(target error) bool { return target == ErrExhausted }
