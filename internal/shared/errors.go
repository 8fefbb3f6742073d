// Package shared contains common error types and utilities.
package shared

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"net/textproto"
	"strings"
	"syscall"
)

// Transport failure sentinels. The client marks errors it already understands
// with these through MarkKind (a failed body read is KindProtocol) so KindOf
// does not depend on inspecting causes.
var (
	// ErrTimeout indicates that a connect or read deadline was hit
	ErrTimeout = errors.New("operation timed out")

	// ErrConnRefused indicates that the remote host refused the connection
	ErrConnRefused = errors.New("connection refused")

	// ErrConnReset indicates that an established connection was dropped
	ErrConnReset = errors.New("connection reset")

	// ErrDNS indicates that the endpoint host could not be resolved
	ErrDNS = errors.New("dns lookup failed")

	// ErrTLS indicates a handshake or certificate verification failure
	ErrTLS = errors.New("tls failure")

	// ErrMalformedResponse indicates the peer answered with something that is not HTTP
	ErrMalformedResponse = errors.New("malformed response")

	// ErrProtocol indicates an unexpected end of stream or closed connection
	ErrProtocol = errors.New("protocol error")

	// ErrNetwork indicates any other socket level failure
	ErrNetwork = errors.New("network error")

	// ErrValidation indicates that configuration or input validation failed
	ErrValidation = errors.New("validation failed")
)

// Kind represents a category of transport failure.
type Kind int

const (
	// KindUnknown represents an unclassified error
	KindUnknown Kind = iota
	// KindCanceled represents context cancellation
	KindCanceled
	// KindTimeout represents connect/read timeouts
	KindTimeout
	// KindConnRefused represents refused connections
	KindConnRefused
	// KindConnReset represents reset, aborted or broken connections
	KindConnReset
	// KindDNS represents name resolution failures
	KindDNS
	// KindTLS represents handshake and certificate failures
	KindTLS
	// KindMalformedResponse represents unparseable HTTP responses
	KindMalformedResponse
	// KindProtocol represents EOF and closed connection errors
	KindProtocol
	// KindNetwork represents other socket errors
	KindNetwork
)

// String returns the string representation of the Kind.
func (k Kind) String() string {
	switch k {
	case KindCanceled:
		return "Canceled"
	case KindTimeout:
		return "Timeout"
	case KindConnRefused:
		return "ConnRefused"
	case KindConnReset:
		return "ConnReset"
	case KindDNS:
		return "DNS"
	case KindTLS:
		return "TLS"
	case KindMalformedResponse:
		return "MalformedResponse"
	case KindProtocol:
		return "Protocol"
	case KindNetwork:
		return "Network"
	default:
		return "Unknown"
	}
}

// kindToSentinel maps error kinds to their corresponding sentinel errors.
var kindToSentinel = map[Kind]error{
	KindTimeout:           ErrTimeout,
	KindConnRefused:       ErrConnRefused,
	KindConnReset:         ErrConnReset,
	KindDNS:               ErrDNS,
	KindTLS:               ErrTLS,
	KindMalformedResponse: ErrMalformedResponse,
	KindProtocol:          ErrProtocol,
	KindNetwork:           ErrNetwork,
}

// kindPriorities defines the deterministic order for error classification.
// Higher priority (lower index) kinds are checked first in KindOf.
var kindPriorities = []struct {
	kind  Kind
	match func(error) bool
}{
	{KindCanceled, IsCanceled},
	{KindTimeout, IsTimeout},
	{KindTLS, isTLS},
	{KindDNS, isDNS},
	{KindConnRefused, isConnRefused},
	{KindConnReset, isConnReset},
	{KindMalformedResponse, isMalformed},
	{KindProtocol, isProtocol},
	{KindNetwork, isNetwork},
}

// KindOf returns the Kind of the given error by checking the error chain
// against sentinels and the standard library's network error types.
//
// The classification priority (highest to lowest):
//  1. KindCanceled (context.Canceled)
//  2. KindTimeout (context.DeadlineExceeded, ErrTimeout, net timeout errors)
//  3. KindTLS, KindDNS
//  4. KindConnRefused, KindConnReset
//  5. KindMalformedResponse, KindProtocol
//  6. KindNetwork (any remaining *net.OpError)
//
// Returns KindUnknown for nil and unrecognized errors.
//
// Example:
//
//	switch shared.KindOf(err) {
//	case shared.KindTimeout, shared.KindConnReset:
//	    // worth another attempt
//	case shared.KindTLS:
//	    // configuration problem, give up
//	}
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	for _, p := range kindPriorities {
		if p.match(err) {
			return p.kind
		}
	}
	return KindUnknown
}

// SentinelOf returns the sentinel error for the given Kind.
// For KindUnknown and KindCanceled, it returns nil.
func SentinelOf(kind Kind) error {
	return kindToSentinel[kind]
}

// MarkKind wraps an error with the sentinel for kind, preserving the original
// error through wrapping. It is idempotent and returns err unchanged for kinds
// without a sentinel.
//
//	if resp.ProtoMajor == 0 {
//	    return shared.MarkKind(err, shared.KindMalformedResponse)
//	}
func MarkKind(err error, kind Kind) error {
	sentinel := SentinelOf(kind)
	if err == nil {
		return sentinel
	}
	if sentinel == nil || KindOf(err) == kind {
		return err
	}
	return fmt.Errorf("%w: %w", sentinel, err)
}

// Wrap wraps an error with additional context.
// If err is nil, Wrap returns nil. If context is empty, returns the original error.
func Wrap(err error, context string) error {
	if err == nil {
		return nil
	}
	if context == "" {
		return err
	}
	return fmt.Errorf("%s: %w", context, err)
}

// Wrapf wraps an error with a formatted context message.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return Wrap(err, fmt.Sprintf(format, args...))
}

// IsCanceled reports whether the error indicates a canceled context.
func IsCanceled(err error) bool {
	return err != nil && errors.Is(err, context.Canceled)
}

// IsTimeout reports whether the error indicates a timeout.
// It checks for context.DeadlineExceeded, net.Error timeouts, ETIMEDOUT and ErrTimeout.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrTimeout) || errors.Is(err, syscall.ETIMEDOUT) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func isTLS(err error) bool {
	if errors.Is(err, ErrTLS) {
		return true
	}
	var (
		recordErr    tls.RecordHeaderError
		alertErr     tls.AlertError
		verifyErr    *tls.CertificateVerificationError
		authorityErr x509.UnknownAuthorityError
		hostnameErr  x509.HostnameError
		invalidErr   x509.CertificateInvalidError
	)
	return errors.As(err, &recordErr) || errors.As(err, &alertErr) ||
		errors.As(err, &verifyErr) || errors.As(err, &authorityErr) ||
		errors.As(err, &hostnameErr) || errors.As(err, &invalidErr)
}

func isDNS(err error) bool {
	var dnsErr *net.DNSError
	return errors.Is(err, ErrDNS) || errors.As(err, &dnsErr)
}

func isConnRefused(err error) bool {
	return errors.Is(err, ErrConnRefused) || errors.Is(err, syscall.ECONNREFUSED)
}

func isConnReset(err error) bool {
	return errors.Is(err, ErrConnReset) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNABORTED) || errors.Is(err, syscall.EPIPE)
}

// isMalformed also matches on message text: net/http reports a bad status
// line through an unexported error type.
func isMalformed(err error) bool {
	if errors.Is(err, ErrMalformedResponse) {
		return true
	}
	var protoErr textproto.ProtocolError
	if errors.As(err, &protoErr) {
		return true
	}
	return strings.Contains(err.Error(), "malformed HTTP")
}

func isProtocol(err error) bool {
	return errors.Is(err, ErrProtocol) || errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed)
}

func isNetwork(err error) bool {
	if errors.Is(err, ErrNetwork) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// Cause returns the deepest error of the chain. For errors.Join it returns the
// first leaf in breadth-first order of UnwrapAll, searched from the end.
// If err is nil, Cause returns nil.
func Cause(err error) error {
	if err == nil {
		return nil
	}
	all := UnwrapAll(err)
	for i := len(all) - 1; i >= 0; i-- {
		candidate := all[i]
		var hasNested bool
		if unwrapper, ok := candidate.(interface{ Unwrap() []error }); ok {
			hasNested = len(unwrapper.Unwrap()) > 0
		} else {
			hasNested = errors.Unwrap(candidate) != nil
		}
		if !hasNested {
			return candidate
		}
	}
	return err
}

// UnwrapAll returns all errors in the error chain, from outermost to innermost.
// For errors created with errors.Join, this flattens the entire error graph.
func UnwrapAll(err error) []error {
	if err == nil {
		return nil
	}

	var result []error
	seen := make(map[error]bool) // prevent infinite loops
	queue := []error{err}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		if seen[current] {
			continue
		}
		seen[current] = true
		result = append(result, current)

		if unwrapper, ok := current.(interface{ Unwrap() []error }); ok {
			queue = append(queue, unwrapper.Unwrap()...)
		} else if nested := errors.Unwrap(current); nested != nil {
			queue = append(queue, nested)
		}
	}

	return result
}
