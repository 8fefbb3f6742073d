// Package shared contains the transport failure taxonomy used to classify
// errors returned by an HTTP round trip.
//
// # Error Classification
//
// Use KindOf() to classify errors into categories:
//
//	_, err := httpClient.Do(req)
//	switch shared.KindOf(err) {
//	case shared.KindConnRefused:
//	    // nothing is listening yet
//	case shared.KindTimeout:
//	    // connect or read deadline hit
//	default:
//	    // give up
//	}
//
// # Kind Priority Table
//
// An error chain can satisfy several checks at once (a DNS lookup that timed
// out is both a *net.DNSError and a net.Error with Timeout() == true). KindOf
// returns the highest priority kind:
//
//	Priority | Kind                  | Matches
//	---------|-----------------------|---------------------------------------------
//	1        | KindCanceled          | context.Canceled
//	2        | KindTimeout           | DeadlineExceeded, ETIMEDOUT, net.Error.Timeout
//	3        | KindTLS               | tls/x509 error types, ErrTLS
//	4        | KindDNS               | *net.DNSError, ErrDNS
//	5        | KindConnRefused       | ECONNREFUSED, ErrConnRefused
//	6        | KindConnReset         | ECONNRESET, ECONNABORTED, EPIPE, ErrConnReset
//	7        | KindMalformedResponse | textproto.ProtocolError, bad status line
//	8        | KindProtocol          | io.EOF, io.ErrUnexpectedEOF, net.ErrClosed
//	9        | KindNetwork           | any other *net.OpError, ErrNetwork
//
// # Error Marking
//
// Mark errors with specific kinds while preserving the original error:
//
//	err = shared.MarkKind(err, shared.KindMalformedResponse)
//	// shared.KindOf(err) == shared.KindMalformedResponse
//	// errors.Is(err, original) == true
//
// # Error Unwrapping and Root Causes
//
//	rootErr := shared.Cause(err)
//	allErrors := shared.UnwrapAll(err)
//
// # Error Message Style Guide
//
// - Use lowercase messages: "connection refused" not "Connection refused"
// - Avoid punctuation so messages compose when wrapped
package shared
