package jsonrest

import (
	"strconv"

	"jsonrest/internal/shared"
)

// Kind is the transport failure category of an error.
type Kind = shared.Kind

// Transport failure kinds.
const (
	KindUnknown           = shared.KindUnknown
	KindCanceled          = shared.KindCanceled
	KindTimeout           = shared.KindTimeout
	KindConnRefused       = shared.KindConnRefused
	KindConnReset         = shared.KindConnReset
	KindDNS               = shared.KindDNS
	KindTLS               = shared.KindTLS
	KindMalformedResponse = shared.KindMalformedResponse
	KindProtocol          = shared.KindProtocol
	KindNetwork           = shared.KindNetwork
)

// KindOf classifies a transport error.
func KindOf(err error) Kind { return shared.KindOf(err) }

// Failure tags a failure the Classifier can list: a transport Kind, an exact
// HTTP status or a status class. Failures are comparable.
type Failure struct {
	kind   Kind
	status int
	class  int
}

// TransportFailure tags a transport error kind.
func TransportFailure(k Kind) Failure { return Failure{kind: k} }

// invalidStatus marks a status tag built from an out-of-range value. It
// matches no response.
const invalidStatus = -1

// StatusFailure tags one HTTP status code. Codes outside 100..599 match
// nothing.
func StatusFailure(code int) Failure {
	if code < 100 || code > 599 {
		return Failure{status: invalidStatus}
	}
	return Failure{status: code}
}

// StatusClassFailure tags every status of a class: 4 for 4xx, 5 for 5xx.
// Classes outside 1..5 match nothing.
func StatusClassFailure(class int) Failure {
	if class < 1 || class > 5 {
		return Failure{class: invalidStatus}
	}
	return Failure{class: class}
}

// IsTransport reports whether f tags a transport error kind.
func (f Failure) IsTransport() bool { return f.status == 0 && f.class == 0 }

func (f Failure) String() string {
	switch {
	case f.status == invalidStatus || f.class == invalidStatus:
		return "invalid http status"
	case f.status != 0:
		return "http " + strconv.Itoa(f.status)
	case f.class != 0:
		return "http " + strconv.Itoa(f.class) + "xx"
	default:
		return f.kind.String()
	}
}

func (f Failure) matchesKind(k Kind) bool {
	return f.IsTransport() && f.kind == k
}

func (f Failure) matchesStatus(code int) bool {
	if f.status != 0 {
		return f.status == code
	}
	return f.class > 0 && code/100 == f.class
}

// covers reports whether every failure g matches is also matched by f.
func (f Failure) covers(g Failure) bool {
	switch {
	case g.IsTransport():
		return f.matchesKind(g.kind)
	case g.status > 0:
		return f.matchesStatus(g.status)
	case g.class > 0:
		return f.class == g.class
	default:
		return false
	}
}

// Decision is the outcome of classifying a failure.
type Decision int

const (
	// DecisionNone means the failure is in neither list.
	DecisionNone Decision = iota
	// DecisionRetry means the request is issued again while attempts remain.
	DecisionRetry
	// DecisionPropagate means the retry loop stops immediately.
	DecisionPropagate
)

func (d Decision) String() string {
	switch d {
	case DecisionRetry:
		return "retry"
	case DecisionPropagate:
		return "propagate"
	default:
		return "none"
	}
}

// Classifier holds the two ordered failure lists. Propagate is consulted
// before Retry, so a failure present in both is never retried.
type Classifier struct {
	Propagate []Failure
	Retry     []Failure
}

// DefaultClassifier retries timeouts, dropped or refused connections and
// 429/502/503/504, and propagates TLS, DNS, malformed responses and 414.
func DefaultClassifier() Classifier {
	return Classifier{
		Propagate: []Failure{
			TransportFailure(KindTLS),
			TransportFailure(KindDNS),
			TransportFailure(KindMalformedResponse),
			StatusFailure(414),
		},
		Retry: []Failure{
			TransportFailure(KindTimeout),
			TransportFailure(KindConnRefused),
			TransportFailure(KindConnReset),
			TransportFailure(KindProtocol),
			StatusFailure(429),
			StatusFailure(502),
			StatusFailure(503),
			StatusFailure(504),
		},
	}
}

// ClassifyError classifies a transport error.
func (c Classifier) ClassifyError(err error) (Kind, Decision) {
	kind := shared.KindOf(err)
	return kind, c.decide(func(f Failure) bool { return f.matchesKind(kind) })
}

// ClassifyStatus classifies an HTTP status code. 2xx codes are classified
// like any other code, so listing them is allowed but unusual.
func (c Classifier) ClassifyStatus(code int) Decision {
	return c.decide(func(f Failure) bool { return f.matchesStatus(code) })
}

func (c Classifier) decide(match func(Failure) bool) Decision {
	for _, f := range c.Propagate {
		if match(f) {
			return DecisionPropagate
		}
	}
	for _, f := range c.Retry {
		if match(f) {
			return DecisionRetry
		}
	}
	return DecisionNone
}

// Overlap returns the Retry entries that a Propagate entry covers, either
// the same tag or a status class containing the status. Retrying is
// unreachable for them.
func (c Classifier) Overlap() []Failure {
	var out []Failure
	for _, r := range c.Retry {
		for _, p := range c.Propagate {
			if p.covers(r) {
				out = append(out, r)
				break
			}
		}
	}
	return out
}

func (c Classifier) clone() Classifier {
	return Classifier{
		Propagate: append([]Failure(nil), c.Propagate...),
		Retry:     append([]Failure(nil), c.Retry...),
	}
}
