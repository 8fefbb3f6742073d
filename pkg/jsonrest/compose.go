package jsonrest

import (
	stdhttp "net/http"
	"net/textproto"
)

const (
	headerAccept        = "Accept"
	headerContentType   = "Content-Type"
	headerUserAgent     = "User-Agent"
	headerAuthorization = "Authorization"
	headerRequestID     = "X-Request-ID"

	mimeJSON = "application/json"
)

// Headers is a per-call or per-client header mapping. Keys collide
// case-insensitively once merged.
type Headers map[string]string

// authState is the authentication configured on a Client.
type authState struct {
	username string
	password string
	bearer   string
	token    string
}

// authorization returns the injected Authorization value: the custom token
// verbatim, else the bearer token, else "".
func (a authState) authorization() string {
	switch {
	case a.token != "":
		return a.token
	case a.bearer != "":
		return "Bearer " + a.bearer
	default:
		return ""
	}
}

// hasBasic reports whether basic credentials are set. Only both-empty skips.
func (a authState) hasBasic() bool {
	return a.username != "" || a.password != ""
}

// composeHeaders merges built-in, instance and per-call headers (later wins)
// and injects token or bearer authentication unless the call supplied its own
// Authorization header.
func composeHeaders(instance stdhttp.Header, perCall Headers, auth authState) stdhttp.Header {
	h := make(stdhttp.Header, len(instance)+len(perCall)+3)
	h.Set(headerAccept, mimeJSON)
	h.Set(headerContentType, mimeJSON)
	for k, vs := range instance {
		h[textproto.CanonicalMIMEHeaderKey(k)] = append([]string(nil), vs...)
	}
	for k, v := range perCall {
		h.Set(k, v)
	}
	if !callerAuthorized(perCall) {
		if v := auth.authorization(); v != "" {
			h.Set(headerAuthorization, v)
		}
	}
	return h
}

// applyBasicAuth sets basic credentials on req as the last step of
// composition, unless the call supplied its own Authorization header.
func applyBasicAuth(req *stdhttp.Request, perCall Headers, auth authState) {
	if auth.hasBasic() && !callerAuthorized(perCall) {
		req.SetBasicAuth(auth.username, auth.password)
	}
}

func callerAuthorized(perCall Headers) bool {
	return hasHeader(perCall, headerAuthorization)
}

func hasHeader(h Headers, key string) bool {
	for k := range h {
		if textproto.CanonicalMIMEHeaderKey(k) == key {
			return true
		}
	}
	return false
}
