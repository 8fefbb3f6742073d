package jsonrest

import (
	"crypto/tls"
	"fmt"
	"net"
	stdhttp "net/http"
	"net/url"
	"strings"
	"time"

	"jsonrest/internal/shared"
)

// Transport owns the single persistent connection configuration of a Client:
// the endpoint host and port, TLS on or off, and connect/read timeouts.
type Transport struct {
	base *url.URL
	hc   *stdhttp.Client
}

type transportConfig struct {
	openTimeout        time.Duration
	readTimeout        time.Duration
	insecureSkipVerify bool
	roundTripper       stdhttp.RoundTripper
}

// parseEndpoint keeps scheme and host of raw; path, query and fragment are
// discarded.
func parseEndpoint(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, shared.Wrap(shared.ErrValidation, fmt.Sprintf("endpoint %q: %v", raw, err))
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return nil, shared.Wrapf(shared.ErrValidation, "endpoint %q: scheme must be http or https", raw)
	}
	if u.Hostname() == "" {
		return nil, shared.Wrapf(shared.ErrValidation, "endpoint %q: missing host", raw)
	}
	return &url.URL{Scheme: scheme, Host: u.Host}, nil
}

func newTransport(base *url.URL, cfg transportConfig) *Transport {
	var rt stdhttp.RoundTripper = cfg.roundTripper
	if rt == nil {
		tr := stdhttp.DefaultTransport.(*stdhttp.Transport).Clone()
		tr.MaxIdleConns = 1
		tr.MaxConnsPerHost = 1
		tr.MaxIdleConnsPerHost = 1
		tr.IdleConnTimeout = 90 * time.Second
		tr.ExpectContinueTimeout = 1 * time.Second
		tr.ForceAttemptHTTP2 = false
		tr.TLSNextProto = map[string]func(string, *tls.Conn) stdhttp.RoundTripper{}
		dialer := &net.Dialer{Timeout: cfg.openTimeout, KeepAlive: 30 * time.Second}
		tr.DialContext = dialer.DialContext
		if cfg.openTimeout > 0 {
			tr.TLSHandshakeTimeout = cfg.openTimeout
		}
		tr.ResponseHeaderTimeout = cfg.readTimeout
		if base.Scheme == "https" {
			tr.TLSClientConfig = &tls.Config{
				MinVersion:         tls.VersionTLS12,
				InsecureSkipVerify: cfg.insecureSkipVerify, //nolint:gosec // opt-in verify mode
			}
		}
		rt = tr
	}
	return &Transport{base: base, hc: &stdhttp.Client{Transport: rt}}
}

// URL joins the endpoint with a canonical target.
func (t *Transport) URL(target string) string {
	return t.base.String() + target
}

// Host returns the endpoint host without port.
func (t *Transport) Host() string { return t.base.Hostname() }

// Port returns the endpoint port, defaulting by scheme.
func (t *Transport) Port() string {
	if p := t.base.Port(); p != "" {
		return p
	}
	if t.UseTLS() {
		return "443"
	}
	return "80"
}

// UseTLS reports whether the endpoint scheme is https.
func (t *Transport) UseTLS() bool { return t.base.Scheme == "https" }

// Do performs one synchronous request/response exchange.
func (t *Transport) Do(req *stdhttp.Request) (*stdhttp.Response, error) {
	return t.hc.Do(req)
}

// Close releases the idle connection.
func (t *Transport) Close() {
	t.hc.CloseIdleConnections()
}
