package jsonrest

import (
	"context"
	"log/slog"
	stdhttp "net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"jsonrest/internal/shared"
	"jsonrest/pkg/retry"
)

// Client issues JSON requests against one endpoint over one persistent
// connection.
//
// A Client is not safe for concurrent use: calling setters while a request is
// in flight on the same instance, or issuing requests from several goroutines,
// requires external synchronization. Distinct clients share nothing.
type Client struct {
	transport   *Transport
	maxAttempts int
	headers     stdhttp.Header
	userAgent   string
	auth        authState
	classifier  Classifier
	log         *slog.Logger
	backoff     retry.Policy
	retryAfter  time.Duration
	limiter     *rate.Limiter
	requestID   bool
}

// Request describes one call for Do.
type Request struct {
	Verb Verb
	Path string
	// Params become the query string. Only GET accepts them.
	Params Params
	// Body is sent by every verb except GET.
	Body    any
	Headers Headers
}

// New validates the configuration and returns a Client for endpoint. The
// endpoint path, if any, is discarded.
func New(endpoint string, opts ...Option) (*Client, error) {
	cfg := defaultConfig(endpoint)
	for _, o := range opts {
		o(&cfg)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	base, err := parseEndpoint(cfg.Endpoint)
	if err != nil {
		return nil, err
	}

	c := &Client{
		transport: newTransport(base, transportConfig{
			openTimeout:        cfg.OpenTimeout,
			readTimeout:        cfg.ReadTimeout,
			insecureSkipVerify: cfg.InsecureSkipVerify,
			roundTripper:       cfg.Transport,
		}),
		maxAttempts: cfg.MaxAttempts,
		headers:     make(stdhttp.Header, len(cfg.Headers)+1),
		auth: authState{
			username: cfg.Username,
			password: cfg.Password,
			bearer:   cfg.BearerToken,
			token:    cfg.TokenAuth,
		},
		classifier: cfg.Classifier.clone(),
		log:        cfg.Logger,
		backoff:    cfg.Backoff,
		retryAfter: cfg.RetryAfterCap,
		limiter:    cfg.Limiter,
		requestID:  cfg.RequestID,
	}
	if c.log == nil {
		c.log = slog.New(slog.DiscardHandler)
	}
	for k, v := range cfg.Headers {
		c.headers.Set(k, v)
	}
	c.SetUserAgent(cfg.UserAgent)
	c.warnOverlap()
	return c, nil
}

// Get issues a GET with params as the query string.
func (c *Client) Get(ctx context.Context, path string, params Params, headers Headers) (*Response, error) {
	return c.Do(ctx, &Request{Verb: VerbGet, Path: path, Params: params, Headers: headers})
}

// Post issues a POST with body JSON-encoded.
func (c *Client) Post(ctx context.Context, path string, body any, headers Headers) (*Response, error) {
	return c.Do(ctx, &Request{Verb: VerbPost, Path: path, Body: body, Headers: headers})
}

// Patch issues a PATCH with body JSON-encoded.
func (c *Client) Patch(ctx context.Context, path string, body any, headers Headers) (*Response, error) {
	return c.Do(ctx, &Request{Verb: VerbPatch, Path: path, Body: body, Headers: headers})
}

// Put issues a PUT with body JSON-encoded.
func (c *Client) Put(ctx context.Context, path string, body any, headers Headers) (*Response, error) {
	return c.Do(ctx, &Request{Verb: VerbPut, Path: path, Body: body, Headers: headers})
}

// Delete issues a DELETE. A nil body sends none.
func (c *Client) Delete(ctx context.Context, path string, body any, headers Headers) (*Response, error) {
	return c.Do(ctx, &Request{Verb: VerbDelete, Path: path, Body: body, Headers: headers})
}

// Do normalizes r, composes headers and authentication, runs the retry loop
// and materializes the final response.
//
// Non-2xx responses are returned, not raised. The error is a
// *PropagatedError or *ExhaustedError for transport failures, the context
// error on cancellation, or a validation error for a malformed Request.
func (c *Client) Do(ctx context.Context, r *Request) (*Response, error) {
	if r == nil {
		return nil, shared.Wrap(shared.ErrValidation, "nil request")
	}
	if !r.Verb.valid() {
		return nil, shared.Wrapf(shared.ErrValidation, "unknown verb %d", r.Verb)
	}
	target := normalizePath(r.Path)
	var body []byte
	if r.Verb.HasBody() {
		if len(r.Params) > 0 {
			return nil, shared.Wrapf(shared.ErrValidation, "%s does not take query params", r.Verb)
		}
		b, err := encodeBody(r.Body)
		if err != nil {
			return nil, shared.Wrap(shared.ErrValidation, err.Error())
		}
		body = b
	} else {
		if r.Body != nil {
			return nil, shared.Wrapf(shared.ErrValidation, "%s does not take a body", r.Verb)
		}
		target = normalizeTarget(r.Path, r.Params)
	}

	req, err := stdhttp.NewRequestWithContext(ctx, r.Verb.Method(), c.transport.URL(target), nil)
	if err != nil {
		return nil, shared.Wrap(shared.ErrValidation, err.Error())
	}
	req.Header = composeHeaders(c.headers, r.Headers, c.auth)
	if c.requestID && req.Header.Get(headerRequestID) == "" {
		req.Header.Set(headerRequestID, uuid.NewString())
	}
	applyBasicAuth(req, r.Headers, c.auth)

	e := &engine{
		doer:        c.transport,
		classifier:  c.classifier,
		maxAttempts: c.maxAttempts,
		backoff:     c.backoff,
		retryAfter:  c.retryAfter,
		limiter:     c.limiter,
		log:         c.log,
	}
	return e.execute(ctx, req, body)
}

// GetHTML is not supported: only JSON requests are issued.
func (c *Client) GetHTML(context.Context, string, Params, Headers) (*Response, error) {
	return nil, &UnsupportedError{Op: "GetHTML"}
}

// PostForm is not supported: only JSON requests are issued.
func (c *Client) PostForm(context.Context, string, Params, Headers) (*Response, error) {
	return nil, &UnsupportedError{Op: "PostForm"}
}

// PutForm is not supported: only JSON requests are issued.
func (c *Client) PutForm(context.Context, string, Params, Headers) (*Response, error) {
	return nil, &UnsupportedError{Op: "PutForm"}
}

// SetLogger replaces the logger. Nil silences the client.
func (c *Client) SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(slog.DiscardHandler)
	}
	c.log = l
}

// SetUserAgent updates the stored user agent and the User-Agent default
// header together. Empty removes the header.
func (c *Client) SetUserAgent(ua string) {
	c.userAgent = ua
	if ua == "" {
		c.headers.Del(headerUserAgent)
		return
	}
	c.headers.Set(headerUserAgent, ua)
}

// SetBasicAuth sets basic credentials. Both empty disables basic auth.
func (c *Client) SetBasicAuth(username, password string) {
	c.auth.username = username
	c.auth.password = password
}

// SetBearerAuth sets the bearer token. Empty unsets it.
func (c *Client) SetBearerAuth(token string) {
	c.auth.bearer = token
}

// SetTokenAuth sets a verbatim Authorization value. Empty unsets it.
func (c *Client) SetTokenAuth(value string) {
	c.auth.token = value
}

// SetRetryable replaces the retry list.
func (c *Client) SetRetryable(failures ...Failure) {
	c.classifier.Retry = append([]Failure(nil), failures...)
	c.warnOverlap()
}

// SetPropagate replaces the propagate list.
func (c *Client) SetPropagate(failures ...Failure) {
	c.classifier.Propagate = append([]Failure(nil), failures...)
	c.warnOverlap()
}

// SetHeader sets a default header. Empty value removes it.
func (c *Client) SetHeader(key, value string) {
	if value == "" {
		c.headers.Del(key)
		return
	}
	c.headers.Set(key, value)
}

// UserAgent returns the stored user agent.
func (c *Client) UserAgent() string { return c.userAgent }

// MaxAttempts returns the number of attempts per call.
func (c *Client) MaxAttempts() int { return c.maxAttempts }

// Classifier returns a copy of the failure lists.
func (c *Client) Classifier() Classifier { return c.classifier.clone() }

// Logger returns the current logger.
func (c *Client) Logger() *slog.Logger { return c.log }

// Transport exposes the connection settings.
func (c *Client) Transport() *Transport { return c.transport }

// Close releases the connection.
func (c *Client) Close() error {
	c.transport.Close()
	return nil
}

func (c *Client) warnOverlap() {
	for _, f := range c.classifier.Overlap() {
		c.log.Warn("failure listed as both propagate and retryable, it will never be retried",
			slog.String("failure", f.String()),
		)
	}
}
