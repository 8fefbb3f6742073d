package jsonrest

import (
	"log/slog"
	stdhttp "net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/time/rate"

	"jsonrest/internal/shared"
	"jsonrest/pkg/retry"
)

// Config holds everything New needs. It is filled by Options and validated
// once; afterwards only the setters on Client change behavior.
type Config struct {
	Endpoint    string `validate:"required,url"`
	MaxAttempts int    `validate:"gte=1"`
	Headers     Headers
	Username    string
	Password    string
	UserAgent   string
	BearerToken string
	TokenAuth   string
	Logger      *slog.Logger
	Classifier  Classifier
	// Backoff is waited between attempts. Nil re-issues immediately.
	Backoff retry.Policy
	// RetryAfterCap enables Retry-After on retried statuses, capped at this
	// duration. Zero ignores the header.
	RetryAfterCap time.Duration `validate:"gte=0"`
	Limiter       *rate.Limiter
	RequestID     bool
	OpenTimeout   time.Duration `validate:"gte=0"`
	ReadTimeout   time.Duration `validate:"gte=0"`
	// InsecureSkipVerify disables certificate verification for https
	// endpoints.
	InsecureSkipVerify bool
	Transport          stdhttp.RoundTripper
}

// Option configures a Client at construction.
type Option func(*Config)

func defaultConfig(endpoint string) Config {
	return Config{
		Endpoint:    endpoint,
		MaxAttempts: 2,
		UserAgent:   DefaultUserAgent,
		Classifier:  DefaultClassifier(),
		OpenTimeout: 10 * time.Second,
		ReadTimeout: 30 * time.Second,
	}
}

var structValidator = validator.New()

func (c *Config) validate() error {
	if err := structValidator.Struct(c); err != nil {
		return shared.Wrap(shared.ErrValidation, err.Error())
	}
	return nil
}

// WithTries sets the total number of attempts per call, the first included.
func WithTries(n int) Option {
	return func(c *Config) { c.MaxAttempts = n }
}

// WithHeaders adds default headers sent on every call.
func WithHeaders(h Headers) Option {
	return func(c *Config) {
		if c.Headers == nil {
			c.Headers = make(Headers, len(h))
		}
		for k, v := range h {
			c.Headers[k] = v
		}
	}
}

// WithBasicAuth sets basic credentials. Both empty disables basic auth.
func WithBasicAuth(username, password string) Option {
	return func(c *Config) {
		c.Username = username
		c.Password = password
	}
}

// WithUserAgent sets the User-Agent header. Empty sends none.
func WithUserAgent(ua string) Option {
	return func(c *Config) { c.UserAgent = ua }
}

// WithBearerAuth sends "Authorization: Bearer <token>".
func WithBearerAuth(token string) Option {
	return func(c *Config) { c.BearerToken = token }
}

// WithTokenAuth sends value verbatim as the Authorization header. It takes
// precedence over WithBearerAuth.
func WithTokenAuth(value string) Option {
	return func(c *Config) { c.TokenAuth = value }
}

// WithLogger sets the logger. Without it nothing is logged.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) {
		if l != nil {
			c.Logger = l
		}
	}
}

// WithRetryable replaces the retry list.
func WithRetryable(failures ...Failure) Option {
	return func(c *Config) { c.Classifier.Retry = append([]Failure(nil), failures...) }
}

// WithPropagate replaces the propagate list.
func WithPropagate(failures ...Failure) Option {
	return func(c *Config) { c.Classifier.Propagate = append([]Failure(nil), failures...) }
}

// WithBackoff sets the pause policy between attempts.
func WithBackoff(p retry.Policy) Option {
	return func(c *Config) { c.Backoff = p }
}

// WithRetryAfter honours Retry-After on retried statuses, waiting at most
// limit.
func WithRetryAfter(limit time.Duration) Option {
	return func(c *Config) { c.RetryAfterCap = limit }
}

// WithRateLimiter waits on l before every attempt.
func WithRateLimiter(l *rate.Limiter) Option {
	return func(c *Config) { c.Limiter = l }
}

// WithRequestID adds a random X-Request-ID to every call that does not carry
// one. All attempts of a call share the ID.
func WithRequestID() Option {
	return func(c *Config) { c.RequestID = true }
}

// WithTimeouts sets the connect and response-header timeouts. Zero means no
// timeout.
func WithTimeouts(open, read time.Duration) Option {
	return func(c *Config) {
		c.OpenTimeout = open
		c.ReadTimeout = read
	}
}

// WithInsecureSkipVerify turns certificate verification off.
func WithInsecureSkipVerify() Option {
	return func(c *Config) { c.InsecureSkipVerify = true }
}

// WithTransport replaces the connection layer, mostly for tests. Timeouts and
// TLS options are ignored when set.
func WithTransport(rt stdhttp.RoundTripper) Option {
	return func(c *Config) {
		if rt != nil {
			c.Transport = rt
		}
	}
}
