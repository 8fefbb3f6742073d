package jsonrest

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	stdhttp "net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"jsonrest/internal/shared"
	"jsonrest/pkg/retry"
)

// State is a step of the retry loop.
type State int

const (
	StateAttempting State = iota
	StateSuccess
	StateRetryWait
	StatePropagated
	StateExhausted
)

func (s State) String() string {
	switch s {
	case StateAttempting:
		return "attempting"
	case StateSuccess:
		return "success"
	case StateRetryWait:
		return "retry_wait"
	case StatePropagated:
		return "propagated"
	case StateExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// Doer performs one request/response exchange. *Transport and *http.Client
// satisfy it.
type Doer interface {
	Do(req *stdhttp.Request) (*stdhttp.Response, error)
}

// engine drives one call through the bounded retry loop. It is built fresh for
// every call from the client's current settings.
type engine struct {
	doer        Doer
	classifier  Classifier
	maxAttempts int
	backoff     retry.Policy
	retryAfter  time.Duration
	limiter     *rate.Limiter
	log         *slog.Logger
}

// execute issues tmpl until it succeeds, is propagated or runs out of
// attempts. body is replayed verbatim on every attempt.
func (e *engine) execute(ctx context.Context, tmpl *stdhttp.Request, body []byte) (*Response, error) {
	remaining := e.maxAttempts
	if remaining < 1 {
		remaining = 1
	}
	method := tmpl.Method
	u := tmpl.URL.Redacted()
	var wait time.Duration

	for attempt := 1; ; attempt++ {
		if attempt > 1 {
			if e.backoff != nil {
				if d := e.backoff.Delay(attempt - 1); d > wait {
					wait = d
				}
			}
			if wait > 0 {
				e.log.Debug("http request waiting",
					slog.String("method", method),
					slog.String("url", u),
					slog.Int("attempt", attempt),
					slog.String("state", StateRetryWait.String()),
					slog.Duration("wait", wait),
				)
			}
			if err := retry.Wait(ctx, wait); err != nil {
				return nil, err
			}
			wait = 0
		}
		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		req := tmpl.Clone(ctx)
		if body != nil {
			req.Body = io.NopCloser(bytes.NewReader(body))
			req.GetBody = func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(body)), nil }
			req.ContentLength = int64(len(body))
		}

		started := time.Now()
		code, header, raw, err := e.roundTrip(req)
		dur := time.Since(started)

		if err != nil {
			if ctx.Err() != nil {
				e.log.Warn("http request canceled",
					slog.String("method", method),
					slog.String("url", u),
					slog.Int("attempt", attempt),
					slog.Any("error", err),
				)
				return nil, err
			}
			kind, decision := e.classifier.ClassifyError(err)
			switch decision {
			case DecisionPropagate:
				e.log.Error("http request failed, propagating",
					slog.String("method", method),
					slog.String("url", u),
					slog.Int("attempt", attempt),
					slog.String("state", StatePropagated.String()),
					slog.String("kind", kind.String()),
					slog.Any("error", err),
				)
				return nil, &PropagatedError{Method: method, URL: u, Kind: kind, Classified: true, Attempt: attempt, Err: err}
			case DecisionRetry:
				remaining--
				if remaining == 0 {
					e.log.Error("http request failed, retries exhausted",
						slog.String("method", method),
						slog.String("url", u),
						slog.Int("attempt", attempt),
						slog.String("state", StateExhausted.String()),
						slog.String("kind", kind.String()),
						slog.Any("error", err),
					)
					return nil, &ExhaustedError{Method: method, URL: u, Kind: kind, Attempts: attempt, Err: err}
				}
				e.log.Warn("http request failed, retrying",
					slog.String("method", method),
					slog.String("url", u),
					slog.Int("attempt", attempt),
					slog.Int("attempts_left", remaining),
					slog.String("state", StateRetryWait.String()),
					slog.String("kind", kind.String()),
					slog.Any("error", err),
				)
				continue
			default:
				e.log.Error("http request failed, unclassified error",
					slog.String("method", method),
					slog.String("url", u),
					slog.Int("attempt", attempt),
					slog.String("state", StatePropagated.String()),
					slog.String("kind", kind.String()),
					slog.Any("error", err),
				)
				return nil, &PropagatedError{Method: method, URL: u, Kind: kind, Attempt: attempt, Err: err}
			}
		}

		switch e.classifier.ClassifyStatus(code) {
		case DecisionPropagate:
			e.log.Warn("http request failed, propagating response",
				slog.String("method", method),
				slog.String("url", u),
				slog.Int("attempt", attempt),
				slog.String("state", StatePropagated.String()),
				slog.Int("status", code),
			)
		case DecisionRetry:
			e.log.Warn("http request failed, retrying",
				slog.String("method", method),
				slog.String("url", u),
				slog.Int("attempt", attempt),
				slog.Int("attempts_left", remaining-1),
				slog.String("state", StateRetryWait.String()),
				slog.Int("status", code),
			)
			remaining--
			if remaining > 0 {
				wait = e.retryAfterDelay(header)
				continue
			}
			e.log.Warn("retries exhausted, returning last response",
				slog.String("method", method),
				slog.String("url", u),
				slog.Int("attempt", attempt),
				slog.String("state", StateExhausted.String()),
				slog.Int("status", code),
			)
		default:
			if code < 200 || code >= 300 {
				e.log.Warn("http request returned non-success code",
					slog.String("method", method),
					slog.String("url", u),
					slog.Int("attempt", attempt),
					slog.Int("status", code),
				)
			} else {
				e.log.Debug("http request",
					slog.String("method", method),
					slog.String("url", u),
					slog.Int("attempt", attempt),
					slog.String("state", StateSuccess.String()),
					slog.Int("status", code),
					slog.Duration("dur", dur),
				)
			}
		}
		resp := materialize(e.log, code, header, raw)
		resp.Attempts = attempt
		return resp, nil
	}
}

// roundTrip performs one exchange and reads the whole body. A failure to read
// the body counts as a transport error.
func (e *engine) roundTrip(req *stdhttp.Request) (int, stdhttp.Header, []byte, error) {
	resp, err := e.doer.Do(req)
	if err != nil {
		return 0, nil, nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, nil, shared.MarkKind(err, shared.KindProtocol)
	}
	return resp.StatusCode, resp.Header, raw, nil
}

// retryAfterDelay honours a Retry-After header up to the configured cap. It
// returns 0 when the cap is unset.
func (e *engine) retryAfterDelay(h stdhttp.Header) time.Duration {
	if e.retryAfter <= 0 {
		return 0
	}
	d := parseRetryAfter(h.Get("Retry-After"))
	if d > e.retryAfter {
		d = e.retryAfter
	}
	return d
}

// parseRetryAfter reads delta-seconds or an HTTP date.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := stdhttp.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
