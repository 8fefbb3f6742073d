package jsonrest_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jsonrest/internal/shared"
	"jsonrest/pkg/jsonrest"
)

type rtFunc func(*http.Request) (*http.Response, error)

func (f rtFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func captureLogs() (*slog.Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})), buf
}

func countMsg(t *testing.T, buf *bytes.Buffer, msg string) int {
	t.Helper()
	n := 0
	sc := bufio.NewScanner(bytes.NewReader(buf.Bytes()))
	for sc.Scan() {
		var rec map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &rec))
		if rec["msg"] == msg {
			n++
		}
	}
	return n
}

func refused() error {
	return &net.OpError{Op: "dial", Net: "tcp", Err: &os.SyscallError{Syscall: "connect", Err: syscall.ECONNREFUSED}}
}

const (
	msgRetrying  = "http request failed, retrying"
	msgParseFail = "parsing response body as JSON failed"
)

func TestClient_RetryableStatusExhausted(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	log, buf := captureLogs()
	c, err := jsonrest.New(srv.URL, jsonrest.WithTries(4), jsonrest.WithLogger(log))
	require.NoError(t, err)
	defer c.Close()

	resp, err := c.Get(context.Background(), "/status", nil, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusServiceUnavailable, resp.Code)
	require.Equal(t, 4, resp.Attempts)
	require.EqualValues(t, 4, hits.Load())
	require.Equal(t, 4, countMsg(t, buf, msgRetrying))
}

func TestClient_RetryThenSuccess(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = io.WriteString(w, `{"id": 7, "name": "ada"}`)
	}))
	defer srv.Close()

	c, err := jsonrest.New(srv.URL, jsonrest.WithTries(3))
	require.NoError(t, err)

	resp, err := c.Get(context.Background(), "users/7", nil, nil)
	require.NoError(t, err)
	require.True(t, resp.Success())
	require.Equal(t, 2, resp.Attempts)
	require.True(t, resp.JSON)
	body, ok := resp.Body.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, json.Number("7"), body["id"])
	assert.Equal(t, "ada", body["name"])

	var user struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	}
	require.NoError(t, resp.Decode(&user))
	assert.Equal(t, 7, user.ID)
}

func TestClient_RetryableTransportError(t *testing.T) {
	for n := 1; n <= 4; n++ {
		var calls int
		log, buf := captureLogs()
		c, err := jsonrest.New("http://api.test",
			jsonrest.WithTries(n),
			jsonrest.WithLogger(log),
			jsonrest.WithTransport(rtFunc(func(*http.Request) (*http.Response, error) {
				calls++
				return nil, refused()
			})),
		)
		require.NoError(t, err)

		resp, err := c.Get(context.Background(), "/", nil, nil)
		require.Nil(t, resp)
		require.Error(t, err)
		require.ErrorIs(t, err, jsonrest.ErrExhausted)
		require.ErrorIs(t, err, syscall.ECONNREFUSED)

		var ex *jsonrest.ExhaustedError
		require.ErrorAs(t, err, &ex)
		require.Equal(t, n, ex.Attempts)
		require.Equal(t, jsonrest.KindConnRefused, ex.Kind)
		require.Equal(t, n, calls)
		require.Equal(t, n-1, countMsg(t, buf, msgRetrying))
	}
}

func TestClient_PropagatedStatus(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusMethodNotAllowed)
		_, _ = io.WriteString(w, `{"error":"method not allowed"}`)
	}))
	defer srv.Close()

	log, buf := captureLogs()
	c, err := jsonrest.New(srv.URL,
		jsonrest.WithTries(5),
		jsonrest.WithLogger(log),
		jsonrest.WithPropagate(jsonrest.StatusFailure(http.StatusMethodNotAllowed)),
	)
	require.NoError(t, err)

	resp, err := c.Delete(context.Background(), "/items/1", nil, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusMethodNotAllowed, resp.Code)
	require.EqualValues(t, 1, hits.Load())
	require.Zero(t, countMsg(t, buf, msgRetrying))
	require.Equal(t, 1, countMsg(t, buf, "http request failed, propagating response"))
}

func TestClient_PropagateWinsOverRetry(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	log, buf := captureLogs()
	c, err := jsonrest.New(srv.URL,
		jsonrest.WithTries(3),
		jsonrest.WithLogger(log),
		jsonrest.WithRetryable(jsonrest.StatusFailure(503)),
		jsonrest.WithPropagate(jsonrest.StatusClassFailure(5), jsonrest.StatusFailure(503)),
	)
	require.NoError(t, err)
	require.Equal(t, 1, countMsg(t, buf, "failure listed as both propagate and retryable, it will never be retried"))

	resp, err := c.Get(context.Background(), "/", nil, nil)
	require.NoError(t, err)
	require.Equal(t, 503, resp.Code)
	require.EqualValues(t, 1, hits.Load())
	require.Zero(t, countMsg(t, buf, msgRetrying))
}

func TestClient_WarnsWhenClassShadowsRetryableStatus(t *testing.T) {
	log, buf := captureLogs()
	c, err := jsonrest.New("http://api.test",
		jsonrest.WithLogger(log),
		jsonrest.WithPropagate(jsonrest.StatusClassFailure(5)),
	)
	require.NoError(t, err)
	// default retry list holds 502, 503 and 504
	require.Equal(t, 3, countMsg(t, buf, "failure listed as both propagate and retryable, it will never be retried"))

	buf.Reset()
	c.SetPropagate(jsonrest.StatusFailure(500))
	require.Zero(t, countMsg(t, buf, "failure listed as both propagate and retryable, it will never be retried"))
}

func TestClient_NonSuccessLogged(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	log, buf := captureLogs()
	c, err := jsonrest.New(srv.URL, jsonrest.WithLogger(log))
	require.NoError(t, err)

	resp, err := c.Get(context.Background(), "/missing", nil, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.Code)
	require.False(t, resp.Success())
	require.Equal(t, 1, countMsg(t, buf, "http request returned non-success code"))
	require.Zero(t, countMsg(t, buf, msgRetrying))
}

func TestClient_PropagatedTransportError(t *testing.T) {
	var calls int
	c, err := jsonrest.New("http://api.test",
		jsonrest.WithTries(3),
		jsonrest.WithTransport(rtFunc(func(*http.Request) (*http.Response, error) {
			calls++
			return nil, &net.DNSError{Err: "no such host", Name: "api.test", IsNotFound: true}
		})),
	)
	require.NoError(t, err)

	_, err = c.Get(context.Background(), "/", nil, nil)
	require.ErrorIs(t, err, jsonrest.ErrPropagated)
	var pe *jsonrest.PropagatedError
	require.ErrorAs(t, err, &pe)
	require.True(t, pe.Classified)
	require.Equal(t, jsonrest.KindDNS, pe.Kind)
	require.Equal(t, 1, pe.Attempt)
	require.Equal(t, 1, calls)

	var dnsErr *net.DNSError
	require.ErrorAs(t, err, &dnsErr)
}

func TestClient_UnclassifiedErrorFailsFast(t *testing.T) {
	boom := errors.New("boom")
	var calls int
	c, err := jsonrest.New("http://api.test",
		jsonrest.WithTries(3),
		jsonrest.WithTransport(rtFunc(func(*http.Request) (*http.Response, error) {
			calls++
			return nil, boom
		})),
	)
	require.NoError(t, err)

	_, err = c.Post(context.Background(), "/", map[string]int{"a": 1}, nil)
	var pe *jsonrest.PropagatedError
	require.ErrorAs(t, err, &pe)
	require.False(t, pe.Classified)
	require.ErrorIs(t, err, boom)
	require.Equal(t, 1, calls)
}

func TestClient_CanceledContext(t *testing.T) {
	var calls int
	c, err := jsonrest.New("http://api.test",
		jsonrest.WithTries(3),
		jsonrest.WithRetryable(jsonrest.TransportFailure(jsonrest.KindCanceled)),
		jsonrest.WithTransport(rtFunc(func(r *http.Request) (*http.Response, error) {
			calls++
			return nil, r.Context().Err()
		})),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.Get(ctx, "/", nil, nil)
	require.ErrorIs(t, err, context.Canceled)
	require.NotErrorIs(t, err, jsonrest.ErrExhausted)
	require.LessOrEqual(t, calls, 1)
}

func TestClient_AuthPrecedence(t *testing.T) {
	var got []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = append(got, r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c, err := jsonrest.New(srv.URL,
		jsonrest.WithBearerAuth("abc"),
		jsonrest.WithTokenAuth("Token xyz"),
	)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = c.Get(ctx, "/", nil, nil)
	require.NoError(t, err)

	_, err = c.Get(ctx, "/", nil, jsonrest.Headers{"authorization": "Custom 1"})
	require.NoError(t, err)

	c.SetTokenAuth("")
	_, err = c.Get(ctx, "/", nil, nil)
	require.NoError(t, err)

	c.SetBearerAuth("")
	_, err = c.Get(ctx, "/", nil, nil)
	require.NoError(t, err)

	c.SetBasicAuth("user", "pass")
	_, err = c.Get(ctx, "/", nil, nil)
	require.NoError(t, err)

	require.Equal(t, []string{
		"Token xyz",
		"Custom 1",
		"Bearer abc",
		"",
		"Basic dXNlcjpwYXNz",
	}, got)
}

func TestClient_HeadersAndBody(t *testing.T) {
	type seen struct {
		method, uri, ua, accept, ctype, custom, reqID string
		body                                          []byte
	}
	var calls []seen
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		calls = append(calls, seen{
			method: r.Method,
			uri:    r.RequestURI,
			ua:     r.UserAgent(),
			accept: r.Header.Get("Accept"),
			ctype:  r.Header.Get("Content-Type"),
			custom: r.Header.Get("X-Tenant"),
			reqID:  r.Header.Get("X-Request-ID"),
			body:   b,
		})
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, err := jsonrest.New(srv.URL+"/ignored/path",
		jsonrest.WithHeaders(jsonrest.Headers{"x-tenant": "acme", "Accept": "application/vnd.api+json"}),
		jsonrest.WithRequestID(),
	)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = c.Get(ctx, " search ", jsonrest.Params{{Key: "q", Value: "a b"}, {Key: "n", Value: 1}, {Key: "tag", Value: []string{"x", "y"}}}, nil)
	require.NoError(t, err)

	c.SetUserAgent("probe/2")
	_, err = c.Put(ctx, "/items/1", map[string]string{"name": "n"}, jsonrest.Headers{"X-Tenant": "other"})
	require.NoError(t, err)

	require.Len(t, calls, 2)
	assert.Equal(t, http.MethodGet, calls[0].method)
	assert.Equal(t, "/search?q=a+b&n=1&tag=x&tag=y", calls[0].uri)
	assert.Equal(t, jsonrest.DefaultUserAgent, calls[0].ua)
	assert.Equal(t, "application/vnd.api+json", calls[0].accept)
	assert.Equal(t, "application/json", calls[0].ctype)
	assert.Equal(t, "acme", calls[0].custom)
	assert.NotEmpty(t, calls[0].reqID)
	assert.Empty(t, calls[0].body)

	assert.Equal(t, http.MethodPut, calls[1].method)
	assert.Equal(t, "/items/1", calls[1].uri)
	assert.Equal(t, "probe/2", calls[1].ua)
	assert.Equal(t, "other", calls[1].custom)
	assert.JSONEq(t, `{"name":"n"}`, string(calls[1].body))
	assert.NotEqual(t, calls[0].reqID, calls[1].reqID)
	assert.Equal(t, "probe/2", c.UserAgent())
}

func TestClient_RequestIDStableAcrossAttempts(t *testing.T) {
	var ids []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ids = append(ids, r.Header.Get("X-Request-ID"))
		b, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"n":1}`, string(b))
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c, err := jsonrest.New(srv.URL, jsonrest.WithTries(3), jsonrest.WithRequestID())
	require.NoError(t, err)

	resp, err := c.Patch(context.Background(), "/n", json.RawMessage(`{"n":1}`), nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusTooManyRequests, resp.Code)
	require.Len(t, ids, 3)
	require.Equal(t, ids[0], ids[1])
	require.Equal(t, ids[1], ids[2])
}

func TestClient_Materialize(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantBody any
		wantJSON bool
		wantWarn int
	}{
		{name: "empty", body: "", wantBody: nil, wantWarn: 0},
		{name: "html", body: "<html>not json</html>", wantBody: "<html>not json</html>", wantWarn: 1},
		{name: "trailing data", body: `{"a":1} x`, wantBody: `{"a":1} x`, wantWarn: 1},
		{name: "array", body: ` ["a"] `, wantBody: []any{"a"}, wantJSON: true},
		{name: "scalar", body: `"ok"`, wantBody: "ok", wantJSON: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			log, buf := captureLogs()
			c, err := jsonrest.New(srv.URL, jsonrest.WithLogger(log))
			require.NoError(t, err)

			resp, err := c.Get(context.Background(), "/", nil, nil)
			require.NoError(t, err)
			require.Equal(t, http.StatusOK, resp.Code)
			require.Equal(t, tt.wantBody, resp.Body)
			require.Equal(t, tt.wantJSON, resp.JSON)
			require.Equal(t, tt.wantWarn, countMsg(t, buf, msgParseFail))
		})
	}
}

func TestClient_Unsupported(t *testing.T) {
	c, err := jsonrest.New("http://127.0.0.1:1")
	require.NoError(t, err)
	ctx := context.Background()

	ops := map[string]func() (*jsonrest.Response, error){
		"GetHTML":  func() (*jsonrest.Response, error) { return c.GetHTML(ctx, "/", nil, nil) },
		"PostForm": func() (*jsonrest.Response, error) { return c.PostForm(ctx, "/", nil, nil) },
		"PutForm":  func() (*jsonrest.Response, error) { return c.PutForm(ctx, "/", nil, nil) },
	}
	for name, op := range ops {
		resp, err := op()
		require.Nil(t, resp, name)
		require.ErrorIs(t, err, jsonrest.ErrUnsupported, name)
		var ue *jsonrest.UnsupportedError
		require.ErrorAs(t, err, &ue)
		require.Equal(t, name, ue.Op)
	}
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name     string
		endpoint string
		opts     []jsonrest.Option
	}{
		{name: "empty endpoint", endpoint: ""},
		{name: "bad scheme", endpoint: "ftp://files.example.com"},
		{name: "no scheme", endpoint: "api.example.com"},
		{name: "zero tries", endpoint: "http://api.test", opts: []jsonrest.Option{jsonrest.WithTries(0)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := jsonrest.New(tt.endpoint, tt.opts...)
			require.Nil(t, c)
			require.ErrorIs(t, err, shared.ErrValidation)
		})
	}
}

func TestNew_Defaults(t *testing.T) {
	c, err := jsonrest.New("https://api.example.com:8443/v1?x=1")
	require.NoError(t, err)
	require.Equal(t, 2, c.MaxAttempts())
	require.Equal(t, jsonrest.DefaultUserAgent, c.UserAgent())
	require.Equal(t, "api.example.com", c.Transport().Host())
	require.Equal(t, "8443", c.Transport().Port())
	require.True(t, c.Transport().UseTLS())
	require.Equal(t, "https://api.example.com:8443/a", c.Transport().URL("/a"))
	require.Equal(t, jsonrest.DefaultClassifier(), c.Classifier())
}

func TestClient_DoRejectsMisplacedArguments(t *testing.T) {
	c, err := jsonrest.New("http://api.test")
	require.NoError(t, err)
	ctx := context.Background()

	_, err = c.Do(ctx, &jsonrest.Request{Verb: jsonrest.VerbPost, Path: "/", Params: jsonrest.Params{{Key: "a", Value: 1}}})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = c.Do(ctx, &jsonrest.Request{Verb: jsonrest.VerbGet, Path: "/", Body: "x"})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = c.Post(ctx, "/", make(chan int), nil)
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = c.Do(ctx, nil)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestClient_MalformedPathsAreCoerced(t *testing.T) {
	var seen []string
	c, err := jsonrest.New("http://api.test", jsonrest.WithTransport(rtFunc(func(r *http.Request) (*http.Response, error) {
		seen = append(seen, r.URL.RequestURI())
		return &http.Response{StatusCode: http.StatusNoContent, Body: http.NoBody, Header: http.Header{}}, nil
	})))
	require.NoError(t, err)
	ctx := context.Background()

	for _, p := range []string{"/a%zz", "/bad\x7f", "/x#frag", "trail%", "/ok%20space"} {
		resp, err := c.Get(ctx, p, nil, nil)
		require.NoError(t, err, "path %q", p)
		assert.Equal(t, http.StatusNoContent, resp.Code)
	}
	_, err = c.Delete(ctx, "/items/1#2", nil, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"/a%25zz",
		"/bad%7F",
		"/x%23frag",
		"/trail%25",
		"/ok%20space",
		"/items/1%232",
	}, seen)
}
