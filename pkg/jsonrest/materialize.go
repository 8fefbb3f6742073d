package jsonrest

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	stdhttp "net/http"
)

// Response is the materialized result of a call. HTTP failures (4xx/5xx) are
// returned as a Response, never as an error: inspect Code.
type Response struct {
	// Code is the HTTP status.
	Code int
	// Body is nil for an empty body, the decoded JSON value when the body
	// parses (objects as map[string]any, numbers as json.Number), or the raw
	// text otherwise.
	Body any
	// JSON reports whether Body holds a decoded JSON value.
	JSON bool
	// Raw is the unmodified body.
	Raw []byte
	// Header is the response header.
	Header stdhttp.Header
	// Attempts is the number of requests issued for this call.
	Attempts int
}

// Success reports whether Code is 2xx.
func (r *Response) Success() bool {
	return r.Code >= 200 && r.Code < 300
}

// Decode unmarshals the raw body into v.
func (r *Response) Decode(v any) error {
	if len(r.Raw) == 0 {
		return errors.New("jsonrest: empty response body")
	}
	return json.Unmarshal(r.Raw, v)
}

// materialize turns a status/body pair into a Response. A body that does not
// parse as JSON is logged and kept as text; this step never fails.
func materialize(log *slog.Logger, code int, header stdhttp.Header, raw []byte) *Response {
	resp := &Response{Code: code, Header: header, Raw: raw}
	if len(raw) == 0 {
		return resp
	}
	v, err := decodeStrict(raw)
	if err != nil {
		log.Warn("parsing response body as JSON failed",
			slog.Int("status", code),
			slog.Int("bytes", len(raw)),
			slog.Any("error", err),
		)
		resp.Body = string(raw)
		return resp
	}
	resp.Body = v
	resp.JSON = true
	return resp
}

// decodeStrict accepts exactly one JSON value surrounded by optional whitespace.
func decodeStrict(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		if err == nil {
			err = errors.New("unexpected data after top-level value")
		}
		return nil, err
	}
	return v, nil
}
