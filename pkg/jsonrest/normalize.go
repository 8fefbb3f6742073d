package jsonrest

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Param is one query parameter. Value is stringified with fmt.Sprint; a nil
// Value encodes as an empty string and slice values repeat the key.
type Param struct {
	Key   string
	Value any
}

// Params is an ordered parameter collection. Encoding preserves its order.
type Params []Param

// ParamsFromMap converts a map to Params with keys sorted, since map
// iteration order is random.
func ParamsFromMap[V any](m map[string]V) Params {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make(Params, 0, len(keys))
	for _, k := range keys {
		out = append(out, Param{Key: k, Value: m[k]})
	}
	return out
}

// Add returns p with one more parameter appended.
func (p Params) Add(key string, value any) Params {
	return append(p, Param{Key: key, Value: value})
}

// Encode form-encodes p as key=value pairs joined by '&', in order.
func (p Params) Encode() string {
	var b strings.Builder
	for _, param := range p {
		for _, v := range stringify(param.Value) {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(param.Key))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	return b.String()
}

func stringify(v any) []string {
	switch x := v.(type) {
	case nil:
		return []string{""}
	case string:
		return []string{x}
	case []string:
		return x
	case []any:
		out := make([]string, len(x))
		for i, e := range x {
			out[i] = fmt.Sprint(e)
		}
		return out
	default:
		return []string{fmt.Sprint(x)}
	}
}

// normalizePath trims path and makes it absolute. Blank paths become "/".
// Bytes that cannot appear in a request target are percent-encoded, so no
// path is ever rejected.
func normalizePath(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return coerceTarget(path)
}

// coerceTarget escapes stray '%', '#', spaces and control bytes. Valid
// escapes and everything else pass through untouched.
func coerceTarget(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '%' && i+2 < len(s) && isHex(s[i+1]) && isHex(s[i+2]):
			b.WriteByte(c)
		case c == '%', c == '#', c == ' ', c < 0x20, c == 0x7f:
			b.WriteByte('%')
			b.WriteByte(hex[c>>4])
			b.WriteByte(hex[c&0x0f])
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func isHex(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}

// normalizeTarget returns the canonical path with params appended as a query.
func normalizeTarget(path string, params Params) string {
	path = normalizePath(path)
	query := params.Encode()
	if query == "" {
		return path
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + query
}

// encodeBody returns the request body bytes. []byte, string and
// json.RawMessage are sent verbatim, anything else is JSON-encoded.
func encodeBody(body any) ([]byte, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return b, nil
	case string:
		return []byte(b), nil
	case json.RawMessage:
		return b, nil
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("jsonrest: encode request body: %w", err)
		}
		return data, nil
	}
}
