package jsonrest

import stdhttp "net/http"

// Verb is one of the five request methods a Client issues.
type Verb uint8

// Verbs, each bound to a fixed method and body flag.
const (
	VerbGet Verb = iota
	VerbPost
	VerbPatch
	VerbPut
	VerbDelete
)

var verbTable = [...]struct {
	method string
	body   bool
}{
	VerbGet:    {stdhttp.MethodGet, false},
	VerbPost:   {stdhttp.MethodPost, true},
	VerbPatch:  {stdhttp.MethodPatch, true},
	VerbPut:    {stdhttp.MethodPut, true},
	VerbDelete: {stdhttp.MethodDelete, true},
}

// Method returns the HTTP method name.
func (v Verb) Method() string {
	if !v.valid() {
		return ""
	}
	return verbTable[v].method
}

// HasBody reports whether requests with this verb carry a body instead of a
// query string.
func (v Verb) HasBody() bool {
	return v.valid() && verbTable[v].body
}

func (v Verb) String() string {
	if !v.valid() {
		return "INVALID"
	}
	return verbTable[v].method
}

func (v Verb) valid() bool { return int(v) < len(verbTable) }
