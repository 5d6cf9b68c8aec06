package gateway

import (
	"bytes"

	json "github.com/goccy/go-json"

	"github.com/sawpanic/noticerun/internal/fault"
)

// ResultKind tags a read result.
type ResultKind int

const (
	// Unexpected marks a body that is not a JSON object or array. Callers
	// treat it as an empty result.
	Unexpected ResultKind = iota
	// Ok marks a JSON object or array body.
	Ok
)

// Result is the outcome of a read.
type Result struct {
	Kind   ResultKind
	Status int
	Body   []byte
}

func newResult(resp *Response) Result {
	r := Result{Kind: Unexpected, Status: resp.Status, Body: resp.Body}
	trimmed := bytes.TrimSpace(resp.Body)
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') && json.Valid(trimmed) {
		r.Kind = Ok
	}
	return r
}

// OK reports whether the read returned JSON with a 2xx status.
func (r Result) OK() bool {
	return r.Kind == Ok && r.Status >= 200 && r.Status < 300
}

// IsArray reports whether the body is a JSON array.
func (r Result) IsArray() bool {
	trimmed := bytes.TrimSpace(r.Body)
	return r.Kind == Ok && len(trimmed) > 0 && trimmed[0] == '['
}

// Decode unmarshals a JSON body into v. An Unexpected result leaves v
// untouched and returns nil.
func (r Result) Decode(v any) error {
	if r.Kind != Ok {
		return nil
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fault.New(fault.MalformedData, "decode result", err)
	}
	return nil
}
