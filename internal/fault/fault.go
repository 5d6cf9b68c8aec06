package fault

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so callers can decide whether to retry,
// skip the current lease or building, or continue the run.
type Kind int

const (
	Unknown Kind = iota
	RateLimited
	CredentialExpired
	UpstreamRejected
	MalformedData
	EncryptionOrIO
)

func (k Kind) String() string {
	switch k {
	case RateLimited:
		return "rate_limited"
	case CredentialExpired:
		return "credential_expired"
	case UpstreamRejected:
		return "upstream_rejected"
	case MalformedData:
		return "malformed_data"
	case EncryptionOrIO:
		return "encryption_or_io"
	default:
		return "unknown"
	}
}

// Error carries the failure kind, the operation that failed and, for HTTP
// failures, the status code returned by the upstream.
type Error struct {
	Kind   Kind   `json:"kind"`
	Op     string `json:"op"`
	Status int    `json:"status,omitempty"`
	Err    error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s %s (HTTP %d): %v", e.Op, e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New wraps err with a kind and operation name.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf builds an error of the given kind from a format string.
func Newf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// Status builds an UpstreamRejected error for an unexpected HTTP status.
func Status(op string, status int, body []byte) *Error {
	msg := string(body)
	if len(msg) > 256 {
		msg = msg[:256]
	}
	return &Error{Kind: UpstreamRejected, Op: op, Status: status, Err: fmt.Errorf("unexpected status: %s", msg)}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return Unknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
