// Package secrets resolves account credentials by name.
package secrets

import (
	"context"
	"errors"
	"fmt"
)

// ErrSecretNotFound is matched by every not-found error of this package.
var ErrSecretNotFound = errors.New("secret not found")

// Source resolves a secret by name.
type Source interface {
	Secret(ctx context.Context, name string) (*Secret, error)
}

// Secret is a resolved secret value.
type Secret struct {
	Name     string
	Value    []byte
	Metadata map[string]string
}

// String returns the secret value as a string
func (s *Secret) String() string {
	return string(s.Value)
}

// Redact returns a copy safe for logging.
func (s *Secret) Redact() *Secret {
	redacted := *s
	if len(redacted.Value) > 0 {
		redacted.Value = []byte(replacement)
	}
	return &redacted
}

// NotFoundError names the secret and the source that lacked it.
type NotFoundError struct {
	Name   string
	Source string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("secret '%s' not found in source '%s'", e.Name, e.Source)
}

// Is matches ErrSecretNotFound.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrSecretNotFound
}

// Chain tries each source in order and returns the first hit. Errors other
// than not-found stop the search.
type Chain []Source

// Secret implements Source.
func (c Chain) Secret(ctx context.Context, name string) (*Secret, error) {
	for _, src := range c {
		s, err := src.Secret(ctx, name)
		if err == nil {
			return s, nil
		}
		if !errors.Is(err, ErrSecretNotFound) {
			return nil, err
		}
	}
	return nil, &NotFoundError{Name: name, Source: "chain"}
}
