package secrets

import (
	"context"
	"os"
	"strings"
)

// EnvSource reads secrets from environment variables. A secret named
// "acct-42.secret" with prefix "noticerun" is read from
// NOTICERUN_ACCT_42_SECRET.
type EnvSource struct {
	prefix string
	lookup func(string) (string, bool)
}

// NewEnvSource creates an environment variable source.
func NewEnvSource(prefix string) *EnvSource {
	return &EnvSource{prefix: prefix, lookup: os.LookupEnv}
}

// Secret implements Source.
func (p *EnvSource) Secret(_ context.Context, name string) (*Secret, error) {
	envKey := p.EnvKey(name)
	value, ok := p.lookup(envKey)
	if !ok || value == "" {
		return nil, &NotFoundError{Name: name, Source: "environment"}
	}
	return &Secret{
		Name:  name,
		Value: []byte(value),
		Metadata: map[string]string{
			"source":  "environment",
			"env_key": envKey,
		},
	}, nil
}

var envKeyReplacer = strings.NewReplacer("-", "_", ".", "_", "/", "_")

// EnvKey returns the environment variable a secret name maps to.
func (p *EnvSource) EnvKey(name string) string {
	key := strings.ToUpper(envKeyReplacer.Replace(name))
	if p.prefix == "" {
		return key
	}
	return strings.ToUpper(p.prefix) + "_" + key
}
