package secrets

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// MountSource reads secrets from files in a directory, one file per secret,
// the way orchestrators mount secret volumes.
type MountSource struct {
	dir string
}

// NewMountSource creates a source rooted at dir.
func NewMountSource(dir string) *MountSource {
	return &MountSource{dir: dir}
}

// Secret implements Source. Trailing newlines are trimmed.
func (p *MountSource) Secret(_ context.Context, name string) (*Secret, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return nil, fmt.Errorf("invalid secret name %q", name)
	}
	path := filepath.Join(p.dir, name)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, &NotFoundError{Name: name, Source: "mount"}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read secret %s: %w", name, err)
	}
	value := strings.TrimRight(string(data), "\r\n")
	if value == "" {
		return nil, &NotFoundError{Name: name, Source: "mount"}
	}
	return &Secret{
		Name:     name,
		Value:    []byte(value),
		Metadata: map[string]string{"source": "mount", "path": path},
	}, nil
}
