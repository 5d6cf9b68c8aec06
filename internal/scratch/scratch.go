package scratch

import (
	"os"
	"path/filepath"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/sawpanic/noticerun/internal/fault"
)

// Store is a per-run scratch directory. Files are written atomically so an
// interrupted run never leaves a half-written part behind.
type Store struct {
	dir string
}

// New creates a fresh run directory under root.
func New(root string) (*Store, error) {
	dir := filepath.Join(root, "run-"+uuid.NewString())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fault.New(fault.EncryptionOrIO, "create scratch dir", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the run directory.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the absolute path of name inside the store.
func (s *Store) Path(name string) string {
	return filepath.Join(s.dir, sanitize(name))
}

// WriteFile writes data atomically using temp file + rename.
func (s *Store) WriteFile(name string, data []byte) (string, error) {
	path := s.Path(name)
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		os.Remove(tmpPath)
		return "", fault.New(fault.EncryptionOrIO, "write "+name, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return "", fault.New(fault.EncryptionOrIO, "write "+name, err)
	}
	return path, nil
}

// WriteJSON writes v as indented JSON.
func (s *Store) WriteJSON(name string, v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fault.New(fault.EncryptionOrIO, "encode "+name, err)
	}
	return s.WriteFile(name, data)
}

// ReadFile reads name back.
func (s *Store) ReadFile(name string) ([]byte, error) {
	data, err := os.ReadFile(s.Path(name))
	if err != nil {
		return nil, fault.New(fault.EncryptionOrIO, "read "+name, err)
	}
	return data, nil
}

// Remove deletes name. Missing files are not an error.
func (s *Store) Remove(name string) error {
	if err := os.Remove(s.Path(name)); err != nil && !os.IsNotExist(err) {
		return fault.New(fault.EncryptionOrIO, "remove "+name, err)
	}
	return nil
}

// Close removes the run directory and everything in it.
func (s *Store) Close() error {
	if err := os.RemoveAll(s.dir); err != nil {
		return fault.New(fault.EncryptionOrIO, "remove scratch dir", err)
	}
	return nil
}

// sanitize keeps a file name inside the store.
func sanitize(name string) string {
	name = filepath.Base(name)
	return strings.ReplaceAll(name, string(os.PathSeparator), "_")
}
