package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// FileMedium stores each collection as <dir>/<name>.json.
type FileMedium struct {
	dir string
}

// NewFileMedium creates a FileMedium rooted at dir. The directory is created
// on first write.
func NewFileMedium(dir string) *FileMedium {
	return &FileMedium{dir: dir}
}

// Path returns the file backing the named collection.
func (m *FileMedium) Path(name string) string {
	return filepath.Join(m.dir, name+".json")
}

// Load reads the collection file.
func (m *FileMedium) Load(_ context.Context, name string) ([]byte, error) {
	return os.ReadFile(m.Path(name))
}

// Save writes the collection file atomically.
func (m *FileMedium) Save(_ context.Context, name string, data []byte) error {
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	// Write to a temp file in the same directory, then rename over the target.
	tmp, err := os.CreateTemp(m.dir, name+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpPath, m.Path(name)); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// Identity returns the absolute path of the collection file.
func (m *FileMedium) Identity(name string) string {
	p := m.Path(name)
	if abs, err := filepath.Abs(p); err == nil {
		return "file:" + abs
	}
	return "file:" + p
}

// Close is a no-op.
func (m *FileMedium) Close() error { return nil }
