// Package blob stores LUT files and thumbnails by slash-separated path.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sync"
)

// Sentinel kinds for blob errors.
var (
	ErrNotFound    = errors.New("blob not found")
	ErrInvalidPath = errors.New("invalid blob path")
)

// Store maps paths to bytes.
type Store interface {
	Get(ctx context.Context, p string) ([]byte, error)
	Put(ctx context.Context, p string, data []byte) error
	Exists(ctx context.Context, p string) (bool, error)
	Delete(ctx context.Context, p string) error
}

// clean validates p as a relative slash path that stays inside the root.
func clean(p string) (string, error) {
	c := path.Clean(p)
	if p == "" || !fs.ValidPath(c) || c == "." {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	return c, nil
}

// FS keeps blobs as files under a root directory.
type FS struct {
	root string
}

var _ Store = (*FS)(nil)

// NewFS creates root if needed.
func NewFS(root string) (*FS, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create blob root: %w", err)
	}
	return &FS{root: root}, nil
}

func (s *FS) file(p string) (string, error) {
	c, err := clean(p)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, filepath.FromSlash(c)), nil
}

// Get implements Store.
func (s *FS) Get(_ context.Context, p string) ([]byte, error) {
	f, err := s.file(p)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", p, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read blob %s: %w", p, err)
	}
	return data, nil
}

// Put implements Store. Writes go to a temp file renamed into place.
func (s *FS) Put(_ context.Context, p string, data []byte) error {
	f, err := s.file(p)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(f), 0o755); err != nil {
		return fmt.Errorf("create blob dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(f), ".blob-*")
	if err != nil {
		return fmt.Errorf("write blob %s: %w", p, err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write blob %s: %w", p, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write blob %s: %w", p, err)
	}
	if err := os.Rename(tmp.Name(), f); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write blob %s: %w", p, err)
	}
	return nil
}

// Exists implements Store.
func (s *FS) Exists(_ context.Context, p string) (bool, error) {
	f, err := s.file(p)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(f)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	}
	return false, fmt.Errorf("stat blob %s: %w", p, err)
}

// Delete implements Store. Deleting a missing blob is not an error.
func (s *FS) Delete(_ context.Context, p string) error {
	f, err := s.file(p)
	if err != nil {
		return err
	}
	if err := os.Remove(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete blob %s: %w", p, err)
	}
	return nil
}

// Memory keeps blobs in a map.
type Memory struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

var _ Store = (*Memory)(nil)

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{blobs: make(map[string][]byte)}
}

// Get implements Store.
func (m *Memory) Get(_ context.Context, p string) ([]byte, error) {
	c, err := clean(p)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.blobs[c]
	if !ok {
		return nil, fmt.Errorf("%s: %w", p, ErrNotFound)
	}
	return append([]byte(nil), data...), nil
}

// Put implements Store.
func (m *Memory) Put(_ context.Context, p string, data []byte) error {
	c, err := clean(p)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[c] = append([]byte(nil), data...)
	return nil
}

// Exists implements Store.
func (m *Memory) Exists(_ context.Context, p string) (bool, error) {
	c, err := clean(p)
	if err != nil {
		return false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.blobs[c]
	return ok, nil
}

// Delete implements Store.
func (m *Memory) Delete(_ context.Context, p string) error {
	c, err := clean(p)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, c)
	return nil
}
