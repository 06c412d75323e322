package cache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
)

var validKey = regexp.MustCompile(`^[0-9a-f]{64}$`)

// FSStore keeps one file per entry in a two-level directory structure using
// the first two characters of the fingerprint as a prefix directory. Keys
// must be fingerprints.
type FSStore struct {
	root string
}

// NewFSStore creates a filesystem-backed store rooted at root.
func NewFSStore(root string) (*FSStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("create cache root: %w", err)
	}
	return &FSStore{root: root}, nil
}

func (s *FSStore) entryPath(key string) string {
	return filepath.Join(s.root, key[:2], key[2:])
}

func (s *FSStore) Has(_ context.Context, key string) (bool, error) {
	if !validKey.MatchString(key) {
		return false, nil
	}
	_, err := os.Stat(s.entryPath(key))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat entry %s: %w", key, err)
	}
	return true, nil
}

func (s *FSStore) Get(_ context.Context, key string) ([]byte, error) {
	if !validKey.MatchString(key) {
		return nil, ErrNotFound
	}
	data, err := os.ReadFile(s.entryPath(key))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read entry %s: %w", key, err)
	}
	return data, nil
}

// Put writes to a temp file and links it into place, so readers never see a
// partial entry and a concurrent writer of the same key loses with ErrExists.
func (s *FSStore) Put(_ context.Context, key string, data []byte) error {
	if !validKey.MatchString(key) {
		return fmt.Errorf("invalid cache key: %q", key)
	}
	path := s.entryPath(key)
	if _, err := os.Stat(path); err == nil {
		return ErrExists
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create entry dir: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, ".entry-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer os.Remove(tmpPath)

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("write entry data: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Link(tmpPath, path); err != nil {
		if os.IsExist(err) {
			return ErrExists
		}
		return fmt.Errorf("commit entry: %w", err)
	}
	return nil
}

func (s *FSStore) Delete(_ context.Context, key string) error {
	if !validKey.MatchString(key) {
		return nil
	}
	if err := os.Remove(s.entryPath(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete entry %s: %w", key, err)
	}
	return nil
}

// Close is a no-op.
func (s *FSStore) Close() error { return nil }
