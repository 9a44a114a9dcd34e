// Package local implements a local filesystem export store.
package local

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/stackql/stackql-deploy/pkg/exportstore"
)

func init() {
	exportstore.Register("local", NewStore)
}

// Store implements the export store interface for the local filesystem.
type Store struct {
	basePath string
}

// NewStore creates a filesystem store. An optional "path" entry in the
// configuration becomes the base directory for relative keys.
func NewStore(config map[string]string) (exportstore.Store, error) {
	return &Store{basePath: config["path"]}, nil
}

func (s *Store) Type() string {
	return "local"
}

func (s *Store) Read(ctx context.Context, key string) (io.ReadCloser, error) {
	fullPath := s.fullPath(key)

	file, err := os.Open(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, exportstore.ErrNotFound
		}
		return nil, fmt.Errorf("failed to read %s: %w", fullPath, err)
	}

	return file, nil
}

func (s *Store) Write(ctx context.Context, key string, data io.Reader) error {
	fullPath := s.fullPath(key)

	dir := filepath.Dir(fullPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	// Write to temp file first, then rename for atomicity
	tempFile, err := os.CreateTemp(dir, ".stackql-deploy-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tempPath := tempFile.Name()

	_, err = io.Copy(tempFile, data)
	if closeErr := tempFile.Close(); closeErr != nil && err == nil {
		err = closeErr
	}

	if err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to write %s: %w", fullPath, err)
	}

	if err := os.Rename(tempPath, fullPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to save %s: %w", fullPath, err)
	}

	return nil
}

func (s *Store) fullPath(key string) string {
	if s.basePath == "" || filepath.IsAbs(key) {
		return key
	}
	return filepath.Join(s.basePath, key)
}
