package artifact

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// FSStore implements Store on a local directory. It backs development and
// test deployments; presigned URLs are not available.
type FSStore struct {
	root string
}

// NewFSStore creates a filesystem store rooted at dir.
func NewFSStore(dir string) (*FSStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store root: %w", err)
	}
	return &FSStore{root: dir}, nil
}

// path resolves key inside the store root. Keys that would escape the
// root ("../x", absolute paths) are rejected.
func (s *FSStore) path(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if !filepath.IsLocal(clean) {
		return "", fmt.Errorf("invalid key %q", key)
	}
	return filepath.Join(s.root, clean), nil
}

// Put stores data under key, creating parent directories as needed.
func (s *FSStore) Put(_ context.Context, key string, data []byte) error {
	abs, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return err
	}
	return os.WriteFile(abs, data, 0o644)
}

// Get reads the blob stored under key. A missing key returns ErrNotFound.
func (s *FSStore) Get(_ context.Context, key string) ([]byte, error) {
	abs, err := s.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, err
	}
	return data, nil
}

// SignUpload is not supported by the filesystem store.
func (s *FSStore) SignUpload(context.Context, string, string, time.Duration) (*SignedUpload, error) {
	return nil, ErrSigningUnsupported
}

// SignDownload is not supported by the filesystem store.
func (s *FSStore) SignDownload(context.Context, string, time.Duration) (string, error) {
	return "", ErrSigningUnsupported
}
