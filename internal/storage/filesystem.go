package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FileStore persists blobs onto the local filesystem and serves them through
// the API's /static route. It is the default backend for development.
type FileStore struct {
	basePath string
	baseURL  string
}

// NewFileStore initializes a FileStore rooted at basePath whose objects are
// publicly reachable under baseURL.
func NewFileStore(basePath, baseURL string) (*FileStore, error) {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return nil, errors.New("storage: base path is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("storage: ensure base path: %w", err)
	}
	return &FileStore{basePath: basePath, baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/")}, nil
}

// BasePath returns the configured root directory.
func (s *FileStore) BasePath() string {
	if s == nil {
		return ""
	}
	return s.basePath
}

// Put writes data at key. An existing file is never replaced.
func (s *FileStore) Put(ctx context.Context, key string, data []byte, contentType string) (Object, error) {
	if s == nil {
		return Object{}, errors.New("storage: no store configured")
	}
	if err := ctx.Err(); err != nil {
		return Object{}, err
	}
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return Object{}, err
	}
	fullPath := filepath.Join(s.basePath, filepath.FromSlash(cleanKey))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return Object{}, unavailableError("storage: ensure directory", err)
	}
	f, err := os.OpenFile(fullPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return Object{}, conflictError(cleanKey, err)
		}
		return Object{}, unavailableError("storage: create file", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		_ = os.Remove(fullPath)
		return Object{}, unavailableError("storage: write file", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(fullPath)
		return Object{}, unavailableError("storage: close file", err)
	}
	return Object{Key: cleanKey, URL: s.URL(cleanKey)}, nil
}

// Delete removes the file stored at key.
func (s *FileStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(s.basePath, filepath.FromSlash(cleanKey))); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return notFoundError(cleanKey, err)
		}
		return unavailableError("storage: remove file", err)
	}
	return nil
}

// URL returns the public URL for key.
func (s *FileStore) URL(key string) string {
	return s.baseURL + "/" + strings.TrimLeft(key, "/")
}

// KeyFromURL reverses URL for objects this store owns.
func (s *FileStore) KeyFromURL(rawURL string) (string, bool) {
	prefix := s.baseURL + "/"
	if s.baseURL == "" || !strings.HasPrefix(rawURL, prefix) {
		return "", false
	}
	key, err := sanitizeKey(strings.SplitN(strings.TrimPrefix(rawURL, prefix), "?", 2)[0])
	if err != nil {
		return "", false
	}
	return key, true
}

// sanitizeKey normalizes a key and prevents escaping the storage root.
func sanitizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("storage: key is required")
	}
	key = strings.ReplaceAll(key, "\\", "/")
	key = strings.TrimPrefix(key, "./")
	key = strings.TrimLeft(key, "/")
	cleaned := filepath.Clean(key)
	cleaned = strings.ReplaceAll(cleaned, "\\", "/")
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", errors.New("storage: invalid key")
	}
	return cleaned, nil
}

var _ BlobStore = (*FileStore)(nil)
