package storage

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotFound is returned when a blob does not exist. Delete callers that
// treat a missing blob as already-cleaned-up match on it explicitly.
var ErrNotFound = errors.New("storage: blob not found")

// LocalStorage persists blobs on disk under a base directory and serves them
// through a public base URL.
type LocalStorage struct {
	baseDir string
	baseURL string
}

// NewLocalStorage ensures the base directory exists and returns a handle.
func NewLocalStorage(baseDir, baseURL string) (*LocalStorage, error) {
	if baseDir == "" {
		baseDir = "./uploads"
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}
	return &LocalStorage{baseDir: baseDir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Put writes the given bytes to the relative path, replacing any existing
// blob, and returns the public URL of the stored file.
func (s *LocalStorage) Put(path string, data []byte) (string, error) {
	abs := s.resolve(path)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", fmt.Errorf("prepare storage directory: %w", err)
	}
	if err := os.WriteFile(abs, data, 0o644); err != nil {
		return "", fmt.Errorf("write blob: %w", err)
	}
	return s.URL(path), nil
}

// PutStream copies from reader into the target path and returns its URL.
func (s *LocalStorage) PutStream(path string, r io.Reader) (string, error) {
	abs := s.resolve(path)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", fmt.Errorf("prepare storage directory: %w", err)
	}
	file, err := os.Create(abs)
	if err != nil {
		return "", fmt.Errorf("create blob: %w", err)
	}
	defer file.Close() //nolint:errcheck
	if _, err := io.Copy(file, r); err != nil {
		return "", fmt.Errorf("write blob stream: %w", err)
	}
	return s.URL(path), nil
}

// Open returns a read-only handle for the stored blob.
func (s *LocalStorage) Open(path string) (*os.File, error) {
	file, err := os.Open(s.resolve(path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("open blob: %w", err)
	}
	return file, nil
}

// Delete removes a stored blob. Returns ErrNotFound when the blob is absent.
func (s *LocalStorage) Delete(path string) error {
	if err := os.Remove(s.resolve(path)); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("delete blob: %w", err)
	}
	return nil
}

// URL returns the public URL a stored path is served under.
func (s *LocalStorage) URL(path string) string {
	segments := strings.Split(filepath.ToSlash(path), "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return s.baseURL + "/" + strings.Join(segments, "/")
}

func (s *LocalStorage) resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(s.baseDir, filepath.FromSlash(path))
}
