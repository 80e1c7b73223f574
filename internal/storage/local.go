package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

const localTempDir = ".tmp"

type LocalStore struct {
	baseDir string
	// publicBaseURL prefixes access URLs; empty yields file:// URLs.
	publicBaseURL string
}

func NewLocalStore(baseDir string, publicBaseURL string) (*LocalStore, error) {
	absDir, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("resolve files dir: %w", err)
	}
	if err := os.MkdirAll(absDir, 0o755); err != nil {
		return nil, fmt.Errorf("create files dir: %w", err)
	}
	return &LocalStore{
		baseDir:       absDir,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
	}, nil
}

func (s *LocalStore) Put(ctx context.Context, key string, contentType string, data []byte) (int64, error) {
	return s.PutStream(ctx, key, contentType, bytes.NewReader(data), int64(len(data)))
}

func (s *LocalStore) PutStream(_ context.Context, key string, _ string, reader io.Reader, size int64) (int64, error) {
	path, err := s.pathFor(key)
	if err != nil {
		return 0, err
	}
	tempDir := filepath.Join(s.baseDir, localTempDir)
	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		return 0, fmt.Errorf("ensure temp dir: %w", err)
	}
	f, err := os.CreateTemp(tempDir, "put-*")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		_ = f.Close()
		_ = os.Remove(f.Name())
	}()

	written, err := io.Copy(f, reader)
	if err != nil {
		return 0, fmt.Errorf("write file: %w", err)
	}
	if size >= 0 && written != size {
		return 0, fmt.Errorf("write file: size mismatch expected=%d actual=%d", size, written)
	}
	if err := f.Sync(); err != nil {
		return 0, fmt.Errorf("sync file: %w", err)
	}
	if err := f.Close(); err != nil {
		return 0, fmt.Errorf("close file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, fmt.Errorf("create file parent: %w", err)
	}
	if err := os.Rename(f.Name(), path); err != nil {
		return 0, fmt.Errorf("rename file: %w", err)
	}
	return written, nil
}

func (s *LocalStore) Open(_ context.Context, key string) (io.ReadCloser, error) {
	path, err := s.pathFor(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, mapNotExist(err)
	}
	return f, nil
}

func (s *LocalStore) OpenRange(_ context.Context, key string, start int64, end int64) (io.ReadCloser, error) {
	if start < 0 {
		return nil, fmt.Errorf("invalid range start")
	}
	if end >= 0 && end < start {
		return nil, fmt.Errorf("invalid range end")
	}

	path, err := s.pathFor(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, mapNotExist(err)
	}
	if _, err := f.Seek(start, io.SeekStart); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("seek file: %w", err)
	}
	if end < 0 {
		return f, nil
	}

	length := end - start + 1
	return &readerWithCloser{
		Reader: io.LimitReader(f, length),
		Closer: f,
	}, nil
}

func (s *LocalStore) Stat(_ context.Context, key string) (int64, error) {
	path, err := s.pathFor(key)
	if err != nil {
		return 0, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return 0, mapNotExist(err)
	}
	if info.IsDir() {
		return 0, ErrNotFound
	}
	return info.Size(), nil
}

func (s *LocalStore) Delete(_ context.Context, key string) error {
	path, err := s.pathFor(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (s *LocalStore) URL(ctx context.Context, key string) (string, error) {
	path, err := s.pathFor(key)
	if err != nil {
		return "", err
	}
	if _, err := s.Stat(ctx, key); err != nil {
		return "", err
	}
	if s.publicBaseURL != "" {
		return s.publicBaseURL + "/" + escapeKey(key), nil
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(path)}
	return u.String(), nil
}

func (s *LocalStore) Ping(_ context.Context) error {
	if err := os.MkdirAll(filepath.Join(s.baseDir, localTempDir), 0o755); err != nil {
		return fmt.Errorf("create files dir: %w", err)
	}
	f, err := os.CreateTemp(filepath.Join(s.baseDir, localTempDir), "ping-*")
	if err != nil {
		return fmt.Errorf("files dir not writable: %w", err)
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(name)
}

func (s *LocalStore) pathFor(key string) (string, error) {
	cleanKey := filepath.ToSlash(filepath.Clean(strings.TrimSpace(key)))
	cleanKey = strings.TrimPrefix(cleanKey, "/")
	if cleanKey == "" || cleanKey == "." {
		return "", fmt.Errorf("invalid storage key")
	}
	if cleanKey == localTempDir || strings.HasPrefix(cleanKey, localTempDir+"/") {
		return "", fmt.Errorf("invalid storage key: reserved prefix")
	}
	path := filepath.Join(s.baseDir, filepath.FromSlash(cleanKey))
	rel, err := filepath.Rel(s.baseDir, path)
	if err != nil {
		return "", err
	}
	if strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("invalid storage key traversal")
	}
	return path, nil
}

func escapeKey(key string) string {
	parts := strings.Split(strings.TrimPrefix(key, "/"), "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}

func mapNotExist(err error) error {
	if errors.Is(err, os.ErrNotExist) {
		return ErrNotFound
	}
	return err
}
