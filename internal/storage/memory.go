package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// MemoryStore keeps objects in process memory. Objects are lost on exit.
type MemoryStore struct {
	lock    sync.RWMutex
	objects map[string][]byte
	// publicBaseURL prefixes access URLs; objects are served by /files/*.
	publicBaseURL string
}

func NewMemoryStore(publicBaseURL string) *MemoryStore {
	return &MemoryStore{
		objects:       make(map[string][]byte),
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
	}
}

// Objects returns a copy of the stored keys and bytes.
func (s *MemoryStore) Objects() map[string][]byte {
	s.lock.RLock()
	defer s.lock.RUnlock()

	out := make(map[string][]byte, len(s.objects))
	for k, v := range s.objects {
		out[k] = v
	}
	return out
}

func (s *MemoryStore) Put(ctx context.Context, key string, contentType string, data []byte) (int64, error) {
	return s.PutStream(ctx, key, contentType, bytes.NewReader(data), int64(len(data)))
}

func (s *MemoryStore) PutStream(_ context.Context, key string, _ string, reader io.Reader, size int64) (int64, error) {
	if key == "" {
		return 0, fmt.Errorf("invalid storage key")
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return 0, fmt.Errorf("read object: %w", err)
	}
	if size >= 0 && int64(len(data)) != size {
		return 0, fmt.Errorf("write object: size mismatch expected=%d actual=%d", size, len(data))
	}

	s.lock.Lock()
	defer s.lock.Unlock()
	s.objects[key] = data
	return int64(len(data)), nil
}

func (s *MemoryStore) Open(_ context.Context, key string) (io.ReadCloser, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	b, ok := s.objects[key]
	if !ok {
		return nil, ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (s *MemoryStore) OpenRange(_ context.Context, key string, start int64, end int64) (io.ReadCloser, error) {
	if start < 0 {
		return nil, fmt.Errorf("invalid range start")
	}
	if end >= 0 && end < start {
		return nil, fmt.Errorf("invalid range end")
	}

	s.lock.RLock()
	defer s.lock.RUnlock()

	b, ok := s.objects[key]
	if !ok {
		return nil, ErrNotFound
	}
	size := int64(len(b))
	if start > size {
		start = size
	}
	if end < 0 || end >= size {
		end = size - 1
	}
	if end < start {
		return io.NopCloser(bytes.NewReader(nil)), nil
	}
	return io.NopCloser(bytes.NewReader(b[start : end+1])), nil
}

func (s *MemoryStore) Stat(_ context.Context, key string) (int64, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	b, ok := s.objects[key]
	if !ok {
		return 0, ErrNotFound
	}
	return int64(len(b)), nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	delete(s.objects, key)
	return nil
}

func (s *MemoryStore) URL(ctx context.Context, key string) (string, error) {
	if _, err := s.Stat(ctx, key); err != nil {
		return "", err
	}
	if s.publicBaseURL == "" {
		return "", fmt.Errorf("memory store has no public base url")
	}
	return s.publicBaseURL + "/" + escapeKey(key), nil
}

func (s *MemoryStore) Ping(_ context.Context) error {
	return nil
}
