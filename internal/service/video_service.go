package service

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/shinyes/vidstore/internal/models"
)

const (
	DefaultVideoQuota int64 = 1024 * 1024 * 1024
	VideoPathPrefix         = "videos/"
	VideoContentType        = "video/mp4"
)

// PersistentStore is the part of FileStore that VideoService needs.
type PersistentStore interface {
	Initialize(ctx context.Context, quotaBytes int64) error
	WriteBytes(ctx context.Context, p string, sourceURL string, opts WriteOptions) (models.FileEntry, error)
	ReadURL(ctx context.Context, p string) (string, error)
}

// VideoService stores videos under videos/ with a fixed content type. It owns
// its store and starts initializing it on construction.
type VideoService struct {
	store   PersistentStore
	ready   chan struct{}
	initErr error
}

func NewVideoService(ctx context.Context, s PersistentStore, quotaBytes int64) *VideoService {
	if quotaBytes <= 0 {
		quotaBytes = DefaultVideoQuota
	}
	svc := &VideoService{
		store: s,
		ready: make(chan struct{}),
	}
	go func() {
		defer close(svc.ready)
		if err := s.Initialize(ctx, quotaBytes); err != nil {
			svc.initErr = err
			log.Printf("video storage initialization failed: %v", err)
		}
	}()
	return svc
}

// Ready waits for initialization. If it failed, the returned error matches
// ErrNotInitialized and the initialization cause.
func (s *VideoService) Ready(ctx context.Context) error {
	select {
	case <-s.ready:
	case <-ctx.Done():
		return ctx.Err()
	}
	if s.initErr != nil {
		return fmt.Errorf("%w: %w", ErrNotInitialized, s.initErr)
	}
	return nil
}

func (s *VideoService) SaveVideo(ctx context.Context, videoURL string, filename string) (models.FileEntry, error) {
	p, err := VideoPath(filename)
	if err != nil {
		return models.FileEntry{}, err
	}
	if err := s.Ready(ctx); err != nil {
		return models.FileEntry{}, err
	}
	return s.store.WriteBytes(ctx, p, videoURL, WriteOptions{
		Create:      true,
		ContentType: VideoContentType,
	})
}

func (s *VideoService) GetVideoURL(ctx context.Context, filename string) (string, error) {
	p, err := VideoPath(filename)
	if err != nil {
		return "", err
	}
	if err := s.Ready(ctx); err != nil {
		return "", err
	}
	return s.store.ReadURL(ctx, p)
}

// DownloadVideo saves the video and returns its access URL.
func (s *VideoService) DownloadVideo(ctx context.Context, videoURL string, filename string) (string, error) {
	if _, err := s.SaveVideo(ctx, videoURL, filename); err != nil {
		return "", err
	}
	return s.GetVideoURL(ctx, filename)
}

// VideoPath maps a filename to its path in the store. The filename must be a
// single path element.
func VideoPath(filename string) (string, error) {
	name := strings.TrimSpace(filename)
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidFilename, filename)
	}
	return VideoPathPrefix + name, nil
}
