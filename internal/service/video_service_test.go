package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/shinyes/vidstore/internal/models"
)

// fakeStore implements PersistentStore in memory with preset sources.
type fakeStore struct {
	mu          sync.Mutex
	initErr     error
	initQuota   int64
	initialized bool
	sources     map[string][]byte
	files       map[string][]byte
	writes      []WriteOptions
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		sources: map[string][]byte{},
		files:   map[string][]byte{},
	}
}

func (f *fakeStore) Initialize(_ context.Context, quotaBytes int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.initQuota = quotaBytes
	if f.initErr != nil {
		return f.initErr
	}
	f.initialized = true
	return nil
}

func (f *fakeStore) WriteBytes(_ context.Context, p string, sourceURL string, opts WriteOptions) (models.FileEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.initialized {
		return models.FileEntry{}, ErrNotInitialized
	}
	if _, ok := f.files[p]; !ok && !opts.Create {
		return models.FileEntry{}, ErrNotFound
	}
	body, ok := f.sources[sourceURL]
	if !ok {
		return models.FileEntry{}, &DownloadFailedError{Status: http.StatusNotFound, URL: sourceURL}
	}
	f.files[p] = body
	f.writes = append(f.writes, opts)
	return models.FileEntry{Path: p, Size: int64(len(body)), ContentType: opts.ContentType, SourceURL: sourceURL}, nil
}

func (f *fakeStore) ReadURL(_ context.Context, p string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.initialized {
		return "", ErrNotInitialized
	}
	if _, ok := f.files[p]; !ok {
		return "", ErrNotFound
	}
	return "fake://" + p, nil
}

func (f *fakeStore) read(u string) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.files[u[len("fake://"):]]
}

func readyService(t *testing.T, s PersistentStore) *VideoService {
	t.Helper()
	svc := NewVideoService(context.Background(), s, 0)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := svc.Ready(ctx); err != nil {
		t.Fatalf("Ready() error = %v", err)
	}
	return svc
}

func TestVideoServiceInitializesWithDefaultQuota(t *testing.T) {
	fake := newFakeStore()
	readyService(t, fake)
	if fake.initQuota != DefaultVideoQuota {
		t.Fatalf("expected quota %d, got %d", DefaultVideoQuota, fake.initQuota)
	}
}

func TestVideoServiceSaveAndGetURL(t *testing.T) {
	fake := newFakeStore()
	fake.sources["https://cdn.example/a.mp4"] = []byte("video-a")
	svc := readyService(t, fake)
	ctx := context.Background()

	entry, err := svc.SaveVideo(ctx, "https://cdn.example/a.mp4", "a.mp4")
	if err != nil {
		t.Fatalf("SaveVideo() error = %v", err)
	}
	if entry.Path != "videos/a.mp4" {
		t.Fatalf("unexpected path %q", entry.Path)
	}
	if len(fake.writes) != 1 || !fake.writes[0].Create || fake.writes[0].ContentType != VideoContentType {
		t.Fatalf("unexpected write options: %+v", fake.writes)
	}

	u, err := svc.GetVideoURL(ctx, "a.mp4")
	if err != nil {
		t.Fatalf("GetVideoURL() error = %v", err)
	}
	if string(fake.read(u)) != "video-a" {
		t.Fatalf("unexpected content behind %s", u)
	}
}

func TestVideoServiceGetURLNeverSaved(t *testing.T) {
	svc := readyService(t, newFakeStore())
	if _, err := svc.GetVideoURL(context.Background(), "missing.mp4"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestVideoServiceLastWriteWins(t *testing.T) {
	fake := newFakeStore()
	fake.sources["https://cdn.example/v1.mp4"] = []byte("one")
	fake.sources["https://cdn.example/v2.mp4"] = []byte("two")
	svc := readyService(t, fake)
	ctx := context.Background()

	if _, err := svc.SaveVideo(ctx, "https://cdn.example/v1.mp4", "a.mp4"); err != nil {
		t.Fatalf("SaveVideo(v1) error = %v", err)
	}
	if _, err := svc.SaveVideo(ctx, "https://cdn.example/v2.mp4", "a.mp4"); err != nil {
		t.Fatalf("SaveVideo(v2) error = %v", err)
	}
	u, err := svc.GetVideoURL(ctx, "a.mp4")
	if err != nil {
		t.Fatalf("GetVideoURL() error = %v", err)
	}
	if string(fake.read(u)) != "two" {
		t.Fatalf("expected second save to win, got %q", string(fake.read(u)))
	}
}

func TestVideoServiceSurfacesInitFailure(t *testing.T) {
	fake := newFakeStore()
	fake.initErr = &StorageUnavailableError{Cause: errors.New("quota denied")}
	svc := NewVideoService(context.Background(), fake, 0)
	ctx := context.Background()

	_, err := svc.SaveVideo(ctx, "https://cdn.example/a.mp4", "a.mp4")
	if !errors.Is(err, ErrNotInitialized) || !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("expected NotInitialized caused by StorageUnavailable, got %v", err)
	}
	if _, err := svc.GetVideoURL(ctx, "a.mp4"); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
	if err := svc.Ready(ctx); !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("expected Ready() to report the cause, got %v", err)
	}
}

func TestVideoServiceRejectsInvalidFilenames(t *testing.T) {
	svc := readyService(t, newFakeStore())
	ctx := context.Background()
	for _, name := range []string{"", " ", ".", "..", "a/b.mp4", `a\b.mp4`, "../a.mp4"} {
		if _, err := svc.SaveVideo(ctx, "https://cdn.example/a.mp4", name); !errors.Is(err, ErrInvalidFilename) {
			t.Fatalf("SaveVideo(%q) expected ErrInvalidFilename, got %v", name, err)
		}
		if _, err := svc.GetVideoURL(ctx, name); !errors.Is(err, ErrInvalidFilename) {
			t.Fatalf("GetVideoURL(%q) expected ErrInvalidFilename, got %v", name, err)
		}
	}
}

func TestVideoServiceDownloadFailure(t *testing.T) {
	svc := readyService(t, newFakeStore())
	_, err := svc.DownloadVideo(context.Background(), "https://cdn.example/missing.mp4", "a.mp4")
	var downloadErr *DownloadFailedError
	if !errors.As(err, &downloadErr) || downloadErr.Status != http.StatusNotFound {
		t.Fatalf("expected DownloadFailedError{404}, got %v", err)
	}
}

func TestVideoServiceReadyHonoursContext(t *testing.T) {
	blocked := &blockingStore{release: make(chan struct{})}
	svc := NewVideoService(context.Background(), blocked, 0)
	defer close(blocked.release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := svc.Ready(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

type blockingStore struct {
	fakeStore
	release chan struct{}
}

func (b *blockingStore) Initialize(context.Context, int64) error {
	<-b.release
	return nil
}

func TestVideoServiceConcreteScenario(t *testing.T) {
	ts := setupTestServices(t, FileStoreOptions{})
	src := newSourceServer(t)
	content := patterned(10 * 1024 * 1024)
	videoURL := src.set("/a.mp4", content)

	svc := NewVideoService(context.Background(), ts.fileStore, DefaultVideoQuota)
	ctx := context.Background()

	entry, err := svc.SaveVideo(ctx, videoURL, "a.mp4")
	if err != nil {
		t.Fatalf("SaveVideo() error = %v", err)
	}
	if entry.Path != "videos/a.mp4" || entry.ContentType != VideoContentType {
		t.Fatalf("unexpected entry: %+v", entry)
	}
	if got := ts.fileStore.Grant().QuotaBytes; got != 1073741824 {
		t.Fatalf("expected 1 GiB grant, got %d", got)
	}

	u, err := svc.GetVideoURL(ctx, "a.mp4")
	if err != nil {
		t.Fatalf("GetVideoURL() error = %v", err)
	}
	if u == "" {
		t.Fatalf("expected non-empty url")
	}
	if !bytes.Equal(fetchAccessURL(t, u), content) {
		t.Fatalf("bytes behind video url differ from source")
	}

	rc, _, err := ts.fileStore.Open(ctx, "videos/a.mp4")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer rc.Close()
	got, _ := io.ReadAll(rc)
	if !bytes.Equal(got, content) {
		t.Fatalf("stored bytes differ from source")
	}

	_, err = svc.SaveVideo(ctx, src.URL+"/missing.mp4", "b.mp4")
	if !errors.Is(err, ErrDownloadFailed) {
		t.Fatalf("expected ErrDownloadFailed, got %v", err)
	}
	if _, err := svc.GetVideoURL(ctx, "b.mp4"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected no entry for failed download, got %v", err)
	}
}
