package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shinyes/vidstore/internal/fetch"
	"github.com/shinyes/vidstore/internal/models"
	"github.com/shinyes/vidstore/internal/storage"
	"github.com/shinyes/vidstore/internal/store"
)

const defaultContentType = "application/octet-stream"

type Fetcher interface {
	Get(ctx context.Context, rawURL string) (*fetch.Response, error)
}

type FileStoreOptions struct {
	// HostQuotaLimit is the largest quota Initialize will grant. Zero means no limit.
	HostQuotaLimit int64
}

type WriteOptions struct {
	// Create allows writing to a path that has no entry yet.
	Create bool
	// ContentType overrides the type reported by the source.
	ContentType string
}

// FileStore is a quota-bounded persistent file area backed by a blob store
// and a SQL catalog. It must be initialized once before any other call.
type FileStore struct {
	store   *store.SQLStore
	blobs   storage.Store
	fetcher Fetcher
	opts    FileStoreOptions

	mu          sync.RWMutex
	initialized bool
	grant       models.StorageGrant
}

func NewFileStore(s *store.SQLStore, blobs storage.Store, fetcher Fetcher, opts FileStoreOptions) *FileStore {
	return &FileStore{
		store:   s,
		blobs:   blobs,
		fetcher: fetcher,
		opts:    opts,
	}
}

func (f *FileStore) Initialize(ctx context.Context, quotaBytes int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.initialized {
		return nil
	}
	if quotaBytes <= 0 {
		return &StorageUnavailableError{Cause: fmt.Errorf("quota must be positive, got %d", quotaBytes)}
	}
	if f.opts.HostQuotaLimit > 0 && quotaBytes > f.opts.HostQuotaLimit {
		return &StorageUnavailableError{Cause: fmt.Errorf("requested quota %d exceeds host limit %d", quotaBytes, f.opts.HostQuotaLimit)}
	}
	if err := f.blobs.Ping(ctx); err != nil {
		return &StorageUnavailableError{Cause: err}
	}

	grant := models.StorageGrant{QuotaBytes: quotaBytes, GrantedAt: time.Now().UTC()}
	if err := f.store.RecordGrant(ctx, grant); err != nil {
		return &StorageUnavailableError{Cause: fmt.Errorf("record grant: %w", err)}
	}
	f.grant = grant
	f.initialized = true
	log.Printf("storage granted quota=%d backend=%s", quotaBytes, f.Backend())
	return nil
}

func (f *FileStore) Initialized() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.initialized
}

// Grant returns the quota in force. It is zero before Initialize succeeds.
func (f *FileStore) Grant() models.StorageGrant {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.grant
}

func (f *FileStore) Backend() string {
	return strings.ToLower(storage.TypeName(f.blobs))
}

// WriteBytes downloads sourceURL and stores the body at p, replacing any
// previous content. A failed download or write leaves the previous entry as it was.
func (f *FileStore) WriteBytes(ctx context.Context, p string, sourceURL string, opts WriteOptions) (models.FileEntry, error) {
	quota, err := f.requireInitialized()
	if err != nil {
		return models.FileEntry{}, err
	}
	key, err := NormalizePath(p)
	if err != nil {
		return models.FileEntry{}, err
	}

	var existingSize int64
	existing, err := f.store.GetEntryByPath(ctx, key)
	switch {
	case err == nil:
		existingSize = existing.Size
	case errors.Is(err, sql.ErrNoRows):
		if !opts.Create {
			return models.FileEntry{}, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
	default:
		return models.FileEntry{}, fmt.Errorf("lookup entry %s: %w", key, err)
	}

	resp, err := f.fetcher.Get(ctx, sourceURL)
	if err != nil {
		return models.FileEntry{}, downloadError(sourceURL, err)
	}
	defer resp.Body.Close()

	used, _, err := f.store.SumEntrySizes(ctx)
	if err != nil {
		return models.FileEntry{}, &WriteFailedError{Cause: fmt.Errorf("read usage: %w", err)}
	}
	remaining := quota - used + existingSize
	if remaining < 0 {
		remaining = 0
	}
	if resp.ContentLength > remaining {
		return models.FileEntry{}, &WriteFailedError{
			Cause: fmt.Errorf("%w: need %d bytes, %d remaining", ErrQuotaExceeded, resp.ContentLength, remaining),
		}
	}

	contentType := strings.TrimSpace(opts.ContentType)
	if contentType == "" {
		contentType = strings.TrimSpace(resp.ContentType)
	}
	if contentType == "" {
		contentType = defaultContentType
	}

	body := &quotaReader{r: resp.Body, remaining: remaining}
	written, err := f.blobs.PutStream(ctx, key, contentType, body, resp.ContentLength)
	if err != nil {
		if body.exceeded {
			err = fmt.Errorf("%w: %d bytes remaining", ErrQuotaExceeded, remaining)
		}
		return models.FileEntry{}, &WriteFailedError{Cause: err}
	}

	entry, err := f.store.UpsertEntry(ctx, store.UpsertEntryInput{
		ID:          uuid.NewString(),
		Path:        key,
		Size:        written,
		ContentType: contentType,
		SourceURL:   sourceURL,
		StorageType: storage.TypeName(f.blobs),
		StorageKey:  key,
	})
	if err != nil {
		return models.FileEntry{}, &WriteFailedError{Cause: fmt.Errorf("record entry: %w", err)}
	}
	log.Printf("stored path=%s size=%d backend=%s", key, written, f.Backend())
	return entry, nil
}

// ReadURL returns a URL that reads the entry's bytes directly from the backend.
func (f *FileStore) ReadURL(ctx context.Context, p string) (string, error) {
	entry, err := f.Stat(ctx, p)
	if err != nil {
		return "", err
	}
	u, err := f.blobs.URL(ctx, entry.StorageKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", fmt.Errorf("%w: blob missing for %s", ErrNotFound, entry.Path)
		}
		return "", fmt.Errorf("resolve url for %s: %w", entry.Path, err)
	}
	return u, nil
}

func (f *FileStore) Stat(ctx context.Context, p string) (models.FileEntry, error) {
	if _, err := f.requireInitialized(); err != nil {
		return models.FileEntry{}, err
	}
	key, err := NormalizePath(p)
	if err != nil {
		return models.FileEntry{}, err
	}
	entry, err := f.store.GetEntryByPath(ctx, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.FileEntry{}, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return models.FileEntry{}, err
	}
	return entry, nil
}

func (f *FileStore) Open(ctx context.Context, p string) (io.ReadCloser, models.FileEntry, error) {
	entry, err := f.Stat(ctx, p)
	if err != nil {
		return nil, models.FileEntry{}, err
	}
	rc, err := f.blobs.Open(ctx, entry.StorageKey)
	if err != nil {
		return nil, models.FileEntry{}, mapBlobError(entry.Path, err)
	}
	return rc, entry, nil
}

// OpenRange opens bytes [start, end] of the entry. A negative end reads to EOF.
func (f *FileStore) OpenRange(ctx context.Context, p string, start int64, end int64) (io.ReadCloser, models.FileEntry, error) {
	entry, err := f.Stat(ctx, p)
	if err != nil {
		return nil, models.FileEntry{}, err
	}
	rc, err := f.blobs.OpenRange(ctx, entry.StorageKey, start, end)
	if err != nil {
		return nil, models.FileEntry{}, mapBlobError(entry.Path, err)
	}
	return rc, entry, nil
}

func (f *FileStore) Delete(ctx context.Context, p string) error {
	entry, err := f.Stat(ctx, p)
	if err != nil {
		return err
	}
	// Catalog row first: a failed blob delete leaves an orphan object, never
	// an entry without bytes.
	if err := f.store.DeleteEntryByPath(ctx, entry.Path); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", ErrNotFound, entry.Path)
		}
		return err
	}
	if err := f.blobs.Delete(ctx, entry.StorageKey); err != nil {
		log.Printf("orphaned blob key=%s backend=%s: %v", entry.StorageKey, f.Backend(), err)
	}
	log.Printf("deleted path=%s backend=%s", entry.Path, f.Backend())
	return nil
}

// List returns entries under prefix that match filter. A nil filter matches all.
func (f *FileStore) List(ctx context.Context, prefix string, filter *CELEntryFilter) ([]models.FileEntry, error) {
	if _, err := f.requireInitialized(); err != nil {
		return nil, err
	}
	prefix = strings.TrimSpace(prefix)
	if strings.HasPrefix(prefix, "/") || strings.Contains(prefix, "..") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPath, prefix)
	}

	entries, err := f.store.ListEntries(ctx, prefix, filter.SQLPrefilter())
	if err != nil {
		return nil, err
	}
	if filter == nil {
		return entries, nil
	}
	out := make([]models.FileEntry, 0, len(entries))
	for _, entry := range entries {
		ok, err := filter.Matches(entry)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (f *FileStore) Usage(ctx context.Context) (models.StorageUsage, error) {
	quota, err := f.requireInitialized()
	if err != nil {
		return models.StorageUsage{}, err
	}
	used, count, err := f.store.SumEntrySizes(ctx)
	if err != nil {
		return models.StorageUsage{}, err
	}
	return models.StorageUsage{
		QuotaBytes: quota,
		UsedBytes:  used,
		Entries:    count,
	}, nil
}

func (f *FileStore) requireInitialized() (int64, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if !f.initialized {
		return 0, ErrNotInitialized
	}
	return f.grant.QuotaBytes, nil
}

// NormalizePath cleans a relative slash-separated path. It rejects empty,
// absolute and parent-escaping paths.
func NormalizePath(p string) (string, error) {
	raw := strings.TrimSpace(p)
	if raw == "" || strings.HasPrefix(raw, "/") || strings.Contains(raw, `\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	cleaned := path.Clean(raw)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	return cleaned, nil
}

func downloadError(sourceURL string, err error) error {
	if errors.Is(err, fetch.ErrInvalidURL) {
		return fmt.Errorf("%w: %v", ErrInvalidSourceURL, err)
	}
	var statusErr *fetch.StatusError
	if errors.As(err, &statusErr) {
		return &DownloadFailedError{Status: statusErr.StatusCode, URL: sourceURL, Cause: err}
	}
	return &DownloadFailedError{URL: sourceURL, Cause: err}
}

func mapBlobError(p string, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%w: blob missing for %s", ErrNotFound, p)
	}
	return err
}

// quotaReader fails once the source yields more than remaining bytes.
type quotaReader struct {
	r         io.Reader
	remaining int64
	exceeded  bool
}

func (q *quotaReader) Read(p []byte) (int, error) {
	if q.remaining <= 0 {
		var probe [1]byte
		n, err := q.r.Read(probe[:])
		if n > 0 {
			q.exceeded = true
			return 0, ErrQuotaExceeded
		}
		return 0, err
	}
	if int64(len(p)) > q.remaining {
		p = p[:q.remaining]
	}
	n, err := q.r.Read(p)
	q.remaining -= int64(n)
	return n, err
}
