package service

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/shinyes/vidstore/internal/db"
	"github.com/shinyes/vidstore/internal/fetch"
	"github.com/shinyes/vidstore/internal/storage"
	"github.com/shinyes/vidstore/internal/store"
)

type testServices struct {
	store     *store.SQLStore
	blobs     *storage.MemoryStore
	fileStore *FileStore
	// filesURL is where the test file server exposes blobs, like /files/*.
	filesURL string
}

func setupTestServices(t *testing.T, opts FileStoreOptions) testServices {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	sqliteDB, err := db.OpenSQLite(dbPath)
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	t.Cleanup(func() {
		_ = sqliteDB.Close()
	})
	if err := db.Migrate(sqliteDB); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	sqlStore := store.New(sqliteDB)

	var blobs *storage.MemoryStore
	files := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key, ok := strings.CutPrefix(r.URL.Path, "/files/")
		if !ok {
			http.NotFound(w, r)
			return
		}
		rc, err := blobs.Open(r.Context(), key)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		defer rc.Close()
		_, _ = io.Copy(w, rc)
	}))
	t.Cleanup(files.Close)

	filesURL := files.URL + "/files"
	blobs = storage.NewMemoryStore(filesURL)
	return testServices{
		store:     sqlStore,
		blobs:     blobs,
		fileStore: NewFileStore(sqlStore, blobs, fetch.New(0, "vidstore-test"), opts),
		filesURL:  filesURL,
	}
}

// fetchAccessURL reads an access URL the way a media player would.
func fetchAccessURL(t *testing.T, accessURL string) []byte {
	t.Helper()
	resp, err := http.Get(accessURL)
	if err != nil {
		t.Fatalf("GET %s error = %v", accessURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s status = %d", accessURL, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read %s error = %v", accessURL, err)
	}
	return body
}

func mustInitialize(t *testing.T, f *FileStore, quota int64) {
	t.Helper()
	if err := f.Initialize(context.Background(), quota); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
}

// sourceServer serves fixed bodies by path. Unknown paths answer 404.
type sourceServer struct {
	*httptest.Server
	mu     sync.Mutex
	bodies map[string][]byte
	hits   int
}

func newSourceServer(t *testing.T) *sourceServer {
	t.Helper()
	src := &sourceServer{bodies: map[string][]byte{}}
	src.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		src.mu.Lock()
		src.hits++
		body, ok := src.bodies[r.URL.Path]
		src.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(body)
	}))
	t.Cleanup(src.Close)
	return src
}

func (s *sourceServer) set(p string, body []byte) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bodies[p] = body
	return s.URL + p
}

func (s *sourceServer) hitCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits
}

func patterned(n int) []byte {
	return bytes.Repeat([]byte("0123456789abcdef"), n/16+1)[:n]
}
