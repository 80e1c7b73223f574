package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/shinyes/vidstore/internal/config"
	"github.com/shinyes/vidstore/internal/store"
)

const (
	settingKeyStorageBackend  = "storage_backend"
	settingKeyStorageS3Bucket = "storage_s3_bucket"
)

var ErrBackendMismatch = errors.New("configured storage backend differs from catalog")

type StorageSettings struct {
	Backend  config.StorageBackend
	S3Bucket string
}

func (s StorageSettings) String() string {
	if s.Backend == config.StorageBackendS3 {
		return string(s.Backend) + ":" + s.S3Bucket
	}
	return string(s.Backend)
}

// StorageSettingsService remembers which blob backend the catalog entries
// were written to.
type StorageSettingsService struct {
	store *store.SQLStore
}

func NewStorageSettingsService(s *store.SQLStore) *StorageSettingsService {
	return &StorageSettingsService{store: s}
}

// Reconcile records the configured backend. Switching to a different backend
// is refused while the catalog still holds entries.
func (s *StorageSettingsService) Reconcile(ctx context.Context, cfg config.Config) (StorageSettings, error) {
	want := StorageSettings{Backend: cfg.Storage}
	if cfg.Storage == config.StorageBackendS3 {
		want.S3Bucket = strings.TrimSpace(cfg.S3.Bucket)
	}

	recorded, err := s.Resolve(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return StorageSettings{}, err
	}
	if err == nil && recorded != want {
		_, count, err := s.store.SumEntrySizes(ctx)
		if err != nil {
			return StorageSettings{}, err
		}
		if count > 0 {
			return StorageSettings{}, fmt.Errorf("%w: catalog holds %d entries on %s, configured %s", ErrBackendMismatch, count, recorded, want)
		}
	}

	if err := s.store.UpsertSetting(ctx, settingKeyStorageBackend, string(want.Backend)); err != nil {
		return StorageSettings{}, err
	}
	if want.S3Bucket == "" {
		if err := s.store.DeleteSetting(ctx, settingKeyStorageS3Bucket); err != nil {
			return StorageSettings{}, err
		}
		return want, nil
	}
	if err := s.store.UpsertSetting(ctx, settingKeyStorageS3Bucket, want.S3Bucket); err != nil {
		return StorageSettings{}, err
	}
	return want, nil
}

// Resolve returns the recorded backend, or sql.ErrNoRows if none was recorded.
func (s *StorageSettingsService) Resolve(ctx context.Context) (StorageSettings, error) {
	raw, err := s.store.GetSetting(ctx, settingKeyStorageBackend)
	if err != nil {
		return StorageSettings{}, err
	}
	backend := config.StorageBackend(strings.ToLower(strings.TrimSpace(raw)))
	switch backend {
	case config.StorageBackendLocal, config.StorageBackendS3, config.StorageBackendMemory:
	default:
		return StorageSettings{}, fmt.Errorf("unsupported storage backend %q in setting %s", raw, settingKeyStorageBackend)
	}

	bucket, err := s.store.GetSetting(ctx, settingKeyStorageS3Bucket)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return StorageSettings{}, err
	}
	return StorageSettings{Backend: backend, S3Bucket: strings.TrimSpace(bucket)}, nil
}
