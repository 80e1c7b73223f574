package app

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/shinyes/vidstore/internal/config"
	"github.com/shinyes/vidstore/internal/db"
	"github.com/shinyes/vidstore/internal/fetch"
	httpserver "github.com/shinyes/vidstore/internal/http"
	"github.com/shinyes/vidstore/internal/service"
	"github.com/shinyes/vidstore/internal/storage"
	"github.com/shinyes/vidstore/internal/store"
)

type Container struct {
	Config         config.Config
	Store          *store.SQLStore
	Blobs          storage.Store
	StorageService *service.StorageSettingsService
	FileStore      *service.FileStore
	VideoService   *service.VideoService
	Router         *fiber.App
}

// Build wires the catalog, blob backend and services. Storage initialization
// starts in the background; callers that need it wait on VideoService.Ready.
func Build(ctx context.Context, cfg config.Config) (*Container, func() error, error) {
	sqliteDB, err := db.OpenSQLite(cfg.DBPath)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() error {
		return sqliteDB.Close()
	}

	if err := db.Migrate(sqliteDB); err != nil {
		_ = cleanup()
		return nil, nil, err
	}

	sqlStore := store.New(sqliteDB)
	storageService := service.NewStorageSettingsService(sqlStore)
	if _, err := storageService.Reconcile(ctx, cfg); err != nil {
		_ = cleanup()
		return nil, nil, fmt.Errorf("reconcile storage settings: %w", err)
	}

	blobs, err := newBlobStore(ctx, cfg)
	if err != nil {
		_ = cleanup()
		return nil, nil, err
	}

	fetcher := fetch.New(cfg.FetchTimeout, cfg.FetchUserAgent)
	fileStore := service.NewFileStore(sqlStore, blobs, fetcher, service.FileStoreOptions{
		HostQuotaLimit: cfg.HostQuotaLimit,
	})
	videoService := service.NewVideoService(ctx, fileStore, cfg.QuotaBytes)
	router := httpserver.NewRouter(cfg, fileStore, videoService)

	return &Container{
		Config:         cfg,
		Store:          sqlStore,
		Blobs:          blobs,
		StorageService: storageService,
		FileStore:      fileStore,
		VideoService:   videoService,
		Router:         router,
	}, cleanup, nil
}

func newBlobStore(ctx context.Context, cfg config.Config) (storage.Store, error) {
	switch cfg.Storage {
	case config.StorageBackendLocal:
		return storage.NewLocalStore(cfg.FilesDir, cfg.FilesBaseURL())
	case config.StorageBackendS3:
		return storage.NewS3Store(ctx, cfg.S3)
	case config.StorageBackendMemory:
		return storage.NewMemoryStore(cfg.HTTPFilesURL()), nil
	default:
		return nil, fmt.Errorf("unsupported storage backend %s", cfg.Storage)
	}
}
