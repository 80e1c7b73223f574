package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type StorageBackend string

const (
	StorageBackendLocal  StorageBackend = "local"
	StorageBackendS3     StorageBackend = "s3"
	StorageBackendMemory StorageBackend = "memory"
)

// LocalAccessURL selects how access URLs for locally stored files are built.
type LocalAccessURL string

const (
	LocalAccessURLHTTP LocalAccessURL = "http"
	LocalAccessURLFile LocalAccessURL = "file"
)

const DefaultQuotaBytes int64 = 1024 * 1024 * 1024

type S3Config struct {
	Endpoint     string
	Region       string
	Bucket       string
	AccessKeyID  string
	AccessSecret string
	UsePathStyle bool
	PresignTTL   time.Duration
	// SpoolDir holds temp copies of streamed uploads; empty uses os.TempDir.
	SpoolDir string
}

type Config struct {
	Addr           string
	BaseURL        string
	DBPath         string
	FilesDir       string
	BodyLimitMB    int
	Version        string
	Storage        StorageBackend
	LocalAccessURL LocalAccessURL
	S3             S3Config
	QuotaBytes     int64
	HostQuotaLimit int64
	FetchTimeout   time.Duration
	FetchUserAgent string
	APITokenHash   string
}

func Load() (Config, error) {
	version := env("VIDSTORE_VERSION", "0.1")
	cfg := Config{
		Addr:           env("APP_ADDR", ":12850"),
		BaseURL:        strings.TrimRight(env("BASE_URL", "http://localhost:12850"), "/"),
		DBPath:         env("DB_PATH", "./data/vidstore.db"),
		FilesDir:       env("FILES_DIR", "./data/files"),
		BodyLimitMB:    envInt("HTTP_BODY_LIMIT_MB", 4),
		Version:        version,
		Storage:        StorageBackend(strings.ToLower(env("STORAGE_BACKEND", string(StorageBackendLocal)))),
		LocalAccessURL: LocalAccessURL(strings.ToLower(env("LOCAL_ACCESS_URL", string(LocalAccessURLHTTP)))),
		S3: S3Config{
			Endpoint:     env("S3_ENDPOINT", ""),
			Region:       env("S3_REGION", ""),
			Bucket:       env("S3_BUCKET", ""),
			AccessKeyID:  env("S3_ACCESS_KEY_ID", ""),
			AccessSecret: env("S3_ACCESS_KEY_SECRET", ""),
			UsePathStyle: envBool("S3_USE_PATH_STYLE", true),
			PresignTTL:   envDuration("S3_PRESIGN_TTL", time.Hour),
			SpoolDir:     env("S3_SPOOL_DIR", ""),
		},
		QuotaBytes:     envInt64("STORAGE_QUOTA_BYTES", DefaultQuotaBytes),
		HostQuotaLimit: envInt64("HOST_QUOTA_LIMIT_BYTES", 0),
		FetchTimeout:   envDuration("FETCH_TIMEOUT", 0),
		FetchUserAgent: env("FETCH_USER_AGENT", "vidstore/"+version),
		APITokenHash:   env("API_TOKEN_HASH", ""),
	}

	switch cfg.Storage {
	case StorageBackendLocal, StorageBackendMemory:
	case StorageBackendS3:
		if err := cfg.S3.Validate(); err != nil {
			return Config{}, err
		}
	default:
		return Config{}, fmt.Errorf("unsupported storage backend %q", cfg.Storage)
	}
	switch cfg.LocalAccessURL {
	case LocalAccessURLHTTP, LocalAccessURLFile:
	default:
		return Config{}, fmt.Errorf("unsupported local access url mode %q", cfg.LocalAccessURL)
	}
	return cfg, nil
}

// FilesBaseURL is the public prefix under which /files/* serves local entries.
// Empty when local access URLs are plain file:// URLs.
func (c Config) FilesBaseURL() string {
	if c.LocalAccessURL != LocalAccessURLHTTP {
		return ""
	}
	return c.HTTPFilesURL()
}

// HTTPFilesURL is the /files/* prefix regardless of LOCAL_ACCESS_URL.
func (c Config) HTTPFilesURL() string {
	return c.BaseURL + "/files"
}

func (c S3Config) Validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("s3 endpoint is required when storage backend is s3")
	}
	if c.Region == "" {
		return fmt.Errorf("s3 region is required when storage backend is s3")
	}
	if c.Bucket == "" {
		return fmt.Errorf("s3 bucket is required when storage backend is s3")
	}
	if c.AccessKeyID == "" {
		return fmt.Errorf("s3 access key id is required when storage backend is s3")
	}
	if c.AccessSecret == "" {
		return fmt.Errorf("s3 access key secret is required when storage backend is s3")
	}
	return nil
}

func env(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envBool(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func envInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(v)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func envInt64(key string, fallback int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(v, 10, 64)
	if err != nil || parsed < 0 {
		return fallback
	}
	return parsed
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(v)
	if err != nil || parsed < 0 {
		return fallback
	}
	return parsed
}
