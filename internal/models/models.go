package models

import (
	"path"
	"strconv"
	"time"
)

// FileEntry is a named blob inside the persistent store, addressed by a
// slash-separated relative path such as "videos/a.mp4".
type FileEntry struct {
	ID          string
	Path        string
	Size        int64
	ContentType string
	SourceURL   string
	StorageType string
	StorageKey  string
	CreateTime  time.Time
	UpdateTime  time.Time
}

func (e FileEntry) Name() string {
	return path.Base(e.Path)
}

type StorageGrant struct {
	QuotaBytes int64
	GrantedAt  time.Time
}

type StorageUsage struct {
	QuotaBytes int64
	UsedBytes  int64
	Entries    int64
}

func (u StorageUsage) RemainingBytes() int64 {
	remaining := u.QuotaBytes - u.UsedBytes
	if remaining < 0 {
		return 0
	}
	return remaining
}

func Int64ToString(v int64) string {
	return strconv.FormatInt(v, 10)
}
