package http

import (
	"time"

	"github.com/shinyes/vidstore/internal/models"
)

type profileResponse struct {
	Version     string `json:"version"`
	Backend     string `json:"backend"`
	QuotaBytes  string `json:"quotaBytes"`
	Initialized bool   `json:"initialized"`
}

type saveVideoRequest struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
}

type videoResponse struct {
	Video apiVideo `json:"video"`
}

type listVideosResponse struct {
	Videos []apiVideo `json:"videos"`
}

type videoURLResponse struct {
	URL string `json:"url"`
}

type storageUsageResponse struct {
	QuotaBytes     string `json:"quotaBytes"`
	UsedBytes      string `json:"usedBytes"`
	RemainingBytes string `json:"remainingBytes"`
	Entries        int64  `json:"entries"`
}

type apiVideo struct {
	Name        string `json:"name"`
	Filename    string `json:"filename"`
	Size        string `json:"size"`
	ContentType string `json:"contentType"`
	SourceURL   string `json:"sourceUrl,omitempty"`
	StorageType string `json:"storageType"`
	URL         string `json:"url,omitempty"`
	CreateTime  string `json:"createTime,omitempty"`
	UpdateTime  string `json:"updateTime,omitempty"`
}

func toAPIVideo(entry models.FileEntry, accessURL string) apiVideo {
	return apiVideo{
		Name:        entry.Path,
		Filename:    entry.Name(),
		Size:        models.Int64ToString(entry.Size),
		ContentType: entry.ContentType,
		SourceURL:   entry.SourceURL,
		StorageType: entry.StorageType,
		URL:         accessURL,
		CreateTime:  formatMaybeTime(entry.CreateTime),
		UpdateTime:  formatMaybeTime(entry.UpdateTime),
	}
}

func toStorageUsageResponse(usage models.StorageUsage) storageUsageResponse {
	return storageUsageResponse{
		QuotaBytes:     models.Int64ToString(usage.QuotaBytes),
		UsedBytes:      models.Int64ToString(usage.UsedBytes),
		RemainingBytes: models.Int64ToString(usage.RemainingBytes()),
		Entries:        usage.Entries,
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatMaybeTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return formatTime(t)
}
