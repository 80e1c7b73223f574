package service

import (
	"errors"
	"fmt"
)

var (
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrNotInitialized     = errors.New("store not initialized")
	ErrNotFound           = errors.New("file entry not found")
	ErrDownloadFailed     = errors.New("download failed")
	ErrWriteFailed        = errors.New("write failed")
	ErrQuotaExceeded      = errors.New("storage quota exceeded")
	ErrInvalidPath        = errors.New("invalid path")
	ErrInvalidFilename    = errors.New("invalid filename")
	ErrInvalidSourceURL   = errors.New("invalid source url")
)

// StorageUnavailableError is returned when the host denies a storage grant.
type StorageUnavailableError struct {
	Cause error
}

func (e *StorageUnavailableError) Error() string {
	if e.Cause == nil {
		return ErrStorageUnavailable.Error()
	}
	return fmt.Sprintf("%s: %v", ErrStorageUnavailable, e.Cause)
}

func (e *StorageUnavailableError) Is(target error) bool {
	return target == ErrStorageUnavailable
}

func (e *StorageUnavailableError) Unwrap() error {
	return e.Cause
}

// DownloadFailedError carries the HTTP status of the source response.
// Status is 0 when no response was received.
type DownloadFailedError struct {
	Status int
	URL    string
	Cause  error
}

func (e *DownloadFailedError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s returned status %d", ErrDownloadFailed, e.URL, e.Status)
	}
	return fmt.Sprintf("%s: %s: %v", ErrDownloadFailed, e.URL, e.Cause)
}

func (e *DownloadFailedError) Is(target error) bool {
	return target == ErrDownloadFailed
}

func (e *DownloadFailedError) Unwrap() error {
	return e.Cause
}

type WriteFailedError struct {
	Cause error
}

func (e *WriteFailedError) Error() string {
	return fmt.Sprintf("%s: %v", ErrWriteFailed, e.Cause)
}

func (e *WriteFailedError) Is(target error) bool {
	return target == ErrWriteFailed
}

func (e *WriteFailedError) Unwrap() error {
	return e.Cause
}
