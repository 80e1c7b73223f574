package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/shinyes/vidstore/internal/models"
)

const (
	settingKeyQuotaBytes = "storage_quota_bytes"
	settingKeyGrantedAt  = "storage_granted_at"
)

func (s *SQLStore) UpsertSetting(ctx context.Context, key string, value string) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO system_settings (key, value, update_time)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			update_time = excluded.update_time`,
		key,
		value,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	return err
}

func (s *SQLStore) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM system_settings WHERE key = ?`, key).Scan(&value)
	if err != nil {
		return "", err
	}
	return value, nil
}

func (s *SQLStore) DeleteSetting(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM system_settings WHERE key = ?`, key)
	if err != nil && err != sql.ErrNoRows {
		return err
	}
	return nil
}

// RecordGrant persists the quota granted to the store.
func (s *SQLStore) RecordGrant(ctx context.Context, grant models.StorageGrant) error {
	if err := s.UpsertSetting(ctx, settingKeyQuotaBytes, strconv.FormatInt(grant.QuotaBytes, 10)); err != nil {
		return err
	}
	return s.UpsertSetting(ctx, settingKeyGrantedAt, grant.GrantedAt.UTC().Format(time.RFC3339Nano))
}

// GetGrant returns sql.ErrNoRows when no quota was ever granted.
func (s *SQLStore) GetGrant(ctx context.Context) (models.StorageGrant, error) {
	rawQuota, err := s.GetSetting(ctx, settingKeyQuotaBytes)
	if err != nil {
		return models.StorageGrant{}, err
	}
	quota, err := strconv.ParseInt(rawQuota, 10, 64)
	if err != nil {
		return models.StorageGrant{}, fmt.Errorf("invalid int in setting %s: %q", settingKeyQuotaBytes, rawQuota)
	}
	grant := models.StorageGrant{QuotaBytes: quota}

	rawGrantedAt, err := s.GetSetting(ctx, settingKeyGrantedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return grant, nil
		}
		return models.StorageGrant{}, err
	}
	grant.GrantedAt, err = parseTime(rawGrantedAt)
	if err != nil {
		return models.StorageGrant{}, err
	}
	return grant, nil
}
