package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/shinyes/vidstore/internal/models"
)

type SQLStore struct {
	db *sql.DB
}

func New(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// EntryPrefilter narrows ListEntries in SQL before any in-memory filtering.
// Zero value matches everything.
type EntryPrefilter struct {
	ContentTypes  []string
	Paths         []string
	Unsatisfiable bool
}

func EmptyEntryPrefilter() EntryPrefilter {
	return EntryPrefilter{}
}

type UpsertEntryInput struct {
	ID          string
	Path        string
	Size        int64
	ContentType string
	SourceURL   string
	StorageType string
	StorageKey  string
}

const entryColumns = `id, path, size, content_type, source_url, storage_type, storage_key, create_time, update_time`

// UpsertEntry inserts the entry or replaces the content fields of the entry
// already stored at the same path. The existing ID and create_time survive.
func (s *SQLStore) UpsertEntry(ctx context.Context, input UpsertEntryInput) (models.FileEntry, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO file_entries (id, path, size, content_type, source_url, storage_type, storage_key, create_time, update_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			size = excluded.size,
			content_type = excluded.content_type,
			source_url = excluded.source_url,
			storage_type = excluded.storage_type,
			storage_key = excluded.storage_key,
			update_time = excluded.update_time`,
		input.ID,
		input.Path,
		input.Size,
		input.ContentType,
		input.SourceURL,
		input.StorageType,
		input.StorageKey,
		now,
		now,
	)
	if err != nil {
		return models.FileEntry{}, err
	}
	return s.GetEntryByPath(ctx, input.Path)
}

func (s *SQLStore) GetEntryByPath(ctx context.Context, path string) (models.FileEntry, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+entryColumns+`
		FROM file_entries
		WHERE path = ?`,
		path,
	)
	return scanEntry(row)
}

func (s *SQLStore) ListEntries(ctx context.Context, pathPrefix string, prefilter EntryPrefilter) ([]models.FileEntry, error) {
	if prefilter.Unsatisfiable {
		return []models.FileEntry{}, nil
	}
	clauses := make([]string, 0, 3)
	args := make([]any, 0, 1+len(prefilter.ContentTypes)+len(prefilter.Paths))
	if pathPrefix != "" {
		clauses = append(clauses, `instr(path, ?) = 1`)
		args = append(args, pathPrefix)
	}
	if len(prefilter.ContentTypes) > 0 {
		clauses = append(clauses, `content_type IN (`+placeholders(len(prefilter.ContentTypes))+`)`)
		for _, ct := range prefilter.ContentTypes {
			args = append(args, ct)
		}
	}
	if len(prefilter.Paths) > 0 {
		clauses = append(clauses, `path IN (`+placeholders(len(prefilter.Paths))+`)`)
		for _, p := range prefilter.Paths {
			args = append(args, p)
		}
	}

	query := `SELECT ` + entryColumns + ` FROM file_entries`
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, ` AND `)
	}
	query += ` ORDER BY path ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]models.FileEntry, 0)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (s *SQLStore) DeleteEntryByPath(ctx context.Context, path string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM file_entries WHERE path = ?`, path)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SumEntrySizes returns the total stored bytes and the number of entries.
func (s *SQLStore) SumEntrySizes(ctx context.Context) (int64, int64, error) {
	var total int64
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(size), 0), COUNT(*) FROM file_entries`).Scan(&total, &count)
	if err != nil {
		return 0, 0, err
	}
	return total, count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (models.FileEntry, error) {
	var entry models.FileEntry
	var createTime string
	var updateTime string
	err := row.Scan(
		&entry.ID,
		&entry.Path,
		&entry.Size,
		&entry.ContentType,
		&entry.SourceURL,
		&entry.StorageType,
		&entry.StorageKey,
		&createTime,
		&updateTime,
	)
	if err != nil {
		return models.FileEntry{}, err
	}
	entry.CreateTime, err = parseTime(createTime)
	if err != nil {
		return models.FileEntry{}, err
	}
	entry.UpdateTime, err = parseTime(updateTime)
	if err != nil {
		return models.FileEntry{}, err
	}
	return entry, nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func parseTime(raw string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", raw, err)
	}
	return t, nil
}
