package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Upload is the metadata of one uploaded file.
type Upload struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	FileName   string    `json:"file_name"`
	StorageKey string    `json:"-"`
	FileSize   int64     `json:"file_size"`
	FileType   string    `json:"file_type"`
	TableName  string    `json:"table_name"`
	Checksum   string    `json:"checksum"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Page bounds for ListUploads.
const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// UploadPage is one page of a user's uploads, newest first.
type UploadPage struct {
	Uploads    []Upload `json:"data"`
	Page       int      `json:"page"`
	PageSize   int      `json:"page_size"`
	Total      int64    `json:"total"`
	TotalPages int64    `json:"total_pages"`
}

const uploadColumns = `id, user_id, file_name, storage_key, file_size, file_type, table_name, checksum, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanUpload(s scanner) (Upload, error) {
	var u Upload
	err := s.Scan(&u.ID, &u.UserID, &u.FileName, &u.StorageKey, &u.FileSize,
		&u.FileType, &u.TableName, &u.Checksum, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

// CreateUpload records an upload. CreatedAt and UpdatedAt are set from db.Now.
func (db *DB) CreateUpload(ctx context.Context, u *Upload) error {
	if u.ID == "" || u.UserID == "" || u.TableName == "" {
		return fmt.Errorf("create upload: id, user id and table name are required")
	}
	now := db.Now()
	u.CreatedAt, u.UpdatedAt = now, now

	_, err := db.exec(ctx,
		`INSERT INTO uploads (`+uploadColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.UserID, u.FileName, u.StorageKey, u.FileSize,
		u.FileType, u.TableName, u.Checksum, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create upload: %w", err)
	}
	return nil
}

// GetUploadByTable returns the caller's upload with the given table name.
func (db *DB) GetUploadByTable(ctx context.Context, userID, tableName string) (*Upload, error) {
	row := db.queryRow(ctx,
		`SELECT `+uploadColumns+` FROM uploads WHERE user_id = ? AND table_name = ?`,
		userID, tableName)
	u, err := scanUpload(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("table %q: %w", tableName, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get upload: %w", err)
	}
	return &u, nil
}

// GetUpload returns the caller's upload with the given id.
func (db *DB) GetUpload(ctx context.Context, userID, id string) (*Upload, error) {
	row := db.queryRow(ctx, `SELECT `+uploadColumns+` FROM uploads WHERE user_id = ? AND id = ?`, userID, id)
	u, err := scanUpload(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("upload %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get upload: %w", err)
	}
	return &u, nil
}

// ListUploads returns one page of the caller's uploads, newest first.
// page is clamped to 1 and above. A pageSize below 1 means DefaultPageSize
// and larger sizes are capped at MaxPageSize.
func (db *DB) ListUploads(ctx context.Context, userID string, page, pageSize int) (*UploadPage, error) {
	if page < 1 {
		page = 1
	}
	switch {
	case pageSize < 1:
		pageSize = DefaultPageSize
	case pageSize > MaxPageSize:
		pageSize = MaxPageSize
	}

	result := &UploadPage{Uploads: []Upload{}, Page: page, PageSize: pageSize}
	if err := db.queryRow(ctx, `SELECT COUNT(*) FROM uploads WHERE user_id = ?`, userID).Scan(&result.Total); err != nil {
		return nil, fmt.Errorf("count uploads: %w", err)
	}
	result.TotalPages = (result.Total + int64(pageSize) - 1) / int64(pageSize)

	rows, err := db.query(ctx,
		`SELECT `+uploadColumns+` FROM uploads WHERE user_id = ?
		ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		userID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, fmt.Errorf("list uploads: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		u, err := scanUpload(rows)
		if err != nil {
			return nil, fmt.Errorf("scan upload: %w", err)
		}
		result.Uploads = append(result.Uploads, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list uploads: %w", err)
	}
	return result, nil
}

// DeleteUpload removes the caller's upload record and returns it.
func (db *DB) DeleteUpload(ctx context.Context, userID, id string) (*Upload, error) {
	u, err := db.GetUpload(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	res, err := db.exec(ctx, `DELETE FROM uploads WHERE user_id = ? AND id = ?`, userID, id)
	if err != nil {
		return nil, fmt.Errorf("delete upload: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, fmt.Errorf("upload %q: %w", id, ErrNotFound)
	}
	return u, nil
}
