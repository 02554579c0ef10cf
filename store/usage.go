package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Usage holds a user's activity counters.
type Usage struct {
	UserID              string    `json:"user_id"`
	TotalQueries        int64     `json:"total_queries"`
	TotalFilesProcessed int64     `json:"total_files_processed"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// IncrementQueries adds one to the user's query counter.
func (db *DB) IncrementQueries(ctx context.Context, userID string) error {
	return db.increment(ctx, userID, "total_queries")
}

// IncrementFiles adds one to the user's processed-files counter.
func (db *DB) IncrementFiles(ctx context.Context, userID string) error {
	return db.increment(ctx, userID, "total_files_processed")
}

func (db *DB) increment(ctx context.Context, userID, counter string) error {
	queries, files := 0, 0
	if counter == "total_queries" {
		queries = 1
	} else {
		files = 1
	}
	_, err := db.exec(ctx,
		`INSERT INTO user_usage (user_id, total_queries, total_files_processed, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET `+counter+` = user_usage.`+counter+` + 1, updated_at = excluded.updated_at`,
		userID, queries, files, db.Now())
	if err != nil {
		return fmt.Errorf("increment %s: %w", counter, err)
	}
	return nil
}

// Usage returns the user's counters. A user with no activity has zero
// counters.
func (db *DB) Usage(ctx context.Context, userID string) (*Usage, error) {
	u := &Usage{UserID: userID}
	err := db.queryRow(ctx,
		`SELECT total_queries, total_files_processed, updated_at FROM user_usage WHERE user_id = ?`,
		userID).Scan(&u.TotalQueries, &u.TotalFilesProcessed, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return u, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get usage: %w", err)
	}
	return u, nil
}
