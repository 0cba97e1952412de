package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type SearchRecord struct {
	ID         uuid.UUID `json:"id"`
	Keyword    string    `json:"keyword"`
	TotalCount *int64    `json:"total_count,omitempty"`
	SearchedAt time.Time `json:"searched_at"`
}

// RecordSearch appends one entry to the search history. The total count is
// nullable because result pages do not always expose one.
func (db *DB) RecordSearch(ctx context.Context, keyword string, totalCount *int64) (*SearchRecord, error) {
	rec := &SearchRecord{
		ID:         uuid.New(),
		Keyword:    keyword,
		TotalCount: totalCount,
	}

	query := `
		INSERT INTO search_history (id, keyword, total_count)
		VALUES ($1, $2, $3)
		RETURNING searched_at`

	err := db.QueryRow(ctx, query, rec.ID, rec.Keyword, rec.TotalCount).Scan(&rec.SearchedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to record search: %w", err)
	}

	return rec, nil
}

// ListSearchHistory returns the most recent searches, newest first.
func (db *DB) ListSearchHistory(ctx context.Context, limit int) ([]SearchRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, keyword, total_count, searched_at
		FROM search_history
		ORDER BY searched_at DESC
		LIMIT $1`

	rows, err := db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query search history: %w", err)
	}
	defer rows.Close()

	records := []SearchRecord{}
	for rows.Next() {
		var rec SearchRecord
		if err := rows.Scan(&rec.ID, &rec.Keyword, &rec.TotalCount, &rec.SearchedAt); err != nil {
			return nil, fmt.Errorf("failed to scan search record: %w", err)
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

// ClearSearchHistory removes all history entries.
func (db *DB) ClearSearchHistory(ctx context.Context) error {
	if _, err := db.Exec(ctx, `DELETE FROM search_history`); err != nil {
		return fmt.Errorf("failed to clear search history: %w", err)
	}
	return nil
}
