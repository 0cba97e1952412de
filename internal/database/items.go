package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/boothhunter/boothhunter/internal/models"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

type CachedItem struct {
	ItemID   int64
	Item     models.Item
	CachedAt time.Time
}

// UpsertItem stores a fetched item, replacing any previous snapshot.
func (db *DB) UpsertItem(ctx context.Context, item *models.Item) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to marshal item: %w", err)
	}

	query := `
		INSERT INTO cached_items (item_id, name, price, data, cached_at)
		VALUES ($1, $2, $3, $4, CURRENT_TIMESTAMP)
		ON CONFLICT (item_id) DO UPDATE SET
			name = EXCLUDED.name,
			price = EXCLUDED.price,
			data = EXCLUDED.data,
			cached_at = CURRENT_TIMESTAMP`

	if _, err := db.Exec(ctx, query, item.ID, item.Name, item.Price, data); err != nil {
		return fmt.Errorf("failed to upsert item %d: %w", item.ID, err)
	}

	return nil
}

// GetItem returns the stored snapshot for an item id, or ErrNotFound.
func (db *DB) GetItem(ctx context.Context, itemID int64) (*CachedItem, error) {
	query := `SELECT item_id, data, cached_at FROM cached_items WHERE item_id = $1`

	var cached CachedItem
	var data []byte
	err := db.QueryRow(ctx, query, itemID).Scan(&cached.ItemID, &data, &cached.CachedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query item %d: %w", itemID, err)
	}

	if err := json.Unmarshal(data, &cached.Item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal item %d: %w", itemID, err)
	}

	return &cached, nil
}
