package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/boothhunter/boothhunter/internal/models"
)

// ErrAlreadyFavorite is returned when an item is favorited twice.
var ErrAlreadyFavorite = errors.New("item is already a favorite")

type Favorite struct {
	ID        uuid.UUID   `json:"id"`
	ItemID    int64       `json:"item_id"`
	Note      string      `json:"note"`
	Item      models.Item `json:"item"`
	CreatedAt time.Time   `json:"created_at"`
}

// AddFavorite stores an item as a favorite together with a snapshot of the
// item data, so the list stays renderable even when upstream removes the item.
func (db *DB) AddFavorite(ctx context.Context, item *models.Item, note string) (*Favorite, error) {
	data, err := json.Marshal(item)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal item: %w", err)
	}

	fav := &Favorite{
		ID:     uuid.New(),
		ItemID: item.ID,
		Note:   note,
		Item:   *item,
	}

	query := `
		INSERT INTO favorites (id, item_id, note, data)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`

	err = db.QueryRow(ctx, query, fav.ID, fav.ItemID, fav.Note, data).Scan(&fav.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrAlreadyFavorite
		}
		return nil, fmt.Errorf("failed to insert favorite for item %d: %w", item.ID, err)
	}

	return fav, nil
}

// ListFavorites returns all favorites, newest first.
func (db *DB) ListFavorites(ctx context.Context) ([]Favorite, error) {
	query := `SELECT id, item_id, note, data, created_at FROM favorites ORDER BY created_at DESC`

	rows, err := db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query favorites: %w", err)
	}
	defer rows.Close()

	favorites := []Favorite{}
	for rows.Next() {
		var fav Favorite
		var data []byte
		if err := rows.Scan(&fav.ID, &fav.ItemID, &fav.Note, &data, &fav.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan favorite: %w", err)
		}
		if err := json.Unmarshal(data, &fav.Item); err != nil {
			return nil, fmt.Errorf("failed to unmarshal favorite %s: %w", fav.ID, err)
		}
		favorites = append(favorites, fav)
	}

	return favorites, rows.Err()
}

// RemoveFavorite deletes a favorite by item id. Removing an item that was
// never favorited is ErrNotFound.
func (db *DB) RemoveFavorite(ctx context.Context, itemID int64) error {
	tag, err := db.Exec(ctx, `DELETE FROM favorites WHERE item_id = $1`, itemID)
	if err != nil {
		return fmt.Errorf("failed to delete favorite for item %d: %w", itemID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
