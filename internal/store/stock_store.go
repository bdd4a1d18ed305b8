package store

import (
	"context"
	"database/sql"
	"errors"

	"shopbot/internal/models"
)

type StockStore struct {
	db DB
}

func NewStockStore(db DB) *StockStore {
	return &StockStore{db: db}
}

// Get reads the stored state outside a transaction; found is false when the
// item has never been sold from.
func (s *StockStore) Get(ctx context.Context, guildID string, itemID int64) (models.StockState, bool, error) {
	return s.get(ctx, s.db, `
		SELECT guild_id, item_id, current_stock, last_restock_day
		FROM item_stock
		WHERE guild_id = $1 AND item_id = $2
	`, guildID, itemID)
}

func (s *StockStore) GetForUpdate(ctx context.Context, tx Getter, guildID string, itemID int64) (models.StockState, bool, error) {
	return s.get(ctx, tx, `
		SELECT guild_id, item_id, current_stock, last_restock_day
		FROM item_stock
		WHERE guild_id = $1 AND item_id = $2
		FOR UPDATE
	`, guildID, itemID)
}

func (s *StockStore) get(ctx context.Context, q Getter, query, guildID string, itemID int64) (models.StockState, bool, error) {
	var row models.StockState
	err := q.GetContext(ctx, &row, query, guildID, itemID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.StockState{}, false, nil
	}
	if err != nil {
		return models.StockState{}, false, err
	}
	return row, true, nil
}

func (s *StockStore) Upsert(ctx context.Context, tx Execer, state models.StockState) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO item_stock (guild_id, item_id, current_stock, last_restock_day)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (guild_id, item_id)
		DO UPDATE SET current_stock = EXCLUDED.current_stock, last_restock_day = EXCLUDED.last_restock_day
	`, state.GuildID, state.ItemID, state.CurrentStock, state.LastRestockDay)
	return err
}

// Reset drops stored state so the next purchase starts from the ceiling.
func (s *StockStore) Reset(ctx context.Context, tx Execer, guildID string, itemID int64) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM item_stock WHERE guild_id = $1 AND item_id = $2`, guildID, itemID)
	return err
}
