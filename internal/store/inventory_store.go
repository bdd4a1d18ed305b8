package store

import (
	"context"
	"database/sql"
	"errors"

	"shopbot/internal/models"
)

type InventoryStore struct {
	db DB
}

func NewInventoryStore(db DB) *InventoryStore {
	return &InventoryStore{db: db}
}

func (s *InventoryStore) Quantity(ctx context.Context, guildID, userID string, itemID int64) (int64, error) {
	var qty int64
	err := s.db.GetContext(ctx, &qty, `
		SELECT COALESCE((SELECT quantity FROM inventories WHERE guild_id = $1 AND user_id = $2 AND item_id = $3), 0)
	`, guildID, userID, itemID)
	return qty, err
}

func (s *InventoryStore) QuantityForUpdate(ctx context.Context, tx Getter, guildID, userID string, itemID int64) (int64, error) {
	var qty int64
	err := tx.GetContext(ctx, &qty, `
		SELECT quantity
		FROM inventories
		WHERE guild_id = $1 AND user_id = $2 AND item_id = $3
		FOR UPDATE
	`, guildID, userID, itemID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return qty, err
}

func (s *InventoryStore) Add(ctx context.Context, tx Getter, guildID, userID string, itemID, qty int64) (int64, error) {
	var total int64
	err := tx.GetContext(ctx, &total, `
		INSERT INTO inventories (guild_id, user_id, item_id, quantity)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (guild_id, user_id, item_id)
		DO UPDATE SET quantity = inventories.quantity + EXCLUDED.quantity
		RETURNING quantity
	`, guildID, userID, itemID, qty)
	return total, err
}

// Remove decrements the holding only when at least qty is held and drops the
// row once it reaches zero. It reports whether the decrement happened.
func (s *InventoryStore) Remove(ctx context.Context, tx Execer, guildID, userID string, itemID, qty int64) (bool, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE inventories
		SET quantity = quantity - $4
		WHERE guild_id = $1 AND user_id = $2 AND item_id = $3 AND quantity >= $4
	`, guildID, userID, itemID, qty)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if rows == 0 {
		return false, nil
	}
	_, err = tx.ExecContext(ctx, `
		DELETE FROM inventories
		WHERE guild_id = $1 AND user_id = $2 AND item_id = $3 AND quantity <= 0
	`, guildID, userID, itemID)
	return err == nil, err
}

func (s *InventoryStore) ListByUser(ctx context.Context, guildID, userID string) ([]models.InventoryEntry, error) {
	var rows []models.InventoryEntry
	err := s.db.SelectContext(ctx, &rows, `
		SELECT inv.guild_id, inv.user_id, inv.item_id, i.name, i.description, inv.quantity
		FROM inventories inv
		JOIN items i ON i.id = inv.item_id
		WHERE inv.guild_id = $1 AND inv.user_id = $2 AND inv.quantity > 0
		ORDER BY i.name_lower
	`, guildID, userID)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
