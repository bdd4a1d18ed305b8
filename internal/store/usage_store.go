package store

import (
	"context"
	"database/sql"
	"errors"
)

type UsageStore struct {
	db DB
}

func NewUsageStore(db DB) *UsageStore {
	return &UsageStore{db: db}
}

func (s *UsageStore) UsedForUpdate(ctx context.Context, tx Getter, guildID string, itemID int64, userID, day string) (int64, error) {
	var used int64
	err := tx.GetContext(ctx, &used, `
		SELECT used
		FROM item_daily_usage
		WHERE guild_id = $1 AND item_id = $2 AND user_id = $3 AND day = $4
		FOR UPDATE
	`, guildID, itemID, userID, day)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return used, err
}

func (s *UsageStore) AddUsed(ctx context.Context, tx Execer, guildID string, itemID int64, userID, day string, qty int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO item_daily_usage (guild_id, item_id, user_id, day, used)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (guild_id, item_id, user_id, day)
		DO UPDATE SET used = item_daily_usage.used + EXCLUDED.used
	`, guildID, itemID, userID, day, qty)
	return err
}
