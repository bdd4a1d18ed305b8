package store

import (
	"context"
	"database/sql"
	"errors"
)

type BalanceStore struct {
	db DB
}

func NewBalanceStore(db DB) *BalanceStore {
	return &BalanceStore{db: db}
}

// Get returns 0 for a member that has never held currency.
func (s *BalanceStore) Get(ctx context.Context, guildID, userID string) (int64, error) {
	var balance int64
	err := s.db.GetContext(ctx, &balance, `
		SELECT COALESCE((SELECT balance FROM balances WHERE guild_id = $1 AND user_id = $2), 0)
	`, guildID, userID)
	return balance, err
}

func (s *BalanceStore) GetForUpdate(ctx context.Context, tx Getter, guildID, userID string) (int64, error) {
	var balance int64
	err := tx.GetContext(ctx, &balance, `
		SELECT balance
		FROM balances
		WHERE guild_id = $1 AND user_id = $2
		FOR UPDATE
	`, guildID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return balance, err
}

// Adjust adds delta (which may be negative) and returns the new balance.
func (s *BalanceStore) Adjust(ctx context.Context, tx Getter, guildID, userID string, delta int64) (int64, error) {
	var balance int64
	err := tx.GetContext(ctx, &balance, `
		INSERT INTO balances (guild_id, user_id, balance)
		VALUES ($1, $2, $3)
		ON CONFLICT (guild_id, user_id)
		DO UPDATE SET balance = balances.balance + EXCLUDED.balance, updated_at = NOW()
		RETURNING balance
	`, guildID, userID, delta)
	return balance, err
}
