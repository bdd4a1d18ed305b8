package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"shopbot/internal/models"
)

type WorkStore struct {
	db       DB
	defaults models.WorkSettings
}

type workSettingsRow struct {
	GuildID         string `db:"guild_id"`
	MinIncome       int64  `db:"min_income"`
	MaxIncome       int64  `db:"max_income"`
	CooldownSeconds int64  `db:"cooldown_seconds"`
}

// NewWorkStore returns a store that falls back to defaults for guilds that
// never configured work.
func NewWorkStore(db DB, defaults models.WorkSettings) *WorkStore {
	return &WorkStore{db: db, defaults: defaults}
}

func (s *WorkStore) Settings(ctx context.Context, guildID string) (models.WorkSettings, error) {
	var row workSettingsRow
	err := s.db.GetContext(ctx, &row, `
		SELECT guild_id, min_income, max_income, cooldown_seconds
		FROM work_settings
		WHERE guild_id = $1
	`, guildID)
	if errors.Is(err, sql.ErrNoRows) {
		settings := s.defaults
		settings.GuildID = guildID
		return settings, nil
	}
	if err != nil {
		return models.WorkSettings{}, err
	}
	return models.WorkSettings{
		GuildID:   row.GuildID,
		MinIncome: row.MinIncome,
		MaxIncome: row.MaxIncome,
		Cooldown:  time.Duration(row.CooldownSeconds) * time.Second,
	}, nil
}

func (s *WorkStore) SetSettings(ctx context.Context, settings models.WorkSettings) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO work_settings (guild_id, min_income, max_income, cooldown_seconds)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (guild_id)
		DO UPDATE SET min_income = EXCLUDED.min_income,
		              max_income = EXCLUDED.max_income,
		              cooldown_seconds = EXCLUDED.cooldown_seconds
	`, settings.GuildID, settings.MinIncome, settings.MaxIncome, int64(settings.Cooldown/time.Second))
	return err
}

// LastWorkedForUpdate returns the zero time when the member never worked.
func (s *WorkStore) LastWorkedForUpdate(ctx context.Context, tx Getter, guildID, userID string) (time.Time, error) {
	var last time.Time
	err := tx.GetContext(ctx, &last, `
		SELECT last_worked_at
		FROM work_cooldowns
		WHERE guild_id = $1 AND user_id = $2
		FOR UPDATE
	`, guildID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	return last, err
}

func (s *WorkStore) SetLastWorked(ctx context.Context, tx Execer, guildID, userID string, at time.Time) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO work_cooldowns (guild_id, user_id, last_worked_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (guild_id, user_id)
		DO UPDATE SET last_worked_at = EXCLUDED.last_worked_at
	`, guildID, userID, at)
	return err
}
