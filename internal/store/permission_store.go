package store

import (
	"context"

	"shopbot/internal/models"
)

type PermissionStore struct {
	db DB
}

func NewPermissionStore(db DB) *PermissionStore {
	return &PermissionStore{db: db}
}

// Set replaces any rule for the same target and command.
func (s *PermissionStore) Set(ctx context.Context, rule models.PermissionRule) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO permissions (guild_id, target_id, target_type, effect, command_name)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (guild_id, target_id, command_name)
		DO UPDATE SET target_type = EXCLUDED.target_type, effect = EXCLUDED.effect
	`, rule.GuildID, rule.TargetID, rule.TargetType, rule.Effect, rule.Command)
	return err
}

// Remove deletes the target's rules; an empty command removes all of them.
func (s *PermissionStore) Remove(ctx context.Context, guildID, targetID, command string) (int64, error) {
	query := `DELETE FROM permissions WHERE guild_id = $1 AND target_id = $2`
	args := []any{guildID, targetID}
	if command != "" {
		query += ` AND command_name = $3`
		args = append(args, command)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ForCommand returns the rules that apply to command, including the
// all-commands rules.
func (s *PermissionStore) ForCommand(ctx context.Context, guildID, command string) ([]models.PermissionRule, error) {
	var rows []models.PermissionRule
	err := s.db.SelectContext(ctx, &rows, `
		SELECT guild_id, target_id, target_type, effect, command_name
		FROM permissions
		WHERE guild_id = $1 AND command_name IN ($2, $3)
	`, guildID, command, models.AllCommands)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *PermissionStore) List(ctx context.Context, guildID string) ([]models.PermissionRule, error) {
	var rows []models.PermissionRule
	err := s.db.SelectContext(ctx, &rows, `
		SELECT guild_id, target_id, target_type, effect, command_name
		FROM permissions
		WHERE guild_id = $1
		ORDER BY command_name, target_type, target_id
	`, guildID)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
