package store

import (
	"context"

	"shopbot/internal/models"

	"github.com/google/uuid"
)

const (
	AuditItemPurchased = "item.purchased"
	AuditItemSold      = "item.sold"
	AuditItemUsed      = "item.used"
	AuditItemGiven     = "item.given"
	AuditItemTaken     = "item.taken"
	AuditItemCreated   = "item.created"
	AuditItemUpdated   = "item.updated"
	AuditPayment       = "balance.paid"
	AuditWork          = "balance.worked"
)

type AuditStore struct {
	db DB
}

func NewAuditStore(db DB) *AuditStore {
	return &AuditStore{db: db}
}

func (s *AuditStore) Log(ctx context.Context, tx Execer, entry models.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Data == "" {
		entry.Data = "{}"
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO shop_audit_logs (id, guild_id, actor_id, action, item_id, quantity, amount, data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, entry.ID, entry.GuildID, entry.ActorID, entry.Action, entry.ItemID, entry.Quantity, entry.Amount, entry.Data)
	return err
}

func (s *AuditStore) List(ctx context.Context, guildID string, limit, offset int) ([]models.AuditEntry, error) {
	var rows []models.AuditEntry
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, guild_id, actor_id, action, item_id, quantity, amount, data::text AS data, created_at
		FROM shop_audit_logs
		WHERE guild_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, guildID, limit, offset)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
