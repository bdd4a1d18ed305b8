package handlers

import (
	"context"

	"shopbot/internal/models"
	"shopbot/internal/services"
)

type CatalogService interface {
	List(ctx context.Context, guildID string, listedOnly bool) ([]models.Item, error)
	Get(ctx context.Context, guildID string, itemID int64) (models.Item, error)
	GetByName(ctx context.Context, guildID, name string) (models.Item, error)
	Create(ctx context.Context, actorID string, item models.Item) (models.Item, error)
	Update(ctx context.Context, actorID string, item models.Item) (models.Item, error)
	StockView(ctx context.Context, item models.Item) (services.StockView, error)
}

type InventoryService interface {
	List(ctx context.Context, guildID, userID string) ([]models.InventoryEntry, error)
}

type BalanceReader interface {
	Balance(ctx context.Context, guildID, userID string) (int64, error)
}

type AuditStore interface {
	List(ctx context.Context, guildID string, limit, offset int) ([]models.AuditEntry, error)
}
