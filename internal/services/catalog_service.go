package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"shopbot/internal/db"
	"shopbot/internal/models"
	"shopbot/internal/store"
	"shopbot/internal/validator"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

type CatalogItemStore interface {
	Create(ctx context.Context, tx store.Getter, item models.Item) (int64, error)
	Update(ctx context.Context, tx store.Execer, item models.Item) (int64, error)
	GetByID(ctx context.Context, guildID string, itemID int64) (models.Item, error)
	GetForShare(ctx context.Context, tx store.Getter, guildID string, itemID int64) (models.Item, error)
	GetByName(ctx context.Context, guildID, name string) (models.Item, error)
	List(ctx context.Context, guildID string) ([]models.Item, error)
	ListByIDs(ctx context.Context, guildID string, ids []int64) ([]models.Item, error)
}

type CatalogStockStore interface {
	Get(ctx context.Context, guildID string, itemID int64) (models.StockState, bool, error)
	Reset(ctx context.Context, tx store.Execer, guildID string, itemID int64) error
}

type CatalogService struct {
	txRunner db.TxRunner
	items    CatalogItemStore
	stock    CatalogStockStore
	audit    AuditStore
	now      func() time.Time
	log      logrus.FieldLogger
}

func NewCatalogService(txRunner db.TxRunner, items CatalogItemStore, stock CatalogStockStore, audit AuditStore, log logrus.FieldLogger) *CatalogService {
	return &CatalogService{txRunner: txRunner, items: items, stock: stock, audit: audit, now: time.Now, log: log}
}

func (s *CatalogService) WithClock(now func() time.Time) *CatalogService {
	s.now = now
	return s
}

// List returns the whole catalog ordered by name, or only the items on sale.
func (s *CatalogService) List(ctx context.Context, guildID string, listedOnly bool) ([]models.Item, error) {
	items, err := s.items.List(ctx, guildID)
	if err != nil {
		return nil, err
	}
	if !listedOnly {
		return items, nil
	}
	listed := items[:0]
	for _, item := range items {
		if item.IsListed {
			listed = append(listed, item)
		}
	}
	return listed, nil
}

func (s *CatalogService) Get(ctx context.Context, guildID string, itemID int64) (models.Item, error) {
	item, err := s.items.GetByID(ctx, guildID, itemID)
	if errors.Is(err, store.ErrNotFound) {
		return models.Item{}, ErrItemNotFound
	}
	return item, err
}

func (s *CatalogService) GetByName(ctx context.Context, guildID, name string) (models.Item, error) {
	item, err := s.items.GetByName(ctx, guildID, name)
	if errors.Is(err, store.ErrNotFound) {
		return models.Item{}, ErrItemNotFound
	}
	return item, err
}

// Names maps item ids to names for rendering barter costs.
func (s *CatalogService) Names(ctx context.Context, guildID string, ids []int64) (map[int64]string, error) {
	items, err := s.items.ListByIDs(ctx, guildID, ids)
	if err != nil {
		return nil, err
	}
	names := make(map[int64]string, len(items))
	for _, item := range items {
		names[item.ID] = item.Name
	}
	return names, nil
}

func (s *CatalogService) Create(ctx context.Context, actorID string, item models.Item) (models.Item, error) {
	item.ID = 0
	if err := s.validate(ctx, item); err != nil {
		return models.Item{}, err
	}
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		id, err := s.items.Create(ctx, tx, item)
		if err != nil {
			if db.IsUniqueViolation(err) {
				return ErrDuplicateName
			}
			return err
		}
		item.ID = id
		return s.logChange(ctx, tx, actorID, store.AuditItemCreated, item)
	})
	if err != nil {
		return models.Item{}, err
	}
	s.log.WithFields(logrus.Fields{"guild_id": item.GuildID, "item_id": item.ID, "actor_id": actorID}).Info("item created")
	return item, nil
}

// Update replaces the item definition. Changing the stock ceiling restarts
// the item's stock from the new ceiling.
func (s *CatalogService) Update(ctx context.Context, actorID string, item models.Item) (models.Item, error) {
	if err := s.validate(ctx, item); err != nil {
		return models.Item{}, err
	}
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		current, err := s.items.GetForShare(ctx, tx, item.GuildID, item.ID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrItemNotFound
			}
			return err
		}
		item.CreatedAt = current.CreatedAt
		if _, err := s.items.Update(ctx, tx, item); err != nil {
			if db.IsUniqueViolation(err) {
				return ErrDuplicateName
			}
			return err
		}
		if !sameCeiling(current.StockTotal, item.StockTotal) {
			if err := s.stock.Reset(ctx, tx, item.GuildID, item.ID); err != nil {
				return err
			}
		}
		return s.logChange(ctx, tx, actorID, store.AuditItemUpdated, item)
	})
	if err != nil {
		return models.Item{}, err
	}
	s.log.WithFields(logrus.Fields{"guild_id": item.GuildID, "item_id": item.ID, "actor_id": actorID}).Info("item updated")
	return item, nil
}

// StockView projects today's stock without writing the restock.
func (s *CatalogService) StockView(ctx context.Context, item models.Item) (StockView, error) {
	if !item.HasFiniteStock() {
		return StockView{}, nil
	}
	state, found, err := s.stock.Get(ctx, item.GuildID, item.ID)
	if err != nil {
		return StockView{}, err
	}
	return viewOf(item, RollStock(item, state, found, s.now())), nil
}

func (s *CatalogService) validate(ctx context.Context, item models.Item) error {
	if err := validator.ValidateItem(item); err != nil {
		return err
	}
	if !item.IsBarter() {
		return nil
	}
	ids := make([]int64, 0, len(item.CostItems))
	for _, c := range item.CostItems {
		ids = append(ids, c.ItemID)
	}
	found, err := s.items.ListByIDs(ctx, item.GuildID, ids)
	if err != nil {
		return err
	}
	if len(found) != len(ids) {
		return ErrUnknownCostItem
	}
	return nil
}

func (s *CatalogService) logChange(ctx context.Context, tx store.Execer, actorID, action string, item models.Item) error {
	data, err := json.Marshal(item)
	if err != nil {
		return err
	}
	itemID := item.ID
	return s.audit.Log(ctx, tx, models.AuditEntry{
		GuildID: item.GuildID,
		ActorID: actorID,
		Action:  action,
		ItemID:  &itemID,
		Data:    string(data),
	})
}

func sameCeiling(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
