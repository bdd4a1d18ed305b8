package services

import (
	"context"
	"encoding/json"
	"errors"

	"shopbot/internal/db"
	"shopbot/internal/lock"
	"shopbot/internal/models"
	"shopbot/internal/store"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

type InventoryItemStore interface {
	GetForShare(ctx context.Context, tx store.Getter, guildID string, itemID int64) (models.Item, error)
}

// MemberInventoryStore adds the unlocked reads used for listings.
type MemberInventoryStore interface {
	InventoryStore
	Quantity(ctx context.Context, guildID, userID string, itemID int64) (int64, error)
	ListByUser(ctx context.Context, guildID, userID string) ([]models.InventoryEntry, error)
}

type InventoryService struct {
	txRunner  db.TxRunner
	locker    lock.Locker
	items     InventoryItemStore
	inventory MemberInventoryStore
	audit     AuditStore
	log       logrus.FieldLogger
}

func NewInventoryService(txRunner db.TxRunner, locker lock.Locker, items InventoryItemStore, inventory MemberInventoryStore, audit AuditStore, log logrus.FieldLogger) *InventoryService {
	return &InventoryService{txRunner: txRunner, locker: locker, items: items, inventory: inventory, audit: audit, log: log}
}

func (s *InventoryService) List(ctx context.Context, guildID, userID string) ([]models.InventoryEntry, error) {
	return s.inventory.ListByUser(ctx, guildID, userID)
}

func (s *InventoryService) Quantity(ctx context.Context, guildID, userID string, itemID int64) (int64, error) {
	return s.inventory.Quantity(ctx, guildID, userID, itemID)
}

// Use consumes qty of the member's own item and returns what is left.
func (s *InventoryService) Use(ctx context.Context, guildID, userID string, itemID, qty int64) (int64, error) {
	return s.remove(ctx, userID, guildID, userID, itemID, qty, store.AuditItemUsed)
}

// Give credits qty of an item to a member on behalf of an admin.
func (s *InventoryService) Give(ctx context.Context, actorID, guildID, userID string, itemID, qty int64) (int64, error) {
	if qty <= 0 {
		return 0, ErrInvalidQuantity
	}
	unlock, err := s.locker.Lock(ctx, lock.AccountKey(guildID, userID))
	if err != nil {
		return 0, err
	}
	defer unlock()

	var held int64
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := s.items.GetForShare(ctx, tx, guildID, itemID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrItemNotFound
			}
			return err
		}
		total, err := s.inventory.Add(ctx, tx, guildID, userID, itemID, qty)
		if err != nil {
			return err
		}
		held = total
		return s.logMove(ctx, tx, actorID, guildID, userID, itemID, qty, store.AuditItemGiven)
	})
	if err != nil {
		return 0, normalizeCommitError(err)
	}
	return held, nil
}

// Take removes qty of an item from a member; it fails when they hold fewer.
func (s *InventoryService) Take(ctx context.Context, actorID, guildID, userID string, itemID, qty int64) (int64, error) {
	return s.remove(ctx, actorID, guildID, userID, itemID, qty, store.AuditItemTaken)
}

func (s *InventoryService) remove(ctx context.Context, actorID, guildID, userID string, itemID, qty int64, action string) (int64, error) {
	if qty <= 0 {
		return 0, ErrInvalidQuantity
	}
	unlock, err := s.locker.Lock(ctx, lock.AccountKey(guildID, userID))
	if err != nil {
		return 0, err
	}
	defer unlock()

	var left int64
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		held, err := s.inventory.QuantityForUpdate(ctx, tx, guildID, userID, itemID)
		if err != nil {
			return err
		}
		if held < qty {
			return &InsufficientError{Resource: ResourceInventory, Required: qty, Available: held}
		}
		ok, err := s.inventory.Remove(ctx, tx, guildID, userID, itemID, qty)
		if err != nil {
			return commitFailed(err)
		}
		if !ok {
			return commitFailed(errors.New("inventory changed during removal"))
		}
		left = held - qty
		return s.logMove(ctx, tx, actorID, guildID, userID, itemID, qty, action)
	})
	if err != nil {
		return 0, normalizeCommitError(err)
	}
	return left, nil
}

func (s *InventoryService) logMove(ctx context.Context, tx *sqlx.Tx, actorID, guildID, userID string, itemID, qty int64, action string) error {
	data, err := json.Marshal(map[string]string{"user_id": userID})
	if err != nil {
		return err
	}
	return s.audit.Log(ctx, tx, models.AuditEntry{
		GuildID:  guildID,
		ActorID:  actorID,
		Action:   action,
		ItemID:   &itemID,
		Quantity: qty,
		Data:     string(data),
	})
}
