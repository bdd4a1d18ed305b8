package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"shopbot/internal/db"
	"shopbot/internal/events"
	"shopbot/internal/lock"
	"shopbot/internal/models"
	"shopbot/internal/money"
	"shopbot/internal/store"
	"shopbot/internal/websocket"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type ItemStore interface {
	GetForShare(ctx context.Context, tx store.Getter, guildID string, itemID int64) (models.Item, error)
	ListByIDs(ctx context.Context, guildID string, ids []int64) ([]models.Item, error)
}

type BalanceStore interface {
	GetForUpdate(ctx context.Context, tx store.Getter, guildID, userID string) (int64, error)
	Adjust(ctx context.Context, tx store.Getter, guildID, userID string, delta int64) (int64, error)
}

type InventoryStore interface {
	QuantityForUpdate(ctx context.Context, tx store.Getter, guildID, userID string, itemID int64) (int64, error)
	Add(ctx context.Context, tx store.Getter, guildID, userID string, itemID, qty int64) (int64, error)
	Remove(ctx context.Context, tx store.Execer, guildID, userID string, itemID, qty int64) (bool, error)
}

type StockStore interface {
	GetForUpdate(ctx context.Context, tx store.Getter, guildID string, itemID int64) (models.StockState, bool, error)
	Upsert(ctx context.Context, tx store.Execer, state models.StockState) error
}

type UsageStore interface {
	UsedForUpdate(ctx context.Context, tx store.Getter, guildID string, itemID int64, userID, day string) (int64, error)
	AddUsed(ctx context.Context, tx store.Execer, guildID string, itemID int64, userID, day string, qty int64) error
}

type AuditStore interface {
	Log(ctx context.Context, tx store.Execer, entry models.AuditEntry) error
}

// RoleManager changes member roles on the chat platform.
type RoleManager interface {
	AddRole(ctx context.Context, guildID, userID, roleID string) error
	RemoveRole(ctx context.Context, guildID, userID, roleID string) error
}

type BalanceHub interface {
	BroadcastBalance(guildID string, update websocket.BalanceUpdate)
}

type ShopDeps struct {
	TxRunner  db.TxRunner
	Locker    lock.Locker
	Items     ItemStore
	Balances  BalanceStore
	Inventory InventoryStore
	Stock     StockStore
	Usage     UsageStore
	Audit     AuditStore
	Roles     RoleManager
	Hub       BalanceHub
	Events    events.Publisher
}

type ShopService struct {
	ShopDeps
	sellFraction decimal.Decimal
	now          func() time.Time
	log          logrus.FieldLogger
}

func NewShopService(deps ShopDeps, sellFraction decimal.Decimal, log logrus.FieldLogger) *ShopService {
	if deps.Events == nil {
		deps.Events = events.NopPublisher{}
	}
	return &ShopService{
		ShopDeps:     deps,
		sellFraction: sellFraction,
		now:          time.Now,
		log:          log,
	}
}

// WithClock replaces the clock used for restock and quota days.
func (s *ShopService) WithClock(now func() time.Time) *ShopService {
	s.now = now
	return s
}

type BuyRequest struct {
	GuildID     string
	UserID      string
	MemberRoles []string
	ItemID      int64
	Quantity    int64
}

type BuyResult struct {
	Item         models.Item
	Quantity     int64
	Charged      int64
	Paid         []models.CostComponent
	Balance      int64
	Held         int64
	Stock        StockView
	RolesGranted []string
	RolesRemoved []string
}

type SellRequest struct {
	GuildID     string
	UserID      string
	MemberRoles []string
	ItemID      int64
	Quantity    int64
}

type SellResult struct {
	Item      models.Item
	Quantity  int64
	UnitPrice int64
	Credited  int64
	Balance   int64
	Held      int64
}

func (s *ShopService) Buy(ctx context.Context, req BuyRequest) (BuyResult, error) {
	if req.Quantity <= 0 {
		return BuyResult{}, ErrInvalidQuantity
	}
	unlock, err := s.Locker.Lock(ctx, lock.ItemKey(req.GuildID, req.ItemID), lock.AccountKey(req.GuildID, req.UserID))
	if err != nil {
		return BuyResult{}, err
	}
	defer unlock()

	now := s.now()
	day := DayKey(now)
	var result BuyResult
	err = s.TxRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		result = BuyResult{Quantity: req.Quantity}
		item, err := s.Items.GetForShare(ctx, tx, req.GuildID, req.ItemID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrItemNotFound
			}
			return err
		}
		result.Item = item

		if !item.IsListed {
			return denied(ErrItemNotListed)
		}
		if !hasAnyRole(req.MemberRoles, item.RolesRequiredBuy) {
			return denied(ErrMissingBuyRole, item.RolesRequiredBuy...)
		}

		var stock models.StockState
		if item.HasFiniteStock() {
			state, found, err := s.Stock.GetForUpdate(ctx, tx, req.GuildID, item.ID)
			if err != nil {
				return err
			}
			stock = RollStock(item, state, found, now)
			if stock.CurrentStock < req.Quantity {
				return &InsufficientError{Resource: ResourceStock, Required: req.Quantity, Available: stock.CurrentStock}
			}
		}

		if item.PerUserDailyLimit > 0 {
			used, err := s.Usage.UsedForUpdate(ctx, tx, req.GuildID, item.ID, req.UserID, day)
			if err != nil {
				return err
			}
			left := item.PerUserDailyLimit - used
			if left < 0 {
				left = 0
			}
			if req.Quantity > left {
				return &InsufficientError{Resource: ResourceQuota, Required: req.Quantity, Available: left}
			}
		}

		balance, err := s.Balances.GetForUpdate(ctx, tx, req.GuildID, req.UserID)
		if err != nil {
			return err
		}
		var total int64
		var cost []models.CostComponent
		if item.IsBarter() {
			cost, err = scaleCost(item.CostItems, req.Quantity)
			if err != nil {
				return err
			}
			var short []Shortfall
			for _, c := range cost {
				held, err := s.Inventory.QuantityForUpdate(ctx, tx, req.GuildID, req.UserID, c.ItemID)
				if err != nil {
					return err
				}
				if held < c.Qty {
					short = append(short, Shortfall{ItemID: c.ItemID, Required: c.Qty, Available: held})
				}
			}
			if len(short) > 0 {
				return &InsufficientError{Resource: ResourceItems, Shortfalls: short}
			}
		} else {
			if item.Price > 0 && req.Quantity > math.MaxInt64/item.Price {
				return ErrInvalidQuantity
			}
			total = item.Price * req.Quantity
			if balance < total {
				return &InsufficientError{Resource: ResourceBalance, Required: total, Available: balance}
			}
		}

		// Every check passed; from here on a failed write aborts the whole
		// transaction.
		if total > 0 {
			balance, err = s.Balances.Adjust(ctx, tx, req.GuildID, req.UserID, -total)
			if err != nil {
				return commitFailed(err)
			}
			if balance < 0 {
				return commitFailed(errors.New("balance went negative"))
			}
		}
		for _, c := range cost {
			ok, err := s.Inventory.Remove(ctx, tx, req.GuildID, req.UserID, c.ItemID, c.Qty)
			if err != nil {
				return commitFailed(err)
			}
			if !ok {
				return commitFailed(fmt.Errorf("component %d no longer held", c.ItemID))
			}
		}
		held, err := s.Inventory.Add(ctx, tx, req.GuildID, req.UserID, item.ID, req.Quantity)
		if err != nil {
			return commitFailed(err)
		}
		if item.HasFiniteStock() {
			stock.CurrentStock -= req.Quantity
			if err := s.Stock.Upsert(ctx, tx, stock); err != nil {
				return commitFailed(err)
			}
			result.Stock = viewOf(item, stock)
		}
		if item.PerUserDailyLimit > 0 {
			if err := s.Usage.AddUsed(ctx, tx, req.GuildID, item.ID, req.UserID, day, req.Quantity); err != nil {
				return commitFailed(err)
			}
		}
		data, err := json.Marshal(map[string]any{"price_type": item.PriceType, "components": cost, "day": day})
		if err != nil {
			return commitFailed(err)
		}
		itemID := item.ID
		if err := s.Audit.Log(ctx, tx, models.AuditEntry{
			GuildID:  req.GuildID,
			ActorID:  req.UserID,
			Action:   store.AuditItemPurchased,
			ItemID:   &itemID,
			Quantity: req.Quantity,
			Amount:   total,
			Data:     string(data),
		}); err != nil {
			return commitFailed(err)
		}

		result.Charged = total
		result.Paid = cost
		result.Balance = balance
		result.Held = held
		return nil
	})
	if err != nil {
		return BuyResult{}, s.finishError(ctx, req.GuildID, err)
	}

	result.RolesRemoved, result.RolesGranted = s.applyRoles(ctx, req, result.Item)
	s.Hub.BroadcastBalance(req.GuildID, websocket.BalanceUpdate{
		GuildID:  req.GuildID,
		UserID:   req.UserID,
		Reason:   events.ItemPurchased,
		Balance:  result.Balance,
		ItemID:   result.Item.ID,
		Quantity: result.Held,
	})
	s.publish(ctx, events.Event{
		Type:       events.ItemPurchased,
		GuildID:    req.GuildID,
		UserID:     req.UserID,
		ItemID:     result.Item.ID,
		ItemName:   result.Item.Name,
		Quantity:   req.Quantity,
		Amount:     result.Charged,
		Components: componentMap(result.Paid),
	})
	s.log.WithFields(logrus.Fields{
		"guild_id": req.GuildID,
		"user_id":  req.UserID,
		"item_id":  result.Item.ID,
		"quantity": req.Quantity,
		"charged":  result.Charged,
	}).Info("item purchased")
	return result, nil
}

func (s *ShopService) Sell(ctx context.Context, req SellRequest) (SellResult, error) {
	if req.Quantity <= 0 {
		return SellResult{}, ErrInvalidQuantity
	}
	unlock, err := s.Locker.Lock(ctx, lock.ItemKey(req.GuildID, req.ItemID), lock.AccountKey(req.GuildID, req.UserID))
	if err != nil {
		return SellResult{}, err
	}
	defer unlock()

	var result SellResult
	err = s.TxRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		result = SellResult{Quantity: req.Quantity}
		item, err := s.Items.GetForShare(ctx, tx, req.GuildID, req.ItemID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrItemNotFound
			}
			return err
		}
		result.Item = item

		if !hasAnyRole(req.MemberRoles, item.RolesRequiredSell) {
			return denied(ErrMissingSellRole, item.RolesRequiredSell...)
		}
		if item.DisallowSell {
			return denied(ErrSellDisallowed)
		}
		held, err := s.Inventory.QuantityForUpdate(ctx, tx, req.GuildID, req.UserID, item.ID)
		if err != nil {
			return err
		}
		if held < req.Quantity {
			return &InsufficientError{Resource: ResourceInventory, Required: req.Quantity, Available: held}
		}
		unit := money.SellPrice(item.Price, item.SellPrice, s.sellFraction)
		if unit > 0 && req.Quantity > math.MaxInt64/unit {
			return ErrInvalidQuantity
		}
		credit := unit * req.Quantity

		ok, err := s.Inventory.Remove(ctx, tx, req.GuildID, req.UserID, item.ID, req.Quantity)
		if err != nil {
			return commitFailed(err)
		}
		if !ok {
			return commitFailed(fmt.Errorf("item %d no longer held", item.ID))
		}
		balance, err := s.Balances.Adjust(ctx, tx, req.GuildID, req.UserID, credit)
		if err != nil {
			return commitFailed(err)
		}
		itemID := item.ID
		if err := s.Audit.Log(ctx, tx, models.AuditEntry{
			GuildID:  req.GuildID,
			ActorID:  req.UserID,
			Action:   store.AuditItemSold,
			ItemID:   &itemID,
			Quantity: req.Quantity,
			Amount:   credit,
		}); err != nil {
			return commitFailed(err)
		}
		result.UnitPrice = unit
		result.Credited = credit
		result.Balance = balance
		result.Held = held - req.Quantity
		return nil
	})
	if err != nil {
		return SellResult{}, s.finishError(ctx, req.GuildID, err)
	}

	s.Hub.BroadcastBalance(req.GuildID, websocket.BalanceUpdate{
		GuildID:  req.GuildID,
		UserID:   req.UserID,
		Reason:   events.ItemSold,
		Balance:  result.Balance,
		ItemID:   result.Item.ID,
		Quantity: result.Held,
	})
	s.publish(ctx, events.Event{
		Type:     events.ItemSold,
		GuildID:  req.GuildID,
		UserID:   req.UserID,
		ItemID:   result.Item.ID,
		ItemName: result.Item.Name,
		Quantity: req.Quantity,
		Amount:   result.Credited,
	})
	s.log.WithFields(logrus.Fields{
		"guild_id": req.GuildID,
		"user_id":  req.UserID,
		"item_id":  result.Item.ID,
		"quantity": req.Quantity,
		"credited": result.Credited,
	}).Info("item sold")
	return result, nil
}

// SellPrice is the unit price paid back for item.
func (s *ShopService) SellPrice(item models.Item) int64 {
	return money.SellPrice(item.Price, item.SellPrice, s.sellFraction)
}

// finishError names barter shortfalls and folds exhausted retries and failed
// writes into ErrCommitFailed.
func (s *ShopService) finishError(ctx context.Context, guildID string, err error) error {
	var insufficient *InsufficientError
	if errors.As(err, &insufficient) && len(insufficient.Shortfalls) > 0 {
		ids := make([]int64, 0, len(insufficient.Shortfalls))
		for _, sf := range insufficient.Shortfalls {
			ids = append(ids, sf.ItemID)
		}
		if items, lookupErr := s.Items.ListByIDs(ctx, guildID, ids); lookupErr == nil {
			names := make(map[int64]string, len(items))
			for _, it := range items {
				names[it.ID] = it.Name
			}
			for i := range insufficient.Shortfalls {
				insufficient.Shortfalls[i].Name = names[insufficient.Shortfalls[i].ItemID]
			}
		}
		return err
	}
	if errors.Is(err, db.ErrRetryLimit) || db.IsRetryable(err) {
		s.log.WithError(err).WithField("guild_id", guildID).Error("shop transaction kept conflicting")
		return ErrCommitFailed
	}
	if errors.Is(err, ErrCommitFailed) {
		s.log.WithError(err).WithField("guild_id", guildID).Error("shop transaction failed after validation")
		return ErrCommitFailed
	}
	return err
}

func (s *ShopService) applyRoles(ctx context.Context, req BuyRequest, item models.Item) (removed, granted []string) {
	if s.Roles == nil {
		return nil, nil
	}
	log := s.log.WithFields(logrus.Fields{"guild_id": req.GuildID, "user_id": req.UserID, "item_id": item.ID})
	for _, role := range item.RolesRemovedOnBuy {
		if !containsRole(req.MemberRoles, role) {
			continue
		}
		if err := s.Roles.RemoveRole(ctx, req.GuildID, req.UserID, role); err != nil {
			log.WithError(err).WithField("role_id", role).Warn("remove role after purchase")
			continue
		}
		removed = append(removed, role)
	}
	for _, role := range item.RolesGrantedOnBuy {
		if containsRole(req.MemberRoles, role) && !containsRole(removed, role) {
			continue
		}
		if err := s.Roles.AddRole(ctx, req.GuildID, req.UserID, role); err != nil {
			log.WithError(err).WithField("role_id", role).Warn("grant role after purchase")
			continue
		}
		granted = append(granted, role)
	}
	return removed, granted
}

func (s *ShopService) publish(ctx context.Context, event events.Event) {
	if err := s.Events.Publish(ctx, event); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{"guild_id": event.GuildID, "type": event.Type}).Warn("publish shop event")
	}
}

func commitFailed(err error) error {
	return fmt.Errorf("%w: %w", ErrCommitFailed, err)
}

func scaleCost(components []models.CostComponent, quantity int64) ([]models.CostComponent, error) {
	out := make([]models.CostComponent, 0, len(components))
	for _, c := range components {
		if c.Qty > 0 && quantity > math.MaxInt64/c.Qty {
			return nil, ErrInvalidQuantity
		}
		out = append(out, models.CostComponent{ItemID: c.ItemID, Qty: c.Qty * quantity})
	}
	return out, nil
}

func componentMap(components []models.CostComponent) map[int64]int64 {
	if len(components) == 0 {
		return nil
	}
	out := make(map[int64]int64, len(components))
	for _, c := range components {
		out[c.ItemID] += c.Qty
	}
	return out
}

// hasAnyRole is true when required is empty or the member holds one of it.
func hasAnyRole(memberRoles, required []string) bool {
	if len(required) == 0 {
		return true
	}
	for _, r := range required {
		if containsRole(memberRoles, r) {
			return true
		}
	}
	return false
}

func containsRole(roles []string, role string) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
