package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"shopbot/internal/models"

	"github.com/lib/pq"
)

type ItemStore struct {
	db DB
}

type itemRow struct {
	ID                int64          `db:"id"`
	GuildID           string         `db:"guild_id"`
	Name              string         `db:"name"`
	Description       string         `db:"description"`
	PriceType         string         `db:"price_type"`
	Price             int64          `db:"price"`
	CostItems         []byte         `db:"cost_items"`
	SellPrice         *int64         `db:"sell_price"`
	DisallowSell      bool           `db:"disallow_sell"`
	IsListed          bool           `db:"is_listed"`
	StockTotal        *int64         `db:"stock_total"`
	RestockPerDay     int64          `db:"restock_per_day"`
	PerUserDailyLimit int64          `db:"per_user_daily_limit"`
	RolesRequiredBuy  pq.StringArray `db:"roles_required_buy"`
	RolesRequiredSell pq.StringArray `db:"roles_required_sell"`
	RolesGrantedOnBuy pq.StringArray `db:"roles_granted_on_buy"`
	RolesRemovedOnBuy pq.StringArray `db:"roles_removed_on_buy"`
	CreatedAt         time.Time      `db:"created_at"`
}

const itemColumns = `id, guild_id, name, description, price_type, price, cost_items, sell_price,
		       disallow_sell, is_listed, stock_total, restock_per_day, per_user_daily_limit,
		       roles_required_buy, roles_required_sell, roles_granted_on_buy, roles_removed_on_buy,
		       created_at`

func NewItemStore(db DB) *ItemStore {
	return &ItemStore{db: db}
}

func (s *ItemStore) Create(ctx context.Context, tx Getter, item models.Item) (int64, error) {
	costItems, err := encodeCostItems(item.CostItems)
	if err != nil {
		return 0, err
	}
	var id int64
	err = tx.GetContext(ctx, &id, `
		INSERT INTO items (guild_id, name, name_lower, description, price_type, price, cost_items, sell_price,
		                   disallow_sell, is_listed, stock_total, restock_per_day, per_user_daily_limit,
		                   roles_required_buy, roles_required_sell, roles_granted_on_buy, roles_removed_on_buy)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING id
	`,
		item.GuildID, item.Name, NameKey(item.Name), item.Description, item.PriceType, item.Price, costItems, item.SellPrice,
		item.DisallowSell, item.IsListed, item.StockTotal, item.RestockPerDay, item.PerUserDailyLimit,
		pq.StringArray(roleSet(item.RolesRequiredBuy)), pq.StringArray(roleSet(item.RolesRequiredSell)),
		pq.StringArray(roleSet(item.RolesGrantedOnBuy)), pq.StringArray(roleSet(item.RolesRemovedOnBuy)),
	)
	return id, err
}

func (s *ItemStore) Update(ctx context.Context, tx Execer, item models.Item) (int64, error) {
	costItems, err := encodeCostItems(item.CostItems)
	if err != nil {
		return 0, err
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE items
		SET name = $3, name_lower = $4, description = $5, price_type = $6, price = $7, cost_items = $8,
		    sell_price = $9, disallow_sell = $10, is_listed = $11, stock_total = $12, restock_per_day = $13,
		    per_user_daily_limit = $14, roles_required_buy = $15, roles_required_sell = $16,
		    roles_granted_on_buy = $17, roles_removed_on_buy = $18, updated_at = NOW()
		WHERE guild_id = $1 AND id = $2
	`,
		item.GuildID, item.ID, item.Name, NameKey(item.Name), item.Description, item.PriceType, item.Price, costItems,
		item.SellPrice, item.DisallowSell, item.IsListed, item.StockTotal, item.RestockPerDay, item.PerUserDailyLimit,
		pq.StringArray(roleSet(item.RolesRequiredBuy)), pq.StringArray(roleSet(item.RolesRequiredSell)),
		pq.StringArray(roleSet(item.RolesGrantedOnBuy)), pq.StringArray(roleSet(item.RolesRemovedOnBuy)),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *ItemStore) GetByID(ctx context.Context, guildID string, itemID int64) (models.Item, error) {
	return s.get(ctx, s.db, `SELECT `+itemColumns+` FROM items WHERE guild_id = $1 AND id = $2`, guildID, itemID)
}

// GetForShare reads the item inside a transaction and blocks concurrent
// catalog edits until it commits.
func (s *ItemStore) GetForShare(ctx context.Context, tx Getter, guildID string, itemID int64) (models.Item, error) {
	return s.get(ctx, tx, `SELECT `+itemColumns+` FROM items WHERE guild_id = $1 AND id = $2 FOR SHARE`, guildID, itemID)
}

func (s *ItemStore) GetByName(ctx context.Context, guildID, name string) (models.Item, error) {
	return s.get(ctx, s.db, `SELECT `+itemColumns+` FROM items WHERE guild_id = $1 AND name_lower = $2`, guildID, NameKey(name))
}

func (s *ItemStore) List(ctx context.Context, guildID string) ([]models.Item, error) {
	var rows []itemRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+itemColumns+`
		FROM items
		WHERE guild_id = $1
		ORDER BY name_lower
	`, guildID)
	if err != nil {
		return nil, err
	}
	return itemRowsToModels(rows)
}

func (s *ItemStore) ListByIDs(ctx context.Context, guildID string, ids []int64) ([]models.Item, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []itemRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+itemColumns+`
		FROM items
		WHERE guild_id = $1 AND id = ANY($2)
		ORDER BY id
	`, guildID, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	return itemRowsToModels(rows)
}

func (s *ItemStore) get(ctx context.Context, q Getter, query string, args ...any) (models.Item, error) {
	var row itemRow
	if err := q.GetContext(ctx, &row, query, args...); err != nil {
		return models.Item{}, notFound(err)
	}
	return row.toModel()
}

// NameKey is the case-insensitive uniqueness key of an item name.
func NameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func (r itemRow) toModel() (models.Item, error) {
	var costItems []models.CostComponent
	if len(r.CostItems) > 0 {
		if err := json.Unmarshal(r.CostItems, &costItems); err != nil {
			return models.Item{}, fmt.Errorf("decode cost_items of item %d: %w", r.ID, err)
		}
	}
	return models.Item{
		ID:                r.ID,
		GuildID:           r.GuildID,
		Name:              r.Name,
		Description:       r.Description,
		PriceType:         r.PriceType,
		Price:             r.Price,
		CostItems:         costItems,
		SellPrice:         r.SellPrice,
		DisallowSell:      r.DisallowSell,
		IsListed:          r.IsListed,
		StockTotal:        r.StockTotal,
		RestockPerDay:     r.RestockPerDay,
		PerUserDailyLimit: r.PerUserDailyLimit,
		RolesRequiredBuy:  []string(r.RolesRequiredBuy),
		RolesRequiredSell: []string(r.RolesRequiredSell),
		RolesGrantedOnBuy: []string(r.RolesGrantedOnBuy),
		RolesRemovedOnBuy: []string(r.RolesRemovedOnBuy),
		CreatedAt:         r.CreatedAt,
	}, nil
}

func itemRowsToModels(rows []itemRow) ([]models.Item, error) {
	items := make([]models.Item, 0, len(rows))
	for _, row := range rows {
		item, err := row.toModel()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func encodeCostItems(components []models.CostComponent) ([]byte, error) {
	if components == nil {
		components = []models.CostComponent{}
	}
	return json.Marshal(components)
}

// roleSet deduplicates and drops blanks; the result is never nil so the
// column keeps its NOT NULL default shape.
func roleSet(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
