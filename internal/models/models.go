package models

import "time"

const (
	PriceCurrency = "currency"
	PriceItems    = "items"
)

type CostComponent struct {
	ItemID int64 `json:"item_id"`
	Qty    int64 `json:"qty"`
}

type Item struct {
	ID                int64           `json:"id"`
	GuildID           string          `json:"guild_id"`
	Name              string          `json:"name"`
	Description       string          `json:"description"`
	PriceType         string          `json:"price_type"`
	Price             int64           `json:"price"`
	CostItems         []CostComponent `json:"cost_items"`
	SellPrice         *int64          `json:"sell_price,omitempty"`
	DisallowSell      bool            `json:"disallow_sell"`
	IsListed          bool            `json:"is_listed"`
	StockTotal        *int64          `json:"stock_total,omitempty"`
	RestockPerDay     int64           `json:"restock_per_day"`
	PerUserDailyLimit int64           `json:"per_user_daily_limit"`
	RolesRequiredBuy  []string        `json:"roles_required_buy"`
	RolesRequiredSell []string        `json:"roles_required_sell"`
	RolesGrantedOnBuy []string        `json:"roles_granted_on_buy"`
	RolesRemovedOnBuy []string        `json:"roles_removed_on_buy"`
	CreatedAt         time.Time       `json:"created_at"`
}

func (i Item) IsBarter() bool {
	return i.PriceType == PriceItems
}

func (i Item) HasFiniteStock() bool {
	return i.StockTotal != nil
}

type StockState struct {
	GuildID        string `db:"guild_id" json:"guild_id"`
	ItemID         int64  `db:"item_id" json:"item_id"`
	CurrentStock   int64  `db:"current_stock" json:"current_stock"`
	LastRestockDay string `db:"last_restock_day" json:"last_restock_day"`
}

type DailyUsage struct {
	GuildID string `db:"guild_id" json:"guild_id"`
	ItemID  int64  `db:"item_id" json:"item_id"`
	UserID  string `db:"user_id" json:"user_id"`
	Day     string `db:"day" json:"day"`
	Used    int64  `db:"used" json:"used"`
}

type InventoryEntry struct {
	GuildID     string `db:"guild_id" json:"guild_id"`
	UserID      string `db:"user_id" json:"user_id"`
	ItemID      int64  `db:"item_id" json:"item_id"`
	Name        string `db:"name" json:"name"`
	Description string `db:"description" json:"description"`
	Quantity    int64  `db:"quantity" json:"quantity"`
}

type Balance struct {
	GuildID string `db:"guild_id" json:"guild_id"`
	UserID  string `db:"user_id" json:"user_id"`
	Balance int64  `db:"balance" json:"balance"`
}

const (
	TargetUser = "user"
	TargetRole = "role"

	EffectAllow = "allow"
	EffectDeny  = "deny"

	AllCommands = "*"
)

type PermissionRule struct {
	GuildID    string `db:"guild_id" json:"guild_id"`
	TargetID   string `db:"target_id" json:"target_id"`
	TargetType string `db:"target_type" json:"target_type"`
	Effect     string `db:"effect" json:"effect"`
	Command    string `db:"command_name" json:"command_name"`
}

type WorkSettings struct {
	GuildID   string        `json:"guild_id"`
	MinIncome int64         `json:"min_income"`
	MaxIncome int64         `json:"max_income"`
	Cooldown  time.Duration `json:"cooldown"`
}

type AuditEntry struct {
	ID        string    `db:"id" json:"id"`
	GuildID   string    `db:"guild_id" json:"guild_id"`
	ActorID   string    `db:"actor_id" json:"actor_id"`
	Action    string    `db:"action" json:"action"`
	ItemID    *int64    `db:"item_id" json:"item_id,omitempty"`
	Quantity  int64     `db:"quantity" json:"quantity"`
	Amount    int64     `db:"amount" json:"amount"`
	Data      string    `db:"data" json:"data"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
