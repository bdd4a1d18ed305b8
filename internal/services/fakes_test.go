package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"shopbot/internal/events"
	"shopbot/internal/models"
	"shopbot/internal/store"
	"shopbot/internal/websocket"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type fakeTxRunner struct {
	err error
}

func (f fakeTxRunner) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	if f.err != nil {
		return f.err
	}
	return fn(nil)
}

// memTxRunner restores the world when fn fails. Callers running concurrent
// transactions must hold the entity locks, as the services do.
type memTxRunner struct {
	world *memWorld
}

func (r memTxRunner) WithTx(_ context.Context, fn func(*sqlx.Tx) error) error {
	snap := r.world.snapshot()
	if err := fn(nil); err != nil {
		r.world.restore(snap)
		return err
	}
	return nil
}

type invKey struct {
	guild, user string
	item        int64
}

type usageKey struct {
	guild, user, day string
	item             int64
}

type memState struct {
	items     map[int64]models.Item
	balances  map[string]int64
	inventory map[invKey]int64
	stock     map[int64]models.StockState
	usage     map[usageKey]int64
	audit     []models.AuditEntry
}

type memWorld struct {
	mu sync.Mutex
	memState
	failRemove map[int64]bool
	lastWorked map[string]time.Time
	settings   map[string]models.WorkSettings
}

func newWorld() *memWorld {
	return &memWorld{
		memState: memState{
			items:     map[int64]models.Item{},
			balances:  map[string]int64{},
			inventory: map[invKey]int64{},
			stock:     map[int64]models.StockState{},
			usage:     map[usageKey]int64{},
		},
		failRemove: map[int64]bool{},
		lastWorked: map[string]time.Time{},
		settings:   map[string]models.WorkSettings{},
	}
}

func (w *memWorld) snapshot() memState {
	w.mu.Lock()
	defer w.mu.Unlock()
	s := memState{
		items:     make(map[int64]models.Item, len(w.items)),
		balances:  make(map[string]int64, len(w.balances)),
		inventory: make(map[invKey]int64, len(w.inventory)),
		stock:     make(map[int64]models.StockState, len(w.stock)),
		usage:     make(map[usageKey]int64, len(w.usage)),
		audit:     append([]models.AuditEntry(nil), w.audit...),
	}
	for k, v := range w.items {
		s.items[k] = v
	}
	for k, v := range w.balances {
		s.balances[k] = v
	}
	for k, v := range w.inventory {
		s.inventory[k] = v
	}
	for k, v := range w.stock {
		s.stock[k] = v
	}
	for k, v := range w.usage {
		s.usage[k] = v
	}
	return s
}

func (w *memWorld) restore(s memState) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.memState = s
}

func (w *memWorld) addItem(item models.Item) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if item.GuildID == "" {
		item.GuildID = "g1"
	}
	w.items[item.ID] = item
}

func (w *memWorld) setBalance(user string, balance int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.balances["g1|"+user] = balance
}

func (w *memWorld) balance(user string) int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.balances["g1|"+user]
}

func (w *memWorld) setHeld(user string, item, qty int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.inventory[invKey{"g1", user, item}] = qty
}

func (w *memWorld) held(user string, item int64) int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.inventory[invKey{"g1", user, item}]
}

func (w *memWorld) stockOf(item int64) (models.StockState, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	s, ok := w.stock[item]
	return s, ok
}

func (w *memWorld) auditCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.audit)
}

// ItemStore

func (w *memWorld) GetByID(_ context.Context, guildID string, itemID int64) (models.Item, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	item, ok := w.items[itemID]
	if !ok || item.GuildID != guildID {
		return models.Item{}, store.ErrNotFound
	}
	return item, nil
}

func (w *memWorld) GetForShare(ctx context.Context, _ store.Getter, guildID string, itemID int64) (models.Item, error) {
	return w.GetByID(ctx, guildID, itemID)
}

func (w *memWorld) GetByName(_ context.Context, guildID, name string) (models.Item, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, item := range w.items {
		if item.GuildID == guildID && store.NameKey(item.Name) == store.NameKey(name) {
			return item, nil
		}
	}
	return models.Item{}, store.ErrNotFound
}

func (w *memWorld) List(_ context.Context, guildID string) ([]models.Item, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []models.Item
	for _, item := range w.items {
		if item.GuildID == guildID {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return store.NameKey(out[i].Name) < store.NameKey(out[j].Name) })
	return out, nil
}

func (w *memWorld) ListByIDs(_ context.Context, guildID string, ids []int64) ([]models.Item, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []models.Item
	for _, id := range ids {
		if item, ok := w.items[id]; ok && item.GuildID == guildID {
			out = append(out, item)
		}
	}
	return out, nil
}

func (w *memWorld) Create(_ context.Context, _ store.Getter, item models.Item) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, existing := range w.items {
		if existing.GuildID == item.GuildID && store.NameKey(existing.Name) == store.NameKey(item.Name) {
			return 0, errDuplicate
		}
	}
	item.ID = int64(len(w.items) + 100)
	w.items[item.ID] = item
	return item.ID, nil
}

func (w *memWorld) Update(_ context.Context, _ store.Execer, item models.Item) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.items[item.ID]; !ok {
		return 0, nil
	}
	w.items[item.ID] = item
	return 1, nil
}

// BalanceStore

func (w *memWorld) Get(_ context.Context, guildID, userID string) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.balances[guildID+"|"+userID], nil
}

func (w *memWorld) GetForUpdate(ctx context.Context, _ store.Getter, guildID, userID string) (int64, error) {
	return w.Get(ctx, guildID, userID)
}

func (w *memWorld) Adjust(_ context.Context, _ store.Getter, guildID, userID string, delta int64) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.balances[guildID+"|"+userID] += delta
	return w.balances[guildID+"|"+userID], nil
}

// InventoryStore

func (w *memWorld) Quantity(_ context.Context, guildID, userID string, itemID int64) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.inventory[invKey{guildID, userID, itemID}], nil
}

func (w *memWorld) QuantityForUpdate(ctx context.Context, _ store.Getter, guildID, userID string, itemID int64) (int64, error) {
	return w.Quantity(ctx, guildID, userID, itemID)
}

func (w *memWorld) Add(_ context.Context, _ store.Getter, guildID, userID string, itemID, qty int64) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	k := invKey{guildID, userID, itemID}
	w.inventory[k] += qty
	return w.inventory[k], nil
}

func (w *memWorld) Remove(_ context.Context, _ store.Execer, guildID, userID string, itemID, qty int64) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.failRemove[itemID] {
		return false, nil
	}
	k := invKey{guildID, userID, itemID}
	if w.inventory[k] < qty {
		return false, nil
	}
	w.inventory[k] -= qty
	if w.inventory[k] == 0 {
		delete(w.inventory, k)
	}
	return true, nil
}

func (w *memWorld) ListByUser(_ context.Context, guildID, userID string) ([]models.InventoryEntry, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []models.InventoryEntry
	for k, qty := range w.inventory {
		if k.guild == guildID && k.user == userID {
			out = append(out, models.InventoryEntry{GuildID: guildID, UserID: userID, ItemID: k.item, Name: w.items[k.item].Name, Quantity: qty})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })
	return out, nil
}

// stock, usage and audit live on small adapters because their method names
// collide with the item and balance stores.

type memStock struct{ w *memWorld }

func (s memStock) Get(_ context.Context, _ string, itemID int64) (models.StockState, bool, error) {
	st, ok := s.w.stockOf(itemID)
	return st, ok, nil
}

func (s memStock) GetForUpdate(ctx context.Context, _ store.Getter, guildID string, itemID int64) (models.StockState, bool, error) {
	return s.Get(ctx, guildID, itemID)
}

func (s memStock) Upsert(_ context.Context, _ store.Execer, state models.StockState) error {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	if state.CurrentStock < 0 {
		return errors.New("check constraint violated")
	}
	s.w.stock[state.ItemID] = state
	return nil
}

func (s memStock) Reset(_ context.Context, _ store.Execer, _ string, itemID int64) error {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	delete(s.w.stock, itemID)
	return nil
}

type memUsage struct{ w *memWorld }

func (u memUsage) UsedForUpdate(_ context.Context, _ store.Getter, guildID string, itemID int64, userID, day string) (int64, error) {
	u.w.mu.Lock()
	defer u.w.mu.Unlock()
	return u.w.usage[usageKey{guildID, userID, day, itemID}], nil
}

func (u memUsage) AddUsed(_ context.Context, _ store.Execer, guildID string, itemID int64, userID, day string, qty int64) error {
	u.w.mu.Lock()
	defer u.w.mu.Unlock()
	u.w.usage[usageKey{guildID, userID, day, itemID}] += qty
	return nil
}

type memAudit struct{ w *memWorld }

func (a memAudit) Log(_ context.Context, _ store.Execer, entry models.AuditEntry) error {
	a.w.mu.Lock()
	defer a.w.mu.Unlock()
	a.w.audit = append(a.w.audit, entry)
	return nil
}

type memWork struct{ w *memWorld }

func (m memWork) Settings(_ context.Context, guildID string) (models.WorkSettings, error) {
	m.w.mu.Lock()
	defer m.w.mu.Unlock()
	if s, ok := m.w.settings[guildID]; ok {
		return s, nil
	}
	return models.WorkSettings{GuildID: guildID, MinIncome: 10, MaxIncome: 50, Cooldown: time.Hour}, nil
}

func (m memWork) SetSettings(_ context.Context, settings models.WorkSettings) error {
	m.w.mu.Lock()
	defer m.w.mu.Unlock()
	m.w.settings[settings.GuildID] = settings
	return nil
}

func (m memWork) LastWorkedForUpdate(_ context.Context, _ store.Getter, guildID, userID string) (time.Time, error) {
	m.w.mu.Lock()
	defer m.w.mu.Unlock()
	return m.w.lastWorked[guildID+"|"+userID], nil
}

func (m memWork) SetLastWorked(_ context.Context, _ store.Execer, guildID, userID string, at time.Time) error {
	m.w.mu.Lock()
	defer m.w.mu.Unlock()
	m.w.lastWorked[guildID+"|"+userID] = at
	return nil
}

var errDuplicate = &pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"}

type stubHub struct {
	mu    sync.Mutex
	calls []websocket.BalanceUpdate
}

func (s *stubHub) BroadcastBalance(_ string, update websocket.BalanceUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, update)
}

type stubRoles struct {
	mu      sync.Mutex
	ops     []string
	failAdd map[string]bool
}

func (s *stubRoles) AddRole(_ context.Context, _, _, roleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAdd[roleID] {
		return errors.New("missing permissions")
	}
	s.ops = append(s.ops, "+"+roleID)
	return nil
}

func (s *stubRoles) RemoveRole(_ context.Context, _, _, roleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = append(s.ops, "-"+roleID)
	return nil
}

type stubPublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (s *stubPublisher) Publish(_ context.Context, event events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return s.err
}

func int64Ptr(v int64) *int64 { return &v }

var testDay = time.Date(2024, 5, 1, 15, 0, 0, 0, time.UTC)
