package bot

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"shopbot/internal/logger"
	"shopbot/internal/models"
	"shopbot/internal/permissions"
	"shopbot/internal/resolver"
	"shopbot/internal/services"
)

type sentMessage struct {
	ID        string
	ChannelID string
	Content   string
}

// fakePlatform records sent messages and answers WaitFor from a queue of
// scripted replies.
type fakePlatform struct {
	mu      sync.Mutex
	nextID  int
	sent    []sentMessage
	deleted []string
	replies []Message
}

func (p *fakePlatform) Send(_ context.Context, channelID, content string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	id := fmt.Sprintf("out-%d", p.nextID)
	p.sent = append(p.sent, sentMessage{ID: id, ChannelID: channelID, Content: content})
	return id, nil
}

func (p *fakePlatform) Delete(_ context.Context, _, messageID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deleted = append(p.deleted, messageID)
	return nil
}

func (p *fakePlatform) WaitFor(_ context.Context, match func(Message) bool, _ time.Duration) (Message, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, msg := range p.replies {
		if match(msg) {
			p.replies = append(p.replies[:i], p.replies[i+1:]...)
			return msg, nil
		}
	}
	return Message{}, resolver.ErrNoReply
}

func (p *fakePlatform) queueReply(msg Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.replies = append(p.replies, msg)
}

func (p *fakePlatform) last() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.sent) == 0 {
		return ""
	}
	return p.sent[len(p.sent)-1].Content
}

func (p *fakePlatform) contents() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.sent))
	for _, m := range p.sent {
		out = append(out, m.Content)
	}
	return out
}

type stubPolicy struct {
	allowedFn func(ctx context.Context, guildID, command string, subject permissions.Subject) (bool, error)
}

func (s stubPolicy) Allowed(ctx context.Context, guildID, command string, subject permissions.Subject) (bool, error) {
	if s.allowedFn == nil {
		return true, nil
	}
	return s.allowedFn(ctx, guildID, command, subject)
}

type stubCatalog struct {
	items []models.Item
}

func (s stubCatalog) List(_ context.Context, guildID string, listedOnly bool) ([]models.Item, error) {
	var out []models.Item
	for _, item := range s.items {
		if item.GuildID == guildID && (!listedOnly || item.IsListed) {
			out = append(out, item)
		}
	}
	return out, nil
}

func (s stubCatalog) StockView(_ context.Context, item models.Item) (services.StockView, error) {
	if item.StockTotal == nil {
		return services.StockView{}, nil
	}
	return services.StockView{Tracked: true, Current: *item.StockTotal, Ceiling: *item.StockTotal, RestockPerDay: item.RestockPerDay}, nil
}

func (s stubCatalog) Names(_ context.Context, _ string, ids []int64) (map[int64]string, error) {
	names := make(map[int64]string)
	for _, item := range s.items {
		for _, id := range ids {
			if item.ID == id {
				names[id] = item.Name
			}
		}
	}
	return names, nil
}

// resolverCatalog adapts stubCatalog to resolver.Catalog.
type resolverCatalog struct {
	catalog stubCatalog
}

func (r resolverCatalog) List(ctx context.Context, guildID string) ([]models.Item, error) {
	return r.catalog.List(ctx, guildID, false)
}

type stubShop struct {
	buyFn  func(ctx context.Context, req services.BuyRequest) (services.BuyResult, error)
	sellFn func(ctx context.Context, req services.SellRequest) (services.SellResult, error)
}

func (s stubShop) Buy(ctx context.Context, req services.BuyRequest) (services.BuyResult, error) {
	return s.buyFn(ctx, req)
}

func (s stubShop) Sell(ctx context.Context, req services.SellRequest) (services.SellResult, error) {
	return s.sellFn(ctx, req)
}

func (s stubShop) SellPrice(item models.Item) int64 {
	return item.Price / 2
}

type stubInventory struct {
	listFn     func(ctx context.Context, guildID, userID string) ([]models.InventoryEntry, error)
	quantityFn func(ctx context.Context, guildID, userID string, itemID int64) (int64, error)
	useFn      func(ctx context.Context, guildID, userID string, itemID, qty int64) (int64, error)
	giveFn     func(ctx context.Context, actorID, guildID, userID string, itemID, qty int64) (int64, error)
	takeFn     func(ctx context.Context, actorID, guildID, userID string, itemID, qty int64) (int64, error)
}

func (s stubInventory) List(ctx context.Context, guildID, userID string) ([]models.InventoryEntry, error) {
	return s.listFn(ctx, guildID, userID)
}

func (s stubInventory) Quantity(ctx context.Context, guildID, userID string, itemID int64) (int64, error) {
	if s.quantityFn == nil {
		return 0, nil
	}
	return s.quantityFn(ctx, guildID, userID, itemID)
}

func (s stubInventory) Use(ctx context.Context, guildID, userID string, itemID, qty int64) (int64, error) {
	return s.useFn(ctx, guildID, userID, itemID, qty)
}

func (s stubInventory) Give(ctx context.Context, actorID, guildID, userID string, itemID, qty int64) (int64, error) {
	return s.giveFn(ctx, actorID, guildID, userID, itemID, qty)
}

func (s stubInventory) Take(ctx context.Context, actorID, guildID, userID string, itemID, qty int64) (int64, error) {
	return s.takeFn(ctx, actorID, guildID, userID, itemID, qty)
}

type stubEconomy struct {
	balanceFn func(ctx context.Context, guildID, userID string) (int64, error)
	payFn     func(ctx context.Context, req services.PayRequest) (services.PayResult, error)
	workFn    func(ctx context.Context, guildID, userID string) (services.WorkResult, error)
	setWorkFn func(ctx context.Context, settings models.WorkSettings) (models.WorkSettings, error)
}

func (s stubEconomy) Balance(ctx context.Context, guildID, userID string) (int64, error) {
	if s.balanceFn == nil {
		return 0, nil
	}
	return s.balanceFn(ctx, guildID, userID)
}

func (s stubEconomy) Pay(ctx context.Context, req services.PayRequest) (services.PayResult, error) {
	return s.payFn(ctx, req)
}

func (s stubEconomy) Work(ctx context.Context, guildID, userID string) (services.WorkResult, error) {
	return s.workFn(ctx, guildID, userID)
}

func (s stubEconomy) SetWorkSettings(ctx context.Context, settings models.WorkSettings) (models.WorkSettings, error) {
	return s.setWorkFn(ctx, settings)
}

type stubRules struct {
	setFn    func(ctx context.Context, rule models.PermissionRule) error
	removeFn func(ctx context.Context, guildID, targetID, command string) (int64, error)
	listFn   func(ctx context.Context, guildID string) ([]models.PermissionRule, error)
}

func (s stubRules) Set(ctx context.Context, rule models.PermissionRule) error {
	return s.setFn(ctx, rule)
}

func (s stubRules) Remove(ctx context.Context, guildID, targetID, command string) (int64, error) {
	return s.removeFn(ctx, guildID, targetID, command)
}

func (s stubRules) List(ctx context.Context, guildID string) ([]models.PermissionRule, error) {
	return s.listFn(ctx, guildID)
}

const testGuild = "g1"

func testItems() []models.Item {
	stock := int64(5)
	return []models.Item{
		{ID: 1, GuildID: testGuild, Name: "Red Potion", PriceType: models.PriceCurrency, Price: 100, IsListed: true},
		{ID: 2, GuildID: testGuild, Name: "Blue Potion", PriceType: models.PriceCurrency, Price: 150, IsListed: true, StockTotal: &stock, RestockPerDay: 1},
		{ID: 3, GuildID: testGuild, Name: "Sword", PriceType: models.PriceItems, CostItems: []models.CostComponent{{ItemID: 1, Qty: 2}}, IsListed: true},
		{ID: 4, GuildID: testGuild, Name: "Hidden Gem", PriceType: models.PriceCurrency, Price: 999},
	}
}

// newTestBot wires a Bot over stubs and the real resolver. Fields left nil
// in deps are filled with defaults.
func newTestBot(deps Deps) (*Bot, *fakePlatform) {
	platform := &fakePlatform{}
	catalog := stubCatalog{items: testItems()}
	if deps.Platform == nil {
		deps.Platform = platform
	}
	if deps.Policy == nil {
		deps.Policy = stubPolicy{}
	}
	if deps.Catalog == nil {
		deps.Catalog = catalog
	}
	if deps.Resolver == nil {
		deps.Resolver = resolver.New(resolverCatalog{catalog: catalog}, resolver.NewDisambiguator(time.Second, 3, logger.Discard()))
	}
	if deps.Shop == nil {
		deps.Shop = stubShop{}
	}
	if deps.Inventory == nil {
		deps.Inventory = stubInventory{}
	}
	if deps.Economy == nil {
		deps.Economy = stubEconomy{}
	}
	if deps.Rules == nil {
		deps.Rules = stubRules{}
	}
	b := New(deps, Settings{Prefix: "!", CurrencySymbol: "$", PageSize: 2}, logger.Discard())
	return b, platform
}

func command(content string) Message {
	return Message{
		ID:          "in-1",
		GuildID:     testGuild,
		ChannelID:   "c1",
		AuthorID:    "u1",
		Content:     content,
		MemberRoles: []string{"r1"},
	}
}

func adminCommand(content string) Message {
	msg := command(content)
	msg.IsAdmin = true
	return msg
}

func replyFrom(userID, content string) Message {
	return Message{ID: "reply-" + content, GuildID: testGuild, ChannelID: "c1", AuthorID: userID, Content: content}
}

func containsAll(s string, parts ...string) bool {
	for _, p := range parts {
		if !strings.Contains(s, p) {
			return false
		}
	}
	return true
}
