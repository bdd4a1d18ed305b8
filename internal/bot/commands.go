package bot

import (
	"context"
	"fmt"
	"strings"

	"shopbot/internal/models"
	"shopbot/internal/money"
	"shopbot/internal/permissions"
	"shopbot/internal/resolver"
	"shopbot/internal/services"

	"github.com/sirupsen/logrus"
)

type ItemResolver interface {
	Resolve(ctx context.Context, conv resolver.Conversation, guildID, query string) (models.Item, error)
}

type Catalog interface {
	List(ctx context.Context, guildID string, listedOnly bool) ([]models.Item, error)
	StockView(ctx context.Context, item models.Item) (services.StockView, error)
	Names(ctx context.Context, guildID string, ids []int64) (map[int64]string, error)
}

type Shop interface {
	Buy(ctx context.Context, req services.BuyRequest) (services.BuyResult, error)
	Sell(ctx context.Context, req services.SellRequest) (services.SellResult, error)
	SellPrice(item models.Item) int64
}

type Inventory interface {
	List(ctx context.Context, guildID, userID string) ([]models.InventoryEntry, error)
	Quantity(ctx context.Context, guildID, userID string, itemID int64) (int64, error)
	Use(ctx context.Context, guildID, userID string, itemID, qty int64) (int64, error)
	Give(ctx context.Context, actorID, guildID, userID string, itemID, qty int64) (int64, error)
	Take(ctx context.Context, actorID, guildID, userID string, itemID, qty int64) (int64, error)
}

type Economy interface {
	Balance(ctx context.Context, guildID, userID string) (int64, error)
	Pay(ctx context.Context, req services.PayRequest) (services.PayResult, error)
	Work(ctx context.Context, guildID, userID string) (services.WorkResult, error)
	SetWorkSettings(ctx context.Context, settings models.WorkSettings) (models.WorkSettings, error)
}

type PermissionRules interface {
	Set(ctx context.Context, rule models.PermissionRule) error
	Remove(ctx context.Context, guildID, targetID, command string) (int64, error)
	List(ctx context.Context, guildID string) ([]models.PermissionRule, error)
}

type Deps struct {
	Platform  Platform
	Policy    Authorizer
	Resolver  ItemResolver
	Catalog   Catalog
	Shop      Shop
	Inventory Inventory
	Economy   Economy
	Rules     PermissionRules
}

type Settings struct {
	Prefix         string
	CurrencySymbol string
	PageSize       int
}

// Bot owns the command set and the services the commands drive.
type Bot struct {
	Deps
	symbol   string
	pageSize int
	router   *Router
	log      logrus.FieldLogger
}

func New(deps Deps, settings Settings, log logrus.FieldLogger) *Bot {
	pageSize := settings.PageSize
	if pageSize <= 0 {
		pageSize = 5
	}
	b := &Bot{
		Deps:     deps,
		symbol:   settings.CurrencySymbol,
		pageSize: pageSize,
		log:      log,
	}
	b.router = NewRouter(settings.Prefix, deps.Platform, deps.Policy, settings.CurrencySymbol, log)
	b.router.Register(b.commands()...)
	return b
}

// Handle is the platform's message callback.
func (b *Bot) Handle(ctx context.Context, msg Message) {
	b.router.Handle(ctx, msg)
}

func (b *Bot) commands() []Command {
	return []Command{
		{Name: "help", Usage: "help", Summary: "list commands", Run: b.help},
		{Name: "shop", Usage: "shop [page]", Summary: "browse the shop", Run: b.shop},
		{Name: "item-info", Aliases: []string{"iteminfo", "ii"}, Usage: "item-info <name|id>", Summary: "show item details", Run: b.itemInfo},
		{Name: "buy", Usage: "buy [qty] <name|id>", Summary: "buy an item", Run: b.buy},
		{Name: "sell", Usage: "sell [qty] <name|id>", Summary: "sell an item", Run: b.sell},
		{Name: "inventory", Aliases: []string{"inv", "инв"}, Usage: "inventory [page]", Summary: "show your items", Run: b.inventory},
		{Name: "use", Usage: "use <name|id> [qty]", Summary: "use an item", Run: b.use},
		{Name: "give-item", AdminOnly: true, Usage: "give-item @user <name|id> [qty]", Summary: "give an item to a member", Run: b.giveItem},
		{Name: "take-item", AdminOnly: true, Usage: "take-item @user <name|id> [qty]", Summary: "take an item from a member", Run: b.takeItem},
		{Name: "balance", Aliases: []string{"bal"}, Usage: "balance [@user]", Summary: "show a balance", Run: b.balance},
		{Name: "pay", Usage: "pay @user <amount>", Summary: "send money", Run: b.pay},
		{Name: "work", Usage: "work", Summary: "earn money", Run: b.work},
		{Name: "set-work", AdminOnly: true, Usage: "set-work <min> <max> <cooldown>", Summary: "configure work income", Run: b.setWork},
		{Name: "perms", AdminOnly: true, Usage: "perms allow|deny @target <command|*> · perms remove @target [command] · perms list", Summary: "manage command permissions", Run: b.perms},
	}
}

func (b *Bot) conversation(msg Message) *conversation {
	return newConversation(b.Platform, msg, b.symbol)
}

func (b *Bot) resolve(ctx context.Context, msg Message, query string) (models.Item, error) {
	return b.Resolver.Resolve(ctx, b.conversation(msg), msg.GuildID, query)
}

// names looks up display names for barter components, best-effort.
func (b *Bot) names(ctx context.Context, guildID string, items ...models.Item) map[int64]string {
	var ids []int64
	for _, item := range items {
		for _, c := range item.CostItems {
			ids = append(ids, c.ItemID)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	names, err := b.Catalog.Names(ctx, guildID, ids)
	if err != nil {
		b.log.WithError(err).WithField("guild_id", guildID).Warn("failed to load cost item names")
		return nil
	}
	return names
}

func (b *Bot) help(ctx context.Context, call Call) (string, error) {
	var sb strings.Builder
	sb.WriteString("**Commands**\n")
	for _, name := range b.router.Names() {
		cmd, _ := b.router.Lookup(name)
		if cmd.AdminOnly && !call.Msg.IsAdmin {
			continue
		}
		fmt.Fprintf(&sb, "`%s%s`: %s\n", b.router.prefix, cmd.Usage, cmd.Summary)
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

func (b *Bot) shop(ctx context.Context, call Call) (string, error) {
	page, err := pageArg(call.Args)
	if err != nil {
		return "", err
	}
	items, err := b.Catalog.List(ctx, call.Msg.GuildID, true)
	if err != nil {
		return "", err
	}
	pageItems, page, pages := paginate(items, page, b.pageSize)
	lines := make([]shopLine, 0, len(pageItems))
	for _, item := range pageItems {
		view, err := b.Catalog.StockView(ctx, item)
		if err != nil {
			return "", err
		}
		lines = append(lines, shopLine{item: item, stock: view})
	}
	return renderShopPage(lines, b.names(ctx, call.Msg.GuildID, pageItems...), page, pages, b.symbol), nil
}

func (b *Bot) itemInfo(ctx context.Context, call Call) (string, error) {
	query := strings.TrimSpace(call.Args)
	if query == "" {
		return "", errUsage
	}
	msg := call.Msg
	item, err := b.resolve(ctx, msg, query)
	if err != nil {
		return "", err
	}
	view, err := b.Catalog.StockView(ctx, item)
	if err != nil {
		return "", err
	}
	held, err := b.Inventory.Quantity(ctx, msg.GuildID, msg.AuthorID, item.ID)
	if err != nil {
		return "", err
	}
	balance, err := b.Economy.Balance(ctx, msg.GuildID, msg.AuthorID)
	if err != nil {
		return "", err
	}
	info := itemInfo{item: item, stock: view, sellPrice: b.Shop.SellPrice(item), held: held, balance: balance}
	return renderItemInfo(info, b.names(ctx, msg.GuildID, item), b.symbol), nil
}

func (b *Bot) buy(ctx context.Context, call Call) (string, error) {
	qty, query, err := qtyThenQuery(call.Args)
	if err != nil {
		return "", err
	}
	msg := call.Msg
	item, err := b.resolve(ctx, msg, query)
	if err != nil {
		return "", err
	}
	result, err := b.Shop.Buy(ctx, services.BuyRequest{
		GuildID:     msg.GuildID,
		UserID:      msg.AuthorID,
		MemberRoles: msg.MemberRoles,
		ItemID:      item.ID,
		Quantity:    qty,
	})
	if err != nil {
		return "", err
	}
	return renderBuy(result, b.names(ctx, msg.GuildID, result.Item), b.symbol), nil
}

func (b *Bot) sell(ctx context.Context, call Call) (string, error) {
	qty, query, err := qtyThenQuery(call.Args)
	if err != nil {
		return "", err
	}
	msg := call.Msg
	item, err := b.resolve(ctx, msg, query)
	if err != nil {
		return "", err
	}
	result, err := b.Shop.Sell(ctx, services.SellRequest{
		GuildID:     msg.GuildID,
		UserID:      msg.AuthorID,
		MemberRoles: msg.MemberRoles,
		ItemID:      item.ID,
		Quantity:    qty,
	})
	if err != nil {
		return "", err
	}
	return renderSell(result, b.symbol), nil
}

func (b *Bot) inventory(ctx context.Context, call Call) (string, error) {
	page, err := pageArg(call.Args)
	if err != nil {
		return "", err
	}
	entries, err := b.Inventory.List(ctx, call.Msg.GuildID, call.Msg.AuthorID)
	if err != nil {
		return "", err
	}
	pageEntries, page, pages := paginate(entries, page, b.pageSize)
	return renderInventory(pageEntries, page, pages), nil
}

func (b *Bot) use(ctx context.Context, call Call) (string, error) {
	query, qty, err := queryThenQty(call.Args)
	if err != nil {
		return "", err
	}
	msg := call.Msg
	item, err := b.resolve(ctx, msg, query)
	if err != nil {
		return "", err
	}
	left, err := b.Inventory.Use(ctx, msg.GuildID, msg.AuthorID, item.ID, qty)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("You used %d × **%s**. %d left.", qty, item.Name, left), nil
}

func (b *Bot) giveItem(ctx context.Context, call Call) (string, error) {
	target, item, qty, err := b.targetAndItem(ctx, call)
	if err != nil {
		return "", err
	}
	held, err := b.Inventory.Give(ctx, call.Msg.AuthorID, call.Msg.GuildID, target, item.ID, qty)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Gave %d × **%s** to %s. They now hold %d.", qty, item.Name, userMention(target), held), nil
}

func (b *Bot) takeItem(ctx context.Context, call Call) (string, error) {
	target, item, qty, err := b.targetAndItem(ctx, call)
	if err != nil {
		return "", err
	}
	left, err := b.Inventory.Take(ctx, call.Msg.AuthorID, call.Msg.GuildID, target, item.ID, qty)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Took %d × **%s** from %s. They now hold %d.", qty, item.Name, userMention(target), left), nil
}

func (b *Bot) targetAndItem(ctx context.Context, call Call) (string, models.Item, int64, error) {
	first, rest := splitFirst(call.Args)
	target, kind, ok := parseMention(first)
	if !ok || kind != mentionUser || rest == "" {
		return "", models.Item{}, 0, errUsage
	}
	query, qty, err := queryThenQty(rest)
	if err != nil {
		return "", models.Item{}, 0, err
	}
	item, err := b.resolve(ctx, call.Msg, query)
	if err != nil {
		return "", models.Item{}, 0, err
	}
	return target, item, qty, nil
}

func (b *Bot) balance(ctx context.Context, call Call) (string, error) {
	msg := call.Msg
	target := msg.AuthorID
	if arg := strings.TrimSpace(call.Args); arg != "" {
		id, kind, ok := parseMention(arg)
		if !ok || kind != mentionUser {
			return "", errUsage
		}
		target = id
	}
	amount, err := b.Economy.Balance(ctx, msg.GuildID, target)
	if err != nil {
		return "", err
	}
	if target == msg.AuthorID {
		return "Your balance: " + price(amount, b.symbol), nil
	}
	return fmt.Sprintf("Balance of %s: %s", userMention(target), price(amount, b.symbol)), nil
}

func (b *Bot) pay(ctx context.Context, call Call) (string, error) {
	msg := call.Msg
	first, rest := splitFirst(call.Args)
	target, kind, ok := parseMention(first)
	if !ok || kind != mentionUser || rest == "" {
		return "", errUsage
	}
	amount, err := money.ParseAmount(rest)
	if err != nil {
		return "", err
	}
	result, err := b.Economy.Pay(ctx, services.PayRequest{
		GuildID:    msg.GuildID,
		FromUserID: msg.AuthorID,
		ToUserID:   target,
		ToIsBot:    mentionsBot(msg, target),
		Amount:     amount,
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("You paid %s to %s. Balance: %s.", price(amount, b.symbol), userMention(target), price(result.FromBalance, b.symbol)), nil
}

func mentionsBot(msg Message, userID string) bool {
	for _, m := range msg.UserMentions {
		if m.ID == userID {
			return m.Bot
		}
	}
	return false
}

func (b *Bot) work(ctx context.Context, call Call) (string, error) {
	result, err := b.Economy.Work(ctx, call.Msg.GuildID, call.Msg.AuthorID)
	if err != nil {
		return "", err
	}
	return renderWork(result, b.symbol), nil
}

func (b *Bot) setWork(ctx context.Context, call Call) (string, error) {
	fields := strings.Fields(call.Args)
	if len(fields) < 3 {
		return "", errUsage
	}
	lo, err := parseIncome(fields[0])
	if err != nil {
		return "", err
	}
	hi, err := parseIncome(fields[1])
	if err != nil {
		return "", err
	}
	cooldown, err := parseDuration(strings.Join(fields[2:], " "))
	if err != nil {
		return "", err
	}
	settings, err := b.Economy.SetWorkSettings(ctx, models.WorkSettings{
		GuildID:   call.Msg.GuildID,
		MinIncome: lo,
		MaxIncome: hi,
		Cooldown:  cooldown,
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Work now pays %s to %s every %s.",
		price(settings.MinIncome, b.symbol), price(settings.MaxIncome, b.symbol), formatDuration(settings.Cooldown)), nil
}

// parseIncome accepts zero, unlike money.ParseAmount.
func parseIncome(s string) (int64, error) {
	if strings.TrimSpace(s) == "0" {
		return 0, nil
	}
	return money.ParseAmount(s)
}

func (b *Bot) perms(ctx context.Context, call Call) (string, error) {
	sub, rest := splitFirst(call.Args)
	guildID := call.Msg.GuildID
	switch strings.ToLower(sub) {
	case "list":
		rules, err := b.Rules.List(ctx, guildID)
		if err != nil {
			return "", err
		}
		return renderRules(rules), nil
	case models.EffectAllow, models.EffectDeny:
		target, command, ok := strings.Cut(rest, " ")
		if !ok {
			return "", errUsage
		}
		id, kind, ok := parseMention(target)
		if !ok {
			return "", errUsage
		}
		key, ok := b.commandKey(command)
		if !ok {
			return fmt.Sprintf("Unknown command `%s`.", strings.TrimSpace(command)), nil
		}
		rule := models.PermissionRule{
			GuildID:    guildID,
			TargetID:   id,
			TargetType: kind,
			Effect:     strings.ToLower(sub),
			Command:    key,
		}
		if err := b.Rules.Set(ctx, rule); err != nil {
			return "", err
		}
		return fmt.Sprintf("Rule saved: %s %s for %s.", rule.Effect, mentionText(id, kind), commandLabel(key)), nil
	case "remove":
		target, command := splitFirst(rest)
		id, kind, ok := parseMention(target)
		if !ok {
			return "", errUsage
		}
		key := ""
		if command != "" {
			if key, ok = b.commandKey(command); !ok {
				return fmt.Sprintf("Unknown command `%s`.", strings.TrimSpace(command)), nil
			}
		}
		removed, err := b.Rules.Remove(ctx, guildID, id, key)
		if err != nil {
			return "", err
		}
		if removed == 0 {
			return "No matching rules for " + mentionText(id, kind) + ".", nil
		}
		return fmt.Sprintf("Removed %d rule(s) for %s.", removed, mentionText(id, kind)), nil
	}
	return "", errUsage
}

// commandKey maps a typed command name or alias to the name rules are
// stored under.
func (b *Bot) commandKey(name string) (string, bool) {
	key := permissions.CommandKey(name)
	if key == models.AllCommands {
		return key, true
	}
	cmd, ok := b.router.Lookup(key)
	if !ok {
		return "", false
	}
	return cmd.Name, true
}

func mentionText(id, kind string) string {
	if kind == mentionRole {
		return "<@&" + id + ">"
	}
	return userMention(id)
}

func commandLabel(key string) string {
	if key == models.AllCommands {
		return "all commands"
	}
	return "`" + key + "`"
}

func pageArg(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 1, nil
	}
	n, err := parseQuantity(raw)
	if err != nil {
		return 0, errUsage
	}
	return int(n), nil
}

// paginate clamps page into range and returns that page's slice, the page
// number and the page count (at least 1).
func paginate[T any](all []T, page, size int) ([]T, int, int) {
	pages := (len(all) + size - 1) / size
	if pages == 0 {
		pages = 1
	}
	if page < 1 {
		page = 1
	}
	if page > pages {
		page = pages
	}
	start := (page - 1) * size
	end := start + size
	if start > len(all) {
		start = len(all)
	}
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], page, pages
}
