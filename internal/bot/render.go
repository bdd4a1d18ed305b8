package bot

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"shopbot/internal/models"
	"shopbot/internal/money"
	"shopbot/internal/resolver"
	"shopbot/internal/services"
)

func price(amount int64, symbol string) string {
	return money.FormatAmount(amount) + " " + symbol
}

func userMention(id string) string { return "<@" + id + ">" }

func roleMentions(ids []string) string {
	if len(ids) == 0 {
		return "none"
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, "<@&"+id+">")
	}
	return strings.Join(out, ", ")
}

func costText(item models.Item, names map[int64]string, symbol string) string {
	if !item.IsBarter() {
		return price(item.Price, symbol)
	}
	parts := make([]string, 0, len(item.CostItems))
	for _, c := range item.CostItems {
		parts = append(parts, fmt.Sprintf("%d × %s", c.Qty, itemLabel(c.ItemID, names)))
	}
	return strings.Join(parts, " + ")
}

func itemLabel(id int64, names map[int64]string) string {
	if name, ok := names[id]; ok && name != "" {
		return name
	}
	return fmt.Sprintf("#%d", id)
}

func stockText(view services.StockView) string {
	if !view.Tracked {
		return "unlimited"
	}
	text := fmt.Sprintf("%d/%d", view.Current, view.Ceiling)
	if view.RestockPerDay > 0 {
		text += fmt.Sprintf(" (+%d/day)", view.RestockPerDay)
	}
	return text
}

func renderChoices(query string, choices []resolver.Candidate, overflow int, symbol string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Several items match **%s**. Reply with a number, or `cancel`:\n", query)
	for i, c := range choices {
		fmt.Fprintf(&b, "`%d.` %s (id %d)", i+1, c.Item.Name, c.Item.ID)
		if !c.Item.IsBarter() {
			fmt.Fprintf(&b, " · %s", price(c.Item.Price, symbol))
		}
		b.WriteByte('\n')
	}
	if overflow > 0 {
		fmt.Fprintf(&b, "…and %d more. Refine the name to narrow it down.", overflow)
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderReprompt(max, attemptsLeft int) string {
	return fmt.Sprintf("Enter a number from 1 to %d or `cancel`. Attempts left: %d.", max, attemptsLeft)
}

type shopLine struct {
	item  models.Item
	stock services.StockView
}

func renderShopPage(lines []shopLine, names map[int64]string, page, pages int, symbol string) string {
	if len(lines) == 0 {
		return "The shop is empty."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "**Shop** (page %d/%d)\n", page, pages)
	for _, l := range lines {
		fmt.Fprintf(&b, "**%s** (id %d): %s · stock %s\n", l.item.Name, l.item.ID, costText(l.item, names, symbol), stockText(l.stock))
		if l.item.Description != "" {
			fmt.Fprintf(&b, "> %s\n", l.item.Description)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

type itemInfo struct {
	item      models.Item
	stock     services.StockView
	sellPrice int64
	held      int64
	balance   int64
}

func renderItemInfo(info itemInfo, names map[int64]string, symbol string) string {
	item := info.item
	var b strings.Builder
	fmt.Fprintf(&b, "**%s** (id %d)\n", item.Name, item.ID)
	if item.Description != "" {
		fmt.Fprintf(&b, "%s\n", item.Description)
	}
	fmt.Fprintf(&b, "Price: %s\n", costText(item, names, symbol))
	if item.DisallowSell {
		b.WriteString("Selling: disabled\n")
	} else {
		fmt.Fprintf(&b, "Sells for: %s\n", price(info.sellPrice, symbol))
	}
	listed := "yes"
	if !item.IsListed {
		listed = "no"
	}
	fmt.Fprintf(&b, "Stock: %s · listed: %s\n", stockText(info.stock), listed)
	if item.PerUserDailyLimit > 0 {
		fmt.Fprintf(&b, "Daily limit: %d per member\n", item.PerUserDailyLimit)
	}
	if len(item.RolesRequiredBuy) > 0 || len(item.RolesRequiredSell) > 0 {
		fmt.Fprintf(&b, "Buy requires: %s · sell requires: %s\n", roleMentions(item.RolesRequiredBuy), roleMentions(item.RolesRequiredSell))
	}
	if len(item.RolesGrantedOnBuy) > 0 || len(item.RolesRemovedOnBuy) > 0 {
		fmt.Fprintf(&b, "On purchase grants: %s · removes: %s\n", roleMentions(item.RolesGrantedOnBuy), roleMentions(item.RolesRemovedOnBuy))
	}
	fmt.Fprintf(&b, "You hold %d · balance %s", info.held, price(info.balance, symbol))
	return b.String()
}

func renderBuy(result services.BuyResult, names map[int64]string, symbol string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You bought %d × **%s**", result.Quantity, result.Item.Name)
	if len(result.Paid) > 0 {
		parts := make([]string, 0, len(result.Paid))
		for _, c := range result.Paid {
			parts = append(parts, fmt.Sprintf("%d × %s", c.Qty, itemLabel(c.ItemID, names)))
		}
		fmt.Fprintf(&b, " for %s.", strings.Join(parts, " + "))
	} else {
		fmt.Fprintf(&b, " for %s. Balance: %s.", price(result.Charged, symbol), price(result.Balance, symbol))
	}
	fmt.Fprintf(&b, " You now hold %d.", result.Held)
	if result.Stock.Tracked {
		fmt.Fprintf(&b, " Stock left: %d.", result.Stock.Current)
	}
	if len(result.RolesGranted) > 0 {
		fmt.Fprintf(&b, "\nRoles granted: %s", roleMentions(result.RolesGranted))
	}
	if len(result.RolesRemoved) > 0 {
		fmt.Fprintf(&b, "\nRoles removed: %s", roleMentions(result.RolesRemoved))
	}
	return b.String()
}

func renderSell(result services.SellResult, symbol string) string {
	return fmt.Sprintf("You sold %d × **%s** for %s (%s each). Balance: %s. You now hold %d.",
		result.Quantity, result.Item.Name, price(result.Credited, symbol), price(result.UnitPrice, symbol),
		price(result.Balance, symbol), result.Held)
}

func renderInventory(entries []models.InventoryEntry, page, pages int) string {
	if len(entries) == 0 {
		return "Your inventory is empty."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "**Inventory** (page %d/%d)\n", page, pages)
	for _, e := range entries {
		fmt.Fprintf(&b, "%s (id %d) × %d\n", e.Name, e.ItemID, e.Quantity)
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderWork(result services.WorkResult, symbol string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You earned %s", price(result.Earned, symbol))
	if result.Bonus > 0 {
		fmt.Fprintf(&b, " (salary %s + bonus %s)", price(result.Salary, symbol), price(result.Bonus, symbol))
	}
	fmt.Fprintf(&b, ". Balance: %s. Next work <t:%d:R>.", price(result.Balance, symbol), result.Next.Unix())
	return b.String()
}

func renderRules(rules []models.PermissionRule) string {
	if len(rules) == 0 {
		return "No permission rules are configured."
	}
	var b strings.Builder
	b.WriteString("**Permission rules**\n")
	current := ""
	for _, r := range rules {
		if r.Command != current {
			current = r.Command
			title := "`" + current + "`"
			if current == models.AllCommands {
				title = "all commands"
			}
			fmt.Fprintf(&b, "%s:\n", title)
		}
		target := userMention(r.TargetID)
		if r.TargetType == models.TargetRole {
			target = "<@&" + r.TargetID + ">"
		}
		fmt.Fprintf(&b, "  %s %s\n", r.Effect, target)
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	if d <= 0 {
		return "0s"
	}
	days := d / (24 * time.Hour)
	d -= days * 24 * time.Hour
	out := d.String()
	if days > 0 {
		if d == 0 {
			return fmt.Sprintf("%dd", days)
		}
		return fmt.Sprintf("%dd%s", days, out)
	}
	return out
}

// renderError turns a command failure into the member-facing text. The
// second result is false for errors the member cannot act on.
func renderError(err error, names map[int64]string, symbol string) (string, bool) {
	var policy *services.PolicyError
	var insufficient *services.InsufficientError
	var cooldown *services.CooldownError
	switch {
	case errors.Is(err, errBadQuantity), errors.Is(err, errBadDuration):
		return capitalize(err.Error()) + ".", true
	case errors.Is(err, resolver.ErrNotFound), errors.Is(err, services.ErrItemNotFound):
		return "No matching item was found.", true
	case errors.Is(err, resolver.ErrCancelled):
		return "Selection cancelled.", true
	case errors.Is(err, resolver.ErrTimedOut):
		return "No answer received, selection timed out.", true
	case errors.Is(err, resolver.ErrTooManyAttempts):
		return "Too many invalid answers, selection aborted.", true
	case errors.As(err, &policy):
		text := capitalize(policy.Reason.Error()) + "."
		if len(policy.Roles) > 0 {
			text += " Any of: " + roleMentions(policy.Roles)
		}
		return text, true
	case errors.As(err, &insufficient):
		return renderInsufficient(insufficient, names, symbol), true
	case errors.As(err, &cooldown):
		return "You are tired. Work again in " + formatDuration(cooldown.Remaining) + ".", true
	case errors.Is(err, services.ErrCommitFailed):
		return "The operation could not be completed and nothing was changed. Please try again.", true
	case errors.Is(err, services.ErrSelfTransfer):
		return "You cannot pay yourself.", true
	case errors.Is(err, services.ErrBotTarget):
		return "You cannot pay a bot.", true
	case errors.Is(err, services.ErrInvalidAmount), errors.Is(err, money.ErrInvalidAmount):
		return "The amount must be a positive whole number.", true
	case errors.Is(err, services.ErrInvalidQuantity):
		return "The quantity must be positive.", true
	}
	return "Something went wrong. Please try again later.", false
}

func renderInsufficient(e *services.InsufficientError, names map[int64]string, symbol string) string {
	switch e.Resource {
	case services.ResourceBalance:
		return fmt.Sprintf("Not enough money: you need %s but have %s.", price(e.Required, symbol), price(e.Available, symbol))
	case services.ResourceStock:
		return fmt.Sprintf("Not enough stock: only %d available.", e.Available)
	case services.ResourceQuota:
		return fmt.Sprintf("Daily limit reached: you can buy %d more today.", e.Available)
	case services.ResourceInventory:
		return fmt.Sprintf("You only have %d.", e.Available)
	case services.ResourceItems:
		parts := make([]string, 0, len(e.Shortfalls))
		for _, s := range e.Shortfalls {
			label := s.Name
			if label == "" {
				label = itemLabel(s.ItemID, names)
			}
			parts = append(parts, fmt.Sprintf("%s %d/%d", label, s.Available, s.Required))
		}
		return "Missing items: " + strings.Join(parts, ", ") + "."
	}
	return e.Error()
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
