package validator

import (
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"

	"shopbot/internal/models"
)

var (
	ErrInvalidItemName    = errors.New("invalid item name")
	ErrInvalidSnowflake   = errors.New("invalid discord id")
	ErrInvalidPrice       = errors.New("invalid price")
	ErrInvalidCost        = errors.New("invalid barter cost")
	ErrInvalidDescription = errors.New("description too long")
)

const (
	MaxItemNameLength    = 100
	MaxDescriptionLength = 1000
)

var snowflakeRegex = regexp.MustCompile(`^[0-9]{5,20}$`)

func ValidateItemName(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" || utf8.RuneCountInString(trimmed) > MaxItemNameLength {
		return ErrInvalidItemName
	}
	return nil
}

func ValidateSnowflake(id string) error {
	if !snowflakeRegex.MatchString(id) {
		return ErrInvalidSnowflake
	}
	return nil
}

// ValidateItem checks the catalog fields an admin can set. It does not check
// that barter components exist; that needs the store.
func ValidateItem(item models.Item) error {
	if err := ValidateItemName(item.Name); err != nil {
		return err
	}
	if utf8.RuneCountInString(item.Description) > MaxDescriptionLength {
		return ErrInvalidDescription
	}
	if item.Price < 0 || (item.SellPrice != nil && *item.SellPrice < 0) {
		return ErrInvalidPrice
	}
	if item.StockTotal != nil && *item.StockTotal < 0 {
		return ErrInvalidPrice
	}
	if item.RestockPerDay < 0 || item.PerUserDailyLimit < 0 {
		return ErrInvalidPrice
	}
	switch item.PriceType {
	case models.PriceCurrency:
		if item.Price <= 0 {
			return ErrInvalidPrice
		}
	case models.PriceItems:
		if len(item.CostItems) == 0 {
			return ErrInvalidCost
		}
		seen := make(map[int64]struct{}, len(item.CostItems))
		for _, c := range item.CostItems {
			if c.Qty <= 0 || (item.ID != 0 && c.ItemID == item.ID) {
				return ErrInvalidCost
			}
			if _, dup := seen[c.ItemID]; dup {
				return ErrInvalidCost
			}
			seen[c.ItemID] = struct{}{}
		}
	default:
		return ErrInvalidPrice
	}
	for _, roles := range [][]string{item.RolesRequiredBuy, item.RolesRequiredSell, item.RolesGrantedOnBuy, item.RolesRemovedOnBuy} {
		for _, id := range roles {
			if err := ValidateSnowflake(id); err != nil {
				return err
			}
		}
	}
	return nil
}
