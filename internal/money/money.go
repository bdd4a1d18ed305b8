package money

import (
	"errors"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrInvalidFraction = errors.New("sell fraction must be between 0 and 1")
)

// DefaultSellFraction is the share of the buy price paid back on sell when an
// item has no explicit sell price.
var DefaultSellFraction = decimal.RequireFromString("0.5")

// ParseAmount accepts a positive whole number; spaces, underscores and commas
// used as digit separators are ignored.
func ParseAmount(input string) (int64, error) {
	trimmed := strings.TrimSpace(input)
	trimmed = strings.NewReplacer(" ", "", "_", "", ",", "", "\u00a0", "").Replace(trimmed)
	trimmed = strings.TrimPrefix(trimmed, "+")
	if trimmed == "" || !isDigits(trimmed) {
		return 0, ErrInvalidAmount
	}
	value, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil || value <= 0 {
		return 0, ErrInvalidAmount
	}
	return value, nil
}

// FormatAmount renders value with a space between thousands groups.
func FormatAmount(value int64) string {
	negative := value < 0
	digits := strconv.FormatInt(value, 10)
	if negative {
		digits = digits[1:]
	}
	var b strings.Builder
	if negative {
		b.WriteByte('-')
	}
	lead := len(digits) % 3
	if lead == 0 {
		lead = 3
	}
	b.WriteString(digits[:lead])
	for i := lead; i < len(digits); i += 3 {
		b.WriteByte(' ')
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}

func ParseFraction(input string) (decimal.Decimal, error) {
	fraction, err := decimal.NewFromString(strings.TrimSpace(input))
	if err != nil {
		return decimal.Decimal{}, ErrInvalidFraction
	}
	if fraction.IsNegative() || fraction.GreaterThan(decimal.NewFromInt(1)) {
		return decimal.Decimal{}, ErrInvalidFraction
	}
	return fraction, nil
}

// SellPrice is the explicit sell price when set, otherwise price*fraction
// rounded half to even and floored at zero.
func SellPrice(price int64, sellPrice *int64, fraction decimal.Decimal) int64 {
	if sellPrice != nil {
		if *sellPrice < 0 {
			return 0
		}
		return *sellPrice
	}
	value := decimal.NewFromInt(price).Mul(fraction).RoundBank(0).IntPart()
	if value < 0 {
		return 0
	}
	return value
}

func isDigits(value string) bool {
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
