package services

import (
	"time"

	"shopbot/internal/models"
)

const dayLayout = "20060102"

// DayKey is the UTC calendar day used for restock and quota bookkeeping.
func DayKey(t time.Time) string {
	return t.UTC().Format(dayLayout)
}

// StockView is the stock a member would see right now.
type StockView struct {
	Tracked       bool  `json:"tracked"`
	Current       int64 `json:"current"`
	Ceiling       int64 `json:"ceiling"`
	RestockPerDay int64 `json:"restock_per_day"`
}

// RollStock brings a stored stock state forward to today. A missing row
// starts full. Each elapsed day adds restock_per_day, capped at the ceiling.
func RollStock(item models.Item, state models.StockState, found bool, now time.Time) models.StockState {
	ceiling := int64(0)
	if item.StockTotal != nil {
		ceiling = *item.StockTotal
	}
	today := DayKey(now)
	if !found {
		return models.StockState{GuildID: item.GuildID, ItemID: item.ID, CurrentStock: ceiling, LastRestockDay: today}
	}
	current := state.CurrentStock
	if current > ceiling {
		current = ceiling
	}
	if current < 0 {
		current = 0
	}
	last, err := time.Parse(dayLayout, state.LastRestockDay)
	if err != nil {
		return models.StockState{GuildID: item.GuildID, ItemID: item.ID, CurrentStock: ceiling, LastRestockDay: today}
	}
	todayStart, _ := time.Parse(dayLayout, today)
	days := int64(todayStart.Sub(last) / (24 * time.Hour))
	if days > 0 && item.RestockPerDay > 0 {
		room := ceiling - current
		need := room / item.RestockPerDay
		if room%item.RestockPerDay != 0 {
			need++
		}
		if days >= need {
			current = ceiling
		} else {
			current += item.RestockPerDay * days
		}
	}
	if days > 0 {
		state.LastRestockDay = today
	}
	state.GuildID = item.GuildID
	state.ItemID = item.ID
	state.CurrentStock = current
	return state
}

func viewOf(item models.Item, state models.StockState) StockView {
	if item.StockTotal == nil {
		return StockView{}
	}
	return StockView{
		Tracked:       true,
		Current:       state.CurrentStock,
		Ceiling:       *item.StockTotal,
		RestockPerDay: item.RestockPerDay,
	}
}
