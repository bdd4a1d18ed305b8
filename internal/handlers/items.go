package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"shopbot/internal/middleware"
	"shopbot/internal/models"
	"shopbot/internal/services"

	"github.com/go-chi/chi/v5"
)

type itemRequest struct {
	Name              string                 `json:"name"`
	Description       string                 `json:"description"`
	PriceType         string                 `json:"price_type"`
	Price             int64                  `json:"price"`
	CostItems         []models.CostComponent `json:"cost_items"`
	SellPrice         *int64                 `json:"sell_price"`
	DisallowSell      bool                   `json:"disallow_sell"`
	IsListed          *bool                  `json:"is_listed"`
	StockTotal        *int64                 `json:"stock_total"`
	RestockPerDay     int64                  `json:"restock_per_day"`
	PerUserDailyLimit int64                  `json:"per_user_daily_limit"`
	RolesRequiredBuy  []string               `json:"roles_required_buy"`
	RolesRequiredSell []string               `json:"roles_required_sell"`
	RolesGrantedOnBuy []string               `json:"roles_granted_on_buy"`
	RolesRemovedOnBuy []string               `json:"roles_removed_on_buy"`
}

func (req itemRequest) toItem(guildID string, itemID int64) models.Item {
	priceType := req.PriceType
	if priceType == "" {
		priceType = models.PriceCurrency
	}
	listed := true
	if req.IsListed != nil {
		listed = *req.IsListed
	}
	return models.Item{
		ID:                itemID,
		GuildID:           guildID,
		Name:              req.Name,
		Description:       req.Description,
		PriceType:         priceType,
		Price:             req.Price,
		CostItems:         req.CostItems,
		SellPrice:         req.SellPrice,
		DisallowSell:      req.DisallowSell,
		IsListed:          listed,
		StockTotal:        req.StockTotal,
		RestockPerDay:     req.RestockPerDay,
		PerUserDailyLimit: req.PerUserDailyLimit,
		RolesRequiredBuy:  req.RolesRequiredBuy,
		RolesRequiredSell: req.RolesRequiredSell,
		RolesGrantedOnBuy: req.RolesGrantedOnBuy,
		RolesRemovedOnBuy: req.RolesRemovedOnBuy,
	}
}

type itemResponse struct {
	models.Item
	Stock services.StockView `json:"stock"`
}

func (h *Handler) ListItems(w http.ResponseWriter, r *http.Request) {
	guildID := chi.URLParam(r, "guildID")
	listedOnly := r.URL.Query().Get("listed") == "true"
	items, err := h.catalog.List(r.Context(), guildID, listedOnly)
	if err != nil {
		respondServiceError(w, err, "unable to load items")
		return
	}
	out := make([]itemResponse, 0, len(items))
	for _, item := range items {
		view, err := h.catalog.StockView(r.Context(), item)
		if err != nil {
			respondServiceError(w, err, "unable to load stock")
			return
		}
		out = append(out, itemResponse{Item: item, Stock: view})
	}
	respondJSON(w, http.StatusOK, out)
}

func (h *Handler) GetItem(w http.ResponseWriter, r *http.Request) {
	itemID, ok := itemIDParam(w, r)
	if !ok {
		return
	}
	item, err := h.catalog.Get(r.Context(), chi.URLParam(r, "guildID"), itemID)
	if err != nil {
		respondServiceError(w, err, "unable to load item")
		return
	}
	view, err := h.catalog.StockView(r.Context(), item)
	if err != nil {
		respondServiceError(w, err, "unable to load stock")
		return
	}
	respondJSON(w, http.StatusOK, itemResponse{Item: item, Stock: view})
}

// LookupItem finds an item by its exact name, ignoring case and surrounding
// whitespace.
func (h *Handler) LookupItem(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}
	item, err := h.catalog.GetByName(r.Context(), chi.URLParam(r, "guildID"), name)
	if err != nil {
		respondServiceError(w, err, "unable to load item")
		return
	}
	view, err := h.catalog.StockView(r.Context(), item)
	if err != nil {
		respondServiceError(w, err, "unable to load stock")
		return
	}
	respondJSON(w, http.StatusOK, itemResponse{Item: item, Stock: view})
}

func (h *Handler) CreateItem(w http.ResponseWriter, r *http.Request) {
	actorID, _ := middleware.UserIDFromContext(r.Context())
	var req itemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	item, err := h.catalog.Create(r.Context(), actorID, req.toItem(chi.URLParam(r, "guildID"), 0))
	if err != nil {
		respondServiceError(w, err, "unable to create item")
		return
	}
	respondJSON(w, http.StatusCreated, item)
}

func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	actorID, _ := middleware.UserIDFromContext(r.Context())
	itemID, ok := itemIDParam(w, r)
	if !ok {
		return
	}
	var req itemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	item, err := h.catalog.Update(r.Context(), actorID, req.toItem(chi.URLParam(r, "guildID"), itemID))
	if err != nil {
		respondServiceError(w, err, "unable to update item")
		return
	}
	respondJSON(w, http.StatusOK, item)
}

func itemIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	itemID, err := strconv.ParseInt(chi.URLParam(r, "itemID"), 10, 64)
	if err != nil || itemID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid item id")
		return 0, false
	}
	return itemID, true
}
