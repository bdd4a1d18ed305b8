package handlers

import (
	"net/http"

	"shopbot/internal/auth"
	"shopbot/internal/middleware"
	"shopbot/internal/models"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) GetInventory(w http.ResponseWriter, r *http.Request) {
	guildID := chi.URLParam(r, "guildID")
	userID := chi.URLParam(r, "userID")
	entries, err := h.inventory.List(r.Context(), guildID, userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load inventory")
		return
	}
	balance, err := h.balances.Balance(r.Context(), guildID, userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load balance")
		return
	}
	if entries == nil {
		entries = []models.InventoryEntry{}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"user_id": userID,
		"balance": balance,
		"items":   entries,
	})
}

func (h *Handler) ListAuditLogs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit := parseInt(query.Get("limit"), 50)
	if limit > 200 {
		limit = 200
	}
	page := parseInt(query.Get("page"), 1)
	offset := (page - 1) * limit
	rows, err := h.audit.List(r.Context(), chi.URLParam(r, "guildID"), limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load audit logs")
		return
	}
	if rows == nil {
		rows = []models.AuditEntry{}
	}
	respondJSON(w, http.StatusOK, rows)
}

// WSBalances streams balance changes of the token's guild. A token for all
// guilds picks one with the guild query parameter.
func (h *Handler) WSBalances(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	guildID := claims.GuildID
	if guildID == auth.AllGuilds {
		guildID = r.URL.Query().Get("guild")
	}
	if guildID == "" {
		respondError(w, http.StatusBadRequest, "guild is required")
		return
	}
	if !claims.CanAccess(guildID) {
		respondError(w, http.StatusForbidden, "token does not cover this guild")
		return
	}
	h.balanceWS.Serve(w, r, guildID)
}
