package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"shopbot/internal/services"
	"shopbot/internal/validator"
)

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func parseInt(raw string, fallback int) int {
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

// respondServiceError maps catalog errors to HTTP statuses; anything unknown
// is a 500 with a generic message.
func respondServiceError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, services.ErrItemNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, services.ErrDuplicateName):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, services.ErrUnknownCostItem),
		errors.Is(err, validator.ErrInvalidItemName),
		errors.Is(err, validator.ErrInvalidSnowflake),
		errors.Is(err, validator.ErrInvalidPrice),
		errors.Is(err, validator.ErrInvalidCost),
		errors.Is(err, validator.ErrInvalidDescription):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, fallback)
	}
}
