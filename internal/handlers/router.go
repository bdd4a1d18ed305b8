package handlers

import (
	"net/http"
	"strings"

	"shopbot/internal/config"
	"shopbot/internal/middleware"
	"shopbot/internal/websocket"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"
)

type Handler struct {
	cfg       config.HTTPConfig
	catalog   CatalogService
	inventory InventoryService
	balances  BalanceReader
	audit     AuditStore
	balanceWS *websocket.Server
	log       logrus.FieldLogger
}

func New(cfg config.HTTPConfig, catalog CatalogService, inventory InventoryService, balances BalanceReader, audit AuditStore, hub *websocket.Hub, log logrus.FieldLogger) *Handler {
	return &Handler{
		cfg:       cfg,
		catalog:   catalog,
		inventory: inventory,
		balances:  balances,
		audit:     audit,
		balanceWS: websocket.NewServer(hub, allowedOrigins(cfg.AllowedOrigins), log),
		log:       log,
	}
}

func (h *Handler) Routes() http.Handler {
	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.Recoverer)
	router.Use(middleware.RequestLogger(h.log))
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(h.cfg.AllowedOrigins),
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	router.Route("/guilds/{guildID}", func(r chi.Router) {
		r.Use(middleware.Auth(h.cfg.JWTSecret))
		r.Use(middleware.RequireGuild("guildID"))
		r.Get("/items", h.ListItems)
		r.Post("/items", h.CreateItem)
		r.Get("/items/lookup", h.LookupItem)
		r.Get("/items/{itemID}", h.GetItem)
		r.Put("/items/{itemID}", h.UpdateItem)
		r.Get("/users/{userID}/inventory", h.GetInventory)
		r.Get("/audit", h.ListAuditLogs)
	})
	router.With(middleware.Auth(h.cfg.JWTSecret)).Get("/ws/balances", h.WSBalances)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return router
}

func allowedOrigins(raw string) []string {
	var out []string
	for _, origin := range strings.Split(raw, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			out = append(out, origin)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}
