package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"shopbot/internal/auth"
	"shopbot/internal/config"
	"shopbot/internal/logger"
	"shopbot/internal/models"
	"shopbot/internal/services"
	"shopbot/internal/websocket"
)

type stubCatalog struct {
	listFn      func(ctx context.Context, guildID string, listedOnly bool) ([]models.Item, error)
	getFn       func(ctx context.Context, guildID string, itemID int64) (models.Item, error)
	getByNameFn func(ctx context.Context, guildID, name string) (models.Item, error)
	createFn    func(ctx context.Context, actorID string, item models.Item) (models.Item, error)
	updateFn    func(ctx context.Context, actorID string, item models.Item) (models.Item, error)
	stockViewFn func(ctx context.Context, item models.Item) (services.StockView, error)
}

func (s stubCatalog) List(ctx context.Context, guildID string, listedOnly bool) ([]models.Item, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx, guildID, listedOnly)
}

func (s stubCatalog) Get(ctx context.Context, guildID string, itemID int64) (models.Item, error) {
	if s.getFn == nil {
		return models.Item{}, services.ErrItemNotFound
	}
	return s.getFn(ctx, guildID, itemID)
}

func (s stubCatalog) GetByName(ctx context.Context, guildID, name string) (models.Item, error) {
	if s.getByNameFn == nil {
		return models.Item{}, services.ErrItemNotFound
	}
	return s.getByNameFn(ctx, guildID, name)
}

func (s stubCatalog) Create(ctx context.Context, actorID string, item models.Item) (models.Item, error) {
	if s.createFn == nil {
		return item, nil
	}
	return s.createFn(ctx, actorID, item)
}

func (s stubCatalog) Update(ctx context.Context, actorID string, item models.Item) (models.Item, error) {
	if s.updateFn == nil {
		return item, nil
	}
	return s.updateFn(ctx, actorID, item)
}

func (s stubCatalog) StockView(ctx context.Context, item models.Item) (services.StockView, error) {
	if s.stockViewFn == nil {
		return services.StockView{}, nil
	}
	return s.stockViewFn(ctx, item)
}

type stubInventory struct {
	listFn func(ctx context.Context, guildID, userID string) ([]models.InventoryEntry, error)
}

func (s stubInventory) List(ctx context.Context, guildID, userID string) ([]models.InventoryEntry, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx, guildID, userID)
}

type stubBalances struct {
	balanceFn func(ctx context.Context, guildID, userID string) (int64, error)
}

func (s stubBalances) Balance(ctx context.Context, guildID, userID string) (int64, error) {
	if s.balanceFn == nil {
		return 0, nil
	}
	return s.balanceFn(ctx, guildID, userID)
}

type stubAuditStore struct {
	listFn func(ctx context.Context, guildID string, limit, offset int) ([]models.AuditEntry, error)
}

func (s stubAuditStore) List(ctx context.Context, guildID string, limit, offset int) ([]models.AuditEntry, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx, guildID, limit, offset)
}

const testSecret = "secret"

func newTestHandler(catalog stubCatalog, inventory stubInventory, balances stubBalances, audit stubAuditStore) http.Handler {
	cfg := config.HTTPConfig{JWTSecret: testSecret, AllowedOrigins: "*"}
	return New(cfg, catalog, inventory, balances, audit, websocket.NewHub(), logger.Discard()).Routes()
}

func serve(t *testing.T, handler http.Handler, req *http.Request, guildID string) *httptest.ResponseRecorder {
	t.Helper()
	if guildID != "" {
		token, err := auth.GenerateToken(testSecret, "admin-1", guildID, time.Minute)
		if err != nil {
			t.Fatalf("failed to generate token: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}
