package services

import (
	"context"
	"errors"
	"testing"

	"shopbot/internal/lock"
	"shopbot/internal/logger"
	"shopbot/internal/models"
)

func newInventoryFixture() (*memWorld, *InventoryService) {
	world := newWorld()
	world.addItem(models.Item{ID: 1, Name: "Potion", PriceType: models.PriceCurrency, Price: 5})
	svc := NewInventoryService(memTxRunner{world: world}, lock.NewLocal(), world, world, memAudit{world}, logger.Discard())
	return world, svc
}

func TestInventoryGiveAndTake(t *testing.T) {
	world, svc := newInventoryFixture()

	held, err := svc.Give(context.Background(), "admin", "g1", "u1", 1, 3)
	if err != nil || held != 3 {
		t.Fatalf("unexpected give: %d %v", held, err)
	}
	left, err := svc.Take(context.Background(), "admin", "g1", "u1", 1, 2)
	if err != nil || left != 1 {
		t.Fatalf("unexpected take: %d %v", left, err)
	}
	if world.auditCount() != 2 || world.audit[1].Action != "item.taken" || world.audit[1].ActorID != "admin" {
		t.Fatalf("unexpected audit: %#v", world.audit)
	}

	_, err = svc.Take(context.Background(), "admin", "g1", "u1", 1, 2)
	var insufficient *InsufficientError
	if !errors.As(err, &insufficient) || insufficient.Available != 1 {
		t.Fatalf("expected an inventory shortfall, got %v", err)
	}
	if world.held("u1", 1) != 1 {
		t.Fatal("failed take changed the inventory")
	}
}

func TestInventoryGiveUnknownItem(t *testing.T) {
	world, svc := newInventoryFixture()
	if _, err := svc.Give(context.Background(), "admin", "g1", "u1", 99, 1); !errors.Is(err, ErrItemNotFound) {
		t.Fatalf("expected ErrItemNotFound, got %v", err)
	}
	if world.held("u1", 99) != 0 {
		t.Fatal("unknown item was credited")
	}
}

func TestInventoryUse(t *testing.T) {
	world, svc := newInventoryFixture()
	world.setHeld("u1", 1, 2)

	left, err := svc.Use(context.Background(), "g1", "u1", 1, 2)
	if err != nil || left != 0 {
		t.Fatalf("unexpected use: %d %v", left, err)
	}
	entries, _ := svc.List(context.Background(), "g1", "u1")
	if len(entries) != 0 {
		t.Fatalf("expected the empty holding to disappear, got %#v", entries)
	}
	if _, err := svc.Use(context.Background(), "g1", "u1", 1, 0); !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("expected ErrInvalidQuantity, got %v", err)
	}
}

func TestInventoryRemoveConflict(t *testing.T) {
	world, svc := newInventoryFixture()
	world.setHeld("u1", 1, 2)
	world.failRemove[1] = true

	if _, err := svc.Use(context.Background(), "g1", "u1", 1, 1); !errors.Is(err, ErrCommitFailed) {
		t.Fatalf("expected ErrCommitFailed, got %v", err)
	}
	if world.held("u1", 1) != 2 {
		t.Fatal("conflicting use changed the inventory")
	}
}
