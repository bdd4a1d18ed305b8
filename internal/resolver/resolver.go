package resolver

import (
	"context"
	"fmt"

	"shopbot/internal/models"
)

type Catalog interface {
	List(ctx context.Context, guildID string) ([]models.Item, error)
}

// Resolver turns a member's free-text item reference into one catalog item.
type Resolver struct {
	catalog Catalog
	choose  *Disambiguator
}

func New(catalog Catalog, choose *Disambiguator) *Resolver {
	return &Resolver{catalog: catalog, choose: choose}
}

func (r *Resolver) Resolve(ctx context.Context, conv Conversation, guildID, query string) (models.Item, error) {
	items, err := r.catalog.List(ctx, guildID)
	if err != nil {
		return models.Item{}, fmt.Errorf("list catalog: %w", err)
	}
	return r.choose.Choose(ctx, conv, query, Candidates(items, query))
}
