// Package store defines the persistence interface for the listing engine.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing).
package store

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/refurbly/listing-engine/internal/model"
)

// ErrNotFound is returned when the requested record does not exist.
var ErrNotFound = errors.New("store: not found")

// ListFilter narrows ListItems. Zero values mean no filtering.
type ListFilter struct {
	// Query matches brand or model, case-insensitive substring.
	Query string
	// Condition keeps only items of one grade.
	Condition model.Grade
	// Marketplace keeps only items currently listed on that channel
	// (positive price, in stock, not discontinued).
	Marketplace model.Marketplace
	// Limit caps the result count; zero means no cap.
	Limit int
}

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer.
type Store interface {
	// --- Item operations ---

	// CreateItem persists a new inventory item.
	CreateItem(ctx context.Context, item *model.Item) error

	// GetItem retrieves an item by its ID.
	GetItem(ctx context.Context, id string) (*model.Item, error)

	// ListItems returns items matching the filter, newest first.
	ListItems(ctx context.Context, filter ListFilter) ([]model.Item, error)

	// UpdateItem persists the full item snapshot, prices included.
	UpdateItem(ctx context.Context, item *model.Item) error

	// UpdateItemPrices replaces the stored per-marketplace prices and
	// override flags after a pricing pass, leaving scalar fields alone.
	UpdateItemPrices(ctx context.Context, id string, prices map[model.Marketplace]decimal.Decimal, overridden map[model.Marketplace]bool) error

	// DeleteItem removes an item. Its listing attempts remain as audit.
	DeleteItem(ctx context.Context, id string) error

	// --- Immutable listing audit ---

	// InsertListingAttempt appends an immutable listing decision record.
	InsertListingAttempt(ctx context.Context, attempt *model.ListingAttempt) error

	// ListingAttemptsByItem returns all attempts for an item, oldest first.
	ListingAttemptsByItem(ctx context.Context, itemID string) ([]model.ListingAttempt, error)

	// ListingAttemptsByMarketplace returns all attempts on a marketplace,
	// oldest first.
	ListingAttemptsByMarketplace(ctx context.Context, m model.Marketplace) ([]model.ListingAttempt, error)
}
