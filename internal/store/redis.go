package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/refurbly/listing-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store and invalidate the cache; reads
// check Redis first then fall back to the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) CreateItem(ctx context.Context, item *model.Item) error {
	if err := s.primary.CreateItem(ctx, item); err != nil {
		return err
	}
	s.cacheItem(ctx, item)
	return nil
}

func (s *CachedStore) UpdateItem(ctx context.Context, item *model.Item) error {
	if err := s.primary.UpdateItem(ctx, item); err != nil {
		return err
	}
	// Invalidate; next read re-populates with the stored row.
	s.rdb.Del(ctx, itemKey(item.ID))
	return nil
}

func (s *CachedStore) UpdateItemPrices(ctx context.Context, id string, prices map[model.Marketplace]decimal.Decimal, overridden map[model.Marketplace]bool) error {
	if err := s.primary.UpdateItemPrices(ctx, id, prices, overridden); err != nil {
		return err
	}
	s.rdb.Del(ctx, itemKey(id))
	return nil
}

func (s *CachedStore) DeleteItem(ctx context.Context, id string) error {
	if err := s.primary.DeleteItem(ctx, id); err != nil {
		return err
	}
	s.rdb.Del(ctx, itemKey(id))
	return nil
}

func (s *CachedStore) InsertListingAttempt(ctx context.Context, attempt *model.ListingAttempt) error {
	if err := s.primary.InsertListingAttempt(ctx, attempt); err != nil {
		return err
	}
	// Invalidate the attempt history for this item.
	s.rdb.Del(ctx, attemptsKey(attempt.ItemID))
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetItem(ctx context.Context, id string) (*model.Item, error) {
	data, err := s.rdb.Get(ctx, itemKey(id)).Bytes()
	if err == nil {
		var item model.Item
		if json.Unmarshal(data, &item) == nil {
			return &item, nil
		}
	}

	// Cache miss: read from primary.
	item, err := s.primary.GetItem(ctx, id)
	if err != nil {
		return nil, err
	}

	s.cacheItem(ctx, item)
	return item, nil
}

func (s *CachedStore) ListingAttemptsByItem(ctx context.Context, itemID string) ([]model.ListingAttempt, error) {
	data, err := s.rdb.Get(ctx, attemptsKey(itemID)).Bytes()
	if err == nil {
		var attempts []model.ListingAttempt
		if json.Unmarshal(data, &attempts) == nil {
			return attempts, nil
		}
	}

	// Cache miss.
	attempts, err := s.primary.ListingAttemptsByItem(ctx, itemID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(attempts); err == nil {
		s.rdb.Set(ctx, attemptsKey(itemID), data, s.ttl)
	}
	return attempts, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListItems(ctx context.Context, filter ListFilter) ([]model.Item, error) {
	return s.primary.ListItems(ctx, filter)
}

func (s *CachedStore) ListingAttemptsByMarketplace(ctx context.Context, m model.Marketplace) ([]model.ListingAttempt, error) {
	return s.primary.ListingAttemptsByMarketplace(ctx, m)
}

// --- Cache helpers ---

func (s *CachedStore) cacheItem(ctx context.Context, item *model.Item) {
	if data, err := json.Marshal(item); err == nil {
		s.rdb.Set(ctx, itemKey(item.ID), data, s.ttl)
	}
}

func itemKey(id string) string         { return fmt.Sprintf("item:%s", id) }
func attemptsKey(itemID string) string { return fmt.Sprintf("attempts:%s", itemID) }
