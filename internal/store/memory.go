package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/refurbly/listing-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu       sync.RWMutex
	items    map[string]*model.Item
	attempts []model.ListingAttempt
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items: make(map[string]*model.Item),
	}
}

func (s *MemoryStore) CreateItem(_ context.Context, item *model.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.items[item.ID]; exists {
		return fmt.Errorf("item %s already exists", item.ID)
	}

	// Store a copy to avoid external mutation.
	s.items[item.ID] = item.Clone()
	return nil
}

func (s *MemoryStore) GetItem(_ context.Context, id string) (*model.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items[id]
	if !ok {
		return nil, fmt.Errorf("%w: item %s", ErrNotFound, id)
	}
	return item.Clone(), nil
}

func (s *MemoryStore) ListItems(_ context.Context, filter ListFilter) ([]model.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]model.Item, 0, len(s.items))
	for _, item := range s.items {
		if matchesFilter(item, filter) {
			items = append(items, *item.Clone())
		}
	}
	sort.Slice(items, func(a, b int) bool {
		if !items[a].CreatedAt.Equal(items[b].CreatedAt) {
			return items[a].CreatedAt.After(items[b].CreatedAt)
		}
		return items[a].ID < items[b].ID
	})
	if filter.Limit > 0 && len(items) > filter.Limit {
		items = items[:filter.Limit]
	}
	return items, nil
}

func (s *MemoryStore) UpdateItem(_ context.Context, item *model.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[item.ID]; !ok {
		return fmt.Errorf("%w: item %s", ErrNotFound, item.ID)
	}
	s.items[item.ID] = item.Clone()
	return nil
}

func (s *MemoryStore) UpdateItemPrices(_ context.Context, id string, prices map[model.Marketplace]decimal.Decimal, overridden map[model.Marketplace]bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[id]
	if !ok {
		return fmt.Errorf("%w: item %s", ErrNotFound, id)
	}

	item.ListPrices = make(map[model.Marketplace]decimal.Decimal, len(prices))
	for m, p := range prices {
		item.ListPrices[m] = p
	}
	item.PriceOverridden = make(map[model.Marketplace]bool, len(overridden))
	for m, v := range overridden {
		item.PriceOverridden[m] = v
	}
	item.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) DeleteItem(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[id]; !ok {
		return fmt.Errorf("%w: item %s", ErrNotFound, id)
	}
	delete(s.items, id)
	return nil
}

func (s *MemoryStore) InsertListingAttempt(_ context.Context, attempt *model.ListingAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.attempts = append(s.attempts, *attempt)
	return nil
}

func (s *MemoryStore) ListingAttemptsByItem(_ context.Context, itemID string) ([]model.ListingAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.ListingAttempt
	for _, a := range s.attempts {
		if a.ItemID == itemID {
			result = append(result, a)
		}
	}
	return result, nil
}

func (s *MemoryStore) ListingAttemptsByMarketplace(_ context.Context, m model.Marketplace) ([]model.ListingAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.ListingAttempt
	for _, a := range s.attempts {
		if a.Marketplace == m {
			result = append(result, a)
		}
	}
	return result, nil
}

// matchesFilter applies ListFilter to an item snapshot.
func matchesFilter(item *model.Item, f ListFilter) bool {
	if f.Query != "" {
		q := strings.ToLower(f.Query)
		if !strings.Contains(strings.ToLower(item.Brand), q) &&
			!strings.Contains(strings.ToLower(item.Model), q) {
			return false
		}
	}
	if f.Condition != "" && item.Condition != f.Condition {
		return false
	}
	if f.Marketplace != "" {
		listed := false
		for _, m := range item.ListedOn() {
			if m == f.Marketplace {
				listed = true
				break
			}
		}
		if !listed {
			return false
		}
	}
	return true
}
