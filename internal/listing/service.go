package listing

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/refurbly/listing-engine/internal/fees"
	"github.com/refurbly/listing-engine/internal/metrics"
	"github.com/refurbly/listing-engine/internal/model"
	"github.com/refurbly/listing-engine/internal/pricing"
	"github.com/refurbly/listing-engine/internal/store"
)

// Service handles inventory and listing operations. Uses a mutex to
// serialize price mutations and listing decisions (single-instance).
// For horizontal scaling, replace with database-level locking.
type Service struct {
	store     store.Store
	rules     Ruleset
	minMargin decimal.Decimal
	mu        sync.Mutex
	hub       *Hub // optional WebSocket hub for real-time broadcasts
}

// NewService creates a new listing service.
// Pass nil for hub if WebSocket broadcasting is not needed.
func NewService(st store.Store, rules Ruleset, minMargin decimal.Decimal, hub *Hub) *Service {
	return &Service{
		store:     st,
		rules:     rules,
		minMargin: minMargin,
		hub:       hub,
	}
}

// --- Request/Response types ---

// CreateItemRequest is the JSON body for item creation. PriceOverrides
// pins the list price for specific marketplaces instead of the fee-based
// recommendation.
type CreateItemRequest struct {
	Brand          string                                 `json:"brand"`
	Model          string                                 `json:"model"`
	Storage        string                                 `json:"storage"`
	Color          string                                 `json:"color"`
	Condition      string                                 `json:"condition"`
	BaseNet        decimal.Decimal                        `json:"base_net"`
	CostPrice      decimal.Decimal                        `json:"cost_price"`
	StockQty       int                                    `json:"stock_qty"`
	Discontinued   bool                                   `json:"discontinued"`
	Tags           []string                               `json:"tags"`
	PriceOverrides map[model.Marketplace]decimal.Decimal `json:"price_overrides"`
}

// UpdateItemRequest is the JSON body for partial item updates. Nil fields
// are left unchanged. Prices are recomputed when base_net changes or
// price_overrides is present; a non-positive override value clears the
// manual override for that marketplace.
type UpdateItemRequest struct {
	Brand          *string                                `json:"brand"`
	Model          *string                                `json:"model"`
	Storage        *string                                `json:"storage"`
	Color          *string                                `json:"color"`
	Condition      *string                                `json:"condition"`
	BaseNet        *decimal.Decimal                       `json:"base_net"`
	CostPrice      *decimal.Decimal                       `json:"cost_price"`
	StockQty       *int                                   `json:"stock_qty"`
	Discontinued   *bool                                  `json:"discontinued"`
	Tags           []string                               `json:"tags"`
	PriceOverrides map[model.Marketplace]decimal.Decimal `json:"price_overrides"`
}

// SetPriceRequest is the JSON body for PUT /items/{itemID}/price.
type SetPriceRequest struct {
	Marketplace string          `json:"marketplace"`
	Price       decimal.Decimal `json:"price"`
}

// RecomputeRequest is the JSON body for POST /prices/recompute. With
// ReplaceOverrides set, manual overrides are discarded and every price
// goes back to the fee-based recommendation.
type RecomputeRequest struct {
	ReplaceOverrides bool `json:"replace_overrides"`
}

// itemView decorates an Item with the marketplaces it is currently live
// on, which is derived state the stored record does not carry.
type itemView struct {
	*model.Item
	ListedOn []model.Marketplace `json:"listed_on"`
}

func newItemView(item *model.Item) itemView {
	listed := item.ListedOn()
	if listed == nil {
		listed = []model.Marketplace{}
	}
	return itemView{Item: item, ListedOn: listed}
}

// --- HTTP Handlers ---

// CreateItem handles POST /api/v1/items
func (s *Service) CreateItem(w http.ResponseWriter, r *http.Request) {
	var req CreateItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	// --- Input validation ---
	if strings.TrimSpace(req.Brand) == "" {
		writeError(w, "brand is required", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Model) == "" {
		writeError(w, "model is required", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Condition) == "" {
		writeError(w, "condition is required", http.StatusBadRequest)
		return
	}
	grade, err := model.ParseGrade(req.Condition)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !req.BaseNet.IsPositive() {
		writeError(w, "base_net must be positive", http.StatusBadRequest)
		return
	}
	if req.CostPrice.IsNegative() {
		writeError(w, "cost_price must not be negative", http.StatusBadRequest)
		return
	}
	if req.StockQty < 0 {
		writeError(w, "stock_qty must not be negative", http.StatusBadRequest)
		return
	}
	if err := s.checkOverrideKeys(req.PriceOverrides); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	tags := req.Tags
	if tags == nil {
		tags = []string{}
	}

	now := time.Now().UTC()
	item := &model.Item{
		ID:           uuid.New().String(),
		Brand:        strings.TrimSpace(req.Brand),
		Model:        strings.TrimSpace(req.Model),
		Storage:      req.Storage,
		Color:        req.Color,
		Condition:    grade,
		BaseNet:      req.BaseNet,
		CostPrice:    req.CostPrice,
		StockQty:     req.StockQty,
		Discontinued: req.Discontinued,
		Tags:         tags,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	prices, overridden, err := s.priceQuotes(item.BaseNet, req.PriceOverrides)
	if err != nil {
		writeError(w, "internal error: invalid pricing configuration", http.StatusInternalServerError)
		return
	}
	item.ListPrices = prices
	item.PriceOverridden = overridden

	ctx := r.Context()
	if err := s.store.CreateItem(ctx, item); err != nil {
		writeError(w, err.Error(), http.StatusConflict)
		return
	}

	slog.Info("item created",
		"id", item.ID,
		"brand", item.Brand,
		"model", item.Model,
		"condition", item.Condition,
		"base_net", item.BaseNet.String(),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(newItemView(item))
}

// GetItem handles GET /api/v1/items/{itemID}
func (s *Service) GetItem(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "itemID")

	item, err := s.store.GetItem(r.Context(), itemID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, "item not found", http.StatusNotFound)
		return
	}
	if err != nil {
		writeError(w, "failed to load item", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(newItemView(item))
}

// ListItems handles GET /api/v1/items
// Supports ?q= substring search over brand/model, ?condition=, and
// ?marketplace= to keep only items currently live on that channel.
func (s *Service) ListItems(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.ListFilter{Query: q.Get("q"), Limit: 100}

	if raw := q.Get("condition"); raw != "" {
		grade, err := model.ParseGrade(raw)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		filter.Condition = grade
	}
	if raw := q.Get("marketplace"); raw != "" {
		m, err := s.marketplace(raw)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		filter.Marketplace = m
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		filter.Limit = n
	}

	items, err := s.store.ListItems(r.Context(), filter)
	if err != nil {
		writeError(w, "failed to list items", http.StatusInternalServerError)
		return
	}

	views := make([]itemView, 0, len(items))
	for i := range items {
		views = append(views, newItemView(&items[i]))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(views)
}

// UpdateItem handles PUT /api/v1/items/{itemID}
func (s *Service) UpdateItem(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "itemID")

	var req UpdateItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.checkOverrideKeys(req.PriceOverrides); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx := r.Context()

	s.mu.Lock()
	defer s.mu.Unlock()

	item, err := s.store.GetItem(ctx, itemID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, "item not found", http.StatusNotFound)
		return
	}
	if err != nil {
		writeError(w, "failed to load item", http.StatusInternalServerError)
		return
	}

	// --- Apply partial update ---
	if req.Brand != nil {
		if strings.TrimSpace(*req.Brand) == "" {
			writeError(w, "brand must not be blank", http.StatusBadRequest)
			return
		}
		item.Brand = strings.TrimSpace(*req.Brand)
	}
	if req.Model != nil {
		if strings.TrimSpace(*req.Model) == "" {
			writeError(w, "model must not be blank", http.StatusBadRequest)
			return
		}
		item.Model = strings.TrimSpace(*req.Model)
	}
	if req.Storage != nil {
		item.Storage = *req.Storage
	}
	if req.Color != nil {
		item.Color = *req.Color
	}
	if req.Condition != nil {
		grade, err := model.ParseGrade(*req.Condition)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		item.Condition = grade
	}
	if req.BaseNet != nil {
		if !req.BaseNet.IsPositive() {
			writeError(w, "base_net must be positive", http.StatusBadRequest)
			return
		}
		item.BaseNet = *req.BaseNet
	}
	if req.CostPrice != nil {
		if req.CostPrice.IsNegative() {
			writeError(w, "cost_price must not be negative", http.StatusBadRequest)
			return
		}
		item.CostPrice = *req.CostPrice
	}
	if req.StockQty != nil {
		if *req.StockQty < 0 {
			writeError(w, "stock_qty must not be negative", http.StatusBadRequest)
			return
		}
		item.StockQty = *req.StockQty
	}
	if req.Discontinued != nil {
		item.Discontinued = *req.Discontinued
	}
	if req.Tags != nil {
		item.Tags = req.Tags
	}

	// Prices follow base_net, so a change there forces a recompute.
	// Manual overrides survive unless the request replaces or clears them.
	recompute := req.BaseNet != nil || req.PriceOverrides != nil
	if recompute {
		overrides := manualOverrides(item)
		for m, p := range req.PriceOverrides {
			if p.IsPositive() {
				overrides[m] = p
			} else {
				delete(overrides, m)
			}
		}
		prices, overridden, err := s.priceQuotes(item.BaseNet, overrides)
		if err != nil {
			writeError(w, "internal error: invalid pricing configuration", http.StatusInternalServerError)
			return
		}
		item.ListPrices = prices
		item.PriceOverridden = overridden
	}

	item.UpdatedAt = time.Now().UTC()
	if err := s.store.UpdateItem(ctx, item); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, "item not found", http.StatusNotFound)
			return
		}
		writeError(w, "failed to update item", http.StatusInternalServerError)
		return
	}

	slog.Info("item updated",
		"id", item.ID,
		"recomputed", recompute,
	)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(newItemView(item))
}

// DeleteItem handles DELETE /api/v1/items/{itemID}
// Listing attempts for the item are kept: the audit trail is immutable.
func (s *Service) DeleteItem(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "itemID")

	err := s.store.DeleteItem(r.Context(), itemID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, "item not found", http.StatusNotFound)
		return
	}
	if err != nil {
		writeError(w, "failed to delete item", http.StatusInternalServerError)
		return
	}

	slog.Info("item deleted", "id", itemID)
	w.WriteHeader(http.StatusNoContent)
}

// SetPrice handles PUT /api/v1/items/{itemID}/price
// Pins a manual list price for one marketplace. The override survives
// recompute passes until explicitly replaced or cleared.
func (s *Service) SetPrice(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "itemID")

	var req SetPriceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	m, err := s.marketplace(req.Marketplace)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !req.Price.IsPositive() {
		writeError(w, "price must be positive", http.StatusBadRequest)
		return
	}

	ctx := r.Context()

	s.mu.Lock()
	defer s.mu.Unlock()

	item, err := s.store.GetItem(ctx, itemID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, "item not found", http.StatusNotFound)
		return
	}
	if err != nil {
		writeError(w, "failed to load item", http.StatusInternalServerError)
		return
	}

	if item.ListPrices == nil {
		item.ListPrices = make(map[model.Marketplace]decimal.Decimal)
	}
	if item.PriceOverridden == nil {
		item.PriceOverridden = make(map[model.Marketplace]bool)
	}
	item.ListPrices[m] = req.Price.Round(fees.CurrencyScale)
	item.PriceOverridden[m] = true
	item.UpdatedAt = time.Now().UTC()

	if err := s.store.UpdateItemPrices(ctx, item.ID, item.ListPrices, item.PriceOverridden); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, "item not found", http.StatusNotFound)
			return
		}
		writeError(w, "failed to update prices", http.StatusInternalServerError)
		return
	}

	slog.Info("price override set",
		"item", item.ID,
		"marketplace", m,
		"price", item.ListPrices[m].String(),
	)

	if s.hub != nil {
		s.hub.Broadcast(Event{
			Type:        "prices_updated",
			ItemID:      item.ID,
			Marketplace: string(m),
			Price:       item.ListPrices[m].String(),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(newItemView(item))
}

// RecomputePrices handles POST /api/v1/prices/recompute
// Reprices every item from its base net. Manual overrides survive unless
// the request asks to replace them.
func (s *Service) RecomputePrices(w http.ResponseWriter, r *http.Request) {
	var req RecomputeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	ctx := r.Context()

	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.store.ListItems(ctx, store.ListFilter{})
	if err != nil {
		writeError(w, "failed to list items", http.StatusInternalServerError)
		return
	}

	updated := 0
	for i := range items {
		item := &items[i]

		var overrides map[model.Marketplace]decimal.Decimal
		if !req.ReplaceOverrides {
			overrides = manualOverrides(item)
		}

		prices, overridden, err := s.priceQuotes(item.BaseNet, overrides)
		if err != nil {
			writeError(w, "internal error: invalid pricing configuration", http.StatusInternalServerError)
			return
		}
		if err := s.store.UpdateItemPrices(ctx, item.ID, prices, overridden); err != nil {
			writeError(w, "failed to update prices for item "+item.ID, http.StatusInternalServerError)
			return
		}
		metrics.PriceRecomputesTotal.Inc()
		updated++
	}

	slog.Info("prices recomputed",
		"updated", updated,
		"replace_overrides", req.ReplaceOverrides,
	)

	if s.hub != nil {
		s.hub.Broadcast(Event{Type: "prices_recomputed", Updated: updated})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int{"updated": updated})
}

// ListOnMarketplace handles POST /api/v1/items/{itemID}/list/{marketplace}
// Runs the listing decision and records it; every attempt lands in the
// audit trail whatever the outcome. A refused listing answers 409 with
// the recorded attempt, so callers see the reason code.
func (s *Service) ListOnMarketplace(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "itemID")

	m, err := s.marketplace(chi.URLParam(r, "marketplace"))
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx := r.Context()

	s.mu.Lock()
	defer s.mu.Unlock()

	item, err := s.store.GetItem(ctx, itemID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, "item not found", http.StatusNotFound)
		return
	}
	if err != nil {
		writeError(w, "failed to load item", http.StatusInternalServerError)
		return
	}

	dec := Decide(item, m, s.rules)

	attempt := &model.ListingAttempt{
		ID:             uuid.New().String(),
		ItemID:         item.ID,
		Marketplace:    m,
		Outcome:        dec.Outcome,
		ReasonCode:     dec.ReasonCode,
		Message:        dec.Message,
		ConditionLabel: dec.ConditionLabel,
		FinalPrice:     dec.FinalPrice,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.store.InsertListingAttempt(ctx, attempt); err != nil {
		writeError(w, "failed to record listing attempt", http.StatusInternalServerError)
		return
	}

	metrics.ListingAttemptsTotal.WithLabelValues(string(m), dec.Outcome).Inc()
	if !dec.Success() {
		metrics.ListingFailuresTotal.WithLabelValues(metrics.ReasonLabel(dec.ReasonCode)).Inc()
	}

	slog.Info("listing attempted",
		"attempt_id", attempt.ID,
		"item", item.ID,
		"marketplace", m,
		"outcome", dec.Outcome,
		"reason", dec.ReasonCode,
	)

	if s.hub != nil {
		ev := Event{
			Type:           "listing_attempt",
			ItemID:         item.ID,
			Marketplace:    string(m),
			Outcome:        dec.Outcome,
			ReasonCode:     dec.ReasonCode,
			ConditionLabel: dec.ConditionLabel,
		}
		if dec.Success() {
			ev.Price = dec.FinalPrice.String()
		}
		s.hub.Broadcast(ev)
	}

	status := http.StatusOK
	if !dec.Success() {
		status = http.StatusConflict
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(attempt)
}

// ItemAttempts handles GET /api/v1/items/{itemID}/attempts
// Attempts survive item deletion, so this endpoint does not 404 for
// unknown items; it returns whatever the audit trail holds.
func (s *Service) ItemAttempts(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "itemID")

	attempts, err := s.store.ListingAttemptsByItem(r.Context(), itemID)
	if err != nil {
		writeError(w, "failed to load listing attempts", http.StatusInternalServerError)
		return
	}
	if attempts == nil {
		attempts = []model.ListingAttempt{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(attempts)
}

// MarketplaceAttempts handles GET /api/v1/attempts?marketplace=X
func (s *Service) MarketplaceAttempts(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("marketplace")
	if raw == "" {
		writeError(w, "marketplace query parameter is required", http.StatusBadRequest)
		return
	}
	m, err := s.marketplace(raw)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	attempts, err := s.store.ListingAttemptsByMarketplace(r.Context(), m)
	if err != nil {
		writeError(w, "failed to load listing attempts", http.StatusInternalServerError)
		return
	}
	if attempts == nil {
		attempts = []model.ListingAttempt{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(attempts)
}

// --- Helpers ---

// marketplace resolves a path or query value against the configured fee
// rules. The channel set is config-defined, so validation happens here
// rather than against a hardcoded list.
func (s *Service) marketplace(raw string) (model.Marketplace, error) {
	m := model.Marketplace(strings.ToUpper(strings.TrimSpace(raw)))
	if _, ok := s.rules.Fees[m]; !ok {
		return "", fmt.Errorf("unknown marketplace %q (configured: %v)", raw, s.rules.Marketplaces())
	}
	return m, nil
}

// checkOverrideKeys rejects overrides for marketplaces that carry no fee
// rule. The pricing engine would skip them silently; the API boundary
// should not.
func (s *Service) checkOverrideKeys(overrides map[model.Marketplace]decimal.Decimal) error {
	for m := range overrides {
		if _, ok := s.rules.Fees[m]; !ok {
			return fmt.Errorf("unknown marketplace %q in price_overrides (configured: %v)", m, s.rules.Marketplaces())
		}
	}
	return nil
}

// priceQuotes runs one pricing pass and splits the quotes into the two
// maps the store persists.
func (s *Service) priceQuotes(
	baseNet decimal.Decimal,
	overrides map[model.Marketplace]decimal.Decimal,
) (map[model.Marketplace]decimal.Decimal, map[model.Marketplace]bool, error) {
	quotes, err := pricing.Recommend(baseNet, s.minMargin, s.rules.Fees, overrides)
	if err != nil {
		return nil, nil, err
	}
	prices := make(map[model.Marketplace]decimal.Decimal, len(quotes))
	overridden := make(map[model.Marketplace]bool, len(quotes))
	for m, q := range quotes {
		prices[m] = q.Price
		overridden[m] = q.Overridden
	}
	return prices, overridden, nil
}

// manualOverrides extracts the prices that must survive a recompute pass.
func manualOverrides(item *model.Item) map[model.Marketplace]decimal.Decimal {
	out := make(map[model.Marketplace]decimal.Decimal)
	for m, overridden := range item.PriceOverridden {
		if overridden {
			out[m] = item.ListPrices[m]
		}
	}
	return out
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
