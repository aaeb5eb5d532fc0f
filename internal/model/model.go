// Package model defines the core domain types shared across the listing engine.
// All monetary values use shopspring/decimal; never float64 for money.
package model

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Marketplace identifies one external sales channel. The engine never
// hardcodes the set: callers iterate whatever marketplaces carry a
// configured fee rule, so adding a fourth channel is a config change.
type Marketplace string

// The marketplaces the default configuration ships with.
const (
	MarketplaceX Marketplace = "X"
	MarketplaceY Marketplace = "Y"
	MarketplaceZ Marketplace = "Z"
)

// Grade is the internal condition taxonomy for refurbished stock.
type Grade string

const (
	GradeNew   Grade = "New"
	GradeGood  Grade = "Good"
	GradeScrap Grade = "Scrap"
)

var validGrades = map[Grade]bool{
	GradeNew:   true,
	GradeGood:  true,
	GradeScrap: true,
}

// ErrInvalidGrade is returned when a condition string is outside the
// internal taxonomy.
var ErrInvalidGrade = errors.New("model: invalid condition grade")

// ParseGrade validates a condition string against the internal taxonomy.
func ParseGrade(s string) (Grade, error) {
	g := Grade(s)
	if !validGrades[g] {
		return "", fmt.Errorf("%w: %q (expected New, Good or Scrap)", ErrInvalidGrade, s)
	}
	return g, nil
}

// Grades returns the internal taxonomy in display order.
func Grades() []Grade {
	return []Grade{GradeNew, GradeGood, GradeScrap}
}

// Item is one inventory record. The store owns persistence; the pricing and
// listing packages treat an Item snapshot as read-only input.
type Item struct {
	ID           string `json:"id" db:"id"`
	Brand        string `json:"brand" db:"brand"`
	Model        string `json:"model" db:"model"`
	Storage      string `json:"storage,omitempty" db:"storage"`
	Color        string `json:"color,omitempty" db:"color"`
	Condition    Grade  `json:"condition" db:"condition_grade"`
	// BaseNet is the net amount the seller wants to retain after fees.
	BaseNet decimal.Decimal `json:"base_net" db:"base_net"`
	// CostPrice is the acquisition cost; zero means unknown, in which
	// case profitability falls back to BaseNet.
	CostPrice    decimal.Decimal `json:"cost_price" db:"cost_price"`
	StockQty     int             `json:"stock_qty" db:"stock_qty"`
	Discontinued bool            `json:"discontinued" db:"discontinued"`
	Tags         []string        `json:"tags" db:"tags"`
	// ListPrices holds the buyer-facing price per marketplace. A missing
	// key means the item has never been priced for that channel.
	ListPrices map[Marketplace]decimal.Decimal `json:"list_prices" db:"-"`
	// PriceOverridden marks prices that were supplied manually and must
	// survive recompute passes that do not request override replacement.
	PriceOverridden map[Marketplace]bool `json:"price_overridden" db:"-"`
	CreatedAt       time.Time            `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time            `json:"updated_at" db:"updated_at"`
}

// ProfitReference returns the amount a sale must net to be worth listing:
// the cost price when known, otherwise the seller's base net target.
func (i *Item) ProfitReference() decimal.Decimal {
	if i.CostPrice.IsPositive() {
		return i.CostPrice
	}
	return i.BaseNet
}

// ListedOn returns the marketplaces this item is currently live on:
// a positive list price while in stock and not discontinued.
func (i *Item) ListedOn() []Marketplace {
	if i.Discontinued || i.StockQty <= 0 {
		return nil
	}
	var out []Marketplace
	for m, p := range i.ListPrices {
		if p.IsPositive() {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a] < out[b] })
	return out
}

// Clone returns a deep copy. Item carries maps and a slice, so the
// copy-on-read stores must not hand out aliased internals.
func (i *Item) Clone() *Item {
	out := *i
	if i.Tags != nil {
		out.Tags = append([]string(nil), i.Tags...)
	}
	if i.ListPrices != nil {
		out.ListPrices = make(map[Marketplace]decimal.Decimal, len(i.ListPrices))
		for m, p := range i.ListPrices {
			out.ListPrices[m] = p
		}
	}
	if i.PriceOverridden != nil {
		out.PriceOverridden = make(map[Marketplace]bool, len(i.PriceOverridden))
		for m, v := range i.PriceOverridden {
			out.PriceOverridden[m] = v
		}
	}
	return &out
}

// Listing attempt outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailed  = "failed"
)

// ListingAttempt is an immutable audit record of one listing decision.
// Once created, these are never modified or deleted.
type ListingAttempt struct {
	ID          string      `json:"id" db:"id"`
	ItemID      string      `json:"item_id" db:"item_id"`
	Marketplace Marketplace `json:"marketplace" db:"marketplace"`
	Outcome     string      `json:"outcome" db:"outcome"` // "success" or "failed"
	ReasonCode  string      `json:"reason_code,omitempty" db:"reason_code"`
	Message     string      `json:"message" db:"message"`
	// ConditionLabel is the marketplace-specific condition label, set on
	// success only.
	ConditionLabel string `json:"condition_label,omitempty" db:"condition_label"`
	// FinalPrice is the buyer-facing price the item was (simulated)
	// listed at, set on success only.
	FinalPrice decimal.Decimal `json:"final_price" db:"final_price"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
}
