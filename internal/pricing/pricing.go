// Package pricing turns a seller's net target into recommended list prices
// per marketplace, honoring manual overrides, and decides whether a given
// list price is still profitable after fees.
//
// Every function is pure and keeps no shared state, which makes bulk
// recomputes idempotent and safe to parallelize from the caller.
package pricing

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/refurbly/listing-engine/internal/fees"
	"github.com/refurbly/listing-engine/internal/model"
)

// ErrInvalidMargin is returned when the configured minimum margin is
// negative. Margin is a configuration input, validated at the call
// boundary rather than assumed.
var ErrInvalidMargin = errors.New("pricing: minimum margin must not be negative")

var one = decimal.NewFromInt(1)

// Quote is one marketplace's recommended price. Overridden marks prices
// that came from a manual override rather than the fee computation.
type Quote struct {
	Price      decimal.Decimal `json:"price"`
	Overridden bool            `json:"overridden"`
}

// TargetRevenue is the net amount a sale should produce: the base net
// inflated by the minimum margin fraction.
func TargetRevenue(baseNet, minMargin decimal.Decimal) decimal.Decimal {
	return baseNet.Mul(one.Add(minMargin))
}

// Recommend computes the recommended list price for every marketplace that
// has a fee rule. A positive manual override wins verbatim (rounded to the
// currency scale) and is marked Overridden; non-positive overrides are
// ignored. Marketplaces appearing only in overrides are skipped: the set
// of channels is defined by the fee rules, nothing else.
func Recommend(
	baseNet, minMargin decimal.Decimal,
	rules map[model.Marketplace]fees.Rule,
	overrides map[model.Marketplace]decimal.Decimal,
) (map[model.Marketplace]Quote, error) {
	if minMargin.IsNegative() {
		return nil, fmt.Errorf("%w: got %s", ErrInvalidMargin, minMargin)
	}

	target := TargetRevenue(baseNet, minMargin)
	quotes := make(map[model.Marketplace]Quote, len(rules))

	for m, rule := range rules {
		if ov, ok := overrides[m]; ok && ov.IsPositive() {
			quotes[m] = Quote{Price: ov.Round(fees.CurrencyScale), Overridden: true}
			continue
		}
		quotes[m] = Quote{Price: rule.Forward(target)}
	}
	return quotes, nil
}

// IsProfitable reports whether a list price still nets at least the base
// reference amount after the marketplace's fees. Breakeven counts as
// profitable.
func IsProfitable(listPrice, baseReference decimal.Decimal, rule fees.Rule) bool {
	return rule.Inverse(listPrice).GreaterThanOrEqual(baseReference)
}
