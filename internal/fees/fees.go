// Package fees implements marketplace fee rules and the forward/inverse
// price conversions built on them.
//
// A fee rule answers two questions for one marketplace:
//   - forward: what buyer-facing list price recovers a desired seller net?
//   - inverse: what does the seller actually keep at a given list price?
//
// Both directions are exact inverses of each other (within the 2-decimal
// currency rounding), which is what makes recommended prices auditable:
// Inverse(Forward(net)) == net to the cent.
//
// All monetary values use shopspring/decimal; never float64 for money.
package fees

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrInvalidFeeRule is returned when a rule is constructed with a rate
// outside [0, 1) or a negative fixed component. A rate of 1 or more makes
// the forward conversion divide by zero or flip sign.
var ErrInvalidFeeRule = errors.New("fees: invalid fee rule")

// CurrencyScale is the number of decimal places for currency rounding.
// Rounding is half-up, the usual display convention for prices.
const CurrencyScale int32 = 2

// Rule kinds, as they appear in configuration.
const (
	KindPercent          = "percent"
	KindPercentPlusFixed = "percent_plus_fixed"
)

var one = decimal.NewFromInt(1)

// Rule is one marketplace's fee structure. Immutable value; construct via
// Percent, PercentPlusFixed, or New.
type Rule struct {
	kind  string
	rate  decimal.Decimal
	fixed decimal.Decimal
}

// Percent creates a rule where the marketplace keeps rate of the list
// price (e.g. 0.10 for a 10% commission).
func Percent(rate decimal.Decimal) (Rule, error) {
	if err := validateRate(rate); err != nil {
		return Rule{}, err
	}
	return Rule{kind: KindPercent, rate: rate}, nil
}

// PercentPlusFixed creates a rule where the marketplace keeps rate of the
// list price plus a fixed per-sale fee.
func PercentPlusFixed(rate, fixed decimal.Decimal) (Rule, error) {
	if err := validateRate(rate); err != nil {
		return Rule{}, err
	}
	if fixed.IsNegative() {
		return Rule{}, fmt.Errorf("%w: fixed fee %s is negative", ErrInvalidFeeRule, fixed)
	}
	return Rule{kind: KindPercentPlusFixed, rate: rate, fixed: fixed}, nil
}

// New creates a rule from its configuration form.
func New(kind string, rate, fixed decimal.Decimal) (Rule, error) {
	switch kind {
	case KindPercent:
		return Percent(rate)
	case KindPercentPlusFixed:
		return PercentPlusFixed(rate, fixed)
	default:
		return Rule{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidFeeRule, kind)
	}
}

func validateRate(rate decimal.Decimal) error {
	if rate.IsNegative() {
		return fmt.Errorf("%w: rate %s is negative", ErrInvalidFeeRule, rate)
	}
	if rate.GreaterThanOrEqual(one) {
		return fmt.Errorf("%w: rate %s must be below 1", ErrInvalidFeeRule, rate)
	}
	return nil
}

// Kind returns the rule kind.
func (r Rule) Kind() string {
	return r.kind
}

// Rate returns the percentage component.
func (r Rule) Rate() decimal.Decimal {
	return r.rate
}

// Fixed returns the fixed per-sale component (zero for percent rules).
func (r Rule) Fixed() decimal.Decimal {
	return r.fixed
}

// Forward converts a desired seller net into the buyer-facing list price:
//
//	percent:            price = net / (1 - rate)
//	percent_plus_fixed: price = (net + fixed) / (1 - rate)
//
// Result is rounded to CurrencyScale.
func (r Rule) Forward(net decimal.Decimal) decimal.Decimal {
	return net.Add(r.fixed).Div(one.Sub(r.rate)).Round(CurrencyScale)
}

// Inverse converts a list price into the seller's net proceeds:
//
//	percent:            net = price * (1 - rate)
//	percent_plus_fixed: net = price * (1 - rate) - fixed
//
// Result is rounded to CurrencyScale. A fixed fee larger than the
// retained amount yields a negative net; callers treat that as any other
// unprofitable price.
func (r Rule) Inverse(price decimal.Decimal) decimal.Decimal {
	return price.Mul(one.Sub(r.rate)).Sub(r.fixed).Round(CurrencyScale)
}
