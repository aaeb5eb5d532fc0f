// Package listing decides whether an item may be listed on a marketplace
// and exposes the HTTP surface that drives the engine: inventory CRUD,
// price recomputation, bulk import, and simulated listing with an
// immutable audit trail.
//
// The decision itself is a pure function (Decide); handlers persist its
// output and broadcast events, never the other way around.
package listing

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/refurbly/listing-engine/internal/condition"
	"github.com/refurbly/listing-engine/internal/fees"
	"github.com/refurbly/listing-engine/internal/gate"
	"github.com/refurbly/listing-engine/internal/model"
	"github.com/refurbly/listing-engine/internal/pricing"
)

// Failure reason codes produced by Decide beyond the gate's own reasons.
// Unsupported conditions carry the grade and marketplace in the code
// itself: "unsupported_condition: <grade> on <marketplace>".
const (
	ReasonMissingPrice = "missing_price"
	ReasonUnprofitable = "unprofitable_after_fees"
)

// Ruleset bundles the configuration one decision needs. Callers build it
// once from config and pass it explicitly; the engine holds no globals.
type Ruleset struct {
	Fees       map[model.Marketplace]fees.Rule
	Conditions condition.Table
	Gate       *gate.Gate
}

// Marketplaces returns the configured channels in stable order. The set
// is defined entirely by which fee rules exist.
func (rs Ruleset) Marketplaces() []model.Marketplace {
	out := make([]model.Marketplace, 0, len(rs.Fees))
	for m := range rs.Fees {
		out = append(out, m)
	}
	sort.Slice(out, func(a, b int) bool { return out[a] < out[b] })
	return out
}

// Decision is the terminal state of one listing attempt.
type Decision struct {
	Outcome        string          `json:"outcome"`
	ReasonCode     string          `json:"reason_code,omitempty"`
	Message        string          `json:"message"`
	ConditionLabel string          `json:"condition_label,omitempty"`
	FinalPrice     decimal.Decimal `json:"final_price"`
}

// Success reports whether the attempt reached the terminal success state.
func (d Decision) Success() bool {
	return d.Outcome == model.OutcomeSuccess
}

func failure(code, message string) Decision {
	return Decision{Outcome: model.OutcomeFailed, ReasonCode: code, Message: message}
}

// Decide runs the listing state machine for one item on one marketplace:
//
//	gate → condition map → price lookup → profitability → success
//
// Transitions are strictly ordered and terminal on the first failure, so
// identical inputs always yield the identical reason code. Decide is pure;
// recording the ListingAttempt is the caller's responsibility.
//
// Callers are expected to attempt only marketplaces present in
// rs.Fees; the HTTP layer rejects unknown channels before this point.
func Decide(item *model.Item, m model.Marketplace, rs Ruleset) Decision {
	// 1. Stock/eligibility gate.
	if reason := rs.Gate.Check(item.StockQty, item.Discontinued, item.Tags); reason != gate.ReasonNone {
		return failure(string(reason), reason.Message())
	}

	// 2. Condition mapping. Failure is a distinct reason, not a default label.
	label, err := rs.Conditions.Map(m, item.Condition)
	if err != nil {
		return failure(
			fmt.Sprintf("unsupported_condition: %s on %s", item.Condition, m),
			fmt.Sprintf("condition %s cannot be listed on marketplace %s", item.Condition, m),
		)
	}

	// 3. Price lookup: a current, positive list price must exist.
	price, ok := item.ListPrices[m]
	if !ok || !price.IsPositive() {
		return failure(ReasonMissingPrice,
			fmt.Sprintf("no list price set for marketplace %s", m))
	}

	// 4. Profitability after fees, against cost when known else base net.
	rule := rs.Fees[m]
	ref := item.ProfitReference()
	if !pricing.IsProfitable(price, ref, rule) {
		return failure(ReasonUnprofitable,
			fmt.Sprintf("price %s nets %s after %s fees, below %s",
				price, rule.Inverse(price), m, ref))
	}

	return Decision{
		Outcome:        model.OutcomeSuccess,
		Message:        fmt.Sprintf("listed on %s as %q at %s", m, label, price),
		ConditionLabel: label,
		FinalPrice:     price,
	}
}
