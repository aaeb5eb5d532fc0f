package pricing

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/refurbly/listing-engine/internal/fees"
	"github.com/refurbly/listing-engine/internal/model"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func testRules(t *testing.T) map[model.Marketplace]fees.Rule {
	t.Helper()
	x, err := fees.Percent(d(0.10))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	y, err := fees.PercentPlusFixed(d(0.08), d(2))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	z, err := fees.Percent(d(0.12))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return map[model.Marketplace]fees.Rule{
		model.MarketplaceX: x,
		model.MarketplaceY: y,
		model.MarketplaceZ: z,
	}
}

// --- Recommend ---

func TestRecommend_FeeBasedPrices(t *testing.T) {
	// baseNet=100, margin=0.07 → target revenue 107.00.
	// X percent(0.10): 107/0.90 = 118.89
	// Y percent_plus_fixed(0.08, 2): 109/0.92 = 118.48
	// Z percent(0.12): 107/0.88 = 121.59
	quotes, err := Recommend(d(100), d(0.07), testRules(t), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := map[model.Marketplace]float64{
		model.MarketplaceX: 118.89,
		model.MarketplaceY: 118.48,
		model.MarketplaceZ: 121.59,
	}
	for m, price := range want {
		q, ok := quotes[m]
		if !ok {
			t.Fatalf("missing quote for %s", m)
		}
		if !q.Price.Equal(d(price)) {
			t.Errorf("%s: expected %v, got %s", m, price, q.Price)
		}
		if q.Overridden {
			t.Errorf("%s: computed price should not be marked overridden", m)
		}
	}
}

func TestRecommend_OverrideWinsVerbatim(t *testing.T) {
	overrides := map[model.Marketplace]decimal.Decimal{
		model.MarketplaceX: d(150),
	}
	quotes, err := Recommend(d(100), d(0.07), testRules(t), overrides)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !quotes[model.MarketplaceX].Price.Equal(d(150)) {
		t.Errorf("override should win exactly, got %s", quotes[model.MarketplaceX].Price)
	}
	if !quotes[model.MarketplaceX].Overridden {
		t.Error("overridden quote should be marked")
	}
	// Other marketplaces keep their computed prices.
	if !quotes[model.MarketplaceY].Price.Equal(d(118.48)) {
		t.Errorf("Y should stay fee-based, got %s", quotes[model.MarketplaceY].Price)
	}
}

func TestRecommend_OverrideIndependentOfBaseNet(t *testing.T) {
	overrides := map[model.Marketplace]decimal.Decimal{model.MarketplaceX: d(99.95)}

	for _, baseNet := range []float64{1, 100, 5000} {
		quotes, err := Recommend(d(baseNet), d(0.07), testRules(t), overrides)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !quotes[model.MarketplaceX].Price.Equal(d(99.95)) {
			t.Errorf("baseNet=%v: override drifted to %s", baseNet, quotes[model.MarketplaceX].Price)
		}
	}
}

func TestRecommend_OverrideRoundedToCurrency(t *testing.T) {
	overrides := map[model.Marketplace]decimal.Decimal{
		model.MarketplaceX: decimal.RequireFromString("123.456"),
	}
	quotes, _ := Recommend(d(100), d(0.07), testRules(t), overrides)
	if !quotes[model.MarketplaceX].Price.Equal(d(123.46)) {
		t.Errorf("override should be rounded to 2dp, got %s", quotes[model.MarketplaceX].Price)
	}
}

func TestRecommend_NonPositiveOverrideIgnored(t *testing.T) {
	overrides := map[model.Marketplace]decimal.Decimal{
		model.MarketplaceX: decimal.Zero,
		model.MarketplaceY: d(-10),
	}
	quotes, _ := Recommend(d(100), d(0.07), testRules(t), overrides)

	if quotes[model.MarketplaceX].Overridden || !quotes[model.MarketplaceX].Price.Equal(d(118.89)) {
		t.Errorf("zero override should fall back to fee price, got %+v", quotes[model.MarketplaceX])
	}
	if quotes[model.MarketplaceY].Overridden || !quotes[model.MarketplaceY].Price.Equal(d(118.48)) {
		t.Errorf("negative override should fall back to fee price, got %+v", quotes[model.MarketplaceY])
	}
}

func TestRecommend_OnlyConfiguredMarketplaces(t *testing.T) {
	// A fourth marketplace appears by adding a rule, nothing else.
	rules := testRules(t)
	q, err := fees.Percent(d(0.05))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rules["Q"] = q

	quotes, _ := Recommend(d(100), d(0), rules, nil)
	if len(quotes) != 4 {
		t.Fatalf("expected 4 quotes, got %d", len(quotes))
	}
	// 100 / 0.95 = 105.26
	if !quotes["Q"].Price.Equal(d(105.26)) {
		t.Errorf("expected 105.26 for Q, got %s", quotes["Q"].Price)
	}
}

func TestRecommend_OverrideForUnknownMarketplaceSkipped(t *testing.T) {
	overrides := map[model.Marketplace]decimal.Decimal{"GHOST": d(50)}
	quotes, _ := Recommend(d(100), d(0.07), testRules(t), overrides)
	if _, ok := quotes["GHOST"]; ok {
		t.Error("marketplaces without a fee rule must not be quoted")
	}
}

func TestRecommend_NegativeMargin(t *testing.T) {
	_, err := Recommend(d(100), d(-0.01), testRules(t), nil)
	if !errors.Is(err, ErrInvalidMargin) {
		t.Errorf("expected ErrInvalidMargin, got %v", err)
	}
}

func TestRecommend_ZeroMarginAllowed(t *testing.T) {
	quotes, err := Recommend(d(100), d(0), testRules(t), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Target revenue equals base net: 100/0.90 = 111.11.
	if !quotes[model.MarketplaceX].Price.Equal(d(111.11)) {
		t.Errorf("expected 111.11, got %s", quotes[model.MarketplaceX].Price)
	}
}

func TestRecommend_Idempotent(t *testing.T) {
	rules := testRules(t)
	overrides := map[model.Marketplace]decimal.Decimal{model.MarketplaceZ: d(140)}

	first, err := Recommend(d(100), d(0.07), rules, overrides)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := Recommend(d(100), d(0.07), rules, overrides)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(first) != len(second) {
		t.Fatalf("result size changed between calls: %d vs %d", len(first), len(second))
	}
	for m, q1 := range first {
		q2 := second[m]
		if !q1.Price.Equal(q2.Price) || q1.Overridden != q2.Overridden {
			t.Errorf("%s: results differ between identical calls: %+v vs %+v", m, q1, q2)
		}
	}
}

// --- TargetRevenue ---

func TestTargetRevenue(t *testing.T) {
	got := TargetRevenue(d(100), d(0.07))
	if !got.Equal(d(107)) {
		t.Errorf("expected 107, got %s", got)
	}
}

// --- IsProfitable ---

func TestIsProfitable_AboveReference(t *testing.T) {
	// 118.89 on X nets 107.00, comfortably above a base of 100.
	rule, _ := fees.Percent(d(0.10))
	if !IsProfitable(d(118.89), d(100), rule) {
		t.Error("expected profitable")
	}
}

func TestIsProfitable_BreakevenCounts(t *testing.T) {
	// 118.89 * 0.90 = 107.00 exactly; equality is profitable.
	rule, _ := fees.Percent(d(0.10))
	if !IsProfitable(d(118.89), d(107), rule) {
		t.Error("breakeven should count as profitable")
	}
}

func TestIsProfitable_BelowReference(t *testing.T) {
	rule, _ := fees.Percent(d(0.10))
	if IsProfitable(d(110), d(100), rule) {
		t.Error("110 under a 10 percent fee nets 99.00, below 100")
	}
}

func TestIsProfitable_FixedFeeBites(t *testing.T) {
	// 105 * 0.92 - 2 = 94.60, below a base of 95.
	rule, _ := fees.PercentPlusFixed(d(0.08), d(2))
	if IsProfitable(d(105), d(95), rule) {
		t.Error("expected unprofitable once the fixed fee is deducted")
	}
}
