// Package condition maps internal condition grades to the label each
// marketplace wants to see. The mapping is data, not code: a marketplace
// that refuses a grade simply has no entry for it, and adding a channel or
// grade is a table change, never a code change.
package condition

import (
	"errors"
	"fmt"

	"github.com/refurbly/listing-engine/internal/model"
)

// ErrUnsupported is returned when a marketplace has no label for a grade
// (or no table at all). Callers surface this as a distinct listing-failure
// reason; there is deliberately no silent fallback label.
var ErrUnsupported = errors.New("condition: grade not supported on marketplace")

// Table holds the per-marketplace grade→label mapping.
type Table map[model.Marketplace]map[model.Grade]string

// Map resolves the marketplace-specific label for an internal grade.
func (t Table) Map(m model.Marketplace, g model.Grade) (string, error) {
	grades, ok := t[m]
	if !ok {
		return "", fmt.Errorf("%w: %s on %s (marketplace has no condition table)", ErrUnsupported, g, m)
	}
	label, ok := grades[g]
	if !ok {
		return "", fmt.Errorf("%w: %s on %s", ErrUnsupported, g, m)
	}
	return label, nil
}

// Supports reports whether a marketplace accepts a grade at all.
func (t Table) Supports(m model.Marketplace, g model.Grade) bool {
	_, err := t.Map(m, g)
	return err == nil
}

// Default returns the operating table for the three launch marketplaces.
// X takes internal grades as-is and Y maps them onto a star scale. Z
// relabels Scrap stock as "As New" refurbished units.
func Default() Table {
	return Table{
		model.MarketplaceX: {
			model.GradeNew:   "New",
			model.GradeGood:  "Good",
			model.GradeScrap: "Scrap",
		},
		model.MarketplaceY: {
			model.GradeNew:   "3 stars (Excellent)",
			model.GradeGood:  "2 stars (Good)",
			model.GradeScrap: "1 star (Usable)",
		},
		model.MarketplaceZ: {
			model.GradeNew:   "New",
			model.GradeGood:  "Good",
			model.GradeScrap: "As New",
		},
	}
}
