package condition

import (
	"errors"
	"testing"

	"github.com/refurbly/listing-engine/internal/model"
)

func TestMap_DefaultTableLabels(t *testing.T) {
	table := Default()

	tests := []struct {
		marketplace model.Marketplace
		grade       model.Grade
		want        string
	}{
		{model.MarketplaceX, model.GradeNew, "New"},
		{model.MarketplaceX, model.GradeScrap, "Scrap"},
		{model.MarketplaceY, model.GradeNew, "3 stars (Excellent)"},
		{model.MarketplaceY, model.GradeGood, "2 stars (Good)"},
		{model.MarketplaceY, model.GradeScrap, "1 star (Usable)"},
		{model.MarketplaceZ, model.GradeScrap, "As New"},
	}
	for _, tt := range tests {
		got, err := table.Map(tt.marketplace, tt.grade)
		if err != nil {
			t.Errorf("%s/%s: unexpected error: %v", tt.marketplace, tt.grade, err)
			continue
		}
		if got != tt.want {
			t.Errorf("%s/%s: expected %q, got %q", tt.marketplace, tt.grade, tt.want, got)
		}
	}
}

func TestMap_MissingGradeIsError(t *testing.T) {
	// A marketplace that refuses Scrap omits the entry; the lookup must
	// fail, never default.
	table := Table{
		model.MarketplaceZ: {
			model.GradeNew:  "New",
			model.GradeGood: "Good",
		},
	}

	_, err := table.Map(model.MarketplaceZ, model.GradeScrap)
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("expected ErrUnsupported, got %v", err)
	}
}

func TestMap_UnknownMarketplace(t *testing.T) {
	table := Default()
	_, err := table.Map("Q", model.GradeGood)
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("expected ErrUnsupported for unknown marketplace, got %v", err)
	}
}

func TestSupports(t *testing.T) {
	table := Table{
		model.MarketplaceY: {model.GradeNew: "3 stars (Excellent)"},
	}

	if !table.Supports(model.MarketplaceY, model.GradeNew) {
		t.Error("expected New supported on Y")
	}
	if table.Supports(model.MarketplaceY, model.GradeScrap) {
		t.Error("expected Scrap unsupported on Y")
	}
	if table.Supports(model.MarketplaceX, model.GradeNew) {
		t.Error("expected unknown marketplace unsupported")
	}
}

func TestMap_TableIsDataNotCode(t *testing.T) {
	// Adding a marketplace is a table edit; the lookup path is untouched.
	table := Default()
	table["Q"] = map[model.Grade]string{model.GradeNew: "Boxed"}

	got, err := table.Map("Q", model.GradeNew)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "Boxed" {
		t.Errorf("expected Boxed, got %q", got)
	}
}
