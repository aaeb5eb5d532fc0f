package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/refurbly/listing-engine/internal/fees"
	"github.com/refurbly/listing-engine/internal/model"
)

func TestDefaults_AreValid(t *testing.T) {
	cfg := Defaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}

	rules, err := cfg.FeeRules()
	if err != nil {
		t.Fatalf("FeeRules: %v", err)
	}
	for _, m := range []model.Marketplace{"X", "Y", "Z"} {
		if _, ok := rules[m]; !ok {
			t.Errorf("missing default fee rule for %s", m)
		}
	}
	if rules["Y"].Kind() != fees.KindPercentPlusFixed {
		t.Errorf("Y kind = %q, want percent_plus_fixed", rules["Y"].Kind())
	}
	if !cfg.MinMargin().Equal(decimal.NewFromFloat(0.07)) {
		t.Errorf("min margin = %s, want 0.07", cfg.MinMargin())
	}
}

func TestLoad_FileThenEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	tomlData := `
log_level = "debug"

[server]
port = 9000

[pricing]
min_margin = 0.05

[fees.X]
kind = "percent"
rate = 0.15

[fees.Y]
kind = "percent_plus_fixed"
rate = 0.08
fixed = 2.0

[fees.Z]
kind = "percent"
rate = 0.12
`
	if err := os.WriteFile(path, []byte(tomlData), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("LISTING_SERVER_PORT", "9090")
	t.Setenv("LISTING_GATE_RESERVED_TAGS", " reserved_b2b , holdback ")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.LogLevel != "debug" {
		t.Errorf("log level = %q, want debug (from file)", cfg.LogLevel)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d, want 9090 (env beats file)", cfg.Server.Port)
	}
	if cfg.Pricing.MinMargin != 0.05 {
		t.Errorf("min margin = %v, want 0.05 (from file)", cfg.Pricing.MinMargin)
	}
	if cfg.Fees["X"].Rate != 0.15 {
		t.Errorf("X rate = %v, want 0.15 (from file)", cfg.Fees["X"].Rate)
	}
	want := []string{"reserved_b2b", "holdback"}
	if len(cfg.Gate.ReservedTags) != 2 || cfg.Gate.ReservedTags[0] != want[0] || cfg.Gate.ReservedTags[1] != want[1] {
		t.Errorf("reserved tags = %v, want %v", cfg.Gate.ReservedTags, want)
	}
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	t.Setenv("LISTING_PRICING_MIN_MARGIN", "0.12")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Pricing.MinMargin != 0.12 {
		t.Errorf("min margin = %v, want 0.12 (from env)", cfg.Pricing.MinMargin)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("port = %d, want default 8080", cfg.Server.Port)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestValidate_CollectsEveryProblem(t *testing.T) {
	cfg := Defaults()
	cfg.LogLevel = "verbose"
	cfg.Pricing.MinMargin = -0.1
	cfg.Fees["X"] = FeeConfig{Kind: "percent", Rate: 1.5}
	cfg.Conditions = map[string]map[string]string{
		"X": {"Mint": "Mint"},
	}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation failure")
	}
	msg := err.Error()
	for _, frag := range []string{"log_level", "min_margin", "fees.X", "conditions.X"} {
		if !strings.Contains(msg, frag) {
			t.Errorf("error should mention %q, got:\n%s", frag, msg)
		}
	}
}

func TestFeeConfig_RuleRejectsBadRate(t *testing.T) {
	fc := FeeConfig{Kind: "percent", Rate: 1.0}
	if _, err := fc.Rule(); !errors.Is(err, fees.ErrInvalidFeeRule) {
		t.Errorf("err = %v, want ErrInvalidFeeRule", err)
	}
}

func TestConditionTable_DefaultWhenEmpty(t *testing.T) {
	cfg := Defaults()
	table := cfg.ConditionTable()

	label, err := table.Map(model.MarketplaceY, model.GradeNew)
	if err != nil {
		t.Fatalf("Map: %v", err)
	}
	if label != "3 stars (Excellent)" {
		t.Errorf("label = %q, want the built-in Y label", label)
	}
}

func TestConditionTable_CustomSection(t *testing.T) {
	cfg := Defaults()
	cfg.Conditions = map[string]map[string]string{
		"X": {"New": "Brand New"},
	}
	table := cfg.ConditionTable()

	label, err := table.Map(model.MarketplaceX, model.GradeNew)
	if err != nil {
		t.Fatalf("Map: %v", err)
	}
	if label != "Brand New" {
		t.Errorf("label = %q, want Brand New", label)
	}
	if _, err := table.Map(model.MarketplaceY, model.GradeNew); err == nil {
		t.Error("custom table must not silently fall back for unlisted marketplaces")
	}
}

func TestRedisCacheTTL_FromEnv(t *testing.T) {
	t.Setenv("LISTING_REDIS_CACHE_TTL", "2m")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Redis.CacheTTL.Duration != 2*time.Minute {
		t.Errorf("cache ttl = %v, want 2m", cfg.Redis.CacheTTL.Duration)
	}
}
