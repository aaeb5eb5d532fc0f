// Package config defines the listing engine configuration and provides
// validation helpers. Fee rules, condition tables and the reserved tag set
// are data here, never constants in calling code.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/refurbly/listing-engine/internal/condition"
	"github.com/refurbly/listing-engine/internal/fees"
	"github.com/refurbly/listing-engine/internal/model"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by LISTING_* environment
// variables.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	Redis    RedisConfig    `toml:"redis"`
	Pricing  PricingConfig  `toml:"pricing"`
	Gate     GateConfig     `toml:"gate"`
	// Fees maps marketplace name to its fee rule.
	Fees map[string]FeeConfig `toml:"fees"`
	// Conditions maps marketplace name to a grade-to-label table. An empty
	// section means the built-in default table.
	Conditions map[string]map[string]string `toml:"conditions"`
	LogLevel   string                       `toml:"log_level"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port int `toml:"port"`
}

// DatabaseConfig holds PostgreSQL connection parameters. An empty URL means
// the in-memory store.
type DatabaseConfig struct {
	URL string `toml:"url"`
}

// RedisConfig holds Redis cache parameters. An empty URL disables the cache.
type RedisConfig struct {
	URL      string   `toml:"url"`
	CacheTTL duration `toml:"cache_ttl"`
}

// PricingConfig holds the pricing engine parameters.
type PricingConfig struct {
	// MinMargin is the minimum margin fraction applied on top of an item's
	// base net (0.07 means 7%).
	MinMargin float64 `toml:"min_margin"`
}

// GateConfig holds the stock/eligibility gate parameters.
type GateConfig struct {
	// ReservedTags lists the tags that block listing because the stock is
	// held for another sales channel.
	ReservedTags []string `toml:"reserved_tags"`
}

// FeeConfig describes one marketplace fee rule.
type FeeConfig struct {
	Kind  string  `toml:"kind"`
	Rate  float64 `toml:"rate"`
	Fixed float64 `toml:"fixed"`
}

// Rule builds the fee rule this entry describes.
func (fc FeeConfig) Rule() (fees.Rule, error) {
	return fees.New(fc.Kind, decimal.NewFromFloat(fc.Rate), decimal.NewFromFloat(fc.Fixed))
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "30s", "5m").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings.
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with the stock marketplace setup:
// X charges 10%, Y charges 8% plus a 2.00 fixed fee, Z charges 12%.
func Defaults() Config {
	return Config{
		Server: ServerConfig{Port: 8080},
		Redis:  RedisConfig{CacheTTL: duration{30 * time.Second}},
		Pricing: PricingConfig{
			MinMargin: 0.07,
		},
		Gate: GateConfig{
			ReservedTags: []string{"reserved_b2b", "reserved_direct"},
		},
		Fees: map[string]FeeConfig{
			"X": {Kind: fees.KindPercent, Rate: 0.10},
			"Y": {Kind: fees.KindPercentPlusFixed, Rate: 0.08, Fixed: 2.0},
			"Z": {Kind: fees.KindPercent, Rate: 0.12},
		},
		LogLevel: "info",
	}
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Pricing.MinMargin < 0 {
		errs = append(errs, fmt.Sprintf("pricing: min_margin must not be negative, got %v", c.Pricing.MinMargin))
	}
	if len(c.Fees) == 0 {
		errs = append(errs, "fees: at least one marketplace fee rule is required")
	}
	for name, fc := range c.Fees {
		if _, err := fc.Rule(); err != nil {
			errs = append(errs, fmt.Sprintf("fees.%s: %v", name, err))
		}
	}
	for mp, grades := range c.Conditions {
		for g := range grades {
			if _, err := model.ParseGrade(g); err != nil {
				errs = append(errs, fmt.Sprintf("conditions.%s: %v", mp, err))
			}
		}
	}
	if c.Redis.URL != "" && c.Redis.CacheTTL.Duration <= 0 {
		errs = append(errs, "redis: cache_ttl must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// MinMargin returns the minimum margin as a decimal fraction.
func (c *Config) MinMargin() decimal.Decimal {
	return decimal.NewFromFloat(c.Pricing.MinMargin)
}

// FeeRules builds the per-marketplace fee rules. Malformed rules are fatal
// here; they must never reach the pricing engine.
func (c *Config) FeeRules() (map[model.Marketplace]fees.Rule, error) {
	out := make(map[model.Marketplace]fees.Rule, len(c.Fees))
	for name, fc := range c.Fees {
		rule, err := fc.Rule()
		if err != nil {
			return nil, fmt.Errorf("config: fees.%s: %w", name, err)
		}
		out[model.Marketplace(name)] = rule
	}
	return out, nil
}

// ConditionTable builds the per-marketplace condition tables, falling back
// to the built-in default table when the [conditions] section is empty.
func (c *Config) ConditionTable() condition.Table {
	if len(c.Conditions) == 0 {
		return condition.Default()
	}
	t := make(condition.Table, len(c.Conditions))
	for mp, grades := range c.Conditions {
		inner := make(map[model.Grade]string, len(grades))
		for g, label := range grades {
			inner[model.Grade(g)] = label
		}
		t[model.Marketplace(mp)] = inner
	}
	return t
}

// SlogLevel maps LogLevel onto the slog scale; unknown values mean Info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
