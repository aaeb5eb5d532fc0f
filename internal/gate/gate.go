// Package gate decides whether an item may proceed to listing at all,
// before any pricing logic runs.
//
// The checks run in a fixed order so the same item always produces the
// same blocking reason: discontinued, then stock, then reserved tags.
// The reserved-tag set is configuration, not strings buried in logic.
package gate

import "strings"

// Reason identifies why the gate blocked an item. The zero value means
// the item passed.
type Reason string

const (
	ReasonNone         Reason = ""
	ReasonDiscontinued Reason = "discontinued"
	ReasonOutOfStock   Reason = "out_of_stock"
	ReasonReserved     Reason = "reserved"
)

// Message returns the human-readable form of a blocking reason.
func (r Reason) Message() string {
	switch r {
	case ReasonDiscontinued:
		return "item is discontinued"
	case ReasonOutOfStock:
		return "item is out of stock"
	case ReasonReserved:
		return "item is reserved for another sales channel"
	default:
		return ""
	}
}

// Gate holds the configured reserved-tag set, normalized once at
// construction (trimmed, lowercased) so per-item checks stay cheap.
type Gate struct {
	reserved map[string]bool
}

// New creates a gate blocking items that carry any of the given tags.
// Matching is case-insensitive and ignores surrounding whitespace.
func New(reservedTags []string) *Gate {
	reserved := make(map[string]bool, len(reservedTags))
	for _, tag := range reservedTags {
		tag = normalizeTag(tag)
		if tag != "" {
			reserved[tag] = true
		}
	}
	return &Gate{reserved: reserved}
}

// Check returns the first blocking reason in the fixed order, or
// ReasonNone when the item may proceed to listing. An item that is both
// discontinued and out of stock reports "discontinued": first match wins.
func (g *Gate) Check(stockQty int, discontinued bool, tags []string) Reason {
	if discontinued {
		return ReasonDiscontinued
	}
	if stockQty <= 0 {
		return ReasonOutOfStock
	}
	for _, tag := range tags {
		if g.reserved[normalizeTag(tag)] {
			return ReasonReserved
		}
	}
	return ReasonNone
}

func normalizeTag(tag string) string {
	return strings.ToLower(strings.TrimSpace(tag))
}
