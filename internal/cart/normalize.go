package cart

import (
	"fmt"
	"sort"
	"strings"
)

// Item is the canonical line-item record shared by gateway metadata and the
// receipt template. LineIndex is the 1-based cart position and is stable
// across the initialize -> webhook round trip.
type Item struct {
	Description string  `json:"description"`
	Quantity    int     `json:"quantity"`
	Price       float64 `json:"price"`
	LineIndex   int     `json:"lineIndex"`
}

// describeField pairs a raw cart field with the label used in the rendered
// description. Fields are checked in this order; the storefront has shipped
// several item shapes over time and older snake_case keys still arrive.
type describeField struct {
	key   string
	alias string
	label string
}

var describeFields = []describeField{
	{key: "preset", label: "Preset"},
	{key: "handleType", alias: "handle_type", label: "Handle Type"},
	{key: "mugType", alias: "mug_type", label: "Mug Type"},
	{key: "mugColor", alias: "mug_color", label: "Mug Color"},
	{key: "replacementName", alias: "replacement_name", label: "Replacement Name"},
	{key: "variant", label: "Variant"},
	{key: "size", label: "Size"},
	{key: "color", label: "Color"},
	{key: "engraving", label: "Engraving"},
	{key: "notes", label: "Notes"},
}

// skipFields are never surfaced by the unknown-field fallback: quantities and
// prices are handled separately, and identifiers or image URLs carry no
// display value.
var skipFields = map[string]struct{}{
	"quantity":   {},
	"qty":        {},
	"price":      {},
	"total":      {},
	"lineTotal":  {},
	"line_total": {},
	"id":         {},
	"sku":        {},
	"image":      {},
	"images":     {},
	"thumb":      {},
	"lineIndex":  {},
	"line_index": {},
	"preset":     {},
}

// Normalize converts a single raw cart item into its canonical record.
// Unknown shapes degrade to a best-effort description rather than failing;
// rejecting an unrecognised item would block checkout.
func Normalize(raw any, index int) Item {
	item := Item{
		Description: fallbackDescription(index),
		Quantity:    1,
		Price:       0,
		LineIndex:   index,
	}

	switch v := raw.(type) {
	case nil:
		return item
	case string:
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			item.Description = trimmed
		}
		return item
	case map[string]any:
		item.Description = describeMap(v, index)
		item.Quantity = quantityOf(v)
		item.Price = priceOf(v)
		return item
	default:
		if text := Text(raw); text != "" {
			item.Description = text
		}
		return item
	}
}

func fallbackDescription(index int) string {
	return fmt.Sprintf("Item %d", index)
}

func describeMap(m map[string]any, index int) string {
	// Already-normalized records (the webhook re-runs the normalizer over
	// metadata) carry their description verbatim; re-normalizing is a no-op.
	if raw, ok := m["description"]; ok {
		if text := Text(raw); text != "" {
			return text
		}
	}

	parts := make([]string, 0, len(describeFields))
	for _, field := range describeFields {
		raw, ok := m[field.key]
		if !ok && field.alias != "" {
			raw, ok = m[field.alias]
		}
		if !ok {
			continue
		}
		// Auto-generated preset labels ("Item 3") mean "no value supplied".
		if field.key == "preset" && IsPlaceholder(raw) {
			continue
		}
		text := Text(raw)
		if text == "" {
			continue
		}
		parts = append(parts, field.label+": "+text)
	}

	if len(parts) == 0 {
		parts = describeUnknownFields(m)
	}

	if len(parts) == 0 {
		return fallbackDescription(index)
	}
	return strings.Join(parts, ", ")
}

func describeUnknownFields(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		if _, skip := skipFields[key]; skip {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		text := Text(m[key])
		if text == "" {
			continue
		}
		parts = append(parts, TitleCase(key)+": "+text)
	}
	return parts
}

func quantityOf(m map[string]any) int {
	raw, ok := m["quantity"]
	if !ok {
		raw = m["qty"]
	}
	if n := Number(raw); n > 0 {
		return int(n)
	}
	return 1
}

// priceOf clamps negative prices to zero: downstream encodings ("@ R{p}") and
// gateway subunit amounts require non-negative values.
func priceOf(m map[string]any) float64 {
	n := Number(m["price"])
	if n < 0 {
		return 0
	}
	return n
}
