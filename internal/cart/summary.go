package cart

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// lineDelimiter separates encoded items in the metadata summary string.
const lineDelimiter = " | "

// linePattern matches the canonical encoding produced by EncodeLines. The
// decoder tolerates anything else by keeping the text as the description.
var linePattern = regexp.MustCompile(`^Item (\d+): (.*) \(x(\d+)\) @ R([-+]?\d+(?:\.\d+)?)$`)

// Summary is the derived view of a cart used for gateway metadata and
// receipts. It is never stored by this service.
type Summary struct {
	Items       []Item
	TotalAmount float64
}

// Summarize normalizes every raw item in order and resolves the total amount.
// A client-declared amount wins when it coerces to a finite positive number;
// otherwise the total is the sum of price x quantity across items.
func Summarize(rawItems []any, declaredAmount any) Summary {
	items := make([]Item, 0, len(rawItems))
	for i, raw := range rawItems {
		items = append(items, Normalize(raw, i+1))
	}

	total := Number(declaredAmount)
	if !(total > 0) || math.IsInf(total, 0) {
		total = 0
		for _, item := range items {
			total += item.Price * float64(item.Quantity)
		}
	}

	return Summary{Items: items, TotalAmount: total}
}

// EncodeLines renders items as the pipe-delimited metadata string:
// "Item {i}: {description} (x{q}) @ R{p}" joined by " | ". This is the single
// canonical textual encoding; DecodeLines understands exactly this format.
func EncodeLines(items []Item) string {
	lines := make([]string, 0, len(items))
	for _, item := range items {
		lines = append(lines, fmt.Sprintf("Item %d: %s (x%d) @ R%s",
			item.LineIndex, item.Description, item.Quantity, FormatAmount(item.Price)))
	}
	return strings.Join(lines, lineDelimiter)
}

// DecodeLines parses the pipe-delimited summary string back into items. The
// decoding is best-effort: segments that do not match the canonical pattern
// keep their full text as the description with quantity 1 and price 0.
func DecodeLines(encoded string) []Item {
	trimmed := strings.TrimSpace(encoded)
	if trimmed == "" {
		return nil
	}

	segments := strings.Split(trimmed, lineDelimiter)
	items := make([]Item, 0, len(segments))
	for i, segment := range segments {
		item := Item{
			Description: strings.TrimSpace(segment),
			Quantity:    1,
			Price:       0,
			LineIndex:   i + 1,
		}

		if match := linePattern.FindStringSubmatch(segment); match != nil {
			item.Description = match[2]
			if index, err := strconv.Atoi(match[1]); err == nil && index > 0 {
				item.LineIndex = index
			}
			if quantity, err := strconv.Atoi(match[3]); err == nil && quantity > 0 {
				item.Quantity = quantity
			}
			if price, err := strconv.ParseFloat(match[4], 64); err == nil && price >= 0 {
				item.Price = price
			}
		}

		items = append(items, item)
	}
	return items
}
