package cart

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var (
	numberPattern      = regexp.MustCompile(`[-+]?\d+(?:\.\d+)?`)
	placeholderPattern = regexp.MustCompile(`(?i)^item\s*\d+$`)
)

// nameFields and priceFields define the lookup order when rendering a nested
// mapping as text. First non-empty name wins; first nonzero price wins.
var nameFields = []string{"name", "label", "title", "value", "text"}
var priceFields = []string{"price", "amount", "addon", "value"}

// Number converts an arbitrary decoded JSON value to a float64. Finite numbers
// pass through unchanged; strings yield the first signed decimal substring
// ("Price: R90.50" -> 90.5); anything else coerces to 0.
func Number(value any) float64 {
	switch v := value.(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0
		}
		return v
	case float32:
		return Number(float64(v))
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case string:
		match := numberPattern.FindString(v)
		if match == "" {
			return 0
		}
		n, err := strconv.ParseFloat(match, 64)
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

// Text converts an arbitrary decoded JSON value to a display string. Nested
// mappings prefer a name-like field and append a nonzero price-like field as
// " +R{n}"; mappings without a name-like field render every entry as
// "{TitleCasedKey}: {text}". Nil coerces to the empty string.
func Text(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case bool:
		if v {
			return "Yes"
		}
		return "No"
	case float64:
		return FormatAmount(v)
	case float32:
		return FormatAmount(float64(v))
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			if text := Text(item); text != "" {
				parts = append(parts, text)
			}
		}
		return strings.Join(parts, ", ")
	case map[string]any:
		return mapText(v)
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", v))
	}
}

func mapText(m map[string]any) string {
	name := ""
	for _, field := range nameFields {
		if raw, ok := m[field]; ok {
			if text := Text(raw); text != "" {
				name = text
				break
			}
		}
	}

	if name != "" {
		for _, field := range priceFields {
			raw, ok := m[field]
			if !ok {
				continue
			}
			if n := Number(raw); n != 0 {
				return name + " +R" + FormatAmount(n)
			}
		}
		return name
	}

	keys := make([]string, 0, len(m))
	for key := range m {
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
	return strings.Join(parts, ", ")
}

// IsPlaceholder reports whether the value is an auto-generated "Item N" label
// carrying no real content. The match is case-insensitive and ignores
// surrounding whitespace.
func IsPlaceholder(value any) bool {
	s, ok := value.(string)
	if !ok {
		return false
	}
	return placeholderPattern.MatchString(strings.TrimSpace(s))
}

// TitleCase converts snake_case or kebab-case identifiers to space-separated
// words with capitalized first letters, for surfacing unknown fields.
func TitleCase(key string) string {
	fields := strings.FieldsFunc(key, func(r rune) bool {
		return r == '_' || r == '-' || r == ' '
	})
	for i, field := range fields {
		fields[i] = strings.ToUpper(field[:1]) + field[1:]
	}
	return strings.Join(fields, " ")
}

// FormatAmount renders a monetary value without trailing zeros, matching the
// formatting used in gateway metadata and receipt payloads.
func FormatAmount(n float64) string {
	return strconv.FormatFloat(n, 'f', -1, 64)
}
