package domain

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	decimalComma   = regexp.MustCompile(`,(\d{1,2})$`)
	thousandsGroup = regexp.MustCompile(`^-?\d{1,3}\.\d{3}$`)
)

// ParseNumber coerces numeric or textual input into a float64. Numbers,
// json.Number included, pass through. Text keeps only digits, '.', ',' and
// '-' ("R$ 10.000,00" becomes 10000). Anything that does not parse yields
// fallback.
func ParseNumber(v any, fallback float64) float64 {
	switch n := v.(type) {
	case nil:
		return fallback
	case float64:
		return finiteOr(n, fallback)
	case float32:
		return finiteOr(float64(n), fallback)
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case uint:
		return float64(n)
	case uint64:
		return float64(n)
	case *int:
		if n == nil {
			return fallback
		}
		return float64(*n)
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return fallback
		}
		return finiteOr(f, fallback)
	case string:
		return parseNumeric(n, fallback)
	default:
		return fallback
	}
}

func parseNumeric(s string, fallback float64) float64 {
	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' || r == ',' || r == '-' {
			b.WriteRune(r)
		}
	}
	cleaned := b.String()
	if cleaned == "" {
		return fallback
	}

	if strings.Contains(cleaned, ",") {
		if decimalComma.MatchString(cleaned) {
			// pt-BR: dots group thousands, the trailing comma is the decimal point.
			cleaned = strings.ReplaceAll(cleaned, ".", "")
			idx := strings.LastIndexByte(cleaned, ',')
			cleaned = strings.ReplaceAll(cleaned[:idx], ",", "") + "." + cleaned[idx+1:]
		} else {
			cleaned = strings.ReplaceAll(cleaned, ",", "")
		}
	} else if strings.Count(cleaned, ".") > 1 || thousandsGroup.MatchString(cleaned) {
		cleaned = strings.ReplaceAll(cleaned, ".", "")
	}

	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return fallback
	}
	return finiteOr(f, fallback)
}

func finiteOr(f, fallback float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fallback
	}
	return f
}
