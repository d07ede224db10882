package domain

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// NumericValue coerces a stored scalar into a number.
// Missing, empty and non-numeric values (including legacy free text) yield 0.
func NumericValue(v any) float64 {
	f, ok := ParseNumeric(v)
	if !ok {
		return 0
	}
	return f
}

// ParseNumeric converts a scalar into a number and reports whether it was numeric
func ParseNumeric(v any) (float64, bool) {
	switch n := v.(type) {
	case nil:
		return 0, false
	case float64:
		return finite(n)
	case float32:
		return finite(float64(n))
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return finite(f)
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return finite(f)
	default:
		return 0, false
	}
}

func finite(f float64) (float64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// IsMetadataKey reports whether a data key is submission metadata rather than a form field
func IsMetadataKey(key string) bool {
	return strings.HasPrefix(key, "_")
}

// IsScalar reports whether v can be stored as a single cell value
func IsScalar(v any) bool {
	switch v.(type) {
	case nil, string, bool, float64, float32, int, int32, int64, json.Number:
		return true
	default:
		return false
	}
}
