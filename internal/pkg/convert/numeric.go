// Package convert provides loose numeric coercion for untyped payloads.
package convert

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Number 尝试把任意 JSON/配置取值转成 float64。
func Number(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// NumberFromKeys 按给定 key 顺序取首个可解析的数值。
func NumberFromKeys(m map[string]any, keys ...string) (float64, bool) {
	if len(m) == 0 {
		return 0, false
	}
	for _, key := range keys {
		if key == "" {
			continue
		}
		if val, ok := m[key]; ok {
			if num, ok := Number(val); ok {
				return num, true
			}
		}
	}
	return 0, false
}

// Clamp 将 v 收敛到 [lo, hi]。
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
