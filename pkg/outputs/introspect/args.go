package introspect

import "strings"

// Decoded JSON args carry numbers as float64; these helpers normalize the
// common coercions in one place.

func stringArg(args map[string]interface{}, key string) string {
	if s, ok := args[key].(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

func stringArgDefault(args map[string]interface{}, key, fallback string) string {
	if s := stringArg(args, key); s != "" {
		return s
	}
	return fallback
}

func intArg(args map[string]interface{}, key string) (int, bool) {
	switch v := args[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	case int64:
		return int(v), true
	default:
		return 0, false
	}
}

func intArgDefault(args map[string]interface{}, key string, fallback int) int {
	if v, ok := intArg(args, key); ok {
		return v
	}
	return fallback
}

func boolArgDefault(args map[string]interface{}, key string, fallback bool) bool {
	if v, ok := args[key].(bool); ok {
		return v
	}
	return fallback
}

func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
