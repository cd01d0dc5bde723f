package introspect

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/damarr/helmsman/pkg/delivery"
)

// Query paths arrive in JSONPath style ("$.items[0].id", "$.items[*].name")
// because that is what models reliably produce. They are translated to
// gjson syntax before evaluation.

// translatePath converts a JSONPath-style expression into a gjson path.
// An empty result means the document root.
func translatePath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("empty path")
	}
	if trimmed == "$" {
		return "", nil
	}

	rest := trimmed
	if strings.HasPrefix(rest, "$.") {
		rest = rest[2:]
	} else if strings.HasPrefix(rest, "$") {
		rest = rest[1:]
	}

	var b strings.Builder
	for _, ch := range rest {
		switch ch {
		case '[':
			b.WriteByte('.')
		case ']':
		case '*':
			b.WriteByte('#')
		default:
			b.WriteRune(ch)
		}
	}

	translated := strings.Trim(b.String(), ".")
	for strings.Contains(translated, "..") {
		translated = strings.ReplaceAll(translated, "..", ".")
	}
	if translated == "" {
		return "", fmt.Errorf("invalid path %q", path)
	}
	return translated, nil
}

// queryPath evaluates a JSONPath-style expression against a decoded value.
// Wildcard paths yield all matches; plain paths yield zero or one.
func queryPath(value interface{}, path string) ([]interface{}, error) {
	gjsonPath, err := translatePath(path)
	if err != nil {
		return nil, fmt.Errorf("invalid JSONPath %q: %w", path, err)
	}
	if gjsonPath == "" {
		return []interface{}{value}, nil
	}

	result := gjson.Get(delivery.Serialize(value), gjsonPath)
	if !result.Exists() {
		return nil, nil
	}

	if strings.Contains(gjsonPath, "#") && result.IsArray() {
		values := make([]interface{}, 0)
		result.ForEach(func(_, item gjson.Result) bool {
			values = append(values, item.Value())
			return true
		})
		return values, nil
	}

	return []interface{}{result.Value()}, nil
}
