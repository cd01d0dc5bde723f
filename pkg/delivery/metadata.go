package delivery

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"
)

// Bounds for metadata extraction. Metadata describes a result that is not
// shown in full, so it must never itself become a large-result problem.
const (
	metadataMaxTopLevelKeys    = 20
	metadataMaxIDHints         = 12
	metadataMaxIDSampleChars   = 80
	metadataMaxItemTypeHints   = 8
	metadataScanMaxDepth       = 4
	metadataScanMaxArrayItems  = 24
	metadataMaxSerializedChars = 1600
)

// ComputeMetadata produces a bounded description of an arbitrary decoded
// JSON value: root type and size, object keys and value-type hints, array
// length and item-type histogram, plus id-like field hints for locating
// records inside a persisted result.
func ComputeMetadata(value interface{}) map[string]interface{} {
	metadata := describeRoot(value)

	var hints []map[string]interface{}
	collectIDHints(value, "$", 0, &hints)
	if len(hints) > 0 {
		metadata["id_hints"] = hints
	}

	return boundMetadataSize(metadata)
}

// StripIDHints returns a copy of metadata without id hints. Used for
// persisted results whose summary line must not leak row-level samples.
func StripIDHints(metadata map[string]interface{}) map[string]interface{} {
	if metadata == nil {
		return nil
	}
	cleaned := make(map[string]interface{}, len(metadata))
	for k, v := range metadata {
		if k == "id_hints" {
			continue
		}
		cleaned[k] = v
	}
	return cleaned
}

func describeRoot(value interface{}) map[string]interface{} {
	switch v := value.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(v))
		for key := range v {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		topKeys := keys
		if len(topKeys) > metadataMaxTopLevelKeys {
			topKeys = topKeys[:metadataMaxTopLevelKeys]
		}

		typeHints := make([]map[string]interface{}, 0, metadataMaxItemTypeHints)
		for _, key := range topKeys {
			if len(typeHints) >= metadataMaxItemTypeHints {
				break
			}
			typeHints = append(typeHints, map[string]interface{}{
				"key":  key,
				"type": jsonTypeName(v[key]),
			})
		}

		return map[string]interface{}{
			"root_type":             "object",
			"size_chars":            CharLen(value),
			"key_count":             len(v),
			"top_level_keys":        topKeys,
			"top_level_value_types": typeHints,
		}
	case []interface{}:
		return map[string]interface{}{
			"root_type":       "array",
			"size_chars":      CharLen(value),
			"array_length":    len(v),
			"item_type_hints": itemTypeHints(v),
		}
	case string:
		return map[string]interface{}{
			"root_type":     "string",
			"size_chars":    CharLen(value),
			"string_length": utf8.RuneCountInString(v),
		}
	case bool:
		return map[string]interface{}{
			"root_type":  "boolean",
			"size_chars": CharLen(value),
		}
	case nil:
		return map[string]interface{}{
			"root_type":  "null",
			"size_chars": CharLen(value),
		}
	default:
		return map[string]interface{}{
			"root_type":  "number",
			"size_chars": CharLen(value),
		}
	}
}

func jsonTypeName(value interface{}) string {
	switch value.(type) {
	case map[string]interface{}:
		return "object"
	case []interface{}:
		return "array"
	case string:
		return "string"
	case bool:
		return "boolean"
	case nil:
		return "null"
	default:
		return "number"
	}
}

func itemTypeHints(items []interface{}) []map[string]interface{} {
	counts := make(map[string]int)
	sample := items
	if len(sample) > metadataScanMaxArrayItems {
		sample = sample[:metadataScanMaxArrayItems]
	}
	for _, item := range sample {
		counts[jsonTypeName(item)]++
	}

	types := make([]string, 0, len(counts))
	for t := range counts {
		types = append(types, t)
	}
	sort.Strings(types)
	if len(types) > metadataMaxItemTypeHints {
		types = types[:metadataMaxItemTypeHints]
	}

	hints := make([]map[string]interface{}, 0, len(types))
	for _, t := range types {
		hints = append(hints, map[string]interface{}{
			"type":  t,
			"count": counts[t],
		})
	}
	return hints
}

func collectIDHints(value interface{}, path string, depth int, hints *[]map[string]interface{}) {
	if depth > metadataScanMaxDepth || len(*hints) >= metadataMaxIDHints {
		return
	}

	switch v := value.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(v))
		for key := range v {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		for _, key := range keys {
			if len(*hints) >= metadataMaxIDHints {
				break
			}
			child := v[key]
			childPath := path + "." + key

			if isIDLikeKey(key) {
				hint := map[string]interface{}{
					"path":       childPath,
					"key":        key,
					"value_type": jsonTypeName(child),
				}
				if sample, ok := idSample(child); ok {
					hint["sample"] = sample
				}
				*hints = append(*hints, hint)
			}

			collectIDHints(child, childPath, depth+1, hints)
		}
	case []interface{}:
		limit := len(v)
		if limit > metadataScanMaxArrayItems {
			limit = metadataScanMaxArrayItems
		}
		for i := 0; i < limit; i++ {
			if len(*hints) >= metadataMaxIDHints {
				break
			}
			collectIDHints(v[i], fmt.Sprintf("%s[%d]", path, i), depth+1, hints)
		}
	}
}

func isIDLikeKey(key string) bool {
	normalized := strings.ToLower(strings.TrimSpace(key))
	return normalized == "id" || strings.HasSuffix(normalized, "id")
}

func idSample(value interface{}) (string, bool) {
	switch v := value.(type) {
	case string:
		return TruncateWithNotice(v, metadataMaxIDSampleChars), true
	case bool:
		return fmt.Sprintf("%t", v), true
	case float64, int, int64, json.Number:
		return TruncateWithNotice(Serialize(v), metadataMaxIDSampleChars), true
	default:
		return "", false
	}
}

// boundMetadataSize trims metadata in stages until it fits under the
// serialized ceiling: drop id hints first, then secondary type hints, then
// collapse to a minimal shape.
func boundMetadataSize(metadata map[string]interface{}) map[string]interface{} {
	if CharLen(metadata) <= metadataMaxSerializedChars {
		return metadata
	}

	delete(metadata, "id_hints")
	metadata["metadata_truncated"] = true
	metadata["metadata_truncation_reason"] = "removed_id_hints_for_size_limit"
	if CharLen(metadata) <= metadataMaxSerializedChars {
		return metadata
	}

	delete(metadata, "item_type_hints")
	delete(metadata, "top_level_value_types")
	metadata["metadata_truncation_reason"] = "removed_secondary_hints_for_size_limit"
	if CharLen(metadata) <= metadataMaxSerializedChars {
		return metadata
	}

	minimal := map[string]interface{}{
		"root_type":                  "unknown",
		"size_chars":                 0,
		"metadata_truncated":         true,
		"metadata_truncation_reason": "hard_size_limit",
	}
	if rootType, ok := metadata["root_type"]; ok {
		minimal["root_type"] = rootType
	}
	if size, ok := metadata["size_chars"]; ok {
		minimal["size_chars"] = size
	}
	return minimal
}
