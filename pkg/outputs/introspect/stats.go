package introspect

import (
	"fmt"
	"sort"
)

type typeCounts struct {
	objects  int64
	arrays   int64
	strings  int64
	numbers  int64
	booleans int64
	nulls    int64
}

type jsonStats struct {
	maxDepth    int
	totalKeys   int64
	totalValues int64
	types       typeCounts
}

func (s *jsonStats) merge(other *jsonStats) {
	if other.maxDepth > s.maxDepth {
		s.maxDepth = other.maxDepth
	}
	s.totalKeys += other.totalKeys
	s.totalValues += other.totalValues
	s.types.objects += other.types.objects
	s.types.arrays += other.types.arrays
	s.types.strings += other.types.strings
	s.types.numbers += other.types.numbers
	s.types.booleans += other.types.booleans
	s.types.nulls += other.types.nulls
}

func walkValue(value interface{}, path string, depth, maxDepth int, sampleArrays bool,
	stats *jsonStats, arrays, objects *[]map[string]interface{}) {
	if depth > stats.maxDepth {
		stats.maxDepth = depth
	}
	stats.totalValues++

	switch v := value.(type) {
	case map[string]interface{}:
		stats.types.objects++
		stats.totalKeys += int64(len(v))
		*objects = append(*objects, map[string]interface{}{
			"path": path,
			"keys": len(v),
		})

		if depth < maxDepth {
			for _, key := range sortedKeys(v) {
				walkValue(v[key], path+"."+key, depth+1, maxDepth, sampleArrays, stats, arrays, objects)
			}
		}
	case []interface{}:
		stats.types.arrays++
		itemType := "unknown"
		if sampleArrays && len(v) > 0 {
			itemType = determineArrayItemType(v)
		}
		*arrays = append(*arrays, map[string]interface{}{
			"path":      path,
			"length":    len(v),
			"item_type": itemType,
		})

		if depth < maxDepth {
			// Representative items only: first, middle, last.
			for _, idx := range sampleIndices(len(v)) {
				walkValue(v[idx], fmt.Sprintf("%s[%d]", path, idx), depth+1, maxDepth, sampleArrays, stats, arrays, objects)
			}
		}
	case string:
		stats.types.strings++
	case bool:
		stats.types.booleans++
	case nil:
		stats.types.nulls++
	default:
		stats.types.numbers++
	}
}

func sampleIndices(length int) []int {
	if length == 0 {
		return nil
	}
	indices := []int{0}
	if length > 2 {
		indices = append(indices, length/2)
	}
	if length > 1 {
		indices = append(indices, length-1)
	}
	return indices
}

func determineArrayItemType(items []interface{}) string {
	if len(items) == 0 {
		return "unknown"
	}
	first := typeName(items[0])
	limit := len(items)
	if limit > 10 {
		limit = 10
	}
	for _, item := range items[:limit] {
		if typeName(item) != first {
			return "mixed"
		}
	}
	return first
}

func typeName(value interface{}) string {
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

func formatBytes(bytes int64) string {
	const (
		kb = 1024
		mb = 1024 * kb
		gb = 1024 * mb
	)
	switch {
	case bytes >= gb:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(gb))
	case bytes >= mb:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(mb))
	case bytes >= kb:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(kb))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

// inferSchema derives a lightweight JSON Schema from a value, sampling the
// first array element when sampling is enabled.
func inferSchema(value interface{}, depth, maxDepth int, sampleArrays bool) map[string]interface{} {
	if depth >= maxDepth {
		return map[string]interface{}{}
	}

	switch v := value.(type) {
	case map[string]interface{}:
		properties := make(map[string]interface{}, len(v))
		for key, child := range v {
			properties[key] = inferSchema(child, depth+1, maxDepth, sampleArrays)
		}
		return map[string]interface{}{
			"type":       "object",
			"properties": properties,
		}
	case []interface{}:
		items := map[string]interface{}{}
		if sampleArrays && len(v) > 0 {
			items = inferSchema(v[0], depth+1, maxDepth, sampleArrays)
		}
		return map[string]interface{}{
			"type":  "array",
			"items": items,
		}
	default:
		return map[string]interface{}{"type": typeName(value)}
	}
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
