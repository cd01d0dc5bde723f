// Package introspect registers the reserved tool_outputs.* tools: they
// read back previously persisted tool outputs instead of doing new work,
// letting the model inspect large results without inlining them.
package introspect

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/damarr/helmsman/pkg/delivery"
	"github.com/damarr/helmsman/pkg/outputs"
	"github.com/damarr/helmsman/pkg/tools"
)

// Register adds all introspection tools to a registry, backed by the given
// output store.
func Register(registry *tools.Registry, store outputs.Store) error {
	for _, def := range []tools.Definition{
		readTool(store),
		listTool(store),
		statsTool(store),
		extractTool(store),
		countTool(store),
		sampleTool(store),
	} {
		if err := registry.Register(def); err != nil {
			return err
		}
	}
	return nil
}

func loadRecord(store outputs.Store, args map[string]interface{}) (outputs.Record, string, error) {
	id := strings.TrimSpace(stringArg(args, "id"))
	if id == "" {
		return outputs.Record{}, "", fmt.Errorf("missing 'id'")
	}
	record, err := store.Read(id)
	if errors.Is(err, outputs.ErrNotFound) {
		return outputs.Record{}, id, fmt.Errorf("no stored output exists for id '%s'", id)
	}
	if err != nil {
		return outputs.Record{}, id, fmt.Errorf("failed to read stored output '%s': %w", id, err)
	}
	return record, id, nil
}

func readTool(store outputs.Store) tools.Definition {
	return tools.Definition{
		Name:        tools.OutputAccessPrefix + "read",
		Description: "Read a stored tool output by id.",
		Parameters: []tools.Parameter{
			{Name: "id", Type: "string", Description: "The tool output reference ID", Required: true},
			{Name: "conversation_id", Type: "string", Description: "Expected conversation ID of the stored record"},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (tools.Result, error) {
			record, _, err := loadRecord(store, args)
			if err != nil {
				return tools.Fail(err.Error()), nil
			}

			if expected := stringArg(args, "conversation_id"); expected != "" {
				if record.ConversationID == "" {
					return tools.Fail("Stored output missing conversation_id"), nil
				}
				if record.ConversationID != expected {
					return tools.Fail("conversation_id does not match stored record"), nil
				}
			}

			return tools.Ok(map[string]interface{}{
				"id":              record.ID,
				"tool_name":       record.ToolName,
				"conversation_id": record.ConversationID,
				"message_id":      record.MessageID,
				"created_at":      record.CreatedAt,
				"success":         record.Success,
				"parameters":      record.Parameters,
				"output":          record.Output,
			}), nil
		},
	}
}

func listTool(store outputs.Store) tools.Definition {
	return tools.Definition{
		Name:        tools.OutputAccessPrefix + "list",
		Description: "List stored tool outputs with filtering, sorting, and preview capabilities.",
		Parameters: []tools.Parameter{
			{Name: "conversation_id", Type: "string", Description: "Filter by conversation ID"},
			{Name: "tool_name", Type: "string", Description: "Filter by tool name"},
			{Name: "success", Type: "boolean", Description: "Filter by success status"},
			{Name: "after", Type: "integer", Description: "Only show outputs created after this unix timestamp"},
			{Name: "before", Type: "integer", Description: "Only show outputs created before this unix timestamp"},
			{Name: "limit", Type: "integer", Description: "Maximum number of results", Default: 20},
			{Name: "offset", Type: "integer", Description: "Number of results to skip", Default: 0},
			{Name: "sort_by", Type: "string", Description: "Sort field: created_at, size, or tool_name", Default: "created_at"},
			{Name: "sort_order", Type: "string", Description: "Sort order: asc or desc", Default: "desc"},
			{Name: "include_preview", Type: "boolean", Description: "Include preview of output data", Default: true},
			{Name: "preview_length", Type: "integer", Description: "Characters to include in preview", Default: 100},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (tools.Result, error) {
			records, err := store.List()
			if err != nil {
				return tools.Fail(fmt.Sprintf("failed to list stored outputs: %v", err)), nil
			}

			filtered := filterRecords(records, args)
			sortRecords(filtered, stringArgDefault(args, "sort_by", "created_at"), stringArgDefault(args, "sort_order", "desc"))

			limit := clampInt(intArgDefault(args, "limit", 20), 1, 100)
			offset := intArgDefault(args, "offset", 0)
			if offset < 0 {
				offset = 0
			}

			total := len(filtered)
			hasMore := offset+limit < total

			page := filtered
			if offset < len(page) {
				page = page[offset:]
			} else {
				page = nil
			}
			if len(page) > limit {
				page = page[:limit]
			}

			includePreview := boolArgDefault(args, "include_preview", true)
			previewLength := clampInt(intArgDefault(args, "preview_length", 100), 0, 500)

			entries := make([]map[string]interface{}, 0, len(page))
			for _, record := range page {
				entry := map[string]interface{}{
					"id":              record.ID,
					"tool_name":       record.ToolName,
					"conversation_id": record.ConversationID,
					"message_id":      record.MessageID,
					"created_at":      record.CreatedAt,
					"success":         record.Success,
					"size_bytes":      len(delivery.Serialize(record.Output)),
					"summary":         outputSummary(record.Output),
				}
				if includePreview {
					preview, _ := delivery.Preview(record.Output, previewLength)
					entry["preview"] = preview
				}
				entries = append(entries, entry)
			}

			return tools.Ok(map[string]interface{}{
				"outputs":  entries,
				"total":    total,
				"has_more": hasMore,
			}), nil
		},
	}
}

func statsTool(store outputs.Store) tools.Definition {
	return tools.Definition{
		Name:        tools.OutputAccessPrefix + "stats",
		Description: "Get statistics and metadata about stored tool output including size, structure, types, and optional schema generation.",
		Parameters: []tools.Parameter{
			{Name: "id", Type: "string", Description: "The tool output reference ID", Required: true},
			{Name: "include_schema", Type: "boolean", Description: "Generate and include JSON schema of the data", Default: false},
			{Name: "max_depth", Type: "integer", Description: "Maximum depth to analyze", Default: 5},
			{Name: "sample_arrays", Type: "boolean", Description: "Sample arrays to determine item types", Default: true},
			{Name: "paths", Type: "array", Description: "Specific paths to analyze (analyzes root if not specified)"},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (tools.Result, error) {
			record, _, err := loadRecord(store, args)
			if err != nil {
				return tools.Fail(err.Error()), nil
			}

			maxDepth := clampInt(intArgDefault(args, "max_depth", 5), 1, 10)
			sampleArrays := boolArgDefault(args, "sample_arrays", true)

			targets := []interface{}{record.Output}
			targetPaths := []string{"$"}
			if paths, ok := args["paths"].([]interface{}); ok && len(paths) > 0 {
				targets = targets[:0]
				targetPaths = targetPaths[:0]
				for _, raw := range paths {
					pathStr, ok := raw.(string)
					if !ok {
						return tools.Fail("each path must be a string"), nil
					}
					matches, err := queryPath(record.Output, pathStr)
					if err != nil {
						return tools.Fail(err.Error()), nil
					}
					for _, match := range matches {
						targets = append(targets, match)
						targetPaths = append(targetPaths, pathStr)
					}
				}
			}

			var total jsonStats
			var allArrays, allObjects []map[string]interface{}
			for i, target := range targets {
				var stats jsonStats
				walkValue(target, targetPaths[i], 0, maxDepth, sampleArrays, &stats, &allArrays, &allObjects)
				total.merge(&stats)
			}

			serialized := delivery.Serialize(record.Output)
			result := map[string]interface{}{
				"id":         record.ID,
				"tool_name":  record.ToolName,
				"created_at": record.CreatedAt,
				"size": map[string]interface{}{
					"bytes":      len(serialized),
					"characters": len(serialized),
					"formatted":  formatBytes(int64(len(serialized))),
				},
				"structure": map[string]interface{}{
					"root_type":    typeName(record.Output),
					"max_depth":    total.maxDepth,
					"total_keys":   total.totalKeys,
					"total_values": total.totalValues,
				},
				"types": map[string]interface{}{
					"object":  total.types.objects,
					"array":   total.types.arrays,
					"string":  total.types.strings,
					"number":  total.types.numbers,
					"boolean": total.types.booleans,
					"null":    total.types.nulls,
				},
				"arrays":  allArrays,
				"objects": allObjects,
			}

			if boolArgDefault(args, "include_schema", false) {
				result["schema"] = inferSchema(record.Output, 0, maxDepth, sampleArrays)
			}

			return tools.Ok(result), nil
		},
	}
}

func extractTool(store outputs.Store) tools.Definition {
	return tools.Definition{
		Name:        tools.OutputAccessPrefix + "extract",
		Description: "Extract specific fields from stored tool output using JSONPath expressions. Supports multiple paths and various output formats.",
		Parameters: []tools.Parameter{
			{Name: "id", Type: "string", Description: "The tool output reference ID", Required: true},
			{Name: "paths", Type: "array", Description: "Array of JSONPath expressions to extract", Required: true},
			{Name: "flatten", Type: "boolean", Description: "Whether to flatten results into a single array", Default: false},
			{Name: "include_paths", Type: "boolean", Description: "Include the JSONPath expression with each result", Default: false},
			{Name: "default_value", Type: "string", Description: "Default value for missing paths"},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (tools.Result, error) {
			record, _, err := loadRecord(store, args)
			if err != nil {
				return tools.Fail(err.Error()), nil
			}

			paths, ok := args["paths"].([]interface{})
			if !ok || len(paths) == 0 {
				return tools.Fail("'paths' array must not be empty"), nil
			}

			flatten := boolArgDefault(args, "flatten", false)
			includePaths := boolArgDefault(args, "include_paths", false)
			defaultValue, hasDefault := args["default_value"]

			var missingPaths []string
			resolve := func(pathStr string) ([]interface{}, error) {
				matches, err := queryPath(record.Output, pathStr)
				if err != nil {
					return nil, err
				}
				if len(matches) == 0 {
					missingPaths = append(missingPaths, pathStr)
				}
				return matches, nil
			}

			var extracted interface{}
			switch {
			case flatten:
				all := make([]interface{}, 0)
				for _, raw := range paths {
					pathStr, ok := raw.(string)
					if !ok {
						return tools.Fail("each path must be a string"), nil
					}
					matches, err := resolve(pathStr)
					if err != nil {
						return tools.Fail(err.Error()), nil
					}
					if len(matches) == 0 && hasDefault {
						all = append(all, defaultValue)
						continue
					}
					all = append(all, matches...)
				}
				extracted = all
			case includePaths:
				entries := make([]map[string]interface{}, 0, len(paths))
				for _, raw := range paths {
					pathStr, ok := raw.(string)
					if !ok {
						return tools.Fail("each path must be a string"), nil
					}
					matches, err := resolve(pathStr)
					if err != nil {
						return tools.Fail(err.Error()), nil
					}
					var value interface{}
					if len(matches) == 0 {
						value = defaultValue
					} else {
						value = matches
					}
					entries = append(entries, map[string]interface{}{"path": pathStr, "value": value})
				}
				extracted = entries
			default:
				keyed := make(map[string]interface{}, len(paths))
				for _, raw := range paths {
					pathStr, ok := raw.(string)
					if !ok {
						return tools.Fail("each path must be a string"), nil
					}
					matches, err := resolve(pathStr)
					if err != nil {
						return tools.Fail(err.Error()), nil
					}
					if len(matches) == 0 {
						keyed[pathStr] = defaultValue
					} else {
						keyed[pathStr] = matches
					}
				}
				extracted = keyed
			}

			result := map[string]interface{}{"extracted": extracted}
			if len(missingPaths) > 0 {
				result["missing_paths"] = missingPaths
			}
			return tools.Ok(result), nil
		},
	}
}

func countTool(store outputs.Store) tools.Definition {
	return tools.Definition{
		Name:        tools.OutputAccessPrefix + "count",
		Description: "Count items in arrays, object keys, or matches without loading full data. Efficient for large datasets.",
		Parameters: []tools.Parameter{
			{Name: "id", Type: "string", Description: "The tool output reference ID", Required: true},
			{Name: "counts", Type: "array", Description: "Array of count operations to perform", Required: true},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (tools.Result, error) {
			record, _, err := loadRecord(store, args)
			if err != nil {
				return tools.Fail(err.Error()), nil
			}

			ops, ok := args["counts"].([]interface{})
			if !ok || len(ops) == 0 {
				return tools.Fail("missing 'counts' array"), nil
			}

			counts := make(map[string]interface{}, len(ops))
			var total int64
			for _, raw := range ops {
				op, ok := raw.(map[string]interface{})
				if !ok {
					return tools.Fail("each count operation must be an object"), nil
				}
				name := stringArg(op, "name")
				pathStr := stringArg(op, "path")
				if name == "" || pathStr == "" {
					return tools.Fail("each count operation requires 'name' and 'path'"), nil
				}
				countType := stringArgDefault(op, "count_type", "array_length")

				matches, err := queryPath(record.Output, pathStr)
				if err != nil {
					return tools.Fail(err.Error()), nil
				}

				var count int64
				switch countType {
				case "array_length":
					for _, match := range matches {
						if arr, ok := match.([]interface{}); ok {
							count += int64(len(arr))
						}
					}
				case "object_keys":
					for _, match := range matches {
						if obj, ok := match.(map[string]interface{}); ok {
							count += int64(len(obj))
						}
					}
				case "matches":
					count = int64(len(matches))
				case "nested_total":
					for _, match := range matches {
						count += countNestedItems(match)
					}
				default:
					return tools.Fail(fmt.Sprintf("unknown count_type '%s'", countType)), nil
				}

				total += count
				counts[name] = count
			}

			return tools.Ok(map[string]interface{}{
				"counts": counts,
				"total":  total,
			}), nil
		},
	}
}

func countNestedItems(value interface{}) int64 {
	arr, ok := value.([]interface{})
	if !ok {
		return 0
	}
	count := int64(len(arr))
	for _, item := range arr {
		if _, nested := item.([]interface{}); nested {
			count += countNestedItems(item)
		}
	}
	return count
}

func outputSummary(output interface{}) map[string]interface{} {
	switch v := output.(type) {
	case map[string]interface{}:
		return map[string]interface{}{"type": "object", "keys": len(v)}
	case []interface{}:
		return map[string]interface{}{"type": "array", "items": len(v)}
	default:
		return map[string]interface{}{"type": typeName(output)}
	}
}

func filterRecords(records []outputs.Record, args map[string]interface{}) []outputs.Record {
	conversationID := stringArg(args, "conversation_id")
	toolName := stringArg(args, "tool_name")
	successFilter, hasSuccess := args["success"].(bool)
	after, hasAfter := intArg(args, "after")
	before, hasBefore := intArg(args, "before")

	filtered := make([]outputs.Record, 0, len(records))
	for _, record := range records {
		if conversationID != "" && record.ConversationID != conversationID {
			continue
		}
		if toolName != "" && record.ToolName != toolName {
			continue
		}
		if hasSuccess && record.Success != successFilter {
			continue
		}
		if hasAfter && record.CreatedAt <= int64(after) {
			continue
		}
		if hasBefore && record.CreatedAt >= int64(before) {
			continue
		}
		filtered = append(filtered, record)
	}
	return filtered
}

func sortRecords(records []outputs.Record, sortBy, sortOrder string) {
	less := func(a, b outputs.Record) bool {
		switch sortBy {
		case "size":
			return len(delivery.Serialize(a.Output)) < len(delivery.Serialize(b.Output))
		case "tool_name":
			return a.ToolName < b.ToolName
		default:
			return a.CreatedAt < b.CreatedAt
		}
	}
	sort.SliceStable(records, func(i, j int) bool {
		if sortOrder == "desc" {
			return less(records[j], records[i])
		}
		return less(records[i], records[j])
	})
}
