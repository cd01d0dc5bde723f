package introspect

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/damarr/helmsman/pkg/outputs"
	"github.com/damarr/helmsman/pkg/tools"
)

func setupRegistry(t *testing.T) (*tools.Registry, outputs.Store) {
	t.Helper()
	store := outputs.NewMemoryStore()
	registry := tools.NewRegistry(zerolog.Nop())
	require.NoError(t, Register(registry, store))
	return registry, store
}

func seedRecord(t *testing.T, store outputs.Store, record outputs.Record) {
	t.Helper()
	_, err := store.Store(record)
	require.NoError(t, err)
}

func invoke(t *testing.T, registry *tools.Registry, name string, args map[string]interface{}) tools.Result {
	t.Helper()
	def, ok := registry.Get(name)
	require.True(t, ok, "tool %s not registered", name)
	result, err := def.Handler(context.Background(), args)
	require.NoError(t, err)
	return result
}

func TestRegister_AllToolsPresent(t *testing.T) {
	registry, _ := setupRegistry(t)

	for _, name := range []string{"read", "list", "stats", "extract", "count", "sample"} {
		def, ok := registry.Get(tools.OutputAccessPrefix + name)
		require.True(t, ok, name)
		assert.False(t, def.RequiresApproval)
	}
}

func TestReadTool(t *testing.T) {
	registry, store := setupRegistry(t)
	seedRecord(t, store, outputs.Record{
		ID:             "out-1",
		ToolName:       "web_fetch",
		ConversationID: "conv-1",
		CreatedAt:      1000,
		Success:        true,
		Output:         map[string]interface{}{"status": float64(200)},
	})

	result := invoke(t, registry, "tool_outputs.read", map[string]interface{}{"id": "out-1"})
	require.True(t, result.Success)
	payload := result.Output.(map[string]interface{})
	assert.Equal(t, "web_fetch", payload["tool_name"])
	assert.Equal(t, map[string]interface{}{"status": float64(200)}, payload["output"])

	result = invoke(t, registry, "tool_outputs.read", map[string]interface{}{
		"id": "out-1", "conversation_id": "other",
	})
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "does not match")

	result = invoke(t, registry, "tool_outputs.read", map[string]interface{}{"id": "nope"})
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "no stored output")

	result = invoke(t, registry, "tool_outputs.read", map[string]interface{}{})
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "missing 'id'")
}

func TestListTool_FilterSortPaginate(t *testing.T) {
	registry, store := setupRegistry(t)
	seedRecord(t, store, outputs.Record{ID: "a", ToolName: "search", ConversationID: "c1", CreatedAt: 100, Success: true, Output: "aa"})
	seedRecord(t, store, outputs.Record{ID: "b", ToolName: "search", ConversationID: "c1", CreatedAt: 200, Success: false, Output: "bb"})
	seedRecord(t, store, outputs.Record{ID: "c", ToolName: "web_fetch", ConversationID: "c2", CreatedAt: 300, Success: true, Output: "cc"})

	result := invoke(t, registry, "tool_outputs.list", map[string]interface{}{"tool_name": "search"})
	require.True(t, result.Success)
	payload := result.Output.(map[string]interface{})
	assert.Equal(t, 2, payload["total"])
	entries := payload["outputs"].([]map[string]interface{})
	require.Len(t, entries, 2)
	assert.Equal(t, "b", entries[0]["id"])
	assert.Equal(t, "a", entries[1]["id"])

	result = invoke(t, registry, "tool_outputs.list", map[string]interface{}{
		"sort_by": "created_at", "sort_order": "asc", "limit": float64(1), "offset": float64(1),
	})
	payload = result.Output.(map[string]interface{})
	entries = payload["outputs"].([]map[string]interface{})
	require.Len(t, entries, 1)
	assert.Equal(t, "b", entries[0]["id"])
	assert.Equal(t, true, payload["has_more"])

	result = invoke(t, registry, "tool_outputs.list", map[string]interface{}{"success": true})
	payload = result.Output.(map[string]interface{})
	assert.Equal(t, 2, payload["total"])
}

func TestStatsTool(t *testing.T) {
	registry, store := setupRegistry(t)
	seedRecord(t, store, outputs.Record{
		ID:        "stats-1",
		ToolName:  "search",
		CreatedAt: 1000,
		Success:   true,
		Output: map[string]interface{}{
			"items": []interface{}{
				map[string]interface{}{"id": "x"},
				map[string]interface{}{"id": "y"},
			},
			"count": float64(2),
		},
	})

	result := invoke(t, registry, "tool_outputs.stats", map[string]interface{}{"id": "stats-1"})
	require.True(t, result.Success)
	payload := result.Output.(map[string]interface{})

	structure := payload["structure"].(map[string]interface{})
	assert.Equal(t, "object", structure["root_type"])

	types := payload["types"].(map[string]interface{})
	assert.Equal(t, int64(3), types["object"])
	assert.Equal(t, int64(1), types["array"])

	result = invoke(t, registry, "tool_outputs.stats", map[string]interface{}{
		"id": "stats-1", "include_schema": true,
	})
	payload = result.Output.(map[string]interface{})
	schema := payload["schema"].(map[string]interface{})
	assert.Equal(t, "object", schema["type"])
}

func TestExtractTool(t *testing.T) {
	registry, store := setupRegistry(t)
	seedRecord(t, store, outputs.Record{
		ID:        "ex-1",
		ToolName:  "search",
		CreatedAt: 1000,
		Success:   true,
		Output: map[string]interface{}{
			"items": []interface{}{
				map[string]interface{}{"id": "first"},
				map[string]interface{}{"id": "second"},
			},
		},
	})

	result := invoke(t, registry, "tool_outputs.extract", map[string]interface{}{
		"id": "ex-1", "paths": []interface{}{"$.items[0].id"},
	})
	require.True(t, result.Success)
	payload := result.Output.(map[string]interface{})
	extracted := payload["extracted"].(map[string]interface{})
	assert.Equal(t, []interface{}{"first"}, extracted["$.items[0].id"])

	result = invoke(t, registry, "tool_outputs.extract", map[string]interface{}{
		"id": "ex-1", "paths": []interface{}{"$.items[*].id"}, "flatten": true,
	})
	payload = result.Output.(map[string]interface{})
	assert.Equal(t, []interface{}{"first", "second"}, payload["extracted"])

	result = invoke(t, registry, "tool_outputs.extract", map[string]interface{}{
		"id": "ex-1", "paths": []interface{}{"$.missing"}, "default_value": "fallback",
	})
	payload = result.Output.(map[string]interface{})
	extracted = payload["extracted"].(map[string]interface{})
	assert.Equal(t, "fallback", extracted["$.missing"])
	assert.Equal(t, []string{"$.missing"}, payload["missing_paths"])

	result = invoke(t, registry, "tool_outputs.extract", map[string]interface{}{
		"id": "ex-1", "paths": []interface{}{"$.items[0]"}, "include_paths": true,
	})
	payload = result.Output.(map[string]interface{})
	entries := payload["extracted"].([]map[string]interface{})
	require.Len(t, entries, 1)
	assert.Equal(t, "$.items[0]", entries[0]["path"])

	result = invoke(t, registry, "tool_outputs.extract", map[string]interface{}{
		"id": "ex-1", "paths": []interface{}{},
	})
	assert.False(t, result.Success)
}

func TestCountTool(t *testing.T) {
	registry, store := setupRegistry(t)
	seedRecord(t, store, outputs.Record{
		ID:        "cnt-1",
		ToolName:  "search",
		CreatedAt: 1000,
		Success:   true,
		Output: map[string]interface{}{
			"items":  []interface{}{"a", "b", "c"},
			"nested": []interface{}{[]interface{}{"x", "y"}, "z"},
			"meta":   map[string]interface{}{"k1": float64(1), "k2": float64(2)},
		},
	})

	result := invoke(t, registry, "tool_outputs.count", map[string]interface{}{
		"id": "cnt-1",
		"counts": []interface{}{
			map[string]interface{}{"name": "items", "path": "$.items"},
			map[string]interface{}{"name": "keys", "path": "$.meta", "count_type": "object_keys"},
			map[string]interface{}{"name": "hits", "path": "$.items", "count_type": "matches"},
			map[string]interface{}{"name": "deep", "path": "$.nested", "count_type": "nested_total"},
		},
	})
	require.True(t, result.Success)

	payload := result.Output.(map[string]interface{})
	counts := payload["counts"].(map[string]interface{})
	assert.Equal(t, int64(3), counts["items"])
	assert.Equal(t, int64(2), counts["keys"])
	assert.Equal(t, int64(1), counts["hits"])
	assert.Equal(t, int64(4), counts["deep"])
	assert.Equal(t, int64(10), payload["total"])

	result = invoke(t, registry, "tool_outputs.count", map[string]interface{}{
		"id": "cnt-1",
		"counts": []interface{}{
			map[string]interface{}{"name": "bad", "path": "$.items", "count_type": "bogus"},
		},
	})
	assert.False(t, result.Success)
}

func TestSampleTool(t *testing.T) {
	registry, store := setupRegistry(t)
	items := make([]interface{}, 10)
	for i := range items {
		items[i] = float64(i)
	}
	seedRecord(t, store, outputs.Record{
		ID: "smp-1", ToolName: "search", CreatedAt: 1000, Success: true,
		Output: map[string]interface{}{"items": items},
	})

	result := invoke(t, registry, "tool_outputs.sample", map[string]interface{}{
		"id": "smp-1", "path": "$.items", "size": float64(3), "strategy": "first",
	})
	require.True(t, result.Success)
	payload := result.Output.(map[string]interface{})
	assert.Equal(t, []interface{}{float64(0), float64(1), float64(2)}, payload["sample"])
	assert.Equal(t, 10, payload["total_items"])

	result = invoke(t, registry, "tool_outputs.sample", map[string]interface{}{
		"id": "smp-1", "path": "$.items", "size": float64(2), "strategy": "last",
	})
	payload = result.Output.(map[string]interface{})
	assert.Equal(t, []interface{}{float64(8), float64(9)}, payload["sample"])

	result = invoke(t, registry, "tool_outputs.sample", map[string]interface{}{
		"id": "smp-1", "path": "$.items", "size": float64(3), "strategy": "systematic", "stride": float64(4),
	})
	payload = result.Output.(map[string]interface{})
	assert.Equal(t, []interface{}{float64(0), float64(4), float64(8)}, payload["sample"])

	first := invoke(t, registry, "tool_outputs.sample", map[string]interface{}{
		"id": "smp-1", "path": "$.items", "size": float64(4), "seed": float64(7),
	})
	second := invoke(t, registry, "tool_outputs.sample", map[string]interface{}{
		"id": "smp-1", "path": "$.items", "size": float64(4), "seed": float64(7),
	})
	assert.Equal(t, first.Output, second.Output)

	result = invoke(t, registry, "tool_outputs.sample", map[string]interface{}{
		"id": "smp-1", "path": "$.missing", "size": float64(3),
	})
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "did not match an array")
}

func TestTranslatePath(t *testing.T) {
	cases := map[string]string{
		"$":              "",
		"$.a.b":          "a.b",
		"$.items[0].id":  "items.0.id",
		"$.items[*].id":  "items.#.id",
		"items[2]":       "items.2",
		"$[1]":           "1",
	}
	for input, want := range cases {
		got, err := translatePath(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, got, input)
	}

	_, err := translatePath("  ")
	assert.Error(t, err)
}
