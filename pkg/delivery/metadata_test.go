package delivery

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeMetadata_Object(t *testing.T) {
	value := map[string]interface{}{
		"user_id": "u-123",
		"name":    "Ada",
		"tags":    []interface{}{"a", "b"},
		"active":  true,
	}

	metadata := ComputeMetadata(value)

	assert.Equal(t, "object", metadata["root_type"])
	assert.Equal(t, 4, metadata["key_count"])
	assert.Equal(t, []string{"active", "name", "tags", "user_id"}, metadata["top_level_keys"])

	hints, ok := metadata["id_hints"].([]map[string]interface{})
	require.True(t, ok)
	require.Len(t, hints, 1)
	assert.Equal(t, "$.user_id", hints[0]["path"])
	assert.Equal(t, "u-123", hints[0]["sample"])
}

func TestComputeMetadata_Array(t *testing.T) {
	value := []interface{}{
		map[string]interface{}{"id": "a"},
		map[string]interface{}{"id": "b"},
		"loose string",
	}

	metadata := ComputeMetadata(value)

	assert.Equal(t, "array", metadata["root_type"])
	assert.Equal(t, 3, metadata["array_length"])

	hints, ok := metadata["item_type_hints"].([]map[string]interface{})
	require.True(t, ok)
	require.Len(t, hints, 2)
	assert.Equal(t, "object", hints[0]["type"])
	assert.Equal(t, 2, hints[0]["count"])
	assert.Equal(t, "string", hints[1]["type"])
}

func TestComputeMetadata_Scalars(t *testing.T) {
	metadata := ComputeMetadata("hello")
	assert.Equal(t, "string", metadata["root_type"])
	assert.Equal(t, 5, metadata["string_length"])

	metadata = ComputeMetadata(float64(42))
	assert.Equal(t, "number", metadata["root_type"])

	metadata = ComputeMetadata(true)
	assert.Equal(t, "boolean", metadata["root_type"])

	metadata = ComputeMetadata(nil)
	assert.Equal(t, "null", metadata["root_type"])
}

func TestComputeMetadata_IDHintCaps(t *testing.T) {
	value := map[string]interface{}{}
	for i := 0; i < 30; i++ {
		value[fmt.Sprintf("field_%02d_id", i)] = fmt.Sprintf("v-%d", i)
	}

	metadata := ComputeMetadata(value)
	hints, ok := metadata["id_hints"].([]map[string]interface{})
	require.True(t, ok)
	assert.Len(t, hints, 12)
}

func TestComputeMetadata_DepthBound(t *testing.T) {
	// An id six levels deep is beyond the scan depth and must not appear.
	value := map[string]interface{}{
		"l1": map[string]interface{}{
			"l2": map[string]interface{}{
				"l3": map[string]interface{}{
					"l4": map[string]interface{}{
						"l5": map[string]interface{}{
							"deep_id": "hidden",
						},
					},
				},
			},
		},
	}

	metadata := ComputeMetadata(value)
	_, ok := metadata["id_hints"]
	assert.False(t, ok)
}

func TestComputeMetadata_BoundedSize(t *testing.T) {
	value := map[string]interface{}{}
	for i := 0; i < 200; i++ {
		value[fmt.Sprintf("some_rather_long_key_name_%03d_id", i)] = strings.Repeat("x", 80)
	}

	metadata := ComputeMetadata(value)
	assert.LessOrEqual(t, CharLen(metadata), metadataMaxSerializedChars)
	assert.Equal(t, true, metadata["metadata_truncated"])
}

func TestStripIDHints(t *testing.T) {
	metadata := map[string]interface{}{
		"root_type": "object",
		"id_hints":  []map[string]interface{}{{"key": "id"}},
	}

	cleaned := StripIDHints(metadata)
	_, ok := cleaned["id_hints"]
	assert.False(t, ok)
	assert.Equal(t, "object", cleaned["root_type"])
	assert.Contains(t, metadata, "id_hints")

	assert.Nil(t, StripIDHints(nil))
}
