package history

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/damarr/helmsman/pkg/model"
)

func buildMessages(n, contentLen int) []model.Message {
	messages := make([]model.Message, n)
	for i := range messages {
		messages[i] = model.Message{
			Role:    "user",
			Content: fmt.Sprintf("message-%d-%s", i, strings.Repeat("x", contentLen)),
		}
	}
	return messages
}

func TestCompact_WithinBudgetUnchanged(t *testing.T) {
	messages := buildMessages(10, 10)

	compacted := Compact(messages, 10000, 2, 3)
	assert.Equal(t, messages, compacted)
}

func TestCompact_KeepsPrefixAndTail(t *testing.T) {
	messages := buildMessages(12, 48)

	compacted := Compact(messages, 200, 2, 3)
	require.Len(t, compacted, 5)
	assert.Equal(t, messages[0], compacted[0])
	assert.Equal(t, messages[1], compacted[1])
	assert.Equal(t, messages[9], compacted[2])
	assert.Equal(t, messages[10], compacted[3])
	assert.Equal(t, messages[11], compacted[4])
}

func TestCompact_OverlappingWindowsFallBack(t *testing.T) {
	messages := buildMessages(6, 100)

	// Prefix 4 + tail 4 overlap across 6 messages; nothing is dropped.
	compacted := Compact(messages, 10, 4, 4)
	assert.Equal(t, messages, compacted)
}

func TestCompact_Idempotent(t *testing.T) {
	messages := buildMessages(30, 100)

	once := Compact(messages, 500, 2, 3)
	twice := Compact(once, 500, 2, 3)
	assert.Equal(t, once, twice)
}

func TestCompact_AlwaysKeepsFirstAndLast(t *testing.T) {
	messages := buildMessages(40, 200)

	compacted := Compact(messages, 100, 3, 5)
	require.NotEmpty(t, compacted)
	assert.Equal(t, messages[0], compacted[0])
	assert.Equal(t, messages[len(messages)-1], compacted[len(compacted)-1])
}
