// Package history bounds the character footprint of conversation history
// sent to the model.
package history

import (
	"unicode/utf8"

	"github.com/damarr/helmsman/pkg/model"
)

// Compaction defaults, in characters and message counts. The prefix and
// tail are kept verbatim so the provider's prompt cache stays warm across
// turns.
const (
	DefaultMaxChars     = 48000
	DefaultStablePrefix = 8
	DefaultRecentTail   = 20
)

// Compact bounds history to maxChars. Within budget, history is returned
// unchanged to maximize prompt-cache reuse. Over budget, the first
// stablePrefix and last recentTail messages are kept verbatim and the
// middle is dropped. Overlapping or oversized windows fall back to the
// full history: messages are never dropped by count alone.
func Compact(messages []model.Message, maxChars, stablePrefix, recentTail int) []model.Message {
	total := 0
	for _, msg := range messages {
		total += utf8.RuneCountInString(msg.Content)
	}
	if total <= maxChars {
		return messages
	}

	prefixEnd := stablePrefix
	if prefixEnd > len(messages) {
		prefixEnd = len(messages)
	}
	tailStart := len(messages) - recentTail
	if tailStart < 0 {
		tailStart = 0
	}
	if tailStart <= prefixEnd {
		return messages
	}

	compacted := make([]model.Message, 0, prefixEnd+len(messages)-tailStart)
	compacted = append(compacted, messages[:prefixEnd]...)
	compacted = append(compacted, messages[tailStart:]...)
	return compacted
}

// CompactDefault applies the standard budget.
func CompactDefault(messages []model.Message) []model.Message {
	return Compact(messages, DefaultMaxChars, DefaultStablePrefix, DefaultRecentTail)
}
