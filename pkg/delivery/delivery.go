// Package delivery decides how tool results travel back into model
// context: inlined in full, or persisted out-of-band with a reference and
// bounded metadata inlined instead.
package delivery

import "github.com/damarr/helmsman/pkg/tools"

// Size thresholds in serialized characters. The hard ceiling is larger
// than the auto threshold so callers can explicitly request inline
// delivery of moderately large results.
const (
	// AutoInlineMaxChars is the auto-mode threshold past which results
	// are persisted.
	AutoInlineMaxChars = 4096
	// InlineHardMaxChars is the ceiling past which even an explicit
	// inline request is force-persisted.
	InlineHardMaxChars = 16384
	// PersistedPreviewMaxChars bounds the preview stored alongside a
	// persisted result.
	PersistedPreviewMaxChars = 1200
)

// ForcedReasonInlineSize is the reason recorded when size limits override
// an inline delivery.
const ForcedReasonInlineSize = "inline_size_exceeds_hard_limit"

// Resolution is the delivery decision for one tool invocation.
type Resolution struct {
	Requested     tools.ResultMode `json:"requested_output_mode"`
	Resolved      tools.ResultMode `json:"resolved_output_mode"`
	ForcedPersist bool             `json:"forced_persist"`
	ForcedReason  string           `json:"forced_reason,omitempty"`
}

// Resolve picks inline vs. persist for a tool result.
//
// Output-access tools always resolve inline: they already operate on
// persisted data and must not recursively persist. An explicit persist
// request always persists. An explicit inline request holds unless the
// result exceeds the hard ceiling. Auto defers to the tool's declared
// result mode.
func Resolve(toolName string, requested tools.ResultMode, policy tools.ResultMode, outputChars int) Resolution {
	if tools.IsOutputAccess(toolName) {
		return Resolution{Requested: requested, Resolved: tools.ResultModeInline}
	}

	switch requested {
	case tools.ResultModePersist:
		return Resolution{Requested: requested, Resolved: tools.ResultModePersist}
	case tools.ResultModeInline:
		if outputChars > InlineHardMaxChars {
			return Resolution{
				Requested:     requested,
				Resolved:      tools.ResultModePersist,
				ForcedPersist: true,
				ForcedReason:  ForcedReasonInlineSize,
			}
		}
		return Resolution{Requested: requested, Resolved: tools.ResultModeInline}
	default:
		persist := shouldPersist(toolName, policy, outputChars)
		forced := policy == tools.ResultModeInline && persist
		resolution := Resolution{Requested: requested, Resolved: tools.ResultModeInline}
		if persist {
			resolution.Resolved = tools.ResultModePersist
		}
		if forced {
			resolution.ForcedPersist = true
			resolution.ForcedReason = ForcedReasonInlineSize
		}
		return resolution
	}
}

func shouldPersist(toolName string, policy tools.ResultMode, outputChars int) bool {
	if tools.IsOutputAccess(toolName) {
		return false
	}
	switch policy {
	case tools.ResultModeInline:
		return outputChars > InlineHardMaxChars
	case tools.ResultModePersist:
		return true
	default:
		return outputChars > AutoInlineMaxChars
	}
}
