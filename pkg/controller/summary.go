package controller

import (
	"encoding/json"
	"fmt"

	"github.com/damarr/helmsman/pkg/delivery"
)

// Caps for the tool execution summaries fed back into model context.
const (
	summaryMaxChars         = 2000
	summaryMaxArgsChars     = 400
	summaryMaxResultChars   = 800
	summaryMaxMetadataChars = 320
)

// formatSummaryBlock renders one tool execution as a single context line
// for the model. Persisted results carry a pointer instead of values so
// the model reaches for extraction tools rather than hallucinating.
func formatSummaryBlock(exec ToolExecutionRecord) string {
	args := summarizeArgs(exec.Args, summaryMaxArgsChars)

	outputRef := "none"
	if id, ok := extractOutputRefID(exec.Result); ok {
		outputRef = id
	}

	requested := exec.RequestedOutputMode
	if requested == "" {
		requested = resultStringField(exec.Result, "requested_output_mode")
	}
	if requested == "" {
		requested = "n/a"
	}

	resolved := exec.ResolvedOutputMode
	if resolved == "" {
		resolved = resultStringField(exec.Result, "resolved_output_mode")
	}
	if resolved == "" {
		switch {
		case outputRef != "none":
			resolved = "persist"
		case exec.Success:
			resolved = "inline"
		default:
			resolved = "n/a"
		}
	}

	forcedPersist := false
	if exec.ForcedPersist != nil {
		forcedPersist = *exec.ForcedPersist
	} else if b, ok := resultField(exec.Result, "forced_persist").(bool); ok {
		forcedPersist = b
	}

	forcedReason := exec.ForcedReason
	if forcedReason == "" {
		forcedReason = resultStringField(exec.Result, "forced_reason")
	}
	if forcedReason == "" {
		forcedReason = "none"
	}

	isPersist := resolved == "persist"

	var metadata map[string]interface{}
	if m, ok := resultField(exec.Result, "metadata").(map[string]interface{}); ok {
		metadata = m
	} else if exec.Result != nil && !isPersist {
		metadata = delivery.ComputeMetadata(exec.Result)
	}
	if isPersist {
		metadata = delivery.StripIDHints(metadata)
	}
	metadataSummary := "none"
	if metadata != nil {
		metadataSummary = delivery.TruncateWithNotice(delivery.Serialize(metadata), summaryMaxMetadataChars)
	}

	summary := fmt.Sprintf(
		"Tool: %s | ExecutionId: %s | Success: %t | RequestedOutputMode: %s | ResolvedOutputMode: %s | ForcedPersist: %t | ForcedReason: %s | OutputRef: %s | Args: %s | Metadata: %s",
		exec.ToolName, exec.ExecutionID, exec.Success,
		requested, resolved, forcedPersist, forcedReason,
		outputRef, args, metadataSummary,
	)

	if !exec.Success {
		errText := exec.Error
		if errText == "" {
			errText = "Tool execution failed"
		}
		return summary + " | Error: " + delivery.TruncateWithNotice(errText, summaryMaxResultChars)
	}

	if isPersist {
		return summary + " | Note: Exact values require tool_outputs.extract (omit id to hydrate latest output_ref)."
	}

	outputJSON := "none"
	if exec.Result != nil {
		outputJSON = delivery.Serialize(exec.Result)
	}
	return summary + " | Output: " + outputJSON
}

// formatBatchSummaryLine is a compact per-execution line used when a step
// ran more than one tool.
func formatBatchSummaryLine(exec ToolExecutionRecord) string {
	outputRef := "none"
	if id, ok := extractOutputRefID(exec.Result); ok {
		outputRef = id
	}

	errText := "none"
	if !exec.Success {
		e := exec.Error
		if e == "" {
			e = "Tool execution failed"
		}
		errText = delivery.TruncateWithNotice(e, summaryMaxResultChars/4)
	}

	return fmt.Sprintf(
		"Tool: %s | ExecutionId: %s | Success: %t | OutputRef: %s | Error: %s",
		exec.ToolName, exec.ExecutionID, exec.Success, outputRef, errText,
	)
}

// batchResultSummary is the per-call entry of a batch step's output.
func batchResultSummary(exec ToolExecutionRecord) map[string]interface{} {
	outputRef := "none"
	if id, ok := extractOutputRefID(exec.Result); ok {
		outputRef = id
	}

	metadata := resultField(exec.Result, "metadata")

	var preview string
	if exec.Success {
		if p := resultStringField(exec.Result, "preview"); p != "" {
			preview = delivery.TruncateWithNotice(p, delivery.PersistedPreviewMaxChars)
		} else if exec.Result != nil {
			preview, _ = delivery.Preview(exec.Result, delivery.PersistedPreviewMaxChars)
		} else {
			preview = "none"
		}
	} else {
		preview = exec.Error
		if preview == "" {
			preview = "Tool execution failed"
		}
	}

	entry := map[string]interface{}{
		"tool":                  exec.ToolName,
		"execution_id":          exec.ExecutionID,
		"success":               exec.Success,
		"requested_output_mode": exec.RequestedOutputMode,
		"resolved_output_mode":  exec.ResolvedOutputMode,
		"forced_persist":        exec.ForcedPersist,
		"forced_reason":         exec.ForcedReason,
		"output_ref":            outputRef,
		"metadata":              metadata,
		"preview":               preview,
		"error":                 exec.Error,
	}
	return entry
}

func summarizeArgs(args map[string]interface{}, maxChars int) string {
	raw, err := json.Marshal(args)
	if err != nil {
		return "<invalid-json>"
	}
	text := string(raw)
	runes := []rune(text)
	if len(runes) <= maxChars {
		return text
	}
	return string(runes[:maxChars]) + "..."
}

func resultField(result interface{}, key string) interface{} {
	obj, ok := result.(map[string]interface{})
	if !ok {
		return nil
	}
	return obj[key]
}

func resultStringField(result interface{}, key string) string {
	s, _ := resultField(result, key).(string)
	return s
}
