package controller

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/damarr/helmsman/pkg/tools"
)

// hydrateArgs fills in missing output-introspection arguments before
// execution: a defaulted extract path set, the id of the most recent
// persisted output, and the conversation id where the tool accepts one.
// Only tool_outputs.* tools are touched.
func hydrateArgs(toolName string, args map[string]interface{}, conversationID string, last *StepResult, history []StepResult) map[string]interface{} {
	if !tools.IsOutputAccess(toolName) {
		return args
	}
	if args == nil {
		args = map[string]interface{}{}
	}
	applyOutputAccessDefaults(toolName, args)

	if !supportsIDHydration(toolName) || hasNonBlankString(args, "id") {
		return args
	}

	outputID := ""
	if last != nil {
		if id, ok := extractOutputRefID(last.Output); ok {
			outputID = id
		}
	}
	if outputID == "" {
		for i := len(history) - 1; i >= 0; i-- {
			if id, ok := extractOutputRefID(history[i].Output); ok {
				outputID = id
				break
			}
		}
	}
	if outputID == "" {
		return args
	}

	args["id"] = outputID
	if supportsConversationID(toolName) && !hasNonBlankString(args, "conversation_id") {
		args["conversation_id"] = conversationID
	}

	applyOutputAccessDefaults(toolName, args)
	return args
}

// supportsIDHydration reports whether a tool_outputs tool takes an id
// argument that can be auto-filled. list operates over all records and
// never hydrates.
func supportsIDHydration(toolName string) bool {
	switch toolName {
	case "tool_outputs.read", "tool_outputs.stats", "tool_outputs.extract",
		"tool_outputs.count", "tool_outputs.sample":
		return true
	default:
		return false
	}
}

func supportsConversationID(toolName string) bool {
	return toolName == "tool_outputs.read"
}

func applyOutputAccessDefaults(toolName string, args map[string]interface{}) {
	if toolName == "tool_outputs.extract" {
		ensureExtractPathsDefault(args)
	}
}

// ensureExtractPathsDefault normalizes the extract paths argument: a
// non-empty array passes through, a single string becomes a one-element
// array, anything else defaults to the root path.
func ensureExtractPathsDefault(args map[string]interface{}) {
	switch paths := args["paths"].(type) {
	case []interface{}:
		if len(paths) > 0 {
			return
		}
	case string:
		trimmed := strings.TrimSpace(paths)
		if trimmed == "" {
			trimmed = "$"
		}
		args["paths"] = []interface{}{trimmed}
		return
	}
	args["paths"] = []interface{}{"$"}
}

// extractOutputRefID walks a step output looking for a persisted output
// reference. Objects check their own output_ref.id before descending into
// values; strings are parsed as JSON and searched recursively.
func extractOutputRefID(value interface{}) (string, bool) {
	switch v := value.(type) {
	case map[string]interface{}:
		if ref, ok := v["output_ref"].(map[string]interface{}); ok {
			if id, ok := ref["id"].(string); ok && strings.TrimSpace(id) != "" {
				return strings.TrimSpace(id), true
			}
		}
		keys := make([]string, 0, len(v))
		for key := range v {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			if id, ok := extractOutputRefID(v[key]); ok {
				return id, true
			}
		}
	case []interface{}:
		for _, item := range v {
			if id, ok := extractOutputRefID(item); ok {
				return id, true
			}
		}
	case string:
		var parsed interface{}
		if err := json.Unmarshal([]byte(v), &parsed); err == nil {
			return extractOutputRefID(parsed)
		}
	}
	return "", false
}

func hasNonBlankString(args map[string]interface{}, field string) bool {
	s, ok := args[field].(string)
	return ok && strings.TrimSpace(s) != ""
}

// preflightOutputAccessID rejects an explicitly supplied tool_outputs id
// that does not name a stored output, before the tool runs.
func (c *Controller) preflightOutputAccessID(toolName string, args map[string]interface{}) error {
	if !supportsIDHydration(toolName) {
		return nil
	}
	id, ok := args["id"].(string)
	if !ok {
		return nil
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil
	}

	exists, err := c.artifacts.Exists(id)
	if err != nil {
		return fmt.Errorf("Invalid tool_outputs id '%s': %v", id, err)
	}
	if !exists {
		return fmt.Errorf("Invalid tool_outputs id '%s': no stored output exists for this id. Use ExecutionId/OutputRef.id from a previous tool execution, or omit id to auto-hydrate from the latest persisted output.", id)
	}
	return nil
}
