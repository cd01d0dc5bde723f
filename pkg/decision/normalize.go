package decision

import (
	"encoding/json"
	"strings"
)

// Alias rewriting happens on the raw key-value map before strict decoding,
// so the typed action stays a single source of truth for field names.

// normalizeAliases rewrites equivalent field names onto their canonical
// forms and hoists nested step objects to the top level.
func normalizeAliases(obj map[string]interface{}) map[string]interface{} {
	hoistStep(obj)

	renameKey(obj, "tool_name", "tool")
	renameKey(obj, "name", "tool")
	renameKey(obj, "tool_args", "args")
	renameKey(obj, "arguments", "args")
	renameKey(obj, "tool_input", "args")
	renameKey(obj, "tool_calls", "tools")
	renameKey(obj, "calls", "tools")
	renameKey(obj, "step_type", "type")
	renameKey(obj, "response", "message")
	renameKey(obj, "content", "message")

	if entries, ok := obj["tools"].([]interface{}); ok {
		for _, entry := range entries {
			if call, ok := entry.(map[string]interface{}); ok {
				renameKey(call, "tool_name", "tool")
				renameKey(call, "name", "tool")
				renameKey(call, "tool_args", "args")
				renameKey(call, "arguments", "args")
				renameKey(call, "tool_input", "args")
			}
		}
	}

	return obj
}

// hoistStep merges a nested step/next_step object into the top level.
// Existing top-level keys win over hoisted ones.
func hoistStep(obj map[string]interface{}) {
	for _, key := range []string{"step", "next_step"} {
		nested, ok := obj[key].(map[string]interface{})
		if !ok {
			continue
		}
		delete(obj, key)
		for k, v := range nested {
			if _, exists := obj[k]; !exists {
				obj[k] = v
			}
		}
	}
}

// renameKey moves obj[from] to obj[to] unless the target already exists.
func renameKey(obj map[string]interface{}, from, to string) {
	value, ok := obj[from]
	if !ok {
		return
	}
	delete(obj, from)
	if _, exists := obj[to]; !exists {
		obj[to] = value
	}
}

// normalizeArgs coerces a raw args value into an object. Args often arrive
// as a JSON-encoded string to satisfy strict output-schema constraints on
// some providers.
func normalizeArgs(raw interface{}) map[string]interface{} {
	switch v := raw.(type) {
	case nil:
		return map[string]interface{}{}
	case map[string]interface{}:
		return v
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return map[string]interface{}{}
		}
		var parsed interface{}
		if err := json.Unmarshal([]byte(trimmed), &parsed); err != nil {
			return map[string]interface{}{"input": v}
		}
		if obj, ok := parsed.(map[string]interface{}); ok {
			return obj
		}
		return map[string]interface{}{"value": parsed}
	default:
		return map[string]interface{}{"value": v}
	}
}
