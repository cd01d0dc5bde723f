package decision

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/damarr/helmsman/pkg/tools"
)

// Decode parses one raw model response into a typed Action. It fails
// closed: a response that does not commit to a concrete action is an
// error, never a guessed step.
func Decode(raw string) (Action, error) {
	payload := extractPayload(raw)
	if payload == "" {
		return nil, fmt.Errorf("empty model response")
	}

	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(payload), &obj); err != nil {
		return nil, fmt.Errorf("failed to parse decision JSON: %w", err)
	}

	obj = normalizeAliases(obj)

	action := stringField(obj, "action")
	switch action {
	case "next_step", "":
		return decodeNextStep(obj)
	case "complete":
		message := stringField(obj, "message")
		if strings.TrimSpace(message) == "" {
			return nil, fmt.Errorf("complete action requires a message")
		}
		return &Complete{Message: message}, nil
	case "respond":
		// Legacy shape: a bare respond action is completion.
		message := stringField(obj, "message")
		if strings.TrimSpace(message) == "" {
			return nil, fmt.Errorf("respond action requires a message")
		}
		return &Complete{Message: message}, nil
	case "guardrail_stop":
		reason := stringField(obj, "reason")
		if strings.TrimSpace(reason) == "" {
			return nil, fmt.Errorf("guardrail_stop action requires a reason")
		}
		return &GuardrailStop{
			Reason:  reason,
			Message: stringField(obj, "message"),
		}, nil
	case "ask_user":
		question := stringField(obj, "question")
		if strings.TrimSpace(question) == "" {
			return nil, fmt.Errorf("ask_user action requires a question")
		}
		return &AskUser{
			Question: question,
			Context:  stringField(obj, "context"),
			ResumeTo: stringField(obj, "resume_to"),
		}, nil
	default:
		return nil, fmt.Errorf("unknown action: %q", action)
	}
}

func decodeNextStep(obj map[string]interface{}) (Action, error) {
	step := &NextStep{
		Thinking: thinkingField(obj["thinking"]),
		Tool:     strings.TrimSpace(stringField(obj, "tool")),
		Message:  stringField(obj, "message"),
		Question: stringField(obj, "question"),
		Args:     normalizeArgs(obj["args"]),
	}

	if strings.TrimSpace(step.Thinking) == "" {
		return nil, fmt.Errorf("next_step requires a thinking field")
	}

	outputMode, err := decodeOutputMode(obj["output_mode"])
	if err != nil {
		return nil, err
	}
	step.OutputMode = outputMode

	if entries, ok := obj["tools"].([]interface{}); ok {
		calls, err := decodeToolCalls(entries)
		if err != nil {
			return nil, err
		}
		step.Tools = calls
	}

	stepType, err := resolveStepType(obj, step)
	if err != nil {
		return nil, err
	}
	step.Type = stepType

	switch step.Type {
	case StepTool:
		if step.Tool == "" {
			return nil, fmt.Errorf("tool step requires a tool name")
		}
	case StepToolBatch:
		if len(step.Tools) == 0 {
			return nil, fmt.Errorf("tool_batch step requires a non-empty tools array")
		}
	case StepRespond:
		if strings.TrimSpace(step.Message) == "" {
			return nil, fmt.Errorf("respond step requires a message")
		}
	case StepAskUser:
		if strings.TrimSpace(step.Question) == "" {
			return nil, fmt.Errorf("ask_user step requires a question")
		}
	default:
		return nil, fmt.Errorf("unknown step type: %q", step.Type)
	}

	return step, nil
}

// resolveStepType uses an explicit type when present, otherwise infers one
// from populated fields. Reasoning alone never produces a step.
func resolveStepType(obj map[string]interface{}, step *NextStep) (StepType, error) {
	if explicit := strings.TrimSpace(stringField(obj, "type")); explicit != "" {
		switch StepType(explicit) {
		case StepTool, StepToolBatch, StepRespond, StepAskUser:
			return StepType(explicit), nil
		default:
			return "", fmt.Errorf("unknown step type: %q", explicit)
		}
	}

	switch {
	case len(step.Tools) > 0:
		return StepToolBatch, nil
	case step.Tool != "":
		return StepTool, nil
	case strings.TrimSpace(step.Question) != "":
		return StepAskUser, nil
	case strings.TrimSpace(step.Message) != "":
		return StepRespond, nil
	default:
		return "", fmt.Errorf("step has no tool, tools, message, or question; refusing to synthesize an action")
	}
}

func decodeToolCalls(entries []interface{}) ([]ToolCall, error) {
	calls := make([]ToolCall, 0, len(entries))
	for i, entry := range entries {
		callObj, ok := entry.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("tools[%d] is not an object", i)
		}

		name := strings.TrimSpace(stringField(callObj, "tool"))
		if name == "" {
			return nil, fmt.Errorf("tools[%d] requires a tool name", i)
		}

		mode, err := decodeOutputMode(callObj["output_mode"])
		if err != nil {
			return nil, fmt.Errorf("tools[%d]: %w", i, err)
		}

		calls = append(calls, ToolCall{
			Tool:       name,
			Args:       normalizeArgs(callObj["args"]),
			OutputMode: mode,
		})
	}
	return calls, nil
}

// decodeOutputMode validates an output_mode value strictly. An absent or
// blank value means auto; anything else must name a known mode.
func decodeOutputMode(raw interface{}) (tools.ResultMode, error) {
	if raw == nil {
		return tools.ResultModeAuto, nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("output_mode must be a string")
	}
	trimmed := strings.ToLower(strings.TrimSpace(s))
	switch trimmed {
	case "", "auto":
		return tools.ResultModeAuto, nil
	case "inline":
		return tools.ResultModeInline, nil
	case "persist":
		return tools.ResultModePersist, nil
	default:
		return "", fmt.Errorf("invalid output_mode: %q", s)
	}
}

/// thinkingField flattens the thinking payload: models emit either a
// structured object or a plain string. An empty object counts as absent.
func thinkingField(raw interface{}) string {
	switch v := raw.(type) {
	case string:
		return v
	case map[string]interface{}:
		if len(v) == 0 {
			return ""
		}
		encoded, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(encoded)
	default:
		return ""
	}
}

func stringField(obj map[string]interface{}, key string) string {
	if s, ok := obj[key].(string); ok {
		return s
	}
	return ""
}
