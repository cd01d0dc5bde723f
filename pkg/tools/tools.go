// Package tools defines the tool registry the agent control core executes
// against. Tools declare their parameters as JSON Schema fragments and are
// validated before every execution.
package tools

import (
	"context"
	"strings"
)

// OutputAccessPrefix is the reserved namespace for tools that read
// previously persisted tool outputs instead of producing new ones.
const OutputAccessPrefix = "tool_outputs."

// ResultMode declares how a tool's output should be delivered back into
// conversation context.
type ResultMode string

const (
	// ResultModeAuto lets the delivery resolver pick based on output size.
	ResultModeAuto ResultMode = "auto"
	// ResultModeInline requests full output in conversation context.
	ResultModeInline ResultMode = "inline"
	// ResultModePersist requests storage with only a reference in context.
	ResultModePersist ResultMode = "persist"
)

// ParseResultMode maps a wire string onto a ResultMode. Unknown or empty
// values fall back to auto.
func ParseResultMode(s string) ResultMode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(ResultModeInline):
		return ResultModeInline
	case string(ResultModePersist):
		return ResultModePersist
	default:
		return ResultModeAuto
	}
}

// IsOutputAccess reports whether a tool name belongs to the reserved
// output-introspection namespace.
func IsOutputAccess(toolName string) bool {
	return strings.HasPrefix(toolName, OutputAccessPrefix)
}

// Parameter defines a single tool parameter.
type Parameter struct {
	Name        string      `json:"name"`
	Type        string      `json:"type"`
	Description string      `json:"description"`
	Required    bool        `json:"required"`
	Default     interface{} `json:"default,omitempty"`
}

// Handler is the function signature for tool execution. A returned error
// means the tool could not run; a Result with Success=false means it ran
// and reported failure.
type Handler func(ctx context.Context, args map[string]interface{}) (Result, error)

// PreviewFunc renders a human-readable preview of what a tool invocation
// would do, shown alongside approval requests.
type PreviewFunc func(args map[string]interface{}) (string, error)

// Definition describes a registered tool.
type Definition struct {
	Name             string      `json:"name"`
	Description      string      `json:"description"`
	Parameters       []Parameter `json:"parameters"`
	RequiresApproval bool        `json:"requires_approval"`
	ResultMode       ResultMode  `json:"result_mode,omitempty"`
	Handler          Handler     `json:"-"`
	Preview          PreviewFunc `json:"-"`
}

// Result is the raw outcome of one tool execution, before output delivery
// resolution.
type Result struct {
	Success bool        `json:"success"`
	Output  interface{} `json:"output,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Ok wraps a successful output value.
func Ok(output interface{}) Result {
	return Result{Success: true, Output: output}
}

// Fail wraps a failure message.
func Fail(message string) Result {
	return Result{Success: false, Error: message}
}
