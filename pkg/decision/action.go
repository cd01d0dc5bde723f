// Package decision turns raw model output into a validated, typed action.
//
// The decoder is strict: it normalizes known field aliases before decoding,
// but it never synthesizes an action the model did not commit to. A response
// containing only reasoning fails to decode.
package decision

import "github.com/damarr/helmsman/pkg/tools"

// StepType identifies what kind of work a next_step action performs.
type StepType string

const (
	StepTool      StepType = "tool"
	StepToolBatch StepType = "tool_batch"
	StepRespond   StepType = "respond"
	StepAskUser   StepType = "ask_user"
)

// Action is the decoded model decision. Exactly one concrete type applies;
// consumers switch exhaustively.
type Action interface {
	isAction()
}

// ToolCall is one entry of a tool_batch step.
type ToolCall struct {
	Tool       string                 `json:"tool"`
	Args       map[string]interface{} `json:"args"`
	OutputMode tools.ResultMode       `json:"output_mode,omitempty"`
}

// NextStep asks the controller to execute one more step.
type NextStep struct {
	Thinking   string                 `json:"thinking"`
	Type       StepType               `json:"type"`
	Tool       string                 `json:"tool,omitempty"`
	Tools      []ToolCall             `json:"tools,omitempty"`
	Args       map[string]interface{} `json:"args,omitempty"`
	OutputMode tools.ResultMode       `json:"output_mode,omitempty"`
	Message    string                 `json:"message,omitempty"`
	Question   string                 `json:"question,omitempty"`
}

// Complete ends the run with a final response.
type Complete struct {
	Message string `json:"message"`
}

// GuardrailStop is a model-initiated terminal halt.
type GuardrailStop struct {
	Reason  string `json:"reason"`
	Message string `json:"message,omitempty"`
}

// AskUser pauses the run with a question for the user.
type AskUser struct {
	Question string `json:"question"`
	Context  string `json:"context,omitempty"`
	ResumeTo string `json:"resume_to,omitempty"`
}

func (*NextStep) isAction()      {}
func (*Complete) isAction()      {}
func (*GuardrailStop) isAction() {}
func (*AskUser) isAction()       {}
