// Package controller implements the decision loop at the heart of the
// agent: it repeatedly asks the model for the single next action,
// executes tool steps through the registry with approval gating and
// output delivery resolution, and terminates on a final response.
package controller

import (
	"strings"
	"time"

	"github.com/damarr/helmsman/pkg/decision"
)

// PhaseKind names a controller lifecycle phase.
type PhaseKind string

const (
	PhaseController    PhaseKind = "controller"
	PhaseExecuting     PhaseKind = "executing"
	PhaseGuardrailStop PhaseKind = "guardrail_stop"
	PhaseComplete      PhaseKind = "complete"
)

// Phase is the current lifecycle phase plus its kind-specific payload.
type Phase struct {
	Kind          PhaseKind `json:"kind"`
	StepID        string    `json:"step_id,omitempty"`
	ToolIteration int       `json:"tool_iteration,omitempty"`
	Reason        string    `json:"reason,omitempty"`
	Recoverable   bool      `json:"recoverable,omitempty"`
	FinalResponse string    `json:"final_response,omitempty"`
}

// StepStatus tracks a plan step through its lifecycle.
type StepStatus string

const (
	StepStatusProposed  StepStatus = "proposed"
	StepStatusExecuting StepStatus = "executing"
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
)

// StepAction is the concrete work a plan step performs.
type StepAction struct {
	Type     decision.StepType      `json:"type"`
	Tool     string                 `json:"tool,omitempty"`
	Args     map[string]interface{} `json:"args,omitempty"`
	Tools    []decision.ToolCall    `json:"tools,omitempty"`
	Message  string                 `json:"message,omitempty"`
	Question string                 `json:"question,omitempty"`
}

// PlanStep is one recorded step of the running plan.
type PlanStep struct {
	ID              string      `json:"id"`
	Sequence        int         `json:"sequence"`
	Description     string      `json:"description"`
	ExpectedOutcome string      `json:"expected_outcome"`
	Action          StepAction  `json:"action"`
	Status          StepStatus  `json:"status"`
	Result          *StepResult `json:"result,omitempty"`
}

// Plan is created lazily on the first executed step; steps append as the
// model proposes them.
type Plan struct {
	ID            string     `json:"id"`
	Goal          string     `json:"goal"`
	Assumptions   []string   `json:"assumptions"`
	Steps         []PlanStep `json:"steps"`
	RevisionCount int        `json:"revision_count"`
	CreatedAt     time.Time  `json:"created_at"`
}

// ToolExecutionRecord captures one tool invocation, including how its
// output was delivered.
type ToolExecutionRecord struct {
	ExecutionID         string                 `json:"execution_id"`
	ToolName            string                 `json:"tool_name"`
	Args                map[string]interface{} `json:"args"`
	Result              interface{}            `json:"result,omitempty"`
	Success             bool                   `json:"success"`
	Error               string                 `json:"error,omitempty"`
	DurationMS          int64                  `json:"duration_ms"`
	Iteration           int                    `json:"iteration"`
	TimestampMS         int64                  `json:"timestamp_ms"`
	RequestedOutputMode string                 `json:"requested_output_mode,omitempty"`
	ResolvedOutputMode  string                 `json:"resolved_output_mode,omitempty"`
	ForcedPersist       *bool                  `json:"forced_persist,omitempty"`
	ForcedReason        string                 `json:"forced_reason,omitempty"`
}

// StepResult is the outcome of one executed plan step.
type StepResult struct {
	StepID         string                `json:"step_id"`
	Success        bool                  `json:"success"`
	Output         interface{}           `json:"output,omitempty"`
	Error          string                `json:"error,omitempty"`
	ToolExecutions []ToolExecutionRecord `json:"tool_executions"`
	DurationMS     int64                 `json:"duration_ms"`
	CompletedAt    time.Time             `json:"completed_at"`
}

// Session is the full state of one controller run.
type Session struct {
	ID             string       `json:"id"`
	ConversationID string       `json:"conversation_id"`
	MessageID      string       `json:"message_id"`
	Phase          Phase        `json:"phase"`
	Plan           *Plan        `json:"plan,omitempty"`
	StepResults    []StepResult `json:"step_results"`
	Config         Config       `json:"config"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
	CompletedAt    *time.Time   `json:"completed_at,omitempty"`
}

// ExecutionLog is a flattened tool execution row, accumulated during a
// run for the caller to flush into message history.
type ExecutionLog struct {
	ID          string                 `json:"id"`
	MessageID   string                 `json:"message_id"`
	ToolName    string                 `json:"tool_name"`
	Parameters  map[string]interface{} `json:"parameters"`
	Result      interface{}            `json:"result"`
	Success     bool                   `json:"success"`
	DurationMS  int64                  `json:"duration_ms"`
	TimestampMS int64                  `json:"timestamp_ms"`
	Error       string                 `json:"error,omitempty"`
	Iteration   int                    `json:"iteration_number"`
}

const goalSummaryMaxChars = 160

// summarizeGoal derives a short plan goal from the triggering user
// message.
func summarizeGoal(message string) string {
	trimmed := strings.TrimSpace(message)
	if trimmed == "" {
		return "Agent task"
	}
	runes := []rune(trimmed)
	if len(runes) > goalSummaryMaxChars {
		runes = runes[:goalSummaryMaxChars]
	}
	return string(runes)
}

func defaultStepDescription(stepType decision.StepType) string {
	switch stepType {
	case decision.StepTool:
		return "Call the selected tool"
	case decision.StepToolBatch:
		return "Execute a batch of tool calls"
	case decision.StepRespond:
		return "Respond to the user"
	case decision.StepAskUser:
		return "Ask the user for clarification"
	default:
		return "Continue with the next step"
	}
}
