package controller

import "time"

// Config bounds one controller run.
type Config struct {
	// MaxTotalLLMTurns caps how many times the model is consulted.
	MaxTotalLLMTurns int `json:"max_total_llm_turns"`
	// MaxToolCallsPerStep caps tool invocations within one step,
	// including every call of a batch.
	MaxToolCallsPerStep int `json:"max_tool_calls_per_step"`
	// ApprovalTimeout bounds how long a pending approval blocks the run.
	ApprovalTimeout time.Duration `json:"approval_timeout"`
	// ToolExecutionTimeout bounds a single tool handler. Zero disables
	// the timeout for synchronous execution; parallel batches fall back
	// to a fixed ceiling instead.
	ToolExecutionTimeout time.Duration `json:"tool_execution_timeout"`
}

// DefaultConfig returns the standard run limits.
func DefaultConfig() Config {
	return Config{
		MaxTotalLLMTurns:     30,
		MaxToolCallsPerStep:  8,
		ApprovalTimeout:      120 * time.Second,
		ToolExecutionTimeout: 120 * time.Second,
	}
}

// parallelBatchFallbackTimeout applies to parallel batch workers when no
// execution timeout is configured; unbounded workers could leak forever.
const parallelBatchFallbackTimeout = 120 * time.Second

// cancelPollInterval is how often blocking waits re-check cancellation.
const cancelPollInterval = 200 * time.Millisecond
