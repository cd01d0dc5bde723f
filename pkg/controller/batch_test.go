package controller

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/damarr/helmsman/pkg/approval"
	"github.com/damarr/helmsman/pkg/decision"
	"github.com/damarr/helmsman/pkg/tools"
)

func namedTool(name string, requiresApproval bool) tools.Definition {
	return tools.Definition{
		Name:             name,
		Description:      "Returns its own name",
		RequiresApproval: requiresApproval,
		Handler: func(ctx context.Context, args map[string]interface{}) (tools.Result, error) {
			return tools.Ok(map[string]interface{}{"from": name}), nil
		},
	}
}

func batchStepJSON(t *testing.T, calls ...map[string]interface{}) string {
	entries := make([]interface{}, 0, len(calls))
	for _, call := range calls {
		entries = append(entries, call)
	}
	return decisionJSON(t, map[string]interface{}{
		"action":   "next_step",
		"thinking": "several independent lookups",
		"type":     "tool_batch",
		"tools":    entries,
	})
}

func TestBatchParallelExecution(t *testing.T) {
	c := New(
		WithRegistry(newTestRegistry(t, namedTool("alpha", false), namedTool("beta", false))),
		WithConversation("conv-1", "msg-1", "assist-1"),
	)

	response, err := c.Run(context.Background(), "fan out", scriptedCaller(t,
		batchStepJSON(t,
			map[string]interface{}{"tool": "alpha"},
			map[string]interface{}{"tool": "beta"},
		),
		completeJSON(t, "merged"),
	))

	require.NoError(t, err)
	assert.Equal(t, "merged", response)

	require.Len(t, c.Session().StepResults, 1)
	step := c.Session().StepResults[0]
	require.True(t, step.Success)

	output, ok := step.Output.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, true, output["success"])
	assert.Equal(t, 2, output["batch_size"])
	assert.Equal(t, 2, output["requested_calls"])
	assert.Equal(t, 2, output["executed_calls"])
	assert.Equal(t, 0, output["dropped_calls"])
	assert.Equal(t, 2, output["successful_calls"])
	assert.Equal(t, 0, output["failed_calls"])
	assert.Equal(t, "parallel", output["execution_mode"])

	require.Len(t, step.ToolExecutions, 2)
	// Results come back sorted by iteration regardless of finish order.
	assert.Equal(t, 1, step.ToolExecutions[0].Iteration)
	assert.Equal(t, "alpha", step.ToolExecutions[0].ToolName)
	assert.Equal(t, 2, step.ToolExecutions[1].Iteration)
	assert.Equal(t, "beta", step.ToolExecutions[1].ToolName)

	results, ok := output["results"].([]interface{})
	require.True(t, ok)
	require.Len(t, results, 2)
}

func TestBatchSequentialWhenApprovalRequired(t *testing.T) {
	approvals := approval.NewStore(zerolog.Nop())
	stop := resolveApprovals(t, approvals, true)
	defer stop()

	c := New(
		WithRegistry(newTestRegistry(t, namedTool("alpha", true), namedTool("beta", false))),
		WithApprovals(approvals),
		WithConversation("conv-1", "msg-1", "assist-1"),
	)

	response, err := c.Run(context.Background(), "fan out", scriptedCaller(t,
		batchStepJSON(t,
			map[string]interface{}{"tool": "alpha"},
			map[string]interface{}{"tool": "beta"},
		),
		completeJSON(t, "merged"),
	))

	require.NoError(t, err)
	assert.Equal(t, "merged", response)

	step := c.Session().StepResults[0]
	require.True(t, step.Success)
	output := step.Output.(map[string]interface{})
	assert.Equal(t, "sequential", output["execution_mode"])
	assert.Equal(t, 2, output["successful_calls"])
}

func TestBatchClampsToRemainingCapacity(t *testing.T) {
	config := DefaultConfig()
	config.MaxToolCallsPerStep = 2

	c := New(
		WithRegistry(newTestRegistry(t, namedTool("alpha", false))),
		WithConfig(config),
		WithConversation("conv-1", "msg-1", "assist-1"),
	)

	response, err := c.Run(context.Background(), "fan out", scriptedCaller(t,
		batchStepJSON(t,
			map[string]interface{}{"tool": "alpha"},
			map[string]interface{}{"tool": "alpha"},
			map[string]interface{}{"tool": "alpha"},
		),
		completeJSON(t, "merged"),
	))

	require.NoError(t, err)
	assert.Equal(t, "merged", response)

	output := c.Session().StepResults[0].Output.(map[string]interface{})
	assert.Equal(t, 3, output["requested_calls"])
	assert.Equal(t, 2, output["executed_calls"])
	assert.Equal(t, 1, output["dropped_calls"])
	assert.Equal(t, 2, output["successful_calls"])
}

func TestBatchPanicIsolation(t *testing.T) {
	boom := tools.Definition{
		Name:        "boom",
		Description: "Panics on execution",
		Handler: func(ctx context.Context, args map[string]interface{}) (tools.Result, error) {
			panic("kaboom")
		},
	}

	c := New(
		WithRegistry(newTestRegistry(t, boom, namedTool("alpha", false))),
		WithConversation("conv-1", "msg-1", "assist-1"),
	)

	response, err := c.Run(context.Background(), "fan out", scriptedCaller(t,
		batchStepJSON(t,
			map[string]interface{}{"tool": "boom"},
			map[string]interface{}{"tool": "alpha"},
		),
		completeJSON(t, "survived"),
	))

	require.NoError(t, err)
	assert.Equal(t, "survived", response)

	step := c.Session().StepResults[0]
	assert.False(t, step.Success)
	assert.Contains(t, step.Error, "Tool execution panicked")

	output := step.Output.(map[string]interface{})
	assert.Equal(t, false, output["success"])
	assert.Equal(t, 1, output["successful_calls"])
	assert.Equal(t, 1, output["failed_calls"])
}

func TestBatchMixesPreflightFailuresWithResults(t *testing.T) {
	c := New(
		WithRegistry(newTestRegistry(t, namedTool("alpha", false))),
		WithConversation("conv-1", "msg-1", "assist-1"),
	)

	response, err := c.Run(context.Background(), "fan out", scriptedCaller(t,
		batchStepJSON(t,
			map[string]interface{}{"tool": "missing"},
			map[string]interface{}{"tool": "alpha"},
		),
		completeJSON(t, "partial"),
	))

	require.NoError(t, err)
	assert.Equal(t, "partial", response)

	step := c.Session().StepResults[0]
	assert.False(t, step.Success)
	assert.Contains(t, step.Error, "Unknown tool: missing")

	output := step.Output.(map[string]interface{})
	assert.Equal(t, 2, output["executed_calls"])
	assert.Equal(t, 1, output["successful_calls"])
	assert.Equal(t, 1, output["failed_calls"])
}

func TestBatchEmptyIsNonFatal(t *testing.T) {
	c := New(WithConversation("conv-1", "msg-1", "assist-1"))

	result, err := c.executeBatch(context.Background(), "step-x", nil)

	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "tool_batch requires at least one tool call", result.Error)
	assert.Empty(t, result.ToolExecutions)
}

func TestBatchSummaryUsesPerLineFormat(t *testing.T) {
	c := New(
		WithRegistry(newTestRegistry(t, namedTool("alpha", false), namedTool("beta", false))),
		WithConversation("conv-1", "msg-1", "assist-1"),
	)

	_, err := c.Run(context.Background(), "fan out", scriptedCaller(t,
		batchStepJSON(t,
			map[string]interface{}{"tool": "alpha"},
			map[string]interface{}{"tool": "beta"},
		),
		completeJSON(t, "merged"),
	))
	require.NoError(t, err)

	last := c.messages[len(c.messages)-1]
	assert.Contains(t, last.Content, "Tool: alpha")
	assert.Contains(t, last.Content, "Tool: beta")
	// Batch summaries are one line per execution, without the full
	// single-execution block fields.
	assert.NotContains(t, last.Content, "RequestedOutputMode:")
}

func TestBatchRespectsPerCallOutputMode(t *testing.T) {
	c := New(
		WithRegistry(newTestRegistry(t, namedTool("alpha", false))),
		WithConversation("conv-1", "msg-1", "assist-1"),
	)

	_, err := c.Run(context.Background(), "fan out", scriptedCaller(t,
		batchStepJSON(t,
			map[string]interface{}{"tool": "alpha", "output_mode": "persist"},
			map[string]interface{}{"tool": "alpha"},
		),
		completeJSON(t, "merged"),
	))
	require.NoError(t, err)

	step := c.Session().StepResults[0]
	require.True(t, step.Success)
	require.Len(t, step.ToolExecutions, 2)
	assert.Equal(t, "persist", step.ToolExecutions[0].RequestedOutputMode)
	assert.Equal(t, "persist", step.ToolExecutions[0].ResolvedOutputMode)
	assert.Equal(t, "auto", step.ToolExecutions[1].RequestedOutputMode)
	assert.Equal(t, "inline", step.ToolExecutions[1].ResolvedOutputMode)
}

func TestBatchAtCapacityFailsStep(t *testing.T) {
	config := DefaultConfig()
	config.MaxToolCallsPerStep = 0

	c := New(WithConfig(config), WithConversation("conv-1", "msg-1", "assist-1"))

	result, err := c.executeBatch(context.Background(), "step-x", []decision.ToolCall{
		{Tool: "alpha"},
	})

	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "only 0 tool calls remain")
}

func TestParallelFallbackTimeoutConstant(t *testing.T) {
	assert.Equal(t, 120*time.Second, parallelBatchFallbackTimeout)
}
