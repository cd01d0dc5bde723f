package controller

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/damarr/helmsman/pkg/decision"
	"github.com/damarr/helmsman/pkg/delivery"
	"github.com/damarr/helmsman/pkg/events"
	"github.com/damarr/helmsman/pkg/tools"
)

// executeBatch dispatches a tool_batch step. Calls beyond the remaining
// per-step capacity are dropped from the tail. When any call requires
// approval the whole batch runs sequentially so approval gates stay
// ordered; otherwise calls run in parallel goroutines with panic
// isolation.
func (c *Controller) executeBatch(ctx context.Context, stepID string, calls []decision.ToolCall) (StepResult, error) {
	requestedCalls := len(calls)

	if requestedCalls == 0 {
		errText := "tool_batch requires at least one tool call"
		return StepResult{
			StepID:  stepID,
			Success: false,
			Output: map[string]interface{}{
				"success": false,
				"message": errText,
			},
			Error:          errText,
			ToolExecutions: []ToolExecutionRecord{},
			CompletedAt:    time.Now(),
		}, nil
	}

	remaining := c.session.Config.MaxToolCallsPerStep - c.toolCallsInStep
	if remaining <= 0 {
		errText := fmt.Sprintf("tool_batch requested %d calls but only %d tool calls remain in this step", requestedCalls, 0)
		return StepResult{
			StepID:  stepID,
			Success: false,
			Output: map[string]interface{}{
				"success":              false,
				"message":              errText,
				"requested_calls":      requestedCalls,
				"remaining_tool_calls": 0,
			},
			Error:          errText,
			ToolExecutions: []ToolExecutionRecord{},
			CompletedAt:    time.Now(),
		}, nil
	}

	droppedCalls := 0
	if len(calls) > remaining {
		droppedCalls = len(calls) - remaining
		calls = calls[:remaining]
		c.logger.Warn().
			Int("requested", requestedCalls).
			Int("allowed", remaining).
			Int("dropped", droppedCalls).
			Msg("Tool batch clamped to remaining capacity")
	}

	requiresSequential := false
	for _, call := range calls {
		def, ok := c.registry.Get(call.Tool)
		if ok && c.resolveRequiresApproval(call.Tool, def.RequiresApproval) {
			requiresSequential = true
			break
		}
	}
	if requiresSequential {
		c.logger.Info().Msg("Approval-required tool in batch; executing sequentially")
		return c.executeBatchSequential(ctx, stepID, calls, requestedCalls, droppedCalls)
	}
	return c.executeBatchParallel(ctx, stepID, calls, requestedCalls, droppedCalls)
}

func (c *Controller) executeBatchSequential(ctx context.Context, stepID string, calls []decision.ToolCall, requestedCalls, droppedCalls int) (StepResult, error) {
	started := time.Now()
	var executions []ToolExecutionRecord
	var resultEntries []interface{}
	var firstError string
	successfulCalls := 0

	for _, call := range calls {
		result, err := c.executeTool(ctx, stepID, call.Tool, call.Args, call.OutputMode)
		if err != nil {
			return StepResult{}, err
		}

		if result.Success {
			successfulCalls++
		} else if firstError == "" {
			firstError = result.Error
			if firstError == "" {
				firstError = fmt.Sprintf("Tool execution failed: %s", call.Tool)
			}
		}

		if len(result.ToolExecutions) > 0 {
			last := result.ToolExecutions[len(result.ToolExecutions)-1]
			resultEntries = append(resultEntries, batchResultSummary(last))
		}
		executions = append(executions, result.ToolExecutions...)
	}

	return c.batchStepResult(stepID, "sequential", started, requestedCalls, droppedCalls, successfulCalls, firstError, resultEntries, executions), nil
}

// parallelCall is one batch entry that survived preflight and is ready to
// run on its own goroutine.
type parallelCall struct {
	iteration   int
	executionID string
	toolName    string
	args        map[string]interface{}
	requested   tools.ResultMode
	def         *tools.Definition
}

// parallelOutcome is the collected result of one parallel worker.
type parallelOutcome struct {
	iteration      int
	executionID    string
	toolName       string
	args           map[string]interface{}
	requested      tools.ResultMode
	resolution     *delivery.Resolution
	success        bool
	output         interface{}
	errText        string
	durationMS     int64
	timestampMS    int64
	persistWarning string
}

func (c *Controller) executeBatchParallel(ctx context.Context, stepID string, calls []decision.ToolCall, requestedCalls, droppedCalls int) (StepResult, error) {
	started := time.Now()
	var executions []ToolExecutionRecord
	var resultEntries []interface{}
	var firstError string
	successfulCalls := 0
	var runnable []parallelCall
	iterationCursor := c.toolCallsInStep + 1

	recordPreflight := func(failed StepResult) {
		if len(failed.ToolExecutions) > 0 {
			last := failed.ToolExecutions[len(failed.ToolExecutions)-1]
			resultEntries = append(resultEntries, batchResultSummary(last))
			executions = append(executions, last)
		}
		if firstError == "" {
			firstError = failed.Error
		}
	}

	for _, call := range calls {
		if c.cancelled(ctx) {
			return StepResult{}, errors.New("run cancelled")
		}

		toolName := call.Tool
		args := hydrateArgs(toolName, call.Args, c.session.ConversationID, c.lastStepResult, c.session.StepResults)
		if args == nil {
			args = map[string]interface{}{}
		}
		iteration := iterationCursor

		def, ok := c.registry.Get(toolName)
		if !ok {
			recordPreflight(c.preflightFailure(stepID, toolName, args, iteration, fmt.Sprintf("Unknown tool: %s", toolName)))
			continue
		}
		if err := c.registry.ValidateArgs(toolName, args); err != nil {
			recordPreflight(c.preflightFailure(stepID, toolName, args, iteration, err.Error()))
			continue
		}
		if err := c.preflightOutputAccessID(toolName, args); err != nil {
			recordPreflight(c.preflightFailure(stepID, toolName, args, iteration, err.Error()))
			continue
		}

		executionID := uuid.NewString()
		timestampMS := time.Now().UnixMilli()
		c.logger.Info().
			Str("tool", toolName).
			Str("executionId", executionID).
			Int("iteration", iteration).
			Str("sessionId", c.session.ID).
			Str("args", summarizeArgs(args, 500)).
			Msg("Tool execution started in parallel batch")
		c.emit(events.ToolExecutionStarted, map[string]interface{}{
			"execution_id":      executionID,
			"tool_name":         toolName,
			"args":              args,
			"requires_approval": false,
			"iteration":         iteration,
			"conversation_id":   c.session.ConversationID,
			"message_id":        c.assistantMessageID,
			"timestamp_ms":      timestampMS,
		})

		runnable = append(runnable, parallelCall{
			iteration:   iteration,
			executionID: executionID,
			toolName:    toolName,
			args:        args,
			requested:   call.OutputMode,
			def:         def,
		})
		iterationCursor++
	}

	timeout := c.session.Config.ToolExecutionTimeout
	if timeout == 0 {
		timeout = parallelBatchFallbackTimeout
	}
	c.logger.Info().
		Int("calls", len(runnable)).
		Dur("timeout", timeout).
		Msg("Running batch tools in parallel")

	outcomeCh := make(chan parallelOutcome, len(runnable))
	for _, call := range runnable {
		go func(call parallelCall) {
			defer func() {
				if r := recover(); r != nil {
					outcomeCh <- panicOutcome(call)
				}
			}()
			outcomeCh <- c.runParallelCall(ctx, call, timeout)
		}(call)
	}

	outcomes := make([]parallelOutcome, 0, len(runnable))
	for range runnable {
		outcomes = append(outcomes, <-outcomeCh)
	}
	sortOutcomesByIteration(outcomes)

	for _, outcome := range outcomes {
		if outcome.iteration > c.toolCallsInStep {
			c.toolCallsInStep = outcome.iteration
		}

		if outcome.success {
			payload := map[string]interface{}{
				"execution_id":    outcome.executionID,
				"tool_name":       outcome.toolName,
				"result":          outcome.output,
				"success":         true,
				"duration_ms":     outcome.durationMS,
				"iteration":       outcome.iteration,
				"conversation_id": c.session.ConversationID,
				"message_id":      c.assistantMessageID,
				"timestamp_ms":    outcome.timestampMS,
			}
			if outcome.persistWarning != "" {
				payload["artifact_persist_warning"] = outcome.persistWarning
			}
			c.emit(events.ToolExecutionCompleted, payload)
			successfulCalls++
		} else {
			errMessage := outcome.errText
			if errMessage == "" {
				errMessage = "Tool execution failed"
			}
			c.emit(events.ToolExecutionCompleted, map[string]interface{}{
				"execution_id":    outcome.executionID,
				"tool_name":       outcome.toolName,
				"success":         false,
				"error":           errMessage,
				"duration_ms":     outcome.durationMS,
				"iteration":       outcome.iteration,
				"conversation_id": c.session.ConversationID,
				"message_id":      c.assistantMessageID,
				"timestamp_ms":    outcome.timestampMS,
			})
			if firstError == "" {
				firstError = outcome.errText
			}
		}

		record := ToolExecutionRecord{
			ExecutionID:         outcome.executionID,
			ToolName:            outcome.toolName,
			Args:                outcome.args,
			Result:              outcome.output,
			Success:             outcome.success,
			Error:               outcome.errText,
			DurationMS:          outcome.durationMS,
			Iteration:           outcome.iteration,
			TimestampMS:         outcome.timestampMS,
			RequestedOutputMode: string(outcome.requested),
		}
		if outcome.resolution != nil {
			record.ResolvedOutputMode = string(outcome.resolution.Resolved)
			forced := outcome.resolution.ForcedPersist
			record.ForcedPersist = &forced
			record.ForcedReason = outcome.resolution.ForcedReason
		}
		resultEntries = append(resultEntries, batchResultSummary(record))
		executions = append(executions, record)
		c.appendExecutionLog(record)
	}

	return c.batchStepResult(stepID, "parallel", started, requestedCalls, droppedCalls, successfulCalls, firstError, resultEntries, executions), nil
}

// runParallelCall executes one approved-free batch entry and resolves its
// output delivery. It runs on a worker goroutine and must not touch
// mutable controller state.
func (c *Controller) runParallelCall(ctx context.Context, call parallelCall, timeout time.Duration) parallelOutcome {
	start := time.Now()
	rawOutput, runErr := c.runHandler(ctx, call.def, call.args, timeout)
	timestampMS := time.Now().UnixMilli()

	delivered := c.deliverResult(call.executionID, call.toolName, call.args, rawOutput, runErr, call.requested, call.def.ResultMode, timestampMS)

	return parallelOutcome{
		iteration:      call.iteration,
		executionID:    call.executionID,
		toolName:       call.toolName,
		args:           call.args,
		requested:      call.requested,
		resolution:     delivered.resolution,
		success:        delivered.success,
		output:         delivered.output,
		errText:        delivered.errText,
		durationMS:     time.Since(start).Milliseconds(),
		timestampMS:    timestampMS,
		persistWarning: delivered.persistWarning,
	}
}

func panicOutcome(call parallelCall) parallelOutcome {
	errMessage := "Tool execution panicked"
	return parallelOutcome{
		iteration:   call.iteration,
		executionID: call.executionID,
		toolName:    call.toolName,
		args:        call.args,
		requested:   call.requested,
		success:     false,
		output: map[string]interface{}{
			"message": errMessage,
			"success": false,
		},
		errText:     errMessage,
		timestampMS: time.Now().UnixMilli(),
	}
}

func sortOutcomesByIteration(outcomes []parallelOutcome) {
	sort.Slice(outcomes, func(i, j int) bool {
		return outcomes[i].iteration < outcomes[j].iteration
	})
}

func (c *Controller) batchStepResult(stepID, mode string, started time.Time, requestedCalls, droppedCalls, successfulCalls int, firstError string, resultEntries []interface{}, executions []ToolExecutionRecord) StepResult {
	totalCalls := len(resultEntries)
	success := firstError == ""
	if resultEntries == nil {
		resultEntries = []interface{}{}
	}
	if executions == nil {
		executions = []ToolExecutionRecord{}
	}

	output := map[string]interface{}{
		"success":          success,
		"batch_size":       totalCalls,
		"requested_calls":  requestedCalls,
		"executed_calls":   totalCalls,
		"dropped_calls":    droppedCalls,
		"successful_calls": successfulCalls,
		"failed_calls":     totalCalls - successfulCalls,
		"execution_mode":   mode,
		"results":          resultEntries,
	}

	return StepResult{
		StepID:         stepID,
		Success:        success,
		Output:         output,
		Error:          firstError,
		ToolExecutions: executions,
		DurationMS:     time.Since(started).Milliseconds(),
		CompletedAt:    time.Now(),
	}
}
