package controller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/damarr/helmsman/pkg/approval"
	"github.com/damarr/helmsman/pkg/delivery"
	"github.com/damarr/helmsman/pkg/events"
	"github.com/damarr/helmsman/pkg/outputs"
	"github.com/damarr/helmsman/pkg/tools"
)

// Denial reasons that terminate the run with a standard user-facing
// message instead of letting the model retry.
const (
	denialReasonDenied    = "Tool execution denied by approval"
	denialReasonTimedOut  = "Tool approval timed out"
	denialReasonCancelled = "Tool execution cancelled"
)

// deniedRunAbortMessage is returned to the user when an approval gate
// stops the run.
const deniedRunAbortMessage = "Okay, stopping since the tool request wasn't approved. Let me know how you'd like to continue."

// outputAccessHints lists the introspection tools advertised inside every
// persisted-output envelope.
var outputAccessHints = []string{
	"tool_outputs.read — load full output into context",
	"tool_outputs.extract — extract fields via JSONPath",
	"tool_outputs.stats — get schema, field types, counts",
	"tool_outputs.count — count items matching criteria",
	"tool_outputs.sample — sample items from arrays",
	"tool_outputs.list — list all stored outputs",
}

// executeTool runs a single tool invocation end to end: hydration,
// preflight validation, the approval gate, timed execution, and output
// delivery resolution. Tool-level failures come back as a failed
// StepResult; the returned error is reserved for run-fatal conditions.
func (c *Controller) executeTool(ctx context.Context, stepID, toolName string, args map[string]interface{}, requested tools.ResultMode) (StepResult, error) {
	if c.toolCallsInStep >= c.session.Config.MaxToolCallsPerStep {
		return StepResult{}, errors.New("tool call limit exceeded for this step")
	}
	iteration := c.toolCallsInStep + 1
	c.setPhase(Phase{Kind: PhaseExecuting, StepID: stepID, ToolIteration: iteration})

	args = hydrateArgs(toolName, args, c.session.ConversationID, c.lastStepResult, c.session.StepResults)
	if args == nil {
		args = map[string]interface{}{}
	}

	def, ok := c.registry.Get(toolName)
	if !ok {
		return c.preflightFailure(stepID, toolName, args, iteration, fmt.Sprintf("Unknown tool: %s", toolName)), nil
	}
	if err := c.registry.ValidateArgs(toolName, args); err != nil {
		return c.preflightFailure(stepID, toolName, args, iteration, err.Error()), nil
	}
	if err := c.preflightOutputAccessID(toolName, args); err != nil {
		return c.preflightFailure(stepID, toolName, args, iteration, err.Error()), nil
	}

	executionID := uuid.NewString()
	requiresApproval := c.resolveRequiresApproval(toolName, def.RequiresApproval)

	if requiresApproval {
		denied, reason, err := c.waitForApproval(ctx, executionID, toolName, args, iteration, def)
		if err != nil {
			return StepResult{}, err
		}
		if denied {
			return c.deniedStepResult(stepID, executionID, toolName, args, iteration, requested, reason), nil
		}
	}

	if c.cancelled(ctx) {
		return StepResult{}, errors.New("run cancelled")
	}

	c.toolCallsInStep++
	timestampMS := time.Now().UnixMilli()
	c.logger.Info().
		Str("tool", toolName).
		Str("executionId", executionID).
		Bool("requiresApproval", requiresApproval).
		Int("iteration", c.toolCallsInStep).
		Str("sessionId", c.session.ID).
		Str("args", summarizeArgs(args, 500)).
		Msg("Tool execution started")
	c.emit(events.ToolExecutionStarted, map[string]interface{}{
		"execution_id":      executionID,
		"tool_name":         toolName,
		"args":              args,
		"requires_approval": requiresApproval,
		"iteration":         c.toolCallsInStep,
		"conversation_id":   c.session.ConversationID,
		"message_id":        c.assistantMessageID,
		"timestamp_ms":      timestampMS,
	})

	start := time.Now()
	rawOutput, runErr := c.runHandler(ctx, def, args, c.session.Config.ToolExecutionTimeout)
	durationMS := time.Since(start).Milliseconds()
	completedAt := time.Now()
	timestampMS = completedAt.UnixMilli()

	outcome := c.deliverResult(executionID, toolName, args, rawOutput, runErr, requested, def.ResultMode, timestampMS)

	if outcome.success {
		c.logger.Info().
			Str("tool", toolName).
			Str("executionId", executionID).
			Int64("durationMs", durationMS).
			Str("sessionId", c.session.ID).
			Msg("Tool execution completed")
		payload := map[string]interface{}{
			"execution_id":    executionID,
			"tool_name":       toolName,
			"result":          outcome.output,
			"success":         true,
			"duration_ms":     durationMS,
			"iteration":       c.toolCallsInStep,
			"conversation_id": c.session.ConversationID,
			"message_id":      c.assistantMessageID,
			"timestamp_ms":    timestampMS,
		}
		if outcome.persistWarning != "" {
			payload["artifact_persist_warning"] = outcome.persistWarning
		}
		c.emit(events.ToolExecutionCompleted, payload)
	} else {
		errMessage := outcome.errText
		if errMessage == "" {
			errMessage = "Tool execution failed"
		}
		c.logger.Warn().
			Str("tool", toolName).
			Str("executionId", executionID).
			Int64("durationMs", durationMS).
			Str("error", errMessage).
			Str("sessionId", c.session.ID).
			Msg("Tool execution failed")
		c.emit(events.ToolExecutionCompleted, map[string]interface{}{
			"execution_id":    executionID,
			"tool_name":       toolName,
			"success":         false,
			"error":           errMessage,
			"duration_ms":     durationMS,
			"iteration":       c.toolCallsInStep,
			"conversation_id": c.session.ConversationID,
			"message_id":      c.assistantMessageID,
			"timestamp_ms":    timestampMS,
		})
	}

	record := ToolExecutionRecord{
		ExecutionID:         executionID,
		ToolName:            toolName,
		Args:                args,
		Result:              outcome.output,
		Success:             outcome.success,
		Error:               outcome.errText,
		DurationMS:          durationMS,
		Iteration:           c.toolCallsInStep,
		TimestampMS:         timestampMS,
		RequestedOutputMode: string(requested),
	}
	if outcome.resolution != nil {
		record.ResolvedOutputMode = string(outcome.resolution.Resolved)
		forced := outcome.resolution.ForcedPersist
		record.ForcedPersist = &forced
		record.ForcedReason = outcome.resolution.ForcedReason
	}

	c.appendExecutionLog(record)

	return StepResult{
		StepID:         stepID,
		Success:        outcome.success,
		Output:         outcome.output,
		Error:          outcome.errText,
		ToolExecutions: []ToolExecutionRecord{record},
		DurationMS:     durationMS,
		CompletedAt:    completedAt,
	}, nil
}

// resolveRequiresApproval applies override precedence: conversation
// override, then global override, then the tool's registered default.
// Override lookup failures fall back to the default.
func (c *Controller) resolveRequiresApproval(toolName string, defaultRequiresApproval bool) bool {
	value, ok, err := c.overrides.ConversationOverride(c.session.ConversationID, toolName)
	if err != nil {
		c.logger.Warn().Err(err).Str("tool", toolName).Msg("Failed to load conversation approval override")
		return defaultRequiresApproval
	}
	if ok {
		return value
	}

	value, ok, err = c.overrides.GlobalOverride(toolName)
	if err != nil {
		c.logger.Warn().Err(err).Str("tool", toolName).Msg("Failed to load global approval override")
		return defaultRequiresApproval
	}
	if ok {
		return value
	}
	return defaultRequiresApproval
}

// waitForApproval blocks until the pending request resolves, the approval
// timeout elapses, or the run is cancelled. Cancellation is polled every
// 200ms so a stuck approver cannot pin the run.
func (c *Controller) waitForApproval(ctx context.Context, executionID, toolName string, args map[string]interface{}, iteration int, def *tools.Definition) (denied bool, reason string, err error) {
	preview := ""
	if def.Preview != nil {
		rendered, previewErr := def.Preview(args)
		if previewErr != nil {
			return false, "", fmt.Errorf("failed to render tool preview: %w", previewErr)
		}
		preview = rendered
	}

	approvalID, decisionCh, err := c.approvals.Create(approval.Request{
		ExecutionID:    executionID,
		ConversationID: c.session.ConversationID,
		Tool:           toolName,
		Args:           args,
		Preview:        preview,
		Iteration:      iteration,
	})
	if err != nil {
		return false, "", fmt.Errorf("failed to create approval request: %w", err)
	}

	timestampMS := time.Now().UnixMilli()
	c.logger.Info().
		Str("tool", toolName).
		Str("executionId", executionID).
		Str("approvalId", approvalID).
		Int("iteration", iteration).
		Str("sessionId", c.session.ID).
		Msg("Tool approval requested")
	c.emit(events.ToolExecutionProposed, map[string]interface{}{
		"execution_id":    executionID,
		"approval_id":     approvalID,
		"tool_name":       toolName,
		"args":            args,
		"preview":         preview,
		"iteration":       iteration,
		"conversation_id": c.session.ConversationID,
		"message_id":      c.assistantMessageID,
		"timestamp_ms":    timestampMS,
	})

	deadline := time.Now().Add(c.session.Config.ApprovalTimeout)
	approved := false
	forcedReason := ""

wait:
	for {
		if c.cancelled(ctx) {
			c.approvals.Cancel(approvalID)
			forcedReason = denialReasonCancelled
			break
		}

		select {
		case resolved := <-decisionCh:
			approved = resolved.Approved
			break wait
		case <-time.After(cancelPollInterval):
			if !time.Now().Before(deadline) {
				c.approvals.Cancel(approvalID)
				forcedReason = denialReasonTimedOut
				break wait
			}
		}
	}

	timestampMS = time.Now().UnixMilli()
	if approved {
		c.logger.Info().
			Str("tool", toolName).
			Str("executionId", executionID).
			Str("approvalId", approvalID).
			Str("sessionId", c.session.ID).
			Msg("Tool approval granted")
		c.emit(events.ToolExecutionApproved, map[string]interface{}{
			"execution_id":    executionID,
			"approval_id":     approvalID,
			"tool_name":       toolName,
			"iteration":       iteration,
			"conversation_id": c.session.ConversationID,
			"message_id":      c.assistantMessageID,
			"timestamp_ms":    timestampMS,
		})
		return false, "", nil
	}

	reason = forcedReason
	if reason == "" {
		reason = denialReasonDenied
	}
	c.logger.Warn().
		Str("tool", toolName).
		Str("executionId", executionID).
		Str("approvalId", approvalID).
		Str("reason", reason).
		Str("sessionId", c.session.ID).
		Msg("Tool approval denied")
	c.emit(events.ToolExecutionDenied, map[string]interface{}{
		"execution_id":    executionID,
		"approval_id":     approvalID,
		"tool_name":       toolName,
		"iteration":       iteration,
		"conversation_id": c.session.ConversationID,
		"message_id":      c.assistantMessageID,
		"timestamp_ms":    timestampMS,
	})
	return true, reason, nil
}

// deniedStepResult records a denial as a failed tool execution.
func (c *Controller) deniedStepResult(stepID, executionID, toolName string, args map[string]interface{}, iteration int, requested tools.ResultMode, reason string) StepResult {
	timestampMS := time.Now().UnixMilli()
	record := ToolExecutionRecord{
		ExecutionID:         executionID,
		ToolName:            toolName,
		Args:                args,
		Success:             false,
		Error:               reason,
		Iteration:           iteration,
		TimestampMS:         timestampMS,
		RequestedOutputMode: string(requested),
	}
	c.appendExecutionLog(record)

	return StepResult{
		StepID:         stepID,
		Success:        false,
		Error:          reason,
		ToolExecutions: []ToolExecutionRecord{record},
		CompletedAt:    time.Now(),
	}
}

// preflightFailure records a tool that never ran: unknown name, invalid
// arguments, or a bad output reference. The failure is non-fatal; the
// model sees the error and decides what to do next.
func (c *Controller) preflightFailure(stepID, toolName string, args map[string]interface{}, iteration int, errMessage string) StepResult {
	executionID := uuid.NewString()
	timestampMS := time.Now().UnixMilli()
	completedAt := time.Now()
	output := map[string]interface{}{
		"message": errMessage,
		"success": false,
	}

	c.logger.Warn().
		Str("tool", toolName).
		Str("executionId", executionID).
		Int("iteration", iteration).
		Str("error", errMessage).
		Str("args", summarizeArgs(args, 500)).
		Str("sessionId", c.session.ID).
		Msg("Tool preflight failed")
	c.emit(events.ToolExecutionCompleted, map[string]interface{}{
		"execution_id":    executionID,
		"tool_name":       toolName,
		"success":         false,
		"error":           errMessage,
		"duration_ms":     0,
		"iteration":       iteration,
		"conversation_id": c.session.ConversationID,
		"message_id":      c.assistantMessageID,
		"timestamp_ms":    timestampMS,
	})

	record := ToolExecutionRecord{
		ExecutionID: executionID,
		ToolName:    toolName,
		Args:        args,
		Result:      output,
		Success:     false,
		Error:       errMessage,
		Iteration:   iteration,
		TimestampMS: timestampMS,
	}
	c.appendExecutionLog(record)

	return StepResult{
		StepID:         stepID,
		Success:        false,
		Output:         output,
		Error:          errMessage,
		ToolExecutions: []ToolExecutionRecord{record},
		CompletedAt:    completedAt,
	}
}

// runHandler executes a tool handler under the configured wall-clock
// timeout, polling cancellation every 200ms. A zero timeout runs the
// handler synchronously.
func (c *Controller) runHandler(ctx context.Context, def *tools.Definition, args map[string]interface{}, timeout time.Duration) (interface{}, error) {
	if timeout == 0 {
		return unwrapResult(def.Handler(ctx, args))
	}

	handlerCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type handlerOutcome struct {
		result tools.Result
		err    error
	}
	resultCh := make(chan handlerOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				resultCh <- handlerOutcome{err: errors.New("Tool execution panicked")}
			}
		}()
		result, err := def.Handler(handlerCtx, args)
		resultCh <- handlerOutcome{result: result, err: err}
	}()

	deadline := time.Now().Add(timeout)
	for {
		if c.cancelled(ctx) {
			return nil, errors.New(denialReasonCancelled)
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, fmt.Errorf("Tool execution timed out after %d ms", timeout.Milliseconds())
		}
		wait := cancelPollInterval
		if remaining < wait {
			wait = remaining
		}

		select {
		case outcome := <-resultCh:
			return unwrapResult(outcome.result, outcome.err)
		case <-time.After(wait):
		}
	}
}

// unwrapResult flattens a handler outcome into (output, error): a handler
// error and a reported failure are treated identically downstream.
func unwrapResult(result tools.Result, err error) (interface{}, error) {
	if err != nil {
		return nil, err
	}
	if !result.Success {
		message := result.Error
		if message == "" {
			message = "Tool execution failed"
		}
		return nil, errors.New(message)
	}
	return result.Output, nil
}

// deliveryOutcome is the final shape of one tool execution after output
// delivery resolution.
type deliveryOutcome struct {
	success        bool
	output         interface{}
	errText        string
	resolution     *delivery.Resolution
	persistWarning string
}

// deliverResult applies the inline/persist decision to a raw tool
// outcome. Successful non-introspection outputs are always stored as
// artifacts; whether the full value or a persisted-output envelope goes
// back into context depends on the resolved mode. A failed artifact write
// downgrades to a warning for inline delivery but fails the execution
// when the resolution demanded persistence.
func (c *Controller) deliverResult(executionID, toolName string, args map[string]interface{}, rawOutput interface{}, runErr error, requested, policy tools.ResultMode, timestampMS int64) deliveryOutcome {
	if runErr != nil {
		errMessage := runErr.Error()
		return deliveryOutcome{
			success: false,
			output:  map[string]interface{}{"message": errMessage, "success": false},
			errText: errMessage,
		}
	}

	outputChars := delivery.CharLen(rawOutput)
	resolution := delivery.Resolve(toolName, requested, policy, outputChars)
	preview, previewTruncated := delivery.Preview(rawOutput, delivery.PersistedPreviewMaxChars)
	metadata := delivery.ComputeMetadata(rawOutput)

	var ref *outputs.Ref
	persistErr := ""
	if !tools.IsOutputAccess(toolName) {
		record := outputs.Record{
			ID:             executionID,
			ToolName:       toolName,
			ConversationID: c.session.ConversationID,
			MessageID:      c.assistantMessageID,
			CreatedAt:      timestampMS,
			Success:        true,
			Parameters:     args,
			Output:         rawOutput,
		}
		stored, err := c.artifacts.Store(record)
		if err != nil {
			persistErr = fmt.Sprintf("Failed to persist tool output: %v", err)
		} else {
			ref = &stored
		}
	}

	if resolution.Resolved != tools.ResultModePersist {
		if persistErr != "" {
			c.logger.Warn().
				Str("tool", toolName).
				Str("executionId", executionID).
				Str("warning", persistErr).
				Msg("Artifact persistence warning")
		}
		return deliveryOutcome{
			success:        true,
			output:         rawOutput,
			resolution:     &resolution,
			persistWarning: persistErr,
		}
	}

	if persistErr != "" {
		return deliveryOutcome{
			success:    false,
			output:     map[string]interface{}{"message": persistErr, "success": false},
			errText:    persistErr,
			resolution: &resolution,
		}
	}
	if ref == nil {
		errMessage := "Resolved persisted output but missing output_ref"
		return deliveryOutcome{
			success:    false,
			output:     map[string]interface{}{"message": errMessage, "success": false},
			errText:    errMessage,
			resolution: &resolution,
		}
	}

	var forcedReason interface{}
	if resolution.ForcedReason != "" {
		forcedReason = resolution.ForcedReason
	}
	envelope := map[string]interface{}{
		"persisted":             true,
		"output_ref":            map[string]interface{}{"id": ref.ID, "storage": ref.Storage},
		"size_chars":            outputChars,
		"preview":               preview,
		"preview_truncated":     previewTruncated,
		"metadata":              metadata,
		"requested_output_mode": string(resolution.Requested),
		"resolved_output_mode":  string(resolution.Resolved),
		"forced_persist":        resolution.ForcedPersist,
		"forced_reason":         forcedReason,
		"available_tools":       outputAccessHints,
	}
	return deliveryOutcome{
		success:    true,
		output:     envelope,
		resolution: &resolution,
	}
}
