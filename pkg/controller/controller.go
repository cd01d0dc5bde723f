package controller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/damarr/helmsman/pkg/approval"
	"github.com/damarr/helmsman/pkg/decision"
	"github.com/damarr/helmsman/pkg/delivery"
	"github.com/damarr/helmsman/pkg/events"
	"github.com/damarr/helmsman/pkg/history"
	"github.com/damarr/helmsman/pkg/model"
	"github.com/damarr/helmsman/pkg/outputs"
	"github.com/damarr/helmsman/pkg/tools"
)

// Controller owns one agent run: it drives the model decision loop and
// executes the steps the model proposes.
type Controller struct {
	store     SessionStore
	bus       *events.Bus
	registry  *tools.Registry
	approvals *approval.Store
	overrides ApprovalOverrides
	artifacts outputs.Store
	cancel    *CancelFlag
	logger    zerolog.Logger

	session            *Session
	messages           []model.Message
	assistantMessageID string
	executionLogs      []ExecutionLog
	lastStepResult     *StepResult
	toolCallsInStep    int
	requestedUserInput bool
}

// Option configures a Controller.
type Option func(*Controller)

// WithSessionStore sets the session persistence backend.
func WithSessionStore(store SessionStore) Option {
	return func(c *Controller) { c.store = store }
}

// WithEventBus sets the lifecycle event bus.
func WithEventBus(bus *events.Bus) Option {
	return func(c *Controller) { c.bus = bus }
}

// WithRegistry sets the tool registry executions resolve against.
func WithRegistry(registry *tools.Registry) Option {
	return func(c *Controller) { c.registry = registry }
}

// WithApprovals sets the store pending approval requests go through.
func WithApprovals(approvals *approval.Store) Option {
	return func(c *Controller) { c.approvals = approvals }
}

// WithOverrides sets the approval override resolver.
func WithOverrides(overrides ApprovalOverrides) Option {
	return func(c *Controller) { c.overrides = overrides }
}

// WithArtifacts sets the persisted tool output store.
func WithArtifacts(artifacts outputs.Store) Option {
	return func(c *Controller) { c.artifacts = artifacts }
}

// WithCancelFlag sets the shared cancellation flag.
func WithCancelFlag(flag *CancelFlag) Option {
	return func(c *Controller) { c.cancel = flag }
}

// WithLogger sets the structured logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Controller) { c.logger = logger }
}

// WithConfig overrides the default run limits.
func WithConfig(config Config) Option {
	return func(c *Controller) { c.session.Config = config }
}

// WithConversation binds the run to a conversation and the assistant
// message its results attach to.
func WithConversation(conversationID, messageID, assistantMessageID string) Option {
	return func(c *Controller) {
		c.session.ConversationID = conversationID
		c.session.MessageID = messageID
		c.assistantMessageID = assistantMessageID
	}
}

// WithMessages seeds the conversation history the controller reasons
// over.
func WithMessages(messages []model.Message) Option {
	return func(c *Controller) {
		c.messages = append([]model.Message(nil), messages...)
	}
}

// New creates a controller for one run. Collaborators default to no-op
// or in-memory implementations so tests and embedded callers can supply
// only what they need.
func New(opts ...Option) *Controller {
	now := time.Now()
	c := &Controller{
		store:     NopSessionStore{},
		overrides: NopOverrides{},
		artifacts: outputs.NewMemoryStore(),
		cancel:    NewCancelFlag(),
		logger:    zerolog.Nop(),
		session: &Session{
			ID:        uuid.NewString(),
			Phase:     Phase{Kind: PhaseController},
			Config:    DefaultConfig(),
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.bus == nil {
		c.bus = events.NewBus(c.logger)
	}
	if c.registry == nil {
		c.registry = tools.NewRegistry(c.logger)
	}
	if c.approvals == nil {
		c.approvals = approval.NewStore(c.logger)
	}
	c.logger = c.logger.With().Str("component", "controller").Str("sessionId", c.session.ID).Logger()

	c.persist("save_session", func() error { return c.store.SaveSession(c.session) })
	return c
}

// Session returns the run's session state.
func (c *Controller) Session() *Session {
	return c.session
}

// TakeExecutionLogs returns and clears the accumulated tool execution
// rows.
func (c *Controller) TakeExecutionLogs() []ExecutionLog {
	logs := c.executionLogs
	c.executionLogs = nil
	return logs
}

// RequestedUserInput reports whether the run stopped to ask the user a
// question.
func (c *Controller) RequestedUserInput() bool {
	return c.requestedUserInput
}

// Run drives the decision loop until the model completes, a guardrail or
// denial stops the run, or a limit trips. It returns the final
// user-facing response.
func (c *Controller) Run(ctx context.Context, userMessage string, call model.Caller) (string, error) {
	c.setPhase(Phase{Kind: PhaseController})

	turns := 0
	for {
		if c.cancelled(ctx) {
			return "", errors.New("run cancelled")
		}
		if turns >= c.session.Config.MaxTotalLLMTurns {
			return "", errors.New("exceeded maximum model turns")
		}
		turns++
		c.toolCallsInStep = 0

		action, err := c.callController(ctx, call)
		if err != nil {
			return "", err
		}

		switch act := action.(type) {
		case *decision.NextStep:
			c.ensurePlan(userMessage)
			done, response, err := c.executeStep(ctx, act)
			if err != nil {
				return "", err
			}
			if done {
				return c.finish(response), nil
			}
		case *decision.Complete:
			return c.finish(act.Message), nil
		case *decision.GuardrailStop:
			detail := act.Message
			if detail == "" {
				detail = act.Reason
			}
			c.setPhase(Phase{Kind: PhaseGuardrailStop, Reason: act.Reason, Recoverable: false})
			return "", errors.New(detail)
		case *decision.AskUser:
			c.requestedUserInput = true
			return c.finish(act.Question), nil
		default:
			return "", fmt.Errorf("unsupported controller action %T", action)
		}
	}
}

// executeStep records and runs one proposed step. done is true when the
// step produced the run's final response.
func (c *Controller) executeStep(ctx context.Context, step *decision.NextStep) (done bool, response string, err error) {
	c.toolCallsInStep = 0

	plan := c.session.Plan
	if plan == nil {
		return false, "", errors.New("missing plan")
	}

	stepID := "step-" + uuid.NewString()
	planStep := PlanStep{
		ID:              stepID,
		Sequence:        len(plan.Steps),
		Description:     defaultStepDescription(step.Type),
		ExpectedOutcome: "Step result recorded.",
		Action: StepAction{
			Type:     step.Type,
			Tool:     step.Tool,
			Args:     step.Args,
			Tools:    step.Tools,
			Message:  step.Message,
			Question: step.Question,
		},
		Status: StepStatusProposed,
	}
	plan.Steps = append(plan.Steps, planStep)
	c.persist("save_plan_step", func() error { return c.store.SavePlanStep(plan.ID, planStep) })

	c.emit(events.AgentPlanAdjusted, map[string]interface{}{
		"session_id": c.session.ID,
		"plan":       plan,
	})

	preview := ""
	if step.Type == decision.StepTool {
		if def, ok := c.registry.Get(step.Tool); ok && def.Preview != nil {
			if rendered, previewErr := def.Preview(step.Args); previewErr == nil {
				preview = rendered
			}
		}
	}
	c.emit(events.AgentStepProposed, map[string]interface{}{
		"session_id": c.session.ID,
		"step":       planStep,
		"preview":    preview,
	})

	c.setPhase(Phase{Kind: PhaseExecuting, StepID: stepID})
	c.updateStepStatus(stepID, StepStatusExecuting)
	c.emit(events.AgentStepStarted, map[string]interface{}{
		"session_id": c.session.ID,
		"step_id":    stepID,
	})

	var result StepResult
	switch step.Type {
	case decision.StepTool:
		result, err = c.executeTool(ctx, stepID, step.Tool, step.Args, step.OutputMode)
	case decision.StepToolBatch:
		result, err = c.executeBatch(ctx, stepID, step.Tools)
	case decision.StepRespond:
		result = StepResult{
			StepID:         stepID,
			Success:        true,
			Output:         map[string]interface{}{"message": step.Message},
			ToolExecutions: []ToolExecutionRecord{},
			CompletedAt:    time.Now(),
		}
	case decision.StepAskUser:
		result = StepResult{
			StepID:         stepID,
			Success:        true,
			Output:         map[string]interface{}{"question": step.Question},
			ToolExecutions: []ToolExecutionRecord{},
			CompletedAt:    time.Now(),
		}
	default:
		return false, "", fmt.Errorf("unknown step type: %q", step.Type)
	}
	if err != nil {
		return false, "", err
	}

	status := StepStatusCompleted
	if !result.Success {
		status = StepStatusFailed
	}
	for i := range plan.Steps {
		if plan.Steps[i].ID == stepID {
			plan.Steps[i].Status = status
			plan.Steps[i].Result = &result
			break
		}
	}
	c.updateStepStatus(stepID, status)
	c.persist("save_step_result", func() error { return c.store.SaveStepResult(result) })

	c.emit(events.AgentStepCompleted, map[string]interface{}{
		"session_id": c.session.ID,
		"step_id":    stepID,
		"success":    result.Success,
		"result":     result.Output,
		"error":      result.Error,
	})

	resultError := result.Error
	c.lastStepResult = &result
	c.session.StepResults = append(c.session.StepResults, result)
	c.appendToolResultMessage()
	if step.Type != decision.StepAskUser {
		c.setPhase(Phase{Kind: PhaseController})
	}

	switch resultError {
	case denialReasonDenied, denialReasonTimedOut, denialReasonCancelled:
		return true, deniedRunAbortMessage, nil
	}

	switch step.Type {
	case decision.StepAskUser:
		c.requestedUserInput = true
		return true, step.Question, nil
	case decision.StepRespond:
		return true, step.Message, nil
	default:
		return false, "", nil
	}
}

// callController performs one model turn and decodes its decision. A
// model that fails to commit to a valid action is a fatal run error.
func (c *Controller) callController(ctx context.Context, call model.Caller) (decision.Action, error) {
	messages := c.buildMessages(c.renderToolList())

	response, err := call(ctx, messages, outputFormat())
	if err != nil {
		return nil, fmt.Errorf("model call failed: %w", err)
	}

	action, err := decision.Decode(response.Content)
	if err != nil {
		return nil, fmt.Errorf("invalid controller output: %w", err)
	}
	return action, nil
}

// renderToolList serializes the registered tools with effective approval
// requirements, so the model sees the same gates execution will apply.
func (c *Controller) renderToolList() string {
	defs := c.registry.Definitions()
	for i := range defs {
		defs[i].RequiresApproval = c.resolveRequiresApproval(defs[i].Name, defs[i].RequiresApproval)
	}
	encoded, err := json.Marshal(defs)
	if err != nil {
		return "[]"
	}
	return string(encoded)
}

// buildMessages assembles the model context: static instructions, the
// tool list, run limits, then compacted conversation history. The prefix
// is ordered for provider prompt caching.
func (c *Controller) buildMessages(toolList string) []model.Message {
	messages := make([]model.Message, 0, len(c.messages)+3)
	messages = append(messages,
		model.Message{Role: "system", Content: controllerPrompt},
		model.Message{Role: "system", Content: "AVAILABLE TOOLS (JSON):\n" + toolList},
		model.Message{Role: "system", Content: c.renderLimits()},
	)
	messages = append(messages, history.CompactDefault(c.messages)...)
	return messages
}

func (c *Controller) renderLimits() string {
	return fmt.Sprintf(
		"LIMITS:\nmax_total_llm_turns=%d\nmax_tool_calls_per_step=%d\nHard rule: for action=\"next_step\" with type=\"tool_batch\", tools length MUST be <= max_tool_calls_per_step.",
		c.session.Config.MaxTotalLLMTurns, c.session.Config.MaxToolCallsPerStep,
	)
}

// appendToolResultMessage folds the last step's tool executions into the
// conversation as a bounded summary the model reads next turn.
func (c *Controller) appendToolResultMessage() {
	if len(c.session.StepResults) == 0 {
		return
	}
	last := c.session.StepResults[len(c.session.StepResults)-1]
	if len(last.ToolExecutions) == 0 {
		return
	}

	blocks := make([]string, 0, len(last.ToolExecutions))
	if len(last.ToolExecutions) > 1 {
		for _, exec := range last.ToolExecutions {
			blocks = append(blocks, formatBatchSummaryLine(exec))
		}
	} else {
		for _, exec := range last.ToolExecutions {
			blocks = append(blocks, formatSummaryBlock(exec))
		}
	}

	summary := joinedSummary(blocks)
	c.messages = append(c.messages, model.Message{
		Role:    "user",
		Content: "[Tool executions]\n" + summary,
	})
}

// ensurePlan lazily creates the plan on the first executed step.
func (c *Controller) ensurePlan(userMessage string) {
	if c.session.Plan != nil {
		return
	}

	plan := &Plan{
		ID:          uuid.NewString(),
		Goal:        summarizeGoal(userMessage),
		Assumptions: []string{},
		Steps:       []PlanStep{},
		CreatedAt:   time.Now(),
	}
	c.session.Plan = plan
	c.persist("save_plan", func() error { return c.store.SavePlan(c.session.ID, plan) })

	c.emit(events.AgentPlanCreated, map[string]interface{}{
		"session_id": c.session.ID,
		"plan":       plan,
	})
}

// finish marks the run complete and returns the final response.
func (c *Controller) finish(response string) string {
	c.persist("mark_completed", func() error { return c.store.MarkCompleted(c.session.ID, response) })

	now := time.Now()
	c.session.Phase = Phase{Kind: PhaseComplete, FinalResponse: response}
	c.session.UpdatedAt = now
	c.session.CompletedAt = &now

	c.emit(events.AgentCompleted, map[string]interface{}{
		"session_id": c.session.ID,
		"response":   response,
	})
	return response
}

func (c *Controller) setPhase(next Phase) {
	c.session.Phase = next
	c.session.UpdatedAt = time.Now()
	c.persist("update_phase", func() error { return c.store.UpdatePhase(c.session.ID, next) })
	c.emit(events.AgentPhaseChanged, map[string]interface{}{
		"session_id": c.session.ID,
		"phase":      next,
	})
}

func (c *Controller) updateStepStatus(stepID string, status StepStatus) {
	c.persist("update_step_status", func() error { return c.store.UpdateStepStatus(stepID, status) })
}

func (c *Controller) emit(name string, data map[string]interface{}) {
	c.bus.Emit(events.Event{
		Name:      name,
		SessionID: c.session.ID,
		Data:      data,
	})
}

func (c *Controller) appendExecutionLog(record ToolExecutionRecord) {
	c.executionLogs = append(c.executionLogs, ExecutionLog{
		ID:          record.ExecutionID,
		MessageID:   c.assistantMessageID,
		ToolName:    record.ToolName,
		Parameters:  record.Args,
		Result:      record.Result,
		Success:     record.Success,
		DurationMS:  record.DurationMS,
		TimestampMS: record.TimestampMS,
		Error:       record.Error,
		Iteration:   record.Iteration,
	})
}

func (c *Controller) cancelled(ctx context.Context) bool {
	return ctx.Err() != nil || c.cancel.IsSet()
}

// persist swallows collaborator write failures: session persistence is
// observability, not correctness, and must never abort a run.
func (c *Controller) persist(op string, fn func() error) {
	if err := fn(); err != nil {
		c.logger.Warn().Err(err).Str("op", op).Msg("Session store write failed")
	}
}

func joinedSummary(blocks []string) string {
	return delivery.TruncateWithNotice(strings.Join(blocks, "\n"), summaryMaxChars)
}
