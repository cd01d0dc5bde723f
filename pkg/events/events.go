// Package events defines the lifecycle event stream emitted by the agent
// control core. Sinks receive every event; delivery failures never affect
// the run that produced the event.
package events

import "time"

// Agent lifecycle events.
const (
	AgentPhaseChanged  = "agent.phase_changed"
	AgentPlanCreated   = "agent.plan_created"
	AgentPlanAdjusted  = "agent.plan_adjusted"
	AgentStepProposed  = "agent.step_proposed"
	AgentStepStarted   = "agent.step_started"
	AgentStepCompleted = "agent.step_completed"
	AgentCompleted     = "agent.completed"
)

// Tool execution events.
const (
	ToolExecutionProposed  = "tool.execution_proposed"
	ToolExecutionApproved  = "tool.execution_approved"
	ToolExecutionDenied    = "tool.execution_denied"
	ToolExecutionStarted   = "tool.execution_started"
	ToolExecutionCompleted = "tool.execution_completed"
)

// Event is a single lifecycle notification tied to a session.
type Event struct {
	Name      string                 `json:"event"`
	SessionID string                 `json:"session_id"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp int64                  `json:"timestamp"`
	Seq       int64                  `json:"seq"`
}

// Sink receives emitted events. Implementations must not block for long;
// emission happens on the controller goroutine.
type Sink interface {
	Emit(event Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(event Event)

// Emit implements Sink.
func (f SinkFunc) Emit(event Event) { f(event) }

// NopSink discards all events.
type NopSink struct{}

// Emit implements Sink.
func (NopSink) Emit(Event) {}

func now() int64 { return time.Now().UnixMilli() }
