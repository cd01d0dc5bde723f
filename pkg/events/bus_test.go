package events

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestBus_EmitDeliversToAllSinks(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	var first, second []Event
	bus.Subscribe(SinkFunc(func(e Event) { first = append(first, e) }))
	bus.Subscribe(SinkFunc(func(e Event) { second = append(second, e) }))

	bus.Emit(Event{Name: AgentStepStarted, SessionID: "s-1"})
	bus.Emit(Event{Name: AgentStepCompleted, SessionID: "s-1"})

	assert.Len(t, first, 2)
	assert.Len(t, second, 2)
	assert.Equal(t, AgentStepStarted, first[0].Name)
	assert.Equal(t, AgentStepCompleted, first[1].Name)
}

func TestBus_EmitAssignsMonotonicSequence(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	var seen []Event
	bus.Subscribe(SinkFunc(func(e Event) { seen = append(seen, e) }))

	bus.Emit(Event{Name: AgentPhaseChanged, SessionID: "s-1"})
	bus.Emit(Event{Name: AgentPhaseChanged, SessionID: "s-1"})

	assert.NotZero(t, seen[0].Seq)
	assert.Greater(t, seen[1].Seq, seen[0].Seq)
	assert.NotZero(t, seen[0].Timestamp)
}

func TestBus_SinkPanicDoesNotStopDelivery(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	bus.Subscribe(SinkFunc(func(Event) { panic("bad sink") }))

	var delivered int
	bus.Subscribe(SinkFunc(func(Event) { delivered++ }))

	assert.NotPanics(t, func() {
		bus.Emit(Event{Name: ToolExecutionStarted, SessionID: "s-1"})
	})
	assert.Equal(t, 1, delivered)
}

func TestBus_NilSinkIgnored(t *testing.T) {
	bus := NewBus(zerolog.Nop())
	bus.Subscribe(nil)

	assert.NotPanics(t, func() {
		bus.Emit(Event{Name: AgentCompleted, SessionID: "s-1"})
	})
}
