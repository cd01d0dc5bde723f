package events

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Bus fans events out to registered sinks. A panicking sink is recovered
// and logged so one bad subscriber cannot abort an agent run.
type Bus struct {
	mu     sync.RWMutex
	sinks  []Sink
	logger zerolog.Logger
	seq    uint64
}

// NewBus creates an empty event bus.
func NewBus(logger zerolog.Logger) *Bus {
	return &Bus{
		logger: logger.With().Str("component", "event_bus").Logger(),
	}
}

// Subscribe registers a sink for all subsequent events.
func (b *Bus) Subscribe(sink Sink) {
	if sink == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sinks = append(b.sinks, sink)
}

// Emit stamps the event with a sequence number and timestamp and delivers
// it to every sink.
func (b *Bus) Emit(event Event) {
	event.Seq = int64(atomic.AddUint64(&b.seq, 1))
	if event.Timestamp == 0 {
		event.Timestamp = now()
	}

	b.mu.RLock()
	sinks := make([]Sink, len(b.sinks))
	copy(sinks, b.sinks)
	b.mu.RUnlock()

	for _, sink := range sinks {
		b.deliver(sink, event)
	}
}

func (b *Bus) deliver(sink Sink, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error().
				Interface("panic", r).
				Str("event", event.Name).
				Str("sessionId", event.SessionID).
				Msg("Event sink panicked")
		}
	}()
	sink.Emit(event)
}

// LogSink writes events to a structured logger at debug level.
type LogSink struct {
	logger zerolog.Logger
}

// NewLogSink creates a sink that logs every event.
func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Emit implements Sink.
func (s *LogSink) Emit(event Event) {
	s.logger.Debug().
		Str("event", event.Name).
		Str("sessionId", event.SessionID).
		Int64("seq", event.Seq).
		Msg("Agent event")
}
