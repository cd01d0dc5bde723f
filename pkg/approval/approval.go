// Package approval holds pending human-approval requests for tool
// executions. The control core creates requests and blocks on their
// resolution; a UI or operator resolves them.
package approval

import (
	"fmt"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

// Request describes one tool execution awaiting approval.
type Request struct {
	ID             string                 `json:"id"`
	ExecutionID    string                 `json:"execution_id"`
	ConversationID string                 `json:"conversation_id"`
	Tool           string                 `json:"tool"`
	Args           map[string]interface{} `json:"args"`
	Preview        string                 `json:"preview,omitempty"`
	Iteration      int                    `json:"iteration"`
	CreatedAt      time.Time              `json:"created_at"`
}

// Decision is the resolution of a request.
type Decision struct {
	Approved bool   `json:"approved"`
	Reason   string `json:"reason,omitempty"`
}

// Store is an in-memory registry of pending approval requests.
type Store struct {
	mu      sync.Mutex
	pending map[string]*pendingRequest
	logger  zerolog.Logger
}

type pendingRequest struct {
	request  Request
	decision chan Decision
}

// NewStore creates an empty approval store.
func NewStore(logger zerolog.Logger) *Store {
	return &Store{
		pending: make(map[string]*pendingRequest),
		logger:  logger.With().Str("component", "approval_store").Logger(),
	}
}

// Create registers a request, assigns it an id, and returns the channel
// its decision will arrive on. The channel is buffered so resolvers never
// block.
func (s *Store) Create(request Request) (string, <-chan Decision, error) {
	id, err := gonanoid.New()
	if err != nil {
		return "", nil, fmt.Errorf("failed to generate approval id: %w", err)
	}
	request.ID = id
	if request.CreatedAt.IsZero() {
		request.CreatedAt = time.Now()
	}

	pending := &pendingRequest{
		request:  request,
		decision: make(chan Decision, 1),
	}

	s.mu.Lock()
	s.pending[id] = pending
	s.mu.Unlock()

	s.logger.Info().
		Str("approvalId", id).
		Str("tool", request.Tool).
		Str("executionId", request.ExecutionID).
		Msg("Approval requested")

	return id, pending.decision, nil
}

// Resolve delivers a decision for a pending request. Resolving an unknown
// or already-resolved id is an error.
func (s *Store) Resolve(id string, decision Decision) error {
	s.mu.Lock()
	pending, ok := s.pending[id]
	if ok {
		delete(s.pending, id)
	}
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("no pending approval request: %s", id)
	}

	pending.decision <- decision

	s.logger.Info().
		Str("approvalId", id).
		Str("tool", pending.request.Tool).
		Bool("approved", decision.Approved).
		Msg("Approval resolved")

	return nil
}

// Cancel removes a pending request without delivering a decision. Used
// when the waiter gives up (timeout or run cancellation).
func (s *Store) Cancel(id string) {
	s.mu.Lock()
	_, ok := s.pending[id]
	if ok {
		delete(s.pending, id)
	}
	s.mu.Unlock()

	if ok {
		s.logger.Debug().Str("approvalId", id).Msg("Approval request cancelled")
	}
}

// Pending returns a snapshot of all unresolved requests.
func (s *Store) Pending() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()

	requests := make([]Request, 0, len(s.pending))
	for _, pending := range s.pending {
		requests = append(requests, pending.request)
	}
	return requests
}
