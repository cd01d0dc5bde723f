package controller

import "sync"

// SessionStore persists controller session state. Write failures never
// abort a run; the controller logs them and continues, so implementations
// should treat these as best-effort observability writes.
type SessionStore interface {
	SaveSession(session *Session) error
	UpdatePhase(sessionID string, phase Phase) error
	SavePlan(sessionID string, plan *Plan) error
	SavePlanStep(planID string, step PlanStep) error
	UpdateStepStatus(stepID string, status StepStatus) error
	SaveStepResult(result StepResult) error
	MarkCompleted(sessionID, response string) error
}

// NopSessionStore discards all session writes.
type NopSessionStore struct{}

func (NopSessionStore) SaveSession(*Session) error                { return nil }
func (NopSessionStore) UpdatePhase(string, Phase) error           { return nil }
func (NopSessionStore) SavePlan(string, *Plan) error              { return nil }
func (NopSessionStore) SavePlanStep(string, PlanStep) error       { return nil }
func (NopSessionStore) UpdateStepStatus(string, StepStatus) error { return nil }
func (NopSessionStore) SaveStepResult(StepResult) error           { return nil }
func (NopSessionStore) MarkCompleted(string, string) error        { return nil }

// ApprovalOverrides resolves per-tool approval requirements at execution
// time. Conversation-scoped overrides win over global overrides, which in
// turn win over the tool's registered default.
type ApprovalOverrides interface {
	// ConversationOverride returns the override value for a tool within
	// a conversation; ok is false when no override is set.
	ConversationOverride(conversationID, tool string) (value bool, ok bool, err error)
	// GlobalOverride returns the global override value for a tool; ok is
	// false when no override is set.
	GlobalOverride(tool string) (value bool, ok bool, err error)
}

// NopOverrides sets no overrides; tool defaults apply.
type NopOverrides struct{}

func (NopOverrides) ConversationOverride(string, string) (bool, bool, error) {
	return false, false, nil
}

func (NopOverrides) GlobalOverride(string) (bool, bool, error) {
	return false, false, nil
}

// StaticOverrides is an in-memory ApprovalOverrides implementation keyed
// by conversation id and tool name.
type StaticOverrides struct {
	mu           sync.RWMutex
	global       map[string]bool
	conversation map[string]map[string]bool
}

// NewStaticOverrides creates an empty override set.
func NewStaticOverrides() *StaticOverrides {
	return &StaticOverrides{
		global:       make(map[string]bool),
		conversation: make(map[string]map[string]bool),
	}
}

// SetGlobal sets a global approval override for a tool.
func (s *StaticOverrides) SetGlobal(tool string, requiresApproval bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.global[tool] = requiresApproval
}

// SetConversation sets a conversation-scoped approval override.
func (s *StaticOverrides) SetConversation(conversationID, tool string, requiresApproval bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	overrides, ok := s.conversation[conversationID]
	if !ok {
		overrides = make(map[string]bool)
		s.conversation[conversationID] = overrides
	}
	overrides[tool] = requiresApproval
}

// ConversationOverride implements ApprovalOverrides.
func (s *StaticOverrides) ConversationOverride(conversationID, tool string) (bool, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	overrides, ok := s.conversation[conversationID]
	if !ok {
		return false, false, nil
	}
	value, ok := overrides[tool]
	return value, ok, nil
}

// GlobalOverride implements ApprovalOverrides.
func (s *StaticOverrides) GlobalOverride(tool string) (bool, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.global[tool]
	return value, ok, nil
}
