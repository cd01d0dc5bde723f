package config

import "sync"

// Overrides is a hot-swappable approval override set backed by the
// approvals section of the config file. The watcher replaces its contents
// wholesale on reload; readers on the controller's hot path only take a
// read lock.
type Overrides struct {
	mu            sync.RWMutex
	global        map[string]bool
	conversations map[string]map[string]bool
}

// NewOverrides creates an override set from the approvals config.
func NewOverrides(approvals ApprovalsConfig) *Overrides {
	o := &Overrides{}
	o.Replace(approvals)
	return o
}

// Replace swaps in a new override set atomically.
func (o *Overrides) Replace(approvals ApprovalsConfig) {
	global := make(map[string]bool, len(approvals.Global))
	for tool, value := range approvals.Global {
		global[tool] = value
	}
	conversations := make(map[string]map[string]bool, len(approvals.Conversations))
	for conversationID, tools := range approvals.Conversations {
		scoped := make(map[string]bool, len(tools))
		for tool, value := range tools {
			scoped[tool] = value
		}
		conversations[conversationID] = scoped
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.global = global
	o.conversations = conversations
}

// ConversationOverride returns the conversation-scoped override for a tool.
func (o *Overrides) ConversationOverride(conversationID, tool string) (bool, bool, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	scoped, ok := o.conversations[conversationID]
	if !ok {
		return false, false, nil
	}
	value, ok := scoped[tool]
	return value, ok, nil
}

// GlobalOverride returns the global override for a tool.
func (o *Overrides) GlobalOverride(tool string) (bool, bool, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	value, ok := o.global[tool]
	return value, ok, nil
}
