// Package outputs stores persisted tool results (artifacts) out-of-band
// from conversation context. Large or caller-persisted results live here,
// referenced by an opaque id; introspection tools read them back on
// demand.
package outputs

import "errors"

// ErrNotFound is returned when no record exists for an id.
var ErrNotFound = errors.New("tool output not found")

// Record is one persisted tool output.
type Record struct {
	ID             string                 `json:"id"`
	ToolName       string                 `json:"tool_name"`
	ConversationID string                 `json:"conversation_id,omitempty"`
	MessageID      string                 `json:"message_id,omitempty"`
	CreatedAt      int64                  `json:"created_at"`
	Success        bool                   `json:"success"`
	Parameters     map[string]interface{} `json:"parameters,omitempty"`
	Output         interface{}            `json:"output"`
}

// Ref points at a stored record.
type Ref struct {
	ID      string `json:"id"`
	Storage string `json:"storage"`
}

// Store persists and retrieves tool output records.
type Store interface {
	// Store saves a record and returns its reference.
	Store(record Record) (Ref, error)
	// Read loads a record by id, returning ErrNotFound when absent.
	Read(id string) (Record, error)
	// Exists reports whether a record exists for the id.
	Exists(id string) (bool, error)
	// List returns all stored records.
	List() ([]Record, error)
	// DeleteOlderThan removes records created before the cutoff (unix
	// milliseconds) and returns how many were removed.
	DeleteOlderThan(cutoff int64) (int, error)
	// Close releases store resources.
	Close() error
}
