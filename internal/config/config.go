package config

import (
	"fmt"
	"time"

	"github.com/damarr/helmsman/pkg/controller"
)

// Config represents the main Helmsman configuration
type Config struct {
	// Controller limits
	Controller ControllerConfig `json:"controller" mapstructure:"controller"`

	// Approval overrides
	Approvals ApprovalsConfig `json:"approvals" mapstructure:"approvals"`

	// Persisted tool output storage
	Outputs OutputsConfig `json:"outputs" mapstructure:"outputs"`

	// Session persistence
	Sessions SessionsConfig `json:"sessions" mapstructure:"sessions"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// ControllerConfig holds run-loop limits and timeouts
type ControllerConfig struct {
	MaxTotalLLMTurns            int `json:"max_total_llm_turns" mapstructure:"max_total_llm_turns"`
	MaxToolCallsPerStep         int `json:"max_tool_calls_per_step" mapstructure:"max_tool_calls_per_step"`
	ApprovalTimeoutSeconds      int `json:"approval_timeout_seconds" mapstructure:"approval_timeout_seconds"`
	ToolExecutionTimeoutSeconds int `json:"tool_execution_timeout_seconds" mapstructure:"tool_execution_timeout_seconds"`
}

// ApprovalsConfig holds approval-gate overrides. Conversation overrides
// take precedence over global ones, which take precedence over each
// tool's declared default.
type ApprovalsConfig struct {
	Global        map[string]bool            `json:"global" mapstructure:"global"`
	Conversations map[string]map[string]bool `json:"conversations" mapstructure:"conversations"`
}

// OutputsConfig holds artifact store settings
type OutputsConfig struct {
	// Path of the sqlite database; empty means in-memory only.
	Path string `json:"path" mapstructure:"path"`
	// RetentionHours is how long persisted outputs are kept.
	RetentionHours int `json:"retention_hours" mapstructure:"retention_hours"`
	// SweepSchedule is a five-field cron expression for cleanup runs.
	SweepSchedule string `json:"sweep_schedule" mapstructure:"sweep_schedule"`
}

// SessionsConfig holds session store settings
type SessionsConfig struct {
	// Path of the sqlite database; empty means sessions are not persisted.
	Path string `json:"path" mapstructure:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Console   bool   `json:"console" mapstructure:"console"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Controller: ControllerConfig{
			MaxTotalLLMTurns:            30,
			MaxToolCallsPerStep:         8,
			ApprovalTimeoutSeconds:      120,
			ToolExecutionTimeoutSeconds: 120,
		},
		Approvals: ApprovalsConfig{
			Global:        map[string]bool{},
			Conversations: map[string]map[string]bool{},
		},
		Outputs: OutputsConfig{
			RetentionHours: 72,
			SweepSchedule:  "0 3 * * *",
		},
		Logging: LoggingConfig{
			Level:     "info",
			Console:   true,
			Pretty:    true,
			Redaction: true,
		},
	}
}

// ControllerRuntime converts the configured limits into the controller's
// runtime config.
func (c *Config) ControllerRuntime() controller.Config {
	return controller.Config{
		MaxTotalLLMTurns:     c.Controller.MaxTotalLLMTurns,
		MaxToolCallsPerStep:  c.Controller.MaxToolCallsPerStep,
		ApprovalTimeout:      time.Duration(c.Controller.ApprovalTimeoutSeconds) * time.Second,
		ToolExecutionTimeout: time.Duration(c.Controller.ToolExecutionTimeoutSeconds) * time.Second,
	}
}

// OutputRetention returns the configured artifact retention window.
func (c *Config) OutputRetention() time.Duration {
	return time.Duration(c.Outputs.RetentionHours) * time.Hour
}

// Validate checks the configuration for invalid values
func (c *Config) Validate() error {
	if c.Controller.MaxTotalLLMTurns <= 0 {
		return fmt.Errorf("controller.max_total_llm_turns must be positive")
	}
	if c.Controller.MaxToolCallsPerStep <= 0 {
		return fmt.Errorf("controller.max_tool_calls_per_step must be positive")
	}
	if c.Controller.ApprovalTimeoutSeconds <= 0 {
		return fmt.Errorf("controller.approval_timeout_seconds must be positive")
	}
	if c.Controller.ToolExecutionTimeoutSeconds < 0 {
		return fmt.Errorf("controller.tool_execution_timeout_seconds cannot be negative")
	}
	if c.Outputs.RetentionHours <= 0 {
		return fmt.Errorf("outputs.retention_hours must be positive")
	}
	switch c.Logging.Level {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of trace, debug, info, warn, error; got %q", c.Logging.Level)
	}
	return nil
}
