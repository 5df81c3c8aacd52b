// Package task defines the value types shared by every executor: the task
// identifier, the request payload a caller submits, and the status enum the
// metadata store transitions through.
package task

import "github.com/google/uuid"

// ID uniquely identifies one task across its whole lifetime.
type ID string

// NewID generates a fresh random task identifier.
func NewID() ID {
	return ID(uuid.New().String())
}

func (i ID) String() string { return string(i) }

// PayloadType discriminates the two kinds of work a task can run.
type PayloadType string

const (
	PayloadClaudeCode    PayloadType = "claude_code"
	PayloadShellCommand  PayloadType = "shell_command"
)

// Request is what a caller submits to start a task. Exactly one of the
// ClaudeCode or ShellCommand fields is populated, selected by Type.
type Request struct {
	Type PayloadType `json:"type" yaml:"type"`

	Prompt       string   `json:"prompt,omitempty" yaml:"prompt,omitempty"`
	MaxTurns     *int     `json:"max_turns,omitempty" yaml:"max_turns,omitempty"`
	AllowedTools []string `json:"allowed_tools,omitempty" yaml:"allowed_tools,omitempty"`

	Command string `json:"command,omitempty" yaml:"command,omitempty"`

	Workspace string `json:"workspace,omitempty" yaml:"workspace,omitempty"`
	Detach    bool   `json:"detach,omitempty" yaml:"detach,omitempty"`
}

// Description renders a short human-readable summary of the payload, used
// as TaskMetadata's description field.
func (r Request) Description() string {
	switch r.Type {
	case PayloadClaudeCode:
		return r.Prompt
	case PayloadShellCommand:
		return r.Command
	default:
		return ""
	}
}

// Status is the lifecycle state of a task.
type Status string

const (
	StatusStarting         Status = "starting"
	StatusRunning          Status = "running"
	StatusCompleted        Status = "completed"
	StatusFailed           Status = "failed"
	StatusKilled           Status = "killed"
	StatusHeartbeatTimeout Status = "heartbeat_timeout"
	StatusUnknown          Status = "unknown"
)

// IsTerminal reports whether no further transition is possible from s.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusKilled, StatusHeartbeatTimeout:
		return true
	default:
		return false
	}
}
