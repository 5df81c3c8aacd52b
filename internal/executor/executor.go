// Package executor defines the polymorphic contract every task backend
// (SSH, container, local) satisfies, and the error taxonomy shared across
// them.
package executor

import (
	"context"

	"github.com/openclaw/coding-agent-orchestrator/internal/metadata"
	"github.com/openclaw/coding-agent-orchestrator/internal/task"
)

// Executor is the uniform lifecycle contract for a task backend. Every
// operation re-derives state from the local metadata store and a fresh
// probe of the substrate; no operation assumes in-memory state survives
// across calls.
type Executor interface {
	// Name is the configured executor name.
	Name() string

	// Type returns the executor kind ("ssh", "container", "local").
	Type() string

	// Start launches req on the substrate and returns the initial metadata
	// record. If req.Detach is set, the PID may not yet be known; a later
	// Status call discovers it.
	Start(ctx context.Context, req task.Request) (*metadata.Metadata, error)

	// Status re-probes the substrate for id and returns up-to-date
	// metadata, persisting any status change.
	Status(ctx context.Context, id task.ID) (*metadata.Metadata, error)

	// Logs returns up to lines of the task's combined stdout/stderr,
	// oldest first.
	Logs(ctx context.Context, id task.ID, lines int) ([]string, error)

	// Kill terminates the task's process (and, for SSH, its heartbeat
	// loop) and marks it Killed.
	Kill(ctx context.Context, id task.ID) error

	// Cleanup removes substrate-side artifacts and the local metadata
	// record. Remote cleanup failures are best-effort and do not prevent
	// local metadata removal.
	Cleanup(ctx context.Context, id task.ID) error
}
