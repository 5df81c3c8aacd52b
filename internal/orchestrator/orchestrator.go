// Package orchestrator wires the executor registry, metadata store, and
// completion pipeline into the operations the CLI exposes: start, status,
// logs, kill, cleanup, cleanup-stale, list, and the dashboard projection.
package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"github.com/openclaw/coding-agent-orchestrator/internal/completion"
	"github.com/openclaw/coding-agent-orchestrator/internal/executor"
	"github.com/openclaw/coding-agent-orchestrator/internal/metadata"
	"github.com/openclaw/coding-agent-orchestrator/internal/registry"
	"github.com/openclaw/coding-agent-orchestrator/internal/task"
)

// Orchestrator is the top-level facade the CLI drives.
type Orchestrator struct {
	Registry *registry.Registry
	Store    *metadata.Store
	Notifier *completion.Notifier
	Logger   *slog.Logger
}

// New builds an Orchestrator. notifier may be nil if no webhook is configured.
func New(reg *registry.Registry, store *metadata.Store, notifier *completion.Notifier, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{Registry: reg, Store: store, Notifier: notifier, Logger: logger}
}

// complete runs the completion pipeline for m if it just became terminal:
// write the idempotent completion record, then best-effort notify.
func (o *Orchestrator) complete(m *metadata.Metadata) {
	if !m.Status.IsTerminal() {
		return
	}
	wrote, err := completion.WriteRecord(m)
	if err != nil {
		o.Logger.Error("write completion record", "task_id", m.TaskID, "error", err)
		return
	}
	if wrote && o.Notifier != nil {
		o.Notifier.Notify(m)
	}
}

// Start launches req on executorName.
func (o *Orchestrator) Start(ctx context.Context, executorName string, req task.Request) (*metadata.Metadata, error) {
	ex, err := o.Registry.FindExecutor(executorName)
	if err != nil {
		return nil, err
	}
	m, err := ex.Start(ctx, req)
	if err != nil {
		return nil, err
	}
	o.Logger.Info("task started", "task_id", m.TaskID, "executor", executorName, "status", m.Status)
	o.complete(m)
	return m, nil
}

// Status reconciles id's status against its substrate and runs the
// completion pipeline if it newly became terminal.
func (o *Orchestrator) Status(ctx context.Context, id task.ID) (*metadata.Metadata, error) {
	m, err := o.Store.Read(id)
	if err != nil {
		return nil, executor.Wrap(executor.KindTaskNotFound, err, string(id))
	}
	ex, err := o.Registry.FindExecutor(m.ExecutorName)
	if err != nil {
		return nil, err
	}
	m, err = ex.Status(ctx, id)
	if err != nil {
		return nil, err
	}
	o.complete(m)
	return m, nil
}

// Logs returns the tail of id's log.
func (o *Orchestrator) Logs(ctx context.Context, id task.ID, lines int) ([]string, error) {
	m, err := o.Store.Read(id)
	if err != nil {
		return nil, executor.Wrap(executor.KindTaskNotFound, err, string(id))
	}
	ex, err := o.Registry.FindExecutor(m.ExecutorName)
	if err != nil {
		return nil, err
	}
	return ex.Logs(ctx, id, lines)
}

// Kill terminates id and runs the completion pipeline.
func (o *Orchestrator) Kill(ctx context.Context, id task.ID) error {
	m, err := o.Store.Read(id)
	if err != nil {
		return executor.Wrap(executor.KindTaskNotFound, err, string(id))
	}
	ex, err := o.Registry.FindExecutor(m.ExecutorName)
	if err != nil {
		return err
	}
	if err := ex.Kill(ctx, id); err != nil {
		return err
	}
	m, err = o.Store.Read(id)
	if err == nil {
		o.complete(m)
	}
	return nil
}

// Cleanup removes id's substrate artifacts and local metadata.
func (o *Orchestrator) Cleanup(ctx context.Context, id task.ID) error {
	m, err := o.Store.Read(id)
	if err != nil {
		return executor.Wrap(executor.KindTaskNotFound, err, string(id))
	}
	ex, err := o.Registry.FindExecutor(m.ExecutorName)
	if err != nil {
		return err
	}
	return ex.Cleanup(ctx, id)
}

// CleanupStale reclassifies stale Running tasks to HeartbeatTimeout and
// runs the completion pipeline for each.
func (o *Orchestrator) CleanupStale(ctx context.Context) ([]task.ID, error) {
	changed, err := o.Store.SweepStale(time.Now())
	if err != nil {
		return nil, err
	}
	for _, id := range changed {
		if m, err := o.Store.Read(id); err == nil {
			o.complete(m)
		}
	}
	return changed, nil
}

// List returns every stored task's metadata, newest first.
func (o *Orchestrator) List(ctx context.Context) ([]*metadata.Metadata, error) {
	return o.Store.ListAll()
}
