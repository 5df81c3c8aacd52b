// Package registry resolves configured executors by name or label and
// constructs the concrete driver behind the Executor interface, mirroring
// the original implementation's create_executor_from_config dispatch.
package registry

import (
	"github.com/openclaw/coding-agent-orchestrator/internal/config"
	"github.com/openclaw/coding-agent-orchestrator/internal/executor"
	"github.com/openclaw/coding-agent-orchestrator/internal/executor/container"
	"github.com/openclaw/coding-agent-orchestrator/internal/executor/local"
	"github.com/openclaw/coding-agent-orchestrator/internal/executor/ssh"
	"github.com/openclaw/coding-agent-orchestrator/internal/metadata"
)

// Registry wraps a loaded Config with executor construction and lookup.
type Registry struct {
	cfg   config.Config
	store *metadata.Store
}

// New builds a Registry over cfg, persisting all executors' metadata in store.
func New(cfg config.Config, store *metadata.Store) *Registry {
	return &Registry{cfg: cfg, store: store}
}

// Config returns the underlying loaded configuration.
func (r *Registry) Config() config.Config { return r.cfg }

// FindExecutor resolves name to an Executor.
func (r *Registry) FindExecutor(name string) (executor.Executor, error) {
	cfg, ok := r.cfg.FindExecutor(name)
	if !ok {
		return nil, executor.Newf(executor.KindConfig, "no executor named %q", name)
	}
	return r.build(cfg)
}

// FindByLabels resolves every executor config carrying all of labels.
func (r *Registry) FindByLabels(labels []string) ([]executor.Executor, error) {
	cfgs := r.cfg.FindByLabels(labels)
	out := make([]executor.Executor, 0, len(cfgs))
	for _, cfg := range cfgs {
		ex, err := r.build(cfg)
		if err != nil {
			return nil, err
		}
		out = append(out, ex)
	}
	return out, nil
}

func (r *Registry) build(cfg config.ExecutorConfig) (executor.Executor, error) {
	switch cfg.Type {
	case config.ExecutorSSH:
		return ssh.New(cfg, r.store), nil
	case config.ExecutorContainer:
		return container.New(cfg, r.store), nil
	case config.ExecutorLocal:
		return local.New(cfg, r.store), nil
	default:
		return nil, executor.Newf(executor.KindConfig, "unknown executor type %q for %q", cfg.Type, cfg.Name)
	}
}
