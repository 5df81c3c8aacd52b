// Package container implements the container-backed task executor: it
// shells out to docker or podman the way the teacher's devops/docker
// client wraps the Docker CLI, launching a detached container per task and
// reconciling status via `inspect`.
package container

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/openclaw/coding-agent-orchestrator/internal/config"
	"github.com/openclaw/coding-agent-orchestrator/internal/executor"
	"github.com/openclaw/coding-agent-orchestrator/internal/metadata"
	"github.com/openclaw/coding-agent-orchestrator/internal/task"
)

// Driver is the container-backed Executor.
type Driver struct {
	cfg   config.ExecutorConfig
	store *metadata.Store
}

// New constructs a Driver against cfg, persisting metadata in store.
func New(cfg config.ExecutorConfig, store *metadata.Store) *Driver {
	return &Driver{cfg: cfg, store: store}
}

func (d *Driver) Name() string { return d.cfg.Name }
func (d *Driver) Type() string { return "container" }

func (d *Driver) runtimeCmd() string {
	return string(d.cfg.ContainerRuntimeOrDefault())
}

func (d *Driver) containerName(id task.ID) string {
	s := string(id)
	if len(s) > 8 {
		s = s[:8]
	}
	return fmt.Sprintf("openclaw-%s-%s", d.cfg.Name, s)
}

// run shells out to the configured container runtime and returns trimmed
// stdout, wrapping any failure (including non-zero exit) as a
// KindContainerRuntime error with the combined stderr as context.
func (d *Driver) run(ctx context.Context, args ...string) (string, error) {
	runtime := d.runtimeCmd()
	cmd := exec.CommandContext(ctx, runtime, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		sub := ""
		if len(args) > 0 {
			sub = args[0]
		}
		return "", executor.Wrap(executor.KindContainerRuntime, err,
			fmt.Sprintf("%s %s: %s", runtime, sub, strings.TrimSpace(stderr.String())))
	}
	return strings.TrimSpace(stdout.String()), nil
}

func (d *Driver) Start(ctx context.Context, req task.Request) (*metadata.Metadata, error) {
	if d.cfg.Image == "" {
		return nil, executor.Newf(executor.KindConfig, "container executor %q requires 'image'", d.cfg.Name)
	}
	id := task.NewID()
	cname := d.containerName(id)

	args := []string{"run", "-d", "--name", cname}
	for _, vol := range d.cfg.Volumes {
		args = append(args, "-v", vol)
	}
	for k, v := range d.cfg.Env {
		args = append(args, "-e", fmt.Sprintf("%s=%s", k, v))
	}
	if req.Workspace != "" {
		args = append(args, "-w", req.Workspace)
	}
	args = append(args, d.cfg.Image, "sh", "-c", buildPayloadCommand(d.cfg, req))

	if _, err := d.run(ctx, args...); err != nil {
		return nil, err
	}

	pidOut, err := d.run(ctx, "inspect", "--format", "{{.State.Pid}}", cname)
	pid := 0
	if err == nil {
		if parsed, perr := strconv.Atoi(pidOut); perr == nil {
			pid = parsed
		}
	}

	m := metadata.New(id, d.cfg.Name, "container", req)
	m.MarkRunning(pid)
	if err := d.store.Write(m); err != nil {
		return nil, executor.Wrap(executor.KindIo, err, "write metadata")
	}
	return m, nil
}

func (d *Driver) Status(ctx context.Context, id task.ID) (*metadata.Metadata, error) {
	m, err := d.store.Read(id)
	if err != nil {
		return nil, executor.Wrap(executor.KindTaskNotFound, err, string(id))
	}
	if m.Status != task.StatusRunning {
		return m, nil
	}

	cname := d.containerName(id)
	state, err := d.run(ctx, "inspect", "--format", "{{.State.Status}}", cname)
	if err != nil {
		state = "unknown"
	}

	switch strings.TrimSpace(state) {
	case "running":
		// no change
	case "exited":
		exitOut, err := d.run(ctx, "inspect", "--format", "{{.State.ExitCode}}", cname)
		exitCode := 1
		if err == nil {
			if parsed, perr := strconv.Atoi(exitOut); perr == nil {
				exitCode = parsed
			}
		}
		m.MarkCompleted(exitCode)
		if err := d.store.Write(m); err != nil {
			return nil, executor.Wrap(executor.KindIo, err, "write metadata")
		}
	default:
		m.MarkFailed(fmt.Sprintf("Container in unexpected state: %s", strings.TrimSpace(state)))
		if err := d.store.Write(m); err != nil {
			return nil, executor.Wrap(executor.KindIo, err, "write metadata")
		}
	}

	return m, nil
}

func (d *Driver) Logs(ctx context.Context, id task.ID, lines int) ([]string, error) {
	out, err := d.run(ctx, "logs", "--tail", strconv.Itoa(lines), d.containerName(id))
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

func (d *Driver) Kill(ctx context.Context, id task.ID) error {
	cname := d.containerName(id)
	if _, err := d.run(ctx, "kill", cname); err != nil {
		return err
	}

	m, err := d.store.Read(id)
	if err != nil {
		return executor.Wrap(executor.KindTaskNotFound, err, string(id))
	}
	m.MarkKilled()
	if err := d.store.Write(m); err != nil {
		return executor.Wrap(executor.KindIo, err, "write metadata")
	}
	return nil
}

func (d *Driver) Cleanup(ctx context.Context, id task.ID) error {
	_, _ = d.run(ctx, "rm", "-f", d.containerName(id))
	if err := d.store.Delete(id); err != nil {
		return executor.Wrap(executor.KindIo, err, "delete metadata")
	}
	return nil
}

func buildPayloadCommand(cfg config.ExecutorConfig, req task.Request) string {
	switch req.Type {
	case task.PayloadClaudeCode:
		cmd := fmt.Sprintf("%s --print --output-format json -p %s", cfg.ClaudeBinary(), executor.ShellEscape(req.Prompt))
		if req.MaxTurns != nil {
			cmd += fmt.Sprintf(" --max-turns %d", *req.MaxTurns)
		}
		for _, tool := range req.AllowedTools {
			cmd += fmt.Sprintf(" --allowedTools %s", executor.ShellEscape(tool))
		}
		return cmd
	default:
		return fmt.Sprintf("sh -c %s", executor.ShellEscape(req.Command))
	}
}
