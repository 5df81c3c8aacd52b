// Package local implements the local-host task executor: it spawns a
// detached shell child via nohup, the way the teacher's devops/process
// manager tracks PID-filed subprocesses, and probes liveness with signal 0
// the way devops/health's process checker does.
package local

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/openclaw/coding-agent-orchestrator/internal/config"
	"github.com/openclaw/coding-agent-orchestrator/internal/executor"
	"github.com/openclaw/coding-agent-orchestrator/internal/metadata"
	"github.com/openclaw/coding-agent-orchestrator/internal/task"
)

const taskRoot = "/tmp/openclaw-tasks"

// Driver is the local-process Executor.
type Driver struct {
	cfg   config.ExecutorConfig
	store *metadata.Store
}

// New constructs a Driver against cfg, persisting metadata in store.
func New(cfg config.ExecutorConfig, store *metadata.Store) *Driver {
	return &Driver{cfg: cfg, store: store}
}

func (d *Driver) Name() string { return d.cfg.Name }
func (d *Driver) Type() string { return "local" }

func taskDir(id task.ID) string {
	return filepath.Join(taskRoot, string(id))
}

func (d *Driver) Start(ctx context.Context, req task.Request) (*metadata.Metadata, error) {
	id := task.NewID()
	dir := taskDir(id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, executor.Wrap(executor.KindIo, err, "create task dir")
	}

	logFile := filepath.Join(dir, "claude.log")
	pidFile := filepath.Join(dir, "claude.pid")
	exitFile := filepath.Join(dir, "claude.exitcode")

	workspace := req.Workspace
	if workspace == "" {
		workspace = "."
	}

	var envPrefix strings.Builder
	for k, v := range d.cfg.Env {
		envPrefix.WriteString(fmt.Sprintf("%s=%s ", k, executor.ShellEscape(v)))
	}

	payload := buildPayloadCommand(d.cfg, req)
	// Same wrapper idiom as the SSH driver: the backgrounded shell runs the
	// payload then records its exit status, and $! is the wrapper's PID.
	wrapper := fmt.Sprintf("%s%s > %s 2>&1; echo $? > %s", envPrefix.String(), payload, logFile, exitFile)
	shellCmd := fmt.Sprintf(
		"cd %s && nohup sh -c %s > /dev/null 2>&1 & echo $! > %s",
		executor.ShellEscape(workspace), executor.ShellEscape(wrapper), pidFile,
	)

	cmd := exec.CommandContext(ctx, "sh", "-c", shellCmd)
	if err := cmd.Run(); err != nil {
		return nil, executor.Wrap(executor.KindProcess, err, "spawn")
	}

	pidBytes, err := os.ReadFile(pidFile)
	if err != nil {
		return nil, executor.Wrap(executor.KindProcess, err, "read PID file")
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(pidBytes)))
	if err != nil {
		return nil, executor.Newf(executor.KindProcess, "invalid PID %q", strings.TrimSpace(string(pidBytes)))
	}

	m := metadata.New(id, d.cfg.Name, "local", req)
	m.MarkRunning(pid)
	if err := d.store.Write(m); err != nil {
		return nil, executor.Wrap(executor.KindIo, err, "write metadata")
	}
	return m, nil
}

// isAlive reports whether pid is a live process, via signal 0.
func isAlive(pid int) bool {
	return syscall.Kill(pid, 0) == nil
}

func (d *Driver) Status(ctx context.Context, id task.ID) (*metadata.Metadata, error) {
	m, err := d.store.Read(id)
	if err != nil {
		return nil, executor.Wrap(executor.KindTaskNotFound, err, string(id))
	}

	if m.Status == task.StatusRunning && m.PID != nil {
		if !isAlive(*m.PID) {
			exitCode := readExitCode(id)
			m.MarkCompleted(exitCode)
			if err := d.store.Write(m); err != nil {
				return nil, executor.Wrap(executor.KindIo, err, "write metadata")
			}
		}
	}

	return m, nil
}

func readExitCode(id task.ID) int {
	data, err := os.ReadFile(filepath.Join(taskDir(id), "claude.exitcode"))
	if err != nil {
		return 0
	}
	code, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0
	}
	return code
}

func (d *Driver) Logs(ctx context.Context, id task.ID, lines int) ([]string, error) {
	logFile := filepath.Join(taskDir(id), "claude.log")
	if _, err := os.Stat(logFile); err != nil {
		return nil, nil
	}
	out, err := exec.CommandContext(ctx, "tail", "-n", strconv.Itoa(lines), logFile).Output()
	if err != nil {
		return nil, executor.Wrap(executor.KindProcess, err, "tail")
	}
	text := strings.TrimRight(string(out), "\n")
	if text == "" {
		return nil, nil
	}
	return strings.Split(text, "\n"), nil
}

func (d *Driver) Kill(ctx context.Context, id task.ID) error {
	m, err := d.store.Read(id)
	if err != nil {
		return executor.Wrap(executor.KindTaskNotFound, err, string(id))
	}
	if m.PID != nil {
		_ = syscall.Kill(*m.PID, syscall.SIGTERM)
		m.MarkKilled()
		if err := d.store.Write(m); err != nil {
			return executor.Wrap(executor.KindIo, err, "write metadata")
		}
	}
	return nil
}

func (d *Driver) Cleanup(ctx context.Context, id task.ID) error {
	if err := os.RemoveAll(taskDir(id)); err != nil {
		return executor.Wrap(executor.KindIo, err, "remove task dir")
	}
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
