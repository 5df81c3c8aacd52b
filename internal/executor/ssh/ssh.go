// Package ssh implements the SSH task executor: it launches a detached
// remote shell job over golang.org/x/crypto/ssh, tracks it via a PID file
// and a heartbeat side-channel, and reconciles status by probing the
// remote host on demand.
package ssh

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"

	"github.com/openclaw/coding-agent-orchestrator/internal/config"
	"github.com/openclaw/coding-agent-orchestrator/internal/executor"
	"github.com/openclaw/coding-agent-orchestrator/internal/metadata"
	"github.com/openclaw/coding-agent-orchestrator/internal/task"
)

// commandRunner executes shell commands on the remote host. The production
// implementation wraps an *ssh.Client; tests substitute a scripted fake
// through Driver.dial.
type commandRunner interface {
	Run(ctx context.Context, cmd string) (string, error)
	Close() error
}

type dialFunc func(ctx context.Context) (commandRunner, error)

// Driver is the SSH-backed Executor.
type Driver struct {
	cfg   config.ExecutorConfig
	store *metadata.Store
	dial  dialFunc
}

// New constructs a Driver against cfg, persisting metadata in store.
func New(cfg config.ExecutorConfig, store *metadata.Store) *Driver {
	d := &Driver{cfg: cfg, store: store}
	d.dial = d.connect
	return d
}

func (d *Driver) Name() string { return d.cfg.Name }
func (d *Driver) Type() string { return "ssh" }

func (d *Driver) remoteTaskDir(id task.ID) string {
	return fmt.Sprintf("/tmp/openclaw-tasks/%s", id)
}

// connect establishes a fresh SSH session to the configured host, trying
// the configured private key file first and falling back to the
// SSH_AUTH_SOCK agent.
func (d *Driver) connect(ctx context.Context) (commandRunner, error) {
	if d.cfg.Host == "" {
		return nil, executor.Newf(executor.KindConfig, "ssh executor %q requires 'host'", d.cfg.Name)
	}
	if d.cfg.User == "" {
		return nil, executor.Newf(executor.KindConfig, "ssh executor %q requires 'user'", d.cfg.Name)
	}

	authMethods, err := d.authMethods()
	if err != nil {
		return nil, executor.Wrap(executor.KindSshConnection, err, "auth setup")
	}

	clientCfg := &ssh.ClientConfig{
		User:            d.cfg.User,
		Auth:            authMethods,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         15 * time.Second,
	}

	addr := fmt.Sprintf("%s:%d", d.cfg.Host, d.cfg.SSHPort())
	client, err := ssh.Dial("tcp", addr, clientCfg)
	if err != nil {
		return nil, executor.Wrap(executor.KindSshConnection, err, fmt.Sprintf("dial %s", addr))
	}
	return &sshRunner{client: client}, nil
}

func (d *Driver) authMethods() ([]ssh.AuthMethod, error) {
	if d.cfg.KeyPath != "" {
		key, err := os.ReadFile(d.cfg.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("read key %s: %w", d.cfg.KeyPath, err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("parse key %s: %w", d.cfg.KeyPath, err)
		}
		return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
	}

	sock := os.Getenv("SSH_AUTH_SOCK")
	if sock == "" {
		return nil, fmt.Errorf("no key_path configured and SSH_AUTH_SOCK is unset")
	}
	conn, err := agentDial(sock)
	if err != nil {
		return nil, fmt.Errorf("dial ssh agent: %w", err)
	}
	ag := agent.NewClient(conn)
	return []ssh.AuthMethod{ssh.PublicKeysCallback(ag.Signers)}, nil
}

// sshRunner runs each command on a fresh session of one *ssh.Client.
type sshRunner struct {
	client *ssh.Client
}

func (r *sshRunner) Run(ctx context.Context, cmd string) (string, error) {
	session, err := r.client.NewSession()
	if err != nil {
		return "", executor.Wrap(executor.KindSshCommand, err, "open session")
	}
	defer session.Close()

	var stdout, stderr strings.Builder
	session.Stdout = &stdout
	session.Stderr = &stderr

	if err := session.Run(cmd); err != nil {
		if stderr.Len() > 0 {
			return stdout.String(), executor.Wrap(executor.KindSshCommand, err, strings.TrimSpace(stderr.String()))
		}
		return stdout.String(), executor.Wrap(executor.KindSshCommand, err, fmt.Sprintf("exec %q", cmd))
	}
	return stdout.String(), nil
}

func (r *sshRunner) Close() error { return r.client.Close() }

func (d *Driver) Start(ctx context.Context, req task.Request) (*metadata.Metadata, error) {
	id := task.NewID()
	run, err := d.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer run.Close()

	taskDir := d.remoteTaskDir(id)
	if _, err := run.Run(ctx, fmt.Sprintf("mkdir -p %s", taskDir)); err != nil {
		return nil, err
	}

	if _, err := run.Run(ctx, heartbeatScript(taskDir, heartbeatIntervalSeconds)); err != nil {
		return nil, err
	}

	logFile := taskDir + "/claude.log"
	pidFile := taskDir + "/claude.pid"
	exitFile := taskDir + "/claude.exitcode"
	workspace := req.Workspace
	if workspace == "" {
		workspace = "~"
	}

	payload := buildPayloadCommand(d.cfg, req)
	// The wrapper shell runs the payload, then records its exit status; the
	// wrapper itself is backgrounded and its PID captured, so kill -0 on
	// that PID tracks the task for its whole lifetime.
	wrapper := fmt.Sprintf("%s > %s 2>&1; echo $? > %s", payload, logFile, exitFile)
	launch := fmt.Sprintf(
		"cd %s && nohup sh -c %s > /dev/null 2>&1 & echo $! > %s",
		workspace, executor.ShellEscape(wrapper), pidFile,
	)
	if _, err := run.Run(ctx, launch); err != nil {
		return nil, err
	}

	m := metadata.New(id, d.cfg.Name, "ssh", req)

	if req.Detach {
		if err := d.store.Write(m); err != nil {
			return nil, executor.Wrap(executor.KindIo, err, "write metadata")
		}
		return m, nil
	}

	pidOut, err := run.Run(ctx, fmt.Sprintf("cat %s", pidFile))
	if err != nil {
		return nil, err
	}
	pid, err := strconv.ParseUint(strings.TrimSpace(pidOut), 10, 32)
	if err != nil {
		return nil, executor.Newf(executor.KindProcess, "invalid PID %q", strings.TrimSpace(pidOut))
	}
	m.MarkRunning(int(pid))

	if err := d.store.Write(m); err != nil {
		return nil, executor.Wrap(executor.KindIo, err, "write metadata")
	}

	metaJSON, err := json.MarshalIndent(m, "", "  ")
	if err == nil {
		heredoc := fmt.Sprintf("cat > %s/%s.meta.json << 'METAEOF'\n%s\nMETAEOF", taskDir, id, string(metaJSON))
		_, _ = run.Run(ctx, heredoc)
	}

	return m, nil
}

func (d *Driver) Status(ctx context.Context, id task.ID) (*metadata.Metadata, error) {
	m, err := d.store.Read(id)
	if err != nil {
		return nil, executor.Wrap(executor.KindTaskNotFound, err, string(id))
	}

	if m.Status == task.StatusStarting && m.PID == nil {
		run, err := d.dial(ctx)
		if err != nil {
			return nil, err
		}
		defer run.Close()
		pidOut, err := run.Run(ctx, fmt.Sprintf("cat %s/claude.pid 2>/dev/null", d.remoteTaskDir(id)))
		if err == nil {
			if pid, perr := strconv.Atoi(strings.TrimSpace(pidOut)); perr == nil {
				m.MarkRunning(pid)
				_ = d.store.Write(m)
			}
		}
		return m, nil
	}

	if m.Status != task.StatusRunning {
		return m, nil
	}

	run, err := d.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer run.Close()

	taskDir := d.remoteTaskDir(id)
	if hb, ok := readHeartbeat(ctx, run, taskDir); ok {
		m.LastHeartbeat = &hb
		if m.IsStale(time.Now()) {
			m.MarkHeartbeatTimeout()
			_ = d.store.Write(m)
			return m, nil
		}
		_ = d.store.Write(m)
	}

	if m.PID == nil {
		return m, nil
	}

	check, err := run.Run(ctx, fmt.Sprintf("kill -0 %d 2>/dev/null && echo running || echo stopped", *m.PID))
	if err != nil {
		return m, nil
	}
	if strings.TrimSpace(check) == "stopped" {
		exitOut, err := run.Run(ctx, fmt.Sprintf("cat %s/claude.exitcode 2>/dev/null", taskDir))
		exitCode := 0
		if err == nil {
			if parsed, perr := strconv.Atoi(strings.TrimSpace(exitOut)); perr == nil {
				exitCode = parsed
			}
		}
		m.MarkCompleted(exitCode)
		if err := d.store.Write(m); err != nil {
			return nil, executor.Wrap(executor.KindIo, err, "write metadata")
		}
	}

	return m, nil
}

func (d *Driver) Logs(ctx context.Context, id task.ID, lines int) ([]string, error) {
	run, err := d.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer run.Close()

	logFile := d.remoteTaskDir(id) + "/claude.log"
	out, err := run.Run(ctx, fmt.Sprintf("tail -n %d %s 2>/dev/null || true", lines, logFile))
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(out) == "" {
		return nil, nil
	}
	return strings.Split(strings.TrimRight(out, "\n"), "\n"), nil
}

func (d *Driver) Kill(ctx context.Context, id task.ID) error {
	m, err := d.store.Read(id)
	if err != nil {
		return executor.Wrap(executor.KindTaskNotFound, err, string(id))
	}
	if m.PID == nil {
		m.MarkKilled()
		return d.store.Write(m)
	}

	run, err := d.dial(ctx)
	if err != nil {
		return err
	}
	defer run.Close()

	taskDir := d.remoteTaskDir(id)
	_, _ = run.Run(ctx, fmt.Sprintf("cat %s/heartbeat.pid 2>/dev/null | xargs -r kill 2>/dev/null || true", taskDir))
	_, _ = run.Run(ctx, fmt.Sprintf("kill %d 2>/dev/null || true", *m.PID))

	m.MarkKilled()
	if err := d.store.Write(m); err != nil {
		return executor.Wrap(executor.KindIo, err, "write metadata")
	}
	return nil
}

func (d *Driver) Cleanup(ctx context.Context, id task.ID) error {
	run, err := d.dial(ctx)
	if err == nil {
		defer run.Close()
		_, _ = run.Run(ctx, fmt.Sprintf("rm -rf %s", d.remoteTaskDir(id)))
	}
	if err := d.store.Delete(id); err != nil {
		return executor.Wrap(executor.KindIo, err, "delete metadata")
	}
	return nil
}

const heartbeatIntervalSeconds = 30

// heartbeatScript renders the remote bash command that launches a detached
// loop writing {"timestamp": <unix seconds>} to heartbeat.json every
// interval seconds.
func heartbeatScript(taskDir string, interval int) string {
	script := fmt.Sprintf(
		`cat > %s/heartbeat.sh << 'HBEOF'
#!/bin/bash
while true; do
  printf '{"timestamp": %%s}' "$(date +%%s)" > %s/heartbeat.json
  sleep %d
done
HBEOF
chmod +x %s/heartbeat.sh
nohup %s/heartbeat.sh > %s/heartbeat.log 2>&1 & echo $! > %s/heartbeat.pid`,
		taskDir, taskDir, interval, taskDir, taskDir, taskDir, taskDir,
	)
	return script
}

type heartbeatPayload struct {
	Timestamp int64 `json:"timestamp"`
}

// readHeartbeat reads and parses the remote heartbeat.json. A missing or
// unparseable file is not an error: it simply yields ok=false, leaving the
// caller's last known heartbeat untouched.
func readHeartbeat(ctx context.Context, run commandRunner, taskDir string) (int64, bool) {
	out, err := run.Run(ctx, fmt.Sprintf("cat %s/heartbeat.json 2>/dev/null", taskDir))
	if err != nil || strings.TrimSpace(out) == "" {
		return 0, false
	}
	var hb heartbeatPayload
	if err := json.Unmarshal([]byte(out), &hb); err != nil {
		return 0, false
	}
	return hb.Timestamp, true
}

// buildPayloadCommand renders the in-shell command for req: either a
// claude invocation or a raw shell command.
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
