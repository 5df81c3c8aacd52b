// Package completion writes the idempotent per-task completion record and,
// when a webhook is configured, delivers it — the single-channel analogue
// of the teacher's notification.Center/Channel pattern, sized down to the
// one HTTP destination this system needs.
package completion

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/openclaw/coding-agent-orchestrator/internal/metadata"
	"github.com/openclaw/coding-agent-orchestrator/internal/task"
)

// Record is the completion notification body, written to disk and POSTed
// to a webhook.
type Record struct {
	TaskID      string `json:"task_id"`
	Status      string `json:"status"`
	ExitCode    int    `json:"exit_code"`
	CompletedAt string `json:"completed_at"`
	Executor    string `json:"executor"`
}

func recordFor(m *metadata.Metadata) Record {
	status := "failure"
	if m.Status == task.StatusCompleted {
		status = "success"
	}
	exitCode := -1
	if m.ExitCode != nil {
		exitCode = *m.ExitCode
	}
	completedAt := ""
	if m.FinishedAt != nil {
		completedAt = m.FinishedAt.Format(time.RFC3339)
	}
	return Record{
		TaskID:      string(m.TaskID),
		Status:      status,
		ExitCode:    exitCode,
		CompletedAt: completedAt,
		Executor:    m.ExecutorName,
	}
}

// Dir returns "~/.openclaw-agent/completions".
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "/tmp"
	}
	return filepath.Join(home, ".openclaw-agent", "completions")
}

// WriteRecord writes the completion record for m, iff m is terminal and no
// record exists yet. It returns whether a new file was written.
func WriteRecord(m *metadata.Metadata) (bool, error) {
	if !m.Status.IsTerminal() {
		return false, nil
	}

	dir := Dir()
	path := filepath.Join(dir, string(m.TaskID)+".json")
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false, fmt.Errorf("create completions dir: %w", err)
	}

	data, err := json.MarshalIndent(recordFor(m), "", "  ")
	if err != nil {
		return false, fmt.Errorf("marshal completion record: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return false, fmt.Errorf("write completion record: %w", err)
	}
	return true, nil
}

// Notifier delivers a completion record to a configured webhook URL over
// plain net/http, a deliberate simplification of the original curl
// subprocess: the standard library client already gives per-request
// timeouts without shelling out.
type Notifier struct {
	WebhookURL string
	Client     *http.Client
	Logger     *slog.Logger
}

// NewNotifier builds a Notifier posting to url with a 10 second timeout.
func NewNotifier(url string, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		WebhookURL: url,
		Client:     &http.Client{Timeout: 10 * time.Second},
		Logger:     logger,
	}
}

// Notify POSTs m's completion record as JSON. Non-terminal metadata and an
// unconfigured webhook are both no-ops. Failures are logged, not returned,
// matching the "notify is best-effort" design of the completion pipeline.
func (n *Notifier) Notify(m *metadata.Metadata) {
	if n == nil || n.WebhookURL == "" || !m.Status.IsTerminal() {
		return
	}

	body, err := json.Marshal(recordFor(m))
	if err != nil {
		n.Logger.Error("marshal completion record", "task_id", m.TaskID, "error", err)
		return
	}

	resp, err := n.Client.Post(n.WebhookURL, "application/json", bytes.NewReader(body))
	if err != nil {
		n.Logger.Error("webhook post failed", "task_id", m.TaskID, "url", n.WebhookURL, "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		n.Logger.Error("webhook post rejected", "task_id", m.TaskID, "status", resp.StatusCode)
	}
}
