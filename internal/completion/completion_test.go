package completion

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/openclaw/coding-agent-orchestrator/internal/metadata"
	"github.com/openclaw/coding-agent-orchestrator/internal/task"
)

func completedMetadata(t *testing.T) *metadata.Metadata {
	t.Helper()
	req := task.Request{Type: task.PayloadShellCommand, Command: "make test"}
	m := metadata.New(task.NewID(), "box", "local", req)
	m.MarkRunning(123)
	m.MarkCompleted(0)
	return m
}

func withCompletionsDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	return filepath.Join(dir, ".openclaw-agent", "completions")
}

func TestWriteRecordIsIdempotent(t *testing.T) {
	withCompletionsDir(t)
	m := completedMetadata(t)

	wrote, err := WriteRecord(m)
	if err != nil {
		t.Fatalf("WriteRecord: %v", err)
	}
	if !wrote {
		t.Fatalf("expected first write to report true")
	}

	wroteAgain, err := WriteRecord(m)
	if err != nil {
		t.Fatalf("WriteRecord (second): %v", err)
	}
	if wroteAgain {
		t.Fatalf("expected second write to report false")
	}
}

func TestWriteRecordSkipsNonTerminal(t *testing.T) {
	withCompletionsDir(t)
	req := task.Request{Type: task.PayloadShellCommand, Command: "sleep 10"}
	m := metadata.New(task.NewID(), "box", "local", req)
	m.MarkRunning(1)

	wrote, err := WriteRecord(m)
	if err != nil {
		t.Fatalf("WriteRecord: %v", err)
	}
	if wrote {
		t.Fatalf("did not expect a record for a non-terminal task")
	}
}

func TestWriteRecordContentMatchesMetadata(t *testing.T) {
	dir := withCompletionsDir(t)
	m := completedMetadata(t)

	if _, err := WriteRecord(m); err != nil {
		t.Fatalf("WriteRecord: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, string(m.TaskID)+".json"))
	if err != nil {
		t.Fatalf("read completion file: %v", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if rec.TaskID != string(m.TaskID) || rec.Status != "success" || rec.ExitCode != 0 {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestNotifyPostsJSONBody(t *testing.T) {
	received := make(chan Record, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var rec Record
		if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
			t.Errorf("decode webhook body: %v", err)
		}
		received <- rec
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	m := completedMetadata(t)
	notifier := NewNotifier(server.URL, nil)
	notifier.Notify(m)

	select {
	case rec := <-received:
		if rec.TaskID != string(m.TaskID) {
			t.Errorf("expected task id %s, got %s", m.TaskID, rec.TaskID)
		}
	default:
		t.Fatalf("expected webhook to have been called")
	}
}

func TestNotifySkipsNonTerminalAndUnconfigured(t *testing.T) {
	req := task.Request{Type: task.PayloadShellCommand, Command: "sleep 10"}
	running := metadata.New(task.NewID(), "box", "local", req)
	running.MarkRunning(1)

	notifier := NewNotifier("http://127.0.0.1:0/unreachable", nil)
	notifier.Notify(running) // non-terminal: must not attempt delivery, so no panic/hang

	var unconfigured *Notifier
	unconfigured.Notify(completedMetadata(t)) // nil receiver is a no-op
}
