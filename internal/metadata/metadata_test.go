package metadata

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/openclaw/coding-agent-orchestrator/internal/task"
)

func newTestMetadata(t *testing.T) *Metadata {
	t.Helper()
	req := task.Request{Type: task.PayloadClaudeCode, Prompt: "hello"}
	return New(task.NewID(), "crib", "ssh", req)
}

func TestMarkCompletedSetsTerminalInvariants(t *testing.T) {
	m := newTestMetadata(t)
	m.MarkRunning(4321)
	m.MarkCompleted(0)

	if m.Status != task.StatusCompleted {
		t.Fatalf("status = %s, want completed", m.Status)
	}
	if m.FinishedAt == nil {
		t.Fatalf("expected FinishedAt to be set")
	}
	if !m.UpdatedAt.Equal(*m.FinishedAt) {
		t.Fatalf("UpdatedAt (%v) != FinishedAt (%v)", m.UpdatedAt, *m.FinishedAt)
	}
	if m.ExitCode == nil || *m.ExitCode != 0 {
		t.Fatalf("expected exit code 0")
	}
}

func TestMarkCompletedNonzeroIsFailed(t *testing.T) {
	m := newTestMetadata(t)
	m.MarkRunning(1)
	m.MarkCompleted(1)

	if m.Status != task.StatusFailed {
		t.Fatalf("status = %s, want failed", m.Status)
	}
}

func TestTerminalStateIsSticky(t *testing.T) {
	m := newTestMetadata(t)
	m.MarkRunning(1)
	m.MarkKilled()
	m.MarkCompleted(0)

	if m.Status != task.StatusKilled {
		t.Fatalf("status changed after terminal: %s", m.Status)
	}
}

func TestIsStaleRespectsHeartbeatInterval(t *testing.T) {
	m := newTestMetadata(t)
	m.MarkRunning(1)
	m.HeartbeatInterval = 30

	now := time.Now()

	// Never reported a heartbeat: never stale.
	if m.IsStale(now) {
		t.Fatalf("expected not stale with no heartbeat recorded")
	}

	fresh := now.Add(-100 * time.Second).Unix()
	m.LastHeartbeat = &fresh
	if m.IsStale(now) {
		t.Fatalf("expected not stale at 100s (threshold is 300s)")
	}

	stale := now.Add(-400 * time.Second).Unix()
	m.LastHeartbeat = &stale
	if !m.IsStale(now) {
		t.Fatalf("expected stale at 400s (threshold is 300s)")
	}
}

func TestStoreWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	m := newTestMetadata(t)
	m.MarkRunning(42)
	if err := store.Write(m); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := store.Read(m.TaskID)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.TaskID != m.TaskID || got.Status != m.Status || *got.PID != *m.PID {
		t.Fatalf("round-trip mismatch: got %+v, want %+v", got, m)
	}
}

func TestStoreListAllSortsNewestFirst(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	older := newTestMetadata(t)
	older.StartedAt = time.Now().Add(-time.Hour)
	newer := newTestMetadata(t)
	newer.StartedAt = time.Now()

	if err := store.Write(older); err != nil {
		t.Fatal(err)
	}
	if err := store.Write(newer); err != nil {
		t.Fatal(err)
	}

	all, err := store.ListAll()
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(all))
	}
	if all[0].TaskID != newer.TaskID {
		t.Fatalf("expected newest first, got %s then %s", all[0].TaskID, all[1].TaskID)
	}
}

func TestSweepStaleReclassifiesOnlyStaleTasks(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	stale := newTestMetadata(t)
	stale.MarkRunning(1)
	stale.HeartbeatInterval = 30
	staleTS := time.Now().Add(-400 * time.Second).Unix()
	stale.LastHeartbeat = &staleTS

	fresh := newTestMetadata(t)
	fresh.MarkRunning(2)
	fresh.HeartbeatInterval = 30
	freshTS := time.Now().Add(-5 * time.Second).Unix()
	fresh.LastHeartbeat = &freshTS

	if err := store.Write(stale); err != nil {
		t.Fatal(err)
	}
	if err := store.Write(fresh); err != nil {
		t.Fatal(err)
	}

	changed, err := store.SweepStale(time.Now())
	if err != nil {
		t.Fatalf("SweepStale: %v", err)
	}
	if len(changed) != 1 || changed[0] != stale.TaskID {
		t.Fatalf("expected only %s reclassified, got %v", stale.TaskID, changed)
	}

	got, err := store.Read(stale.TaskID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != task.StatusHeartbeatTimeout {
		t.Fatalf("status = %s, want heartbeat_timeout", got.Status)
	}

	gotFresh, err := store.Read(fresh.TaskID)
	if err != nil {
		t.Fatal(err)
	}
	if gotFresh.Status != task.StatusRunning {
		t.Fatalf("fresh task status = %s, want running", gotFresh.Status)
	}
}

func TestReadMissingTaskIsError(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if _, err := store.Read(task.NewID()); err == nil {
		t.Fatalf("expected error reading missing task")
	}
}

func TestDashboardJSONLRoundTrips(t *testing.T) {
	m := newTestMetadata(t)
	m.MarkRunning(7)
	m.MarkCompleted(0)

	line, err := m.JSONLLine()
	if err != nil {
		t.Fatalf("JSONLLine: %v", err)
	}
	if line == "" {
		t.Fatalf("expected non-empty JSONL line")
	}

	var decoded map[string]any
	if err := json.Unmarshal([]byte(line), &decoded); err != nil {
		t.Fatalf("unmarshal JSONL line: %v", err)
	}
	if decoded["task_id"] != string(m.TaskID) || decoded["status"] != string(task.StatusCompleted) {
		t.Fatalf("unexpected decoded projection: %v", decoded)
	}
	if decoded["finished_at"] != m.FinishedAt.Format(time.RFC3339) {
		t.Fatalf("finished_at = %v, want %s", decoded["finished_at"], m.FinishedAt.Format(time.RFC3339))
	}
}

func TestWritePersistsToExpectedFilename(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	m := newTestMetadata(t)
	if err := store.Write(m); err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(dir, string(m.TaskID)+".meta.json")
	if _, err := os.Stat(want); err != nil {
		t.Fatalf("expected file at %s: %v", want, err)
	}
}
