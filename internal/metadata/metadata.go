// Package metadata implements the persisted per-task state record: the
// single source of truth a controller consults and mutates across process
// restarts. Writes follow the same atomic tmp-file-plus-rename idiom the
// supervisor package uses for its status file.
package metadata

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/openclaw/coding-agent-orchestrator/internal/task"
)

// Metadata is the persisted record for one task.
type Metadata struct {
	TaskID            task.ID        `json:"task_id"`
	ExecutorName      string         `json:"executor_name"`
	ExecutorType      string         `json:"executor_type"`
	TaskType          task.PayloadType `json:"task_type"`
	PID               *int           `json:"pid,omitempty"`
	Status            task.Status    `json:"status"`
	Description       string         `json:"description"`
	Workspace         string         `json:"workspace,omitempty"`
	StartedAt         time.Time      `json:"started_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
	FinishedAt        *time.Time     `json:"finished_at,omitempty"`
	ExitCode          *int           `json:"exit_code,omitempty"`
	Error             string         `json:"error,omitempty"`
	LastHeartbeat     *int64         `json:"last_heartbeat,omitempty"`
	HeartbeatInterval int            `json:"heartbeat_interval,omitempty"`
}

const defaultHeartbeatInterval = 30

// New constructs a fresh Metadata record in the Starting state.
func New(id task.ID, executorName, executorType string, req task.Request) *Metadata {
	now := time.Now().UTC()
	return &Metadata{
		TaskID:            id,
		ExecutorName:      executorName,
		ExecutorType:      executorType,
		TaskType:          req.Type,
		Status:            task.StatusStarting,
		Description:       req.Description(),
		Workspace:         req.Workspace,
		StartedAt:         now,
		UpdatedAt:         now,
		HeartbeatInterval: defaultHeartbeatInterval,
	}
}

func (m *Metadata) touch() { m.UpdatedAt = time.Now().UTC() }

// MarkRunning records the PID of the launched process and moves the task
// to Running, unless it is already in a terminal state.
func (m *Metadata) MarkRunning(pid int) {
	if m.Status.IsTerminal() {
		return
	}
	m.PID = &pid
	m.Status = task.StatusRunning
	m.touch()
}

// MarkCompleted records exitCode and moves the task to Completed (exit 0)
// or Failed (nonzero exit), setting FinishedAt = UpdatedAt.
func (m *Metadata) MarkCompleted(exitCode int) {
	if m.Status.IsTerminal() {
		return
	}
	m.ExitCode = &exitCode
	if exitCode == 0 {
		m.Status = task.StatusCompleted
	} else {
		m.Status = task.StatusFailed
	}
	now := time.Now().UTC()
	m.UpdatedAt = now
	m.FinishedAt = &now
}

// MarkFailed moves the task to Failed with a human-readable error message.
func (m *Metadata) MarkFailed(msg string) {
	if m.Status.IsTerminal() {
		return
	}
	m.Status = task.StatusFailed
	m.Error = msg
	now := time.Now().UTC()
	m.UpdatedAt = now
	m.FinishedAt = &now
}

// MarkKilled moves the task to Killed.
func (m *Metadata) MarkKilled() {
	if m.Status.IsTerminal() {
		return
	}
	m.Status = task.StatusKilled
	now := time.Now().UTC()
	m.UpdatedAt = now
	m.FinishedAt = &now
}

// MarkHeartbeatTimeout moves the task to HeartbeatTimeout.
func (m *Metadata) MarkHeartbeatTimeout() {
	if m.Status.IsTerminal() {
		return
	}
	m.Status = task.StatusHeartbeatTimeout
	now := time.Now().UTC()
	m.UpdatedAt = now
	m.FinishedAt = &now
}

// IsStale reports whether a Running task's last heartbeat is old enough to
// be reclassified as HeartbeatTimeout. A task that has never reported a
// heartbeat is never stale.
func (m *Metadata) IsStale(now time.Time) bool {
	if m.Status != task.StatusRunning || m.LastHeartbeat == nil {
		return false
	}
	interval := m.HeartbeatInterval
	if interval <= 0 {
		interval = defaultHeartbeatInterval
	}
	staleAfter := time.Duration(interval*10) * time.Second
	last := time.Unix(*m.LastHeartbeat, 0)
	return now.Sub(last) > staleAfter
}

// Store reads and writes Metadata files under a directory, one file per
// task named "{task_id}.meta.json".
type Store struct {
	Dir string
}

// NewStore returns a Store rooted at dir, creating dir if necessary.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create metadata dir: %w", err)
	}
	return &Store{Dir: dir}, nil
}

func (s *Store) path(id task.ID) string {
	return filepath.Join(s.Dir, string(id)+".meta.json")
}

// Write atomically persists m via a temp-file-plus-rename, matching the
// supervisor package's status-file write idiom.
func (s *Store) Write(m *Metadata) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	path := s.path(m.TaskID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write metadata temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename metadata temp file: %w", err)
	}
	return nil
}

// Read loads the Metadata for id. It returns os.ErrNotExist (wrapped) if no
// file exists.
func (s *Store) Read(id task.ID) (*Metadata, error) {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		return nil, err
	}
	var m Metadata
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal metadata for %s: %w", id, err)
	}
	return &m, nil
}

// Exists reports whether a metadata file is present for id.
func (s *Store) Exists(id task.ID) bool {
	_, err := os.Stat(s.path(id))
	return err == nil
}

// Delete removes the metadata file for id, if any.
func (s *Store) Delete(id task.ID) error {
	err := os.Remove(s.path(id))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// ListAll loads every metadata file in the store, sorted by StartedAt
// descending (newest first).
func (s *Store) ListAll() ([]*Metadata, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var all []*Metadata
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.Dir, e.Name()))
		if err != nil {
			continue
		}
		var m Metadata
		if err := json.Unmarshal(data, &m); err != nil {
			continue
		}
		all = append(all, &m)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].StartedAt.After(all[j].StartedAt)
	})
	return all, nil
}

// SweepStale scans every stored task and reclassifies stale Running tasks
// to HeartbeatTimeout, persisting each change. It returns the IDs reclassified.
func (s *Store) SweepStale(now time.Time) ([]task.ID, error) {
	all, err := s.ListAll()
	if err != nil {
		return nil, err
	}
	var changed []task.ID
	for _, m := range all {
		if m.IsStale(now) {
			m.MarkHeartbeatTimeout()
			if err := s.Write(m); err != nil {
				return changed, err
			}
			changed = append(changed, m.TaskID)
		}
	}
	return changed, nil
}

// DashboardJSON renders a dashboard-friendly projection of m. It is always
// derived, never a source of truth.
func (m *Metadata) DashboardJSON() map[string]any {
	d := map[string]any{
		"task_id":       string(m.TaskID),
		"executor":      m.ExecutorName,
		"executor_type": m.ExecutorType,
		"task_type":     string(m.TaskType),
		"status":        string(m.Status),
		"description":   m.Description,
		"started_at":    m.StartedAt.Format(time.RFC3339),
		"updated_at":    m.UpdatedAt.Format(time.RFC3339),
	}
	if m.PID != nil {
		d["pid"] = *m.PID
	}
	if m.FinishedAt != nil {
		d["finished_at"] = m.FinishedAt.Format(time.RFC3339)
	}
	if m.ExitCode != nil {
		d["exit_code"] = *m.ExitCode
	}
	if m.Error != "" {
		d["error"] = m.Error
	}
	return d
}

// JSONLLine renders m as a single JSON line, for JSONL dashboard exports.
func (m *Metadata) JSONLLine() (string, error) {
	data, err := json.Marshal(m.DashboardJSON())
	if err != nil {
		return "", err
	}
	return string(data), nil
}
