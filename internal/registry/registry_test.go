package registry

import (
	"testing"

	"github.com/openclaw/coding-agent-orchestrator/internal/config"
	"github.com/openclaw/coding-agent-orchestrator/internal/executor/container"
	"github.com/openclaw/coding-agent-orchestrator/internal/executor/local"
	"github.com/openclaw/coding-agent-orchestrator/internal/executor/ssh"
	"github.com/openclaw/coding-agent-orchestrator/internal/metadata"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	store, err := metadata.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	cfg := config.Config{
		Executors: []config.ExecutorConfig{
			{Name: "crib", Type: config.ExecutorSSH, Host: "h", User: "u"},
			{Name: "box", Type: config.ExecutorLocal},
			{Name: "sandbox", Type: config.ExecutorContainer, Image: "img"},
		},
		Defaults: config.Defaults{MaxTurns: 100, ClaudePath: "claude"},
	}
	return New(cfg, store)
}

func TestFindExecutorBuildsCorrectDriverType(t *testing.T) {
	reg := testRegistry(t)

	ex, err := reg.FindExecutor("crib")
	if err != nil {
		t.Fatalf("FindExecutor(crib): %v", err)
	}
	if _, ok := ex.(*ssh.Driver); !ok {
		t.Errorf("expected *ssh.Driver for crib, got %T", ex)
	}

	ex, err = reg.FindExecutor("box")
	if err != nil {
		t.Fatalf("FindExecutor(box): %v", err)
	}
	if _, ok := ex.(*local.Driver); !ok {
		t.Errorf("expected *local.Driver for box, got %T", ex)
	}

	ex, err = reg.FindExecutor("sandbox")
	if err != nil {
		t.Fatalf("FindExecutor(sandbox): %v", err)
	}
	if _, ok := ex.(*container.Driver); !ok {
		t.Errorf("expected *container.Driver for sandbox, got %T", ex)
	}
}

func TestFindExecutorUnknownNameErrors(t *testing.T) {
	reg := testRegistry(t)
	if _, err := reg.FindExecutor("ghost"); err == nil {
		t.Fatalf("expected error for unknown executor")
	}
}
