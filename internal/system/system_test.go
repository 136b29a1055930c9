package system

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/andywolf/prpctl/internal/config"
	"github.com/andywolf/prpctl/internal/types"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Version: config.CurrentSchemaVersion,
		Agents: []types.AgentConfiguration{
			{
				ID:   "impl-1",
				Role: types.RoleRoboImplementer,
				Environment: types.AgentEnvironment{
					Binary: "/bin/true",
				},
			},
		},
		Scanner: config.ScannerConfig{
			WorktreeRoots:      []string{dir},
			ScanInterval:       time.Second,
			MaxConcurrentScans: 2,
			Debounce:           10 * time.Millisecond,
		},
		Tokens: config.TokensConfig{
			LedgerDir: dir,
		},
		Context: config.ContextConfig{Budget: 32000},
	}
}

func TestNewWiresEveryCollaborator(t *testing.T) {
	cfg := testConfig(t)
	sys, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if sys.Bus == nil || sys.Ledger == nil || sys.Tokens == nil || sys.ContextMgr == nil ||
		sys.ContextStore == nil || sys.WarRoom == nil || sys.Discovery == nil || sys.Scanner == nil ||
		sys.Supervisor == nil || sys.Orchestrator == nil || sys.EventSink == nil {
		t.Fatal("New() left a collaborator nil")
	}

	if len(sys.Discovery.All()) != 1 {
		t.Fatalf("Discovery.All() = %d entries, want 1 registered agent config", len(sys.Discovery.All()))
	}
}

func TestAddWorktreePropagatesGitQueryFailures(t *testing.T) {
	cfg := testConfig(t)
	sys, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	// A non-git directory fails ListWorktrees and registers no monitors;
	// AddWorktree is a thin wrapper over scanner.ListWorktrees +
	// scanner.Pool.AddWorktree.
	repo := filepath.Dir(cfg.Tokens.LedgerDir)
	if err := sys.AddWorktree(context.Background(), repo); err == nil {
		t.Fatal("expected an error discovering worktrees under a non-git directory")
	}
	if len(sys.Scanner.Monitors()) != 0 {
		t.Fatalf("expected no monitors registered on failure, got %d", len(sys.Scanner.Monitors()))
	}
}

func TestRunStopsOnContextCancellation(t *testing.T) {
	cfg := testConfig(t)
	sys, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- sys.Run(ctx) }()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
