package scanner

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/andywolf/prpctl/internal/bus"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestEnqueueCollapsesDuplicateRequests(t *testing.T) {
	b := bus.New(8)
	p := NewPool(b, 2)

	p.Enqueue("wa", "x.md", scanIncremental)
	p.Enqueue("wa", "x.md", scanIncremental)
	p.Enqueue("wa", "", scanFull)

	reqs := p.drainPending()
	if len(reqs) != 1 {
		t.Fatalf("got %d pending requests, want 1 collapsed request", len(reqs))
	}
	if reqs[0].kind != scanFull {
		t.Fatalf("collapsed request kind = %v, want scanFull (full supersedes incremental)", reqs[0].kind)
	}
}

func TestAddWorktreeMissingPath(t *testing.T) {
	b := bus.New(8)
	p := NewPool(b, 2)

	err := p.AddWorktree(context.Background(), DiscoveredWorktree{Path: "/no/such/path/xyz"})
	if err == nil {
		t.Fatal("expected ErrWorktreePathMissing")
	}
}

func TestScanFileSkipsUnchangedByMtime(t *testing.T) {
	dir := t.TempDir()
	prpPath := filepath.Join(dir, "PRPs", "x.md")
	writeFile(t, prpPath, "# Goal\n\n[Bb] priority 9 blocked\n")

	b := bus.New(8)
	p := NewPool(b, 2)
	sub := b.Subscribe(bus.TopicSignals)
	defer sub.Unsubscribe()

	err := p.AddWorktree(context.Background(), DiscoveredWorktree{Path: dir, Branch: "main"})
	if err != nil {
		t.Fatal(err)
	}

	m, _ := p.Monitor(filepath.Base(dir))
	cache := p.caches[m.Name]

	change, sigs, err := p.scanFile(&m, cache, prpPath)
	if err != nil {
		t.Fatal(err)
	}
	if change == nil || len(sigs) != 1 {
		t.Fatalf("first scan: change=%v sigs=%v", change, sigs)
	}

	// Second scan of identical mtime should be a no-op.
	change2, sigs2, err := p.scanFile(&m, cache, prpPath)
	if err != nil {
		t.Fatal(err)
	}
	if change2 != nil || sigs2 != nil {
		t.Fatalf("expected no-op on unchanged mtime, got change=%v sigs=%v", change2, sigs2)
	}
}

func TestDebouncerCoalescesBursts(t *testing.T) {
	var fired int
	d := newDebouncer(50*time.Millisecond, func(path string) { fired++ })

	for i := 0; i < 5; i++ {
		d.touch("/a/b.md")
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(100 * time.Millisecond)

	if fired != 1 {
		t.Fatalf("fired = %d, want 1", fired)
	}
	d.stop()
}
