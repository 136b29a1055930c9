package contextmgr

import (
	"strings"
	"testing"

	"github.com/andywolf/prpctl/internal/types"
)

func TestPackIncludesSectionsThatFit(t *testing.T) {
	sections := []types.ContextSection{
		{Name: "system", Content: "system instructions", EstimatedTokens: 10, Required: true},
		{Name: "signal", Content: "current signal", EstimatedTokens: 10, Required: true},
	}
	res := Pack(sections, 100)
	if res.Window.Used != 20 {
		t.Fatalf("used = %d, want 20", res.Window.Used)
	}
	if !strings.Contains(res.Prompt, "system instructions") {
		t.Fatal("expected system section in prompt")
	}
}

func TestPackDropsLowPriorityOptionalWhenOverBudget(t *testing.T) {
	sections := []types.ContextSection{
		{Name: "required", Content: "must keep", EstimatedTokens: 50, Required: true},
		{Name: "optional", Content: "nice to have", EstimatedTokens: 60, Required: false, Priority: 1},
	}
	res := Pack(sections, 50)
	found := false
	for _, d := range res.Dropped {
		if d == "optional" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected optional to be dropped, got dropped=%v", res.Dropped)
	}
}

func TestPackCompressesCompressibleOverflow(t *testing.T) {
	longContent := strings.Repeat("word ", 200)
	sections := []types.ContextSection{
		{Name: "notes", Content: longContent, EstimatedTokens: 250, Compressible: true, Priority: 5},
	}
	res := Pack(sections, 50)
	if res.Window.Used > 50 {
		t.Fatalf("used = %d, want <= 50 after compression", res.Window.Used)
	}
}

func TestPackTruncatesRequiredIncompressibleOverflow(t *testing.T) {
	longContent := strings.Repeat("x", 1000)
	sections := []types.ContextSection{
		{Name: "required", Content: longContent, EstimatedTokens: 300, Required: true, Compressible: false},
	}
	res := Pack(sections, 20)
	if !strings.Contains(res.Prompt, "content truncated") {
		t.Fatal("expected truncation marker in prompt")
	}
}

func TestResolveConflictsMergesContentAndUnionsPermissions(t *testing.T) {
	sections := []types.ContextSection{
		{Name: "notes", Content: "a", Priority: 3, Permissions: []string{"read"}},
		{Name: "notes", Content: "b", Priority: 7, Permissions: []string{"write"}},
	}
	out := resolveConflicts(sections)
	if len(out) != 1 {
		t.Fatalf("expected one merged section, got %d", len(out))
	}
	if out[0].Priority != 7 {
		t.Fatalf("priority = %d, want 7 (highest wins)", out[0].Priority)
	}
	if len(out[0].Permissions) != 2 {
		t.Fatalf("permissions = %v, want union of both", out[0].Permissions)
	}
	if !strings.Contains(out[0].Content, "a") || !strings.Contains(out[0].Content, "b") {
		t.Fatalf("content = %q, want merge of both", out[0].Content)
	}
}

func TestTokenOptimizedKeepsAllRequired(t *testing.T) {
	sections := []types.ContextSection{
		{Name: "r1", Required: true, EstimatedTokens: 40},
		{Name: "r2", Required: true, EstimatedTokens: 40},
		{Name: "opt", Required: false, EstimatedTokens: 50, Priority: 5},
	}
	out := tokenOptimized(sections, 90)
	if len(out) != 2 {
		t.Fatalf("expected only required sections to survive a tight budget, got %d", len(out))
	}
}

func TestRelevanceScoredOrdersByOverlap(t *testing.T) {
	sig := types.Signal{Kind: types.KindBlocker, Payload: types.SignalPayload{
		Kind:    types.KindBlocker,
		Blocker: &types.BlockerPayload{Reason: "missing credentials"},
	}}
	sections := []types.ContextSection{
		{Name: "unrelated", Content: "something about widgets"},
		{Name: "related", Content: "investigating missing credentials issue"},
	}
	out := relevanceScored(sections, sig)
	if out[0].Name != "related" {
		t.Fatalf("expected related section to rank first, got order %v", []string{out[0].Name, out[1].Name})
	}
}
