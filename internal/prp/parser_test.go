package prp

import (
	"testing"
	"time"
)

const sample = `# Ship the widget exporter

## Progress
- 2026-03-01T10:00:00Z scaffolded the package
- 2026-03-01T11:30:00Z wired the CLI flag

## Notes
- [Bb] priority 9 blocked on missing credentials
`

func TestParseExtractsGoalProgressAndSignals(t *testing.T) {
	f := Parse("PRPs/widget.md", []byte(sample), time.Now())

	if f.Goal != "Ship the widget exporter" {
		t.Fatalf("goal = %q", f.Goal)
	}
	if len(f.Progress) != 2 {
		t.Fatalf("got %d progress entries, want 2", len(f.Progress))
	}
	if f.Progress[0].Text != "scaffolded the package" {
		t.Fatalf("progress[0].Text = %q", f.Progress[0].Text)
	}
	if len(f.Signals) != 1 || f.Signals[0].Kind != "blocker" {
		t.Fatalf("signals = %+v, want one blocker", f.Signals)
	}
	if f.Name != "widget" {
		t.Fatalf("name = %q, want widget", f.Name)
	}
}

func TestParseIsPureFunctionOfContent(t *testing.T) {
	a := Parse("PRPs/widget.md", []byte(sample), time.Time{})
	b := Parse("PRPs/widget.md", []byte(sample), time.Time{})
	if len(a.Signals) != len(b.Signals) || len(a.Progress) != len(b.Progress) {
		t.Fatal("re-parsing identical bytes produced different results")
	}
}

func TestRecentProgressBounds(t *testing.T) {
	f := Parse("PRPs/widget.md", []byte(sample), time.Time{})
	recent := RecentProgress(f, 1)
	if len(recent) != 1 || recent[0].Text != "wired the CLI flag" {
		t.Fatalf("recent = %+v, want last entry only", recent)
	}
}

func TestIsPRPPath(t *testing.T) {
	root := "/repo/wa"
	cases := map[string]bool{
		"/repo/wa/PRPs/x.md":     true,
		"/repo/wa/README.md":     true,
		"/repo/wa/sub/README.md": false,
		"/repo/wa/PRPs/x.txt":    false,
	}
	for path, want := range cases {
		if got := IsPRPPath(root, path); got != want {
			t.Errorf("IsPRPPath(%q) = %v, want %v", path, got, want)
		}
	}
}
