package orchestrator

import (
	"testing"

	"github.com/andywolf/prpctl/internal/types"
)

func TestTrackerGetCreatesUnassigned(t *testing.T) {
	tr := NewTracker()
	s := tr.Get("wa", "x")
	if s.Status != types.PRPStatusUnassigned {
		t.Fatalf("default status = %s, want unassigned", s.Status)
	}
}

func TestTrackerUpdateIsVisibleToGet(t *testing.T) {
	tr := NewTracker()
	tr.Update("wa", "x", func(s *PRPState) {
		s.Status = types.PRPStatusBlocked
	})
	s := tr.Get("wa", "x")
	if s.Status != types.PRPStatusBlocked {
		t.Fatalf("status = %s, want blocked", s.Status)
	}
}

func TestTrackerAllReturnsEveryState(t *testing.T) {
	tr := NewTracker()
	tr.Get("wa", "x")
	tr.Get("wb", "y")
	all := tr.All()
	if len(all) != 2 {
		t.Fatalf("got %d states, want 2", len(all))
	}
}

func TestTaskIDFormat(t *testing.T) {
	if got := TaskID("wa", "x"); got != "wa/x" {
		t.Fatalf("TaskID = %q, want wa/x", got)
	}
}
