package orchestrator

import (
	"testing"

	"github.com/andywolf/prpctl/internal/types"
)

func TestEnumerateTasksBlockedOutranksUnassigned(t *testing.T) {
	tracker := NewTracker()

	blocked := &types.PRPFile{
		Name: "x",
		Signals: []types.Signal{
			{Kind: types.KindBlocker, Priority: 9},
		},
	}
	unassigned := &types.PRPFile{Name: "y"}

	prps := map[string][]*types.PRPFile{
		"wa": {blocked},
		"wb": {unassigned},
	}

	tasks := EnumerateTasks(prps, tracker)
	if len(tasks) != 2 {
		t.Fatalf("got %d tasks, want 2", len(tasks))
	}
	if tasks[0].Worktree != "wa" {
		t.Fatalf("highest priority task = %+v, want worktree wa first", tasks[0])
	}
	if tasks[0].Priority != 101 {
		t.Fatalf("blocked priority = %d, want 101 (100+1 blocker)", tasks[0].Priority)
	}
	if tasks[1].Priority != 50 {
		t.Fatalf("unassigned priority = %d, want 50", tasks[1].Priority)
	}
}

func TestEnumerateTasksStalledRequiresAssignment(t *testing.T) {
	tracker := NewTracker()
	tracker.Update("wa", "x", func(s *PRPState) {
		s.Status = types.PRPStatusStalled
	})

	f := &types.PRPFile{Name: "x"}
	tasks := EnumerateTasks(map[string][]*types.PRPFile{"wa": {f}}, tracker)
	if len(tasks) != 0 {
		t.Fatalf("stalled-but-unassigned task should be omitted, got %+v", tasks)
	}

	tracker.Update("wa", "x", func(s *PRPState) {
		s.AssignedInstanceID = "inst-1"
	})
	tasks = EnumerateTasks(map[string][]*types.PRPFile{"wa": {f}}, tracker)
	if len(tasks) != 1 || tasks[0].Priority != 80 {
		t.Fatalf("stalled+assigned task = %+v, want priority 80", tasks)
	}
}

func TestEnumerateTasksSkipsCompleted(t *testing.T) {
	tracker := NewTracker()
	tracker.Update("wa", "x", func(s *PRPState) {
		s.Status = types.PRPStatusCompleted
	})
	f := &types.PRPFile{Name: "x"}
	tasks := EnumerateTasks(map[string][]*types.PRPFile{"wa": {f}}, tracker)
	if len(tasks) != 0 {
		t.Fatalf("completed PRP should not be actionable, got %+v", tasks)
	}
}

func TestFeasibleFiltersByPredicate(t *testing.T) {
	tasks := []Task{{ID: "a", Priority: 10}, {ID: "b", Priority: 5}}
	out := Feasible(tasks, func(t Task) bool { return t.Priority > 5 })
	if len(out) != 1 || out[0].ID != "a" {
		t.Fatalf("Feasible = %+v, want only task a", out)
	}
}

func TestSelectNextReturnsFirstFeasible(t *testing.T) {
	tasks := []Task{{ID: "a", Priority: 10}, {ID: "b", Priority: 5}}
	task, ok := SelectNext(tasks, func(t Task) bool { return t.ID == "b" })
	if !ok || task.ID != "b" {
		t.Fatalf("SelectNext = %+v, %v, want task b", task, ok)
	}
}

func TestSelectNextNoneFeasible(t *testing.T) {
	tasks := []Task{{ID: "a", Priority: 10}}
	_, ok := SelectNext(tasks, func(Task) bool { return false })
	if ok {
		t.Fatal("expected no feasible task")
	}
}
