package orchestrator

import (
	"sort"

	"github.com/andywolf/prpctl/internal/types"
)

// Task is one PRP's candidate unit of work for the current cycle,
// carrying the priority the selection step will rank it by.
type Task struct {
	ID           string
	Worktree     string
	PRP          *types.PRPFile
	State        PRPState
	Priority     int
	Reason       string
	BlockerCount int
	PreferredRole types.AgentRole
}

// blockerCount counts blocker-kind signals on a parsed PRP.
func blockerCount(f *types.PRPFile) int {
	n := 0
	for _, s := range f.Signals {
		if s.Kind == types.KindBlocker {
			n++
		}
	}
	return n
}

// EnumerateTasks builds one Task per PRP across every worktree's current
// snapshot and assigns it a priority per §4.7: blocked PRPs score
// 100+blockerCount (critical), stalled PRPs with an assigned agent score
// 80 (high), unassigned implementation PRPs score 50 (medium). PRPs that
// are completed, failed, or already in progress without a blocker or
// stall are not actionable this cycle and are omitted.
func EnumerateTasks(prpsByWorktree map[string][]*types.PRPFile, tracker *Tracker) []Task {
	var tasks []Task

	for worktree, prps := range prpsByWorktree {
		for _, f := range prps {
			bc := blockerCount(f)
			state := tracker.Get(worktree, f.Name)

			task := Task{
				ID:            TaskID(worktree, f.Name),
				Worktree:      worktree,
				PRP:           f,
				State:         state,
				BlockerCount:  bc,
				PreferredRole: types.RoleRoboImplementer,
			}

			switch {
			case bc > 0 || state.Status == types.PRPStatusBlocked:
				task.Priority = 100 + bc
				task.Reason = "blocked"
				task.PreferredRole = types.RoleRoboImplementer
			case state.Status == types.PRPStatusStalled && state.AssignedInstanceID != "":
				task.Priority = 80
				task.Reason = "stalled"
			case state.Status == types.PRPStatusUnassigned:
				task.Priority = 50
				task.Reason = "unassigned_implementation"
			default:
				// completed, failed, or healthily in-progress: nothing to do.
				continue
			}

			tasks = append(tasks, task)
		}
	}

	sort.SliceStable(tasks, func(i, j int) bool {
		return tasks[i].Priority > tasks[j].Priority
	})
	return tasks
}

// Feasible filters tasks down to those isFeasible accepts, preserving
// priority order. A task is infeasible when no capable agent type is
// available or when its required layer's token utilization is already
// at or above 90% (per §4.7 step 3).
func Feasible(tasks []Task, isFeasible func(Task) bool) []Task {
	out := make([]Task, 0, len(tasks))
	for _, t := range tasks {
		if isFeasible(t) {
			out = append(out, t)
		}
	}
	return out
}

// SelectNext returns the highest-priority feasible task, if any.
func SelectNext(tasks []Task, isFeasible func(Task) bool) (Task, bool) {
	for _, t := range tasks {
		if isFeasible(t) {
			return t, true
		}
	}
	return Task{}, false
}
