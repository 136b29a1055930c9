package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/andywolf/prpctl/internal/bus"
	"github.com/andywolf/prpctl/internal/contextmgr"
	"github.com/andywolf/prpctl/internal/discovery"
	"github.com/andywolf/prpctl/internal/prp"
	"github.com/andywolf/prpctl/internal/scanner"
	"github.com/andywolf/prpctl/internal/signals"
	"github.com/andywolf/prpctl/internal/types"
)

// Tick runs one cycle of the control loop: drain any queued user
// interruptions first, then enumerate, filter, and dispatch at most one
// task. Producing at most one task per tick keeps the loop's effects
// observable one step at a time, matching the supervisor's own
// single-flight spawn-queue drain.
func (o *Orchestrator) Tick(ctx context.Context) {
	for _, interruption := range o.interruptions.DrainAll() {
		o.handleInterruption(interruption)
	}

	prpsByWorktree := o.Scanner.AllPRPs()
	tasks := EnumerateTasks(prpsByWorktree, o.tracker)
	feasible := Feasible(tasks, o.isFeasible)

	if len(feasible) == 0 {
		o.Bus.Publish(bus.TopicOrchestrator, CycleResult{Idle: true, At: time.Now()})
		return
	}
	task := feasible[0]
	o.dispatch(ctx, task)
}

// CycleResult is published to bus.TopicOrchestrator after every tick, for
// observers (tests, a future status CLI) that want to watch the loop
// without holding a reference to the Orchestrator itself.
type CycleResult struct {
	Idle     bool
	TaskID   string
	Dispatch bool
	Err      string
	At       time.Time
}

// isFeasible filters out tasks whose preferred agent role has no
// available discovered config, or whose layer's token utilization is
// already at or above 90%, per §4.7 step 3.
func (o *Orchestrator) isFeasible(t Task) bool {
	if o.Tokens != nil && o.Tokens.UtilizationPercent(types.ComponentOrchestrator) >= 90 {
		return false
	}
	if o.Discovery == nil {
		return true
	}
	_, ok := discovery.FindBest(o.Discovery.All(), discovery.Criteria{PreferredRole: t.PreferredRole})
	return ok
}

func (o *Orchestrator) handleInterruption(i Interruption) {
	if o.WarRoom != nil {
		o.WarRoom.AddNote(fmt.Sprintf("user interruption at %s", i.QueuedAt.Format(time.RFC3339)))
	}
}

// dispatch checks out the task's worktree and a PRP-named branch,
// assembles its execution context, selects an agent, spawns it, and
// attaches a monitor for completion/blocker/crash signals.
func (o *Orchestrator) dispatch(ctx context.Context, task Task) {
	result := CycleResult{TaskID: task.ID, Dispatch: true, At: time.Now()}

	m, ok := o.Scanner.Monitor(task.Worktree)
	if !ok {
		result.Err = "unknown worktree"
		o.Bus.Publish(bus.TopicOrchestrator, result)
		return
	}

	branch := "prp/" + task.PRP.Name
	if err := scanner.CheckoutBranch(ctx, m.Path, branch); err != nil {
		result.Err = err.Error()
		o.Bus.Publish(bus.TopicOrchestrator, result)
		return
	}

	record := Build(task, len(task.PRP.Progress), countNextSteps(task.PRP), time.Now())
	o.history.Add(record)

	candidate, ok := discovery.FindBest(o.Discovery.All(), discovery.Criteria{PreferredRole: task.PreferredRole})
	if !ok {
		result.Err = "no suitable agent"
		o.Bus.Publish(bus.TopicOrchestrator, result)
		return
	}

	sections := o.assembleContext(task)
	packed := contextmgr.Pack(sections, o.contextBudget)
	if o.ContextMgr != nil && o.ContextMgr.ShouldCompact(packed.Window.Used, o.contextBudget) {
		memo := o.WarRoom.Snapshot()
		_, _ = o.ContextMgr.Compact(&memo, sections)
	}
	o.persistContext(task.PRP.Name, sections)

	req := types.SpawnRequest{
		ID:        uuid.NewString(),
		Requester: "orchestrator",
		AgentID:   candidate.Config.ID,
		Priority:  task.Priority,
		Requirements: types.SpawnRequirements{
			RequiredCapabilities: []string{},
		},
		Options: types.SpawnOptions{ReuseExisting: true},
	}

	agent, err := o.Supervisor.Spawn(ctx, req)
	if err != nil {
		result.Err = err.Error()
		o.tracker.Update(task.Worktree, task.PRP.Name, func(s *PRPState) {
			s.Status = types.PRPStatusFailed
		})
		o.Bus.Publish(bus.TopicOrchestrator, result)
		return
	}

	o.tracker.Update(task.Worktree, task.PRP.Name, func(s *PRPState) {
		s.Status = types.PRPStatusInProgress
		s.AssignedInstanceID = agent.InstanceID
		s.AssignedConfigID = candidate.Config.ID
		s.Branch = branch
		s.LastDispatchedAt = time.Now()
	})
	if o.WarRoom != nil {
		o.WarRoom.AddDoing(task.ID)
	}

	o.attachMonitor(ctx, task, agent.InstanceID)
	o.Bus.Publish(bus.TopicOrchestrator, result)
}

// countNextSteps estimates the number of outstanding next-steps by
// counting progress-log lines that read as forward-looking ("next:",
// "todo:"), used only to feed the Chain-of-Thought complexity penalty.
func countNextSteps(f *types.PRPFile) int {
	n := 0
	for _, e := range f.Progress {
		if len(e.Text) >= 4 && (e.Text[:4] == "next" || e.Text[:4] == "TODO" || e.Text[:4] == "todo") {
			n++
		}
	}
	return n
}

// assembleContext builds the ContextSection candidates for one task:
// the PRP goal/progress, the current blocker/progress signals, and the
// war-room memo, through a relevance-scored aggregation anchored on the
// highest-priority signal the PRP carries.
func (o *Orchestrator) assembleContext(task Task) []types.ContextSection {
	sections := []types.ContextSection{
		{
			ID:              "prp:" + task.ID,
			Name:            task.PRP.Name,
			Content:         task.PRP.Goal,
			EstimatedTokens: len(task.PRP.Goal) / 4,
			Priority:        9,
			Required:        true,
			Source:          "scanner",
			LastUpdated:     task.PRP.LastModified,
		},
		prpSection(task.Worktree, task.PRP, 10),
	}

	if o.WarRoom != nil {
		memo := o.WarRoom.Snapshot()
		sections = append(sections, warRoomSection(memo))
	}

	var anchor types.Signal
	if len(task.PRP.Signals) > 0 {
		anchor = task.PRP.Signals[0]
	}
	return contextmgr.Aggregate(types.AggregateRelevanceScored, sections, o.contextBudget, anchor)
}

// persistContext writes the dispatched PRP's section list and the
// current shared-context snapshot under .prp/context, per §6. A nil
// ContextStore (as in tests that don't wire one) is a no-op.
func (o *Orchestrator) persistContext(prpName string, sections []types.ContextSection) {
	if o.ContextStore == nil {
		return
	}
	now := time.Now()
	if err := o.ContextStore.SavePRP(prpName, sections, now); err != nil {
		o.logger.LogErrorf("persist prp context %s: %v", prpName, err)
	}
	if o.WarRoom != nil {
		if err := o.ContextStore.SaveShared(o.WarRoom.Snapshot(), sections, now); err != nil {
			o.logger.LogErrorf("persist shared context: %v", err)
		}
	}
}

func prpSection(worktree string, f *types.PRPFile, n int) types.ContextSection {
	recent := prp.RecentProgress(f, n)
	content := f.Goal
	for _, e := range recent {
		content += "\n- " + e.Timestamp.Format(time.RFC3339) + " " + e.Text
	}
	return types.ContextSection{
		ID:              "progress:" + worktree + "/" + f.Name,
		Name:            "progress:" + f.Name,
		Content:         content,
		EstimatedTokens: len(content) / 4,
		Priority:        7,
		Compressible:    true,
		Source:          "scanner",
		Tags:            []string{"prp", worktree},
		LastUpdated:     f.LastModified,
	}
}

func warRoomSection(memo types.WarRoomMemo) types.ContextSection {
	content := "doing: " + joinLines(memo.Doing) + "\nblockers: " + joinLines(memo.Blockers) + "\nnext: " + joinLines(memo.Next)
	return types.ContextSection{
		ID:              "war-room",
		Name:            "war-room",
		Content:         content,
		EstimatedTokens: len(content) / 4,
		Priority:        8,
		Compressible:    true,
		Source:          "warroom",
	}
}

func joinLines(items []string) string {
	out := ""
	for i, item := range items {
		if i > 0 {
			out += "; "
		}
		out += item
	}
	return out
}

// signalsFromPRP re-extracts signal codes from a PRP's raw content; used
// only by tests that need a fresh signal list without going through the
// scanner. Exported so orchestrator tests stay grounded on the same
// extraction logic the scanner uses.
func signalsFromPRP(content, source string) []types.Signal {
	return signals.Extract(content, source, nil)
}
