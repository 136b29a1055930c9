// Package orchestrator drives the control loop's decision step: it
// enumerates PRPs across every worktree the scanner watches, prioritizes
// them, picks a feasible one, assembles its execution context, selects an
// agent through discovery, and spawns it through the supervisor. It is
// the only component that ties scanner, discovery, supervisor, token
// accounting, and the context manager together into one cycle.
package orchestrator

import (
	"sync"
	"time"

	"github.com/andywolf/prpctl/internal/types"
)

// TaskID uniquely names one PRP's task within the system: "<worktree>/<prp name>".
func TaskID(worktree, prpName string) string {
	return worktree + "/" + prpName
}

// PRPState is the orchestrator's own view of one PRP's task lifecycle,
// layered on top of the scanner's stateless PRPFile snapshots. The
// scanner re-derives signals on every parse; the orchestrator is the
// only component that remembers what it did about them across cycles.
type PRPState struct {
	Worktree           string
	Name               string
	Status             types.PRPStatus
	AssignedInstanceID string
	AssignedConfigID   string
	Branch             string
	LastDispatchedAt   time.Time
	LastSignalAt       time.Time
	LastBlockerCount   int
}

// Tracker owns the orchestrator's per-PRP state map. Writes are
// serialized; reads return copies so callers never race the next tick.
type Tracker struct {
	mu     sync.Mutex
	states map[string]*PRPState
}

// NewTracker returns an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{states: make(map[string]*PRPState)}
}

// Get returns a copy of the tracked state for id, creating an
// unassigned entry on first observation.
func (t *Tracker) Get(worktree, name string) PRPState {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := TaskID(worktree, name)
	s, ok := t.states[id]
	if !ok {
		s = &PRPState{Worktree: worktree, Name: name, Status: types.PRPStatusUnassigned}
		t.states[id] = s
	}
	return *s
}

// Update applies fn to the tracked state for id under lock, creating it
// first if absent.
func (t *Tracker) Update(worktree, name string, fn func(*PRPState)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := TaskID(worktree, name)
	s, ok := t.states[id]
	if !ok {
		s = &PRPState{Worktree: worktree, Name: name, Status: types.PRPStatusUnassigned}
		t.states[id] = s
	}
	fn(s)
}

// All returns a copy of every tracked state.
func (t *Tracker) All() []PRPState {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]PRPState, 0, len(t.states))
	for _, s := range t.states {
		out = append(out, *s)
	}
	return out
}
