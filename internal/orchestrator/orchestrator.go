package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/andywolf/prpctl/internal/bus"
	"github.com/andywolf/prpctl/internal/cloud/gcp"
	"github.com/andywolf/prpctl/internal/contextmgr"
	"github.com/andywolf/prpctl/internal/discovery"
	"github.com/andywolf/prpctl/internal/events"
	"github.com/andywolf/prpctl/internal/scanner"
	"github.com/andywolf/prpctl/internal/security"
	"github.com/andywolf/prpctl/internal/supervisor"
	"github.com/andywolf/prpctl/internal/tokens"
	"github.com/andywolf/prpctl/internal/types"
	"github.com/andywolf/prpctl/internal/warroom"
)

// DefaultTickInterval is how often a heartbeat synthesizes a fresh
// prioritization pass when no other signal has triggered one.
const DefaultTickInterval = 10 * time.Second

// DefaultContextBudget bounds the token budget the context manager packs
// an execution prompt into for a dispatched task.
const DefaultContextBudget = 32000

// Collaborators bundles every component the orchestrator drives the
// control loop through. It never owns any of them: each is constructed
// and started by the top-level system builder, which also wires the
// orchestrator itself.
type Collaborators struct {
	Bus         *bus.Bus
	Scanner     *scanner.Pool
	Discovery   *discovery.Registry
	Supervisor  *supervisor.Pool
	Tokens      *tokens.Engine
	Ledger      *tokens.Ledger
	ContextMgr   *contextmgr.Manager
	ContextStore *contextmgr.Store
	WarRoom      *warroom.Board
	Scrubber  *security.Scrubber
	EventSink *events.FileSink
	Logger    *gcp.SecureCloudLogger
}

// Orchestrator drives the ephemeral per-tick control loop described in
// §4.7: consume signals, pick the highest-priority feasible task, assemble
// its context, select an agent, and spawn it through the supervisor.
type Orchestrator struct {
	Collaborators

	tracker       *Tracker
	history       *History
	interruptions *InterruptionQueue
	contextBudget int
	logger        *gcp.SecureCloudLogger

	monitorsMu     sync.Mutex
	cancelMonitors map[string]context.CancelFunc
}

// New wires an Orchestrator around the given collaborators. A nil
// Collaborators.Logger (as in tests that don't wire one) falls back to
// the same environment-detected logger System.New constructs, so every
// orchestrator logs through the scrubbing structured-logging stack.
func New(c Collaborators) *Orchestrator {
	logger := c.Logger
	if logger == nil {
		logger = gcp.NewSecureCloudLogger(gcp.NewLogger(context.Background(), uuid.NewString()))
	}
	return &Orchestrator{
		Collaborators:  c,
		tracker:        NewTracker(),
		history:        NewHistory(0),
		interruptions:  NewInterruptionQueue(),
		contextBudget:  DefaultContextBudget,
		logger:         logger,
		cancelMonitors: make(map[string]context.CancelFunc),
	}
}

// CompactionSource implements contextmgr.CompactionSource by handing back
// the live war-room memo and a snapshot of active PRP-progress context
// sections, so a hard-stop enforcement action can force compaction even
// outside the usual high-water-mark check.
func (o *Orchestrator) CompactionSource() (*types.WarRoomMemo, []types.ContextSection) {
	if o.WarRoom == nil {
		return nil, nil
	}
	memo := o.WarRoom.Snapshot()
	return &memo, o.progressSections()
}

func (o *Orchestrator) progressSections() []types.ContextSection {
	var sections []types.ContextSection
	for worktree, prps := range o.Scanner.AllPRPs() {
		for _, f := range prps {
			sections = append(sections, prpSection(worktree, f, 5))
		}
	}
	return sections
}

// Run drives the control loop until ctx is cancelled: a ticker fires
// heartbeat cycles, and any user-channel event enqueues an interruption
// processed ahead of the prioritized queue on the next tick.
func (o *Orchestrator) Run(ctx context.Context) error {
	go WatchUser(ctx, o.Bus, o.interruptions)

	ticker := time.NewTicker(DefaultTickInterval)
	defer ticker.Stop()

	sigSub := o.Bus.Subscribe(bus.TopicSignals)
	defer sigSub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			o.Tick(ctx)
		case _, ok := <-sigSub.C:
			if !ok {
				return nil
			}
			o.Tick(ctx)
		}
	}
}

// heartbeat synthesizes the signal that opens every cycle, per §4.7.
func (o *Orchestrator) heartbeat() types.Signal {
	return types.Signal{
		ID:        uuid.NewString(),
		Code:      "HB",
		Kind:      types.KindGeneric,
		Priority:  1,
		Source:    "orchestrator",
		Timestamp: time.Now(),
		Payload:   types.SignalPayload{Kind: types.KindGeneric, Generic: &types.GenericPayload{Raw: "heartbeat"}},
	}
}
