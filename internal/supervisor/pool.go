// Package supervisor owns the pool of spawned agent processes: it
// resolves SpawnRequests into running instances, supervises their
// liveness, restarts or retires them, and obeys enforcement actions
// raised by the token-accounting engine.
package supervisor

import (
	"sync"
	"time"

	"github.com/andywolf/prpctl/internal/bus"
	"github.com/andywolf/prpctl/internal/credentials"
	"github.com/andywolf/prpctl/internal/discovery"
	"github.com/andywolf/prpctl/internal/security"
	"github.com/andywolf/prpctl/internal/types"
)

// LifecycleEvent is published to bus.TopicAgentLifecycle on every
// transition the pool makes.
type LifecycleEvent struct {
	Kind      string // agent-started|agent-stopped|agent-exited|agent-error
	InstanceID string
	ConfigID  string
	Timestamp time.Time
}

// Pool owns every SpawnedAgent the supervisor has started, indexed for
// the lookups the spawn flow and cleanup loop need.
type Pool struct {
	mu sync.Mutex

	agents map[string]*types.SpawnedAgent // instanceID -> agent
	byRole map[types.AgentRole]map[string]bool
	byType map[string]map[string]bool
	byStatus map[types.AgentState]map[string]bool

	aggregate types.AllocatedResources

	configs *discovery.Registry
	bus     *bus.Bus

	concurrentSpawnCeiling int
	activeSpawns           int

	queue []queuedRequest

	enforcement enforcementState

	processes        map[string]*runningProcess
	consecutiveFails map[string]int
	lastStateChange  map[string]time.Time

	spawnTimeout            time.Duration
	retryDelay              time.Duration
	gracefulShutdownTimeout time.Duration
	idleTimeout             time.Duration
	crashedLinger           time.Duration

	credentials *credentials.JWTMinter
	secrets     *credentials.SecretResolver
	rateLimiter *security.RateLimiter
}

// SetCredentials wires a JWTMinter used to mint AGENT_TOKEN values for
// configurations whose Authentication.Kind is "jwt". Optional: configs
// without jwt authentication spawn without it.
func (p *Pool) SetCredentials(m *credentials.JWTMinter) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.credentials = m
}

// SetSecretResolver wires a SecretResolver used to fetch AGENT_SECRET
// values for configurations whose Authentication.Kind is "secret_ref".
// Optional: configs without secret_ref authentication spawn without it.
func (p *Pool) SetSecretResolver(r *credentials.SecretResolver) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.secrets = r
}

// SetRateLimiter wires a per-requester spawn rate limiter. Unset, Spawn
// never throttles on request origin (the concurrent-spawn ceiling and
// enforcement actions still apply).
func (p *Pool) SetRateLimiter(rl *security.RateLimiter) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rateLimiter = rl
}

type queuedRequest struct {
	req    types.SpawnRequest
	result chan spawnOutcome
}

type spawnOutcome struct {
	agent *types.SpawnedAgent
	err   error
}

type enforcementState struct {
	throttled bool
	blocked   bool
	emergency bool
}

// DefaultConcurrentSpawnCeiling bounds how many spawns the pool runs at
// once before it starts queueing requests.
const DefaultConcurrentSpawnCeiling = 10

// Supervision and cleanup loop defaults, and process-handling bounds.
const (
	DefaultSpawnTimeout            = 30 * time.Second
	DefaultRetryDelay              = 5 * time.Second
	DefaultGracefulShutdownTimeout = 10 * time.Second
	DefaultIdleTimeout             = 10 * time.Minute
	DefaultCrashedLinger           = 5 * time.Minute
	DefaultSupervisionInterval     = 30 * time.Second
	DefaultCleanupInterval         = 60 * time.Second
	DefaultLogRingSize             = 200
	criticalConsecutiveFails       = 3
)

// NewPool constructs an empty Pool backed by the given discovery registry
// and bus.
func NewPool(configs *discovery.Registry, b *bus.Bus) *Pool {
	return &Pool{
		agents:                  make(map[string]*types.SpawnedAgent),
		byRole:                  make(map[types.AgentRole]map[string]bool),
		byType:                  make(map[string]map[string]bool),
		byStatus:                make(map[types.AgentState]map[string]bool),
		configs:                 configs,
		bus:                     b,
		concurrentSpawnCeiling:  DefaultConcurrentSpawnCeiling,
		processes:               make(map[string]*runningProcess),
		consecutiveFails:        make(map[string]int),
		lastStateChange:         make(map[string]time.Time),
		spawnTimeout:            DefaultSpawnTimeout,
		retryDelay:              DefaultRetryDelay,
		gracefulShutdownTimeout: DefaultGracefulShutdownTimeout,
		idleTimeout:             DefaultIdleTimeout,
		crashedLinger:           DefaultCrashedLinger,
	}
}

func (p *Pool) index(a *types.SpawnedAgent, role types.AgentRole, typ string) {
	if p.byRole[role] == nil {
		p.byRole[role] = make(map[string]bool)
	}
	p.byRole[role][a.InstanceID] = true

	if p.byType[typ] == nil {
		p.byType[typ] = make(map[string]bool)
	}
	p.byType[typ][a.InstanceID] = true

	p.reindexStatus(a)
}

func (p *Pool) reindexStatus(a *types.SpawnedAgent) {
	for _, set := range p.byStatus {
		delete(set, a.InstanceID)
	}
	if p.byStatus[a.State] == nil {
		p.byStatus[a.State] = make(map[string]bool)
	}
	p.byStatus[a.State][a.InstanceID] = true
}

func (p *Pool) unindex(a *types.SpawnedAgent) {
	for _, set := range p.byRole {
		delete(set, a.InstanceID)
	}
	for _, set := range p.byType {
		delete(set, a.InstanceID)
	}
	for _, set := range p.byStatus {
		delete(set, a.InstanceID)
	}
}

// Get returns the SpawnedAgent with the given instance id.
func (p *Pool) Get(instanceID string) (*types.SpawnedAgent, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	a, ok := p.agents[instanceID]
	return a, ok
}

// All returns every agent currently tracked by the pool.
func (p *Pool) All() []*types.SpawnedAgent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*types.SpawnedAgent, 0, len(p.agents))
	for _, a := range p.agents {
		out = append(out, a)
	}
	return out
}

// ByStatus returns every agent in the given state.
func (p *Pool) ByStatus(state types.AgentState) []*types.SpawnedAgent {
	p.mu.Lock()
	defer p.mu.Unlock()
	set := p.byStatus[state]
	out := make([]*types.SpawnedAgent, 0, len(set))
	for id := range set {
		out = append(out, p.agents[id])
	}
	return out
}

// Aggregate returns the pool's current aggregate resource totals.
func (p *Pool) Aggregate() types.AllocatedResources {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.aggregate
}

// MemoryUtilization returns the pool's peak-allocated memory as a
// fraction of its total allocated memory budget, used by discovery's
// resource health check. Zero when nothing has been allocated yet.
func (p *Pool) MemoryUtilization() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.aggregate.AllocatedMemoryMB == 0 {
		return 0
	}
	var peak int
	for _, a := range p.agents {
		if a.Resources.PeakMemoryMB > peak {
			peak = a.Resources.PeakMemoryMB
		}
	}
	return float64(peak) / float64(p.aggregate.AllocatedMemoryMB)
}

func (p *Pool) addAggregate(r types.AllocatedResources) {
	p.aggregate.AllocatedTokens += r.AllocatedTokens
	p.aggregate.AllocatedMemoryMB += r.AllocatedMemoryMB
	p.aggregate.AllocatedCPUPercent += r.AllocatedCPUPercent
	p.aggregate.AllocatedDiskMB += r.AllocatedDiskMB
	p.aggregate.AllocatedNetworkMbps += r.AllocatedNetworkMbps
	p.aggregate.MaxCostPerDay += r.MaxCostPerDay
}

func (p *Pool) subAggregate(r types.AllocatedResources) {
	p.aggregate.AllocatedTokens -= r.AllocatedTokens
	p.aggregate.AllocatedMemoryMB -= r.AllocatedMemoryMB
	p.aggregate.AllocatedCPUPercent -= r.AllocatedCPUPercent
	p.aggregate.AllocatedDiskMB -= r.AllocatedDiskMB
	p.aggregate.AllocatedNetworkMbps -= r.AllocatedNetworkMbps
	p.aggregate.MaxCostPerDay -= r.MaxCostPerDay
}

// transition moves a to a new state if the edge is legal, reindexes it by
// status, stamps lastStateChange, and publishes a lifecycle event. Callers
// must hold p.mu.
func (p *Pool) transition(a *types.SpawnedAgent, to types.AgentState, kind string) bool {
	if !types.CanTransition(a.State, to) {
		return false
	}
	a.State = to
	p.reindexStatus(a)
	p.lastStateChange[a.InstanceID] = time.Now()
	if kind != "" {
		p.publish(kind, a)
	}
	return true
}

func (p *Pool) publish(kind string, a *types.SpawnedAgent) {
	if p.bus == nil {
		return
	}
	p.bus.Publish(bus.TopicAgentLifecycle, LifecycleEvent{
		Kind:       kind,
		InstanceID: a.InstanceID,
		ConfigID:   a.ConfigID,
		Timestamp:  time.Now(),
	})
}
