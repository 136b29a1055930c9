package supervisor

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/andywolf/prpctl/internal/discovery"
	"github.com/andywolf/prpctl/internal/types"
)

// Spawn resolves req into a running SpawnedAgent, either by reusing a
// compatible idle/running instance or by starting a new process. It
// blocks until the request is dispatched, spawned, or ctx is cancelled;
// when the concurrent-spawn ceiling is reached it queues the request and
// waits for a slot to free rather than failing outright.
func (p *Pool) Spawn(ctx context.Context, req types.SpawnRequest) (*types.SpawnedAgent, error) {
	if req.AgentID == "" || req.Requester == "" {
		return nil, &types.SpawnError{Code: types.ErrInvalidRequest, Message: "agent_id and requester are required"}
	}

	p.mu.Lock()
	limiter := p.rateLimiter
	p.mu.Unlock()
	if limiter != nil && !limiter.Allow(req.Requester) {
		return nil, &types.SpawnError{Code: types.ErrRateLimited, Message: "spawn rate limit exceeded for requester " + req.Requester, Recoverable: true}
	}

	if req.Options.ReuseExisting {
		if a, ok := p.findReusable(req); ok {
			return a, nil
		}
	}

	if p.enforcementBlocked() {
		return nil, &types.SpawnError{Code: types.ErrQueueFull, Message: "spawns blocked by an active enforcement action", Recoverable: true}
	}

	result := make(chan spawnOutcome, 1)

	p.mu.Lock()
	if p.activeSpawns >= p.effectiveCeilingLocked() {
		p.queue = append(p.queue, queuedRequest{req: req, result: result})
		p.mu.Unlock()
		select {
		case out := <-result:
			return out.agent, out.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	p.activeSpawns++
	p.mu.Unlock()

	agent, err := p.doSpawn(ctx, req)

	p.mu.Lock()
	p.activeSpawns--
	p.mu.Unlock()

	p.drainQueue(ctx)
	return agent, err
}

// drainQueue dispatches queued requests while concurrent-spawn slots are
// free, one goroutine per dispatch so a slow spawn doesn't hold up the
// rest of the queue.
func (p *Pool) drainQueue(ctx context.Context) {
	for {
		p.mu.Lock()
		if len(p.queue) == 0 || p.activeSpawns >= p.effectiveCeilingLocked() {
			p.mu.Unlock()
			return
		}
		next := p.queue[0]
		p.queue = p.queue[1:]
		p.activeSpawns++
		p.mu.Unlock()

		go func(qr queuedRequest) {
			agent, err := p.doSpawn(ctx, qr.req)
			p.mu.Lock()
			p.activeSpawns--
			p.mu.Unlock()
			qr.result <- spawnOutcome{agent: agent, err: err}
			p.drainQueue(ctx)
		}(next)
	}
}

// doSpawn asks Discovery for the best matching config, allocates
// resources, and starts the child process, waiting up to the spawn
// timeout for it to signal it came up cleanly.
func (p *Pool) doSpawn(ctx context.Context, req types.SpawnRequest) (*types.SpawnedAgent, error) {
	criteria := discovery.Criteria{
		RequiredCapabilities: req.Requirements.RequiredCapabilities,
		PreferredRole:        req.RoleOverride,
		MaxCost:              req.Requirements.MaxCost,
	}
	best, ok := discovery.FindBest(p.configs.All(), criteria)
	if !ok {
		return nil, &types.SpawnError{Code: types.ErrNoSuitableAgent, Message: "no registered agent configuration satisfies the request"}
	}
	cfg := best.Config

	role := cfg.Role
	if req.RoleOverride != "" {
		role = req.RoleOverride
	}

	estimate := discovery.EstimateResources(cfg)
	resources := types.AllocatedResources{
		AllocatedTokens:      estimate.AllocatedTokens,
		AllocatedMemoryMB:    estimate.MemoryMB,
		AllocatedCPUPercent:  estimate.CPUPercent,
		AllocatedDiskMB:      estimate.DiskMB,
		AllocatedNetworkMbps: estimate.NetworkMbps,
		MaxCostPerDay:        estimate.EstimatedCostPerDay,
	}

	agent := &types.SpawnedAgent{
		InstanceID:     uuid.NewString(),
		ConfigID:       cfg.ID,
		State:          types.AgentInitializing,
		MaxRestarts:    cfg.Limits.MaxRestarts,
		Resources:      resources,
		TTL:            req.Options.TTL,
		SpawnedAt:      time.Now(),
		SpawnRequestID: req.ID,
	}

	timeout := req.Options.Timeout
	if timeout <= 0 {
		timeout = p.spawnTimeout
	}

	rp, err := p.startProcess(ctx, cfg, agent, req)
	if err != nil {
		return nil, &types.SpawnError{Code: types.ErrSpawnTimeout, Message: err.Error(), Recoverable: true}
	}

	select {
	case <-rp.ready:
	case <-rp.exited:
		return nil, &types.SpawnError{Code: types.ErrSpawnTimeout, Message: "process exited before signaling a successful spawn", Recoverable: true}
	case <-time.After(timeout):
		// No output yet but the process is still alive; absent an explicit
		// readiness protocol, staying up past the timeout counts as spawned.
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	p.mu.Lock()
	p.agents[agent.InstanceID] = agent
	p.index(agent, role, cfg.Type)
	p.transition(agent, types.AgentStarting, "")
	p.transition(agent, types.AgentRunning, "agent-started")
	p.addAggregate(resources)
	p.processes[agent.InstanceID] = rp
	p.consecutiveFails[agent.InstanceID] = 0
	p.mu.Unlock()

	go p.watchProcess(agent.InstanceID, rp, cfg, req)

	return agent, nil
}

// findReusable scans the pool for a running or idle instance whose config
// covers every required capability and whose memory utilization stays
// under 80%. On a hit it marks the instance busy and returns it.
func (p *Pool) findReusable(req types.SpawnRequest) (*types.SpawnedAgent, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, a := range p.agents {
		if a.State != types.AgentRunning && a.State != types.AgentIdle {
			continue
		}
		d, ok := p.configs.Get(a.ConfigID)
		if !ok || !coversCapabilities(d, req.Requirements.RequiredCapabilities) {
			continue
		}
		util := 0.0
		if a.Resources.AllocatedMemoryMB > 0 {
			util = float64(a.Resources.PeakMemoryMB) / float64(a.Resources.AllocatedMemoryMB)
		}
		if util >= 0.80 {
			continue
		}
		p.transition(a, types.AgentBusy, "")
		a.Performance.LastSignalAt = time.Now()
		return a, true
	}
	return nil, false
}

func coversCapabilities(d *discovery.DiscoveredAgent, required []string) bool {
	if len(required) == 0 {
		return true
	}
	have := make(map[string]bool, len(d.SupportedFeatures))
	for _, f := range d.SupportedFeatures {
		have[f] = true
	}
	for _, req := range required {
		if !have[req] {
			return false
		}
	}
	return true
}

// effectiveCeilingLocked returns the concurrent-spawn ceiling adjusted for
// an active requests_throttled enforcement action. Callers must hold p.mu.
func (p *Pool) effectiveCeilingLocked() int {
	if p.enforcement.throttled {
		c := p.concurrentSpawnCeiling / 2
		if c < 1 {
			c = 1
		}
		return c
	}
	return p.concurrentSpawnCeiling
}

func (p *Pool) enforcementBlocked() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enforcement.blocked || p.enforcement.emergency
}
