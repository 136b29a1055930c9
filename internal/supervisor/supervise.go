package supervisor

import (
	"context"
	"time"

	"github.com/andywolf/prpctl/internal/types"
)

// Run drives the supervision and cleanup loops until ctx is cancelled.
func (p *Pool) Run(ctx context.Context) error {
	supervise := time.NewTicker(DefaultSupervisionInterval)
	cleanup := time.NewTicker(DefaultCleanupInterval)
	defer supervise.Stop()
	defer cleanup.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-supervise.C:
			p.superviseLiveness()
		case <-cleanup.C:
			p.cleanupSweep()
		}
	}
}

// superviseLiveness checks every running/busy/idle agent's process for a
// pulse and maps consecutive failures onto its health: 3 or more in a row
// is critical, any failure is unhealthy, otherwise healthy.
func (p *Pool) superviseLiveness() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for id, a := range p.agents {
		if a.State != types.AgentRunning && a.State != types.AgentBusy && a.State != types.AgentIdle {
			continue
		}
		rp, ok := p.processes[id]
		if !ok {
			continue
		}

		a.Health.LastCheckAt = time.Now()

		if processAlive(rp.cmd) {
			p.consecutiveFails[id] = 0
			a.Health.Healthy = true
			a.Health.ConsecutiveFails = 0
			a.Health.LastError = ""
			continue
		}

		p.consecutiveFails[id]++
		fails := p.consecutiveFails[id]
		a.Health.ConsecutiveFails = fails
		a.Health.Healthy = false
		if fails >= criticalConsecutiveFails {
			a.Health.LastError = "process unresponsive across 3+ consecutive liveness checks"
		} else {
			a.Health.LastError = "process liveness check failed"
		}
	}
}

// cleanupSweep terminates agents past their TTL or idle timeout via a
// graceful Stop, and reaps crashed/error agents that never got a restart
// (or whose restart failed) after they've lingered past crashedLinger.
func (p *Pool) cleanupSweep() {
	now := time.Now()
	var toStop, toReap []string

	p.mu.Lock()
	for id, a := range p.agents {
		since := now.Sub(p.lastStateChange[id])
		switch {
		case a.Expired(now):
			toStop = append(toStop, id)
		case a.State == types.AgentIdle && since > p.idleTimeout:
			toStop = append(toStop, id)
		case (a.State == types.AgentCrashed || a.State == types.AgentError) && since > p.crashedLinger:
			toReap = append(toReap, id)
		}
	}
	for _, id := range toReap {
		if a, ok := p.agents[id]; ok {
			p.removeLocked(a)
			p.publish("agent-exited", a)
		}
	}
	p.mu.Unlock()

	for _, id := range toStop {
		_ = p.Stop(context.Background(), id, true)
	}
}
