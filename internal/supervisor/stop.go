package supervisor

import (
	"context"
	"fmt"
	"time"

	"github.com/andywolf/prpctl/internal/types"
)

// Stop terminates a spawned agent instance. Unless force is set it first
// asks the process to shut down gracefully over its stdin control pipe
// and waits up to gracefulShutdownTimeout before escalating to SIGKILL.
// watchProcess observes the exit and finishes the state transition and
// index cleanup.
func (p *Pool) Stop(ctx context.Context, instanceID string, force bool) error {
	p.mu.Lock()
	agent, ok := p.agents[instanceID]
	if !ok {
		p.mu.Unlock()
		return fmt.Errorf("unknown agent instance: %s", instanceID)
	}
	rp, hasProcess := p.processes[instanceID]
	p.transition(agent, types.AgentStopping, "")
	p.mu.Unlock()

	if !hasProcess {
		p.mu.Lock()
		p.transition(agent, types.AgentStopped, "agent-stopped")
		p.removeLocked(agent)
		p.mu.Unlock()
		return nil
	}

	if !force {
		fmt.Fprintln(rp.stdin, "shutdown")
		select {
		case <-rp.exited:
			return nil
		case <-time.After(p.gracefulShutdownTimeout):
		}
	}

	if rp.cmd.Process != nil {
		_ = rp.cmd.Process.Kill()
	}
	<-rp.exited
	return nil
}
