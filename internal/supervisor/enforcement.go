package supervisor

import (
	"context"

	"github.com/andywolf/prpctl/internal/bus"
	"github.com/andywolf/prpctl/internal/types"
)

// WatchEnforcement subscribes to bus.TopicEnforcement and obeys each
// action: requests_throttled halves the effective concurrent-spawn
// ceiling, requests_blocked rejects new spawns outright, and
// emergency_stopped additionally triggers a graceful stop of every idle
// agent. A Resolved action reverses the corresponding state.
func (p *Pool) WatchEnforcement(ctx context.Context) error {
	if p.bus == nil {
		return nil
	}
	sub := p.bus.Subscribe(bus.TopicEnforcement)
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env, ok := <-sub.C:
			if !ok {
				return nil
			}
			action, ok := env.Payload.(types.EnforcementAction)
			if !ok {
				continue
			}
			p.applyEnforcement(ctx, action)
		}
	}
}

func (p *Pool) applyEnforcement(ctx context.Context, action types.EnforcementAction) {
	var idle []string

	p.mu.Lock()
	switch action.Type {
	case types.EnforcementRequestsThrottled:
		p.enforcement.throttled = !action.Resolved
	case types.EnforcementRequestsBlocked:
		p.enforcement.blocked = !action.Resolved
	case types.EnforcementEmergencyStopped:
		p.enforcement.emergency = !action.Resolved
		if p.enforcement.emergency {
			for id, a := range p.agents {
				if a.State == types.AgentIdle {
					idle = append(idle, id)
				}
			}
		}
	}
	p.mu.Unlock()

	for _, id := range idle {
		_ = p.Stop(ctx, id, false)
	}
}
