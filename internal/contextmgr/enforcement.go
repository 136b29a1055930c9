package contextmgr

import (
	"context"

	"github.com/andywolf/prpctl/internal/bus"
	"github.com/andywolf/prpctl/internal/types"
)

// CompactionSource supplies the war-room memo and context sections a
// forced compaction runs against. The orchestrator registers one per
// running system since the Context Manager doesn't own that state itself.
type CompactionSource func() (*types.WarRoomMemo, []types.ContextSection)

// WatchEnforcement subscribes to bus.TopicEnforcement and forces a
// compaction pass whenever an active (unresolved) emergency_stopped
// action arrives, independent of the usual high-water-mark check.
func (m *Manager) WatchEnforcement(ctx context.Context, source CompactionSource) error {
	if m.bus == nil {
		return nil
	}
	sub := m.bus.Subscribe(bus.TopicEnforcement)
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
			if !ok || action.Resolved || action.Type != types.EnforcementEmergencyStopped {
				continue
			}
			memo, sections := source()
			if memo == nil {
				continue
			}
			_, _ = m.Compact(memo, sections)
		}
	}
}
