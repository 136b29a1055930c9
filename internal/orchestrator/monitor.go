package orchestrator

import (
	"context"
	"time"

	"github.com/andywolf/prpctl/internal/bus"
	"github.com/andywolf/prpctl/internal/events"
	"github.com/andywolf/prpctl/internal/security"
	"github.com/andywolf/prpctl/internal/types"
)

// attachMonitor starts a goroutine that watches bus.TopicSignals for
// signals emitted by instanceID and reacts to the three codes §4.7 step 5
// names: [Cc] (complete) ends monitoring with success, [Bb] (blocker) is
// logged but monitoring continues so the next tick re-prioritizes, and
// [crash] ends monitoring with failure. The goroutine exits on its own
// once a terminal signal arrives or ctx is cancelled; it is never joined
// since the orchestrator's tick loop never waits on in-flight agents.
func (o *Orchestrator) attachMonitor(ctx context.Context, task Task, instanceID string) {
	monitorCtx, cancel := context.WithCancel(ctx)
	o.monitorsMu.Lock()
	o.cancelMonitors[instanceID] = cancel
	o.monitorsMu.Unlock()

	sub := o.Bus.Subscribe(bus.TopicSignals)

	go func() {
		defer sub.Unsubscribe()
		defer func() {
			o.monitorsMu.Lock()
			delete(o.cancelMonitors, instanceID)
			o.monitorsMu.Unlock()
		}()
		defer cancel()

		for {
			select {
			case <-monitorCtx.Done():
				return
			case env, ok := <-sub.C:
				if !ok {
					return
				}
				sigs := asSignals(env.Payload)
				for _, sig := range sigs {
					if sig.Source != instanceID {
						continue
					}
					o.recordEvent(task, sig, instanceID)
					if o.handleMonitorSignal(task, sig) {
						return
					}
				}
			}
		}
	}()
}

// asSignals normalizes the two shapes a TopicSignals payload arrives in:
// a single Signal (from an agent's direct emission) or a []Signal batch
// (from the scanner's per-file extraction).
func asSignals(payload any) []types.Signal {
	switch v := payload.(type) {
	case types.Signal:
		return []types.Signal{v}
	case []types.Signal:
		return v
	default:
		return nil
	}
}

// recordEvent scrubs a monitored signal's text content for credentials and
// secrets before converting it to the unified AgentEvent timeline and
// appending it to the event sink, per the ambient rule that nothing a
// spawned agent prints reaches disk unscrubbed.
func (o *Orchestrator) recordEvent(task Task, sig types.Signal, instanceID string) {
	if o.EventSink == nil {
		return
	}
	if o.Scrubber != nil {
		sig = scrubSignal(sig, o.Scrubber)
	}
	evts := events.FromSignals([]types.Signal{sig}, events.ConvertParams{
		SessionID: task.ID,
		Adapter:   instanceID,
		Timestamp: sig.Timestamp,
	})
	if len(evts) == 0 {
		return
	}
	_ = o.EventSink.Write(evts)
}

func scrubSignal(sig types.Signal, s *security.Scrubber) types.Signal {
	switch {
	case sig.Payload.Development != nil:
		cp := *sig.Payload.Development
		cp.Line = s.Scrub(cp.Line)
		sig.Payload.Development = &cp
	case sig.Payload.Blocker != nil:
		cp := *sig.Payload.Blocker
		cp.Reason = s.Scrub(cp.Reason)
		sig.Payload.Blocker = &cp
	case sig.Payload.Crash != nil:
		cp := *sig.Payload.Crash
		cp.Tail = s.Scrub(cp.Tail)
		sig.Payload.Crash = &cp
	case sig.Payload.Generic != nil:
		cp := *sig.Payload.Generic
		cp.Raw = s.Scrub(cp.Raw)
		sig.Payload.Generic = &cp
	}
	return sig
}

// handleMonitorSignal applies one candidate signal to the task's tracked
// state and reports whether monitoring should stop.
func (o *Orchestrator) handleMonitorSignal(task Task, sig types.Signal) bool {
	switch sig.Kind {
	case types.KindComplete:
		o.tracker.Update(task.Worktree, task.PRP.Name, func(s *PRPState) {
			s.Status = types.PRPStatusCompleted
			s.LastSignalAt = time.Now()
		})
		if o.WarRoom != nil {
			o.WarRoom.AddDone(task.ID)
		}
		o.history.Complete(task.ID, "completed", time.Now())
		return true

	case types.KindBlocker:
		o.tracker.Update(task.Worktree, task.PRP.Name, func(s *PRPState) {
			s.Status = types.PRPStatusBlocked
			s.LastSignalAt = time.Now()
			s.LastBlockerCount++
		})
		if o.WarRoom != nil {
			reason := ""
			if sig.Payload.Blocker != nil {
				reason = sig.Payload.Blocker.Reason
			}
			o.WarRoom.AddBlocker(task.ID + ": " + reason)
		}
		return false

	case types.KindCrash:
		o.tracker.Update(task.Worktree, task.PRP.Name, func(s *PRPState) {
			s.Status = types.PRPStatusFailed
			s.LastSignalAt = time.Now()
		})
		o.history.Complete(task.ID, "crashed", time.Now())
		return true

	default:
		return false
	}
}
