package events

import (
	"strconv"
	"time"

	"github.com/andywolf/prpctl/internal/types"
)

// ConvertParams holds the per-cycle labels attached to every event derived
// from one agent instance's signal stream.
type ConvertParams struct {
	SessionID string
	Iteration int
	Adapter   string
	Timestamp time.Time // Optional: defaults to time.Now() if zero
}

// FromSignals converts a batch of signals emitted by or about one agent
// instance into the unified AgentEvent timeline the FileSink records.
// It type-switches on the signal's payload union to pick the right
// AgentEvent shape, mirroring the teacher's per-adapter conversion but
// driven by our own Signal/SignalPayload union instead of a provider SDK.
func FromSignals(sigs []types.Signal, params ConvertParams) []AgentEvent {
	if len(sigs) == 0 {
		return nil
	}

	ts := params.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	var out []AgentEvent
	for _, sig := range sigs {
		converted := fromSignal(sig, params, ts)
		if converted != nil {
			out = append(out, *converted)
		}
	}
	return out
}

// fromSignal converts a single Signal to an AgentEvent, or returns nil for
// signal kinds that carry nothing worth recording in the event timeline.
func fromSignal(sig types.Signal, params ConvertParams, ts time.Time) *AgentEvent {
	event := &AgentEvent{
		Timestamp: ts,
		SessionID: params.SessionID,
		Iteration: params.Iteration,
		Adapter:   params.Adapter,
	}
	if !sig.Timestamp.IsZero() {
		event.Timestamp = sig.Timestamp
	}

	switch p := sig.Payload; p.Kind {
	case types.KindDevelopment:
		if p.Development == nil {
			return nil
		}
		if p.Development.Stream == "stderr" {
			event.Type = EventError
		} else {
			event.Type = EventText
		}
		event.Content = p.Development.Line
		event.Summary = truncate(p.Development.Line, 100)

	case types.KindProgress:
		if p.Progress == nil {
			return nil
		}
		event.Type = EventText
		event.Content = p.Progress.Summary
		event.Summary = truncate(p.Progress.Summary, 100)

	case types.KindBlocker:
		if p.Blocker == nil {
			return nil
		}
		event.Type = EventError
		event.Content = p.Blocker.Reason
		event.Summary = "blocked: " + truncate(p.Blocker.Reason, 90)

	case types.KindTestFail:
		if p.TestFail == nil {
			return nil
		}
		event.Type = EventCommand
		event.ToolName = "test"
		event.Content = p.TestFail.Summary
		event.Summary = "test failure: " + truncate(p.TestFail.Summary, 80)

	case types.KindComplete:
		event.Type = EventText
		summary := "complete"
		if p.Complete != nil && p.Complete.Summary != "" {
			summary = p.Complete.Summary
		}
		event.Content = summary
		event.Summary = truncate(summary, 100)

	case types.KindCrash:
		if p.Crash == nil {
			return nil
		}
		event.Type = EventError
		event.Content = p.Crash.Tail
		event.Summary = "crash (exit " + strconv.Itoa(p.Crash.ExitCode) + ")"

	case types.KindGeneric:
		if p.Generic == nil || p.Generic.Raw == "" {
			return nil
		}
		event.Type = EventText
		event.Content = p.Generic.Raw
		event.Summary = truncate(p.Generic.Raw, 100)

	default:
		return nil
	}

	return event
}

// truncate shortens a string to the specified maximum length, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
