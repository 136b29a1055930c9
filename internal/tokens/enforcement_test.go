package tokens

import (
	"testing"
	"time"

	"github.com/andywolf/prpctl/internal/bus"
	"github.com/andywolf/prpctl/internal/types"
)

func TestCheckAgentRaisesWarningAlert(t *testing.T) {
	b := bus.New(8)
	sub := b.Subscribe(bus.TopicTokenAlerts)
	defer sub.Unsubscribe()

	l := NewLedger("", nil)
	l.Record(types.TokenUsageRecord{AgentID: "a1", Model: "gpt-4o", InputTokens: 700})

	e := NewEngine(l, b, []AgentLimit{{AgentID: "a1", MaxTokensMonth: 1000}}, nil)
	e.checkAgent(AgentLimit{AgentID: "a1", MaxTokensMonth: 1000}, time.Now())

	select {
	case env := <-sub.C:
		alert := env.Payload.(types.TokenAlert)
		if alert.Kind != types.AlertApproachingLimit {
			t.Fatalf("kind = %v, want approaching_limit", alert.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("expected an alert to be published")
	}
}

func TestCheckComponentCrossesHardStop(t *testing.T) {
	b := bus.New(8)
	sub := b.Subscribe(bus.TopicEnforcement)
	defer sub.Unsubscribe()

	l := NewLedger("", nil)
	e := NewEngine(l, b, nil, []ComponentLimit{{Component: types.ComponentOrchestrator, MaxTokensMonth: 1000}})
	e.RecordComponentUsage(types.ComponentOrchestrator, 960)
	e.checkComponent(ComponentLimit{Component: types.ComponentOrchestrator, MaxTokensMonth: 1000})

	select {
	case env := <-sub.C:
		action := env.Payload.(types.EnforcementAction)
		if action.Type != types.EnforcementEmergencyStopped {
			t.Fatalf("type = %v, want emergency_stopped at 96%%", action.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("expected an enforcement action to be published")
	}
}

func TestCheckComponentBelowSoftThresholdEmitsNothing(t *testing.T) {
	b := bus.New(8)
	sub := b.Subscribe(bus.TopicEnforcement)
	defer sub.Unsubscribe()

	l := NewLedger("", nil)
	e := NewEngine(l, b, nil, nil)
	e.RecordComponentUsage(types.ComponentInspector, 100)
	e.checkComponent(ComponentLimit{Component: types.ComponentInspector, MaxTokensMonth: 1000})

	select {
	case env := <-sub.C:
		t.Fatalf("unexpected enforcement action: %+v", env)
	case <-time.After(50 * time.Millisecond):
	}
}
