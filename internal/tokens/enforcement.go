package tokens

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/andywolf/prpctl/internal/bus"
	"github.com/andywolf/prpctl/internal/types"
)

// DefaultMonitorInterval is how often the engine recomputes per-agent and
// per-component usage and checks it against limits.
const DefaultMonitorInterval = 5 * time.Second

// spikeOpThreshold and spikeCostThreshold define a last-hour spike: more
// than this many operations and more than this much cost in one hour.
const (
	spikeOpThreshold   = 10
	spikeCostThreshold = 1.00
)

// ComponentThreshold pairs a percentage crossing with the enforcement
// action it triggers.
type ComponentThreshold struct {
	Percentage float64
	Action     types.EnforcementType
}

// DefaultComponentThresholds implements the soft/moderate/critical/hard-stop ladder.
var DefaultComponentThresholds = []ComponentThreshold{
	{70, types.EnforcementWarningLogged},
	{80, types.EnforcementSignalEmitted},
	{90, types.EnforcementRequestsThrottled},
	{95, types.EnforcementEmergencyStopped},
}

// AgentLimit is the subset of an AgentConfiguration the engine needs to
// evaluate usage for one agent.
type AgentLimit struct {
	AgentID        string
	MaxTokensMonth int
	MaxCostMonth   float64
}

// ComponentLimit bounds aggregate usage for an internal component
// (inspector, orchestrator) rather than a single spawned agent.
type ComponentLimit struct {
	Component      types.EnforcementComponent
	MaxTokensMonth int
}

// Engine runs the monitoring loop against a Ledger, publishing alerts and
// enforcement actions onto the bus.
type Engine struct {
	ledger *Ledger
	bus    *bus.Bus

	agentLimits     []AgentLimit
	componentLimits []ComponentLimit
	thresholds      []ComponentThreshold
	interval        time.Duration

	componentUsage map[types.EnforcementComponent]int
	componentFired map[types.EnforcementComponent]*ComponentThreshold
}

// NewEngine constructs an Engine with the default monitoring interval and
// component threshold ladder.
func NewEngine(ledger *Ledger, b *bus.Bus, agentLimits []AgentLimit, componentLimits []ComponentLimit) *Engine {
	return &Engine{
		ledger:          ledger,
		bus:             b,
		agentLimits:     agentLimits,
		componentLimits: componentLimits,
		thresholds:      DefaultComponentThresholds,
		interval:        DefaultMonitorInterval,
		componentUsage:  make(map[types.EnforcementComponent]int),
		componentFired:  make(map[types.EnforcementComponent]*ComponentThreshold),
	}
}

// UtilizationPercent returns the current usage percentage for a tracked
// component against its configured monthly token cap, used by the
// orchestrator to filter out tasks whose layer is already saturated.
// Returns 0 if the component has no configured limit.
func (e *Engine) UtilizationPercent(component types.EnforcementComponent) float64 {
	for _, lim := range e.componentLimits {
		if lim.Component == component {
			return percentOf(e.componentUsage[component], lim.MaxTokensMonth)
		}
	}
	return 0
}

// RecordComponentUsage adds tokens to a component's running aggregate,
// consulted by the per-component threshold ladder on the next tick.
func (e *Engine) RecordComponentUsage(component types.EnforcementComponent, tokensUsed int) {
	e.componentUsage[component] += tokensUsed
}

// Run drives the monitoring loop until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			e.tick()
		}
	}
}

func (e *Engine) tick() {
	now := time.Now()
	for _, lim := range e.agentLimits {
		e.checkAgent(lim, now)
	}
	for _, lim := range e.componentLimits {
		e.checkComponent(lim)
	}
}

func (e *Engine) checkAgent(lim AgentLimit, now time.Time) {
	monthStart := now.AddDate(0, 0, -30)
	monthTokens, monthCost, _ := e.ledger.WindowTotals(lim.AgentID, monthStart)

	pctTokens := percentOf(monthTokens, lim.MaxTokensMonth)
	pctCost := percentOf(int(monthCost*100), int(lim.MaxCostMonth*100))
	pct := pctTokens
	if pctCost > pct {
		pct = pctCost
	}

	status := types.StatusForPercentage(pct)
	e.raiseUsageAlert(lim.AgentID, status, pct)

	hourStart := now.Add(-time.Hour)
	_, hourCost, hourOps := e.ledger.WindowTotals(lim.AgentID, hourStart)
	if hourOps > spikeOpThreshold && hourCost > spikeCostThreshold {
		alert, fresh := e.ledger.UpsertAlert(types.TokenAlert{
			Kind:             types.AlertSpikeDetected,
			Severity:         types.SeverityHigh,
			AgentOrComponent: lim.AgentID,
			Message:          fmt.Sprintf("spike: %d ops / $%.2f in the last hour", hourOps, hourCost),
			CurrentUsage:     hourCost,
			Threshold:        spikeCostThreshold,
			Timestamp:        now,
		})
		if fresh {
			e.bus.Publish(bus.TopicTokenAlerts, alert)
		}
	}
}

func (e *Engine) raiseUsageAlert(agentID string, status types.UsageStatus, pct float64) {
	var kind types.AlertKind
	switch status {
	case types.UsageWarning, types.UsageCritical:
		kind = types.AlertApproachingLimit
	case types.UsageExceeded:
		kind = types.AlertLimitExceeded
	default:
		e.ledger.ResolveAlert(agentID, types.AlertApproachingLimit)
		e.ledger.ResolveAlert(agentID, types.AlertLimitExceeded)
		return
	}

	severity := types.SeverityMedium
	if status == types.UsageCritical {
		severity = types.SeverityHigh
	} else if status == types.UsageExceeded {
		severity = types.SeverityCritical
	}

	alert, fresh := e.ledger.UpsertAlert(types.TokenAlert{
		Kind:             kind,
		Severity:         severity,
		AgentOrComponent: agentID,
		Message:          fmt.Sprintf("%s usage at %.1f%%", agentID, pct),
		CurrentUsage:     pct,
		Threshold:        thresholdFor(status),
		Timestamp:        time.Now(),
	})
	if fresh {
		e.bus.Publish(bus.TopicTokenAlerts, alert)
	}
}

func thresholdFor(status types.UsageStatus) float64 {
	switch status {
	case types.UsageWarning:
		return 60
	case types.UsageCritical:
		return 80
	case types.UsageExceeded:
		return 95
	default:
		return 0
	}
}

// checkComponent fires the enforcement action for the highest threshold
// band pct has crossed, but only once per crossing: it re-fires only when
// pct climbs into a higher band than the one already active. The active
// action is resolved once pct falls two bands below the band that fired
// it, per the boundary rule that a crossing triggers its action once and
// the action stays active until usage recedes well clear of it.
func (e *Engine) checkComponent(lim ComponentLimit) {
	used := e.componentUsage[lim.Component]
	pct := percentOf(used, lim.MaxTokensMonth)

	crossedIdx := -1
	for i := range e.thresholds {
		if pct >= e.thresholds[i].Percentage {
			crossedIdx = i
		}
	}

	active := e.componentFired[lim.Component]

	if crossedIdx < 0 {
		if active != nil {
			e.resolveComponent(lim, used, pct, active)
		}
		return
	}

	crossed := &e.thresholds[crossedIdx]

	if active == crossed {
		return
	}

	if active != nil {
		activeIdx := thresholdIndex(e.thresholds, active)
		if crossedIdx <= activeIdx-2 {
			e.resolveComponent(lim, used, pct, active)
			active = nil
		}
	}

	if active == crossed {
		return
	}

	e.componentFired[lim.Component] = crossed
	action := types.EnforcementAction{
		ID:         uuid.NewString(),
		Timestamp:  time.Now(),
		Component:  lim.Component,
		Type:       crossed.Action,
		Reason:     fmt.Sprintf("%s usage at %.1f%% of monthly token cap", lim.Component, pct),
		Threshold:  crossed.Percentage,
		Current:    float64(used),
		Limit:      float64(lim.MaxTokensMonth),
		Percentage: pct,
	}
	e.bus.Publish(bus.TopicEnforcement, action)
}

func (e *Engine) resolveComponent(lim ComponentLimit, used int, pct float64, resolved *ComponentThreshold) {
	delete(e.componentFired, lim.Component)
	action := types.EnforcementAction{
		ID:         uuid.NewString(),
		Timestamp:  time.Now(),
		Component:  lim.Component,
		Type:       resolved.Action,
		Reason:     fmt.Sprintf("%s usage receded to %.1f%% of monthly token cap", lim.Component, pct),
		Threshold:  resolved.Percentage,
		Current:    float64(used),
		Limit:      float64(lim.MaxTokensMonth),
		Percentage: pct,
		Resolved:   true,
	}
	e.bus.Publish(bus.TopicEnforcement, action)
}

func thresholdIndex(thresholds []ComponentThreshold, t *ComponentThreshold) int {
	for i := range thresholds {
		if &thresholds[i] == t {
			return i
		}
	}
	return -1
}

func percentOf(value, max int) float64 {
	if max <= 0 {
		return 0
	}
	return float64(value) / float64(max) * 100
}
