// Package discovery finds, probes, and scores AgentConfigurations so the
// supervisor can pick the best match for a spawn request.
package discovery

import (
	"sort"
	"time"

	"github.com/andywolf/prpctl/internal/types"
)

// Health bucket derived from a DiscoveredAgent's last health check score.
type Health string

const (
	HealthHealthy   Health = "healthy"
	HealthDegraded  Health = "degraded"
	HealthUnhealthy Health = "unhealthy"
)

// HealthForScore maps a 0-100 score to its bucket.
func HealthForScore(score int) Health {
	switch {
	case score >= 90:
		return HealthHealthy
	case score >= 70:
		return HealthDegraded
	default:
		return HealthUnhealthy
	}
}

// DiscoveredAgent wraps an AgentConfiguration with the runtime discovery
// state the selection formula consumes.
type DiscoveredAgent struct {
	Config             types.AgentConfiguration
	Health             Health
	HealthScore        int
	Online             bool
	ErrorRate          float64 // 0-1
	CurrentTaskCount   int
	RegisteredAt       time.Time
	SupportedFeatures  []string
	CapabilityConfidence map[string]float64
}

// Registry holds discovered agent configurations, keyed by config id.
type Registry struct {
	agents map[string]*DiscoveredAgent
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{agents: make(map[string]*DiscoveredAgent)}
}

// Register promotes a freshly discovered config to a DiscoveredAgent with
// initial health "unhealthy" until a probe runs.
func (r *Registry) Register(cfg types.AgentConfiguration) *DiscoveredAgent {
	d := &DiscoveredAgent{
		Config:       cfg,
		Health:       HealthUnhealthy,
		RegisteredAt: time.Now(),
	}
	r.agents[cfg.ID] = d
	return d
}

// Get returns the DiscoveredAgent for id, if registered.
func (r *Registry) Get(id string) (*DiscoveredAgent, bool) {
	d, ok := r.agents[id]
	return d, ok
}

// All returns every registered agent.
func (r *Registry) All() []*DiscoveredAgent {
	out := make([]*DiscoveredAgent, 0, len(r.agents))
	for _, d := range r.agents {
		out = append(out, d)
	}
	return out
}

// Criteria filters and scores candidates for FindBest.
type Criteria struct {
	RequiredCapabilities []string
	PreferredRole        types.AgentRole
	MaxCost              float64
	MinHealth            int // default 80 if zero
	ExcludeBusy          bool
}

func (c Criteria) minHealth() int {
	if c.MinHealth == 0 {
		return 80
	}
	return c.MinHealth
}

// FindBest filters candidates by capability/role/cost/health and returns
// the highest-scoring match. Ties break by lower current task count, then
// earlier registration time.
func FindBest(candidates []*DiscoveredAgent, criteria Criteria) (*DiscoveredAgent, bool) {
	var filtered []*DiscoveredAgent
	for _, d := range candidates {
		if !coversAll(d, criteria.RequiredCapabilities) {
			continue
		}
		if criteria.PreferredRole != "" && d.Config.Role != criteria.PreferredRole {
			continue
		}
		if criteria.MaxCost > 0 && estimatedCost(d) > criteria.MaxCost {
			continue
		}
		if d.HealthScore < criteria.minHealth() {
			continue
		}
		if criteria.ExcludeBusy && d.CurrentTaskCount > 0 {
			continue
		}
		filtered = append(filtered, d)
	}
	if len(filtered) == 0 {
		return nil, false
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		si, sj := score(filtered[i], criteria), score(filtered[j], criteria)
		if si != sj {
			return si > sj
		}
		if filtered[i].CurrentTaskCount != filtered[j].CurrentTaskCount {
			return filtered[i].CurrentTaskCount < filtered[j].CurrentTaskCount
		}
		return filtered[i].RegisteredAt.Before(filtered[j].RegisteredAt)
	})

	return filtered[0], true
}

func coversAll(d *DiscoveredAgent, required []string) bool {
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

func estimatedCost(d *DiscoveredAgent) float64 {
	return 0 // real cost estimation lives in validation.go's rate-table lookup
}

// score implements 0.4*health + 0.3*(fraction of required caps supported)
// + 0.2*(1-errorRate) + 0.1*(online?1:0).
func score(d *DiscoveredAgent, criteria Criteria) float64 {
	capFraction := 1.0
	if n := len(criteria.RequiredCapabilities); n > 0 {
		matched := 0
		have := make(map[string]bool, len(d.SupportedFeatures))
		for _, f := range d.SupportedFeatures {
			have[f] = true
		}
		for _, req := range criteria.RequiredCapabilities {
			if have[req] {
				matched++
			}
		}
		capFraction = float64(matched) / float64(n)
	}

	online := 0.0
	if d.Online {
		online = 1.0
	}

	return 0.4*float64(d.HealthScore)/100.0 + 0.3*capFraction + 0.2*(1-d.ErrorRate) + 0.1*online
}
