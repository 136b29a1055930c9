package discovery

import (
	"testing"
	"time"

	"github.com/andywolf/prpctl/internal/types"
)

func TestHealthForScore(t *testing.T) {
	cases := []struct {
		score int
		want  Health
	}{
		{100, HealthHealthy},
		{90, HealthHealthy},
		{89, HealthDegraded},
		{70, HealthDegraded},
		{69, HealthUnhealthy},
		{0, HealthUnhealthy},
	}
	for _, c := range cases {
		if got := HealthForScore(c.score); got != c.want {
			t.Errorf("HealthForScore(%d) = %s, want %s", c.score, got, c.want)
		}
	}
}

func TestFindBestFiltersByRequiredCapabilities(t *testing.T) {
	a := &DiscoveredAgent{Config: types.AgentConfiguration{ID: "a"}, HealthScore: 95, SupportedFeatures: []string{"test"}}
	b := &DiscoveredAgent{Config: types.AgentConfiguration{ID: "b"}, HealthScore: 95, SupportedFeatures: []string{"test", "review"}}

	best, ok := FindBest([]*DiscoveredAgent{a, b}, Criteria{RequiredCapabilities: []string{"review"}})
	if !ok {
		t.Fatal("expected a match")
	}
	if best.Config.ID != "b" {
		t.Fatalf("expected b, got %s", best.Config.ID)
	}
}

func TestFindBestExcludesBelowMinHealth(t *testing.T) {
	low := &DiscoveredAgent{Config: types.AgentConfiguration{ID: "low"}, HealthScore: 50}
	_, ok := FindBest([]*DiscoveredAgent{low}, Criteria{})
	if ok {
		t.Fatal("expected default min health 80 to exclude a score of 50")
	}
}

func TestFindBestTieBreaksByTaskCountThenRegistration(t *testing.T) {
	now := time.Now()
	older := &DiscoveredAgent{Config: types.AgentConfiguration{ID: "older"}, HealthScore: 90, CurrentTaskCount: 0, RegisteredAt: now.Add(-time.Hour)}
	newer := &DiscoveredAgent{Config: types.AgentConfiguration{ID: "newer"}, HealthScore: 90, CurrentTaskCount: 0, RegisteredAt: now}

	best, ok := FindBest([]*DiscoveredAgent{newer, older}, Criteria{})
	if !ok {
		t.Fatal("expected a match")
	}
	if best.Config.ID != "older" {
		t.Fatalf("expected tie-break to prefer earlier registration, got %s", best.Config.ID)
	}
}

func TestFindBestExcludesBusyWhenRequested(t *testing.T) {
	busy := &DiscoveredAgent{Config: types.AgentConfiguration{ID: "busy"}, HealthScore: 95, CurrentTaskCount: 1}
	_, ok := FindBest([]*DiscoveredAgent{busy}, Criteria{ExcludeBusy: true})
	if ok {
		t.Fatal("expected busy agent to be excluded")
	}
}

func TestRunHealthChecksScoring(t *testing.T) {
	d := &DiscoveredAgent{}
	cfg := types.AgentConfiguration{
		ID:   "a",
		Type: "claudecode",
		Environment: types.AgentEnvironment{Binary: "/usr/bin/claude"},
	}
	results := RunHealthChecks(d, cfg, 0.5)
	if len(results) != 3 {
		t.Fatalf("expected 3 checks, got %d", len(results))
	}
	if d.HealthScore != 100 {
		t.Fatalf("expected perfect score, got %d", d.HealthScore)
	}
	if d.Health != HealthHealthy {
		t.Fatalf("expected healthy, got %s", d.Health)
	}
}

func TestRunHealthChecksWarnsOnHighMemory(t *testing.T) {
	d := &DiscoveredAgent{}
	cfg := types.AgentConfiguration{ID: "a", Type: "t", Environment: types.AgentEnvironment{Binary: "/bin/x"}}
	RunHealthChecks(d, cfg, 0.95)
	if d.HealthScore != 90 {
		t.Fatalf("expected one warn to cost 10 points, got %d", d.HealthScore)
	}
}

func TestRunHealthChecksFailsOnMissingConfig(t *testing.T) {
	d := &DiscoveredAgent{}
	RunHealthChecks(d, types.AgentConfiguration{}, 0)
	if d.Health != HealthUnhealthy {
		t.Fatalf("expected unhealthy for a config missing id/type/binary, got %s", d.Health)
	}
}

func TestValidateFlagsMissingBinary(t *testing.T) {
	d := &DiscoveredAgent{Config: types.AgentConfiguration{ID: "a"}}
	res := Validate(d)
	if res.Valid {
		t.Fatal("expected invalid config without a binary path")
	}
}

func TestEstimateResourcesAppliesFloors(t *testing.T) {
	cfg := types.AgentConfiguration{Limits: types.AgentLimits{MaxMemoryMB: 64}, Capabilities: types.AgentCapabilities{MaxConcurrentTasks: 0}}
	est := EstimateResources(cfg)
	if est.MemoryMB != 256 {
		t.Fatalf("memory = %d, want floor of 256", est.MemoryMB)
	}
	if est.CPUPercent != 20.0 {
		t.Fatalf("cpu = %f, want floor of 20", est.CPUPercent)
	}
}
