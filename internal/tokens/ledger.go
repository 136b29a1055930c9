// Package tokens maintains the append-only token usage ledger, derives
// cost from a model rate table, and runs the monitoring loop that raises
// TokenAlerts and EnforcementActions as usage crosses configured
// thresholds.
package tokens

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/andywolf/prpctl/internal/types"
)

// DefaultCostPerMillion is the fallback rate (USD per million tokens)
// applied when a model isn't in the rate table.
const DefaultCostPerMillion = 3.00

// DefaultPersistEvery persists the ledger to disk after this many new
// records, in addition to on shutdown.
const DefaultPersistEvery = 50

// rateTable maps model name to USD cost per million tokens. A single flat
// rate per model is a simplification; real providers price input and
// output tokens separately, but the ledger only needs a cost estimate.
var rateTable = map[string]float64{
	"claude-sonnet-4": 3.00,
	"claude-opus-4":   15.00,
	"claude-haiku-4":  0.80,
	"gpt-4o":          2.50,
	"gpt-4o-mini":     0.15,
	"o1":              15.00,
}

// CostFor estimates the USD cost of totalTokens on the given model.
func CostFor(model string, totalTokens int) float64 {
	rate, ok := rateTable[model]
	if !ok {
		rate = DefaultCostPerMillion
	}
	return float64(totalTokens) * rate / 1_000_000
}

// persistedState is the on-disk shape written under .prp/token-accounting.json.
type persistedState struct {
	Records []types.TokenUsageRecord `json:"records"`
	Alerts  []types.TokenAlert       `json:"alerts"`
}

// Ledger is the append-only token usage record store for one running
// system. Safe for concurrent use.
type Ledger struct {
	mu      sync.Mutex
	records []types.TokenUsageRecord
	alerts  map[string]*types.TokenAlert // keyed by agent/component + kind

	dir          string
	persistEvery int
	sinceFlush   int

	metrics *Metrics
}

// NewLedger constructs a Ledger that persists to dir/token-accounting.json.
// A dir of "" disables disk persistence (used in tests).
func NewLedger(dir string, metrics *Metrics) *Ledger {
	return &Ledger{
		alerts:       make(map[string]*types.TokenAlert),
		dir:          dir,
		persistEvery: DefaultPersistEvery,
		metrics:      metrics,
	}
}

// Record appends a usage record, deriving cost if unset, and persists to
// disk every persistEvery records.
func (l *Ledger) Record(r types.TokenUsageRecord) types.TokenUsageRecord {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now()
	}
	r.TotalTokens = r.InputTokens + r.OutputTokens
	if r.Cost == 0 {
		r.Cost = CostFor(r.Model, r.TotalTokens)
	}
	if r.Currency == "" {
		r.Currency = "USD"
	}

	l.mu.Lock()
	l.records = append(l.records, r)
	l.sinceFlush++
	shouldFlush := l.sinceFlush >= l.persistEvery
	if shouldFlush {
		l.sinceFlush = 0
	}
	n := len(l.records)
	l.mu.Unlock()

	if l.metrics != nil {
		l.metrics.UsageTokensTotal.WithLabelValues(r.AgentID, string(r.Layer)).Add(float64(r.TotalTokens))
		l.metrics.UsageCostTotal.WithLabelValues(r.AgentID).Add(r.Cost)
		l.metrics.LedgerSize.Set(float64(n))
	}

	if shouldFlush && l.dir != "" {
		_ = l.Persist()
	}

	return r
}

// WindowTotals sums tokens and cost for agentID across records newer than since.
func (l *Ledger) WindowTotals(agentID string, since time.Time) (tokens int, cost float64, ops int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, r := range l.records {
		if r.AgentID != agentID || r.Timestamp.Before(since) {
			continue
		}
		tokens += r.TotalTokens
		cost += r.Cost
		ops++
	}
	return
}

// AllAgentIDs returns the distinct agent ids that have at least one record.
func (l *Ledger) AllAgentIDs() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	seen := make(map[string]bool)
	var out []string
	for _, r := range l.records {
		if !seen[r.AgentID] {
			seen[r.AgentID] = true
			out = append(out, r.AgentID)
		}
	}
	return out
}

// UpsertAlert raises or refreshes an alert, deduplicated by
// (agentOrComponent, kind). Returns the alert and whether it is newly raised.
func (l *Ledger) UpsertAlert(a types.TokenAlert) (types.TokenAlert, bool) {
	key := a.AgentOrComponent + "|" + string(a.Kind)

	l.mu.Lock()
	defer l.mu.Unlock()

	existing, ok := l.alerts[key]
	if ok && !existing.Resolved {
		existing.CurrentUsage = a.CurrentUsage
		existing.Timestamp = a.Timestamp
		return *existing, false
	}

	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	stored := a
	l.alerts[key] = &stored

	if l.metrics != nil {
		l.metrics.AlertsRaisedTotal.WithLabelValues(string(a.Kind)).Inc()
	}

	return stored, true
}

// ResolveAlert marks the alert for (agentOrComponent, kind) resolved, if present.
func (l *Ledger) ResolveAlert(agentOrComponent string, kind types.AlertKind) {
	key := agentOrComponent + "|" + string(kind)
	l.mu.Lock()
	defer l.mu.Unlock()
	if a, ok := l.alerts[key]; ok && !a.Resolved {
		a.Resolved = true
		a.ResolvedAt = time.Now()
	}
}

// ActiveAlerts returns every unresolved alert.
func (l *Ledger) ActiveAlerts() []types.TokenAlert {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []types.TokenAlert
	for _, a := range l.alerts {
		if !a.Resolved {
			out = append(out, *a)
		}
	}
	return out
}

// Persist writes the ledger and unresolved alerts to disk as JSON.
func (l *Ledger) Persist() error {
	if l.dir == "" {
		return nil
	}
	l.mu.Lock()
	state := persistedState{Records: append([]types.TokenUsageRecord{}, l.records...)}
	for _, a := range l.alerts {
		state.Alerts = append(state.Alerts, *a)
	}
	l.mu.Unlock()

	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(l.dir, "token-accounting.json"), data, 0o600)
}

// Load restores a previously persisted ledger from disk. A missing file
// is not an error; the ledger simply starts empty.
func (l *Ledger) Load() error {
	if l.dir == "" {
		return nil
	}
	data, err := os.ReadFile(filepath.Join(l.dir, "token-accounting.json"))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	var state persistedState
	if err := json.Unmarshal(data, &state); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = state.Records
	for _, a := range state.Alerts {
		a := a
		key := a.AgentOrComponent + "|" + string(a.Kind)
		l.alerts[key] = &a
	}
	return nil
}
