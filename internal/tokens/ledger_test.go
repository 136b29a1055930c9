package tokens

import (
	"testing"
	"time"

	"github.com/andywolf/prpctl/internal/types"
)

func TestRecordDerivesCostAndTotal(t *testing.T) {
	l := NewLedger("", nil)
	r := l.Record(types.TokenUsageRecord{
		AgentID:      "agent-1",
		Model:        "claude-sonnet-4",
		InputTokens:  1000,
		OutputTokens: 500,
	})
	if r.TotalTokens != 1500 {
		t.Fatalf("total = %d, want 1500", r.TotalTokens)
	}
	if r.Cost <= 0 {
		t.Fatalf("cost = %v, want > 0", r.Cost)
	}
	if r.Currency != "USD" {
		t.Fatalf("currency = %q", r.Currency)
	}
}

func TestCostForUnknownModelFallsBackToDefault(t *testing.T) {
	cost := CostFor("some-unlisted-model", 1_000_000)
	if cost != DefaultCostPerMillion {
		t.Fatalf("cost = %v, want default %v", cost, DefaultCostPerMillion)
	}
}

func TestWindowTotals(t *testing.T) {
	l := NewLedger("", nil)
	now := time.Now()
	l.Record(types.TokenUsageRecord{AgentID: "a1", Model: "gpt-4o", InputTokens: 100, Timestamp: now})
	l.Record(types.TokenUsageRecord{AgentID: "a1", Model: "gpt-4o", InputTokens: 200, Timestamp: now.Add(-48 * time.Hour)})
	l.Record(types.TokenUsageRecord{AgentID: "a2", Model: "gpt-4o", InputTokens: 300, Timestamp: now})

	tokens, _, ops := l.WindowTotals("a1", now.Add(-time.Hour))
	if tokens != 100 || ops != 1 {
		t.Fatalf("got tokens=%d ops=%d, want 100/1 (older a1 record outside window)", tokens, ops)
	}
}

func TestUpsertAlertDeduplicates(t *testing.T) {
	l := NewLedger("", nil)
	a1, fresh1 := l.UpsertAlert(types.TokenAlert{AgentOrComponent: "a1", Kind: types.AlertApproachingLimit, CurrentUsage: 65})
	a2, fresh2 := l.UpsertAlert(types.TokenAlert{AgentOrComponent: "a1", Kind: types.AlertApproachingLimit, CurrentUsage: 70})

	if !fresh1 || fresh2 {
		t.Fatalf("fresh1=%v fresh2=%v, want true/false", fresh1, fresh2)
	}
	if a1.ID != a2.ID {
		t.Fatalf("expected same alert id, got %s vs %s", a1.ID, a2.ID)
	}
	if a2.CurrentUsage != 70 {
		t.Fatalf("expected refreshed usage 70, got %v", a2.CurrentUsage)
	}
}

func TestResolveAlertThenRaiseAgainIsFresh(t *testing.T) {
	l := NewLedger("", nil)
	l.UpsertAlert(types.TokenAlert{AgentOrComponent: "a1", Kind: types.AlertLimitExceeded})
	l.ResolveAlert("a1", types.AlertLimitExceeded)

	active := l.ActiveAlerts()
	if len(active) != 0 {
		t.Fatalf("expected no active alerts after resolve, got %d", len(active))
	}

	_, fresh := l.UpsertAlert(types.TokenAlert{AgentOrComponent: "a1", Kind: types.AlertLimitExceeded})
	if !fresh {
		t.Fatal("expected re-raised alert after resolution to be fresh")
	}
}

func TestPersistAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	l := NewLedger(dir, nil)
	l.Record(types.TokenUsageRecord{AgentID: "a1", Model: "gpt-4o", InputTokens: 10})
	if err := l.Persist(); err != nil {
		t.Fatal(err)
	}

	l2 := NewLedger(dir, nil)
	if err := l2.Load(); err != nil {
		t.Fatal(err)
	}
	if len(l2.records) != 1 {
		t.Fatalf("loaded %d records, want 1", len(l2.records))
	}
}
