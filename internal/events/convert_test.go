package events

import (
	"testing"
	"time"

	"github.com/andywolf/prpctl/internal/types"
)

func TestFromSignalsDevelopmentStdout(t *testing.T) {
	now := time.Now()
	params := ConvertParams{SessionID: "wa/x", Iteration: 1, Adapter: "robo-implementer", Timestamp: now}

	sigs := []types.Signal{
		{
			Timestamp: now,
			Payload: types.SignalPayload{
				Kind:        types.KindDevelopment,
				Development: &types.DevelopmentPayload{Stream: "stdout", Line: "running tests"},
			},
		},
	}

	got := FromSignals(sigs, params)
	if len(got) != 1 {
		t.Fatalf("got %d events, want 1", len(got))
	}
	if got[0].Type != EventText || got[0].Content != "running tests" {
		t.Fatalf("event = %+v", got[0])
	}
}

func TestFromSignalsDevelopmentStderrIsError(t *testing.T) {
	sigs := []types.Signal{
		{Payload: types.SignalPayload{
			Kind:        types.KindDevelopment,
			Development: &types.DevelopmentPayload{Stream: "stderr", Line: "panic: boom"},
		}},
	}
	got := FromSignals(sigs, ConvertParams{})
	if len(got) != 1 || got[0].Type != EventError {
		t.Fatalf("got %+v, want a single error event", got)
	}
}

func TestFromSignalsBlockerAndCrash(t *testing.T) {
	sigs := []types.Signal{
		{Payload: types.SignalPayload{Kind: types.KindBlocker, Blocker: &types.BlockerPayload{Reason: "waiting on review"}}},
		{Payload: types.SignalPayload{Kind: types.KindCrash, Crash: &types.CrashPayload{ExitCode: 1, Tail: "stack trace"}}},
	}

	got := FromSignals(sigs, ConvertParams{})
	if len(got) != 2 {
		t.Fatalf("got %d events, want 2", len(got))
	}
	if got[0].Type != EventError || got[0].Content != "waiting on review" {
		t.Fatalf("blocker event = %+v", got[0])
	}
	if got[1].Type != EventError || got[1].Content != "stack trace" || got[1].Summary != "crash (exit 1)" {
		t.Fatalf("crash event = %+v", got[1])
	}
}

func TestFromSignalsEmptyPayloadsAreSkipped(t *testing.T) {
	sigs := []types.Signal{
		{Payload: types.SignalPayload{Kind: types.KindDevelopment}},
		{Payload: types.SignalPayload{Kind: types.KindGeneric}},
		{Payload: types.SignalPayload{Kind: "unknown"}},
	}
	if got := FromSignals(sigs, ConvertParams{}); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
}

func TestFromSignalsNilAndEmptyInput(t *testing.T) {
	if got := FromSignals(nil, ConvertParams{}); got != nil {
		t.Errorf("expected nil for nil input, got %v", got)
	}
	if got := FromSignals([]types.Signal{}, ConvertParams{}); got != nil {
		t.Errorf("expected nil for empty input, got %v", got)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		input    string
		maxLen   int
		expected string
	}{
		{"hello", 10, "hello"},
		{"hello world", 8, "hello..."},
		{"abc", 3, "abc"},
		{"abcd", 3, "abc"},
		{"", 10, ""},
		{"hello", 0, ""},
	}

	for _, tc := range tests {
		result := truncate(tc.input, tc.maxLen)
		if result != tc.expected {
			t.Errorf("truncate(%q, %d) = %q, want %q", tc.input, tc.maxLen, result, tc.expected)
		}
	}
}
