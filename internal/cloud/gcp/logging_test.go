package gcp

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestCloudLogger_LogInfo(t *testing.T) {
	var buf bytes.Buffer
	cl := NewCloudLogger("sess-1", WithWriter(&buf))

	cl.LogInfo("hello world")

	var entry LogEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to unmarshal log line: %v", err)
	}
	if entry.Severity != SeverityInfo {
		t.Errorf("severity = %v, want %v", entry.Severity, SeverityInfo)
	}
	if entry.Message != "hello world" {
		t.Errorf("message = %q, want %q", entry.Message, "hello world")
	}
	if entry.SessionID != "sess-1" {
		t.Errorf("session_id = %q, want %q", entry.SessionID, "sess-1")
	}
}

func TestCloudLogger_LogWarningAndError(t *testing.T) {
	var buf bytes.Buffer
	cl := NewCloudLogger("sess-1", WithWriter(&buf))

	cl.LogWarning("careful")
	cl.LogError("boom")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 log lines, got %d", len(lines))
	}

	var warn, errEntry LogEntry
	if err := json.Unmarshal([]byte(lines[0]), &warn); err != nil {
		t.Fatalf("unmarshal warning: %v", err)
	}
	if err := json.Unmarshal([]byte(lines[1]), &errEntry); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if warn.Severity != SeverityWarning {
		t.Errorf("severity = %v, want %v", warn.Severity, SeverityWarning)
	}
	if errEntry.Severity != SeverityError {
		t.Errorf("severity = %v, want %v", errEntry.Severity, SeverityError)
	}
}

func TestCloudLogger_WithLabels(t *testing.T) {
	var buf bytes.Buffer
	cl := NewCloudLogger("sess-1", WithWriter(&buf), WithLabels(map[string]string{"worktree": "feature-x"}))

	cl.LogInfo("tagged")

	var entry LogEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if entry.Labels["worktree"] != "feature-x" {
		t.Errorf("labels[worktree] = %q, want %q", entry.Labels["worktree"], "feature-x")
	}
	if entry.Labels["session_id"] != "sess-1" {
		t.Errorf("labels[session_id] = %q, want %q", entry.Labels["session_id"], "sess-1")
	}
}

func TestCloudLogger_SetIteration(t *testing.T) {
	var buf bytes.Buffer
	cl := NewCloudLogger("sess-1", WithWriter(&buf))

	cl.SetIteration(7)
	cl.LogInfo("iterated")

	var entry LogEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if entry.Iteration != 7 {
		t.Errorf("iteration = %d, want 7", entry.Iteration)
	}
}

func TestCloudLogger_CloseStopsWrites(t *testing.T) {
	var buf bytes.Buffer
	cl := NewCloudLogger("sess-1", WithWriter(&buf))

	if err := cl.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	cl.LogInfo("should not appear")

	if buf.Len() != 0 {
		t.Errorf("expected no output after Close, got %q", buf.String())
	}
}

func TestCloudLogger_FlushCallsFlushFn(t *testing.T) {
	called := false
	cl := NewCloudLogger("sess-1", WithFlushFunc(func() error {
		called = true
		return nil
	}))

	if err := cl.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if !called {
		t.Error("expected flush function to be called")
	}
}

func TestFallbackLogger_WritesStructuredJSON(t *testing.T) {
	var buf bytes.Buffer
	fl := NewFallbackLogger(&buf, "sess-2")

	fl.LogInfo("fallback message")

	var entry LogEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if entry.Message != "fallback message" {
		t.Errorf("message = %q, want %q", entry.Message, "fallback message")
	}
	if entry.SessionID != "sess-2" {
		t.Errorf("session_id = %q, want %q", entry.SessionID, "sess-2")
	}
}

func TestNewLogger_FallsBackOffGCP(t *testing.T) {
	// The test environment has no metadata server, so NewLogger must fall
	// back to the FallbackLogger rather than blocking or panicking.
	logger := NewLogger(context.Background(), "sess-3")
	if _, ok := logger.(*FallbackLogger); !ok {
		t.Fatalf("expected *FallbackLogger off GCP, got %T", logger)
	}
}

func TestSanitizeForLog(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"ghp_abcdef1234567890", "[REDACTED_GITHUB_TOKEN]"},
		{"Bearer abc123", "Bearer [REDACTED]"},
		{"plain text", "plain text"},
	}
	for _, tt := range tests {
		if got := SanitizeForLog(tt.in); got != tt.want {
			t.Errorf("SanitizeForLog(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatLogEntry(t *testing.T) {
	entry := LogEntry{Severity: SeverityInfo, Message: "formatted"}
	out := FormatLogEntry(entry)
	if !strings.Contains(out, "formatted") {
		t.Errorf("expected formatted output to contain message, got %q", out)
	}
}

var (
	_ LoggerInterface = (*CloudLogger)(nil)
	_ LoggerInterface = (*FallbackLogger)(nil)
)
