package gcp

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestSecureCloudLogger_ScrubsSecrets(t *testing.T) {
	var buf bytes.Buffer
	inner := NewCloudLogger("sess-1", WithWriter(&buf))
	secure := NewSecureCloudLogger(inner)

	secure.LogInfo("token api_key=abcdefghijklmnopqrstuvwxyz1234567890 issued")

	var entry LogEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if strings.Contains(entry.Message, "abcdefghijklmnopqrstuvwxyz1234567890") {
		t.Errorf("expected secret to be scrubbed, got %q", entry.Message)
	}
	if !strings.Contains(entry.Message, "REDACTED") {
		t.Errorf("expected redaction marker, got %q", entry.Message)
	}
}

func TestSecureCloudLogger_PassesThroughCleanMessages(t *testing.T) {
	var buf bytes.Buffer
	inner := NewCloudLogger("sess-1", WithWriter(&buf))
	secure := NewSecureCloudLogger(inner)

	secure.LogError("worktree scan failed: no such file")

	var entry LogEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if entry.Message != "worktree scan failed: no such file" {
		t.Errorf("message was altered: %q", entry.Message)
	}
	if entry.Severity != SeverityError {
		t.Errorf("severity = %v, want %v", entry.Severity, SeverityError)
	}
}

var _ LoggerInterface = (*SecureCloudLogger)(nil)
