package gcp

import (
	"fmt"

	"github.com/andywolf/prpctl/internal/security"
)

// SecureCloudLogger wraps CloudLogger (or FallbackLogger) with automatic
// scrubbing of secrets and tokens before any message or field reaches the
// underlying writer.
type SecureCloudLogger struct {
	inner    LoggerInterface
	scrubber *security.Scrubber
}

// NewSecureCloudLogger wraps an existing LoggerInterface with scrubbing.
// Use it around whatever NewLogger/NewCloudLogger/NewFallbackLogger
// returns rather than constructing the underlying logger itself, so the
// environment-detection logic in NewLogger is exercised unchanged.
func NewSecureCloudLogger(inner LoggerInterface) *SecureCloudLogger {
	return &SecureCloudLogger{
		inner:    inner,
		scrubber: security.NewScrubber(),
	}
}

func (scl *SecureCloudLogger) scrubFields(fields map[string]interface{}) map[string]interface{} {
	if len(fields) == 0 {
		return fields
	}
	out := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		if s, ok := v.(string); ok {
			out[k] = scl.scrubber.Scrub(s)
			continue
		}
		out[k] = v
	}
	return out
}

// Log scrubs message and any string-valued fields, then delegates.
func (scl *SecureCloudLogger) Log(severity Severity, message string, fields map[string]interface{}) {
	scl.inner.Log(severity, scl.scrubber.Scrub(message), scl.scrubFields(fields))
}

// LogInfo scrubs and logs at INFO severity.
func (scl *SecureCloudLogger) LogInfo(message string) {
	scl.inner.LogInfo(scl.scrubber.Scrub(message))
}

// LogWarning scrubs and logs at WARNING severity.
func (scl *SecureCloudLogger) LogWarning(message string) {
	scl.inner.LogWarning(scl.scrubber.Scrub(message))
}

// LogError scrubs and logs at ERROR severity.
func (scl *SecureCloudLogger) LogError(message string) {
	scl.inner.LogError(scl.scrubber.Scrub(message))
}

// LogErrorf formats, scrubs, then logs at ERROR severity.
func (scl *SecureCloudLogger) LogErrorf(format string, args ...interface{}) {
	scl.LogError(fmt.Sprintf(format, args...))
}

// SetIteration delegates unchanged; iteration numbers carry no secrets.
func (scl *SecureCloudLogger) SetIteration(iteration int) {
	scl.inner.SetIteration(iteration)
}

// Flush delegates to the wrapped logger.
func (scl *SecureCloudLogger) Flush() error {
	return scl.inner.Flush()
}

// Close delegates to the wrapped logger.
func (scl *SecureCloudLogger) Close() error {
	return scl.inner.Close()
}

var _ LoggerInterface = (*SecureCloudLogger)(nil)
