// Package signals extracts typed Signal values from raw markdown/log
// content. Callers feed it file bytes or agent stdout; it returns the
// Signal values the scanner and supervisor publish to the bus.
package signals

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/andywolf/prpctl/internal/types"
)

// codePattern matches a bracketed two-letter (or named) signal code,
// optionally followed on the same line by a priority annotation such as
// "priority 9" or "p9". Examples it matches: "[Cc]", "[Bb] priority 9",
// "[crash]", "[HF] p7 handoff ready".
var codePattern = regexp.MustCompile(`(?m)^.*\[(\w+)\](?:[^\n]*?\b(?:priority|p)\s*(\d+))?[^\n]*$`)

// registryEntry binds a raw bracket code to its canonical kind and
// default priority when no explicit annotation is present.
type registryEntry struct {
	kind            types.SignalKind
	defaultPriority int
}

// registry is the finite set of recognized two-letter (or named) signal
// codes. Unknown codes still produce a Signal, tagged KindGeneric, rather
// than being silently dropped — content authors get a best-effort capture
// even for codes outside the registry.
var registry = map[string]registryEntry{
	"Cc":    {types.KindComplete, 6},
	"Bb":    {types.KindBlocker, 9},
	"HF":    {types.KindHandoff, 5},
	"crash": {types.KindCrash, 10},
	"Pp":    {types.KindProgress, 3},
	"Tf":    {types.KindTestFail, 7},
}

// Extract scans content for bracketed signal codes and returns one Signal
// per match, tagged with source and the given metadata (typically
// worktree name and file path). Re-running Extract on identical content
// yields an identical list: extraction is a pure function of the bytes.
func Extract(content, source string, metadata map[string]string) []types.Signal {
	matches := codePattern.FindAllStringSubmatch(content, -1)
	out := make([]types.Signal, 0, len(matches))

	for i, m := range matches {
		code := m[1]
		entry, known := registry[code]

		kind := types.KindGeneric
		priority := 5
		if known {
			kind = entry.kind
			priority = entry.defaultPriority
		}
		if len(m) > 2 && m[2] != "" {
			if p, err := strconv.Atoi(m[2]); err == nil && p >= 1 && p <= 10 {
				priority = p
			}
		}

		md := make(map[string]string, len(metadata))
		for k, v := range metadata {
			md[k] = v
		}

		out = append(out, types.Signal{
			ID:       fmt.Sprintf("%s-%d", source, i),
			Code:     types.SignalCode(code),
			Kind:     kind,
			Priority: priority,
			Source:   source,
			Payload:  payloadFor(kind, strings.TrimSpace(m[0])),
			Metadata: md,
		})
	}

	return out
}

// payloadFor builds the tagged-union SignalPayload variant matching kind,
// carrying the matched line as the best-effort structured content.
func payloadFor(kind types.SignalKind, line string) types.SignalPayload {
	p := types.SignalPayload{Kind: kind}
	switch kind {
	case types.KindBlocker:
		p.Blocker = &types.BlockerPayload{Reason: line}
	case types.KindProgress:
		p.Progress = &types.ProgressPayload{Summary: line}
	case types.KindTestFail:
		p.TestFail = &types.TestFailPayload{Summary: line}
	case types.KindComplete:
		p.Complete = &types.CompletePayload{Summary: line}
	case types.KindCrash:
		p.Crash = &types.CrashPayload{Tail: line}
	default:
		p.Generic = &types.GenericPayload{Raw: line}
	}
	return p
}

// IsKnownCode reports whether code is in the finite signal registry.
func IsKnownCode(code string) bool {
	_, ok := registry[code]
	return ok
}
