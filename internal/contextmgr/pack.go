// Package contextmgr assembles bounded prompt context for agent
// invocations: it packs ContextSection candidates into a token budget,
// compresses or drops what doesn't fit, and runs single-flight
// compaction when overall usage crosses a high-water mark.
package contextmgr

import (
	"fmt"
	"sort"
	"strings"

	"github.com/andywolf/prpctl/internal/types"
)

// truncatedMarker is appended when a required, incompressible section
// must still be cut to fit the budget.
const truncatedMarker = "\n...[content truncated]..."

// Window describes the outcome of a pack: total budget, tokens used, and
// a per-section-name breakdown for diagnostics.
type Window struct {
	Total     int
	Used      int
	Available int
	Breakdown map[string]int
}

// Result is the packed prompt plus its window accounting.
type Result struct {
	Prompt  string
	Window  Window
	Dropped []string // section names skipped entirely
}

// Pack sorts sections (required first, then priority descending, then
// incompressible-before-compressible) and greedily fills budget tokens,
// compressing or truncating sections that don't fit as-is.
func Pack(sections []types.ContextSection, budget int) Result {
	ordered := append([]types.ContextSection{}, sections...)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Required != ordered[j].Required {
			return ordered[i].Required
		}
		if ordered[i].Priority != ordered[j].Priority {
			return ordered[i].Priority > ordered[j].Priority
		}
		return !ordered[i].Compressible && ordered[j].Compressible
	})

	var parts []string
	breakdown := make(map[string]int)
	used := 0
	var dropped []string

	for _, s := range ordered {
		remaining := budget - used
		if remaining <= 0 {
			if s.Required {
				// No room left at all for a required section: emit just the marker.
				parts = append(parts, s.Name+":"+truncatedMarker)
				breakdown[s.Name] = len(truncatedMarker) / 4
			} else {
				dropped = append(dropped, s.Name)
			}
			continue
		}

		if s.EstimatedTokens <= remaining {
			parts = append(parts, formatSection(s.Name, s.Content))
			breakdown[s.Name] = s.EstimatedTokens
			used += s.EstimatedTokens
			continue
		}

		switch {
		case s.Compressible:
			compressed := compressToFit(s.Content, remaining)
			parts = append(parts, formatSection(s.Name, compressed))
			tok := estimateTokens(compressed)
			breakdown[s.Name] = tok
			used += tok
		case s.Required:
			truncated := truncateToFit(s.Content, remaining) + truncatedMarker
			parts = append(parts, formatSection(s.Name, truncated))
			tok := estimateTokens(truncated)
			breakdown[s.Name] = tok
			used += tok
			// Required+incompressible overflow stops further packing per the
			// "truncate and stop" rule: nothing lower-priority fits either.
			for _, rest := range ordered {
				if rest.Name != s.Name {
					dropped = append(dropped, rest.Name)
				}
			}
			goto done
		default:
			dropped = append(dropped, s.Name)
		}
	}

done:
	return Result{
		Prompt: strings.Join(parts, "\n\n"),
		Window: Window{
			Total:     budget,
			Used:      used,
			Available: budget - used,
			Breakdown: breakdown,
		},
		Dropped: dropped,
	}
}

func formatSection(name, content string) string {
	return fmt.Sprintf("## %s\n%s", name, content)
}

func estimateTokens(s string) int {
	return len(s) / 4
}

// truncateToFit cuts content to roughly fit within remaining tokens,
// preferring a sentence boundary near the cut point.
func truncateToFit(content string, remainingTokens int) string {
	maxChars := remainingTokens * 4
	if maxChars <= 0 {
		return ""
	}
	if len(content) <= maxChars {
		return content
	}
	cut := content[:maxChars]
	if idx := strings.LastIndexAny(cut, ".!?\n"); idx > maxChars/2 {
		cut = cut[:idx+1]
	}
	return cut
}

// compressToFit is the compressible-section counterpart: summarizes by
// truncation plus a delimiter-joined condensed form when content carries
// multiple paragraphs.
func compressToFit(content string, remainingTokens int) string {
	paras := strings.Split(content, "\n\n")
	if len(paras) > 1 {
		content = strings.Join(paras, " // ")
	}
	return truncateToFit(content, remainingTokens)
}
