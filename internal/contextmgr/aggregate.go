package contextmgr

import (
	"sort"
	"strings"
	"time"

	"github.com/andywolf/prpctl/internal/types"
)

// Aggregate combines sections gathered from multiple PRPs into one
// section list ready for Pack, per the requested strategy.
func Aggregate(strategy types.AggregationStrategy, sections []types.ContextSection, budget int, signal types.Signal) []types.ContextSection {
	deduped := resolveConflicts(sections)

	switch strategy {
	case types.AggregateMerge:
		return mergeByName(deduped)
	case types.AggregatePriorityBased:
		return priorityBased(deduped, budget)
	case types.AggregateTokenOptimized:
		return tokenOptimized(deduped, budget)
	case types.AggregateRelevanceScored:
		return relevanceScored(deduped, signal)
	default:
		return deduped
	}
}

// resolveConflicts merges same-named sections: content is joined with a
// delimiter, priority keeps the highest, permissions are unioned.
func resolveConflicts(sections []types.ContextSection) []types.ContextSection {
	byName := make(map[string]*types.ContextSection)
	var order []string

	for _, s := range sections {
		s := s
		existing, ok := byName[s.Name]
		if !ok {
			byName[s.Name] = &s
			order = append(order, s.Name)
			continue
		}
		if existing.Content != s.Content {
			existing.Content = existing.Content + "\n---\n" + s.Content
			existing.EstimatedTokens = estimateTokens(existing.Content)
		}
		if s.Priority > existing.Priority {
			existing.Priority = s.Priority
		}
		existing.Permissions = unionStrings(existing.Permissions, s.Permissions)
	}

	out := make([]types.ContextSection, 0, len(order))
	for _, name := range order {
		out = append(out, *byName[name])
	}
	return out
}

func unionStrings(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, list := range [][]string{a, b} {
		for _, v := range list {
			if !seen[v] {
				seen[v] = true
				out = append(out, v)
			}
		}
	}
	return out
}

// mergeByName concatenates sections with a separator, already done by
// resolveConflicts; merge's only remaining job is to recompute tokens,
// which resolveConflicts already did, so this is effectively identity.
func mergeByName(sections []types.ContextSection) []types.ContextSection {
	return sections
}

// priorityBased includes highest-priority sections first until the
// budget is exhausted, compressing required sections that would overflow
// rather than dropping them.
func priorityBased(sections []types.ContextSection, budget int) []types.ContextSection {
	ordered := append([]types.ContextSection{}, sections...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority > ordered[j].Priority
	})

	var out []types.ContextSection
	used := 0
	for _, s := range ordered {
		remaining := budget - used
		if s.EstimatedTokens <= remaining {
			out = append(out, s)
			used += s.EstimatedTokens
			continue
		}
		if s.Required {
			s.Content = compressToFit(s.Content, remaining)
			s.EstimatedTokens = estimateTokens(s.Content)
			s.Compressible = true
			out = append(out, s)
			used += s.EstimatedTokens
		}
	}
	return out
}

// tokenOptimized keeps every required section, then fills remaining
// budget with optional sections by priority descending.
func tokenOptimized(sections []types.ContextSection, budget int) []types.ContextSection {
	var required, optional []types.ContextSection
	for _, s := range sections {
		if s.Required {
			required = append(required, s)
		} else {
			optional = append(optional, s)
		}
	}
	sort.SliceStable(optional, func(i, j int) bool { return optional[i].Priority > optional[j].Priority })

	out := append([]types.ContextSection{}, required...)
	used := 0
	for _, s := range required {
		used += s.EstimatedTokens
	}
	for _, s := range optional {
		if used+s.EstimatedTokens > budget {
			continue
		}
		out = append(out, s)
		used += s.EstimatedTokens
	}
	return out
}

// relevanceScored computes a per-section relevance to the current signal
// and packs sections in descending relevance order.
func relevanceScored(sections []types.ContextSection, signal types.Signal) []types.ContextSection {
	now := time.Now()
	scored := append([]types.ContextSection{}, sections...)
	sort.SliceStable(scored, func(i, j int) bool {
		return relevance(scored[i], signal, now) > relevance(scored[j], signal, now)
	})
	return scored
}

// relevance combines base relevance, priority weight, recency decay,
// access frequency, keyword overlap with the signal, and tag count.
func relevance(s types.ContextSection, signal types.Signal, now time.Time) float64 {
	base := 1.0
	priorityWeight := float64(s.Priority) * 0.1

	recencyDecay := 0.0
	if !s.LastUpdated.IsZero() {
		ageHours := now.Sub(s.LastUpdated).Hours()
		recencyDecay = 1.0 / (1.0 + ageHours/24.0)
	}

	accessFrequency := float64(s.AccessCount) * 0.01

	keywordOverlap := 0.0
	sigText := strings.ToLower(string(signal.Kind) + " " + signalPayloadText(signal))
	contentLower := strings.ToLower(s.Content)
	for _, word := range strings.Fields(sigText) {
		if len(word) > 3 && strings.Contains(contentLower, word) {
			keywordOverlap += 0.05
		}
	}

	tagCount := float64(len(s.Tags)) * 0.02

	return base + priorityWeight + recencyDecay + accessFrequency + keywordOverlap + tagCount
}

func signalPayloadText(s types.Signal) string {
	switch s.Kind {
	case types.KindBlocker:
		if s.Payload.Blocker != nil {
			return s.Payload.Blocker.Reason
		}
	case types.KindProgress:
		if s.Payload.Progress != nil {
			return s.Payload.Progress.Summary
		}
	case types.KindTestFail:
		if s.Payload.TestFail != nil {
			return s.Payload.TestFail.Summary
		}
	case types.KindGeneric:
		if s.Payload.Generic != nil {
			return s.Payload.Generic.Raw
		}
	}
	return ""
}
