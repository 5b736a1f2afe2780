package attribution

import "github.com/agenttrace/agenttrace/internal/model"

// mergeAdjacent collapses adjacent blame segments that share the same
// trace attribution (same trace_id, same tier — including both nil, for
// two unattributed segments) into a single wider segment, in one
// left-to-right pass. Segments must already be ordered by start_line.
func mergeAdjacent(results []model.AttributionResult) []model.AttributionResult {
	if len(results) == 0 {
		return results
	}

	merged := make([]model.AttributionResult, 0, len(results))
	merged = append(merged, results[0])

	for _, next := range results[1:] {
		last := &merged[len(merged)-1]
		if sameAttribution(*last, next) && next.StartLine <= last.EndLine+1 {
			last.EndLine = next.EndLine
			continue
		}
		merged = append(merged, next)
	}

	return merged
}

// sameAttribution reports whether two segments were attributed to the same
// trace at the same tier — the only condition under which adjacent
// segments are merged.
func sameAttribution(a, b model.AttributionResult) bool {
	if (a.Tier == nil) != (b.Tier == nil) {
		return false
	}
	if a.Tier != nil && *a.Tier != *b.Tier {
		return false
	}
	if (a.TraceID == nil) != (b.TraceID == nil) {
		return false
	}
	if a.TraceID != nil && *a.TraceID != *b.TraceID {
		return false
	}
	return true
}
