package attribution

// A ledger is a client-supplied, authoritative per-commit attribution map:
// {"ranges": [{"start_line": int, "end_line": int, "trace_id": string}, ...]}.
// Its format is opaque to the engine beyond these identifiers (spec section
// 4.3) — anything else present in the JSON object is ignored.

// ledgerLookup searches a commit link's ledger for a range entry that
// contains [startLine, endLine], returning the trace_id it names. Malformed
// or absent entries are skipped silently; this lookup never errors.
func ledgerLookup(ledger map[string]any, startLine, endLine int) (string, bool) {
	if ledger == nil {
		return "", false
	}
	rawRanges, ok := ledger["ranges"].([]any)
	if !ok {
		return "", false
	}
	for _, raw := range rawRanges {
		entry, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		rangeStart, ok1 := entry["start_line"].(float64)
		rangeEnd, ok2 := entry["end_line"].(float64)
		traceID, ok3 := entry["trace_id"].(string)
		if !ok1 || !ok2 || !ok3 || traceID == "" {
			continue
		}
		if startLine >= int(rangeStart) && endLine <= int(rangeEnd) {
			return traceID, true
		}
	}
	return "", false
}
