package attribution

import (
	"time"

	"github.com/agenttrace/agenttrace/internal/model"
	"github.com/agenttrace/agenttrace/internal/tracemodel"
)

// Signal weights used by scoreTrace to produce a numeric score. Mirrors the
// original blame scorer's weight table exactly (spec section 4.2).
const (
	weightCommitLink      = 40
	weightContentHash     = 30
	weightRevisionParent  = 15
	weightRevisionAncestor = 8 // reserved: no strategy currently proves ancestry, only direct parent equality
	weightRangeMatch      = 10
	weightRangeOverlap    = 5
	weightTimestamp       = 5
)

// Signal names recorded on an AttributionResult and checked by the tier
// mapper and evidence gate.
const (
	signalCommitLink      = "commit_link"
	signalContentHash     = "content_hash"
	signalRevisionParent  = "revision_parent"
	signalRevisionAncestor = "revision_ancestor"
	signalRangeMatch      = "range_match"
	signalRangeOverlap    = "range_overlap"
	signalTimestampMatch  = "timestamp_match"

	// signalLedger marks an attribution produced by the ledger short-circuit
	// (spec section 4.3) rather than by scoring candidates.
	signalLedger = "ledger"
)

// structuralSignals is the set of signals that count as "structural"
// evidence for the tier mapper — every signal except timestamp_match,
// which alone would false-positive on any manual edit made within the
// same loose time window as an unrelated AI trace.
var structuralSignals = map[string]bool{
	signalCommitLink:     true,
	signalContentHash:    true,
	signalRevisionParent: true,
	signalRevisionAncestor: true,
	signalRangeMatch:     true,
	signalRangeOverlap:   true,
}

// scoreTrace scores how well a candidate trace matches the blamed line,
// returning the numeric score and the list of signal names that fired.
func scoreTrace(
	trace model.StoredTrace,
	filePath string,
	lineNumber int,
	contentHash *string,
	blameParent *string,
	hasCommitLink bool,
	linkedTraceIDs []string,
) (int, []string) {
	score := 0
	var signals []string

	if hasCommitLink && containsString(linkedTraceIDs, trace.TraceID) {
		score += weightCommitLink
		signals = append(signals, signalCommitLink)
	}

	traceRevision := ""
	if trace.Trace.VCS != nil {
		traceRevision = trace.Trace.VCS.Revision
	}
	if traceRevision != "" && blameParent != nil && *blameParent != "" {
		if traceRevision == *blameParent {
			score += weightRevisionParent
			signals = append(signals, signalRevisionParent)
		} else if tracemodel.IsPrefixMatch(traceRevision, *blameParent) {
			score += weightRevisionParent
			signals = append(signals, signalRevisionParent)
		}
	}

	matchedFile := tracemodel.FindMatchingFile(trace.Trace.Files, filePath)
	if matchedFile != nil {
		switch tracemodel.CheckRange(matchedFile, lineNumber) {
		case "exact":
			score += weightRangeMatch
			signals = append(signals, signalRangeMatch)
		case "overlap":
			score += weightRangeOverlap
			signals = append(signals, signalRangeOverlap)
		}

		if contentHash != nil && *contentHash != "" {
			if fileHash := tracemodel.ExtractContentHash(matchedFile, lineNumber); fileHash != nil {
				if tracemodel.HashesMatch(*contentHash, *fileHash) {
					score += weightContentHash
					signals = append(signals, signalContentHash)
				}
			}
		}
	}

	if timestampPlausible(trace.Timestamp, blameParent) {
		score += weightTimestamp
		signals = append(signals, signalTimestampMatch)
	}

	return score, signals
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// computeTier maps a numeric score and its signal list to a confidence
// tier (1-6), or nil if the evidence is too weak to attribute at all.
//
// Tier 1 requires both commit_link and content_hash. Every tier requires
// at least one structural signal — timestamp_match alone never clears the
// bar, since it would fire for any manual edit within the loose time
// window of an unrelated AI trace.
func computeTier(score int, signals []string) *int {
	if score <= 0 {
		return nil
	}

	hasStructural := false
	for _, s := range signals {
		if structuralSignals[s] {
			hasStructural = true
			break
		}
	}
	if !hasStructural {
		return nil
	}

	tier := func(n int) *int { return &n }

	if score >= 95 && containsString(signals, signalCommitLink) && containsString(signals, signalContentHash) {
		return tier(1)
	}
	switch {
	case score >= 80:
		return tier(2)
	case score >= 60:
		return tier(3)
	case score >= 45:
		return tier(4)
	case score >= 25:
		return tier(5)
	default:
		return tier(6)
	}
}

// tierToConfidence converts a tier to its representative confidence value.
func tierToConfidence(tier *int) float64 {
	if tier == nil {
		return 0.0
	}
	switch *tier {
	case 1:
		return 1.0
	case 2:
		return 0.999
	case 3:
		return 0.95
	case 4:
		return 0.85
	case 5:
		return 0.70
	case 6:
		return 0.40
	default:
		return 0.0
	}
}

// hasAttributionEvidence applies the evidence gate: a winning trace is only
// attributed if it has line-range evidence, or commit-link + content-hash
// evidence (content proven), or commit-link + revision-parent evidence
// (the trace was linked to this commit and was at the parent revision —
// file membership was already confirmed by the candidate filter).
func hasAttributionEvidence(signals []string) bool {
	hasRange := containsString(signals, signalRangeMatch) || containsString(signals, signalRangeOverlap)
	hasStrong := containsString(signals, signalCommitLink) && containsString(signals, signalContentHash)
	hasCommitAndRevision := containsString(signals, signalCommitLink) && containsString(signals, signalRevisionParent)
	return hasRange || hasStrong || hasCommitAndRevision
}

// timestampPlausible is kept for documentation parity with the scoring
// rationale above: trace_timestamp only contributes a signal when it's a
// valid, non-zero timestamp and a blame_parent was supplied, meaning the
// candidate-selector's timestamp-window strategy (if it ran) already
// bounded the window to [commit-24h, commit+1h].
func timestampPlausible(ts time.Time, blameParent *string) bool {
	return !ts.IsZero() && blameParent != nil && *blameParent != ""
}
