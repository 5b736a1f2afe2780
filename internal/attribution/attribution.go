// Package attribution is the AI-blame engine: given git-blame data for a
// line (which commit introduced it, the commit's parent, content hash,
// timestamp) it scores candidate traces and assigns a confidence tier
// (1-6) expressing how certain the engine is that the line originated
// from an AI conversation.
//
// Tier definitions (by weighted score; see computeTier):
//
//	1  Provably certain     (100%)  — score >= 95 with commit link + content hash
//	2  Effectively certain  (99.9%) — score >= 80
//	3  Very high confidence (95%)   — score >= 60
//	4  High confidence      (85%)   — score >= 45
//	5  Medium confidence    (70%)   — score >= 25
//	6  Suggestive           (40%)   — any lower positive score
//
// Without a commit link the highest reachable score is 60 (content hash +
// revision parent + range match + timestamp), so tiers 1 and 2 always
// involve a commit link.
package attribution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/agenttrace/agenttrace/internal/model"
	"github.com/agenttrace/agenttrace/internal/storage"
)

// Engine attributes blamed lines to the AI traces most likely responsible
// for them.
type Engine struct {
	db     *storage.DB
	logger *slog.Logger
}

// New builds an Engine backed by db.
func New(db *storage.DB, logger *slog.Logger) *Engine {
	return &Engine{db: db, logger: logger}
}

// AttributeLine attributes a single blamed line, returning a nil-tier
// (unattributed) result rather than an error when no trace can be matched
// — failure to attribute is an expected, common outcome, not a fault.
func (e *Engine) AttributeLine(ctx context.Context, projectID, filePath string, line model.BlameLine) (model.AttributionResult, error) {
	var linkedTraceIDs []string
	commitLink, err := e.db.GetCommitLink(ctx, projectID, line.CommitSHA)
	hasCommitLink := err == nil
	if hasCommitLink {
		linkedTraceIDs = commitLink.TraceIDs
		if traceID, ok := ledgerLookup(commitLink.Ledger, line.StartLine, line.EndLine); ok {
			return e.buildLedgerResult(ctx, projectID, traceID, filePath, line), nil
		}
	} else if !errors.Is(err, storage.ErrNotFound) {
		return model.AttributionResult{}, fmt.Errorf("attribution: lookup commit link: %w", err)
	}

	candidates, err := selectCandidates(ctx, e.db, projectID, filePath, line.ParentSHA, line.Timestamp, linkedTraceIDs)
	if err != nil {
		return model.AttributionResult{}, err
	}
	if len(candidates) == 0 {
		return model.NoAttribution(line.StartLine, line.EndLine), nil
	}

	var bestScore int
	var bestTrace *model.StoredTrace
	var bestSignals []string

	for i := range candidates {
		trace := candidates[i]
		score, signals := scoreTrace(trace, filePath, line.StartLine, line.ContentHash, line.ParentSHA, hasCommitLink, linkedTraceIDs)
		if score > bestScore {
			bestScore = score
			bestTrace = &candidates[i]
			bestSignals = signals
		}
	}

	if bestTrace == nil || bestScore <= 0 {
		return model.NoAttribution(line.StartLine, line.EndLine), nil
	}
	if !hasAttributionEvidence(bestSignals) {
		return model.NoAttribution(line.StartLine, line.EndLine), nil
	}

	tier := computeTier(bestScore, bestSignals)
	if tier == nil {
		return model.NoAttribution(line.StartLine, line.EndLine), nil
	}
	confidence := tierToConfidence(tier)

	result := buildResult(ctx, e.db, projectID, tier, confidence, *bestTrace, filePath, line.StartLine, bestSignals, candidates)
	result.StartLine, result.EndLine = line.StartLine, line.EndLine
	return result, nil
}

// buildLedgerResult produces the tier-1 attribution named by a ledger entry
// directly, bypassing scoring (spec section 4.3). The ledger is itself the
// authoritative mapping, so this holds even when the named trace wouldn't
// otherwise have scored — a missing or unreadable trace record degrades to
// a bare tier-1 result rather than failing the request.
func (e *Engine) buildLedgerResult(ctx context.Context, projectID, traceID, filePath string, line model.BlameLine) model.AttributionResult {
	tier := 1
	stored, err := e.db.GetTrace(ctx, projectID, traceID)
	if err != nil {
		id := traceID
		return model.AttributionResult{
			StartLine:       line.StartLine,
			EndLine:         line.EndLine,
			Tier:            &tier,
			Confidence:      1.0,
			TraceID:         &id,
			ContributorType: "unknown",
			Signals:         []string{signalLedger},
		}
	}
	result := buildResult(ctx, e.db, projectID, &tier, 1.0, stored, filePath, line.StartLine, []string{signalLedger}, nil)
	result.StartLine, result.EndLine = line.StartLine, line.EndLine
	return result
}

// Blame attributes every blamed segment of a file and merges adjacent
// segments that resolve to the same trace and tier (spec section 4.5).
// lines must be ordered by start_line.
func (e *Engine) Blame(ctx context.Context, projectID, filePath string, lines []model.BlameLine) ([]model.AttributionResult, error) {
	results := make([]model.AttributionResult, 0, len(lines))
	for _, line := range lines {
		result, err := e.AttributeLine(ctx, projectID, filePath, line)
		if err != nil {
			return nil, fmt.Errorf("attribution: blame %s:%d-%d: %w", filePath, line.StartLine, line.EndLine, err)
		}
		results = append(results, result)
	}
	return mergeAdjacent(results), nil
}
