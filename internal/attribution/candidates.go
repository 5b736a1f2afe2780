package attribution

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/agenttrace/agenttrace/internal/model"
	"github.com/agenttrace/agenttrace/internal/storage"
	"github.com/agenttrace/agenttrace/internal/tracemodel"
)

// minCandidatesBeforeTimestampFallback is the threshold below which the
// selector also queries the timestamp-window strategy. Once the
// commit-link and parent-revision strategies have accumulated this many
// candidates, the timestamp fallback adds noise without adding precision.
const minCandidatesBeforeTimestampFallback = 5

// timestampWindowBefore and timestampWindowAfter bound the timestamp-window
// fallback strategy: traces authored up to a day before the blamed commit,
// or up to an hour after (clock skew, or the commit recording an edit made
// just before `git commit` ran).
const (
	timestampWindowBefore = 24 * time.Hour
	timestampWindowAfter  = 1 * time.Hour
)

// selectCandidates gathers candidate traces for a blamed line using three
// search strategies: the commit-link and parent-revision lookups run
// concurrently, and the timestamp-window fallback runs after them only when
// fewer than minCandidatesBeforeTimestampFallback candidates were found. It
// merges the results in that priority order, deduplicates them by trace_id
// (first strategy to find a trace wins its slot), then
// filters to traces that actually touch filePath — a commit link can name
// traces that only touched other files in the same commit.
func selectCandidates(
	ctx context.Context,
	db *storage.DB,
	projectID, filePath string,
	blameParent *string,
	blameTimestamp *string,
	linkedTraceIDs []string,
) ([]model.StoredTrace, error) {
	var byIDs, byRevision []model.StoredTrace

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if len(linkedTraceIDs) == 0 {
			return nil
		}
		traces, err := db.FindTracesByIDs(gctx, projectID, linkedTraceIDs)
		if err != nil {
			return fmt.Errorf("attribution: commit-link candidates: %w", err)
		}
		byIDs = traces
		return nil
	})
	g.Go(func() error {
		if blameParent == nil || *blameParent == "" {
			return nil
		}
		traces, err := db.FindTracesByRevision(gctx, projectID, *blameParent)
		if err != nil {
			return fmt.Errorf("attribution: revision candidates: %w", err)
		}
		byRevision = traces
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var candidates []model.StoredTrace
	add := func(traces []model.StoredTrace) {
		for _, t := range traces {
			if t.TraceID == "" || seen[t.TraceID] {
				continue
			}
			seen[t.TraceID] = true
			candidates = append(candidates, t)
		}
	}
	add(byIDs)
	add(byRevision)

	if blameTimestamp != nil && *blameTimestamp != "" && len(candidates) < minCandidatesBeforeTimestampFallback {
		ts, err := time.Parse(time.RFC3339, *blameTimestamp)
		if err == nil {
			since := ts.Add(-timestampWindowBefore)
			until := ts.Add(timestampWindowAfter)
			traces, err := db.FindTracesInTimeWindow(ctx, projectID, since, until)
			if err != nil {
				return nil, fmt.Errorf("attribution: timestamp-window candidates: %w", err)
			}
			add(traces)
		}
	}

	filtered := candidates[:0]
	for _, t := range candidates {
		if tracemodel.FindMatchingFile(t.Trace.Files, filePath) != nil {
			filtered = append(filtered, t)
		}
	}
	return filtered, nil
}
