package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/agenttrace/agenttrace/internal/model"
)

// maxCandidateRows bounds the parent-revision and timestamp-window
// candidate-selector queries so a pathological project (or a degenerate
// timestamp window) cannot force the attribution engine to score thousands
// of traces for a single blamed line. The commit-link query has no row cap;
// it returns at most the traces whose IDs it is given.
const maxCandidateRows = 200

// InsertTrace persists a single trace, keyed by (project_id, trace_id).
// A duplicate trace_id is a no-op — ingestion is idempotent by design.
func (db *DB) InsertTrace(ctx context.Context, projectID, userID string, trace model.Trace) error {
	record, err := json.Marshal(trace)
	if err != nil {
		return fmt.Errorf("storage: marshal trace record: %w", err)
	}
	vcs, err := json.Marshal(trace.VCS)
	if err != nil {
		return fmt.Errorf("storage: marshal vcs: %w", err)
	}
	tool, err := json.Marshal(trace.Tool)
	if err != nil {
		return fmt.Errorf("storage: marshal tool: %w", err)
	}
	files, err := json.Marshal(trace.Files)
	if err != nil {
		return fmt.Errorf("storage: marshal files: %w", err)
	}
	metadata, err := json.Marshal(trace.Metadata)
	if err != nil {
		return fmt.Errorf("storage: marshal metadata: %w", err)
	}

	_, err = db.pool.Exec(ctx,
		`INSERT INTO traces (
		     project_id, user_id,
		     trace_id, version, trace_timestamp,
		     vcs, tool, files, metadata,
		     trace_record
		 ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (project_id, trace_id) DO NOTHING`,
		projectID, userID,
		trace.ID, trace.Version, trace.Timestamp,
		vcs, tool, files, metadata,
		record,
	)
	if err != nil {
		return fmt.Errorf("storage: insert trace: %w", err)
	}
	return nil
}

// GetTrace returns a single trace record with ownership info, or ErrNotFound.
func (db *DB) GetTrace(ctx context.Context, projectID, traceID string) (model.StoredTrace, error) {
	var st model.StoredTrace
	err := db.pool.QueryRow(ctx,
		`SELECT trace_record, user_id FROM traces WHERE project_id = $1 AND trace_id = $2 LIMIT 1`,
		projectID, traceID,
	).Scan(&st.Raw, &st.UserID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.StoredTrace{}, ErrNotFound
		}
		return model.StoredTrace{}, fmt.Errorf("storage: get trace: %w", err)
	}
	st.ProjectID = projectID
	if err := json.Unmarshal(st.Raw, &st.Trace); err != nil {
		return model.StoredTrace{}, fmt.Errorf("storage: unmarshal trace record: %w", err)
	}
	st.TraceID = st.Trace.ID
	st.Version = st.Trace.Version
	st.Timestamp = st.Trace.Timestamp
	return st, nil
}

// ListTraces returns a paginated slice of traces plus the total matching
// count, optionally filtered by a [since, until] timestamp window.
func (db *DB) ListTraces(ctx context.Context, projectID string, since, until *time.Time, limit, offset int) ([]model.Trace, int, error) {
	filters := []string{"project_id = $1"}
	args := []any{projectID}

	if since != nil {
		args = append(args, *since)
		filters = append(filters, fmt.Sprintf("trace_timestamp >= $%d", len(args)))
	}
	if until != nil {
		args = append(args, *until)
		filters = append(filters, fmt.Sprintf("trace_timestamp <= $%d", len(args)))
	}

	where := filters[0]
	for _, f := range filters[1:] {
		where += " AND " + f
	}

	listArgs := append(append([]any{}, args...), limit, offset)
	rows, err := db.pool.Query(ctx,
		fmt.Sprintf(`SELECT trace_record FROM traces WHERE %s ORDER BY trace_timestamp DESC LIMIT $%d OFFSET $%d`,
			where, len(listArgs)-1, len(listArgs)),
		listArgs...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("storage: list traces: %w", err)
	}
	defer rows.Close()

	var traces []model.Trace
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, 0, fmt.Errorf("storage: scan trace: %w", err)
		}
		var t model.Trace
		if err := json.Unmarshal(raw, &t); err != nil {
			return nil, 0, fmt.Errorf("storage: unmarshal trace: %w", err)
		}
		traces = append(traces, t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("storage: list traces: %w", err)
	}

	var total int
	if err := db.pool.QueryRow(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM traces WHERE %s`, where), args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("storage: count traces: %w", err)
	}

	return traces, total, nil
}

// FindTracesByIDs fetches the traces named by traceIDs directly — the
// commit-link candidate-selector strategy (spec section 4.1, strategy 1).
func (db *DB) FindTracesByIDs(ctx context.Context, projectID string, traceIDs []string) ([]model.StoredTrace, error) {
	if len(traceIDs) == 0 {
		return nil, nil
	}
	rows, err := db.pool.Query(ctx,
		`SELECT trace_id, version, trace_timestamp, trace_record
		 FROM traces WHERE project_id = $1 AND trace_id = ANY($2)`,
		projectID, traceIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: find traces by ids: %w", err)
	}
	return scanStoredTraces(rows, projectID)
}

// FindTracesByRevision fetches traces whose vcs.revision equals revision —
// the parent-revision candidate-selector strategy (spec section 4.1,
// strategy 2).
func (db *DB) FindTracesByRevision(ctx context.Context, projectID, revision string) ([]model.StoredTrace, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT trace_id, version, trace_timestamp, trace_record
		 FROM traces WHERE project_id = $1 AND vcs ->> 'revision' = $2
		 ORDER BY trace_timestamp DESC LIMIT $3`,
		projectID, revision, maxCandidateRows,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: find traces by revision: %w", err)
	}
	return scanStoredTraces(rows, projectID)
}

// FindTracesInTimeWindow fetches traces whose trace_timestamp falls in
// [since, until] — the timestamp-window fallback candidate-selector
// strategy (spec section 4.1, strategy 3), capped at maxCandidateRows.
func (db *DB) FindTracesInTimeWindow(ctx context.Context, projectID string, since, until time.Time) ([]model.StoredTrace, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT trace_id, version, trace_timestamp, trace_record
		 FROM traces WHERE project_id = $1 AND trace_timestamp BETWEEN $2 AND $3
		 ORDER BY trace_timestamp DESC LIMIT $4`,
		projectID, since, until, maxCandidateRows,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: find traces in time window: %w", err)
	}
	return scanStoredTraces(rows, projectID)
}

func scanStoredTraces(rows pgx.Rows, projectID string) ([]model.StoredTrace, error) {
	defer rows.Close()

	var out []model.StoredTrace
	for rows.Next() {
		var st model.StoredTrace
		if err := rows.Scan(&st.TraceID, &st.Version, &st.Timestamp, &st.Raw); err != nil {
			return nil, fmt.Errorf("storage: scan trace: %w", err)
		}
		st.ProjectID = projectID
		if err := json.Unmarshal(st.Raw, &st.Trace); err != nil {
			return nil, fmt.Errorf("storage: unmarshal trace record: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}
