package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/agenttrace/agenttrace/internal/model"
)

// UpsertCommitLink creates or replaces the commit link for (project_id,
// commit_sha) — a client-side post-commit hook re-posting the same commit
// updates the trace_ids/files_changed/ledger rather than erroring.
func (db *DB) UpsertCommitLink(ctx context.Context, link model.CommitLink) error {
	ledger, err := json.Marshal(link.Ledger)
	if err != nil {
		return fmt.Errorf("storage: marshal ledger: %w", err)
	}
	_, err = db.pool.Exec(ctx,
		`INSERT INTO commit_links (
		     project_id, user_id, commit_sha, parent_sha,
		     trace_ids, files_changed, committed_at, ledger
		 ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (project_id, commit_sha) DO UPDATE SET
		     parent_sha    = EXCLUDED.parent_sha,
		     trace_ids     = EXCLUDED.trace_ids,
		     files_changed = EXCLUDED.files_changed,
		     committed_at  = EXCLUDED.committed_at,
		     ledger        = EXCLUDED.ledger,
		     updated_at    = now()`,
		link.ProjectID, link.UserID, link.CommitSHA, link.ParentSHA,
		link.TraceIDs, link.FilesChanged, link.CommittedAt, ledger,
	)
	if err != nil {
		return fmt.Errorf("storage: upsert commit link: %w", err)
	}
	return nil
}

// GetCommitLink looks up a commit link by (project_id, commit_sha). Returns
// ErrNotFound if none exists — attribution treats that as "no commit-link
// signal available", not an error.
func (db *DB) GetCommitLink(ctx context.Context, projectID, commitSHA string) (model.CommitLink, error) {
	var link model.CommitLink
	var ledger []byte
	err := db.pool.QueryRow(ctx,
		`SELECT project_id, user_id, commit_sha, parent_sha, trace_ids, files_changed, committed_at, ledger, created_at, updated_at
		 FROM commit_links WHERE project_id = $1 AND commit_sha = $2`,
		projectID, commitSHA,
	).Scan(
		&link.ProjectID, &link.UserID, &link.CommitSHA, &link.ParentSHA,
		&link.TraceIDs, &link.FilesChanged, &link.CommittedAt, &ledger,
		&link.CreatedAt, &link.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.CommitLink{}, ErrNotFound
		}
		return model.CommitLink{}, fmt.Errorf("storage: get commit link: %w", err)
	}
	if len(ledger) > 0 {
		if err := json.Unmarshal(ledger, &link.Ledger); err != nil {
			return model.CommitLink{}, fmt.Errorf("storage: unmarshal ledger: %w", err)
		}
	}
	return link, nil
}
