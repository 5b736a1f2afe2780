package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/agenttrace/agenttrace/internal/model"
)

// EnsureProject inserts a project row if it doesn't already exist.
func (db *DB) EnsureProject(ctx context.Context, projectID string) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO projects (project_id) VALUES ($1) ON CONFLICT (project_id) DO NOTHING`,
		projectID,
	)
	if err != nil {
		return fmt.Errorf("storage: ensure project: %w", err)
	}
	return nil
}

// GetProject fetches a single project by its project_id.
func (db *DB) GetProject(ctx context.Context, projectID string) (model.Project, error) {
	var p model.Project
	err := db.pool.QueryRow(ctx,
		`SELECT id::text, project_id, name, description, created_at, updated_at
		 FROM projects WHERE project_id = $1`,
		projectID,
	).Scan(&p.ID, &p.ProjectID, &p.Name, &p.Description, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Project{}, ErrNotFound
		}
		return model.Project{}, fmt.Errorf("storage: get project: %w", err)
	}
	return p, nil
}

// UpsertProject creates or updates a project, returning the resulting row.
// A nil name or description leaves the existing column value untouched.
func (db *DB) UpsertProject(ctx context.Context, projectID string, name, description *string) (model.Project, error) {
	var p model.Project
	err := db.pool.QueryRow(ctx,
		`INSERT INTO projects (project_id, name, description)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (project_id) DO UPDATE SET
		     name        = COALESCE(EXCLUDED.name, projects.name),
		     description = COALESCE(EXCLUDED.description, projects.description),
		     updated_at  = now()
		 RETURNING id::text, project_id, name, description, created_at, updated_at`,
		projectID, name, description,
	).Scan(&p.ID, &p.ProjectID, &p.Name, &p.Description, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return model.Project{}, fmt.Errorf("storage: upsert project: %w", err)
	}
	return p, nil
}

// GetProjectStats returns aggregate counts for a project.
func (db *DB) GetProjectStats(ctx context.Context, projectID string) (model.ProjectStats, error) {
	var stats model.ProjectStats

	err := db.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM traces WHERE project_id = $1`, projectID,
	).Scan(&stats.TraceCount)
	if err != nil {
		return model.ProjectStats{}, fmt.Errorf("storage: count traces: %w", err)
	}

	err = db.pool.QueryRow(ctx,
		`SELECT trace_timestamp FROM traces WHERE project_id = $1 ORDER BY trace_timestamp DESC LIMIT 1`, projectID,
	).Scan(&stats.LatestTraceAt)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return model.ProjectStats{}, fmt.Errorf("storage: latest trace: %w", err)
	}

	err = db.pool.QueryRow(ctx,
		`SELECT COUNT(DISTINCT user_id) FROM traces WHERE project_id = $1`, projectID,
	).Scan(&stats.UniqueUsers)
	if err != nil {
		return model.ProjectStats{}, fmt.Errorf("storage: count unique users: %w", err)
	}

	err = db.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM conversation_contents WHERE project_id = $1`, projectID,
	).Scan(&stats.ConversationCount)
	if err != nil {
		return model.ProjectStats{}, fmt.Errorf("storage: count conversations: %w", err)
	}

	return stats, nil
}
