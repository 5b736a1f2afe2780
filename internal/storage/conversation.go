package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/agenttrace/agenttrace/internal/model"
)

// UpsertConversationContents upserts a batch of conversation contents — url
// is the unique key per project. If the url already exists for this
// project, its content is overwritten.
func (db *DB) UpsertConversationContents(ctx context.Context, projectID, userID string, items []model.ConversationContentInput) error {
	if len(items) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, item := range items {
		batch.Queue(
			`INSERT INTO conversation_contents (project_id, user_id, url, content)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (project_id, url) DO UPDATE SET
			     content    = EXCLUDED.content,
			     updated_at = now()`,
			projectID, userID, item.URL, item.Content,
		)
	}
	br := db.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range items {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("storage: upsert conversation contents: %w", err)
		}
	}
	return nil
}

// GetConversationContent looks up conversation content by URL. Returns
// ErrNotFound if no matching row exists.
func (db *DB) GetConversationContent(ctx context.Context, projectID, url string) (string, error) {
	var content string
	err := db.pool.QueryRow(ctx,
		`SELECT content FROM conversation_contents WHERE project_id = $1 AND url = $2 LIMIT 1`,
		projectID, url,
	).Scan(&content)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("storage: get conversation content: %w", err)
	}
	return content, nil
}
