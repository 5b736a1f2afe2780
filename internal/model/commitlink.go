package model

import "time"

// CommitLink associates a version-control commit with the traces that
// contributed to it. Supplied by a client-side post-commit hook. Unique on
// (project_id, commit_sha).
type CommitLink struct {
	ProjectID    string         `json:"project_id"`
	UserID       string         `json:"user_id,omitempty"`
	CommitSHA    string         `json:"commit_sha"`
	ParentSHA    string         `json:"parent_sha,omitempty"`
	TraceIDs     []string       `json:"trace_ids"`
	FilesChanged []string       `json:"files_changed,omitempty"`
	CommittedAt  *time.Time     `json:"committed_at,omitempty"`
	Ledger       map[string]any `json:"ledger,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// TraceSummary is a bounded projection of a trace used in commit-link
// responses, so the payload size doesn't grow with the number of linked
// traces' full records.
type TraceSummary struct {
	TraceID           string `json:"trace_id"`
	Tool              string `json:"tool,omitempty"`
	FileCount         int    `json:"file_count"`
	ConversationCount int    `json:"conversation_count"`
}

// CommitLinkDetail is the response shape for GET /api/v1/commit-links/{sha}.
type CommitLinkDetail struct {
	CommitLink
	TraceSummaries []TraceSummary `json:"trace_summaries"`
}
