package model

import "time"

// Project is a caller-named namespace that traces, commit links, and
// conversation contents belong to. Created on first reference; never
// deleted by the engine.
type Project struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"project_id"`
	Name        *string   `json:"name,omitempty"`
	Description *string   `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ProjectStats carries aggregate counts for a project, per the original
// implementation's get_project_stats.
type ProjectStats struct {
	TraceCount        int        `json:"trace_count"`
	ConversationCount int        `json:"conversation_count"`
	UniqueUsers       int        `json:"unique_users"`
	LatestTraceAt     *time.Time `json:"latest_trace_at,omitempty"`
}
