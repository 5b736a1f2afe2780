package model

import (
	"encoding/json"
	"time"
)

// Trace is an immutable document describing a single AI-assisted edit
// event, as submitted by a client tool. Keyed by (project_id, trace_id)
// once persisted. The shape mirrors spec section 3: vcs carries only the
// revision, tool is a free-form nested object, files[] carries ranges at
// three different levels of nesting, and metadata is caller-defined.
type Trace struct {
	ID        string         `json:"id"`
	Version   string         `json:"version,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	VCS       *VCS           `json:"vcs,omitempty"`
	Tool      map[string]any `json:"tool,omitempty"`
	Files     []FileEntry    `json:"files,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// VCS carries the commit the developer was on when the trace was captured.
type VCS struct {
	Revision string `json:"revision"`
}

// FileEntry describes one file touched by a trace: an optional file-level
// range/hash, plus nested conversations and changes that may carry their
// own ranges and hashes.
type FileEntry struct {
	Path          string         `json:"path"`
	StartLine     *int           `json:"start_line,omitempty"`
	EndLine       *int           `json:"end_line,omitempty"`
	ContentHash   *string        `json:"content_hash,omitempty"`
	Conversations []Conversation `json:"conversations,omitempty"`
	Changes       []Change       `json:"changes,omitempty"`
}

// Contributor identifies who (or what) authored a conversation's edit.
type Contributor struct {
	Type    string `json:"type,omitempty"`
	ModelID string `json:"model_id,omitempty"`
}

// Conversation is one AI conversation that contributed to a file entry.
type Conversation struct {
	URL         string       `json:"url,omitempty"`
	Contributor *Contributor `json:"contributor,omitempty"`
	StartLine   *int         `json:"start_line,omitempty"`
	EndLine     *int         `json:"end_line,omitempty"`
	ContentHash *string      `json:"content_hash,omitempty"`
	Ranges      []LineRange  `json:"ranges,omitempty"`
}

// LineRange is a (start_line, end_line) span, optionally with its own
// content hash — the most granular unit the scorer can match against.
type LineRange struct {
	StartLine   int     `json:"start_line"`
	EndLine     int     `json:"end_line"`
	ContentHash *string `json:"content_hash,omitempty"`
}

// Change is a recorded edit span independent of any conversation.
type Change struct {
	StartLine   *int    `json:"start_line,omitempty"`
	EndLine     *int    `json:"end_line,omitempty"`
	ContentHash *string `json:"content_hash,omitempty"`
}

// StoredTrace is a trace as held in the database: the parsed key fields
// used for candidate selection, plus the verbatim original document for
// replay (spec section 9, "preserve the original document verbatim").
type StoredTrace struct {
	ProjectID string          `json:"project_id"`
	UserID    string          `json:"user_id,omitempty"`
	TraceID   string          `json:"trace_id"`
	Version   string          `json:"version"`
	Timestamp time.Time       `json:"trace_timestamp"`
	Trace     Trace           `json:"trace"`
	Raw       json.RawMessage `json:"-"`
}
