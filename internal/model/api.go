package model

import "time"

// ResponseMeta is attached to every HTTP response envelope.
type ResponseMeta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// APIResponse is the standard success envelope.
type APIResponse struct {
	Data any          `json:"data"`
	Meta ResponseMeta `json:"meta"`
}

// ErrorDetail carries a machine-readable code and human message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// APIError is the standard error envelope.
type APIError struct {
	Error ErrorDetail  `json:"error"`
	Meta  ResponseMeta `json:"meta"`
}

// Error kind codes, per spec section 7.
const (
	ErrCodeValidation     = "validation_error"
	ErrCodeUnauthorized   = "unauthorized"
	ErrCodeNotFound       = "not_found"
	ErrCodeInternal       = "internal_error"
	ErrCodeServiceUnavail = "service_unavailable"
)

// --- Request/response bodies ---

// GenerateTokenRequest is the body for POST /api/v1/tokens/generate.
type GenerateTokenRequest struct {
	UserID string `json:"user_id"`
}

// GenerateTokenResponse is the response for POST /api/v1/tokens/generate.
type GenerateTokenResponse struct {
	Token  string `json:"token"`
	UserID string `json:"user_id"`
	Note   string `json:"note"`
}

// VerifyTokenRequest is the body for POST /api/v1/tokens/verify.
type VerifyTokenRequest struct {
	Token string `json:"token"`
}

// VerifyTokenResponse is the response for POST /api/v1/tokens/verify.
type VerifyTokenResponse struct {
	Valid  bool   `json:"valid"`
	UserID string `json:"user_id,omitempty"`
}

// CreateProjectRequest is the body for POST /api/v1/projects.
type CreateProjectRequest struct {
	ProjectID   string  `json:"project_id"`
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

// ProjectDetail is the response for GET /api/v1/projects/{id}.
type ProjectDetail struct {
	Project Project      `json:"project"`
	Stats   ProjectStats `json:"stats"`
}

// IngestTraceRequest is the body for POST /api/v1/traces.
type IngestTraceRequest struct {
	ProjectID             string                     `json:"project_id"`
	Trace                 Trace                      `json:"trace"`
	ConversationContents  []ConversationContentInput `json:"conversation_contents,omitempty"`
}

// IngestTraceResponse is the response for POST /api/v1/traces.
type IngestTraceResponse struct {
	OK      bool   `json:"ok"`
	TraceID string `json:"trace_id"`
}

// BatchItem is one element of a POST /api/v1/traces/batch request.
type BatchItem struct {
	Trace                Trace                      `json:"trace"`
	ConversationContents []ConversationContentInput `json:"conversation_contents,omitempty"`
}

// IngestBatchRequest is the body for POST /api/v1/traces/batch.
type IngestBatchRequest struct {
	ProjectID string      `json:"project_id"`
	Items     []BatchItem `json:"items"`
}

// IngestBatchResponse is the response for POST /api/v1/traces/batch.
type IngestBatchResponse struct {
	OK       bool     `json:"ok"`
	Count    int      `json:"count"`
	TraceIDs []string `json:"trace_ids"`
}

// ListTracesResponse is the response for GET /api/v1/traces.
type ListTracesResponse struct {
	Traces []Trace `json:"traces"`
	Total  int     `json:"total"`
	Limit  int     `json:"limit"`
	Offset int     `json:"offset"`
}

// TraceDetailResponse is the response for GET /api/v1/traces/{id}.
type TraceDetailResponse struct {
	Trace  Trace  `json:"trace"`
	UserID string `json:"user_id"`
}

// IngestCommitLinkRequest is the body for POST /api/v1/commit-links.
type IngestCommitLinkRequest struct {
	ProjectID    string         `json:"project_id"`
	CommitSHA    string         `json:"commit_sha"`
	ParentSHA    string         `json:"parent_sha,omitempty"`
	TraceIDs     []string       `json:"trace_ids"`
	FilesChanged []string       `json:"files_changed,omitempty"`
	CommittedAt  *time.Time     `json:"committed_at,omitempty"`
	Ledger       map[string]any `json:"ledger,omitempty"`
}

// IngestCommitLinkResponse is the response for POST /api/v1/commit-links.
type IngestCommitLinkResponse struct {
	OK        bool   `json:"ok"`
	CommitSHA string `json:"commit_sha"`
}

// ConversationContentInput is one entry of a conversation-contents sync
// payload: {url, content}.
type ConversationContentInput struct {
	URL     string `json:"url"`
	Content string `json:"content"`
}

// SyncConversationsRequest is the body for POST /api/v1/conversations/sync.
type SyncConversationsRequest struct {
	ProjectID            string                     `json:"project_id"`
	ConversationContents []ConversationContentInput `json:"conversation_contents"`
}

// ConversationContentResponse is the response for
// GET /api/v1/conversations/content.
type ConversationContentResponse struct {
	Content string `json:"content"`
}

// BlameRequest is the body for POST /api/v1/blame.
type BlameRequest struct {
	ProjectID string      `json:"project_id"`
	FilePath  string      `json:"file_path"`
	BlameData []BlameLine `json:"blame_data"`
}

// BlameResponse is the response for POST /api/v1/blame.
type BlameResponse struct {
	FilePath      string               `json:"file_path"`
	Attributions  []AttributionResult  `json:"attributions"`
}

// HealthResponse is the response for GET /health.
type HealthResponse struct {
	Status    string    `json:"status"`
	DB        string    `json:"db"`
	Timestamp time.Time `json:"timestamp"`
}
