// Package service is the facade the HTTP and MCP surfaces call into: it
// owns project bootstrapping, idempotent trace/commit-link/conversation
// ingestion, paginated queries, and blame attribution, translating
// storage.ErrNotFound into the sentinel errors callers check for.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/agenttrace/agenttrace/internal/attribution"
	"github.com/agenttrace/agenttrace/internal/model"
	"github.com/agenttrace/agenttrace/internal/storage"
)

// ErrNotFound is returned when a requested project, trace, or commit link
// does not exist.
var ErrNotFound = errors.New("service: not found")

// defaultListLimit and maxListLimit bound GET /api/v1/traces pagination —
// an unbounded limit would let a caller force a full table scan.
const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// Service is the application facade backing the HTTP and MCP surfaces.
type Service struct {
	db     *storage.DB
	engine *attribution.Engine
	logger *slog.Logger
}

// New builds a Service.
func New(db *storage.DB, engine *attribution.Engine, logger *slog.Logger) *Service {
	return &Service{db: db, engine: engine, logger: logger}
}

// GetProjectDetail returns a project and its aggregate stats.
func (s *Service) GetProjectDetail(ctx context.Context, projectID string) (model.ProjectDetail, error) {
	project, err := s.db.GetProject(ctx, projectID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return model.ProjectDetail{}, ErrNotFound
		}
		return model.ProjectDetail{}, fmt.Errorf("service: get project: %w", err)
	}
	stats, err := s.db.GetProjectStats(ctx, projectID)
	if err != nil {
		return model.ProjectDetail{}, fmt.Errorf("service: get project stats: %w", err)
	}
	return model.ProjectDetail{Project: project, Stats: stats}, nil
}

// UpsertProject creates or updates a project.
func (s *Service) UpsertProject(ctx context.Context, req model.CreateProjectRequest) (model.Project, error) {
	return s.db.UpsertProject(ctx, req.ProjectID, req.Name, req.Description)
}

// IngestTrace persists a single trace (and any accompanying conversation
// contents) under projectID, creating the project on first reference.
// Re-ingesting the same (project_id, trace_id) is a no-op.
func (s *Service) IngestTrace(ctx context.Context, userID string, req model.IngestTraceRequest) (string, error) {
	if err := s.db.EnsureProject(ctx, req.ProjectID); err != nil {
		return "", fmt.Errorf("service: ingest trace: %w", err)
	}
	if err := s.db.InsertTrace(ctx, req.ProjectID, userID, req.Trace); err != nil {
		return "", fmt.Errorf("service: ingest trace: %w", err)
	}
	if len(req.ConversationContents) > 0 {
		if err := s.db.UpsertConversationContents(ctx, req.ProjectID, userID, req.ConversationContents); err != nil {
			return "", fmt.Errorf("service: ingest trace: sync conversation contents: %w", err)
		}
	}
	return req.Trace.ID, nil
}

// IngestBatch persists a batch of traces under one project, in the order
// given. The first item that fails stops the batch and the error is
// returned. Items are written one by one outside any transaction, so items
// stored before the failing one remain stored; re-sending the batch is safe
// because trace inserts and conversation upserts are idempotent.
func (s *Service) IngestBatch(ctx context.Context, userID string, req model.IngestBatchRequest) ([]string, error) {
	if err := s.db.EnsureProject(ctx, req.ProjectID); err != nil {
		return nil, fmt.Errorf("service: ingest batch: %w", err)
	}

	traceIDs := make([]string, 0, len(req.Items))
	for _, item := range req.Items {
		if err := s.db.InsertTrace(ctx, req.ProjectID, userID, item.Trace); err != nil {
			return nil, fmt.Errorf("service: ingest batch: trace %s: %w", item.Trace.ID, err)
		}
		if len(item.ConversationContents) > 0 {
			if err := s.db.UpsertConversationContents(ctx, req.ProjectID, userID, item.ConversationContents); err != nil {
				return nil, fmt.Errorf("service: ingest batch: conversation contents for %s: %w", item.Trace.ID, err)
			}
		}
		traceIDs = append(traceIDs, item.Trace.ID)
	}
	return traceIDs, nil
}

// ListTraces returns a page of traces for projectID, optionally filtered by
// a [since, until] timestamp window. limit is clamped to (0, maxListLimit].
func (s *Service) ListTraces(ctx context.Context, projectID string, since, until *time.Time, limit, offset int) (model.ListTracesResponse, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	traces, total, err := s.db.ListTraces(ctx, projectID, since, until, limit, offset)
	if err != nil {
		return model.ListTracesResponse{}, fmt.Errorf("service: list traces: %w", err)
	}
	return model.ListTracesResponse{Traces: traces, Total: total, Limit: limit, Offset: offset}, nil
}

// GetTraceDetail returns a single trace with its owning user_id.
func (s *Service) GetTraceDetail(ctx context.Context, projectID, traceID string) (model.TraceDetailResponse, error) {
	stored, err := s.db.GetTrace(ctx, projectID, traceID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return model.TraceDetailResponse{}, ErrNotFound
		}
		return model.TraceDetailResponse{}, fmt.Errorf("service: get trace: %w", err)
	}
	return model.TraceDetailResponse{Trace: stored.Trace, UserID: stored.UserID}, nil
}

// IngestCommitLink records which traces contributed to a commit.
func (s *Service) IngestCommitLink(ctx context.Context, userID string, req model.IngestCommitLinkRequest) error {
	if err := s.db.EnsureProject(ctx, req.ProjectID); err != nil {
		return fmt.Errorf("service: ingest commit link: %w", err)
	}
	link := model.CommitLink{
		ProjectID:    req.ProjectID,
		UserID:       userID,
		CommitSHA:    req.CommitSHA,
		ParentSHA:    req.ParentSHA,
		TraceIDs:     req.TraceIDs,
		FilesChanged: req.FilesChanged,
		CommittedAt:  req.CommittedAt,
		Ledger:       req.Ledger,
	}
	if err := s.db.UpsertCommitLink(ctx, link); err != nil {
		return fmt.Errorf("service: ingest commit link: %w", err)
	}
	return nil
}

// GetCommitLinkDetail returns a commit link plus a bounded summary of each
// linked trace.
func (s *Service) GetCommitLinkDetail(ctx context.Context, projectID, commitSHA string) (model.CommitLinkDetail, error) {
	link, err := s.db.GetCommitLink(ctx, projectID, commitSHA)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return model.CommitLinkDetail{}, ErrNotFound
		}
		return model.CommitLinkDetail{}, fmt.Errorf("service: get commit link: %w", err)
	}

	var summaries []model.TraceSummary
	if len(link.TraceIDs) > 0 {
		traces, err := s.db.FindTracesByIDs(ctx, projectID, link.TraceIDs)
		if err != nil {
			return model.CommitLinkDetail{}, fmt.Errorf("service: get commit link: summarize traces: %w", err)
		}
		for _, t := range traces {
			tool := ""
			if name, ok := t.Trace.Tool["name"].(string); ok {
				tool = name
			}
			conversationCount := 0
			for _, fe := range t.Trace.Files {
				conversationCount += len(fe.Conversations)
			}
			summaries = append(summaries, model.TraceSummary{
				TraceID:           t.TraceID,
				Tool:              tool,
				FileCount:         len(t.Trace.Files),
				ConversationCount: conversationCount,
			})
		}
	}

	return model.CommitLinkDetail{CommitLink: link, TraceSummaries: summaries}, nil
}

// GetLedger returns the client-supplied authoritative attribution ledger for
// a commit, if one was set on its commit link.
func (s *Service) GetLedger(ctx context.Context, projectID, commitSHA string) (map[string]any, error) {
	link, err := s.db.GetCommitLink(ctx, projectID, commitSHA)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("service: get ledger: %w", err)
	}
	if len(link.Ledger) == 0 {
		return nil, ErrNotFound
	}
	return link.Ledger, nil
}

// SyncConversationContents stores conversation content bodies, separately
// from trace ingestion — a client may send transcripts after the fact.
func (s *Service) SyncConversationContents(ctx context.Context, userID string, req model.SyncConversationsRequest) error {
	if err := s.db.EnsureProject(ctx, req.ProjectID); err != nil {
		return fmt.Errorf("service: sync conversation contents: %w", err)
	}
	if err := s.db.UpsertConversationContents(ctx, req.ProjectID, userID, req.ConversationContents); err != nil {
		return fmt.Errorf("service: sync conversation contents: %w", err)
	}
	return nil
}

// GetConversationContent looks up a single conversation's content by URL.
func (s *Service) GetConversationContent(ctx context.Context, projectID, url string) (string, error) {
	content, err := s.db.GetConversationContent(ctx, projectID, url)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("service: get conversation content: %w", err)
	}
	return content, nil
}

// Blame attributes every blamed segment in req to the AI trace most likely
// responsible for it.
func (s *Service) Blame(ctx context.Context, req model.BlameRequest) (model.BlameResponse, error) {
	results, err := s.engine.Blame(ctx, req.ProjectID, req.FilePath, req.BlameData)
	if err != nil {
		return model.BlameResponse{}, fmt.Errorf("service: blame: %w", err)
	}
	return model.BlameResponse{FilePath: req.FilePath, Attributions: results}, nil
}

// Health checks that the database is reachable.
func (s *Service) Health(ctx context.Context) error {
	return s.db.Ping(ctx)
}
