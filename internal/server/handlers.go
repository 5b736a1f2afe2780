package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/agenttrace/agenttrace/internal/auth"
	"github.com/agenttrace/agenttrace/internal/model"
	"github.com/agenttrace/agenttrace/internal/service"
)

// Handlers holds HTTP handler dependencies.
type Handlers struct {
	svc                 *service.Service
	tokenMgr            *auth.TokenManager
	logger              *slog.Logger
	maxRequestBodyBytes int64
	startedAt           time.Time
}

// NewHandlers creates a new Handlers with all dependencies.
func NewHandlers(svc *service.Service, tokenMgr *auth.TokenManager, logger *slog.Logger, maxRequestBodyBytes int64) *Handlers {
	return &Handlers{
		svc:                 svc,
		tokenMgr:            tokenMgr,
		logger:              logger,
		maxRequestBodyBytes: maxRequestBodyBytes,
		startedAt:           time.Now(),
	}
}

func (h *Handlers) decode(r *http.Request, target any) error {
	return decodeJSON(r, target, h.maxRequestBodyBytes)
}

func (h *Handlers) writeInternalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	h.logger.Error(msg, "error", err, "method", r.Method, "path", r.URL.Path, "request_id", RequestIDFromContext(r.Context()))
	writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternal, msg)
}

// HandleGenerateToken handles POST /api/v1/tokens/generate.
func (h *Handlers) HandleGenerateToken(w http.ResponseWriter, r *http.Request) {
	var req model.GenerateTokenRequest
	if err := h.decode(r, &req); err != nil || req.UserID == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeValidation, "user_id is required")
		return
	}

	token, err := h.tokenMgr.Generate(req.UserID)
	if err != nil {
		h.writeInternalError(w, r, "failed to generate token", err)
		return
	}

	writeJSON(w, r, http.StatusOK, model.GenerateTokenResponse{
		Token:  token,
		UserID: req.UserID,
		Note:   "this token never expires and carries no scopes; treat it like a password",
	})
}

// HandleVerifyToken handles POST /api/v1/tokens/verify.
func (h *Handlers) HandleVerifyToken(w http.ResponseWriter, r *http.Request) {
	var req model.VerifyTokenRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeValidation, "invalid request body")
		return
	}

	userID, err := h.tokenMgr.Decode(req.Token)
	if err != nil {
		writeJSON(w, r, http.StatusOK, model.VerifyTokenResponse{Valid: false})
		return
	}
	writeJSON(w, r, http.StatusOK, model.VerifyTokenResponse{Valid: true, UserID: userID})
}

// HandleCreateProject handles POST /api/v1/projects.
func (h *Handlers) HandleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req model.CreateProjectRequest
	if err := h.decode(r, &req); err != nil || req.ProjectID == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeValidation, "project_id is required")
		return
	}

	project, err := h.svc.UpsertProject(r.Context(), req)
	if err != nil {
		h.writeInternalError(w, r, "failed to create project", err)
		return
	}
	writeJSON(w, r, http.StatusCreated, project)
}

// HandleGetProject handles GET /api/v1/projects/{project_id}.
func (h *Handlers) HandleGetProject(w http.ResponseWriter, r *http.Request) {
	projectID := r.PathValue("project_id")
	detail, err := h.svc.GetProjectDetail(r.Context(), projectID)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "project not found")
			return
		}
		h.writeInternalError(w, r, "failed to get project", err)
		return
	}
	writeJSON(w, r, http.StatusOK, detail)
}

// HandleIngestTrace handles POST /api/v1/traces.
func (h *Handlers) HandleIngestTrace(w http.ResponseWriter, r *http.Request) {
	var req model.IngestTraceRequest
	if err := h.decode(r, &req); err != nil || req.ProjectID == "" || req.Trace.ID == "" || req.Trace.Timestamp.IsZero() {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeValidation, "project_id, trace.id, and trace.timestamp are required")
		return
	}

	traceID, err := h.svc.IngestTrace(r.Context(), UserIDFromContext(r.Context()), req)
	if err != nil {
		h.writeInternalError(w, r, "failed to ingest trace", err)
		return
	}
	writeJSON(w, r, http.StatusCreated, model.IngestTraceResponse{OK: true, TraceID: traceID})
}

// HandleIngestBatch handles POST /api/v1/traces/batch.
func (h *Handlers) HandleIngestBatch(w http.ResponseWriter, r *http.Request) {
	var req model.IngestBatchRequest
	if err := h.decode(r, &req); err != nil || req.ProjectID == "" || len(req.Items) == 0 {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeValidation, "project_id and a non-empty items array are required")
		return
	}

	traceIDs, err := h.svc.IngestBatch(r.Context(), UserIDFromContext(r.Context()), req)
	if err != nil {
		h.writeInternalError(w, r, "failed to ingest trace batch", err)
		return
	}
	writeJSON(w, r, http.StatusCreated, model.IngestBatchResponse{OK: true, Count: len(traceIDs), TraceIDs: traceIDs})
}

// HandleListTraces handles GET /api/v1/traces.
func (h *Handlers) HandleListTraces(w http.ResponseWriter, r *http.Request) {
	projectID := r.URL.Query().Get("project_id")
	if projectID == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeValidation, "project_id is required")
		return
	}

	since := parseQueryTime(r, "since")
	until := parseQueryTime(r, "until")
	limit := queryInt(r, "limit", 0)
	offset := queryInt(r, "offset", 0)

	resp, err := h.svc.ListTraces(r.Context(), projectID, since, until, limit, offset)
	if err != nil {
		h.writeInternalError(w, r, "failed to list traces", err)
		return
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// HandleGetTrace handles GET /api/v1/traces/{trace_id}.
func (h *Handlers) HandleGetTrace(w http.ResponseWriter, r *http.Request) {
	projectID := r.URL.Query().Get("project_id")
	traceID := r.PathValue("trace_id")
	if projectID == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeValidation, "project_id is required")
		return
	}

	detail, err := h.svc.GetTraceDetail(r.Context(), projectID, traceID)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "trace not found")
			return
		}
		h.writeInternalError(w, r, "failed to get trace", err)
		return
	}
	writeJSON(w, r, http.StatusOK, detail)
}

// HandleIngestCommitLink handles POST /api/v1/commit-links.
func (h *Handlers) HandleIngestCommitLink(w http.ResponseWriter, r *http.Request) {
	var req model.IngestCommitLinkRequest
	if err := h.decode(r, &req); err != nil || req.ProjectID == "" || req.CommitSHA == "" || len(req.TraceIDs) == 0 {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeValidation, "project_id, commit_sha, and a non-empty trace_ids are required")
		return
	}

	if err := h.svc.IngestCommitLink(r.Context(), UserIDFromContext(r.Context()), req); err != nil {
		h.writeInternalError(w, r, "failed to ingest commit link", err)
		return
	}
	writeJSON(w, r, http.StatusCreated, model.IngestCommitLinkResponse{OK: true, CommitSHA: req.CommitSHA})
}

// HandleGetCommitLink handles GET /api/v1/commit-links/{sha}.
func (h *Handlers) HandleGetCommitLink(w http.ResponseWriter, r *http.Request) {
	projectID := r.URL.Query().Get("project_id")
	sha := r.PathValue("sha")
	if projectID == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeValidation, "project_id is required")
		return
	}

	detail, err := h.svc.GetCommitLinkDetail(r.Context(), projectID, sha)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "commit link not found")
			return
		}
		h.writeInternalError(w, r, "failed to get commit link", err)
		return
	}
	writeJSON(w, r, http.StatusOK, detail)
}

// HandleGetLedger handles GET /api/v1/ledgers/{sha}.
func (h *Handlers) HandleGetLedger(w http.ResponseWriter, r *http.Request) {
	projectID := r.URL.Query().Get("project_id")
	sha := r.PathValue("sha")
	if projectID == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeValidation, "project_id is required")
		return
	}

	ledger, err := h.svc.GetLedger(r.Context(), projectID, sha)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "ledger not found")
			return
		}
		h.writeInternalError(w, r, "failed to get ledger", err)
		return
	}
	writeJSON(w, r, http.StatusOK, ledger)
}

// HandleSyncConversations handles POST /api/v1/conversations/sync.
func (h *Handlers) HandleSyncConversations(w http.ResponseWriter, r *http.Request) {
	var req model.SyncConversationsRequest
	if err := h.decode(r, &req); err != nil || req.ProjectID == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeValidation, "project_id is required")
		return
	}

	if err := h.svc.SyncConversationContents(r.Context(), UserIDFromContext(r.Context()), req); err != nil {
		h.writeInternalError(w, r, "failed to sync conversation contents", err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]bool{"ok": true})
}

// HandleGetConversationContent handles GET /api/v1/conversations/content.
func (h *Handlers) HandleGetConversationContent(w http.ResponseWriter, r *http.Request) {
	projectID := r.URL.Query().Get("project_id")
	url := r.URL.Query().Get("url")
	if projectID == "" || url == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeValidation, "project_id and url are required")
		return
	}

	content, err := h.svc.GetConversationContent(r.Context(), projectID, url)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "conversation content not found")
			return
		}
		h.writeInternalError(w, r, "failed to get conversation content", err)
		return
	}
	writeJSON(w, r, http.StatusOK, model.ConversationContentResponse{Content: content})
}

// HandleBlame handles POST /api/v1/blame.
func (h *Handlers) HandleBlame(w http.ResponseWriter, r *http.Request) {
	var req model.BlameRequest
	if err := h.decode(r, &req); err != nil || req.ProjectID == "" || req.FilePath == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeValidation, "project_id and file_path are required")
		return
	}

	resp, err := h.svc.Blame(r.Context(), req)
	if err != nil {
		h.writeInternalError(w, r, "failed to compute blame", err)
		return
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// HandleHealth handles GET /health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	dbStatus := "ok"
	code := http.StatusOK
	if err := h.svc.Health(r.Context()); err != nil {
		status = "degraded"
		dbStatus = "unreachable"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, r, code, model.HealthResponse{Status: status, DB: dbStatus, Timestamp: time.Now().UTC()})
}

func queryInt(r *http.Request, key string, defaultVal int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return n
}

func parseQueryTime(r *http.Request, key string) *time.Time {
	v := r.URL.Query().Get(key)
	if v == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil
	}
	return &t
}
