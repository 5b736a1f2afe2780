package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/agenttrace/agenttrace/internal/attribution"
	"github.com/agenttrace/agenttrace/internal/auth"
	"github.com/agenttrace/agenttrace/internal/model"
	"github.com/agenttrace/agenttrace/internal/server"
	"github.com/agenttrace/agenttrace/internal/service"
	"github.com/agenttrace/agenttrace/internal/storage"
	"github.com/agenttrace/agenttrace/migrations"
)

var testSrv *server.Server
var testTokenMgr *auth.TokenManager

func TestMain(m *testing.M) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "agenttrace",
			"POSTGRES_PASSWORD": "agenttrace",
			"POSTGRES_DB":       "agenttrace",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start container: %v\n", err)
		os.Exit(1)
	}

	host, err := container.Host(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to get container host: %v\n", err)
		os.Exit(1)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to get container port: %v\n", err)
		os.Exit(1)
	}

	dsn := fmt.Sprintf("postgres://agenttrace:agenttrace@%s:%s/agenttrace?sslmode=disable", host, port.Port())
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	db, err := storage.New(ctx, dsn, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create DB: %v\n", err)
		os.Exit(1)
	}
	if err := db.RunMigrations(ctx, migrations.FS); err != nil {
		fmt.Fprintf(os.Stderr, "failed to run migrations: %v\n", err)
		os.Exit(1)
	}

	tokenMgr, err := auth.NewTokenManager("test-secret-at-least-this-long")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create token manager: %v\n", err)
		os.Exit(1)
	}
	testTokenMgr = tokenMgr

	engine := attribution.New(db, logger)
	svc := service.New(db, engine, logger)

	testSrv = server.New(server.ServerConfig{
		Service:             svc,
		TokenMgr:            tokenMgr,
		Logger:              logger,
		Port:                0,
		ReadTimeout:         5 * time.Second,
		WriteTimeout:        5 * time.Second,
		MaxRequestBodyBytes: 1 << 20,
		CORSAllowedOrigins:  []string{"*"},
	})

	code := m.Run()

	db.Close()
	_ = container.Terminate(ctx)
	os.Exit(code)
}

func authedRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	token, err := testTokenMgr.Generate("test-user")
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	testSrv.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, target any) {
	t.Helper()
	var env model.APIResponse
	env.Data = target
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
}

func TestHealth_NoAuthRequired(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := do(req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBlame_RequiresAuth(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/blame", bytes.NewBufferString(`{}`))
	rec := do(req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestTokenGenerateAndVerify(t *testing.T) {
	genReq := httptest.NewRequest(http.MethodPost, "/api/v1/tokens/generate",
		bytes.NewBufferString(`{"user_id":"alice"}`))
	genReq.Header.Set("Content-Type", "application/json")
	genRec := do(genReq)
	require.Equal(t, http.StatusOK, genRec.Code)

	var genResp model.GenerateTokenResponse
	decodeData(t, genRec, &genResp)
	assert.Equal(t, "alice", genResp.UserID)
	require.NotEmpty(t, genResp.Token)

	verifyBody, _ := json.Marshal(model.VerifyTokenRequest{Token: genResp.Token})
	verifyReq := httptest.NewRequest(http.MethodPost, "/api/v1/tokens/verify", bytes.NewReader(verifyBody))
	verifyReq.Header.Set("Content-Type", "application/json")
	verifyRec := do(verifyReq)
	require.Equal(t, http.StatusOK, verifyRec.Code)

	var verifyResp model.VerifyTokenResponse
	decodeData(t, verifyRec, &verifyResp)
	assert.True(t, verifyResp.Valid)
	assert.Equal(t, "alice", verifyResp.UserID)
}

func TestProjectCreateAndGet(t *testing.T) {
	createReq := authedRequest(t, http.MethodPost, "/api/v1/projects", model.CreateProjectRequest{
		ProjectID: "proj-http-1",
	})
	createRec := do(createReq)
	require.Equal(t, http.StatusCreated, createRec.Code)

	getReq := authedRequest(t, http.MethodGet, "/api/v1/projects/proj-http-1", nil)
	getRec := do(getReq)
	require.Equal(t, http.StatusOK, getRec.Code)

	var detail model.ProjectDetail
	decodeData(t, getRec, &detail)
	assert.Equal(t, "proj-http-1", detail.Project.ProjectID)
}

func TestGetProject_NotFound(t *testing.T) {
	req := authedRequest(t, http.MethodGet, "/api/v1/projects/no-such-project", nil)
	rec := do(req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestIngestTraceAndListAndGet(t *testing.T) {
	req := authedRequest(t, http.MethodPost, "/api/v1/traces", model.IngestTraceRequest{
		ProjectID: "proj-http-trace",
		Trace: model.Trace{
			ID:        "t-http-1",
			Timestamp: time.Now().UTC(),
		},
	})
	rec := do(req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var ingestResp model.IngestTraceResponse
	decodeData(t, rec, &ingestResp)
	assert.True(t, ingestResp.OK)
	assert.Equal(t, "t-http-1", ingestResp.TraceID)

	listReq := authedRequest(t, http.MethodGet, "/api/v1/traces?project_id=proj-http-trace", nil)
	listRec := do(listReq)
	require.Equal(t, http.StatusOK, listRec.Code)

	var listResp model.ListTracesResponse
	decodeData(t, listRec, &listResp)
	assert.Equal(t, 1, listResp.Total)

	getReq := authedRequest(t, http.MethodGet, "/api/v1/traces/t-http-1?project_id=proj-http-trace", nil)
	getRec := do(getReq)
	require.Equal(t, http.StatusOK, getRec.Code)
}

func TestCommitLinkAndLedgerRoute(t *testing.T) {
	projectID := "proj-http-ledger"

	commitReq := authedRequest(t, http.MethodPost, "/api/v1/commit-links", model.IngestCommitLinkRequest{
		ProjectID: projectID,
		CommitSHA: "c0ffee",
		TraceIDs:  []string{"t1"},
		Ledger: map[string]any{
			"ranges": []any{
				map[string]any{"start_line": float64(1), "end_line": float64(10), "trace_id": "t1"},
			},
		},
	})
	commitRec := do(commitReq)
	require.Equal(t, http.StatusCreated, commitRec.Code)

	ledgerReq := authedRequest(t, http.MethodGet, "/api/v1/ledgers/c0ffee?project_id="+projectID, nil)
	ledgerRec := do(ledgerReq)
	require.Equal(t, http.StatusOK, ledgerRec.Code)

	var ledger map[string]any
	decodeData(t, ledgerRec, &ledger)
	assert.Contains(t, ledger, "ranges")
}

func TestIngestTrace_MissingTimestampRejected(t *testing.T) {
	req := authedRequest(t, http.MethodPost, "/api/v1/traces", model.IngestTraceRequest{
		ProjectID: "proj-http-no-ts",
		Trace:     model.Trace{ID: "t-no-ts"},
	})
	rec := do(req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIngestCommitLink_EmptyTraceIDsRejected(t *testing.T) {
	req := authedRequest(t, http.MethodPost, "/api/v1/commit-links", model.IngestCommitLinkRequest{
		ProjectID: "proj-http-empty-traces",
		CommitSHA: "c-empty",
		TraceIDs:  []string{},
	})
	rec := do(req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetLedger_NotFoundWhenAbsent(t *testing.T) {
	projectID := "proj-http-no-ledger"
	commitReq := authedRequest(t, http.MethodPost, "/api/v1/commit-links", model.IngestCommitLinkRequest{
		ProjectID: projectID,
		CommitSHA: "deadbeef",
		TraceIDs:  []string{"t1"},
	})
	require.Equal(t, http.StatusCreated, do(commitReq).Code)

	ledgerReq := authedRequest(t, http.MethodGet, "/api/v1/ledgers/deadbeef?project_id="+projectID, nil)
	ledgerRec := do(ledgerReq)
	assert.Equal(t, http.StatusNotFound, ledgerRec.Code)
}

func TestBlameEndToEnd(t *testing.T) {
	projectID := "proj-http-blame"

	traceReq := authedRequest(t, http.MethodPost, "/api/v1/traces", model.IngestTraceRequest{
		ProjectID: projectID,
		Trace: model.Trace{
			ID:        "t-blame-1",
			Timestamp: time.Now().UTC(),
			Files: []model.FileEntry{
				{Path: "src/a.py", StartLine: intPtr(1), EndLine: intPtr(50)},
			},
		},
	})
	require.Equal(t, http.StatusCreated, do(traceReq).Code)

	commitReq := authedRequest(t, http.MethodPost, "/api/v1/commit-links", model.IngestCommitLinkRequest{
		ProjectID: projectID,
		CommitSHA: "c-blame",
		TraceIDs:  []string{"t-blame-1"},
	})
	require.Equal(t, http.StatusCreated, do(commitReq).Code)

	blameReq := authedRequest(t, http.MethodPost, "/api/v1/blame", model.BlameRequest{
		ProjectID: projectID,
		FilePath:  "src/a.py",
		BlameData: []model.BlameLine{
			{StartLine: 10, EndLine: 15, CommitSHA: "c-blame"},
		},
	})
	blameRec := do(blameReq)
	require.Equal(t, http.StatusOK, blameRec.Code)

	var blameResp model.BlameResponse
	decodeData(t, blameRec, &blameResp)
	require.Len(t, blameResp.Attributions, 1)
	require.NotNil(t, blameResp.Attributions[0].Tier)
	assert.Equal(t, "src/a.py", blameResp.FilePath)
}

func intPtr(n int) *int { return &n }
