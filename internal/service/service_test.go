package service_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/agenttrace/agenttrace/internal/attribution"
	"github.com/agenttrace/agenttrace/internal/model"
	"github.com/agenttrace/agenttrace/internal/service"
	"github.com/agenttrace/agenttrace/internal/storage"
	"github.com/agenttrace/agenttrace/migrations"
)

var testSvc *service.Service

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

	engine := attribution.New(db, logger)
	testSvc = service.New(db, engine, logger)

	code := m.Run()

	db.Close()
	_ = container.Terminate(ctx)
	os.Exit(code)
}

func TestIngestTrace_Idempotent(t *testing.T) {
	ctx := context.Background()
	req := model.IngestTraceRequest{
		ProjectID: "svc-proj-1",
		Trace: model.Trace{
			ID:        "t1",
			Timestamp: time.Now().UTC(),
		},
	}

	id1, err := testSvc.IngestTrace(ctx, "user-1", req)
	require.NoError(t, err)
	id2, err := testSvc.IngestTrace(ctx, "user-1", req)
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	resp, err := testSvc.ListTraces(ctx, "svc-proj-1", nil, nil, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Total)
}

func TestListTraces_LimitClamping(t *testing.T) {
	ctx := context.Background()
	resp, err := testSvc.ListTraces(ctx, "svc-proj-limit", nil, nil, 10000, 0)
	require.NoError(t, err)
	assert.LessOrEqual(t, resp.Limit, 200)

	resp, err = testSvc.ListTraces(ctx, "svc-proj-limit", nil, nil, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 50, resp.Limit)
}

func TestIngestBatch_InsertsAllInOrder(t *testing.T) {
	ctx := context.Background()
	projectID := "svc-proj-batch"

	// Two valid items: the returned IDs follow request order and both
	// traces are stored.
	req := model.IngestBatchRequest{
		ProjectID: projectID,
		Items: []model.BatchItem{
			{Trace: model.Trace{ID: "b1", Timestamp: time.Now().UTC()}},
			{Trace: model.Trace{ID: "b2", Timestamp: time.Now().UTC()}},
		},
	}

	ids, err := testSvc.IngestBatch(ctx, "user-1", req)
	require.NoError(t, err)
	assert.Equal(t, []string{"b1", "b2"}, ids)

	resp, err := testSvc.ListTraces(ctx, projectID, nil, nil, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Total)
}

func TestGetLedger_ReturnsWhenPresent(t *testing.T) {
	ctx := context.Background()
	projectID := "svc-proj-ledger"

	require.NoError(t, testSvc.IngestCommitLink(ctx, "user-1", model.IngestCommitLinkRequest{
		ProjectID: projectID,
		CommitSHA: "sha-with-ledger",
		TraceIDs:  []string{"t1"},
		Ledger: map[string]any{
			"ranges": []any{
				map[string]any{"start_line": float64(1), "end_line": float64(10), "trace_id": "t1"},
			},
		},
	}))

	ledger, err := testSvc.GetLedger(ctx, projectID, "sha-with-ledger")
	require.NoError(t, err)
	assert.Contains(t, ledger, "ranges")
}

func TestGetLedger_NotFoundWhenAbsentOnCommit(t *testing.T) {
	ctx := context.Background()
	projectID := "svc-proj-no-ledger"

	require.NoError(t, testSvc.IngestCommitLink(ctx, "user-1", model.IngestCommitLinkRequest{
		ProjectID: projectID,
		CommitSHA: "sha-no-ledger",
		TraceIDs:  []string{"t1"},
	}))

	_, err := testSvc.GetLedger(ctx, projectID, "sha-no-ledger")
	assert.True(t, errors.Is(err, service.ErrNotFound))
}

func TestGetLedger_NotFoundWhenCommitAbsent(t *testing.T) {
	ctx := context.Background()
	_, err := testSvc.GetLedger(ctx, "svc-proj-no-ledger", "no-such-sha")
	assert.True(t, errors.Is(err, service.ErrNotFound))
}

func TestSyncAndGetConversationContent(t *testing.T) {
	ctx := context.Background()
	projectID := "svc-proj-conv"

	require.NoError(t, testSvc.SyncConversationContents(ctx, "user-1", model.SyncConversationsRequest{
		ProjectID: projectID,
		ConversationContents: []model.ConversationContentInput{
			{URL: "https://example.test/c1", Content: "hello"},
		},
	}))

	content, err := testSvc.GetConversationContent(ctx, projectID, "https://example.test/c1")
	require.NoError(t, err)
	assert.Equal(t, "hello", content)

	_, err = testSvc.GetConversationContent(ctx, projectID, "https://example.test/missing")
	assert.True(t, errors.Is(err, service.ErrNotFound))
}
