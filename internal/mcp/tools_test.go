package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/agenttrace/agenttrace/internal/attribution"
	"github.com/agenttrace/agenttrace/internal/service"
	"github.com/agenttrace/agenttrace/internal/storage"
	"github.com/agenttrace/agenttrace/migrations"
)

var testServer *Server

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
		fmt.Fprintf(os.Stderr, "mcp test: start container: %v\n", err)
		os.Exit(1)
	}

	host, err := container.Host(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mcp test: container host: %v\n", err)
		os.Exit(1)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		fmt.Fprintf(os.Stderr, "mcp test: container port: %v\n", err)
		os.Exit(1)
	}

	dsn := fmt.Sprintf("postgres://agenttrace:agenttrace@%s:%s/agenttrace?sslmode=disable", host, port.Port())
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	db, err := storage.New(ctx, dsn, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mcp test: create DB: %v\n", err)
		os.Exit(1)
	}
	if err := db.RunMigrations(ctx, migrations.FS); err != nil {
		fmt.Fprintf(os.Stderr, "mcp test: run migrations: %v\n", err)
		os.Exit(1)
	}

	engine := attribution.New(db, logger)
	svc := service.New(db, engine, logger)
	testServer = New(svc, logger, "test")

	code := m.Run()

	db.Close()
	_ = container.Terminate(ctx)
	os.Exit(code)
}

func toolRequest(name string, args map[string]any) mcplib.CallToolRequest {
	return mcplib.CallToolRequest{
		Params: mcplib.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func resultText(t *testing.T, result *mcplib.CallToolResult) string {
	t.Helper()
	for _, c := range result.Content {
		if tc, ok := c.(mcplib.TextContent); ok {
			return tc.Text
		}
	}
	t.Fatal("no TextContent found in tool result")
	return ""
}

func TestHandleIngestTrace_MissingArgs(t *testing.T) {
	result, err := testServer.handleIngestTrace(context.Background(), toolRequest("agenttrace_ingest_trace", map[string]any{
		"project_id": "mcp-proj-1",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleIngestTrace_InvalidJSON(t *testing.T) {
	result, err := testServer.handleIngestTrace(context.Background(), toolRequest("agenttrace_ingest_trace", map[string]any{
		"project_id": "mcp-proj-1",
		"trace_json": "{not json",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleIngestTrace_Success(t *testing.T) {
	traceJSON := `{"id":"mcp-t1","timestamp":"2024-01-01T00:00:00Z","vcs":{"revision":"abc"}}`
	result, err := testServer.handleIngestTrace(context.Background(), toolRequest("agenttrace_ingest_trace", map[string]any{
		"project_id": "mcp-proj-ingest",
		"trace_json": traceJSON,
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &out))
	assert.Equal(t, true, out["ok"])
	assert.Equal(t, "mcp-t1", out["trace_id"])
}

func TestHandleQueryTraces_EmptyProjectID(t *testing.T) {
	result, err := testServer.handleQueryTraces(context.Background(), toolRequest("agenttrace_query_traces", map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleQueryTraces_ReturnsIngested(t *testing.T) {
	traceJSON := `{"id":"mcp-t2","timestamp":"2024-01-01T00:00:00Z","vcs":{"revision":"abc"}}`
	_, err := testServer.handleIngestTrace(context.Background(), toolRequest("agenttrace_ingest_trace", map[string]any{
		"project_id": "mcp-proj-query",
		"trace_json": traceJSON,
	}))
	require.NoError(t, err)

	result, err := testServer.handleQueryTraces(context.Background(), toolRequest("agenttrace_query_traces", map[string]any{
		"project_id": "mcp-proj-query",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var out struct {
		Total int `json:"total"`
	}
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &out))
	assert.Equal(t, 1, out.Total)
}

func TestHandleBlame_RequiresAllArgs(t *testing.T) {
	result, err := testServer.handleBlame(context.Background(), toolRequest("agenttrace_blame", map[string]any{
		"project_id": "mcp-proj-blame",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleBlame_InvalidBlameJSON(t *testing.T) {
	result, err := testServer.handleBlame(context.Background(), toolRequest("agenttrace_blame", map[string]any{
		"project_id":      "mcp-proj-blame",
		"file_path":       "src/a.py",
		"blame_data_json": "not json",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleBlame_NoMatch(t *testing.T) {
	result, err := testServer.handleBlame(context.Background(), toolRequest("agenttrace_blame", map[string]any{
		"project_id":      "mcp-proj-blame-nomatch",
		"file_path":       "src/a.py",
		"blame_data_json": `[{"start_line":1,"end_line":5,"commit_sha":"unknown"}]`,
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var out struct {
		Attributions []struct {
			Tier *int `json:"tier"`
		} `json:"attributions"`
	}
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &out))
	require.Len(t, out.Attributions, 1)
	assert.Nil(t, out.Attributions[0].Tier)
}
