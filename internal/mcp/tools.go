package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/agenttrace/agenttrace/internal/model"
)

func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}

func jsonResult(v any) *mcplib.CallToolResult {
	data, _ := json.MarshalIndent(v, "", "  ")
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: string(data)},
		},
	}
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcplib.NewTool("agenttrace_blame",
			mcplib.WithDescription(`Attribute lines of a file to the AI conversations that produced them.

WHEN TO USE: when asked who (or what) wrote a given line or range of a
file, or to audit how much of a file originated from an AI assistant.

Pass the git-blame data for the lines you want attributed: for each line
or contiguous range, the commit SHA that introduced it, the commit's
parent SHA (if known), a content hash, and a timestamp. The tool returns
one attribution per range, merging adjacent ranges that resolve to the
same trace and confidence tier.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithString("project_id",
				mcplib.Description("The project the file belongs to"),
				mcplib.Required(),
			),
			mcplib.WithString("file_path",
				mcplib.Description("Path of the file to attribute, as recorded in ingested traces"),
				mcplib.Required(),
			),
			mcplib.WithString("blame_data_json",
				mcplib.Description(`JSON array of blame lines, each shaped as
{"start_line":int,"end_line":int,"commit_sha":string,"parent_sha":string|null,"content_hash":string|null,"timestamp":string|null}.
timestamp is RFC3339 when present.`),
				mcplib.Required(),
			),
		),
		s.handleBlame,
	)

	s.mcpServer.AddTool(
		mcplib.NewTool("agenttrace_ingest_trace",
			mcplib.WithDescription(`Record a trace: a coding-assistant tool invocation, the files it
touched, and the conversation that produced the change.

WHEN TO USE: after generating or editing code as an AI assistant, so that
a later agenttrace_blame call can attribute those lines back to this
conversation. Re-ingesting the same trace_id is a no-op.`),
			mcplib.WithDestructiveHintAnnotation(false),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithString("project_id",
				mcplib.Description("The project this trace belongs to"),
				mcplib.Required(),
			),
			mcplib.WithString("trace_json",
				mcplib.Description(`JSON object shaped as the trace schema: {"id":string,"version":string,
"timestamp":RFC3339 string,"vcs":{"revision":string},"tool":{"name":string,...},
"files":[{"path":string,"start_line":int|null,"end_line":int|null,
"content_hash":string|null,"conversations":[...],"changes":[...]}],"metadata":{}}`),
				mcplib.Required(),
			),
		),
		s.handleIngestTrace,
	)

	s.mcpServer.AddTool(
		mcplib.NewTool("agenttrace_query_traces",
			mcplib.WithDescription(`List traces recorded for a project, most recent first.

WHEN TO USE: to see what's already been recorded for a project, or to
confirm a trace was ingested, before running agenttrace_blame.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithString("project_id",
				mcplib.Description("The project to query"),
				mcplib.Required(),
			),
			mcplib.WithNumber("limit",
				mcplib.Description("Maximum number of traces to return"),
				mcplib.Min(1),
				mcplib.Max(200),
				mcplib.DefaultNumber(50),
			),
			mcplib.WithNumber("offset",
				mcplib.Description("Number of traces to skip, for pagination"),
				mcplib.Min(0),
				mcplib.DefaultNumber(0),
			),
		),
		s.handleQueryTraces,
	)
}

func (s *Server) handleBlame(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	projectID := request.GetString("project_id", "")
	filePath := request.GetString("file_path", "")
	blameDataJSON := request.GetString("blame_data_json", "")
	if projectID == "" || filePath == "" || blameDataJSON == "" {
		return errorResult("project_id, file_path, and blame_data_json are required"), nil
	}

	var blameData []model.BlameLine
	if err := json.Unmarshal([]byte(blameDataJSON), &blameData); err != nil {
		return errorResult(fmt.Sprintf("invalid blame_data_json: %v", err)), nil
	}

	resp, err := s.svc.Blame(ctx, model.BlameRequest{ProjectID: projectID, FilePath: filePath, BlameData: blameData})
	if err != nil {
		return errorResult(fmt.Sprintf("blame failed: %v", err)), nil
	}
	return jsonResult(resp), nil
}

func (s *Server) handleIngestTrace(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	projectID := request.GetString("project_id", "")
	traceJSON := request.GetString("trace_json", "")
	if projectID == "" || traceJSON == "" {
		return errorResult("project_id and trace_json are required"), nil
	}

	var trace model.Trace
	if err := json.Unmarshal([]byte(traceJSON), &trace); err != nil {
		return errorResult(fmt.Sprintf("invalid trace_json: %v", err)), nil
	}
	if trace.ID == "" {
		return errorResult("trace.id is required"), nil
	}

	traceID, err := s.svc.IngestTrace(ctx, "mcp", model.IngestTraceRequest{ProjectID: projectID, Trace: trace})
	if err != nil {
		return errorResult(fmt.Sprintf("ingest failed: %v", err)), nil
	}
	return jsonResult(map[string]any{"ok": true, "trace_id": traceID}), nil
}

func (s *Server) handleQueryTraces(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	projectID := request.GetString("project_id", "")
	if projectID == "" {
		return errorResult("project_id is required"), nil
	}
	limit := request.GetInt("limit", 50)
	offset := request.GetInt("offset", 0)

	resp, err := s.svc.ListTraces(ctx, projectID, nil, nil, limit, offset)
	if err != nil {
		return errorResult(fmt.Sprintf("query failed: %v", err)), nil
	}
	return jsonResult(resp), nil
}
