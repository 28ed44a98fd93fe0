// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes skeletab tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/skeletab/internal/annotator"
	"github.com/starford/skeletab/internal/apperr"
	"github.com/starford/skeletab/internal/models"
)

const formatURI = "skeletab://skeleton-format"

// Server wraps the MCP server with skeletab tools.
type Server struct {
	mcp *server.MCPServer
	svc *annotator.Service
}

func tableArgs() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString("paper_id", mcp.Required(), mcp.Description("Paper id, e.g. smith2020")),
		mcp.WithString("table_id", mcp.Required(), mcp.Description("Table id, e.g. table2 or figure1_A")),
		mcp.WithString("root_dir", mcp.Description("Optional project root (defaults to the configured root)")),
	}
}

func tool(name, description string, opts ...mcp.ToolOption) mcp.Tool {
	return mcp.NewTool(name, append([]mcp.ToolOption{mcp.WithDescription(description)}, opts...)...)
}

// New creates a new MCP server with all skeletab tools registered.
func New(svc *annotator.Service) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Skeletab",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(tool("list_tables",
		"List every table in the project with its artifact paths and annotation status.",
		mcp.WithString("root_dir", mcp.Description("Optional project root (defaults to the configured root)")),
	), s.listTables)

	s.mcp.AddTool(tool("get_table",
		"Read the grid, skeleton and inventory entry of one table.",
		tableArgs()...,
	), s.getTable)

	s.mcp.AddTool(tool("get_variables",
		"List candidate data variable names for the paper a table belongs to.",
		tableArgs()...,
	), s.getVariables)

	s.mcp.AddTool(tool("save_skeleton",
		"Write the skeleton of a table. The skeleton MUST follow the canonical "+
			"format; read it first via get_skeleton_contract or the "+formatURI+" resource.",
		append(tableArgs(),
			mcp.WithString("skeleton", mcp.Required(), mcp.Description("Skeleton JSON object")),
		)...,
	), s.saveSkeleton)

	s.mcp.AddTool(tool("save_grid",
		"Replace the cell text of a table grid. Use only to fix transcription errors.",
		append(tableArgs(),
			mcp.WithString("grid", mcp.Required(), mcp.Description(`Grid JSON object: {"header": [...], "rows": [[...], ...]}`)),
		)...,
	), s.saveGrid)

	s.mcp.AddTool(tool("upload_image",
		"Attach a PNG or JPEG rendering of the source table. Accepts a base64 "+
			"data URI or an http(s) URL.",
		append(tableArgs(),
			mcp.WithString("url", mcp.Required(), mcp.Description("data:image/png;base64,... or https://...")),
		)...,
	), s.uploadImage)

	s.mcp.AddTool(tool("search_tables",
		"Full-text search over skeleton labels, variable names and notes.",
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchTables)

	s.mcp.AddTool(tool("get_progress",
		"Annotation status counts across the project, overall and per paper.",
	), s.getProgress)

	s.mcp.AddTool(tool("get_skeleton_contract",
		"Returns the canonical skeleton format contract. "+
			"Call this before saving skeletons to ensure correct structure.",
	), s.getSkeletonContract)

	s.mcp.AddResource(
		mcp.NewResource(formatURI, "Skeleton Format Contract",
			mcp.WithResourceDescription("Canonical skeleton format that all table annotations must follow."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readSkeletonFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// toolError renders err as a tool-level error result.
func toolError(err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, apperr.ErrArtifactNotFound):
		return mcp.NewToolResultError("table not found: " + err.Error())
	case errors.Is(err, apperr.ErrIndexDisabled):
		return mcp.NewToolResultError("search index is not available")
	}
	return mcp.NewToolResultError(err.Error())
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

type tableRef struct {
	root, paper, table string
}

func requireTable(req mcp.CallToolRequest) (tableRef, error) {
	paper, err := req.RequireString("paper_id")
	if err != nil {
		return tableRef{}, err
	}
	table, err := req.RequireString("table_id")
	if err != nil {
		return tableRef{}, err
	}
	return tableRef{root: req.GetString("root_dir", ""), paper: paper, table: table}, nil
}

func (s *Server) listTables(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	entries, err := s.svc.ListTables(ctx, req.GetString("root_dir", ""))
	if err != nil {
		return toolError(err), nil
	}
	if entries == nil {
		entries = []models.TableEntry{}
	}
	return jsonResult(entries)
}

func (s *Server) getTable(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ref, err := requireTable(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	detail, err := s.svc.GetTable(ctx, ref.root, ref.paper, ref.table)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(detail)
}

func (s *Server) getVariables(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ref, err := requireTable(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	names, err := s.svc.Variables(ctx, ref.root, ref.paper, ref.table)
	if err != nil {
		return toolError(err), nil
	}
	if names == nil {
		names = []string{}
	}
	return jsonResult(names)
}

func (s *Server) saveSkeleton(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ref, err := requireTable(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	raw, err := req.RequireString("skeleton")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	sk, err := s.svc.DecodeSkeleton([]byte(raw))
	if err != nil {
		return toolError(err), nil
	}
	path, err := s.svc.SaveSkeleton(ctx, ref.root, ref.paper, ref.table, sk)
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("saved: %s", path)), nil
}

func (s *Server) saveGrid(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ref, err := requireTable(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	raw, err := req.RequireString("grid")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var g models.Grid
	if err := json.Unmarshal([]byte(raw), &g); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid grid JSON: %v", err)), nil
	}
	if g.Header == nil || g.Rows == nil {
		return mcp.NewToolResultError("grid must have both header and rows arrays"), nil
	}
	path, err := s.svc.SaveGrid(ctx, ref.root, ref.paper, ref.table, &g)
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("saved: %s", path)), nil
}

func (s *Server) searchTables(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.svc.Search(ctx, query, 20)
	if err != nil {
		return toolError(err), nil
	}
	if len(results) == 0 {
		return mcp.NewToolResultText("no tables found"), nil
	}
	return jsonResult(results)
}

func (s *Server) getProgress(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p, err := s.svc.Progress(ctx)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(p)
}

func (s *Server) getSkeletonContract(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(SkeletonFormatContract), nil
}

func (s *Server) readSkeletonFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      formatURI,
			MIMEType: "text/markdown",
			Text:     SkeletonFormatContract,
		},
	}, nil
}
