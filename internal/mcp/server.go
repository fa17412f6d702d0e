// Package mcp serves the agent's public operations as Model Context Protocol tools
// over stdio, so an MCP-capable assistant can drive the workbook.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"gridnerd/internal/agent"
	"gridnerd/internal/logging"
	"gridnerd/internal/tools"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Tool names.
const (
	ToolAsk     = "ask_spreadsheet"
	ToolRun     = "run_spreadsheet_task"
	ToolExecute = "execute_command"
	ToolHealth  = "workbook_health"
)

// Server wraps an MCP server bound to an Agent.
type Server struct {
	agent *agent.Agent
	mcp   *server.MCPServer
}

// NewServer creates the MCP server and registers the tools.
func NewServer(a *agent.Agent, version string) *Server {
	s := &Server{
		agent: a,
		mcp: server.NewMCPServer(
			"gridNERD",
			version,
			server.WithToolCapabilities(true),
			server.WithRecovery(),
		),
	}
	s.registerTools()
	return s
}

// MCP returns the underlying server.
func (s *Server) MCP() *server.MCPServer { return s.mcp }

// ServeStdio blocks serving requests on stdin/stdout.
func (s *Server) ServeStdio() error {
	logging.Server("MCP server on stdio")
	return server.ServeStdio(s.mcp)
}

func (s *Server) registerTools() {
	s.mcp.AddTool(mcp.NewTool(ToolAsk,
		mcp.WithDescription("Answer a spreadsheet question (formulas, analysis, troubleshooting) using the open workbook as context. Does not modify the workbook."),
		mcp.WithString("query", mcp.Required(), mcp.Description("The question to answer")),
	), s.handleAsk)

	s.mcp.AddTool(mcp.NewTool(ToolRun,
		mcp.WithDescription("Plan and execute a spreadsheet task against the open workbook. Returns a report of the actions taken."),
		mcp.WithString("query", mcp.Required(), mcp.Description("What to do, in plain language")),
		mcp.WithString("context_json", mcp.Description("Optional JSON object merged over the workbook context")),
	), s.handleRun)

	s.mcp.AddTool(mcp.NewTool(ToolExecute,
		mcp.WithDescription("Execute one spreadsheet command, e.g. {\"type\":\"insert_formula\",\"cell\":\"B5\",\"formula\":\"=SUM(B1:B4)\"}. "+
			"Types: "+strings.Join(kindNames(), ", ")+"."),
		mcp.WithString("command_json", mcp.Required(), mcp.Description("The command as a JSON object")),
	), s.handleExecute)

	s.mcp.AddTool(mcp.NewTool(ToolHealth,
		mcp.WithDescription("Report workbook connection and service health."),
	), s.handleHealth)
}

func (s *Server) handleAsk(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := strings.TrimSpace(req.GetString("query", ""))
	if query == "" {
		return mcp.NewToolResultError("query is required"), nil
	}
	answer, err := s.agent.AnswerQuery(ctx, query, nil, nil)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(answer), nil
}

func (s *Server) handleRun(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := strings.TrimSpace(req.GetString("query", ""))
	if query == "" {
		return mcp.NewToolResultError("query is required"), nil
	}
	var overrides map[string]any
	if raw := strings.TrimSpace(req.GetString("context_json", "")); raw != "" {
		if err := json.Unmarshal([]byte(raw), &overrides); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("context_json must be a JSON object: %v", err)), nil
		}
	}
	return jsonResult(s.agent.RunAutonomousQuery(ctx, query, overrides, nil))
}

func (s *Server) handleExecute(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw := strings.TrimSpace(req.GetString("command_json", ""))
	if raw == "" {
		return mcp.NewToolResultError("command_json is required"), nil
	}
	var cmd tools.Command
	if err := json.Unmarshal([]byte(raw), &cmd); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid command_json: %v", err)), nil
	}
	return jsonResult(s.agent.ExecuteCommand(ctx, cmd))
}

func (s *Server) handleHealth(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.agent.CheckHealth(ctx))
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func kindNames() []string {
	kinds := tools.Kinds()
	names := make([]string, 0, len(kinds))
	for _, k := range kinds {
		names = append(names, string(k))
	}
	return names
}
