// Package mcpadapter exposes the tool registry over the Model Context
// Protocol so external agents can call the same tools the agent loop uses.
package mcpadapter

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/knowledge-assistant/internal/core/domain"
	"github.com/kirillkom/knowledge-assistant/internal/core/tools"
	"github.com/kirillkom/knowledge-assistant/internal/core/usecase"
)

const serverName = "knowledge-assistant"

type Server struct {
	mcp      *server.MCPServer
	executor *tools.Executor
	profile  domain.AgentProfile
	names    []string
}

// NewServer registers every tool the profile may call. Calls run through
// the executor with the profile's access list, so MCP clients get the same
// validation and authorization as the agent loop. A profile without an
// explicit tool list only exposes tools tagged AccessAll; restricted tools
// must be granted by name.
func NewServer(executor *tools.Executor, profile domain.AgentProfile, version string) *Server {
	if profile.Tools == nil {
		profile.Tools = executor.Registry().ByAccess(tools.AccessAll)
	}
	s := &Server{
		mcp:      server.NewMCPServer(serverName, version, server.WithToolCapabilities(false)),
		executor: executor,
		profile:  profile,
	}
	for _, schema := range executor.Registry().Schemas(profile.Tools) {
		tool := mcp.NewToolWithRawSchema(schema.Name, schema.Description, schema.ParametersJSON())
		s.mcp.AddTool(tool, s.handler(schema.Name))
		s.names = append(s.names, schema.Name)
	}
	return s
}

// ToolNames lists the registered MCP tools in registry order.
func (s *Server) ToolNames() []string {
	return append([]string(nil), s.names...)
}

func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

func (s *Server) handler(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()
		if args == nil {
			args = map[string]any{}
		}

		ctx = usecase.WithAgentProfile(ctx, s.profile)
		result := s.executor.Execute(ctx, name, args, s.profile.Tools)
		if !result.Success {
			slog.Warn("mcp_tool_failed", "tool", name, "error", result.Error)
			return mcp.NewToolResultError(result.Error), nil
		}

		payload, err := json.Marshal(result.Result)
		if err != nil {
			return mcp.NewToolResultError("encode tool result: " + err.Error()), nil
		}
		return mcp.NewToolResultText(string(payload)), nil
	}
}
