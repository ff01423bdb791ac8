// Package mcp provides Model Context Protocol server functionality.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kpath-ai/kpath/application/service"
	"github.com/kpath-ai/kpath/domain/search"
)

// mcpCaller identifies MCP-originated queries in telemetry.
const mcpCaller = "mcp"

// Discoverer provides discovery operations for MCP tools.
type Discoverer interface {
	Search(ctx context.Context, callerID string, q search.Query) (service.Envelope, error)
	ToolDetails(ctx context.Context, id int64) (map[string]any, error)
}

// Server wraps the MCP server with kpath-specific tools.
type Server struct {
	mcpServer *server.MCPServer
	discovery Discoverer
	logger    *slog.Logger
}

// NewServer creates a new MCP server with the given dependencies.
func NewServer(discovery Discoverer, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		discovery: discovery,
		logger:    logger,
	}

	mcpServer := server.NewMCPServer(
		"kpath",
		version,
		server.WithToolCapabilities(true),
	)

	s.registerTools(mcpServer)

	s.mcpServer = mcpServer
	return s
}

// registerTools registers all kpath tools with the MCP server.
func (s *Server) registerTools(mcpServer *server.MCPServer) {
	discoverServices := mcp.NewTool("discover_services",
		mcp.WithDescription("Find registered services and agents matching a natural-language task description"),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("What the caller wants to accomplish"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Number of results to return (default: 10)"),
		),
		mcp.WithString("domains",
			mcp.Description("Comma-separated domain filter"),
		),
	)
	mcpServer.AddTool(discoverServices, s.handleDiscover(search.ModeAgentsAndTools))

	discoverTools := mcp.NewTool("discover_tools",
		mcp.WithDescription("Find invokable tools matching a natural-language task description, grouped by owning service"),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("What the caller wants to accomplish"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Number of results to return (default: 10)"),
		),
		mcp.WithString("domains",
			mcp.Description("Comma-separated domain filter"),
		),
	)
	mcpServer.AddTool(discoverTools, s.handleDiscover(search.ModeToolsOnly))

	getToolDetails := mcp.NewTool("get_tool_details",
		mcp.WithDescription("Get the full definition of a tool by its ID, including schemas and example calls"),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("The numeric tool ID from a discovery result"),
		),
	)
	mcpServer.AddTool(getToolDetails, s.handleGetToolDetails)
}

// handleDiscover handles the discover_services and discover_tools invocations.
func (s *Server) handleDiscover(mode search.Mode) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := request.RequireString("query")
		if err != nil {
			return mcp.NewToolResultError("query is required"), nil
		}

		opts := []search.QueryOption{
			search.WithMode(mode),
			search.WithLimit(request.GetInt("limit", search.DefaultLimit)),
			search.WithResponseMode(search.ResponseCompact),
		}
		if domains := request.GetString("domains", ""); domains != "" {
			opts = append(opts, search.WithDomainFilter(splitList(domains)...))
		}

		envelope, err := s.discovery.Search(ctx, mcpCaller, search.NewQuery(query, opts...))
		if err != nil {
			s.logger.Error("discovery failed", slog.Any("error", err))
			return mcp.NewToolResultError(fmt.Sprintf("discovery failed: %v", err)), nil
		}

		jsonBytes, err := json.Marshal(envelope)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}

		return mcp.NewToolResultText(string(jsonBytes)), nil
	}
}

// handleGetToolDetails handles the get_tool_details invocation.
func (s *Server) handleGetToolDetails(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	idStr, err := request.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError("id is required"), nil
	}

	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid id: %s", idStr)), nil
	}

	details, err := s.discovery.ToolDetails(ctx, id)
	if err != nil {
		s.logger.Error("failed to get tool details", slog.String("id", idStr), slog.Any("error", err))
		return mcp.NewToolResultError(fmt.Sprintf("failed to get tool details: %v", err)), nil
	}

	jsonBytes, err := json.Marshal(details)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}

	return mcp.NewToolResultText(string(jsonBytes)), nil
}

// MCPServer returns the underlying MCP server for stdio serving.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio runs the MCP server on stdio.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
