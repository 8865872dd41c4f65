// Package mcp implements the Model Context Protocol server for tsunagi.
//
// The MCP server exposes the same functions as the HTTP API as MCP tools,
// plus read-only access to the document store, so MCP-compatible agents can
// invoke functions without building parameter payloads by hand.
package mcp

import (
	"encoding/json"
	"log/slog"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/ashita-ai/tsunagi/internal/event"
	"github.com/ashita-ai/tsunagi/internal/query"
	"github.com/ashita-ai/tsunagi/internal/server"
)

// Server wraps the MCP server with tsunagi's functions and store.
type Server struct {
	mcpServer *mcpserver.MCPServer
	functions map[string]event.Task
	store     query.Store // nil disables tsunagi_query and the document resource
	maxLimit  int
	logger    *slog.Logger
}

// Config holds the dependencies of the MCP server.
type Config struct {
	Functions map[string]event.Task
	Store     query.Store
	// MaxLimit caps tsunagi_query's limit argument.
	MaxLimit int
	Logger   *slog.Logger
	Version  string
}

// New creates and configures a new MCP server with all resources and tools.
func New(cfg Config) *Server {
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = 1000
	}
	s := &Server{
		functions: cfg.Functions,
		store:     cfg.Store,
		maxLimit:  cfg.MaxLimit,
		logger:    cfg.Logger,
	}

	s.mcpServer = mcpserver.NewMCPServer(
		"tsunagi",
		cfg.Version,
		mcpserver.WithResourceCapabilities(true, false),
		mcpserver.WithToolCapabilities(true),
	)

	s.registerResources()
	s.registerTools()

	return s
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

func (s *Server) functionNames() []string {
	return server.FunctionNames(s.functions)
}

func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}

func jsonResult(v any, isError bool) *mcplib.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult("encode result: " + err.Error())
	}
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: string(data)},
		},
		IsError: isError,
	}
}
