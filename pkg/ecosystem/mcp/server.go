package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// NewServer creates a new MCP server with gaze tools registered.
func NewServer(version string) *server.MCPServer {
	s := server.NewMCPServer(
		"gaze",
		version,
		server.WithToolCapabilities(true),
	)

	// Register tools
	s.AddTool(
		mcp.NewTool("gaze/validate",
			mcp.WithDescription("Validate a gaze scenario YAML file"),
			mcp.WithString("path", mcp.Required(), mcp.Description("Path to the scenario YAML file")),
		),
		HandleValidate,
	)

	s.AddTool(
		mcp.NewTool("gaze/run",
			mcp.WithDescription("Execute a gaze browser scenario (headless by default)"),
			mcp.WithString("path", mcp.Required(), mcp.Description("Path to the scenario YAML file")),
			mcp.WithBoolean("headed", mcp.Description("Run with a visible browser window")),
		),
		HandleRun,
	)

	s.AddTool(
		mcp.NewTool("gaze/schema",
			mcp.WithDescription("Export the gaze scenario JSON Schema"),
		),
		HandleSchema,
	)

	return s
}
