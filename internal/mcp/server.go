// Package mcp provides a Model Context Protocol server for splice.
// It exposes the apply engine as MCP tools so an agent that generated a fix
// can apply it with backup and rollback guarantees.
package mcp

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/gorewood/splice/internal/engine"
)

// NewServer creates an MCP server with all splice tools registered.
func NewServer(version string, eng *engine.Engine) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "splice",
		Version: version,
	}, nil)
	registerTools(server, eng)
	return server
}

// boolPtr returns a pointer to a bool value.
func boolPtr(b bool) *bool {
	return &b
}

// readOnlyAnnotations returns annotations for read-only tools.
func readOnlyAnnotations() *mcp.ToolAnnotations {
	return &mcp.ToolAnnotations{
		ReadOnlyHint:   true,
		IdempotentHint: true,
		OpenWorldHint:  boolPtr(false),
	}
}

// destructiveAnnotations returns annotations for tools that rewrite or
// delete files.
func destructiveAnnotations() *mcp.ToolAnnotations {
	return &mcp.ToolAnnotations{
		DestructiveHint: boolPtr(true),
		OpenWorldHint:   boolPtr(false),
	}
}

// registerTools adds all splice tools to the server.
func registerTools(server *mcp.Server, eng *engine.Engine) {
	mcp.AddTool(server, &mcp.Tool{
		Name: "apply_fix",
		Description: "Apply a fix (a list of insert/delete/replace changes) to files on disk. " +
			"Files are backed up first; any failure restores them byte for byte. " +
			"Risky fixes are subject to the server's confirmation policy.",
		Annotations: destructiveAnnotations(),
	}, handleApply(eng))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "check_fix",
		Description: "Run preflight checks and risk assessment for a fix without modifying any file.",
		Annotations: readOnlyAnnotations(),
	}, handleCheck(eng))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "assess_risk",
		Description: "Score how risky a fix is and whether it needs confirmation before being applied.",
		Annotations: readOnlyAnnotations(),
	}, handleAssess(eng))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_stats",
		Description: "Show apply statistics: totals, success rate, counts by fix type and complexity, and recent attempts.",
		Annotations: readOnlyAnnotations(),
	}, handleStats(eng))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_backups",
		Description: "List backup artifacts on disk grouped by fix id, for manual recovery after a crash.",
		Annotations: readOnlyAnnotations(),
	}, handleListBackups(eng))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "cleanup_backups",
		Description: "Delete backup artifacts older than max_age (default 24h). Backups of fixes still being applied are kept.",
		Annotations: destructiveAnnotations(),
	}, handleCleanup(eng))
}
