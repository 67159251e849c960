package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/gorewood/splice/internal/backup"
	"github.com/gorewood/splice/internal/engine"
	"github.com/gorewood/splice/internal/fix"
	"github.com/gorewood/splice/internal/risk"
)

// --- Shared input ---

// FixInput carries a fix and the paths it resolves against.
type FixInput struct {
	Fix         fix.Fix `json:"fix"                    jsonschema:"the fix to apply: type, confidence (0..1), changes[] and optional metadata.complexity"`
	ProjectRoot string  `json:"project_root,omitempty" jsonschema:"directory relative change paths resolve against"`
	Cwd         string  `json:"cwd,omitempty"          jsonschema:"fallback base directory when project_root is empty"`
}

func (in FixInput) fixContext() fix.Context {
	return fix.Context{ProjectRoot: in.ProjectRoot, Cwd: in.Cwd}
}

// --- apply_fix ---

func handleApply(eng *engine.Engine) mcp.ToolHandlerFor[FixInput, engine.ApplyResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input FixInput) (*mcp.CallToolResult, engine.ApplyResult, error) {
		if err := fix.Validate(input.Fix); err != nil {
			return nil, engine.ApplyResult{}, err
		}
		// A fix that is not applied is a result, not a tool error: the agent
		// needs the reason and the rollback report.
		return nil, eng.Apply(ctx, input.Fix, input.fixContext()), nil
	}
}

// --- check_fix ---

func handleCheck(eng *engine.Engine) mcp.ToolHandlerFor[FixInput, engine.Report] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input FixInput) (*mcp.CallToolResult, engine.Report, error) {
		if err := fix.Validate(input.Fix); err != nil {
			return nil, engine.Report{}, err
		}
		return nil, eng.Check(ctx, input.Fix, input.fixContext()), nil
	}
}

// --- assess_risk ---

// AssessInput is the input for the assess_risk tool.
type AssessInput struct {
	Fix fix.Fix `json:"fix" jsonschema:"the fix to assess"`
}

func handleAssess(eng *engine.Engine) mcp.ToolHandlerFor[AssessInput, risk.Assessment] {
	return func(_ context.Context, _ *mcp.CallToolRequest, input AssessInput) (*mcp.CallToolResult, risk.Assessment, error) {
		if err := fix.Validate(input.Fix); err != nil {
			return nil, risk.Assessment{}, err
		}
		return nil, eng.Assess(input.Fix), nil
	}
}

// --- get_stats ---

// StatsInput is the input for the get_stats tool (no parameters needed).
type StatsInput struct{}

func handleStats(eng *engine.Engine) mcp.ToolHandlerFor[StatsInput, engine.Stats] {
	return func(_ context.Context, _ *mcp.CallToolRequest, _ StatsInput) (*mcp.CallToolResult, engine.Stats, error) {
		return nil, eng.Stats(), nil
	}
}

// --- list_backups ---

// ListBackupsInput is the input for the list_backups tool.
type ListBackupsInput struct {
	FixID string `json:"fix_id,omitempty" jsonschema:"only list artifacts of this fix id"`
}

// ListBackupsOutput is the output for the list_backups tool.
type ListBackupsOutput struct {
	Dir    string         `json:"dir"    jsonschema:"backup directory"`
	Groups []backup.Group `json:"groups" jsonschema:"artifacts grouped by fix id, newest first"`
}

func handleListBackups(eng *engine.Engine) mcp.ToolHandlerFor[ListBackupsInput, ListBackupsOutput] {
	return func(_ context.Context, _ *mcp.CallToolRequest, input ListBackupsInput) (*mcp.CallToolResult, ListBackupsOutput, error) {
		store := eng.Backups().Store()
		artifacts, err := store.List()
		if err != nil {
			return nil, ListBackupsOutput{}, err
		}
		out := ListBackupsOutput{Dir: store.Dir(), Groups: []backup.Group{}}
		for _, g := range backup.GroupByFix(artifacts) {
			if input.FixID == "" || g.FixID == input.FixID {
				out.Groups = append(out.Groups, g)
			}
		}
		return nil, out, nil
	}
}

// --- cleanup_backups ---

// CleanupInput is the input for the cleanup_backups tool.
type CleanupInput struct {
	MaxAge string `json:"max_age,omitempty" jsonschema:"minimum artifact age to delete as a Go duration such as 24h or 90m"`
}

func handleCleanup(eng *engine.Engine) mcp.ToolHandlerFor[CleanupInput, backup.SweepResult] {
	return func(_ context.Context, _ *mcp.CallToolRequest, input CleanupInput) (*mcp.CallToolResult, backup.SweepResult, error) {
		var maxAge time.Duration
		if input.MaxAge != "" {
			d, err := time.ParseDuration(input.MaxAge)
			if err != nil || d <= 0 {
				return nil, backup.SweepResult{}, fmt.Errorf("max_age must be a positive duration, got %q", input.MaxAge)
			}
			maxAge = d
		}
		result, err := eng.CleanupOldBackups(maxAge)
		if err != nil {
			return nil, result, fmt.Errorf("cleaning up backups: %w", err)
		}
		return nil, result, nil
	}
}
