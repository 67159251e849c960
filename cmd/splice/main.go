// Package main provides the entry point for the splice CLI.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/gorewood/splice/internal/output"
)

// Build info set via ldflags at build time by goreleaser.
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123 -X main.date=2024-01-01"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// persistentFlag reads a root persistent flag from the command hierarchy.
func persistentFlag(cmd *cobra.Command, name string) string {
	flag := cmd.Flags().Lookup(name)
	if flag == nil {
		// Walk up to root to find the persistent flag
		flag = cmd.Root().PersistentFlags().Lookup(name)
	}
	if flag == nil {
		return ""
	}
	return flag.Value.String()
}

// isJSONMode reads the --json persistent flag from the command hierarchy.
func isJSONMode(cmd *cobra.Command) bool {
	return persistentFlag(cmd, "json") == "true"
}

// newPrinter builds the printer for cmd from --json and --color.
func newPrinter(cmd *cobra.Command) *output.Printer {
	out := cmd.OutOrStdout()
	color := output.UseColor(persistentFlag(cmd, "color"), out)
	return output.NewPrinter(out, isJSONMode(cmd), color).WithStderr(cmd.ErrOrStderr())
}

// buildVersion returns the full version string including commit and date.
func buildVersion() string {
	if commit == "none" && date == "unknown" {
		return version
	}
	shortCommit := commit
	if len(commit) > 7 {
		shortCommit = commit[:7]
	}
	return fmt.Sprintf("%s (%s, %s)", version, shortCommit, date)
}

func main() {
	code := run()
	os.Exit(code)
}

func run() int {
	cmd := newRootCmd()
	err := fang.Execute(context.Background(), cmd, fang.WithVersion(buildVersion()))
	return output.GetExitCode(err)
}

// newRootCmd creates the root command for the splice CLI.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "splice",
		Short: "Apply generated code fixes safely",
		Long: `Splice - apply machine-generated code fixes with backup and rollback.

Every fix goes through the same pipeline:
  - Preflight: target files exist, are writable and have not changed
  - Risk: low-confidence, large or critical-file fixes need a policy decision
  - Backup: every target file is snapshotted before the first write
  - Execute and validate: changes are applied in order and checked
  - Commit or roll back: any failure restores every file byte for byte

All commands support --json for structured output.`,
		Version:       buildVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// If --json flag is set but no subcommand, output JSON error
			if isJSONMode(cmd) {
				printer := output.NewPrinter(cmd.OutOrStdout(), true, false)
				err := output.NewUserError("no command specified. Run 'splice --help' for usage")
				printer.Error(err)
				return err
			}
			return cmd.Help()
		},
	}

	cmd.PersistentFlags().Bool("json", false, "Output in JSON format")
	cmd.PersistentFlags().String("color", output.ColorAuto, "Color output: auto, always or never")
	cmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn or error (overrides config)")
	cmd.PersistentFlags().String("config", "", "Extra config file layered over the global and project config")

	// Configure lipgloss for TTY detection
	lipgloss.SetHasDarkBackground(true)

	addCommandGroups(cmd)
	addCommands(cmd)

	return cmd
}

// addCommandGroups defines the command groups for help output.
func addCommandGroups(cmd *cobra.Command) {
	cmd.AddGroup(&cobra.Group{ID: "core", Title: "Core Commands:"})
	cmd.AddGroup(&cobra.Group{ID: "query", Title: "Query Commands:"})
	cmd.AddGroup(&cobra.Group{ID: "admin", Title: "Admin Commands:"})
}

// addCommands adds all subcommands with their group assignments.
func addCommands(cmd *cobra.Command) {
	// Core commands: apply, check
	addGroupedCommand(cmd, newApplyCmd(), "core")
	addGroupedCommand(cmd, newCheckCmd(), "core")

	// Query commands: risk, stats, backups
	addGroupedCommand(cmd, newRiskCmd(), "query")
	addGroupedCommand(cmd, newStatsCmd(), "query")
	addGroupedCommand(cmd, newBackupsCmd(), "query")

	// Admin commands: cleanup, serve
	addGroupedCommand(cmd, newCleanupCmd(), "admin")
	addGroupedCommand(cmd, newServeCmd(), "admin")
}

// addGroupedCommand adds a subcommand with a group assignment.
func addGroupedCommand(parent *cobra.Command, child *cobra.Command, groupID string) {
	child.GroupID = groupID
	parent.AddCommand(child)
}
