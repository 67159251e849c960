package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/gorewood/splice/internal/backup"
	"github.com/gorewood/splice/internal/output"
)

// newBackupsCmd creates the backups command.
func newBackupsCmd() *cobra.Command {
	var fixID string

	cmd := &cobra.Command{
		Use:   "backups",
		Short: "List backup artifacts grouped by fix",
		Long: `List the backup artifacts in the backup directory, grouped by the fix
attempt that created them, newest first.

Artifacts normally disappear when a fix commits or rolls back. Artifacts
listed here belong to attempts that are still running or to a process that
died mid-apply; copy them back by hand to recover.

Examples:
  splice backups
  splice backups --fix-id fix-1b4e28ba-2fa1-11d2-883f-0016d3cca427
  splice backups --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBackups(cmd, fixID)
		},
	}

	cmd.Flags().StringVar(&fixID, "fix-id", "", "Only list artifacts of this fix")

	return cmd
}

// runBackups executes the backups command.
func runBackups(cmd *cobra.Command, fixID string) error {
	printer := newPrinter(cmd)

	a, err := newApp(cmd, "")
	if err != nil {
		printer.Error(err)
		return err
	}
	store := backup.NewStore(a.cfg.BackupDir)
	artifacts, err := store.List()
	if err != nil {
		err = output.NewSystemErrorWithCause(fmt.Sprintf("listing backups: %v", err), err)
		printer.Error(err)
		return err
	}

	groups := []backup.Group{}
	for _, g := range backup.GroupByFix(artifacts) {
		if fixID == "" || g.FixID == fixID {
			groups = append(groups, g)
		}
	}

	if printer.IsJSON() {
		return printer.WriteJSON(map[string]any{"dir": store.Dir(), "groups": groups})
	}
	if len(groups) == 0 {
		printer.Println("No backups in " + store.Dir())
		return nil
	}
	for _, g := range groups {
		printer.Section(g.FixID)
		rows := make([][]string, 0, len(g.Artifacts))
		for _, art := range g.Artifacts {
			rows = append(rows, []string{art.ModTime.Local().Format(time.DateTime), strconv.FormatInt(art.Size, 10), art.Path})
		}
		printer.Table([]string{"MODIFIED", "BYTES", "PATH"}, rows)
	}
	return nil
}

// newCleanupCmd creates the cleanup command.
func newCleanupCmd() *cobra.Command {
	var maxAge time.Duration

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete old backup artifacts",
		Long: `Delete backup artifacts older than --max-age. Artifacts of fixes that are
still being applied are never removed.

The default age comes from max_backup_age in config (24h unless set).

Examples:
  splice cleanup
  splice cleanup --max-age 2h
  splice cleanup --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCleanup(cmd, maxAge)
		},
	}

	cmd.Flags().DurationVar(&maxAge, "max-age", 0, "Minimum artifact age to delete (default: max_backup_age from config)")

	return cmd
}

// runCleanup executes the cleanup command.
func runCleanup(cmd *cobra.Command, maxAge time.Duration) error {
	printer := newPrinter(cmd)

	a, err := newApp(cmd, "")
	if err != nil {
		printer.Error(err)
		return err
	}
	if maxAge < 0 {
		err := output.NewUserError(fmt.Sprintf("--max-age must not be negative, got %v", maxAge))
		printer.Error(err)
		return err
	}
	if maxAge == 0 {
		maxAge = a.cfg.MaxBackupAge
	}

	result, err := a.newEngine(nil, nil).CleanupOldBackups(maxAge)
	if err != nil {
		err = output.NewSystemErrorWithCause(fmt.Sprintf("cleaning up backups: %v", err), err)
		printer.Error(err)
		return err
	}

	if printer.IsJSON() {
		return printer.WriteJSON(result)
	}
	for _, path := range result.Removed {
		printer.Println("removed " + path)
	}
	for _, e := range result.Errors {
		printer.Warn("%s", e)
	}
	return printer.Success(map[string]any{
		"message": fmt.Sprintf("Removed %d backup artifact(s)", len(result.Removed)),
	})
}
