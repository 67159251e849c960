package main

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/gorewood/splice/internal/engine"
	"github.com/gorewood/splice/internal/output"
)

// defaultRecentRows is how many recent attempts the human view lists.
const defaultRecentRows = 10

// newStatsCmd creates the stats command.
func newStatsCmd() *cobra.Command {
	var recent int

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show apply statistics from the history journal",
		Long: `Show lifetime apply statistics replayed from the history journal:
totals, success rate, counts by fix type and complexity, and the most
recent attempts.

Examples:
  splice stats
  splice stats --recent 25
  splice stats --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStats(cmd, recent)
		},
	}

	cmd.Flags().IntVar(&recent, "recent", defaultRecentRows, "Recent attempts to list (human output)")

	return cmd
}

// runStats executes the stats command.
func runStats(cmd *cobra.Command, recent int) error {
	printer := newPrinter(cmd)

	a, err := newApp(cmd, "")
	if err != nil {
		printer.Error(err)
		return err
	}
	stats := a.newEngine(nil, nil).Stats()

	if printer.IsJSON() {
		return printer.WriteJSON(stats)
	}
	printStatsHuman(printer, stats, recent)
	return nil
}

// printStatsHuman renders stats as sections and tables.
func printStatsHuman(printer *output.Printer, stats engine.Stats, recent int) {
	if stats.TotalApplied == 0 {
		printer.Println("No fixes applied yet.")
		return
	}

	printer.Section("Summary")
	printer.KeyValue("Total", strconv.Itoa(stats.TotalApplied))
	printer.KeyValue("Successful", strconv.Itoa(stats.SuccessfulFixes))
	printer.KeyValue("Failed", strconv.Itoa(stats.FailedFixes))
	printer.KeyValue("Rolled back", strconv.Itoa(stats.RolledBackFixes))
	printer.KeyValue("Success rate", fmt.Sprintf("%.1f%%", stats.SuccessRate))

	printer.Section("By type")
	printer.Table([]string{"TYPE", "COUNT"}, countRows(stats.ByType))

	printer.Section("By complexity")
	printer.Table([]string{"COMPLEXITY", "COUNT"}, countRows(stats.ByComplexity))

	rows := stats.RecentFixes
	if recent >= 0 && len(rows) > recent {
		rows = rows[len(rows)-recent:]
	}
	if len(rows) == 0 {
		return
	}
	printer.Section("Recent")
	table := make([][]string, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		rec := rows[i]
		outcome := "applied"
		if !rec.Success {
			outcome = string(rec.Failure)
		}
		table = append(table, []string{
			rec.Timestamp.Local().Format(time.DateTime),
			rec.Type,
			outcome,
			strconv.Itoa(rec.Files),
			rec.FixID,
		})
	}
	printer.Table([]string{"WHEN", "TYPE", "OUTCOME", "FILES", "FIX"}, table)
}

// countRows turns a count map into table rows sorted by key.
func countRows(counts map[string]int) [][]string {
	rows := make([][]string, 0, len(counts))
	for _, key := range slices.Sorted(maps.Keys(counts)) {
		rows = append(rows, []string{key, strconv.Itoa(counts[key])})
	}
	return rows
}
