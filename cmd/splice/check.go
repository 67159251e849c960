package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gorewood/splice/internal/engine"
	"github.com/gorewood/splice/internal/fix"
	"github.com/gorewood/splice/internal/output"
	"github.com/gorewood/splice/internal/preflight"
	"github.com/gorewood/splice/internal/risk"
)

// newCheckCmd creates the check command.
func newCheckCmd() *cobra.Command {
	var projectRoot string

	cmd := &cobra.Command{
		Use:   "check <fix-file>",
		Short: "Run preflight and risk checks without changing files",
		Long: `Run the preflight checks and the risk assessment for a fix without
modifying anything.

Preflight verifies each target file exists, is writable, still matches any
expectSha256 pin, and that the backup directory has room. Files with
uncommitted git changes are reported as warnings.

Exits with code 3 when preflight fails.

Examples:
  splice check fix.yaml
  splice check --json fix.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd, projectRoot, args[0])
		},
	}

	cmd.Flags().StringVar(&projectRoot, "project-root", "", "Directory relative change paths resolve against (default: working directory)")

	return cmd
}

// runCheck executes the check command.
func runCheck(cmd *cobra.Command, projectRoot, file string) error {
	printer := newPrinter(cmd)

	a, err := newApp(cmd, projectRoot)
	if err != nil {
		printer.Error(err)
		return err
	}
	f, err := fix.Load(file)
	if err != nil {
		err = output.NewUserErrorWithCause(err.Error(), err)
		printer.Error(err)
		return err
	}

	report := a.newEngine(nil, nil).Check(cmd.Context(), f, a.fixContext())

	var exitErr error
	if !report.Preflight.Passed {
		exitErr = output.NewConflictErrorWithCause("preflight failed: "+report.Preflight.Reason, engine.ErrPreflight)
	}

	if printer.IsJSON() {
		if err := printer.WriteJSON(report); err != nil {
			return err
		}
		return exitErr
	}

	printPreflight(printer, report.Preflight)
	printAssessment(printer, report.Risk)
	if exitErr != nil {
		printer.Error(exitErr)
	}
	return exitErr
}

// newRiskCmd creates the risk command.
func newRiskCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "risk <fix-file>",
		Short: "Score how risky a fix is",
		Long: `Score a fix and report whether it needs confirmation before being applied.

The score combines confidence, complexity, number of changes and whether
critical files (manifests, lockfiles, build config, plus critical_files
from config) are touched. No target file is read.

Examples:
  splice risk fix.yaml
  splice risk --json fix.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRisk(cmd, args[0])
		},
	}
}

// runRisk executes the risk command.
func runRisk(cmd *cobra.Command, file string) error {
	printer := newPrinter(cmd)

	a, err := newApp(cmd, "")
	if err != nil {
		printer.Error(err)
		return err
	}
	f, err := fix.Load(file)
	if err != nil {
		err = output.NewUserErrorWithCause(err.Error(), err)
		printer.Error(err)
		return err
	}

	assessment := risk.NewAssessor(a.cfg.CriticalFiles...).Assess(f)
	if printer.IsJSON() {
		return printer.WriteJSON(assessment)
	}
	printAssessment(printer, assessment)
	return nil
}

// printPreflight renders the preflight checks as status lines.
func printPreflight(printer *output.Printer, result preflight.Result) {
	printer.Section("Preflight")
	for _, c := range result.Checks {
		message := c.Message
		if message == "" {
			message = c.Path
		}
		printer.Status(string(c.Status), c.Name, message)
		if c.Hint != "" && c.Status != preflight.StatusPass {
			printer.Println("       " + c.Hint)
		}
	}
}

// printAssessment renders a risk assessment.
func printAssessment(printer *output.Printer, a risk.Assessment) {
	printer.Section("Risk")
	printer.KeyValue("Level", string(a.Level))
	printer.KeyValue("Score", fmt.Sprintf("%.1f", a.Score))
	confirm := "no"
	if a.RequiresConfirmation {
		confirm = "yes"
	}
	printer.KeyValue("Needs confirmation", confirm)
	if len(a.Reasons) > 0 {
		printer.KeyValue("Reasons", strings.Join(a.Reasons, "; "))
	}
}
