package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/gorewood/splice/internal/engine"
	"github.com/gorewood/splice/internal/fix"
	"github.com/gorewood/splice/internal/output"
	"github.com/gorewood/splice/internal/risk"
)

// defaultJobs bounds how many fix files are applied at once.
const defaultJobs = 4

// applyFlags holds the command-line flags for the apply command.
type applyFlags struct {
	projectRoot string
	policy      string
	threshold   float64
	jobs        int
}

// applyOutcome is the result for one fix file. Error is set when the file
// could not be loaded; otherwise Result holds the engine's verdict.
type applyOutcome struct {
	File   string              `json:"file"`
	Error  string              `json:"error,omitempty"`
	Result *engine.ApplyResult `json:"result,omitempty"`
}

// newApplyCmd creates the apply command.
func newApplyCmd() *cobra.Command {
	flags := &applyFlags{}

	cmd := &cobra.Command{
		Use:   "apply <fix-file>...",
		Short: "Apply fix files with backup and rollback",
		Long: `Apply one or more fix files (YAML or JSON).

Each fix is applied atomically: its target files are backed up first and
restored byte for byte if any change fails or validation rejects the result.
Independent fix files are applied concurrently; fixes that touch the same
file are serialized.

Fixes that need confirmation (low confidence, more than three changes,
critical files, complex) are decided by the policy:
  auto         approve above --threshold confidence (default)
  interactive  ask on the terminal
  audit        approve and log a warning
  approve      approve everything
  deny         decline everything that needs confirmation

Exit codes: 0 all applied, 1 bad input, 2 system error, 3 a fix was
declined, blocked by preflight or rolled back.

Examples:
  splice apply fix.yaml
  splice apply --project-root ./service fixes/*.json
  splice apply --policy interactive risky.yaml
  splice apply --json fix.yaml`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(cmd, flags, args)
		},
	}

	cmd.Flags().StringVar(&flags.projectRoot, "project-root", "", "Directory relative change paths resolve against (default: working directory)")
	cmd.Flags().StringVar(&flags.policy, "policy", "", "Confirmation policy (overrides config)")
	cmd.Flags().Float64Var(&flags.threshold, "threshold", risk.DefaultAutoApproveThreshold, "Confidence above which the auto policy approves risky fixes")
	cmd.Flags().IntVar(&flags.jobs, "jobs", defaultJobs, "Maximum fix files applied concurrently")

	return cmd
}

// runApply executes the apply command.
func runApply(cmd *cobra.Command, flags *applyFlags, files []string) error {
	printer := newPrinter(cmd)

	a, err := newApp(cmd, flags.projectRoot)
	if err != nil {
		printer.Error(err)
		return err
	}
	if cmd.Flags().Changed("policy") {
		a.cfg.Policy = flags.policy
	}
	if cmd.Flags().Changed("threshold") {
		if flags.threshold < 0 || flags.threshold > 1 {
			err := output.NewUserError(fmt.Sprintf("--threshold must be within [0, 1], got %v", flags.threshold))
			printer.Error(err)
			return err
		}
		a.cfg.AutoApproveThreshold = flags.threshold
	}
	policy, err := a.policy()
	if err != nil {
		printer.Error(err)
		return err
	}

	jobs := max(flags.jobs, 1)
	if _, ok := policy.(*risk.Interactive); ok {
		// One prompt on the terminal at a time.
		jobs = 1
	}

	eng := a.newEngine(policy, nil)
	outcomes := applyAll(cmd.Context(), eng, a.fixContext(), files, jobs)

	exitErr := applyExitError(outcomes)
	if printer.IsJSON() {
		if err := printer.WriteJSON(applySummary(outcomes)); err != nil {
			return err
		}
		return exitErr
	}

	printApplyHuman(printer, outcomes)
	if exitErr != nil {
		printer.Error(exitErr)
	}
	return exitErr
}

// applyAll loads and applies every fix file, at most jobs at a time. The
// outcomes keep the order of files.
func applyAll(ctx context.Context, eng *engine.Engine, fctx fix.Context, files []string, jobs int) []applyOutcome {
	outcomes := make([]applyOutcome, len(files))

	var g errgroup.Group
	g.SetLimit(jobs)
	for i, file := range files {
		g.Go(func() error {
			outcomes[i].File = file
			f, err := fix.Load(file)
			if err != nil {
				outcomes[i].Error = err.Error()
				return nil
			}
			result := eng.Apply(ctx, f, fctx)
			outcomes[i].Result = &result
			return nil
		})
	}
	// Workers never fail; per-file errors live in outcomes.
	_ = g.Wait()

	return outcomes
}

// applyExitError maps outcomes to the command's exit error. An incomplete
// rollback outranks a bad fix file, which outranks a fix not applied.
func applyExitError(outcomes []applyOutcome) error {
	var loadFailed, rollbackFailed, notApplied int
	var causes []error
	for _, o := range outcomes {
		switch {
		case o.Error != "":
			loadFailed++
		case !o.Result.Success:
			err := o.Result.Err()
			causes = append(causes, err)
			if errors.Is(err, engine.ErrRollback) {
				rollbackFailed++
			} else {
				notApplied++
			}
		}
	}

	cause := errors.Join(causes...)
	switch {
	case rollbackFailed > 0:
		return output.NewSystemErrorWithCause(
			fmt.Sprintf("%d fix(es) could not be fully rolled back; originals are kept in the backup directory", rollbackFailed), cause)
	case loadFailed > 0:
		return output.NewUserError(fmt.Sprintf("%d fix file(s) could not be loaded", loadFailed))
	case notApplied > 0:
		return output.NewConflictErrorWithCause(
			fmt.Sprintf("%d of %d fix(es) not applied", notApplied, len(outcomes)), cause)
	}
	return nil
}

// applySummary is the JSON document for the apply command.
func applySummary(outcomes []applyOutcome) map[string]any {
	applied := 0
	for _, o := range outcomes {
		if o.Result != nil && o.Result.Success {
			applied++
		}
	}
	return map[string]any{
		"applied": applied,
		"failed":  len(outcomes) - applied,
		"results": outcomes,
	}
}

// printApplyHuman prints one verdict line per fix file plus details.
func printApplyHuman(printer *output.Printer, outcomes []applyOutcome) {
	for _, o := range outcomes {
		if o.Error != "" {
			printer.Outcome(false, o.Error)
			continue
		}
		r := o.Result
		if pf := r.Details.Preflight; pf != nil {
			for _, w := range pf.Warnings() {
				printer.Warn("%s: %s", o.File, w.Message)
			}
		}
		if r.Success {
			printer.Outcome(true, fmt.Sprintf("%s: %s (%s)", o.File, r.Message, r.FixID))
			continue
		}

		detail := fmt.Sprintf("%s: %s", o.File, r.Reason)
		switch rb := r.Details.Rollback; {
		case r.RolledBack:
			detail += " (rolled back)"
		case rb != nil && len(rb.Errors) > 0:
			detail += " (rollback incomplete)"
		}
		printer.Outcome(false, detail)
		if rb := r.Details.Rollback; rb != nil {
			for _, e := range rb.Errors {
				printer.Warn("rollback %s: %s", r.FixID, e)
			}
		}
	}
}
