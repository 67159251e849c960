// Package validate checks postconditions after a fix has been written.
//
// The files_exist rule always runs first: a fix is never reported applied
// unless every touched file still exists as a regular file. Further rules
// are optional and run in the order given.
package validate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/gorewood/splice/internal/executor"
	"github.com/gorewood/splice/internal/fix"
)

// Rule is one postcondition over the files a fix touched.
type Rule interface {
	Name() string
	Check(ctx context.Context, paths []string) error
}

// RuleResult records the outcome of one rule.
type RuleResult struct {
	Rule   string `json:"rule"`
	Passed bool   `json:"passed"`
	Error  string `json:"error,omitempty"`
}

// Result is the validation verdict for one fix.
type Result struct {
	Valid  bool         `json:"valid"`
	Reason string       `json:"reason,omitempty"`
	Rules  []RuleResult `json:"rules,omitempty"`
}

// Validator runs the baseline rule followed by any extra rules.
type Validator struct {
	rules  []Rule
	logger *slog.Logger
}

// New creates a Validator. FilesExist is always prepended to extra.
func New(logger *slog.Logger, extra ...Rule) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	rules := make([]Rule, 0, len(extra)+1)
	rules = append(rules, FilesExist{})
	for _, r := range extra {
		if r != nil {
			rules = append(rules, r)
		}
	}
	return &Validator{rules: rules, logger: logger.With("component", "validator")}
}

// Validate checks the files f touched after exec. Rules stop at the first
// failure.
func (v *Validator) Validate(ctx context.Context, f fix.Fix, fctx fix.Context, exec executor.Result) Result {
	if !exec.Success {
		return Result{Reason: "execution did not complete"}
	}

	paths := fix.TargetPaths(f, fctx)
	var result Result
	for _, rule := range v.rules {
		if err := ctx.Err(); err != nil {
			result.Reason = "canceled: " + err.Error()
			return result
		}
		if err := rule.Check(ctx, paths); err != nil {
			result.Rules = append(result.Rules, RuleResult{Rule: rule.Name(), Error: err.Error()})
			result.Reason = fmt.Sprintf("%s: %v", rule.Name(), err)
			v.logger.Debug("validation failed", "rule", rule.Name(), "error", err)
			return result
		}
		result.Rules = append(result.Rules, RuleResult{Rule: rule.Name(), Passed: true})
	}
	result.Valid = true
	return result
}

// FilesExist requires every touched path to still be a regular file.
type FilesExist struct{}

// Name implements Rule.
func (FilesExist) Name() string { return "files_exist" }

// Check implements Rule.
func (FilesExist) Check(_ context.Context, paths []string) error {
	var errs []error
	for _, path := range paths {
		info, err := os.Stat(path)
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
		case !info.Mode().IsRegular():
			errs = append(errs, fmt.Errorf("%s: not a regular file", path))
		}
	}
	return errors.Join(errs...)
}
