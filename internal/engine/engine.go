// Package engine orchestrates the safe application of a fix.
//
// Every attempt runs the same pipeline:
//
//	PREFLIGHT -> CONFIRM? -> BACKUP -> EXECUTE -> VALIDATE -> COMMIT | ROLLBACK
//
// Preflight and confirmation failures end the attempt before anything is
// written. Once BACKUP has begun, any failure, cancellation or panic rolls
// back, so after Apply returns every target file holds either its new
// content or its original bytes and no backups remain for the attempt.
//
// Attempts on disjoint files run concurrently. Attempts sharing a file
// serialize on a per-path lock held from BACKUP until commit or rollback.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/gorewood/splice/internal/backup"
	"github.com/gorewood/splice/internal/executor"
	"github.com/gorewood/splice/internal/fix"
	"github.com/gorewood/splice/internal/metrics"
	"github.com/gorewood/splice/internal/preflight"
	"github.com/gorewood/splice/internal/risk"
	"github.com/gorewood/splice/internal/rollback"
	"github.com/gorewood/splice/internal/validate"
)

// DefaultMaxBackupAge is the CleanupOldBackups threshold used when none is
// given.
const DefaultMaxBackupAge = 24 * time.Hour

// Options configures an Engine. Nil fields get defaults.
type Options struct {
	Preflight *preflight.Checker
	Assessor  *risk.Assessor
	Policy    risk.Policy
	Executor  *executor.Executor
	Validator *validate.Validator
	Logger    *slog.Logger
	Metrics   *metrics.Recorder
	Journal   *Journal

	// IDFunc generates the fixId of each attempt.
	IDFunc func() string
	Now    func() time.Time
}

// Engine applies fixes. It is safe for concurrent use.
type Engine struct {
	backups   *backup.Manager
	preflight *preflight.Checker
	assessor  *risk.Assessor
	policy    risk.Policy
	executor  *executor.Executor
	validator *validate.Validator
	rollback  *rollback.Coordinator
	metrics   *metrics.Recorder
	journal   *Journal
	logger    *slog.Logger
	newID     func() string
	now       func() time.Time

	locks *pathLocks
	stats *tracker
}

// New creates an Engine storing backups through backups.
func New(backups *backup.Manager, opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		backups:   backups,
		preflight: opts.Preflight,
		assessor:  opts.Assessor,
		policy:    opts.Policy,
		executor:  opts.Executor,
		validator: opts.Validator,
		rollback:  rollback.New(backups, logger),
		metrics:   opts.Metrics,
		journal:   opts.Journal,
		logger:    logger.With("component", "engine"),
		newID:     opts.IDFunc,
		now:       opts.Now,
		locks:     newPathLocks(),
		stats:     newTracker(),
	}
	if e.preflight == nil {
		e.preflight = preflight.New(preflight.Options{Space: backups.Store().AvailableBytes, Logger: logger})
	}
	if e.assessor == nil {
		e.assessor = risk.NewAssessor()
	}
	if e.policy == nil {
		e.policy = risk.AutoApprove{Threshold: risk.DefaultAutoApproveThreshold}
	}
	if e.executor == nil {
		e.executor = executor.New(logger)
	}
	if e.validator == nil {
		e.validator = validate.New(logger)
	}
	if e.newID == nil {
		e.newID = NewFixID
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

// NewFixID returns a random fixId. It never contains an underscore, so it
// can be recovered from backup artifact names.
func NewFixID() string {
	return "fix-" + uuid.NewString()
}

// Report is the read-only verdict on a fix: would preflight pass, and
// would it need confirmation.
type Report struct {
	Preflight preflight.Result `json:"preflight"`
	Risk      risk.Assessment  `json:"risk"`
}

// Check runs preflight and risk assessment without touching any file.
func (e *Engine) Check(ctx context.Context, f fix.Fix, fctx fix.Context) Report {
	return Report{
		Preflight: e.preflight.Check(ctx, f, fctx),
		Risk:      e.assessor.Assess(f),
	}
}

// Assess returns the risk assessment of f.
func (e *Engine) Assess(f fix.Fix) risk.Assessment {
	return e.assessor.Assess(f)
}

// Apply runs f through the pipeline. Every outcome, including panics in
// collaborators, is reported in the returned ApplyResult.
func (e *Engine) Apply(ctx context.Context, f fix.Fix, fctx fix.Context) ApplyResult {
	start := e.now()
	result := ApplyResult{FixID: e.newID()}
	logger := e.logger.With("fix_id", result.FixID, "fix_type", f.Type)

	e.run(ctx, f, fctx, &result, logger)

	result.Duration = e.now().Sub(start)
	e.finish(ctx, f, fctx, result, logger)
	return result
}

func (e *Engine) run(ctx context.Context, f fix.Fix, fctx fix.Context, result *ApplyResult, logger *slog.Logger) {
	defer func() {
		// Before BACKUP nothing was written; after it mutate recovers itself.
		if p := recover(); p != nil {
			logger.Error("panic before backup", "panic", p, "stack", string(debug.Stack()))
			result.fail(FailureUnexpected, fmt.Sprintf("Unexpected error: %v", p))
		}
	}()

	if err := ctx.Err(); err != nil {
		result.fail(FailureCanceled, "Canceled: "+err.Error())
		return
	}

	pre := e.preflight.Check(ctx, f, fctx)
	result.Details.Preflight = &pre
	if !pre.Passed {
		if err := ctx.Err(); err != nil {
			result.fail(FailureCanceled, "Canceled: "+err.Error())
			return
		}
		result.fail(FailurePreflight, "Preflight check failed: "+pre.Reason)
		return
	}
	for _, w := range pre.Warnings() {
		logger.Warn("preflight warning", "check", w.Name, "path", w.Path, "message", w.Message)
	}

	assessment := e.assessor.Assess(f)
	result.Details.Risk = &assessment
	e.metrics.ObserveRisk(assessment.Score)

	if assessment.RequiresConfirmation {
		decision, err := e.policy.Decide(ctx, f, assessment)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				result.fail(FailureCanceled, "Canceled: "+ctxErr.Error())
				return
			}
			result.fail(FailureUnexpected, "Confirmation failed: "+err.Error())
			return
		}
		result.Details.Decision = &decision
		if !decision.Approved {
			reason := decision.Reason
			if reason == "" {
				reason = risk.ReasonPolicyDeclined
			}
			result.fail(FailureDeclined, reason)
			return
		}
	}

	release, err := e.locks.acquire(ctx, fix.TargetPaths(f, fctx))
	if err != nil {
		result.fail(FailureCanceled, "Canceled waiting for file locks: "+err.Error())
		return
	}
	defer release()

	e.mutate(ctx, f, fctx, result, logger)
}

// mutate runs BACKUP through COMMIT or ROLLBACK with the path locks held.
func (e *Engine) mutate(ctx context.Context, f fix.Fix, fctx fix.Context, result *ApplyResult, logger *slog.Logger) {
	fixID := result.FixID
	defer func() {
		if p := recover(); p != nil {
			logger.Error("panic during apply", "panic", p, "stack", string(debug.Stack()))
			e.rollBack(ctx, result, logger)
			result.fail(FailureUnexpected, fmt.Sprintf("Unexpected error: %v", p))
		}
	}()

	backups, err := e.backups.CreateBackups(ctx, f, fctx, fixID)
	result.Details.Backups = len(backups)
	e.metrics.SetActiveBackups(e.backups.Active())
	if errors.Is(err, backup.ErrFixInFlight) {
		// The registry entry belongs to another attempt; leave it alone.
		result.fail(FailureUnexpected, "Backup failed: "+err.Error())
		return
	}
	if err != nil {
		e.rollBack(ctx, result, logger)
		if ctxErr := ctx.Err(); ctxErr != nil {
			result.fail(FailureCanceled, "Canceled: "+ctxErr.Error())
			return
		}
		result.fail(FailureUnexpected, "Backup failed: "+err.Error())
		return
	}

	if e.canceled(ctx, result, logger) {
		return
	}

	exec := e.executor.Execute(ctx, f, fctx, fixID)
	result.Details.Execution = &exec
	if !exec.Success {
		e.rollBack(ctx, result, logger)
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(exec.Err, ctxErr) {
			result.fail(FailureCanceled, "Canceled: "+ctxErr.Error())
			return
		}
		result.fail(FailureApplication, "Fix application failed: "+exec.Error)
		return
	}

	if e.canceled(ctx, result, logger) {
		return
	}

	val := e.validator.Validate(ctx, f, fctx, exec)
	result.Validation = &val
	if !val.Valid {
		e.rollBack(ctx, result, logger)
		if ctxErr := ctx.Err(); ctxErr != nil {
			result.fail(FailureCanceled, "Canceled: "+ctxErr.Error())
			return
		}
		result.fail(FailureValidation, "Validation failed: "+val.Reason)
		return
	}

	if err := e.backups.Cleanup(fixID); err != nil {
		logger.Warn("commit left backup artifacts behind", "error", err)
	}
	result.Success = true
	result.Message = fmt.Sprintf("Applied %d change(s) to %d file(s)", len(f.Changes), len(fix.TargetPaths(f, fctx)))
}

// canceled rolls back and fails the result when ctx is done.
func (e *Engine) canceled(ctx context.Context, result *ApplyResult, logger *slog.Logger) bool {
	err := ctx.Err()
	if err == nil {
		return false
	}
	e.rollBack(ctx, result, logger)
	result.fail(FailureCanceled, "Canceled: "+err.Error())
	return true
}

// rollBack restores the attempt's backups. It runs detached from ctx
// cancellation: an interrupted apply must still be undone.
func (e *Engine) rollBack(ctx context.Context, result *ApplyResult, logger *slog.Logger) {
	defer func() {
		if p := recover(); p != nil {
			logger.Error("panic during rollback", "panic", p, "stack", string(debug.Stack()))
			rb := rollback.Result{Errors: []string{fmt.Sprintf("rollback panicked: %v", p)}}
			result.Details.Rollback = &rb
			e.metrics.ObserveRollback(true)
		}
	}()

	rb := e.rollback.Rollback(context.WithoutCancel(ctx), result.FixID)
	result.Details.Rollback = &rb
	result.RolledBack = rb.RolledBack && len(rb.Errors) == 0
	e.metrics.ObserveRollback(len(rb.Errors) > 0)
	if len(rb.Errors) > 0 {
		logger.Error("rollback incomplete", "errors", rb.Errors)
	}
}

// finish records the attempt in stats, the journal and metrics.
func (e *Engine) finish(ctx context.Context, f fix.Fix, fctx fix.Context, result ApplyResult, logger *slog.Logger) {
	rec := Record{
		FixID:      result.FixID,
		Type:       f.Type,
		Complexity: f.EffectiveComplexity(),
		Success:    result.Success,
		RolledBack: result.RolledBack,
		Failure:    result.Failure,
		Reason:     result.Reason,
		Files:      len(fix.TargetPaths(f, fctx)),
		Timestamp:  e.now().UTC(),
		DurationMS: result.Duration.Milliseconds(),
	}
	e.stats.add(rec)
	if e.journal != nil {
		if err := e.journal.Append(rec); err != nil {
			logger.Warn("history not recorded", "error", err)
		}
	}
	e.metrics.ObserveApply(result.Outcome(), f.Type, result.Duration)
	e.metrics.SetActiveBackups(e.backups.Active())

	if result.Success {
		logger.LogAttrs(ctx, slog.LevelInfo, "fix applied",
			slog.Int("changes", len(f.Changes)),
			slog.Duration("duration", result.Duration))
		return
	}
	logger.LogAttrs(ctx, slog.LevelWarn, "fix not applied",
		slog.String("failure", string(result.Failure)),
		slog.String("reason", result.Reason),
		slog.Bool("rolled_back", result.RolledBack))
}

// Stats returns the rolling summary of attempts made by this engine plus
// any history loaded with LoadHistory.
func (e *Engine) Stats() Stats {
	s := e.stats.snapshot()
	s.ActiveBackups = e.backups.Active()
	return s
}

// LoadHistory replays the journal into the stats tracker. It is meant for
// short-lived processes and should be called once, before any Apply.
func (e *Engine) LoadHistory() error {
	if e.journal == nil {
		return nil
	}
	records, err := e.journal.Records()
	for _, rec := range records {
		e.stats.add(rec)
	}
	return err
}

// CleanupOldBackups removes backup artifacts older than maxAge, keeping
// those of attempts still in flight. maxAge <= 0 means DefaultMaxBackupAge.
func (e *Engine) CleanupOldBackups(maxAge time.Duration) (backup.SweepResult, error) {
	if maxAge <= 0 {
		maxAge = DefaultMaxBackupAge
	}
	result, err := e.backups.CleanupOld(maxAge)
	e.metrics.ObserveSweep(len(result.Removed))
	if len(result.Removed) > 0 {
		e.logger.Info("old backups removed", "count", len(result.Removed), "max_age", maxAge)
	}
	return result, err
}

// Backups returns the backup manager.
func (e *Engine) Backups() *backup.Manager {
	return e.backups
}
