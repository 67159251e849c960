package engine

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gorewood/splice/internal/executor"
	"github.com/gorewood/splice/internal/preflight"
	"github.com/gorewood/splice/internal/risk"
	"github.com/gorewood/splice/internal/rollback"
	"github.com/gorewood/splice/internal/validate"
)

// FailureKind classifies why an apply attempt did not commit.
type FailureKind string

// Failure kinds. Preflight and declined failures never touch the disk.
const (
	FailurePreflight   FailureKind = "preflight"
	FailureDeclined    FailureKind = "declined"
	FailureApplication FailureKind = "application"
	FailureValidation  FailureKind = "validation"
	FailureUnexpected  FailureKind = "unexpected"
	FailureCanceled    FailureKind = "canceled"
)

// Errors returned by ApplyResult.Err, one per FailureKind, plus ErrRollback
// joined in when restoring files also failed.
var (
	ErrPreflight   = errors.New("preflight failed")
	ErrDeclined    = errors.New("fix declined")
	ErrApplication = errors.New("fix application failed")
	ErrValidation  = errors.New("validation failed")
	ErrUnexpected  = errors.New("unexpected failure")
	ErrCanceled    = errors.New("apply canceled")
	ErrRollback    = errors.New("rollback incomplete")
)

// Details carries the per-stage reports of one attempt. Stages that did not
// run are nil.
type Details struct {
	Preflight *preflight.Result `json:"preflight,omitempty"`
	Risk      *risk.Assessment  `json:"risk,omitempty"`
	Decision  *risk.Decision    `json:"decision,omitempty"`
	Backups   int               `json:"backups"`
	Execution *executor.Result  `json:"execution,omitempty"`
	Rollback  *rollback.Result  `json:"rollback,omitempty"`
}

// ApplyResult is the single outcome of one apply attempt. Success results
// carry Message; failures carry Reason and Failure.
//
// RolledBack is true only when every touched file was restored. After a
// partial restore it is false and Details.Rollback lists what failed.
type ApplyResult struct {
	FixID      string           `json:"fixId"`
	Success    bool             `json:"success"`
	Message    string           `json:"message,omitempty"`
	Reason     string           `json:"reason,omitempty"`
	Failure    FailureKind      `json:"failure,omitempty"`
	RolledBack bool             `json:"rolledBack"`
	Details    Details          `json:"details"`
	Validation *validate.Result `json:"validation,omitempty"`
	Duration   time.Duration    `json:"duration"`
}

// Outcome is Failure, or "success" for a committed fix.
func (r ApplyResult) Outcome() string {
	if r.Success {
		return "success"
	}
	return string(r.Failure)
}

// Err converts a failed result into an error wrapping the sentinel for its
// FailureKind. It returns nil for a successful result.
func (r ApplyResult) Err() error {
	if r.Success {
		return nil
	}
	var base error
	switch r.Failure {
	case FailurePreflight:
		base = ErrPreflight
	case FailureDeclined:
		base = ErrDeclined
	case FailureApplication:
		base = ErrApplication
	case FailureValidation:
		base = ErrValidation
	case FailureCanceled:
		base = ErrCanceled
	default:
		base = ErrUnexpected
	}
	err := fmt.Errorf("%w: %s", base, r.Reason)
	if rb := r.Details.Rollback; rb != nil && len(rb.Errors) > 0 {
		err = errors.Join(err, fmt.Errorf("%w: %s", ErrRollback, strings.Join(rb.Errors, "; ")))
	}
	return err
}

func (r *ApplyResult) fail(kind FailureKind, reason string) {
	r.Success = false
	r.Failure = kind
	r.Reason = reason
}
