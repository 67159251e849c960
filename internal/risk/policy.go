package risk

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gorewood/splice/internal/fix"
)

// Decline reasons reported when a policy refuses a fix.
const (
	ReasonUserDeclined   = "user declined"
	ReasonPolicyDeclined = "policy declined"
)

// DefaultAutoApproveThreshold is the confidence above which AutoApprove lets a
// risky fix through.
const DefaultAutoApproveThreshold = 0.8

// Decision is a policy verdict on one fix.
type Decision struct {
	Approved bool   `json:"approved"`
	Reason   string `json:"reason,omitempty"`
}

// Policy decides whether a fix that requires confirmation may be applied.
// The engine consults it only when the Assessor asks for confirmation.
type Policy interface {
	Decide(ctx context.Context, f fix.Fix, a Assessment) (Decision, error)
}

// PolicyFunc adapts a function to the Policy interface.
type PolicyFunc func(ctx context.Context, f fix.Fix, a Assessment) (Decision, error)

// Decide implements Policy.
func (fn PolicyFunc) Decide(ctx context.Context, f fix.Fix, a Assessment) (Decision, error) {
	return fn(ctx, f, a)
}

// AutoApprove approves fixes whose confidence is above Threshold. It exists
// for non-interactive automation; interactive front-ends should use
// Interactive instead.
type AutoApprove struct {
	Threshold float64
}

// Decide implements Policy.
func (p AutoApprove) Decide(_ context.Context, f fix.Fix, _ Assessment) (Decision, error) {
	if f.Confidence > p.Threshold {
		return Decision{Approved: true}, nil
	}
	return Decision{Reason: ReasonPolicyDeclined}, nil
}

// AlwaysApprove approves every fix.
type AlwaysApprove struct{}

// Decide implements Policy.
func (AlwaysApprove) Decide(context.Context, fix.Fix, Assessment) (Decision, error) {
	return Decision{Approved: true}, nil
}

// AlwaysDeny declines every fix that needs confirmation.
type AlwaysDeny struct{}

// Decide implements Policy.
func (AlwaysDeny) Decide(context.Context, fix.Fix, Assessment) (Decision, error) {
	return Decision{Reason: ReasonPolicyDeclined}, nil
}

// AuditApprove approves every fix and records the decision in the log.
type AuditApprove struct {
	Logger *slog.Logger
}

// Decide implements Policy.
func (p AuditApprove) Decide(ctx context.Context, f fix.Fix, a Assessment) (Decision, error) {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.LogAttrs(ctx, slog.LevelWarn, "risky fix approved without review",
		slog.String("component", "policy"),
		slog.String("fix_type", f.Type),
		slog.Float64("confidence", f.Confidence),
		slog.String("risk_level", string(a.Level)),
		slog.Float64("risk_score", a.Score),
		slog.String("reasons", strings.Join(a.Reasons, "; ")),
	)
	return Decision{Approved: true}, nil
}

// Policy names accepted by ParsePolicy.
const (
	PolicyAuto        = "auto"
	PolicyInteractive = "interactive"
	PolicyAudit       = "audit"
	PolicyApprove     = "approve"
	PolicyDeny        = "deny"
)

// PolicyNames lists the names ParsePolicy accepts.
func PolicyNames() []string {
	return []string{PolicyAuto, PolicyInteractive, PolicyAudit, PolicyApprove, PolicyDeny}
}

// ParsePolicy builds a Policy by name. threshold applies to "auto".
func ParsePolicy(name string, threshold float64, logger *slog.Logger) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", PolicyAuto:
		return AutoApprove{Threshold: threshold}, nil
	case PolicyInteractive:
		return NewInteractive(), nil
	case PolicyAudit:
		return AuditApprove{Logger: logger}, nil
	case PolicyApprove:
		return AlwaysApprove{}, nil
	case PolicyDeny:
		return AlwaysDeny{}, nil
	default:
		return nil, fmt.Errorf("unknown policy %q (want one of %s)", name, strings.Join(PolicyNames(), ", "))
	}
}
