// Package risk scores how dangerous a fix is to apply unattended.
package risk

import (
	"fmt"
	"math"
	"strings"

	"github.com/gorewood/splice/internal/fix"
)

// Level is the coarse risk bucket of a fix.
type Level string

// Risk levels.
const (
	Low    Level = "low"
	Medium Level = "medium"
	High   Level = "high"
)

// Thresholds used by RequiresConfirmation and Assess.
const (
	MinUnattendedConfidence = 0.7
	MaxUnattendedChanges    = 3

	mediumScore = 30
	highScore   = 60
)

// DefaultCriticalFiles are file names whose modification always needs
// confirmation: package manifests, lockfiles, build and environment config.
var DefaultCriticalFiles = []string{
	"package.json",
	"package-lock.json",
	"yarn.lock",
	"pnpm-lock.yaml",
	"tsconfig.json",
	"webpack.config.js",
	"vite.config.js",
	"babel.config.js",
	".babelrc",
	".eslintrc",
	"Dockerfile",
	"docker-compose.yml",
	".env",
	"go.mod",
	"go.sum",
	"Cargo.toml",
	"pyproject.toml",
	"requirements.txt",
	"Makefile",
}

// complexityWeight maps complexity to its score weight.
var complexityWeight = map[fix.Complexity]int{
	fix.ComplexitySimple:  1,
	fix.ComplexityMedium:  2,
	fix.ComplexityComplex: 4,
}

// Assessment is the full risk picture of a fix.
type Assessment struct {
	Level                Level    `json:"level"`
	Score                float64  `json:"score"`
	RequiresConfirmation bool     `json:"requires_confirmation"`
	Reasons              []string `json:"reasons,omitempty"`
	CriticalFiles        []string `json:"critical_files,omitempty"`
}

// Assessor evaluates fixes against a critical-file set.
type Assessor struct {
	critical []string
}

// NewAssessor creates an Assessor using DefaultCriticalFiles plus extra.
func NewAssessor(extra ...string) *Assessor {
	critical := make([]string, 0, len(DefaultCriticalFiles)+len(extra))
	critical = append(critical, DefaultCriticalFiles...)
	for _, name := range extra {
		if name = strings.TrimSpace(name); name != "" {
			critical = append(critical, name)
		}
	}
	return &Assessor{critical: critical}
}

// RequiresConfirmation reports whether the fix must not be applied without
// a confirmation decision.
func (a *Assessor) RequiresConfirmation(f fix.Fix) bool {
	return len(a.confirmationReasons(f)) > 0
}

// Assess scores the fix and buckets the score into a Level.
//
//	score = (1-confidence)*50 + complexityWeight*10 + changes*5 + 30 if critical
func (a *Assessor) Assess(f fix.Fix) Assessment {
	confidence := clamp(f.Confidence)
	critical := a.criticalFiles(f)

	score := (1-confidence)*50 +
		float64(complexityWeight[f.EffectiveComplexity()])*10 +
		float64(len(f.Changes))*5
	if len(critical) > 0 {
		score += 30
	}

	reasons := a.confirmationReasons(f)
	return Assessment{
		Level:                bucket(score),
		Score:                score,
		RequiresConfirmation: len(reasons) > 0,
		Reasons:              reasons,
		CriticalFiles:        critical,
	}
}

// confirmationReasons lists every rule that makes the fix need confirmation.
func (a *Assessor) confirmationReasons(f fix.Fix) []string {
	var reasons []string
	if f.Confidence < MinUnattendedConfidence || math.IsNaN(f.Confidence) {
		reasons = append(reasons, fmt.Sprintf("confidence %.2f is below %.2f", f.Confidence, MinUnattendedConfidence))
	}
	if len(f.Changes) > MaxUnattendedChanges {
		reasons = append(reasons, fmt.Sprintf("%d changes exceeds %d", len(f.Changes), MaxUnattendedChanges))
	}
	if critical := a.criticalFiles(f); len(critical) > 0 {
		reasons = append(reasons, "touches critical files: "+strings.Join(critical, ", "))
	}
	if f.Metadata.Complexity == fix.ComplexityComplex {
		reasons = append(reasons, "complexity is complex")
	}
	return reasons
}

// criticalFiles returns the change paths that contain a critical-file name.
func (a *Assessor) criticalFiles(f fix.Fix) []string {
	var hits []string
	seen := make(map[string]bool)
	for _, change := range f.Changes {
		if seen[change.File] {
			continue
		}
		for _, name := range a.critical {
			if strings.Contains(change.File, name) {
				hits = append(hits, change.File)
				seen[change.File] = true
				break
			}
		}
	}
	return hits
}

func bucket(score float64) Level {
	switch {
	case score < mediumScore:
		return Low
	case score < highScore:
		return Medium
	default:
		return High
	}
}

func clamp(confidence float64) float64 {
	if math.IsNaN(confidence) {
		return 0
	}
	return max(0, min(1, confidence))
}
