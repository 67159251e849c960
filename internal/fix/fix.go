// Package fix defines the change-set model consumed by the apply engine.
package fix

import (
	"os"
	"path/filepath"
)

// ChangeType identifies the kind of edit a Change performs.
type ChangeType string

// Supported change types.
const (
	ChangeInsert  ChangeType = "insert"
	ChangeDelete  ChangeType = "delete"
	ChangeReplace ChangeType = "replace"
)

// Complexity is the generator's estimate of how involved a fix is.
type Complexity string

// Complexity values. An empty Complexity is treated as medium.
const (
	ComplexitySimple  Complexity = "simple"
	ComplexityMedium  Complexity = "medium"
	ComplexityComplex Complexity = "complex"
)

// Fix is a proposed, possibly multi-file change set.
// The engine receives it by value and never modifies it.
type Fix struct {
	Type        string   `json:"type"                  yaml:"type"`
	Confidence  float64  `json:"confidence"            yaml:"confidence"  validate:"gte=0,lte=1"`
	Changes     []Change `json:"changes"               yaml:"changes"     validate:"required,min=1,dive"`
	Metadata    Metadata `json:"metadata,omitempty"    yaml:"metadata,omitempty"`
	Explanation string   `json:"explanation,omitempty" yaml:"explanation,omitempty"`
}

// Metadata carries optional generator hints.
type Metadata struct {
	Complexity Complexity `json:"complexity,omitempty" yaml:"complexity,omitempty" validate:"omitempty,oneof=simple medium complex"`
}

// Change is one edit instruction against one file.
//
// Insert uses Line (1-based), Column (0-based) and Text.
// Delete uses Text. Replace uses OldCode and NewCode; NewCode is a pointer so
// that an explicit empty replacement differs from a missing one.
type Change struct {
	File    string     `json:"file"              yaml:"file"              validate:"required"`
	Type    ChangeType `json:"type"              yaml:"type"`
	Line    int        `json:"line,omitempty"    yaml:"line,omitempty"`
	Column  int        `json:"column,omitempty"  yaml:"column,omitempty"`
	Text    string     `json:"text,omitempty"    yaml:"text,omitempty"`
	OldCode string     `json:"oldCode,omitempty" yaml:"oldCode,omitempty"`
	NewCode *string    `json:"newCode,omitempty" yaml:"newCode,omitempty"`

	// ExpectSHA256 optionally pins the hex SHA-256 of the file content the
	// fix was generated against.
	ExpectSHA256 string `json:"expectSha256,omitempty" yaml:"expectSha256,omitempty" validate:"omitempty,len=64,hexadecimal"`
}

// Context carries the path-resolution inputs for one apply call.
type Context struct {
	ProjectRoot string `json:"projectRoot,omitempty" yaml:"projectRoot,omitempty"`
	Cwd         string `json:"cwd,omitempty"         yaml:"cwd,omitempty"`
}

// EffectiveComplexity returns the fix complexity, defaulting to medium.
func (f Fix) EffectiveComplexity() Complexity {
	switch f.Metadata.Complexity {
	case ComplexitySimple, ComplexityMedium, ComplexityComplex:
		return f.Metadata.Complexity
	default:
		return ComplexityMedium
	}
}

// Resolve returns the absolute path for a change target.
// Absolute paths pass through. Relative paths resolve against ProjectRoot,
// then Cwd, then the process working directory.
//
// Symlinks are followed, so edits, locks and backups all act on the file the
// link points to and the link itself is never replaced. Paths that cannot be
// evaluated, such as missing files, are returned unresolved.
func (c Context) Resolve(path string) string {
	if !filepath.IsAbs(path) {
		base := c.ProjectRoot
		if base == "" {
			base = c.Cwd
		}
		if base == "" {
			if wd, err := os.Getwd(); err == nil {
				base = wd
			}
		}
		path = filepath.Join(base, path)
	}
	path = filepath.Clean(path)
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		return resolved
	}
	return path
}

// TargetPaths returns the distinct resolved paths the fix touches, in the
// order they first appear.
func TargetPaths(f Fix, fctx Context) []string {
	seen := make(map[string]bool, len(f.Changes))
	paths := make([]string, 0, len(f.Changes))
	for _, change := range f.Changes {
		path := fctx.Resolve(change.File)
		if seen[path] {
			continue
		}
		seen[path] = true
		paths = append(paths, path)
	}
	return paths
}

// StringPtr returns a pointer to s. Handy for building Change.NewCode.
func StringPtr(s string) *string {
	return &s
}
