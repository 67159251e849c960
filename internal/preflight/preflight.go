// Package preflight checks that a fix can be applied before anything on
// disk is touched.
package preflight

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gorewood/splice/internal/fix"
	"github.com/gorewood/splice/internal/fsutil"
)

// Status is the outcome of a single check.
type Status string

// Check outcomes. Only StatusFail stops a fix.
const (
	StatusPass Status = "pass"
	StatusWarn Status = "warn"
	StatusFail Status = "fail"
)

// Check names.
const (
	CheckFileExists  = "file_exists"
	CheckWritable    = "writable"
	CheckContentHash = "content_hash"
	CheckBackupSpace = "backup_space"
	CheckUncommitted = "uncommitted_changes"
)

// CheckResult holds the result of a single check.
type CheckResult struct {
	Name    string `json:"name"`
	Status  Status `json:"status"`
	Path    string `json:"path,omitempty"`
	Message string `json:"message,omitempty"`
	Hint    string `json:"hint,omitempty"`
}

// Result is the verdict for a whole fix.
type Result struct {
	Passed bool          `json:"passed"`
	Checks []CheckResult `json:"checks"`
	Reason string        `json:"reason,omitempty"`
}

// Warnings returns the checks that passed with a warning.
func (r Result) Warnings() []CheckResult {
	var out []CheckResult
	for _, c := range r.Checks {
		if c.Status == StatusWarn {
			out = append(out, c)
		}
	}
	return out
}

// SpaceFunc reports free bytes where backups will be written.
type SpaceFunc func() (uint64, error)

// DirtyFunc returns the subset of paths with uncommitted changes.
type DirtyFunc func(ctx context.Context, paths []string) ([]string, error)

// Options configures a Checker. Nil funcs disable their check.
type Options struct {
	Space  SpaceFunc
	Dirty  DirtyFunc
	Logger *slog.Logger
}

// Checker runs the preflight checks.
type Checker struct {
	space  SpaceFunc
	dirty  DirtyFunc
	logger *slog.Logger
}

// New creates a Checker.
func New(opts Options) *Checker {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{
		space:  opts.Space,
		dirty:  opts.Dirty,
		logger: logger.With("component", "preflight"),
	}
}

// Check validates every target of f in change order and stops at the first
// failure. Distinct paths are checked once each.
func (c *Checker) Check(ctx context.Context, f fix.Fix, fctx fix.Context) Result {
	var result Result
	record := func(cr CheckResult) bool {
		result.Checks = append(result.Checks, cr)
		if cr.Status == StatusFail {
			result.Reason = cr.Message
			c.logger.Debug("preflight failed", "check", cr.Name, "path", cr.Path, "reason", cr.Message)
			return false
		}
		return true
	}

	paths := fix.TargetPaths(f, fctx)
	hashes := expectedHashes(f, fctx)

	var total int64
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			result.Reason = "canceled: " + err.Error()
			return result
		}

		info, ok := checkExists(path)
		if !record(ok) {
			return result
		}
		total += info.Size()

		if !record(checkWritable(path)) {
			return result
		}

		if want, has := hashes[path]; has {
			if !record(checkHash(path, want)) {
				return result
			}
		}
	}

	if !record(c.checkSpace(total)) {
		return result
	}

	if c.dirty != nil {
		for _, w := range c.checkDirty(ctx, paths) {
			record(w)
		}
	}

	result.Passed = true
	return result
}

// expectedHashes maps resolved paths to the first expected digest given for
// them. Conflicting digests on the same path surface as a hash mismatch.
func expectedHashes(f fix.Fix, fctx fix.Context) map[string]string {
	hashes := make(map[string]string)
	for _, change := range f.Changes {
		if change.ExpectSHA256 == "" {
			continue
		}
		path := fctx.Resolve(change.File)
		if _, seen := hashes[path]; !seen {
			hashes[path] = strings.ToLower(change.ExpectSHA256)
		}
	}
	return hashes
}

func checkExists(path string) (os.FileInfo, CheckResult) {
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return nil, CheckResult{Name: CheckFileExists, Status: StatusFail, Path: path,
			Message: "File does not exist: " + path}
	case err != nil:
		return nil, CheckResult{Name: CheckFileExists, Status: StatusFail, Path: path,
			Message: fmt.Sprintf("Cannot stat %s: %v", path, err)}
	case !info.Mode().IsRegular():
		return nil, CheckResult{Name: CheckFileExists, Status: StatusFail, Path: path,
			Message: "Not a regular file: " + path}
	}
	return info, CheckResult{Name: CheckFileExists, Status: StatusPass, Path: path}
}

func checkWritable(path string) CheckResult {
	fh, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return CheckResult{Name: CheckWritable, Status: StatusFail, Path: path,
			Message: "File is not writable: " + path,
			Hint:    err.Error()}
	}
	_ = fh.Close()

	// Edits land through a temp file and rename in the same directory.
	dir := filepath.Dir(path)
	if err := dirWritable(dir); err != nil {
		return CheckResult{Name: CheckWritable, Status: StatusFail, Path: path,
			Message: "Directory is not writable: " + dir,
			Hint:    err.Error()}
	}
	return CheckResult{Name: CheckWritable, Status: StatusPass, Path: path}
}

func checkHash(path, want string) CheckResult {
	data, err := os.ReadFile(path)
	if err != nil {
		return CheckResult{Name: CheckContentHash, Status: StatusFail, Path: path,
			Message: fmt.Sprintf("Cannot read %s: %v", path, err)}
	}
	if got := fsutil.SHA256Hex(data); got != want {
		return CheckResult{Name: CheckContentHash, Status: StatusFail, Path: path,
			Message: "File changed since the fix was generated: " + path,
			Hint:    fmt.Sprintf("expected sha256 %s, found %s", want, got)}
	}
	return CheckResult{Name: CheckContentHash, Status: StatusPass, Path: path}
}

func (c *Checker) checkSpace(need int64) CheckResult {
	if c.space == nil {
		return CheckResult{Name: CheckBackupSpace, Status: StatusPass, Message: "not checked"}
	}
	free, err := c.space()
	if err != nil {
		c.logger.Debug("free space unknown", "error", err)
		return CheckResult{Name: CheckBackupSpace, Status: StatusPass, Message: "free space unknown"}
	}
	if need > 0 && uint64(need) > free {
		return CheckResult{Name: CheckBackupSpace, Status: StatusFail,
			Message: fmt.Sprintf("Insufficient space for backups: need %d bytes, %d available", need, free)}
	}
	return CheckResult{Name: CheckBackupSpace, Status: StatusPass,
		Message: fmt.Sprintf("%d bytes needed, %d available", need, free)}
}

func (c *Checker) checkDirty(ctx context.Context, paths []string) []CheckResult {
	dirty, err := c.dirty(ctx, paths)
	if err != nil {
		c.logger.Debug("uncommitted change probe failed", "error", err)
		return nil
	}
	out := make([]CheckResult, 0, len(dirty))
	for _, path := range dirty {
		out = append(out, CheckResult{Name: CheckUncommitted, Status: StatusWarn, Path: path,
			Message: "File has uncommitted changes: " + path,
			Hint:    "commit or stash first to keep the fix reviewable"})
	}
	return out
}
