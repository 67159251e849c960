// Package git provides the git queries splice uses to warn about editing
// files with uncommitted work.
package git

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/gorewood/splice/internal/output"
)

// RunIn executes a git command in dir and returns trimmed stdout.
// Returns an *output.ExitError on failure with appropriate exit code.
func RunIn(ctx context.Context, dir string, args ...string) (string, error) {
	if dir != "" {
		args = append([]string{"-C", dir}, args...)
	}
	cmd := exec.CommandContext(ctx, "git", args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		var execErr *exec.Error
		if errors.As(err, &execErr) {
			return "", output.NewSystemError("git not found: ensure git is installed and in PATH")
		}

		errMsg := strings.TrimSpace(stderr.String())
		if errMsg == "" {
			errMsg = err.Error()
		}
		return "", output.NewSystemErrorWithCause("git command failed: "+errMsg, err)
	}

	return strings.TrimSpace(stdout.String()), nil
}

// IsRepo reports whether dir is inside a git work tree.
func IsRepo(ctx context.Context, dir string) bool {
	out, err := RunIn(ctx, dir, "rev-parse", "--is-inside-work-tree")
	return err == nil && out == "true"
}

// RepoRoot returns the top-level directory of the work tree containing dir.
func RepoRoot(ctx context.Context, dir string) (string, error) {
	root, err := RunIn(ctx, dir, "rev-parse", "--show-toplevel")
	if err != nil {
		return "", output.NewSystemErrorWithCause("not in a git repository", err)
	}
	return root, nil
}

// DirtyFiles returns the subset of paths that have staged or unstaged
// modifications. Paths outside any work tree and untracked files are
// ignored. Paths are grouped by directory so each directory costs one
// git invocation.
func DirtyFiles(ctx context.Context, paths []string) ([]string, error) {
	byDir := make(map[string][]string)
	var dirs []string
	for _, p := range paths {
		dir := filepath.Dir(p)
		if _, ok := byDir[dir]; !ok {
			dirs = append(dirs, dir)
		}
		byDir[dir] = append(byDir[dir], p)
	}

	var dirty []string
	for _, dir := range dirs {
		if !IsRepo(ctx, dir) {
			continue
		}
		args := append([]string{"status", "--porcelain", "--untracked-files=no", "--"}, baseNames(byDir[dir])...)
		out, err := RunIn(ctx, dir, args...)
		if err != nil {
			return dirty, err
		}
		changed := parsePorcelain(out)
		for _, p := range byDir[dir] {
			if changed[filepath.Base(p)] {
				dirty = append(dirty, p)
			}
		}
	}
	return dirty, nil
}

func baseNames(paths []string) []string {
	names := make([]string, len(paths))
	for i, p := range paths {
		names[i] = filepath.Base(p)
	}
	return names
}

// parsePorcelain returns the base names listed in `git status --porcelain`
// output. Status paths are relative to the repo root, so only the final
// element is comparable with a pathspec given relative to the directory.
func parsePorcelain(out string) map[string]bool {
	changed := make(map[string]bool)
	for line := range strings.SplitSeq(out, "\n") {
		if len(line) < 4 {
			continue
		}
		path := line[3:]
		if _, after, ok := strings.Cut(path, " -> "); ok {
			path = after
		}
		changed[filepath.Base(strings.Trim(path, `"`))] = true
	}
	return changed
}
