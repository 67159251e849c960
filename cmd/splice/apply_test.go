package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gorewood/splice/internal/engine"
	"github.com/gorewood/splice/internal/output"
)

// applyJSON mirrors the apply command's JSON document.
type applyJSON struct {
	Applied int `json:"applied"`
	Failed  int `json:"failed"`
	Results []struct {
		File   string              `json:"file"`
		Error  string              `json:"error"`
		Result *engine.ApplyResult `json:"result"`
	} `json:"results"`
}

func decodeApply(t *testing.T, stdout string) applyJSON {
	t.Helper()
	var out applyJSON
	if err := json.Unmarshal([]byte(stdout), &out); err != nil {
		t.Fatalf("failed to parse JSON output: %v\nOutput: %s", err, stdout)
	}
	return out
}

func TestApply(t *testing.T) {
	tests := []struct {
		name        string
		fix         string
		extraArgs   []string
		wantCode    int
		wantContent string
		wantFailure engine.FailureKind
		wantRolled  bool
	}{
		{
			name:        "confident fix is applied",
			fix:         renameFix("main.go", "foo", "bar", 0.9),
			wantCode:    output.ExitSuccess,
			wantContent: "package bar\n",
		},
		{
			name:        "risky fix declined by policy",
			fix:         renameFix("main.go", "foo", "bar", 0.5),
			extraArgs:   []string{"--policy", "deny"},
			wantCode:    output.ExitConflict,
			wantContent: "package foo\n",
			wantFailure: engine.FailureDeclined,
		},
		{
			name:        "risky fix approved above threshold",
			fix:         renameFix("main.go", "foo", "bar", 0.5),
			extraArgs:   []string{"--threshold", "0.4"},
			wantCode:    output.ExitSuccess,
			wantContent: "package bar\n",
		},
		{
			name:        "failed change is rolled back",
			fix:         renameFix("main.go", "nothere", "bar", 0.9),
			wantCode:    output.ExitConflict,
			wantContent: "package foo\n",
			wantFailure: engine.FailureApplication,
			wantRolled:  true,
		},
		{
			name:        "missing target blocked by preflight",
			fix:         renameFix("gone.go", "foo", "bar", 0.9),
			wantCode:    output.ExitConflict,
			wantContent: "package foo\n",
			wantFailure: engine.FailurePreflight,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolateConfig(t)
			root := t.TempDir()
			target := writeTestFile(t, root, "main.go", "package foo\n")
			fixFile := writeTestFile(t, t.TempDir(), "fix.yaml", tt.fix)

			args := append([]string{"apply", "--json", "--project-root", root, fixFile}, tt.extraArgs...)
			stdout, _, err := execute(t, args...)

			if code := output.GetExitCode(err); code != tt.wantCode {
				t.Fatalf("exit code = %d, want %d (err: %v)", code, tt.wantCode, err)
			}
			if got := readTestFile(t, target); got != tt.wantContent {
				t.Errorf("main.go = %q, want %q", got, tt.wantContent)
			}

			out := decodeApply(t, stdout)
			if len(out.Results) != 1 || out.Results[0].Result == nil {
				t.Fatalf("unexpected results: %+v", out.Results)
			}
			result := out.Results[0].Result
			if result.Failure != tt.wantFailure {
				t.Errorf("failure = %q, want %q (reason %q)", result.Failure, tt.wantFailure, result.Reason)
			}
			if result.RolledBack != tt.wantRolled {
				t.Errorf("rolledBack = %v, want %v", result.RolledBack, tt.wantRolled)
			}
			if !strings.HasPrefix(result.FixID, "fix-") {
				t.Errorf("fixId = %q", result.FixID)
			}
		})
	}
}

func TestApply_ManyFilesConcurrently(t *testing.T) {
	isolateConfig(t)
	root := t.TempDir()
	fixDir := t.TempDir()

	var fixFiles []string
	for _, name := range []string{"a.go", "b.go", "c.go", "d.go"} {
		writeTestFile(t, root, name, "package foo\n")
		fixFiles = append(fixFiles, writeTestFile(t, fixDir, name+".yaml", renameFix(name, "foo", "bar", 0.9)))
	}

	args := append([]string{"apply", "--json", "--jobs", "2", "--project-root", root}, fixFiles...)
	stdout, _, err := execute(t, args...)
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}

	out := decodeApply(t, stdout)
	if out.Applied != 4 || out.Failed != 0 {
		t.Errorf("applied=%d failed=%d, want 4/0", out.Applied, out.Failed)
	}
	for i, r := range out.Results {
		if r.File != fixFiles[i] {
			t.Errorf("result %d is for %s, want %s", i, r.File, fixFiles[i])
		}
	}
	for _, name := range []string{"a.go", "b.go", "c.go", "d.go"} {
		if got := readTestFile(t, filepath.Join(root, name)); got != "package bar\n" {
			t.Errorf("%s = %q", name, got)
		}
	}
}

func TestApply_InputErrors(t *testing.T) {
	isolateConfig(t)
	root := t.TempDir()
	writeTestFile(t, root, "main.go", "package foo\n")
	good := writeTestFile(t, t.TempDir(), "fix.yaml", renameFix("main.go", "foo", "bar", 0.9))
	invalid := writeTestFile(t, t.TempDir(), "bad.yaml", "type: x\nconfidence: 2\nchanges: []\n")

	tests := []struct {
		name string
		args []string
	}{
		{name: "no fix files", args: []string{"apply"}},
		{name: "missing fix file", args: []string{"apply", "--project-root", root, filepath.Join(root, "nope.yaml")}},
		{name: "invalid fix file", args: []string{"apply", "--project-root", root, invalid}},
		{name: "threshold out of range", args: []string{"apply", "--threshold", "1.5", "--project-root", root, good}},
		{name: "unknown policy", args: []string{"apply", "--policy", "yolo", "--project-root", root, good}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := execute(t, tt.args...)
			if code := output.GetExitCode(err); code != output.ExitUserError {
				t.Errorf("exit code = %d, want %d (err: %v)", code, output.ExitUserError, err)
			}
		})
	}
	if got := readTestFile(t, filepath.Join(root, "main.go")); got != "package foo\n" {
		t.Errorf("input errors modified main.go: %q", got)
	}
}

func TestApply_HumanOutput(t *testing.T) {
	isolateConfig(t)
	root := t.TempDir()
	writeTestFile(t, root, "main.go", "package foo\n")
	fixFile := writeTestFile(t, t.TempDir(), "fix.yaml", renameFix("main.go", "foo", "bar", 0.9))

	stdout, _, err := execute(t, "apply", "--color", "never", "--project-root", root, fixFile)
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if !strings.Contains(stdout, "APPLIED") || !strings.Contains(stdout, "Applied 1 change(s) to 1 file(s)") {
		t.Errorf("unexpected output: %q", stdout)
	}
}

func TestApplyExitError(t *testing.T) {
	ok := &engine.ApplyResult{Success: true}
	declined := &engine.ApplyResult{Failure: engine.FailureDeclined, Reason: "policy declined"}
	broken := &engine.ApplyResult{Failure: engine.FailureApplication, Reason: "boom"}
	broken.Details.Rollback = rollbackWithErrors("restore a.go: permission denied")

	tests := []struct {
		name     string
		outcomes []applyOutcome
		wantCode int
		wantIs   error
	}{
		{name: "all applied", outcomes: []applyOutcome{{Result: ok}}, wantCode: output.ExitSuccess},
		{name: "declined", outcomes: []applyOutcome{{Result: ok}, {Result: declined}}, wantCode: output.ExitConflict, wantIs: engine.ErrDeclined},
		{name: "load error outranks declined", outcomes: []applyOutcome{{Error: "bad"}, {Result: declined}}, wantCode: output.ExitUserError},
		{name: "incomplete rollback outranks all", outcomes: []applyOutcome{{Error: "bad"}, {Result: broken}}, wantCode: output.ExitSystemError, wantIs: engine.ErrRollback},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := applyExitError(tt.outcomes)
			if code := output.GetExitCode(err); code != tt.wantCode {
				t.Errorf("exit code = %d, want %d", code, tt.wantCode)
			}
			if tt.wantIs != nil && !errors.Is(err, tt.wantIs) {
				t.Errorf("error %v does not wrap %v", err, tt.wantIs)
			}
		})
	}
}

func TestPrintApplyHuman_RollbackState(t *testing.T) {
	restored := &engine.ApplyResult{FixID: "fix-1", Failure: engine.FailureValidation, Reason: "tests failed", RolledBack: true}
	partial := &engine.ApplyResult{FixID: "fix-2", Failure: engine.FailureValidation, Reason: "tests failed"}
	partial.Details.Rollback = rollbackWithErrors("restoring b.go: no such file or directory")

	var stdout, stderr bytes.Buffer
	printer := output.NewPrinter(&stdout, false, false).WithStderr(&stderr)
	printApplyHuman(printer, []applyOutcome{
		{File: "a.yaml", Result: restored},
		{File: "b.yaml", Result: partial},
	})

	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 outcome lines, got %q", stdout.String())
	}
	if !strings.HasSuffix(lines[0], "(rolled back)") {
		t.Errorf("restored fix line = %q", lines[0])
	}
	if !strings.HasSuffix(lines[1], "(rollback incomplete)") {
		t.Errorf("partial rollback line = %q", lines[1])
	}
	if !strings.Contains(stderr.String(), "restoring b.go") {
		t.Errorf("rollback error not reported: %q", stderr.String())
	}
}

func TestApply_PolicyFromProjectEnvFile(t *testing.T) {
	isolateConfig(t)
	root := t.TempDir()
	target := writeTestFile(t, root, "main.go", "package foo\n")
	writeTestFile(t, root, ".env.local", "SPLICE_POLICY=deny\n")
	fixFile := writeTestFile(t, t.TempDir(), "fix.yaml", renameFix("main.go", "foo", "bar", 0.5))

	_, _, err := execute(t, "apply", "--project-root", root, fixFile)
	if code := output.GetExitCode(err); code != output.ExitConflict {
		t.Fatalf("exit code = %d, want %d (err: %v)", code, output.ExitConflict, err)
	}
	if got := readTestFile(t, target); got != "package foo\n" {
		t.Errorf("declined fix modified main.go: %q", got)
	}
}

func TestApply_ConfigFlag(t *testing.T) {
	isolateConfig(t)
	root := t.TempDir()
	writeTestFile(t, root, "main.go", "package foo\n")
	fixFile := writeTestFile(t, t.TempDir(), "fix.yaml", renameFix("main.go", "foo", "bar", 0.5))
	cfgFile := writeTestFile(t, t.TempDir(), "splice.yaml", "policy: approve\n")

	if _, _, err := execute(t, "apply", "--config", cfgFile, "--project-root", root, fixFile); err != nil {
		t.Fatalf("apply with --config failed: %v", err)
	}

	_, _, err := execute(t, "apply", "--config", filepath.Join(root, "nope.yaml"), "--project-root", root, fixFile)
	if code := output.GetExitCode(err); code != output.ExitUserError {
		t.Errorf("missing --config exit code = %d, want %d", code, output.ExitUserError)
	}
}
