package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/gorewood/splice/internal/rollback"
)

// isolateConfig points splice at a fresh config home and clears SPLICE_*
// overrides. It returns the config home.
func isolateConfig(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("SPLICE_CONFIG_HOME", home)
	for _, key := range []string{
		"SPLICE_BACKUP_DIR", "SPLICE_HISTORY_FILE", "SPLICE_POLICY", "SPLICE_LOG_LEVEL",
		"SPLICE_LOG_FORMAT", "SPLICE_AUTO_APPROVE_THRESHOLD", "SPLICE_MAX_BACKUP_AGE",
		"SPLICE_SYNTAX_CHECK", "SPLICE_CRITICAL_FILES",
	} {
		t.Setenv(key, "")
	}
	t.Setenv("SPLICE_GIT_CHECK", "false")
	return home
}

// execute runs the root command with args and returns stdout and stderr.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", name, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func readTestFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	return string(data)
}

// renameFix returns a YAML fix replacing oldCode with newCode in file.
func renameFix(file, oldCode, newCode string, confidence float64) string {
	return "type: rename\n" +
		"confidence: " + strconv.FormatFloat(confidence, 'f', -1, 64) + "\n" +
		"changes:\n" +
		"  - file: " + file + "\n" +
		"    type: replace\n" +
		"    oldCode: " + oldCode + "\n" +
		"    newCode: " + newCode + "\n"
}

func rollbackWithErrors(errs ...string) *rollback.Result {
	return &rollback.Result{RolledBack: true, Errors: errs}
}
