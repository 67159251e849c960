package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorewood/splice/internal/backup"
	"github.com/gorewood/splice/internal/engine"
	"github.com/gorewood/splice/internal/output"
)

// writeArtifact drops a backup artifact into the default store with the
// given age.
func writeArtifact(t *testing.T, home, name string, age time.Duration) string {
	t.Helper()
	path := writeTestFile(t, filepath.Join(home, "backups"), name, "original")
	when := time.Now().Add(-age)
	if err := os.Chtimes(path, when, when); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	return path
}

func TestBackups(t *testing.T) {
	home := isolateConfig(t)

	stdout, _, err := execute(t, "backups", "--color", "never")
	if err != nil {
		t.Fatalf("backups failed: %v", err)
	}
	if !strings.Contains(stdout, "No backups") {
		t.Errorf("expected empty listing, got %q", stdout)
	}

	writeArtifact(t, home, "fix-old_main.go", 2*time.Hour)
	writeArtifact(t, home, "fix-old_1_main.go", 2*time.Hour)
	writeArtifact(t, home, "fix-new_util.go", time.Minute)

	stdout, _, err = execute(t, "backups", "--json")
	if err != nil {
		t.Fatalf("backups failed: %v", err)
	}
	var listed struct {
		Dir    string         `json:"dir"`
		Groups []backup.Group `json:"groups"`
	}
	if err := json.Unmarshal([]byte(stdout), &listed); err != nil {
		t.Fatalf("failed to parse JSON output: %v\nOutput: %s", err, stdout)
	}
	if len(listed.Groups) != 2 {
		t.Fatalf("got %d groups, want 2", len(listed.Groups))
	}
	if listed.Groups[0].FixID != "fix-new" || len(listed.Groups[1].Artifacts) != 2 {
		t.Errorf("unexpected grouping: %+v", listed.Groups)
	}

	stdout, _, err = execute(t, "backups", "--json", "--fix-id", "fix-old")
	if err != nil {
		t.Fatalf("backups failed: %v", err)
	}
	if strings.Contains(stdout, "fix-new") {
		t.Errorf("--fix-id filter leaked other fixes: %s", stdout)
	}
}

func TestCleanup(t *testing.T) {
	home := isolateConfig(t)
	old := writeArtifact(t, home, "fix-old_main.go", 48*time.Hour)
	recent := writeArtifact(t, home, "fix-new_main.go", time.Hour)

	stdout, _, err := execute(t, "cleanup", "--json")
	if err != nil {
		t.Fatalf("cleanup failed: %v", err)
	}
	var result backup.SweepResult
	if err := json.Unmarshal([]byte(stdout), &result); err != nil {
		t.Fatalf("failed to parse JSON output: %v\nOutput: %s", err, stdout)
	}
	if len(result.Removed) != 1 || result.Removed[0] != old {
		t.Errorf("Removed = %v, want [%s]", result.Removed, old)
	}
	if _, err := os.Stat(recent); err != nil {
		t.Errorf("recent artifact removed: %v", err)
	}

	if _, _, err := execute(t, "cleanup", "--max-age", "30m"); err != nil {
		t.Fatalf("cleanup --max-age failed: %v", err)
	}
	if _, err := os.Stat(recent); !os.IsNotExist(err) {
		t.Errorf("artifact older than --max-age survived: %v", err)
	}

	_, _, err = execute(t, "cleanup", "--max-age=-1h")
	if code := output.GetExitCode(err); code != output.ExitUserError {
		t.Errorf("negative --max-age exit code = %d, want %d", code, output.ExitUserError)
	}
}

func TestStats_ReplaysHistory(t *testing.T) {
	isolateConfig(t)
	root := t.TempDir()
	writeTestFile(t, root, "main.go", "package foo\n")
	fixDir := t.TempDir()
	good := writeTestFile(t, fixDir, "good.yaml", renameFix("main.go", "foo", "bar", 0.9))
	bad := writeTestFile(t, fixDir, "bad.yaml", renameFix("main.go", "nothere", "baz", 0.9))

	if _, _, err := execute(t, "apply", "--project-root", root, good); err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	_, _, _ = execute(t, "apply", "--project-root", root, bad)

	stdout, _, err := execute(t, "stats", "--json")
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	var stats engine.Stats
	if err := json.Unmarshal([]byte(stdout), &stats); err != nil {
		t.Fatalf("failed to parse JSON output: %v\nOutput: %s", err, stdout)
	}
	if stats.TotalApplied != 2 || stats.SuccessfulFixes != 1 || stats.RolledBackFixes != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if stats.ByType["rename"] != 2 {
		t.Errorf("ByType = %v", stats.ByType)
	}

	stdout, _, err = execute(t, "stats", "--color", "never")
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	for _, want := range []string{"Summary", "Total: 2", "Success rate: 50.0%", "rename"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("human stats missing %q:\n%s", want, stdout)
		}
	}
}

func TestStats_Empty(t *testing.T) {
	isolateConfig(t)
	stdout, _, err := execute(t, "stats")
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if !strings.Contains(stdout, "No fixes applied yet") {
		t.Errorf("unexpected output: %q", stdout)
	}
}
