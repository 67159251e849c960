package mcp

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/gorewood/splice/internal/backup"
	"github.com/gorewood/splice/internal/engine"
	"github.com/gorewood/splice/internal/fix"
	"github.com/gorewood/splice/internal/logging"
	"github.com/gorewood/splice/internal/risk"
)

// --- Test helpers ---

func makeTestEngine(t *testing.T) (*engine.Engine, string) {
	t.Helper()
	mgr := backup.NewManager(backup.NewStore(filepath.Join(t.TempDir(), "backups")), logging.Discard())
	eng := engine.New(mgr, engine.Options{Logger: logging.Discard(), Policy: risk.AlwaysDeny{}})
	return eng, t.TempDir()
}

func writeFile(t *testing.T, root, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(root, name), []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
}

func readFile(t *testing.T, root, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, name))
	if err != nil {
		t.Fatalf("reading %s: %v", name, err)
	}
	return string(data)
}

func replaceFix(file, oldCode, newCode string, confidence float64) fix.Fix {
	return fix.Fix{
		Type:       "rename",
		Confidence: confidence,
		Changes: []fix.Change{{
			File: file, Type: fix.ChangeReplace, OldCode: oldCode, NewCode: fix.StringPtr(newCode),
		}},
	}
}

// --- apply_fix ---

func TestHandleApply_Success(t *testing.T) {
	eng, root := makeTestEngine(t)
	writeFile(t, root, "main.go", "package foo\n")
	handler := handleApply(eng)

	_, out, err := handler(context.Background(), &mcp.CallToolRequest{}, FixInput{
		Fix:         replaceFix("main.go", "foo", "bar", 0.9),
		ProjectRoot: root,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.Success {
		t.Fatalf("Success = false, reason %q", out.Reason)
	}
	if got := readFile(t, root, "main.go"); got != "package bar\n" {
		t.Errorf("file = %q", got)
	}
}

func TestHandleApply_DeclinedIsAResult(t *testing.T) {
	eng, root := makeTestEngine(t)
	writeFile(t, root, "main.go", "package foo\n")
	handler := handleApply(eng)

	_, out, err := handler(context.Background(), &mcp.CallToolRequest{}, FixInput{
		Fix:         replaceFix("main.go", "foo", "bar", 0.3),
		ProjectRoot: root,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Success || out.Failure != engine.FailureDeclined {
		t.Errorf("got success=%v failure=%q, want declined", out.Success, out.Failure)
	}
	if got := readFile(t, root, "main.go"); got != "package foo\n" {
		t.Errorf("declined fix modified file: %q", got)
	}
}

func TestHandleApply_InvalidFix(t *testing.T) {
	eng, root := makeTestEngine(t)
	handler := handleApply(eng)

	tests := []struct {
		name string
		fix  fix.Fix
	}{
		{name: "no changes", fix: fix.Fix{Confidence: 0.9}},
		{name: "confidence out of range", fix: replaceFix("a.go", "a", "b", 1.5)},
		{name: "empty file", fix: replaceFix("", "a", "b", 0.9)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := handler(context.Background(), &mcp.CallToolRequest{}, FixInput{Fix: tt.fix, ProjectRoot: root})
			if err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

// --- check_fix / assess_risk ---

func TestHandleCheck(t *testing.T) {
	eng, root := makeTestEngine(t)
	writeFile(t, root, "package.json", `{"name":"x"}`)
	handler := handleCheck(eng)

	_, out, err := handler(context.Background(), &mcp.CallToolRequest{}, FixInput{
		Fix:         replaceFix("package.json", "x", "y", 0.95),
		ProjectRoot: root,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.Preflight.Passed {
		t.Errorf("preflight failed: %s", out.Preflight.Reason)
	}
	if !out.Risk.RequiresConfirmation {
		t.Error("critical file should require confirmation")
	}
	if got := readFile(t, root, "package.json"); got != `{"name":"x"}` {
		t.Errorf("check modified file: %q", got)
	}

	_, out, err = handler(context.Background(), &mcp.CallToolRequest{}, FixInput{
		Fix:         replaceFix("missing.js", "x", "y", 0.95),
		ProjectRoot: root,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Preflight.Passed {
		t.Error("preflight should fail for a missing file")
	}
}

func TestHandleAssess(t *testing.T) {
	eng, _ := makeTestEngine(t)
	handler := handleAssess(eng)

	f := replaceFix("a.go", "a", "b", 0.2)
	f.Metadata.Complexity = fix.ComplexityComplex
	_, out, err := handler(context.Background(), &mcp.CallToolRequest{}, AssessInput{Fix: f})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Level != risk.High {
		t.Errorf("Level = %q, want high", out.Level)
	}
}

// --- get_stats ---

func TestHandleStats(t *testing.T) {
	eng, root := makeTestEngine(t)
	writeFile(t, root, "a.go", "foo")
	eng.Apply(context.Background(), replaceFix("a.go", "foo", "bar", 0.9), fix.Context{ProjectRoot: root})
	eng.Apply(context.Background(), replaceFix("a.go", "nope", "bar", 0.9), fix.Context{ProjectRoot: root})

	_, out, err := handleStats(eng)(context.Background(), &mcp.CallToolRequest{}, StatsInput{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.TotalApplied != 2 || out.SuccessfulFixes != 1 || out.RolledBackFixes != 1 {
		t.Errorf("unexpected stats: %+v", out)
	}
	if out.ByType["rename"] != 2 {
		t.Errorf("ByType = %v", out.ByType)
	}
}

// --- list_backups / cleanup_backups ---

func TestHandleListAndCleanupBackups(t *testing.T) {
	eng, _ := makeTestEngine(t)
	store := eng.Backups().Store()
	old, err := store.Write("fix-old_a.go", []byte("a"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.Write("fix-new_b.go", []byte("b")); err != nil {
		t.Fatal(err)
	}
	past := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(old, past, past); err != nil {
		t.Fatal(err)
	}

	_, listed, err := handleListBackups(eng)(context.Background(), &mcp.CallToolRequest{}, ListBackupsInput{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(listed.Groups) != 2 || listed.Groups[0].FixID != "fix-new" {
		t.Errorf("unexpected groups: %+v", listed.Groups)
	}

	_, filtered, err := handleListBackups(eng)(context.Background(), &mcp.CallToolRequest{}, ListBackupsInput{FixID: "fix-old"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(filtered.Groups) != 1 {
		t.Errorf("filter returned %d groups", len(filtered.Groups))
	}

	cleanup := handleCleanup(eng)
	if _, _, err := cleanup(context.Background(), &mcp.CallToolRequest{}, CleanupInput{MaxAge: "soon"}); err == nil {
		t.Error("expected error for invalid max_age")
	}
	_, swept, err := cleanup(context.Background(), &mcp.CallToolRequest{}, CleanupInput{MaxAge: "24h"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(swept.Removed) != 1 || swept.Removed[0] != old {
		t.Errorf("Removed = %v, want [%s]", swept.Removed, old)
	}
}

// --- Server registration test ---

func TestNewServer_RegistersTools(t *testing.T) {
	eng, _ := makeTestEngine(t)

	// Should not panic
	server := NewServer("test-version", eng)
	if server == nil {
		t.Fatal("NewServer returned nil")
	}
}

func TestServer_ListsToolsOverTransport(t *testing.T) {
	eng, _ := makeTestEngine(t)
	ctx := context.Background()
	server := NewServer("test-version", eng)

	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	serverSession, err := server.Connect(ctx, serverTransport, nil)
	if err != nil {
		t.Fatalf("server connect: %v", err)
	}
	defer func() { _ = serverSession.Close() }()

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "0"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	defer func() { _ = session.Close() }()

	tools, err := session.ListTools(ctx, nil)
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	names := make(map[string]bool)
	for _, tool := range tools.Tools {
		names[tool.Name] = true
	}
	for _, want := range []string{"apply_fix", "check_fix", "assess_risk", "get_stats", "list_backups", "cleanup_backups"} {
		if !names[want] {
			t.Errorf("tool %q not registered", want)
		}
	}
}
