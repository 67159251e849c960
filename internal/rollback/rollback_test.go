package rollback

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gorewood/splice/internal/backup"
	"github.com/gorewood/splice/internal/executor"
	"github.com/gorewood/splice/internal/fix"
)

type fixture struct {
	root      string
	backupDir string
	mgr       *backup.Manager
	coord     *Coordinator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	backupDir := filepath.Join(t.TempDir(), "backups")
	mgr := backup.NewManager(backup.NewStore(backupDir), nil)
	return &fixture{root: t.TempDir(), backupDir: backupDir, mgr: mgr, coord: New(mgr, nil)}
}

func (fx *fixture) write(t *testing.T, rel, content string) string {
	t.Helper()
	path := filepath.Join(fx.root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o640))
	return path
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestRollbackWithoutBackups(t *testing.T) {
	fx := newFixture(t)
	result := fx.coord.Rollback(context.Background(), "never-applied")
	assert.Equal(t, Result{Reason: ReasonNoBackups}, result)
}

func TestRollbackRestoresAndIsIdempotent(t *testing.T) {
	fx := newFixture(t)
	a := fx.write(t, "a.txt", "alpha")
	f := fix.Fix{Changes: []fix.Change{{File: "a.txt", Type: fix.ChangeDelete, Text: "alpha"}}}
	fctx := fix.Context{ProjectRoot: fx.root}

	_, err := fx.mgr.CreateBackups(context.Background(), f, fctx, "fix-1")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(a, []byte("mangled"), 0o600))

	result := fx.coord.Rollback(context.Background(), "fix-1")
	require.True(t, result.RolledBack)
	assert.Equal(t, []string{a}, result.FilesRolledBack)
	assert.Empty(t, result.Errors)
	assert.Equal(t, "alpha", readFile(t, a))

	info, err := os.Stat(a)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o640), info.Mode().Perm())

	entries, err := os.ReadDir(fx.backupDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Equal(t, 0, fx.mgr.Active())

	again := fx.coord.Rollback(context.Background(), "fix-1")
	assert.False(t, again.RolledBack)
	assert.Equal(t, ReasonNoBackups, again.Reason)
}

// Two changes where the second references text absent from its file: the
// executor stops after mutating the first file, and rollback puts it back
// while the second file is never touched.
func TestRollbackAfterPartialExecution(t *testing.T) {
	fx := newFixture(t)
	first := fx.write(t, "first.js", "const a = foo;\n")
	second := fx.write(t, "second.js", "const b = baz;\n")
	f := fix.Fix{Changes: []fix.Change{
		{File: "first.js", Type: fix.ChangeReplace, OldCode: "foo", NewCode: fix.StringPtr("bar")},
		{File: "second.js", Type: fix.ChangeReplace, OldCode: "missing", NewCode: fix.StringPtr("x")},
	}}
	fctx := fix.Context{ProjectRoot: fx.root}

	_, err := fx.mgr.CreateBackups(context.Background(), f, fctx, "fix-c")
	require.NoError(t, err)

	exec := executor.New(nil).Execute(context.Background(), f, fctx, "fix-c")
	require.False(t, exec.Success)
	require.Len(t, exec.PartialResults, 2)
	assert.Equal(t, "const a = bar;\n", readFile(t, first))

	result := fx.coord.Rollback(context.Background(), "fix-c")
	require.True(t, result.RolledBack)
	assert.Empty(t, result.Errors)
	assert.Equal(t, "const a = foo;\n", readFile(t, first))
	assert.Equal(t, "const b = baz;\n", readFile(t, second))
}

func TestRollbackContinuesPastFailures(t *testing.T) {
	fx := newFixture(t)
	a := fx.write(t, "a.txt", "alpha")
	fx.write(t, "gone/b.txt", "beta")
	f := fix.Fix{Changes: []fix.Change{
		{File: "gone/b.txt", Type: fix.ChangeDelete, Text: "b"},
		{File: "a.txt", Type: fix.ChangeDelete, Text: "a"},
	}}

	backups, err := fx.mgr.CreateBackups(context.Background(), f, fix.Context{ProjectRoot: fx.root}, "fix-2")
	require.NoError(t, err)
	require.Len(t, backups, 2)

	require.NoError(t, os.RemoveAll(filepath.Join(fx.root, "gone")))
	require.NoError(t, os.WriteFile(a, []byte("changed"), 0o600))

	result := fx.coord.Rollback(context.Background(), "fix-2")
	assert.True(t, result.RolledBack)
	assert.Equal(t, []string{a}, result.FilesRolledBack)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "b.txt")
	assert.Equal(t, "alpha", readFile(t, a))

	assert.FileExists(t, backups[0].BackupPath)
	assert.NoFileExists(t, backups[1].BackupPath)
	assert.Equal(t, 0, fx.mgr.Active())
}
