// Package git shells out to the git executable for the few repository
// queries splice needs.
//
// Preflight uses DirtyFiles to warn when a fix would edit a file that has
// uncommitted changes. The warning never blocks a fix; a missing git binary
// or a directory outside any work tree simply yields no dirty files.
//
//	dirty, err := git.DirtyFiles(ctx, []string{"/repo/src/main.go"})
//
// # Error Handling
//
// Failures are returned as *output.ExitError with ExitSystemError (2), so a
// CLI command can return them unchanged.
package git
