// Package output renders splice command results and maps failures to exit
// codes.
//
// Every command prints through a Printer so that --json switches the whole
// CLI to machine-readable output:
//
//	printer := output.NewPrinter(cmd.OutOrStdout(), jsonFlag, output.UseColor(colorFlag, cmd.OutOrStdout()))
//	printer.Section("Preflight")
//	printer.Status("pass", "file_exists", "/repo/main.go")
//	printer.Outcome(true, "fix-3f2c… Applied 2 change(s) to 1 file(s)")
//
// # JSON Mode
//
// Success data is encoded as-is. Errors become {"error": "...", "code": N}.
//
// # Exit Codes
//
//	output.ExitSuccess     // 0: every fix applied
//	output.ExitUserError   // 1: bad arguments or an invalid fix file
//	output.ExitSystemError // 2: I/O failure
//	output.ExitConflict    // 3: a fix was declined, blocked or rolled back
//
// Commands return *ExitError values built with NewUserError,
// NewSystemError and NewConflictError; main passes them to GetExitCode.
package output
