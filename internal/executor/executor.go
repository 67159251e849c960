// Package executor applies the edits of a fix to files on disk.
//
// Each change is a whole-file read/modify/write: the current content is
// loaded, edited in memory, and written back atomically. Changes run strictly
// in order and execution stops at the first failure. The executor never rolls
// anything back; the caller owns recovery.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/gorewood/splice/internal/fix"
	"github.com/gorewood/splice/internal/fsutil"
)

// Edit errors. ApplyChange wraps one of these for every rejected change.
var (
	ErrLineOutOfRange    = errors.New("line out of range")
	ErrColumnOutOfRange  = errors.New("column out of range")
	ErrEmptyText         = errors.New("text to delete is empty")
	ErrTextNotFound      = errors.New("text not found")
	ErrMissingField      = errors.New("missing required field")
	ErrUnknownChangeType = errors.New("unknown change type")
)

// ChangeResult records the outcome of one attempted change.
type ChangeResult struct {
	Index   int            `json:"index"`
	File    string         `json:"file"`
	Type    fix.ChangeType `json:"type"`
	Success bool           `json:"success"`
	Error   string         `json:"error,omitempty"`
}

// Result is the outcome of executing a whole fix.
// On success Results lists every change. On failure PartialResults lists every
// change attempted, the failed one last, and Err holds the failure.
type Result struct {
	Success        bool           `json:"success"`
	Results        []ChangeResult `json:"results,omitempty"`
	PartialResults []ChangeResult `json:"partialResults,omitempty"`
	Error          string         `json:"error,omitempty"`
	Err            error          `json:"-"`
}

// Executor runs fix changes against the filesystem.
type Executor struct {
	logger *slog.Logger
}

// New creates an Executor. A nil logger uses slog.Default.
func New(logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{logger: logger.With("component", "executor")}
}

// Execute applies f.Changes in order. The context is consulted before each
// change; a canceled context stops execution like any other failure.
func (e *Executor) Execute(ctx context.Context, f fix.Fix, fctx fix.Context, fixID string) Result {
	attempted := make([]ChangeResult, 0, len(f.Changes))

	for i, change := range f.Changes {
		path := fctx.Resolve(change.File)
		cr := ChangeResult{Index: i, File: path, Type: change.Type}

		err := ctx.Err()
		if err == nil {
			err = e.applyToFile(path, change)
		}
		if err != nil {
			cr.Error = err.Error()
			attempted = append(attempted, cr)
			e.logger.Warn("change failed",
				"fix_id", fixID,
				"index", i,
				"file", path,
				"type", change.Type,
				"error", err)
			return Result{
				Success:        false,
				PartialResults: attempted,
				Error:          fmt.Sprintf("change %d (%s %s): %v", i+1, change.Type, change.File, err),
				Err:            fmt.Errorf("change %d: %w", i+1, err),
			}
		}

		cr.Success = true
		attempted = append(attempted, cr)
		e.logger.Debug("change applied", "fix_id", fixID, "index", i, "file", path, "type", change.Type)
	}

	return Result{Success: true, Results: attempted}
}

// applyToFile loads path, applies change in memory and writes the result back.
func (e *Executor) applyToFile(path string, change fix.Change) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	content := string(data)

	if n := ambiguousMatches(content, change); n > 1 {
		e.logger.Warn("literal matches more than once; editing the first occurrence",
			"file", path, "type", change.Type, "occurrences", n)
	}

	updated, err := ApplyChange(content, change)
	if err != nil {
		return err
	}
	if err := fsutil.ReplaceFile(path, []byte(updated)); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// ApplyChange performs a single edit on content and returns the new content.
func ApplyChange(content string, change fix.Change) (string, error) {
	switch change.Type {
	case fix.ChangeInsert:
		return insertText(content, change.Line, change.Column, change.Text)
	case fix.ChangeDelete:
		return deleteText(content, change.Text)
	case fix.ChangeReplace:
		if change.OldCode == "" {
			return "", fmt.Errorf("%w: oldCode", ErrMissingField)
		}
		if change.NewCode == nil {
			return "", fmt.Errorf("%w: newCode", ErrMissingField)
		}
		return replaceText(content, change.OldCode, *change.NewCode)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownChangeType, change.Type)
	}
}

// insertText splices text into line (1-based) at column (0-based, counted
// in characters). A line one past the last appends a new line. Columns past
// the end of the line clamp to its end, before any CRLF carriage return.
func insertText(content string, line, column int, text string) (string, error) {
	lines := strings.Split(content, "\n")
	idx := line - 1
	if idx < 0 || idx > len(lines) {
		return "", fmt.Errorf("%w: line %d, file has %d lines", ErrLineOutOfRange, line, len(lines))
	}
	if column < 0 {
		return "", fmt.Errorf("%w: column %d", ErrColumnOutOfRange, column)
	}
	if idx == len(lines) {
		lines = append(lines, "")
	}

	body, eol := lines[idx], ""
	if trimmed, ok := strings.CutSuffix(body, "\r"); ok {
		body, eol = trimmed, "\r"
	}
	at := byteOffset(body, column)
	lines[idx] = body[:at] + text + body[at:] + eol
	return strings.Join(lines, "\n"), nil
}

// byteOffset returns the byte index of the column-th character of s, or
// len(s) when s is shorter.
func byteOffset(s string, column int) int {
	n := 0
	for i := range s {
		if n == column {
			return i
		}
		n++
	}
	return len(s)
}

// deleteText removes the first literal occurrence of text.
func deleteText(content, text string) (string, error) {
	if text == "" {
		return "", ErrEmptyText
	}
	if !strings.Contains(content, text) {
		return "", fmt.Errorf("%w: %q", ErrTextNotFound, abbreviate(text))
	}
	return strings.Replace(content, text, "", 1), nil
}

// replaceText swaps the first literal occurrence of oldCode for newCode.
func replaceText(content, oldCode, newCode string) (string, error) {
	if !strings.Contains(content, oldCode) {
		return "", fmt.Errorf("%w: %q", ErrTextNotFound, abbreviate(oldCode))
	}
	return strings.Replace(content, oldCode, newCode, 1), nil
}

// ambiguousMatches counts occurrences of the literal a delete or replace
// would match. Zero for other change types.
func ambiguousMatches(content string, change fix.Change) int {
	switch change.Type {
	case fix.ChangeDelete:
		if change.Text != "" {
			return strings.Count(content, change.Text)
		}
	case fix.ChangeReplace:
		if change.OldCode != "" {
			return strings.Count(content, change.OldCode)
		}
	}
	return 0
}

// abbreviate shortens long literals for error messages.
func abbreviate(s string) string {
	const limit = 60
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
