// Package rollback restores files from the backups of a failed fix.
package rollback

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gorewood/splice/internal/backup"
	"github.com/gorewood/splice/internal/fsutil"
)

// ReasonNoBackups is reported when a fix has nothing registered to restore.
const ReasonNoBackups = "No backups available"

// Result is the outcome of one rollback. RolledBack reports that a restore
// was attempted; Errors lists the files it could not put back.
type Result struct {
	RolledBack      bool     `json:"rolledBack"`
	FilesRolledBack []string `json:"filesRolledBack,omitempty"`
	Errors          []string `json:"errors,omitempty"`
	Reason          string   `json:"reason,omitempty"`
}

// Coordinator restores backups registered in a backup.Manager.
type Coordinator struct {
	backups *backup.Manager
	logger  *slog.Logger
}

// New creates a Coordinator. A nil logger uses slog.Default.
func New(backups *backup.Manager, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{backups: backups, logger: logger.With("component", "rollback")}
}

// Rollback writes every backup of fixID back over its original and deletes
// the artifact. It keeps going after a failed file and always clears the
// registry entry, so a second call reports ReasonNoBackups.
//
// ctx is only consulted for logging: a rollback that has started is not
// abandoned on cancellation.
func (c *Coordinator) Rollback(ctx context.Context, fixID string) Result {
	backups, ok := c.backups.Backups(fixID)
	if !ok {
		return Result{Reason: ReasonNoBackups}
	}
	defer c.backups.Forget(fixID)

	result := Result{RolledBack: true}
	store := c.backups.Store()
	for _, b := range backups {
		if err := fsutil.WriteFileAtomic(b.OriginalPath, b.Content, b.Mode); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("restoring %s: %v", b.OriginalPath, err))
			// Keep the artifact: it is the only copy left.
			continue
		}
		result.FilesRolledBack = append(result.FilesRolledBack, b.OriginalPath)
		if err := store.Remove(b.BackupPath); err != nil {
			result.Errors = append(result.Errors, err.Error())
		}
	}

	if len(result.Errors) > 0 {
		c.logger.LogAttrs(ctx, slog.LevelError, "rollback incomplete",
			slog.String("fix_id", fixID),
			slog.Int("restored", len(result.FilesRolledBack)),
			slog.Any("errors", result.Errors),
		)
	} else {
		c.logger.LogAttrs(ctx, slog.LevelInfo, "rolled back",
			slog.String("fix_id", fixID),
			slog.Int("files", len(result.FilesRolledBack)),
		)
	}
	return result
}
