package backup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/gorewood/splice/internal/fix"
)

// ErrFixInFlight is returned when a fixId already has registered backups,
// meaning another apply attempt with the same id has not finished.
var ErrFixInFlight = errors.New("fix already in flight")

// Backup is a point-in-time copy of one file, taken before it is touched.
type Backup struct {
	FixID        string      `json:"fix_id"`
	OriginalPath string      `json:"original_path"`
	BackupPath   string      `json:"backup_path"`
	Content      []byte      `json:"-"`
	Mode         os.FileMode `json:"mode"`
	CreatedAt    time.Time   `json:"created_at"`
}

// SweepResult summarises one CleanupOld pass.
type SweepResult struct {
	Removed []string `json:"removed"`
	Kept    int      `json:"kept"`
	Errors  []string `json:"errors,omitempty"`
}

// Manager creates and discards backups and tracks which fixes hold them.
//
// The registry maps fixId to its backups. An entry exists exactly while an
// apply attempt for that fix sits between snapshot and commit or rollback.
// Safe for concurrent use by attempts with distinct fixIds.
type Manager struct {
	store  *Store
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	registry map[string][]Backup
}

// NewManager creates a Manager over store. A nil logger uses slog.Default.
func NewManager(store *Store, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:    store,
		logger:   logger.With("component", "backup"),
		now:      time.Now,
		registry: make(map[string][]Backup),
	}
}

// Store returns the underlying artifact store.
func (m *Manager) Store() *Store {
	return m.store
}

// CreateBackups snapshots every existing file the fix touches and registers
// the snapshots under fixID. Files that do not exist are skipped. Each
// distinct path is backed up once, however many changes target it.
//
// The registry entry is reserved before the first artifact is written, so on
// error the entry holds whatever was captured and the caller must roll back.
func (m *Manager) CreateBackups(ctx context.Context, f fix.Fix, fctx fix.Context, fixID string) ([]Backup, error) {
	if err := m.reserve(fixID); err != nil {
		return nil, err
	}

	usedNames := make(map[string]bool)
	created := make([]Backup, 0, len(f.Changes))
	for _, path := range fix.TargetPaths(f, fctx) {
		if err := ctx.Err(); err != nil {
			return created, err
		}

		info, err := os.Stat(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return created, fmt.Errorf("stat %s: %w", path, err)
		}

		content, err := os.ReadFile(path)
		if err != nil {
			return created, fmt.Errorf("reading %s for backup: %w", path, err)
		}

		name := uniqueName(fixID, path, usedNames)
		backupPath, err := m.store.Write(name, content)
		if err != nil {
			return created, err
		}

		b := Backup{
			FixID:        fixID,
			OriginalPath: path,
			BackupPath:   backupPath,
			Content:      content,
			Mode:         info.Mode().Perm(),
			CreatedAt:    m.now(),
		}
		m.register(b)
		created = append(created, b)
		m.logger.Debug("backup created", "fix_id", fixID, "file", path, "backup", backupPath)
	}

	return created, nil
}

// uniqueName picks the artifact name for path, numbering base-name collisions.
func uniqueName(fixID, path string, used map[string]bool) string {
	for seq := 0; ; seq++ {
		name := ArtifactName(fixID, path, seq)
		if !used[name] {
			used[name] = true
			return name
		}
	}
}

func (m *Manager) reserve(fixID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.registry[fixID]; exists {
		return fmt.Errorf("%w: %s", ErrFixInFlight, fixID)
	}
	m.registry[fixID] = []Backup{}
	return nil
}

func (m *Manager) register(b Backup) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registry[b.FixID] = append(m.registry[b.FixID], b)
}

// Backups returns a copy of the backups registered for fixID.
// ok is false when the fix has no registry entry.
func (m *Manager) Backups(fixID string) (backups []Backup, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list, ok := m.registry[fixID]
	if !ok {
		return nil, false
	}
	return append([]Backup(nil), list...), true
}

// Forget drops the registry entry for fixID without touching artifacts.
func (m *Manager) Forget(fixID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.registry, fixID)
}

// Active returns the number of fixes currently holding backups.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.registry)
}

// Cleanup deletes every artifact of fixID and removes its registry entry.
// It is the commit step: call it only after a validated apply. The entry is
// removed even when some artifacts could not be deleted.
func (m *Manager) Cleanup(fixID string) error {
	backups, _ := m.Backups(fixID)
	var errs []error
	for _, b := range backups {
		if err := m.store.Remove(b.BackupPath); err != nil {
			errs = append(errs, err)
		}
	}
	m.Forget(fixID)
	if len(errs) > 0 {
		m.logger.Warn("backup cleanup incomplete", "fix_id", fixID, "errors", len(errs))
	}
	return errors.Join(errs...)
}

// CleanupOld deletes artifacts in the store older than maxAge. It walks the
// store directory rather than the registry, which is what reclaims backups
// orphaned by a crashed process. Artifacts of fixes still in flight are kept.
func (m *Manager) CleanupOld(maxAge time.Duration) (SweepResult, error) {
	result := SweepResult{Removed: []string{}}

	artifacts, err := m.store.List()
	if err != nil {
		return result, err
	}

	cutoff := m.now().Add(-maxAge)
	for _, a := range artifacts {
		if a.ModTime.After(cutoff) || m.inFlight(a.FixID) {
			result.Kept++
			continue
		}
		if err := m.store.Remove(a.Path); err != nil {
			result.Errors = append(result.Errors, err.Error())
			continue
		}
		result.Removed = append(result.Removed, a.Path)
	}

	if len(result.Removed) > 0 {
		m.logger.Info("swept old backups", "removed", len(result.Removed), "max_age", maxAge.String())
	}
	return result, nil
}

func (m *Manager) inFlight(fixID string) bool {
	if fixID == "" {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.registry[fixID]
	return ok
}
