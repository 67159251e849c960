// Package backup snapshots files before the apply pipeline mutates them.
//
// Artifacts are plain copies of the original content stored flat in one
// directory and named <fixId>_<basename>. The name is the only durable
// contract: if the process dies mid-apply, the in-memory registry is gone but
// the fixId prefix still identifies which artifacts belong together.
package backup

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gorewood/splice/internal/fsutil"
)

// ErrSpaceUnknown is returned on platforms without a free-space probe.
var ErrSpaceUnknown = errors.New("free space probe not supported on this platform")

// Artifact describes one backup file found in the store directory.
type Artifact struct {
	Name    string    `json:"name"`
	Path    string    `json:"path"`
	FixID   string    `json:"fix_id"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// Store persists backup artifacts in a single directory.
type Store struct {
	dir string
}

// NewStore creates a Store rooted at dir. The directory is created lazily on
// the first write.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the store directory.
func (s *Store) Dir() string {
	return s.dir
}

// ArtifactName returns the artifact file name for a fix and original path.
// seq > 0 disambiguates two originals that share a base name.
func ArtifactName(fixID, originalPath string, seq int) string {
	base := filepath.Base(originalPath)
	if seq > 0 {
		return fmt.Sprintf("%s_%d_%s", fixID, seq, base)
	}
	return fixID + "_" + base
}

// FixIDFromName extracts the fixId prefix from an artifact name.
func FixIDFromName(name string) string {
	id, _, found := strings.Cut(name, "_")
	if !found {
		return ""
	}
	return id
}

// Write stores content under name and returns the artifact path.
func (s *Store) Write(name string, content []byte) (string, error) {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return "", fmt.Errorf("creating backup directory: %w", err)
	}
	path := filepath.Join(s.dir, name)
	if err := fsutil.WriteFileAtomic(path, content, 0o600); err != nil {
		return "", fmt.Errorf("writing backup %s: %w", name, err)
	}
	return path, nil
}

// Remove deletes an artifact. A missing artifact is not an error.
func (s *Store) Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing backup %s: %w", path, err)
	}
	return nil
}

// List returns every artifact in the store, sorted by name.
// A store directory that does not exist yet is empty.
func (s *Store) List() ([]Artifact, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading backup directory: %w", err)
	}

	artifacts := make([]Artifact, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		// Temp files from in-progress atomic writes start with a dot.
		if entry.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		info, infoErr := entry.Info()
		if infoErr != nil {
			continue
		}
		artifacts = append(artifacts, Artifact{
			Name:    name,
			Path:    filepath.Join(s.dir, name),
			FixID:   FixIDFromName(name),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	sort.Slice(artifacts, func(i, j int) bool { return artifacts[i].Name < artifacts[j].Name })
	return artifacts, nil
}

// AvailableBytes reports free space on the store's filesystem. The store
// directory may not exist yet, so the nearest existing ancestor is probed.
func (s *Store) AvailableBytes() (uint64, error) {
	dir := s.dir
	for {
		if _, err := os.Stat(dir); err == nil {
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return freeSpace(dir)
}

// Group is the set of artifacts left by one fix attempt.
type Group struct {
	FixID     string     `json:"fix_id"`
	Artifacts []Artifact `json:"artifacts"`
	Newest    time.Time  `json:"newest"`
}

// GroupByFix groups artifacts by fixId, newest group first. Artifacts whose
// name carries no fixId are grouped under the empty id.
func GroupByFix(artifacts []Artifact) []Group {
	index := make(map[string]int)
	var groups []Group
	for _, a := range artifacts {
		i, ok := index[a.FixID]
		if !ok {
			i = len(groups)
			index[a.FixID] = i
			groups = append(groups, Group{FixID: a.FixID})
		}
		groups[i].Artifacts = append(groups[i].Artifacts, a)
		if a.ModTime.After(groups[i].Newest) {
			groups[i].Newest = a.ModTime
		}
	}
	sort.SliceStable(groups, func(i, j int) bool { return groups[i].Newest.After(groups[j].Newest) })
	return groups
}
