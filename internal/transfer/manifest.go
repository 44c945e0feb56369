package transfer

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/campuskit/coursemover/internal/fsutil"
)

// ManifestEntry records the outcome of one successful upload. An entry only
// short-circuits a re-upload when both the content hash and the target course
// id match the current run: the same export must never satisfy a different
// target course from cache.
type ManifestEntry struct {
	SHA256         string `json:"sha256"`
	NewID          int    `json:"new_id"`
	TargetCourseID int    `json:"target_course_id"`
}

// Manifest is the on-disk record that makes file transfer idempotent across
// reruns. Keys are export-relative POSIX paths.
type Manifest struct {
	path    string
	entries map[string]ManifestEntry
}

// LoadManifest reads the manifest at path; a missing file yields an empty
// manifest bound to that path.
func LoadManifest(path string) (*Manifest, error) {
	m := &Manifest{path: path, entries: make(map[string]ManifestEntry)}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return m, nil
		}
		return nil, fmt.Errorf("reading upload manifest %q: %w", path, err)
	}
	if err := json.Unmarshal(data, &m.entries); err != nil {
		return nil, fmt.Errorf("parsing upload manifest %q: %w", path, err)
	}
	return m, nil
}

// Lookup returns the entry for an export-relative path.
func (m *Manifest) Lookup(relPath string) (ManifestEntry, bool) {
	e, ok := m.entries[relPath]
	return e, ok
}

// Record stores an entry and persists the whole manifest atomically. It is
// called only after an upload fully succeeds, so a failed transfer leaves the
// previous entry (or absence) intact and a later run retries from scratch.
func (m *Manifest) Record(relPath string, e ManifestEntry) error {
	m.entries[relPath] = e
	data, err := fsutil.StableJSON(m.entries)
	if err != nil {
		return fmt.Errorf("encoding upload manifest: %w", err)
	}
	if err := fsutil.AtomicWrite(m.path, data); err != nil {
		return fmt.Errorf("writing upload manifest %q: %w", m.path, err)
	}
	return nil
}

// Len reports how many uploads the manifest remembers.
func (m *Manifest) Len() int { return len(m.entries) }
