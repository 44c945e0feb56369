// Package idmap tracks old -> new identifier mappings accumulated while
// resources are recreated on the target course, and persists them as a single
// JSON snapshot so an interrupted migration can resume where it left off.
package idmap

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/campuskit/coursemover/internal/fsutil"
)

// Category names a resource kind that owns its own identifier namespace.
// Identifiers never collide across categories because every lookup is scoped
// to exactly one category.
type Category string

const (
	Files            Category = "files"
	Assignments      Category = "assignments"
	Quizzes          Category = "quizzes"
	Discussions      Category = "discussions"
	Announcements    Category = "announcements"
	Modules          Category = "modules"
	AssignmentGroups Category = "assignment_groups"
	Rubrics          Category = "rubrics"
	GradingStandards Category = "grading_standards"
	Pages            Category = "pages"

	// PagesURL is the slug-keyed category: pages are addressed by URL slug,
	// and the target system may assign a different slug on create.
	PagesURL Category = "pages_url"
)

// NumericCategories lists every id-keyed category in snapshot order.
var NumericCategories = []Category{
	Files, Assignments, Quizzes, Discussions, Announcements,
	Modules, AssignmentGroups, Rubrics, GradingStandards, Pages,
}

// Store is the in-memory old->new mapping table. It is not safe for
// concurrent use; the migration pipeline is strictly sequential.
type Store struct {
	ids   map[Category]map[int]int
	slugs map[string]string
}

// New returns an empty store.
func New() *Store {
	return &Store{
		ids:   make(map[Category]map[int]int),
		slugs: make(map[string]string),
	}
}

// RecordID records oldID -> newID under the given category. Recording the
// same pair twice is a no-op; recording a different newID overwrites, which
// is safe because exactly one pipeline step owns each category.
func (s *Store) RecordID(cat Category, oldID, newID int) {
	m, ok := s.ids[cat]
	if !ok {
		m = make(map[int]int)
		s.ids[cat] = m
	}
	m[oldID] = newID
}

// LookupID returns the new identifier for oldID in the given category.
// A miss is an expected outcome, not an error.
func (s *Store) LookupID(cat Category, oldID int) (int, bool) {
	newID, ok := s.ids[cat][oldID]
	return newID, ok
}

// RecordSlug records an old page slug -> new page slug mapping.
func (s *Store) RecordSlug(oldSlug, newSlug string) {
	if oldSlug == "" || newSlug == "" {
		return
	}
	s.slugs[oldSlug] = newSlug
}

// LookupSlug returns the target slug for a source page slug.
func (s *Store) LookupSlug(oldSlug string) (string, bool) {
	newSlug, ok := s.slugs[oldSlug]
	return newSlug, ok
}

// CountByCategory reports how many mappings each category holds, for
// step summaries.
func (s *Store) CountByCategory() map[Category]int {
	out := make(map[Category]int, len(s.ids)+1)
	for cat, m := range s.ids {
		if len(m) > 0 {
			out[cat] = len(m)
		}
	}
	if len(s.slugs) > 0 {
		out[PagesURL] = len(s.slugs)
	}
	return out
}

// Load reads a snapshot from path. A missing file yields an empty store.
// Numeric sub-maps are normalized from JSON string keys back to integers;
// entries that do not parse as integers are dropped rather than trusted.
func Load(path string) (*Store, error) {
	s := New()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("reading id map %q: %w", path, err)
	}

	var raw map[string]map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing id map %q: %w", path, err)
	}

	for catName, sub := range raw {
		cat := Category(catName)
		if cat == PagesURL {
			for oldSlug, rawNew := range sub {
				var newSlug string
				if err := json.Unmarshal(rawNew, &newSlug); err != nil {
					continue
				}
				s.RecordSlug(oldSlug, newSlug)
			}
			continue
		}
		for oldKey, rawNew := range sub {
			oldID, err := strconv.Atoi(oldKey)
			if err != nil {
				continue
			}
			var newID int
			if err := json.Unmarshal(rawNew, &newID); err != nil {
				continue
			}
			s.RecordID(cat, oldID, newID)
		}
	}
	return s, nil
}

// Save writes a complete snapshot of the store to path: stable key order,
// atomic rename. The snapshot is self-contained so Load after a crash
// reconstructs exactly the state as of the last completed step.
func (s *Store) Save(path string) error {
	doc := make(map[string]map[string]any)
	for cat, m := range s.ids {
		if len(m) == 0 {
			continue
		}
		sub := make(map[string]any, len(m))
		for oldID, newID := range m {
			sub[strconv.Itoa(oldID)] = newID
		}
		doc[string(cat)] = sub
	}
	if len(s.slugs) > 0 {
		sub := make(map[string]any, len(s.slugs))
		for oldSlug, newSlug := range s.slugs {
			sub[oldSlug] = newSlug
		}
		doc[string(PagesURL)] = sub
	}

	data, err := fsutil.StableJSON(doc)
	if err != nil {
		return fmt.Errorf("encoding id map: %w", err)
	}
	if err := fsutil.AtomicWrite(path, data); err != nil {
		return fmt.Errorf("writing id map %q: %w", path, err)
	}
	return nil
}
