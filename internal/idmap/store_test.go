package idmap

import (
	"os"
	"path/filepath"
	"testing"
)

func TestRecordAndLookup(t *testing.T) {
	s := New()

	s.RecordID(Files, 45, 900)
	if got, ok := s.LookupID(Files, 45); !ok || got != 900 {
		t.Errorf("LookupID(files, 45) = %d, %v", got, ok)
	}

	// Categories are independent namespaces: assignment 45 is not file 45.
	if _, ok := s.LookupID(Assignments, 45); ok {
		t.Error("assignment 45 should not resolve via the files mapping")
	}

	// Same pair twice is a no-op; a different value overwrites.
	s.RecordID(Files, 45, 900)
	s.RecordID(Files, 45, 901)
	if got, _ := s.LookupID(Files, 45); got != 901 {
		t.Errorf("expected last write to win, got %d", got)
	}
}

func TestSlugMapping(t *testing.T) {
	s := New()
	s.RecordSlug("home-page", "welcome")

	if got, ok := s.LookupSlug("home-page"); !ok || got != "welcome" {
		t.Errorf("LookupSlug = %q, %v", got, ok)
	}
	if _, ok := s.LookupSlug("missing"); ok {
		t.Error("expected miss for unknown slug")
	}

	// Empty keys and values are never recorded.
	s.RecordSlug("", "x")
	s.RecordSlug("x", "")
	if _, ok := s.LookupSlug(""); ok {
		t.Error("empty slug should not be recorded")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "id_map.json")

	s := New()
	s.RecordID(Files, 45, 900)
	s.RecordID(Assignments, 55, 910)
	s.RecordID(Modules, 88, 940)
	s.RecordSlug("home-page", "welcome")

	if err := s.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got, _ := loaded.LookupID(Files, 45); got != 900 {
		t.Errorf("files 45 = %d, want 900", got)
	}
	if got, _ := loaded.LookupID(Assignments, 55); got != 910 {
		t.Errorf("assignments 55 = %d, want 910", got)
	}
	if got, _ := loaded.LookupSlug("home-page"); got != "welcome" {
		t.Errorf("slug = %q, want welcome", got)
	}
}

func TestLoadNormalizesStringKeyedJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "id_map.json")
	doc := `{
  "files": {"45": 900, "bogus": 1},
  "pages_url": {"old-slug": "new-slug"}
}`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got, ok := s.LookupID(Files, 45); !ok || got != 900 {
		t.Errorf("files 45 = %d, %v", got, ok)
	}
	if got, ok := s.LookupSlug("old-slug"); !ok || got != "new-slug" {
		t.Errorf("slug = %q, %v", got, ok)
	}
}

func TestLoadMissingFileYieldsEmptyStore(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, ok := s.LookupID(Files, 1); ok {
		t.Error("expected empty store")
	}
}

func TestSaveIsDeterministic(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.json")
	b := filepath.Join(dir, "b.json")

	s := New()
	for i := 0; i < 20; i++ {
		s.RecordID(Files, i, i+1000)
	}
	if err := s.Save(a); err != nil {
		t.Fatal(err)
	}
	if err := s.Save(b); err != nil {
		t.Fatal(err)
	}

	da, _ := os.ReadFile(a)
	db, _ := os.ReadFile(b)
	if string(da) != string(db) {
		t.Error("snapshots of the same store differ")
	}
}
