package fsutil

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// EnsureDir creates the directory and any missing parents.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0o755)
}

// AtomicWrite writes data to a temp file in the same directory and renames it
// into place, so a crash mid-write never leaves a partial file behind.
func AtomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := EnsureDir(dir); err != nil {
		return fmt.Errorf("creating directory %q: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("renaming into place: %w", err)
	}
	return nil
}

// StableJSON marshals v deterministically: sorted keys, 2-space indent,
// unescaped HTML, trailing newline. Snapshots written with it diff cleanly
// between runs.
func StableJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// SHA256File returns the hex sha-256 of the file contents, streamed.
func SHA256File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hashing %q: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// RelPath returns the POSIX-style (forward-slash) path of target relative to
// base, for portable keys in manifests and metadata.
func RelPath(target, base string) (string, error) {
	rel, err := filepath.Rel(base, target)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}

var slugDisallowed = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)
var slugCollapse = regexp.MustCompile(`-{2,}`)

// SanitizeSlug produces a filesystem-safe slug for deterministic export
// paths: spaces and disallowed characters become '-', runs of '-' collapse,
// the result is lowercased and trimmed of leading/trailing '-'.
func SanitizeSlug(s string) string {
	s = strings.ReplaceAll(strings.TrimSpace(s), " ", "-")
	s = slugDisallowed.ReplaceAllString(s, "-")
	s = slugCollapse.ReplaceAllString(s, "-")
	return strings.ToLower(strings.Trim(s, "-"))
}
