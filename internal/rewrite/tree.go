package rewrite

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/campuskit/coursemover/internal/fsutil"
	"github.com/campuskit/coursemover/internal/idmap"
)

// TreeReport summarizes a rewrite pass over an export tree.
type TreeReport struct {
	Scanned      int
	Changed      int
	Unresolved   int
	ChangedFiles []string // tree-relative POSIX paths, walk order
}

// ProcessTree rewrites every .html file under root in place. With dryRun set
// it only reports which files would change. Files whose content is already
// fully rewritten (or contains no course links) are left untouched, so the
// pass is safe to repeat.
func ProcessTree(root string, sourceCourseID, targetCourseID int, m *idmap.Store, dryRun bool) (TreeReport, error) {
	var rep TreeReport

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".html") {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rep.Scanned++

		out, r := RewriteWithReport(string(data), sourceCourseID, targetCourseID, m)
		rep.Unresolved += r.Unresolved
		if out == string(data) {
			return nil
		}

		rel, err := fsutil.RelPath(path, root)
		if err != nil {
			return err
		}
		rep.Changed++
		rep.ChangedFiles = append(rep.ChangedFiles, rel)

		if dryRun {
			return nil
		}
		return fsutil.AtomicWrite(path, []byte(out))
	})
	return rep, err
}
