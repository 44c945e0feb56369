package importer

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/campuskit/coursemover/internal/idmap"
	"github.com/campuskit/coursemover/internal/model"
)

// importFiles uploads every exported file through the resumable transfer
// layer. Unchanged files already uploaded to this course are skipped by the
// manifest, so re-running after a partial failure only moves what is left.
func (p *Pipeline) importFiles(ctx context.Context) (Counts, error) {
	var c Counts
	if p.Uploader == nil {
		return c, fmt.Errorf("files step needs an uploader")
	}

	filesRoot := filepath.Join(p.Root, "files")
	var sidecars []string
	err := filepath.WalkDir(filesRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), ".metadata.json") {
			sidecars = append(sidecars, path)
		}
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return c, err
	}

	for _, sidecar := range sidecars {
		var meta model.FileMeta
		if err := readJSONFile(sidecar, &meta); err != nil {
			return c, err
		}
		if meta.FilePath == "" {
			// Exported without content (no download URL on the source).
			c.Skipped++
			continue
		}

		absPath := filepath.Join(p.Root, filepath.FromSlash(meta.FilePath))
		res, err := p.Uploader.Upload(ctx, absPath, meta.FilePath, meta.FolderPath, p.OnDuplicate)
		if err != nil {
			c.Failed++
			p.fail("files", meta.FilePath, err)
			continue
		}

		if meta.ID != 0 && res.NewID != 0 {
			p.Store.RecordID(idmap.Files, meta.ID, res.NewID)
		}
		if res.Skipped {
			c.Skipped++
		} else {
			c.Created++
		}
	}
	return c, nil
}
