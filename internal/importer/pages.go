package importer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/campuskit/coursemover/internal/canvas"
	"github.com/campuskit/coursemover/internal/idmap"
	"github.com/campuskit/coursemover/internal/model"
)

// importPages creates every exported page on the target. The target assigns
// fresh page ids and slugs; both are recorded so later steps (module items,
// the rewrite pass) can resolve references.
func (p *Pipeline) importPages(ctx context.Context) (Counts, error) {
	var c Counts

	dirs, err := resourceDirs(p.Root, "pages")
	if err != nil {
		return c, err
	}

	for _, dir := range dirs {
		var meta model.PageMeta
		if err := readJSONFile(filepath.Join(dir, "page_metadata.json"), &meta); err != nil {
			if os.IsNotExist(err) {
				c.Skipped++
				continue
			}
			return c, err
		}

		body, err := readBody(dir)
		if err != nil {
			return c, err
		}

		payload := map[string]any{
			"title":     meta.Title,
			"body":      body,
			"published": meta.Published,
		}
		resp, err := p.Target.Post(ctx, fmt.Sprintf("courses/%d/pages", p.TargetCourseID), payload)
		if err != nil {
			c.Failed++
			p.fail("pages", meta.Title, err)
			continue
		}

		newSlug := canvas.String(resp, "url")
		newID := canvas.Int(resp, "page_id")
		if newSlug == "" {
			c.Failed++
			p.fail("pages", meta.Title, fmt.Errorf("create returned no url"))
			continue
		}

		if meta.ID != 0 {
			p.Store.RecordID(idmap.Pages, meta.ID, newID)
		}
		p.Store.RecordSlug(meta.URL, newSlug)
		c.Created++

		if meta.FrontPage {
			front := map[string]any{"front_page": true}
			if _, err := p.Target.Put(ctx, fmt.Sprintf("courses/%d/pages/%s", p.TargetCourseID, newSlug), front); err != nil {
				c.Failed++
				p.fail("pages", meta.Title+" (front page)", err)
			}
		}
	}
	return c, nil
}
