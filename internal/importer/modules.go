package importer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/campuskit/coursemover/internal/canvas"
	"github.com/campuskit/coursemover/internal/idmap"
	"github.com/campuskit/coursemover/internal/model"
)

// importModules recreates modules and their items. It runs after every
// content step so item references resolve through the mapping store; items
// whose content was never migrated are skipped, not failed.
func (p *Pipeline) importModules(ctx context.Context) (Counts, error) {
	var c Counts

	path := filepath.Join(p.Root, "modules", "modules.json")
	var modules []model.ModuleMeta
	if err := readJSONFile(path, &modules); err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return c, err
	}

	for _, mod := range modules {
		payload := map[string]any{"module": map[string]any{
			"name":     mod.Name,
			"position": mod.Position,
		}}
		resp, err := p.Target.Post(ctx, fmt.Sprintf("courses/%d/modules", p.TargetCourseID), payload)
		if err != nil {
			c.Failed++
			p.fail("modules", mod.Name, err)
			continue
		}
		newModuleID := canvas.Int(resp, "id")
		if newModuleID == 0 {
			c.Failed++
			p.fail("modules", mod.Name, fmt.Errorf("create response carries no module id"))
			continue
		}
		if mod.ID != 0 {
			p.Store.RecordID(idmap.Modules, mod.ID, newModuleID)
		}
		c.Created++

		for _, item := range mod.Items {
			if err := p.importModuleItem(ctx, newModuleID, item); err != nil {
				var skip *skipItemError
				if errors.As(err, &skip) {
					c.Skipped++
					p.Log.Debug("module item skipped",
						zap.String("module", mod.Name),
						zap.String("item", item.Title),
						zap.String("reason", skip.reason))
					continue
				}
				c.Failed++
				p.fail("modules", fmt.Sprintf("%s / %s", mod.Name, item.Title), err)
				continue
			}
			c.Created++
		}

		// Publish after items are attached so nothing appears half-built.
		if mod.Published {
			publish := map[string]any{"module": map[string]any{"published": true}}
			endpoint := fmt.Sprintf("courses/%d/modules/%d", p.TargetCourseID, newModuleID)
			if _, err := p.Target.Put(ctx, endpoint, publish); err != nil {
				p.fail("modules", mod.Name, fmt.Errorf("publishing: %w", err))
			}
		}
	}
	return c, nil
}

// skipItemError marks a module item that cannot be recreated because its
// content never made it into the mapping store.
type skipItemError struct{ reason string }

func (e *skipItemError) Error() string { return e.reason }

func (p *Pipeline) importModuleItem(ctx context.Context, moduleID int, item model.ModuleItemMeta) error {
	body := map[string]any{
		"type":      item.Type,
		"title":     item.Title,
		"position":  item.Position,
		"indent":    item.Indent,
		"published": item.Published,
	}

	switch item.Type {
	case "Page":
		newSlug, ok := p.Store.LookupSlug(item.PageURL)
		if !ok {
			return &skipItemError{fmt.Sprintf("page %q not in id map", item.PageURL)}
		}
		body["page_url"] = newSlug
	case "Assignment":
		newID, ok := p.Store.LookupID(idmap.Assignments, item.ContentID)
		if !ok {
			return &skipItemError{fmt.Sprintf("assignment %d not in id map", item.ContentID)}
		}
		body["content_id"] = newID
	case "Quiz":
		newID, ok := p.Store.LookupID(idmap.Quizzes, item.ContentID)
		if !ok {
			return &skipItemError{fmt.Sprintf("quiz %d not in id map", item.ContentID)}
		}
		body["content_id"] = newID
	case "Discussion":
		newID, ok := p.Store.LookupID(idmap.Discussions, item.ContentID)
		if !ok {
			return &skipItemError{fmt.Sprintf("discussion %d not in id map", item.ContentID)}
		}
		body["content_id"] = newID
	case "File":
		newID, ok := p.Store.LookupID(idmap.Files, item.ContentID)
		if !ok {
			return &skipItemError{fmt.Sprintf("file %d not in id map", item.ContentID)}
		}
		body["content_id"] = newID
	case "SubHeader":
		if item.Title == "" {
			return &skipItemError{"subheader without a title"}
		}
	case "ExternalUrl":
		if item.ExternalURL == "" {
			return &skipItemError{"external url item without a url"}
		}
		body["external_url"] = item.ExternalURL
		body["new_tab"] = true
	default:
		return &skipItemError{fmt.Sprintf("unsupported item type %q", item.Type)}
	}

	endpoint := fmt.Sprintf("courses/%d/modules/%d/items", p.TargetCourseID, moduleID)
	_, err := p.Target.Post(ctx, endpoint, map[string]any{"module_item": body})
	return err
}
