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

// Graded discussion fields replayed to the target, with the group id
// resolved through the mapping store.
var topicAssignmentFields = []string{
	"points_possible", "grading_type", "due_at", "lock_at", "unlock_at",
	"peer_reviews", "only_visible_to_overrides",
}

func (p *Pipeline) importDiscussions(ctx context.Context) (Counts, error) {
	return p.importTopics(ctx, "discussions", "discussion_metadata.json", idmap.Discussions, false)
}

func (p *Pipeline) importAnnouncements(ctx context.Context) (Counts, error) {
	return p.importTopics(ctx, "announcements", "announcement_metadata.json", idmap.Announcements, true)
}

// importTopics creates discussion topics. Announcements ride the same
// endpoint with is_announcement set.
func (p *Pipeline) importTopics(ctx context.Context, subdir, sidecarName string, cat idmap.Category, announcement bool) (Counts, error) {
	var c Counts

	dirs, err := resourceDirs(p.Root, subdir)
	if err != nil {
		return c, err
	}

	for _, dir := range dirs {
		var meta model.DiscussionMeta
		if err := readJSONFile(filepath.Join(dir, sidecarName), &meta); err != nil {
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

		topic := map[string]any{
			"title":     meta.Title,
			"message":   body,
			"published": meta.Published,
		}
		if announcement {
			topic["is_announcement"] = true
		}
		if meta.Pinned {
			topic["pinned"] = true
		}
		if meta.Locked {
			topic["locked"] = true
		}
		if assignment := p.topicAssignment(meta.Assignment); assignment != nil {
			topic["assignment"] = assignment
		}

		resp, err := p.Target.Post(ctx, fmt.Sprintf("courses/%d/discussion_topics", p.TargetCourseID), topic)
		if err != nil {
			c.Failed++
			p.fail(subdir, meta.Title, err)
			continue
		}

		if newID := canvas.Int(resp, "id"); newID != 0 && meta.ID != 0 {
			p.Store.RecordID(cat, meta.ID, newID)
		}
		c.Created++
	}
	return c, nil
}

func (p *Pipeline) topicAssignment(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	out := map[string]any{}
	for _, k := range topicAssignmentFields {
		if v, ok := src[k]; ok && v != nil {
			out[k] = v
		}
	}
	if oldGroup := canvas.Int(src, "assignment_group_id"); oldGroup != 0 {
		if newGroup, ok := p.Store.LookupID(idmap.AssignmentGroups, oldGroup); ok {
			out["assignment_group_id"] = newGroup
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
