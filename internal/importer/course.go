package importer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/campuskit/coursemover/internal/model"
)

// Settings toggles replayed to the target. Fields tied to the target
// account (term, sis ids, enrollment state) never transfer.
var courseSettingsFields = []string{
	"allow_student_forum_attachments", "allow_student_discussion_topics",
	"allow_student_discussion_editing", "allow_wiki_comments",
	"hide_final_grades", "hide_distribution_graphs",
	"restrict_student_past_view", "restrict_student_future_view",
	"show_announcements_on_home_page", "home_page_announcement_limit",
	"syllabus_course_summary", "usage_rights_required",
}

// importCourse pushes the syllabus body and the exported course settings.
// It runs last: the syllabus on disk has already been rewritten by the
// rewrite step, so the target receives final links.
func (p *Pipeline) importCourse(ctx context.Context) (Counts, error) {
	var c Counts

	var meta model.CourseMeta
	metaPath := filepath.Join(p.Root, "course", "course_metadata.json")
	if err := readJSONFile(metaPath, &meta); err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return c, err
	}

	course := map[string]any{}

	syllabus, err := os.ReadFile(filepath.Join(p.Root, "course", "syllabus.html"))
	if err != nil && !os.IsNotExist(err) {
		return c, err
	}
	if len(syllabus) > 0 {
		course["syllabus_body"] = string(syllabus)
	}
	if v, ok := meta.Settings["default_view"]; ok && v != nil {
		course["default_view"] = v
	}

	if len(course) > 0 {
		endpoint := fmt.Sprintf("courses/%d", p.TargetCourseID)
		if _, err := p.Target.Put(ctx, endpoint, map[string]any{"course": course}); err != nil {
			c.Failed++
			p.fail("course", "course update", err)
		} else {
			c.Updated++
		}
	}

	settings := map[string]any{}
	for _, k := range courseSettingsFields {
		if v, ok := meta.Settings[k]; ok && v != nil {
			settings[k] = v
		}
	}
	if len(settings) > 0 {
		endpoint := fmt.Sprintf("courses/%d/settings", p.TargetCourseID)
		if _, err := p.Target.Put(ctx, endpoint, settings); err != nil {
			c.Failed++
			p.fail("course", "course settings", err)
		} else {
			c.Updated++
		}
	}

	if c.Updated == 0 && c.Failed == 0 {
		c.Skipped++
	}
	return c, nil
}
