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

// importAssignmentGroups recreates the grading group structure and records
// the id mapping so assignments land in the right group.
func (p *Pipeline) importAssignmentGroups(ctx context.Context) (Counts, error) {
	var c Counts

	var groups []model.AssignmentGroupMeta
	if err := readJSONFile(filepath.Join(p.Root, "assignment_groups.json"), &groups); err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return c, err
	}

	for _, g := range groups {
		payload := map[string]any{"name": g.Name, "position": g.Position}
		if g.GroupWeight != 0 {
			payload["group_weight"] = g.GroupWeight
		}
		resp, err := p.Target.Post(ctx, fmt.Sprintf("courses/%d/assignment_groups", p.TargetCourseID), payload)
		if err != nil {
			c.Failed++
			p.fail("assignment_groups", g.Name, err)
			continue
		}
		if newID := canvas.Int(resp, "id"); newID != 0 && g.ID != 0 {
			p.Store.RecordID(idmap.AssignmentGroups, g.ID, newID)
		}
		c.Created++
	}
	return c, nil
}

// importAssignments creates assignments using a conservative allow-list of
// fields, with the group id resolved through the mapping store.
func (p *Pipeline) importAssignments(ctx context.Context) (Counts, error) {
	var c Counts

	dirs, err := resourceDirs(p.Root, "assignments")
	if err != nil {
		return c, err
	}

	for _, dir := range dirs {
		var meta model.AssignmentMeta
		if err := readJSONFile(filepath.Join(dir, "assignment_metadata.json"), &meta); err != nil {
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

		assignment := map[string]any{
			"name":      meta.Name,
			"published": meta.Published,
		}
		if body != "" {
			assignment["description"] = body
		}
		if meta.DueAt != "" {
			assignment["due_at"] = meta.DueAt
		}
		if meta.PointsPossible != 0 {
			assignment["points_possible"] = meta.PointsPossible
		}
		if meta.AssignmentGroupID != 0 {
			if newGroup, ok := p.Store.LookupID(idmap.AssignmentGroups, meta.AssignmentGroupID); ok {
				assignment["assignment_group_id"] = newGroup
			}
		}
		for k, v := range meta.Extra {
			if _, taken := assignment[k]; !taken {
				assignment[k] = v
			}
		}
		// Grading standards are not migrated. Remap when the store has an
		// entry for the standard, otherwise the source id passes through.
		if oldStandard := canvas.Int(assignment, "grading_standard_id"); oldStandard != 0 {
			if newStandard, ok := p.Store.LookupID(idmap.GradingStandards, oldStandard); ok {
				assignment["grading_standard_id"] = newStandard
			}
		}

		resp, err := p.Target.Post(ctx, fmt.Sprintf("courses/%d/assignments", p.TargetCourseID),
			map[string]any{"assignment": assignment})
		if err != nil {
			c.Failed++
			p.fail("assignments", meta.Name, err)
			continue
		}

		if newID := canvas.Int(resp, "id"); newID != 0 && meta.ID != 0 {
			p.Store.RecordID(idmap.Assignments, meta.ID, newID)
		}
		c.Created++
	}
	return c, nil
}
