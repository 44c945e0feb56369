package importer

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/campuskit/coursemover/internal/canvas"
	"github.com/campuskit/coursemover/internal/idmap"
	"github.com/campuskit/coursemover/internal/model"
)

// importRubrics recreates rubrics, idempotently by title: a rubric whose
// title already exists on the target is mapped to the existing one instead of
// creating a duplicate.
func (p *Pipeline) importRubrics(ctx context.Context) (Counts, error) {
	var c Counts

	path := filepath.Join(p.Root, "rubrics", "rubrics.json")
	var rubrics []model.RubricMeta
	if err := readJSONFile(path, &rubrics); err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return c, err
	}
	if len(rubrics) == 0 {
		return c, nil
	}

	existing, err := p.targetRubricsByTitle(ctx)
	if err != nil {
		return c, err
	}

	for _, r := range rubrics {
		if existingID, ok := existing[r.Title]; ok {
			if r.ID != 0 {
				p.Store.RecordID(idmap.Rubrics, r.ID, existingID)
			}
			c.Skipped++
			continue
		}

		payload := map[string]any{
			"rubric": map[string]any{
				"title":                        r.Title,
				"criteria":                     criteriaParam(r.Criteria),
				"free_form_criterion_comments": r.FreeFormCriterionComments,
			},
		}
		resp, err := p.Target.Post(ctx, fmt.Sprintf("courses/%d/rubrics", p.TargetCourseID), payload)
		if err != nil {
			c.Failed++
			p.fail("rubrics", r.Title, err)
			continue
		}

		newID := canvas.Int(resp, "id")
		if newID == 0 {
			if nested := canvas.Obj(resp, "rubric"); nested != nil {
				newID = canvas.Int(nested, "id")
			}
		}
		if newID != 0 {
			if r.ID != 0 {
				p.Store.RecordID(idmap.Rubrics, r.ID, newID)
			}
			existing[r.Title] = newID
		}
		c.Created++
	}
	return c, nil
}

// criteriaParam converts the exported criteria list into the index-keyed
// object form the create endpoint expects.
func criteriaParam(criteria []any) map[string]any {
	out := make(map[string]any, len(criteria))
	for i, crit := range criteria {
		out[fmt.Sprintf("%d", i)] = crit
	}
	return out
}

func (p *Pipeline) targetRubricsByTitle(ctx context.Context) (map[string]int, error) {
	list, err := p.Target.GetList(ctx, fmt.Sprintf("courses/%d/rubrics", p.TargetCourseID), url.Values{
		"per_page": {"100"},
	})
	if err != nil {
		return nil, fmt.Errorf("listing target rubrics: %w", err)
	}
	byTitle := make(map[string]int, len(list))
	for _, r := range list {
		title := canvas.String(r, "title")
		if title == "" {
			continue
		}
		if _, dup := byTitle[title]; !dup {
			byTitle[title] = canvas.Int(r, "id")
		}
	}
	return byTitle, nil
}

// importRubricLinks re-associates rubrics with assignments. The rubric is
// resolved through the id map first, then by title against the target
// course; the assignment must already be mapped.
func (p *Pipeline) importRubricLinks(ctx context.Context) (Counts, error) {
	var c Counts

	path := filepath.Join(p.Root, "course", "rubric_links.json")
	var links []model.RubricLink
	if err := readJSONFile(path, &links); err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return c, err
	}
	if len(links) == 0 {
		return c, nil
	}

	var byTitle map[string]int
	for _, link := range links {
		rubricID, ok := p.Store.LookupID(idmap.Rubrics, link.RubricID)
		if !ok && link.RubricTitle != "" {
			if byTitle == nil {
				var err error
				if byTitle, err = p.targetRubricsByTitle(ctx); err != nil {
					return c, err
				}
			}
			if id, found := byTitle[link.RubricTitle]; found {
				rubricID, ok = id, true
			}
		}
		if !ok {
			c.Skipped++
			continue
		}

		assignmentID, ok := p.Store.LookupID(idmap.Assignments, link.AssignmentID)
		if !ok {
			c.Skipped++
			continue
		}

		purpose := link.Purpose
		if purpose == "" {
			purpose = "grading"
		}
		payload := map[string]any{
			"rubric_association": map[string]any{
				"rubric_id":        rubricID,
				"association_type": "Assignment",
				"association_id":   assignmentID,
				"use_for_grading":  link.UseForGrading,
				"purpose":          purpose,
			},
		}
		endpoint := fmt.Sprintf("courses/%d/rubric_associations", p.TargetCourseID)
		if _, err := p.Target.Post(ctx, endpoint, payload); err != nil {
			c.Failed++
			p.fail("rubric_links", fmt.Sprintf("rubric %d -> assignment %d", link.RubricID, link.AssignmentID), err)
			continue
		}
		c.Created++
	}
	return c, nil
}
