package importer

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/campuskit/coursemover/internal/idmap"
	"github.com/campuskit/coursemover/internal/model"
	"github.com/campuskit/coursemover/internal/rewrite"
)

// rewriteContent runs after every identifier-producing step. It rewrites the
// export tree in place against the now-complete mapping store, then pushes
// each changed body back to the resource it belongs to on the target. The
// syllabus is left to the course step, which always uploads it from disk.
func (p *Pipeline) rewriteContent(ctx context.Context) (Counts, error) {
	var c Counts

	rep, err := rewrite.ProcessTree(p.Root, p.SourceCourseID, p.TargetCourseID, p.Store, false)
	if err != nil {
		return c, fmt.Errorf("rewriting export tree: %w", err)
	}
	p.Log.Info("tree rewritten",
		zap.Int("scanned", rep.Scanned),
		zap.Int("changed", rep.Changed),
		zap.Int("unresolved", rep.Unresolved))

	for _, rel := range rep.ChangedFiles {
		pushed, err := p.pushRewrittenBody(ctx, rel)
		if err != nil {
			c.Failed++
			p.fail("rewrite", rel, err)
			continue
		}
		if pushed {
			c.Updated++
		} else {
			c.Skipped++
		}
	}
	return c, nil
}

// pushRewrittenBody sends one rewritten HTML file to its target resource.
// It reports false when the file's resource is not in the mapping store,
// which happens when the owning step was skipped or the item failed.
func (p *Pipeline) pushRewrittenBody(ctx context.Context, rel string) (bool, error) {
	segs := strings.Split(path.Clean(rel), "/")
	if len(segs) < 2 {
		return false, nil
	}
	kind := segs[0]
	dir := filepath.Join(p.Root, filepath.FromSlash(path.Dir(rel)))

	if kind == "course" {
		// syllabus.html; re-uploaded by the course step.
		return false, nil
	}

	body, err := readBody(dir)
	if err != nil {
		return false, err
	}

	switch kind {
	case "pages":
		var meta model.PageMeta
		if err := readJSONFile(filepath.Join(dir, "page_metadata.json"), &meta); err != nil {
			return false, err
		}
		newSlug, ok := p.Store.LookupSlug(meta.URL)
		if !ok {
			return false, nil
		}
		endpoint := fmt.Sprintf("courses/%d/pages/%s", p.TargetCourseID, newSlug)
		_, err = p.Target.Put(ctx, endpoint, map[string]any{"body": body})
		return err == nil, err

	case "assignments":
		var meta model.AssignmentMeta
		if err := readJSONFile(filepath.Join(dir, "assignment_metadata.json"), &meta); err != nil {
			return false, err
		}
		newID, ok := p.Store.LookupID(idmap.Assignments, meta.ID)
		if !ok {
			return false, nil
		}
		endpoint := fmt.Sprintf("courses/%d/assignments/%d", p.TargetCourseID, newID)
		_, err = p.Target.Put(ctx, endpoint, map[string]any{"assignment": map[string]any{"description": body}})
		return err == nil, err

	case "quizzes":
		var meta model.QuizMeta
		if err := readJSONFile(filepath.Join(dir, "quiz_metadata.json"), &meta); err != nil {
			return false, err
		}
		newID, ok := p.Store.LookupID(idmap.Quizzes, meta.ID)
		if !ok {
			return false, nil
		}
		endpoint := fmt.Sprintf("courses/%d/quizzes/%d", p.TargetCourseID, newID)
		_, err = p.Target.Put(ctx, endpoint, map[string]any{"quiz": map[string]any{"description": body}})
		return err == nil, err

	case "discussions", "announcements":
		sidecar := "discussion_metadata.json"
		cat := idmap.Discussions
		if kind == "announcements" {
			sidecar = "announcement_metadata.json"
			cat = idmap.Announcements
		}
		var meta model.DiscussionMeta
		if err := readJSONFile(filepath.Join(dir, sidecar), &meta); err != nil {
			return false, err
		}
		newID, ok := p.Store.LookupID(cat, meta.ID)
		if !ok {
			return false, nil
		}
		endpoint := fmt.Sprintf("courses/%d/discussion_topics/%d", p.TargetCourseID, newID)
		_, err = p.Target.Put(ctx, endpoint, map[string]any{"message": body})
		return err == nil, err
	}

	return false, nil
}
