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

// importQuizzes creates quizzes and, when enabled and exported, their
// question banks.
func (p *Pipeline) importQuizzes(ctx context.Context) (Counts, error) {
	var c Counts

	dirs, err := resourceDirs(p.Root, "quizzes")
	if err != nil {
		return c, err
	}

	for _, dir := range dirs {
		var meta model.QuizMeta
		if err := readJSONFile(filepath.Join(dir, "quiz_metadata.json"), &meta); err != nil {
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

		quiz := map[string]any{
			"title":     meta.Title,
			"published": meta.Published,
		}
		if body != "" {
			quiz["description"] = body
		}
		if meta.QuizType != "" {
			quiz["quiz_type"] = meta.QuizType
		}
		if meta.PointsPossible != 0 {
			quiz["points_possible"] = meta.PointsPossible
		}
		if meta.TimeLimit != 0 {
			quiz["time_limit"] = meta.TimeLimit
		}
		for _, f := range []struct{ key, val string }{
			{"due_at", meta.DueAt}, {"unlock_at", meta.UnlockAt}, {"lock_at", meta.LockAt},
		} {
			if f.val != "" {
				quiz[f.key] = f.val
			}
		}
		for k, v := range meta.Extra {
			if _, taken := quiz[k]; !taken {
				quiz[k] = v
			}
		}

		resp, err := p.Target.Post(ctx, fmt.Sprintf("courses/%d/quizzes", p.TargetCourseID),
			map[string]any{"quiz": quiz})
		if err != nil {
			c.Failed++
			p.fail("quizzes", meta.Title, err)
			continue
		}

		newID := canvas.Int(resp, "id")
		if newID != 0 && meta.ID != 0 {
			p.Store.RecordID(idmap.Quizzes, meta.ID, newID)
		}
		c.Created++

		if p.IncludeQuizQuestions && newID != 0 {
			if err := p.importQuizQuestions(ctx, dir, newID, meta.Title, &c); err != nil {
				return c, err
			}
		}
	}
	return c, nil
}

func (p *Pipeline) importQuizQuestions(ctx context.Context, dir string, quizID int, title string, c *Counts) error {
	var questions []map[string]any
	if err := readJSONFile(filepath.Join(dir, "questions.json"), &questions); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	endpoint := fmt.Sprintf("courses/%d/quizzes/%d/questions", p.TargetCourseID, quizID)
	for _, q := range questions {
		// Target assigns new question ids.
		delete(q, "id")
		delete(q, "quiz_id")
		if _, err := p.Target.Post(ctx, endpoint, map[string]any{"question": q}); err != nil {
			c.Failed++
			p.fail("quizzes", fmt.Sprintf("%s question %q", title, canvas.String(q, "question_name")), err)
		}
	}
	return nil
}
