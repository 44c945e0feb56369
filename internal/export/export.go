// Package export pulls a course out of the source instance into a
// deterministic on-disk tree. Each resource directory holds the HTML body as
// index.html plus a JSON metadata sidecar; list-shaped resources (modules,
// rubrics, groups) land in single JSON files. The tree is the sole input to
// an import, so everything an importer needs must be written here.
package export

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/campuskit/coursemover/internal/canvas"
	"github.com/campuskit/coursemover/internal/fsutil"
	"github.com/campuskit/coursemover/internal/model"
	"github.com/campuskit/coursemover/internal/schema"
)

// FormatVersion identifies the export tree layout. Imports refuse trees with
// a version they do not understand.
const FormatVersion = 1

// Exporter collects one course from a source instance into root.
type Exporter struct {
	client   *canvas.Client
	courseID int
	root     string
	log      *zap.Logger

	// IncludeQuizQuestions also exports each quiz's question bank.
	IncludeQuizQuestions bool
}

// New builds an exporter for courseID writing under root.
func New(client *canvas.Client, courseID int, root string, log *zap.Logger) *Exporter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Exporter{client: client, courseID: courseID, root: root, log: log}
}

// Summary is the export.json document written at the tree root.
type Summary struct {
	FormatVersion int            `json:"format_version"`
	ExportedAt    string         `json:"exported_at"`
	Course        SummaryCourse  `json:"course"`
	Counts        map[string]int `json:"counts"`
}

// SummaryCourse identifies the exported course inside a Summary.
type SummaryCourse struct {
	ID           int    `json:"id"`
	Name         string `json:"name"`
	CourseCode   string `json:"course_code,omitempty"`
	SourceAPIURL string `json:"source_api_url,omitempty"`
}

// Run collects every resource kind and writes the validated export summary.
// Collectors run sequentially in a fixed order so module backfills see the
// resources they reference already on disk.
func (e *Exporter) Run(ctx context.Context) (*Summary, error) {
	if err := fsutil.EnsureDir(e.root); err != nil {
		return nil, err
	}

	course, err := e.Course(ctx)
	if err != nil {
		return nil, err
	}

	counts := map[string]int{}
	steps := []struct {
		name string
		run  func(context.Context) (int, error)
	}{
		{"pages", e.Pages},
		{"assignment_groups", e.AssignmentGroups},
		{"assignments", e.Assignments},
		{"quizzes", e.Quizzes},
		{"files", e.Files},
		{"discussions", e.Discussions},
		{"announcements", e.Announcements},
		{"modules", e.Modules},
		{"rubrics", e.Rubrics},
		{"rubric_links", e.RubricLinks},
	}
	for _, s := range steps {
		n, err := s.run(ctx)
		if err != nil {
			return nil, fmt.Errorf("exporting %s: %w", s.name, err)
		}
		counts[s.name] = n
		e.log.Info("export step complete", zap.String("step", s.name), zap.Int("count", n))
	}

	summary := &Summary{
		FormatVersion: FormatVersion,
		ExportedAt:    time.Now().UTC().Format(time.RFC3339),
		Course: SummaryCourse{
			ID:           course.ID,
			Name:         course.Name,
			CourseCode:   course.CourseCode,
			SourceAPIURL: course.SourceAPIURL,
		},
		Counts: counts,
	}

	data, err := fsutil.StableJSON(summary)
	if err != nil {
		return nil, err
	}
	if err := schema.ValidateExportSummaryBytes(data); err != nil {
		return nil, err
	}
	if err := fsutil.AtomicWrite(filepath.Join(e.root, "export.json"), data); err != nil {
		return nil, err
	}
	return summary, nil
}

// Course exports course identity, settings, and the syllabus body into the
// course/ directory.
func (e *Exporter) Course(ctx context.Context) (*model.CourseMeta, error) {
	params := url.Values{"include[]": []string{"syllabus_body"}}
	detail, err := e.client.GetObject(ctx, fmt.Sprintf("courses/%d", e.courseID), params)
	if err != nil {
		return nil, fmt.Errorf("fetching course: %w", err)
	}

	courseDir := filepath.Join(e.root, "course")
	if err := fsutil.EnsureDir(courseDir); err != nil {
		return nil, err
	}

	meta := &model.CourseMeta{
		ID:            e.courseID,
		Name:          canvas.String(detail, "name"),
		CourseCode:    canvas.String(detail, "course_code"),
		WorkflowState: canvas.String(detail, "workflow_state"),
		SourceAPIURL:  fmt.Sprintf("%s/courses/%d", e.client.APIRoot(), e.courseID),
	}

	if body := canvas.String(detail, "syllabus_body"); body != "" {
		syllabusPath := filepath.Join(courseDir, "syllabus.html")
		if err := fsutil.AtomicWrite(syllabusPath, []byte(body)); err != nil {
			return nil, err
		}
		meta.SyllabusPath = "course/syllabus.html"
	}

	settings, err := e.client.GetObject(ctx, fmt.Sprintf("courses/%d/settings", e.courseID), nil)
	if err != nil {
		e.log.Warn("course settings not accessible", zap.Error(err))
	} else {
		meta.Settings = settings
	}

	if err := e.writeJSON(filepath.Join(courseDir, "course_metadata.json"), meta); err != nil {
		return nil, err
	}
	return meta, nil
}

// Pages exports every wiki page as pages/NNN_slug/index.html plus sidecar.
func (e *Exporter) Pages(ctx context.Context) (int, error) {
	list, err := e.client.GetList(ctx, fmt.Sprintf("courses/%d/pages", e.courseID), nil)
	if err != nil {
		return 0, err
	}
	sortResources(list, "title")

	for i, p := range list {
		slug := canvas.String(p, "url")
		detail, err := e.client.GetObject(ctx, fmt.Sprintf("courses/%d/pages/%s", e.courseID, slug), nil)
		if err != nil {
			return i, fmt.Errorf("page %q: %w", slug, err)
		}

		dir := filepath.Join(e.root, "pages", numberedDir(i+1, fsutil.SanitizeSlug(slug)))
		htmlRel, err := e.writeBody(dir, canvas.String(detail, "body"))
		if err != nil {
			return i, err
		}

		meta := model.PageMeta{
			ID:           canvas.Int(detail, "page_id"),
			URL:          canvas.String(detail, "url"),
			Title:        canvas.String(detail, "title"),
			Position:     i + 1,
			Published:    canvas.Bool(detail, "published"),
			FrontPage:    canvas.Bool(detail, "front_page"),
			UpdatedAt:    canvas.String(detail, "updated_at"),
			HTMLPath:     htmlRel,
			SourceAPIURL: fmt.Sprintf("%s/courses/%d/pages/%s", e.client.APIRoot(), e.courseID, slug),
		}
		if err := e.writeJSON(filepath.Join(dir, "page_metadata.json"), meta); err != nil {
			return i, err
		}
	}
	return len(list), nil
}

// assignmentFields is the detail subset the importer may replay to the target
// instance, beyond the fields AssignmentMeta names explicitly.
var assignmentFields = []string{
	"grading_type", "grading_standard_id", "unlock_at", "lock_at",
	"submission_types", "allowed_extensions", "peer_reviews",
	"automatic_peer_reviews", "grade_group_students_individually",
	"omit_from_final_grade", "only_visible_to_overrides",
	"external_tool_tag_attributes",
}

// Assignments exports assignments as assignments/NNN_slug/ directories.
func (e *Exporter) Assignments(ctx context.Context) (int, error) {
	list, err := e.client.GetList(ctx, fmt.Sprintf("courses/%d/assignments", e.courseID), nil)
	if err != nil {
		return 0, err
	}
	sortResources(list, "name")

	for i, a := range list {
		id := canvas.Int(a, "id")
		detail, err := e.client.GetObject(ctx, fmt.Sprintf("courses/%d/assignments/%d", e.courseID, id), nil)
		if err != nil {
			return i, fmt.Errorf("assignment %d: %w", id, err)
		}

		name := canvas.String(detail, "name")
		dir := filepath.Join(e.root, "assignments", numberedDir(i+1, slugOr(name, "assignment", id)))
		htmlRel, err := e.writeBody(dir, canvas.String(detail, "description"))
		if err != nil {
			return i, err
		}

		meta := model.AssignmentMeta{
			ID:                id,
			Name:              name,
			Position:          i + 1,
			Published:         canvas.Bool(detail, "published"),
			DueAt:             canvas.String(detail, "due_at"),
			PointsPossible:    canvas.Float(detail, "points_possible"),
			AssignmentGroupID: canvas.Int(detail, "assignment_group_id"),
			HTMLPath:          htmlRel,
			UpdatedAt:         canvas.String(detail, "updated_at"),
			SourceAPIURL:      fmt.Sprintf("%s/courses/%d/assignments/%d", e.client.APIRoot(), e.courseID, id),
			Extra:             pickFields(detail, assignmentFields),
		}
		if err := e.writeJSON(filepath.Join(dir, "assignment_metadata.json"), meta); err != nil {
			return i, err
		}
	}
	return len(list), nil
}

// AssignmentGroups exports the grading group structure into a single file.
func (e *Exporter) AssignmentGroups(ctx context.Context) (int, error) {
	list, err := e.client.GetList(ctx, fmt.Sprintf("courses/%d/assignment_groups", e.courseID), nil)
	if err != nil {
		return 0, err
	}
	sortResources(list, "name")

	groups := make([]model.AssignmentGroupMeta, 0, len(list))
	for i, g := range list {
		groups = append(groups, model.AssignmentGroupMeta{
			ID:          canvas.Int(g, "id"),
			Name:        canvas.String(g, "name"),
			Position:    i + 1,
			GroupWeight: canvas.Float(g, "group_weight"),
		})
	}
	return len(groups), e.writeJSON(filepath.Join(e.root, "assignment_groups.json"), groups)
}

var quizFields = []string{
	"shuffle_answers", "hide_results", "show_correct_answers",
	"allowed_attempts", "scoring_policy", "one_question_at_a_time",
	"cant_go_back", "access_code",
}

// Quizzes exports quizzes, optionally with their question banks.
func (e *Exporter) Quizzes(ctx context.Context) (int, error) {
	list, err := e.client.GetList(ctx, fmt.Sprintf("courses/%d/quizzes", e.courseID), nil)
	if err != nil {
		return 0, err
	}
	sortResources(list, "title")

	for i, q := range list {
		id := canvas.Int(q, "id")
		detail, err := e.client.GetObject(ctx, fmt.Sprintf("courses/%d/quizzes/%d", e.courseID, id), nil)
		if err != nil {
			return i, fmt.Errorf("quiz %d: %w", id, err)
		}

		title := canvas.String(detail, "title")
		dir := filepath.Join(e.root, "quizzes", numberedDir(i+1, slugOr(title, "quiz", id)))
		htmlRel, err := e.writeBody(dir, canvas.String(detail, "description"))
		if err != nil {
			return i, err
		}

		if e.IncludeQuizQuestions {
			questions, err := e.client.GetList(ctx, fmt.Sprintf("courses/%d/quizzes/%d/questions", e.courseID, id), nil)
			if err != nil {
				return i, fmt.Errorf("quiz %d questions: %w", id, err)
			}
			sortResources(questions, "question_name")
			if err := e.writeJSON(filepath.Join(dir, "questions.json"), questions); err != nil {
				return i, err
			}
		}

		meta := model.QuizMeta{
			ID:             id,
			Title:          title,
			QuizType:       canvas.String(detail, "quiz_type"),
			Published:      canvas.Bool(detail, "published"),
			PointsPossible: canvas.Float(detail, "points_possible"),
			TimeLimit:      canvas.Int(detail, "time_limit"),
			DueAt:          canvas.String(detail, "due_at"),
			UnlockAt:       canvas.String(detail, "unlock_at"),
			LockAt:         canvas.String(detail, "lock_at"),
			HTMLPath:       htmlRel,
			UpdatedAt:      canvas.String(detail, "updated_at"),
			SourceAPIURL:   fmt.Sprintf("%s/courses/%d/quizzes/%d", e.client.APIRoot(), e.courseID, id),
			Extra:          pickFields(detail, quizFields),
		}
		if err := e.writeJSON(filepath.Join(dir, "quiz_metadata.json"), meta); err != nil {
			return i, err
		}
	}
	return len(list), nil
}

// Discussions exports non-announcement discussion topics.
func (e *Exporter) Discussions(ctx context.Context) (int, error) {
	return e.exportTopics(ctx, fmt.Sprintf("courses/%d/discussion_topics", e.courseID), "discussions", "discussion_metadata.json", false)
}

// Announcements exports announcement topics. The API serves them from the
// same family as discussions behind the only_announcements switch.
func (e *Exporter) Announcements(ctx context.Context) (int, error) {
	return e.exportTopics(ctx, fmt.Sprintf("courses/%d/discussion_topics", e.courseID), "announcements", "announcement_metadata.json", true)
}

func (e *Exporter) exportTopics(ctx context.Context, endpoint, subdir, sidecarName string, announcements bool) (int, error) {
	params := url.Values{}
	if announcements {
		params.Set("only_announcements", "true")
	}
	list, err := e.client.GetList(ctx, endpoint, params)
	if err != nil {
		return 0, err
	}
	sortResources(list, "title")

	for i, d := range list {
		id := canvas.Int(d, "id")
		title := canvas.String(d, "title")
		dir := filepath.Join(e.root, subdir, numberedDir(i+1, slugOr(title, subdir, id)))
		htmlRel, err := e.writeBody(dir, canvas.String(d, "message"))
		if err != nil {
			return i, err
		}

		updated := canvas.String(d, "updated_at")
		if updated == "" {
			updated = canvas.String(d, "posted_at")
		}

		meta := model.DiscussionMeta{
			ID:             id,
			Title:          title,
			Published:      canvas.Bool(d, "published"),
			Pinned:         canvas.Bool(d, "pinned"),
			Locked:         canvas.Bool(d, "locked"),
			IsAnnouncement: announcements,
			HTMLPath:       htmlRel,
			UpdatedAt:      updated,
			SourceAPIURL:   fmt.Sprintf("%s/courses/%d/discussion_topics/%d", e.client.APIRoot(), e.courseID, id),
			Assignment:     canvas.Obj(d, "assignment"),
		}
		if err := e.writeJSON(filepath.Join(dir, sidecarName), meta); err != nil {
			return i, err
		}
	}
	return len(list), nil
}

// Modules exports the module skeleton with ordered items into
// modules/modules.json.
func (e *Exporter) Modules(ctx context.Context) (int, error) {
	params := url.Values{"include[]": []string{"items"}}
	list, err := e.client.GetList(ctx, fmt.Sprintf("courses/%d/modules", e.courseID), params)
	if err != nil {
		return 0, err
	}
	sortResources(list, "name")

	modules := make([]model.ModuleMeta, 0, len(list))
	for i, m := range list {
		id := canvas.Int(m, "id")

		rawItems := canvas.ObjList(m, "items")
		if len(rawItems) == 0 {
			// Large modules omit items inline; fetch them separately.
			rawItems, err = e.client.GetList(ctx, fmt.Sprintf("courses/%d/modules/%d/items", e.courseID, id), nil)
			if err != nil {
				return i, fmt.Errorf("module %d items: %w", id, err)
			}
		}

		items := make([]model.ModuleItemMeta, 0, len(rawItems))
		for j, it := range rawItems {
			items = append(items, model.ModuleItemMeta{
				ID:          canvas.Int(it, "id"),
				Position:    j + 1,
				Type:        canvas.String(it, "type"),
				ContentID:   canvas.Int(it, "content_id"),
				Title:       canvas.String(it, "title"),
				PageURL:     canvas.String(it, "page_url"),
				ExternalURL: canvas.String(it, "external_url"),
				Published:   canvas.Bool(it, "published"),
				Indent:      canvas.Int(it, "indent"),
			})
		}

		modules = append(modules, model.ModuleMeta{
			ID:           id,
			Name:         canvas.String(m, "name"),
			Position:     i + 1,
			Published:    canvas.Bool(m, "published"),
			Items:        items,
			UpdatedAt:    canvas.String(m, "updated_at"),
			SourceAPIURL: fmt.Sprintf("%s/courses/%d/modules/%d", e.client.APIRoot(), e.courseID, id),
		})
	}
	return len(modules), e.writeJSON(filepath.Join(e.root, "modules", "modules.json"), modules)
}

// Rubrics exports the course rubrics into rubrics/rubrics.json.
func (e *Exporter) Rubrics(ctx context.Context) (int, error) {
	list, err := e.client.GetList(ctx, fmt.Sprintf("courses/%d/rubrics", e.courseID), nil)
	if err != nil {
		return 0, err
	}
	sortResources(list, "title")

	rubrics := make([]model.RubricMeta, 0, len(list))
	for _, r := range list {
		id := canvas.Int(r, "id")
		detail, err := e.client.GetObject(ctx, fmt.Sprintf("courses/%d/rubrics/%d", e.courseID, id), nil)
		if err != nil {
			return len(rubrics), fmt.Errorf("rubric %d: %w", id, err)
		}
		rubrics = append(rubrics, model.RubricMeta{
			ID:                        id,
			Title:                     canvas.String(detail, "title"),
			Criteria:                  canvas.List(detail, "data"),
			FreeFormCriterionComments: canvas.Bool(detail, "free_form_criterion_comments"),
			PointsPossible:            canvas.Float(detail, "points_possible"),
		})
	}
	return len(rubrics), e.writeJSON(filepath.Join(e.root, "rubrics", "rubrics.json"), rubrics)
}

// RubricLinks exports rubric-to-assignment associations into
// course/rubric_links.json. When the associations endpoint is not exposed,
// it falls back to scanning assignments for inline rubric settings.
func (e *Exporter) RubricLinks(ctx context.Context) (int, error) {
	var links []model.RubricLink

	assocs, err := e.client.GetList(ctx, fmt.Sprintf("courses/%d/rubric_associations", e.courseID), nil)
	if err == nil {
		for _, a := range assocs {
			if canvas.String(a, "association_type") != "Assignment" {
				continue
			}
			links = append(links, model.RubricLink{
				RubricID:      canvas.Int(a, "rubric_id"),
				AssignmentID:  canvas.Int(a, "association_id"),
				UseForGrading: canvas.Bool(a, "use_for_grading"),
				Purpose:       canvas.String(a, "purpose"),
			})
		}
	} else {
		e.log.Warn("rubric associations not accessible, scanning assignments", zap.Error(err))
		params := url.Values{"include[]": []string{"rubric", "rubric_settings"}}
		assignments, err := e.client.GetList(ctx, fmt.Sprintf("courses/%d/assignments", e.courseID), params)
		if err != nil {
			return 0, err
		}
		for _, a := range assignments {
			settings := canvas.Obj(a, "rubric_settings")
			if settings == nil {
				continue
			}
			links = append(links, model.RubricLink{
				RubricID:      canvas.Int(settings, "id"),
				RubricTitle:   canvas.String(settings, "title"),
				AssignmentID:  canvas.Int(a, "id"),
				UseForGrading: canvas.Bool(a, "use_rubric_for_grading"),
				Purpose:       "grading",
			})
		}
	}

	courseDir := filepath.Join(e.root, "course")
	if err := fsutil.EnsureDir(courseDir); err != nil {
		return 0, err
	}
	return len(links), e.writeJSON(filepath.Join(courseDir, "rubric_links.json"), links)
}

func (e *Exporter) writeBody(dir, body string) (string, error) {
	if err := fsutil.EnsureDir(dir); err != nil {
		return "", err
	}
	htmlPath := filepath.Join(dir, "index.html")
	if err := fsutil.AtomicWrite(htmlPath, []byte(body)); err != nil {
		return "", err
	}
	return fsutil.RelPath(htmlPath, e.root)
}

func (e *Exporter) writeJSON(path string, v any) error {
	data, err := fsutil.StableJSON(v)
	if err != nil {
		return err
	}
	if err := fsutil.EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}
	return fsutil.AtomicWrite(path, data)
}

// sortResources orders API list results by position, then the given name
// field, then id, so repeated exports of an unchanged course produce the
// same tree.
func sortResources(list []map[string]any, nameField string) {
	sort.SliceStable(list, func(i, j int) bool {
		pi, pj := positionOrMax(list[i]), positionOrMax(list[j])
		if pi != pj {
			return pi < pj
		}
		ni, nj := canvas.String(list[i], nameField), canvas.String(list[j], nameField)
		if ni != nj {
			return ni < nj
		}
		return canvas.Int(list[i], "id") < canvas.Int(list[j], "id")
	})
}

func positionOrMax(obj map[string]any) int {
	if _, ok := obj["position"]; !ok {
		return int(^uint(0) >> 1)
	}
	return canvas.Int(obj, "position")
}

func numberedDir(position int, slug string) string {
	return fmt.Sprintf("%03d_%s", position, slug)
}

func slugOr(name, kind string, id int) string {
	if s := fsutil.SanitizeSlug(name); s != "" {
		return s
	}
	return fmt.Sprintf("%s-%d", kind, id)
}

func pickFields(obj map[string]any, keys []string) map[string]any {
	out := map[string]any{}
	for _, k := range keys {
		if v, ok := obj[k]; ok && v != nil {
			out[k] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
