// Package importer pushes an export tree into a target course. One file per
// resource kind; the Pipeline runs them in a fixed order so that every step
// only depends on identifiers recorded by the steps before it.
package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/campuskit/coursemover/internal/canvas"
	"github.com/campuskit/coursemover/internal/idmap"
	"github.com/campuskit/coursemover/internal/schema"
	"github.com/campuskit/coursemover/internal/transfer"
)

// StepNames is the canonical step order. The rewrite step sits after every
// identifier-producing step so the mapping store is complete when links are
// rewritten.
var StepNames = []string{
	"pages",
	"assignment_groups",
	"assignments",
	"quizzes",
	"files",
	"discussions",
	"announcements",
	"modules",
	"rewrite",
	"rubrics",
	"rubric_links",
	"course",
}

// Counts tallies one step's outcome per item.
type Counts struct {
	Created int
	Updated int
	Skipped int
	Failed  int
}

// StepResult is the recorded outcome of one pipeline step.
type StepResult struct {
	Name     string
	Counts   Counts
	Err      error
	Duration time.Duration
}

// Status classifies the result for run journaling and display.
func (r StepResult) Status() string {
	switch {
	case r.Err != nil:
		return "failed"
	case r.Counts.Failed > 0:
		return "partial"
	default:
		return "ok"
	}
}

// ItemFailure names one item a step could not migrate.
type ItemFailure struct {
	Step   string
	Item   string
	Detail string
}

// Pipeline imports one export tree into a target course.
type Pipeline struct {
	Target         *canvas.Client
	TargetCourseID int
	SourceCourseID int // resolved from the export summary when zero
	Root           string
	Store          *idmap.Store
	IDMapPath      string
	Uploader       *transfer.Uploader
	Log            *zap.Logger

	ContinueOnError      bool
	IncludeQuizQuestions bool
	OnDuplicate          transfer.DuplicatePolicy

	// OnStep, when set, is called with each step name just before it runs.
	OnStep func(name string)

	failures []ItemFailure
}

// New builds a pipeline with the required collaborators. Optional behavior
// switches are plain fields.
func New(target *canvas.Client, targetCourseID int, root string, store *idmap.Store, idMapPath string, log *zap.Logger) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{
		Target:         target,
		TargetCourseID: targetCourseID,
		Root:           root,
		Store:          store,
		IDMapPath:      idMapPath,
		Log:            log,
		OnDuplicate:    transfer.Overwrite,
	}
}

// Failures returns the per-item failures accumulated across the run.
func (p *Pipeline) Failures() []ItemFailure { return p.failures }

// Run executes the requested steps in canonical order. The mapping store is
// persisted after every step, so an interrupted run resumes where it stopped.
// A step error aborts the run unless ContinueOnError is set; per-item
// failures never abort, they are counted and journaled.
func (p *Pipeline) Run(ctx context.Context, steps []string) ([]StepResult, error) {
	if len(steps) == 0 {
		steps = StepNames
	}
	requested := make(map[string]bool, len(steps))
	for _, s := range steps {
		if !validStep(s) {
			return nil, fmt.Errorf("unknown step %q (valid: %s)", s, strings.Join(StepNames, ", "))
		}
		requested[s] = true
	}

	if err := schema.ValidateExportSummary(filepath.Join(p.Root, "export.json")); err != nil {
		return nil, err
	}
	if p.SourceCourseID == 0 {
		id, err := p.sourceCourseID()
		if err != nil {
			return nil, err
		}
		p.SourceCourseID = id
	}

	runners := map[string]func(context.Context) (Counts, error){
		"pages":             p.importPages,
		"assignment_groups": p.importAssignmentGroups,
		"assignments":       p.importAssignments,
		"quizzes":           p.importQuizzes,
		"files":             p.importFiles,
		"discussions":       p.importDiscussions,
		"announcements":     p.importAnnouncements,
		"modules":           p.importModules,
		"rewrite":           p.rewriteContent,
		"rubrics":           p.importRubrics,
		"rubric_links":      p.importRubricLinks,
		"course":            p.importCourse,
	}

	var results []StepResult
	for _, name := range StepNames {
		if !requested[name] {
			continue
		}
		if p.OnStep != nil {
			p.OnStep(name)
		}
		start := time.Now()
		counts, err := runners[name](ctx)
		res := StepResult{Name: name, Counts: counts, Err: err, Duration: time.Since(start)}
		results = append(results, res)

		if saveErr := p.Store.Save(p.IDMapPath); saveErr != nil {
			return results, fmt.Errorf("saving id map after %s: %w", name, saveErr)
		}

		if err != nil {
			p.Log.Error("step failed", zap.String("step", name), zap.Error(err))
			if !p.ContinueOnError {
				return results, fmt.Errorf("step %s: %w", name, err)
			}
			continue
		}
		p.Log.Info("step complete",
			zap.String("step", name),
			zap.Int("created", counts.Created),
			zap.Int("updated", counts.Updated),
			zap.Int("skipped", counts.Skipped),
			zap.Int("failed", counts.Failed))
	}
	return results, nil
}

func validStep(name string) bool {
	for _, s := range StepNames {
		if s == name {
			return true
		}
	}
	return false
}

// sourceCourseID reads the exporting course's id from the export summary.
func (p *Pipeline) sourceCourseID() (int, error) {
	var summary struct {
		Course struct {
			ID int `json:"id"`
		} `json:"course"`
	}
	if err := readJSONFile(filepath.Join(p.Root, "export.json"), &summary); err != nil {
		return 0, fmt.Errorf("resolving source course id: %w", err)
	}
	if summary.Course.ID == 0 {
		return 0, fmt.Errorf("export summary names no source course id")
	}
	return summary.Course.ID, nil
}

func (p *Pipeline) fail(step, item string, err error) {
	p.failures = append(p.failures, ItemFailure{Step: step, Item: item, Detail: err.Error()})
	p.Log.Warn("item failed", zap.String("step", step), zap.String("item", item), zap.Error(err))
}

// resourceDirs lists the immediate subdirectories of root/subdir in lexical
// order. Export directories are numbered, so lexical order is source order.
func resourceDirs(root, subdir string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(root, subdir))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var dirs []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, filepath.Join(root, subdir, e.Name()))
		}
	}
	sort.Strings(dirs)
	return dirs, nil
}

func readJSONFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// readBody returns the HTML body stored in dir, or "" when the export wrote
// none.
func readBody(dir string) (string, error) {
	data, err := os.ReadFile(filepath.Join(dir, "index.html"))
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}
