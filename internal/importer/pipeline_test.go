package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/campuskit/coursemover/internal/canvas"
	"github.com/campuskit/coursemover/internal/idmap"
	"github.com/campuskit/coursemover/internal/transfer"
)

const targetCourse = 500

// fakeTarget records everything the pipeline sends to the target course.
type fakeTarget struct {
	mu     sync.Mutex
	nextID int

	pagePosts       []map[string]any
	pagePuts        map[string]map[string]any // slug -> last PUT payload
	groupPosts      []map[string]any
	assignmentPosts []map[string]any
	assignmentPuts  map[string]map[string]any // id -> payload
	quizPosts       []map[string]any
	questionPosts   []map[string]any
	topicPosts      []map[string]any
	topicPuts       map[string]map[string]any
	modulePosts     []map[string]any
	itemPosts       []map[string]any
	rubricPosts     []map[string]any
	existingRubrics []map[string]any
	assocPosts      []map[string]any
	coursePuts      []map[string]any
	settingsPuts    []map[string]any
	uploads         int

	failAssignments bool
}

func (f *fakeTarget) id() int {
	f.nextID++
	return 1000 + f.nextID
}

func decode(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		t.Errorf("decoding %s %s: %v", r.Method, r.URL.Path, err)
	}
	return payload
}

func reply(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// testMux routes "METHOD /path/{name}" patterns like Go 1.22's ServeMux so
// the fake server also runs on Go 1.21 toolchains.
type testMux struct {
	routes []testRoute
}

type testRoute struct {
	method   string
	segments []string
	handler  http.HandlerFunc
}

type pathValuesKey struct{}

func newTestMux() *testMux { return &testMux{} }

func (m *testMux) HandleFunc(pattern string, h http.HandlerFunc) {
	method, path, ok := strings.Cut(pattern, " ")
	if !ok {
		panic("testMux: pattern must be \"METHOD /path\": " + pattern)
	}
	m.routes = append(m.routes, testRoute{
		method:   method,
		segments: strings.Split(strings.Trim(path, "/"), "/"),
		handler:  h,
	})
}

func (m *testMux) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	segments := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	for _, route := range m.routes {
		if route.method != r.Method || len(route.segments) != len(segments) {
			continue
		}
		values := map[string]string{}
		matched := true
		for i, want := range route.segments {
			if strings.HasPrefix(want, "{") && strings.HasSuffix(want, "}") {
				values[strings.Trim(want, "{}")] = segments[i]
			} else if want != segments[i] {
				matched = false
				break
			}
		}
		if matched {
			ctx := context.WithValue(r.Context(), pathValuesKey{}, values)
			route.handler(w, r.WithContext(ctx))
			return
		}
	}
	http.NotFound(w, r)
}

func pathValue(r *http.Request, name string) string {
	values, _ := r.Context().Value(pathValuesKey{}).(map[string]string)
	return values[name]
}

func newFakeTarget(t *testing.T) (*fakeTarget, *httptest.Server) {
	t.Helper()
	f := &fakeTarget{
		pagePuts:       make(map[string]map[string]any),
		assignmentPuts: make(map[string]map[string]any),
		topicPuts:      make(map[string]map[string]any),
	}
	api := func(path string) string {
		return fmt.Sprintf("/api/v1/courses/%d/%s", targetCourse, path)
	}

	mux := newTestMux()

	mux.HandleFunc("POST "+api("pages"), func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		payload := decode(t, r)
		f.pagePosts = append(f.pagePosts, payload)
		title, _ := payload["title"].(string)
		slug := strings.ToLower(strings.ReplaceAll(title, " ", "-")) + "-2"
		reply(w, map[string]any{"url": slug, "page_id": f.id(), "title": title})
	})
	mux.HandleFunc("PUT "+api("pages/{slug}"), func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.pagePuts[pathValue(r, "slug")] = decode(t, r)
		reply(w, map[string]any{"url": pathValue(r, "slug")})
	})

	mux.HandleFunc("POST "+api("assignment_groups"), func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.groupPosts = append(f.groupPosts, decode(t, r))
		reply(w, map[string]any{"id": f.id()})
	})
	mux.HandleFunc("POST "+api("assignments"), func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.failAssignments {
			http.Error(w, `{"errors":"nope"}`, http.StatusBadRequest)
			return
		}
		f.assignmentPosts = append(f.assignmentPosts, decode(t, r))
		reply(w, map[string]any{"id": f.id()})
	})
	mux.HandleFunc("PUT "+api("assignments/{id}"), func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.assignmentPuts[pathValue(r, "id")] = decode(t, r)
		reply(w, map[string]any{})
	})

	mux.HandleFunc("POST "+api("quizzes"), func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.quizPosts = append(f.quizPosts, decode(t, r))
		reply(w, map[string]any{"id": f.id()})
	})
	mux.HandleFunc("POST "+api("quizzes/{id}/questions"), func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.questionPosts = append(f.questionPosts, decode(t, r))
		reply(w, map[string]any{"id": f.id()})
	})
	mux.HandleFunc("PUT "+api("quizzes/{id}"), func(w http.ResponseWriter, r *http.Request) {
		reply(w, map[string]any{})
	})

	mux.HandleFunc("POST "+api("discussion_topics"), func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.topicPosts = append(f.topicPosts, decode(t, r))
		reply(w, map[string]any{"id": f.id()})
	})
	mux.HandleFunc("PUT "+api("discussion_topics/{id}"), func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.topicPuts[pathValue(r, "id")] = decode(t, r)
		reply(w, map[string]any{})
	})

	mux.HandleFunc("POST "+api("modules"), func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.modulePosts = append(f.modulePosts, decode(t, r))
		reply(w, map[string]any{"id": f.id()})
	})
	mux.HandleFunc("POST "+api("modules/{id}/items"), func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.itemPosts = append(f.itemPosts, decode(t, r))
		reply(w, map[string]any{"id": f.id()})
	})
	mux.HandleFunc("PUT "+api("modules/{id}"), func(w http.ResponseWriter, r *http.Request) {
		reply(w, map[string]any{})
	})

	mux.HandleFunc("GET "+api("rubrics"), func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		existing := f.existingRubrics
		if existing == nil {
			existing = []map[string]any{}
		}
		reply(w, existing)
	})
	mux.HandleFunc("POST "+api("rubrics"), func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.rubricPosts = append(f.rubricPosts, decode(t, r))
		reply(w, map[string]any{"rubric": map[string]any{"id": f.id()}})
	})
	mux.HandleFunc("POST "+api("rubric_associations"), func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.assocPosts = append(f.assocPosts, decode(t, r))
		reply(w, map[string]any{"id": f.id()})
	})

	mux.HandleFunc("PUT /api/v1/courses/500", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.coursePuts = append(f.coursePuts, decode(t, r))
		reply(w, map[string]any{"id": targetCourse})
	})
	mux.HandleFunc("PUT "+api("settings"), func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.settingsPuts = append(f.settingsPuts, decode(t, r))
		reply(w, map[string]any{})
	})

	// File upload handshake plus the raw transfer endpoint.
	mux.HandleFunc("POST "+api("files"), func(w http.ResponseWriter, r *http.Request) {
		host := "http://" + r.Host
		reply(w, map[string]any{
			"upload_url":    host + "/upload",
			"upload_params": map[string]any{"filename": "lecture01.pdf", "content_type": "application/pdf"},
		})
	})
	mux.HandleFunc("POST /upload", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.uploads++
		reply(w, map[string]any{"id": f.id()})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return f, srv
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func writeJSONFile(t *testing.T, root, rel string, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	writeFile(t, root, rel, string(data))
}

// writeExportTree lays out a small but complete export of course 123.
func writeExportTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()

	writeJSONFile(t, root, "export.json", map[string]any{
		"format_version": 1,
		"course":         map[string]any{"id": 123, "name": "Intro to Biology"},
		"exported_at":    "2026-08-20T00:00:00Z",
		"counts":         map[string]any{"pages": 2, "assignments": 1},
	})

	writeFile(t, root, "pages/001_home-page/index.html",
		`<p>See <a href="https://src.example.edu/courses/123/pages/week-1">Week 1</a>`+
			` and <a href="/courses/123/assignments/55">the essay</a>.</p>`)
	writeJSONFile(t, root, "pages/001_home-page/page_metadata.json", map[string]any{
		"id": 45, "url": "home-page", "title": "Home Page", "position": 1,
		"published": true, "front_page": true,
		"html_path": "pages/001_home-page/index.html",
	})
	writeFile(t, root, "pages/002_week-1/index.html", "<p>Week one</p>")
	writeJSONFile(t, root, "pages/002_week-1/page_metadata.json", map[string]any{
		"id": 46, "url": "week-1", "title": "Week 1", "position": 2, "published": true,
		"html_path": "pages/002_week-1/index.html",
	})

	writeJSONFile(t, root, "assignment_groups.json", []map[string]any{
		{"id": 9, "name": "Homework", "position": 1, "group_weight": 40.0},
	})
	writeFile(t, root, "assignments/001_essay/index.html", "<p>Write an essay</p>")
	writeJSONFile(t, root, "assignments/001_essay/assignment_metadata.json", map[string]any{
		"id": 55, "name": "Essay", "position": 1, "published": true,
		"points_possible": 100.0, "assignment_group_id": 9,
		"html_path": "assignments/001_essay/index.html",
		"extra": map[string]any{"grading_standard_id": 7},
	})

	writeFile(t, root, "quizzes/001_quiz-1/index.html", "<p>First quiz</p>")
	writeJSONFile(t, root, "quizzes/001_quiz-1/quiz_metadata.json", map[string]any{
		"id": 66, "title": "Quiz 1", "quiz_type": "assignment", "published": true,
		"points_possible": 10.0,
	})
	writeJSONFile(t, root, "quizzes/001_quiz-1/questions.json", []map[string]any{
		{"id": 1, "quiz_id": 66, "question_name": "Q1", "question_text": "2+2?"},
	})

	writeFile(t, root, "files/week-1/lecture01.pdf", "pdf content")
	writeJSONFile(t, root, "files/week-1/lecture01.pdf.metadata.json", map[string]any{
		"id": 700, "file_name": "lecture01.pdf", "folder_path": "week-1",
		"file_path": "files/week-1/lecture01.pdf", "size": 11,
	})

	writeFile(t, root, "discussions/001_week-1-discussion/index.html", "<p>Discuss</p>")
	writeJSONFile(t, root, "discussions/001_week-1-discussion/discussion_metadata.json", map[string]any{
		"id": 77, "title": "Week 1 Discussion", "published": true,
	})
	writeFile(t, root, "announcements/001_welcome/index.html", "<p>Hi all</p>")
	writeJSONFile(t, root, "announcements/001_welcome/announcement_metadata.json", map[string]any{
		"id": 81, "title": "Welcome!", "published": true, "is_announcement": true,
	})

	writeJSONFile(t, root, "modules/modules.json", []map[string]any{
		{"id": 88, "name": "Week 1", "position": 1, "published": true,
			"items": []map[string]any{
				{"id": 1, "position": 1, "type": "Page", "page_url": "week-1", "title": "Week 1", "published": true},
				{"id": 2, "position": 2, "type": "Assignment", "content_id": 55, "title": "Essay", "published": true},
				{"id": 3, "position": 3, "type": "ExternalUrl", "external_url": "https://example.org", "title": "Reading", "published": true},
			}},
	})

	writeJSONFile(t, root, "rubrics/rubrics.json", []map[string]any{
		{"id": 500, "title": "Essay Rubric",
			"criteria": []map[string]any{{"description": "Clarity", "points": 20.0}}},
	})
	writeJSONFile(t, root, "course/rubric_links.json", []map[string]any{
		{"rubric_id": 500, "rubric_title": "Essay Rubric", "assignment_id": 55,
			"use_for_grading": true, "purpose": "grading"},
	})

	writeJSONFile(t, root, "course/course_metadata.json", map[string]any{
		"id": 123, "name": "Intro to Biology", "course_code": "BIO101",
		"syllabus_path": "course/syllabus.html",
		"settings":      map[string]any{"hide_final_grades": false, "default_view": "wiki"},
	})
	writeFile(t, root, "course/syllabus.html",
		`<p>Take <a href="/courses/123/quizzes/66">the quiz</a>.</p>`)

	return root
}

func newPipeline(t *testing.T, srv *httptest.Server, root string) *Pipeline {
	t.Helper()
	client, err := canvas.New(srv.URL, "token", canvas.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatal(err)
	}
	manifest, err := transfer.LoadManifest(filepath.Join(t.TempDir(), "upload_manifest.json"))
	if err != nil {
		t.Fatal(err)
	}
	store := idmap.New()
	p := New(client, targetCourse, root, store, filepath.Join(root, "id_map.json"), nil)
	p.Uploader = transfer.NewUploader(client, targetCourse, manifest,
		transfer.WithHTTPClient(srv.Client()))
	p.IncludeQuizQuestions = true
	return p
}

func TestRunAllSteps(t *testing.T) {
	f, srv := newFakeTarget(t)
	root := writeExportTree(t)
	p := newPipeline(t, srv, root)

	results, err := p.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != len(StepNames) {
		t.Fatalf("len(results) = %d, want %d", len(results), len(StepNames))
	}
	for _, r := range results {
		if r.Status() != "ok" {
			t.Errorf("step %s status = %s (err %v, counts %+v)", r.Name, r.Status(), r.Err, r.Counts)
		}
	}

	if len(f.pagePosts) != 2 {
		t.Errorf("pages created = %d, want 2", len(f.pagePosts))
	}
	if len(f.groupPosts) != 1 || len(f.assignmentPosts) != 1 {
		t.Errorf("groups = %d, assignments = %d", len(f.groupPosts), len(f.assignmentPosts))
	}
	if len(f.quizPosts) != 1 || len(f.questionPosts) != 1 {
		t.Errorf("quizzes = %d, questions = %d", len(f.quizPosts), len(f.questionPosts))
	}
	if f.uploads != 1 {
		t.Errorf("uploads = %d, want 1", f.uploads)
	}
	if len(f.topicPosts) != 2 {
		t.Errorf("topics created = %d, want 2", len(f.topicPosts))
	}
	if len(f.modulePosts) != 1 || len(f.itemPosts) != 3 {
		t.Errorf("modules = %d, items = %d", len(f.modulePosts), len(f.itemPosts))
	}
	if len(f.rubricPosts) != 1 || len(f.assocPosts) != 1 {
		t.Errorf("rubrics = %d, associations = %d", len(f.rubricPosts), len(f.assocPosts))
	}

	if _, err := os.Stat(filepath.Join(root, "id_map.json")); err != nil {
		t.Errorf("id map not persisted: %v", err)
	}
}

func TestAssignmentGroupIDRemapped(t *testing.T) {
	f, srv := newFakeTarget(t)
	root := writeExportTree(t)
	p := newPipeline(t, srv, root)

	if _, err := p.Run(context.Background(), []string{"assignment_groups", "assignments"}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	assignment, _ := f.assignmentPosts[0]["assignment"].(map[string]any)
	newGroup, _ := assignment["assignment_group_id"].(float64)
	oldGroup := 9
	if int(newGroup) == oldGroup || newGroup == 0 {
		t.Errorf("assignment_group_id = %v, want a remapped target id", assignment["assignment_group_id"])
	}
}

func TestGradingStandardRemappedWhenStoreHasEntry(t *testing.T) {
	f, srv := newFakeTarget(t)
	root := writeExportTree(t)
	p := newPipeline(t, srv, root)
	p.Store.RecordID(idmap.GradingStandards, 7, 9007)

	if _, err := p.Run(context.Background(), []string{"assignments"}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	assignment, _ := f.assignmentPosts[0]["assignment"].(map[string]any)
	if got, _ := assignment["grading_standard_id"].(float64); int(got) != 9007 {
		t.Errorf("grading_standard_id = %v, want 9007", assignment["grading_standard_id"])
	}
}

func TestGradingStandardPassesThroughUnmapped(t *testing.T) {
	f, srv := newFakeTarget(t)
	root := writeExportTree(t)
	p := newPipeline(t, srv, root)

	if _, err := p.Run(context.Background(), []string{"assignments"}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	assignment, _ := f.assignmentPosts[0]["assignment"].(map[string]any)
	if got, _ := assignment["grading_standard_id"].(float64); int(got) != 7 {
		t.Errorf("grading_standard_id = %v, want the source id 7", assignment["grading_standard_id"])
	}
}

func TestModuleItemsResolveThroughStore(t *testing.T) {
	f, srv := newFakeTarget(t)
	root := writeExportTree(t)
	p := newPipeline(t, srv, root)

	if _, err := p.Run(context.Background(), []string{"pages", "assignment_groups", "assignments", "modules"}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var pageItem, assignmentItem map[string]any
	for _, post := range f.itemPosts {
		item, _ := post["module_item"].(map[string]any)
		switch item["type"] {
		case "Page":
			pageItem = item
		case "Assignment":
			assignmentItem = item
		}
	}
	if pageItem == nil || pageItem["page_url"] != "week-1-2" {
		t.Errorf("page item = %+v, want page_url week-1-2", pageItem)
	}
	if assignmentItem == nil {
		t.Fatal("assignment item never posted")
	}
	newID, ok := p.Store.LookupID(idmap.Assignments, 55)
	if !ok {
		t.Fatal("assignment 55 not in id map")
	}
	if got, _ := assignmentItem["content_id"].(float64); int(got) != newID {
		t.Errorf("item content_id = %v, want %d", assignmentItem["content_id"], newID)
	}
}

func TestModuleItemsSkippedWhenUnmapped(t *testing.T) {
	_, srv := newFakeTarget(t)
	root := writeExportTree(t)
	p := newPipeline(t, srv, root)

	// No earlier steps ran, so the page and assignment items cannot resolve.
	results, err := p.Run(context.Background(), []string{"modules"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	c := results[0].Counts
	// One module plus the ExternalUrl item; Page and Assignment items skip.
	if c.Created != 2 || c.Skipped != 2 || c.Failed != 0 {
		t.Errorf("counts = %+v, want 2 created, 2 skipped", c)
	}
}

func TestRewritePushesUpdatedBodies(t *testing.T) {
	f, srv := newFakeTarget(t)
	root := writeExportTree(t)
	p := newPipeline(t, srv, root)

	steps := []string{"pages", "assignment_groups", "assignments", "quizzes", "rewrite", "course"}
	if _, err := p.Run(context.Background(), steps); err != nil {
		t.Fatalf("Run: %v", err)
	}

	put, ok := f.pagePuts["home-page-2"]
	if !ok {
		t.Fatalf("no body pushed for home-page-2; puts = %v", f.pagePuts)
	}
	body, _ := put["body"].(string)
	newAssignment, _ := p.Store.LookupID(idmap.Assignments, 55)
	if !strings.Contains(body, "/courses/500/pages/week-1-2") {
		t.Errorf("page link not rewritten: %q", body)
	}
	if !strings.Contains(body, fmt.Sprintf("/courses/500/assignments/%d", newAssignment)) {
		t.Errorf("assignment link not rewritten: %q", body)
	}
	if strings.Contains(body, "/courses/123/") {
		t.Errorf("body still references the source course: %q", body)
	}
	// Absolute links keep their original host.
	if !strings.Contains(body, "https://src.example.edu/courses/500/pages/week-1-2") {
		t.Errorf("absolute link lost its host: %q", body)
	}

	if len(f.coursePuts) != 1 {
		t.Fatalf("course puts = %d, want 1", len(f.coursePuts))
	}
	course, _ := f.coursePuts[0]["course"].(map[string]any)
	syllabus, _ := course["syllabus_body"].(string)
	if strings.Contains(syllabus, "/courses/123/") {
		t.Errorf("syllabus still references the source course: %q", syllabus)
	}
}

func TestRubricsIdempotentByTitle(t *testing.T) {
	f, srv := newFakeTarget(t)
	root := writeExportTree(t)
	p := newPipeline(t, srv, root)
	f.existingRubrics = []map[string]any{{"id": 900, "title": "Essay Rubric"}}

	results, err := p.Run(context.Background(), []string{"rubrics"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	c := results[0].Counts
	if c.Created != 0 || c.Skipped != 1 {
		t.Errorf("counts = %+v, want 0 created, 1 skipped", c)
	}
	if len(f.rubricPosts) != 0 {
		t.Errorf("rubric created despite existing title")
	}
	if newID, ok := p.Store.LookupID(idmap.Rubrics, 500); !ok || newID != 900 {
		t.Errorf("rubric mapping = %d, %v, want 900", newID, ok)
	}
}

func TestItemFailureMakesStepPartial(t *testing.T) {
	f, srv := newFakeTarget(t)
	root := writeExportTree(t)
	p := newPipeline(t, srv, root)
	f.failAssignments = true

	results, err := p.Run(context.Background(), []string{"assignments"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	r := results[0]
	if r.Err != nil {
		t.Fatalf("step error = %v, want per-item failure only", r.Err)
	}
	if r.Status() != "partial" || r.Counts.Failed != 1 {
		t.Errorf("status = %s, counts = %+v", r.Status(), r.Counts)
	}
	failures := p.Failures()
	if len(failures) != 1 || failures[0].Step != "assignments" {
		t.Errorf("failures = %+v", failures)
	}
}

func TestContinueOnError(t *testing.T) {
	f, srv := newFakeTarget(t)
	root := writeExportTree(t)
	writeFile(t, root, "assignment_groups.json", "{not json")

	p := newPipeline(t, srv, root)
	steps := []string{"assignment_groups", "quizzes"}

	if _, err := p.Run(context.Background(), steps); err == nil {
		t.Fatal("expected a step error without ContinueOnError")
	}
	if len(f.quizPosts) != 0 {
		t.Fatalf("quizzes ran after a fatal step error")
	}

	p = newPipeline(t, srv, root)
	p.ContinueOnError = true
	results, err := p.Run(context.Background(), steps)
	if err != nil {
		t.Fatalf("Run with ContinueOnError: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}
	if results[0].Err == nil {
		t.Error("broken step reported no error")
	}
	if results[1].Err != nil {
		t.Errorf("quizzes step failed: %v", results[1].Err)
	}
	if len(f.quizPosts) != 1 {
		t.Errorf("quizzes created = %d, want 1", len(f.quizPosts))
	}
}

func TestUnknownStepRejected(t *testing.T) {
	_, srv := newFakeTarget(t)
	root := writeExportTree(t)
	p := newPipeline(t, srv, root)

	if _, err := p.Run(context.Background(), []string{"bogus"}); err == nil {
		t.Fatal("expected an error for an unknown step")
	}
}
