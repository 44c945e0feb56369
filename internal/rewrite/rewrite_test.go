package rewrite

import (
	"strings"
	"testing"

	"github.com/campuskit/coursemover/internal/idmap"
)

func fullMap() *idmap.Store {
	m := idmap.New()
	m.RecordID(idmap.Files, 45, 900)
	m.RecordID(idmap.Assignments, 55, 910)
	m.RecordID(idmap.Quizzes, 66, 920)
	m.RecordID(idmap.Discussions, 77, 930)
	m.RecordID(idmap.Modules, 88, 940)
	m.RecordSlug("home-page", "welcome")
	return m
}

func TestRewriteAllCategories(t *testing.T) {
	html := strings.Join([]string{
		`<a href="https://canvas.test/courses/123/files/45/download">File</a>`,
		`<a data-api-endpoint="https://canvas.test/api/v1/courses/123/files/45">Data</a>`,
		`<img src="/api/v1/files/45/preview">`,
		`<a href="https://canvas.test/courses/123/assignments/55">Assignment</a>`,
		`<a href="https://canvas.test/api/v1/courses/123/quizzes/66">Quiz</a>`,
		`<a href="/courses/123/discussion_topics/77">Discussion</a>`,
		`<a href="https://canvas.test/courses/123/pages/home-page">Page</a>`,
		`<a href="https://canvas.test/api/v1/courses/123/pages/home-page">Page API</a>`,
		`<a href="/courses/123/modules/88">Module</a>`,
	}, "\n")

	got := Rewrite(html, 123, 456, fullMap())

	for _, want := range []string{
		`https://canvas.test/courses/456/files/900/download`,
		`https://canvas.test/api/v1/courses/456/files/900`,
		`src="/api/v1/files/900/preview"`,
		`https://canvas.test/courses/456/assignments/910`,
		`https://canvas.test/api/v1/courses/456/quizzes/920`,
		`href="/courses/456/discussion_topics/930"`,
		`https://canvas.test/courses/456/pages/welcome`,
		`https://canvas.test/api/v1/courses/456/pages/welcome`,
		`href="/courses/456/modules/940"`,
	} {
		if !strings.Contains(got, want) {
			t.Errorf("missing %q in:\n%s", want, got)
		}
	}
	if strings.Contains(got, "/courses/123/") {
		t.Errorf("source course references survived:\n%s", got)
	}
}

func TestRewriteScenarioFileDownload(t *testing.T) {
	m := idmap.New()
	m.RecordID(idmap.Files, 45, 900)

	in := `<a href="/courses/123/files/45/download">F</a>`
	want := `<a href="/courses/456/files/900/download">F</a>`
	if got := Rewrite(in, 123, 456, m); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestRewriteMissingMappingLeavesInputIdentical(t *testing.T) {
	in := `<a href="https://canvas.test/courses/123/files/45">File</a>` +
		`<img src="/files/45/preview">`
	got, rep := RewriteWithReport(in, 123, 456, idmap.New())
	if got != in {
		t.Errorf("unmapped links must stay byte-identical:\n got %q\nwant %q", got, in)
	}
	if rep.Rewritten != 0 || rep.Unresolved == 0 {
		t.Errorf("report = %+v, want only unresolved counts", rep)
	}
}

func TestRewriteSyllabusRescopesWithoutLookup(t *testing.T) {
	in := `<a href="https://host/courses/123/assignments/syllabus">S</a>` +
		`<a href="/courses/123/assignments/syllabus#summary">Anchor</a>` +
		`<a href="https://host/api/v1/courses/123/assignments/syllabus?module_item_id=10">API</a>`

	got := Rewrite(in, 123, 789, idmap.New())

	for _, want := range []string{
		`https://host/courses/789/assignments/syllabus"`,
		`/courses/789/assignments/syllabus#summary`,
		`https://host/api/v1/courses/789/assignments/syllabus?module_item_id=10`,
	} {
		if !strings.Contains(got, want) {
			t.Errorf("missing %q in:\n%s", want, got)
		}
	}
}

func TestRewritePreservesHostRelativity(t *testing.T) {
	m := fullMap()

	relative := `<a href="/courses/123/assignments/55">A</a>`
	if got := Rewrite(relative, 123, 456, m); strings.Contains(got, "http") {
		t.Errorf("host-relative link became absolute: %q", got)
	}

	absolute := `<a href="https://canvas.test/courses/123/assignments/55">A</a>`
	if got := Rewrite(absolute, 123, 456, m); !strings.HasPrefix(got, `<a href="https://canvas.test/`) {
		t.Errorf("absolute link lost its host: %q", got)
	}
}

func TestRewriteIdempotent(t *testing.T) {
	m := fullMap()
	in := strings.Join([]string{
		`<a href="/courses/123/files/45/download">F</a>`,
		`<a href="https://canvas.test/courses/123/pages/home-page?x=1">P</a>`,
		`<a href="/courses/123/modules/88">M</a>`,
	}, "\n")

	once := Rewrite(in, 123, 456, m)
	twice := Rewrite(once, 123, 456, m)
	if once != twice {
		t.Errorf("rewrite is not idempotent:\nonce  %q\ntwice %q", once, twice)
	}
}

func TestRewritePreservesTails(t *testing.T) {
	m := fullMap()
	in := `<a href="/courses/123/quizzes/66/take?preview=1#q2">Q</a>`
	want := `<a href="/courses/456/quizzes/920/take?preview=1#q2">Q</a>`
	if got := Rewrite(in, 123, 456, m); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestGlobalFilesSkipsCourseScopedMatches(t *testing.T) {
	// Only file 45 is mapped; the course-scoped link to 45 under a foreign
	// course must not be half-rewritten by the global family.
	m := idmap.New()
	m.RecordID(idmap.Files, 45, 900)

	in := `<a href="/courses/999/files/45/download">other course</a>` +
		`<a href="/files/45/download">global</a>`
	got := Rewrite(in, 123, 456, m)

	if !strings.Contains(got, `/courses/999/files/45/download`) {
		t.Errorf("foreign-course link was modified: %q", got)
	}
	if !strings.Contains(got, `href="/files/900/download"`) {
		t.Errorf("global files link not rewritten: %q", got)
	}
}

func TestRewriteOtherCoursesUntouched(t *testing.T) {
	m := fullMap()
	in := `<a href="/courses/321/assignments/55">foreign</a>`
	if got := Rewrite(in, 123, 456, m); got != in {
		t.Errorf("link under a different source course changed: %q", got)
	}
}

func TestRewritePureFunction(t *testing.T) {
	m := fullMap()
	in := `<a href="/courses/123/files/45">F</a><a href="/courses/123/pages/missing">P</a>`
	a := Rewrite(in, 123, 456, m)
	b := Rewrite(in, 123, 456, m)
	if a != b {
		t.Error("identical inputs produced different output")
	}
}
