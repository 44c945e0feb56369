// Package rewrite repairs embedded resource links in exported HTML once the
// id map knows where every resource landed on the target course.
//
// This is deliberately best-effort text substitution over known URL shapes,
// not a structural HTML rewrite: round-trip fidelity matters more than
// parser-grade correctness, and a malformed URL is left exactly as found.
package rewrite

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/campuskit/coursemover/internal/idmap"
)

// urlTail matches the remainder of a URL inside an HTML attribute: trailing
// path segments, query string, and fragment, up to the closing quote.
const urlTail = `[^"'\s<>]*`

// hostPrefix optionally matches an absolute scheme+host prefix. It is
// captured and re-emitted verbatim so that absolute links stay absolute and
// host-relative links stay host-relative.
const hostPrefix = `(https?://[^/"'\s<>]+)?`

// numericFamilies pairs each course-scoped URL path segment with the id-map
// category that owns its identifiers.
var numericFamilies = []struct {
	segment string
	cat     idmap.Category
}{
	{"files", idmap.Files},
	{"assignments", idmap.Assignments},
	{"quizzes", idmap.Quizzes},
	{"discussion_topics", idmap.Discussions},
	{"modules", idmap.Modules},
}

// Report summarizes one rewrite pass. Unresolved references are not errors;
// the counts exist so operators can notice links that still point at the
// source course.
type Report struct {
	Rewritten  int
	Unresolved int
	ByCategory map[idmap.Category]int
}

func (r *Report) addRewritten(cat idmap.Category) {
	r.Rewritten++
	if r.ByCategory == nil {
		r.ByCategory = make(map[idmap.Category]int)
	}
	r.ByCategory[cat]++
}

// Rewrite returns html with every mapped reference to sourceCourseID
// repointed at targetCourseID. Unmapped references are left byte-for-byte
// unchanged. The function is pure: identical inputs give identical output.
func Rewrite(html string, sourceCourseID, targetCourseID int, m *idmap.Store) string {
	out, _ := RewriteWithReport(html, sourceCourseID, targetCourseID, m)
	return out
}

// RewriteWithReport is Rewrite plus counters for the caller's summary.
func RewriteWithReport(html string, sourceCourseID, targetCourseID int, m *idmap.Store) (string, Report) {
	var rep Report
	src := strconv.Itoa(sourceCourseID)
	dst := strconv.Itoa(targetCourseID)

	// The synthetic syllabus pseudo-assignment is course-rescoped only: the
	// trailing token has no entity id to look up.
	html = rescopeSyllabus(html, src, dst)

	for _, fam := range numericFamilies {
		html = rewriteNumeric(html, src, dst, fam.segment, fam.cat, m, &rep)
	}
	html = rewritePageSlugs(html, src, dst, m, &rep)
	html = rewriteGlobalFiles(html, m, &rep)

	return html, rep
}

// courseScoped builds the pattern for one category under both URL shapes:
// the browser-facing /courses/... path and the API-facing /api/v1/courses/...
// path (the optional captured segment).
func courseScoped(srcCourse, segment, idPattern string) *regexp.Regexp {
	return regexp.MustCompile(fmt.Sprintf(`%s(/api/v1)?/courses/%s/%s/(%s)(%s)`,
		hostPrefix, srcCourse, segment, idPattern, urlTail))
}

func rewriteNumeric(html, src, dst, segment string, cat idmap.Category, m *idmap.Store, rep *Report) string {
	re := courseScoped(src, segment, `\d+`)
	return re.ReplaceAllStringFunc(html, func(match string) string {
		g := re.FindStringSubmatch(match)
		prefix, apiSeg, idStr, tail := g[1], g[2], g[3], g[4]

		oldID, err := strconv.Atoi(idStr)
		if err != nil {
			return match
		}
		newID, ok := m.LookupID(cat, oldID)
		if !ok {
			rep.Unresolved++
			return match
		}
		rep.addRewritten(cat)
		return fmt.Sprintf("%s%s/courses/%s/%s/%d%s", prefix, apiSeg, dst, segment, newID, tail)
	})
}

// pageSlug matches a URL-path-safe page slug; it stops before any query
// string or fragment, which urlTail then preserves.
const pageSlug = `[A-Za-z0-9._~%-]+`

func rewritePageSlugs(html, src, dst string, m *idmap.Store, rep *Report) string {
	re := courseScoped(src, "pages", pageSlug)
	return re.ReplaceAllStringFunc(html, func(match string) string {
		g := re.FindStringSubmatch(match)
		prefix, apiSeg, oldSlug, tail := g[1], g[2], g[3], g[4]

		newSlug, ok := m.LookupSlug(oldSlug)
		if !ok {
			rep.Unresolved++
			return match
		}
		rep.addRewritten(idmap.PagesURL)
		return fmt.Sprintf("%s%s/courses/%s/pages/%s%s", prefix, apiSeg, dst, newSlug, tail)
	})
}

var globalFilesRe = regexp.MustCompile(hostPrefix + `(/api/v1)?/files/(\d+)(` + urlTail + `)`)

// coursePathSuffix detects a match that is really the tail of a course-scoped
// files URL, which the course-scoped family already owns.
var coursePathSuffix = regexp.MustCompile(`/courses/\d+$`)

// rewriteGlobalFiles handles preview/download links that omit the course
// scope entirely, e.g. /files/45/download or /api/v1/files/45. These carry no
// course segment, so only the file id is rewritten.
func rewriteGlobalFiles(html string, m *idmap.Store, rep *Report) string {
	locs := globalFilesRe.FindAllStringSubmatchIndex(html, -1)
	if locs == nil {
		return html
	}

	var b strings.Builder
	b.Grow(len(html))
	last := 0
	for _, loc := range locs {
		start, end := loc[0], loc[1]
		if coursePathSuffix.MatchString(html[:start]) {
			continue
		}

		prefix := submatch(html, loc, 1)
		apiSeg := submatch(html, loc, 2)
		idStr := submatch(html, loc, 3)
		tail := submatch(html, loc, 4)

		oldID, err := strconv.Atoi(idStr)
		if err != nil {
			continue
		}
		newID, ok := m.LookupID(idmap.Files, oldID)
		if !ok {
			rep.Unresolved++
			continue
		}

		b.WriteString(html[last:start])
		fmt.Fprintf(&b, "%s%s/files/%d%s", prefix, apiSeg, newID, tail)
		last = end
		rep.addRewritten(idmap.Files)
	}
	b.WriteString(html[last:])
	return b.String()
}

func rescopeSyllabus(html, src, dst string) string {
	// The tail must be empty or start a new path/query/fragment segment so
	// that an ordinary page or assignment slug beginning with "syllabus"
	// never matches.
	re := regexp.MustCompile(fmt.Sprintf(`%s(/api/v1)?/courses/%s/assignments/syllabus((?:[/?#]%s)?)`,
		hostPrefix, src, urlTail))
	return re.ReplaceAllStringFunc(html, func(match string) string {
		g := re.FindStringSubmatch(match)
		return fmt.Sprintf("%s%s/courses/%s/assignments/syllabus%s", g[1], g[2], dst, g[3])
	})
}

// submatch extracts capture group i from a FindAllStringSubmatchIndex
// location, or "" when the group did not participate.
func submatch(s string, loc []int, i int) string {
	if loc[2*i] < 0 {
		return ""
	}
	return s[loc[2*i]:loc[2*i+1]]
}
