// Package model defines the metadata shapes written by the exporters and
// read back by the importers. Every struct round-trips through the sidecar
// JSON files in the export tree.
package model

// PageMeta describes one wiki page. Pages are slug-addressed: the target
// system assigns a new URL slug on create, so both the numeric id and the
// slug participate in the id map.
type PageMeta struct {
	ID           int    `json:"id"`
	URL          string `json:"url"`
	Title        string `json:"title"`
	Position     int    `json:"position"`
	Published    bool   `json:"published"`
	FrontPage    bool   `json:"front_page,omitempty"`
	UpdatedAt    string `json:"updated_at"`
	HTMLPath     string `json:"html_path"`
	SourceAPIURL string `json:"source_api_url"`
}

// AssignmentMeta describes one assignment. Extra holds the pass-through
// fields the importer's allow-list selects from (dates, grading, submission
// settings); keeping them raw avoids chasing every optional API field.
type AssignmentMeta struct {
	ID                int            `json:"id"`
	Name              string         `json:"name"`
	Position          int            `json:"position"`
	Published         bool           `json:"published"`
	DueAt             string         `json:"due_at,omitempty"`
	PointsPossible    float64        `json:"points_possible,omitempty"`
	AssignmentGroupID int            `json:"assignment_group_id,omitempty"`
	HTMLPath          string         `json:"html_path,omitempty"`
	UpdatedAt         string         `json:"updated_at"`
	SourceAPIURL      string         `json:"source_api_url"`
	Extra             map[string]any `json:"extra,omitempty"`
}

// AssignmentGroupMeta describes one assignment group.
type AssignmentGroupMeta struct {
	ID          int     `json:"id"`
	Name        string  `json:"name"`
	Position    int     `json:"position"`
	GroupWeight float64 `json:"group_weight,omitempty"`
}

// QuizMeta describes one quiz and its optional exported questions file.
type QuizMeta struct {
	ID             int            `json:"id"`
	Title          string         `json:"title"`
	QuizType       string         `json:"quiz_type,omitempty"`
	Published      bool           `json:"published"`
	PointsPossible float64        `json:"points_possible,omitempty"`
	TimeLimit      int            `json:"time_limit,omitempty"`
	DueAt          string         `json:"due_at,omitempty"`
	UnlockAt       string         `json:"unlock_at,omitempty"`
	LockAt         string         `json:"lock_at,omitempty"`
	HTMLPath       string         `json:"html_path,omitempty"`
	UpdatedAt      string         `json:"updated_at"`
	SourceAPIURL   string         `json:"source_api_url"`
	Extra          map[string]any `json:"extra,omitempty"`
}

// DiscussionMeta describes a discussion topic, or an announcement when
// IsAnnouncement is set (announcements are a flavor of discussion on the
// wire).
type DiscussionMeta struct {
	ID             int            `json:"id"`
	Title          string         `json:"title"`
	Published      bool           `json:"published"`
	Pinned         bool           `json:"pinned,omitempty"`
	Locked         bool           `json:"locked,omitempty"`
	IsAnnouncement bool           `json:"is_announcement,omitempty"`
	HTMLPath       string         `json:"html_path,omitempty"`
	UpdatedAt      string         `json:"updated_at"`
	SourceAPIURL   string         `json:"source_api_url"`
	Assignment     map[string]any `json:"assignment,omitempty"`
	Extra          map[string]any `json:"extra,omitempty"`
}

// ModuleItemMeta is one entry inside a module. ContentID refers to the
// source system; the importer resolves it through the id map.
type ModuleItemMeta struct {
	ID          int    `json:"id"`
	Position    int    `json:"position"`
	Type        string `json:"type"` // Page, Assignment, Quiz, Discussion, File, SubHeader, ExternalUrl
	ContentID   int    `json:"content_id,omitempty"`
	Title       string `json:"title"`
	PageURL     string `json:"page_url,omitempty"`
	ExternalURL string `json:"external_url,omitempty"`
	Published   bool   `json:"published"`
	Indent      int    `json:"indent,omitempty"`
}

// ModuleMeta describes one module and its ordered items.
type ModuleMeta struct {
	ID           int              `json:"id"`
	Name         string           `json:"name"`
	Position     int              `json:"position"`
	Published    bool             `json:"published"`
	Items        []ModuleItemMeta `json:"items"`
	UpdatedAt    string           `json:"updated_at"`
	SourceAPIURL string           `json:"source_api_url"`
}

// FileMeta is the sidecar written next to each exported file.
type FileMeta struct {
	ID           int    `json:"id"`
	FileName     string `json:"file_name"`
	ContentType  string `json:"content_type,omitempty"`
	SHA256       string `json:"sha256,omitempty"`
	FolderPath   string `json:"folder_path"`
	FilePath     string `json:"file_path"`
	Size         int64  `json:"size"`
	SourceAPIURL string `json:"source_api_url"`
}

// RubricMeta describes one rubric with its raw criteria, which are passed
// through to the target as-is.
type RubricMeta struct {
	ID                        int     `json:"id"`
	Title                     string  `json:"title"`
	Criteria                  []any   `json:"criteria"`
	FreeFormCriterionComments bool    `json:"free_form_criterion_comments,omitempty"`
	PointsPossible            float64 `json:"points_possible,omitempty"`
}

// RubricLink records that a rubric was associated with an assignment on the
// source course; the importer re-associates through the id map and, when the
// rubric id is unknown, by title.
type RubricLink struct {
	RubricID      int    `json:"rubric_id"`
	RubricTitle   string `json:"rubric_title,omitempty"`
	AssignmentID  int    `json:"assignment_id"`
	UseForGrading bool   `json:"use_for_grading,omitempty"`
	Purpose       string `json:"purpose,omitempty"`
}

// CourseMeta carries the course identity and settings snapshot.
type CourseMeta struct {
	ID            int            `json:"id"`
	Name          string         `json:"name"`
	CourseCode    string         `json:"course_code"`
	WorkflowState string         `json:"workflow_state,omitempty"`
	SyllabusPath  string         `json:"syllabus_path,omitempty"`
	Settings      map[string]any `json:"settings,omitempty"`
	SourceAPIURL  string         `json:"source_api_url"`
}
