package render

import (
	"fmt"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	humanize "github.com/dustin/go-humanize"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

const maxNameWidth = 40

// reportWrapWidth bounds word wrap in rendered run reports. Failure lines
// carry export tree paths that become unreadable when wrapped narrower.
const reportWrapWidth = 100

// ColorsEnabled reports whether terminal styling should be used. Setting
// NO_COLOR to any value disables it, as does TERM=dumb.
func ColorsEnabled() bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	return os.Getenv("TERM") != "dumb"
}

// StepRow is one migration step as displayed in human output.
type StepRow struct {
	Name     string
	Status   string // "ok", "partial", "failed", "skipped"
	Created  int
	Updated  int
	Skipped  int
	Failed   int
	Duration time.Duration
}

// RunRow is one recorded run as displayed by the status command.
type RunRow struct {
	ID             int
	Command        string
	SourceCourseID int
	TargetCourseID int
	Status         string
	StartedAt      time.Time
	FinishedAt     time.Time
}

// StyledText applies a lipgloss style to text when colors are enabled.
// When colors are disabled, it returns the plain text unchanged.
func StyledText(text string, style lipgloss.Style) string {
	if ColorsEnabled() {
		return style.Render(text)
	}
	return text
}

// statusColor maps a step or run status to a terminal color.
func statusColor(status string) lipgloss.Color {
	switch status {
	case "ok", "completed":
		return lipgloss.Color("10")
	case "partial":
		return lipgloss.Color("11")
	case "failed":
		return lipgloss.Color("9")
	case "skipped":
		return lipgloss.Color("8")
	default:
		return lipgloss.Color("15")
	}
}

// truncate shortens a string to maxLen runes, appending an ellipsis if truncated.
func truncate(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

// EmptyState renders a styled empty-state message with an optional contextual hint.
// When colors are enabled the message is rendered in dim gray and the hint is italic.
// When quiet is true the hint is suppressed.
func EmptyState(message, hint string, quiet bool) string {
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("8"))

	result := StyledText(message, dimStyle)
	if !quiet && hint != "" {
		result += "\n" + StyledText(hint, dimStyle.Italic(true))
	}
	return result
}

// RenderStepTable renders per-step counters as a formatted table.
func RenderStepTable(steps []StepRow) string {
	if len(steps) == 0 {
		return EmptyState("No steps recorded.", "Run an import with: coursemover import", false)
	}

	if !ColorsEnabled() {
		return renderPlainStepTable(steps)
	}

	headers := []string{"Step", "Status", "Created", "Updated", "Skipped", "Failed", "Duration"}

	rows := make([][]string, 0, len(steps))
	for _, s := range steps {
		rows = append(rows, stepToRow(s))
	}

	statuses := make([]string, len(steps))
	for i, s := range steps {
		statuses[i] = s.Status
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("8"))).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			s := lipgloss.NewStyle().PaddingLeft(1).PaddingRight(1)

			if row == table.HeaderRow {
				return s.Bold(true).Foreground(lipgloss.Color("15"))
			}

			if row < 0 || row >= len(statuses) {
				return s
			}

			switch col {
			case 0:
				return s.Bold(true)
			case 1:
				return s.Foreground(statusColor(statuses[row]))
			case 5:
				if steps[row].Failed > 0 {
					return s.Foreground(lipgloss.Color("9"))
				}
				return s
			default:
				return s
			}
		})

	return t.Render()
}

func stepToRow(s StepRow) []string {
	return []string{
		truncate(s.Name, maxNameWidth),
		s.Status,
		fmt.Sprintf("%d", s.Created),
		fmt.Sprintf("%d", s.Updated),
		fmt.Sprintf("%d", s.Skipped),
		fmt.Sprintf("%d", s.Failed),
		s.Duration.Round(time.Millisecond).String(),
	}
}

func renderPlainStepTable(steps []StepRow) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%-24s %-10s %8s %8s %8s %8s %12s\n",
		"Step", "Status", "Created", "Updated", "Skipped", "Failed", "Duration")
	fmt.Fprintf(&b, "%s\n", strings.Repeat("-", 84))

	for _, s := range steps {
		fmt.Fprintf(&b, "%-24s %-10s %8d %8d %8d %8d %12s\n",
			truncate(s.Name, maxNameWidth),
			s.Status,
			s.Created,
			s.Updated,
			s.Skipped,
			s.Failed,
			s.Duration.Round(time.Millisecond),
		)
	}

	return b.String()
}

// RenderRunTable renders the run journal as a formatted table, newest first.
func RenderRunTable(runs []RunRow) string {
	if len(runs) == 0 {
		return EmptyState("No runs recorded.", "Run an export or import first.", false)
	}

	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		courses := fmt.Sprintf("%d -> %d", r.SourceCourseID, r.TargetCourseID)
		if r.TargetCourseID == 0 {
			courses = fmt.Sprintf("%d", r.SourceCourseID)
		}
		rows = append(rows, []string{
			fmt.Sprintf("%d", r.ID),
			r.Command,
			courses,
			r.Status,
			humanize.Time(r.StartedAt),
		})
	}

	if !ColorsEnabled() {
		var b strings.Builder
		fmt.Fprintf(&b, "%-5s %-8s %-16s %-10s %s\n", "ID", "Command", "Courses", "Status", "Started")
		fmt.Fprintf(&b, "%s\n", strings.Repeat("-", 60))
		for _, row := range rows {
			fmt.Fprintf(&b, "%-5s %-8s %-16s %-10s %s\n", row[0], row[1], row[2], row[3], row[4])
		}
		return b.String()
	}

	statuses := make([]string, len(runs))
	for i, r := range runs {
		statuses[i] = r.Status
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("8"))).
		Headers("ID", "Command", "Courses", "Status", "Started").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			s := lipgloss.NewStyle().PaddingLeft(1).PaddingRight(1)
			if row == table.HeaderRow {
				return s.Bold(true).Foreground(lipgloss.Color("15"))
			}
			if col == 3 && row >= 0 && row < len(statuses) {
				return s.Foreground(statusColor(statuses[row]))
			}
			return s
		})

	return t.Render()
}

// RenderRunReport renders the status report for a recorded run. With colors
// enabled the markdown is styled for the terminal; otherwise, and whenever
// styling fails, the raw markdown is returned so piped output stays
// grep-friendly.
func RenderRunReport(run RunRow, steps []StepRow, failures []string) string {
	md := RunReportMarkdown(run, steps, failures)
	if !ColorsEnabled() {
		return md
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(reportWrapWidth),
	)
	if err != nil {
		return md
	}
	styled, err := r.Render(md)
	if err != nil {
		return md
	}
	return strings.TrimSpace(styled)
}

// RunReportMarkdown builds the markdown status report for a recorded run.
func RunReportMarkdown(run RunRow, steps []StepRow, failures []string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Run %d: %s\n\n", run.ID, run.Command)
	fmt.Fprintf(&b, "- **Course:** %d → %d\n", run.SourceCourseID, run.TargetCourseID)
	fmt.Fprintf(&b, "- **Status:** %s\n", run.Status)
	fmt.Fprintf(&b, "- **Started:** %s\n", humanize.Time(run.StartedAt))
	if !run.FinishedAt.IsZero() {
		fmt.Fprintf(&b, "- **Duration:** %s\n", run.FinishedAt.Sub(run.StartedAt).Round(time.Second))
	}

	if len(steps) > 0 {
		b.WriteString("\n## Steps\n\n")
		b.WriteString("| Step | Status | Created | Updated | Skipped | Failed |\n")
		b.WriteString("|------|--------|--------:|--------:|--------:|-------:|\n")
		for _, s := range steps {
			fmt.Fprintf(&b, "| %s | %s | %d | %d | %d | %d |\n",
				s.Name, s.Status, s.Created, s.Updated, s.Skipped, s.Failed)
		}
	}

	if len(failures) > 0 {
		b.WriteString("\n## Failures\n\n")
		for _, f := range failures {
			fmt.Fprintf(&b, "- %s\n", f)
		}
	}

	return b.String()
}
