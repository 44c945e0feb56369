package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/campuskit/coursemover/internal/render"
)

var (
	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
)

// writeHumanSuccess prints a command result for a terminal reader. One-line
// results (export finished, pages cleared) get a check prefix. Multi-line
// payloads are step tables and rendered run reports that arrive already
// formatted, so they pass through untouched.
func writeHumanSuccess(w io.Writer, message string) {
	if message == "" {
		return
	}
	if strings.Contains(message, "\n") {
		fmt.Fprintln(w, message)
		return
	}
	if !render.ColorsEnabled() {
		fmt.Fprintln(w, message)
		return
	}
	fmt.Fprintf(w, "%s %s\n", okStyle.Render("✔"), message)
}

// writeHumanError prints the failure line a command exits with.
func writeHumanError(w io.Writer, err error) {
	prefix := "Error:"
	if render.ColorsEnabled() {
		prefix = failStyle.Render("✘ Error:")
	}
	fmt.Fprintf(w, "%s %s\n", prefix, err)
}
