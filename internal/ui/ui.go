package ui

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
)

var (
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#DC2626")).Bold(true)
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#CA8A04"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#16A34A"))
	hintStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280")).Italic(true)
	boldStyle    = lipgloss.NewStyle().Bold(true)
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#9CA3AF"))
)

// FormatError returns a styled multi-line error message.
func FormatError(title, detail, suggestion string) string {
	out := errorStyle.Render("Error: "+title) + "\n"
	if detail != "" {
		out += "  " + detail + "\n"
	}
	if suggestion != "" {
		out += "  " + hintStyle.Render("Hint: "+suggestion) + "\n"
	}
	return out
}

// TaskStarted prints the header of a task run against a deployment.
func TaskStarted(w io.Writer, task, deployment, infrastructure string) {
	fmt.Fprintf(w, "%s %s %s\n", boldStyle.Render(task), deployment, dimStyle.Render("on "+infrastructure))
}

// TaskDone prints a green status line for a finished task.
func TaskDone(w io.Writer, task, deployment string) {
	fmt.Fprintf(w, "  %s %s %s\n", successStyle.Render("OK "), task, deployment)
}

// TaskFailed prints a red status line for a failed task.
func TaskFailed(w io.Writer, task, deployment string, err error) {
	fmt.Fprintf(w, "  %s %s %s: %v\n", errorStyle.Render("ERR"), task, deployment, err)
}

// Warn prints a yellow warning message.
func Warn(w io.Writer, msg string) {
	fmt.Fprintln(w, warnStyle.Render("Warning: "+msg))
}

// Deployment prints one line of the deployment listing.
func Deployment(w io.Writer, name, kind, image string, hosts []string) {
	fmt.Fprintf(w, "  %s %s %s %s\n", boldStyle.Render(name), dimStyle.Render("("+kind+")"), image, hintStyle.Render(fmt.Sprint(hosts)))
}
