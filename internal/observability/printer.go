// Package observability holds Prometheus metrics for the feedback pipeline and
// formatted console output for the run-job command.
package observability

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/jonathan/doc-feedback/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// progressBarWidth is the number of cells in a progress bar
	progressBarWidth = 20
	// previewRunes bounds feedback previews
	previewRunes = 48
)

// Printer writes human-readable job output for the CLI
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %s │\n", pad(title, boxWidth-4))
	fmt.Fprintf(p.out, "├%s┤\n", border)

	for _, line := range strings.Split(strings.TrimRight(content, "\n"), "\n") {
		fmt.Fprintf(p.out, "│ %s │\n", pad(truncate(line, boxWidth-4), boxWidth-4))
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// PrintProgress writes one progress line
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) PrintProgress(status types.JobStatus, progress int, step string) {
	fmt.Fprintf(p.out, "[%s] %3d%% %-10s %s\n", progressBar(progress), progress, status, step)
}

// PrintSections summarises the sections found in a document
func (p *Printer) PrintSections(sections []types.Section) {
	if len(sections) == 0 {
		return
	}

	var sb strings.Builder
	for i, s := range sections {
		title := s.Title
		if title == "" {
			title = "(untitled)"
		}
		state := "filled"
		if s.Empty {
			state = "empty"
		}
		fmt.Fprintf(&sb, "%2d. %s [%s]\n", i+1, title, state)
	}
	p.printBox("DOCUMENT SECTIONS", sb.String())
}

// PrintFeedbackItems previews the blocks that were inserted
func (p *Printer) PrintFeedbackItems(items []types.FeedbackItem) {
	if len(items) == 0 {
		return
	}

	var sb strings.Builder
	for _, it := range items {
		preview := strings.Join(strings.Fields(strings.ReplaceAll(it.Content, "\v", " ")), " ")
		fmt.Fprintf(&sb, "@%-6d %-10s %s\n", it.InsertAt, it.Type, truncate(preview, previewRunes))
	}
	p.printBox("INSERTED FEEDBACK", sb.String())
}

// PrintJob outputs the final state of a job
func (p *Printer) PrintJob(job *types.FeedbackJob) {
	if job == nil {
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Job:       %s\n", job.ID)
	fmt.Fprintf(&sb, "Document:  %s\n", job.DocumentID)
	fmt.Fprintf(&sb, "Genre:     %s\n", job.Genre)
	fmt.Fprintf(&sb, "Status:    %s (%d%%)\n", job.Status, job.Progress)
	if job.CurrentStep != nil {
		fmt.Fprintf(&sb, "Step:      %s\n", *job.CurrentStep)
	}
	fmt.Fprintf(&sb, "Attempt:   %d\n", job.Attempt)
	fmt.Fprintf(&sb, "Comments:  %d\n", job.CommentsAdded)
	if job.Error != nil {
		fmt.Fprintf(&sb, "Error:     %s\n", *job.Error)
	}

	sb.WriteString("\n")
	names := []string{"Document access", "Content analysis", "Feedback generation", "Document update"}
	for i, st := range job.StepDetails.Ordered() {
		fmt.Fprintf(&sb, "  %s %s\n", stepIcon(st), names[i])
	}

	p.printBox("FEEDBACK JOB", sb.String())
}

func stepIcon(s types.StepStatus) string {
	switch s {
	case types.StepCompleted:
		return "✓"
	case types.StepFailed:
		return "✗"
	default:
		return "·"
	}
}

func progressBar(progress int) string {
	progress = max(0, min(progress, 100))
	filled := progress * progressBarWidth / 100
	return strings.Repeat("█", filled) + strings.Repeat("░", progressBarWidth-filled)
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-3]) + "..."
}

func pad(s string, n int) string {
	if c := utf8.RuneCountInString(s); c < n {
		return s + strings.Repeat(" ", n-c)
	}
	return s
}
