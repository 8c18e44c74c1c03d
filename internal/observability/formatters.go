// Package observability provides formatted output utilities for the CLI.
package observability

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/jonathan/portfolio-analyzer/internal/analysis"
	"github.com/jonathan/portfolio-analyzer/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// barWidth is the number of cells in a progress bar
	barWidth = 30
	// summaryLines caps how many wrapped summary lines a box shows
	summaryLines = 6
)

// Printer handles formatted output for the CLI
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
	fmt.Fprintf(p.out, "│ %s │\n", pad(title))
	fmt.Fprintf(p.out, "├%s┤\n", border)

	for _, line := range strings.Split(content, "\n") {
		fmt.Fprintf(p.out, "│ %s │\n", pad(truncate(line, boxWidth-4)))
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// PrintJobStatus outputs the state of an analysis job.
func (p *Printer) PrintJobStatus(status *analysis.JobStatus) {
	if status == nil {
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Job:      %s\n", status.JobID)
	fmt.Fprintf(&sb, "Target:   %s %s\n", status.Target.Kind, status.Target.ID)
	fmt.Fprintf(&sb, "Status:   %s %s\n", statusIcon(status.Status), status.Status)
	fmt.Fprintf(&sb, "Progress: %s", progressBar(status.Progress))
	if status.Message != "" {
		fmt.Fprintf(&sb, "\n\n%s", status.Message)
	}

	p.printBox("ANALYSIS JOB", sb.String())
}

// PrintProgress outputs a single line for a job update.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) PrintProgress(job *types.AnalysisJob) {
	if job == nil {
		return
	}
	line := fmt.Sprintf("[%3d%%] %-10s", job.Progress, job.Status)
	if msg := job.Message(); msg != "" {
		line += " " + msg
	}
	fmt.Fprintln(p.out, line)
}

// PrintPortfolioResult outputs the outcome of a portfolio run.
func (p *Printer) PrintPortfolioResult(res *analysis.PortfolioResult) {
	if res == nil {
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Portfolio: %s\n", res.PortfolioID)
	fmt.Fprintf(&sb, "Job:       %s %s\n", statusIcon(res.JobStatus), res.JobStatus)
	if res.Exit != "" {
		fmt.Fprintf(&sb, "Exit:      %s\n", res.Exit)
	}
	fmt.Fprintf(&sb, "Projects:  %d of %d analyzed\n", res.ProjectsAnalyzed, res.ProjectsTotal)
	writeOutcome(&sb, res.Summary, res.Err)

	p.printBox("PORTFOLIO ANALYSIS", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintProjectResult outputs the outcome of a project run.
func (p *Printer) PrintProjectResult(res *analysis.ProjectResult) {
	if res == nil {
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Project: %s\n", res.ProjectID)
	fmt.Fprintf(&sb, "Status:  %s %s\n", analysisIcon(res.Status), res.Status)
	fmt.Fprintf(&sb, "Media:   %d of %d analyzed", res.MediaAnalyzed, res.MediaTotal)
	if res.TimedOut {
		sb.WriteString(" (wait timed out)")
	}
	sb.WriteString("\n")
	writeOutcome(&sb, res.Summary, res.Err)

	p.printBox("PROJECT ANALYSIS", strings.TrimSuffix(sb.String(), "\n"))
}

func writeOutcome(sb *strings.Builder, summary string, err error) {
	if err != nil {
		fmt.Fprintf(sb, "\n⚠ %s\n", err)
		return
	}
	if summary == "" {
		return
	}
	sb.WriteString("\nSummary:\n")
	lines := wrap(summary, boxWidth-6)
	for i, line := range lines {
		if i == summaryLines {
			fmt.Fprintf(sb, "  ... %d more lines\n", len(lines)-summaryLines)
			break
		}
		fmt.Fprintf(sb, "  %s\n", line)
	}
}

func statusIcon(s types.JobStatus) string {
	switch s {
	case types.JobCompleted:
		return "✓"
	case types.JobFailed:
		return "✗"
	default:
		return "…"
	}
}

func analysisIcon(s types.AnalysisStatus) string {
	switch s {
	case types.AnalysisSuccess:
		return "✓"
	case types.AnalysisFailed:
		return "✗"
	default:
		return "…"
	}
}

// progressBar renders percent as "[#####.....]  50%".
func progressBar(percent int) string {
	percent = max(0, min(percent, 100))
	filled := percent * barWidth / 100
	return fmt.Sprintf("[%s%s] %3d%%", strings.Repeat("#", filled), strings.Repeat(".", barWidth-filled), percent)
}

// wrap splits text into lines of at most width runes on word boundaries.
func wrap(text string, width int) []string {
	var lines []string
	var line strings.Builder
	for _, word := range strings.Fields(text) {
		if line.Len() > 0 && utf8.RuneCountInString(line.String())+1+utf8.RuneCountInString(word) > width {
			lines = append(lines, line.String())
			line.Reset()
		}
		if line.Len() > 0 {
			line.WriteString(" ")
		}
		line.WriteString(word)
	}
	if line.Len() > 0 {
		lines = append(lines, line.String())
	}
	return lines
}

func truncate(s string, width int) string {
	if utf8.RuneCountInString(s) <= width {
		return s
	}
	return string([]rune(s)[:width-3]) + "..."
}

// pad right-pads s to the inner box width, counting runes rather than bytes.
func pad(s string) string {
	return s + strings.Repeat(" ", max(0, boxWidth-4-utf8.RuneCountInString(s)))
}
