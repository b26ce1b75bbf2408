package display

import (
	"fmt"
	"io"
	"time"
)

// JobRow is one line of the job listing table.
type JobRow struct {
	Label string
	Type  string
	Host  string
	Paths int
}

// ResultRow is one line of the run summary table.
type ResultRow struct {
	Label    string
	Type     string
	Host     string
	State    string
	Duration time.Duration
	Errors   int
}

// Diagnostics is the displayable outcome of a configuration check.
type Diagnostics struct {
	OK       bool
	Warnings []string
	Errors   []string
	Fixes    []string
}

// Renderer writes the tool's human-facing output.
type Renderer struct {
	writer io.Writer
	colors ColorSystem
	theme  ColorTheme
	style  TableStyle
}

// NewRenderer creates a renderer writing to w.
func NewRenderer(w io.Writer, colors ColorSystem, theme ColorTheme, style TableStyle) *Renderer {
	if colors == nil {
		colors = NewPlainColorSystem()
	}
	return &Renderer{writer: w, colors: colors, theme: theme, style: style}
}

// JobTable renders the job listing.
func (r *Renderer) JobTable(jobs []JobRow) {
	table := NewTable(r.colors, r.theme)
	table.SetStyle(r.style)
	table.SetHeaders("LABEL", "TYPE", "HOST", "PATHS")
	table.SetAlignment(3, AlignRight)
	for _, job := range jobs {
		table.AddRow(job.Label, job.Type, hostCell(job.Host), fmt.Sprintf("%d", job.Paths))
	}
	table.RenderTo(r.writer)
}

// SummaryTable renders the per-job outcome of a run, followed by a
// totals line.
func (r *Renderer) SummaryTable(results []ResultRow) {
	table := NewTable(r.colors, r.theme)
	table.SetStyle(r.style)
	table.SetHeaders("LABEL", "TYPE", "HOST", "STATE", "DURATION", "ERRORS")
	table.SetAlignment(4, AlignRight)
	table.SetAlignment(5, AlignRight)

	failed := 0
	for _, result := range results {
		if result.Errors > 0 || result.State == "failed" {
			failed++
		}
		table.AddRow(
			result.Label,
			result.Type,
			hostCell(result.Host),
			r.stateCell(result.State),
			formatDuration(result.Duration),
			fmt.Sprintf("%d", result.Errors),
		)
	}
	table.RenderTo(r.writer)

	if failed == 0 {
		fmt.Fprintln(r.writer, r.colors.Sprintf(r.theme.Success, "%d jobs completed", len(results)))
	} else {
		fmt.Fprintln(r.writer, r.colors.Sprintf(r.theme.Error, "%d of %d jobs failed", failed, len(results)))
	}
}

// CheckReport renders check findings: errors, then warnings, then the
// recommended fixes.
func (r *Renderer) CheckReport(d Diagnostics) {
	for _, msg := range d.Errors {
		fmt.Fprintln(r.writer, r.colors.Sprintf(r.theme.Error, "error: %s", msg))
	}
	for _, msg := range d.Warnings {
		fmt.Fprintln(r.writer, r.colors.Sprintf(r.theme.Warning, "warning: %s", msg))
	}
	if len(d.Fixes) > 0 {
		fmt.Fprintln(r.writer, "")
		fmt.Fprintln(r.writer, "Recommended fixes:")
		for _, fix := range d.Fixes {
			fmt.Fprintf(r.writer, "  - %s\n", fix)
		}
	}
	if d.OK {
		fmt.Fprintln(r.writer, r.colors.Sprintf(r.theme.Success, "configuration ok"))
	}
}

func (r *Renderer) stateCell(state string) string {
	switch state {
	case "completed":
		return r.colors.Colorize(state, r.theme.Success)
	case "failed":
		return r.colors.Colorize(state, r.theme.Error)
	case "skipped", "dry-run":
		return r.colors.Colorize(state, r.theme.Info)
	default:
		return state
	}
}

func hostCell(host string) string {
	if host == "" {
		return "localhost"
	}
	return host
}

// formatDuration renders durations at second granularity; sub-second
// runs keep enough precision to not read as zero.
func formatDuration(d time.Duration) string {
	if d == 0 {
		return "-"
	}
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(time.Second).String()
}
