// package formatter renders command history and workflow reports for the terminal (table, CSV, plain text)
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/desertthunder/mqtt-automations/internal/models"
	"github.com/desertthunder/mqtt-automations/internal/tasks"
)

const timeLayout = "2006-01-02 15:04:05"

var styles = NewPalette("#7D56F4", "#1DB954", "#FF0000", "#FFA500", "#626262")

// struct Palette is a simple stylesheet built with named [lipgloss.Style] fields
type Palette struct {
	title lipgloss.Style
	ok    lipgloss.Style
	err   lipgloss.Style
	warn  lipgloss.Style
	muted lipgloss.Style
}

func NewPalette(t, s, e, w, m string) *Palette {
	return &Palette{
		title: NewBold(t),
		ok:    NewBold(s),
		err:   NewBold(e),
		warn:  NewStyle(w),
		muted: NewEm(m),
	}
}

func NewStyle(fg string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(fg))
}

func NewBold(fg string) lipgloss.Style {
	return NewStyle(fg).Bold(true)
}

func NewEm(fg string) lipgloss.Style {
	return NewStyle(fg).Italic(true)
}

// Status colours a run status: green when ok, red on error, orange while running.
func (p *Palette) Status(s models.RunStatus, text string) string {
	switch s {
	case models.RunOK:
		return p.ok.Render(text)
	case models.RunError:
		return p.err.Render(text)
	default:
		return p.warn.Render(text)
	}
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func runDetail(run models.Run) string {
	if run.Error != "" {
		return firstLine(run.Error)
	}
	return firstLine(run.Result)
}

func runDuration(run models.Run) string {
	if run.FinishedAt == nil {
		return "-"
	}
	return run.Duration().Round(time.Millisecond).String()
}

// RunsToTable renders runs as an aligned, coloured table with one line per run.
func RunsToTable(runs []models.Run) string {
	if len(runs) == 0 {
		return styles.muted.Render("No runs recorded.") + "\n"
	}

	topicWidth := len("TOPIC")
	for _, run := range runs {
		topicWidth = max(topicWidth, len(run.Topic))
	}

	var b strings.Builder
	header := fmt.Sprintf("%-19s  %-*s  %-7s  %-8s  %s", "STARTED", topicWidth, "TOPIC", "STATUS", "DURATION", "DETAIL")
	b.WriteString(styles.title.Render(header) + "\n")

	for _, run := range runs {
		status := styles.Status(run.Status, fmt.Sprintf("%-7s", run.Status))
		fmt.Fprintf(&b, "%-19s  %-*s  %s  %-8s  %s\n",
			run.StartedAt.Local().Format(timeLayout),
			topicWidth, run.Topic,
			status,
			runDuration(run),
			truncate(runDetail(run), 60))
	}
	return b.String()
}

// RunsToCSV converts runs to CSV with columns: ID, Topic, Payload, Status, Result, Error, Started, Finished
func RunsToCSV(runs []models.Run) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"ID", "Topic", "Payload", "Status", "Result", "Error", "Started", "Finished"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, run := range runs {
		finished := ""
		if run.FinishedAt != nil {
			finished = run.FinishedAt.UTC().Format(time.RFC3339)
		}
		record := []string{
			run.ID,
			run.Topic,
			run.Payload,
			string(run.Status),
			run.Result,
			run.Error,
			run.StartedAt.UTC().Format(time.RFC3339),
			finished,
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// WriteRunsCSV writes runs to path in CSV format.
func WriteRunsCSV(runs []models.Run, path string) error {
	data, err := RunsToCSV(runs)
	if err != nil {
		return fmt.Errorf("failed to generate CSV: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write CSV file: %w", err)
	}
	return nil
}

// StatsToText renders reconciliation counters, one per line.
func StatsToText(stats models.ReconcileStats) string {
	var b strings.Builder
	b.WriteString(styles.title.Render("Reconciliation") + "\n")
	rows := []struct {
		label string
		value int
	}{
		{"Downloaded files", stats.Downloaded},
		{"Processed files", stats.Processed},
		{"Missing locally", stats.Candidates},
		{"Added to queue", stats.Added},
		{"Aliased", stats.Aliased},
		{"Stamped", stats.Stamped},
		{"Unplayable", stats.Unplayable},
	}
	for _, row := range rows {
		fmt.Fprintf(&b, "  %-17s %d\n", row.label, row.value)
	}
	return b.String()
}

// ProcessReport renders the outcome of post-download processing.
func ProcessReport(result *tasks.ProcessResult) string {
	var b strings.Builder
	b.WriteString(styles.ok.Render(result.Summary()) + "\n")
	for _, uri := range result.Removed {
		b.WriteString(styles.muted.Render("  removed "+uri) + "\n")
	}
	return b.String()
}

// ReconcileReport renders the outcome of a reconciliation, including the classification counts.
func ReconcileReport(result *tasks.ReconcileResult) string {
	var b strings.Builder
	b.WriteString(styles.ok.Render(result.Summary()) + "\n")
	fmt.Fprintf(&b, "  %d missing locally, %d already downloaded, %d aliased, %d stamped, %d unplayable\n",
		result.Candidates, result.Skipped, result.Aliased, result.Stamped, result.Unplayable)
	return b.String()
}

// PopulateReport renders both halves of the populate workflow.
func PopulateReport(result *tasks.PopulateResult) string {
	return ProcessReport(result.Downloads) + ReconcileReport(result.Reconcile)
}

// Progress renders a progress update as a single status line.
func Progress(u tasks.ProgressUpdate) string {
	return styles.muted.Render(fmt.Sprintf("%-21s", u.Phase.String())) + " " + u.Message
}

// Error renders an error line.
func Error(err error) string {
	return styles.err.Render("✗ " + err.Error())
}
