// Package tui renders run progress and the end-of-run summary.
// Simple streaming output - no full-screen TUI.
package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/schollz/progressbar/v3"

	"github.com/cohortkit/cohortkit/pkg/errors"
	"github.com/cohortkit/cohortkit/pkg/manifest"
	"github.com/cohortkit/cohortkit/pkg/materialize"
)

// Colors (Swiss minimal)
var (
	accent  = lipgloss.Color("#FF0000")
	muted   = lipgloss.Color("#666666")
	success = lipgloss.Color("#00CC66")
	white   = lipgloss.Color("#FFFFFF")
)

// Styles
var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(white)
	accentStyle  = lipgloss.NewStyle().Foreground(accent).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(muted)
	successStyle = lipgloss.NewStyle().Foreground(success).Bold(true)
)

// ShowProgress creates a progress bar for dataset-level progress.
func ShowProgress(total int64, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions64(total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowBytes(false),
		progressbar.OptionShowCount(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerPadding: "░",
			BarStart:      "",
			BarEnd:        "",
		}),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}

// PrintHeader prints the tool banner.
func PrintHeader(version string) {
	fmt.Println()
	fmt.Println(titleStyle.Render("  COHORTKIT") + mutedStyle.Render(" v"+version))
	fmt.Println(mutedStyle.Render("  Cohort assembly for versioned imaging datasets"))
}

// PrintSummary prints the end-of-run summary.
func PrintSummary(outcomes []materialize.Outcome, records []manifest.Record, elapsed time.Duration) {
	var ok, linked, existed, conflicts, failed int
	for _, o := range outcomes {
		switch {
		case o.Conflict():
			conflicts++
		case !o.OK():
			failed++
		default:
			ok++
			if o.Linked {
				linked++
			}
			if o.Existed {
				existed++
			}
		}
	}

	fmt.Println()
	fmt.Println(mutedStyle.Render("  ─────────────────────────────────────"))
	fmt.Printf("  %s %s\n", mutedStyle.Render("Files:"),
		titleStyle.Render(fmt.Sprintf("%d materialized (%d linked, %d already present)", ok, linked, existed)))
	if conflicts > 0 {
		fmt.Printf("  %s %s\n", mutedStyle.Render("Conflicts:"),
			accentStyle.Render(fmt.Sprintf("%d", conflicts)))
	}
	if failed > 0 {
		fmt.Printf("  %s %s\n", mutedStyle.Render("Failed:"),
			accentStyle.Render(fmt.Sprintf("%d", failed)))
	}
	fmt.Printf("  %s %s\n", mutedStyle.Render("Manifest:"),
		titleStyle.Render(fmt.Sprintf("%d rows", len(records))))
	fmt.Printf("  %s %s\n", mutedStyle.Render("Elapsed:"),
		titleStyle.Render(elapsed.Round(time.Millisecond).String()))
	fmt.Println(mutedStyle.Render("  ─────────────────────────────────────"))
	if conflicts == 0 && failed == 0 {
		fmt.Println(successStyle.Render("  ✓ Cohort assembled"))
	}
	fmt.Println()
}

// PrintFailures lists per-item failures with their codes.
func PrintFailures(outcomes []materialize.Outcome) {
	for _, o := range outcomes {
		if o.OK() {
			continue
		}
		fmt.Printf("  %s %s %s\n",
			accentStyle.Render("✗"),
			mutedStyle.Render(string(errors.GetCode(o.Err))),
			o.Entry.SourcePath)
	}
}
