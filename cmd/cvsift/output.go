package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/kalambet/cvsift/internal/match"
	"github.com/kalambet/cvsift/internal/run"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

func printSuccess(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorGreen, "✓ "+msg))
}

func printWarning(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorYellow, "⚠ "+msg))
}

func printStatus(label string, format string, args ...any) {
	val := fmt.Sprintf(format, args...)
	l := colorize(colorBold, label+":")
	fmt.Fprintf(os.Stderr, "  %s %s\n", l, val)
}

func printStep(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorCyan, "→ "+msg))
}

func statusColor(s match.Status) string {
	switch s {
	case match.StatusCompleted:
		return colorGreen
	case match.StatusError:
		return colorRed
	case match.StatusQueued:
		return colorYellow
	}
	return colorCyan
}

// progressPrinter writes one line per item change, so plain output stays
// readable in logs and pipes.
type progressPrinter struct {
	w    io.Writer
	last map[string]match.AnalysisItem
	pct  int
}

func newProgressPrinter(w io.Writer) *progressPrinter {
	return &progressPrinter{w: w, last: make(map[string]match.AnalysisItem), pct: -1}
}

func (p *progressPrinter) observe(s run.Snapshot) {
	for _, it := range s.Items {
		prev, seen := p.last[it.Filename]
		if seen && prev.Status == it.Status && prev.Progress == it.Progress && prev.CurrentStep == it.CurrentStep {
			continue
		}
		p.last[it.Filename] = it
		if !seen && it.Status == match.StatusQueued {
			continue
		}
		line := fmt.Sprintf("%-10s %3.0f%%  %s", strings.ToUpper(string(it.Status)), it.Progress, it.Filename)
		if it.CurrentStep != "" {
			line += "  (" + it.CurrentStep + ")"
		}
		fmt.Fprintln(p.w, colorize(statusColor(it.Status), line))
	}
	if s.Overall.Percent != p.pct {
		p.pct = s.Overall.Percent
		fmt.Fprintf(p.w, "%s %d%%\n", colorize(colorBold, "overall:"), p.pct)
	}
}

// printResultsTable writes the displayed results, best first.
func printResultsTable(w io.Writer, s run.Snapshot) {
	if len(s.Results) == 0 {
		if s.Total == 0 {
			fmt.Fprintln(w, "The service returned no results.")
		} else {
			fmt.Fprintf(w, "No result matches the filter (%d hidden).\n", s.Total)
		}
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tDOCUMENT\tOVERALL\tSKILLS\tEXPERIENCE\tEDUCATION\tFILE ID")
	for i, r := range s.Results {
		fmt.Fprintf(tw, "%d\t%s\t%.0f%%\t%.0f%%\t%.0f%%\t%.0f%%\t%s\n",
			i+1, r.Filename, r.OverallMatch, r.SkillsMatch, r.ExperienceMatch, r.EducationMatch, r.FileID)
	}
	tw.Flush()
	if hidden := s.Total - len(s.Results); hidden > 0 {
		fmt.Fprintf(w, "%d of %d results hidden by the filter.\n", hidden, s.Total)
	}
}
