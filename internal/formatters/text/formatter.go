// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package text

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"obscura/internal/core"
	"obscura/internal/formatters"

	"github.com/fatih/color"
)

// Formatter implements text-based output formatting
type Formatter struct {
	colors map[string]*color.Color
}

// NewFormatter creates a new text formatter
func NewFormatter() *Formatter {
	return &Formatter{
		colors: map[string]*color.Color{
			"green":   color.New(color.FgGreen),
			"yellow":  color.New(color.FgYellow),
			"red":     color.New(color.FgRed),
			"cyan":    color.New(color.FgCyan),
			"magenta": color.New(color.FgMagenta),
			"white":   color.New(color.FgWhite, color.Bold),
		},
	}
}

func (f *Formatter) Name() string {
	return "text"
}

func (f *Formatter) Description() string {
	return "Human-readable text output with colors and tables"
}

func (f *Formatter) FileExtension() string {
	return ".txt"
}

func (f *Formatter) Format(view formatters.View, options formatters.FormatterOptions) (string, error) {
	report := view.Report
	var builder strings.Builder

	f.appendRunHeader(&builder, report, options)

	if len(report.Files) == 0 {
		builder.WriteString("No input files.\n")
	} else {
		width := f.fileColumnWidth(report.Files)
		f.appendHeaders(&builder, width, options)
		for i := range report.Files {
			entry := &report.Files[i]
			f.appendSummaryLine(&builder, entry, width, options)
			if options.Verbose {
				f.appendDetails(&builder, entry)
			}
		}
	}

	summary := view.Summary
	if summary == nil {
		summary = core.Summarize(report)
	}
	builder.WriteString("\n")
	f.appendSummary(&builder, summary, options)
	return builder.String(), nil
}

func (f *Formatter) paint(name string, options formatters.FormatterOptions, format string, a ...any) string {
	if options.NoColor {
		return fmt.Sprintf(format, a...)
	}
	return f.colors[name].Sprintf(format, a...)
}

// appendRunHeader writes the run identity and the settings it ran with
func (f *Formatter) appendRunHeader(builder *strings.Builder, report *core.Report, options formatters.FormatterOptions) {
	builder.WriteString(f.paint("white", options, "Run %s", report.RunID))
	fmt.Fprintf(builder, "  project %s  engine %s\n", report.ProjectName, report.EngineVersion)

	s := report.Settings
	verify := "standard"
	if s.DeepVerify {
		verify = "deep"
		if s.DeepVerifyDPI != nil {
			verify = fmt.Sprintf("deep @ %d dpi", *s.DeepVerifyDPI)
		}
	}
	hash := s.KeywordsHash
	if len(hash) > 12 {
		hash = hash[:12]
	}
	fmt.Fprintf(builder, "Language %s  confidence %d  verification %s  keywords %s\n\n",
		s.Language, s.ConfidenceThreshold, verify, hash)
}

// fileColumnWidth sizes the file column to the longest name, capped for readability
func (f *Formatter) fileColumnWidth(entries []core.FileEntry) int {
	width := len("FILE")
	for _, e := range entries {
		width = max(width, len([]rune(e.File)))
	}
	return min(width, 40)
}

// appendHeaders adds column headers to the string builder
func (f *Formatter) appendHeaders(builder *strings.Builder, width int, options formatters.FormatterOptions) {
	builder.WriteString(f.paint("white", options, "%-18s %-*s %-10s %-6s %s\n", "STATUS", width, "FILE", "REDACTED", "PAGES", "OUTPUT"))
	builder.WriteString(f.paint("white", options, "%s\n", strings.Repeat("-", 18+1+width+1+10+1+6+1+20)))
}

func (f *Formatter) statusColor(entry *core.FileEntry) string {
	switch {
	case entry.Status == core.StatusError:
		return "red"
	case entry.NeedsReview():
		return "yellow"
	default:
		return "green"
	}
}

// appendSummaryLine adds a single line per file to the string builder
func (f *Formatter) appendSummaryLine(builder *strings.Builder, entry *core.FileEntry, width int, options formatters.FormatterOptions) {
	name := entry.File
	if r := []rune(name); len(r) > width {
		name = string(r[:width-3]) + "..."
	}

	redacted, pages := "-", "-"
	if entry.Redaction != nil {
		redacted = fmt.Sprintf("%d", entry.TotalRedactions())
		pages = fmt.Sprintf("%d", entry.PageCount)
	}
	output := "-"
	if entry.OutputFile != "" {
		output = filepath.Base(entry.OutputFile)
	}

	builder.WriteString(f.paint(f.statusColor(entry), options, "%-18s", strings.ToUpper(entry.Status)))
	fmt.Fprintf(builder, " %-*s %-10s %-6s %s\n", width, name, redacted, pages, output)
}

// appendDetails lists what a reviewer needs to look at for one file
func (f *Formatter) appendDetails(builder *strings.Builder, entry *core.FileEntry) {
	indent := "    "
	if entry.Error != "" {
		fmt.Fprintf(builder, "%sError: %s\n", indent, entry.Error)
	}
	if r := entry.Redaction; r != nil {
		if r.OCRRedactionsApplied > 0 {
			fmt.Fprintf(builder, "%sOCR redactions: %d\n", indent, r.OCRRedactionsApplied)
		}
		if len(r.PagesWithRedactions) > 0 {
			fmt.Fprintf(builder, "%sRedacted pages: %s\n", indent, formatters.JoinPages(r.PagesWithRedactions))
		}
		if len(r.SkippedPages) > 0 {
			fmt.Fprintf(builder, "%sSkipped pages: %s\n", indent, formatters.JoinPages(r.SkippedPages))
		}
		for _, m := range r.MissedKeywords {
			fmt.Fprintf(builder, "%sMissed %q on page %d", indent, m.Keyword, m.Page)
			if m.Reason != "" {
				fmt.Fprintf(builder, " (%s)", m.Reason)
			}
			builder.WriteString("\n")
		}
	}
	if v := entry.Verification; v != nil {
		for _, m := range v.ResidualMatches {
			fmt.Fprintf(builder, "%sResidual %q on page %d", indent, m.Keyword, m.Page)
			if m.Source != "" {
				fmt.Fprintf(builder, " [%s]", m.Source)
			}
			if m.Context != "" {
				fmt.Fprintf(builder, ": %s", strings.ReplaceAll(m.Context, "\n", " "))
			}
			builder.WriteString("\n")
		}
		if len(v.LowConfidencePages) > 0 {
			fmt.Fprintf(builder, "%sLow confidence pages: %s\n", indent, formatters.JoinPages(v.LowConfidencePages))
		}
		if len(v.UnreadablePages) > 0 {
			fmt.Fprintf(builder, "%sUnreadable pages: %s\n", indent, formatters.JoinPages(v.UnreadablePages))
		}
		if v.UnverifiedWarning != "" {
			fmt.Fprintf(builder, "%sWarning: %s\n", indent, v.UnverifiedWarning)
		}
	}
}

// appendSummary writes the run totals
func (f *Formatter) appendSummary(builder *strings.Builder, summary *core.RunSummary, options formatters.FormatterOptions) {
	fmt.Fprintf(builder, "Files: %d  Redactions: %d  ", summary.FilesProcessed, summary.TotalRedactions)

	review := fmt.Sprintf("Needs review: %d", summary.FilesNeedingReview)
	if summary.FilesNeedingReview > 0 {
		review = f.paint("yellow", options, "%s", review)
	}
	errored := fmt.Sprintf("Errors: %d", summary.FilesErrored)
	if summary.FilesErrored > 0 {
		errored = f.paint("red", options, "%s", errored)
	}
	builder.WriteString(review + "  " + errored + "\n")

	if summary.ReportPath != "" {
		fmt.Fprintf(builder, "Report: %s\n", summary.ReportPath)
	}
	if summary.Duration > 0 {
		fmt.Fprintf(builder, "Duration: %s\n", summary.Duration.Round(time.Millisecond))
	}
}

// Register the formatter during package initialization
func init() {
	formatters.Register(NewFormatter())
}
