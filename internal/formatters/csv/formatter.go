// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package csv

import (
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"

	"obscura/internal/core"
	"obscura/internal/formatters"
)

// Formatter implements CSV output formatting
type Formatter struct{}

// NewFormatter creates a new CSV formatter
func NewFormatter() *Formatter {
	return &Formatter{}
}

func (f *Formatter) Name() string {
	return "csv"
}

func (f *Formatter) Description() string {
	return "Comma-separated values, one row per file, for spreadsheet import"
}

func (f *Formatter) FileExtension() string {
	return ".csv"
}

var headers = []string{
	"File", "Output File", "Status", "Redaction Status", "Redactions", "OCR Redactions",
	"Pages", "Residual Matches", "Missed Keywords", "Low Confidence Pages", "Unreadable Pages", "Error",
}

func (f *Formatter) Format(view formatters.View, options formatters.FormatterOptions) (string, error) {
	var builder strings.Builder
	w := csv.NewWriter(&builder)

	row := headers
	if options.Verbose {
		row = append(append([]string{}, headers...), "Run ID", "Source Hash", "Output Hash")
	}
	if err := w.Write(row); err != nil {
		return "", fmt.Errorf("error formatting CSV: %w", err)
	}

	for i := range view.Report.Files {
		if err := w.Write(f.createCSVRow(view.Report, &view.Report.Files[i], options)); err != nil {
			return "", fmt.Errorf("error formatting CSV: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("error formatting CSV: %w", err)
	}
	return builder.String(), nil
}

// createCSVRow creates a CSV row for a file entry
func (f *Formatter) createCSVRow(report *core.Report, entry *core.FileEntry, options formatters.FormatterOptions) []string {
	var redactionStatus, redactions, ocrRedactions, pages, missed, sourceHash string
	if r := entry.Redaction; r != nil {
		redactionStatus = string(r.RedactionStatus)
		redactions = strconv.Itoa(r.RedactionsApplied)
		ocrRedactions = strconv.Itoa(r.OCRRedactionsApplied)
		pages = strconv.Itoa(r.PageCount)
		missed = strconv.Itoa(len(r.MissedKeywords))
		sourceHash = r.SourceHash
	}

	var residual, lowConfidence, unreadable, outputHash string
	if v := entry.Verification; v != nil {
		residual = strconv.Itoa(len(v.ResidualMatches))
		lowConfidence = formatters.JoinPages(v.LowConfidencePages)
		unreadable = formatters.JoinPages(v.UnreadablePages)
		outputHash = v.OutputHash
	}

	row := []string{
		entry.File, entry.OutputFile, entry.Status, redactionStatus, redactions, ocrRedactions,
		pages, residual, missed, lowConfidence, unreadable, entry.Error,
	}
	if options.Verbose {
		row = append(row, report.RunID, sourceHash, outputHash)
	}
	return row
}

// Register the formatter during package initialization
func init() {
	formatters.Register(NewFormatter())
}
