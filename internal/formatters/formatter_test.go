// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package formatters_test

import (
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"obscura/internal/core"
	"obscura/internal/formatters"
	_ "obscura/internal/formatters/csv"
	_ "obscura/internal/formatters/json"
	"obscura/internal/formatters/text"
	_ "obscura/internal/formatters/yaml"
	"obscura/internal/redactors"
	"obscura/internal/redactors/validation"
)

func sampleReport() *core.Report {
	dpi := 300
	return &core.Report{
		SchemaVersion: core.ReportSchemaVersion,
		RunID:         "2026-10-16T09-30-00-0a1b2c3d",
		EngineVersion: "0.1.0",
		ProjectName:   "case-42",
		Timestamp:     "2026-10-16T09:30:00Z",
		Settings: core.Settings{
			DeepVerify:          true,
			DeepVerifyDPI:       &dpi,
			Language:            "eng",
			ConfidenceThreshold: 70,
			KeywordsHash:        "abcdef0123456789",
		},
		Files: []core.FileEntry{
			{
				File:       "memo.pdf",
				OutputFile: "memo_redacted.pdf",
				Status:     string(validation.StatusClean),
				Redaction: &core.Redaction{
					RedactionStatus:     redactors.StatusOK,
					SourceHash:          "aa",
					RedactionsApplied:   2,
					PageCount:           1,
					PagesWithRedactions: []int{1},
					MissedKeywords:      []redactors.MissedKeyword{},
					SkippedPages:        []int{},
				},
				Verification: &core.Verification{
					OutputHash:         "bb",
					ResidualMatches:    []validation.ResidualMatch{},
					LowConfidencePages: []int{},
					UnreadablePages:    []int{},
					CleanPages:         []int{1},
				},
			},
			{
				File:       "scan.pdf",
				OutputFile: "scan_redacted.pdf",
				Status:     string(validation.StatusNeedsReview),
				Redaction: &core.Redaction{
					RedactionStatus:      redactors.StatusOK,
					RedactionsApplied:    0,
					OCRRedactionsApplied: 1,
					OCRUsed:              true,
					PageCount:            2,
					PagesWithRedactions:  []int{2},
					MissedKeywords:       []redactors.MissedKeyword{},
					SkippedPages:         []int{},
				},
				Verification: &core.Verification{
					ResidualMatches:    []validation.ResidualMatch{{Keyword: "Acme", Page: 2, Source: "ocr", Context: "to Acme,\nre"}},
					LowConfidencePages: []int{1},
					UnreadablePages:    []int{},
					CleanPages:         []int{},
				},
			},
			{File: "broken.pdf", Status: core.StatusError, Error: "redaction failed: boom"},
		},
	}
}

func TestRegistry(t *testing.T) {
	assert.Equal(t, []string{"csv", "json", "text", "yaml"}, formatters.List())

	_, err := formatters.Export("sarif", formatters.View{Report: sampleReport()}, formatters.FormatterOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "csv, json, text, yaml")

	_, err = formatters.Export("json", formatters.View{}, formatters.FormatterOptions{})
	assert.Error(t, err)
}

func TestJSONMatchesStoredReport(t *testing.T) {
	report := sampleReport()
	out, err := formatters.Export("json", formatters.View{Report: report}, formatters.FormatterOptions{})
	require.NoError(t, err)

	var back core.Report
	require.NoError(t, json.Unmarshal([]byte(out), &back))
	assert.Equal(t, report.RunID, back.RunID)
	require.Len(t, back.Files, 3)
	assert.Equal(t, 1, back.Files[1].OCRRedactionsApplied)
	assert.Nil(t, back.Files[2].Redaction)

	out, err = formatters.Export("json", formatters.View{Report: report, Summary: core.Summarize(report)}, formatters.FormatterOptions{})
	require.NoError(t, err)
	var wrapped map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(out), &wrapped))
	assert.Contains(t, wrapped, "summary")
	assert.Contains(t, wrapped, "report")
}

func TestYAMLUsesJSONKeys(t *testing.T) {
	out, err := formatters.Export("yaml", formatters.View{Report: sampleReport()}, formatters.FormatterOptions{})
	require.NoError(t, err)

	assert.Contains(t, out, "run_id: 2026-10-16T09-30-00-0a1b2c3d")
	assert.Contains(t, out, "redactions_applied: 2")
	assert.Contains(t, out, "missed_keywords: []")
	assert.NotContains(t, out, "{\"")

	var back map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &back))
	// hex digests stay strings even when they look like numbers
	settings := back["settings"].(map[string]any)
	assert.Equal(t, "abcdef0123456789", settings["keywords_hash"])
	assert.Equal(t, "0.1.0", back["engine_version"])
}

func TestCSVOneRowPerFile(t *testing.T) {
	out, err := formatters.Export("csv", formatters.View{Report: sampleReport()}, formatters.FormatterOptions{})
	require.NoError(t, err)

	rows, err := csv.NewReader(strings.NewReader(out)).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "File", rows[0][0])
	assert.Equal(t, []string{"memo.pdf", "memo_redacted.pdf", "clean", "ok", "2", "0", "1", "0", "0", "", "", ""}, rows[1])
	assert.Equal(t, "1", rows[2][7])
	assert.Equal(t, "redaction failed: boom", rows[3][11])

	out, err = formatters.Export("csv", formatters.View{Report: sampleReport()}, formatters.FormatterOptions{Verbose: true})
	require.NoError(t, err)
	rows, err = csv.NewReader(strings.NewReader(out)).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, "bb", rows[1][len(rows[1])-1])
}

func TestTextSummaryAndDetails(t *testing.T) {
	report := sampleReport()
	summary := core.Summarize(report)
	summary.ReportPath = "/p/reports/x.json"
	summary.Duration = 1500 * time.Millisecond

	f := text.NewFormatter()
	out, err := f.Format(formatters.View{Report: report, Summary: summary}, formatters.FormatterOptions{NoColor: true})
	require.NoError(t, err)

	assert.Contains(t, out, "Run 2026-10-16T09-30-00-0a1b2c3d")
	assert.Contains(t, out, "verification deep @ 300 dpi")
	assert.Contains(t, out, "keywords abcdef012345\n")
	assert.Contains(t, out, "NEEDS_REVIEW")
	assert.Contains(t, out, "Files: 3  Redactions: 3  Needs review: 1  Errors: 1")
	assert.Contains(t, out, "Report: /p/reports/x.json")
	assert.Contains(t, out, "Duration: 1.5s")
	assert.NotContains(t, out, "Residual")
	assert.NotContains(t, out, "\x1b[")

	out, err = f.Format(formatters.View{Report: report}, formatters.FormatterOptions{NoColor: true, Verbose: true})
	require.NoError(t, err)
	assert.Contains(t, out, `Residual "Acme" on page 2 [ocr]: to Acme, re`)
	assert.Contains(t, out, "Low confidence pages: 1")
	assert.Contains(t, out, "Error: redaction failed: boom")
	assert.NotContains(t, out, "Report:")
}

func TestTextEmptyRun(t *testing.T) {
	report := sampleReport()
	report.Files = []core.FileEntry{}
	out, err := formatters.Export("text", formatters.View{Report: report}, formatters.FormatterOptions{NoColor: true})
	require.NoError(t, err)
	assert.Contains(t, out, "No input files.")
	assert.Contains(t, out, "Files: 0")
}
