// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package core

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"obscura/internal/redactors"
	"obscura/internal/redactors/sanitize"
	"obscura/internal/redactors/validation"
)

// ReportSchemaVersion is the report envelope format version
const ReportSchemaVersion = 1

// StatusError marks a file whose pipeline failed
const StatusError = "error"

// runIDTimeLayout sorts lexically in time order and is safe in file names
const runIDTimeLayout = "2006-01-02T15-04-05"

// Report is the envelope written once per run.
type Report struct {
	SchemaVersion int         `json:"schema_version"`
	RunID         string      `json:"run_id"`
	EngineVersion string      `json:"engine_version"`
	ProjectName   string      `json:"project_name"`
	Timestamp     string      `json:"timestamp"`
	Settings      Settings    `json:"settings"`
	Files         []FileEntry `json:"files"`
}

// Settings records what a run was configured with.
type Settings struct {
	DeepVerify          bool   `json:"deep_verify"`
	DeepVerifyDPI       *int   `json:"deep_verify_dpi"`
	Language            string `json:"language"`
	ConfidenceThreshold int    `json:"confidence_threshold"`
	KeywordsHash        string `json:"keywords_hash"`
}

// FileEntry is the outcome for one input. Redaction is set once the engine
// produced a result; Verification once the output was verified.
type FileEntry struct {
	File       string `json:"file"`
	OutputFile string `json:"output_file,omitempty"`

	// Status is the verification status for verified outputs, otherwise
	// the redaction status or "error"
	Status string `json:"status"`

	*Redaction
	*Verification

	Sanitization *sanitize.Result `json:"sanitization,omitempty"`
	Error        string           `json:"error,omitempty"`
}

// Redaction holds the engine's side of a file entry.
type Redaction struct {
	RedactionStatus      redactors.RedactionStatus `json:"redaction_status"`
	SourceHash           string                    `json:"source_hash"`
	RedactionsApplied    int                       `json:"redactions_applied"`
	OCRRedactionsApplied int                       `json:"ocr_redactions_applied"`
	OCRUsed              bool                      `json:"ocr_used"`
	PageCount            int                       `json:"page_count"`
	PagesWithRedactions  []int                     `json:"pages_with_redactions"`
	MissedKeywords       []redactors.MissedKeyword `json:"missed_keywords"`
	SkippedPages         []int                     `json:"skipped_pages"`
}

// Verification holds the verifier's side of a file entry.
type Verification struct {
	OutputHash         string                     `json:"output_hash"`
	ResidualMatches    []validation.ResidualMatch `json:"residual_matches"`
	LowConfidencePages []int                      `json:"low_confidence_pages"`
	UnreadablePages    []int                      `json:"unreadable_pages"`
	CleanPages         []int                      `json:"clean_pages"`
	UnverifiedWarning  string                     `json:"unverified_warning,omitempty"`
}

func newRedaction(r *redactors.RedactionResult) *Redaction {
	return &Redaction{
		RedactionStatus:      r.Status,
		SourceHash:           r.SourceHash,
		RedactionsApplied:    r.RedactionCount,
		OCRRedactionsApplied: r.OCRRedactionCount,
		OCRUsed:              r.OCRUsed,
		PageCount:            r.PageCount,
		PagesWithRedactions:  nonNil(r.PagesWithRedactions),
		MissedKeywords:       nonNil(r.MissedKeywords),
		SkippedPages:         nonNil(r.SkippedPages),
	}
}

func newVerification(v *validation.VerificationReport) *Verification {
	return &Verification{
		OutputHash:         v.OutputHash,
		ResidualMatches:    nonNil(v.ResidualMatches),
		LowConfidencePages: nonNil(v.LowConfidencePages),
		UnreadablePages:    nonNil(v.UnreadablePages),
		CleanPages:         nonNil(v.CleanPages),
		UnverifiedWarning:  v.UnverifiedWarning,
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// NeedsReview reports whether a person should look at this file: the
// output holds residual or unverifiable content, or the input could not be
// processed.
func (e *FileEntry) NeedsReview() bool {
	switch e.Status {
	case string(validation.StatusNeedsReview), string(validation.StatusUnreadable),
		string(redactors.StatusPasswordProtected), string(redactors.StatusCorrupt):
		return true
	}
	return false
}

// TotalRedactions is the number of areas redacted in both passes.
func (e *FileEntry) TotalRedactions() int {
	if e.Redaction == nil {
		return 0
	}
	return e.RedactionsApplied + e.OCRRedactionsApplied
}

// RunSummary is what a run reports back to its caller.
type RunSummary struct {
	RunID              string        `json:"run_id"`
	FilesProcessed     int           `json:"files_processed"`
	TotalRedactions    int           `json:"total_redactions"`
	FilesNeedingReview int           `json:"files_needing_review"`
	FilesErrored       int           `json:"files_errored"`
	ReportPath         string        `json:"report_path"`
	Duration           time.Duration `json:"-"`
}

// Summarize reduces a report to its summary counts.
func Summarize(report *Report) *RunSummary {
	s := &RunSummary{RunID: report.RunID, FilesProcessed: len(report.Files)}
	for i := range report.Files {
		e := &report.Files[i]
		s.TotalRedactions += e.TotalRedactions()
		if e.Status == StatusError {
			s.FilesErrored++
		} else if e.NeedsReview() {
			s.FilesNeedingReview++
		}
	}
	return s
}

// NewRunID returns "<UTC time>-<8 hex digits>". IDs sort by start time.
func NewRunID(now time.Time) string {
	id := uuid.New()
	return now.UTC().Format(runIDTimeLayout) + "-" + hex.EncodeToString(id[:4])
}

// WriteReport writes report into dir as <run_id>.json. An existing report
// is never overwritten.
func WriteReport(om *redactors.OutputManager, dir string, report *Report) (string, error) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode report: %w", err)
	}
	data = append(data, '\n')

	path := filepath.Join(dir, report.RunID+".json")
	if err := om.CreateExclusive(path, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	}); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	return path, nil
}

// ReadReport loads a report file and checks its schema version.
func ReadReport(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read report: %w", err)
	}
	var report Report
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to parse report %s: %w", filepath.Base(path), err)
	}
	if report.SchemaVersion != ReportSchemaVersion {
		return nil, fmt.Errorf("unsupported report schema_version %d in %s", report.SchemaVersion, filepath.Base(path))
	}
	return &report, nil
}
