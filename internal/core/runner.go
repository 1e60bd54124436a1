// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package core

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"obscura/internal/keywords"
	"obscura/internal/observability"
	"obscura/internal/parallel"
	"obscura/internal/project"
	"obscura/internal/redactors"
	"obscura/internal/redactors/sanitize"
	"obscura/internal/redactors/validation"
	"obscura/internal/version"
)

// lockFile guards a project against concurrent runs
const lockFile = ".obscura.lock"

var (
	// ErrNoKeywords is returned before any file is touched when the keyword
	// file defines nothing to redact
	ErrNoKeywords = errors.New("no keywords defined")

	// ErrRunInProgress is returned when another run holds the project lock
	ErrRunInProgress = errors.New("another run is in progress for this project")
)

// DocumentSanitizer removes non-content data from a document
type DocumentSanitizer interface {
	Sanitize(ctx context.Context, inputPath, outputPath string) (*sanitize.Result, error)
}

// DocumentVerifier re-scans an output document
type DocumentVerifier interface {
	Verify(ctx context.Context, path string, ks *keywords.KeywordSet, opts validation.Options) (*validation.VerificationReport, error)
}

// Pipeline holds the three stages every input goes through.
type Pipeline struct {
	Redactor  redactors.Redactor
	Sanitizer DocumentSanitizer
	Verifier  DocumentVerifier
}

// RunOptions configures one run. Language and confidence threshold come
// from the project.
type RunOptions struct {
	DeepVerify    bool
	DeepVerifyDPI int
	Verbose       bool

	// Workers bounds how many files are processed at once; zero or less
	// selects the default
	Workers int

	// Progress, when set, is called as each file finishes
	Progress parallel.ProgressCallback
}

// Runner processes every input of a project and writes one report per run.
type Runner struct {
	pipeline      Pipeline
	outputManager *redactors.OutputManager
	observer      *observability.StandardObserver
	now           func() time.Time
}

// NewRunner creates a Runner.
func NewRunner(pipeline Pipeline, outputManager *redactors.OutputManager, observer *observability.StandardObserver) *Runner {
	if outputManager == nil {
		outputManager = redactors.NewOutputManager(observer)
	}
	return &Runner{
		pipeline:      pipeline,
		outputManager: outputManager,
		observer:      observer,
		now:           time.Now,
	}
}

// GetComponentName returns the component name for observability
func (r *Runner) GetComponentName() string {
	return "runner"
}

// Run redacts, sanitizes and verifies every input PDF of p. An invalid or
// empty keyword file aborts the run before any file is touched; after that
// a report is always written, even when every file failed. If ctx is
// cancelled, files not yet finished are recorded as errors, the report is
// still written, and ctx's error is returned with the summary.
func (r *Runner) Run(ctx context.Context, p *project.Project, opts RunOptions) (summary *RunSummary, err error) {
	finishTiming := r.observer.StartTiming(r.GetComponentName(), "run_project", p.Path)
	defer func() {
		meta := map[string]interface{}{"project": p.Name}
		if summary != nil {
			meta["run_id"] = summary.RunID
			meta["files_processed"] = summary.FilesProcessed
			meta["files_errored"] = summary.FilesErrored
		}
		finishTiming(err == nil, meta)
	}()

	lock := flock.New(filepath.Join(p.Path, lockFile))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to lock project: %w", err)
	}
	if !locked {
		return nil, ErrRunInProgress
	}
	defer lock.Unlock()

	text, err := p.ReadKeywords()
	if err != nil {
		return nil, err
	}
	ks, err := keywords.Parse(text)
	if err != nil {
		return nil, fmt.Errorf("keyword file %s: %w", p.KeywordsPath(), err)
	}
	if ks.IsEmpty() {
		return nil, fmt.Errorf("%w in %s: add at least one keyword before running", ErrNoKeywords, p.KeywordsPath())
	}

	inputs, err := p.InputFiles()
	if err != nil {
		return nil, err
	}

	start := r.now()
	runID := NewRunID(start)
	r.observer.SetRunID(runID)

	settings := Settings{
		DeepVerify:          opts.DeepVerify,
		Language:            p.Language,
		ConfidenceThreshold: p.ConfidenceThreshold,
		KeywordsHash:        ks.Hash(),
	}
	if opts.DeepVerify {
		dpi := opts.DeepVerifyDPI
		if dpi <= 0 {
			dpi = validation.DefaultDeepVerifyDPI
		}
		settings.DeepVerifyDPI = &dpi
	}
	verifyOpts := validation.Options{
		ConfidenceThreshold: p.ConfidenceThreshold,
		Language:            p.Language,
		DeepVerify:          opts.DeepVerify,
		Verbose:             opts.Verbose,
	}
	if settings.DeepVerifyDPI != nil {
		verifyOpts.DeepVerifyDPI = *settings.DeepVerifyDPI
	}

	names := make([]string, len(inputs))
	for i, in := range inputs {
		names[i] = filepath.Base(in)
	}
	outputs := AssignOutputNames(names)

	process := func(ctx context.Context, job *parallel.Job) (FileEntry, error) {
		outputPath := filepath.Join(p.OutputDir(), outputs[job.Index])
		return r.processFile(ctx, job.FilePath, outputPath, ks, verifyOpts), nil
	}
	pp := parallel.NewParallelProcessor(opts.Workers, r.observer)
	results, _ := parallel.ProcessFiles(ctx, pp, inputs, process, opts.Progress)

	report := &Report{
		SchemaVersion: ReportSchemaVersion,
		RunID:         runID,
		EngineVersion: version.Short(),
		ProjectName:   p.Name,
		Timestamp:     start.UTC().Format(time.RFC3339),
		Settings:      settings,
		Files:         make([]FileEntry, len(results)),
	}
	for i, res := range results {
		if res.Error != nil {
			// panics and files never started
			report.Files[i] = FileEntry{File: names[i], Status: StatusError, Error: res.Error.Error()}
			continue
		}
		report.Files[i] = res.Value
	}

	reportPath, err := WriteReport(r.outputManager, p.ReportsDir(), report)
	if err != nil {
		return nil, err
	}

	if err := p.MarkRun(r.now()); err != nil {
		r.observer.Warn(r.GetComponentName(), "save_project", p.Path, err, nil)
	}

	summary = Summarize(report)
	summary.ReportPath = reportPath
	summary.Duration = r.now().Sub(start)
	return summary, ctx.Err()
}

// processFile takes one input through redact, sanitize and verify. Every
// failure is recorded in the entry. The redacted but unsanitized staging
// copy never survives, and an output that did not pass through every stage
// is removed so the output folder only holds finished files.
func (r *Runner) processFile(ctx context.Context, inputPath, outputPath string, ks *keywords.KeywordSet, verifyOpts validation.Options) (entry FileEntry) {
	entry = FileEntry{File: filepath.Base(inputPath)}
	finished := false
	defer func() {
		if !finished {
			r.removeOutput(outputPath)
		}
	}()

	fail := func(stage string, err error) FileEntry {
		r.observer.Warn(r.GetComponentName(), stage, inputPath, err, nil)
		entry.Status = StatusError
		entry.Error = fmt.Sprintf("%s failed: %v", stage, err)
		return entry
	}

	staging, err := r.outputManager.TempFile(outputPath)
	if err != nil {
		return fail("redact", err)
	}
	defer os.Remove(staging)

	result, err := r.pipeline.Redactor.Redact(ctx, inputPath, staging, ks)
	if err != nil {
		return fail("redact", err)
	}
	entry.Redaction = newRedaction(result)
	if result.Status != redactors.StatusOK {
		entry.Status = string(result.Status)
		return entry
	}

	sanitized, err := r.pipeline.Sanitizer.Sanitize(ctx, staging, outputPath)
	if err != nil {
		return fail("sanitize", err)
	}
	entry.Sanitization = sanitized
	entry.OutputFile = filepath.Base(outputPath)

	opts := verifyOpts
	opts.SourceHash = result.SourceHash
	opts.ExpectedPages = result.PageCount
	verified, err := r.pipeline.Verifier.Verify(ctx, outputPath, ks, opts)
	if err != nil {
		entry.OutputFile = ""
		return fail("verify", err)
	}
	entry.Verification = newVerification(verified)
	entry.Status = string(verified.Status)
	finished = true
	return entry
}

func (r *Runner) removeOutput(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		r.observer.Warn(r.GetComponentName(), "remove_output", path, err, nil)
	}
}
