// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"obscura/internal/config"
	"obscura/internal/core"
	"obscura/internal/formatters"
	"obscura/internal/redactors"
)

type runFlags struct {
	deepVerify    bool
	deepVerifyDPI int
	verbose       bool
	workers       int
	format        string
	quiet         bool
}

func (a *app) newRunCommand() *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:     "run <project>",
		GroupID: groupRuns,
		Short:   "Redact, sanitize and verify every input PDF of a project",
		Long: `Redact, sanitize and verify every input PDF of a project.

Outputs are written to the project's output folder as <name>_redacted.pdf
and a report is written to its reports folder. Files that could not be
processed, or whose output still needs a human look, are listed in the
report; the run carries on with the other files.

Exit status is 0 when every output verified clean, 2 when any file needs
review or failed, and 1 when the run could not start.

Examples:
  obscura run case-42
  obscura run case-42 --deep-verify --deep-verify-dpi 400
  obscura run case-42 --format json > summary.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a.applyRunDefaults(cmd, f)
			return a.runProject(cmd, args[0], f)
		},
	}
	cmd.Flags().BoolVar(&f.deepVerify, "deep-verify", false, "Also OCR every page of every output during verification")
	cmd.Flags().IntVar(&f.deepVerifyDPI, "deep-verify-dpi", 0, fmt.Sprintf("Rendering DPI for deep verification (%d-%d)", config.MinDeepVerifyDPI, config.MaxDeepVerifyDPI))
	cmd.Flags().BoolVar(&f.verbose, "verbose", false, "Include matched text in residual matches and list details per file")
	cmd.Flags().IntVar(&f.workers, "workers", 0, fmt.Sprintf("Files processed at once (1-%d)", config.MaxWorkers))
	cmd.Flags().StringVar(&f.format, "format", "", "Output format: "+strings.Join(formatters.List(), ", "))
	cmd.Flags().BoolVar(&f.quiet, "quiet", false, "Suppress progress output")
	return cmd
}

// applyRunDefaults fills flags the user did not set from the configuration
func (a *app) applyRunDefaults(cmd *cobra.Command, f *runFlags) {
	d := a.cfg.Defaults
	if !cmd.Flags().Changed("deep-verify") {
		f.deepVerify = d.DeepVerify
	}
	if !cmd.Flags().Changed("deep-verify-dpi") {
		f.deepVerifyDPI = d.DeepVerifyDPI
	}
	if !cmd.Flags().Changed("verbose") {
		f.verbose = d.Verbose
	}
	if !cmd.Flags().Changed("workers") {
		f.workers = d.Workers
	}
	if !cmd.Flags().Changed("format") {
		f.format = d.Format
	}
}

func (f *runFlags) validate() error {
	if f.deepVerifyDPI != 0 && (f.deepVerifyDPI < config.MinDeepVerifyDPI || f.deepVerifyDPI > config.MaxDeepVerifyDPI) {
		return fmt.Errorf("--deep-verify-dpi must be between %d and %d", config.MinDeepVerifyDPI, config.MaxDeepVerifyDPI)
	}
	if f.workers < 0 || f.workers > config.MaxWorkers {
		return fmt.Errorf("--workers must be between 1 and %d", config.MaxWorkers)
	}
	if _, ok := formatters.Get(f.format); !ok {
		return fmt.Errorf("unsupported format '%s'. Available formats: %s", f.format, strings.Join(formatters.List(), ", "))
	}
	return nil
}

func (a *app) runProject(cmd *cobra.Command, name string, f *runFlags) error {
	if err := f.validate(); err != nil {
		return err
	}
	p, err := a.openProject(name)
	if err != nil {
		return err
	}

	om := redactors.NewOutputManager(a.observer)
	pipeline, caps := core.BuildPipeline(a.cfg, p.Language, om, a.observer)
	for _, w := range caps.Warnings {
		a.warnf("%s", w)
	}
	if f.deepVerify && !caps.OCR {
		return fmt.Errorf("--deep-verify needs OCR, which is unavailable on this machine")
	}

	opts := core.RunOptions{
		DeepVerify:    f.deepVerify,
		DeepVerifyDPI: f.deepVerifyDPI,
		Verbose:       f.verbose,
		Workers:       f.workers,
	}
	if !f.quiet && !a.debug && isTerminal(a.stderr) {
		opts.Progress = newProgressBar(a.stderr).update
	}

	runner := core.NewRunner(pipeline, om, a.observer)
	summary, err := runner.Run(cmd.Context(), p, opts)
	if summary == nil {
		if errors.Is(err, core.ErrNoKeywords) {
			return fmt.Errorf("%w\n\nEdit %s or use 'obscura keywords set %s <file>'", err, p.KeywordsPath(), p.Name)
		}
		return err
	}
	if err != nil {
		a.warnf("run interrupted: %v; unfinished files are recorded as errors", err)
	}

	report, rerr := core.ReadReport(summary.ReportPath)
	if rerr != nil {
		return rerr
	}
	out, ferr := formatters.Export(f.format, formatters.View{Report: report, Summary: summary},
		formatters.FormatterOptions{Verbose: f.verbose, NoColor: a.noColor})
	if ferr != nil {
		return ferr
	}
	fmt.Fprint(a.stdout, out)

	if err != nil {
		return &exitError{code: ExitError}
	}
	if summary.FilesNeedingReview > 0 || summary.FilesErrored > 0 {
		return &exitError{code: ExitNeedsReview}
	}
	return nil
}

// progressBar draws a single updating line with an ETA
type progressBar struct {
	mu    sync.Mutex
	w     io.Writer
	start time.Time
}

func newProgressBar(w io.Writer) *progressBar {
	return &progressBar{w: w, start: time.Now()}
}

func (b *progressBar) update(completed, total int, currentFile string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if total == 0 {
		return
	}

	percent := float64(completed) / float64(total) * 100
	barWidth := 40
	filledWidth := barWidth * completed / total
	bar := strings.Repeat("█", filledWidth) + strings.Repeat("░", barWidth-filledWidth)

	var etaStr string
	if completed > 0 {
		elapsed := time.Since(b.start)
		remaining := time.Duration(total-completed) * (elapsed / time.Duration(completed))
		etaStr = fmt.Sprintf(" ETA: %s", remaining.Round(time.Second))
	}

	fmt.Fprintf(b.w, "\r[%s] %d/%d files (%.1f%%)%s", bar, completed, total, percent, etaStr)
	if completed == total {
		fmt.Fprint(b.w, "\n")
	}
}
